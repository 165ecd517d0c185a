// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"
	"fmt"
	"io"
	"strings"
	"sync"

	"gopkg.in/yaml.v3"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// MemAgent is an agent keeping its configuration in memory.
//
// It accepts whatever the DB pushes, keeps children in insertion order
// and refuses to reserve the same resource twice through rsrc.
type MemAgent struct {
	mu    sync.Mutex
	name  string
	root  *memNode
	nodes map[string]*memNode
	fault func(op, oid string) error
	ops   []string
}

type memNode struct {
	oid      string
	value    cfgtype.Value
	parent   *memNode
	children []*memNode
}

// NewMemAgent creates an empty agent named name
func NewMemAgent(name string) *MemAgent {
	root := &memNode{oid: agentRoot(name), value: cfgtype.None()}
	return &MemAgent{
		name:  name,
		root:  root,
		nodes: map[string]*memNode{root.oid: root},
	}
}

// Name returns the agent name
func (a *MemAgent) Name() string {
	return a.name
}

// SetFault installs a hook called before every operation; a non-nil
// return fails the operation
func (a *MemAgent) SetFault(fn func(op, oid string) error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.fault = fn
}

// Ops returns the journal of applied changes ("add <oid> <value>",
// "set ...", "delete <oid>")
func (a *MemAgent) Ops() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.ops...)
}

// Get returns the value of an instance
func (a *MemAgent) Get(_ context.Context, s string) (cfgtype.Value, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check("get", s); err != nil {
		return cfgtype.Value{}, err
	}
	n, ok := a.nodes[s]
	if !ok {
		return cfgtype.Value{}, a.notFound(s)
	}
	return n.value, nil
}

// Set updates an instance, creating it when its parent exists
func (a *MemAgent) Set(_ context.Context, s string, v cfgtype.Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check("set", s); err != nil {
		return err
	}
	if n, ok := a.nodes[s]; ok {
		n.value = v
	} else if err := a.insert(s, v); err != nil {
		return err
	}
	a.ops = append(a.ops, fmt.Sprintf("set %s %s", s, v.String()))
	return nil
}

// Add creates an instance below an existing parent
func (a *MemAgent) Add(_ context.Context, s string, v cfgtype.Value) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check("add", s); err != nil {
		return err
	}
	if _, ok := a.nodes[s]; ok {
		return cfgerr.New(cfgerr.ModuleAgent, cfgerr.AlreadyExists, "%s already exists", s).WithOp("add", s)
	}
	if holder := a.rsrcHolder(s, v); holder != "" {
		return cfgerr.New(cfgerr.ModuleAgent, cfgerr.PermissionDenied, "resource %s is held by %s", v.String(), holder).WithOp("add", s)
	}
	if err := a.insert(s, v); err != nil {
		return err
	}
	a.ops = append(a.ops, fmt.Sprintf("add %s %s", s, v.String()))
	return nil
}

// Delete removes an instance and its subtree
func (a *MemAgent) Delete(_ context.Context, s string) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check("delete", s); err != nil {
		return err
	}
	n, ok := a.nodes[s]
	if !ok || n == a.root {
		return a.notFound(s)
	}
	a.ops = append(a.ops, "delete "+s)
	a.drop(n)
	p := n.parent
	for i, c := range p.children {
		if c == n {
			p.children = append(p.children[:i:i], p.children[i+1:]...)
			break
		}
	}
	return nil
}

// Snapshot returns s and, with subtree, its descendants in pre-order
func (a *MemAgent) Snapshot(_ context.Context, s string, subtree bool) ([]Entry, error) {
	a.mu.Lock()
	defer a.mu.Unlock()

	if err := a.check("snapshot", s); err != nil {
		return nil, err
	}
	n, ok := a.nodes[s]
	if !ok {
		return nil, a.notFound(s)
	}
	if !subtree {
		return []Entry{{OID: n.oid, Value: n.value}}, nil
	}
	var out []Entry
	var visit func(*memNode)
	visit = func(m *memNode) {
		out = append(out, Entry{OID: m.oid, Value: m.value})
		for _, c := range m.children {
			visit(c)
		}
	}
	visit(n)
	return out, nil
}

func (a *MemAgent) check(op, s string) error {
	if s != a.root.oid && !strings.HasPrefix(s, a.root.oid+"/") {
		return cfgerr.New(cfgerr.ModuleAgent, cfgerr.InvalidArgument, "%s is outside agent %s", s, a.name).WithOp(op, s)
	}
	if a.fault != nil {
		return a.fault(op, s)
	}
	return nil
}

func (a *MemAgent) notFound(s string) error {
	return cfgerr.New(cfgerr.ModuleAgent, cfgerr.NotFound, "%s does not exist", s)
}

func (a *MemAgent) insert(s string, v cfgtype.Value) error {
	o, err := oid.Parse(s)
	if err != nil {
		return err
	}
	if _, ok := a.nodes[s]; ok {
		return cfgerr.New(cfgerr.ModuleAgent, cfgerr.AlreadyExists, "%s already exists", s)
	}
	parent, ok := a.nodes[o.Parent().String()]
	if !ok {
		return cfgerr.New(cfgerr.ModuleAgent, cfgerr.NotFound, "parent of %s does not exist", s)
	}
	n := &memNode{oid: s, value: v, parent: parent}
	parent.children = append(parent.children, n)
	a.nodes[s] = n
	return nil
}

func (a *MemAgent) drop(n *memNode) {
	for _, c := range n.children {
		a.drop(c)
	}
	delete(a.nodes, n.oid)
}

// rsrcHolder returns the rsrc instance already holding the resource
// s would reserve, "" if none
func (a *MemAgent) rsrcHolder(s string, v cfgtype.Value) string {
	o, err := oid.Parse(s)
	if err != nil || o.Len() != 2 || o.Comp(1).Subid != "rsrc" {
		return ""
	}
	for _, c := range a.root.children {
		co, err := oid.Parse(c.oid)
		if err != nil || co.Comp(1).Subid != "rsrc" {
			continue
		}
		if c.value.String() == v.String() {
			return c.oid
		}
	}
	return ""
}

// fixture is the YAML layout of a seeded agent
type fixture struct {
	Instances []fixtureEntry `yaml:"instances"`
}

type fixtureEntry struct {
	OID   string `yaml:"oid"`
	Type  string `yaml:"type"`
	Value string `yaml:"value"`
}

// LoadMemAgent creates an agent seeded from a YAML fixture:
//
//	instances:
//	  - oid: /agent:A/interface:eth0
//	  - oid: /agent:A/interface:eth0/mtu:
//	    type: int
//	    value: "1500"
//
// Entries are inserted in order, so parents must precede children.
func LoadMemAgent(name string, r io.Reader) (*MemAgent, error) {
	var f fixture
	if err := yaml.NewDecoder(r).Decode(&f); err != nil && err != io.EOF {
		return nil, fmt.Errorf("failed to parse agent fixture: %w", err)
	}

	a := NewMemAgent(name)
	for _, e := range f.Instances {
		t, err := cfgtype.ParseType(e.Type)
		if err != nil {
			return nil, fmt.Errorf("fixture entry %s: %w", e.OID, err)
		}
		v, err := cfgtype.ParseValue(t, e.Value)
		if err != nil {
			return nil, fmt.Errorf("fixture entry %s: %w", e.OID, err)
		}
		if err := a.insert(e.OID, v); err != nil {
			return nil, fmt.Errorf("fixture entry %s: %w", e.OID, err)
		}
	}
	return a, nil
}
