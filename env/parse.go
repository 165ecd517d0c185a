// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package env

import (
	"fmt"
	"strings"
	"unicode"

	"github.com/netascode/go-confapi/cfgerr"
)

// Type is the role of a declarative net or a PCO
type Type int

const (
	TypeUnspec Type = iota
	TypeTester
	TypeIUT
	TypeIUTPeer
	TypeInvalid
)

var typeNames = map[string]Type{
	"tester":   TypeTester,
	"IUT":      TypeIUT,
	"IUT_peer": TypeIUTPeer,
}

// String returns the name used in environment descriptions
func (t Type) String() string {
	switch t {
	case TypeUnspec:
		return "unspec"
	case TypeTester:
		return "tester"
	case TypeIUT:
		return "IUT"
	case TypeIUTPeer:
		return "IUT_peer"
	}
	return "invalid"
}

// AddrFamily is the family of a requested address
type AddrFamily int

const (
	FamilyInet AddrFamily = iota
	FamilyInet6
	FamilyEther
)

var familyNames = map[string]AddrFamily{
	"inet":  FamilyInet,
	"inet6": FamilyInet6,
	"ether": FamilyEther,
}

// String returns the name used in environment descriptions
func (f AddrFamily) String() string {
	for k, v := range familyNames {
		if v == f {
			return k
		}
	}
	return "unknown"
}

// AddrKind tells how a requested address is obtained
type AddrKind int

const (
	// Unicast addresses are allocated from the net and assigned to the
	// interface
	Unicast AddrKind = iota
	// FakeUnicast addresses are allocated but never assigned
	FakeUnicast
	Broadcast
	Multicast
)

var kindNames = map[string]AddrKind{
	"unicast":      Unicast,
	"fake_unicast": FakeUnicast,
	"broadcast":    Broadcast,
	"multicast":    Multicast,
}

// String returns the name used in environment descriptions
func (k AddrKind) String() string {
	for n, v := range kindNames {
		if v == k {
			return n
		}
	}
	return "unknown"
}

// Config is a parsed environment description
type Config struct {
	Nets []*NetSpec
}

// NetSpec is a declarative net
type NetSpec struct {
	Name  string
	Type  Type
	Hosts []*HostSpec
}

// HostSpec is one appearance of a host in a declarative net. Hosts
// sharing a non-empty name across nets are the same host.
type HostSpec struct {
	Name  string
	If    string
	PCOs  []PCOSpec
	Addrs []AddrSpec
}

// PCOSpec requests an RPC server on the host
type PCOSpec struct {
	Name string
	Type Type
}

// AddrSpec requests an address on the host interface
type AddrSpec struct {
	Name   string
	Family AddrFamily
	Kind   AddrKind
}

// Parse parses an environment description:
//
//	env  := net ("," net)*
//	net  := ['name'] [":" (IUT|tester)] "{" host ("," host)* "}"
//	host := ['name'] "{" item ("," item)* "}"
//	item := "{" pco ("," pco)* "}"
//	      | "addr:" 'name' ":" (inet|inet6|ether) ":" (unicast|fake_unicast|broadcast|multicast)
//	      | "if:" 'name'
//	pco  := 'name' ":" (IUT|tester|IUT_peer)
//
// PCO, address and interface names are unique in the whole description.
func Parse(s string) (*Config, error) {
	p := &parser{src: s}
	if err := p.next(); err != nil {
		return nil, err
	}
	cfg := &Config{}
	for {
		n, err := p.net()
		if err != nil {
			return nil, err
		}
		cfg.Nets = append(cfg.Nets, n)
		if p.tok.kind != tokComma {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind != tokEOF {
		return nil, p.errorf("unexpected %s", p.tok)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) validate() error {
	seen := map[string]string{}
	unique := func(what, name string) error {
		if name == "" {
			return nil
		}
		if prev, ok := seen[name]; ok {
			return cfgerr.New(cfgerr.ModuleEnv, cfgerr.InvalidArgument, "%s name %q already used by %s", what, name, prev)
		}
		seen[name] = what
		return nil
	}
	nets := map[string]bool{}
	for _, n := range c.Nets {
		if n.Name != "" {
			if nets[n.Name] {
				return cfgerr.New(cfgerr.ModuleEnv, cfgerr.InvalidArgument, "net %q declared twice", n.Name)
			}
			nets[n.Name] = true
		}
		for _, h := range n.Hosts {
			if err := unique("interface", h.If); err != nil {
				return err
			}
			for _, pco := range h.PCOs {
				if err := unique("PCO", pco.Name); err != nil {
					return err
				}
			}
			for _, a := range h.Addrs {
				if err := unique("address", a.Name); err != nil {
					return err
				}
			}
		}
	}
	return nil
}

type tokKind int

const (
	tokEOF tokKind = iota
	tokLBrace
	tokRBrace
	tokComma
	tokColon
	tokQuoted
	tokWord
)

type token struct {
	kind tokKind
	text string
	pos  int
}

func (t token) String() string {
	switch t.kind {
	case tokEOF:
		return "end of input"
	case tokQuoted:
		return fmt.Sprintf("'%s'", t.text)
	}
	return fmt.Sprintf("%q", t.text)
}

var punct = map[byte]tokKind{'{': tokLBrace, '}': tokRBrace, ',': tokComma, ':': tokColon}

type parser struct {
	src string
	pos int
	tok token
}

func (p *parser) errorf(format string, args ...any) error {
	return cfgerr.New(cfgerr.ModuleEnv, cfgerr.InvalidArgument, "offset %d: %s", p.tok.pos, fmt.Sprintf(format, args...))
}

func (p *parser) next() error {
	for p.pos < len(p.src) && unicode.IsSpace(rune(p.src[p.pos])) {
		p.pos++
	}
	start := p.pos
	if p.pos == len(p.src) {
		p.tok = token{kind: tokEOF, pos: start}
		return nil
	}
	c := p.src[p.pos]
	switch c {
	case '{', '}', ',', ':':
		p.pos++
		p.tok = token{kind: punct[c], text: string(c), pos: start}
		return nil
	case '\'':
		end := strings.IndexByte(p.src[p.pos+1:], '\'')
		if end < 0 {
			p.tok = token{pos: start}
			return p.errorf("unterminated name")
		}
		p.tok = token{kind: tokQuoted, text: p.src[p.pos+1 : p.pos+1+end], pos: start}
		p.pos += end + 2
		return nil
	}
	for p.pos < len(p.src) && isWordByte(p.src[p.pos]) {
		p.pos++
	}
	if p.pos == start {
		p.tok = token{pos: start}
		return p.errorf("unexpected character %q", c)
	}
	p.tok = token{kind: tokWord, text: p.src[start:p.pos], pos: start}
	return nil
}

func isWordByte(c byte) bool {
	return c == '_' || c >= '0' && c <= '9' || c >= 'a' && c <= 'z' || c >= 'A' && c <= 'Z'
}

func (p *parser) expect(k tokKind, what string) (token, error) {
	t := p.tok
	if t.kind != k {
		return t, p.errorf("expected %s, got %s", what, t)
	}
	return t, p.next()
}

func (p *parser) word(table map[string]int, what string) (int, error) {
	t, err := p.expect(tokWord, what)
	if err != nil {
		return 0, err
	}
	v, ok := table[t.text]
	if !ok {
		p.tok = t
		return 0, p.errorf("unknown %s %q", what, t.text)
	}
	return v, nil
}

func (p *parser) typ(allowed ...Type) (Type, error) {
	t, err := p.expect(tokWord, "type")
	if err != nil {
		return TypeInvalid, err
	}
	v, ok := typeNames[t.text]
	if ok {
		for _, a := range allowed {
			if a == v {
				return v, nil
			}
		}
	}
	p.tok = t
	return TypeInvalid, p.errorf("type %q not allowed here", t.text)
}

func (p *parser) net() (*NetSpec, error) {
	n := &NetSpec{}
	if p.tok.kind == tokQuoted {
		n.Name = p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if p.tok.kind == tokColon {
		if err := p.next(); err != nil {
			return nil, err
		}
		t, err := p.typ(TypeIUT, TypeTester)
		if err != nil {
			return nil, err
		}
		n.Type = t
	}
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	for {
		h, err := p.host()
		if err != nil {
			return nil, err
		}
		n.Hosts = append(n.Hosts, h)
		if p.tok.kind != tokComma {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return n, nil
}

func (p *parser) host() (*HostSpec, error) {
	h := &HostSpec{}
	if p.tok.kind == tokQuoted {
		h.Name = p.tok.text
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokLBrace, "'{'"); err != nil {
		return nil, err
	}
	for {
		if err := p.item(h); err != nil {
			return nil, err
		}
		if p.tok.kind != tokComma {
			break
		}
		if err := p.next(); err != nil {
			return nil, err
		}
	}
	if _, err := p.expect(tokRBrace, "'}'"); err != nil {
		return nil, err
	}
	return h, nil
}

func (p *parser) item(h *HostSpec) error {
	switch {
	case p.tok.kind == tokLBrace:
		if err := p.next(); err != nil {
			return err
		}
		for {
			pco, err := p.pco()
			if err != nil {
				return err
			}
			h.PCOs = append(h.PCOs, pco)
			if p.tok.kind != tokComma {
				break
			}
			if err := p.next(); err != nil {
				return err
			}
		}
		_, err := p.expect(tokRBrace, "'}'")
		return err

	case p.tok.kind == tokWord && p.tok.text == "addr":
		a, err := p.addr()
		if err != nil {
			return err
		}
		h.Addrs = append(h.Addrs, a)
		return nil

	case p.tok.kind == tokWord && p.tok.text == "if":
		if h.If != "" {
			return p.errorf("interface of the host already named %q", h.If)
		}
		if err := p.next(); err != nil {
			return err
		}
		if _, err := p.expect(tokColon, "':'"); err != nil {
			return err
		}
		t, err := p.expect(tokQuoted, "interface name")
		if err != nil {
			return err
		}
		h.If = t.text
		return nil
	}
	return p.errorf("expected PCO list, address or interface, got %s", p.tok)
}

func (p *parser) pco() (PCOSpec, error) {
	t, err := p.expect(tokQuoted, "PCO name")
	if err != nil {
		return PCOSpec{}, err
	}
	if _, err := p.expect(tokColon, "':'"); err != nil {
		return PCOSpec{}, err
	}
	typ, err := p.typ(TypeIUT, TypeTester, TypeIUTPeer)
	if err != nil {
		return PCOSpec{}, err
	}
	return PCOSpec{Name: t.text, Type: typ}, nil
}

func (p *parser) addr() (AddrSpec, error) {
	if err := p.next(); err != nil {
		return AddrSpec{}, err
	}
	if _, err := p.expect(tokColon, "':'"); err != nil {
		return AddrSpec{}, err
	}
	t, err := p.expect(tokQuoted, "address name")
	if err != nil {
		return AddrSpec{}, err
	}
	if _, err := p.expect(tokColon, "':'"); err != nil {
		return AddrSpec{}, err
	}
	f, err := p.word(toInts(familyNames), "address family")
	if err != nil {
		return AddrSpec{}, err
	}
	if _, err := p.expect(tokColon, "':'"); err != nil {
		return AddrSpec{}, err
	}
	k, err := p.word(toInts(kindNames), "address type")
	if err != nil {
		return AddrSpec{}, err
	}
	return AddrSpec{Name: t.text, Family: AddrFamily(f), Kind: AddrKind(k)}, nil
}

func toInts[T ~int](m map[string]T) map[string]int {
	out := make(map[string]int, len(m))
	for k, v := range m {
		out[k] = int(v)
	}
	return out
}
