// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"fmt"
	"strings"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
)

// Tree renders the subtree rooted at prefix, one instance per line,
// indented by depth. An empty prefix or "/:" prints the whole tree;
// an object OID prints the schema below it.
//
//	/agent:A
//	  /agent:A/interface:eth0
//	    /agent:A/interface:eth0/mtu: = 1500
func (db *DB) Tree(prefix string) (string, error) {
	db.mu.Lock()
	defer db.mu.Unlock()

	var b strings.Builder
	if prefix == "" {
		prefix = "/:"
	}

	if !strings.Contains(prefix, ":") {
		obj, ok := db.objByOID[prefix]
		if !ok {
			return "", cfgerr.New(cfgerr.ModuleCS, cfgerr.NotFound, "object %s is not registered", prefix)
		}
		depth := map[*object]int{obj: 0}
		walkObjects(obj, func(o *object) {
			if o != obj {
				depth[o] = depth[o.parent] + 1
			}
			fmt.Fprintf(&b, "%s%s %s %s", strings.Repeat("  ", depth[o]), o.OID, o.Type, o.Access)
			if o.Default != "" {
				fmt.Fprintf(&b, " default=%q", o.Default)
			}
			b.WriteByte('\n')
		})
		return b.String(), nil
	}

	top, err := db.lookupInstance(prefix)
	if err != nil {
		return "", err
	}
	base := top.oid.Len()
	walk(top, func(i *instance) bool {
		if i.removed {
			return false
		}
		b.WriteString(strings.Repeat("  ", i.oid.Len()-base))
		b.WriteString(i.str)
		if i.value.Type() != cfgtype.TypeNone {
			fmt.Fprintf(&b, " = %s", i.value.String())
		}
		switch {
		case !i.added:
			b.WriteString(" (pending add)")
		case i.changed:
			b.WriteString(" (pending set)")
		}
		b.WriteByte('\n')
		return true
	})
	return b.String(), nil
}
