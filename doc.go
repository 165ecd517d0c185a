// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package confapi is the client of the Configurator, the typed and
// transactional configuration tree shared by a test engine and its
// agents.
//
// The tree is made of objects (schema nodes with a value type and an
// access mode) and instances (live nodes). Both are named by OIDs such
// as "/agent/interface/mtu" and "/agent:Agt_A/interface:eth0/mtu:" and
// identified by opaque handles (see package cfgtype).
//
// # Quick Start
//
//	client, err := confapi.NewClient("localhost:57400")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	ctx := context.Background()
//	mtu, err := client.GetIntf(ctx, "/agent:%s/interface:%s/mtu:", "Agt_A", "eth0")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = client.Setf(ctx, cfgtype.Int(mtu+100), "/agent:%s/interface:%s/mtu:", "Agt_A", "eth0")
//
// # Staged Changes
//
// SetLocal, AddLocal and DeleteLocal stage a change without telling
// the agent. Commit pushes every staged change below a prefix:
//
//	h, _ := client.AddLocalf(ctx, cfgtype.Int(10), "/agent:%s/vlan:%d", ta, 10)
//	_ = client.SetLocalf(ctx, cfgtype.Int(3), "/agent:%s/vlan:%d/prio:", ta, 10)
//	err = client.Commitf(ctx, "/agent:%s/vlan:%d", ta, 10)
//
// # Backups
//
// A backup is a coarse transaction: take it, mutate the tree, restore:
//
//	name, _ := client.CreateBackup(ctx)
//	defer client.ReleaseBackup(ctx, &name)
//	// ...
//	err = client.RestoreBackup(ctx, name)
//
// # Error Handling
//
// Every operation returns nil or a *cfgerr.Error carrying the module
// that failed and the error kind:
//
//	if errors.Is(err, cfgerr.ErrNotFound) { ... }
//
// Transport failures are retried with exponential backoff; errors
// reported by the Configurator are returned at once.
//
// # Thread Safety
//
// A Client may be shared; its calls are serialised.
package confapi
