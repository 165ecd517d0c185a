// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"context"
	"time"

	"github.com/netascode/go-confapi/oid"
)

// noteChange extends the settle delay when a /conf_delay:<n> instance
// matches the object of a change pushed to agent name.
//
// The value of /conf_delay:<n> is an object OID or pattern; its
// ta:<agent> child (or ta: for every agent) holds the delay in
// milliseconds.
func (db *DB) noteChange(agent string, inst *instance) {
	obj := inst.oid.Object()
	for _, cd := range db.insts[0].children {
		if cd.removed || cd.oid.Comp(0).Subid != "conf_delay" {
			continue
		}
		p, err := oid.ParsePattern(cd.value.AsString())
		if err != nil || !obj.Match(p) {
			continue
		}
		ms := -1
		for _, ta := range cd.children {
			name := ta.oid.Last().Name
			if ta.removed || (name != agent && name != "") {
				continue
			}
			if name == agent || ms < 0 {
				ms = ta.value.AsInt()
			}
		}
		if ms <= 0 {
			continue
		}
		until := db.now().Add(time.Duration(ms) * time.Millisecond)
		if until.After(db.delayUntil) {
			db.delayUntil = until
		}
	}
}

// WaitChanges blocks until the delays requested through /conf_delay
// for the changes made so far have elapsed
func (db *DB) WaitChanges(ctx context.Context) error {
	db.mu.Lock()
	until := db.delayUntil
	now := db.now()
	db.mu.Unlock()

	d := until.Sub(now)
	if d <= 0 {
		return nil
	}
	db.logger.Debug(ctx, "waiting for changes to settle", "delay", d.String())

	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-t.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Delay returns how long WaitChanges would block now
func (db *DB) Delay() time.Duration {
	db.mu.Lock()
	defer db.mu.Unlock()

	if d := db.delayUntil.Sub(db.now()); d > 0 {
		return d
	}
	return 0
}
