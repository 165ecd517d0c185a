// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import (
	"time"

	"github.com/netascode/go-confapi/cfgtype"
)

// Req holds the per-call options applied by request modifiers
//
// Example:
//
//	err := client.Set(ctx, h, cfgtype.Int(1),
//	    confapi.ExpectValue(cfgtype.Int(0)),
//	    confapi.Timeout(5*time.Second))
type Req struct {
	// Timeout overrides the client default timeout if set
	Timeout time.Duration

	// Expect turns a set into a compare-and-set: the set fails with
	// busy unless the current value equals Expect
	Expect *cfgtype.Value
}

func newReq(mods []func(*Req)) *Req {
	r := &Req{}
	for _, mod := range mods {
		mod(r)
	}
	return r
}
