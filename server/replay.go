// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package server

import (
	"context"
	"errors"
	"sync"

	"github.com/hashicorp/golang-lru/arc/v2"
	gnmipb "github.com/openconfig/gnmi/proto/gnmi"

	"github.com/netascode/go-confapi/cfgerr"
)

// DefaultReplaySize is the number of Set outcomes remembered by ID
const DefaultReplaySize = 1024

// replay is the outcome of one identified Set call
type replay struct {
	done chan struct{}
	resp *gnmipb.SetResponse
	err  error
}

// replayCache answers repeated Set calls with the outcome of the first
// one. A repeat arriving while the first is still running waits for it.
type replayCache struct {
	mu       sync.Mutex
	inflight map[string]*replay
	done     *arc.ARCCache[string, *replay]
}

func newReplayCache(size int) (*replayCache, error) {
	c, err := arc.NewARC[string, *replay](size)
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "cannot create replay cache")
	}
	return &replayCache{
		inflight: make(map[string]*replay),
		done:     c,
	}, nil
}

// do runs fn once per id and reports whether the outcome was replayed.
// Calls without an id always run. Outcomes cut short by the caller's
// context are not remembered.
func (c *replayCache) do(ctx context.Context, id string, fn func() (*gnmipb.SetResponse, error)) (*gnmipb.SetResponse, bool, error) {
	if c == nil || id == "" {
		resp, err := fn()
		return resp, false, err
	}

	c.mu.Lock()
	if r, ok := c.done.Get(id); ok {
		c.mu.Unlock()
		return r.resp, true, r.err
	}
	if r, ok := c.inflight[id]; ok {
		c.mu.Unlock()
		select {
		case <-r.done:
			return r.resp, true, r.err
		case <-ctx.Done():
			return nil, false, ctx.Err()
		}
	}
	r := &replay{done: make(chan struct{})}
	c.inflight[id] = r
	c.mu.Unlock()

	r.resp, r.err = fn()

	c.mu.Lock()
	delete(c.inflight, id)
	if !errors.Is(r.err, context.Canceled) && !errors.Is(r.err, context.DeadlineExceeded) {
		c.done.Add(id, r)
	}
	c.mu.Unlock()
	close(r.done)
	return r.resp, false, r.err
}
