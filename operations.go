// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import (
	"context"
	"time"

	"github.com/google/uuid"
	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/gnmi/proto/gnmi_ext"
	"google.golang.org/protobuf/encoding/protojson"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/internal/wire"
)

// rootPath is sent with requests that address their target by handle
const rootPath = "/:"

// invoke runs fn with retries.
//
// Calls of one client are serialised. Every attempt gets its own
// context (see createAttemptContext) and the whole call is bounded by
// calculateTotalTimeout. Transient failures are retried with Backoff;
// transport failures reconnect first. The returned error is always a
// *cfgerr.Error.
func (c *Client) invoke(ctx context.Context, op string, req *Req, fn func(context.Context, Transport) error) error {
	if err := checkContextCancellation(ctx); err != nil {
		return cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Transport, err, "%s canceled", op)
	}

	if err := c.ensureConnected(ctx); err != nil {
		return cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Transport, err, "%s: connection failed", op)
	}

	c.callMu.Lock()
	defer c.callMu.Unlock()

	_, hasDeadline := ctx.Deadline()
	totalTimeout := c.calculateTotalTimeout()
	ctx, parentCancel := context.WithTimeout(ctx, totalTimeout)
	defer parentCancel()

	var lastErr error
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		if err := checkContextCancellation(ctx); err != nil {
			c.logger.Debug(ctx, "operation canceled",
				"operation", op,
				"attempt", attempt,
				"error", err.Error())
			return cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Transport, err, "%s canceled", op)
		}

		t := c.currentTransport()
		if t == nil {
			return cfgerr.New(cfgerr.ModuleAPI, cfgerr.Transport, "%s: client is closed", op)
		}

		attemptCtx, attemptCancel := c.createAttemptContext(ctx, req, hasDeadline)
		err := fn(attemptCtx, t)
		attemptCancel()
		if err == nil {
			return nil
		}
		lastErr = err

		if !c.checkTransientError(err) || attempt == c.MaxRetries {
			break
		}

		if c.isTransportError(err) {
			if rerr := c.reconnect(ctx); rerr != nil {
				return cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Transport, rerr, "%s: reconnection failed", op)
			}
		}

		backoff := c.Backoff(attempt)
		c.logger.Warn(ctx, "transient error, retrying",
			"operation", op,
			"attempt", attempt+1,
			"max_retries", c.MaxRetries,
			"backoff", backoff,
			"error", err.Error())

		select {
		case <-time.After(backoff):
		case <-ctx.Done():
			return cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Transport, ctx.Err(), "%s canceled during backoff", op)
		}
	}

	err := wire.FromStatus(lastErr)
	c.logger.Debug(ctx, "operation failed",
		"operation", op,
		"target", c.Target,
		"error", err.Error())
	return err
}

// get sends a Get request and returns the JSON record of every update
func (c *Client) get(ctx context.Context, o wire.Options, paths []string, mods ...func(*Req)) ([][]byte, error) {
	req := newReq(mods)

	ext, err := o.Extension()
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.InvalidArgument, err, "cannot encode %s options", o.Op)
	}
	getReq := &gnmipb.GetRequest{
		Encoding:  gnmipb.Encoding_JSON_IETF,
		Extension: []*gnmi_ext.Extension{ext},
	}
	for _, p := range paths {
		gp, err := wire.PathFromOID(p)
		if err != nil {
			return nil, err
		}
		getReq.Path = append(getReq.Path, gp)
	}

	c.logger.Debug(ctx, "Get request",
		"target", c.Target,
		"op", o.Op,
		"handle", o.Handle.String(),
		"paths", len(paths))

	var resp *gnmipb.GetResponse
	err = c.invoke(ctx, o.Op, req, func(ctx context.Context, t Transport) error {
		var err error
		resp, err = t.Get(ctx, getReq)
		return err
	})
	if err != nil {
		return nil, err
	}

	var docs [][]byte
	for i, n := range resp.GetNotification() {
		c.logNotification(ctx, i, n)
		for _, u := range n.GetUpdate() {
			doc := u.GetVal().GetJsonIetfVal()
			if doc == nil {
				doc = u.GetVal().GetJsonVal()
			}
			docs = append(docs, doc)
		}
	}
	return docs, nil
}

// set sends a Set request carrying the options and decodes its result.
// All attempts of one call carry the same request ID, so a retry of an
// attempt the server already applied gets that attempt's outcome.
func (c *Client) set(ctx context.Context, setReq *gnmipb.SetRequest, o wire.Options, mods ...func(*Req)) (wire.Result, error) {
	req := newReq(mods)
	if req.Expect != nil {
		o.Expect = req.Expect
	}
	if o.ID == "" {
		o.ID = uuid.NewString()
	}

	ext, err := o.Extension()
	if err != nil {
		return wire.Result{}, cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.InvalidArgument, err, "cannot encode options")
	}
	setReq.Extension = append(setReq.Extension, ext)

	op := o.Op
	if op == "" {
		op = "edit"
	}
	c.logger.Debug(ctx, "Set request",
		"target", c.Target,
		"op", op,
		"handle", o.Handle.String(),
		"id", o.ID,
		"updates", len(setReq.GetUpdate()),
		"replaces", len(setReq.GetReplace()),
		"deletes", len(setReq.GetDelete()))

	var resp *gnmipb.SetResponse
	err = c.invoke(ctx, op, req, func(ctx context.Context, t Transport) error {
		var err error
		resp, err = t.Set(ctx, setReq)
		return err
	})
	if err != nil {
		return wire.Result{}, err
	}

	res, err := wire.ResultFromExtensions(resp.GetExtension())
	if err != nil {
		return wire.Result{}, cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Internal, err, "cannot decode %s result", op)
	}
	return res, nil
}

// command sends a Set request without updates
func (c *Client) command(ctx context.Context, o wire.Options, mods ...func(*Req)) (wire.Result, error) {
	return c.set(ctx, &gnmipb.SetRequest{}, o, mods...)
}

// update sets the value of the instance addressed by handle, or by
// path when h is invalid
func (c *Client) update(ctx context.Context, h cfgtype.Handle, path string, v cfgtype.Value, local bool, mods ...func(*Req)) error {
	if h.IsValid() {
		path = rootPath
	}
	p, err := wire.PathFromOID(path)
	if err != nil {
		return err
	}
	u, err := wire.ValueUpdate(p, v)
	if err != nil {
		return cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.InvalidArgument, err, "cannot encode value")
	}

	o := wire.NewOptions("")
	o.Handle = h
	o.Local = local
	_, err = c.set(ctx, &gnmipb.SetRequest{Update: []*gnmipb.Update{u}}, o, mods...)
	return err
}

func (c *Client) logNotification(ctx context.Context, i int, n *gnmipb.Notification) {
	b, err := protojson.Marshal(n)
	if err != nil {
		return
	}
	c.logger.Debug(ctx, "notification",
		"index", i,
		"timestamp", n.GetTimestamp(),
		"updates", len(n.GetUpdate()),
		"notification", c.prepareJSONForLogging(string(b)))
}

// calculateTotalTimeout bounds a whole call: one OperationTimeout plus
// the backoff of every retry
func (c *Client) calculateTotalTimeout() time.Duration {
	totalBackoff := time.Duration(0)
	for attempt := 0; attempt <= c.MaxRetries; attempt++ {
		totalBackoff += c.Backoff(attempt)
	}
	return c.OperationTimeout + totalBackoff
}

// checkContextCancellation returns ctx.Err() without blocking
func checkContextCancellation(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	default:
		return nil
	}
}

// createAttemptContext creates the context of one attempt.
//
// Timeout priority:
//  1. Request-specific timeout (req.Timeout > 0)
//  2. Deadline of the caller's context (hasDeadline)
//  3. Client default timeout (c.OperationTimeout)
//
// The caller must call the returned cancel function.
func (c *Client) createAttemptContext(ctx context.Context, req *Req, hasDeadline bool) (context.Context, context.CancelFunc) {
	if req.Timeout > 0 {
		if req.Timeout < 100*time.Millisecond {
			c.logger.Warn(ctx, "request timeout is very short (may not complete)",
				"timeout", req.Timeout.String(),
				"target", c.Target)
		}
		return context.WithTimeout(ctx, req.Timeout)
	}

	if deadline, ok := ctx.Deadline(); ok && hasDeadline {
		c.logger.Debug(ctx, "using existing context deadline",
			"remaining", time.Until(deadline).String(),
			"target", c.Target)
		return context.WithCancel(ctx)
	}

	return context.WithTimeout(ctx, c.OperationTimeout)
}
