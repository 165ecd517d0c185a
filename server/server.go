// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Package server exposes a configuration tree as a gNMI service.
//
// Get carries lookups, navigation and reads; the operation is selected
// by the options extension (see internal/wire). Set carries deletes,
// adds (replace) and sets (update) in that order, or a single command
// such as commit or backup_create when the options name one. Failures
// are gRPC statuses with an ErrorInfo detail.
//
// Example:
//
//	db := confdb.New()
//	srv := server.New(db, server.WithLogger(logger))
//	g := grpc.NewServer()
//	srv.Register(g)
//	g.Serve(lis)
package server

import (
	"context"
	"time"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/gnmi/proto/gnmi_ext"
	"google.golang.org/grpc"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/confdb"
	"github.com/netascode/go-confapi/internal/wire"
	"github.com/netascode/go-confapi/logging"
)

// GNMIVersion is reported by Capabilities
const GNMIVersion = "0.10.0"

// Server implements gnmipb.GNMIServer over a confdb.DB. Subscribe is
// not supported.
type Server struct {
	gnmipb.UnimplementedGNMIServer

	db      *confdb.DB
	logger  logging.Logger
	metrics *Metrics

	replaySize int
	replays    *replayCache
}

// WithLogger sets the request logger
func WithLogger(logger logging.Logger) func(*Server) {
	return func(s *Server) {
		s.logger = logger
	}
}

// WithMetrics enables Prometheus collectors
func WithMetrics(m *Metrics) func(*Server) {
	return func(s *Server) {
		s.metrics = m
	}
}

// WithReplaySize sets how many Set outcomes are remembered by request
// ID (default: DefaultReplaySize). Zero disables replays.
func WithReplaySize(n int) func(*Server) {
	return func(s *Server) {
		s.replaySize = n
	}
}

// New creates a Server serving db
func New(db *confdb.DB, opts ...func(*Server)) *Server {
	s := &Server{
		db:         db,
		logger:     &logging.NoOpLogger{},
		replaySize: DefaultReplaySize,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.replaySize > 0 {
		if c, err := newReplayCache(s.replaySize); err == nil {
			s.replays = c
		}
	}
	return s
}

// Register attaches the service to a gRPC server
func (s *Server) Register(g *grpc.Server) {
	gnmipb.RegisterGNMIServer(g, s)
}

// DB returns the served tree
func (s *Server) DB() *confdb.DB {
	return s.db
}

// Capabilities reports JSON encodings and the configurator model
func (s *Server) Capabilities(ctx context.Context, _ *gnmipb.CapabilityRequest) (*gnmipb.CapabilityResponse, error) {
	start := time.Now()
	defer s.metrics.observe("capabilities", "", start, nil)

	return &gnmipb.CapabilityResponse{
		SupportedModels: []*gnmipb.ModelData{
			{Name: "configurator", Organization: "netascode", Version: "1"},
		},
		SupportedEncodings: []gnmipb.Encoding{gnmipb.Encoding_JSON_IETF, gnmipb.Encoding_JSON},
		GNMIVersion:        GNMIVersion,
	}, nil
}

// Get serves lookups and reads
func (s *Server) Get(ctx context.Context, req *gnmipb.GetRequest) (*gnmipb.GetResponse, error) {
	start := time.Now()
	opts, err := wire.OptionsFromExtensions(req.GetExtension())
	if err != nil {
		return nil, wire.Status(cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "invalid options"))
	}
	if opts.Op == "" {
		opts.Op = wire.OpGet
	}

	notifs, err := s.get(ctx, req, opts)
	s.metrics.observe("get", opts.Op, start, err)
	if err != nil {
		s.logger.Debug(ctx, "get failed", "op", opts.Op, "error", err.Error())
		return nil, wire.Status(err)
	}
	s.logger.Debug(ctx, "get served", "op", opts.Op, "results", len(notifs))
	return &gnmipb.GetResponse{Notification: notifs}, nil
}

func (s *Server) get(ctx context.Context, req *gnmipb.GetRequest, opts wire.Options) ([]*gnmipb.Notification, error) {
	switch opts.Op {
	case wire.OpSon, wire.OpBrother, wire.OpFather:
		h, err := s.navigate(opts.Op, opts.Handle)
		if err != nil || !h.IsValid() {
			return nil, err
		}
		return s.records(ctx, []cfgtype.Handle{h}, false)

	case wire.OpGet, wire.OpOID:
		handles, err := s.targets(req.GetPath(), opts.Handle)
		if err != nil {
			return nil, err
		}
		return s.records(ctx, handles, opts.Sync && opts.Op == wire.OpGet)

	case wire.OpFind:
		handles, err := s.targets(req.GetPath(), cfgtype.InvalidHandle)
		if err != nil {
			return nil, err
		}
		return s.records(ctx, handles, false)

	case wire.OpObject:
		handles, err := s.targets(req.GetPath(), opts.Handle)
		if err != nil {
			return nil, err
		}
		out := make([]*gnmipb.Notification, 0, len(handles))
		for _, h := range handles {
			obj, err := s.db.Object(h)
			if err != nil {
				return nil, err
			}
			n, err := objectNotification(obj)
			if err != nil {
				return nil, err
			}
			out = append(out, n)
		}
		return out, nil

	case wire.OpPattern:
		patterns, err := s.oidsOf(req.GetPath(), opts.Name)
		if err != nil {
			return nil, err
		}
		var handles []cfgtype.Handle
		for _, p := range patterns {
			hs, err := s.db.FindPattern(p)
			if err != nil {
				return nil, err
			}
			if p == confdb.AllInstances && s.metrics != nil {
				s.metrics.Instances.Set(float64(len(hs)))
			}
			handles = append(handles, hs...)
		}
		return s.records(ctx, handles, false)

	case wire.OpEnumerate:
		objs, err := s.oidsOf(req.GetPath(), opts.Name)
		if err != nil {
			return nil, err
		}
		var out []*gnmipb.Notification
		for _, o := range objs {
			insts, err := s.db.Enumerate(o)
			if err != nil {
				return nil, err
			}
			for _, inst := range insts {
				n, err := instanceNotification(inst)
				if err != nil {
					return nil, err
				}
				out = append(out, n)
			}
		}
		return out, nil

	case wire.OpTree:
		prefixes, err := s.oidsOf(req.GetPath(), opts.Name)
		if err != nil {
			return nil, err
		}
		if len(prefixes) == 0 {
			prefixes = []string{""}
		}
		out := make([]*gnmipb.Notification, 0, len(prefixes))
		for _, p := range prefixes {
			text, err := s.db.Tree(p)
			if err != nil {
				return nil, err
			}
			doc, err := wire.TextRecord(text)
			if err != nil {
				return nil, err
			}
			out = append(out, notification(&gnmipb.Update{Val: wire.JSONValue(doc)}))
		}
		return out, nil
	}
	return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "unknown get operation %q", opts.Op)
}

func (s *Server) navigate(op string, h cfgtype.Handle) (cfgtype.Handle, error) {
	switch op {
	case wire.OpSon:
		return s.db.Son(h)
	case wire.OpBrother:
		return s.db.Brother(h)
	default:
		return s.db.Father(h)
	}
}

// targets resolves the handle option or, without one, every path
func (s *Server) targets(paths []*gnmipb.Path, h cfgtype.Handle) ([]cfgtype.Handle, error) {
	if h.IsValid() {
		return []cfgtype.Handle{h}, nil
	}
	oids, err := s.oidsOf(paths, "")
	if err != nil {
		return nil, err
	}
	if len(oids) == 0 {
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "request names neither a handle nor a path")
	}
	handles := make([]cfgtype.Handle, 0, len(oids))
	for _, o := range oids {
		h, err := s.db.Find(o)
		if err != nil {
			return nil, err
		}
		handles = append(handles, h)
	}
	return handles, nil
}

// oidsOf converts paths to OID strings; name is used when there are
// no paths
func (s *Server) oidsOf(paths []*gnmipb.Path, name string) ([]string, error) {
	if len(paths) == 0 && name != "" {
		return []string{name}, nil
	}
	out := make([]string, 0, len(paths))
	for _, p := range paths {
		o, err := wire.OIDFromPath(p)
		if err != nil {
			return nil, err
		}
		out = append(out, o)
	}
	return out, nil
}

func (s *Server) records(ctx context.Context, handles []cfgtype.Handle, sync bool) ([]*gnmipb.Notification, error) {
	out := make([]*gnmipb.Notification, 0, len(handles))
	for _, h := range handles {
		var n *gnmipb.Notification
		if h.IsObject() {
			obj, err := s.db.Object(h)
			if err != nil {
				return nil, err
			}
			if n, err = objectNotification(obj); err != nil {
				return nil, err
			}
		} else {
			inst, err := s.db.Get(ctx, h, sync)
			if err != nil {
				return nil, err
			}
			if n, err = instanceNotification(inst); err != nil {
				return nil, err
			}
		}
		out = append(out, n)
	}
	return out, nil
}

func instanceNotification(inst cfgtype.Instance) (*gnmipb.Notification, error) {
	path, err := wire.PathFromOID(inst.OID)
	if err != nil {
		return nil, err
	}
	doc, err := wire.EncodeInstance(inst)
	if err != nil {
		return nil, err
	}
	return notification(&gnmipb.Update{Path: path, Val: wire.JSONValue(doc)}), nil
}

func objectNotification(obj cfgtype.Object) (*gnmipb.Notification, error) {
	path, err := wire.PathFromOID(obj.OID)
	if err != nil {
		return nil, err
	}
	doc, err := wire.EncodeObject(obj)
	if err != nil {
		return nil, err
	}
	return notification(&gnmipb.Update{Path: path, Val: wire.JSONValue(doc)}), nil
}

func notification(u *gnmipb.Update) *gnmipb.Notification {
	return &gnmipb.Notification{
		Timestamp: time.Now().UnixNano(),
		Update:    []*gnmipb.Update{u},
	}
}

// Set serves edits and commands. A request repeating the ID of an
// earlier one gets the earlier outcome without being applied again.
func (s *Server) Set(ctx context.Context, req *gnmipb.SetRequest) (*gnmipb.SetResponse, error) {
	opts, err := wire.OptionsFromExtensions(req.GetExtension())
	if err != nil {
		return nil, wire.Status(cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "invalid options"))
	}

	resp, replayed, err := s.replays.do(ctx, opts.ID, func() (*gnmipb.SetResponse, error) {
		return s.apply(ctx, req, opts)
	})
	if replayed {
		s.logger.Debug(ctx, "set replayed", "id", opts.ID, "op", opts.Op)
		s.metrics.replayed(opts.Op)
	}
	if err != nil {
		return nil, wire.Status(err)
	}
	return resp, nil
}

func (s *Server) apply(ctx context.Context, req *gnmipb.SetRequest, opts wire.Options) (*gnmipb.SetResponse, error) {
	start := time.Now()
	op := opts.Op
	if op == "" {
		op = "edit"
	}
	var (
		res     wire.Result
		results []*gnmipb.UpdateResult
		err     error
	)
	if opts.Op != "" {
		res, err = s.command(ctx, opts)
	} else {
		res, results, err = s.edit(ctx, req, opts)
	}
	s.metrics.observe("set", op, start, err)
	if err != nil {
		s.logger.Debug(ctx, "set failed", "op", op, "error", err.Error())
		return nil, err
	}

	ext, err := res.Extension()
	if err != nil {
		return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "cannot encode result")
	}
	return &gnmipb.SetResponse{
		Response:  results,
		Timestamp: time.Now().UnixNano(),
		Extension: []*gnmi_ext.Extension{ext},
	}, nil
}

func (s *Server) command(ctx context.Context, opts wire.Options) (wire.Result, error) {
	var res wire.Result
	switch opts.Op {
	case wire.OpCommit:
		return res, s.db.Commit(ctx, opts.Name)
	case wire.OpSync:
		return res, s.db.Sync(ctx, opts.Name, opts.Subtree)
	case wire.OpBackupCreate:
		name, err := s.db.CreateBackup(ctx)
		res.Name = name
		return res, err
	case wire.OpBackupVerify:
		return res, s.db.VerifyBackup(ctx, opts.Name)
	case wire.OpBackupRestore:
		return res, s.db.RestoreBackup(ctx, opts.Name)
	case wire.OpBackupRelease:
		return res, s.db.ReleaseBackup(ctx, opts.Name)
	case wire.OpRegister:
		if opts.Object == nil {
			return res, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "register needs an object description")
		}
		h, err := s.db.Register(ctx, *opts.Object)
		if err == nil {
			res.Handles = []cfgtype.Handle{h}
		}
		return res, err
	case wire.OpUnregister:
		return res, s.db.Unregister(ctx, opts.Name)
	case wire.OpWait:
		return res, s.db.WaitChanges(ctx)
	case wire.OpCopy:
		h, err := s.db.CopySubtree(ctx, opts.Name, opts.Source, opts.Local)
		if err == nil {
			res.Handles = []cfgtype.Handle{h}
		}
		return res, err
	case wire.OpTouch:
		_, err := s.db.Touch(ctx, opts.Name)
		return res, err
	}
	return res, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "unknown command %q", opts.Op)
}

// edit applies deletes, then adds (replace), then sets (update)
func (s *Server) edit(ctx context.Context, req *gnmipb.SetRequest, opts wire.Options) (wire.Result, []*gnmipb.UpdateResult, error) {
	var (
		res     wire.Result
		results []*gnmipb.UpdateResult
	)

	for _, p := range req.GetDelete() {
		hs, err := s.targets([]*gnmipb.Path{p}, opts.Handle)
		if err != nil {
			return res, nil, err
		}
		if err := s.db.Delete(ctx, hs[0], opts.Recursive, opts.Local); err != nil {
			return res, nil, err
		}
		results = append(results, &gnmipb.UpdateResult{Path: p, Op: gnmipb.UpdateResult_DELETE})
	}

	for _, u := range req.GetReplace() {
		o, err := wire.OIDFromPath(u.GetPath())
		if err != nil {
			return res, nil, err
		}
		v, err := wire.ValueFromUpdate(u)
		if err != nil {
			return res, nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "value of %s", o)
		}
		h, err := s.db.Add(ctx, o, v, opts.Local)
		if err != nil {
			return res, nil, err
		}
		res.Handles = append(res.Handles, h)
		results = append(results, &gnmipb.UpdateResult{Path: u.GetPath(), Op: gnmipb.UpdateResult_REPLACE})
	}

	for _, u := range req.GetUpdate() {
		hs, err := s.targets([]*gnmipb.Path{u.GetPath()}, opts.Handle)
		if err != nil {
			return res, nil, err
		}
		v, err := wire.ValueFromUpdate(u)
		if err != nil {
			return res, nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "value of update")
		}
		if err := s.db.Set(ctx, hs[0], v, opts.Local, opts.Expect); err != nil {
			return res, nil, err
		}
		results = append(results, &gnmipb.UpdateResult{Path: u.GetPath(), Op: gnmipb.UpdateResult_UPDATE})
	}
	return res, results, nil
}
