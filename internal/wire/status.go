// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package wire

import (
	"context"
	"errors"

	"google.golang.org/genproto/googleapis/rpc/errdetails"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/netascode/go-confapi/cfgerr"
)

// codeOf maps an error kind to the gRPC code reported for it
var codeOf = map[cfgerr.Kind]codes.Code{
	cfgerr.InvalidArgument:  codes.InvalidArgument,
	cfgerr.NotFound:         codes.NotFound,
	cfgerr.AlreadyExists:    codes.AlreadyExists,
	cfgerr.NameTooLong:      codes.InvalidArgument,
	cfgerr.WrongType:        codes.InvalidArgument,
	cfgerr.PermissionDenied: codes.PermissionDenied,
	cfgerr.Busy:             codes.FailedPrecondition,
	cfgerr.BackupMismatch:   codes.FailedPrecondition,
	cfgerr.OutOfMemory:      codes.ResourceExhausted,
	cfgerr.Transport:        codes.Unavailable,
	cfgerr.NoEntry:          codes.NotFound,
	cfgerr.EnvMismatch:      codes.FailedPrecondition,
	cfgerr.Internal:         codes.Internal,
}

// Status converts an operation error to a gRPC status error carrying
// an ErrorInfo detail: reason is the kind, domain the module, and the
// metadata holds the operation and OID when known. Context errors map
// to Canceled and DeadlineExceeded.
func Status(err error) error {
	if err == nil {
		return nil
	}
	if _, ok := status.FromError(err); ok {
		return err
	}
	switch {
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}

	var e *cfgerr.Error
	if !errors.As(err, &e) {
		e = cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.Internal, err, "unexpected failure")
	}
	msg := e.Msg
	if e.Err != nil {
		if msg != "" {
			msg += ": "
		}
		msg += e.Err.Error()
	}

	code, ok := codeOf[e.Kind]
	if !ok {
		code = codes.Unknown
	}
	info := &errdetails.ErrorInfo{
		Reason:   e.Kind.String(),
		Domain:   string(e.Module),
		Metadata: map[string]string{},
	}
	if e.Op != "" {
		info.Metadata["op"] = e.Op
	}
	if e.OID != "" {
		info.Metadata["oid"] = e.OID
	}

	st, derr := status.New(code, msg).WithDetails(info)
	if derr != nil {
		return status.Error(code, msg)
	}
	return st.Err()
}

// FromStatus converts a gRPC error back to an operation error. A
// status without ErrorInfo is a transport failure of module api.
func FromStatus(err error) error {
	if err == nil {
		return nil
	}
	st, ok := status.FromError(err)
	if !ok {
		return cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Transport, err, "request failed")
	}
	if info := ErrorInfo(err); info != nil {
		return &cfgerr.Error{
			Module: cfgerr.Module(info.GetDomain()),
			Kind:   cfgerr.ParseKind(info.GetReason()),
			Op:     info.GetMetadata()["op"],
			OID:    info.GetMetadata()["oid"],
			Msg:    st.Message(),
		}
	}
	return cfgerr.Wrap(cfgerr.ModuleAPI, cfgerr.Transport, err, "%s", st.Code().String())
}

// ErrorInfo returns the ErrorInfo detail of a gRPC status error, if any
func ErrorInfo(err error) *errdetails.ErrorInfo {
	st, ok := status.FromError(err)
	if !ok {
		return nil
	}
	for _, d := range st.Details() {
		if info, ok := d.(*errdetails.ErrorInfo); ok {
			return info
		}
	}
	return nil
}
