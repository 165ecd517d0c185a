// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import "google.golang.org/grpc/codes"

// TransientError defines patterns for detecting transient errors that should be retried
type TransientError struct {
	// Code is the gRPC status code to match
	Code uint32
}

// TransientErrors lists the gRPC status codes that trigger an automatic
// retry when the status carries no operation error.
//
// codes.Internal is excluded: it is a catch-all for permanent failures.
var TransientErrors = []TransientError{
	// Service temporarily unavailable
	{Code: uint32(codes.Unavailable)},

	// Rate limiting or quota exceeded
	{Code: uint32(codes.ResourceExhausted)},

	// Timeout or deadline exceeded
	{Code: uint32(codes.DeadlineExceeded)},

	// Transaction aborted, may succeed on retry
	{Code: uint32(codes.Aborted)},
}
