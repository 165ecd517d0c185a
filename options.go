// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import (
	"time"

	"github.com/netascode/go-confapi/cfgtype"
)

// Client configuration options using the functional options pattern

// Username sets the username for authentication
func Username(username string) func(*Client) {
	return func(c *Client) {
		c.username = username
	}
}

// Password sets the password for authentication
func Password(password string) func(*Client) {
	return func(c *Client) {
		c.password = password
	}
}

// TLSCert sets the TLS client certificate file path
func TLSCert(certPath string) func(*Client) {
	return func(c *Client) {
		c.tlsCert = certPath
	}
}

// TLSKey sets the TLS private key file path
func TLSKey(keyPath string) func(*Client) {
	return func(c *Client) {
		c.tlsKey = keyPath
	}
}

// TLSCA sets the CA certificate file path used to verify the server
func TLSCA(caPath string) func(*Client) {
	return func(c *Client) {
		c.tlsCA = caPath
	}
}

// Port sets the Configurator port (default: 57400). It is used when
// the target carries no port.
func Port(port int) func(*Client) {
	return func(c *Client) {
		c.Port = port
	}
}

// TLS enables or disables TLS (default: false)
func TLS(enabled bool) func(*Client) {
	return func(c *Client) {
		c.UseTLS = enabled
	}
}

// VerifyCertificate enables or disables TLS certificate verification (default: true)
//
// WARNING: Disabling certificate verification makes the connection vulnerable
// to Man-in-the-Middle attacks.
func VerifyCertificate(verify bool) func(*Client) {
	return func(c *Client) {
		c.VerifyCertificate = verify
	}
}

// ConnectTimeout sets the connection timeout (default: 30s)
func ConnectTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.ConnectTimeout = duration
	}
}

// OperationTimeout sets the timeout of one attempt (default: 15s)
func OperationTimeout(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.OperationTimeout = duration
	}
}

// MaxRetries sets the maximum number of retry attempts for transient errors (default: 3)
func MaxRetries(retries int) func(*Client) {
	return func(c *Client) {
		c.MaxRetries = retries
	}
}

// BackoffMinDelay sets the minimum backoff delay (default: 200ms)
func BackoffMinDelay(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.BackoffMinDelay = duration
	}
}

// BackoffMaxDelay sets the maximum backoff delay (default: 10s)
func BackoffMaxDelay(duration time.Duration) func(*Client) {
	return func(c *Client) {
		c.BackoffMaxDelay = duration
	}
}

// BackoffDelayFactor sets the backoff multiplication factor (default: 2.0)
func BackoffDelayFactor(factor float64) func(*Client) {
	return func(c *Client) {
		c.BackoffDelayFactor = factor
	}
}

// WithTransport makes the client use t instead of creating a gnmic
// target. Credential and TLS options are ignored.
//
// Example (in-process server):
//
//	srv := server.New(confdb.New())
//	client, _ := confapi.NewClient("local",
//	    confapi.WithTransport(server.Local(srv)))
func WithTransport(t Transport) func(*Client) {
	return func(c *Client) {
		if t != nil {
			c.transport = t
			c.external = true
		}
	}
}

// WithLogger configures a custom logger for the client
//
// By default, the client uses NoOpLogger which discards all log messages.
//
// Example:
//
//	client, _ := confapi.NewClient("localhost:57400",
//	    confapi.WithLogger(confapi.NewDefaultLogger(confapi.LogLevelInfo)))
func WithLogger(logger Logger) func(*Client) {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// WithPrettyPrintLogs enables/disables JSON pretty printing of the
// records written to debug logs (default: enabled)
func WithPrettyPrintLogs(enabled bool) func(*Client) {
	return func(c *Client) {
		c.prettyPrintLogs = enabled
	}
}

// Request modifiers for individual operations

// Timeout returns a request modifier that sets a custom timeout for the operation.
//
// The timeout priority model is:
//  1. Request-specific timeout (this modifier) - highest priority
//  2. Context deadline (if already set) - medium priority
//  3. Client.OperationTimeout - fallback default
func Timeout(duration time.Duration) func(*Req) {
	return func(req *Req) {
		req.Timeout = duration
	}
}

// ExpectValue returns a request modifier that turns Set into a
// compare-and-set: the set fails with busy unless the current value
// equals v
func ExpectValue(v cfgtype.Value) func(*Req) {
	return func(req *Req) {
		req.Expect = &v
	}
}
