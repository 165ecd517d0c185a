// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confapi

import (
	"bytes"
	"context"
	"crypto/rand"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"time"

	gnmipb "github.com/openconfig/gnmi/proto/gnmi"
	"github.com/openconfig/gnmi/proto/gnmi_ext"
	"github.com/openconfig/gnmic/pkg/api"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"

	"github.com/netascode/go-confapi/internal/wire"
)

// Default client configuration values
const (
	DefaultPort               = 57400
	DefaultMaxRetries         = 3
	DefaultBackoffMinDelay    = 200 * time.Millisecond
	DefaultBackoffMaxDelay    = 10 * time.Second
	DefaultBackoffDelayFactor = 2
	DefaultConnectTimeout     = 30 * time.Second
	DefaultOperationTimeout   = 15 * time.Second
	DefaultUseTLS             = false
	DefaultVerifyCertificate  = true
	DefaultPrettyPrintLogs    = true
)

// MaxJSONSizeForLogging bounds the records written to debug logs
const MaxJSONSizeForLogging = 1 * 1024 * 1024

// JSONTooLargeMessage replaces records above MaxJSONSizeForLogging
const JSONTooLargeMessage = "[JSON TOO LARGE FOR LOGGING]"

// Transport carries gNMI requests to a Configurator. *target.Target
// from gnmic satisfies it, as does server.LocalTransport.
type Transport interface {
	CreateGNMIClient(ctx context.Context, opts ...grpc.DialOption) error
	Capabilities(ctx context.Context, ext ...*gnmi_ext.Extension) (*gnmipb.CapabilityResponse, error)
	Get(ctx context.Context, req *gnmipb.GetRequest) (*gnmipb.GetResponse, error)
	Set(ctx context.Context, req *gnmipb.SetRequest) (*gnmipb.SetResponse, error)
	Close() error
}

// Client is a connection to a Configurator
type Client struct {
	// transport to the Configurator (lazy connection)
	transport Transport

	// external is set when the transport was supplied by WithTransport
	external bool

	// connected tracks if connection has been established (lazy)
	connected bool

	// mu guards the connection state
	mu sync.RWMutex

	// callMu serialises the operations of one client end-to-end
	callMu sync.Mutex

	// Connection parameters
	Target   string
	Port     int
	username string
	password string

	// TLS configuration
	tlsCert string
	tlsKey  string
	tlsCA   string

	// TLS options
	UseTLS             bool
	VerifyCertificate  bool
	InsecureSkipVerify bool

	// Timeout configuration
	ConnectTimeout   time.Duration
	OperationTimeout time.Duration

	// Retry configuration
	MaxRetries         int
	BackoffMinDelay    time.Duration
	BackoffMaxDelay    time.Duration
	BackoffDelayFactor float64

	// Encodings reported by the last Capabilities call
	capabilities []string

	// Logging configuration
	logger          Logger
	prettyPrintLogs bool
}

// CapabilitiesRes is the result of a Capabilities call
type CapabilitiesRes struct {
	// Version is the gNMI version of the server
	Version string

	// Capabilities lists the supported encodings
	Capabilities []string

	// Models lists the supported data models
	Models []*gnmipb.ModelData
}

// NewClient creates a client for the Configurator at target.
//
// No connection is made until the first operation. Use Ping to verify
// connectivity explicitly.
//
// Example:
//
//	client, err := confapi.NewClient("localhost:57400",
//	    confapi.MaxRetries(5),
//	    confapi.WithLogger(logger))
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer client.Close()
//
//	h, err := client.Find(ctx, "/agent:Agt_A/interface:eth0/mtu:")
func NewClient(target string, opts ...func(*Client)) (*Client, error) {
	client := &Client{
		Target:             target,
		Port:               DefaultPort,
		UseTLS:             DefaultUseTLS,
		VerifyCertificate:  DefaultVerifyCertificate,
		ConnectTimeout:     DefaultConnectTimeout,
		OperationTimeout:   DefaultOperationTimeout,
		MaxRetries:         DefaultMaxRetries,
		BackoffMinDelay:    DefaultBackoffMinDelay,
		BackoffMaxDelay:    DefaultBackoffMaxDelay,
		BackoffDelayFactor: DefaultBackoffDelayFactor,
		logger:             &NoOpLogger{},
		prettyPrintLogs:    DefaultPrettyPrintLogs,
	}

	for _, opt := range opts {
		opt(client)
	}

	client.InsecureSkipVerify = !client.VerifyCertificate

	if err := client.validateConfig(); err != nil {
		return nil, err
	}

	if !client.external {
		if err := client.createTarget(); err != nil {
			return nil, err
		}
	}

	client.logger.Info(context.Background(), "configurator client created",
		"target", client.Target,
		"port", client.Port,
		"connection", "lazy")

	return client, nil
}

// Disconnect closes the connection but keeps the configuration; the
// next operation reconnects.
func (c *Client) Disconnect() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return nil
	}

	if err := c.transport.Close(); err != nil {
		c.logger.Warn(context.Background(), "connection close returned error during disconnect",
			"target", c.Target,
			"error", err.Error())
	}
	c.connected = false

	c.logger.Info(context.Background(), "configurator connection disconnected",
		"target", c.Target,
		"reusable", true)

	return nil
}

// Close releases the connection. The client cannot be reused; further
// operations fail with a transport error. Calling Close twice is a
// no-op.
func (c *Client) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return nil
	}

	t := c.transport
	c.transport = nil
	c.connected = false

	if err := t.Close(); err != nil {
		return err
	}

	c.logger.Info(context.Background(), "configurator connection closed",
		"target", c.Target,
		"reusable", false)

	return nil
}

// HasCapability reports whether the last Capabilities call listed
// the encoding
func (c *Client) HasCapability(capability string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, cap := range c.capabilities {
		if cap == capability {
			return true
		}
	}
	return false
}

// ServerCapabilities returns a copy of the encodings reported by the
// last Capabilities call
func (c *Client) ServerCapabilities() []string {
	c.mu.RLock()
	defer c.mu.RUnlock()

	result := make([]string, len(c.capabilities))
	copy(result, c.capabilities)
	return result
}

// HasCredentials reports whether credentials are configured without
// exposing them
func (c *Client) HasCredentials() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.username != "" || c.password != "" || c.tlsCert != ""
}

// Backoff calculates the delay before retry attempt (0-indexed):
// min(minDelay * factor^attempt, maxDelay) plus up to 10% jitter drawn
// from crypto/rand. A timestamp is used for jitter if crypto/rand fails.
func (c *Client) Backoff(attempt int) time.Duration {
	delay := float64(c.BackoffMinDelay) * math.Pow(c.BackoffDelayFactor, float64(attempt))
	if math.IsInf(delay, 1) || delay > float64(c.BackoffMaxDelay) {
		delay = float64(c.BackoffMaxDelay)
	}
	baseDelay := delay

	jitterMax := int64(delay * 0.1)
	var jitterVal int64
	if jitterMax > 0 {
		var jitterBytes [8]byte
		if _, err := rand.Read(jitterBytes[:]); err == nil {
			//nolint:gosec // G115: masked to stay within int64
			jitterVal = int64(binary.BigEndian.Uint64(jitterBytes[:]) & 0x7FFFFFFFFFFFFFFF)
			jitterVal = jitterVal % jitterMax
			delay += float64(jitterVal)
		} else {
			timestamp := time.Now().UnixNano()
			jitterVal = (timestamp%jitterMax + jitterMax) % jitterMax
			delay += float64(jitterVal)

			c.logger.Warn(context.Background(), "crypto/rand failed, using timestamp-based jitter",
				"error", err.Error(),
				"attempt", attempt,
				"jitter_ms", time.Duration(jitterVal).Milliseconds())
		}
	}

	finalDelay := time.Duration(delay)
	c.logger.Debug(context.Background(), "Backoff calculated",
		"attempt", attempt,
		"base_delay_ms", time.Duration(baseDelay).Milliseconds(),
		"jitter_ms", time.Duration(jitterVal).Milliseconds(),
		"final_delay_ms", finalDelay.Milliseconds())

	return finalDelay
}

// prepareJSONForLogging bounds and optionally indents a record for
// debug logs
func (c *Client) prepareJSONForLogging(jsonStr string) string {
	if len(jsonStr) > MaxJSONSizeForLogging {
		return JSONTooLargeMessage
	}
	if c.prettyPrintLogs {
		var buf bytes.Buffer
		if err := json.Indent(&buf, []byte(jsonStr), "", "  "); err == nil {
			return buf.String()
		}
	}
	return jsonStr
}

// checkTransientError reports whether err is worth retrying. Errors
// that carry an operation status (ErrorInfo) are answers from the
// Configurator and never transient, whatever their code.
func (c *Client) checkTransientError(err error) bool {
	if err == nil {
		return false
	}

	st, ok := status.FromError(err)
	if !ok {
		c.logger.Debug(context.Background(), "Error is not a gRPC error",
			"error", err.Error())
		return false
	}
	if wire.ErrorInfo(err) != nil {
		return false
	}

	code := uint32(st.Code())
	c.logger.Debug(context.Background(), "Checking error for transient pattern",
		"code", code,
		"message", st.Message())

	for _, pattern := range TransientErrors {
		if pattern.Code == code {
			return true
		}
	}
	return false
}

// isTransportError reports whether err means the connection is broken
// and must be re-established before a retry
func (c *Client) isTransportError(err error) bool {
	st, ok := status.FromError(err)
	if !ok || err == nil {
		return false
	}
	code := st.Code()
	if code == codes.Unavailable || code == codes.DeadlineExceeded {
		c.logger.Debug(context.Background(), "Transport error detected",
			"code", code,
			"message", st.Message())
		return true
	}
	return false
}

// validateConfig checks the configuration before the target is created
func (c *Client) validateConfig() error {
	if strings.TrimSpace(c.Target) == "" {
		return fmt.Errorf("target address cannot be empty")
	}
	if c.Port < 1 || c.Port > 65535 {
		return fmt.Errorf("invalid port: %d (must be 1-65535)", c.Port)
	}
	if c.ConnectTimeout <= 0 {
		return fmt.Errorf("connect timeout must be positive, got: %v", c.ConnectTimeout)
	}
	if c.OperationTimeout <= 0 {
		return fmt.Errorf("operation timeout must be positive, got: %v", c.OperationTimeout)
	}
	if c.MaxRetries < 0 {
		return fmt.Errorf("max retries must be non-negative, got: %d", c.MaxRetries)
	}
	if c.BackoffMinDelay <= 0 {
		return fmt.Errorf("backoff min delay must be positive, got: %v", c.BackoffMinDelay)
	}
	if c.BackoffMaxDelay <= c.BackoffMinDelay {
		return fmt.Errorf("backoff max delay (%v) must be greater than min delay (%v)",
			c.BackoffMaxDelay, c.BackoffMinDelay)
	}
	if c.BackoffDelayFactor < 1.0 {
		return fmt.Errorf("backoff delay factor must be >= 1.0, got: %f", c.BackoffDelayFactor)
	}
	if c.external {
		return nil
	}

	if c.UseTLS && c.InsecureSkipVerify {
		c.logger.Warn(context.Background(), "InsecureSkipVerify enabled - TLS certificate verification disabled",
			"target", c.Target)
	}

	for _, f := range []struct{ what, path string }{
		{"certificate", c.tlsCert},
		{"key", c.tlsKey},
		{"CA", c.tlsCA},
	} {
		if f.path == "" {
			continue
		}
		if _, err := os.Stat(f.path); err != nil {
			c.logger.Debug(context.Background(), "TLS file validation failed",
				"path", f.path,
				"error", err.Error())
			return fmt.Errorf("TLS %s file not found: %s", f.what, filepath.Base(f.path))
		}
	}
	return nil
}

// createTarget creates a gnmic target without connecting it
func (c *Client) createTarget() error {
	address := c.Target
	if !strings.Contains(address, ":") {
		address = fmt.Sprintf("%s:%d", address, c.Port)
	}

	targetOpts := []api.TargetOption{
		api.Name(c.Target),
		api.Address(address),
		api.Timeout(c.ConnectTimeout),
	}
	if c.username != "" {
		targetOpts = append(targetOpts, api.Username(c.username))
	}
	if c.password != "" {
		targetOpts = append(targetOpts, api.Password(c.password))
	}
	if c.tlsCert != "" {
		targetOpts = append(targetOpts, api.TLSCert(c.tlsCert))
	}
	if c.tlsKey != "" {
		targetOpts = append(targetOpts, api.TLSKey(c.tlsKey))
	}
	if c.tlsCA != "" {
		targetOpts = append(targetOpts, api.TLSCA(c.tlsCA))
	}
	targetOpts = append(targetOpts,
		api.Insecure(!c.UseTLS),
		api.SkipVerify(c.InsecureSkipVerify))

	t, err := api.NewTarget(targetOpts...)
	if err != nil {
		return fmt.Errorf("failed to create gnmic target: %w", err)
	}
	c.transport = t
	return nil
}

// ensureConnected connects the transport on first use
func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.transport == nil {
		return fmt.Errorf("client is closed")
	}
	if c.connected {
		return nil
	}

	c.logger.Debug(ctx, "Establishing configurator connection",
		"target", c.Target,
		"port", c.Port)

	if err := c.transport.CreateGNMIClient(ctx); err != nil {
		return fmt.Errorf("failed to establish connection: %w", err)
	}
	c.connected = true

	c.logger.Info(ctx, "configurator connection established",
		"target", c.Target)
	return nil
}

// currentTransport returns the transport, nil once the client is closed
func (c *Client) currentTransport() Transport {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.transport
}

// Capabilities retrieves and records the server capabilities
func (c *Client) Capabilities(ctx context.Context) (CapabilitiesRes, error) {
	var resp *gnmipb.CapabilityResponse
	err := c.invoke(ctx, "capabilities", &Req{}, func(ctx context.Context, t Transport) error {
		var err error
		resp, err = t.Capabilities(ctx)
		return err
	})
	if err != nil {
		return CapabilitiesRes{}, err
	}

	capList := make([]string, 0, len(resp.GetSupportedEncodings()))
	for _, enc := range resp.GetSupportedEncodings() {
		capList = append(capList, enc.String())
	}

	c.mu.Lock()
	c.capabilities = capList
	c.mu.Unlock()

	c.logger.Debug(ctx, "Capabilities response",
		"version", resp.GetGNMIVersion(),
		"encodings", len(capList),
		"models", len(resp.GetSupportedModels()))

	return CapabilitiesRes{
		Version:      resp.GetGNMIVersion(),
		Capabilities: capList,
		Models:       resp.GetSupportedModels(),
	}, nil
}

// Ping verifies connectivity with a Capabilities call
func (c *Client) Ping(ctx context.Context) error {
	_, err := c.Capabilities(ctx)
	return err
}

// reconnect replaces a broken connection. A gnmic target is recreated;
// a supplied transport is reconnected in place.
func (c *Client) reconnect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.logger.Warn(ctx, "configurator reconnecting",
		"target", c.Target,
		"reason", "transport error")

	if c.transport == nil {
		return fmt.Errorf("client is closed")
	}
	_ = c.transport.Close() //nolint:errcheck // connection is likely broken already
	c.connected = false

	if !c.external {
		if err := c.createTarget(); err != nil {
			c.logger.Error(ctx, "gnmic target recreation failed",
				"target", c.Target,
				"error", err.Error())
			return fmt.Errorf("failed to recreate target: %w", err)
		}
	}

	if err := c.transport.CreateGNMIClient(ctx); err != nil {
		c.logger.Error(ctx, "configurator reconnection failed",
			"target", c.Target,
			"error", err.Error())
		return fmt.Errorf("failed to reconnect: %w", err)
	}
	c.connected = true

	c.logger.Info(ctx, "configurator reconnected", "target", c.Target)
	return nil
}
