// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package tapi

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netascode/go-confapi"
	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/confdb"
	"github.com/netascode/go-confapi/server"
)

const testAgent = "Agt_A"

const agentFixture = `
instances:
  - oid: /agent:Agt_A/interface:eth0
  - {oid: /agent:Agt_A/interface:eth0/status:, type: int, value: "1"}
  - {oid: /agent:Agt_A/interface:eth0/mtu:, type: int, value: "1500"}
  - {oid: /agent:Agt_A/interface:eth0/link_addr:, type: address, value: "00:11:22:33:44:55"}
  - {oid: /agent:Agt_A/interface:eth0/promisc:, type: int, value: "0"}
  - {oid: /agent:Agt_A/interface:eth0/neigh_dynamic:10.0.0.9, type: address, value: "02:00:00:00:00:09"}
  - {oid: /agent:Agt_A/interface:eth0/neigh_dynamic:10.0.0.9/state:, type: int, value: "4"}
  - oid: /agent:Agt_A/interface:eth0/phy:
  - {oid: /agent:Agt_A/interface:eth0/phy:/autoneg_admin:, type: int, value: "1"}
  - {oid: /agent:Agt_A/interface:eth0/phy:/autoneg_oper:, type: int, value: "1"}
  - {oid: /agent:Agt_A/interface:eth0/phy:/duplex_admin:, type: string, value: full}
  - {oid: /agent:Agt_A/interface:eth0/phy:/duplex_oper:, type: string, value: full}
  - {oid: /agent:Agt_A/interface:eth0/phy:/speed_admin:, type: int, value: "1000"}
  - {oid: /agent:Agt_A/interface:eth0/phy:/speed_oper:, type: int, value: "1000"}
  - {oid: /agent:Agt_A/interface:eth0/phy:/state:, type: int, value: "1"}
  - oid: /agent:Agt_A/interface:eth0/iptables:
  - oid: /agent:Agt_A/interface:eth0/iptables:/table:filter
  - oid: /agent:Agt_A/interface:eth0/tc:
  - oid: /agent:Agt_A/interface:eth0/tc:/qdisc:
  - {oid: /agent:Agt_A/interface:eth0/tc:/qdisc:/enabled:, type: int, value: "0"}
  - {oid: /agent:Agt_A/interface:eth0/tc:/qdisc:/kind:, type: string, value: ""}
  - oid: /agent:Agt_A/interface:eth1
  - {oid: /agent:Agt_A/interface:eth1/status:, type: int, value: "0"}
  - {oid: /agent:Agt_A/interface:eth1/mtu:, type: int, value: "1500"}
  - oid: /agent:Agt_A/hardware:
  - oid: /agent:Agt_A/hardware:/pci:
  - oid: /agent:Agt_A/hardware:/pci:/device:0000:01:00.0
  - {oid: /agent:Agt_A/hardware:/pci:/device:0000:01:00.0/vendor_id:, type: int, value: "0x8086"}
  - {oid: /agent:Agt_A/hardware:/pci:/device:0000:01:00.0/device_id:, type: int, value: "0x1572"}
  - {oid: /agent:Agt_A/hardware:/pci:/device:0000:01:00.0/driver:, type: string, value: i40e}
  - oid: /agent:Agt_A/hardware:/pci:/device:0000:01:00.0/net:eth0
  - oid: /agent:Agt_A/hardware:/pci:/device:0000:02:00.0
  - {oid: /agent:Agt_A/hardware:/pci:/device:0000:02:00.0/vendor_id:, type: int, value: "0x15b3"}
  - {oid: /agent:Agt_A/hardware:/pci:/device:0000:02:00.0/device_id:, type: int, value: "0x1017"}
  - {oid: /agent:Agt_A/hardware:/pci:/device:0000:02:00.0/driver:, type: string, value: mlx5_core}
  - oid: /agent:Agt_A/hardware:/node:0
  - oid: /agent:Agt_A/hardware:/node:0/cpu:0
  - oid: /agent:Agt_A/hardware:/node:0/cpu:0/core:0
  - oid: /agent:Agt_A/hardware:/node:0/cpu:0/core:0/thread:0
  - {oid: /agent:Agt_A/hardware:/node:0/cpu:0/core:0/thread:0/isolated:, type: int, value: "0"}
  - oid: /agent:Agt_A/hardware:/node:0/cpu:0/core:0/thread:1
  - {oid: /agent:Agt_A/hardware:/node:0/cpu:0/core:0/thread:1/isolated:, type: int, value: "1"}
  - oid: /agent:Agt_A/ovs:
  - {oid: /agent:Agt_A/ovs:/status:, type: int, value: "0"}
`

// newTestHelper returns helpers over an in-process configurator with
// the default schema and agent Agt_A attached
func newTestHelper(t *testing.T) (*Helper, *confapi.Client, *confdb.MemAgent) {
	t.Helper()
	ctx := context.Background()

	db := confdb.New(confdb.WithBackupStore(confdb.NewFileBackupStore(t.TempDir())))
	t.Cleanup(func() { db.Close() }) //nolint:errcheck

	cfg, err := confdb.DefaultSchema()
	require.NoError(t, err)
	require.NoError(t, db.Apply(ctx, cfg))

	a, err := confdb.LoadMemAgent(testAgent, strings.NewReader(agentFixture))
	require.NoError(t, err)
	require.NoError(t, db.AttachAgent(ctx, a))

	c, err := confapi.NewClient("local", confapi.WithTransport(server.Local(server.New(db))))
	require.NoError(t, err)
	t.Cleanup(func() { c.Close() }) //nolint:errcheck

	return New(c), c, a
}

// agentValue reads an OID straight from the agent
func agentValue(t *testing.T, a *confdb.MemAgent, s string) cfgtype.Value {
	t.Helper()
	v, err := a.Get(context.Background(), s)
	require.NoError(t, err, s)
	return v
}

func assertKind(t *testing.T, err error, kind cfgerr.Kind) {
	t.Helper()
	require.Error(t, err)
	assert.Equal(t, kind, cfgerr.KindOf(err), "error: %v", err)
}

// TestNewHelper tests helper construction and options
func TestNewHelper(t *testing.T) {
	h, c, _ := newTestHelper(t)
	assert.Same(t, c, h.Tree())

	log := &recordingLogger{}
	h = New(c, WithLogger(log), WithLogger(nil))
	assert.Same(t, log, h.logger)
}

// TestTypedGetters tests the type checks of the private getters
func TestTypedGetters(t *testing.T) {
	h, _, _ := newTestHelper(t)
	ctx := context.Background()

	mtu, err := h.getInt(ctx, "/agent:%s/interface:%s/mtu:", testAgent, "eth0")
	require.NoError(t, err)
	assert.Equal(t, 1500, mtu)

	_, err = h.getString(ctx, "/agent:%s/interface:%s/mtu:", testAgent, "eth0")
	assertKind(t, err, cfgerr.WrongType)
	assert.Equal(t, cfgerr.ModuleTAPI, cfgerr.ModuleOf(err))

	_, err = h.getInt(ctx, "/agent:%s/interface:%s", testAgent, strings.Repeat("x", 2000))
	assertKind(t, err, cfgerr.NameTooLong)
}

type recordingLogger struct {
	warnings []string
}

func (l *recordingLogger) Debug(context.Context, string, ...any) {}
func (l *recordingLogger) Info(context.Context, string, ...any)  {}
func (l *recordingLogger) Warn(_ context.Context, msg string, _ ...any) {
	l.warnings = append(l.warnings, msg)
}
func (l *recordingLogger) Error(context.Context, string, ...any) {}
