// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/netascode/go-confapi/confdb"
	"github.com/netascode/go-confapi/logging"
)

// TestLoadSettings tests the precedence of flags, environment and
// configuration file
func TestLoadSettings(t *testing.T) {
	dir := t.TempDir()
	cfgFile := filepath.Join(dir, "configurator.yaml")
	require.NoError(t, os.WriteFile(cfgFile, []byte("listen: \":6000\"\nlog-level: debug\nbackup-dir: /from/file\n"), 0o600))
	t.Setenv("CONFAPI_LOG_LEVEL", "warn")

	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addTreeFlags(fs)
	fs.String(keyListen, ":57400", "")
	fs.String(keyBackupDir, "", "")
	require.NoError(t, fs.Parse([]string{"--config", cfgFile, "--backup-dir", "/from/flag"}))

	v := viper.New()
	require.NoError(t, loadSettings(v, fs))

	assert.Equal(t, ":6000", v.GetString(keyListen))
	assert.Equal(t, "warn", v.GetString(keyLogLevel))
	assert.Equal(t, "/from/flag", v.GetString(keyBackupDir))
}

// TestLoadSettingsMissingFile tests that a missing configuration file
// is reported
func TestLoadSettingsMissingFile(t *testing.T) {
	fs := pflag.NewFlagSet("test", pflag.ContinueOnError)
	addTreeFlags(fs)
	require.NoError(t, fs.Parse([]string{"--config", filepath.Join(t.TempDir(), "missing.yaml")}))
	assert.Error(t, loadSettings(viper.New(), fs))
}

// TestBackupStore tests the selection of the backup store
func TestBackupStore(t *testing.T) {
	v := viper.New()
	v.Set(keyBackupDir, t.TempDir())
	s, err := backupStore(v)
	require.NoError(t, err)
	assert.IsType(t, &confdb.FileBackupStore{}, s)

	v.Set(keyBackupDB, filepath.Join(t.TempDir(), "backups.db"))
	s, err = backupStore(v)
	require.NoError(t, err)
	defer s.Close() //nolint:errcheck
	assert.IsType(t, &confdb.BoltBackupStore{}, s)
}

// TestAttachAgents tests loading agent fixtures
func TestAttachAgents(t *testing.T) {
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "agt_a.yaml")
	fixture := "instances:\n  - oid: /agent:Agt_A/interface:eth0\n  - {oid: /agent:Agt_A/interface:eth0/mtu:, type: int, value: \"1500\"}\n"
	require.NoError(t, os.WriteFile(path, []byte(fixture), 0o600))

	db, err := openTree(ctx, viper.New(), &logging.NoOpLogger{})
	require.NoError(t, err)
	require.NoError(t, attachAgents(ctx, db, map[string]string{"Agt_A": path}))
	assert.Equal(t, []string{"Agt_A"}, db.Agents())
	_, err = db.Find("/agent:Agt_A/interface:eth0/mtu:")
	assert.NoError(t, err)

	err = attachAgents(ctx, db, map[string]string{"Agt_B": filepath.Join(t.TempDir(), "none.yaml")})
	assert.Error(t, err, "missing fixture")
}

// TestExportCommand tests the export subcommand
func TestExportCommand(t *testing.T) {
	dir := t.TempDir()
	schema := filepath.Join(dir, "vlan.yaml")
	require.NoError(t, os.WriteFile(schema, []byte("register:\n  - {oid: /agent/vlan, type: int, access: read_create}\n"), 0o600))

	tests := []struct {
		name string
		args []string
		want []string
	}{
		{"yaml", []string{"export", "--schema", schema}, []string{"register:", "oid: /agent/vlan"}},
		{"toml", []string{"export", "--format", "toml", "--schema", schema}, []string{"[[register]]", "/agent/vlan"}},
		{"without defaults", []string{"export", "--no-default-schema", "--schema", schema}, []string{"oid: /agent/vlan"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var out bytes.Buffer
			cmd := newRootCommand()
			cmd.SetOut(&out)
			cmd.SetArgs(append(tt.args, "--log-level", "error"))
			require.NoError(t, cmd.Execute())
			for _, w := range tt.want {
				assert.Contains(t, out.String(), w)
			}
		})
	}

	cmd := newRootCommand()
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"export", "--format", "json"})
	assert.Error(t, cmd.Execute(), "unknown format")
}
