// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

package confdb

import (
	"bytes"
	"context"
	_ "embed"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/pelletier/go-toml/v2"
	"gopkg.in/yaml.v3"

	"github.com/netascode/go-confapi/cfgerr"
	"github.com/netascode/go-confapi/cfgtype"
	"github.com/netascode/go-confapi/oid"
)

// Format is a configuration file syntax
type Format string

// Supported configuration file formats
const (
	FormatYAML Format = "yaml"
	FormatTOML Format = "toml"
)

// FormatOf picks the format from a file extension; anything but .toml
// is YAML
func FormatOf(path string) Format {
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		return FormatTOML
	}
	return FormatYAML
}

// Config is the content of a configuration file. Sections are applied
// in the order register, add, set.
type Config struct {
	Register []ObjectConfig   `yaml:"register,omitempty" toml:"register,omitempty"`
	Add      []InstanceConfig `yaml:"add,omitempty" toml:"add,omitempty"`
	Set      []InstanceConfig `yaml:"set,omitempty" toml:"set,omitempty"`
}

// ObjectConfig describes an object to register
type ObjectConfig struct {
	OID      string `yaml:"oid" toml:"oid"`
	Type     string `yaml:"type,omitempty" toml:"type,omitempty"`
	Access   string `yaml:"access,omitempty" toml:"access,omitempty"`
	Default  string `yaml:"default,omitempty" toml:"default,omitempty"`
	Volatile bool   `yaml:"volatile,omitempty" toml:"volatile,omitempty"`
}

// InstanceConfig describes an instance to add or set. An empty value
// on add means the object default.
type InstanceConfig struct {
	OID   string `yaml:"oid" toml:"oid"`
	Value string `yaml:"value,omitempty" toml:"value,omitempty"`
}

//go:embed schema.yaml
var defaultSchema []byte

// DefaultSchema returns the objects used by the test helpers
func DefaultSchema() (*Config, error) {
	return ParseConfig(bytes.NewReader(defaultSchema), FormatYAML)
}

// ParseConfig decodes a configuration file
func ParseConfig(r io.Reader, format Format) (*Config, error) {
	var cfg Config
	switch format {
	case FormatTOML:
		if err := toml.NewDecoder(r).Decode(&cfg); err != nil {
			return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "invalid TOML configuration")
		}
	case FormatYAML:
		if err := yaml.NewDecoder(r).Decode(&cfg); err != nil && err != io.EOF {
			return nil, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "invalid YAML configuration")
		}
	default:
		return nil, cfgerr.New(cfgerr.ModuleCS, cfgerr.InvalidArgument, "unknown configuration format %q", format)
	}
	return &cfg, nil
}

// LoadConfigFile parses and applies a configuration file
func (db *DB) LoadConfigFile(ctx context.Context, path string) error {
	f, err := os.Open(path)
	if err != nil {
		return cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.NotFound, err, "cannot open configuration file")
	}
	defer f.Close() //nolint:errcheck

	cfg, err := ParseConfig(f, FormatOf(path))
	if err != nil {
		return err
	}
	db.logger.Info(ctx, "loading configuration", "path", path,
		"objects", len(cfg.Register), "adds", len(cfg.Add), "sets", len(cfg.Set))
	return db.Apply(ctx, cfg)
}

// Apply registers, adds and sets everything cfg lists, stopping at the
// first failure
func (db *DB) Apply(ctx context.Context, cfg *Config) error {
	for _, oc := range cfg.Register {
		t, err := cfgtype.ParseType(oc.Type)
		if err != nil {
			return cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "object %s", oc.OID)
		}
		a, err := cfgtype.ParseAccess(oc.Access)
		if err != nil {
			return cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.InvalidArgument, err, "object %s", oc.OID)
		}
		_, err = db.Register(ctx, cfgtype.Object{OID: oc.OID, Type: t, Access: a, Default: oc.Default, Volatile: oc.Volatile})
		if err != nil {
			return err
		}
	}

	for _, ic := range cfg.Add {
		v, err := db.configValue(ic, true)
		if err != nil {
			return err
		}
		if _, err := db.Add(ctx, ic.OID, v, false); err != nil {
			return err
		}
	}

	for _, ic := range cfg.Set {
		v, err := db.configValue(ic, false)
		if err != nil {
			return err
		}
		h, err := db.Find(ic.OID)
		if err != nil {
			return err
		}
		if err := db.Set(ctx, h, v, false, nil); err != nil {
			return err
		}
	}
	return nil
}

func (db *DB) configValue(ic InstanceConfig, add bool) (cfgtype.Value, error) {
	if add && ic.Value == "" {
		return cfgtype.Unspecified(), nil
	}
	objOID, err := oid.ObjectOf(ic.OID)
	if err != nil {
		return cfgtype.Value{}, err
	}
	obj, err := db.ObjectByOID(objOID)
	if err != nil {
		return cfgtype.Value{}, err
	}
	v, err := cfgtype.ParseValue(obj.Type, ic.Value)
	if err != nil {
		return cfgtype.Value{}, cfgerr.Wrap(cfgerr.ModuleCS, cfgerr.WrongType, err, "value of %s", ic.OID)
	}
	return v, nil
}

// Export renders the current tree as a configuration: every object
// outside the reserved ones, every read-create instance and every
// read-write instance that differs from its default
func (db *DB) Export() *Config {
	db.mu.Lock()
	defer db.mu.Unlock()

	cfg := &Config{}
	walkObjects(db.objects[0], func(o *object) {
		if o.reserved {
			return
		}
		cfg.Register = append(cfg.Register, ObjectConfig{
			OID:      o.OID,
			Type:     o.Type.String(),
			Access:   o.Access.String(),
			Default:  o.Default,
			Volatile: o.Volatile,
		})
	})
	walk(db.insts[0], func(i *instance) bool {
		if i.removed {
			return false
		}
		switch i.obj.Access {
		case cfgtype.ReadCreate:
			cfg.Add = append(cfg.Add, InstanceConfig{OID: i.str, Value: i.value.String()})
		case cfgtype.ReadWrite:
			if d, err := i.obj.defaultValue(); err != nil || !i.value.Equal(d) {
				cfg.Set = append(cfg.Set, InstanceConfig{OID: i.str, Value: i.value.String()})
			}
		}
		return true
	})
	return cfg
}

// WriteConfig writes Export in the given format
func (db *DB) WriteConfig(w io.Writer, format Format) error {
	cfg := db.Export()
	switch format {
	case FormatTOML:
		return toml.NewEncoder(w).Encode(cfg)
	case FormatYAML:
		enc := yaml.NewEncoder(w)
		enc.SetIndent(2)
		if err := enc.Encode(cfg); err != nil {
			return err
		}
		return enc.Close()
	}
	return fmt.Errorf("unknown configuration format %q", format)
}
