// SPDX-License-Identifier: MPL-2.0
// Copyright (c) 2025 Daniel Schmidt

// Command cs inspects and edits the tree of a running configurator.
//
//	cs --target localhost get '/agent:*/interface:*/mtu:'
//	cs --target localhost set /agent:Agt_A/interface:eth0/mtu: 9000
//	cs --target localhost backup create
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	confapi "github.com/netascode/go-confapi"
	"github.com/netascode/go-confapi/logging"
)

const (
	keyTarget   = "target"
	keyPort     = "port"
	keyUsername = "username"
	keyPassword = "password"
	keyTLS      = "tls"
	keyInsecure = "insecure"
	keyCA       = "tls-ca"
	keyCert     = "tls-cert"
	keyKey      = "tls-key"
	keyTimeout  = "timeout"
	keyRetries  = "retries"
	keyNoColor  = "no-color"
	keyLogLevel = "log-level"
)

// dial creates the client used by every command
var dial = func(v *viper.Viper) (*confapi.Client, error) {
	opts := []func(*confapi.Client){
		confapi.Port(v.GetInt(keyPort)),
		confapi.TLS(v.GetBool(keyTLS)),
		confapi.VerifyCertificate(!v.GetBool(keyInsecure)),
		confapi.OperationTimeout(v.GetDuration(keyTimeout)),
		confapi.MaxRetries(v.GetInt(keyRetries)),
	}
	if u := v.GetString(keyUsername); u != "" {
		opts = append(opts, confapi.Username(u), confapi.Password(v.GetString(keyPassword)))
	}
	for key, opt := range map[string]func(string) func(*confapi.Client){
		keyCA:   confapi.TLSCA,
		keyCert: confapi.TLSCert,
		keyKey:  confapi.TLSKey,
	} {
		if p := v.GetString(key); p != "" {
			opts = append(opts, opt(p))
		}
	}
	if lvl := v.GetString(keyLogLevel); lvl != "" {
		level, err := logging.ParseLevel(lvl)
		if err != nil {
			return nil, err
		}
		logger, err := logging.NewProductionZap(level)
		if err != nil {
			return nil, err
		}
		opts = append(opts, confapi.WithLogger(logger))
	}
	return confapi.NewClient(v.GetString(keyTarget), opts...)
}

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", failure.Sprint("error:"), err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	v := viper.New()
	cmd := &cobra.Command{
		Use:           "cs",
		Short:         "Inspect and edit a configurator tree",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, _ []string) error {
			if err := loadSettings(v, cmd.Flags()); err != nil {
				return err
			}
			setColor(!v.GetBool(keyNoColor))
			return nil
		},
	}
	fs := cmd.PersistentFlags()
	fs.StringP(keyTarget, "t", "localhost", "configurator address")
	fs.IntP(keyPort, "p", confapi.DefaultPort, "configurator port")
	fs.StringP(keyUsername, "u", "", "username")
	fs.String(keyPassword, "", "password")
	fs.Bool(keyTLS, false, "use TLS")
	fs.Bool(keyInsecure, false, "skip certificate verification")
	fs.String(keyCA, "", "CA certificate file")
	fs.String(keyCert, "", "client certificate file")
	fs.String(keyKey, "", "client key file")
	fs.Duration(keyTimeout, confapi.DefaultOperationTimeout, "operation timeout")
	fs.Int(keyRetries, confapi.DefaultMaxRetries, "retries of transient failures")
	fs.Bool(keyNoColor, false, "disable colored output")
	fs.String(keyLogLevel, "", "client log level (disabled when empty)")

	cmd.AddCommand(
		newGetCommand(v),
		newSetCommand(v),
		newAddCommand(v),
		newDeleteCommand(v),
		newFindCommand(v),
		newTreeCommand(v),
		newCommitCommand(v),
		newCopyCommand(v),
		newTouchCommand(v),
		newSyncCommand(v),
		newBackupCommand(v),
		newCapabilitiesCommand(v),
	)
	return cmd
}

// loadSettings binds fs to v and reads CS_* environment variables
func loadSettings(v *viper.Viper, fs *pflag.FlagSet) error {
	if err := v.BindPFlags(fs); err != nil {
		return err
	}
	v.SetEnvPrefix("CS")
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()
	if v.GetDuration(keyTimeout) <= 0 {
		v.Set(keyTimeout, confapi.DefaultOperationTimeout)
	}
	return nil
}

// withClient dials, runs fn and closes the client
func withClient(v *viper.Viper, fn func(c *confapi.Client) error) error {
	c, err := dial(v)
	if err != nil {
		return err
	}
	defer c.Close() //nolint:errcheck
	return fn(c)
}
