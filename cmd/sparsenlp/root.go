// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"strings"

	"github.com/go-logr/logr"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"

	"github.com/curioloop/sparsenlp/internal/logging"
)

const (
	keyConfig      = "config"
	keyLogLevel    = "log-level"
	keyDevelopment = "development"
	envPrefix      = "SPARSENLP"
)

func newRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:          "sparsenlp",
		Short:        "Solve nonlinear programs with a sparse SQP solver",
		SilenceUsage: true,
	}
	flags := root.PersistentFlags()
	flags.String(keyConfig, "", "options file (yaml, json or toml)")
	flags.String(keyLogLevel, "info", "log level: error, warn, info, debug, trace or a verbosity")
	flags.Bool(keyDevelopment, false, "human readable logs")

	root.AddCommand(newSolveCommand())
	return root
}

// configure binds every flag of cmd into a fresh viper instance and reads
// the options file when one is given. Environment variables SPARSENLP_<KEY>
// override the file.
func configure(cmd *cobra.Command) (*viper.Viper, error) {
	v := viper.New()
	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	var err error
	cmd.Flags().VisitAll(func(f *pflag.Flag) {
		if err == nil {
			err = v.BindPFlag(f.Name, f)
		}
	})
	if err != nil {
		return nil, err
	}
	if path := v.GetString(keyConfig); path != "" {
		v.SetConfigFile(path)
		if err := v.ReadInConfig(); err != nil {
			return nil, err
		}
	}
	return v, nil
}

func newLogger(v *viper.Viper) (logr.Logger, error) {
	return logging.NewLogger(v.GetString(keyLogLevel), v.GetBool(keyDevelopment))
}
