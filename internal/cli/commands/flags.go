// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package commands

import (
	"os"
	"strconv"

	"github.com/spf13/cobra"

	"odcspipeline/pkg/config"
)

// ResolvedFlags contains the resolved values for all global flags.
type ResolvedFlags struct {
	Database string
	Config   string
	Verbose  bool
}

// ResolveFlags resolves global flags with the following precedence:
// 1. Command-line flags (highest priority)
// 2. Environment variables
// 3. Config file defaults
// 4. Built-in defaults (lowest priority)
func ResolveFlags(cmd *cobra.Command, cfg *config.Config) (*ResolvedFlags, error) {
	flags := &ResolvedFlags{}

	dbFlag, _ := cmd.Flags().GetString("database")
	dbEnv := os.Getenv("ODCSPIPELINE_DATABASE")
	dbDefault := "odcspipeline.db"
	if cfg != nil && cfg.Pipeline != nil && cfg.Pipeline.Database != "" {
		dbDefault = cfg.Pipeline.Database
	}
	flags.Database = resolveString(dbFlag, dbEnv, dbDefault)

	configFlag, _ := cmd.Flags().GetString("config")
	configEnv := os.Getenv("ODCSPIPELINE_CONFIG")
	configDefault := config.DefaultConfigPath()
	flags.Config = resolveString(configFlag, configEnv, configDefault)

	verboseFlag, _ := cmd.Flags().GetBool("verbose")
	verboseEnv := parseBoolEnv(os.Getenv("ODCSPIPELINE_VERBOSE"))
	verboseDefault := false
	if cfg != nil && cfg.Pipeline != nil {
		verboseDefault = cfg.Pipeline.Verbose
	}
	flags.Verbose = resolveBool(verboseFlag, verboseEnv, verboseDefault)

	return flags, nil
}

// resolveString resolves a string value with precedence: flag > env > default.
func resolveString(flag, env, defaultValue string) string {
	if flag != "" {
		return flag
	}
	if env != "" {
		return env
	}
	return defaultValue
}

// resolveBool resolves a boolean value with precedence: flag > env > default.
func resolveBool(flag, env, defaultValue bool) bool {
	if flag {
		return true
	}
	if env {
		return true
	}
	return defaultValue
}

// parseBoolEnv parses a boolean from an environment variable. Returns false
// if the env var is not set or cannot be parsed.
func parseBoolEnv(value string) bool {
	if value == "" {
		return false
	}
	parsed, err := strconv.ParseBool(value)
	if err != nil {
		return false
	}
	return parsed
}

// loadOptionalConfig loads the config at path, treating "not found" as a nil
// config rather than an error: most subcommands work fine without one.
func loadOptionalConfig(path string) (*config.Config, error) {
	exists, err := config.Exists(path)
	if err != nil {
		return nil, err
	}
	if !exists {
		return nil, nil
	}
	return config.Load(path)
}
