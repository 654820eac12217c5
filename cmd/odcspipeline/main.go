// SPDX-License-Identifier: AGPL-3.0-or-later

/*

odcspipeline - a data-contract modelling pipeline that ingests semi-structured
records, infers and refines schemas, maps them onto target contracts, and
generates executable transformation scripts.

Copyright (C) 2025  Bartek Kus

This program is free software licensed under the terms of the GNU AGPL v3 or later.

See https://www.gnu.org/licenses/ for license details.

*/

package main

import (
	"errors"
	"fmt"
	"os"

	"odcspipeline/internal/cli"
	"odcspipeline/internal/cli/commands"
	"odcspipeline/internal/pipeline"

	// Blank-imported so each provider registers itself into the process-wide
	// registry (internal/staging, internal/llm) via its init().
	_ "odcspipeline/internal/llm/mockclient"
	_ "odcspipeline/internal/llm/offline"
	_ "odcspipeline/internal/llm/online"
	_ "odcspipeline/internal/staging/postgres"
	_ "odcspipeline/internal/staging/sqlite"
)

const (
	exitOK         = 0
	exitValidation = 2
	exitRuntime    = 3
	exitResume     = 4
	exitUnexpected = 1
)

func main() {
	os.Exit(run())
}

func run() int {
	rootCmd := cli.NewRootCommand()

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		return exitCodeFor(err)
	}

	return exitOK
}

func exitCodeFor(err error) int {
	var validationErr *commands.ValidationError
	var runtimeErr *commands.RuntimeError
	var resumeErr *pipeline.ResumeError

	switch {
	case errors.As(err, &resumeErr):
		return exitResume
	case errors.As(err, &validationErr):
		return exitValidation
	case errors.As(err, &runtimeErr):
		return exitRuntime
	default:
		return exitUnexpected
	}
}
