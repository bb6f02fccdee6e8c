// SPDX-License-Identifier: Apache-2.0
// Copyright (c) 2026 The kocomstat Authors
//
// Kocomstat - Kocom Wallpad Energy Usage Client
//
// A CLI tool for polling monthly energy usage from a Kocom wallpad and
// serving it to other systems.

package main

import (
	"os"

	"github.com/kocomstat/kocomstat/cmd"
)

func main() {
	if err := cmd.Execute(); err != nil {
		os.Exit(cmd.ExitCode(err))
	}
}
