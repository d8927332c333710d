// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads the termsync configuration file.
//
// Configuration comes from exactly one file named by the --config
// flag. There is no environment variable fallback, no ~/.config
// discovery and no automatic file search: a value that is not in the
// file takes its [Default]. The loaded [Config] is passed explicitly to
// every component that needs it; nothing reads settings ambiently
// while running.
//
// Files ending in .json or .jsonc may carry comments and trailing
// commas; they are stripped with tidwall/jsonc and decoded by the same
// YAML decoder as .yaml files, so durations are written the same way
// ("250ms", "5s") in every format.
//
// Key exports:
//
//   - [Config] -- sections for history, sync, replica, resync,
//     transport, host and viewer
//   - [Default] -- the built-in values
//   - [LoadFile] -- the only loading entry point
//   - [Config.Validate] -- rejects values the components cannot run with
package config
