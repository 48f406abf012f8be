// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package config loads bundlepipe configuration.
//
// Configuration comes from at most one file, named by the --config flag
// or the BUNDLEPIPE_CONFIG environment variable (via [Resolve]). The
// file is YAML unless its name ends in .json or .jsonc, in which case
// it is JSON with comments and trailing commas allowed. Without a file,
// [Default] applies; command-line flags override whatever was loaded.
//
// The file may contain development, staging, and production sections
// that override base values when [Config].Environment matches.
// Production is stricter: slot overwrite is forced off unless the
// production section explicitly allows it, and [Config.Validate]
// rejects an archive timestamp policy that is not reproducible.
//
// Path fields expand ${HOME}, ${BUNDLEPIPE_ROOT}, and ${VAR:-default}
// after loading.
package config
