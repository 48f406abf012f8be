// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package codec provides the CBOR encoding used for bundlepipe's
// on-disk records (artifact slot records in the artifact store).
//
// JSON is used for everything a human or an orchestrator reads: CLI
// --json output, the JSONL run result log, and configuration. CBOR is
// used for records the tool writes for itself. The encoder uses Core
// Deterministic Encoding (RFC 8949 §4.2), so the same record always
// produces the same bytes and two stores holding the same slot compare
// equal byte-for-byte.
//
// Types that are only ever stored as CBOR carry `cbor` struct tags.
package codec
