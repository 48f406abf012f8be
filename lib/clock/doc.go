// Copyright 2026 The Bureau Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock provides an injectable time source so that stage
// durations, run reports, and artifact timestamps can be asserted
// exactly in tests.
//
// Production code holds a Clock and calls Now instead of time.Now:
//
//	pipeline := packaging.New(options, packaging.WithClock(clock.Real()))
//
// Tests inject a FakeClock, which stands still until Advance is called
// or advances by a fixed step on every reading:
//
//	fake := clock.Fake(time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC))
//	fake.SetStep(time.Second) // each Now() is one second after the last
package clock
