// Copyright 2026 The Custodian Authors
// SPDX-License-Identifier: Apache-2.0

// Package clock abstracts time for the consensus core. Production code
// injects Real(); tests inject Fake() and drive round deadlines and
// rate-limit windows deterministically with Advance.
package clock
