// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package fpstatus tracks floating-point exception conditions raised during a
// computation.
//
// Go does not expose the hardware floating-point status word, so this is a software
// rendition: kernels and dtype converters report the conditions they detect (a NaN
// produced from non-NaN inputs, a result that overflowed to infinity, a narrowing
// conversion that lost the value) into a Status owned by the caller.
//
// The Status is explicit state, scoped to one operation: the driver clears it before
// any computation, shares it with its collaborators for the duration of the call,
// and at the end tests the accumulated flags against the caller's fatal mask. There
// are no package-level globals.
package fpstatus

import (
	"strings"
)

// Flags is a bitmask of floating-point exception conditions.
type Flags uint32

const (
	// Invalid signals an invalid operation: a NaN produced from non-NaN inputs,
	// or a NaN converted to an integer type.
	Invalid Flags = 1 << iota

	// DivideByZero signals a finite value divided by zero.
	DivideByZero

	// Overflow signals a result too large in magnitude for its dtype.
	Overflow

	// Underflow signals a result too small in magnitude to be represented without
	// denormalization loss.
	Underflow
)

const (
	// NoFlags is the empty mask.
	NoFlags Flags = 0

	// AllFlags is the union of all conditions.
	AllFlags = Invalid | DivideByZero | Overflow | Underflow

	// DefaultFatal is the conventional default fatal mask: divide-by-zero, overflow
	// and invalid are fatal, underflow is ignored.
	DefaultFatal = Invalid | DivideByZero | Overflow

	// NoneFatal is a sentinel mask meaning "no condition is fatal", for
	// configuration surfaces where the zero value already means DefaultFatal.
	// It is not a condition and is never raised.
	NoneFatal Flags = 1 << 31
)

// String lists the conditions set in the mask, e.g. "overflow|invalid value".
func (f Flags) String() string {
	if f == 0 {
		return "none"
	}
	var parts []string
	if f&Invalid != 0 {
		parts = append(parts, "invalid value")
	}
	if f&DivideByZero != 0 {
		parts = append(parts, "divide by zero")
	}
	if f&Overflow != 0 {
		parts = append(parts, "overflow")
	}
	if f&Underflow != 0 {
		parts = append(parts, "underflow")
	}
	return strings.Join(parts, "|")
}

// Status accumulates floating-point exception flags raised during one operation.
//
// A Status is not safe for concurrent use: the reduction engine is single-threaded
// and synchronous, and each call owns its Status for the call's duration.
type Status struct {
	raised Flags
}

// New returns a cleared Status.
func New() *Status {
	return &Status{}
}

// Clear resets all accumulated flags. The driver calls it once, before seeding,
// so that exceptions raised while bootstrapping the result are also caught.
func (s *Status) Clear() {
	s.raised = 0
}

// Raise adds the given conditions to the accumulated flags.
func (s *Status) Raise(f Flags) {
	s.raised |= f
}

// Raised returns the conditions accumulated since the last Clear.
func (s *Status) Raised() Flags {
	return s.raised
}

// Test returns the subset of accumulated conditions that intersect the given mask.
func (s *Status) Test(mask Flags) Flags {
	return s.raised & mask
}
