// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reduce

import "github.com/pkg/errors"

// Error taxonomy of the reduction engine. Every failure returned by Reduce or
// CopyInitialValues wraps exactly one of these sentinels (checkable with
// errors.Is), except reducer callback failures, which are propagated unchanged.
var (
	// ErrValidation: bad axis configuration, a mask without an identity, or a
	// caller-supplied output with the wrong rank or shape. Detected before any
	// buffer work.
	ErrValidation = errors.New("invalid reduction")

	// ErrEmptyReduction: a reduced axis has zero extent and no identity is
	// available to define the result.
	ErrEmptyReduction = errors.New("empty reduction without identity")

	// ErrAllocation: iterator or intermediate view construction failed.
	ErrAllocation = errors.New("reduction setup failed")

	// ErrArithmetic: floating-point status flags raised during the run
	// intersect the fatal mask.
	ErrArithmetic = errors.New("floating point error in reduction")
)
