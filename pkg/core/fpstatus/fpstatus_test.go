// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package fpstatus

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestStatus(t *testing.T) {
	s := New()
	assert.Equal(t, NoFlags, s.Raised())

	s.Raise(Overflow)
	s.Raise(Invalid)
	assert.Equal(t, Overflow|Invalid, s.Raised())
	assert.Equal(t, Overflow, s.Test(Overflow|Underflow))
	assert.Equal(t, NoFlags, s.Test(DivideByZero))

	s.Clear()
	assert.Equal(t, NoFlags, s.Raised())
}

func TestFlagsString(t *testing.T) {
	assert.Equal(t, "none", NoFlags.String())
	assert.Equal(t, "overflow", Overflow.String())
	assert.Equal(t, "invalid value|overflow", (Invalid | Overflow).String())
	assert.Equal(t, "invalid value|divide by zero|overflow|underflow", AllFlags.String())
}
