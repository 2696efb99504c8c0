// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"github.com/x448/float16"

	"github.com/gomlx/ndarray/pkg/core/dtypes/bfloat16"
)

// SupportedTypesConstraints enumerates the Go types the array core can store.
type SupportedTypesConstraints interface {
	bool | int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 |
		float32 | float64 | float16.Float16 | bfloat16.BFloat16 |
		complex64 | complex128
}

// PODNumericConstraints are used for generics over the Go pod (plain-old-data)
// numeric types. Float16 and BFloat16 are not included because they are specialized
// types, not natively supported by Go.
type PODNumericConstraints interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64 | float32 | float64
}

// PODSignedNumericConstraints are the signed subset of PODNumericConstraints.
type PODSignedNumericConstraints interface {
	int8 | int16 | int32 | int64 | float32 | float64
}

// PODIntegerConstraints are used for generics over the Go pod integer types.
type PODIntegerConstraints interface {
	int8 | int16 | int32 | int64 | uint8 | uint16 | uint32 | uint64
}

// PODUnsignedConstraints are used for generics over the Go pod unsigned integer types.
type PODUnsignedConstraints interface {
	uint8 | uint16 | uint32 | uint64
}

// PODFloatConstraints are used for generics over the Go pod float types.
// Float16 and BFloat16 are not included because they are specialized types, not
// natively supported by Go.
type PODFloatConstraints interface {
	float32 | float64
}
