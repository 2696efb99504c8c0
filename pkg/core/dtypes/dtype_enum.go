// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// DType is an enum that represents the data type of an array element or a scalar.
//
// It is a fork of the dtypes used by the GoMLX backends, restricted to the
// dtypes the pure-Go array core actually stores.
type DType int32

const (
	// InvalidDType is the zero value of DType, and serves as a default for
	// uninitialized values.
	InvalidDType DType = iota

	// Bool are two-state booleans.
	Bool

	// Int8 to Int64 are signed integral values of fixed width.
	Int8
	Int16
	Int32
	Int64

	// Uint8 to Uint64 are unsigned integral values of fixed width.
	Uint8
	Uint16
	Uint32
	Uint64

	// Float16 is the IEEE 754 half-precision floating point format.
	Float16

	// BFloat16 is the truncated 16-bit "brain" floating-point format: 1 bit of
	// sign, 8 bits of exponent and 7 bits of mantissa.
	BFloat16

	// Float32 and Float64 are IEEE 754 single- and double-precision formats.
	Float32
	Float64

	// Complex64 is a pair of Float32 (real, imag), and Complex128 a pair of Float64.
	// They are included for completeness of the enum, but the array core does not
	// implement kernels for them.
	Complex64
	Complex128

	// MaxDTypes bounds the enum: used to size dispatch tables indexed by DType.
	MaxDTypes
)

// dtypeNames is indexed by DType.
var dtypeNames = [MaxDTypes]string{
	"InvalidDType",
	"Bool",
	"Int8", "Int16", "Int32", "Int64",
	"Uint8", "Uint16", "Uint32", "Uint64",
	"Float16", "BFloat16", "Float32", "Float64",
	"Complex64", "Complex128",
}

// String implements fmt.Stringer.
func (dtype DType) String() string {
	if dtype < 0 || dtype >= MaxDTypes {
		return "DType(???)"
	}
	return dtypeNames[dtype]
}

// MapOfNames to their dtypes. It is initialized to also include the lower-case
// version of the names, and the short aliases ("f32", "i64", ...).
var MapOfNames = map[string]DType{
	"InvalidDType": InvalidDType,
	"Bool":         Bool,
	"Int8":         Int8,
	"Int16":        Int16,
	"Int32":        Int32,
	"Int64":        Int64,
	"Uint8":        Uint8,
	"Uint16":       Uint16,
	"Uint32":       Uint32,
	"Uint64":       Uint64,
	"Float16":      Float16,
	"BFloat16":     BFloat16,
	"Float32":      Float32,
	"Float64":      Float64,
	"Complex64":    Complex64,
	"Complex128":   Complex128,

	// Short aliases.
	"bool": Bool,
	"i8":   Int8,
	"i16":  Int16,
	"i32":  Int32,
	"i64":  Int64,
	"u8":   Uint8,
	"u16":  Uint16,
	"u32":  Uint32,
	"u64":  Uint64,
	"f16":  Float16,
	"bf16": BFloat16,
	"f32":  Float32,
	"f64":  Float64,
	"c64":  Complex64,
	"c128": Complex128,
}

// FromName returns the DType for the given name, or InvalidDType if it is not known.
// Both the canonical names ("Float32") and the short aliases ("f32") are accepted,
// case-insensitively.
func FromName(name string) DType {
	if dtype, found := MapOfNames[name]; found {
		return dtype
	}
	return InvalidDType
}
