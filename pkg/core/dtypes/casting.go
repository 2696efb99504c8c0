// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

// CastingRule controls which implicit dtype conversions the buffered iterator is
// willing to perform when an operand's dtype differs from the dtype requested by
// the inner loop.
type CastingRule int32

const (
	// CastNo forbids any conversion: the dtypes must match exactly.
	CastNo CastingRule = iota

	// CastEquiv allows only byte-identical conversions. For the dtypes supported
	// here it behaves like CastNo.
	CastEquiv

	// CastSafe allows only conversions that preserve values: promotions within the
	// same kind (Int32 to Int64, Float32 to Float64), and integer to a float wide
	// enough to hold it.
	CastSafe

	// CastSameKind allows safe conversions plus conversions within a kind, like
	// Float64 to Float32 or Int64 to Int32.
	CastSameKind

	// CastUnsafe allows any conversion between supported dtypes.
	CastUnsafe
)

// String implements fmt.Stringer.
func (rule CastingRule) String() string {
	switch rule {
	case CastNo:
		return "no"
	case CastEquiv:
		return "equiv"
	case CastSafe:
		return "safe"
	case CastSameKind:
		return "same_kind"
	case CastUnsafe:
		return "unsafe"
	}
	return "CastingRule(???)"
}

// sameKind returns whether from and to belong to the same dtype category
// (bool, integer, float or complex). Signedness is not part of the kind.
func sameKind(from, to DType) bool {
	return (from == Bool && to == Bool) ||
		(from.IsInt() && to.IsInt()) ||
		(from.IsFloat() && to.IsFloat()) ||
		(from.IsComplex() && to.IsComplex())
}

// CanCast returns whether a value of dtype from can be converted to dtype to
// under the given rule.
func CanCast(from, to DType, rule CastingRule) bool {
	if from == InvalidDType || to == InvalidDType {
		return false
	}
	if from == to {
		return true
	}
	switch rule {
	case CastNo, CastEquiv:
		return false
	case CastSafe:
		if from.IsPromotableTo(to) {
			return true
		}
		// Bool promotes safely to any numeric type.
		if from == Bool {
			return true
		}
		// Integers promote safely to a float with a mantissa wide enough to hold them.
		if from.IsInt() && to.IsFloat() {
			return mantissaBits(to) >= valueBits(from)
		}
		// Anything real promotes safely to a wide enough complex.
		if (from.IsInt() || from.IsFloat()) && to.IsComplex() {
			return CanCast(from, to.realPart(), CastSafe)
		}
		return false
	case CastSameKind:
		if CanCast(from, to, CastSafe) {
			return true
		}
		return sameKind(from, to)
	case CastUnsafe:
		return true
	}
	return false
}

// mantissaBits returns the number of bits of precision of a float dtype,
// including the implicit leading bit. Returns 0 for non-floats.
func mantissaBits(dtype DType) int {
	switch dtype {
	case Float16:
		return 11
	case BFloat16:
		return 8
	case Float32:
		return 24
	case Float64:
		return 53
	}
	return 0
}

// valueBits returns the number of bits needed to represent the magnitude of an
// integer dtype: its width, minus one for the sign bit of signed types.
func valueBits(dtype DType) int {
	bits := dtype.Bits()
	if !dtype.IsUnsigned() {
		bits--
	}
	return bits
}

// realPart maps a complex dtype to the dtype of its components. For any other
// dtype it returns InvalidDType.
func (dtype DType) realPart() DType {
	switch dtype {
	case Complex64:
		return Float32
	case Complex128:
		return Float64
	}
	return InvalidDType
}
