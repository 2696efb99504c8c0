// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ndarray

import (
	"math"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/ndarray/pkg/core/dtypes"
	"github.com/gomlx/ndarray/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/ndarray/pkg/core/fpstatus"
)

// convertFn copies count elements from src to dst, converting dtypes.
//
// src and dst are the flat storage slices; reading starts at srcOff and advances
// srcStride elements per step, writing starts at dstOff and advances dstStride.
// Conversions that can lose values report into status, when it is not nil.
type convertFn func(dst, src any, dstOff, dstStride, srcOff, srcStride, count int, status *fpstatus.Status)

// Registration priorities: a typed (checking) conversion overrides the generic one
// for the same dtype pair.
const (
	priorityNone = iota
	priorityGeneric
	priorityTyped
)

var (
	convertPairTable    [dtypes.MaxDTypes][dtypes.MaxDTypes]convertFn
	convertPairPriority [dtypes.MaxDTypes][dtypes.MaxDTypes]int8
)

// registerConvert a conversion function for the dtype pair, if the priority is
// higher than any previous registration.
func registerConvert(from, to dtypes.DType, priority int8, fn convertFn) {
	if priority <= convertPairPriority[from][to] {
		return
	}
	convertPairTable[from][to] = fn
	convertPairPriority[from][to] = priority
}

// convertFor returns the conversion function for the dtype pair.
// It panics for unsupported pairs -- callers are expected to have validated the
// dtypes with dtypes.CanCast beforehand.
func convertFor(from, to dtypes.DType) convertFn {
	if from < 0 || from >= dtypes.MaxDTypes || to < 0 || to >= dtypes.MaxDTypes {
		exceptions.Panicf("no conversion registered from %s to %s", from, to)
	}
	fn := convertPairTable[from][to]
	if fn == nil {
		exceptions.Panicf("no conversion registered from %s to %s", from, to)
	}
	return fn
}

// ConvertScalar converts a Go scalar value to the Go type corresponding to the
// given dtype. Go `int` values are accepted and treated as int64.
//
// The conversion is unsafe in the casting-rule sense: any supported value
// conversion is performed, with lossy cases reported into status (when not nil).
func ConvertScalar(value any, to dtypes.DType, status *fpstatus.Status) (any, error) {
	if v, ok := value.(int); ok {
		value = int64(v)
	}
	from := dtypes.FromAny(value)
	if from == dtypes.InvalidDType {
		return nil, errors.Errorf("ConvertScalar: unsupported scalar type %T", value)
	}
	if from == to {
		return value, nil
	}
	if convertPairTable[from][to] == nil {
		return nil, errors.Errorf("ConvertScalar: no conversion from %s to %s", from, to)
	}
	src := reflect.MakeSlice(reflect.SliceOf(reflect.TypeOf(value)), 1, 1)
	src.Index(0).Set(reflect.ValueOf(value))
	dst := reflect.MakeSlice(reflect.SliceOf(to.GoType()), 1, 1)
	convertFor(from, to)(dst.Interface(), src.Interface(), 0, 1, 0, 1, 1, status)
	return dst.Index(0).Interface(), nil
}

// ConvertFlat copies count elements between flat storage slices, converting from
// srcDType to dstDType. It panics for unsupported dtype pairs. Lossy value
// conversions report into status (when not nil).
//
// This is the strided building block the buffered iterator uses to fill and
// flush its cast buffers.
func ConvertFlat(dst any, dstDType dtypes.DType, dstOff, dstStride int, src any, srcDType dtypes.DType, srcOff, srcStride, count int, status *fpstatus.Status) {
	convertFor(srcDType, dstDType)(dst, src, dstOff, dstStride, srcOff, srcStride, count, status)
}

// CanConvert reports whether a conversion between the dtypes is registered at all,
// ignoring casting rules.
func CanConvert(from, to dtypes.DType) bool {
	if from < 0 || from >= dtypes.MaxDTypes || to < 0 || to >= dtypes.MaxDTypes {
		return false
	}
	return convertPairTable[from][to] != nil
}

// ConvertReportsStatus reports whether the conversion between the dtypes can
// raise floating-point status flags (NaN to integer, narrowing overflow). Callers
// running conversions inside a loop use it to decide whether flags must be
// inspected mid-loop.
func ConvertReportsStatus(from, to dtypes.DType) bool {
	if from < 0 || from >= dtypes.MaxDTypes || to < 0 || to >= dtypes.MaxDTypes {
		return false
	}
	return convertPairPriority[from][to] == priorityTyped
}

// Generic conversions ============================================================

func convertPODToPOD[FromT, ToT dtypes.PODNumericConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]FromT)
	dstFlat := dst.([]ToT)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = ToT(srcFlat[si])
		si += srcStride
		di += dstStride
	}
}

func convertPODToBool[FromT dtypes.PODNumericConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]FromT)
	dstFlat := dst.([]bool)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = srcFlat[si] != 0
		si += srcStride
		di += dstStride
	}
}

func convertBoolToPOD[ToT dtypes.PODNumericConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]bool)
	dstFlat := dst.([]ToT)
	si, di := srcOff, dstOff
	for range count {
		if srcFlat[si] {
			dstFlat[di] = 1
		} else {
			dstFlat[di] = 0
		}
		si += srcStride
		di += dstStride
	}
}

func convertPODToFloat16[FromT dtypes.PODNumericConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]FromT)
	dstFlat := dst.([]float16.Float16)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = float16.Fromfloat32(float32(srcFlat[si]))
		si += srcStride
		di += dstStride
	}
}

func convertFloat16ToPOD[ToT dtypes.PODNumericConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]float16.Float16)
	dstFlat := dst.([]ToT)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = ToT(srcFlat[si].Float32())
		si += srcStride
		di += dstStride
	}
}

func convertPODToBFloat16[FromT dtypes.PODNumericConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]FromT)
	dstFlat := dst.([]bfloat16.BFloat16)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = bfloat16.FromFloat32(float32(srcFlat[si]))
		si += srcStride
		di += dstStride
	}
}

func convertBFloat16ToPOD[ToT dtypes.PODNumericConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]bfloat16.BFloat16)
	dstFlat := dst.([]ToT)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = ToT(srcFlat[si].Float32())
		si += srcStride
		di += dstStride
	}
}

// copySame is the identity conversion for the specialized dtypes; POD identity is
// covered by convertPODToPOD[T, T].
func copySame[T dtypes.SupportedTypesConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]T)
	dstFlat := dst.([]T)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = srcFlat[si]
		si += srcStride
		di += dstStride
	}
}

func convertFloat16ToBFloat16(dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]float16.Float16)
	dstFlat := dst.([]bfloat16.BFloat16)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = bfloat16.FromFloat32(srcFlat[si].Float32())
		si += srcStride
		di += dstStride
	}
}

func convertBFloat16ToFloat16(dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]bfloat16.BFloat16)
	dstFlat := dst.([]float16.Float16)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = float16.Fromfloat32(srcFlat[si].Float32())
		si += srcStride
		di += dstStride
	}
}

func convertFloat16ToBool(dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]float16.Float16)
	dstFlat := dst.([]bool)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = srcFlat[si].Float32() != 0
		si += srcStride
		di += dstStride
	}
}

func convertBoolToFloat16(dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]bool)
	dstFlat := dst.([]float16.Float16)
	zero, one := float16.Fromfloat32(0), float16.Fromfloat32(1)
	si, di := srcOff, dstOff
	for range count {
		if srcFlat[si] {
			dstFlat[di] = one
		} else {
			dstFlat[di] = zero
		}
		si += srcStride
		di += dstStride
	}
}

func convertBFloat16ToBool(dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]bfloat16.BFloat16)
	dstFlat := dst.([]bool)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = srcFlat[si].Float32() != 0
		si += srcStride
		di += dstStride
	}
}

func convertBoolToBFloat16(dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]bool)
	dstFlat := dst.([]bfloat16.BFloat16)
	zero, one := bfloat16.FromFloat32(0), bfloat16.FromFloat32(1)
	si, di := srcOff, dstOff
	for range count {
		if srcFlat[si] {
			dstFlat[di] = one
		} else {
			dstFlat[di] = zero
		}
		si += srcStride
		di += dstStride
	}
}

func convertPODToComplex[FromT dtypes.PODNumericConstraints, ToT complex64 | complex128](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]FromT)
	dstFlat := dst.([]ToT)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = ToT(complex(float64(srcFlat[si]), 0))
		si += srcStride
		di += dstStride
	}
}

func convertComplexToComplex[FromT, ToT complex64 | complex128](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, _ *fpstatus.Status) {
	srcFlat := src.([]FromT)
	dstFlat := dst.([]ToT)
	si, di := srcOff, dstOff
	for range count {
		dstFlat[di] = ToT(complex128(srcFlat[si]))
		si += srcStride
		di += dstStride
	}
}

// Checked conversions ============================================================
//
// These override the generic registrations for pairs where the conversion can
// lose the value, and report into the fpstatus.Status.

// convertFloatToInt reports an invalid-value condition when converting NaN or
// infinities to an integer type; the result for those inputs is 0. Out-of-range
// finite values wrap per the Go conversion rules.
func convertFloatToInt[FromT dtypes.PODFloatConstraints, ToT dtypes.PODIntegerConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, status *fpstatus.Status) {
	srcFlat := src.([]FromT)
	dstFlat := dst.([]ToT)
	si, di := srcOff, dstOff
	for range count {
		v := float64(srcFlat[si])
		if math.IsNaN(v) || math.IsInf(v, 0) {
			if status != nil {
				status.Raise(fpstatus.Invalid)
			}
			dstFlat[di] = 0
		} else {
			dstFlat[di] = ToT(srcFlat[si])
		}
		si += srcStride
		di += dstStride
	}
}

// convertFloat64ToFloat32 reports overflow when a finite float64 narrows to an
// infinite float32.
func convertFloat64ToFloat32(dst, src any, dstOff, dstStride, srcOff, srcStride, count int, status *fpstatus.Status) {
	srcFlat := src.([]float64)
	dstFlat := dst.([]float32)
	si, di := srcOff, dstOff
	for range count {
		v := srcFlat[si]
		narrowed := float32(v)
		if status != nil && !math.IsInf(v, 0) && math.IsInf(float64(narrowed), 0) {
			status.Raise(fpstatus.Overflow)
		}
		dstFlat[di] = narrowed
		si += srcStride
		di += dstStride
	}
}

// convertFloatToFloat16 reports overflow when a finite float narrows to an
// infinite float16.
func convertFloatToFloat16[FromT dtypes.PODFloatConstraints](dst, src any, dstOff, dstStride, srcOff, srcStride, count int, status *fpstatus.Status) {
	srcFlat := src.([]FromT)
	dstFlat := dst.([]float16.Float16)
	si, di := srcOff, dstOff
	for range count {
		v := float32(srcFlat[si])
		narrowed := float16.Fromfloat32(v)
		if status != nil && !math.IsInf(float64(v), 0) && narrowed.IsInf(0) {
			status.Raise(fpstatus.Overflow)
		}
		dstFlat[di] = narrowed
		si += srcStride
		di += dstStride
	}
}

// Registrations ==================================================================

func registerConvertsFromPOD[FromT dtypes.PODNumericConstraints]() {
	from := dtypes.FromGenericsType[FromT]()
	registerConvert(from, dtypes.Int8, priorityGeneric, convertPODToPOD[FromT, int8])
	registerConvert(from, dtypes.Int16, priorityGeneric, convertPODToPOD[FromT, int16])
	registerConvert(from, dtypes.Int32, priorityGeneric, convertPODToPOD[FromT, int32])
	registerConvert(from, dtypes.Int64, priorityGeneric, convertPODToPOD[FromT, int64])
	registerConvert(from, dtypes.Uint8, priorityGeneric, convertPODToPOD[FromT, uint8])
	registerConvert(from, dtypes.Uint16, priorityGeneric, convertPODToPOD[FromT, uint16])
	registerConvert(from, dtypes.Uint32, priorityGeneric, convertPODToPOD[FromT, uint32])
	registerConvert(from, dtypes.Uint64, priorityGeneric, convertPODToPOD[FromT, uint64])
	registerConvert(from, dtypes.Float32, priorityGeneric, convertPODToPOD[FromT, float32])
	registerConvert(from, dtypes.Float64, priorityGeneric, convertPODToPOD[FromT, float64])
	registerConvert(from, dtypes.Bool, priorityGeneric, convertPODToBool[FromT])
	registerConvert(from, dtypes.Float16, priorityGeneric, convertPODToFloat16[FromT])
	registerConvert(from, dtypes.BFloat16, priorityGeneric, convertPODToBFloat16[FromT])
	registerConvert(from, dtypes.Complex64, priorityGeneric, convertPODToComplex[FromT, complex64])
	registerConvert(from, dtypes.Complex128, priorityGeneric, convertPODToComplex[FromT, complex128])
}

func registerCheckedConvertsFromFloat[FromT dtypes.PODFloatConstraints]() {
	from := dtypes.FromGenericsType[FromT]()
	registerConvert(from, dtypes.Int8, priorityTyped, convertFloatToInt[FromT, int8])
	registerConvert(from, dtypes.Int16, priorityTyped, convertFloatToInt[FromT, int16])
	registerConvert(from, dtypes.Int32, priorityTyped, convertFloatToInt[FromT, int32])
	registerConvert(from, dtypes.Int64, priorityTyped, convertFloatToInt[FromT, int64])
	registerConvert(from, dtypes.Uint8, priorityTyped, convertFloatToInt[FromT, uint8])
	registerConvert(from, dtypes.Uint16, priorityTyped, convertFloatToInt[FromT, uint16])
	registerConvert(from, dtypes.Uint32, priorityTyped, convertFloatToInt[FromT, uint32])
	registerConvert(from, dtypes.Uint64, priorityTyped, convertFloatToInt[FromT, uint64])
	registerConvert(from, dtypes.Float16, priorityTyped, convertFloatToFloat16[FromT])
}

func init() {
	registerConvertsFromPOD[int8]()
	registerConvertsFromPOD[int16]()
	registerConvertsFromPOD[int32]()
	registerConvertsFromPOD[int64]()
	registerConvertsFromPOD[uint8]()
	registerConvertsFromPOD[uint16]()
	registerConvertsFromPOD[uint32]()
	registerConvertsFromPOD[uint64]()
	registerConvertsFromPOD[float32]()
	registerConvertsFromPOD[float64]()

	registerConvert(dtypes.Bool, dtypes.Int8, priorityGeneric, convertBoolToPOD[int8])
	registerConvert(dtypes.Bool, dtypes.Int16, priorityGeneric, convertBoolToPOD[int16])
	registerConvert(dtypes.Bool, dtypes.Int32, priorityGeneric, convertBoolToPOD[int32])
	registerConvert(dtypes.Bool, dtypes.Int64, priorityGeneric, convertBoolToPOD[int64])
	registerConvert(dtypes.Bool, dtypes.Uint8, priorityGeneric, convertBoolToPOD[uint8])
	registerConvert(dtypes.Bool, dtypes.Uint16, priorityGeneric, convertBoolToPOD[uint16])
	registerConvert(dtypes.Bool, dtypes.Uint32, priorityGeneric, convertBoolToPOD[uint32])
	registerConvert(dtypes.Bool, dtypes.Uint64, priorityGeneric, convertBoolToPOD[uint64])
	registerConvert(dtypes.Bool, dtypes.Float32, priorityGeneric, convertBoolToPOD[float32])
	registerConvert(dtypes.Bool, dtypes.Float64, priorityGeneric, convertBoolToPOD[float64])
	registerConvert(dtypes.Bool, dtypes.Float16, priorityGeneric, convertBoolToFloat16)
	registerConvert(dtypes.Bool, dtypes.BFloat16, priorityGeneric, convertBoolToBFloat16)
	registerConvert(dtypes.Bool, dtypes.Bool, priorityGeneric, copySame[bool])

	registerConvert(dtypes.Float16, dtypes.Int8, priorityGeneric, convertFloat16ToPOD[int8])
	registerConvert(dtypes.Float16, dtypes.Int16, priorityGeneric, convertFloat16ToPOD[int16])
	registerConvert(dtypes.Float16, dtypes.Int32, priorityGeneric, convertFloat16ToPOD[int32])
	registerConvert(dtypes.Float16, dtypes.Int64, priorityGeneric, convertFloat16ToPOD[int64])
	registerConvert(dtypes.Float16, dtypes.Uint8, priorityGeneric, convertFloat16ToPOD[uint8])
	registerConvert(dtypes.Float16, dtypes.Uint16, priorityGeneric, convertFloat16ToPOD[uint16])
	registerConvert(dtypes.Float16, dtypes.Uint32, priorityGeneric, convertFloat16ToPOD[uint32])
	registerConvert(dtypes.Float16, dtypes.Uint64, priorityGeneric, convertFloat16ToPOD[uint64])
	registerConvert(dtypes.Float16, dtypes.Float32, priorityGeneric, convertFloat16ToPOD[float32])
	registerConvert(dtypes.Float16, dtypes.Float64, priorityGeneric, convertFloat16ToPOD[float64])
	registerConvert(dtypes.Float16, dtypes.Bool, priorityGeneric, convertFloat16ToBool)
	registerConvert(dtypes.Float16, dtypes.BFloat16, priorityGeneric, convertFloat16ToBFloat16)
	registerConvert(dtypes.Float16, dtypes.Float16, priorityGeneric, copySame[float16.Float16])

	registerConvert(dtypes.BFloat16, dtypes.Int8, priorityGeneric, convertBFloat16ToPOD[int8])
	registerConvert(dtypes.BFloat16, dtypes.Int16, priorityGeneric, convertBFloat16ToPOD[int16])
	registerConvert(dtypes.BFloat16, dtypes.Int32, priorityGeneric, convertBFloat16ToPOD[int32])
	registerConvert(dtypes.BFloat16, dtypes.Int64, priorityGeneric, convertBFloat16ToPOD[int64])
	registerConvert(dtypes.BFloat16, dtypes.Uint8, priorityGeneric, convertBFloat16ToPOD[uint8])
	registerConvert(dtypes.BFloat16, dtypes.Uint16, priorityGeneric, convertBFloat16ToPOD[uint16])
	registerConvert(dtypes.BFloat16, dtypes.Uint32, priorityGeneric, convertBFloat16ToPOD[uint32])
	registerConvert(dtypes.BFloat16, dtypes.Uint64, priorityGeneric, convertBFloat16ToPOD[uint64])
	registerConvert(dtypes.BFloat16, dtypes.Float32, priorityGeneric, convertBFloat16ToPOD[float32])
	registerConvert(dtypes.BFloat16, dtypes.Float64, priorityGeneric, convertBFloat16ToPOD[float64])
	registerConvert(dtypes.BFloat16, dtypes.Bool, priorityGeneric, convertBFloat16ToBool)
	registerConvert(dtypes.BFloat16, dtypes.Float16, priorityGeneric, convertBFloat16ToFloat16)
	registerConvert(dtypes.BFloat16, dtypes.BFloat16, priorityGeneric, copySame[bfloat16.BFloat16])

	registerConvert(dtypes.Complex64, dtypes.Complex64, priorityGeneric, copySame[complex64])
	registerConvert(dtypes.Complex64, dtypes.Complex128, priorityGeneric, convertComplexToComplex[complex64, complex128])
	registerConvert(dtypes.Complex128, dtypes.Complex64, priorityGeneric, convertComplexToComplex[complex128, complex64])
	registerConvert(dtypes.Complex128, dtypes.Complex128, priorityGeneric, copySame[complex128])

	// Checked (value-reporting) overrides.
	registerCheckedConvertsFromFloat[float32]()
	registerCheckedConvertsFromFloat[float64]()
	registerConvert(dtypes.Float64, dtypes.Float32, priorityTyped, convertFloat64ToFloat32)
}
