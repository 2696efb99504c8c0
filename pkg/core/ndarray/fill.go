// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ndarray

import (
	"github.com/gomlx/exceptions"
	"github.com/x448/float16"

	"github.com/gomlx/ndarray/pkg/core/dtypes"
	"github.com/gomlx/ndarray/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/ndarray/pkg/core/fpstatus"
	"github.com/gomlx/ndarray/pkg/support/xslices"
)

// fillFn writes count copies of value (already of the dtype's Go type) into the
// flat storage, starting at off and advancing stride elements per step.
type fillFn func(flat any, off, stride, count int, value any)

var fillTable [dtypes.MaxDTypes]fillFn

func fillRun[T dtypes.SupportedTypesConstraints](flat any, off, stride, count int, value any) {
	typedFlat := flat.([]T)
	typedValue := value.(T)
	if stride == 1 {
		xslices.FillSlice(typedFlat[off:off+count], typedValue)
		return
	}
	for i := range count {
		typedFlat[off+i*stride] = typedValue
	}
}

func init() {
	fillTable[dtypes.Bool] = fillRun[bool]
	fillTable[dtypes.Int8] = fillRun[int8]
	fillTable[dtypes.Int16] = fillRun[int16]
	fillTable[dtypes.Int32] = fillRun[int32]
	fillTable[dtypes.Int64] = fillRun[int64]
	fillTable[dtypes.Uint8] = fillRun[uint8]
	fillTable[dtypes.Uint16] = fillRun[uint16]
	fillTable[dtypes.Uint32] = fillRun[uint32]
	fillTable[dtypes.Uint64] = fillRun[uint64]
	fillTable[dtypes.Float16] = fillRun[float16.Float16]
	fillTable[dtypes.BFloat16] = fillRun[bfloat16.BFloat16]
	fillTable[dtypes.Float32] = fillRun[float32]
	fillTable[dtypes.Float64] = fillRun[float64]
	fillTable[dtypes.Complex64] = fillRun[complex64]
	fillTable[dtypes.Complex128] = fillRun[complex128]
}

// Fill sets every element of a to the given value, converted to a's dtype.
// Lossy value conversions report into status (when not nil).
func Fill(a *Array, value any, status *fpstatus.Status) error {
	converted, err := ConvertScalar(value, a.DType(), status)
	if err != nil {
		return err
	}
	fn := fillTable[a.DType()]
	if fn == nil {
		exceptions.Panicf("Fill: no fill registered for dtype %s", a.DType())
	}
	count, stride, offsets := a.innerRuns()
	for off := range offsets {
		fn(a.flat, off, stride, count, converted)
	}
	return nil
}
