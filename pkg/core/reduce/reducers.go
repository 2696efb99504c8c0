// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package reduce

import (
	"reflect"

	"github.com/pkg/errors"
	"github.com/x448/float16"

	"github.com/gomlx/ndarray/pkg/core/dtypes"
	"github.com/gomlx/ndarray/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/ndarray/pkg/core/nditer"
)

// Ready-made reorderable reducers. Sum and Prod carry their identity, so they
// are defined on zero-size axes; Max and Min have none and bootstrap through
// the copy-first-element path.
//
// Callers should set Options.Reorderable when reducing more than one axis with
// these.
var (
	Sum  Reducer = &builtinReducer{name: "sum", table: &sumKernels, identity: 0}
	Prod Reducer = &builtinReducer{name: "prod", table: &prodKernels, identity: 1}
	Max  Reducer = &builtinReducer{name: "maximum", table: &maxKernels}
	Min  Reducer = &builtinReducer{name: "minimum", table: &minKernels}
)

// blockKernel combines one block for one dtype. The tables below are indexed by
// the presented dtype; a nil entry means the operation does not support it.
type blockKernel func(block *nditer.Block, skip int)

type kernelTable [dtypes.MaxDTypes]blockKernel

type builtinReducer struct {
	name     string
	table    *kernelTable
	identity any
}

func (r *builtinReducer) Name() string { return r.name }

func (r *builtinReducer) Identity() (any, bool) {
	return r.identity, r.identity != nil
}

func (r *builtinReducer) ReduceBlock(block *nditer.Block, skip int) error {
	dtype := dtypes.FromGoType(reflect.TypeOf(block.Data[0]).Elem())
	fn := r.table[dtype]
	if fn == nil {
		return errors.Errorf("reduction operation %s does not support dtype %s", r.name, dtype)
	}
	fn(block, skip)
	return nil
}

// addable are the Go types with a native + operator among the supported dtypes.
type addable interface {
	dtypes.PODNumericConstraints | complex64 | complex128
}

func addBlock[T addable](block *nditer.Block, skip int) {
	res := block.Data[0].([]T)
	src := block.Data[1].([]T)
	rOff, rStride := block.Off[0], block.Strides[0]
	sOff, sStride := block.Off[1], block.Strides[1]
	if len(block.Data) > 2 {
		mask := block.Data[2].([]bool)
		mOff, mStride := block.Off[2], block.Strides[2]
		for k := skip; k < block.Size; k++ {
			if mask[mOff+k*mStride] {
				res[rOff+k*rStride] += src[sOff+k*sStride]
			}
		}
		return
	}
	for k := skip; k < block.Size; k++ {
		res[rOff+k*rStride] += src[sOff+k*sStride]
	}
}

func mulBlock[T addable](block *nditer.Block, skip int) {
	res := block.Data[0].([]T)
	src := block.Data[1].([]T)
	rOff, rStride := block.Off[0], block.Strides[0]
	sOff, sStride := block.Off[1], block.Strides[1]
	if len(block.Data) > 2 {
		mask := block.Data[2].([]bool)
		mOff, mStride := block.Off[2], block.Strides[2]
		for k := skip; k < block.Size; k++ {
			if mask[mOff+k*mStride] {
				res[rOff+k*rStride] *= src[sOff+k*sStride]
			}
		}
		return
	}
	for k := skip; k < block.Size; k++ {
		res[rOff+k*rStride] *= src[sOff+k*sStride]
	}
}

// maxBlock propagates NaN: once a NaN enters the accumulator it stays, and a
// NaN element always replaces the accumulator (v != v is only true for NaN).
func maxBlock[T dtypes.PODNumericConstraints](block *nditer.Block, skip int) {
	res := block.Data[0].([]T)
	src := block.Data[1].([]T)
	rOff, rStride := block.Off[0], block.Strides[0]
	sOff, sStride := block.Off[1], block.Strides[1]
	var mask []bool
	var mOff, mStride int
	if len(block.Data) > 2 {
		mask = block.Data[2].([]bool)
		mOff, mStride = block.Off[2], block.Strides[2]
	}
	for k := skip; k < block.Size; k++ {
		if mask != nil && !mask[mOff+k*mStride] {
			continue
		}
		v := src[sOff+k*sStride]
		cur := res[rOff+k*rStride]
		if v > cur || v != v {
			res[rOff+k*rStride] = v
		}
	}
}

func minBlock[T dtypes.PODNumericConstraints](block *nditer.Block, skip int) {
	res := block.Data[0].([]T)
	src := block.Data[1].([]T)
	rOff, rStride := block.Off[0], block.Strides[0]
	sOff, sStride := block.Off[1], block.Strides[1]
	var mask []bool
	var mOff, mStride int
	if len(block.Data) > 2 {
		mask = block.Data[2].([]bool)
		mOff, mStride = block.Off[2], block.Strides[2]
	}
	for k := skip; k < block.Size; k++ {
		if mask != nil && !mask[mOff+k*mStride] {
			continue
		}
		v := src[sOff+k*sStride]
		cur := res[rOff+k*rStride]
		if v < cur || v != v {
			res[rOff+k*rStride] = v
		}
	}
}

// kernel16 adapts a float32 combining function to a 16-bit float dtype, going
// through float32 per element the way the SimpleGo backend executes these
// dtypes.
func kernel16[T any](to func(T) float32, from func(float32) T, combine func(acc, v float32) float32) blockKernel {
	return func(block *nditer.Block, skip int) {
		res := block.Data[0].([]T)
		src := block.Data[1].([]T)
		rOff, rStride := block.Off[0], block.Strides[0]
		sOff, sStride := block.Off[1], block.Strides[1]
		if len(block.Data) > 2 {
			mask := block.Data[2].([]bool)
			mOff, mStride := block.Off[2], block.Strides[2]
			for k := skip; k < block.Size; k++ {
				if mask[mOff+k*mStride] {
					ri := rOff + k*rStride
					res[ri] = from(combine(to(res[ri]), to(src[sOff+k*sStride])))
				}
			}
			return
		}
		for k := skip; k < block.Size; k++ {
			ri := rOff + k*rStride
			res[ri] = from(combine(to(res[ri]), to(src[sOff+k*sStride])))
		}
	}
}

var sumKernels, prodKernels, maxKernels, minKernels kernelTable

func registerOrderedKernels[T dtypes.PODNumericConstraints]() {
	dtype := dtypes.FromGenericsType[T]()
	sumKernels[dtype] = addBlock[T]
	prodKernels[dtype] = mulBlock[T]
	maxKernels[dtype] = maxBlock[T]
	minKernels[dtype] = minBlock[T]
}

func init() {
	registerOrderedKernels[int8]()
	registerOrderedKernels[int16]()
	registerOrderedKernels[int32]()
	registerOrderedKernels[int64]()
	registerOrderedKernels[uint8]()
	registerOrderedKernels[uint16]()
	registerOrderedKernels[uint32]()
	registerOrderedKernels[uint64]()
	registerOrderedKernels[float32]()
	registerOrderedKernels[float64]()

	// Complex numbers are not ordered: sum and prod only.
	sumKernels[dtypes.Complex64] = addBlock[complex64]
	sumKernels[dtypes.Complex128] = addBlock[complex128]
	prodKernels[dtypes.Complex64] = mulBlock[complex64]
	prodKernels[dtypes.Complex128] = mulBlock[complex128]

	add := func(acc, v float32) float32 { return acc + v }
	mul := func(acc, v float32) float32 { return acc * v }
	maxc := func(acc, v float32) float32 {
		if v > acc || v != v {
			return v
		}
		return acc
	}
	minc := func(acc, v float32) float32 {
		if v < acc || v != v {
			return v
		}
		return acc
	}
	sumKernels[dtypes.Float16] = kernel16(float16.Float16.Float32, float16.Fromfloat32, add)
	prodKernels[dtypes.Float16] = kernel16(float16.Float16.Float32, float16.Fromfloat32, mul)
	maxKernels[dtypes.Float16] = kernel16(float16.Float16.Float32, float16.Fromfloat32, maxc)
	minKernels[dtypes.Float16] = kernel16(float16.Float16.Float32, float16.Fromfloat32, minc)
	sumKernels[dtypes.BFloat16] = kernel16(bfloat16.BFloat16.Float32, bfloat16.FromFloat32, add)
	prodKernels[dtypes.BFloat16] = kernel16(bfloat16.BFloat16.Float32, bfloat16.FromFloat32, mul)
	maxKernels[dtypes.BFloat16] = kernel16(bfloat16.BFloat16.Float32, bfloat16.FromFloat32, maxc)
	minKernels[dtypes.BFloat16] = kernel16(bfloat16.BFloat16.Float32, bfloat16.FromFloat32, minc)
}
