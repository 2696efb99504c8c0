// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package ndarray implements a strided n-dimensional array view over a flat slice
// of one of the supported dtypes.
//
// An Array is a cheap view: it holds a shape, per-axis strides (in elements, not
// bytes), an offset into the storage, and a reference to the flat storage slice.
// Several arrays may share the same storage -- see SharesStorage.
//
// The flat storage is always a slice of the Go type corresponding to the shape's
// DType (e.g. `[]float32` for dtypes.Float32), accessed through the Flat method
// and a type assertion, the same layout the GoMLX SimpleGo backend uses for its
// buffers.
package ndarray

import (
	"fmt"
	"reflect"

	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"

	"github.com/gomlx/ndarray/pkg/core/dtypes"
	"github.com/gomlx/ndarray/pkg/core/shapes"
	"github.com/gomlx/ndarray/pkg/support/xslices"
)

// Array is a strided view of an n-dimensional array.
//
// The zero value is not valid; use New, FromFlat or FromValue.
type Array struct {
	shape   shapes.Shape
	strides []int // Per-axis strides in elements; 0 is valid (broadcast axes).
	offset  int

	// flat is always a slice of the underlying data type (shape.DType).
	flat any
}

// New creates a contiguous, zero-initialized array of the given shape.
func New(shape shapes.Shape) *Array {
	if !shape.Ok() {
		exceptions.Panicf("ndarray.New: invalid shape %s", shape)
	}
	flat := reflect.MakeSlice(reflect.SliceOf(shape.DType.GoType()), shape.Size(), shape.Size()).Interface()
	return &Array{
		shape:   shape.Clone(),
		strides: shape.Strides(),
		flat:    flat,
	}
}

// FromFlat wraps the given flat slice as a contiguous array with the given
// dimensions. The data is not copied: the returned array is a view over flat, so
// writes through the array are visible in flat and vice versa.
//
// It panics if the number of elements implied by the dimensions doesn't match
// len(flat).
func FromFlat[T dtypes.SupportedTypesConstraints](flat []T, dimensions ...int) *Array {
	shape := shapes.Make(dtypes.FromGenericsType[T](), dimensions...)
	if shape.Size() != len(flat) {
		exceptions.Panicf("ndarray.FromFlat: shape %s requires %d elements, got %d", shape, shape.Size(), len(flat))
	}
	return &Array{
		shape:   shape,
		strides: shape.Strides(),
		flat:    flat,
	}
}

// FromValue creates a scalar (rank-0) array holding the given value.
func FromValue[T dtypes.SupportedTypesConstraints](value T) *Array {
	return FromFlat([]T{value})
}

// Shape of the array. It implements the shapes.HasShape interface.
func (a *Array) Shape() shapes.Shape { return a.shape }

// DType of the array elements.
func (a *Array) DType() dtypes.DType { return a.shape.DType }

// Rank of the array: the number of axes.
func (a *Array) Rank() int { return a.shape.Rank() }

// Size is the number of elements addressed by the view.
func (a *Array) Size() int { return a.shape.Size() }

// Strides returns a copy of the per-axis strides, in elements.
func (a *Array) Strides() []int {
	return xslices.Copy(a.strides)
}

// Offset of the first element of the view into the flat storage.
func (a *Array) Offset() int { return a.offset }

// Flat returns the underlying storage slice: a slice of the Go type corresponding
// to the array's DType (e.g. `[]float32`). It covers the whole storage, not only
// the elements addressed by this view; use Offset and Strides to address elements.
func (a *Array) Flat() any { return a.flat }

// IsContiguous returns whether the view is laid out row-major and densely packed.
// Zero-size and scalar views count as contiguous.
func (a *Array) IsContiguous() bool {
	if a.shape.IsZeroSize() {
		return true
	}
	expected := 1
	for axis := a.Rank() - 1; axis >= 0; axis-- {
		if a.shape.Dimensions[axis] == 1 {
			continue // Stride of a size-1 axis is irrelevant.
		}
		if a.strides[axis] != expected {
			return false
		}
		expected *= a.shape.Dimensions[axis]
	}
	return true
}

// ViewWithStrides builds a new view over the same storage with the given shape,
// strides and offset. The shape's DType must match the array's.
//
// This is a low-level constructor used by the reduction machinery to build, e.g.,
// the view restricted to index 0 of each reduced axis. The caller is responsible
// for the strides/offset addressing only valid storage positions.
func (a *Array) ViewWithStrides(shape shapes.Shape, strides []int, offset int) *Array {
	if shape.DType != a.DType() {
		exceptions.Panicf("ViewWithStrides: dtype %s does not match array dtype %s", shape.DType, a.DType())
	}
	if len(strides) != shape.Rank() {
		exceptions.Panicf("ViewWithStrides: %d strides for shape %s of rank %d", len(strides), shape, shape.Rank())
	}
	return &Array{
		shape:   shape.Clone(),
		strides: xslices.Copy(strides),
		offset:  offset,
		flat:    a.flat,
	}
}

// FlatIndex converts per-axis indices to the position in the flat storage.
func (a *Array) FlatIndex(indices ...int) int {
	if len(indices) != a.Rank() {
		exceptions.Panicf("FlatIndex: %d indices for array of rank %d", len(indices), a.Rank())
	}
	idx := a.offset
	for axis, i := range indices {
		if i < 0 || i >= a.shape.Dimensions[axis] {
			exceptions.Panicf("FlatIndex: index %d out-of-bounds for axis %d of shape %s", i, axis, a.shape)
		}
		idx += i * a.strides[axis]
	}
	return idx
}

// At returns the element at the given indices, as the Go type corresponding to the
// array's DType. It is reflection based, meant for tests and debugging, not for
// inner loops.
func (a *Array) At(indices ...int) any {
	return reflect.ValueOf(a.flat).Index(a.FlatIndex(indices...)).Interface()
}

// Set writes the element at the given indices. The value is converted (unsafely)
// to the array's dtype. Reflection based, like At.
func (a *Array) Set(value any, indices ...int) {
	converted, err := ConvertScalar(value, a.DType(), nil)
	if err != nil {
		exceptions.Panicf("ndarray.Set: %v", err)
	}
	reflect.ValueOf(a.flat).Index(a.FlatIndex(indices...)).Set(reflect.ValueOf(converted))
}

// Clone returns a new contiguous array with a private copy of the elements
// addressed by the view.
func (a *Array) Clone() *Array {
	clone := New(a.shape)
	if err := CopyInto(clone, a, nil); err != nil {
		// Same shape and dtype: the copy cannot fail.
		panic(errors.WithMessage(err, "ndarray.Clone"))
	}
	return clone
}

// Equal reports whether the two arrays have the same shape and element-wise equal
// contents. Reflection based, meant for tests.
func (a *Array) Equal(b *Array) bool {
	if !a.shape.Equal(b.shape) {
		return false
	}
	flatA := reflect.ValueOf(a.flat)
	flatB := reflect.ValueOf(b.flat)
	for _, indices := range a.shape.Iter() {
		vA := flatA.Index(a.FlatIndex(indices...)).Interface()
		vB := flatB.Index(b.FlatIndex(indices...)).Interface()
		if vA != vB {
			return false
		}
	}
	return true
}

// String implements fmt.Stringer. It prints the shape and, for small arrays, the
// elements in row-major order.
func (a *Array) String() string {
	const maxElementsToPrint = 100
	if a.Size() > maxElementsToPrint {
		return fmt.Sprintf("Array{%s}", a.shape)
	}
	flat := reflect.ValueOf(a.flat)
	values := make([]any, 0, a.Size())
	for _, indices := range a.shape.Iter() {
		values = append(values, flat.Index(a.FlatIndex(indices...)).Interface())
	}
	return fmt.Sprintf("Array{%s: %v}", a.shape, values)
}

// SharesStorage reports whether the two arrays' storage slices overlap in memory.
// Views created with ViewWithStrides or FromFlat over the same slice share storage.
func SharesStorage(a, b *Array) bool {
	if a == nil || b == nil {
		return false
	}
	baseA, sizeA := storageRange(a.flat)
	baseB, sizeB := storageRange(b.flat)
	if sizeA == 0 || sizeB == 0 {
		return false
	}
	return baseA < baseB+sizeB && baseB < baseA+sizeA
}

func storageRange(flat any) (base, size uintptr) {
	v := reflect.ValueOf(flat)
	if v.Len() == 0 {
		return 0, 0
	}
	return v.Pointer(), uintptr(v.Len()) * v.Type().Elem().Size()
}
