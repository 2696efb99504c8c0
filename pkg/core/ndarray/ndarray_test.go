// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ndarray

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/ndarray/pkg/core/dtypes"
	"github.com/gomlx/ndarray/pkg/core/dtypes/bfloat16"
	"github.com/gomlx/ndarray/pkg/core/fpstatus"
	"github.com/gomlx/ndarray/pkg/core/shapes"
)

func TestNewAndFromFlat(t *testing.T) {
	a := New(shapes.Make(dtypes.Float32, 2, 3))
	require.Equal(t, 6, a.Size())
	require.Equal(t, []int{3, 1}, a.Strides())
	require.True(t, a.IsContiguous())
	assert.Equal(t, float32(0), a.At(1, 2))

	b := FromFlat([]int64{0, 1, 2, 3, 4, 5}, 2, 3)
	assert.Equal(t, int64(5), b.At(1, 2))
	assert.Equal(t, int64(3), b.At(1, 0))

	// FromFlat is a view, not a copy.
	b.Set(int64(42), 0, 1)
	assert.Equal(t, int64(42), b.Flat().([]int64)[1])

	require.Panics(t, func() { FromFlat([]float32{1, 2, 3}, 2, 2) })
}

func TestFromValue(t *testing.T) {
	s := FromValue(3.5)
	require.Equal(t, 0, s.Rank())
	require.Equal(t, dtypes.Float64, s.DType())
	assert.Equal(t, 3.5, s.At())
}

func TestViewWithStrides(t *testing.T) {
	a := FromFlat([]float64{0, 1, 2, 3, 4, 5}, 2, 3)

	// Transposed view.
	tr := a.ViewWithStrides(shapes.Make(dtypes.Float64, 3, 2), []int{1, 3}, 0)
	assert.Equal(t, 4.0, tr.At(1, 1))
	assert.False(t, tr.IsContiguous())

	// Broadcast view: row 1 repeated twice.
	br := a.ViewWithStrides(shapes.Make(dtypes.Float64, 2, 3), []int{0, 1}, 3)
	assert.Equal(t, 5.0, br.At(0, 2))
	assert.Equal(t, 5.0, br.At(1, 2))

	// Writes through a view are visible in the base array.
	tr.Set(-1.0, 2, 0)
	assert.Equal(t, -1.0, a.At(0, 2))
}

func TestClone(t *testing.T) {
	base := FromFlat([]int32{0, 1, 2, 3, 4, 5}, 2, 3)
	column := base.ViewWithStrides(shapes.Make(dtypes.Int32, 2), []int{3}, 1)
	clone := column.Clone()
	require.True(t, clone.IsContiguous())
	assert.Equal(t, []int32{1, 4}, clone.Flat().([]int32))

	// The clone has private storage.
	base.Set(int32(99), 0, 1)
	assert.Equal(t, int32(1), clone.At(0))
}

func TestSharesStorage(t *testing.T) {
	flat := []float32{0, 1, 2, 3}
	a := FromFlat(flat, 4)
	b := FromFlat(flat[2:], 2)
	c := FromFlat([]float32{0, 1}, 2)
	assert.True(t, SharesStorage(a, b))
	assert.False(t, SharesStorage(a, c))
	assert.False(t, SharesStorage(b, c))
	assert.True(t, SharesStorage(a, a.ViewWithStrides(shapes.Make(dtypes.Float32, 2), []int{2}, 0)))
}

func TestConvertScalar(t *testing.T) {
	v, err := ConvertScalar(7, dtypes.Float32, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(7), v)

	v, err = ConvertScalar(2.5, dtypes.Int64, nil)
	require.NoError(t, err)
	assert.Equal(t, int64(2), v)

	v, err = ConvertScalar(true, dtypes.Uint8, nil)
	require.NoError(t, err)
	assert.Equal(t, uint8(1), v)

	v, err = ConvertScalar(float32(1.5), dtypes.BFloat16, nil)
	require.NoError(t, err)
	assert.Equal(t, float32(1.5), v.(bfloat16.BFloat16).Float32())

	_, err = ConvertScalar("nope", dtypes.Float32, nil)
	require.Error(t, err)
}

func TestConvertScalarReportsFlags(t *testing.T) {
	status := fpstatus.New()
	_, err := ConvertScalar(math.NaN(), dtypes.Int32, status)
	require.NoError(t, err)
	assert.NotZero(t, status.Test(fpstatus.Invalid))

	status.Clear()
	_, err = ConvertScalar(1e300, dtypes.Float32, status)
	require.NoError(t, err)
	assert.NotZero(t, status.Test(fpstatus.Overflow))

	status.Clear()
	_, err = ConvertScalar(1e5, dtypes.Float16, status)
	require.NoError(t, err)
	assert.NotZero(t, status.Test(fpstatus.Overflow))

	// In-range conversions raise nothing.
	status.Clear()
	_, err = ConvertScalar(1.0, dtypes.Float32, status)
	require.NoError(t, err)
	assert.Equal(t, fpstatus.NoFlags, status.Raised())
}

func TestCopyInto(t *testing.T) {
	t.Run("cast", func(t *testing.T) {
		src := FromFlat([]int32{1, 2, 3, 4, 5, 6}, 2, 3)
		dst := New(shapes.Make(dtypes.Float64, 2, 3))
		require.NoError(t, CopyInto(dst, src, nil))
		assert.Equal(t, []float64{1, 2, 3, 4, 5, 6}, dst.Flat().([]float64))
	})

	t.Run("broadcast-row", func(t *testing.T) {
		src := FromFlat([]float32{10, 20, 30}, 1, 3)
		dst := New(shapes.Make(dtypes.Float32, 2, 3))
		require.NoError(t, CopyInto(dst, src, nil))
		assert.Equal(t, []float32{10, 20, 30, 10, 20, 30}, dst.Flat().([]float32))
	})

	t.Run("broadcast-scalar", func(t *testing.T) {
		dst := New(shapes.Make(dtypes.Int8, 2, 2))
		require.NoError(t, CopyInto(dst, FromValue(int8(7)), nil))
		assert.Equal(t, []int8{7, 7, 7, 7}, dst.Flat().([]int8))
	})

	t.Run("shape-mismatch", func(t *testing.T) {
		src := FromFlat([]float32{1, 2}, 2)
		dst := New(shapes.Make(dtypes.Float32, 3))
		require.Error(t, CopyInto(dst, src, nil))
	})

	t.Run("strided-dst", func(t *testing.T) {
		base := FromFlat([]float64{0, 0, 0, 0, 0, 0}, 6)
		column := base.ViewWithStrides(shapes.Make(dtypes.Float64, 3), []int{2}, 1)
		require.NoError(t, CopyInto(column, FromFlat([]float64{1, 2, 3}, 3), nil))
		assert.Equal(t, []float64{0, 1, 0, 2, 0, 3}, base.Flat().([]float64))
	})
}

func TestFill(t *testing.T) {
	a := New(shapes.Make(dtypes.Float32, 2, 2))
	require.NoError(t, Fill(a, 1.5, nil))
	assert.Equal(t, []float32{1.5, 1.5, 1.5, 1.5}, a.Flat().([]float32))

	// Fill on a strided view only touches the view's elements.
	base := FromFlat([]int64{0, 0, 0, 0, 0, 0}, 6)
	column := base.ViewWithStrides(shapes.Make(dtypes.Int64, 3), []int{2}, 0)
	require.NoError(t, Fill(column, 9, nil))
	assert.Equal(t, []int64{9, 0, 9, 0, 9, 0}, base.Flat().([]int64))
}

func TestEqual(t *testing.T) {
	a := FromFlat([]float32{1, 2, 3, 4}, 2, 2)
	b := FromFlat([]float32{1, 2, 3, 4}, 2, 2)
	c := FromFlat([]float32{1, 2, 3, 5}, 2, 2)
	assert.True(t, a.Equal(b))
	assert.False(t, a.Equal(c))
	assert.False(t, a.Equal(FromFlat([]float32{1, 2, 3, 4}, 4)))

	// A transpose view compares by logical position, not storage order.
	tr := a.ViewWithStrides(shapes.Make(dtypes.Float32, 2, 2), []int{1, 2}, 0)
	assert.True(t, tr.Equal(FromFlat([]float32{1, 3, 2, 4}, 2, 2)))
}
