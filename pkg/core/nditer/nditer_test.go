// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package nditer

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gomlx/ndarray/pkg/core/dtypes"
	"github.com/gomlx/ndarray/pkg/core/fpstatus"
	"github.com/gomlx/ndarray/pkg/core/ndarray"
	"github.com/gomlx/ndarray/pkg/core/shapes"
)

// drain runs the iteration and returns, per block, the element values of the
// given read operand in run order.
func drain(t *testing.T, it *Iter, op int) [][]float32 {
	t.Helper()
	require.NoError(t, it.Reset())
	var blocks [][]float32
	for it.Next() {
		block := it.Block()
		flat := block.Data[op].([]float32)
		values := make([]float32, 0, block.Size)
		for k := range block.Size {
			values = append(values, flat[block.Off[op]+k*block.Strides[op]])
		}
		blocks = append(blocks, values)
	}
	return blocks
}

func TestSingleOperandCoalescing(t *testing.T) {
	// A contiguous (2, 3) array coalesces to a single run of 6.
	a := ndarray.FromFlat([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	it, err := New(Config{
		Ops:     []*ndarray.Array{a},
		OpFlags: []OpFlag{OpRead},
	})
	require.NoError(t, err)
	defer it.Release()
	require.Equal(t, 6, it.TotalSize())
	blocks := drain(t, it, 0)
	require.Len(t, blocks, 1)
	assert.Equal(t, []float32{0, 1, 2, 3, 4, 5}, blocks[0])
}

func TestStridedOperandBlocks(t *testing.T) {
	// A transposed view cannot coalesce: one run per logical row.
	base := ndarray.FromFlat([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	tr := base.ViewWithStrides(shapes.Make(dtypes.Float32, 3, 2), []int{1, 3}, 0)
	it, err := New(Config{
		Ops:     []*ndarray.Array{tr},
		OpFlags: []OpFlag{OpRead},
	})
	require.NoError(t, err)
	defer it.Release()
	blocks := drain(t, it, 0)
	assert.Equal(t, [][]float32{{0, 3}, {1, 4}, {2, 5}}, blocks)
}

func TestBufferSizeSplitsRuns(t *testing.T) {
	// int16 casts safely to float32 (15 value bits fit the 24-bit mantissa);
	// int32 would not.
	a := ndarray.FromFlat([]int16{0, 1, 2, 3, 4, 5, 6, 7}, 8)
	it, err := New(Config{
		Ops:      []*ndarray.Array{a},
		OpFlags:  []OpFlag{OpRead},
		OpDTypes: []dtypes.DType{dtypes.Float32}, // Engages a cast buffer.
		OpAxes:   [][]int{nil},
		Casting:  dtypes.CastSafe,
		BufSize:  3,
	})
	require.NoError(t, err)
	defer it.Release()
	blocks := drain(t, it, 0)
	assert.Equal(t, [][]float32{{0, 1, 2}, {3, 4, 5}, {6, 7}}, blocks)
}

func TestCastingRuleRejected(t *testing.T) {
	// int32 does not fit float32's mantissa, so the safe rule refuses the cast
	// at construction.
	a := ndarray.FromFlat([]int32{0, 1, 2}, 3)
	_, err := New(Config{
		Ops:      []*ndarray.Array{a},
		OpFlags:  []OpFlag{OpRead},
		OpDTypes: []dtypes.DType{dtypes.Float32},
		Casting:  dtypes.CastSafe,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot cast")
}

func TestBroadcastReadOperand(t *testing.T) {
	// A (3,) row broadcast against a (2, 3) operand.
	big := ndarray.FromFlat([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	row := ndarray.FromFlat([]float32{10, 20, 30}, 3)
	it, err := New(Config{
		Ops:     []*ndarray.Array{big, row},
		OpFlags: []OpFlag{OpRead, OpRead},
	})
	require.NoError(t, err)
	defer it.Release()
	require.NoError(t, it.Reset())
	require.Equal(t, 6, it.TotalSize())
	var got []float32
	for it.Next() {
		block := it.Block()
		flat := block.Data[1].([]float32)
		for k := range block.Size {
			got = append(got, flat[block.Off[1]+k*block.Strides[1]])
		}
	}
	assert.Equal(t, []float32{10, 20, 30, 10, 20, 30}, got)
}

func TestWriteThroughCastBuffer(t *testing.T) {
	// Writing float64 iteration values into a float32 array.
	out := ndarray.New(shapes.Make(dtypes.Float32, 5))
	it, err := New(Config{
		Ops:      []*ndarray.Array{out},
		OpFlags:  []OpFlag{OpRead | OpWrite},
		OpDTypes: []dtypes.DType{dtypes.Float64},
		Casting:  dtypes.CastSameKind,
		BufSize:  2,
	})
	require.NoError(t, err)
	defer it.Release()
	require.NoError(t, it.Reset())
	next := 0.0
	for it.Next() {
		block := it.Block()
		flat := block.Data[0].([]float64)
		for k := range block.Size {
			flat[block.Off[0]+k*block.Strides[0]] = next
			next += 1
		}
	}
	assert.Equal(t, []float32{0, 1, 2, 3, 4}, out.Flat().([]float32))
}

func TestReductionResultStrideZero(t *testing.T) {
	// Result (scalar) against a (6,) operand: the result's inner stride is 0 and
	// every block presents the same accumulator element.
	operand := ndarray.FromFlat([]int64{1, 2, 3, 4, 5, 6}, 6)
	result := ndarray.FromFlat([]int64{0})
	it, err := New(Config{
		Ops:     []*ndarray.Array{result, operand},
		OpFlags: []OpFlag{OpRead | OpWrite, OpRead},
		OpAxes:  [][]int{{AxisBroadcast}, {0}},
		BufSize: 4,
	})
	require.NoError(t, err)
	defer it.Release()
	require.NoError(t, it.Reset())
	for it.Next() {
		block := it.Block()
		res := block.Data[0].([]int64)
		src := block.Data[1].([]int64)
		require.Equal(t, 0, block.Strides[0])
		for k := range block.Size {
			res[block.Off[0]] += src[block.Off[1]+k*block.Strides[1]]
		}
	}
	assert.Equal(t, int64(21), result.At())
}

func TestReductionCastResultWritebackRoundTrip(t *testing.T) {
	// A float64-presented float32 accumulator, split across blocks: the partial
	// sum must survive the buffer writeback/refill between blocks.
	operand := ndarray.FromFlat([]float32{1, 1, 1, 1, 1, 1, 1}, 7)
	result := ndarray.FromFlat([]float32{0})
	it, err := New(Config{
		Ops:      []*ndarray.Array{result, operand},
		OpFlags:  []OpFlag{OpRead | OpWrite, OpRead},
		OpDTypes: []dtypes.DType{dtypes.Float64, dtypes.Float64},
		OpAxes:   [][]int{{AxisBroadcast}, {0}},
		Casting:  dtypes.CastSameKind,
		BufSize:  2,
	})
	require.NoError(t, err)
	defer it.Release()
	require.NoError(t, it.Reset())
	nBlocks := 0
	for it.Next() {
		nBlocks++
		block := it.Block()
		res := block.Data[0].([]float64)
		src := block.Data[1].([]float64)
		for k := range block.Size {
			res[block.Off[0]] += src[block.Off[1]+k*block.Strides[1]]
		}
	}
	assert.Equal(t, 4, nBlocks)
	assert.Equal(t, float32(7), result.At())
}

func TestFirstVisit(t *testing.T) {
	// Reduce (2, 3) over axis 1 into a (2,) result: the result holds still along
	// iteration axis 1, so FirstVisit(0) is true only at inner index 0.
	operand := ndarray.FromFlat([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	result := ndarray.New(shapes.Make(dtypes.Float32, 2))
	it, err := New(Config{
		Ops:     []*ndarray.Array{result, operand},
		OpFlags: []OpFlag{OpRead | OpWrite, OpRead},
		OpAxes:  [][]int{{0, AxisBroadcast}, {0, 1}},
		BufSize: 2,
	})
	require.NoError(t, err)
	defer it.Release()
	require.NoError(t, it.Reset())
	var visits []bool
	for it.Next() {
		visits = append(visits, it.FirstVisit(0))
	}
	// Per row: a block of 2 then a block of 1; only the first is a first visit.
	assert.Equal(t, []bool{true, false, true, false}, visits)
}

func TestZeroSizeIteration(t *testing.T) {
	a := ndarray.New(shapes.Make(dtypes.Float32, 0, 3))
	it, err := New(Config{
		Ops:     []*ndarray.Array{a},
		OpFlags: []OpFlag{OpRead},
	})
	require.NoError(t, err)
	defer it.Release()
	require.Equal(t, 0, it.TotalSize())
	require.NoError(t, it.Reset())
	assert.False(t, it.Next())
}

func TestAllocateOperand(t *testing.T) {
	operand := ndarray.FromFlat([]float32{0, 1, 2, 3, 4, 5}, 2, 3)
	it, err := New(Config{
		Ops:      []*ndarray.Array{nil, operand},
		OpFlags:  []OpFlag{OpRead | OpWrite | OpAllocate, OpRead},
		OpDTypes: []dtypes.DType{dtypes.Float32, dtypes.InvalidDType},
		OpAxes:   [][]int{{0, AxisBroadcast}, {0, 1}},
	})
	require.NoError(t, err)
	defer it.Release()
	allocated := it.Operand(0)
	require.NotNil(t, allocated)
	assert.True(t, allocated.Shape().Equal(shapes.Make(dtypes.Float32, 2)))
}

func TestOverlapCopiesToScratch(t *testing.T) {
	// In-place: result and operand share storage; the read operand must be
	// scratch-copied so partial writes don't corrupt pending reads.
	flat := []float32{1, 2, 3, 4}
	write := ndarray.FromFlat(flat, 4)
	read := ndarray.FromFlat(flat, 4)
	it, err := New(Config{
		Ops:     []*ndarray.Array{write, read},
		OpFlags: []OpFlag{OpRead | OpWrite, OpRead},
	})
	require.NoError(t, err)
	defer it.Release()
	scratch := it.Operand(1)
	assert.False(t, ndarray.SharesStorage(write, scratch))
	assert.True(t, scratch.Equal(read))
}

func TestCastingRuleEnforced(t *testing.T) {
	a := ndarray.FromFlat([]float64{1, 2}, 2)
	_, err := New(Config{
		Ops:      []*ndarray.Array{a},
		OpFlags:  []OpFlag{OpRead},
		OpDTypes: []dtypes.DType{dtypes.Int32},
		Casting:  dtypes.CastSafe,
	})
	require.Error(t, err) // float64 -> int32 is not a safe cast.

	it, err := New(Config{
		Ops:      []*ndarray.Array{a},
		OpFlags:  []OpFlag{OpRead},
		OpDTypes: []dtypes.DType{dtypes.Int32},
		Casting:  dtypes.CastUnsafe,
	})
	require.NoError(t, err)
	it.Release()
}

func TestNeedsErrorCheck(t *testing.T) {
	a := ndarray.FromFlat([]float64{1, 2}, 2)
	it, err := New(Config{
		Ops:      []*ndarray.Array{a},
		OpFlags:  []OpFlag{OpRead},
		OpDTypes: []dtypes.DType{dtypes.Int64},
		Casting:  dtypes.CastUnsafe,
	})
	require.NoError(t, err)
	assert.True(t, it.NeedsErrorCheck())
	it.Release()

	it, err = New(Config{
		Ops:     []*ndarray.Array{a},
		OpFlags: []OpFlag{OpRead},
	})
	require.NoError(t, err)
	assert.False(t, it.NeedsErrorCheck())
	it.Release()
}

func TestCastRaisesStatusFlags(t *testing.T) {
	status := fpstatus.New()
	a := ndarray.FromFlat([]float64{1, 1e300}, 2)
	it, err := New(Config{
		Ops:      []*ndarray.Array{a},
		OpFlags:  []OpFlag{OpRead},
		OpDTypes: []dtypes.DType{dtypes.Float32},
		Casting:  dtypes.CastSameKind,
		Status:   status,
	})
	require.NoError(t, err)
	defer it.Release()
	require.NoError(t, it.Reset())
	for it.Next() {
	}
	assert.NotZero(t, status.Test(fpstatus.Overflow))
}

func TestShapeMismatchRejected(t *testing.T) {
	a := ndarray.FromFlat([]float32{1, 2, 3}, 3)
	b := ndarray.FromFlat([]float32{1, 2}, 2)
	_, err := New(Config{
		Ops:     []*ndarray.Array{a, b},
		OpFlags: []OpFlag{OpRead, OpRead},
	})
	require.Error(t, err)
}
