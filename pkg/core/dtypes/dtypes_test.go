// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package dtypes

import (
	"math"
	"reflect"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/x448/float16"

	"github.com/gomlx/ndarray/pkg/core/dtypes/bfloat16"
)

func TestDType_HighestLowestValues(t *testing.T) {
	require.True(t, math.IsInf(Float64.HighestValue().(float64), 1))
	require.True(t, math.IsInf(float64(Float32.LowestValue().(float32)), -1))
	assert.Equal(t, int32(math.MinInt32), Int32.LowestValue())
	assert.Equal(t, uint8(0), Uint8.LowestValue())
	assert.Equal(t, uint64(math.MaxUint64), Uint64.HighestValue())
	assert.True(t, Float16.LowestValue().(float16.Float16).IsInf(-1))
	assert.True(t, BFloat16.HighestValue().(bfloat16.BFloat16).IsInf(1))
}

func TestMapOfNames(t *testing.T) {
	for _, name := range []string{"Float16", "float16", "f16"} {
		assert.Equal(t, Float16, FromName(name), "name=%q", name)
	}
	for _, name := range []string{"BFloat16", "bfloat16", "bf16"} {
		assert.Equal(t, BFloat16, FromName(name), "name=%q", name)
	}
	assert.Equal(t, InvalidDType, FromName("no-such-dtype"))
}

func TestFromAny(t *testing.T) {
	assert.Equal(t, Int64, FromAny(int64(7)))
	assert.Equal(t, Float32, FromAny(float32(13)))
	assert.Equal(t, BFloat16, FromAny(bfloat16.FromFloat32(1.0)))
	assert.Equal(t, Float16, FromAny(float16.Fromfloat32(3.0)))
	assert.Equal(t, Bool, FromAny(true))
	assert.Equal(t, InvalidDType, FromAny(nil))
}

func TestFromGoType(t *testing.T) {
	assert.Equal(t, Float32, FromGoType(reflect.TypeOf(float32(0))))
	assert.Equal(t, Float16, FromGoType(reflect.TypeOf(float16.Float16(0))))
	assert.Equal(t, Bool, FromGoType(reflect.TypeOf(false)))
	// Plain int maps to the platform word size.
	wordDType := Int64
	if strconv.IntSize == 32 {
		wordDType = Int32
	}
	assert.Equal(t, wordDType, FromGoType(reflect.TypeOf(int(0))))
	assert.Equal(t, InvalidDType, FromGoType(reflect.TypeOf("")))
	assert.Equal(t, InvalidDType, FromGoType(reflect.TypeOf(struct{}{})))
}

func TestIsPromotableTo(t *testing.T) {
	assert.True(t, Int32.IsPromotableTo(Int64))
	assert.False(t, Int64.IsPromotableTo(Int32))
	assert.False(t, Int32.IsPromotableTo(Uint64))
	assert.True(t, Float16.IsPromotableTo(Float32))
	assert.False(t, Float32.IsPromotableTo(Int64))
	assert.True(t, Uint8.IsPromotableTo(Uint16))
}

func TestCanCast(t *testing.T) {
	testCases := []struct {
		from, to DType
		rule     CastingRule
		want     bool
	}{
		{Float32, Float32, CastNo, true},
		{Float32, Float64, CastNo, false},
		{Int32, Int64, CastSafe, true},
		{Int64, Int32, CastSafe, false},
		{Int64, Int32, CastSameKind, true},
		{Int32, Float64, CastSafe, true},  // 53-bit mantissa holds any int32.
		{Int64, Float64, CastSafe, false}, // int64 does not fit a 53-bit mantissa.
		{Int64, Float64, CastSameKind, false},
		{Int64, Float64, CastUnsafe, true},
		{Uint8, Float16, CastSafe, true},
		{Uint16, Float16, CastSafe, false},
		{Bool, Float32, CastSafe, true},
		{Float64, Float32, CastSafe, false},
		{Float64, Float32, CastSameKind, true},
		{Float32, Complex64, CastSafe, true},
		{Float64, Complex64, CastSafe, false},
	}
	for _, tc := range testCases {
		got := CanCast(tc.from, tc.to, tc.rule)
		assert.Equal(t, tc.want, got, "CanCast(%s, %s, %s)", tc.from, tc.to, tc.rule)
	}
}
