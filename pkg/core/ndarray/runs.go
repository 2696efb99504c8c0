// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ndarray

import "iter"

// innerRuns decomposes the array into runs along its innermost axis, in
// row-major logical order. It returns the run length, the storage stride within
// a run, and a sequence of storage offsets, one per run.
//
// A scalar is a single run of length 1. A zero-size array yields no runs.
func (a *Array) innerRuns() (count, stride int, offsets iter.Seq[int]) {
	rank := a.Rank()
	if rank == 0 {
		return 1, 1, func(yield func(int) bool) {
			yield(a.offset)
		}
	}
	count = a.shape.Dimensions[rank-1]
	stride = a.strides[rank-1]
	outerDims := a.shape.Dimensions[:rank-1]
	outerStrides := a.strides[:rank-1]
	offsets = func(yield func(int) bool) {
		if a.shape.IsZeroSize() {
			return
		}
		indices := make([]int, len(outerDims))
		offset := a.offset
		for {
			if !yield(offset) {
				return
			}
			axis := len(outerDims) - 1
			for ; axis >= 0; axis-- {
				indices[axis]++
				offset += outerStrides[axis]
				if indices[axis] < outerDims[axis] {
					break
				}
				offset -= outerDims[axis] * outerStrides[axis]
				indices[axis] = 0
			}
			if axis < 0 {
				return
			}
		}
	}
	return
}
