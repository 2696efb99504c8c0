// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

package ndarray

import (
	"github.com/pkg/errors"

	"github.com/gomlx/ndarray/pkg/core/fpstatus"
)

// broadcastStrides maps src's strides onto dst's axes with right-aligned
// broadcasting: axes where src has size 1 (or that src lacks) get stride 0.
// It returns an error when a non-size-1 src dimension does not match dst's.
func broadcastStrides(dst, src *Array) ([]int, error) {
	dstRank, srcRank := dst.Rank(), src.Rank()
	if srcRank > dstRank {
		return nil, errors.Errorf(
			"cannot broadcast shape %s into lower-rank shape %s", src.Shape(), dst.Shape())
	}
	strides := make([]int, dstRank)
	for axis := dstRank - 1; axis >= 0; axis-- {
		srcAxis := axis - (dstRank - srcRank)
		if srcAxis < 0 {
			continue
		}
		srcDim := src.shape.Dimensions[srcAxis]
		switch {
		case srcDim == dst.shape.Dimensions[axis]:
			strides[axis] = src.strides[srcAxis]
		case srcDim == 1:
			// Broadcast: stride stays 0.
		default:
			return nil, errors.Errorf(
				"cannot broadcast shape %s into shape %s: axis %d has size %d, want %d or 1",
				src.Shape(), dst.Shape(), srcAxis, srcDim, dst.shape.Dimensions[axis])
		}
	}
	return strides, nil
}

// CopyInto copies src into dst, broadcasting src's dimensions (right-aligned)
// and converting dtypes as needed. Any dtype pair the conversion table supports
// is accepted, regardless of casting rules; lossy value conversions report into
// status (when not nil).
//
// dst and src must not share overlapping storage unless they are the same view.
func CopyInto(dst, src *Array, status *fpstatus.Status) error {
	srcStrides, err := broadcastStrides(dst, src)
	if err != nil {
		return err
	}
	if dst.shape.IsZeroSize() {
		return nil
	}
	convert := convertFor(src.DType(), dst.DType())
	rank := dst.Rank()
	if rank == 0 {
		convert(dst.flat, src.flat, dst.offset, 1, src.offset, 1, 1, status)
		return nil
	}

	innerCount := dst.shape.Dimensions[rank-1]
	dstInner, srcInner := dst.strides[rank-1], srcStrides[rank-1]
	outerDims := dst.shape.Dimensions[:rank-1]
	indices := make([]int, rank-1)
	dstOff, srcOff := dst.offset, src.offset
	for {
		convert(dst.flat, src.flat, dstOff, dstInner, srcOff, srcInner, innerCount, status)
		axis := rank - 2
		for ; axis >= 0; axis-- {
			indices[axis]++
			dstOff += dst.strides[axis]
			srcOff += srcStrides[axis]
			if indices[axis] < outerDims[axis] {
				break
			}
			dstOff -= outerDims[axis] * dst.strides[axis]
			srcOff -= outerDims[axis] * srcStrides[axis]
			indices[axis] = 0
		}
		if axis < 0 {
			return nil
		}
	}
}
