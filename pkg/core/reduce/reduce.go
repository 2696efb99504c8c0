// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package reduce executes reductions over n-dimensional strided arrays: given
// an operand, a boolean selection of axes to collapse and a Reducer that
// combines blocks of elements, it produces the reduced array, handling
// broadcasting, dtype casting, internal buffering, alias safety and the
// bootstrap of reductions without an identity element (max, min).
//
// The two entry points are Reduce (the full driver) and CopyInitialValues (the
// seed-from-first-element step, exposed for reducers implemented outside this
// package). Ready-made Sum, Prod, Max and Min reducers live alongside.
package reduce

import (
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/ndarray/pkg/core/dtypes"
	"github.com/gomlx/ndarray/pkg/core/fpstatus"
	"github.com/gomlx/ndarray/pkg/core/ndarray"
	"github.com/gomlx/ndarray/pkg/core/nditer"
	"github.com/gomlx/ndarray/pkg/core/shapes"
)

// CountAxes returns the number of axes flagged for reduction.
func CountAxes(axisFlags []bool) int {
	count := 0
	for _, reduced := range axisFlags {
		if reduced {
			count++
		}
	}
	return count
}

// Reducer combines one iterator block of operand elements into the co-indexed
// result elements.
type Reducer interface {
	// ReduceBlock combines block.Data[1] (operand values) into block.Data[0]
	// (result accumulators); block.Data[2], when present, is a boolean mask and
	// elements where it is false must be left out. Both result and operand are
	// presented with the same dtype.
	//
	// The first skip elements of the block were already incorporated by the
	// seeding step and must be passed over, not combined.
	//
	// A returned error aborts the reduction and is propagated to the Reduce
	// caller unchanged.
	ReduceBlock(block *nditer.Block, skip int) error
}

// IdentityReducer is a Reducer whose operation has an identity element, used to
// seed the result when the caller supplies no initial value.
type IdentityReducer interface {
	Reducer

	// Identity returns the identity element (as any Go scalar convertible to
	// the operand dtype) and whether one exists.
	Identity() (any, bool)
}

// namedReducer lets a Reducer contribute the diagnostic name used in error
// messages when Options.Name is empty.
type namedReducer interface {
	Name() string
}

// Options configures Reduce beyond the operand, axis flags and reducer.
// The zero value reduces over the operand's own dtype, allocates the result,
// keeps no reduced axes and treats invalid-value, divide-by-zero and overflow
// flags as fatal.
type Options struct {
	// Out optionally receives the result. Its rank must be the operand's rank
	// (KeepDims, with size 1 on reduced axes) or the number of non-reduced axes;
	// non-reduced dimensions must match the operand's.
	Out *ndarray.Array

	// Where optionally masks the reduction: elements where the mask is false do
	// not contribute. Boolean dtype, broadcast (right-aligned) against the
	// operand. Requires an identity (from Options.Identity or the reducer).
	Where *ndarray.Array

	// OperandDType is the dtype the reducer combines in; both result and
	// operand blocks are presented as it. InvalidDType means the operand's own.
	OperandDType dtypes.DType

	// ResultDType is the dtype of the allocated result array (ignored when Out
	// is given). InvalidDType means OperandDType.
	ResultDType dtypes.DType

	// Casting rule for the OperandDType/ResultDType conversions.
	// The zero value (CastNo) forbids any conversion.
	Casting dtypes.CastingRule

	// Reorderable declares the reducer's combining order-independent. Only
	// reorderable reductions may collapse more than one axis.
	Reorderable bool

	// KeepDims keeps reduced axes in the result with size 1 instead of
	// dropping them.
	KeepDims bool

	// Identity optionally seeds every result element; nil engages the
	// reducer's own identity, or, failing that, the copy-first-element path.
	Identity any

	// BufSize is the iterator block-size hint in elements; 0 = default.
	BufSize int

	// Name identifies the operation in diagnostics; defaults to the reducer's
	// name when it has one, else "reduce".
	Name string

	// ErrMask selects which floating-point flags raised during the run are
	// fatal. The zero value means fpstatus.DefaultFatal; NoneFatal disables
	// the check.
	ErrMask fpstatus.Flags

	// Status optionally receives the floating-point flags raised during the
	// run; nil makes the driver use a private one. It is cleared on entry.
	Status *fpstatus.Status
}

// name resolves the diagnostic name.
func (opts *Options) name(reducer Reducer) string {
	if opts.Name != "" {
		return opts.Name
	}
	if named, ok := reducer.(namedReducer); ok {
		return named.Name()
	}
	return "reduce"
}

// CopyInitialValues seeds result with the first slice of operand along every
// reduced axis: a view of operand restricted to index 0 of each reduced axis is
// copied element-wise into result. It returns the number of result elements
// populated, which the main sweep must skip instead of combining.
//
// axisFlags must have one entry per operand axis. A reduced axis of size 0
// fails with ErrEmptyReduction: without an identity the reduction of nothing is
// undefined. Lossy dtype conversions into result report into status (which may
// be nil).
func CopyInitialValues(result, operand *ndarray.Array, axisFlags []bool, name string, keepdims bool, status *fpstatus.Status) (skipCount int, err error) {
	if len(axisFlags) != operand.Rank() {
		exceptions.Panicf("reduce.CopyInitialValues: %d axis flags for operand of rank %d",
			len(axisFlags), operand.Rank())
	}
	opStrides := operand.Strides()
	dimensions := make([]int, 0, operand.Rank())
	strides := make([]int, 0, operand.Rank())
	for axis, reduced := range axisFlags {
		if !reduced {
			dimensions = append(dimensions, operand.Shape().Dimensions[axis])
			strides = append(strides, opStrides[axis])
			continue
		}
		if operand.Shape().Dimensions[axis] == 0 {
			return 0, errors.Wrapf(ErrEmptyReduction,
				"zero-size array to reduction operation %s which has no identity", name)
		}
		if keepdims {
			dimensions = append(dimensions, 1)
			strides = append(strides, 0)
		}
	}
	view := operand.ViewWithStrides(
		shapes.Make(operand.DType(), dimensions...), strides, operand.Offset())
	if err := ndarray.CopyInto(result, view, status); err != nil {
		return 0, errors.WithMessage(err, "reduce.CopyInitialValues")
	}
	return view.Shape().Size(), nil
}

// resultAxesMapping maps each operand (= iteration) axis to the result axis it
// corresponds to, or nditer.AxisBroadcast for a reduced axis dropped from the
// result. With keepdims the mapping is the identity: reduced axes stay, with
// size 1.
func resultAxesMapping(axisFlags []bool, keepdims bool) []int {
	axes := make([]int, len(axisFlags))
	kept := 0
	for axis, reduced := range axisFlags {
		switch {
		case keepdims:
			axes[axis] = axis
		case reduced:
			axes[axis] = nditer.AxisBroadcast
		default:
			axes[axis] = kept
			kept++
		}
	}
	return axes
}

// resultShape is the shape of a freshly allocated result.
func resultShape(operand shapes.Shape, axisFlags []bool, dtype dtypes.DType, keepdims bool) shapes.Shape {
	dimensions := make([]int, 0, operand.Rank())
	for axis, reduced := range axisFlags {
		switch {
		case !reduced:
			dimensions = append(dimensions, operand.Dimensions[axis])
		case keepdims:
			dimensions = append(dimensions, 1)
		}
	}
	return shapes.Make(dtype, dimensions...)
}

// validateOut checks a caller-supplied output array against the operand and the
// axis flags: the rank rule (spelled differently for keepdims), size 1 on
// reduced keepdims axes, and exact non-reduced dimensions.
func validateOut(out, operand *ndarray.Array, axisFlags []bool, keepdims bool, name string) error {
	naxes := CountAxes(axisFlags)
	if keepdims {
		if out.Rank() != operand.Rank() {
			return errors.Wrapf(ErrValidation,
				"output for reduction operation %s has rank %d, expected %d (the operand's rank, since reduced axes are kept as size one)",
				name, out.Rank(), operand.Rank())
		}
	} else if out.Rank() != operand.Rank()-naxes {
		return errors.Wrapf(ErrValidation,
			"output for reduction operation %s has rank %d, expected %d (the operand's non-reduced axes)",
			name, out.Rank(), operand.Rank()-naxes)
	}
	outAxis := 0
	for axis, reduced := range axisFlags {
		if reduced {
			if keepdims {
				if out.Shape().Dimensions[axis] != 1 {
					return errors.Wrapf(ErrValidation,
						"output for reduction operation %s must have size 1 on reduced axis %d, has %d",
						name, axis, out.Shape().Dimensions[axis])
				}
				outAxis++
			}
			continue
		}
		if out.Shape().Dimensions[outAxis] != operand.Shape().Dimensions[axis] {
			return errors.Wrapf(ErrValidation,
				"output for reduction operation %s has size %d on axis %d, expected %d to match the operand",
				name, out.Shape().Dimensions[outAxis], outAxis, operand.Shape().Dimensions[axis])
		}
		outAxis++
	}
	return nil
}

// Reduce collapses the axes of operand flagged true in axisFlags, combining
// elements with reducer, and returns the result: opts.Out when given (the same
// array, now filled), else a newly allocated array.
//
// The sweep makes at most one pass over the data. Flagging no axis at all
// copies: the result is element-wise identical to the operand. When operand and
// opts.Out share storage the operand side is scratch-copied first, so in-place
// reductions are safe.
//
// Failures wrap the package's error sentinels (see errors.go); errors returned
// by reducer are propagated unchanged.
func Reduce(operand *ndarray.Array, axisFlags []bool, reducer Reducer, opts Options) (*ndarray.Array, error) {
	name := opts.name(reducer)

	// Validation, before any allocation.
	if len(axisFlags) != operand.Rank() {
		return nil, errors.Wrapf(ErrValidation,
			"reduction operation %s got %d axis flags for an operand of rank %d",
			name, len(axisFlags), operand.Rank())
	}
	naxes := CountAxes(axisFlags)
	if !opts.Reorderable && naxes > 1 {
		return nil, errors.Wrapf(ErrValidation,
			"reduction operation %s is not reorderable, so at most one axis may be specified (got %d)",
			name, naxes)
	}
	identity := opts.Identity
	if identity == nil {
		if withIdentity, ok := reducer.(IdentityReducer); ok {
			identity, _ = withIdentity.Identity()
		}
	}
	if opts.Where != nil && identity == nil {
		return nil, errors.Wrapf(ErrValidation,
			"reduction operation %s has no identity; supply an initial value to use a where mask", name)
	}
	if opts.Out != nil {
		if err := validateOut(opts.Out, operand, axisFlags, opts.KeepDims, name); err != nil {
			return nil, err
		}
	}

	opDType := opts.OperandDType
	if opDType == dtypes.InvalidDType {
		opDType = operand.DType()
	}
	resDType := opts.ResultDType
	if resDType == dtypes.InvalidDType {
		resDType = opDType
	}

	// Iterator setup. Operand #0 is the result (allocated here if no output was
	// supplied), #1 the operand, #2 the optional mask. Both #0 and #1 are
	// presented as opDType, so the reducer combines a single Go type.
	ops := []*ndarray.Array{opts.Out, operand}
	opFlags := []nditer.OpFlag{nditer.OpRead | nditer.OpWrite, nditer.OpRead}
	opDTypes := []dtypes.DType{opDType, opDType}
	opAxes := [][]int{resultAxesMapping(axisFlags, opts.KeepDims), nil}
	if opts.Where != nil {
		ops = append(ops, opts.Where)
		opFlags = append(opFlags, nditer.OpRead)
		opDTypes = append(opDTypes, dtypes.Bool)
		opAxes = append(opAxes, nil)
	}
	if opts.Out == nil {
		// The iterator would size an allocated result with the full iteration
		// dimensions (reduced keepdims axes map to themselves, so they would
		// get the operand's extent, not 1) and with the presented dtype. The
		// result is pre-allocated here instead, with size 1 on kept reduced
		// axes; when resDType differs from opDType it engages a cast buffer
		// like a caller-supplied output would.
		ops[0] = ndarray.New(resultShape(operand.Shape(), axisFlags, resDType, opts.KeepDims))
	}
	status := opts.Status
	if status == nil {
		status = fpstatus.New()
	}
	it, err := nditer.New(nditer.Config{
		Ops:      ops,
		OpFlags:  opFlags,
		OpDTypes: opDTypes,
		OpAxes:   opAxes,
		Casting:  opts.Casting,
		BufSize:  opts.BufSize,
		Status:   status,
	})
	if err != nil {
		return nil, errors.Wrapf(ErrAllocation, "reduction operation %s: %v", name, err)
	}
	defer it.Release()

	result := it.Operand(0)
	klog.V(2).Infof("reduce %s: operand %s -> result %s, %d reduced axes, total %d elements",
		name, operand.Shape(), result.Shape(), naxes, it.TotalSize())

	// Seeding. The floating-point flag clear brackets seeding and the sweep,
	// so flags raised while bootstrapping are also caught. Seeding reads from
	// it.Operand(1), the scratch copy when operand and result overlap.
	status.Clear()
	skipBudget := 0
	if identity != nil {
		if err := ndarray.Fill(result, identity, status); err != nil {
			return nil, errors.Wrapf(ErrValidation,
				"reduction operation %s: cannot use %v (%T) as identity for dtype %s: %v",
				name, identity, identity, result.DType(), err)
		}
	} else {
		skipBudget, err = CopyInitialValues(result, it.Operand(1), axisFlags, name, opts.KeepDims, status)
		if err != nil {
			return nil, err
		}
	}
	if err := it.Reset(); err != nil {
		return nil, errors.Wrapf(ErrAllocation, "reduction operation %s: %v", name, err)
	}

	// The sweep. The skip budget counts seeded result elements still pending:
	// while it lasts, a first-visit block's leading elements are seed values --
	// one element when the result holds still along the run (the run is being
	// collapsed), the whole run prefix otherwise.
	errMask := opts.ErrMask
	if errMask == fpstatus.NoFlags {
		errMask = fpstatus.DefaultFatal
	}
	checkMidLoop := it.NeedsErrorCheck() && errMask != fpstatus.NoneFatal
	for it.Next() {
		block := it.Block()
		skip := 0
		if skipBudget > 0 && it.FirstVisit(0) {
			if block.Strides[0] == 0 {
				skip = 1
			} else {
				skip = min(block.Size, skipBudget)
			}
			skipBudget -= skip
		}
		if err := reducer.ReduceBlock(block, skip); err != nil {
			return nil, err
		}
		if checkMidLoop && status.Test(errMask) != fpstatus.NoFlags {
			break
		}
	}

	// Final check of the accumulated floating-point flags against the mask.
	if errMask != fpstatus.NoneFatal {
		if raised := status.Test(errMask); raised != fpstatus.NoFlags {
			return nil, errors.Wrapf(ErrArithmetic, "%s encountered in reduction operation %s",
				raised, name)
		}
	}
	return result, nil
}
