// Copyright 2023-2026 The GoMLX Authors. SPDX-License-Identifier: Apache-2.0

// Package nditer implements a multi-operand strided iterator with broadcasting,
// dtype-casting buffers and reduction (stride-0) axes.
//
// The iterator presents the co-indexed operands as a sequence of blocks: runs
// along the innermost iteration axis, each described by a flat slice, a start
// offset and an inner stride per operand. Operands whose dtype differs from the
// requested iteration dtype are presented through contiguous cast buffers that
// are filled before and (for writable operands) flushed after each block.
//
// Usage:
//
//	it, err := nditer.New(cfg)
//	...
//	defer it.Release()
//	if err := it.Reset(); err != nil { ... }
//	for it.Next() {
//		block := it.Block()
//		... consume block.Size elements per operand ...
//	}
package nditer

import (
	"os"
	"reflect"
	"sync"

	"github.com/dustin/go-humanize"
	"github.com/gomlx/exceptions"
	"github.com/pkg/errors"
	"k8s.io/klog/v2"

	"github.com/gomlx/ndarray/pkg/core/dtypes"
	"github.com/gomlx/ndarray/pkg/core/fpstatus"
	"github.com/gomlx/ndarray/pkg/core/ndarray"
	"github.com/gomlx/ndarray/pkg/core/shapes"
)

// OpFlag describes how the iterator accesses one operand.
type OpFlag uint8

const (
	// OpRead marks the operand as read by the loop body.
	OpRead OpFlag = 1 << iota

	// OpWrite marks the operand as written by the loop body. Cast buffers of
	// writable operands are flushed back to the array after each block.
	OpWrite

	// OpAllocate lets the operand be nil: the iterator allocates a contiguous
	// array with the iteration dimensions of the axes the operand maps
	// (requires an explicit dtype in Config.OpDTypes).
	OpAllocate
)

// IsRead returns whether OpRead is set.
func (f OpFlag) IsRead() bool { return f&OpRead != 0 }

// IsWrite returns whether OpWrite is set.
func (f OpFlag) IsWrite() bool { return f&OpWrite != 0 }

// Has returns whether all bits of flag are set.
func (f OpFlag) Has(flag OpFlag) bool { return f&flag == flag }

// AxisBroadcast in an axes mapping marks an iteration axis the operand does not
// have: the operand is broadcast (stride 0) along it. For writable operands a
// stride-0 axis of size > 1 means the same element is visited repeatedly -- the
// reduction case.
const AxisBroadcast = -1

// BufferSizeEnvVar optionally overrides the default cast-buffer size; the value
// is a byte size ("64KB", "1MiB", plain digits).
const BufferSizeEnvVar = "NDARRAY_BUFFER_SIZE"

const defaultBufferBytes = 64 * 1024

var (
	bufferBytesOnce sync.Once
	bufferBytes     int
)

// configuredBufferBytes returns the cast-buffer byte size: the BufferSizeEnvVar
// setting if given (and parseable), otherwise defaultBufferBytes.
func configuredBufferBytes() int {
	bufferBytesOnce.Do(func() {
		bufferBytes = defaultBufferBytes
		if env := os.Getenv(BufferSizeEnvVar); env != "" {
			parsed, err := humanize.ParseBytes(env)
			if err != nil || parsed == 0 {
				klog.Warningf("invalid %s=%q, using default %s", BufferSizeEnvVar, env,
					humanize.IBytes(defaultBufferBytes))
			} else {
				bufferBytes = int(parsed)
			}
		}
		klog.V(1).Infof("nditer buffer size: %s", humanize.IBytes(uint64(bufferBytes)))
	})
	return bufferBytes
}

// Config for New.
type Config struct {
	// Ops are the co-indexed operands. An entry may be nil if its flags include
	// OpAllocate.
	Ops []*ndarray.Array

	// OpFlags has one entry per operand.
	OpFlags []OpFlag

	// OpDTypes optionally requests the dtype each operand is presented as;
	// InvalidDType (or a nil slice) means the operand's own dtype. A differing
	// dtype engages a cast buffer for that operand.
	OpDTypes []dtypes.DType

	// OpAxes optionally maps, per operand, iteration axes to operand axes:
	// OpAxes[i][j] is the operand axis iterated by iteration axis j, or
	// AxisBroadcast. A nil entry means right-aligned identity mapping. All
	// non-nil entries must have the same length, which sets the number of
	// iteration axes.
	OpAxes [][]int

	// Casting rule checked for every engaged cast buffer (reads cast
	// array->iteration dtype, writes iteration dtype->array).
	Casting dtypes.CastingRule

	// BufSize is the cast-buffer capacity in elements; 0 picks the default
	// (configurable through BufferSizeEnvVar). An explicit value also caps
	// the block size of unbuffered iterations.
	BufSize int

	// Status receives floating-point flags raised by lossy cast conversions.
	// May be nil.
	Status *fpstatus.Status
}

// Block is the iterator's presentation of the current run: per-operand flat
// storage (array storage or cast buffer), a start offset and an inner stride
// into it, and the number of elements in the run.
type Block struct {
	Data    []any
	Off     []int
	Strides []int
	Size    int
}

// Iter iterates co-indexed strided operands block by block. See the package
// documentation for the contract.
//
// An Iter is single-use state owned by one goroutine; Release must be called
// exactly once when done (it is idempotent).
type Iter struct {
	nops       int
	arrays     []*ndarray.Array
	flags      []OpFlag
	iterDTypes []dtypes.DType
	status     *fpstatus.Status

	dims      []int   // iteration dimensions, after coalescing
	strides   [][]int // [op][axis] effective strides, after coalescing
	totalSize int

	buffered        []bool
	needsErrorCheck bool
	bufElems        int
	capAllBlocks    bool  // an explicit BufSize caps blocks even without buffering
	buffers         []any // allocated at Reset (per buffered operand)

	started  bool
	done     bool
	released bool
	index    []int // multi-index of the current block's start
	offs     []int // per-operand storage offset at the current block's start
	baseOffs []int // per-operand storage offset of iteration start
	block    Block
	flushOps []int // buffered writable operands, flushed between blocks
}

// New builds the iterator. It resolves broadcasting, clones read operands that
// overlap a writable operand's storage, allocates missing OpAllocate operands,
// and validates the casting rule for every engaged cast buffer. Buffers
// themselves are only allocated at Reset.
func New(cfg Config) (*Iter, error) {
	nops := len(cfg.Ops)
	if nops == 0 {
		return nil, errors.Errorf("nditer.New: no operands")
	}
	if len(cfg.OpFlags) != nops {
		return nil, errors.Errorf("nditer.New: %d operands but %d operand flags", nops, len(cfg.OpFlags))
	}
	if cfg.OpDTypes != nil && len(cfg.OpDTypes) != nops {
		return nil, errors.Errorf("nditer.New: %d operands but %d operand dtypes", nops, len(cfg.OpDTypes))
	}
	if cfg.OpAxes != nil && len(cfg.OpAxes) != nops {
		return nil, errors.Errorf("nditer.New: %d operands but %d axes mappings", nops, len(cfg.OpAxes))
	}

	// Number of iteration axes: from the explicit axes mappings, or the largest
	// operand rank.
	ndim := -1
	for i := range nops {
		if cfg.OpAxes != nil && cfg.OpAxes[i] != nil {
			if ndim >= 0 && len(cfg.OpAxes[i]) != ndim {
				return nil, errors.Errorf("nditer.New: axes mappings disagree on the number of iteration axes (%d vs %d)",
					ndim, len(cfg.OpAxes[i]))
			}
			ndim = len(cfg.OpAxes[i])
		}
	}
	if ndim < 0 {
		for i := range nops {
			if cfg.Ops[i] != nil && cfg.Ops[i].Rank() > ndim {
				ndim = cfg.Ops[i].Rank()
			}
		}
		if ndim < 0 {
			return nil, errors.Errorf("nditer.New: cannot infer iteration axes, all operands are nil")
		}
	}

	// Per-operand axes mapping, defaulting to right-aligned identity.
	axes := make([][]int, nops)
	for i := range nops {
		if cfg.OpAxes != nil && cfg.OpAxes[i] != nil {
			axes[i] = cfg.OpAxes[i]
			continue
		}
		if cfg.Ops[i] == nil {
			return nil, errors.Errorf("nditer.New: operand #%d is nil (to be allocated) and has no axes mapping", i)
		}
		m := make([]int, ndim)
		shift := ndim - cfg.Ops[i].Rank()
		for j := range ndim {
			if j < shift {
				m[j] = AxisBroadcast
			} else {
				m[j] = j - shift
			}
		}
		axes[i] = m
	}

	// Resolve the iteration dimensions across operands.
	dims := make([]int, ndim)
	for j := range dims {
		dims[j] = 1
	}
	for i := range nops {
		op := cfg.Ops[i]
		if op == nil {
			continue
		}
		seen := make([]bool, op.Rank())
		for j, axis := range axes[i] {
			if axis == AxisBroadcast {
				continue
			}
			if axis < 0 || axis >= op.Rank() {
				return nil, errors.Errorf("nditer.New: operand #%d (shape %s) has no axis %d", i, op.Shape(), axis)
			}
			if seen[axis] {
				return nil, errors.Errorf("nditer.New: operand #%d axis %d mapped twice", i, axis)
			}
			seen[axis] = true
			d := op.Shape().Dimensions[axis]
			switch {
			case dims[j] == 1:
				dims[j] = d
			case d == 1 || d == dims[j]:
				// Broadcast or exact match.
			default:
				return nil, errors.Errorf("nditer.New: operand #%d axis %d has size %d, incompatible with iteration size %d",
					i, axis, d, dims[j])
			}
		}
	}

	it := &Iter{
		nops:       nops,
		arrays:     make([]*ndarray.Array, nops),
		flags:      append([]OpFlag(nil), cfg.OpFlags...),
		iterDTypes: make([]dtypes.DType, nops),
		status:     cfg.Status,
		buffered:   make([]bool, nops),
	}
	copy(it.arrays, cfg.Ops)

	// Alias safety: a read-only operand overlapping a writable operand's
	// storage is cloned to a private scratch copy before iteration.
	for w := range nops {
		if !it.flags[w].IsWrite() || it.arrays[w] == nil {
			continue
		}
		for r := range nops {
			if r == w || it.flags[r].IsWrite() || it.arrays[r] == nil {
				continue
			}
			if ndarray.SharesStorage(it.arrays[w], it.arrays[r]) {
				klog.V(2).Infof("nditer: operand #%d overlaps writable operand #%d, copying to scratch", r, w)
				it.arrays[r] = it.arrays[r].Clone()
			}
		}
	}

	// Allocate missing operands.
	for i := range nops {
		if it.arrays[i] != nil {
			continue
		}
		if !it.flags[i].Has(OpAllocate) {
			return nil, errors.Errorf("nditer.New: operand #%d is nil without the OpAllocate flag", i)
		}
		dtype := dtypes.InvalidDType
		if cfg.OpDTypes != nil {
			dtype = cfg.OpDTypes[i]
		}
		if dtype == dtypes.InvalidDType {
			return nil, errors.Errorf("nditer.New: operand #%d is to be allocated but has no dtype", i)
		}
		rank := 0
		for _, axis := range axes[i] {
			if axis != AxisBroadcast {
				rank++
			}
		}
		dimensions := make([]int, rank)
		for j, axis := range axes[i] {
			if axis != AxisBroadcast {
				dimensions[axis] = dims[j]
			}
		}
		it.arrays[i] = ndarray.New(shapes.Make(dtype, dimensions...))
	}

	// Presented dtypes and casting validation.
	for i := range nops {
		arrayDType := it.arrays[i].DType()
		iterDType := arrayDType
		if cfg.OpDTypes != nil && cfg.OpDTypes[i] != dtypes.InvalidDType {
			iterDType = cfg.OpDTypes[i]
		}
		it.iterDTypes[i] = iterDType
		if iterDType == arrayDType {
			continue
		}
		it.buffered[i] = true
		if it.flags[i].IsRead() {
			if err := checkCast(arrayDType, iterDType, cfg.Casting, i); err != nil {
				return nil, err
			}
			if ndarray.ConvertReportsStatus(arrayDType, iterDType) {
				it.needsErrorCheck = true
			}
		}
		if it.flags[i].IsWrite() {
			if err := checkCast(iterDType, arrayDType, cfg.Casting, i); err != nil {
				return nil, err
			}
			if ndarray.ConvertReportsStatus(iterDType, arrayDType) {
				it.needsErrorCheck = true
			}
		}
	}

	// Effective per-operand strides over the iteration axes: 0 on broadcast and
	// size-1 axes.
	estrides := make([][]int, nops)
	baseOffs := make([]int, nops)
	for i := range nops {
		op := it.arrays[i]
		opStrides := op.Strides()
		baseOffs[i] = op.Offset()
		estrides[i] = make([]int, ndim)
		for j, axis := range axes[i] {
			if axis == AxisBroadcast || op.Shape().Dimensions[axis] == 1 {
				continue
			}
			estrides[i][j] = opStrides[axis]
		}
	}

	// A rank-0 iteration space still makes one block of one element.
	if ndim == 0 {
		ndim = 1
		dims = []int{1}
		for i := range nops {
			estrides[i] = []int{0}
		}
	}

	it.totalSize = 1
	for _, d := range dims {
		it.totalSize *= d
	}
	it.dims, it.strides = coalesceAxes(dims, estrides, it.totalSize)

	it.offs = make([]int, nops)
	it.baseOffs = baseOffs
	it.index = make([]int, len(it.dims))
	it.block = Block{
		Data:    make([]any, nops),
		Off:     make([]int, nops),
		Strides: make([]int, nops),
	}
	for i := range nops {
		if it.buffered[i] && it.flags[i].IsWrite() {
			it.flushOps = append(it.flushOps, i)
		}
	}
	it.bufElems = cfg.BufSize
	it.capAllBlocks = cfg.BufSize > 0
	if it.bufElems <= 0 {
		it.bufElems = bufferElementsFor(it.iterDTypes, it.buffered)
	}

	if klog.V(2).Enabled() {
		klog.Infof("nditer.New: %d operands, dims=%v, total=%s elements, buffered=%v",
			nops, it.dims, humanize.Comma(int64(it.totalSize)), it.buffered)
	}
	return it, nil
}

func checkCast(from, to dtypes.DType, rule dtypes.CastingRule, op int) error {
	if !ndarray.CanConvert(from, to) {
		return errors.Errorf("nditer.New: no conversion from %s to %s for operand #%d", from, to, op)
	}
	if !dtypes.CanCast(from, to, rule) {
		return errors.Errorf("nditer.New: cannot cast operand #%d from %s to %s under rule %s",
			op, from, to, rule)
	}
	return nil
}

// bufferElementsFor converts the configured buffer byte size to elements, using
// the widest buffered dtype. Without buffered operands the value is irrelevant.
func bufferElementsFor(iterDTypes []dtypes.DType, buffered []bool) int {
	widest := 1
	for i, isBuffered := range buffered {
		if isBuffered && iterDTypes[i].Size() > widest {
			widest = iterDTypes[i].Size()
		}
	}
	elems := configuredBufferBytes() / widest
	const minElems = 16
	if elems < minElems {
		elems = minElems
	}
	return elems
}

// coalesceAxes merges adjacent iteration axes that are contiguous for every
// operand, so inner runs grow as large as the layouts allow. Zero-size
// iterations are left untouched.
func coalesceAxes(dims []int, estrides [][]int, totalSize int) ([]int, [][]int) {
	if totalSize == 0 || len(dims) <= 1 {
		return dims, estrides
	}
	axis := len(dims) - 2
	for axis >= 0 {
		mergeable := true
		for i := range estrides {
			if estrides[i][axis] != dims[axis+1]*estrides[i][axis+1] {
				mergeable = false
				break
			}
		}
		if !mergeable {
			axis--
			continue
		}
		dims[axis+1] *= dims[axis]
		dims = append(dims[:axis], dims[axis+1:]...)
		for i := range estrides {
			estrides[i] = append(estrides[i][:axis], estrides[i][axis+1:]...)
		}
		if axis > len(dims)-2 {
			axis = len(dims) - 2
		}
	}
	return dims, estrides
}

// Reset positions the cursor before the first block and allocates the cast
// buffers (deferred from New). It may be called again to re-run the iteration.
func (it *Iter) Reset() error {
	if it.released {
		exceptions.Panicf("nditer: Reset after Release")
	}
	if it.buffers == nil {
		it.buffers = make([]any, it.nops)
		for i := range it.nops {
			if !it.buffered[i] {
				continue
			}
			n := it.bufElems
			if it.strides[i][len(it.dims)-1] == 0 {
				// The operand holds still along the inner axis, a single
				// element buffer suffices.
				n = 1
			}
			it.buffers[i] = reflect.MakeSlice(reflect.SliceOf(it.iterDTypes[i].GoType()), n, n).Interface()
		}
	}
	it.started = false
	it.done = false
	it.block.Size = 0
	for j := range it.index {
		it.index[j] = 0
	}
	return nil
}

// Next advances to the next block, first flushing any writable cast buffer of
// the current one. It returns false when the iteration space is exhausted (or
// empty). Reset must have been called.
func (it *Iter) Next() bool {
	if it.released {
		exceptions.Panicf("nditer: Next after Release")
	}
	if it.done {
		return false
	}
	inner := len(it.dims) - 1
	if !it.started {
		if it.totalSize == 0 {
			it.done = true
			return false
		}
		it.started = true
		copy(it.offs, it.baseOffs)
	} else {
		it.flushWriteback()
		it.index[inner] += it.block.Size
		for i := range it.nops {
			it.offs[i] += it.block.Size * it.strides[i][inner]
		}
		if it.index[inner] >= it.dims[inner] {
			it.index[inner] = 0
			for i := range it.nops {
				it.offs[i] -= it.dims[inner] * it.strides[i][inner]
			}
			axis := inner - 1
			for ; axis >= 0; axis-- {
				it.index[axis]++
				for i := range it.nops {
					it.offs[i] += it.strides[i][axis]
				}
				if it.index[axis] < it.dims[axis] {
					break
				}
				it.index[axis] = 0
				for i := range it.nops {
					it.offs[i] -= it.dims[axis] * it.strides[i][axis]
				}
			}
			if axis < 0 {
				it.done = true
				return false
			}
		}
	}
	it.prepareBlock()
	return true
}

// prepareBlock sizes the block at the current cursor and fills the cast buffers
// of read operands.
func (it *Iter) prepareBlock() {
	inner := len(it.dims) - 1
	size := it.dims[inner] - it.index[inner]
	if it.capAllBlocks && size > it.bufElems {
		size = it.bufElems
	}
	for i := range it.nops {
		if it.buffered[i] && it.strides[i][inner] != 0 && size > it.bufElems {
			size = it.bufElems
		}
	}
	it.block.Size = size

	for i := range it.nops {
		innerStride := it.strides[i][inner]
		if !it.buffered[i] {
			it.block.Data[i] = it.arrays[i].Flat()
			it.block.Off[i] = it.offs[i]
			it.block.Strides[i] = innerStride
			continue
		}
		buf := it.buffers[i]
		arrayDType := it.arrays[i].DType()
		count, bufStride := size, 1
		if innerStride == 0 {
			count, bufStride = 1, 0
		}
		if it.flags[i].IsRead() {
			ndarray.ConvertFlat(buf, it.iterDTypes[i], 0, 1,
				it.arrays[i].Flat(), arrayDType, it.offs[i], innerStride, count, it.status)
		}
		it.block.Data[i] = buf
		it.block.Off[i] = 0
		it.block.Strides[i] = bufStride
	}
}

// flushWriteback converts the writable cast buffers back into their arrays.
func (it *Iter) flushWriteback() {
	inner := len(it.dims) - 1
	for _, i := range it.flushOps {
		innerStride := it.strides[i][inner]
		count := it.block.Size
		if innerStride == 0 {
			count = 1
		}
		ndarray.ConvertFlat(it.arrays[i].Flat(), it.arrays[i].DType(), it.offs[i], innerStride,
			it.buffers[i], it.iterDTypes[i], 0, 1, count, it.status)
	}
}

// Block returns the current block. Only valid after Next returned true; the
// returned struct is reused across blocks.
func (it *Iter) Block() *Block { return &it.block }

// Operand returns operand #i as resolved by the iterator: the caller's array, a
// scratch clone (alias safety), or a freshly allocated array (OpAllocate).
func (it *Iter) Operand(i int) *ndarray.Array { return it.arrays[i] }

// TotalSize is the number of elements in the iteration space.
func (it *Iter) TotalSize() int { return it.totalSize }

// NeedsErrorCheck reports whether the iterator's own cast conversions can raise
// floating-point status flags, so a loop aborting on such flags must inspect
// them between blocks rather than only at the end.
func (it *Iter) NeedsErrorCheck() bool { return it.needsErrorCheck }

// FirstVisit reports whether the current block is the first visit of the
// elements operand #i exposes: every iteration axis the operand is broadcast
// along (stride 0, size > 1) sits at index 0. For a reduction result this is
// true exactly while its elements still hold seed values rather than partial
// accumulations.
func (it *Iter) FirstVisit(i int) bool {
	for axis, d := range it.dims {
		if d > 1 && it.strides[i][axis] == 0 && it.index[axis] != 0 {
			return false
		}
	}
	return true
}

// Release frees the iterator's buffers. Idempotent; the iterator is unusable
// afterwards.
func (it *Iter) Release() {
	if it.released {
		return
	}
	it.released = true
	it.buffers = nil
	it.block = Block{}
}
