package heap

import (
	"fmt"

	"github.com/inconshreveable/log15"
)

// Size classes for the segregated allocator, in bytes of requested
// footprint. A request is routed to the smallest class that fits.
var cellSizes = []int{64, 128, 256, 512, 1024}

const (
	// BlockSize is the slab size each size class carves into cells.
	BlockSize = 1 << 18

	// minFreeTriggerRatio is the low watermark: when the fraction of
	// free cells across all size classes drops below it, the next
	// allocation triggers a collection.
	minFreeTriggerRatio = 0.10

	// minFreeAfterCollectRatio is the high watermark: if a collection
	// leaves the heap below it, the allocator provisions new blocks
	// until it is reached.
	minFreeAfterCollectRatio = 0.20

	initialBlocksPerAllocator = 1
)

// RootSource enumerates the collector's roots. The runtime installs one
// that visits the global env, constant tables, the singletons, and every
// non-terminated fiber's env chain and value-stack region.
type RootSource interface {
	VisitRoots(h *Heap, mark Visitor)
}

type cellRef struct {
	b     *block
	index int
}

// Heap owns all managed memory for one runtime instance.
//
// All requests for managed cells go through Allocate, which routes to a
// size-class allocator and may trigger a collection first. Collection is
// stop-the-world: the runtime is single-threaded and fibers only switch
// at explicit suspend points, so when Allocate runs, every other fiber
// is parked at a GC-safe point.
type Heap struct {
	source     CellSource
	roots      RootSource
	allocators []*allocator

	// index maps every cell the heap has ever provisioned to its
	// block and slot, so a conservative word can be validated by
	// exact address match. Interior pointers never match.
	index map[Cell]cellRef

	gcEnabled   bool
	sweeping    bool
	stress      bool
	collections uint64

	log log15.Logger
}

// New creates an empty heap. Collection starts disabled so the runtime
// can bootstrap its mutually-referential core classes; callers enable it
// once the world is consistent.
func New(source CellSource, lg log15.Logger) *Heap {
	if lg == nil {
		lg = log15.New("module", "heap")
	}
	h := &Heap{
		source:    source,
		index:     make(map[Cell]cellRef),
		gcEnabled: false,
		log:       lg,
	}
	for _, size := range cellSizes {
		h.allocators = append(h.allocators, &allocator{
			h:             h,
			cellSize:      size,
			cellsPerBlock: BlockSize / size,
		})
	}
	return h
}

// SetRootSource installs the collector's root enumerator.
func (h *Heap) SetRootSource(rs RootSource) { h.roots = rs }

// Enable turns collection on.
func (h *Heap) Enable() { h.gcEnabled = true }

// Disable suppresses collection entirely (used during bootstrap).
func (h *Heap) Disable() { h.gcEnabled = false }

// Enabled reports whether collection may run.
func (h *Heap) Enabled() bool { return h.gcEnabled }

// SetStress makes every allocation trigger a full collection. Only
// useful to shake out missing roots in tests.
func (h *Heap) SetStress(on bool) { h.stress = on }

// Collections returns how many collection cycles have completed.
func (h *Heap) Collections() uint64 { return h.collections }

// Allocate returns a zeroed cell whose size class fits the requested
// footprint. It may run a collection first. Allocation during sweep is
// a fatal invariant violation.
func (h *Heap) Allocate(size int) Cell {
	if h.sweeping {
		h.fatal("allocation during sweep")
	}
	a := h.allocatorFor(size)
	if h.gcEnabled {
		if h.stress {
			h.Collect()
		} else if a.totalCells == 0 {
			a.addBlocks(initialBlocksPerAllocator)
		} else if h.freeRatio() < minFreeTriggerRatio {
			h.Collect()
			h.growUntil(a, minFreeAfterCollectRatio)
		}
	}
	c := a.allocate()
	h.source.Reset(c)
	return c
}

// LiveCell reports whether c is the exact address of an in-use cell in
// some block of some size class. Words that match no cell are ignored
// by the conservative scan; a word that matches a cell already swept is
// a use-after-free and aborts.
func (h *Heap) LiveCell(c Cell) bool {
	ref, ok := h.index[c]
	if !ok {
		return false
	}
	if !ref.b.used[ref.index] {
		h.fatal("conservative root points at a swept cell (use after free)")
	}
	return true
}

func (h *Heap) allocatorFor(size int) *allocator {
	for _, a := range h.allocators {
		if size <= a.cellSize {
			return a
		}
	}
	h.fatal(fmt.Sprintf("no size class fits %d bytes", size))
	return nil
}

// freeRatio is the fraction of free cells across all size classes.
func (h *Heap) freeRatio() float64 {
	total, free := 0, 0
	for _, a := range h.allocators {
		total += a.totalCells
		free += a.freeCells
	}
	if total == 0 {
		return 1.0
	}
	return float64(free) / float64(total)
}

// growUntil adds blocks to the requesting allocator until the global
// free ratio reaches the target.
func (h *Heap) growUntil(a *allocator, target float64) {
	for h.freeRatio() < target {
		a.addBlocks(1)
	}
}

func (h *Heap) fatal(msg string) {
	h.log.Crit("heap invariant violated", "err", msg)
	panic("heap: " + msg)
}

// allocator manages the blocks of one size class.
type allocator struct {
	h             *Heap
	cellSize      int
	cellsPerBlock int
	blocks        []*block
	totalCells    int
	freeCells     int
}

func (a *allocator) allocate() Cell {
	b := a.blockWithFree()
	if b == nil {
		b = a.addBlock()
	}
	c, _ := b.allocate()
	a.freeCells--
	return c
}

func (a *allocator) blockWithFree() *block {
	for _, b := range a.blocks {
		if b.hasFree() {
			return b
		}
	}
	return nil
}

func (a *allocator) addBlock() *block {
	b := newBlock(a.cellSize, a.cellsPerBlock, a.h.source)
	for i, c := range b.cells {
		a.h.index[c] = cellRef{b: b, index: i}
	}
	a.blocks = append(a.blocks, b)
	a.totalCells += a.cellsPerBlock
	a.freeCells += a.cellsPerBlock
	return b
}

func (a *allocator) addBlocks(n int) {
	for i := 0; i < n; i++ {
		a.addBlock()
	}
}
