// Package heap implements the managed heap for the beryl runtime.
//
// The heap is a segregated free-list allocator: memory is organized as a
// set of size-class allocators, each owning a list of fixed-size blocks.
// Every block is subdivided into equal-sized cells tracked by a used
// bitmap and an intrusive free list. On top of the allocator sits a
// stop-the-world mark-sweep collector.
//
// The heap does not know what lives in its cells. Managed values are
// exposed through the Cell interface: a cell can enumerate the cells it
// owns (for the mark phase) and run a destructor (for the sweep phase).
// The object model registers a CellSource so the heap owns contiguous
// backing arrays and can answer exact-address liveness queries for the
// conservative root scan.
package heap

// Visitor marks a cell as reachable. It is handed to Cell.VisitChildren
// during the mark phase; implementations must be safe to call multiple
// times with the same cell (marking is idempotent and cycle-safe).
type Visitor func(Cell)

// Cell is a single managed value living in a heap block.
type Cell interface {
	// GCCore exposes the per-cell collector bookkeeping. Implementations
	// embed Core to satisfy this.
	GCCore() *Core

	// VisitChildren calls visit for every cell this cell keeps alive.
	VisitChildren(visit Visitor)

	// Destroy is the cell's destructor. The sweep phase invokes it
	// exactly once before the cell is zeroed and returned to its
	// block's free list.
	Destroy()
}

// Core carries the collector's per-cell state. Value types embed it.
type Core struct {
	marked    bool
	permanent bool
}

// GCCore satisfies the Cell interface for embedders.
func (c *Core) GCCore() *Core { return c }

// Marked reports whether the cell survived the most recent mark phase.
func (c *Core) Marked() bool { return c.marked }

// SetPermanent pins the cell for the lifetime of the process. Permanent
// cells are never swept; interned symbols and the nil/true/false
// singletons use this.
func (c *Core) SetPermanent() { c.permanent = true }

// Permanent reports whether the cell is exempt from collection.
func (c *Core) Permanent() bool { return c.permanent }

// CellSource supplies and recycles the concrete cells a heap manages.
// The runtime installs one at startup; the heap calls NewCells when it
// provisions a block and Reset when a cell is handed out or reclaimed.
type CellSource interface {
	// NewCells returns count fresh cells backed by a single contiguous
	// allocation, so a block's cells stay adjacent in memory.
	NewCells(count int) []Cell

	// Reset zeroes the cell body, leaving the collector bookkeeping
	// untouched.
	Reset(c Cell)
}
