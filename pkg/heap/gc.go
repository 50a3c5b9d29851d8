package heap

// Collect runs one stop-the-world mark-sweep cycle:
//
//  1. Unmark every cell.
//  2. Ask the root source to mark the root set. The runtime's root
//     source combines explicit roots (global env, constant tables, the
//     singletons, the current and main fibers) with a conservative scan
//     of every non-terminated fiber's value-stack region, validated
//     through LiveCell.
//  3. Mark transitively via each cell's VisitChildren. Marking is
//     idempotent, so cycles terminate.
//  4. Sweep: run the destructor of every unmarked, collectible cell,
//     zero it, and return it to its block's free list.
//
// Collect is a no-op while collection is disabled.
func (h *Heap) Collect() {
	if !h.gcEnabled || h.roots == nil {
		return
	}

	for _, a := range h.allocators {
		for _, b := range a.blocks {
			for i, c := range b.cells {
				if b.used[i] {
					c.GCCore().marked = false
				}
			}
		}
	}

	var pending []Cell
	mark := func(c Cell) {
		if c == nil {
			return
		}
		core := c.GCCore()
		if core.marked {
			return
		}
		core.marked = true
		pending = append(pending, c)
	}

	h.roots.VisitRoots(h, mark)

	marked := 0
	for len(pending) > 0 {
		c := pending[len(pending)-1]
		pending = pending[:len(pending)-1]
		c.VisitChildren(mark)
		marked++
	}

	swept := h.sweep()
	h.collections++
	h.log.Debug("collection complete", "cycle", h.collections, "marked", marked, "swept", swept, "free", h.freeRatio())
}

// sweep reclaims every in-use cell that is neither marked nor permanent.
// The destructor runs exactly once, then the cell body is zeroed and the
// cell rejoins its block's free list.
func (h *Heap) sweep() int {
	h.sweeping = true
	defer func() { h.sweeping = false }()

	swept := 0
	for _, a := range h.allocators {
		for _, b := range a.blocks {
			for i, c := range b.cells {
				if !b.used[i] {
					continue
				}
				core := c.GCCore()
				if core.marked || core.permanent {
					continue
				}
				c.Destroy()
				h.source.Reset(c)
				b.release(i)
				a.freeCells++
				swept++
			}
		}
	}
	return swept
}
