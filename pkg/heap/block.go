package heap

// block is one fixed-size slab of cells belonging to a size-class
// allocator. Availability is tracked two ways, mirroring each other:
// a used bitmap (one bool per cell) and an intrusive free list threaded
// through freeNext by cell index, with freeHead pointing at the first
// free cell (-1 when the block is full).
type block struct {
	cellSize  int
	cells     []Cell
	used      []bool
	freeNext  []int32
	freeHead  int32
	freeCount int
}

func newBlock(cellSize, cellCount int, source CellSource) *block {
	b := &block{
		cellSize:  cellSize,
		cells:     source.NewCells(cellCount),
		used:      make([]bool, cellCount),
		freeNext:  make([]int32, cellCount),
		freeHead:  0,
		freeCount: cellCount,
	}
	for i := 0; i < cellCount; i++ {
		if i == cellCount-1 {
			b.freeNext[i] = -1
		} else {
			b.freeNext[i] = int32(i + 1)
		}
	}
	return b
}

func (b *block) hasFree() bool { return b.freeCount > 0 }

// allocate removes the head cell from the free list and marks it used.
// The caller is responsible for zeroing the cell body.
func (b *block) allocate() (Cell, int) {
	i := b.freeHead
	if i < 0 {
		return nil, -1
	}
	b.freeHead = b.freeNext[i]
	b.freeNext[i] = -1
	b.used[i] = true
	b.freeCount--
	return b.cells[i], int(i)
}

// release returns the cell at index i to the free list. The destructor
// must already have run; the caller zeroes the body via the CellSource.
func (b *block) release(i int) {
	b.used[i] = false
	b.freeNext[i] = b.freeHead
	b.freeHead = int32(i)
	b.freeCount++
}
