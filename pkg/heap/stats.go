package heap

import (
	"io"
	"strconv"

	"github.com/olekukonko/tablewriter"
)

// ClassStats describes one size class for diagnostics.
type ClassStats struct {
	CellSize int
	Blocks   int
	Cells    int
	Free     int
}

// Stats returns a snapshot of every size class.
func (h *Heap) Stats() []ClassStats {
	out := make([]ClassStats, 0, len(h.allocators))
	for _, a := range h.allocators {
		out = append(out, ClassStats{
			CellSize: a.cellSize,
			Blocks:   len(a.blocks),
			Cells:    a.totalCells,
			Free:     a.freeCells,
		})
	}
	return out
}

// WriteStats renders the size-class table, one row per class plus a
// totals row. Used by the runtime's debug helpers.
func (h *Heap) WriteStats(w io.Writer) {
	table := tablewriter.NewWriter(w)
	table.SetHeader([]string{"Cell Size", "Blocks", "Cells", "Free", "In Use"})

	totalCells, totalFree := 0, 0
	for _, s := range h.Stats() {
		table.Append([]string{
			strconv.Itoa(s.CellSize),
			strconv.Itoa(s.Blocks),
			strconv.Itoa(s.Cells),
			strconv.Itoa(s.Free),
			strconv.Itoa(s.Cells - s.Free),
		})
		totalCells += s.Cells
		totalFree += s.Free
	}
	table.SetFooter([]string{"total", "", strconv.Itoa(totalCells), strconv.Itoa(totalFree), strconv.Itoa(totalCells - totalFree)})
	table.Render()
}
