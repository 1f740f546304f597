package export

import "fmt"

// Column describes one export column. Width is a relative weight used by the
// PDF renderer; CSV ignores it.
type Column struct {
	Header string
	Width  float64
}

// Dataset defines tabular export content.
type Dataset struct {
	Title    string
	Subtitle string
	Columns  []Column
	Rows     [][]string
}

func (d Dataset) validate() error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("export requires at least one column")
	}
	for i, row := range d.Rows {
		if len(row) != len(d.Columns) {
			return fmt.Errorf("row %d has %d cells, want %d", i, len(row), len(d.Columns))
		}
	}
	return nil
}

func (d Dataset) headers() []string {
	out := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		out[i] = col.Header
	}
	return out
}
