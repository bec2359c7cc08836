package tabular

import "fmt"

// Batch is one decoded tabular file: an ordered column list and rows of
// cells aligned to it.
type Batch struct {
	Columns []string
	Rows    [][]Value

	index map[string]int
}

func NewBatch(columns []string) (*Batch, error) {
	index := make(map[string]int, len(columns))
	for i, c := range columns {
		if c == "" {
			return nil, fmt.Errorf("empty column name at position %d", i)
		}
		if _, dup := index[c]; dup {
			return nil, fmt.Errorf("duplicate column name %q", c)
		}
		index[c] = i
	}
	return &Batch{
		Columns: append([]string(nil), columns...),
		index:   index,
	}, nil
}

func (b *Batch) AppendRow(row []Value) error {
	if len(row) != len(b.Columns) {
		return fmt.Errorf("row has %d cells, batch has %d columns", len(row), len(b.Columns))
	}
	b.Rows = append(b.Rows, row)
	return nil
}

func (b *Batch) RowCount() int    { return len(b.Rows) }
func (b *Batch) ColumnCount() int { return len(b.Columns) }

func (b *Batch) HasColumn(name string) bool {
	_, ok := b.index[name]
	return ok
}

// Column returns all cell values for a named column, or nil if the column
// does not exist in this batch.
func (b *Batch) Column(name string) []Value {
	i, ok := b.index[name]
	if !ok {
		return nil
	}
	out := make([]Value, len(b.Rows))
	for r, row := range b.Rows {
		out[r] = row[i]
	}
	return out
}

// Cell returns the value at (row, column name). Missing columns read as null.
func (b *Batch) Cell(row int, name string) Value {
	i, ok := b.index[name]
	if !ok {
		return Null()
	}
	return b.Rows[row][i]
}
