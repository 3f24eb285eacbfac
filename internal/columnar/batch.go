package columnar

import (
	"fmt"

	"github.com/Meesho/BharatMLStack/feature-server/internal/types"
)

// Column is one named, typed column. Values has one entry per row; nulls are typed or zero Values.
type Column struct {
	Name   string
	Type   types.ValueType
	Values []types.Value
}

// Batch is an immutable set of equally long columns with unique names.
type Batch struct {
	numRows int
	columns []Column
	index   map[string]int
}

func NewBatch(numRows int, columns ...Column) (*Batch, error) {
	b := &Batch{
		numRows: numRows,
		columns: make([]Column, len(columns)),
		index:   make(map[string]int, len(columns)),
	}
	for i, c := range columns {
		if len(c.Values) != numRows {
			return nil, fmt.Errorf("column %s has %d values, batch has %d rows", c.Name, len(c.Values), numRows)
		}
		if _, dup := b.index[c.Name]; dup {
			return nil, fmt.Errorf("duplicate column %s", c.Name)
		}
		for row, v := range c.Values {
			if !v.IsNull() && v.Type() != c.Type {
				return nil, fmt.Errorf("column %s row %d: %s value in %s column", c.Name, row, v.Type(), c.Type)
			}
		}
		values := make([]types.Value, numRows)
		copy(values, c.Values)
		b.columns[i] = Column{Name: c.Name, Type: c.Type, Values: values}
		b.index[c.Name] = i
	}
	return b, nil
}

func (b *Batch) NumRows() int { return b.numRows }

func (b *Batch) NumColumns() int { return len(b.columns) }

func (b *Batch) Columns() []Column { return b.columns }

func (b *Batch) Column(name string) (Column, bool) {
	i, ok := b.index[name]
	if !ok {
		return Column{}, false
	}
	return b.columns[i], true
}

func (b *Batch) ColumnNames() []string {
	names := make([]string, len(b.columns))
	for i, c := range b.columns {
		names[i] = c.Name
	}
	return names
}
