package excel

// RawRowData represents a row of raw tabular data as string key-value pairs
type RawRowData map[string]string

// TableData represents a complete tabular file: header row plus data rows
type TableData struct {
	Headers []string     // Column headers
	Rows    []RawRowData // Data rows
}

// Column returns the named column's values in row order. The second return
// reports whether the column exists in the header row.
func (d *TableData) Column(name string) ([]string, bool) {
	found := false
	for _, h := range d.Headers {
		if h == name {
			found = true
			break
		}
	}
	if !found {
		return nil, false
	}
	values := make([]string, len(d.Rows))
	for i, row := range d.Rows {
		values[i] = row[name]
	}
	return values, true
}
