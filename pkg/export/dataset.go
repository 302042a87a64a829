package export

import "fmt"

// Column describes one exported field. Width is a relative weight used by
// the PDF layout; zero means an even share.
type Column struct {
	Key    string
	Header string
	Width  float64
}

// Dataset defines tabular export content.
type Dataset struct {
	Title   string
	Columns []Column
	Rows    []map[string]string
}

func (d Dataset) validate(kind string) error {
	if len(d.Columns) == 0 {
		return fmt.Errorf("%s requires at least one column", kind)
	}
	return nil
}

func (d Dataset) headers() []string {
	headers := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		headers[i] = col.Header
		if headers[i] == "" {
			headers[i] = col.Key
		}
	}
	return headers
}

func (d Dataset) record(row map[string]string) []string {
	record := make([]string, len(d.Columns))
	for i, col := range d.Columns {
		record[i] = row[col.Key]
	}
	return record
}
