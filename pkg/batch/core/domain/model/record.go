package model

// RawRecord is one tokenized line of the source: its fields in column order
// and the 1-based physical line number it came from.
type RawRecord struct {
	Line   int
	Fields []string
}

// Field returns the field at position i, or "" when the record is shorter.
func (r RawRecord) Field(i int) string {
	if i < 0 || i >= len(r.Fields) {
		return ""
	}
	return r.Fields[i]
}
