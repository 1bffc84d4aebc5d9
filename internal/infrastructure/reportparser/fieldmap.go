package reportparser

// Field is a logical field extracted from a report row.
type Field string

// FieldMap maps logical fields onto ordered lists of column synonyms. The
// first synonym present with a non-empty value wins.
type FieldMap struct {
	Name     string
	synonyms map[Field][]string
	required []Field
}

// NewFieldMap builds a map; synonyms are normalized once here.
func NewFieldMap(name string, synonyms map[Field][]string, required ...Field) *FieldMap {
	m := &FieldMap{
		Name:     name,
		synonyms: make(map[Field][]string, len(synonyms)),
		required: required,
	}
	for field, names := range synonyms {
		normalized := make([]string, 0, len(names))
		for _, n := range names {
			normalized = append(normalized, NormalizeHeader(n))
		}
		m.synonyms[field] = normalized
	}
	return m
}

// Lookup resolves a logical field against a row.
func (m *FieldMap) Lookup(row Row, field Field) (string, bool) {
	for _, col := range m.synonyms[field] {
		if v, ok := row.Values[col]; ok && v != "" {
			return v, true
		}
	}
	return "", false
}

// Record is a row resolved to logical fields.
type Record struct {
	Line   int
	Values map[Field]string
}

// Get returns the value of field or "".
func (r Record) Get(field Field) string {
	return r.Values[field]
}

// Extraction is the result of mapping a table.
type Extraction struct {
	Records []Record
	// Skipped counts rows missing a required field.
	Skipped int
	Total   int
}

// Extract maps every row of t. Rows missing any required field are counted
// and dropped; row order is preserved.
func (m *FieldMap) Extract(t *Table) *Extraction {
	out := &Extraction{Total: len(t.Rows)}
	for _, row := range t.Rows {
		rec := Record{Line: row.Line, Values: make(map[Field]string, len(m.synonyms))}
		for field := range m.synonyms {
			if v, ok := m.Lookup(row, field); ok {
				rec.Values[field] = v
			}
		}
		if !m.hasRequired(rec) {
			out.Skipped++
			continue
		}
		out.Records = append(out.Records, rec)
	}
	return out
}

func (m *FieldMap) hasRequired(rec Record) bool {
	for _, f := range m.required {
		if rec.Values[f] == "" {
			return false
		}
	}
	return true
}
