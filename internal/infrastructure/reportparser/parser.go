// Package reportparser turns delimiter-separated vendor report documents into
// rows keyed by normalized column names, and maps those columns onto logical
// fields through declarative synonym tables.
package reportparser

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"unicode"
	"unicode/utf8"

	"golang.org/x/text/cases"
)

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// Parser parses tabular report documents.
type Parser struct {
	delimiter  rune
	lazyQuotes bool
}

// Option is a functional option for Parser configuration
type Option func(*Parser)

// WithDelimiter sets the field delimiter (default is tab)
func WithDelimiter(d rune) Option {
	return func(p *Parser) {
		p.delimiter = d
	}
}

// WithLazyQuotes toggles tolerant quote handling for comma-delimited input
// (default on). Tab-delimited input never interprets quotes.
func WithLazyQuotes(lazy bool) Option {
	return func(p *Parser) {
		p.lazyQuotes = lazy
	}
}

// New creates a Parser.
func New(opts ...Option) *Parser {
	p := &Parser{
		delimiter:  '\t',
		lazyQuotes: true,
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Row is one data line. Values are keyed by normalized column name; Columns
// keeps the header order.
type Row struct {
	Line    int
	Values  map[string]string
	Columns []string
}

// Get returns the value of a column. name is normalized before lookup.
func (r Row) Get(name string) (string, bool) {
	v, ok := r.Values[NormalizeHeader(name)]
	return v, ok
}

// IsEmpty returns true if the row has no non-empty values
func (r Row) IsEmpty() bool {
	for _, v := range r.Values {
		if v != "" {
			return false
		}
	}
	return true
}

// Table is a parsed document.
type Table struct {
	Headers []string
	Rows    []Row
}

// Parse parses raw document bytes. An empty document yields an empty table.
func (p *Parser) Parse(raw []byte) (*Table, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)
	if len(bytes.TrimSpace(raw)) == 0 {
		return &Table{}, nil
	}
	if !utf8.Valid(raw) {
		return nil, ErrInvalidEncoding
	}

	reader := p.records(raw)

	header, _, err := reader.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrMissingHeader
	}
	if err != nil {
		return nil, fmt.Errorf("reportparser: read header: %w", err)
	}

	table := &Table{Headers: make([]string, len(header))}
	for i, h := range header {
		table.Headers[i] = NormalizeHeader(strings.TrimSuffix(h, "\r"))
	}

	for {
		record, line, err := reader.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("reportparser: read row: %w", err)
		}

		row := Row{
			Line:    line,
			Values:  make(map[string]string, len(table.Headers)),
			Columns: table.Headers,
		}
		for i, col := range table.Headers {
			if col == "" {
				continue
			}
			value := ""
			if i < len(record) {
				value = strings.TrimSpace(strings.TrimSuffix(record[i], "\r"))
			}
			// First occurrence of a duplicated column wins.
			if _, seen := row.Values[col]; !seen {
				row.Values[col] = value
			}
		}
		if row.IsEmpty() {
			continue
		}
		table.Rows = append(table.Rows, row)
	}

	return table, nil
}

// recordReader yields one split line at a time with its 1-based line number.
type recordReader interface {
	Read() (record []string, line int, err error)
}

// records picks the line splitter. Vendor flat files are tab-separated and
// carry literal quotes inside titles, so only comma input goes through
// encoding/csv.
func (p *Parser) records(raw []byte) recordReader {
	if p.delimiter == ',' {
		reader := csv.NewReader(bytes.NewReader(raw))
		reader.Comma = p.delimiter
		reader.LazyQuotes = p.lazyQuotes
		reader.FieldsPerRecord = -1
		return &csvRecords{reader: reader}
	}
	scanner := bufio.NewScanner(bytes.NewReader(raw))
	scanner.Buffer(make([]byte, 0, 64*1024), maxLineBytes)
	return &splitRecords{scanner: scanner, sep: string(p.delimiter)}
}

const maxLineBytes = 16 << 20

type csvRecords struct {
	reader *csv.Reader
}

func (c *csvRecords) Read() ([]string, int, error) {
	record, err := c.reader.Read()
	if err != nil {
		return nil, 0, err
	}
	line, _ := c.reader.FieldPos(0)
	return record, line, nil
}

type splitRecords struct {
	scanner *bufio.Scanner
	sep     string
	line    int
}

// Read skips blank lines, matching encoding/csv.
func (s *splitRecords) Read() ([]string, int, error) {
	for s.scanner.Scan() {
		s.line++
		text := strings.TrimSuffix(s.scanner.Text(), "\r")
		if text == "" {
			continue
		}
		return strings.Split(text, s.sep), s.line, nil
	}
	if err := s.scanner.Err(); err != nil {
		return nil, 0, err
	}
	return nil, 0, io.EOF
}

// Parse parses raw with the default tab-delimited parser.
func Parse(raw []byte) (*Table, error) {
	return New().Parse(raw)
}

// NormalizeHeader case-folds a column name and collapses every run of
// non-alphanumeric characters into a single dash, so "Amazon Order ID",
// "amazon_order_id" and "amazon-order-id" all become "amazon-order-id".
func NormalizeHeader(name string) string {
	folded := cases.Fold().String(strings.TrimSpace(name))
	var b strings.Builder
	b.Grow(len(folded))
	pendingSep := false
	for _, r := range folded {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			if pendingSep && b.Len() > 0 {
				b.WriteByte('-')
			}
			pendingSep = false
			b.WriteRune(r)
			continue
		}
		pendingSep = true
	}
	return b.String()
}
