package reportparser

import "errors"

var (
	// ErrMissingHeader is returned when a non-empty document has no header row
	ErrMissingHeader = errors.New("reportparser: report missing header row")

	// ErrInvalidEncoding is returned when the document is not valid UTF-8
	ErrInvalidEncoding = errors.New("reportparser: report is not valid UTF-8")
)
