// Package export renders documents to PDF with headless Chrome.
package export

import (
	"errors"
	"time"
)

// Document is the content handed to the exporter. The caller resolves
// authorization and version selection first; export only renders.
type Document struct {
	ID        string
	Title     string
	Content   string
	Author    string
	Version   int
	UpdatedAt time.Time
}

// Result contains the export output
type Result struct {
	Data     []byte
	Filename string
	MimeType string
}

// ErrPDFDependencyMissing indicates PDF export runtime dependencies are unavailable.
var ErrPDFDependencyMissing = errors.New("export pdf dependency missing")
