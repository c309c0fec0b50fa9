package entity

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// DocumentKind is the detected container type of a document.
type DocumentKind string

const (
	KindPDF     DocumentKind = "pdf"
	KindImage   DocumentKind = "image"
	KindUnknown DocumentKind = "unknown"
)

// RawDocument is the byte source of one pipeline invocation.
type RawDocument struct {
	Data     []byte
	Kind     DocumentKind
	Filename string // original or derived file name; its extension drives HEIC handling
	Origin   string // URL, upload name or local path
	MIMEType string
}

// Size returns the document length in bytes.
func (d *RawDocument) Size() int64 { return int64(len(d.Data)) }

// ExtractedText holds page texts in page order. Text is the flattened form.
type ExtractedText struct {
	Pages    []string
	Text     string
	Method   string // "pdf-ocr" | "image-ocr"
	Duration time.Duration
	Warnings []string
}

// PageSeparator joins page texts; downstream regexes depend on it.
const PageSeparator = "\n\n"

// NewExtractedText flattens pages in order.
func NewExtractedText(pages []string) ExtractedText {
	return ExtractedText{Pages: pages, Text: strings.Join(pages, PageSeparator)}
}

// IsEmpty reports whether no usable text was produced.
func (t ExtractedText) IsEmpty() bool {
	return strings.TrimSpace(t.Text) == ""
}

// Document is the stored record of a processed document.
type Document struct {
	ID        uuid.UUID    `json:"id"`
	Origin    string       `json:"origin"`
	Filename  string       `json:"filename"`
	Kind      DocumentKind `json:"kind"`
	SizeBytes int64        `json:"size_bytes"`
	Status    string       `json:"status"`
	Method    string       `json:"method,omitempty"`
	Strategy  string       `json:"strategy,omitempty"`
	Error     string       `json:"error,omitempty"`
	CreatedAt time.Time    `json:"created_at"`
	UpdatedAt time.Time    `json:"updated_at"`
}
