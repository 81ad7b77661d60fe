// Package ingest runs invoice ingestion batches: it drives the XML parser
// and the OCR pipeline over a set of input files, deduplicates against
// already-recorded invoices, resolves or creates suppliers, and persists
// the surviving invoices.
package ingest

import (
	"errors"

	"github.com/mfresc/fattura-ingest/internal/einvoice"
	"github.com/mfresc/fattura-ingest/internal/ocr"
)

// ErrSupplierResolution indicates a supplier could not be resolved or
// created for an invoice.
var ErrSupplierResolution = errors.New("supplier resolution failed")

// ErrPersistence indicates the invoice repository rejected a create
// request or never completed it.
var ErrPersistence = errors.New("invoice persistence failed")

// File is one batch input: a filename and its raw content.
type File struct {
	Name string
	Data []byte
}

// InvoiceKey identifies a recorded invoice for deduplication. The resolved
// supplier ID, not the raw tax code, is part of the key, so an invoice
// from a never-before-seen supplier can never collide.
type InvoiceKey struct {
	InvoiceNumber string `json:"invoice_number"`
	SupplierID    string `json:"supplier_id"`
}

// InvoiceRecord is the persistence request built from a parsed invoice and
// its resolved supplier.
type InvoiceRecord struct {
	FileID        string                 `json:"file_id"`
	InvoiceNumber string                 `json:"invoice_number"`
	InvoiceDate   string                 `json:"invoice_date"`
	TotalAmount   float64                `json:"total_amount"`
	SupplierID    string                 `json:"supplier_id"`
	Lines         []einvoice.InvoiceLine `json:"lines"`
}

// BatchError describes one per-file or per-invoice failure.
type BatchError struct {
	FileName string `json:"file_name"`
	Reason   string `json:"reason"`
}

// BatchReport is the final outcome of one ingestion run. Created,
// SkippedDuplicate and Failed sum to the number of invoices that reached
// reconciliation; ExtractionFailed counts files that never produced one.
type BatchReport struct {
	Created          int          `json:"created"`
	SkippedDuplicate int          `json:"skipped_duplicate"`
	Failed           int          `json:"failed"`
	ExtractionFailed int          `json:"extraction_failed"`
	Errors           []BatchError `json:"errors"`
}

// ProgressFunc observes batch progress. It is invoked after each unit of
// work with a monotonically non-decreasing percentage in [0,100].
type ProgressFunc func(percent int)

// SupplierRepository is the external supplier store. Creation is
// asynchronous; the returned channel delivers exactly one completion
// result scoped to that request.
type SupplierRepository interface {
	// FindByTaxCode resolves a tax code to a supplier ID. found is false
	// when no supplier with that tax code exists.
	FindByTaxCode(projectID, taxCode string) (id string, found bool, err error)
	// CreateOrAssociate creates the supplier, or associates an existing
	// one with the project, and reports completion on the channel.
	CreateOrAssociate(projectID string, candidate einvoice.SupplierCandidate) (id string, done <-chan error)
}

// InvoiceRepository is the external invoice store.
type InvoiceRepository interface {
	// ListKnown returns the dedup keys of every invoice already recorded
	// for the project.
	ListKnown(projectID string) ([]InvoiceKey, error)
	// Create persists an invoice and reports completion on the channel.
	Create(projectID string, record InvoiceRecord) <-chan error
}

// TextExtractor recognizes text in scanned documents. Satisfied by
// ocr.Extractor.
type TextExtractor interface {
	ExtractText(data []byte) (*ocr.Result, error)
}

// TextStore persists the plain-text export artifacts produced for scanned
// documents during extraction.
type TextStore interface {
	// Save stores an artifact and returns its path.
	Save(name string, data []byte) (string, error)
	// Get retrieves an artifact by path.
	Get(path string) ([]byte, error)
	// Delete removes an artifact.
	Delete(path string) error
}
