package ingest

import (
	"fmt"
	"log/slog"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/mfresc/fattura-ingest/internal/einvoice"
	"github.com/mfresc/fattura-ingest/internal/ocr"
)

// DefaultWaitTimeout bounds how long the orchestrator waits for one
// repository completion signal. A stuck backend call fails that item
// instead of blocking the batch indefinitely.
const DefaultWaitTimeout = 30 * time.Second

var scanExtensions = map[string]bool{
	".pdf":  true,
	".png":  true,
	".jpg":  true,
	".jpeg": true,
	".gif":  true,
	".heic": true,
}

// Service orchestrates ingestion batches. A single logical worker
// processes files sequentially, which bounds memory use to one document in
// flight and keeps progress reporting deterministic. It is not safe for
// concurrent batches sharing the same project.
type Service struct {
	suppliers   SupplierRepository
	invoices    InvoiceRepository
	exports     TextStore
	extractor   TextExtractor
	projectID   string
	waitTimeout time.Duration
}

// NewService creates a Service with the default completion-wait timeout.
func NewService(suppliers SupplierRepository, invoices InvoiceRepository, exports TextStore, extractor TextExtractor, projectID string) *Service {
	return NewServiceWithDeps(suppliers, invoices, exports, extractor, projectID, DefaultWaitTimeout)
}

// NewServiceWithDeps creates a Service with a custom wait timeout for
// testing.
func NewServiceWithDeps(suppliers SupplierRepository, invoices InvoiceRepository, exports TextStore, extractor TextExtractor, projectID string, waitTimeout time.Duration) *Service {
	if waitTimeout <= 0 {
		waitTimeout = DefaultWaitTimeout
	}
	return &Service{
		suppliers:   suppliers,
		invoices:    invoices,
		exports:     exports,
		extractor:   extractor,
		projectID:   projectID,
		waitTimeout: waitTimeout,
	}
}

// RunBatch ingests a fixed set of input files and returns the batch
// report. Per-file and per-invoice failures become report entries and
// never abort the batch; onProgress (optional) is invoked after each unit
// of work. Extraction accounts for the first half of the progress range,
// reconciliation for the second.
func (s *Service) RunBatch(files []File, onProgress ProgressFunc) (*BatchReport, error) {
	known, err := s.invoices.ListKnown(s.projectID)
	if err != nil {
		return nil, fmt.Errorf("listing known invoices: %w", err)
	}
	knownSet := make(map[InvoiceKey]struct{}, len(known))
	for _, k := range known {
		knownSet[k] = struct{}{}
	}

	report := &BatchReport{}
	progress := newProgressTracker(onProgress)

	// Phase 1: extraction. XML files become invoice candidates; scanned
	// documents only produce a text export artifact at this stage.
	var parsed []*einvoice.ParsedInvoice
	for i, file := range files {
		switch ext := strings.ToLower(filepath.Ext(file.Name)); {
		case ext == ".xml":
			invoice, err := einvoice.Parse(string(file.Data), file.Name)
			if err != nil {
				s.recordFailure(report, file.Name, err)
				report.ExtractionFailed++
			} else {
				parsed = append(parsed, invoice)
			}
		case scanExtensions[ext]:
			if err := s.extractScan(file); err != nil {
				s.recordFailure(report, file.Name, err)
				report.ExtractionFailed++
			}
		default:
			s.recordFailure(report, file.Name, fmt.Errorf("unsupported file type %q", filepath.Ext(file.Name)))
			report.ExtractionFailed++
		}
		progress.report(50 * (i + 1) / len(files))
	}

	// Phase 2: reconciliation and persistence, in input order. The
	// supplier index is a batch-scoped working copy: repository lookups
	// fill it, creations update it.
	supplierIndex := make(map[string]string)
	for i, invoice := range parsed {
		s.reconcile(invoice, knownSet, supplierIndex, report)
		progress.report(50 + 50*(i+1)/len(parsed))
	}

	progress.report(100)

	slog.Info("Batch complete",
		"created", report.Created,
		"skipped_duplicate", report.SkippedDuplicate,
		"failed", report.Failed,
		"extraction_failed", report.ExtractionFailed,
	)
	return report, nil
}

// extractScan runs the OCR pipeline over one scanned document and saves
// its plain-text export. Scanned documents do not produce invoice
// candidates; only text extraction is exercised for them.
func (s *Service) extractScan(file File) error {
	result, err := s.extractor.ExtractText(file.Data)
	if err != nil {
		return err
	}

	name := exportName(file.Name)
	path, err := s.exports.Save(name, []byte(result.PlainText()))
	if err != nil {
		return fmt.Errorf("saving text export: %w", err)
	}

	slog.Info("Extracted scanned document",
		"file", file.Name,
		"pages", len(result.Pages),
		"confidence", meanConfidence(result.Pages),
		"export", path,
	)
	return nil
}

func (s *Service) reconcile(invoice *einvoice.ParsedInvoice, knownSet map[InvoiceKey]struct{}, supplierIndex map[string]string, report *BatchReport) {
	fileName := invoice.FileID

	supplierID, found, err := s.resolveSupplier(invoice.Supplier.TaxCode, supplierIndex)
	if err != nil {
		report.Failed++
		s.recordFailure(report, fileName, fmt.Errorf("%w: %v", ErrSupplierResolution, err))
		return
	}

	if found {
		key := InvoiceKey{InvoiceNumber: invoice.InvoiceNumber, SupplierID: supplierID}
		if _, dup := knownSet[key]; dup {
			report.SkippedDuplicate++
			slog.Info("Skipping duplicate invoice", "invoice", invoice.InvoiceNumber, "supplier", supplierID)
			return
		}
	} else {
		supplierID, err = s.createSupplier(invoice.Supplier, supplierIndex)
		if err != nil {
			report.Failed++
			s.recordFailure(report, fileName, err)
			return
		}
	}

	record := InvoiceRecord{
		FileID:        invoice.FileID,
		InvoiceNumber: invoice.InvoiceNumber,
		InvoiceDate:   invoice.InvoiceDate,
		TotalAmount:   invoice.TotalAmount,
		SupplierID:    supplierID,
		Lines:         invoice.Lines,
	}
	if err := s.await(s.invoices.Create(s.projectID, record)); err != nil {
		report.Failed++
		s.recordFailure(report, fileName, fmt.Errorf("%w: %v", ErrPersistence, err))
		return
	}

	report.Created++
	knownSet[InvoiceKey{InvoiceNumber: invoice.InvoiceNumber, SupplierID: supplierID}] = struct{}{}
	slog.Info("Created invoice", "invoice", invoice.InvoiceNumber, "supplier", supplierID, "lines", len(record.Lines))
}

// resolveSupplier resolves a tax code against the batch working copy,
// falling back to the repository on a miss.
func (s *Service) resolveSupplier(taxCode string, index map[string]string) (string, bool, error) {
	if id, ok := index[taxCode]; ok {
		return id, true, nil
	}
	id, found, err := s.suppliers.FindByTaxCode(s.projectID, taxCode)
	if err != nil {
		return "", false, err
	}
	if found {
		index[taxCode] = id
	}
	return id, found, nil
}

// createSupplier issues a create-or-associate request and waits for its
// completion signal, then re-resolves the tax code; the repository, not
// the provisional ID, is the authority on what was created.
func (s *Service) createSupplier(candidate einvoice.SupplierCandidate, index map[string]string) (string, error) {
	_, done := s.suppliers.CreateOrAssociate(s.projectID, candidate)
	if err := s.await(done); err != nil {
		return "", fmt.Errorf("%w: %v", ErrSupplierResolution, err)
	}

	id, found, err := s.suppliers.FindByTaxCode(s.projectID, candidate.TaxCode)
	if err != nil {
		return "", fmt.Errorf("%w: %v", ErrSupplierResolution, err)
	}
	if !found {
		return "", fmt.Errorf("%w: supplier creation failed for tax code %q", ErrSupplierResolution, candidate.TaxCode)
	}
	index[candidate.TaxCode] = id
	return id, nil
}

// await waits for one request-scoped completion signal, bounded by the
// configured timeout.
func (s *Service) await(done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(s.waitTimeout):
		return fmt.Errorf("timed out after %s waiting for completion", s.waitTimeout)
	}
}

func (s *Service) recordFailure(report *BatchReport, fileName string, err error) {
	report.Errors = append(report.Errors, BatchError{FileName: fileName, Reason: err.Error()})
	slog.Warn("Ingestion failure", "file", fileName, "error", err)
}

// progressTracker clamps progress to [0,100] and keeps it monotonically
// non-decreasing regardless of rounding in the phase arithmetic.
type progressTracker struct {
	observer ProgressFunc
	last     int
}

func newProgressTracker(observer ProgressFunc) *progressTracker {
	return &progressTracker{observer: observer}
}

func (p *progressTracker) report(percent int) {
	if p.observer == nil {
		return
	}
	if percent < p.last {
		percent = p.last
	}
	if percent > 100 {
		percent = 100
	}
	p.last = percent
	p.observer(percent)
}

var unsafeExportChars = regexp.MustCompile(`[^a-zA-Z0-9\s\-_.]`)
var exportSpaces = regexp.MustCompile(`\s+`)

// exportName derives the text-artifact filename from the source filename:
// extension swapped for .txt, special characters stripped, length capped.
func exportName(fileName string) string {
	base := strings.TrimSuffix(fileName, filepath.Ext(fileName))
	base = unsafeExportChars.ReplaceAllString(base, "")
	base = strings.TrimSpace(exportSpaces.ReplaceAllString(base, " "))
	if len(base) > 50 {
		base = base[:50]
	}
	if base == "" {
		base = "scan"
	}
	return base + ".txt"
}

// meanConfidence averages the per-page engine confidence for logging.
func meanConfidence(pages []ocr.PageResult) float64 {
	if len(pages) == 0 {
		return 0
	}
	var sum float64
	for _, p := range pages {
		sum += p.Confidence
	}
	return sum / float64(len(pages))
}
