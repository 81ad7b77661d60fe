package einvoice

// InvoiceLine is a single billable line of an electronic invoice. Lines
// whose unit price or quantity is zero are administrative noise in the
// source format and are dropped during parsing.
type InvoiceLine struct {
	LineNumber    int     `json:"line_number"`
	Description   string  `json:"description"`
	Quantity      float64 `json:"quantity"`
	UnitOfMeasure string  `json:"unit_of_measure"`
	UnitPrice     float64 `json:"unit_price"`
	TotalPrice    float64 `json:"total_price"`
	VatRate       float64 `json:"vat_rate"`
	ArticleCode   string  `json:"article_code"`
	CodeType      string  `json:"code_type"`
}

// SupplierCandidate holds the supplier data extracted from the invoice
// header. It is built once during parsing and never mutated afterwards.
type SupplierCandidate struct {
	TaxCode     string `json:"tax_code"`
	FiscalCode  string `json:"fiscal_code"`
	Name        string `json:"name"`
	Address     string `json:"address"`
	CivicNumber string `json:"civic_number"`
	PostalCode  string `json:"postal_code"`
	City        string `json:"city"`
	Province    string `json:"province"`
	Country     string `json:"country"`
	Phone       string `json:"phone"`
	TaxCountry  string `json:"tax_country"`
}

// ParsedInvoice is the structured result of parsing one electronic-invoice
// XML file. FileID is the source filename with its .xml suffix stripped.
type ParsedInvoice struct {
	FileID        string            `json:"file_id"`
	InvoiceNumber string            `json:"invoice_number"`
	InvoiceDate   string            `json:"invoice_date"`
	TotalAmount   float64           `json:"total_amount"`
	Supplier      SupplierCandidate `json:"supplier"`
	Lines         []InvoiceLine     `json:"lines"`
}
