package einvoice

import (
	"encoding/xml"
	"errors"
	"fmt"
	"regexp"
	"strconv"
	"strings"
)

// ErrMalformedDocument indicates the input could not be parsed as
// electronic-invoice XML or the mandatory supplier element is missing.
var ErrMalformedDocument = errors.New("malformed invoice document")

const (
	defaultCountry    = "Italy"
	defaultTaxCountry = "IT"
	defaultCodeType   = "FOR"

	maxArticleCodeLen = 30
)

// xmlDocument mirrors the subset of the FatturaPA schema the pipeline
// consumes. Unqualified tag names match by local name, so namespaced and
// namespace-free documents both parse.
type xmlDocument struct {
	Header struct {
		Supplier *xmlSupplier `xml:"CedentePrestatore"`
	} `xml:"FatturaElettronicaHeader"`
	Body struct {
		General struct {
			Document struct {
				Number string `xml:"Numero"`
				Date   string `xml:"Data"`
				Total  string `xml:"ImportoTotaleDocumento"`
			} `xml:"DatiGeneraliDocumento"`
		} `xml:"DatiGenerali"`
		Goods struct {
			Lines []xmlLine `xml:"DettaglioLinee"`
		} `xml:"DatiBeniServizi"`
	} `xml:"FatturaElettronicaBody"`
}

type xmlSupplier struct {
	Registry struct {
		VatID struct {
			Country string `xml:"IdPaese"`
			Code    string `xml:"IdCodice"`
		} `xml:"IdFiscaleIVA"`
		FiscalCode string `xml:"CodiceFiscale"`
		Personal   struct {
			Name string `xml:"Denominazione"`
		} `xml:"Anagrafica"`
	} `xml:"DatiAnagrafici"`
	Office struct {
		Address     string `xml:"Indirizzo"`
		CivicNumber string `xml:"NumeroCivico"`
		PostalCode  string `xml:"CAP"`
		City        string `xml:"Comune"`
		Province    string `xml:"Provincia"`
		Country     string `xml:"Nazione"`
	} `xml:"Sede"`
	Contacts struct {
		Phone string `xml:"Telefono"`
	} `xml:"Contatti"`
}

type xmlLine struct {
	Number      string `xml:"NumeroLinea"`
	Description string `xml:"Descrizione"`
	Quantity    string `xml:"Quantita"`
	Unit        string `xml:"UnitaMisura"`
	UnitPrice   string `xml:"PrezzoUnitario"`
	TotalPrice  string `xml:"PrezzoTotale"`
	VatRate     string `xml:"AliquotaIVA"`
	ArticleCode *struct {
		Type  string `xml:"CodiceTipo"`
		Value string `xml:"CodiceValore"`
	} `xml:"CodiceArticolo"`
}

var whitespaceRun = regexp.MustCompile(`\s+`)

// Parse converts electronic-invoice XML into a ParsedInvoice. It is a pure
// transformation with no I/O. It returns ErrMalformedDocument when the text
// is not valid XML or when the supplier element is absent.
func Parse(xmlText string, fileName string) (*ParsedInvoice, error) {
	var doc xmlDocument
	if err := xml.Unmarshal([]byte(xmlText), &doc); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedDocument, err)
	}
	if doc.Header.Supplier == nil {
		return nil, fmt.Errorf("%w: missing CedentePrestatore element", ErrMalformedDocument)
	}

	inv := &ParsedInvoice{
		FileID:        strings.TrimSuffix(fileName, ".xml"),
		InvoiceNumber: strings.TrimSpace(doc.Body.General.Document.Number),
		InvoiceDate:   strings.TrimSpace(doc.Body.General.Document.Date),
		TotalAmount:   parseDecimal(doc.Body.General.Document.Total),
		Supplier:      buildSupplier(doc.Header.Supplier),
	}

	for _, line := range doc.Body.Goods.Lines {
		parsed := buildLine(line)
		// Zero-priced or zero-quantity lines carry no billable content.
		if parsed.UnitPrice == 0 || parsed.Quantity == 0 {
			continue
		}
		inv.Lines = append(inv.Lines, parsed)
	}

	return inv, nil
}

func buildSupplier(s *xmlSupplier) SupplierCandidate {
	candidate := SupplierCandidate{
		TaxCode:     strings.TrimSpace(s.Registry.VatID.Code),
		FiscalCode:  strings.TrimSpace(s.Registry.FiscalCode),
		Name:        strings.TrimSpace(s.Registry.Personal.Name),
		Address:     strings.TrimSpace(s.Office.Address),
		CivicNumber: strings.TrimSpace(s.Office.CivicNumber),
		PostalCode:  strings.TrimSpace(s.Office.PostalCode),
		City:        strings.TrimSpace(s.Office.City),
		Province:    strings.TrimSpace(s.Office.Province),
		Country:     strings.TrimSpace(s.Office.Country),
		Phone:       strings.TrimSpace(s.Contacts.Phone),
		TaxCountry:  strings.TrimSpace(s.Registry.VatID.Country),
	}
	if candidate.Country == "" {
		candidate.Country = defaultCountry
	}
	if candidate.TaxCountry == "" {
		candidate.TaxCountry = defaultTaxCountry
	}
	return candidate
}

func buildLine(l xmlLine) InvoiceLine {
	line := InvoiceLine{
		LineNumber:    int(parseDecimal(l.Number)),
		Description:   strings.TrimSpace(l.Description),
		Quantity:      parseDecimal(l.Quantity),
		UnitOfMeasure: strings.TrimSpace(l.Unit),
		UnitPrice:     parseDecimal(l.UnitPrice),
		TotalPrice:    parseDecimal(l.TotalPrice),
		VatRate:       parseDecimal(l.VatRate),
	}

	if l.ArticleCode != nil {
		line.ArticleCode = strings.TrimSpace(l.ArticleCode.Value)
		line.CodeType = strings.TrimSpace(l.ArticleCode.Type)
		if line.CodeType == "" {
			line.CodeType = defaultCodeType
		}
		return line
	}

	// No article code in the source document: synthesize a stable catalog
	// key from the line description.
	line.ArticleCode = synthesizeArticleCode(line.Description)
	line.CodeType = defaultCodeType
	return line
}

// synthesizeArticleCode normalizes a line description into a catalog key:
// lower-cased, trimmed, whitespace runs collapsed to single underscores,
// truncated to 30 characters. Truncation counts runes, not bytes;
// descriptions with accented characters must not yield broken UTF-8.
func synthesizeArticleCode(description string) string {
	code := strings.ToLower(strings.TrimSpace(description))
	code = whitespaceRun.ReplaceAllString(code, "_")
	if runes := []rune(code); len(runes) > maxArticleCodeLen {
		code = string(runes[:maxArticleCodeLen])
	}
	return code
}

// parseDecimal parses a decimal field, defaulting to 0 when the value is
// absent or unparseable.
func parseDecimal(s string) float64 {
	s = strings.TrimSpace(s)
	if s == "" {
		return 0
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0
	}
	return v
}
