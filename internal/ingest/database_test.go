package ingest

import (
	"fmt"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/mfresc/fattura-ingest/internal/einvoice"
)

// fixedIDGenerator returns sequential deterministic IDs
type fixedIDGenerator struct {
	next int
}

func (g *fixedIDGenerator) Generate() string {
	g.next++
	return fmt.Sprintf("id-%d", g.next)
}

// fixedTimeSource returns a fixed time
type fixedTimeSource struct {
	now time.Time
}

func (t *fixedTimeSource) Now() time.Time { return t.now }

func awaitDone(done <-chan error) error {
	select {
	case err := <-done:
		return err
	case <-time.After(time.Second):
		return fmt.Errorf("completion signal never arrived")
	}
}

var _ = Describe("BoltDB", func() {
	var (
		db        *BoltDB
		candidate einvoice.SupplierCandidate
	)

	BeforeEach(func() {
		tmpDir := GinkgoT().TempDir()
		var err error
		db, err = NewBoltDBWithDeps(
			filepath.Join(tmpDir, "test.db"),
			&fixedIDGenerator{},
			&fixedTimeSource{now: time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)},
		)
		Expect(err).NotTo(HaveOccurred())

		candidate = einvoice.SupplierCandidate{
			TaxCode:    "01234567890",
			Name:       "Molino Rossi SRL",
			City:       "Verona",
			Country:    "Italy",
			TaxCountry: "IT",
		}
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("FindByTaxCode", func() {
		When("the supplier does not exist", func() {
			It("reports not found without an error", func() {
				id, found, err := db.FindByTaxCode("project-1", "01234567890")
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(BeFalse())
				Expect(id).To(BeEmpty())
			})
		})

		When("the supplier was created", func() {
			BeforeEach(func() {
				_, done := db.CreateOrAssociate("project-1", candidate)
				Expect(awaitDone(done)).To(Succeed())
			})

			It("resolves the tax code to the supplier ID", func() {
				id, found, err := db.FindByTaxCode("project-1", "01234567890")
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(BeTrue())
				Expect(id).To(Equal("id-1"))
			})

			It("does not resolve it in another project", func() {
				_, found, err := db.FindByTaxCode("project-2", "01234567890")
				Expect(err).NotTo(HaveOccurred())
				Expect(found).To(BeFalse())
			})
		})
	})

	Describe("CreateOrAssociate", func() {
		It("completes the request signal", func() {
			id, done := db.CreateOrAssociate("project-1", candidate)
			Expect(awaitDone(done)).To(Succeed())
			Expect(id).To(Equal("id-1"))
		})

		It("keeps the existing supplier on a repeated tax code", func() {
			_, done := db.CreateOrAssociate("project-1", candidate)
			Expect(awaitDone(done)).To(Succeed())

			candidate.Name = "Molino Rossi Due"
			_, done = db.CreateOrAssociate("project-1", candidate)
			Expect(awaitDone(done)).To(Succeed())

			supplier, err := db.GetSupplier("project-1", "01234567890")
			Expect(err).NotTo(HaveOccurred())
			Expect(supplier.ID).To(Equal("id-1"))
			Expect(supplier.Name).To(Equal("Molino Rossi SRL"))
		})

		It("stores the candidate fields", func() {
			_, done := db.CreateOrAssociate("project-1", candidate)
			Expect(awaitDone(done)).To(Succeed())

			supplier, err := db.GetSupplier("project-1", "01234567890")
			Expect(err).NotTo(HaveOccurred())
			Expect(supplier.City).To(Equal("Verona"))
			Expect(supplier.Country).To(Equal("Italy"))
			Expect(supplier.CreatedAt).To(Equal(time.Date(2024, 3, 15, 12, 0, 0, 0, time.UTC)))
		})
	})

	Describe("Create and ListKnown", func() {
		var record InvoiceRecord

		BeforeEach(func() {
			record = InvoiceRecord{
				FileID:        "INV-001",
				InvoiceNumber: "FT-100",
				InvoiceDate:   "2024-03-15",
				TotalAmount:   152.50,
				SupplierID:    "id-1",
				Lines: []einvoice.InvoiceLine{
					{LineNumber: 1, Description: "Farina tipo 00", Quantity: 10, UnitPrice: 1.25, TotalPrice: 12.5, ArticleCode: "8001234567890", CodeType: "EAN"},
				},
			}
		})

		It("lists the dedup key of a created invoice", func() {
			Expect(awaitDone(db.Create("project-1", record))).To(Succeed())

			keys, err := db.ListKnown("project-1")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(Equal([]InvoiceKey{{InvoiceNumber: "FT-100", SupplierID: "id-1"}}))
		})

		It("keeps projects separate", func() {
			Expect(awaitDone(db.Create("project-1", record))).To(Succeed())

			keys, err := db.ListKnown("project-2")
			Expect(err).NotTo(HaveOccurred())
			Expect(keys).To(BeEmpty())
		})

		It("round-trips the full invoice record", func() {
			Expect(awaitDone(db.Create("project-1", record))).To(Succeed())

			stored, err := db.GetInvoice("project-1", InvoiceKey{InvoiceNumber: "FT-100", SupplierID: "id-1"})
			Expect(err).NotTo(HaveOccurred())
			Expect(stored.TotalAmount).To(Equal(152.50))
			Expect(stored.Lines).To(HaveLen(1))
			Expect(stored.Lines[0].ArticleCode).To(Equal("8001234567890"))
		})

		It("returns an error for an unknown invoice", func() {
			_, err := db.GetInvoice("project-1", InvoiceKey{InvoiceNumber: "FT-999", SupplierID: "id-1"})
			Expect(err).To(HaveOccurred())
		})
	})
})
