package ingest

import (
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"go.etcd.io/bbolt"

	"github.com/mfresc/fattura-ingest/internal/einvoice"
)

const (
	supplierBucketName = "suppliers"
	invoiceBucketName  = "invoices"

	keySeparator = "|"
)

// IDGenerator generates unique IDs for created suppliers
type IDGenerator interface {
	Generate() string
}

// TimeSource provides the current time
type TimeSource interface {
	Now() time.Time
}

// defaultIDGenerator generates IDs using UnixNano timestamp
type defaultIDGenerator struct{}

func (g *defaultIDGenerator) Generate() string {
	return fmt.Sprintf("%d", time.Now().UnixNano())
}

// defaultTimeSource provides the current time
type defaultTimeSource struct{}

func (t *defaultTimeSource) Now() time.Time {
	return time.Now()
}

// Supplier is a supplier record as stored in the repository.
type Supplier struct {
	ID string `json:"id"`
	einvoice.SupplierCandidate
	CreatedAt time.Time `json:"created_at"`
}

// StoredInvoice is an invoice record as stored in the repository.
type StoredInvoice struct {
	InvoiceRecord
	CreatedAt time.Time `json:"created_at"`
}

// BoltDB implements SupplierRepository and InvoiceRepository on a local
// BoltDB file. Supplier keys are project|taxCode; invoice keys are
// project|number|supplierID, which makes ListKnown a prefix scan.
// Completion channels are satisfied before the methods return; the
// channel shape exists so the orchestrator works unchanged against
// genuinely asynchronous backends.
type BoltDB struct {
	db          *bbolt.DB
	idGenerator IDGenerator
	timeSource  TimeSource
}

// NewBoltDB opens (or creates) a repository database at path.
func NewBoltDB(path string) (*BoltDB, error) {
	return NewBoltDBWithDeps(path, &defaultIDGenerator{}, &defaultTimeSource{})
}

// NewBoltDBWithDeps opens a repository database with custom dependencies
// for testing.
func NewBoltDBWithDeps(path string, idGen IDGenerator, timeSrc TimeSource) (*BoltDB, error) {
	db, err := bbolt.Open(path, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening boltdb: %w", err)
	}

	err = db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists([]byte(supplierBucketName)); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists([]byte(invoiceBucketName)); err != nil {
			return err
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("creating buckets: %w", err)
	}

	return &BoltDB{db: db, idGenerator: idGen, timeSource: timeSrc}, nil
}

// FindByTaxCode resolves a tax code to a supplier ID within a project.
func (b *BoltDB) FindByTaxCode(projectID, taxCode string) (string, bool, error) {
	var supplier *Supplier
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(supplierBucketName))
		data := bucket.Get(supplierKey(projectID, taxCode))
		if data == nil {
			return nil
		}
		return json.Unmarshal(data, &supplier)
	})
	if err != nil {
		return "", false, err
	}
	if supplier == nil {
		return "", false, nil
	}
	return supplier.ID, true, nil
}

// CreateOrAssociate creates a supplier for the project, or keeps the
// existing one when the tax code is already recorded. The completion
// channel delivers exactly one result.
func (b *BoltDB) CreateOrAssociate(projectID string, candidate einvoice.SupplierCandidate) (string, <-chan error) {
	done := make(chan error, 1)

	supplier := &Supplier{
		ID:                b.idGenerator.Generate(),
		SupplierCandidate: candidate,
		CreatedAt:         b.timeSource.Now(),
	}

	err := b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(supplierBucketName))
		key := supplierKey(projectID, candidate.TaxCode)
		if existing := bucket.Get(key); existing != nil {
			var current Supplier
			if err := json.Unmarshal(existing, &current); err != nil {
				return fmt.Errorf("unmarshaling supplier: %w", err)
			}
			supplier.ID = current.ID
			return nil
		}
		data, err := json.Marshal(supplier)
		if err != nil {
			return fmt.Errorf("marshaling supplier: %w", err)
		}
		return bucket.Put(key, data)
	})

	done <- err
	return supplier.ID, done
}

// ListKnown returns the dedup keys of every invoice recorded for the
// project.
func (b *BoltDB) ListKnown(projectID string) ([]InvoiceKey, error) {
	keys := make([]InvoiceKey, 0)
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		prefix := []byte(projectID + keySeparator)
		cursor := bucket.Cursor()
		for k, v := cursor.Seek(prefix); k != nil && strings.HasPrefix(string(k), string(prefix)); k, v = cursor.Next() {
			var stored StoredInvoice
			if err := json.Unmarshal(v, &stored); err != nil {
				return fmt.Errorf("unmarshaling invoice: %w", err)
			}
			keys = append(keys, InvoiceKey{
				InvoiceNumber: stored.InvoiceNumber,
				SupplierID:    stored.SupplierID,
			})
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return keys, nil
}

// Create persists an invoice for the project. The completion channel
// delivers exactly one result.
func (b *BoltDB) Create(projectID string, record InvoiceRecord) <-chan error {
	done := make(chan error, 1)

	stored := StoredInvoice{
		InvoiceRecord: record,
		CreatedAt:     b.timeSource.Now(),
	}

	done <- b.db.Update(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		data, err := json.Marshal(stored)
		if err != nil {
			return fmt.Errorf("marshaling invoice: %w", err)
		}
		return bucket.Put(invoiceKey(projectID, record.InvoiceNumber, record.SupplierID), data)
	})
	return done
}

// GetSupplier retrieves a full supplier record by project and tax code.
func (b *BoltDB) GetSupplier(projectID, taxCode string) (*Supplier, error) {
	var supplier *Supplier
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(supplierBucketName))
		data := bucket.Get(supplierKey(projectID, taxCode))
		if data == nil {
			return fmt.Errorf("supplier not found: %s", taxCode)
		}
		return json.Unmarshal(data, &supplier)
	})
	if err != nil {
		return nil, err
	}
	return supplier, nil
}

// GetInvoice retrieves a full invoice record by its dedup key.
func (b *BoltDB) GetInvoice(projectID string, key InvoiceKey) (*StoredInvoice, error) {
	var stored *StoredInvoice
	err := b.db.View(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket([]byte(invoiceBucketName))
		data := bucket.Get(invoiceKey(projectID, key.InvoiceNumber, key.SupplierID))
		if data == nil {
			return fmt.Errorf("invoice not found: %s", key.InvoiceNumber)
		}
		return json.Unmarshal(data, &stored)
	})
	if err != nil {
		return nil, err
	}
	return stored, nil
}

// Close closes the database.
func (b *BoltDB) Close() error {
	return b.db.Close()
}

func supplierKey(projectID, taxCode string) []byte {
	return []byte(projectID + keySeparator + taxCode)
}

func invoiceKey(projectID, number, supplierID string) []byte {
	return []byte(projectID + keySeparator + number + keySeparator + supplierID)
}
