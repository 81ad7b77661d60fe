package ingest

import (
	"path/filepath"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("LocalTextStore", func() {
	var (
		tmpDir string
		store  TextStore
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		var err error
		store, err = NewLocalTextStore(filepath.Join(tmpDir, "exports"))
		Expect(err).NotTo(HaveOccurred())
	})

	Describe("Save", func() {
		It("writes the artifact and returns its path", func() {
			path, err := store.Save("scansione.txt", []byte("Fattura cartacea"))
			Expect(err).NotTo(HaveOccurred())
			Expect(path).To(Equal("scansione.txt"))
			Expect(filepath.Join(tmpDir, "exports", "scansione.txt")).To(BeAnExistingFile())
		})
	})

	Describe("Get", func() {
		When("the artifact exists", func() {
			BeforeEach(func() {
				_, err := store.Save("scansione.txt", []byte("Fattura cartacea"))
				Expect(err).NotTo(HaveOccurred())
			})

			It("returns its content", func() {
				data, err := store.Get("scansione.txt")
				Expect(err).NotTo(HaveOccurred())
				Expect(string(data)).To(Equal("Fattura cartacea"))
			})
		})

		When("the artifact does not exist", func() {
			It("returns an error", func() {
				_, err := store.Get("missing.txt")
				Expect(err).To(HaveOccurred())
			})
		})
	})

	Describe("Delete", func() {
		BeforeEach(func() {
			_, err := store.Save("scansione.txt", []byte("Fattura cartacea"))
			Expect(err).NotTo(HaveOccurred())
		})

		It("removes the artifact", func() {
			Expect(store.Delete("scansione.txt")).To(Succeed())
			_, err := store.Get("scansione.txt")
			Expect(err).To(HaveOccurred())
		})
	})
})
