package inventory

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("BoltDB", func() {
	var (
		tmpDir string
		dbPath string
		db     *BoltDB
	)

	BeforeEach(func() {
		tmpDir = GinkgoT().TempDir()
		dbPath = filepath.Join(tmpDir, "test.db")
		var err error
		db, err = NewBoltDB(dbPath)
		Expect(err).NotTo(HaveOccurred())
	})

	AfterEach(func() {
		if db != nil {
			db.Close()
		}
	})

	Describe("GetLookup", func() {
		var (
			code   string
			lookup *CachedLookup
			err    error
		)

		JustBeforeEach(func() {
			lookup, err = db.GetLookup(code)
		})

		When("the barcode was cached", func() {
			BeforeEach(func() {
				code = "5012345678900"
				Expect(db.SaveLookup(&CachedLookup{
					Barcode:     "5012345678900",
					ProductName: "Oat Milk",
					Source:      "openfoodfacts",
					CachedAt:    time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
				})).To(Succeed())
			})

			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should return the cached product", func() {
				Expect(lookup.ProductName).To(Equal("Oat Milk"))
				Expect(lookup.Product().SourceLabel()).To(Equal("Open Food Facts"))
			})

			It("should keep the cache time", func() {
				Expect(lookup.CachedAt.Equal(time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC))).To(BeTrue())
			})
		})

		When("the barcode was never cached", func() {
			BeforeEach(func() {
				code = "00000000"
			})

			It("returns ErrNotFound", func() {
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
				Expect(lookup).To(BeNil())
			})
		})
	})

	Describe("session", func() {
		When("nobody has logged in", func() {
			It("should report no token", func() {
				token, err := db.Token()
				Expect(err).NotTo(HaveOccurred())
				Expect(token).To(BeEmpty())
			})

			It("should report no session", func() {
				_, err := db.Session()
				Expect(errors.Is(err, ErrNotFound)).To(BeTrue())
			})
		})

		When("a session was saved", func() {
			BeforeEach(func() {
				Expect(db.SaveToken(&Session{Token: "tok", Username: "ana"})).To(Succeed())
			})

			It("should return the token", func() {
				Expect(db.Token()).To(Equal("tok"))
			})

			It("should survive reopening the database", func() {
				Expect(db.Close()).To(Succeed())
				var err error
				db, err = NewBoltDB(dbPath)
				Expect(err).NotTo(HaveOccurred())
				session, err := db.Session()
				Expect(err).NotTo(HaveOccurred())
				Expect(session.Username).To(Equal("ana"))
			})

			It("should forget it on ClearToken", func() {
				Expect(db.ClearToken()).To(Succeed())
				Expect(db.Token()).To(BeEmpty())
			})
		})
	})
})
