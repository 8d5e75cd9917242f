package receipt

import (
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/pantry-tracker/internal/boltdb"
)

func newTestDB() *BoltDB {
	bolt, err := boltdb.Open(filepath.Join(GinkgoT().TempDir(), "test.db"))
	Expect(err).NotTo(HaveOccurred())
	DeferCleanup(bolt.Close)

	db, err := NewBoltDB(bolt)
	Expect(err).NotTo(HaveOccurred())
	return db
}

func testReceipt(id string) *Receipt {
	return &Receipt{
		ID:           id,
		StoreName:    "Biedronka",
		PurchaseDate: time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC),
		Total:        dec("7.98"),
		Items: []Item{
			{Line: 1, Description: "Mleko", Quantity: dec("2"), Unit: "l", UnitPrice: dec("3.99"), FinalPrice: dec("7.98"), Category: "dairy"},
		},
		SourceFile:  id + "_receipt.jpg",
		ContentType: "image/jpeg",
		ContentHash: "hash-" + id,
		Status:      StatusCommitted,
		Version:     1,
	}
}

var _ = Describe("BoltDB", func() {
	var db *BoltDB

	BeforeEach(func() {
		db = newTestDB()
	})

	Describe("SaveReceipt", func() {
		var (
			receipt *Receipt
			err     error
		)

		BeforeEach(func() {
			receipt = testReceipt("test-id")
		})

		JustBeforeEach(func() {
			err = db.SaveReceipt(receipt)
		})

		When("saving succeeds", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should persist the receipt with exact amounts", func() {
				saved, getErr := db.GetReceipt("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(saved.StoreName).To(Equal("Biedronka"))
				Expect(saved.Items[0].FinalPrice.Equal(dec("7.98"))).To(BeTrue())
			})

			It("should index the content hash", func() {
				found, findErr := db.FindByHash("hash-test-id")
				Expect(findErr).NotTo(HaveOccurred())
				Expect(found.ID).To(Equal("test-id"))
			})

			It("should advance the log version", func() {
				snap, snapErr := db.Snapshot()
				Expect(snapErr).NotTo(HaveOccurred())
				Expect(snap.Version).To(Equal(uint64(1)))
				Expect(snap.Receipts).To(HaveLen(1))
			})
		})

		When("a newer version replaces the receipt", func() {
			BeforeEach(func() {
				Expect(db.SaveReceipt(testReceipt("test-id"))).To(Succeed())
				receipt.Version = 2
				receipt.Items[0].Description = "Mleko 2%"
			})

			It("should archive the earlier version", func() {
				versions, vErr := db.Versions("test-id")
				Expect(vErr).NotTo(HaveOccurred())
				Expect(versions).To(HaveLen(2))
				Expect(versions[0].Version).To(Equal(1))
				Expect(versions[0].Items[0].Description).To(Equal("Mleko"))
				Expect(versions[1].Version).To(Equal(2))
			})

			It("should return the latest version", func() {
				current, getErr := db.GetReceipt("test-id")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(current.Items[0].Description).To(Equal("Mleko 2%"))
			})
		})
	})

	Describe("version checks", func() {
		BeforeEach(func() {
			Expect(db.SaveReceipt(testReceipt("r1"))).To(Succeed())
			next := testReceipt("r1")
			next.Version = 2
			next.Items[0].Description = "Mleko 3,2%"
			Expect(db.SaveReceipt(next)).To(Succeed())
		})

		It("should reject a write based on an outdated version", func() {
			stale := testReceipt("r1")
			stale.Version = 2
			stale.Items[0].Description = "Mleko UHT"
			Expect(db.SaveReceipt(stale)).To(MatchError(ErrVersionConflict))

			current, err := db.GetReceipt("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(current.Items[0].Description).To(Equal("Mleko 3,2%"))

			versions, err := db.Versions("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(versions).To(HaveLen(2))
		})

		It("should reject a write that skips a version", func() {
			ahead := testReceipt("r1")
			ahead.Version = 4
			Expect(db.SaveReceipt(ahead)).To(MatchError(ErrVersionConflict))
		})

		It("should accept a replay of the stored record", func() {
			replay := testReceipt("r1")
			replay.Version = 2
			replay.Items[0].Description = "Mleko 3,2%"
			Expect(db.SaveReceipt(replay)).To(Succeed())

			snap, err := db.Snapshot()
			Expect(err).NotTo(HaveOccurred())
			Expect(snap.Version).To(Equal(uint64(2)))
		})
	})

	Describe("GetReceipt", func() {
		When("the receipt does not exist", func() {
			It("returns ErrNotFound", func() {
				_, err := db.GetReceipt("missing")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("FindByHash", func() {
		When("no receipt has the hash", func() {
			It("returns ErrNotFound", func() {
				_, err := db.FindByHash("unknown")
				Expect(err).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ListReceipts", func() {
		It("should return all receipts", func() {
			Expect(db.SaveReceipt(testReceipt("a"))).To(Succeed())
			Expect(db.SaveReceipt(testReceipt("b"))).To(Succeed())

			receipts, err := db.ListReceipts()
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(HaveLen(2))
		})

		It("should return an empty list for an empty database", func() {
			receipts, err := db.ListReceipts()
			Expect(err).NotTo(HaveOccurred())
			Expect(receipts).To(BeEmpty())
		})
	})

	Describe("Versions", func() {
		It("should not mix receipts sharing an ID prefix", func() {
			Expect(db.SaveReceipt(testReceipt("a"))).To(Succeed())
			ab := testReceipt("ab")
			Expect(db.SaveReceipt(ab)).To(Succeed())
			ab.Version = 2
			Expect(db.SaveReceipt(ab)).To(Succeed())

			versions, err := db.Versions("a")
			Expect(err).NotTo(HaveOccurred())
			Expect(versions).To(HaveLen(1))
		})
	})
})
