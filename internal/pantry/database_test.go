package pantry

import (
	"path/filepath"
	"time"

	"github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/pantry-tracker/internal/boltdb"
)

var _ = ginkgo.Describe("BoltDB", func() {
	var (
		db  *BoltDB
		now time.Time
	)

	ginkgo.BeforeEach(func() {
		bolt, err := boltdb.Open(filepath.Join(ginkgo.GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
		ginkgo.DeferCleanup(bolt.Close)

		db, err = NewBoltDB(bolt)
		Expect(err).NotTo(HaveOccurred())
		now = time.Date(2024, 3, 20, 18, 0, 0, 0, time.UTC)
	})

	ginkgo.Describe("Commit", func() {
		var entries []*Entry

		ginkgo.BeforeEach(func() {
			entries = []*Entry{{Key: "mleko|l", Name: "Mleko", Unit: "l", Quantity: dec("2"), Category: "dairy"}}
		})

		ginkgo.It("should write entries and the marker together", func() {
			Expect(db.Commit("r1", entries, now)).To(Succeed())

			done, err := db.IsReconciled("r1")
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())

			e, err := db.GetEntry("mleko|l")
			Expect(err).NotTo(HaveOccurred())
			Expect(e.Quantity.Equal(dec("2"))).To(BeTrue())
		})

		ginkgo.It("should refuse a second commit of the same receipt", func() {
			Expect(db.Commit("r1", entries, now)).To(Succeed())

			entries[0].Quantity = dec("4")
			Expect(db.Commit("r1", entries, now)).To(MatchError(ErrAlreadyReconciled))

			e, _ := db.GetEntry("mleko|l")
			Expect(e.Quantity.Equal(dec("2"))).To(BeTrue())
		})

		ginkgo.It("should mark receipts without pantry items", func() {
			Expect(db.Commit("empty", nil, now)).To(Succeed())
			done, err := db.IsReconciled("empty")
			Expect(err).NotTo(HaveOccurred())
			Expect(done).To(BeTrue())
		})
	})

	ginkgo.Describe("GetEntries", func() {
		ginkgo.It("should return only existing keys", func() {
			Expect(db.SaveEntry(&Entry{Key: "a|szt", Quantity: dec("1")})).To(Succeed())

			found, err := db.GetEntries([]string{"a|szt", "b|szt"})
			Expect(err).NotTo(HaveOccurred())
			Expect(found).To(HaveLen(1))
			Expect(found).To(HaveKey("a|szt"))
		})
	})

	ginkgo.Describe("DeleteEntries", func() {
		ginkgo.It("should remove the entries", func() {
			Expect(db.SaveEntry(&Entry{Key: "a|szt", Quantity: dec("1")})).To(Succeed())
			Expect(db.DeleteEntries([]string{"a|szt"})).To(Succeed())

			entries, err := db.ListEntries()
			Expect(err).NotTo(HaveOccurred())
			Expect(entries).To(BeEmpty())
		})
	})
})
