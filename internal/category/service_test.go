package category

import (
	"errors"
	"path/filepath"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/pantry-tracker/internal/boltdb"
)

type mockIDGenerator struct {
	id string
}

func (m *mockIDGenerator) Generate() string {
	return m.id
}

type mockTimeSource struct {
	now time.Time
}

func (m *mockTimeSource) Now() time.Time {
	return m.now
}

var _ = Describe("Service", func() {
	var (
		db      *BoltDB
		timeSrc *mockTimeSource
		service *Service
	)

	BeforeEach(func() {
		bolt, err := boltdb.Open(filepath.Join(GinkgoT().TempDir(), "test.db"))
		Expect(err).NotTo(HaveOccurred())
		DeferCleanup(bolt.Close)

		db, err = NewBoltDB(bolt)
		Expect(err).NotTo(HaveOccurred())

		timeSrc = &mockTimeSource{now: time.Date(2024, 3, 20, 10, 0, 0, 0, time.UTC)}
		service = NewServiceWithDeps(db, &mockIDGenerator{id: "generated-id"}, timeSrc)
	})

	Describe("UpsertCategory", func() {
		var (
			input Category
			saved *Category
			err   error
		)

		BeforeEach(func() {
			input = Category{ID: "dairy", Name: " Nabiał ", Rules: []Rule{{Pattern: "mlek"}}}
		})

		JustBeforeEach(func() {
			saved, err = service.UpsertCategory(input)
		})

		When("the category is valid", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should default the rule mode to substring", func() {
				Expect(saved.Rules[0].Mode).To(Equal(MatchSubstring))
			})

			It("should trim the name", func() {
				Expect(saved.Name).To(Equal("Nabiał"))
			})

			It("should persist the category", func() {
				stored, getErr := db.GetCategory("dairy")
				Expect(getErr).NotTo(HaveOccurred())
				Expect(stored.UpdatedAt).To(BeTemporally("==", timeSrc.now))
			})
		})

		When("the ID is missing", func() {
			BeforeEach(func() {
				input.ID = ""
			})

			It("should generate one", func() {
				Expect(saved.ID).To(Equal("generated-id"))
			})
		})

		When("a rule pattern is empty", func() {
			BeforeEach(func() {
				input.Rules = []Rule{{Pattern: "", Mode: MatchExact}}
			})

			It("returns a ConfigurationError", func() {
				var cfgErr *ConfigurationError
				Expect(errors.As(err, &cfgErr)).To(BeTrue())
			})

			It("should not persist the category", func() {
				_, getErr := db.GetCategory("dairy")
				Expect(getErr).To(MatchError(ErrNotFound))
			})
		})

		When("the category already exists", func() {
			var created time.Time

			BeforeEach(func() {
				created = timeSrc.now.Add(-48 * time.Hour)
				Expect(db.SaveCategory(&Category{ID: "dairy", Name: "Old", CreatedAt: created, UpdatedAt: created})).To(Succeed())
			})

			It("should keep the creation time", func() {
				Expect(saved.CreatedAt).To(BeTemporally("==", created))
			})

			It("should replace the rules", func() {
				stored, _ := db.GetCategory("dairy")
				Expect(stored.Name).To(Equal("Nabiał"))
			})
		})
	})

	Describe("Engine", func() {
		It("should reflect upserts immediately", func() {
			engine, err := service.Engine()
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Classify("Mleko")).To(Equal(Unassigned))

			_, err = service.UpsertCategory(Category{ID: "dairy", Name: "Dairy", Rules: []Rule{{Pattern: "mlek"}}})
			Expect(err).NotTo(HaveOccurred())

			engine, err = service.Engine()
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Classify("Mleko")).To(Equal("dairy"))
		})

		It("should forget deleted categories", func() {
			_, err := service.UpsertCategory(Category{ID: "dairy", Name: "Dairy", Rules: []Rule{{Pattern: "mlek"}}})
			Expect(err).NotTo(HaveOccurred())
			Expect(service.DeleteCategory("dairy")).To(Succeed())

			engine, err := service.Engine()
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Classify("Mleko")).To(Equal(Unassigned))
		})
	})

	Describe("DeleteCategory", func() {
		When("the category does not exist", func() {
			It("returns ErrNotFound", func() {
				Expect(service.DeleteCategory("missing")).To(MatchError(ErrNotFound))
			})
		})
	})

	Describe("ShelfLife", func() {
		BeforeEach(func() {
			_, err := service.UpsertCategory(Category{ID: "bread", Name: "Bread", ShelfLifeDays: 3})
			Expect(err).NotTo(HaveOccurred())
		})

		It("should return the configured duration", func() {
			d, ok := service.ShelfLife("bread")
			Expect(ok).To(BeTrue())
			Expect(d).To(Equal(72 * time.Hour))
		})

		It("should report unknown categories", func() {
			_, ok := service.ShelfLife("missing")
			Expect(ok).To(BeFalse())
		})
	})

	Describe("SeedDefaults", func() {
		It("should seed an empty database", func() {
			n, err := service.SeedDefaults()
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(Equal(len(Defaults())))

			engine, err := service.Engine()
			Expect(err).NotTo(HaveOccurred())
			Expect(engine.Classify("Mleko")).To(Equal("dairy"))
			Expect(engine.Classify("Mrożone warzywa")).To(Equal("frozen"))
		})

		It("should leave an edited database alone", func() {
			_, err := service.UpsertCategory(Category{ID: "custom", Name: "Custom"})
			Expect(err).NotTo(HaveOccurred())

			n, err := service.SeedDefaults()
			Expect(err).NotTo(HaveOccurred())
			Expect(n).To(BeZero())
		})
	})

	Describe("ListCategories", func() {
		It("should return categories in evaluation order", func() {
			_, err := service.UpsertCategory(Category{ID: "b", Name: "B", Priority: 2})
			Expect(err).NotTo(HaveOccurred())
			_, err = service.UpsertCategory(Category{ID: "a", Name: "A", Priority: 1})
			Expect(err).NotTo(HaveOccurred())

			categories, err := service.ListCategories()
			Expect(err).NotTo(HaveOccurred())
			Expect(categories).To(HaveLen(2))
			Expect(categories[0].ID).To(Equal("a"))
		})
	})
})
