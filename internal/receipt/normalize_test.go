package receipt

import (
	"errors"
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
	"github.com/shopspring/decimal"

	"github.com/zombor/pantry-tracker/internal/scanning"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

var _ = Describe("Normalizer", func() {
	var (
		timeSrc    *mockTimeSource
		normalizer *Normalizer
		input      *scanning.Recognition
		result     *Receipt
		err        error
	)

	BeforeEach(func() {
		timeSrc = &mockTimeSource{now: time.Date(2024, 3, 21, 18, 30, 0, 0, time.UTC)}
		normalizer = NewNormalizerWithDeps(decimal.Zero, "PLN", timeSrc)
	})

	JustBeforeEach(func() {
		result, err = normalizer.Normalize(input)
	})

	Describe("segmented fields", func() {
		var fields *scanning.Fields

		BeforeEach(func() {
			fields = &scanning.Fields{
				StoreName: "  Biedronka ",
				Date:      "2024-03-20",
				Total:     "7,98",
				Items: []scanning.LineItem{
					{Description: "Mleko", Quantity: "2", Unit: "l", UnitPrice: "3,99", Total: "7,98"},
				},
			}
			input = &scanning.Recognition{Fields: fields}
		})

		When("the item is consistent", func() {
			It("should not return an error", func() {
				Expect(err).NotTo(HaveOccurred())
			})

			It("should compute the final price", func() {
				Expect(result.Items[0].FinalPrice.Equal(dec("7.98"))).To(BeTrue())
				Expect(result.Items[0].Flags).To(BeEmpty())
			})

			It("should keep the store name trimmed only", func() {
				Expect(result.StoreName).To(Equal("Biedronka"))
			})

			It("should total the parsed items", func() {
				Expect(result.Total.Equal(dec("7.98"))).To(BeTrue())
				Expect(result.Flags).To(BeEmpty())
			})

			It("should mark the receipt as normalized", func() {
				Expect(result.Status).To(Equal(StatusNormalized))
				Expect(result.PurchaseDate).To(Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)))
				Expect(result.Currency).To(Equal("PLN"))
			})
		})

		When("the stated line total disagrees", func() {
			BeforeEach(func() {
				fields.Items[0].Total = "8,50"
				fields.Total = "8,50"
			})

			It("should use the stated total and flag the item", func() {
				Expect(result.Items[0].FinalPrice.Equal(dec("8.50"))).To(BeTrue())
				Expect(result.Items[0].HasFlag(FlagNeedsReview)).To(BeTrue())
			})

			It("should flag the receipt for review", func() {
				Expect(result.HasFlag(FlagNeedsReview)).To(BeTrue())
				Expect(result.HasFlag(FlagTotalMismatch)).To(BeFalse())
			})
		})

		When("the difference is within tolerance", func() {
			BeforeEach(func() {
				fields.Items[0].Total = "7,99"
			})

			It("should not flag the item", func() {
				Expect(result.Items[0].Flags).To(BeEmpty())
				Expect(result.Items[0].FinalPrice.Equal(dec("7.98"))).To(BeTrue())
			})
		})

		When("the header total disagrees with the items", func() {
			BeforeEach(func() {
				fields.Total = "20,00"
			})

			It("should flag a total mismatch", func() {
				Expect(result.HasFlag(FlagTotalMismatch)).To(BeTrue())
				Expect(result.Total.Equal(dec("7.98"))).To(BeTrue())
			})
		})

		When("a quantity is not numeric", func() {
			BeforeEach(func() {
				fields.Items = append(fields.Items, scanning.LineItem{Description: "Jajka", Quantity: "abc", UnitPrice: "1,20"})
			})

			It("should keep the item as unparsed", func() {
				Expect(result.Items).To(HaveLen(2))
				Expect(result.Items[1].Unparsed()).To(BeTrue())
				Expect(result.Items[1].Raw).To(ContainSubstring("abc"))
			})

			It("should exclude it from the total", func() {
				Expect(result.Total.Equal(dec("7.98"))).To(BeTrue())
			})

			It("should flag the receipt for review", func() {
				Expect(result.HasFlag(FlagNeedsReview)).To(BeTrue())
			})
		})

		When("a quantity is zero", func() {
			BeforeEach(func() {
				fields.Items[0].Quantity = "0"
			})

			It("should keep the item as unparsed", func() {
				Expect(result.Items[0].Unparsed()).To(BeTrue())
			})
		})

		When("the item has a discount", func() {
			BeforeEach(func() {
				fields.Items[0] = scanning.LineItem{Description: "Masło", Quantity: "1", UnitPrice: "5,00", Discount: "-1,00", Total: "4,00"}
				fields.Total = "4,00"
			})

			It("should subtract the absolute discount", func() {
				Expect(result.Items[0].Discount.Equal(dec("1"))).To(BeTrue())
				Expect(result.Items[0].FinalPrice.Equal(dec("4"))).To(BeTrue())
				Expect(result.Items[0].Flags).To(BeEmpty())
			})
		})

		When("only the line total is known", func() {
			BeforeEach(func() {
				fields.Items[0] = scanning.LineItem{Description: "Chleb", Total: "4,50"}
				fields.Total = "4,50"
			})

			It("should default the quantity to one", func() {
				Expect(result.Items[0].Quantity.Equal(dec("1"))).To(BeTrue())
				Expect(result.Items[0].UnitPrice.Equal(dec("4.5"))).To(BeTrue())
				Expect(result.Items[0].FinalPrice.Equal(dec("4.5"))).To(BeTrue())
			})
		})

		When("the date is missing", func() {
			BeforeEach(func() {
				fields.Date = ""
			})

			It("should fall back to today and flag the receipt", func() {
				Expect(result.PurchaseDate).To(Equal(time.Date(2024, 3, 21, 0, 0, 0, 0, time.UTC)))
				Expect(result.HasFlag(FlagNeedsReview)).To(BeTrue())
			})
		})

		When("there are no items", func() {
			BeforeEach(func() {
				fields.Items = nil
			})

			It("returns a ParseError", func() {
				var parseErr *ParseError
				Expect(errors.As(err, &parseErr)).To(BeTrue())
			})
		})
	})

	Describe("raw text", func() {
		BeforeEach(func() {
			input = &scanning.Recognition{Text: `BIEDRONKA
ul. Długa 5, Warszawa
NIP 123-456-78-90
2024-03-20 14:32
PARAGON FISKALNY
Mleko 2 l x 3,99 7,98 C
Chleb 1 x 4,50 4,50 C
Rabat -0,50
Jajka ???
SPRZEDAZ OPODATKOWANA C 11,98
PTU C 5% 0,57
SUMA PLN 11,98
Karta 11,98`}
		})

		It("should not return an error", func() {
			Expect(err).NotTo(HaveOccurred())
		})

		It("should read the header", func() {
			Expect(result.StoreName).To(Equal("BIEDRONKA"))
			Expect(result.StoreAddress).To(Equal("ul. Długa 5, Warszawa"))
			Expect(result.PurchaseDate).To(Equal(time.Date(2024, 3, 20, 0, 0, 0, 0, time.UTC)))
			Expect(result.PaymentMethod).To(Equal("card"))
			Expect(result.Currency).To(Equal("PLN"))
		})

		It("should parse item lines", func() {
			Expect(result.Items).To(HaveLen(3))
			Expect(result.Items[0].Description).To(Equal("Mleko"))
			Expect(result.Items[0].Unit).To(Equal("l"))
			Expect(result.Items[0].Quantity.Equal(dec("2"))).To(BeTrue())
			Expect(result.Items[0].VATRate).To(Equal("C"))
		})

		It("should apply a discount line to the previous item", func() {
			Expect(result.Items[1].Discount.Equal(dec("0.5"))).To(BeTrue())
			Expect(result.Items[1].FinalPrice.Equal(dec("4"))).To(BeTrue())
			Expect(result.Items[1].Flags).To(BeEmpty())
		})

		It("should keep unreadable lines as unparsed items", func() {
			Expect(result.Items[2].Unparsed()).To(BeTrue())
			Expect(result.Items[2].Raw).To(Equal("Jajka ???"))
		})

		It("should match the stated total", func() {
			Expect(result.Total.Equal(dec("11.98"))).To(BeTrue())
			Expect(result.HasFlag(FlagTotalMismatch)).To(BeFalse())
			Expect(result.HasFlag(FlagNeedsReview)).To(BeTrue())
		})

		When("the text is blank", func() {
			BeforeEach(func() {
				input = &scanning.Recognition{Text: "  \n "}
			})

			It("returns a ParseError", func() {
				var parseErr *ParseError
				Expect(errors.As(err, &parseErr)).To(BeTrue())
			})
		})

		When("the text has no item lines", func() {
			BeforeEach(func() {
				input = &scanning.Recognition{Text: "BIEDRONKA\n2024-03-20"}
			})

			It("returns a ParseError", func() {
				var parseErr *ParseError
				Expect(errors.As(err, &parseErr)).To(BeTrue())
			})
		})
	})

	Describe("Recompute", func() {
		It("should restore the item invariant and clear flags", func() {
			item := Item{Description: "Mleko", Quantity: dec("3"), UnitPrice: dec("3.99"), Discount: dec("-0.97"), Flags: []Flag{FlagNeedsReview}}
			Expect(normalizer.Recompute(&item)).To(Succeed())
			Expect(item.FinalPrice.Equal(dec("11"))).To(BeTrue())
			Expect(item.Flags).To(BeEmpty())
		})

		It("should reject a non-positive quantity", func() {
			item := Item{Description: "Mleko", Quantity: decimal.Zero, UnitPrice: dec("3.99")}
			Expect(normalizer.Recompute(&item)).NotTo(Succeed())
		})
	})
})

var _ = Describe("Categorize", func() {
	It("should classify every item", func() {
		r := &Receipt{Items: []Item{{Description: "Mleko"}, {Description: "Śrubki"}}}
		Categorize(r, classifierFunc(func(desc string) string {
			if desc == "Mleko" {
				return "dairy"
			}
			return "unassigned"
		}))
		Expect(r.Items[0].Category).To(Equal("dairy"))
		Expect(r.Items[1].Category).To(Equal("unassigned"))
		Expect(r.Status).To(Equal(StatusCategorized))
	})
})

type classifierFunc func(string) string

func (f classifierFunc) Classify(desc string) string {
	return f(desc)
}
