package receipt

import (
	"time"

	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"
)

var _ = Describe("ParseAmount", func() {
	DescribeTable("valid amounts",
		func(input, expected string) {
			d, err := ParseAmount(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(d.String()).To(Equal(expected))
		},
		Entry("comma decimal", "7,98", "7.98"),
		Entry("dot decimal", "3.99", "3.99"),
		Entry("trailing currency", "7,98 zł", "7.98"),
		Entry("leading currency code", "PLN 12,50", "12.5"),
		Entry("negative", "-1,00", "-1"),
		Entry("space grouping", "1 234,56", "1234.56"),
		Entry("comma grouping with dot decimal", "1,234.56", "1234.56"),
		Entry("dot grouping with comma decimal", "1.234,56", "1234.56"),
		Entry("repeated dot grouping", "1.234.567", "1234567"),
		Entry("fractional quantity", "0,456", "0.456"),
		Entry("integer", "2", "2"),
	)

	DescribeTable("invalid amounts",
		func(input string) {
			_, err := ParseAmount(input)
			Expect(err).To(MatchError(ErrInvalidAmount))
		},
		Entry("empty", ""),
		Entry("letters only", "abc"),
		Entry("separators only", ".,"),
		Entry("letters between digits", "12a5"),
	)
})

var _ = Describe("ParseDate", func() {
	DescribeTable("supported layouts",
		func(input string) {
			d, err := ParseDate(input)
			Expect(err).NotTo(HaveOccurred())
			Expect(d).To(Equal(time.Date(2024, 3, 5, 0, 0, 0, 0, time.UTC)))
		},
		Entry("ISO", "2024-03-05"),
		Entry("slashes year first", "2024/03/05"),
		Entry("dotted day first", "05.03.2024"),
		Entry("dotted without padding", "5.3.2024"),
		Entry("dashes day first", "05-03-2024"),
	)

	It("rejects garbage", func() {
		_, err := ParseDate("yesterday")
		Expect(err).To(HaveOccurred())
	})

	It("finds a date inside a line", func() {
		d, ok := findDate("2024-03-05 14:32 nr 1234")
		Expect(ok).To(BeTrue())
		Expect(d.Day()).To(Equal(5))
	})
})
