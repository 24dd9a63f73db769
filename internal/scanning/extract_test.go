package scanning

import (
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"github.com/zombor/expiryguard/internal/api"
)

var _ = Describe("ExtractFromText", func() {
	DescribeTable("expiry dates",
		func(text, expected string) {
			Expect(ExtractFromText(text).ExpiryDate).To(Equal(expected))
		},
		Entry("labelled day/month/year", "Milk\nUSE BY: 12/06/2024", "12/06/2024"),
		Entry("bare date", "Yoghurt 05-07-2024 L123", "05/07/2024"),
		Entry("two digit year", "EXP 12/06/24", "12/06/2024"),
		Entry("month first when the day cannot be a month", "12-31-2024", "31/12/2024"),
		Entry("month and year", "EXP 06/2025", "30/06/2025"),
		Entry("month and short year in a leap year", "EXP 02.28", "29/02/2028"),
		Entry("year only", "Best before end 2026", "31/12/2026"),
		Entry("skips impossible dates", "31/02/2024 15/03/2024", "15/03/2024"),
		Entry("fullwidth digits", "ＥＸＰ １２/０６/２０２４", "12/06/2024"),
		Entry("nothing that looks like a date", "Hand cream\nBATCH 1234", ""),
	)

	DescribeTable("best before months",
		func(text string, expected int) {
			Expect(ExtractFromText(text).BestBeforeMonths).To(Equal(api.Months(expected)))
		},
		Entry("best before N months", "Best Before 12 months", 12),
		Entry("BBE shorthand", "BBE 18M", 18),
		Entry("months first", "24 months best before", 24),
		Entry("use within", "Use within 6 months of opening", 6),
		Entry("a date is not a period", "Best before 12/06/2024", 0),
	)

	DescribeTable("product name",
		func(text, expected string) {
			Expect(ExtractFromText(text).ProductName).To(Equal(expected))
		},
		Entry("first plain line", "Semi Skimmed Milk\nUSE BY 12/06/2024", "Semi Skimmed Milk"),
		Entry("skips dates, numbers and label words", "EXP 12/06/2024\n123456\nab\nOat Drink", "Oat Drink"),
		Entry("skips very long lines", "This line is far too long to be the name of a product printed on a pack\nCream", "Cream"),
		Entry("no candidate", "EXP 12/06/2024\n42", ""),
	)

	It("should keep the normalised text", func() {
		Expect(ExtractFromText("Milk\r\nEXP 12/06/2024").Text).To(Equal("Milk\nEXP 12/06/2024"))
	})
})
