package figures

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"filing_ingest/pkg/core/config"
	"filing_ingest/pkg/models"
)

const appleMDA = `Item 7. Management's Discussion and Analysis of Financial Condition and Results of Operations
Net Sales by Category
The following table shows net sales by category for 2022, 2021 and 2020 (dollars in millions):
2022 Change 2021 Change 2020
iPhone $ 205,489 7 % $ 191,973 39 % $ 137,781
Mac 40,177 14 % 35,190 23 % 28,622
Services 78,129 14 % 68,425 27 % 53,768
Total net sales $ 394,328 8 % $ 365,817 33 % $ 274,515
iPhone net sales increased during 2022 compared to 2021 due primarily to higher net sales from the Company's new iPhone models.`

func productFact(t *testing.T, facts []models.RevenueFact) models.RevenueFact {
	t.Helper()
	for _, f := range facts {
		if f.BreakdownType == models.BreakdownProduct {
			return f
		}
	}
	t.Fatalf("no product fact in %+v", facts)
	return models.RevenueFact{}
}

func TestExtract_PairsCategoriesNearAnchor(t *testing.T) {
	text := "Net sales by category\n" +
		"iPhone net sales were $209,586 for the year.\n" +
		"Services net sales were $109,158 for the year."

	facts := NewExtractor(nil, 0).Extract("AAPL", 2025, text)
	fact := productFact(t, facts)

	assert.Equal(t, "AAPL", fact.Ticker)
	assert.Equal(t, 2025, fact.FiscalYear)
	assert.Equal(t, "net sales by category", fact.Anchor)
	require.Len(t, fact.Categories, 2)
	assert.Equal(t, 209586.0, fact.Categories["iPhone"].Amount)
	assert.Equal(t, 109158.0, fact.Categories["Services"].Amount)
}

func TestExtract_NoAnchorYieldsNothing(t *testing.T) {
	text := "iPhone net sales were $209,586.\nServices net sales were $109,158."
	assert.Empty(t, NewExtractor(nil, 0).Extract("AAPL", 2025, text))
	assert.Empty(t, NewExtractor(nil, 0).Extract("AAPL", 2025, ""))
}

func TestExtract_AnchorWithoutAmountsYieldsNothing(t *testing.T) {
	text := "Net sales by category\niPhone and Services both performed well this year."
	assert.Empty(t, NewExtractor(nil, 0).Extract("AAPL", 2025, text))
}

func TestExtract_TableWithChangeColumnAndTotal(t *testing.T) {
	fact := productFact(t, NewExtractor(nil, 0).Extract("AAPL", 2022, appleMDA))

	assert.Equal(t, "millions", fact.Unit)
	require.Len(t, fact.Categories, 3)

	iphone := fact.Categories["iPhone"]
	assert.Equal(t, 205489.0, iphone.Amount)
	require.NotNil(t, iphone.GrowthRate)
	assert.Equal(t, 7.0, *iphone.GrowthRate)
	require.NotNil(t, iphone.ShareOfTotal)
	assert.InDelta(t, 205489.0/394328.0, *iphone.ShareOfTotal, 1e-9)

	mac := fact.Categories["Mac"]
	assert.Equal(t, 40177.0, mac.Amount)
	require.NotNil(t, mac.GrowthRate)
	assert.Equal(t, 14.0, *mac.GrowthRate)
}

func TestExtract_NegativeChangeInParentheses(t *testing.T) {
	text := "Net sales by category (in millions)\n" +
		"2023 Change 2022\n" +
		"iPhone $ 200,583 (2)% $ 205,489\n" +
		"Services 85,200 9 % 78,129"

	fact := productFact(t, NewExtractor(nil, 0).Extract("AAPL", 2023, text))
	require.NotNil(t, fact.Categories["iPhone"].GrowthRate)
	assert.Equal(t, -2.0, *fact.Categories["iPhone"].GrowthRate)
	assert.Equal(t, 9.0, *fact.Categories["Services"].GrowthRate)

	// No total row: shares are taken over the matched categories.
	sum := 200583.0 + 85200.0
	assert.InDelta(t, 85200.0/sum, *fact.Categories["Services"].ShareOfTotal, 1e-9)
}

func TestExtract_ProseGrowth(t *testing.T) {
	text := "Segment information\n" +
		"Intelligent Cloud revenue was $105.4 billion and increased 20% driven by Azure.\n" +
		"More Personal Computing revenue was $62.0 billion and declined 3% year over year."

	facts := NewExtractor(nil, 0).Extract("MSFT", 2024, text)
	require.Len(t, facts, 1)
	fact := facts[0]
	assert.Equal(t, models.BreakdownSegment, fact.BreakdownType)
	assert.Equal(t, "billions", fact.Unit)

	cloud := fact.Categories["Intelligent Cloud"]
	assert.Equal(t, 105.4, cloud.Amount)
	require.NotNil(t, cloud.GrowthRate)
	assert.Equal(t, 20.0, *cloud.GrowthRate)

	mpc := fact.Categories["More Personal Computing"]
	require.NotNil(t, mpc.GrowthRate)
	assert.Equal(t, -3.0, *mpc.GrowthRate)
}

func TestExtract_AmountOnNextLine(t *testing.T) {
	text := "Revenue by geography\n" +
		"United States\n" +
		"$ 61,858\n" +
		"Other countries\n" +
		"$ 35,832"

	facts := NewExtractor(nil, 0).Extract("NVDA", 2024, text)
	require.Len(t, facts, 1)
	assert.Equal(t, 61858.0, facts[0].Categories["United States"].Amount)
	assert.Equal(t, 35832.0, facts[0].Categories["Other countries"].Amount)
}

func TestExtract_WindowIsBounded(t *testing.T) {
	text := "Net sales by category\nfiller\nfiller\nfiller\niPhone $ 209,586"
	assert.Empty(t, NewExtractor(nil, 2).Extract("AAPL", 2025, text))
	assert.NotEmpty(t, NewExtractor(nil, 4).Extract("AAPL", 2025, text))
}

func TestExtract_IgnoresPercentagesAndYears(t *testing.T) {
	text := "Net sales by category\niPhone grew 15% in 2024"
	assert.Empty(t, NewExtractor(nil, 0).Extract("AAPL", 2024, text))
}

func TestVocabularyFromConfig(t *testing.T) {
	v, err := VocabularyFromConfig(config.VocabularyConfig{
		Anchors:    map[string][]string{"Product": {"revenue by line of business"}},
		Categories: map[string][]string{"product": {"Widgets", "iphone"}},
	})
	require.NoError(t, err)
	assert.Contains(t, v.Anchors[models.BreakdownProduct], "revenue by line of business")
	assert.Contains(t, v.Anchors[models.BreakdownProduct], "net sales by category")
	assert.Contains(t, v.Categories[models.BreakdownProduct], "Widgets")

	count := 0
	for _, c := range v.Categories[models.BreakdownProduct] {
		if c == "iPhone" || c == "iphone" {
			count++
		}
	}
	assert.Equal(t, 1, count, "case-insensitive duplicates are merged")

	replaced, err := VocabularyFromConfig(config.VocabularyConfig{
		Replace:    true,
		Categories: map[string][]string{"segment": {"Widgets"}},
	})
	require.NoError(t, err)
	assert.Empty(t, replaced.Anchors[models.BreakdownProduct])
	assert.Equal(t, []string{"Widgets"}, replaced.Categories[models.BreakdownSegment])

	_, err = VocabularyFromConfig(config.VocabularyConfig{Anchors: map[string][]string{"regions": {"x"}}})
	assert.Error(t, err)
}

func TestParseNumericValue(t *testing.T) {
	assert.Equal(t, 209586.0, parseNumericValue("$209,586"))
	assert.Equal(t, -1234.5, parseNumericValue("(1,234.5)"))
	assert.Equal(t, 0.0, parseNumericValue("n/a"))
}
