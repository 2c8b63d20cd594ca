package classify

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"chartline/internal/domain"
)

func TestClassifyMonthlySalesTrend(t *testing.T) {
	res := Classify("Show monthly sales trends for the last year")

	assert.Equal(t, domain.ShapeLine, res.Shape)
	assert.Equal(t, domain.CategorySales, res.Category)
	assert.Equal(t, 1, res.ShapeScore)
	assert.Equal(t, 1, res.CategoryScore)
	assert.InDelta(t, 0.4, res.Confidence, 1e-9)
	assert.Equal(t, []string{"trend", "sales"}, res.Keywords)
	assert.Equal(t, []domain.DataHint{domain.HintMonthly}, res.Hints)
}

func TestClassifyTieResolvesToEarlierShape(t *testing.T) {
	res := Classify("compare the trend")
	assert.Equal(t, domain.ShapeBar, res.Shape)
	assert.Equal(t, 1, res.ShapeScore)
	assert.True(t, res.HasHint(domain.HintComparison))
}

func TestClassifyUnknownPromptFallsBackToDefaults(t *testing.T) {
	res := Classify("something entirely unrelated")
	assert.Equal(t, domain.ShapeBar, res.Shape)
	assert.Equal(t, domain.CategoryGeneral, res.Category)
	assert.Zero(t, res.Confidence)
	assert.NotNil(t, res.Keywords)
	assert.Empty(t, res.Keywords)
	assert.NotNil(t, res.Hints)
	assert.Empty(t, res.Hints)

	b, err := json.Marshal(res)
	require.NoError(t, err)
	assert.Contains(t, string(b), `"keywords":[]`)
	assert.Contains(t, string(b), `"hints":[]`)
}

func TestClassifyConfidenceIsCapped(t *testing.T) {
	res := Classify("compare ranking histogram by region: sales revenue deal pipeline quota")
	assert.Equal(t, domain.ShapeBar, res.Shape)
	assert.Equal(t, domain.CategorySales, res.Category)
	assert.Equal(t, MaxConfidence, res.Confidence)
}

func TestClassifyCategoryScoring(t *testing.T) {
	cases := []struct {
		prompt   string
		shape    domain.Shape
		category domain.Category
	}{
		{"Breakdown of expenses by cost center", domain.ShapePie, domain.CategoryFinance},
		{"Correlation between churn and customer satisfaction", domain.ShapeScatter, domain.CategoryCustomer},
		{"Headcount by department this quarter", domain.ShapeBar, domain.CategoryHR},
		{"Campaign lead conversion over time", domain.ShapeLine, domain.CategoryMarketing},
		{"Cumulative production volume", domain.ShapeArea, domain.CategoryOperations},
	}
	for _, tc := range cases {
		t.Run(tc.prompt, func(t *testing.T) {
			res := Classify(tc.prompt)
			assert.Equal(t, tc.shape, res.Shape)
			assert.Equal(t, tc.category, res.Category)
		})
	}
}

func TestClassifyHintsAreEmittedOnce(t *testing.T) {
	res := Classify("quarterly revenue growth: grow revenue and increase profit, quarter by quarter")
	assert.Equal(t, []domain.DataHint{domain.HintQuarterly, domain.HintCurrency, domain.HintGrowth}, res.Hints)
}

func TestClassifyIsDeterministic(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		words := rapid.SliceOfN(rapid.SampledFrom([]string{
			"sales", "trend", "monthly", "compare", "share", "budget", "customer", "quarterly",
			"radar", "polar", "%", "growth", "the", "of", "Revenue", "DONUT", "scatter",
		}), 0, 12).Draw(rt, "words")
		noise := rapid.String().Draw(rt, "noise")
		prompt := noise
		for _, w := range words {
			prompt += " " + w
		}

		first := Classify(prompt)
		second := Classify(prompt)
		require.Equal(rt, first, second)

		require.GreaterOrEqual(rt, first.Confidence, 0.0)
		require.LessOrEqual(rt, first.Confidence, MaxConfidence)
		require.True(rt, first.Shape.Valid())
		require.True(rt, first.Category.Valid())

		seen := map[domain.DataHint]bool{}
		for _, h := range first.Hints {
			require.False(rt, seen[h], "hint %s emitted twice", h)
			seen[h] = true
		}
	})
}
