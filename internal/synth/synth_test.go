package synth

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"chartline/internal/classify"
	"chartline/internal/domain"
)

func TestGenerateMonthlySalesTrend(t *testing.T) {
	s := NewSeeded(7)
	res := s.Generate("Show monthly sales trends for the last year", true)
	require.True(t, res.OK, res.Reason)

	def := res.Definition
	assert.Equal(t, domain.ShapeLine, def.Shape)
	assert.Equal(t, domain.CategorySales, def.Category)
	assert.Equal(t, []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"}, def.Data.Labels)
	require.Len(t, def.Data.Datasets, 1)
	assert.Len(t, def.Data.Datasets[0].Values, 6)
	for _, v := range def.Data.Datasets[0].Values {
		assert.GreaterOrEqual(t, v, 10.0)
		assert.LessOrEqual(t, v, 1000.0)
	}
	assert.Equal(t, "Show Monthly Sales Trends (Line chart)", def.Name)
	assert.Equal(t, `Line chart for sales data generated from: "Show monthly sales trends for the last year" (confidence 40%)`, def.Description)
	assert.Equal(t, "Period", def.Config.XAxisLabel)

	require.Len(t, res.Alternatives, 2)
	assert.Equal(t, domain.ShapeArea, res.Alternatives[0].Shape)
	assert.Equal(t, domain.ShapeBar, res.Alternatives[1].Shape)
	assert.Equal(t, def.Data.Labels, res.Alternatives[0].Data.Labels)
}

func TestEmptyPromptFails(t *testing.T) {
	s := NewSeeded(1)
	res := s.Generate("   ", true)
	assert.False(t, res.OK)
	assert.True(t, res.Retryable)
	assert.Equal(t, "prompt is empty", res.Reason)
	assert.Empty(t, res.Alternatives)
}

func TestUnusableClassificationFails(t *testing.T) {
	s := NewSeeded(1)
	res := s.Synthesize(classify.Result{Prompt: "x", Shape: "hexagon", Category: domain.CategoryGeneral})
	assert.False(t, res.OK)
	assert.Contains(t, res.Reason, "hexagon")
}

func TestRadialShapesUseOneBoundedDataset(t *testing.T) {
	s := NewSeeded(3)
	res := s.Generate("share of expenses by budget line", false)
	require.True(t, res.OK)
	def := res.Definition
	assert.Equal(t, domain.ShapePie, def.Shape)
	assert.Equal(t, domain.CategoryFinance, def.Category)
	assert.Equal(t, []string{"Payroll", "Rent", "Software", "Travel", "Other"}, def.Data.Labels)
	require.Len(t, def.Data.Datasets, 1)
	for _, v := range def.Data.Datasets[0].Values {
		assert.GreaterOrEqual(t, v, 10.0)
		assert.LessOrEqual(t, v, 100.0)
	}
	assert.True(t, def.Config.ShowLegend)
	assert.Equal(t, "currency", def.Config.ValueFormat)
	assert.Empty(t, def.Config.XAxisLabel)
	require.Len(t, def.RequiredFields(), 2)
	assert.Empty(t, def.OptionalFields())
}

func TestLabelFallbacks(t *testing.T) {
	s := NewSeeded(5)
	s.Now = func() time.Time { return time.Date(2025, 3, 1, 0, 0, 0, 0, time.UTC) }

	cases := []struct {
		prompt string
		labels []string
	}{
		{"quarterly budget", []string{"Q1", "Q2", "Q3", "Q4"}},
		{"weekly throughput", []string{"Week 1", "Week 2", "Week 3", "Week 4"}},
		{"daily tickets", []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}},
		{"annual headcount", []string{"2021", "2022", "2023", "2024", "2025"}},
		{"headcount", []string{"Engineering", "Sales", "Support", "Finance", "People"}},
		{"something else", []string{"Category A", "Category B", "Category C", "Category D", "Category E"}},
	}
	for _, tc := range cases {
		t.Run(tc.prompt, func(t *testing.T) {
			res := s.Generate(tc.prompt, false)
			require.True(t, res.OK)
			assert.Equal(t, tc.labels, res.Definition.Data.Labels)
		})
	}
}

func TestPercentageAndGrowthHints(t *testing.T) {
	s := NewSeeded(11)
	res := s.Generate("conversion rate growth %", false)
	require.True(t, res.OK)
	vals := res.Definition.Data.Datasets[0].Values
	for i, v := range vals {
		assert.GreaterOrEqual(t, v, 0.0)
		assert.LessOrEqual(t, v, 100.0)
		if i > 0 {
			assert.GreaterOrEqual(t, v, vals[i-1])
		}
	}
	assert.Equal(t, "percentage", res.Definition.Config.ValueFormat)
}

func TestAlternativeShapesAdjacency(t *testing.T) {
	for _, shape := range domain.Shapes {
		alts := AlternativeShapes(shape)
		assert.Len(t, alts, 2, shape)
		assert.NotContains(t, alts, shape)
	}
	assert.Equal(t, []domain.Shape{domain.ShapeLine, domain.ShapeArea}, AlternativeShapes(domain.ShapeBar))
}

func TestNameUsesFirstFourWords(t *testing.T) {
	assert.Equal(t, "Top Customers (Bar chart)", Name("top customers", domain.ShapeBar))
	assert.Equal(t, "Ébauche De Ventes Par (Polar area chart)", Name("ébauche de ventes par région", domain.ShapePolarArea))
}

func TestSeededOutputIsReproducible(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		seed := rapid.Uint64().Draw(rt, "seed")
		prompt := rapid.StringMatching(`[a-z ]{1,40}[a-z]`).Draw(rt, "prompt")

		a := NewSeeded(seed).Generate(prompt, true)
		b := NewSeeded(seed).Generate(prompt, true)
		require.Equal(rt, a, b)
		require.True(rt, a.OK)
		require.LessOrEqual(rt, len(a.Alternatives), 2)
		for _, ds := range a.Definition.Data.Datasets {
			require.Len(rt, ds.Values, len(a.Definition.Data.Labels))
		}
	})
}
