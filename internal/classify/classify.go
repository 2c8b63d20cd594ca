// Package classify maps free-text chart requests to a shape, a category and data hints
// using fixed keyword tables. The mapping is deterministic.
package classify

import (
	"math"
	"strings"

	"chartline/internal/domain"
)

// MaxConfidence bounds the heuristic; a keyword match is never certainty.
const MaxConfidence = 0.95

const confidencePerMatch = 0.2

// Result is the outcome of classifying one prompt.
type Result struct {
	Prompt        string            `json:"prompt"`
	Shape         domain.Shape      `json:"shape"`
	Category      domain.Category   `json:"category"`
	Confidence    float64           `json:"confidence"`
	ShapeScore    int               `json:"shape_score"`
	CategoryScore int               `json:"category_score"`
	Keywords      []string          `json:"keywords"`
	Hints         []domain.DataHint `json:"hints"`
}

// HasHint reports whether h was recognized.
func (r Result) HasHint(h domain.DataHint) bool {
	for _, v := range r.Hints {
		if v == h {
			return true
		}
	}
	return false
}

type shapeRule struct {
	shape    domain.Shape
	keywords []string
}

type categoryRule struct {
	category domain.Category
	keywords []string
}

type hintRule struct {
	hint domain.DataHint
	cues []string
}

// Rules are listed in canonical priority order; ties go to the earlier rule.
var shapeRules = []shapeRule{
	{domain.ShapeBar, []string{"compare", "comparison", "versus", "ranking", "top ", "histogram", "bar chart", "by region", "by department"}},
	{domain.ShapeLine, []string{"trend", "over time", "timeline", "forecast", "history", "progress", "line chart"}},
	{domain.ShapeArea, []string{"cumulative", "accumulat", "volume", "stacked", "area chart"}},
	{domain.ShapePie, []string{"share", "proportion", "breakdown", "distribution", "split", "pie"}},
	{domain.ShapeDoughnut, []string{"doughnut", "donut", "ring chart"}},
	{domain.ShapeScatter, []string{"correlation", "relationship", "scatter", "outlier"}},
	{domain.ShapeRadar, []string{"radar", "skills", "dimensions", "multi-metric", "profile"}},
	{domain.ShapePolarArea, []string{"polar", "radial", "cyclical"}},
}

var categoryRules = []categoryRule{
	{domain.CategorySales, []string{"sales", "revenue", "deal", "pipeline", "quota", "order", "sell"}},
	{domain.CategoryMarketing, []string{"marketing", "campaign", "lead", "channel", "conversion", "traffic", "seo", "click"}},
	{domain.CategoryFinance, []string{"finance", "financial", "budget", "expense", "cost", "profit", "cash", "invoice", "margin"}},
	{domain.CategoryOperations, []string{"operation", "inventory", "throughput", "supply", "logistic", "fulfil", "production", "efficiency"}},
	{domain.CategoryHR, []string{"employee", "headcount", "hiring", "retention", "turnover", "salary", "staff", "recruit"}},
	{domain.CategoryCustomer, []string{"customer", "satisfaction", "churn", "nps", "csat", "support ticket"}},
	{domain.CategoryGeneral, nil},
}

var hintRules = []hintRule{
	{domain.HintMonthly, []string{"monthly", "per month", "each month", "by month"}},
	{domain.HintQuarterly, []string{"quarterly", "quarter"}},
	{domain.HintWeekly, []string{"weekly", "per week", "each week"}},
	{domain.HintDaily, []string{"daily", "per day", "each day"}},
	{domain.HintYearly, []string{"yearly", "annual", "per year", "year over year"}},
	{domain.HintCurrency, []string{"revenue", "cost", "price", "spend", "budget", "profit", "$"}},
	{domain.HintPercentage, []string{"percent", "%", "conversion rate"}},
	{domain.HintGrowth, []string{"growth", "increase", "grow"}},
	{domain.HintCount, []string{"count", "number of", "how many", "total"}},
	{domain.HintComparison, []string{"compare", "versus", " vs "}},
}

// Classify scores prompt against the keyword tables. It never fails: an unrecognized prompt
// yields the first shape and the general category with zero confidence.
func Classify(prompt string) Result {
	text := strings.ToLower(prompt)
	res := Result{
		Prompt:   prompt,
		Shape:    shapeRules[0].shape,
		Category: domain.CategoryGeneral,
		Keywords: []string{},
		Hints:    []domain.DataHint{},
	}
	seen := make(map[string]bool)
	addKeyword := func(k string) {
		k = strings.TrimSpace(k)
		if !seen[k] {
			seen[k] = true
			res.Keywords = append(res.Keywords, k)
		}
	}

	best := 0
	for _, rule := range shapeRules {
		score := 0
		for _, k := range rule.keywords {
			if strings.Contains(text, k) {
				score++
				addKeyword(k)
			}
		}
		if score > best {
			best = score
			res.Shape = rule.shape
		}
	}
	res.ShapeScore = best

	best = 0
	for _, rule := range categoryRules {
		score := 0
		for _, k := range rule.keywords {
			if strings.Contains(text, k) {
				score++
				addKeyword(k)
			}
		}
		if score > best {
			best = score
			res.Category = rule.category
		}
	}
	res.CategoryScore = best

	for _, rule := range hintRules {
		for _, cue := range rule.cues {
			if strings.Contains(text, cue) {
				res.Hints = append(res.Hints, rule.hint)
				break
			}
		}
	}
	res.Confidence = confidence(res.ShapeScore, res.CategoryScore)
	return res
}

func confidence(shapeScore, categoryScore int) float64 {
	c := float64(shapeScore+categoryScore) * confidencePerMatch
	c = math.Round(c*100) / 100
	return math.Min(c, MaxConfidence)
}
