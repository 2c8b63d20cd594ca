// Package synth turns a classification into a concrete chart definition with sample data.
package synth

import (
	"fmt"
	"math"
	"math/rand/v2"
	"slices"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode"

	"chartline/internal/classify"
	"chartline/internal/domain"
)

const (
	nameWords    = 4
	maxAlternate = 2
)

var alternatives = map[domain.Shape][]domain.Shape{
	domain.ShapeBar:       {domain.ShapeLine, domain.ShapeArea},
	domain.ShapeLine:      {domain.ShapeArea, domain.ShapeBar},
	domain.ShapeArea:      {domain.ShapeLine, domain.ShapeBar},
	domain.ShapePie:       {domain.ShapeDoughnut, domain.ShapeBar},
	domain.ShapeDoughnut:  {domain.ShapePie, domain.ShapeBar},
	domain.ShapeScatter:   {domain.ShapeLine, domain.ShapeBar},
	domain.ShapeRadar:     {domain.ShapeBar, domain.ShapeLine},
	domain.ShapePolarArea: {domain.ShapePie, domain.ShapeDoughnut},
}

// AlternativeShapes returns the shapes suggested next to primary, at most two.
func AlternativeShapes(primary domain.Shape) []domain.Shape {
	return slices.Clone(alternatives[primary])
}

var (
	monthLabels   = []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"}
	quarterLabels = []string{"Q1", "Q2", "Q3", "Q4"}
	weekLabels    = []string{"Week 1", "Week 2", "Week 3", "Week 4"}
	dayLabels     = []string{"Mon", "Tue", "Wed", "Thu", "Fri", "Sat", "Sun"}
	genericLabels = []string{"Category A", "Category B", "Category C", "Category D", "Category E"}
)

var categoryLabels = map[domain.Category][]string{
	domain.CategorySales:      {"North", "South", "East", "West", "Central"},
	domain.CategoryMarketing:  {"Organic", "Paid", "Social", "Email", "Referral"},
	domain.CategoryFinance:    {"Payroll", "Rent", "Software", "Travel", "Other"},
	domain.CategoryOperations: {"Intake", "Processing", "Packing", "Shipping", "Delivered"},
	domain.CategoryHR:         {"Engineering", "Sales", "Support", "Finance", "People"},
	domain.CategoryCustomer:   {"Enterprise", "Mid-market", "SMB", "Startup", "Consumer"},
}

var seriesNames = map[domain.Category]string{
	domain.CategorySales:      "Sales",
	domain.CategoryMarketing:  "Leads",
	domain.CategoryFinance:    "Amount",
	domain.CategoryOperations: "Units",
	domain.CategoryHR:         "Employees",
	domain.CategoryCustomer:   "Customers",
}

// Result is the outcome of one synthesis. Callers must check OK before using Definition.
type Result struct {
	OK             bool                `json:"ok"`
	Reason         string              `json:"reason,omitempty"`
	Retryable      bool                `json:"retryable,omitempty"`
	Classification classify.Result     `json:"classification"`
	Definition     domain.Definition   `json:"definition"`
	Alternatives   []domain.Definition `json:"alternatives,omitempty"`
}

func failed(reason string, c classify.Result) Result {
	return Result{OK: false, Reason: reason, Retryable: true, Classification: c}
}

// Synthesizer produces definitions. Sample values come from the injected random source, so
// a seeded source makes output reproducible. Safe for concurrent use.
type Synthesizer struct {
	Now func() time.Time

	mu  sync.Mutex
	rng *rand.Rand
}

// New returns a Synthesizer drawing sample values from rng. A nil rng is seeded from the clock.
func New(rng *rand.Rand) *Synthesizer {
	if rng == nil {
		seed := uint64(time.Now().UnixNano())
		rng = rand.New(rand.NewPCG(seed, seed>>1))
	}
	return &Synthesizer{Now: time.Now, rng: rng}
}

// NewSeeded returns a Synthesizer whose output depends only on seed and input.
func NewSeeded(seed uint64) *Synthesizer {
	return New(rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15)))
}

// Generate classifies prompt and synthesizes the primary definition, plus alternatives when
// requested.
func (s *Synthesizer) Generate(prompt string, withAlternatives bool) Result {
	c := classify.Classify(prompt)
	res := s.Synthesize(c)
	if res.OK && withAlternatives {
		res.Alternatives = s.Alternatives(c)
	}
	return res
}

// Synthesize builds the definition for c. It never panics; unusable input yields a failed,
// retryable Result.
func (s *Synthesizer) Synthesize(c classify.Result) Result {
	if strings.TrimSpace(c.Prompt) == "" {
		return failed("prompt is empty", c)
	}
	if !c.Shape.Valid() {
		return failed(fmt.Sprintf("unsupported shape %q", c.Shape), c)
	}
	if !c.Category.Valid() {
		return failed(fmt.Sprintf("unsupported category %q", c.Category), c)
	}
	return Result{OK: true, Classification: c, Definition: s.build(c)}
}

// Alternatives synthesizes the definition for each adjacent shape of c.Shape.
func (s *Synthesizer) Alternatives(c classify.Result) []domain.Definition {
	var out []domain.Definition
	for _, shape := range alternatives[c.Shape] {
		if len(out) == maxAlternate {
			break
		}
		alt := c
		alt.Shape = shape
		if r := s.Synthesize(alt); r.OK {
			out = append(out, r.Definition)
		}
	}
	return out
}

func (s *Synthesizer) build(c classify.Result) domain.Definition {
	labels := s.labels(c)
	series := seriesNames[c.Category]
	if series == "" {
		series = "Value"
	}
	values := s.values(c, len(labels))
	format := "number"
	switch {
	case c.HasHint(domain.HintPercentage):
		format = "percentage"
	case c.HasHint(domain.HintCurrency):
		format = "currency"
	}

	name := Name(c.Prompt, c.Shape)
	cfg := domain.RenderConfig{
		Title:       name,
		ShowLegend:  c.Shape.Radial() || c.Shape == domain.ShapeRadar,
		Stacked:     c.Shape == domain.ShapeArea,
		Palette:     slices.Clone(domain.DefaultPalette),
		ValueFormat: format,
	}
	if !c.Shape.Radial() && c.Shape != domain.ShapeRadar {
		cfg.XAxisLabel = "Category"
		if temporal(c) {
			cfg.XAxisLabel = "Period"
		}
		cfg.YAxisLabel = series
	}

	tags := []string{string(c.Category), string(c.Shape)}
	for _, h := range c.Hints {
		tags = append(tags, string(h))
	}
	return domain.Definition{
		Name:        name,
		Description: Description(c),
		Category:    c.Category,
		Shape:       c.Shape,
		Data: domain.SampleData{
			Labels:   labels,
			Datasets: []domain.Dataset{{Label: series, Values: values}},
		},
		Config: cfg,
		Fields: domain.DefaultFields(c.Shape),
		Tags:   tags,
	}
}

func temporal(c classify.Result) bool {
	for _, h := range []domain.DataHint{domain.HintMonthly, domain.HintQuarterly, domain.HintWeekly, domain.HintDaily, domain.HintYearly} {
		if c.HasHint(h) {
			return true
		}
	}
	return false
}

// labels picks the x-axis labels: temporal hints first, then the category set, then generic.
func (s *Synthesizer) labels(c classify.Result) []string {
	switch {
	case c.HasHint(domain.HintMonthly):
		return slices.Clone(monthLabels)
	case c.HasHint(domain.HintQuarterly):
		return slices.Clone(quarterLabels)
	case c.HasHint(domain.HintWeekly):
		return slices.Clone(weekLabels)
	case c.HasHint(domain.HintDaily):
		return slices.Clone(dayLabels)
	case c.HasHint(domain.HintYearly):
		year := s.now().Year()
		out := make([]string, 5)
		for i := range out {
			out[i] = strconv.Itoa(year - 4 + i)
		}
		return out
	}
	if l, ok := categoryLabels[c.Category]; ok {
		return slices.Clone(l)
	}
	return slices.Clone(genericLabels)
}

func (s *Synthesizer) values(c classify.Result, n int) []float64 {
	lo, hi := 10, 1000
	switch {
	case c.Shape.Radial():
		lo, hi = 10, 100
	case c.HasHint(domain.HintPercentage):
		lo, hi = 0, 100
	}
	out := make([]float64, n)
	s.mu.Lock()
	for i := range out {
		out[i] = float64(lo + s.rng.IntN(hi-lo+1))
	}
	s.mu.Unlock()
	if c.HasHint(domain.HintGrowth) && !c.Shape.Radial() {
		slices.Sort(out)
	}
	return out
}

func (s *Synthesizer) now() time.Time {
	if s.Now == nil {
		return time.Now()
	}
	return s.Now()
}

// Name derives a title from the first words of prompt and the shape.
func Name(prompt string, shape domain.Shape) string {
	words := strings.Fields(prompt)
	if len(words) > nameWords {
		words = words[:nameWords]
	}
	for i, w := range words {
		words[i] = titleWord(w)
	}
	return fmt.Sprintf("%s (%s chart)", strings.Join(words, " "), shape.Label())
}

// Description embeds the rounded confidence so a reader can audit the classification.
func Description(c classify.Result) string {
	pct := int(math.Round(c.Confidence * 100))
	return fmt.Sprintf("%s chart for %s data generated from: \"%s\" (confidence %d%%)",
		c.Shape.Label(), c.Category, strings.TrimSpace(c.Prompt), pct)
}

func titleWord(w string) string {
	r := []rune(strings.ToLower(w))
	if len(r) == 0 {
		return w
	}
	r[0] = unicode.ToUpper(r[0])
	return string(r)
}
