// Package catalog serves the read-only collection of pre-built chart templates.
package catalog

import (
	"bytes"
	_ "embed"
	"fmt"
	"slices"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"chartline/internal/domain"
)

//go:embed templates.yml
var embeddedTemplates []byte

const (
	featuredMinRating    = 4.7
	featuredMinDownloads = 1000

	DefaultFeaturedLimit = 6
	DefaultPopularLimit  = 10
	DefaultRecentLimit   = 10
)

// Options caps the ranked listings.
type Options struct {
	FeaturedLimit int
	PopularLimit  int
	RecentLimit   int
}

func (o Options) withDefaults() Options {
	if o.FeaturedLimit <= 0 {
		o.FeaturedLimit = DefaultFeaturedLimit
	}
	if o.PopularLimit <= 0 {
		o.PopularLimit = DefaultPopularLimit
	}
	if o.RecentLimit <= 0 {
		o.RecentLimit = DefaultRecentLimit
	}
	return o
}

// Category groups templates of one business domain.
type Category struct {
	ID          domain.Category   `json:"id"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Templates   []domain.Template `json:"templates"`
}

// Filter narrows Search. Zero-valued fields do not filter.
type Filter struct {
	Query     string
	Category  domain.Category
	Shape     domain.Shape
	Tags      []string
	MinRating float64
}

// Catalog is immutable after construction and safe for concurrent use.
type Catalog struct {
	opts       Options
	categories []Category
	byID       map[string]domain.Template
}

type fileDataset struct {
	Label  string    `yaml:"label"`
	Values []float64 `yaml:"values"`
}

type fileTemplate struct {
	ID          string        `yaml:"id"`
	Name        string        `yaml:"name"`
	Description string        `yaml:"description"`
	Shape       domain.Shape  `yaml:"shape"`
	Tags        []string      `yaml:"tags"`
	Rating      float64       `yaml:"rating"`
	Downloads   int           `yaml:"downloads"`
	Featured    bool          `yaml:"featured"`
	UpdatedAt   time.Time     `yaml:"updated_at"`
	ValueFormat string        `yaml:"value_format"`
	Labels      []string      `yaml:"labels"`
	Datasets    []fileDataset `yaml:"datasets"`
}

type fileCategory struct {
	ID          domain.Category `yaml:"id"`
	Name        string          `yaml:"name"`
	Description string          `yaml:"description"`
	Templates   []fileTemplate  `yaml:"templates"`
}

type file struct {
	Categories []fileCategory `yaml:"categories"`
}

// New returns the catalog built from the embedded template set.
func New(opts Options) (*Catalog, error) {
	return Parse(embeddedTemplates, opts)
}

// Parse builds a catalog from YAML.
func Parse(data []byte, opts Options) (*Catalog, error) {
	var f file
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&f); err != nil {
		return nil, fmt.Errorf("invalid catalog yaml: %w", err)
	}
	c := &Catalog{opts: opts.withDefaults(), byID: make(map[string]domain.Template)}
	for _, fc := range f.Categories {
		if !fc.ID.Valid() {
			return nil, fmt.Errorf("catalog category %q is not a known category", fc.ID)
		}
		cat := Category{ID: fc.ID, Name: fc.Name, Description: fc.Description}
		for _, ft := range fc.Templates {
			if ft.ID == "" {
				return nil, fmt.Errorf("category %s has a template without id", fc.ID)
			}
			if _, dup := c.byID[ft.ID]; dup {
				return nil, fmt.Errorf("duplicate template id %s", ft.ID)
			}
			if !ft.Shape.Valid() {
				return nil, fmt.Errorf("template %s has invalid shape %q", ft.ID, ft.Shape)
			}
			t := toTemplate(fc.ID, ft)
			c.byID[t.ID] = t
			cat.Templates = append(cat.Templates, t)
		}
		c.categories = append(c.categories, cat)
	}
	return c, nil
}

func toTemplate(category domain.Category, ft fileTemplate) domain.Template {
	data := domain.SampleData{Labels: ft.Labels}
	for _, ds := range ft.Datasets {
		data.Datasets = append(data.Datasets, domain.Dataset{Label: ds.Label, Values: ds.Values})
	}
	format := ft.ValueFormat
	if format == "" {
		format = "number"
	}
	return domain.Template{
		ID:          ft.ID,
		Name:        ft.Name,
		Description: ft.Description,
		Category:    category,
		Shape:       ft.Shape,
		Tags:        ft.Tags,
		Rating:      ft.Rating,
		Downloads:   ft.Downloads,
		Featured:    ft.Featured,
		UpdatedAt:   ft.UpdatedAt.UTC(),
		Definition: domain.Definition{
			Name:        ft.Name,
			Description: ft.Description,
			Category:    category,
			Shape:       ft.Shape,
			Data:        data,
			Config: domain.RenderConfig{
				Title:       ft.Name,
				ShowLegend:  len(ft.Datasets) > 1 || ft.Shape.Radial(),
				Palette:     domain.DefaultPalette,
				ValueFormat: format,
			},
			Fields: domain.DefaultFields(ft.Shape),
			Tags:   ft.Tags,
		},
	}
}

// Categories returns every category with its templates, in catalog order.
func (c *Catalog) Categories() []Category {
	out := make([]Category, len(c.categories))
	for i, cat := range c.categories {
		cat.Templates = cloneTemplates(cat.Templates)
		out[i] = cat
	}
	return out
}

// Template looks up a template by id. The boolean is false when no template has that id.
func (c *Catalog) Template(id string) (domain.Template, bool) {
	t, ok := c.byID[id]
	if !ok {
		return domain.Template{}, false
	}
	return cloneTemplate(t), true
}

// Search returns templates matching every set field of f, in catalog order.
func (c *Catalog) Search(f Filter) []domain.Template {
	query := strings.ToLower(strings.TrimSpace(f.Query))
	var out []domain.Template
	for _, cat := range c.categories {
		if f.Category != "" && cat.ID != f.Category {
			continue
		}
		for _, t := range cat.Templates {
			if f.Shape != "" && t.Shape != f.Shape {
				continue
			}
			if query != "" && !matchesQuery(t, query) {
				continue
			}
			if len(f.Tags) > 0 && !sharesTag(t.Tags, f.Tags) {
				continue
			}
			if t.Rating < f.MinRating {
				continue
			}
			out = append(out, cloneTemplate(t))
		}
	}
	return out
}

// Featured returns flagged templates and those meeting both the rating and download
// thresholds, best rated first.
func (c *Catalog) Featured() []domain.Template {
	var picked []domain.Template
	for _, t := range c.all() {
		if t.Featured || (t.Rating >= featuredMinRating && t.Downloads >= featuredMinDownloads) {
			picked = append(picked, t)
		}
	}
	sort.SliceStable(picked, func(i, j int) bool { return picked[i].Rating > picked[j].Rating })
	return capped(picked, c.opts.FeaturedLimit)
}

// Popular returns templates ordered by downloads, most downloaded first.
func (c *Catalog) Popular() []domain.Template {
	all := c.all()
	sort.SliceStable(all, func(i, j int) bool { return all[i].Downloads > all[j].Downloads })
	return capped(all, c.opts.PopularLimit)
}

// Recent returns templates ordered by last update, newest first.
func (c *Catalog) Recent() []domain.Template {
	all := c.all()
	sort.SliceStable(all, func(i, j int) bool { return all[i].UpdatedAt.After(all[j].UpdatedAt) })
	return capped(all, c.opts.RecentLimit)
}

// Len returns the number of templates.
func (c *Catalog) Len() int { return len(c.byID) }

func (c *Catalog) all() []domain.Template {
	var out []domain.Template
	for _, cat := range c.categories {
		out = append(out, cloneTemplates(cat.Templates)...)
	}
	return out
}

func matchesQuery(t domain.Template, query string) bool {
	if strings.Contains(strings.ToLower(t.Name), query) || strings.Contains(strings.ToLower(t.Description), query) {
		return true
	}
	for _, tag := range t.Tags {
		if strings.Contains(strings.ToLower(tag), query) {
			return true
		}
	}
	return false
}

func sharesTag(have, want []string) bool {
	for _, w := range want {
		for _, h := range have {
			if strings.EqualFold(strings.TrimSpace(w), h) {
				return true
			}
		}
	}
	return false
}

func capped(in []domain.Template, n int) []domain.Template {
	if len(in) > n {
		return in[:n]
	}
	return in
}

func cloneTemplates(in []domain.Template) []domain.Template {
	out := make([]domain.Template, len(in))
	for i, t := range in {
		out[i] = cloneTemplate(t)
	}
	return out
}

func cloneTemplate(t domain.Template) domain.Template {
	t.Tags = slices.Clone(t.Tags)
	t.Definition = t.Definition.Clone()
	return t
}
