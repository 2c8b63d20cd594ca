package domain

import "fmt"

// Shape is the visual form of a chart artifact.
type Shape string

const (
	ShapeBar       Shape = "bar"
	ShapeLine      Shape = "line"
	ShapeArea      Shape = "area"
	ShapePie       Shape = "pie"
	ShapeDoughnut  Shape = "doughnut"
	ShapeScatter   Shape = "scatter"
	ShapeRadar     Shape = "radar"
	ShapePolarArea Shape = "polar_area"
)

// Shapes lists every shape in canonical priority order. Classifier ties resolve to the
// earliest entry.
var Shapes = []Shape{ShapeBar, ShapeLine, ShapeArea, ShapePie, ShapeDoughnut, ShapeScatter, ShapeRadar, ShapePolarArea}

func (s Shape) Valid() bool {
	for _, v := range Shapes {
		if v == s {
			return true
		}
	}
	return false
}

// Radial reports whether the shape renders a single dataset around a center.
func (s Shape) Radial() bool {
	return s == ShapePie || s == ShapeDoughnut || s == ShapePolarArea
}

// Label is the human-facing name of the shape.
func (s Shape) Label() string {
	switch s {
	case ShapeBar:
		return "Bar"
	case ShapeLine:
		return "Line"
	case ShapeArea:
		return "Area"
	case ShapePie:
		return "Pie"
	case ShapeDoughnut:
		return "Doughnut"
	case ShapeScatter:
		return "Scatter"
	case ShapeRadar:
		return "Radar"
	case ShapePolarArea:
		return "Polar area"
	default:
		return string(s)
	}
}

// Category is the business domain an artifact belongs to.
type Category string

const (
	CategorySales      Category = "sales"
	CategoryMarketing  Category = "marketing"
	CategoryFinance    Category = "finance"
	CategoryOperations Category = "operations"
	CategoryHR         Category = "hr"
	CategoryCustomer   Category = "customer"
	CategoryGeneral    Category = "general"
)

// Categories lists every category in canonical priority order.
var Categories = []Category{CategorySales, CategoryMarketing, CategoryFinance, CategoryOperations, CategoryHR, CategoryCustomer, CategoryGeneral}

func (c Category) Valid() bool {
	for _, v := range Categories {
		if v == c {
			return true
		}
	}
	return false
}

// Visibility is the coarse permission tier from which default grants derive.
type Visibility string

const (
	VisibilityPrivate      Visibility = "private"
	VisibilityTeam         Visibility = "team"
	VisibilityOrganization Visibility = "organization"
	VisibilityPublic       Visibility = "public"
)

func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPrivate, VisibilityTeam, VisibilityOrganization, VisibilityPublic:
		return true
	default:
		return false
	}
}

// Source records where an artifact came from.
type Source string

const (
	SourceCatalog      Source = "catalog"
	SourceGenerated    Source = "generated"
	SourceCustom       Source = "custom"
	SourceOrganization Source = "organization"
)

// DataHint is a symbolic cue about the shape of the data a prompt asks for.
type DataHint string

const (
	HintMonthly    DataHint = "monthly"
	HintQuarterly  DataHint = "quarterly"
	HintWeekly     DataHint = "weekly"
	HintDaily      DataHint = "daily"
	HintYearly     DataHint = "yearly"
	HintCurrency   DataHint = "currency"
	HintPercentage DataHint = "percentage"
	HintGrowth     DataHint = "growth"
	HintCount      DataHint = "count"
	HintComparison DataHint = "comparison"
)

// FieldType is the data type a chart field accepts.
type FieldType string

const (
	FieldString FieldType = "string"
	FieldNumber FieldType = "number"
	FieldDate   FieldType = "date"
)

// ParseShape converts user input into a Shape.
func ParseShape(s string) (Shape, error) {
	sh := Shape(s)
	if !sh.Valid() {
		return "", fmt.Errorf("invalid shape %q", s)
	}
	return sh, nil
}

// ParseCategory converts user input into a Category.
func ParseCategory(s string) (Category, error) {
	c := Category(s)
	if !c.Valid() {
		return "", fmt.Errorf("invalid category %q", s)
	}
	return c, nil
}

// ParseVisibility converts user input into a Visibility. Empty input defaults to private.
func ParseVisibility(s string) (Visibility, error) {
	if s == "" {
		return VisibilityPrivate, nil
	}
	v := Visibility(s)
	if !v.Valid() {
		return "", fmt.Errorf("invalid visibility %q", s)
	}
	return v, nil
}
