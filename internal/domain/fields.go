package domain

// DefaultFields returns the field requirements every definition of the given shape declares.
func DefaultFields(s Shape) []FieldRequirement {
	switch {
	case s == ShapeScatter:
		return []FieldRequirement{
			{Name: "x", Type: FieldNumber, Required: true, Min: 2, Max: 500},
			{Name: "y", Type: FieldNumber, Required: true, Min: 2, Max: 500},
			{Name: "series", Type: FieldString, Required: false, Min: 0, Max: 8},
		}
	case s.Radial():
		return []FieldRequirement{
			{Name: "label", Type: FieldString, Required: true, Min: 2, Max: 12},
			{Name: "value", Type: FieldNumber, Required: true, Min: 2, Max: 12},
		}
	default:
		return []FieldRequirement{
			{Name: "label", Type: FieldString, Required: true, Min: 2, Max: 24},
			{Name: "value", Type: FieldNumber, Required: true, Min: 2, Max: 24},
			{Name: "series", Type: FieldString, Required: false, Min: 0, Max: 8},
		}
	}
}

// DefaultPalette is the color cycle applied to generated and catalog definitions.
var DefaultPalette = []string{"#4F46E5", "#10B981", "#F59E0B", "#EF4444", "#3B82F6", "#8B5CF6", "#EC4899", "#14B8A6"}
