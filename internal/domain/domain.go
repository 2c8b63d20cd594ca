package domain

import (
	"slices"
	"time"
)

// Dataset is one labeled series of values.
type Dataset struct {
	Label  string    `json:"label"`
	Values []float64 `json:"values"`
}

// SampleData is the illustrative payload shipped with a definition.
type SampleData struct {
	Labels   []string  `json:"labels"`
	Datasets []Dataset `json:"datasets"`
}

// RenderConfig carries display options for the rendering layer.
type RenderConfig struct {
	Title       string   `json:"title"`
	ShowLegend  bool     `json:"show_legend"`
	Stacked     bool     `json:"stacked,omitempty"`
	Palette     []string `json:"palette,omitempty"`
	XAxisLabel  string   `json:"x_axis_label,omitempty"`
	YAxisLabel  string   `json:"y_axis_label,omitempty"`
	ValueFormat string   `json:"value_format,omitempty" enum:"number,currency,percentage"`
}

// FieldRequirement declares one input field of a definition.
type FieldRequirement struct {
	Name     string    `json:"name"`
	Type     FieldType `json:"type" enum:"string,number,date"`
	Required bool      `json:"required"`
	Min      int       `json:"min"`
	Max      int       `json:"max"`
}

// Definition is an immutable chart template: what to draw and with which sample data.
type Definition struct {
	Name        string             `json:"name"`
	Description string             `json:"description"`
	Category    Category           `json:"category"`
	Shape       Shape              `json:"shape"`
	Data        SampleData         `json:"data"`
	Config      RenderConfig       `json:"config"`
	Fields      []FieldRequirement `json:"fields"`
	Tags        []string           `json:"tags,omitempty"`
}

// RequiredFields returns the fields a consumer must supply.
func (d Definition) RequiredFields() []FieldRequirement {
	var out []FieldRequirement
	for _, f := range d.Fields {
		if f.Required {
			out = append(out, f)
		}
	}
	return out
}

// OptionalFields returns the fields a consumer may omit.
func (d Definition) OptionalFields() []FieldRequirement {
	var out []FieldRequirement
	for _, f := range d.Fields {
		if !f.Required {
			out = append(out, f)
		}
	}
	return out
}

// Creator identifies who made an artifact.
type Creator struct {
	ID    string `json:"id"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
	Role  string `json:"role,omitempty"`
}

// GenerationMeta is present only on artifacts with Source == SourceGenerated.
type GenerationMeta struct {
	Prompt      string    `json:"prompt"`
	Model       string    `json:"model"`
	Confidence  float64   `json:"confidence"`
	GeneratedAt time.Time `json:"generated_at"`
	DurationMS  int64     `json:"duration_ms"`
	Iterations  int       `json:"iterations"`
}

// Permissions are the per-artifact grant sets. Entries are viewer ids or role names.
type Permissions struct {
	View    []string `json:"view"`
	Use     []string `json:"use"`
	Modify  []string `json:"modify"`
	Approve []string `json:"approve"`
}

// UsageEvent is one entry of the append-only usage history.
type UsageEvent struct {
	ID     string    `json:"id"`
	UserID string    `json:"user_id"`
	Action string    `json:"action"`
	At     time.Time `json:"at"`
}

// Usage aggregates installs of an artifact.
type Usage struct {
	TotalInstalls int          `json:"total_installs"`
	UniqueUsers   int          `json:"unique_users"`
	LastUsedAt    *time.Time   `json:"last_used_at,omitempty"`
	History       []UsageEvent `json:"history"`
}

// Version is an immutable snapshot in an artifact's history.
type Version struct {
	Version           string       `json:"version"`
	CreatedAt         time.Time    `json:"created_at"`
	CreatedBy         string       `json:"created_by"`
	ChangeDescription string       `json:"change_description"`
	ConfigSnapshot    RenderConfig `json:"config_snapshot"`
	DataSnapshot      SampleData   `json:"data_snapshot"`
}

// Quality holds independent 0-100 ratings plus aggregate user feedback.
type Quality struct {
	DataAccuracy  int     `json:"data_accuracy"`
	VisualClarity int     `json:"visual_clarity"`
	BusinessValue int     `json:"business_value"`
	UserRating    float64 `json:"user_rating"`
	ReviewCount   int     `json:"review_count"`
}

// OrgArtifact is a Definition wrapped with organizational metadata.
type OrgArtifact struct {
	ID          string          `json:"id"`
	OrgID       string          `json:"org_id"`
	TenantID    string          `json:"tenant_id"`
	Definition  Definition      `json:"definition"`
	Creator     Creator         `json:"creator"`
	Source      Source          `json:"source"`
	Generation  *GenerationMeta `json:"generation,omitempty"`
	Visibility  Visibility      `json:"visibility"`
	Approval    Approval        `json:"approval"`
	Permissions Permissions     `json:"permissions"`
	Usage       Usage           `json:"usage"`
	Versions    []Version       `json:"versions"`
	Quality     Quality         `json:"quality"`
	CreatedAt   time.Time       `json:"created_at"`
	UpdatedAt   time.Time       `json:"updated_at"`
}

// CurrentVersion returns the latest version entry.
func (a OrgArtifact) CurrentVersion() (Version, bool) {
	if len(a.Versions) == 0 {
		return Version{}, false
	}
	return a.Versions[len(a.Versions)-1], true
}

// Clone returns a copy that shares no slices or pointers with a.
func (a OrgArtifact) Clone() OrgArtifact {
	out := a
	out.Definition = a.Definition.Clone()
	if a.Generation != nil {
		g := *a.Generation
		out.Generation = &g
	}
	if a.Approval.ApprovedAt != nil {
		t := *a.Approval.ApprovedAt
		out.Approval.ApprovedAt = &t
	}
	out.Permissions = Permissions{
		View:    slices.Clone(a.Permissions.View),
		Use:     slices.Clone(a.Permissions.Use),
		Modify:  slices.Clone(a.Permissions.Modify),
		Approve: slices.Clone(a.Permissions.Approve),
	}
	if a.Usage.LastUsedAt != nil {
		t := *a.Usage.LastUsedAt
		out.Usage.LastUsedAt = &t
	}
	out.Usage.History = slices.Clone(a.Usage.History)
	out.Versions = make([]Version, len(a.Versions))
	for i, v := range a.Versions {
		v.ConfigSnapshot = v.ConfigSnapshot.Clone()
		v.DataSnapshot = v.DataSnapshot.Clone()
		out.Versions[i] = v
	}
	return out
}

// Clone returns a deep copy of d.
func (d Definition) Clone() Definition {
	out := d
	out.Data = d.Data.Clone()
	out.Config = d.Config.Clone()
	out.Fields = slices.Clone(d.Fields)
	out.Tags = slices.Clone(d.Tags)
	return out
}

// Clone returns a deep copy of s.
func (s SampleData) Clone() SampleData {
	out := SampleData{Labels: slices.Clone(s.Labels)}
	if s.Datasets != nil {
		out.Datasets = make([]Dataset, len(s.Datasets))
		for i, ds := range s.Datasets {
			out.Datasets[i] = Dataset{Label: ds.Label, Values: slices.Clone(ds.Values)}
		}
	}
	return out
}

// Clone returns a deep copy of c.
func (c RenderConfig) Clone() RenderConfig {
	out := c
	out.Palette = slices.Clone(c.Palette)
	return out
}

// Viewer is the already-authenticated caller of every core operation.
type Viewer struct {
	ID    string `json:"id"`
	OrgID string `json:"org_id"`
	Role  string `json:"role"`
	Name  string `json:"name,omitempty"`
	Email string `json:"email,omitempty"`
}

// Creator converts the viewer into a provenance block.
func (v Viewer) Creator() Creator {
	return Creator{ID: v.ID, Name: v.Name, Email: v.Email, Role: v.Role}
}

// Template is a pre-built catalog entry.
type Template struct {
	ID          string     `json:"id" yaml:"id"`
	Name        string     `json:"name" yaml:"name"`
	Description string     `json:"description" yaml:"description"`
	Category    Category   `json:"category" yaml:"category"`
	Shape       Shape      `json:"shape" yaml:"shape"`
	Tags        []string   `json:"tags" yaml:"tags"`
	Rating      float64    `json:"rating" yaml:"rating"`
	Downloads   int        `json:"downloads" yaml:"downloads"`
	Featured    bool       `json:"featured" yaml:"featured"`
	UpdatedAt   time.Time  `json:"updated_at" yaml:"updated_at"`
	Definition  Definition `json:"definition" yaml:"-"`
}

// LibraryCategory is one bucket of the library view.
type LibraryCategory struct {
	ID          string        `json:"id"`
	Name        string        `json:"name"`
	Description string        `json:"description,omitempty"`
	Templates   []Template    `json:"templates,omitempty"`
	Artifacts   []OrgArtifact `json:"artifacts,omitempty"`
}

// LibraryFile is the persisted form of one organization's collection.
type LibraryFile struct {
	OrgID     string        `json:"org_id"`
	Revision  int64         `json:"revision"`
	Artifacts []OrgArtifact `json:"artifacts"`
}

// Event is one entry of the audit journal.
type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	OrgID      string `json:"org_id"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}
