package server

import (
	"chartline/internal/catalog"
	"chartline/internal/classify"
	"chartline/internal/domain"
	"chartline/internal/engine"
	"chartline/internal/registry"
)

// Request payloads

type ClassifyRequest struct {
	Prompt string `json:"prompt" minLength:"1"`
}

type GenerateRequest struct {
	Prompt              string `json:"prompt"`
	IncludeAlternatives bool   `json:"include_alternatives,omitempty"`
	SaveToOrganization  bool   `json:"save_to_organization,omitempty"`
	Visibility          string `json:"visibility,omitempty" enum:"private,team,organization,public"`
	RequestApproval     bool   `json:"request_approval,omitempty"`
}

type ApprovalRequest struct {
	Action string `json:"action" enum:"approve,reject,request_changes"`
	Reason string `json:"reason,omitempty"`
}

type UpdateArtifactRequest struct {
	Name              string               `json:"name,omitempty"`
	Description       string               `json:"description,omitempty"`
	Config            *domain.RenderConfig `json:"config,omitempty"`
	Data              *domain.SampleData   `json:"data,omitempty"`
	ChangeDescription string               `json:"change_description" minLength:"1"`
}

type DevLoginRequest struct {
	ViewerID string `json:"viewer_id"`
	OrgID    string `json:"org_id"`
	Role     string `json:"role,omitempty"`
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
}

// Response payloads

type CategoriesResponse struct {
	Items []catalog.Category `json:"items"`
}

type TemplatesResponse struct {
	Items []domain.Template `json:"items"`
}

type GenerateResponse struct {
	OK             bool                `json:"ok"`
	Classification classify.Result     `json:"classification"`
	Definition     domain.Definition   `json:"definition"`
	Alternatives   []domain.Definition `json:"alternatives"`
	Artifact       *domain.OrgArtifact `json:"artifact,omitempty"`
}

type ArtifactsResponse struct {
	Items []domain.OrgArtifact `json:"items"`
}

type EventsResponse struct {
	Items []domain.Event `json:"items"`
}

type DevLoginResponse struct {
	Token string `json:"token"`
}

type WhoAmIResponse struct {
	domain.Viewer
	Elevated bool   `json:"elevated"`
	Source   string `json:"source"`
}

func generateResponse(res engine.GenerateResult) GenerateResponse {
	return GenerateResponse{
		OK:             res.OK,
		Classification: res.Classification,
		Definition:     res.Definition,
		Alternatives:   nonNilSlice(res.Alternatives),
		Artifact:       res.Artifact,
	}
}

func versionUpdate(in UpdateArtifactRequest) registry.VersionUpdate {
	return registry.VersionUpdate{
		Name:              in.Name,
		Description:       in.Description,
		Config:            in.Config,
		Data:              in.Data,
		ChangeDescription: in.ChangeDescription,
	}
}

func nonNilSlice[T any](in []T) []T {
	if in == nil {
		return []T{}
	}
	return in
}
