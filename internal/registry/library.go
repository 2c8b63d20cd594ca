package registry

import (
	"chartline/internal/domain"
	"chartline/internal/stats"
)

// Bucket ids of the synthesized library categories.
const (
	BucketGenerated    = "generated"
	BucketOrganization = "organization"
)

// Library is one viewer's view of the organization's collection.
type Library struct {
	OrgID      string                   `json:"org_id"`
	Revision   int64                    `json:"revision"`
	Categories []domain.LibraryCategory `json:"categories"`
	Generated  []domain.OrgArtifact     `json:"generated"`
	Pending    []domain.OrgArtifact     `json:"pending"`
	Mine       []domain.OrgArtifact     `json:"mine"`
	Team       []domain.OrgArtifact     `json:"team"`
	Stats      stats.Stats              `json:"stats"`
}

// Union returns the artifacts of the four subsets with each id at most once, in subset order.
func (l Library) Union() []domain.OrgArtifact {
	return Dedup(l.Generated, l.Pending, l.Mine, l.Team)
}

// Dedup concatenates collections keeping the first occurrence of every id.
func Dedup(collections ...[]domain.OrgArtifact) []domain.OrgArtifact {
	seen := make(map[string]struct{})
	out := []domain.OrgArtifact{}
	for _, c := range collections {
		for _, a := range c {
			if _, dup := seen[a.ID]; dup {
				continue
			}
			seen[a.ID] = struct{}{}
			out = append(out, a)
		}
	}
	return out
}

// Library computes v's view. The visibility filter runs once; every subset is derived from
// the filtered set.
func (r *Registry) Library(v domain.Viewer) Library {
	r.mu.RLock()
	revision := r.revision
	visible := make([]domain.OrgArtifact, 0, len(r.artifacts))
	for _, a := range r.artifacts {
		if r.opts.Policy.CanView(a, v) {
			visible = append(visible, a.Clone())
		}
	}
	r.mu.RUnlock()
	return buildLibrary(r.orgID, revision, r.opts.Policy, visible, v)
}

func buildLibrary(orgID string, revision int64, p Policy, visible []domain.OrgArtifact, v domain.Viewer) Library {
	lib := Library{
		OrgID:     orgID,
		Revision:  revision,
		Generated: []domain.OrgArtifact{},
		Pending:   []domain.OrgArtifact{},
		Mine:      []domain.OrgArtifact{},
		Team:      []domain.OrgArtifact{},
	}
	var shared []domain.OrgArtifact
	for _, a := range visible {
		mine := v.ID != "" && a.Creator.ID == v.ID
		if a.Source == domain.SourceGenerated {
			lib.Generated = append(lib.Generated, a)
		}
		if a.Approval.State == domain.ApprovalPending && p.CanApprove(a, v) {
			lib.Pending = append(lib.Pending, a)
		}
		if mine {
			lib.Mine = append(lib.Mine, a)
		}
		if a.Visibility == domain.VisibilityTeam && !mine {
			lib.Team = append(lib.Team, a)
		}
		if a.Approval.State == domain.ApprovalApproved &&
			(a.Visibility == domain.VisibilityOrganization || a.Visibility == domain.VisibilityPublic) {
			shared = append(shared, a)
		}
	}
	lib.Categories = []domain.LibraryCategory{
		{
			ID:          BucketGenerated,
			Name:        "Generated",
			Description: "Charts generated from prompts",
			Artifacts:   lib.Generated,
		},
		{
			ID:          BucketOrganization,
			Name:        "Organization",
			Description: "Approved charts shared across the organization",
			Artifacts:   shared,
		},
	}
	lib.Stats = stats.Compute(visible)
	return lib
}
