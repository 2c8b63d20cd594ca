package registry

import (
	"slices"

	"chartline/internal/domain"
)

// Grant tokens written into default permission sets. They are labels, not wildcards: a viewer
// matches a grant only by exact id or exact role.
const (
	GrantAllUsers = "all_users"
	GrantPublic   = "public"
)

var (
	DefaultElevatedRoles = []string{"admin", "manager", "team_lead"}
	DefaultTeamRoles     = []string{"team_member", "team_lead", "manager", "admin"}
)

// Policy holds the organization-wide role sets the visibility rules depend on.
type Policy struct {
	Elevated []string
	Team     []string
}

// DefaultPolicy uses the stock elevated and team role sets.
func DefaultPolicy() Policy {
	return Policy{Elevated: slices.Clone(DefaultElevatedRoles), Team: slices.Clone(DefaultTeamRoles)}
}

// WithDefaults fills empty role sets with the stock ones.
func (p Policy) WithDefaults() Policy {
	if len(p.Elevated) == 0 {
		p.Elevated = slices.Clone(DefaultElevatedRoles)
	}
	if len(p.Team) == 0 {
		p.Team = slices.Clone(DefaultTeamRoles)
	}
	return p
}

// IsElevated reports whether role may approve regardless of per-artifact grants.
func (p Policy) IsElevated(role string) bool {
	return role != "" && slices.Contains(p.Elevated, role)
}

// DefaultPermissions derives the grant sets for a new artifact.
func (p Policy) DefaultPermissions(v domain.Visibility, creatorID string) domain.Permissions {
	if v == domain.VisibilityPrivate {
		only := []string{creatorID}
		return domain.Permissions{
			View:    only,
			Use:     slices.Clone(only),
			Modify:  slices.Clone(only),
			Approve: []string{},
		}
	}
	var grants []string
	switch v {
	case domain.VisibilityTeam:
		grants = slices.Clone(p.Team)
	case domain.VisibilityOrganization:
		grants = []string{GrantAllUsers}
	case domain.VisibilityPublic:
		grants = []string{GrantPublic}
	}
	return domain.Permissions{
		View:    grants,
		Use:     slices.Clone(grants),
		Modify:  []string{creatorID},
		Approve: slices.Clone(p.Elevated),
	}
}

func granted(set []string, v domain.Viewer) bool {
	for _, g := range set {
		if g == "" {
			continue
		}
		if g == v.ID || g == v.Role {
			return true
		}
	}
	return false
}

func isCreator(a domain.OrgArtifact, v domain.Viewer) bool {
	return v.ID != "" && a.Creator.ID == v.ID
}

// CanView applies the visibility rules for one viewer.
func (p Policy) CanView(a domain.OrgArtifact, v domain.Viewer) bool {
	if isCreator(a, v) {
		return true
	}
	switch a.Visibility {
	case domain.VisibilityPublic:
		return true
	case domain.VisibilityTeam, domain.VisibilityOrganization:
		if granted(a.Permissions.View, v) {
			return true
		}
		if a.Approval.State == domain.ApprovalPending && granted(a.Permissions.Approve, v) {
			return true
		}
		return a.Visibility == domain.VisibilityOrganization && a.Approval.State == domain.ApprovalApproved
	default:
		return false
	}
}

// CanApprove reports whether v may take an approval decision on a.
func (p Policy) CanApprove(a domain.OrgArtifact, v domain.Viewer) bool {
	return granted(a.Permissions.Approve, v) || p.IsElevated(v.Role)
}

// CanUse reports whether v may install a.
func (p Policy) CanUse(a domain.OrgArtifact, v domain.Viewer) bool {
	if isCreator(a, v) {
		return true
	}
	if !p.CanView(a, v) {
		return false
	}
	if a.Visibility == domain.VisibilityPublic {
		return true
	}
	if a.Visibility == domain.VisibilityOrganization && a.Approval.State == domain.ApprovalApproved {
		return true
	}
	return granted(a.Permissions.Use, v)
}

// CanModify reports whether v may append versions to a.
func (p Policy) CanModify(a domain.OrgArtifact, v domain.Viewer) bool {
	if isCreator(a, v) || granted(a.Permissions.Modify, v) {
		return true
	}
	return a.Visibility != domain.VisibilityPrivate && p.IsElevated(v.Role)
}
