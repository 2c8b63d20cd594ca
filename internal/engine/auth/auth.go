package auth

import (
	"errors"
	"fmt"

	"chartline/internal/domain"
	"chartline/internal/registry"
)

// Permission names reported by ForbiddenError.
const (
	PermView    = "artifact.view"
	PermUse     = "artifact.use"
	PermModify  = "artifact.modify"
	PermApprove = "artifact.approve"
	PermSubmit  = "artifact.submit"
	PermCreate  = "artifact.create"
)

// ErrUnauthenticated is returned when no viewer identity accompanies a call.
var ErrUnauthenticated = errors.New("viewer identity required")

// ForbiddenError indicates missing permission.
type ForbiddenError struct {
	Permission string
}

func (e ForbiddenError) Error() string {
	return fmt.Sprintf("permission %s required", e.Permission)
}

// OrgMismatchError is returned when a viewer addresses another organization.
type OrgMismatchError struct {
	ViewerOrg string
	Requested string
}

func (e OrgMismatchError) Error() string {
	return fmt.Sprintf("viewer of org %s cannot access org %s", e.ViewerOrg, e.Requested)
}

// Service answers permission questions for the API-facing use cases.
type Service struct {
	Policy registry.Policy
}

// EnsureViewer checks that v is a usable identity scoped to orgID.
func (s Service) EnsureViewer(v domain.Viewer, orgID string) error {
	if v.ID == "" {
		return ErrUnauthenticated
	}
	if v.OrgID == "" {
		return fmt.Errorf("%w: viewer has no organization", domain.ErrInvalid)
	}
	if orgID != "" && v.OrgID != orgID {
		return OrgMismatchError{ViewerOrg: v.OrgID, Requested: orgID}
	}
	return nil
}

// RequireElevated is the approval endpoint pre-check.
func (s Service) RequireElevated(v domain.Viewer) error {
	if !s.Policy.IsElevated(v.Role) {
		return ForbiddenError{Permission: PermApprove}
	}
	return nil
}

// Authorize checks perm on a. Artifacts the viewer cannot see are reported as absent so
// their existence does not leak.
func (s Service) Authorize(a domain.OrgArtifact, v domain.Viewer, perm string) error {
	if !s.Policy.CanView(a, v) {
		return domain.ErrNotFound
	}
	var ok bool
	switch perm {
	case PermView:
		ok = true
	case PermUse:
		ok = s.Policy.CanUse(a, v)
	case PermModify:
		ok = s.Policy.CanModify(a, v)
	case PermApprove:
		ok = s.Policy.CanApprove(a, v)
	case PermSubmit:
		ok = a.Creator.ID == v.ID || s.Policy.CanModify(a, v)
	default:
		return fmt.Errorf("unknown permission %q", perm)
	}
	if !ok {
		return ForbiddenError{Permission: perm}
	}
	return nil
}

// IsForbidden reports whether err is a permission failure.
func IsForbidden(err error) bool {
	var fe ForbiddenError
	var om OrgMismatchError
	return errors.As(err, &fe) || errors.As(err, &om)
}
