package domain

import (
	"errors"
	"fmt"
	"time"
)

// ErrNotFound is returned when an operation requires an artifact that does not exist.
var ErrNotFound = errors.New("not found")

// ErrInvalid marks malformed caller input.
var ErrInvalid = errors.New("invalid input")

// ApprovalState is the moderation stage of an artifact.
type ApprovalState string

const (
	ApprovalDraft    ApprovalState = "draft"
	ApprovalPending  ApprovalState = "pending"
	ApprovalApproved ApprovalState = "approved"
	ApprovalRejected ApprovalState = "rejected"
)

func (s ApprovalState) Valid() bool {
	switch s {
	case ApprovalDraft, ApprovalPending, ApprovalApproved, ApprovalRejected:
		return true
	default:
		return false
	}
}

// approvalEdges is the complete moderation graph. approved is terminal.
var approvalEdges = map[ApprovalState][]ApprovalState{
	ApprovalDraft:    {ApprovalPending},
	ApprovalPending:  {ApprovalApproved, ApprovalRejected, ApprovalDraft},
	ApprovalRejected: {ApprovalPending},
}

// CanTransition reports whether from -> to is an edge of the moderation graph.
func CanTransition(from, to ApprovalState) bool {
	for _, next := range approvalEdges[from] {
		if next == to {
			return true
		}
	}
	return false
}

// TransitionError reports an approval state change that is not an edge of the graph.
type TransitionError struct {
	From ApprovalState
	To   ApprovalState
}

func (e TransitionError) Error() string {
	return fmt.Sprintf("invalid approval transition %s -> %s", e.From, e.To)
}

// EnsureTransition returns a TransitionError when from -> to is not allowed.
func EnsureTransition(from, to ApprovalState) error {
	if CanTransition(from, to) {
		return nil
	}
	return TransitionError{From: from, To: to}
}

// ApprovalAction is a reviewer decision.
type ApprovalAction string

const (
	ActionApprove        ApprovalAction = "approve"
	ActionReject         ApprovalAction = "reject"
	ActionRequestChanges ApprovalAction = "request_changes"
)

// Target returns the approval state an action moves an artifact into.
func (a ApprovalAction) Target() (ApprovalState, error) {
	switch a {
	case ActionApprove:
		return ApprovalApproved, nil
	case ActionReject:
		return ApprovalRejected, nil
	case ActionRequestChanges:
		return ApprovalDraft, nil
	default:
		return "", fmt.Errorf("invalid approval action %q", a)
	}
}

// ApprovalRequest is a reviewer decision on one artifact.
type ApprovalRequest struct {
	ArtifactID string         `json:"artifact_id"`
	Action     ApprovalAction `json:"action"`
	Reason     string         `json:"reason,omitempty"`
}

// Approval is the moderation block of an artifact.
type Approval struct {
	State           ApprovalState `json:"state"`
	RejectionReason string        `json:"rejection_reason,omitempty"`
	ApprovedBy      string        `json:"approved_by,omitempty"`
	ApprovedAt      *time.Time    `json:"approved_at,omitempty"`
}
