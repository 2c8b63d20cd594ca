// Package registry owns each organization's artifact collection: ownership, visibility,
// approval, versions and usage.
package registry

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/Masterminds/semver/v3"
	"github.com/google/uuid"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"chartline/internal/domain"
	"chartline/internal/stats"
	"chartline/internal/store"
)

const (
	InitialVersion     = "1.0.0"
	InitialDescription = "initial generation"

	EventCreated      = "artifact.created"
	EventApproval     = "artifact.approval"
	EventSubmitted    = "artifact.submitted"
	EventVersionAdded = "artifact.version_added"
	EventInstalled    = "artifact.installed"

	entityArtifact = "artifact"
)

// ErrPrivateReview is returned when a private artifact is sent for approval. Private artifacts
// have no reviewer.
var ErrPrivateReview = fmt.Errorf("%w: private artifacts cannot be submitted for approval", domain.ErrInvalid)

// PersistError reports a durable store failure. The in-memory collection is unchanged
// whenever it is returned.
type PersistError struct {
	OrgID string
	Op    string
	Err   error
}

func (e *PersistError) Error() string {
	return fmt.Sprintf("persist %s for org %s: %v", e.Op, e.OrgID, e.Err)
}

func (e *PersistError) Unwrap() error { return e.Err }

// Journal receives one event per committed mutation.
type Journal interface {
	Record(ctx context.Context, e domain.Event) error
}

// Options are shared by every registry of a process.
type Options struct {
	Policy  Policy
	Journal Journal
	Logger  *zap.Logger
	Tracer  trace.Tracer
	Now     func() time.Time
	NewID   func() string
}

func (o Options) withDefaults() Options {
	o.Policy = o.Policy.WithDefaults()
	if o.Logger == nil {
		o.Logger = zap.NewNop()
	}
	if o.Tracer == nil {
		o.Tracer = noop.NewTracerProvider().Tracer("registry")
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	if o.NewID == nil {
		o.NewID = uuid.NewString
	}
	return o
}

// Registry manages exactly one organization's collection. Reads share a read lock; every
// mutation holds the write lock across the store round trip, so mutations are linearized
// per organization.
type Registry struct {
	orgID string
	store store.Store
	opts  Options
	log   *zap.Logger

	mu        sync.RWMutex
	artifacts []domain.OrgArtifact
	index     map[string]int
	revision  int64
}

// Open loads orgID's collection from st.
func Open(ctx context.Context, orgID string, st store.Store, opts Options) (*Registry, error) {
	if strings.TrimSpace(orgID) == "" {
		return nil, store.ErrInvalidOrg
	}
	opts = opts.withDefaults()
	ctx, span := opts.Tracer.Start(ctx, "registry.load", trace.WithAttributes(attribute.String("org_id", orgID)))
	defer span.End()

	r := &Registry{
		orgID: orgID,
		store: st,
		opts:  opts,
		log:   opts.Logger.With(zap.String("org_id", orgID)),
		index: make(map[string]int),
	}
	blob, err := st.Load(ctx, orgID)
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "load failed")
		return nil, &PersistError{OrgID: orgID, Op: "load", Err: err}
	}
	if len(blob) > 0 {
		var f domain.LibraryFile
		if err := json.Unmarshal(blob, &f); err != nil {
			return nil, &PersistError{OrgID: orgID, Op: "decode", Err: err}
		}
		if f.OrgID != "" && f.OrgID != orgID {
			return nil, &PersistError{OrgID: orgID, Op: "decode", Err: fmt.Errorf("collection belongs to org %s", f.OrgID)}
		}
		r.artifacts = f.Artifacts
		r.revision = f.Revision
		r.reindex()
	}
	r.log.Debug("registry loaded", zap.Int("artifacts", len(r.artifacts)), zap.Int64("revision", r.revision))
	return r, nil
}

func (r *Registry) OrgID() string { return r.orgID }

// Policy returns the visibility rules this registry applies.
func (r *Registry) Policy() Policy { return r.opts.Policy }

// Revision increases by one with every committed mutation.
func (r *Registry) Revision() int64 {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.revision
}

func (r *Registry) reindex() {
	r.index = make(map[string]int, len(r.artifacts))
	for i, a := range r.artifacts {
		r.index[a.ID] = i
	}
}

// commit persists next and swaps it in. Callers hold the write lock.
func (r *Registry) commit(ctx context.Context, op string, next []domain.OrgArtifact) error {
	f := domain.LibraryFile{OrgID: r.orgID, Revision: r.revision + 1, Artifacts: next}
	blob, err := json.Marshal(f)
	if err != nil {
		return &PersistError{OrgID: r.orgID, Op: op, Err: err}
	}
	if err := r.store.Save(ctx, r.orgID, blob); err != nil {
		r.log.Error("persist failed", zap.String("op", op), zap.Error(err))
		return &PersistError{OrgID: r.orgID, Op: op, Err: err}
	}
	r.artifacts = next
	r.revision = f.Revision
	r.reindex()
	return nil
}

func (r *Registry) record(ctx context.Context, evtType, artifactID, actorID string, payload map[string]any) {
	r.log.Info("registry mutation", zap.String("event", evtType), zap.String("artifact_id", artifactID), zap.String("actor_id", actorID))
	if r.opts.Journal == nil {
		return
	}
	data, err := json.Marshal(payload)
	if err != nil {
		r.log.Warn("journal payload", zap.Error(err))
		return
	}
	evt := domain.Event{
		TS:         r.opts.Now().UTC().Format(time.RFC3339),
		Type:       evtType,
		OrgID:      r.orgID,
		EntityKind: entityArtifact,
		EntityID:   artifactID,
		ActorID:    actorID,
		Payload:    string(data),
	}
	if err := r.opts.Journal.Record(ctx, evt); err != nil {
		r.log.Warn("journal append failed", zap.String("event", evtType), zap.Error(err))
	}
}

func (r *Registry) span(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	attrs = append(attrs, attribute.String("org_id", r.orgID))
	return r.opts.Tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// SaveRequest carries the caller's options for persisting a synthesized definition.
type SaveRequest struct {
	Visibility      domain.Visibility
	RequestApproval bool
	Source          domain.Source
	TenantID        string
	Generation      *domain.GenerationMeta
}

// SaveGenerated wraps def with organizational metadata and persists it. It is the only path
// that creates artifact ids.
func (r *Registry) SaveGenerated(ctx context.Context, req SaveRequest, def domain.Definition, creator domain.Creator) (out domain.OrgArtifact, err error) {
	ctx, span := r.span(ctx, "registry.save_generated")
	defer func() { endSpan(span, err) }()

	if creator.ID == "" {
		return out, fmt.Errorf("%w: creator id is required", domain.ErrInvalid)
	}
	if !def.Shape.Valid() || !def.Category.Valid() {
		return out, fmt.Errorf("%w: definition has shape %q and category %q", domain.ErrInvalid, def.Shape, def.Category)
	}
	if req.Visibility == "" {
		req.Visibility = domain.VisibilityPrivate
	}
	if !req.Visibility.Valid() {
		return out, fmt.Errorf("%w: visibility %q", domain.ErrInvalid, req.Visibility)
	}
	if req.RequestApproval && req.Visibility == domain.VisibilityPrivate {
		return out, ErrPrivateReview
	}
	if req.Source == "" {
		req.Source = domain.SourceGenerated
	}
	tenant := req.TenantID
	if tenant == "" {
		tenant = r.orgID
	}

	now := r.opts.Now().UTC()
	state := domain.ApprovalApproved
	if req.RequestApproval {
		state = domain.ApprovalPending
	}
	a := domain.OrgArtifact{
		ID:          r.opts.NewID(),
		OrgID:       r.orgID,
		TenantID:    tenant,
		Definition:  def.Clone(),
		Creator:     creator,
		Source:      req.Source,
		Visibility:  req.Visibility,
		Approval:    domain.Approval{State: state},
		Permissions: r.opts.Policy.DefaultPermissions(req.Visibility, creator.ID),
		Usage:       domain.Usage{History: []domain.UsageEvent{}},
		Versions: []domain.Version{{
			Version:           InitialVersion,
			CreatedAt:         now,
			CreatedBy:         creator.ID,
			ChangeDescription: InitialDescription,
			ConfigSnapshot:    def.Config.Clone(),
			DataSnapshot:      def.Data.Clone(),
		}},
		CreatedAt: now,
		UpdatedAt: now,
	}
	if req.Source == domain.SourceGenerated && req.Generation != nil {
		g := *req.Generation
		a.Generation = &g
	}

	if err := r.insert(ctx, a); err != nil {
		return out, err
	}
	r.record(ctx, EventCreated, a.ID, creator.ID, map[string]any{
		"visibility": a.Visibility,
		"state":      a.Approval.State,
		"shape":      a.Definition.Shape,
	})
	return a.Clone(), nil
}

func (r *Registry) insert(ctx context.Context, a domain.OrgArtifact) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, dup := r.index[a.ID]; dup {
		return fmt.Errorf("%w: artifact id %s already exists", domain.ErrInvalid, a.ID)
	}
	return r.commit(ctx, "save_generated", append(slices.Clip(r.artifacts), a))
}

// update applies fn to a copy of the artifact and commits it. The stored artifact is never
// modified in place.
func (r *Registry) update(ctx context.Context, op, id string, fn func(a *domain.OrgArtifact) error) (domain.OrgArtifact, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	i, ok := r.index[id]
	if !ok {
		return domain.OrgArtifact{}, domain.ErrNotFound
	}
	a := r.artifacts[i].Clone()
	if err := fn(&a); err != nil {
		return domain.OrgArtifact{}, err
	}
	next := slices.Clone(r.artifacts)
	next[i] = a
	if err := r.commit(ctx, op, next); err != nil {
		return domain.OrgArtifact{}, err
	}
	return a.Clone(), nil
}

// ProcessApproval applies a reviewer decision. It does not check whether approverID may
// approve; callers do that first. Moves that are not edges of the approval graph fail with
// domain.TransitionError.
func (r *Registry) ProcessApproval(ctx context.Context, req domain.ApprovalRequest, approverID string) (out domain.OrgArtifact, err error) {
	ctx, span := r.span(ctx, "registry.process_approval",
		attribute.String("artifact_id", req.ArtifactID), attribute.String("action", string(req.Action)))
	defer func() { endSpan(span, err) }()

	target, err := req.Action.Target()
	if err != nil {
		return out, fmt.Errorf("%w: %v", domain.ErrInvalid, err)
	}
	var from domain.ApprovalState
	out, err = r.update(ctx, "process_approval", req.ArtifactID, func(a *domain.OrgArtifact) error {
		from = a.Approval.State
		if err := domain.EnsureTransition(from, target); err != nil {
			return err
		}
		now := r.opts.Now().UTC()
		a.Approval.State = target
		a.Approval.ApprovedBy = approverID
		a.Approval.ApprovedAt = &now
		a.Approval.RejectionReason = ""
		if req.Action == domain.ActionReject {
			a.Approval.RejectionReason = req.Reason
		}
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return out, err
	}
	r.record(ctx, EventApproval, out.ID, approverID, map[string]any{
		"action": req.Action,
		"from":   from,
		"to":     target,
		"reason": req.Reason,
	})
	return out, nil
}

// Submit moves a draft or rejected artifact back into review.
func (r *Registry) Submit(ctx context.Context, id, actorID string) (out domain.OrgArtifact, err error) {
	ctx, span := r.span(ctx, "registry.submit", attribute.String("artifact_id", id))
	defer func() { endSpan(span, err) }()

	var from domain.ApprovalState
	out, err = r.update(ctx, "submit", id, func(a *domain.OrgArtifact) error {
		from = a.Approval.State
		if a.Visibility == domain.VisibilityPrivate {
			return ErrPrivateReview
		}
		if err := domain.EnsureTransition(from, domain.ApprovalPending); err != nil {
			return err
		}
		a.Approval.State = domain.ApprovalPending
		a.UpdatedAt = r.opts.Now().UTC()
		return nil
	})
	if err != nil {
		return out, err
	}
	r.record(ctx, EventSubmitted, id, actorID, map[string]any{"from": from})
	return out, nil
}

// VersionUpdate is a change to the current definition. Nil fields keep their value.
type VersionUpdate struct {
	Name              string
	Description       string
	Config            *domain.RenderConfig
	Data              *domain.SampleData
	ChangeDescription string
}

// AppendVersion records a new version with the next minor number. Earlier versions are
// never rewritten.
func (r *Registry) AppendVersion(ctx context.Context, id string, u VersionUpdate, actorID string) (out domain.OrgArtifact, err error) {
	ctx, span := r.span(ctx, "registry.append_version", attribute.String("artifact_id", id))
	defer func() { endSpan(span, err) }()

	if strings.TrimSpace(u.ChangeDescription) == "" {
		return out, fmt.Errorf("%w: change description is required", domain.ErrInvalid)
	}
	var version string
	out, err = r.update(ctx, "append_version", id, func(a *domain.OrgArtifact) error {
		next, err := nextVersion(*a)
		if err != nil {
			return err
		}
		version = next
		if u.Name != "" {
			a.Definition.Name = u.Name
		}
		if u.Description != "" {
			a.Definition.Description = u.Description
		}
		if u.Config != nil {
			a.Definition.Config = u.Config.Clone()
		}
		if u.Data != nil {
			a.Definition.Data = u.Data.Clone()
		}
		now := r.opts.Now().UTC()
		a.Versions = append(a.Versions, domain.Version{
			Version:           next,
			CreatedAt:         now,
			CreatedBy:         actorID,
			ChangeDescription: u.ChangeDescription,
			ConfigSnapshot:    a.Definition.Config.Clone(),
			DataSnapshot:      a.Definition.Data.Clone(),
		})
		a.UpdatedAt = now
		return nil
	})
	if err != nil {
		return out, err
	}
	r.record(ctx, EventVersionAdded, id, actorID, map[string]any{"version": version})
	return out, nil
}

func nextVersion(a domain.OrgArtifact) (string, error) {
	cur, ok := a.CurrentVersion()
	if !ok {
		return InitialVersion, nil
	}
	v, err := semver.NewVersion(cur.Version)
	if err != nil {
		return "", fmt.Errorf("artifact %s has invalid version %q: %w", a.ID, cur.Version, err)
	}
	return v.IncMinor().String(), nil
}

// RecordUsage appends a usage event and refreshes the aggregates.
func (r *Registry) RecordUsage(ctx context.Context, id, userID, action string) (out domain.OrgArtifact, err error) {
	ctx, span := r.span(ctx, "registry.record_usage", attribute.String("artifact_id", id))
	defer func() { endSpan(span, err) }()

	if userID == "" {
		return out, fmt.Errorf("%w: user id is required", domain.ErrInvalid)
	}
	if action == "" {
		action = "install"
	}
	out, err = r.update(ctx, "record_usage", id, func(a *domain.OrgArtifact) error {
		now := r.opts.Now().UTC()
		a.Usage.History = append(a.Usage.History, domain.UsageEvent{
			ID:     r.opts.NewID(),
			UserID: userID,
			Action: action,
			At:     now,
		})
		a.Usage.TotalInstalls++
		a.Usage.UniqueUsers = uniqueUsers(a.Usage.History)
		a.Usage.LastUsedAt = &now
		return nil
	})
	if err != nil {
		return out, err
	}
	r.record(ctx, EventInstalled, id, userID, map[string]any{"action": action, "total": out.Usage.TotalInstalls})
	return out, nil
}

func uniqueUsers(h []domain.UsageEvent) int {
	seen := make(map[string]struct{}, len(h))
	for _, e := range h {
		seen[e.UserID] = struct{}{}
	}
	return len(seen)
}

// Get returns a copy of the artifact. The boolean is false when the id is unknown.
func (r *Registry) Get(id string) (domain.OrgArtifact, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	i, ok := r.index[id]
	if !ok {
		return domain.OrgArtifact{}, false
	}
	return r.artifacts[i].Clone(), true
}

// All returns a copy of the whole collection in creation order.
func (r *Registry) All() []domain.OrgArtifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return cloneAll(r.artifacts)
}

// Stats aggregates the whole collection.
func (r *Registry) Stats() stats.Stats {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return stats.Compute(r.artifacts)
}

func (r *Registry) filter(keep func(domain.OrgArtifact) bool) []domain.OrgArtifact {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := []domain.OrgArtifact{}
	for _, a := range r.artifacts {
		if keep(a) {
			out = append(out, a.Clone())
		}
	}
	return out
}

// Visible returns the artifacts v may see.
func (r *Registry) Visible(v domain.Viewer) []domain.OrgArtifact {
	p := r.opts.Policy
	return r.filter(func(a domain.OrgArtifact) bool { return p.CanView(a, v) })
}

// ListByCreator returns the artifacts created by viewerID.
func (r *Registry) ListByCreator(viewerID string) []domain.OrgArtifact {
	return r.filter(func(a domain.OrgArtifact) bool { return viewerID != "" && a.Creator.ID == viewerID })
}

// ListPendingFor returns the visible pending artifacts v may decide on.
func (r *Registry) ListPendingFor(v domain.Viewer) []domain.OrgArtifact {
	p := r.opts.Policy
	return r.filter(func(a domain.OrgArtifact) bool { return isPendingFor(p, a, v) })
}

func isPendingFor(p Policy, a domain.OrgArtifact, v domain.Viewer) bool {
	return a.Approval.State == domain.ApprovalPending && p.CanView(a, v) && p.CanApprove(a, v)
}

func cloneAll(in []domain.OrgArtifact) []domain.OrgArtifact {
	out := make([]domain.OrgArtifact, len(in))
	for i, a := range in {
		out[i] = a.Clone()
	}
	return out
}

// IsPersistError reports whether err came from the durable store.
func IsPersistError(err error) bool {
	var pe *PersistError
	return errors.As(err, &pe)
}
