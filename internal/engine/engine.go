package engine

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"go.opentelemetry.io/otel/trace/noop"
	"go.uber.org/zap"

	"chartline/internal/cachemanager"
	"chartline/internal/catalog"
	"chartline/internal/classify"
	"chartline/internal/domain"
	"chartline/internal/engine/auth"
	"chartline/internal/registry"
	"chartline/internal/stats"
	"chartline/internal/synth"
)

// DefaultModel identifies the heuristic generator in generation metadata.
const DefaultModel = "heuristic-v1"

// ErrNotImplemented is returned by hooks that authorize but have no behavior yet.
var ErrNotImplemented = errors.New("not implemented")

// EventFeed lists recent journal events of an organization, newest first.
type EventFeed interface {
	Events(ctx context.Context, orgID string, limit int) ([]domain.Event, error)
}

type Engine struct {
	Catalog    *catalog.Catalog
	Synth      *synth.Synthesizer
	Registries *registry.Registries
	Auth       auth.Service
	Cache      cachemanager.CacheManager[string, registry.Library]
	Feed       EventFeed
	Tracer     trace.Tracer
	Logger     *zap.Logger
	Model      string
	Now        func() time.Time
}

func New(cat *catalog.Catalog, syn *synth.Synthesizer, regs *registry.Registries, policy registry.Policy, log *zap.Logger) Engine {
	if log == nil {
		log = zap.NewNop()
	}
	return Engine{
		Catalog:    cat,
		Synth:      syn,
		Registries: regs,
		Auth:       auth.Service{Policy: policy.WithDefaults()},
		Tracer:     noop.NewTracerProvider().Tracer("engine"),
		Logger:     log,
		Model:      DefaultModel,
		Now:        time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e Engine) log() *zap.Logger {
	if e.Logger == nil {
		return zap.NewNop()
	}
	return e.Logger
}

func (e Engine) start(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	t := e.Tracer
	if t == nil {
		t = noop.NewTracerProvider().Tracer("engine")
	}
	return t.Start(ctx, name, trace.WithAttributes(attrs...))
}

func finish(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

// Classify runs the heuristic classifier. It has no side effects.
func (e Engine) Classify(prompt string) classify.Result {
	return classify.Classify(prompt)
}

// GenerateRequest is a prompt plus the caller's persistence options.
type GenerateRequest struct {
	Prompt              string
	IncludeAlternatives bool
	SaveToOrganization  bool
	Visibility          domain.Visibility
	RequestApproval     bool
}

// GenerateResult carries the synthesis outcome and, when saved, the stored artifact.
// Callers check OK before using Definition.
type GenerateResult struct {
	synth.Result
	Artifact *domain.OrgArtifact `json:"artifact,omitempty"`
}

// Generate classifies and synthesizes a chart, saving it to the viewer's organization when
// requested. Generation failures are reported through the result, not the error.
func (e Engine) Generate(ctx context.Context, v domain.Viewer, req GenerateRequest) (res GenerateResult, err error) {
	ctx, span := e.start(ctx, "engine.Generate", attribute.Bool("save", req.SaveToOrganization))
	defer func() { finish(span, err) }()

	if err := e.Auth.EnsureViewer(v, ""); err != nil {
		return res, err
	}
	started := e.now()
	res.Result = e.Synth.Generate(req.Prompt, req.IncludeAlternatives)
	if !res.OK {
		e.log().Info("generation failed", zap.String("viewer_id", v.ID), zap.String("reason", res.Reason))
		return res, nil
	}
	span.SetAttributes(
		attribute.String("shape", string(res.Definition.Shape)),
		attribute.String("category", string(res.Definition.Category)),
	)
	if !req.SaveToOrganization {
		return res, nil
	}
	reg, err := e.Registries.Get(ctx, v.OrgID)
	if err != nil {
		return res, err
	}
	model := e.Model
	if model == "" {
		model = DefaultModel
	}
	meta := &domain.GenerationMeta{
		Prompt:      req.Prompt,
		Model:       model,
		Confidence:  res.Classification.Confidence,
		GeneratedAt: started.UTC(),
		DurationMS:  e.now().Sub(started).Milliseconds(),
		Iterations:  1,
	}
	a, err := reg.SaveGenerated(ctx, registry.SaveRequest{
		Visibility:      req.Visibility,
		RequestApproval: req.RequestApproval,
		Source:          domain.SourceGenerated,
		Generation:      meta,
	}, res.Definition, v.Creator())
	if err != nil {
		return res, err
	}
	res.Artifact = &a
	return res, nil
}

func (e Engine) registry(ctx context.Context, v domain.Viewer) (*registry.Registry, error) {
	if err := e.Auth.EnsureViewer(v, ""); err != nil {
		return nil, err
	}
	return e.Registries.Get(ctx, v.OrgID)
}

// artifact loads id and checks perm for v.
func (e Engine) artifact(ctx context.Context, v domain.Viewer, id, perm string) (*registry.Registry, domain.OrgArtifact, error) {
	if strings.TrimSpace(id) == "" {
		return nil, domain.OrgArtifact{}, fmt.Errorf("%w: artifact id is required", domain.ErrInvalid)
	}
	reg, err := e.registry(ctx, v)
	if err != nil {
		return nil, domain.OrgArtifact{}, err
	}
	a, ok := reg.Get(id)
	if !ok {
		return nil, domain.OrgArtifact{}, domain.ErrNotFound
	}
	if err := e.Auth.Authorize(a, v, perm); err != nil {
		return nil, domain.OrgArtifact{}, err
	}
	return reg, a, nil
}

// Library returns the viewer's library: catalog categories followed by the generated and
// organization buckets, plus the per-viewer subsets and stats. Views are cached per
// registry revision, so any mutation makes the next call recompute.
func (e Engine) Library(ctx context.Context, v domain.Viewer) (registry.Library, error) {
	reg, err := e.registry(ctx, v)
	if err != nil {
		return registry.Library{}, err
	}
	build := func(context.Context) (registry.Library, error) {
		lib := reg.Library(v)
		lib.Categories = append(e.catalogCategories(), lib.Categories...)
		return lib, nil
	}
	if e.Cache == nil {
		return build(ctx)
	}
	key := fmt.Sprintf("%s|%s|%s|%d", v.OrgID, v.ID, v.Role, reg.Revision())
	return e.Cache.GetOrLoad(ctx, key, build)
}

func (e Engine) catalogCategories() []domain.LibraryCategory {
	if e.Catalog == nil {
		return nil
	}
	cats := e.Catalog.Categories()
	out := make([]domain.LibraryCategory, 0, len(cats))
	for _, c := range cats {
		out = append(out, domain.LibraryCategory{
			ID:          string(c.ID),
			Name:        c.Name,
			Description: c.Description,
			Templates:   c.Templates,
		})
	}
	return out
}

// Get returns an artifact the viewer may see.
func (e Engine) Get(ctx context.Context, v domain.Viewer, id string) (domain.OrgArtifact, error) {
	_, a, err := e.artifact(ctx, v, id, auth.PermView)
	return a, err
}

// Approve applies a reviewer decision. Only elevated roles may call it; the registry then
// enforces the approval graph.
func (e Engine) Approve(ctx context.Context, v domain.Viewer, req domain.ApprovalRequest) (domain.OrgArtifact, error) {
	if err := e.Auth.RequireElevated(v); err != nil {
		return domain.OrgArtifact{}, err
	}
	reg, _, err := e.artifact(ctx, v, req.ArtifactID, auth.PermView)
	if err != nil {
		return domain.OrgArtifact{}, err
	}
	return reg.ProcessApproval(ctx, req, v.ID)
}

// Submit puts a draft or rejected artifact back into review.
func (e Engine) Submit(ctx context.Context, v domain.Viewer, id string) (domain.OrgArtifact, error) {
	reg, _, err := e.artifact(ctx, v, id, auth.PermSubmit)
	if err != nil {
		return domain.OrgArtifact{}, err
	}
	return reg.Submit(ctx, id, v.ID)
}

// Install records that the viewer used the artifact.
func (e Engine) Install(ctx context.Context, v domain.Viewer, id string) (domain.OrgArtifact, error) {
	reg, _, err := e.artifact(ctx, v, id, auth.PermUse)
	if err != nil {
		return domain.OrgArtifact{}, err
	}
	return reg.RecordUsage(ctx, id, v.ID, "install")
}

// Update appends a new version to the artifact.
func (e Engine) Update(ctx context.Context, v domain.Viewer, id string, u registry.VersionUpdate) (domain.OrgArtifact, error) {
	reg, _, err := e.artifact(ctx, v, id, auth.PermModify)
	if err != nil {
		return domain.OrgArtifact{}, err
	}
	return reg.AppendVersion(ctx, id, u, v.ID)
}

// Delete authorizes the caller; artifacts are never removed.
func (e Engine) Delete(ctx context.Context, v domain.Viewer, id string) error {
	if _, _, err := e.artifact(ctx, v, id, auth.PermModify); err != nil {
		return err
	}
	return ErrNotImplemented
}

// Stats aggregates the organization's collection. Elevated roles see the whole collection;
// everyone else sees stats of what they can view.
func (e Engine) Stats(ctx context.Context, v domain.Viewer) (stats.Stats, error) {
	reg, err := e.registry(ctx, v)
	if err != nil {
		return stats.Stats{}, err
	}
	if e.Auth.Policy.IsElevated(v.Role) {
		return reg.Stats(), nil
	}
	return stats.Compute(reg.Visible(v)), nil
}

// Pending lists what the viewer may decide on.
func (e Engine) Pending(ctx context.Context, v domain.Viewer) ([]domain.OrgArtifact, error) {
	reg, err := e.registry(ctx, v)
	if err != nil {
		return nil, err
	}
	return reg.ListPendingFor(v), nil
}

// Events returns the newest journal entries of the viewer's organization.
func (e Engine) Events(ctx context.Context, v domain.Viewer, limit int) ([]domain.Event, error) {
	if err := e.Auth.EnsureViewer(v, ""); err != nil {
		return nil, err
	}
	if e.Feed == nil {
		return []domain.Event{}, nil
	}
	evts, err := e.Feed.Events(ctx, v.OrgID, limit)
	if err != nil {
		return nil, err
	}
	if evts == nil {
		evts = []domain.Event{}
	}
	return evts, nil
}
