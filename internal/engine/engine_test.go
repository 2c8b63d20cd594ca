package engine_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"chartline/internal/cachemanager"
	"chartline/internal/catalog"
	"chartline/internal/domain"
	"chartline/internal/engine"
	"chartline/internal/engine/auth"
	"chartline/internal/events"
	"chartline/internal/registry"
	"chartline/internal/store"
	"chartline/internal/synth"
)

const prompt = "Show monthly sales trends for the last year"

var (
	analyst = domain.Viewer{ID: "u-analyst", OrgID: "acme", Role: "analyst", Name: "Ana"}
	member  = domain.Viewer{ID: "u-member", OrgID: "acme", Role: "team_member"}
	boss    = domain.Viewer{ID: "u-boss", OrgID: "acme", Role: "manager"}
)

type testEnv struct {
	Engine  engine.Engine
	Ctx     context.Context
	Store   *store.Memory
	Journal *events.Memory
}

func newTestEnv(t *testing.T) testEnv {
	t.Helper()
	var seq atomic.Int64
	st := store.NewMemory()
	journal := events.NewMemory(100)
	regs := registry.NewRegistries(st, registry.Options{
		Journal: journal,
		Now:     func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) },
		NewID:   func() string { return fmt.Sprintf("art-%03d", seq.Add(1)) },
	})
	cat, err := catalog.New(catalog.Options{})
	require.NoError(t, err)
	eng := engine.New(cat, synth.NewSeeded(7), regs, registry.DefaultPolicy(), nil)
	eng.Cache = cachemanager.NewInMemory[string, registry.Library]("library", time.Minute, nil)
	eng.Feed = journal
	eng.Now = func() time.Time { return time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC) }
	return testEnv{Engine: eng, Ctx: context.Background(), Store: st, Journal: journal}
}

func (env testEnv) save(t *testing.T, v domain.Viewer, vis domain.Visibility, approval bool) domain.OrgArtifact {
	t.Helper()
	res, err := env.Engine.Generate(env.Ctx, v, engine.GenerateRequest{
		Prompt:             prompt,
		SaveToOrganization: true,
		Visibility:         vis,
		RequestApproval:    approval,
	})
	require.NoError(t, err)
	require.True(t, res.OK)
	require.NotNil(t, res.Artifact)
	return *res.Artifact
}

func TestGenerateWithoutSaving(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Generate(env.Ctx, analyst, engine.GenerateRequest{Prompt: prompt, IncludeAlternatives: true})
	require.NoError(t, err)
	require.True(t, res.OK)
	assert.Nil(t, res.Artifact)
	assert.Equal(t, domain.ShapeLine, res.Definition.Shape)
	assert.Equal(t, domain.CategorySales, res.Definition.Category)
	assert.Equal(t, []string{"Jan", "Feb", "Mar", "Apr", "May", "Jun"}, res.Definition.Data.Labels)
	assert.Len(t, res.Alternatives, 2)
	assert.Zero(t, env.Store.Saves())
}

func TestGenerateFailureIsAValue(t *testing.T) {
	env := newTestEnv(t)
	res, err := env.Engine.Generate(env.Ctx, analyst, engine.GenerateRequest{Prompt: "   ", SaveToOrganization: true})
	require.NoError(t, err)
	assert.False(t, res.OK)
	assert.True(t, res.Retryable)
	assert.Equal(t, "prompt is empty", res.Reason)
	assert.Nil(t, res.Artifact)
	assert.Zero(t, env.Store.Saves())
}

func TestGenerateRequiresViewer(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Generate(env.Ctx, domain.Viewer{}, engine.GenerateRequest{Prompt: prompt})
	assert.ErrorIs(t, err, auth.ErrUnauthenticated)

	_, err = env.Engine.Generate(env.Ctx, domain.Viewer{ID: "x"}, engine.GenerateRequest{Prompt: prompt})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestGenerateSavesMetadata(t *testing.T) {
	env := newTestEnv(t)
	a := env.save(t, analyst, domain.VisibilityTeam, false)
	assert.Equal(t, "acme", a.OrgID)
	assert.Equal(t, domain.SourceGenerated, a.Source)
	assert.Equal(t, domain.ApprovalApproved, a.Approval.State)
	require.NotNil(t, a.Generation)
	assert.Equal(t, prompt, a.Generation.Prompt)
	assert.Equal(t, engine.DefaultModel, a.Generation.Model)
	assert.InDelta(t, 0.4, a.Generation.Confidence, 1e-9)
	assert.Equal(t, 1, a.Generation.Iterations)
	assert.Equal(t, analyst.Creator(), a.Creator)
}

func TestApprovalFlow(t *testing.T) {
	env := newTestEnv(t)
	a := env.save(t, analyst, domain.VisibilityOrganization, true)
	require.Equal(t, domain.ApprovalPending, a.Approval.State)

	lib, err := env.Engine.Library(env.Ctx, member)
	require.NoError(t, err)
	assert.Empty(t, lib.Union(), "pending organization artifact is hidden from plain members")

	req := domain.ApprovalRequest{ArtifactID: a.ID, Action: domain.ActionApprove}
	_, err = env.Engine.Approve(env.Ctx, analyst, req)
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, auth.PermApprove, fe.Permission)

	got, err := env.Engine.Approve(env.Ctx, boss, req)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalApproved, got.Approval.State)
	assert.Equal(t, boss.ID, got.Approval.ApprovedBy)
	require.NotNil(t, got.Approval.ApprovedAt)

	lib, err = env.Engine.Library(env.Ctx, member)
	require.NoError(t, err)
	require.Len(t, lib.Union(), 1)
	assert.Equal(t, a.ID, lib.Union()[0].ID)

	_, err = env.Engine.Approve(env.Ctx, boss, domain.ApprovalRequest{ArtifactID: a.ID, Action: domain.ActionReject})
	var te domain.TransitionError
	assert.ErrorAs(t, err, &te)
}

func TestApproveHiddenArtifactIsNotFound(t *testing.T) {
	env := newTestEnv(t)
	a := env.save(t, analyst, domain.VisibilityPrivate, false)
	_, err := env.Engine.Approve(env.Ctx, boss, domain.ApprovalRequest{ArtifactID: a.ID, Action: domain.ActionApprove})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.Engine.Approve(env.Ctx, boss, domain.ApprovalRequest{ArtifactID: "missing", Action: domain.ActionApprove})
	assert.ErrorIs(t, err, domain.ErrNotFound)

	_, err = env.Engine.Approve(env.Ctx, boss, domain.ApprovalRequest{Action: domain.ActionApprove})
	assert.ErrorIs(t, err, domain.ErrInvalid)
}

func TestPrivateReviewRejected(t *testing.T) {
	env := newTestEnv(t)
	_, err := env.Engine.Generate(env.Ctx, analyst, engine.GenerateRequest{
		Prompt:             prompt,
		SaveToOrganization: true,
		Visibility:         domain.VisibilityPrivate,
		RequestApproval:    true,
	})
	assert.ErrorIs(t, err, registry.ErrPrivateReview)
	assert.ErrorIs(t, err, domain.ErrInvalid)

	lib, err := env.Engine.Library(env.Ctx, analyst)
	require.NoError(t, err)
	assert.Empty(t, lib.Mine)
}

func TestLibraryLayoutAndCache(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, analyst, domain.VisibilityPrivate, false)

	lib, err := env.Engine.Library(env.Ctx, analyst)
	require.NoError(t, err)
	cats := env.Engine.Catalog.Categories()
	require.Len(t, lib.Categories, len(cats)+2)
	assert.Equal(t, string(cats[0].ID), lib.Categories[0].ID)
	assert.Equal(t, registry.BucketGenerated, lib.Categories[len(cats)].ID)
	assert.Equal(t, registry.BucketOrganization, lib.Categories[len(cats)+1].ID)
	assert.Len(t, lib.Mine, 1)
	assert.Equal(t, int64(1), lib.Revision)

	again, err := env.Engine.Library(env.Ctx, analyst)
	require.NoError(t, err)
	assert.Equal(t, lib.Revision, again.Revision)
	assert.Equal(t, 1, env.Engine.Cache.Len())

	env.save(t, analyst, domain.VisibilityPrivate, false)
	fresh, err := env.Engine.Library(env.Ctx, analyst)
	require.NoError(t, err)
	assert.Len(t, fresh.Mine, 2)
	assert.Equal(t, int64(2), fresh.Revision)
}

func TestInstall(t *testing.T) {
	env := newTestEnv(t)
	shared := env.save(t, analyst, domain.VisibilityOrganization, false)
	pending := env.save(t, analyst, domain.VisibilityOrganization, true)

	got, err := env.Engine.Install(env.Ctx, member, shared.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.Usage.TotalInstalls)
	assert.Equal(t, 1, got.Usage.UniqueUsers)

	_, err = env.Engine.Install(env.Ctx, member, pending.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestUpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	a := env.save(t, analyst, domain.VisibilityOrganization, false)
	u := registry.VersionUpdate{Name: "Renamed", ChangeDescription: "rename"}

	_, err := env.Engine.Update(env.Ctx, member, a.ID, u)
	var fe auth.ForbiddenError
	require.ErrorAs(t, err, &fe)
	assert.Equal(t, auth.PermModify, fe.Permission)

	got, err := env.Engine.Update(env.Ctx, analyst, a.ID, u)
	require.NoError(t, err)
	require.Len(t, got.Versions, 2)
	assert.Equal(t, "1.1.0", got.Versions[1].Version)
	assert.Equal(t, "Renamed", got.Definition.Name)

	assert.ErrorIs(t, env.Engine.Delete(env.Ctx, analyst, a.ID), engine.ErrNotImplemented)
	assert.True(t, auth.IsForbidden(env.Engine.Delete(env.Ctx, member, a.ID)))

	still, err := env.Engine.Get(env.Ctx, analyst, a.ID)
	require.NoError(t, err)
	assert.Equal(t, a.ID, still.ID)
}

func TestSubmitAfterRejection(t *testing.T) {
	env := newTestEnv(t)
	a := env.save(t, analyst, domain.VisibilityTeam, true)
	_, err := env.Engine.Approve(env.Ctx, boss, domain.ApprovalRequest{ArtifactID: a.ID, Action: domain.ActionReject, Reason: "wrong axis"})
	require.NoError(t, err)

	got, err := env.Engine.Submit(env.Ctx, analyst, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalPending, got.Approval.State)

	_, err = env.Engine.Submit(env.Ctx, analyst, a.ID)
	var te domain.TransitionError
	assert.ErrorAs(t, err, &te)

	pending, err := env.Engine.Pending(env.Ctx, boss)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, a.ID, pending[0].ID)
}

func TestStatsScope(t *testing.T) {
	env := newTestEnv(t)
	env.save(t, analyst, domain.VisibilityPrivate, false)
	env.save(t, analyst, domain.VisibilityOrganization, false)

	all, err := env.Engine.Stats(env.Ctx, boss)
	require.NoError(t, err)
	assert.Equal(t, 2, all.Total)

	visible, err := env.Engine.Stats(env.Ctx, member)
	require.NoError(t, err)
	assert.Equal(t, 1, visible.Total)
}

func TestEventsFeed(t *testing.T) {
	env := newTestEnv(t)
	a := env.save(t, analyst, domain.VisibilityOrganization, true)
	_, err := env.Engine.Approve(env.Ctx, boss, domain.ApprovalRequest{ArtifactID: a.ID, Action: domain.ActionApprove})
	require.NoError(t, err)

	evts, err := env.Engine.Events(env.Ctx, member, 10)
	require.NoError(t, err)
	require.Len(t, evts, 2)
	assert.Equal(t, registry.EventApproval, evts[0].Type)

	other := domain.Viewer{ID: "x", OrgID: "globex"}
	evts, err = env.Engine.Events(env.Ctx, other, 10)
	require.NoError(t, err)
	assert.Empty(t, evts)
}

func TestPersistenceFailureSurfaces(t *testing.T) {
	env := newTestEnv(t)
	a := env.save(t, analyst, domain.VisibilityOrganization, true)
	env.Store.SetSaveErr(errors.New("disk full"))

	_, err := env.Engine.Approve(env.Ctx, boss, domain.ApprovalRequest{ArtifactID: a.ID, Action: domain.ActionApprove})
	require.Error(t, err)
	assert.True(t, registry.IsPersistError(err))

	got, err := env.Engine.Get(env.Ctx, analyst, a.ID)
	require.NoError(t, err)
	assert.Equal(t, domain.ApprovalPending, got.Approval.State)
}
