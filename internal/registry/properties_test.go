package registry

import (
	"context"
	"fmt"
	"testing"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"
	"github.com/stretchr/testify/require"
	"pgregory.net/rapid"

	"chartline/internal/domain"
)

var (
	viewerIDs = []string{"u1", "u2", "u3", "u4"}
	roles     = []string{"analyst", "team_member", "team_lead", "manager", "admin", GrantAllUsers}
)

func drawViewer(t *rapid.T, label string) domain.Viewer {
	return domain.Viewer{
		ID:    rapid.SampledFrom(viewerIDs).Draw(t, label+"_id"),
		OrgID: "acme",
		Role:  rapid.SampledFrom(roles).Draw(t, label+"_role"),
	}
}

func populate(t *rapid.T, f *fixture) {
	ctx := context.Background()
	n := rapid.IntRange(0, 12).Draw(t, "artifacts")
	for i := 0; i < n; i++ {
		creator := drawViewer(t, "creator")
		vis := rapid.SampledFrom([]domain.Visibility{
			domain.VisibilityPrivate, domain.VisibilityTeam, domain.VisibilityOrganization, domain.VisibilityPublic,
		}).Draw(t, "visibility")
		review := rapid.Bool().Draw(t, "approval") && vis != domain.VisibilityPrivate
		a, err := f.reg.SaveGenerated(ctx, SaveRequest{
			Visibility:      vis,
			RequestApproval: review,
		}, testDefinition(), creator.Creator())
		require.NoError(t, err)
		if a.Approval.State == domain.ApprovalPending && rapid.Bool().Draw(t, "decide") {
			act := rapid.SampledFrom([]domain.ApprovalAction{domain.ActionApprove, domain.ActionReject, domain.ActionRequestChanges}).Draw(t, "action")
			_, err := f.reg.ProcessApproval(ctx, domain.ApprovalRequest{ArtifactID: a.ID, Action: act}, "reviewer")
			require.NoError(t, err)
		}
	}
}

func TestPrivateNeverVisibleToOthers(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		populate(t, f)
		v := drawViewer(t, "viewer")
		for _, a := range f.reg.Visible(v) {
			if a.Visibility == domain.VisibilityPrivate {
				require.Equal(t, v.ID, a.Creator.ID)
			}
		}
		for _, a := range f.reg.Library(v).Union() {
			if a.Visibility == domain.VisibilityPrivate {
				require.Equal(t, v.ID, a.Creator.ID)
			}
		}
	})
}

func TestLibraryUnionHasUniqueIDs(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		populate(t, f)
		v := drawViewer(t, "viewer")
		lib := f.reg.Library(v)
		union := lib.Union()

		seen := map[string]bool{}
		for _, a := range union {
			require.False(t, seen[a.ID], "duplicate %s", a.ID)
			seen[a.ID] = true
		}
		visible := map[string]bool{}
		for _, a := range f.reg.Visible(v) {
			visible[a.ID] = true
		}
		for id := range seen {
			require.True(t, visible[id], "subset leaked invisible artifact %s", id)
		}
		for _, a := range lib.Pending {
			require.Equal(t, domain.ApprovalPending, a.Approval.State)
		}
		require.ElementsMatch(t, ids(lib.Pending), ids(f.reg.ListPendingFor(v)))
		require.Equal(t, len(visible), lib.Stats.Total)
	})
}

func TestApprovalWalksFollowTheGraph(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		a := f.save(t, analyst, domain.VisibilityOrganization, rapid.Bool().Draw(t, "approval"))
		prev := a.Approval.State

		steps := rapid.IntRange(1, 15).Draw(t, "steps")
		for i := 0; i < steps; i++ {
			op := rapid.SampledFrom([]string{"approve", "reject", "request_changes", "submit"}).Draw(t, "op")
			var err error
			if op == "submit" {
				_, err = f.reg.Submit(ctx, a.ID, analyst.ID)
			} else {
				_, err = f.reg.ProcessApproval(ctx, domain.ApprovalRequest{ArtifactID: a.ID, Action: domain.ApprovalAction(op)}, boss.ID)
			}
			cur, ok := f.reg.Get(a.ID)
			require.True(t, ok)
			if err != nil {
				var te domain.TransitionError
				require.ErrorAs(t, err, &te)
				require.Equal(t, prev, cur.Approval.State)
				continue
			}
			require.True(t, domain.CanTransition(prev, cur.Approval.State), "%s -> %s", prev, cur.Approval.State)
			require.False(t, prev == domain.ApprovalRejected && cur.Approval.State == domain.ApprovalApproved)
			prev = cur.Approval.State
		}
	})
}

func TestVersionsAreAppendOnly(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		a := f.save(t, analyst, domain.VisibilityTeam, false)
		history := a.Versions

		n := rapid.IntRange(1, 10).Draw(t, "updates")
		for i := 0; i < n; i++ {
			u := VersionUpdate{ChangeDescription: fmt.Sprintf("change %d", i)}
			if rapid.Bool().Draw(t, "retitle") {
				cfg := a.Definition.Config
				cfg.Title = rapid.StringMatching(`[A-Za-z ]{1,20}`).Draw(t, "title")
				u.Config = &cfg
			}
			if rapid.Bool().Draw(t, "redata") {
				d := a.Definition.Data.Clone()
				d.Datasets[0].Values[0] = float64(rapid.IntRange(0, 1000).Draw(t, "value"))
				u.Data = &d
			}
			got, err := f.reg.AppendVersion(ctx, a.ID, u, analyst.ID)
			require.NoError(t, err)
			require.Len(t, got.Versions, len(history)+1)
			if diff := cmp.Diff(history, got.Versions[:len(history)], cmpopts.EquateEmpty()); diff != "" {
				t.Fatalf("earlier versions changed:\n%s", diff)
			}
			require.Equal(t, fmt.Sprintf("1.%d.0", i+1), got.Versions[len(history)].Version)
			require.Equal(t, got.Definition.Config, got.Versions[len(history)].ConfigSnapshot)
			history = got.Versions
			a = got
		}
	})
}

func TestArtifactJSONRoundTrip(t *testing.T) {
	rapid.Check(t, func(t *rapid.T) {
		f := newFixture(t)
		ctx := context.Background()
		a := f.save(t, analyst, domain.VisibilityPublic, true)
		for i := rapid.IntRange(0, 6).Draw(t, "installs"); i > 0; i-- {
			_, err := f.reg.RecordUsage(ctx, a.ID, rapid.SampledFrom(viewerIDs).Draw(t, "user"), "install")
			require.NoError(t, err)
		}
		for i := rapid.IntRange(0, 4).Draw(t, "versions"); i > 0; i-- {
			_, err := f.reg.AppendVersion(ctx, a.ID, VersionUpdate{ChangeDescription: "tweak"}, analyst.ID)
			require.NoError(t, err)
		}

		reloaded, err := Open(ctx, "acme", f.st, f.opts)
		require.NoError(t, err)
		if diff := cmp.Diff(f.reg.All(), reloaded.All(), cmpopts.EquateEmpty()); diff != "" {
			t.Fatalf("round trip mismatch:\n%s", diff)
		}
	})
}
