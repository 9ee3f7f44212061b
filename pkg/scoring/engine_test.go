// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package scoring

import (
	"context"
	"errors"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/davecgh/go-spew/spew"
	"github.com/go-openapi/swag"
	. "github.com/onsi/gomega"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/bacx00/mrvl-livescore/pkg/config"
	"github.com/bacx00/mrvl-livescore/pkg/constants"
	"github.com/bacx00/mrvl-livescore/pkg/envelope"
	"github.com/bacx00/mrvl-livescore/pkg/models"
	"github.com/bacx00/mrvl-livescore/pkg/repository"
	"github.com/bacx00/mrvl-livescore/pkg/testsetup"
	"github.com/bacx00/mrvl-livescore/pkg/utils"
)

const (
	team1 = "sentinels"
	team2 = "nrg"
	admin = "admin-1"
)

type testEngine struct {
	*Engine
	repo    *repository.Memory
	metrics *testsetup.StubMetrics
	catalog *testsetup.CountingCatalog
}

func newTestEngine(cfg *config.Config, opts ...Option) testEngine {
	repo := repository.NewMemory()
	metricsCollector := testsetup.NewStubMetrics()
	catalog := testsetup.NewCountingCatalog("Iron Man", "Storm", "Hulk", "Magneto", "Loki")
	return testEngine{
		Engine:  NewEngine(cfg, repo, catalog, metricsCollector, opts...),
		repo:    repo,
		metrics: metricsCollector,
		catalog: catalog,
	}
}

func immediateConfig() *config.Config {
	return &config.Config{CoalesceWindowMs: 0, MaxBatchAgeMs: 2000, MaxBatchSize: 64, HistorySize: 8}
}

func windowConfig(window time.Duration) *config.Config {
	return &config.Config{CoalesceWindowMs: int(window / time.Millisecond), MaxBatchAgeMs: 2000, MaxBatchSize: 64, HistorySize: 8}
}

func createBo3(t *testing.T, scope *envelope.Scope, e testEngine) *models.Snapshot {
	t.Helper()
	snapshot, err := e.CreateMatch(scope, models.CreateMatchRequest{
		Team1ID: team1,
		Team2ID: team2,
		Format:  3,
		Maps: []models.MapSeed{
			{MapName: "Yggsgard: Royal Palace", GameMode: "Domination"},
			{MapName: "Tokyo 2099: Shin-Shibuya", GameMode: "Convoy"},
		},
	})
	require.NoError(t, err)
	return snapshot
}

func mustApply(t *testing.T, scope *envelope.Scope, e testEngine, matchID string, patch models.Patch) *models.Snapshot {
	t.Helper()
	snapshot, err := e.ApplyMutation(scope, matchID, admin, patch)
	require.NoError(t, err, spew.Sdump(patch))
	return snapshot
}

func status(s models.MatchStatus) *models.MatchStatus {
	return &s
}

func mapStatus(s models.MapStatus) *models.MapStatus {
	return &s
}

func waitContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestCreateMatch(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())

	snapshot := createBo3(t, g.TestScope, e)
	g.Expect(snapshot.Version).To(Equal(int64(1)))
	g.Expect(snapshot.Match.Status).To(Equal(models.StatusUpcoming))
	g.Expect(snapshot.Match.Maps).To(HaveLen(3))
	g.Expect(snapshot.Match.Maps[0].MapName).To(Equal("Yggsgard: Royal Palace"))
	g.Expect(snapshot.Match.Maps[2].MapName).To(BeEmpty())
	g.Expect(snapshot.Match.CurrentMapIndex).To(Equal(1))
	g.Expect(snapshot.Match.WinnerID).To(BeNil())

	stored, err := e.repo.Load(context.Background(), snapshot.MatchID)
	require.NoError(t, err)
	g.Expect(stored.Version).To(Equal(int64(1)))

	_, err = e.CreateMatch(g.TestScope, models.CreateMatchRequest{ID: snapshot.MatchID, Team1ID: team1, Team2ID: team2, Format: 3})
	g.Expect(err).To(MatchError(models.ErrMatchExists))

	_, err = e.CreateMatch(g.TestScope, models.CreateMatchRequest{Team1ID: team1, Team2ID: team2, Format: 4})
	g.Expect(err).To(MatchError(models.ErrValidation))

	_, err = e.CreateMatch(g.TestScope, models.CreateMatchRequest{Team1ID: team1, Team2ID: team1, Format: 1})
	g.Expect(err).To(MatchError(models.ErrValidation))
}

func TestIdempotentReplay(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	patch := models.Patch{
		Status: status(models.StatusLive),
		Maps: []models.MapPatch{{
			MapNumber:  1,
			Team1Score: swag.Int(2),
			Team2Score: swag.Int(1),
			Status:     mapStatus(models.MapStatusOngoing),
			Compositions: []models.CompositionPatch{{
				PlayerID:     "7",
				Side:         models.SideTeam1,
				Hero:         swag.String("Storm"),
				Eliminations: swag.Int(12),
			}},
		}},
	}

	first := mustApply(t, g.TestScope, e, matchID, patch)
	second := mustApply(t, g.TestScope, e, matchID, patch)

	g.Expect(second.Version).To(Equal(first.Version + 1))
	g.Expect(second.Match.Status).To(Equal(first.Match.Status))
	g.Expect(second.Match.Maps).To(Equal(first.Match.Maps), spew.Sdump(first.Match.Maps, second.Match.Maps))
	g.Expect(second.Match.Team1Score).To(Equal(first.Match.Team1Score))
	g.Expect(second.Match.StartedAt).To(Equal(first.Match.StartedAt))
	g.Expect(second.Match.Maps[0].Compositions).To(HaveLen(1))
}

func TestMapIsolation(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 1, Team1Score: swag.Int(3), Team2Score: swag.Int(1)}},
	})
	before, _, err := e.GetSnapshot(g.TestScope, matchID, 0)
	require.NoError(t, err)

	after := mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{
			MapNumber: 2,
			Compositions: []models.CompositionPatch{{
				PlayerID: "7",
				Side:     models.SideTeam1,
				Hero:     swag.String("Iron Man"),
			}},
		}},
	})

	g.Expect(after.Match.Maps[0]).To(Equal(before.Match.Maps[0]))
	g.Expect(after.Match.Maps[0].Team1Score).To(Equal(3))
	g.Expect(after.Match.Maps[0].Team2Score).To(Equal(1))
	g.Expect(after.Match.Maps[0].Compositions).To(BeEmpty())
	g.Expect(after.Match.Maps[1].Composition(models.SideTeam1, "7").Hero).To(Equal("Iron Man"))
	g.Expect(after.Match.Maps[2]).To(Equal(before.Match.Maps[2]))

	// a later hero swap on map 1 leaves map 2 stats alone
	mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{
			MapNumber: 2,
			Compositions: []models.CompositionPatch{{
				PlayerID: "7", Side: models.SideTeam1, Damage: swag.Int(9000),
			}},
		}},
	})
	final := mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{
			MapNumber: 1,
			Compositions: []models.CompositionPatch{{
				PlayerID: "7", Side: models.SideTeam1, Hero: swag.String("Hulk"),
			}},
		}},
	})
	entry := final.Match.Maps[1].Composition(models.SideTeam1, "7")
	g.Expect(entry.Hero).To(Equal("Iron Man"))
	g.Expect(entry.Damage).To(Equal(9000))
	g.Expect(final.Match.Maps[0].Composition(models.SideTeam1, "7").Damage).To(Equal(0))
}

func TestDebounceConvergence(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(windowConfig(150 * time.Millisecond))
	created := createBo3(t, g.TestScope, e)

	tickets := make([]*Ticket, 0, 5)
	for score := 10; score <= 14; score++ {
		ticket, err := e.Submit(g.TestScope, created.MatchID, admin, models.Patch{
			Maps: []models.MapPatch{{MapNumber: 1, Team1Score: swag.Int(score)}},
		})
		require.NoError(t, err)
		tickets = append(tickets, ticket)
		time.Sleep(5 * time.Millisecond)
	}

	var snapshots []*models.Snapshot
	for _, ticket := range tickets {
		snapshot, err := ticket.Wait(waitContext(t))
		require.NoError(t, err)
		snapshots = append(snapshots, snapshot)
	}

	for _, snapshot := range snapshots {
		g.Expect(snapshot).To(BeIdenticalTo(snapshots[0]))
	}
	g.Expect(snapshots[0].Version).To(Equal(created.Version + 1))
	g.Expect(snapshots[0].Match.Maps[0].Team1Score).To(Equal(14))

	counts := e.metrics.Counts()
	g.Expect(counts.MutationsAccepted).To(Equal(5))
	g.Expect(counts.BatchesApplied[constants.OutcomeApplied]).To(Equal(1))

	history, err := e.History(g.TestScope, created.MatchID)
	require.NoError(t, err)
	g.Expect(history).To(HaveLen(1))
	g.Expect(history[0].Mutations).To(Equal(5))
	g.Expect(history[0].Fields).To(Equal(1))
	g.Expect(history[0].CloseReason).To(Equal(constants.CloseReasonWindow))
}

func TestTransitionLegality(t *testing.T) {
	t.Parallel()

	paths := map[models.MatchStatus][]models.MatchStatus{
		models.StatusUpcoming:  nil,
		models.StatusLive:      {models.StatusLive},
		models.StatusPaused:    {models.StatusLive, models.StatusPaused},
		models.StatusCompleted: {models.StatusLive, models.StatusCompleted},
	}
	allowed := map[[2]models.MatchStatus]bool{
		{models.StatusUpcoming, models.StatusLive}:     true,
		{models.StatusLive, models.StatusPaused}:       true,
		{models.StatusPaused, models.StatusLive}:       true,
		{models.StatusLive, models.StatusCompleted}:    true,
		{models.StatusPaused, models.StatusCompleted}:  true,
		{models.StatusUpcoming, models.StatusUpcoming}: true,
	}

	for from, path := range paths {
		for _, to := range models.AvailableMatchStatuses {
			from, path, to := from, path, to
			t.Run(string(from)+"->"+string(to), func(t *testing.T) {
				g := testsetup.ParallelWithGomega(t)
				e := newTestEngine(immediateConfig())
				matchID := createBo3(t, g.TestScope, e).MatchID
				for _, step := range path {
					mustApply(t, g.TestScope, e, matchID, models.Patch{Status: status(step)})
				}
				before, _, err := e.GetSnapshot(g.TestScope, matchID, 0)
				require.NoError(t, err)

				snapshot, err := e.ApplyMutation(g.TestScope, matchID, admin, models.Patch{Status: status(to)})

				if from == to || allowed[[2]models.MatchStatus{from, to}] {
					require.NoError(t, err)
					g.Expect(snapshot.Match.Status).To(Equal(to))
					return
				}

				g.Expect(err).To(MatchError(models.ErrInvalidTransition))
				var transitionErr *models.TransitionError
				g.Expect(errors.As(err, &transitionErr)).To(BeTrue())
				g.Expect(transitionErr.From).To(Equal(from))

				current, _, err := e.GetSnapshot(g.TestScope, matchID, 0)
				require.NoError(t, err)
				g.Expect(current.Version).To(Equal(before.Version))
				g.Expect(current.Match.Status).To(Equal(from))
			})
		}
	}
}

func TestLifecycleTimestamps(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	start := time.Date(2025, 3, 1, 18, 0, 0, 0, time.UTC)
	now := start
	var mu sync.Mutex
	clock := func() time.Time {
		mu.Lock()
		defer mu.Unlock()
		return now
	}
	advance := func(d time.Duration) {
		mu.Lock()
		defer mu.Unlock()
		now = now.Add(d)
	}

	e := newTestEngine(immediateConfig(), WithClock(clock))
	matchID := createBo3(t, g.TestScope, e).MatchID

	live := mustApply(t, g.TestScope, e, matchID, models.Patch{Status: status(models.StatusLive)})
	g.Expect(live.Match.StartedAt).To(Equal(utils.Ptr(start)))
	g.Expect(live.Match.EndedAt).To(BeNil())

	advance(time.Hour)
	mustApply(t, g.TestScope, e, matchID, models.Patch{Status: status(models.StatusPaused)})
	advance(time.Minute)
	mustApply(t, g.TestScope, e, matchID, models.Patch{Status: status(models.StatusLive)})

	advance(time.Hour)
	done := mustApply(t, g.TestScope, e, matchID, models.Patch{Status: status(models.StatusCompleted)})
	g.Expect(done.Match.StartedAt).To(Equal(utils.Ptr(start)))
	g.Expect(done.Match.EndedAt).To(Equal(utils.Ptr(start.Add(2*time.Hour + time.Minute))))

	_, err := e.ApplyMutation(g.TestScope, matchID, admin, models.Patch{Status: status(models.StatusUpcoming)})
	g.Expect(err).To(MatchError(models.ErrInvalidTransition))

	current, _, err := e.GetSnapshot(g.TestScope, matchID, 0)
	require.NoError(t, err)
	g.Expect(current.Match.Status).To(Equal(models.StatusCompleted))
}

func TestCoalescedStatusChain(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(windowConfig(50 * time.Millisecond))
	matchID := createBo3(t, g.TestScope, e).MatchID

	first, err := e.Submit(g.TestScope, matchID, admin, models.Patch{Status: status(models.StatusLive)})
	require.NoError(t, err)
	second, err := e.Submit(g.TestScope, matchID, admin, models.Patch{Status: status(models.StatusPaused)})
	require.NoError(t, err)

	// the pending status is the one a new mutation transitions from
	_, err = e.Submit(g.TestScope, matchID, admin, models.Patch{Status: status(models.StatusUpcoming)})
	g.Expect(err).To(MatchError(models.ErrInvalidTransition))

	snapshot, err := second.Wait(waitContext(t))
	require.NoError(t, err)
	g.Expect(snapshot.Match.Status).To(Equal(models.StatusPaused))
	g.Expect(snapshot.Match.StartedAt).ToNot(BeNil())
	g.Expect(snapshot.Version).To(Equal(int64(2)))

	fromFirst, err := first.Wait(waitContext(t))
	require.NoError(t, err)
	g.Expect(fromFirst).To(BeIdenticalTo(snapshot))
}

func TestWinnerDerivation(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	completeMap := func(number, team1Score, team2Score int) *models.Snapshot {
		return mustApply(t, g.TestScope, e, matchID, models.Patch{
			Maps: []models.MapPatch{{
				MapNumber:  number,
				Team1Score: swag.Int(team1Score),
				Team2Score: swag.Int(team2Score),
				Status:     mapStatus(models.MapStatusCompleted),
			}},
		})
	}

	snapshot := completeMap(1, 3, 1)
	g.Expect(snapshot.Match.Maps[0].Winner).To(Equal(swag.String(team1)))
	g.Expect(snapshot.Match.Team1Score).To(Equal(1))
	g.Expect(snapshot.Match.WinnerID).To(BeNil())

	snapshot = completeMap(2, 0, 2)
	g.Expect(snapshot.Match.Team1Score).To(Equal(1))
	g.Expect(snapshot.Match.Team2Score).To(Equal(1))
	g.Expect(snapshot.Match.Decided).To(BeFalse())

	snapshot = completeMap(3, 2, 1)
	g.Expect(snapshot.Match.Team1Score).To(Equal(2))
	g.Expect(snapshot.Match.WinnerID).To(Equal(swag.String(team1)))
	g.Expect(snapshot.Match.Decided).To(BeTrue())
	// a winner does not complete the match
	g.Expect(snapshot.Match.Status).To(Equal(models.StatusUpcoming))
}

func TestWinnerMonotonicity(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	decided := mustApply(t, g.TestScope, e, matchID, models.Patch{
		Status: status(models.StatusLive),
		Maps: []models.MapPatch{
			{MapNumber: 1, Team1Score: swag.Int(3), Team2Score: swag.Int(0), Status: mapStatus(models.MapStatusCompleted)},
			{MapNumber: 2, Team1Score: swag.Int(3), Team2Score: swag.Int(2), Status: mapStatus(models.MapStatusCompleted)},
		},
	})
	g.Expect(decided.Match.WinnerID).To(Equal(swag.String(team1)))

	// unrelated edits keep the decision
	for _, patch := range []models.Patch{
		{CurrentMapIndex: swag.Int(3)},
		{Status: status(models.StatusPaused)},
		{Maps: []models.MapPatch{{MapNumber: 3, MapName: swag.String("Klyntar: Symbiotic Surface")}}},
		{Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{
			PlayerID: "7", Side: models.SideTeam1, Hero: swag.String("Magneto"), Eliminations: swag.Int(30),
		}}}}},
	} {
		snapshot := mustApply(t, g.TestScope, e, matchID, patch)
		g.Expect(snapshot.Match.WinnerID).To(Equal(swag.String(team1)), spew.Sdump(patch))
		g.Expect(snapshot.Match.Decided).To(BeTrue())
	}

	// correcting a deciding map below the threshold clears it
	reopened := mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 2, Status: mapStatus(models.MapStatusOngoing)}},
	})
	g.Expect(reopened.Match.Team1Score).To(Equal(1))
	g.Expect(reopened.Match.WinnerID).To(BeNil())
	g.Expect(reopened.Match.Decided).To(BeFalse())
}

func TestExplicitSeriesScore(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	snapshot := mustApply(t, g.TestScope, e, matchID, models.Patch{Team2Score: swag.Int(2)})
	g.Expect(snapshot.Match.SeriesScoreExplicit).To(BeTrue())
	g.Expect(snapshot.Match.WinnerID).To(Equal(swag.String(team2)))

	// map wins do not overwrite explicit series scores
	snapshot = mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 1, Team1Score: swag.Int(3), Status: mapStatus(models.MapStatusCompleted)}},
	})
	g.Expect(snapshot.Match.Team1Score).To(Equal(0))
	g.Expect(snapshot.Match.Team2Score).To(Equal(2))

	snapshot = mustApply(t, g.TestScope, e, matchID, models.Patch{ClearSeriesScoreOverride: true})
	g.Expect(snapshot.Match.SeriesScoreExplicit).To(BeFalse())
	g.Expect(snapshot.Match.Team1Score).To(Equal(1))
	g.Expect(snapshot.Match.Team2Score).To(Equal(0))
	g.Expect(snapshot.Match.WinnerID).To(BeNil())
}

func TestWinnerOverride(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	snapshot := mustApply(t, g.TestScope, e, matchID, models.Patch{
		WinnerOverride: swag.String(team2),
		Maps: []models.MapPatch{
			{MapNumber: 1, Team1Score: swag.Int(3), Status: mapStatus(models.MapStatusCompleted)},
			{MapNumber: 2, Team1Score: swag.Int(3), Status: mapStatus(models.MapStatusCompleted)},
		},
	})
	g.Expect(snapshot.Match.Team1Score).To(Equal(2))
	g.Expect(snapshot.Match.WinnerID).To(Equal(swag.String(team2)))

	// overrides survive status changes
	snapshot = mustApply(t, g.TestScope, e, matchID, models.Patch{Status: status(models.StatusLive)})
	g.Expect(snapshot.Match.WinnerID).To(Equal(swag.String(team2)))

	snapshot = mustApply(t, g.TestScope, e, matchID, models.Patch{WinnerOverride: swag.String("")})
	g.Expect(snapshot.Match.WinnerOverride).To(BeNil())
	g.Expect(snapshot.Match.WinnerID).To(Equal(swag.String(team1)))
}

func TestMapWinnerRules(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	created, err := e.CreateMatch(g.TestScope, models.CreateMatchRequest{
		Team1ID: team1,
		Team2ID: team2,
		Format:  3,
		Maps:    []models.MapSeed{{MapName: "Hydra Charteris Base", GameMode: "Domination", WinThreshold: 2}},
	})
	require.NoError(t, err)
	matchID := created.MatchID

	snapshot := mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{
			{MapNumber: 1, Team1Score: swag.Int(1), Team2Score: swag.Int(2), Status: mapStatus(models.MapStatusOngoing)},
			{MapNumber: 2, Team1Score: swag.Int(2), Team2Score: swag.Int(2), Status: mapStatus(models.MapStatusCompleted)},
			{MapNumber: 3, Team1Score: swag.Int(2), Status: mapStatus(models.MapStatusForfeit)},
		},
	})
	g.Expect(snapshot.Match.Maps[0].Winner).To(Equal(swag.String(team2)))
	g.Expect(snapshot.Match.Maps[1].Winner).To(BeNil())
	g.Expect(snapshot.Match.Maps[2].Winner).To(BeNil())

	snapshot = mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 3, WinnerOverride: swag.String(team1)}},
	})
	g.Expect(snapshot.Match.Maps[2].Winner).To(Equal(swag.String(team1)))
	g.Expect(snapshot.Match.Team1Score).To(Equal(1))
	g.Expect(snapshot.Match.Team2Score).To(Equal(1))
}

func TestConflictReporting(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(windowConfig(100 * time.Millisecond))
	matchID := createBo3(t, g.TestScope, e).MatchID

	caster, err := e.Submit(g.TestScope, matchID, "caster", models.Patch{
		CurrentMapIndex: swag.Int(2),
		Maps:            []models.MapPatch{{MapNumber: 1, Team1Score: swag.Int(5)}},
	})
	require.NoError(t, err)
	referee, err := e.Submit(g.TestScope, matchID, "referee", models.Patch{
		Maps: []models.MapPatch{{MapNumber: 1, Team1Score: swag.Int(7)}},
	})
	require.NoError(t, err)

	casterSnapshot, casterErr := caster.Wait(waitContext(t))
	refereeSnapshot, refereeErr := referee.Wait(waitContext(t))

	require.NoError(t, refereeErr)
	g.Expect(casterErr).To(MatchError(models.ErrConflictDiscarded))
	g.Expect(casterSnapshot).ToNot(BeNil())

	var conflictErr *models.ConflictDiscardedError
	require.True(t, errors.As(casterErr, &conflictErr))
	g.Expect(conflictErr.Conflicts).To(ConsistOf(models.Conflict{
		Field:          "maps[1].map_team1_score",
		DiscardedValue: 5,
		DiscardedBy:    "caster",
		WinningValue:   7,
		WinningActor:   "referee",
	}))

	final, _, err := e.GetSnapshot(g.TestScope, matchID, 0)
	require.NoError(t, err)
	g.Expect(final.Match.Maps[0].Team1Score).To(Equal(7))
	g.Expect(final.Match.CurrentMapIndex).To(Equal(2))
	g.Expect(final.Version).To(Equal(int64(3)))
	g.Expect(refereeSnapshot.Match.Maps[0].Team1Score).To(Equal(7))

	g.Expect(e.metrics.Counts().ConflictsDiscarded["map_team1_score"]).To(Equal(1))
}

func TestValidationRejectsWholePatch(t *testing.T) {
	t.Parallel()

	cases := map[string]models.Patch{
		"empty patch":           {},
		"negative map score":    {Maps: []models.MapPatch{{MapNumber: 1, Team1Score: swag.Int(-1)}}},
		"series score too high": {Team1Score: swag.Int(4)},
		"map index zero":        {CurrentMapIndex: swag.Int(0)},
		"map index past end":    {CurrentMapIndex: swag.Int(4)},
		"map number past end":   {Maps: []models.MapPatch{{MapNumber: 4, Team1Score: swag.Int(1)}}},
		"duplicate map":         {Maps: []models.MapPatch{{MapNumber: 1}, {MapNumber: 1}}},
		"unknown status":        {Status: status("postponed")},
		"unknown map status":    {Maps: []models.MapPatch{{MapNumber: 1, Status: mapStatus("halftime")}}},
		"unknown hero":          {Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{PlayerID: "7", Side: models.SideTeam1, Hero: swag.String("Tracer")}}}}},
		"missing player id":     {Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{Side: models.SideTeam1, Hero: swag.String("Hulk")}}}}},
		"unknown side":          {Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{PlayerID: "7", Side: "team3", Hero: swag.String("Hulk")}}}}},
		"negative stat":         {Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{PlayerID: "7", Side: models.SideTeam1, Hero: swag.String("Hulk"), Deaths: swag.Int(-2)}}}}},
		"foreign override":      {WinnerOverride: swag.String("fnatic")},
		"valid part with bad part": {
			Team1Score: swag.Int(1),
			Maps:       []models.MapPatch{{MapNumber: 2, Team1Score: swag.Int(-5)}},
		},
	}

	for name, patch := range cases {
		name, patch := name, patch
		t.Run(name, func(t *testing.T) {
			g := testsetup.ParallelWithGomega(t)
			e := newTestEngine(immediateConfig())
			created := createBo3(t, g.TestScope, e)

			_, err := e.ApplyMutation(g.TestScope, created.MatchID, admin, patch)
			g.Expect(err).To(MatchError(models.ErrValidation))

			current, _, err := e.GetSnapshot(g.TestScope, created.MatchID, 0)
			require.NoError(t, err)
			g.Expect(current.Version).To(Equal(created.Version))
			g.Expect(current.Match).To(Equal(created.Match))
		})
	}
}

func TestValidationReportsEveryProblem(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	_, err := e.ApplyMutation(g.TestScope, matchID, admin, models.Patch{
		Team1Score:      swag.Int(-1),
		CurrentMapIndex: swag.Int(9),
		Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{
			PlayerID: "7", Side: models.SideTeam1, Hero: swag.String("Tracer"),
		}}}},
	})

	var validationErr *models.ValidationError
	require.True(t, errors.As(err, &validationErr))
	fields := make([]string, 0, len(validationErr.Problems))
	for _, problem := range validationErr.Problems {
		fields = append(fields, problem.Field)
	}
	assert.ElementsMatch(t, []string{"team1_score", "current_map_index", "maps[0].compositions[0].hero"}, fields)
}

func TestNotFound(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	_, err := e.ApplyMutation(g.TestScope, "missing", admin, models.Patch{Team1Score: swag.Int(1)})
	g.Expect(err).To(MatchError(models.ErrNotFound))

	_, _, err = e.GetSnapshot(g.TestScope, "missing", 0)
	g.Expect(err).To(MatchError(models.ErrNotFound))

	_, err = e.ApplyMutation(g.TestScope, matchID, admin, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{
			PlayerID: "ghost", Side: models.SideTeam2, Healing: swag.Int(100),
		}}}},
	})
	g.Expect(err).To(MatchError(models.ErrNotFound))

	_, err = e.ApplyMutation(g.TestScope, matchID, "", models.Patch{Team1Score: swag.Int(1)})
	g.Expect(err).To(MatchError(models.ErrValidation))
}

func TestStatsForPlayerAddedInSameWindow(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(windowConfig(50 * time.Millisecond))
	matchID := createBo3(t, g.TestScope, e).MatchID

	_, err := e.Submit(g.TestScope, matchID, admin, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 2, Compositions: []models.CompositionPatch{{
			PlayerID: "12", Side: models.SideTeam2, Hero: swag.String("Loki"),
		}}}},
	})
	require.NoError(t, err)

	ticket, err := e.Submit(g.TestScope, matchID, admin, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 2, Compositions: []models.CompositionPatch{{
			PlayerID: "12", Side: models.SideTeam2, Healing: swag.Int(15000),
		}}}},
	})
	require.NoError(t, err)

	// another actor has no pending add for the player
	_, err = e.Submit(g.TestScope, matchID, "observer", models.Patch{
		Maps: []models.MapPatch{{MapNumber: 2, Compositions: []models.CompositionPatch{{
			PlayerID: "12", Side: models.SideTeam2, Deaths: swag.Int(1),
		}}}},
	})
	g.Expect(err).To(MatchError(models.ErrNotFound))

	snapshot, err := ticket.Wait(waitContext(t))
	require.NoError(t, err)
	entry := snapshot.Match.Maps[1].Composition(models.SideTeam2, "12")
	require.NotNil(t, entry)
	g.Expect(entry.Hero).To(Equal("Loki"))
	g.Expect(entry.Healing).To(Equal(15000))
}

func TestSnapshotNotModifiedIsCheap(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID
	latest := mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{
			PlayerID: "7", Side: models.SideTeam1, Hero: swag.String("Iron Man"),
		}}}},
	})

	lookups := e.catalog.Lookups()
	built := e.metrics.Counts().SnapshotsBuilt

	for i := 0; i < 100; i++ {
		snapshot, modified, err := e.GetSnapshot(g.TestScope, matchID, latest.Version)
		require.NoError(t, err)
		g.Expect(modified).To(BeFalse())
		g.Expect(snapshot).To(BeNil())
	}

	counts := e.metrics.Counts()
	g.Expect(e.catalog.Lookups()).To(Equal(lookups))
	g.Expect(counts.SnapshotsBuilt).To(Equal(built))
	g.Expect(counts.SnapshotReads[constants.ReadNotModified]).To(Equal(100))

	snapshot, modified, err := e.GetSnapshot(g.TestScope, matchID, latest.Version-1)
	require.NoError(t, err)
	g.Expect(modified).To(BeTrue())
	g.Expect(snapshot).To(BeIdenticalTo(latest))

	// a reader ahead of the engine resynchronizes
	snapshot, modified, err = e.GetSnapshot(g.TestScope, matchID, latest.Version+10)
	require.NoError(t, err)
	g.Expect(modified).To(BeTrue())
	g.Expect(snapshot.Version).To(Equal(latest.Version))
}

func TestStoreErrorLeavesStateUntouched(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	created := createBo3(t, g.TestScope, e)
	patch := models.Patch{Status: status(models.StatusLive), Team1Score: swag.Int(1)}

	e.repo.FailSaves(errors.New("connection reset"))
	_, err := e.ApplyMutation(g.TestScope, created.MatchID, admin, patch)
	g.Expect(err).To(MatchError(models.ErrInternalStore))

	current, _, err := e.GetSnapshot(g.TestScope, created.MatchID, 0)
	require.NoError(t, err)
	g.Expect(current).To(BeIdenticalTo(created))
	g.Expect(e.metrics.Counts().BatchesApplied[constants.OutcomeStoreError]).To(Equal(1))

	e.repo.FailSaves(nil)
	retried := mustApply(t, g.TestScope, e, created.MatchID, patch)
	g.Expect(retried.Version).To(Equal(created.Version + 1))
	g.Expect(retried.Match.Status).To(Equal(models.StatusLive))
}

func TestLoadsMatchFromRepository(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())

	stored := &models.Match{
		ID: "preloaded", Status: models.StatusLive, Team1ID: team1, Team2ID: team2, Format: 1,
		CurrentMapIndex: 1, Version: 41,
		Maps: []models.MapRecord{{MapNumber: 1, Status: models.MapStatusOngoing}},
	}
	require.NoError(t, e.repo.Create(context.Background(), stored))

	snapshot, modified, err := e.GetSnapshot(g.TestScope, "preloaded", 0)
	require.NoError(t, err)
	g.Expect(modified).To(BeTrue())
	g.Expect(snapshot.Version).To(Equal(int64(41)))

	next := mustApply(t, g.TestScope, e, "preloaded", models.Patch{
		Maps: []models.MapPatch{{MapNumber: 1, Team2Score: swag.Int(2), Status: mapStatus(models.MapStatusCompleted)}},
	})
	g.Expect(next.Version).To(Equal(int64(42)))
	g.Expect(next.Match.WinnerID).To(Equal(swag.String(team2)))
}

func TestWatch(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	created := createBo3(t, g.TestScope, e)

	result := make(chan *models.Snapshot, 1)
	go func() {
		snapshot, err := e.Watch(g.TestScope, created.MatchID, created.Version)
		if err == nil {
			result <- snapshot
		}
	}()

	g.Consistently(result, 30*time.Millisecond).ShouldNot(Receive())
	mustApply(t, g.TestScope, e, created.MatchID, models.Patch{CurrentMapIndex: swag.Int(2)})

	var snapshot *models.Snapshot
	g.Eventually(result, time.Second).Should(Receive(&snapshot))
	g.Expect(snapshot.Version).To(Equal(created.Version + 1))

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	_, err := e.Watch(g.TestScope.WithContext(ctx), created.MatchID, snapshot.Version)
	g.Expect(err).To(MatchError(context.DeadlineExceeded))
}

func TestHistoryIsBounded(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	for i := 1; i <= 10; i++ {
		mustApply(t, g.TestScope, e, matchID, models.Patch{
			Maps: []models.MapPatch{{MapNumber: 1, Team1Score: swag.Int(i)}},
		})
	}

	history, err := e.History(g.TestScope, matchID)
	require.NoError(t, err)
	g.Expect(history).To(HaveLen(8))
	g.Expect(history[0].Version).To(Equal(int64(11)))
	g.Expect(history[7].Version).To(Equal(int64(4)))
	g.Expect(history[0].CloseReason).To(Equal(constants.CloseReasonImmediate))
}

func TestMaxBatchSizeClosesWindow(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	cfg := windowConfig(time.Hour)
	cfg.MaxBatchAgeMs = int(time.Hour / time.Millisecond)
	cfg.MaxBatchSize = 3
	e := newTestEngine(cfg)
	matchID := createBo3(t, g.TestScope, e).MatchID

	var last *Ticket
	for i := 1; i <= 3; i++ {
		ticket, err := e.Submit(g.TestScope, matchID, admin, models.Patch{CurrentMapIndex: swag.Int(i)})
		require.NoError(t, err)
		last = ticket
	}

	g.Eventually(last.Done()).Should(BeClosed())
	snapshot, err := last.Wait(waitContext(t))
	require.NoError(t, err)
	g.Expect(snapshot.Match.CurrentMapIndex).To(Equal(3))

	history, err := e.History(g.TestScope, matchID)
	require.NoError(t, err)
	g.Expect(history[0].CloseReason).To(Equal(constants.CloseReasonMaxSize))
}

func TestMaxBatchAgeBoundsTheWindow(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	cfg := windowConfig(200 * time.Millisecond)
	cfg.MaxBatchAgeMs = 100
	e := newTestEngine(cfg)
	matchID := createBo3(t, g.TestScope, e).MatchID

	first, err := e.Submit(g.TestScope, matchID, admin, models.Patch{CurrentMapIndex: swag.Int(1)})
	require.NoError(t, err)

	// keep typing; the age bound closes the batch before the window would
	deadline := time.Now().Add(400 * time.Millisecond)
	for time.Now().Before(deadline) {
		select {
		case <-first.Done():
			deadline = time.Now()
			continue
		default:
		}
		_, err := e.Submit(g.TestScope, matchID, admin, models.Patch{CurrentMapIndex: swag.Int(2)})
		require.NoError(t, err)
		time.Sleep(10 * time.Millisecond)
	}

	g.Expect(first.Done()).To(BeClosed())
	history, err := e.History(g.TestScope, matchID)
	require.NoError(t, err)
	g.Expect(history).ToNot(BeEmpty())
	g.Expect(history[len(history)-1].CloseReason).To(Equal(constants.CloseReasonMaxAge))
}

func TestFlushAndClose(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(windowConfig(time.Hour))
	matchID := createBo3(t, g.TestScope, e).MatchID

	ticket, err := e.Submit(g.TestScope, matchID, admin, models.Patch{Status: status(models.StatusLive)})
	require.NoError(t, err)
	g.Expect(ticket.Done()).ToNot(BeClosed())
	g.Expect(e.metrics.Counts().OpenBatches).To(Equal(1))

	e.Close(g.TestScope)
	g.Expect(ticket.Done()).To(BeClosed())
	g.Expect(e.metrics.Counts().OpenBatches).To(Equal(0))

	snapshot, err := ticket.Wait(waitContext(t))
	require.NoError(t, err)
	g.Expect(snapshot.Match.Status).To(Equal(models.StatusLive))

	_, err = e.Submit(g.TestScope, matchID, admin, models.Patch{Status: status(models.StatusPaused)})
	g.Expect(err).To(MatchError(ErrEngineClosed))
}

func TestListenerSeesEveryVersionInOrder(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)

	var mu sync.Mutex
	var versions []int64
	listener := SnapshotListenerFunc(func(scope *envelope.Scope, snapshot *models.Snapshot) {
		mu.Lock()
		defer mu.Unlock()
		versions = append(versions, snapshot.Version)
	})

	e := newTestEngine(immediateConfig(), WithListener(listener))
	matchID := createBo3(t, g.TestScope, e).MatchID
	for i := 1; i <= 3; i++ {
		mustApply(t, g.TestScope, e, matchID, models.Patch{CurrentMapIndex: swag.Int(i)})
	}

	mu.Lock()
	defer mu.Unlock()
	g.Expect(versions).To(Equal([]int64{1, 2, 3, 4}))
}

func TestConcurrentReadersSeeMonotonicVersions(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(windowConfig(5 * time.Millisecond))
	matchID := createBo3(t, g.TestScope, e).MatchID

	stop := make(chan struct{})
	var wg sync.WaitGroup
	regressions := make(chan int64, 8)
	for r := 0; r < 8; r++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			var seen int64
			for {
				select {
				case <-stop:
					return
				default:
				}
				snapshot, modified, err := e.GetSnapshot(g.TestScope, matchID, seen)
				if err != nil || !modified {
					continue
				}
				if snapshot.Version < seen {
					regressions <- snapshot.Version
					return
				}
				seen = snapshot.Version
			}
		}()
	}

	for i := 0; i < 50; i++ {
		_, err := e.ApplyMutation(g.TestScope, matchID, admin, models.Patch{
			Maps: []models.MapPatch{{MapNumber: 1 + i%3, Team1Score: swag.Int(i)}},
		})
		require.NoError(t, err)
	}
	close(stop)
	wg.Wait()

	g.Expect(regressions).ToNot(Receive())
}

func TestPlayerCannotJoinBothSides(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(windowConfig(100 * time.Millisecond))
	matchID := createBo3(t, g.TestScope, e).MatchID

	pick := func(mapNumber int, side models.Side, hero string) models.Patch {
		return models.Patch{Maps: []models.MapPatch{{MapNumber: mapNumber, Compositions: []models.CompositionPatch{{
			PlayerID: "7", Side: side, Hero: swag.String(hero),
		}}}}}
	}
	sideProblem := func(err error) {
		var validationErr *models.ValidationError
		require.True(t, errors.As(err, &validationErr), spew.Sdump(err))
		g.Expect(validationErr.Problems).To(ContainElement(HaveField("Field", "maps[0].compositions[0].side")))
	}

	ticket, err := e.Submit(g.TestScope, matchID, "caster", pick(1, models.SideTeam1, "Hulk"))
	require.NoError(t, err)

	// same actor, same window
	_, err = e.Submit(g.TestScope, matchID, "caster", pick(1, models.SideTeam2, "Storm"))
	sideProblem(err)

	// another actor while the first batch is still open
	_, err = e.Submit(g.TestScope, matchID, "referee", pick(1, models.SideTeam2, "Storm"))
	sideProblem(err)

	other, err := e.Submit(g.TestScope, matchID, "referee", pick(2, models.SideTeam2, "Storm"))
	require.NoError(t, err)

	snapshot, err := ticket.Wait(waitContext(t))
	require.NoError(t, err)
	_, err = other.Wait(waitContext(t))
	require.NoError(t, err)

	// committed state
	_, err = e.ApplyMutation(g.TestScope, matchID, "referee", pick(1, models.SideTeam2, "Storm"))
	sideProblem(err)

	final, _, err := e.GetSnapshot(g.TestScope, matchID, 0)
	require.NoError(t, err)
	g.Expect(final.Version).To(BeNumerically(">=", snapshot.Version))
	g.Expect(final.Match.Maps[0].Compositions).To(ConsistOf(HaveField("Side", models.SideTeam1)))
	g.Expect(final.Match.Maps[1].Compositions).To(ConsistOf(HaveField("Side", models.SideTeam2)))
}

func TestFlushSkipsPlayerOnOtherSide(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID
	mustApply(t, g.TestScope, e, matchID, models.Patch{Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{
		PlayerID: "7", Side: models.SideTeam1, Hero: swag.String("Hulk"),
	}}}}})

	st, err := e.loadState(g.TestScope, matchID)
	require.NoError(t, err)

	now := time.Now()
	closing := newBatch(utils.GenerateULID(now), matchID, "referee", g.TestScope.TraceID, now)
	ticket := newTicket(matchID, "referee", closing.id)
	seq := e.seq.Add(1)
	closing.add(ticket, []fieldWrite{
		{Key: fieldKey{MapNumber: 1, Side: models.SideTeam2, PlayerID: "7", Name: fieldHero}, Value: "Storm", Seq: seq, ActorID: "referee", ticket: ticket},
		{Key: fieldKey{MapNumber: 1, Name: fieldMapTeam1Score}, Value: 1, Seq: seq, Pos: 1, ActorID: "referee", ticket: ticket},
	})

	st.mu.Lock()
	st.pending["referee"] = closing
	e.openBatches.Add(1)
	e.flush(g.TestScope, st, closing, constants.CloseReasonFlush)
	st.mu.Unlock()

	snapshot, err := ticket.Wait(waitContext(t))
	g.Expect(err).To(MatchError(models.ErrConflictDiscarded))

	var conflictErr *models.ConflictDiscardedError
	require.True(t, errors.As(err, &conflictErr))
	g.Expect(conflictErr.Conflicts).To(ConsistOf(models.Conflict{
		Field:          "maps[1].compositions[team2/7].hero",
		DiscardedValue: "Storm",
		DiscardedBy:    "referee",
		WinningValue:   "team1",
	}))

	g.Expect(snapshot.Match.Maps[0].Team1Score).To(Equal(1))
	g.Expect(snapshot.Match.Maps[0].Compositions).To(HaveLen(1))
	g.Expect(snapshot.Match.Maps[0].Compositions[0].Side).To(Equal(models.SideTeam1))
	g.Expect(e.metrics.Counts().ConflictsDiscarded["hero"]).To(Equal(1))

	history, err := e.History(g.TestScope, matchID)
	require.NoError(t, err)
	g.Expect(history[0].Discarded).To(Equal(1))
}

func TestCompositionOrderFollowsPatch(t *testing.T) {
	t.Parallel()

	players := []string{"1", "2", "3", "4", "5", "6"}
	heroes := []string{"Iron Man", "Storm", "Hulk", "Magneto", "Loki", "Storm"}
	patch := models.Patch{Maps: []models.MapPatch{{MapNumber: 1}}}
	for i, id := range players {
		patch.Maps[0].Compositions = append(patch.Maps[0].Compositions, models.CompositionPatch{
			PlayerID:     id,
			Side:         models.SideTeam1,
			Hero:         swag.String(heroes[i]),
			Eliminations: swag.Int(i),
			Damage:       swag.Int(1000 * i),
		})
	}

	for run := 0; run < 20; run++ {
		scope := testsetup.NewTestScope()
		e := newTestEngine(immediateConfig())
		matchID := createBo3(t, scope, e).MatchID

		snapshot := mustApply(t, scope, e, matchID, patch)
		got := make([]string, 0, len(players))
		for _, entry := range snapshot.Match.Maps[0].Compositions {
			got = append(got, entry.PlayerID)
		}
		assert.Equal(t, players, got, "run %d", run)
	}
}

func TestFormattedValidationReasons(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(immediateConfig())
	matchID := createBo3(t, g.TestScope, e).MatchID

	verbs := strings.Repeat("%d%s", 20)

	_, err := e.CreateMatch(g.TestScope, models.CreateMatchRequest{ID: verbs, Team1ID: team1, Team2ID: team2, Format: 3})
	g.Expect(err).To(MatchError(models.ErrValidation))
	g.Expect(err.Error()).ToNot(ContainSubstring("%!"))

	_, err = e.ApplyMutation(g.TestScope, matchID, admin, models.Patch{Maps: []models.MapPatch{{MapNumber: 1, Compositions: []models.CompositionPatch{{
		PlayerID: verbs, Side: models.SideTeam1, Hero: swag.String("Hulk"),
	}}}}})
	g.Expect(err).To(MatchError(models.ErrValidation))
	g.Expect(err.Error()).ToNot(ContainSubstring("%!"))
}

func TestSubmitAfterCloseWhileWaitingForLock(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	e := newTestEngine(windowConfig(time.Hour))
	matchID := createBo3(t, g.TestScope, e).MatchID

	st, err := e.loadState(g.TestScope, matchID)
	require.NoError(t, err)

	st.mu.Lock()
	result := make(chan error, 1)
	go func() {
		_, err := e.Submit(g.TestScope, matchID, admin, models.Patch{Status: status(models.StatusLive)})
		result <- err
	}()
	g.Consistently(result, 50*time.Millisecond).ShouldNot(Receive())
	e.closed.Store(true)
	st.mu.Unlock()

	var submitErr error
	g.Eventually(result, time.Second).Should(Receive(&submitErr))
	g.Expect(submitErr).To(MatchError(ErrEngineClosed))

	st.mu.Lock()
	defer st.mu.Unlock()
	g.Expect(st.pending).To(BeEmpty())
	g.Expect(e.metrics.Counts().OpenBatches).To(Equal(0))
}

func TestCompletedMatchIsEvicted(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	cfg := immediateConfig()
	cfg.CompletedRetentionMs = 50
	e := newTestEngine(cfg)
	matchID := createBo3(t, g.TestScope, e).MatchID

	mustApply(t, g.TestScope, e, matchID, models.Patch{Status: status(models.StatusLive)})
	completed := mustApply(t, g.TestScope, e, matchID, models.Patch{
		Team1Score: swag.Int(2),
		Status:     status(models.StatusCompleted),
	})
	g.Expect(completed.Match.Status).To(Equal(models.StatusCompleted))

	st, err := e.loadState(g.TestScope, matchID)
	require.NoError(t, err)

	watched := make(chan *models.Snapshot, 1)
	go func() {
		snapshot, err := e.Watch(g.TestScope.WithContext(waitContext(t)), matchID, completed.Version)
		if err == nil {
			watched <- snapshot
		}
	}()

	g.Eventually(st.evicted.Load, time.Second).Should(BeTrue())

	reloaded, modified, err := e.GetSnapshot(g.TestScope, matchID, 0)
	require.NoError(t, err)
	g.Expect(modified).To(BeTrue())
	g.Expect(reloaded.Version).To(Equal(completed.Version))
	g.Expect(reloaded.Match.Status).To(Equal(models.StatusCompleted))

	e.mu.RLock()
	g.Expect(e.matches[matchID]).ToNot(BeIdenticalTo(st))
	e.mu.RUnlock()

	corrected := mustApply(t, g.TestScope, e, matchID, models.Patch{
		Maps: []models.MapPatch{{MapNumber: 1, MapName: swag.String("Klyntar: Symbiotic Surface")}},
	})
	g.Expect(corrected.Version).To(Equal(completed.Version + 1))

	var snapshot *models.Snapshot
	g.Eventually(watched, time.Second).Should(Receive(&snapshot))
	g.Expect(snapshot.Version).To(Equal(corrected.Version))
}

func TestUnfinishedMatchIsNotEvicted(t *testing.T) {
	g := testsetup.ParallelWithGomega(t)
	cfg := immediateConfig()
	cfg.CompletedRetentionMs = 10
	e := newTestEngine(cfg)
	matchID := createBo3(t, g.TestScope, e).MatchID
	mustApply(t, g.TestScope, e, matchID, models.Patch{Status: status(models.StatusLive)})

	registered := func() int {
		e.mu.RLock()
		defer e.mu.RUnlock()
		return len(e.matches)
	}
	g.Consistently(registered, 100*time.Millisecond).Should(Equal(1))
}
