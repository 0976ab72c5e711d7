package stream

import (
	"context"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cadst/MPS-XRPL-sub000/internal/domain/catalog"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/companies"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/plays"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/quota"
)

type finalizeCall struct {
	playID    int64
	code      int
	amount    decimal.Decimal
	yearMonth string
}

// fakeStore backs every manager dependency in memory, the way the streaming
// protocol sees them in production.
type fakeStore struct {
	content  *catalog.Content
	company  *companies.Company
	sub      *companies.Subscription
	quota    *quota.MonthlyQuota
	capCount int

	nextPlayID int64
	created    []int64
	progress   map[int64]int64
	finalized  []finalizeCall
	valid      map[int64]bool
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		content: &catalog.Content{
			ID: 7, Title: "test track", Grade: catalog.GradeRewardable,
			DurationSec: 200, FileSize: 10_000_000, FilePath: "7.mp3", LyricsPath: "7.txt",
		},
		company: &companies.Company{ID: 3, APIKey: "key-3", Tier: companies.TierStandard},
		sub: &companies.Subscription{
			ID: 1, CompanyID: 3,
			StartedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
			ExpiresAt: time.Date(2027, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		quota:    &quota.MonthlyQuota{ContentID: 7, Total: 100, Remaining: 10, RewardAmount: decimal.NewFromInt(2)},
		progress: map[int64]int64{},
		valid:    map[int64]bool{},
	}
}

func (f *fakeStore) Get(_ context.Context, id int64) (*catalog.Content, error) {
	if f.content != nil && f.content.ID == id {
		return f.content, nil
	}
	return nil, nil
}

func (f *fakeStore) ByAPIKey(_ context.Context, key string) (*companies.Company, error) {
	if f.company != nil && f.company.APIKey == key {
		return f.company, nil
	}
	return nil, nil
}

func (f *fakeStore) ActiveSubscription(_ context.Context, _ int64, _ time.Time) (*companies.Subscription, error) {
	return f.sub, nil
}

func (f *fakeStore) RewardCountSince(_ context.Context, _ int64, _ time.Time) (int, error) {
	return f.capCount, nil
}

func (f *fakeStore) Create(_ context.Context, _, _ int64, _ plays.UseCase) (int64, error) {
	f.nextPlayID++
	f.created = append(f.created, f.nextPlayID)
	return f.nextPlayID, nil
}

func (f *fakeStore) UpdateProgress(_ context.Context, id, maxSent int64) error {
	if maxSent > f.progress[id] {
		f.progress[id] = maxSent
	}
	return nil
}

func (f *fakeStore) Current(_ context.Context, _ int64, _ string) (*quota.MonthlyQuota, error) {
	return f.quota, nil
}

func (f *fakeStore) FinalizePlay(_ context.Context, playID int64, code int, amount decimal.Decimal, yearMonth string) (bool, error) {
	f.finalized = append(f.finalized, finalizeCall{playID, code, amount, yearMonth})
	if f.valid[playID] {
		return false, nil
	}
	f.valid[playID] = true
	return true, nil
}

func newTestManager(f *fakeStore) (*Manager, *clock) {
	clk := &clock{t: time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)}
	log := slog.New(slog.DiscardHandler)
	m := NewManager(log, NewCodec("test-secret"), f, f, f, f, f)
	m.now = clk.now
	return m, clk
}

type clock struct{ t time.Time }

func (c *clock) now() time.Time          { return c.t }
func (c *clock) advance(d time.Duration) { c.t = c.t.Add(d) }

func TestOpenOrResumeFirstContact(t *testing.T) {
	f := newFakeStore()
	m, _ := newTestManager(f)

	g, err := m.OpenOrResume(context.Background(), 7, "key-3", "", plays.UseCaseFull, 0, -1)
	require.NoError(t, err)

	assert.Equal(t, []int64{1}, f.created)
	assert.Equal(t, Window{Start: 0, End: 1<<20 - 1}, g.Window)
	assert.False(t, g.Finalized)
	assert.NotEmpty(t, g.Token)
	assert.Equal(t, int64(1<<20), f.progress[1])
}

func TestOpenOrResumeAuthFailures(t *testing.T) {
	f := newFakeStore()
	m, _ := newTestManager(f)
	ctx := context.Background()

	_, err := m.OpenOrResume(ctx, 7, "wrong-key", "", plays.UseCaseFull, 0, -1)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = m.OpenOrResume(ctx, 7, "", "", plays.UseCaseFull, 0, -1)
	assert.ErrorIs(t, err, ErrUnauthorized)

	_, err = m.OpenOrResume(ctx, 999, "key-3", "", plays.UseCaseFull, 0, -1)
	assert.ErrorIs(t, err, ErrNotFound)

	f.company.Tier = companies.TierFree
	_, err = m.OpenOrResume(ctx, 7, "key-3", "", plays.UseCaseFull, 0, -1)
	assert.ErrorIs(t, err, ErrForbidden)

	f.company.Tier = companies.TierStandard
	f.sub = nil
	_, err = m.OpenOrResume(ctx, 7, "key-3", "", plays.UseCaseFull, 0, -1)
	assert.ErrorIs(t, err, ErrForbidden)

	// no play session rows on any failure path
	assert.Empty(t, f.created)
}

func TestOpenOrResumeMismatchedTokenStartsFresh(t *testing.T) {
	f := newFakeStore()
	m, _ := newTestManager(f)
	ctx := context.Background()

	g, err := m.OpenOrResume(ctx, 7, "key-3", "", plays.UseCaseFull, 0, -1)
	require.NoError(t, err)

	// token minted for another content id is treated as absent
	other := NewCodec("test-secret").Issue(Progress{PlayID: 99, ContentID: 8, CompanyID: 3, StartedAt: 1})
	_, err = m.OpenOrResume(ctx, 7, "key-3", other, plays.UseCaseFull, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2}, f.created)

	// a garbled token too
	_, err = m.OpenOrResume(ctx, 7, "key-3", g.Token+"x", plays.UseCaseFull, 0, -1)
	require.NoError(t, err)
	assert.Equal(t, []int64{1, 2, 3}, f.created)
}

// driveToCompletion replays range requests with the refreshed token until the
// manager reports finalization, advancing the clock between requests.
func driveToCompletion(t *testing.T, m *Manager, clk *clock, f *fakeStore) *Grant {
	t.Helper()

	token := ""
	var maxSent int64
	for i := 0; i < 500; i++ {
		g, err := m.OpenOrResume(context.Background(), 7, "key-3", token, plays.UseCaseFull, maxSent, -1)
		require.NoError(t, err)
		require.GreaterOrEqual(t, g.Window.End, g.Window.Start)
		require.LessOrEqual(t, g.Window.End, f.content.FileSize-1)

		token = g.Token
		if g.Window.End+1 > maxSent {
			maxSent = g.Window.End + 1
		}
		g.Commit(context.Background())
		if g.Finalized {
			return g
		}
		clk.advance(2 * time.Second)
	}
	t.Fatal("stream never finalized")
	return nil
}

func TestFullDeliveryFinalizesOnce(t *testing.T) {
	f := newFakeStore()
	m, clk := newTestManager(f)

	g := driveToCompletion(t, m, clk, f)
	assert.Equal(t, f.content.FileSize-1, g.Window.End)

	// exactly one play session, finalized with a granted reward
	require.Equal(t, []int64{1}, f.created)
	require.Len(t, f.finalized, 1)
	assert.Equal(t, int64(1), f.finalized[0].playID)
	assert.Equal(t, 1, f.finalized[0].code)
	assert.True(t, decimal.NewFromInt(2).Equal(f.finalized[0].amount))
	// quota period pinned at resolve time, not finalize wall clock
	assert.Equal(t, "2026-08", f.finalized[0].yearMonth)

	// replaying the final request hits the idempotency guard, no new reward
	g2, err := m.OpenOrResume(context.Background(), 7, "key-3", g.Token, plays.UseCaseFull, f.content.FileSize-1, -1)
	require.NoError(t, err)
	g2.Commit(context.Background())
	require.Len(t, f.finalized, 2)
	assert.False(t, f.valid[2]) // no second session was created either
	assert.Equal(t, []int64{1}, f.created)
}

func TestGrantCommitGates(t *testing.T) {
	f := newFakeStore()
	m, clk := newTestManager(f)

	// drive to the last byte but never commit: nothing finalizes
	token := ""
	var maxSent int64
	for i := 0; i < 500 && maxSent < f.content.FileSize; i++ {
		g, err := m.OpenOrResume(context.Background(), 7, "key-3", token, plays.UseCaseFull, maxSent, -1)
		require.NoError(t, err)
		token = g.Token
		if g.Window.End+1 > maxSent {
			maxSent = g.Window.End + 1
		}
		clk.advance(2 * time.Second)
	}
	require.Equal(t, f.content.FileSize, maxSent)
	assert.Empty(t, f.finalized)

	// a mid-stream grant carries no pending finalization at all
	g, err := m.OpenOrResume(context.Background(), 7, "key-3", "", plays.UseCaseFull, 0, -1)
	require.NoError(t, err)
	g.Commit(context.Background())
	g.Commit(context.Background())
	assert.False(t, g.Finalized)
	assert.Empty(t, f.finalized)
}

func TestFinalizeOutcomeCodes(t *testing.T) {
	t.Run("quota exhausted", func(t *testing.T) {
		f := newFakeStore()
		f.quota.Remaining = 0
		m, clk := newTestManager(f)

		driveToCompletion(t, m, clk, f)
		require.Len(t, f.finalized, 1)
		assert.Equal(t, 2, f.finalized[0].code)
		assert.True(t, f.finalized[0].amount.IsZero())
	})

	t.Run("company cap reached", func(t *testing.T) {
		f := newFakeStore()
		f.capCount = 5000
		m, clk := newTestManager(f)

		driveToCompletion(t, m, clk, f)
		require.Len(t, f.finalized, 1)
		assert.Equal(t, 3, f.finalized[0].code)
	})

	t.Run("non rewardable grade", func(t *testing.T) {
		f := newFakeStore()
		f.content.Grade = catalog.GradeGeneral
		m, clk := newTestManager(f)

		driveToCompletion(t, m, clk, f)
		require.Len(t, f.finalized, 1)
		assert.Equal(t, 0, f.finalized[0].code)
	})
}

func TestOpenLyricsFinalizesOnCommit(t *testing.T) {
	f := newFakeStore()
	m, _ := newTestManager(f)

	c, commit, err := m.OpenLyrics(context.Background(), 7, "key-3")
	require.NoError(t, err)
	assert.Equal(t, "7.txt", c.LyricsPath)

	// nothing is recorded until the caller commits a successful retrieval
	assert.Empty(t, f.created)
	assert.Empty(t, f.finalized)

	commit(context.Background())
	require.Equal(t, []int64{1}, f.created)
	require.Len(t, f.finalized, 1)
	assert.Equal(t, 1, f.finalized[0].code)

	f.content.LyricsPath = ""
	_, _, err = m.OpenLyrics(context.Background(), 7, "key-3")
	assert.ErrorIs(t, err, ErrNotFound)
}
