package stream

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/cadst/MPS-XRPL-sub000/internal/domain/catalog"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/companies"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/plays"
	"github.com/cadst/MPS-XRPL-sub000/internal/domain/quota"
	"github.com/cadst/MPS-XRPL-sub000/internal/infra/metrics"
	"github.com/cadst/MPS-XRPL-sub000/internal/reward"
)

var (
	ErrUnauthorized = errors.New("stream: unknown api key")
	ErrForbidden    = errors.New("stream: grade or subscription does not permit this content")
	ErrNotFound     = errors.New("stream: content not found")
)

type ContentStore interface {
	Get(ctx context.Context, id int64) (*catalog.Content, error)
}

type CompanyStore interface {
	ByAPIKey(ctx context.Context, key string) (*companies.Company, error)
	ActiveSubscription(ctx context.Context, companyID int64, at time.Time) (*companies.Subscription, error)
	RewardCountSince(ctx context.Context, companyID int64, since time.Time) (int, error)
}

type PlayStore interface {
	Create(ctx context.Context, contentID, companyID int64, useCase plays.UseCase) (int64, error)
	UpdateProgress(ctx context.Context, id int64, maxSent int64) error
}

type QuotaStore interface {
	Current(ctx context.Context, contentID int64, yearMonth string) (*quota.MonthlyQuota, error)
}

type Finalizer interface {
	FinalizePlay(ctx context.Context, playID int64, code int, amount decimal.Decimal, yearMonth string) (bool, error)
}

// Manager orchestrates one content delivery per request. It holds no session
// state: progress lives in the signed token, durable facts in the store.
type Manager struct {
	log       *slog.Logger
	codec     *Codec
	contents  ContentStore
	companies CompanyStore
	plays     PlayStore
	quotas    QuotaStore
	finalizer Finalizer
	now       func() time.Time
}

func NewManager(log *slog.Logger, codec *Codec, contents ContentStore, comps CompanyStore,
	ps PlayStore, qs QuotaStore, fin Finalizer) *Manager {
	return &Manager{
		log:       log,
		codec:     codec,
		contents:  contents,
		companies: comps,
		plays:     ps,
		quotas:    qs,
		finalizer: fin,
		now:       time.Now,
	}
}

// Grant is the outcome of one OpenOrResume call. When the granted window
// reaches the last byte the grant carries a pending finalization; the caller
// commits it once the asset is actually in hand, so an error path never
// produces a rewarded play.
type Grant struct {
	Content   *catalog.Content
	Window    Window
	Token     string // refreshed token to hand back to the client
	Finalized bool

	commit func(context.Context) bool
}

// Commit finalizes the play. No-op unless this grant reached the last byte,
// and at most once per grant.
func (g *Grant) Commit(ctx context.Context) {
	if g.commit != nil {
		g.Finalized = g.commit(ctx)
		g.commit = nil
	}
}

// OpenOrResume authenticates the caller, resolves permissions, computes the
// paced byte window and refreshes the progress token. When the granted window
// reaches the last byte the returned grant holds a pending finalization for
// the caller to Commit once it has the final chunk in hand.
func (m *Manager) OpenOrResume(ctx context.Context, contentID int64, apiKey, token string, useCase plays.UseCase, reqStart, reqEnd int64) (*Grant, error) {
	company, content, sub, err := m.authorize(ctx, contentID, apiKey)
	if err != nil {
		return nil, err
	}

	now := m.now()
	p, ok := m.codec.Verify(token)
	if !ok || p.ContentID != contentID || p.CompanyID != company.ID {
		// No usable prior session: start a fresh one.
		playID, err := m.plays.Create(ctx, contentID, company.ID, useCase)
		if err != nil {
			return nil, err
		}
		metrics.PlaysStarted.Inc()
		p = Progress{PlayID: playID, ContentID: contentID, CompanyID: company.ID, StartedAt: now.UnixMilli()}
	}

	win := Pace(PaceInput{
		FileSize:   content.FileSize,
		Duration:   content.Duration(),
		Now:        now,
		StartedAt:  p.startedAt(),
		HalfAt:     p.halfAt(),
		HalfOffset: p.HalfOffset,
		MaxSent:    p.MaxSent,
		ReqStart:   reqStart,
		ReqEnd:     reqEnd,
	})

	sent := win.End + 1
	if sent > p.MaxSent {
		p.MaxSent = sent
	}
	if p.HalfAt == 0 && p.MaxSent >= content.FileSize/2 {
		p.HalfAt = now.UnixMilli()
		p.HalfOffset = p.MaxSent
	}

	// The token is the authoritative progress record; the row is audit trail,
	// so a failed update must not break the stream.
	if err := m.plays.UpdateProgress(ctx, p.PlayID, p.MaxSent); err != nil {
		m.log.Error("play progress update failed", "play_id", p.PlayID, "err", err)
	}

	g := &Grant{Content: content, Window: win, Token: m.codec.Issue(p)}
	if win.End == content.FileSize-1 {
		playID := p.PlayID
		g.commit = func(ctx context.Context) bool {
			return m.finalize(ctx, playID, company, content, sub, now)
		}
	}
	return g, nil
}

// OpenLyrics authorizes a lyrics-use play. Text payloads are small, so there
// is nothing to pace: first successful retrieval is the valid play. The
// returned commit records and finalizes it, and the caller invokes it only
// after the lyrics text is actually in hand.
func (m *Manager) OpenLyrics(ctx context.Context, contentID int64, apiKey string) (*catalog.Content, func(context.Context), error) {
	company, content, sub, err := m.authorize(ctx, contentID, apiKey)
	if err != nil {
		return nil, nil, err
	}
	if content.LyricsPath == "" {
		return nil, nil, ErrNotFound
	}

	commit := func(ctx context.Context) {
		playID, err := m.plays.Create(ctx, contentID, company.ID, plays.UseCaseLyrics)
		if err != nil {
			m.log.Error("lyrics play create failed", "content_id", contentID, "err", err)
			return
		}
		metrics.PlaysStarted.Inc()
		m.finalize(ctx, playID, company, content, sub, m.now())
	}
	return content, commit, nil
}

func (m *Manager) authorize(ctx context.Context, contentID int64, apiKey string) (*companies.Company, *catalog.Content, *companies.Subscription, error) {
	if apiKey == "" {
		return nil, nil, nil, ErrUnauthorized
	}
	company, err := m.companies.ByAPIKey(ctx, apiKey)
	if err != nil {
		return nil, nil, nil, err
	}
	if company == nil {
		return nil, nil, nil, ErrUnauthorized
	}

	content, err := m.contents.Get(ctx, contentID)
	if err != nil {
		return nil, nil, nil, err
	}
	if content == nil {
		return nil, nil, nil, ErrNotFound
	}

	if !company.Tier.Satisfies(content.Grade) {
		return nil, nil, nil, ErrForbidden
	}

	var sub *companies.Subscription
	if content.Grade != catalog.GradeGeneral {
		sub, err = m.companies.ActiveSubscription(ctx, company.ID, m.now())
		if err != nil {
			return nil, nil, nil, err
		}
		if sub == nil {
			return nil, nil, nil, ErrForbidden
		}
	}
	return company, content, sub, nil
}

// finalize resolves the reward outcome and commits it. Finalization failures
// are logged, never surfaced: an error path must not grant a reward, but it
// must not break delivery either.
func (m *Manager) finalize(ctx context.Context, playID int64, company *companies.Company,
	content *catalog.Content, sub *companies.Subscription, now time.Time) bool {

	var (
		q        *quota.MonthlyQuota
		capCount int
		err      error
	)
	if content.Grade.Rewardable() {
		q, err = m.quotas.Current(ctx, content.ID, quota.YearMonth(now))
		if err != nil {
			m.log.Error("quota lookup failed", "play_id", playID, "err", err)
			return false
		}
		anchor := company.CreatedAt
		if sub != nil {
			anchor = sub.StartedAt
		}
		capCount, err = m.companies.RewardCountSince(ctx, company.ID, reward.WindowStart(anchor, now))
		if err != nil {
			m.log.Error("cap count failed", "play_id", playID, "err", err)
			return false
		}
	}

	code := reward.Resolve(content.Grade, q, capCount)
	amount := decimal.Zero
	if code == reward.CodeRewarded {
		amount = q.RewardAmount
	}

	committed, err := m.finalizer.FinalizePlay(ctx, playID, int(code), amount, quota.YearMonth(now))
	if err != nil {
		m.log.Error("finalize failed", "play_id", playID, "code", int(code), "err", err)
		return false
	}
	if committed {
		metrics.PlaysFinalized.WithLabelValues(code.String()).Inc()
		m.log.Info("play finalized", "play_id", playID, "code", int(code), "amount", amount)
	}
	return committed
}
