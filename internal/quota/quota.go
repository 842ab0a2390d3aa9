// Package quota decides whether a caller may run another analysis and which
// model tier the run gets.
//
// Counts are derived from the analyses table at check time. The check and the
// later insert are not transactional, so concurrent requests from one identity
// can overrun a limit by one.
package quota

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/tokbox/tokbox/internal/domain"
)

// Counter reads usage counts. Zero since means no lower bound.
type Counter interface {
	CountAnonymousByIP(ctx context.Context, ip string) (int, error)
	CountByUser(ctx context.Context, userID string, since time.Time) (int, error)
	CountPremiumByUser(ctx context.Context, userID string, since time.Time) (int, error)
}

// Period is the window a limit applies to.
type Period string

const (
	PeriodLifetime Period = "lifetime"
	PeriodMonth    Period = "month"
	PeriodDay      Period = "day"
)

// Limits is the static ceiling for one plan.
type Limits struct {
	Max            int
	Period         Period
	PremiumMonthly int // 0 means every run is premium
	Label          string
	// HardStop plans offer no upgrade when exhausted.
	HardStop bool
}

// DefaultLimits is the plan table.
var DefaultLimits = map[domain.Plan]Limits{
	domain.PlanAnonymous: {Max: 1, Period: PeriodLifetime, Label: "total"},
	domain.PlanFree:      {Max: 1, Period: PeriodLifetime, Label: "total"},
	domain.PlanCreator:   {Max: 30, Period: PeriodMonth, PremiumMonthly: 20, Label: "this month"},
	domain.PlanPro:       {Max: 5, Period: PeriodDay, PremiumMonthly: 50, Label: "today", HardStop: true},
}

// Decision is the outcome of a quota check.
type Decision struct {
	Allowed         bool
	Plan            domain.Plan
	Tier            domain.ModelTier
	Used            int // analyses counted before this request
	Limit           int
	PeriodLabel     string
	RequiresSignUp  bool
	UpgradeRequired bool
	Message         string
	FailedOpen      bool
}

// LimitError converts a denied decision to the typed error handlers map to 403.
func (d Decision) LimitError() *domain.LimitError {
	return &domain.LimitError{
		Plan:            d.Plan,
		Message:         d.Message,
		RequiresSignUp:  d.RequiresSignUp,
		UpgradeRequired: d.UpgradeRequired,
		Used:            d.Used,
		Limit:           d.Limit,
		PeriodLabel:     d.PeriodLabel,
	}
}

// Gateway applies the plan table to live counts.
type Gateway struct {
	counter Counter
	limits  map[domain.Plan]Limits
	// allowOnCheckFailure lets requests through when counting fails.
	allowOnCheckFailure bool
	events              domain.EventEmitter
	logger              *slog.Logger
	now                 func() time.Time
}

// Option configures a Gateway.
type Option func(*Gateway)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Gateway) { g.now = now }
}

// WithLimits overrides the plan table.
func WithLimits(limits map[domain.Plan]Limits) Option {
	return func(g *Gateway) { g.limits = limits }
}

// WithEvents attaches an ops event emitter for fail-open alerts.
func WithEvents(events domain.EventEmitter) Option {
	return func(g *Gateway) { g.events = events }
}

// NewGateway creates a quota gateway.
func NewGateway(counter Counter, allowOnCheckFailure bool, logger *slog.Logger, opts ...Option) *Gateway {
	g := &Gateway{
		counter:             counter,
		limits:              DefaultLimits,
		allowOnCheckFailure: allowOnCheckFailure,
		logger:              logger,
		now:                 time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// LimitsFor returns the limits for a plan. Unknown plans get the free limits.
func (g *Gateway) LimitsFor(plan domain.Plan) Limits {
	if l, ok := g.limits[plan]; ok {
		return l
	}
	return g.limits[domain.PlanFree]
}

// Check decides whether id may start an analysis. A non-nil error is returned
// only when counting failed and the fail-open policy is off.
func (g *Gateway) Check(ctx context.Context, id domain.Identity) (Decision, error) {
	plan := id.Plan
	if id.IsAnonymous() {
		plan = domain.PlanAnonymous
	}
	limits := g.LimitsFor(plan)

	d := Decision{
		Plan:        plan,
		Tier:        domain.TierPremium,
		Limit:       limits.Max,
		PeriodLabel: limits.Label,
	}

	used, err := g.countUsed(ctx, id, plan, limits)
	if err != nil {
		return g.failOpen(d, id, "count usage", err)
	}
	d.Used = used

	if used >= limits.Max {
		d.Allowed = false
		switch {
		case plan == domain.PlanAnonymous:
			d.RequiresSignUp = true
			d.Message = "You've used your free analysis. Sign up to keep going."
		case limits.HardStop:
			d.Message = fmt.Sprintf("You've reached your %d analyses for %s. Come back tomorrow.", limits.Max, limits.Label)
		default:
			d.UpgradeRequired = true
			if limits.Period == PeriodLifetime {
				d.Message = "You've used your free analysis. Upgrade to analyze more videos."
			} else {
				d.Message = fmt.Sprintf("You've used all %d analyses %s. Upgrade for more.", limits.Max, limits.Label)
			}
		}
		return d, nil
	}

	d.Allowed = true

	if limits.PremiumMonthly > 0 {
		premium, err := g.counter.CountPremiumByUser(ctx, id.UserID, monthStart(g.now()))
		if err != nil {
			return g.failOpen(d, id, "count premium usage", err)
		}
		if premium >= limits.PremiumMonthly {
			d.Tier = domain.TierFast
		}
	}

	return d, nil
}

func (g *Gateway) countUsed(ctx context.Context, id domain.Identity, plan domain.Plan, limits Limits) (int, error) {
	if plan == domain.PlanAnonymous {
		return g.counter.CountAnonymousByIP(ctx, id.IPAddress)
	}

	var since time.Time
	switch limits.Period {
	case PeriodMonth:
		since = monthStart(g.now())
	case PeriodDay:
		since = dayStart(g.now())
	}
	return g.counter.CountByUser(ctx, id.UserID, since)
}

func (g *Gateway) failOpen(d Decision, id domain.Identity, op string, err error) (Decision, error) {
	if !g.allowOnCheckFailure {
		return Decision{}, fmt.Errorf("%s: %w", op, err)
	}

	g.logger.Error("quota check failed, allowing request",
		"plan", d.Plan,
		"user_id", id.UserID,
		"op", op,
		"error", err,
	)
	if g.events != nil {
		g.events.EmitWarning(domain.EventCategoryQuota, "quota",
			"Quota check failed; request allowed by fail-open policy",
			domain.EventMetadata{"plan": string(d.Plan), "op": op, "error": err.Error()})
	}

	d.Allowed = true
	d.FailedOpen = true
	d.RequiresSignUp = false
	d.UpgradeRequired = false
	d.Message = ""
	// The premium sub-cap is unknown, so paid plans drop to the cheaper tier.
	if d.Plan.IsPaid() {
		d.Tier = domain.TierFast
	} else {
		d.Tier = domain.TierPremium
	}
	return d, nil
}

func monthStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), 1, 0, 0, 0, 0, time.UTC)
}

func dayStart(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
