// Package gateway is the single choke point for narrator calls. It guards
// each campaign with a circuit breaker, serves repeat requests from a
// similarity cache and accounts for every attempt in a cost ledger.
package gateway

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/singleflight"

	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/validator"
)

var tracer = otel.Tracer("github.com/taleforge/sceneengine/internal/gateway")

// Completion is the raw outcome of one live narrator call.
type Completion struct {
	Raw          []byte
	InputTokens  int64
	OutputTokens int64
	Model        string
}

// Narrator is the external narrative service.
type Narrator interface {
	Narrate(ctx context.Context, req domain.NarratorRequest) (*Completion, error)
}

// UsageSink persists ledger records. Failures are logged, never returned.
type UsageSink interface {
	RecordUsage(ctx context.Context, d domain.CostDelta) error
}

// Outcome is a usable narrator result.
type Outcome struct {
	Result   validator.Result
	CacheHit bool
	Usage    domain.CostDelta
}

// Gateway wraps the narrator with breaker, cache and ledger discipline.
type Gateway struct {
	Narrator   Narrator
	Validator  *validator.Validator
	Registry   *Registry
	Classifier classify.Classifier
	Pricing    Pricing
	Model      string
	Sink       UsageSink
	Logger     *slog.Logger

	now   func() time.Time
	group singleflight.Group
}

// New creates a Gateway. A nil now uses time.Now.
func New(n Narrator, v *validator.Validator, r *Registry, c classify.Classifier, now func() time.Time) *Gateway {
	if c == nil {
		c = classify.Default()
	}
	if v == nil {
		v = validator.New(c)
	}
	if now == nil {
		now = time.Now
	}
	return &Gateway{
		Narrator:   n,
		Validator:  v,
		Registry:   r,
		Classifier: c,
		now:        now,
	}
}

func (g *Gateway) logger() *slog.Logger {
	if g.Logger != nil {
		return g.Logger
	}
	return slog.Default()
}

// Call obtains a usable narrator result for req. Cache hits bypass the
// breaker. Live calls are refused while the breaker is open, and every live
// attempt is reported to the breaker exactly once.
func (g *Gateway) Call(ctx context.Context, campaignID string, req domain.NarratorRequest) (*Outcome, error) {
	ctx, span := tracer.Start(ctx, "gateway.Call")
	defer span.End()
	span.SetAttributes(attribute.String("campaign_id", campaignID))

	key := SignatureOf(req, g.Classifier).Key()
	cs := g.Registry.get(campaignID)

	if resp, ok := cs.cache.Get(key); ok {
		d := domain.CostDelta{
			CampaignID: campaignID,
			Success:    true,
			CacheHit:   true,
			Model:      g.Model,
			CreatedAt:  g.now().Unix(),
		}
		g.account(ctx, cs, d)
		narratorCalls.WithLabelValues("hit").Inc()
		span.SetAttributes(attribute.Bool("cache_hit", true))
		return &Outcome{Result: validator.Full{Response: resp}, CacheHit: true, Usage: d}, nil
	}

	v, err, _ := g.group.Do(campaignID+"|"+key, func() (any, error) {
		return g.live(ctx, campaignID, cs, key, req)
	})
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, err
	}
	out := v.(*Outcome)
	span.SetAttributes(attribute.String("validation_level", string(out.Result.Level())))
	return out, nil
}

func (g *Gateway) live(ctx context.Context, campaignID string, cs *campaignState, key string, req domain.NarratorRequest) (*Outcome, error) {
	if !cs.breaker.CanAttempt() {
		narratorCalls.WithLabelValues("blocked").Inc()
		return nil, domain.NewEngineError(domain.ErrGatewayUnavailable, "narrator circuit is open for campaign "+campaignID)
	}

	start := g.now()
	comp, err := g.Narrator.Narrate(ctx, req)
	latency := g.now().Sub(start)
	narratorLatency.Observe(latency.Seconds())

	d := domain.CostDelta{
		CampaignID: campaignID,
		LatencyMs:  latency.Milliseconds(),
		Model:      g.Model,
		CreatedAt:  g.now().Unix(),
	}
	if comp != nil {
		d.InputTokens = comp.InputTokens
		d.OutputTokens = comp.OutputTokens
		d.AmountUSD = g.Pricing.Cost(comp.InputTokens, comp.OutputTokens)
		if comp.Model != "" {
			d.Model = comp.Model
		}
	}

	if err != nil {
		return nil, g.fail(ctx, cs, d, narratorError(err))
	}

	res, err := g.Validator.Validate(comp.Raw, req.CurrentSceneIntro)
	if err != nil {
		return nil, g.fail(ctx, cs, d, err)
	}

	cs.breaker.RecordSuccess()
	d.Success = true
	g.account(ctx, cs, d)
	cs.ledger.RecordLevel(res.Level())
	narratorCalls.WithLabelValues("success").Inc()
	validationLevels.WithLabelValues(string(res.Level())).Inc()
	narratorCost.Add(d.AmountUSD)

	if full, ok := res.(validator.Full); ok {
		cs.cache.Put(key, full.Response)
	} else {
		g.logger().Warn("narrator response degraded",
			"campaign_id", campaignID, "level", res.Level())
	}
	return &Outcome{Result: res, Usage: d}, nil
}

func (g *Gateway) fail(ctx context.Context, cs *campaignState, d domain.CostDelta, err error) error {
	cs.breaker.RecordFailure(err)
	d.Success = false
	g.account(ctx, cs, d)
	narratorCalls.WithLabelValues("failure").Inc()
	g.logger().Warn("narrator attempt failed",
		"campaign_id", d.CampaignID, "failures", cs.breaker.Failures(), "error", err)
	return err
}

func (g *Gateway) account(ctx context.Context, cs *campaignState, d domain.CostDelta) {
	if action := cs.ledger.Record(d); action != domain.CostContinue {
		g.logger().Warn("narrator budget threshold reached",
			"campaign_id", d.CampaignID, "action", action, "cost_usd", cs.ledger.Totals().CostUSD)
	}
	if g.Sink == nil {
		return
	}
	if err := g.Sink.RecordUsage(context.WithoutCancel(ctx), d); err != nil {
		g.logger().Warn("persist narrator usage failed", "campaign_id", d.CampaignID, "error", err)
	}
}

// narratorError keeps engine errors as they are and wraps anything else
// as a failed narrator call.
func narratorError(err error) error {
	var ee *domain.EngineError
	if errors.As(err, &ee) {
		return err
	}
	return domain.Wrap(domain.ErrNarratorCall, err)
}
