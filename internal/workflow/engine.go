package workflow

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync/atomic"
	"time"

	"github.com/samber/oops"
	"github.com/sethvargo/go-retry"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/taleforge/sceneengine/internal/advance"
	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/exchange"
	"github.com/taleforge/sceneengine/internal/gateway"
	"github.com/taleforge/sceneengine/internal/logging"
	"github.com/taleforge/sceneengine/internal/store"
	"github.com/taleforge/sceneengine/internal/validator"
	"github.com/taleforge/sceneengine/internal/world"
)

var tracer = otel.Tracer("github.com/taleforge/sceneengine/internal/workflow")

// Options tunes resolution behaviour. Zero fields take defaults.
type Options struct {
	Timeout time.Duration
	// StuckGrace is added to Timeout before a RESOLVING scene may be taken
	// over by a new resolution.
	StuckGrace     time.Duration
	HealthEvery    int
	RevertAttempts uint64
	RevertBackoff  time.Duration
	RecentEvents   int
	ExcerptLength  int
}

func (o Options) withDefaults() Options {
	if o.Timeout <= 0 {
		o.Timeout = 60 * time.Second
	}
	if o.StuckGrace <= 0 {
		o.StuckGrace = 5 * time.Second
	}
	if o.HealthEvery <= 0 {
		o.HealthEvery = 5
	}
	if o.RevertAttempts == 0 {
		o.RevertAttempts = 3
	}
	if o.RevertBackoff <= 0 {
		o.RevertBackoff = 50 * time.Millisecond
	}
	if o.RecentEvents <= 0 {
		o.RecentEvents = 5
	}
	if o.ExcerptLength <= 0 {
		o.ExcerptLength = 280
	}
	return o
}

// Engine is the scene resolution orchestrator. It owns and sequences the
// exchange coordinator, the narrator gateway and the world updater.
type Engine struct {
	DB           *sql.DB
	Scenes       *store.SceneRepo
	Actions      *store.ActionRepo
	Events       *store.EventRepo
	Snapshots    *store.SnapshotRepo
	Audit        *store.AuditRepo
	CampaignLogs *store.CampaignLogRepo

	Coordinator *exchange.Coordinator
	Detector    *exchange.ConflictDetector
	Gateway     *gateway.Gateway
	Updater     *world.Updater
	Heuristics  advance.Heuristics
	Health      *HealthScorer
	Classifier  classify.Classifier
	Gates       GateChain
	Publisher   Publisher
	Logger      *slog.Logger
	Options     Options
	Now         func() time.Time
}

// NewEngine wires an Engine with default collaborators around db and gw.
// It also registers the engine as the gateway's breaker observer.
func NewEngine(db *sql.DB, gw *gateway.Gateway, pub Publisher, opts Options, logger *slog.Logger) *Engine {
	c := gw.Classifier
	if c == nil {
		c = classify.Default()
	}
	coord := exchange.NewCoordinator(db, c)
	coord.Logger = logger
	e := &Engine{
		DB:           db,
		Scenes:       &store.SceneRepo{},
		Actions:      &store.ActionRepo{},
		Events:       &store.EventRepo{},
		Snapshots:    &store.SnapshotRepo{},
		Audit:        &store.AuditRepo{},
		CampaignLogs: &store.CampaignLogRepo{},
		Coordinator:  coord,
		Detector:     &exchange.ConflictDetector{Classifier: c},
		Gateway:      gw,
		Updater:      world.NewUpdater(logger),
		Heuristics:   advance.DefaultHeuristics(),
		Health:       NewHealthScorer(DefaultHealthWeights()),
		Classifier:   c,
		Gates:        GateChain{&ReadinessGate{}, &BudgetGate{Registry: gw.Registry}},
		Publisher:    pub,
		Logger:       logger,
		Options:      opts.withDefaults(),
		Now:          time.Now,
	}
	if gw.Registry != nil {
		gw.Registry.OnBreakerTransition = e.onBreakerTransition
	}
	return e
}

func (e *Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

func (e *Engine) logger() *slog.Logger {
	if e.Logger != nil {
		return e.Logger
	}
	return slog.Default()
}

// CreateScene opens a new scene for campaignID. A campaign holds at most
// one open scene; a nil participants makes an open scene.
func (e *Engine) CreateScene(ctx context.Context, campaignID, intro string, participants *domain.Participants) (*domain.Scene, error) {
	if _, err := e.Updater.World.Get(ctx, e.DB, campaignID); err != nil {
		return nil, err
	}

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	n, err := e.Scenes.NextSceneNumber(ctx, tx, campaignID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreQuery, err)
	}
	now := e.now().Unix()
	s := domain.Scene{
		ID:                    domain.NewID("scn"),
		CampaignID:            campaignID,
		SceneNumber:           n,
		Status:                domain.SceneAwaitingActions,
		IntroText:             strings.TrimSpace(intro),
		Participants:          participants,
		CurrentExchangeNumber: 1,
		Revision:              1,
		CreatedAtUnix:         now,
		UpdatedAtUnix:         now,
	}
	if participants != nil {
		s.WaitingOnUsers = append([]string(nil), participants.UserIDs...)
	}
	if err := e.Scenes.CreateTx(ctx, tx, s); err != nil {
		return nil, err
	}
	if err := e.appendEventTx(ctx, tx, &s, EventTypeSceneCreated, map[string]any{"scene_number": n}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.Wrap(domain.ErrStoreWrite, err)
	}

	e.logger().Info("scene created", "campaign_id", campaignID, "scene_id", s.ID, "scene_number", n)
	e.publish(ctx, campaignID, EventSceneCreated, map[string]any{"scene_id": s.ID, "scene_number": n})
	return &s, nil
}

// SubmitAction records a player action against the scene's current exchange.
func (e *Engine) SubmitAction(ctx context.Context, sceneID, characterID, userID, text string) (*domain.PlayerAction, *domain.Scene, error) {
	a, s, err := e.Coordinator.Submit(ctx, exchange.Submission{
		SceneID: sceneID, CharacterID: characterID, UserID: userID, Text: text,
	})
	if err != nil {
		return nil, nil, err
	}
	e.publish(ctx, s.CampaignID, EventActionSubmitted, map[string]any{
		"scene_id":     s.ID,
		"action_id":    a.ID,
		"character_id": a.CharacterID,
		"exchange":     a.ExchangeNumber,
		"ready":        exchange.CanResolve(s, false),
		"waiting_on":   s.WaitingOnUsers,
	})
	return a, s, nil
}

// Readiness reports whether the scene's exchange may resolve without force
// and which participants have yet to act.
func (e *Engine) Readiness(ctx context.Context, sceneID string) (bool, []string, error) {
	s, err := e.Scenes.GetByID(ctx, e.DB, sceneID)
	if err != nil {
		return false, nil, err
	}
	return exchange.CanResolve(s, false), exchange.Missing(s), nil
}

// GetScene returns a scene by ID.
func (e *Engine) GetScene(ctx context.Context, sceneID string) (*domain.Scene, error) {
	return e.Scenes.GetByID(ctx, e.DB, sceneID)
}

// EndScene closes an AWAITING_ACTIONS scene for good.
func (e *Engine) EndScene(ctx context.Context, sceneID string) (*domain.Scene, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	s, err := e.Scenes.GetByID(ctx, tx, sceneID)
	if err != nil {
		return nil, err
	}
	if s.Status == domain.SceneResolved {
		return nil, domain.ErrSceneClosed
	}
	abandoned, err := e.Actions.FailPendingTx(ctx, tx, s.ID)
	if err != nil {
		return nil, domain.Wrap(domain.ErrStoreWrite, err)
	}
	if err := e.transitionTx(ctx, tx, s, domain.SceneResolved, EventTypeSceneEnded, map[string]any{"abandoned": abandoned}); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, domain.Wrap(domain.ErrStoreWrite, err)
	}

	e.logger().Info("scene ended", "campaign_id", s.CampaignID, "scene_id", s.ID, "abandoned_actions", abandoned)
	e.publish(ctx, s.CampaignID, EventSceneEnded, map[string]any{"scene_id": s.ID, "abandoned": abandoned})
	return s, nil
}

// Resolution is the outcome of a successful ResolveScene.
type Resolution struct {
	Scene        *domain.Scene
	Level        validator.Level
	SceneText    string
	CacheHit     bool
	Exchange     int
	Report       world.Report
	Applied      *world.Result
	Advancements []advance.Outcome
	World        *domain.WorldMeta
	Health       *HealthReport
}

// Stages of a resolution attempt, used to decide who reports a failure to
// the circuit breaker.
const (
	stagePrepare int32 = iota
	stageGateway
	stageCommit
)

type resolveResult struct {
	res *Resolution
	err error
}

// ResolveScene resolves the scene's current exchange through the narrator.
// Refusals (not ready, wrong status, no pending actions, budget) leave no
// trace. Once the scene is RESOLVING, any failure including the timeout
// reverts it to AWAITING_ACTIONS and publishes a failure event.
func (e *Engine) ResolveScene(ctx context.Context, campaignID, sceneID string, force bool) (*Resolution, error) {
	ctx, span := tracer.Start(ctx, "workflow.ResolveScene")
	defer span.End()
	span.SetAttributes(
		attribute.String("campaign_id", campaignID),
		attribute.String("scene_id", sceneID),
		attribute.Bool("force", force),
	)
	log := e.logger().With("campaign_id", campaignID, "scene_id", sceneID)
	start := e.now()

	scene, pending, err := e.lock(ctx, campaignID, sceneID, force, log)
	if err != nil {
		resolutions.WithLabelValues("refused").Inc()
		return nil, err
	}
	e.publish(ctx, campaignID, EventResolving, map[string]any{
		"scene_id": scene.ID, "exchange": scene.CurrentExchangeNumber, "actions": len(pending),
	})

	var stage atomic.Int32
	rctx, cancel := context.WithTimeout(ctx, e.Options.Timeout)
	defer cancel()

	done := make(chan resolveResult, 1)
	go func() {
		res, err := e.resolve(rctx, scene, pending, &stage)
		done <- resolveResult{res: res, err: err}
	}()

	var res *Resolution
	select {
	case r := <-done:
		res, err = r.res, r.err
	case <-rctx.Done():
		select {
		case r := <-done:
			res, err = r.res, r.err
		default:
			err = domain.Wrap(domain.ErrResolutionTimeout, rctx.Err())
		}
	}
	resolutionDuration.Observe(e.now().Sub(start).Seconds())

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		return nil, e.fail(ctx, scene, err, stage.Load(), log)
	}

	resolutions.WithLabelValues("resolved").Inc()
	span.SetAttributes(attribute.String("validation_level", string(res.Level)))
	log.Info("exchange resolved",
		"exchange", res.Exchange, "level", res.Level, "cache_hit", res.CacheHit,
		"changes", len(res.Report.Changes), "impact", res.Report.Level)
	e.afterCommit(ctx, res, log)
	return res, nil
}

// lock validates the request and moves the scene to RESOLVING.
func (e *Engine) lock(ctx context.Context, campaignID, sceneID string, force bool, log *slog.Logger) (*domain.Scene, []domain.PlayerAction, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, nil, domain.Wrap(domain.ErrStoreWrite, err)
	}
	defer tx.Rollback()

	s, err := e.Scenes.GetByID(ctx, tx, sceneID)
	if err != nil {
		return nil, nil, err
	}
	if s.CampaignID != campaignID {
		return nil, nil, domain.NewEngineError(domain.ErrSceneNotFound,
			fmt.Sprintf("scene %s does not belong to campaign %s", sceneID, campaignID))
	}
	if s.Status == domain.SceneResolved {
		return nil, nil, domain.ErrSceneClosed
	}
	if s.Status == domain.SceneResolving && !e.stalled(s) {
		return nil, nil, domain.NewEngineError(domain.ErrResolutionRunning,
			fmt.Sprintf("scene %s is already being resolved", s.ID))
	}
	if err := e.Gates.Evaluate(ctx, s, force); err != nil {
		return nil, nil, err
	}

	pending, err := e.Actions.ListPending(ctx, tx, s.ID)
	if err != nil {
		return nil, nil, domain.Wrap(domain.ErrStoreQuery, err)
	}
	if len(pending) == 0 {
		return nil, nil, domain.ErrNoPendingActions
	}

	payload := map[string]any{"actions": len(pending), "force": force}
	if s.Status == domain.SceneResolving {
		log.Warn("scene stalled in RESOLVING, treating as crash recovery",
			"stalled_seconds", e.now().Unix()-s.UpdatedAtUnix)
		payload["reentry"] = true
		s.UpdatedAtUnix = e.now().Unix()
		if err := e.appendEventTx(ctx, tx, s, EventTypeSceneResolving, payload); err != nil {
			return nil, nil, err
		}
		if err := e.Scenes.UpdateTx(ctx, tx, s); err != nil {
			return nil, nil, err
		}
	} else if err := e.transitionTx(ctx, tx, s, domain.SceneResolving, EventTypeSceneResolving, payload); err != nil {
		return nil, nil, err
	}

	if err := tx.Commit(); err != nil {
		return nil, nil, domain.Wrap(domain.ErrStoreWrite, err)
	}
	return s, pending, nil
}

// stalled reports whether a RESOLVING scene has outlived any resolution that
// could still be running.
func (e *Engine) stalled(s *domain.Scene) bool {
	cutoff := e.now().Add(-e.Options.Timeout - e.Options.StuckGrace).Unix()
	return s.UpdatedAtUnix < cutoff
}

// resolve runs the narrator call and commits its result. It runs under the
// resolution timeout; a cancelled ctx aborts the commit transaction.
func (e *Engine) resolve(ctx context.Context, scene *domain.Scene, pending []domain.PlayerAction, stage *atomic.Int32) (*Resolution, error) {
	req, err := e.buildRequest(ctx, e.DB, scene, pending)
	if err != nil {
		return nil, persistence(err)
	}

	stage.Store(stageGateway)
	out, err := e.Gateway.Call(ctx, scene.CampaignID, req)
	if err != nil {
		return nil, err
	}
	stage.Store(stageCommit)

	res := &Resolution{
		Level:     out.Result.Level(),
		SceneText: out.Result.Text(),
		CacheHit:  out.CacheHit,
		Exchange:  scene.CurrentExchangeNumber,
	}
	if err := e.commit(ctx, scene, pending, out.Result, res); err != nil {
		return nil, persistence(err)
	}
	return res, nil
}

// commit folds the narrator result into world state, closes the exchange
// and reopens the scene in one transaction.
func (e *Engine) commit(ctx context.Context, scene *domain.Scene, pending []domain.PlayerAction, result validator.Result, res *Resolution) error {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	campaignID := scene.CampaignID
	now := e.now().Unix()

	before, err := e.Updater.Capture(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	applied, err := e.Updater.ApplyTx(ctx, tx, campaignID, scene.ID, validator.Updates(result))
	if err != nil {
		return err
	}
	res.Applied = applied

	ids, texts := actingCharacters(pending)
	for _, id := range ids {
		ch, err := e.Updater.Characters.GetByID(ctx, tx, id)
		if errors.Is(err, domain.ErrCharacterNotFound) {
			continue
		}
		if err != nil {
			return err
		}
		out := e.Heuristics.Advance(ch, texts[id], e.Classifier)
		if out.Rejected != nil {
			e.logger().Info("pending stat increases held",
				"campaign_id", campaignID, "character_id", id, "increases", ch.Advancement.StatIncreases, "reason", out.Rejected)
		}
		ch.UpdatedAtUnix = now
		if err := e.Updater.Characters.UpdateTx(ctx, tx, *ch); err != nil {
			return err
		}
		res.Advancements = append(res.Advancements, out)
	}

	meta, err := e.Updater.World.Get(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	meta.TurnNumber++
	meta.ResolutionCount++
	meta.InGameDate = AdvanceDate(meta.InGameDate, validator.TimePassage(result))
	meta.UpdatedAtUnix = now
	if err := e.Updater.World.UpdateTx(ctx, tx, *meta); err != nil {
		return err
	}
	res.World = meta

	actionIDs := make([]string, len(pending))
	for i, a := range pending {
		actionIDs[i] = a.ID
	}
	if err := e.Actions.SetStatusTx(ctx, tx, actionIDs, domain.ActionResolved); err != nil {
		return err
	}

	scene.ResolutionText = appendResolution(scene.ResolutionText, res.SceneText)
	exchange.InitializeExchange(scene, now)
	if err := e.transitionTx(ctx, tx, scene, domain.SceneAwaitingActions, EventTypeExchangeResolved, map[string]any{
		"resolved_exchange": res.Exchange,
		"level":             res.Level,
		"actions":           len(pending),
		"cache_hit":         res.CacheHit,
	}); err != nil {
		return err
	}

	after, err := e.Updater.Capture(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	res.Report = world.Diff(before, after)
	body, sum, err := res.Report.JSON()
	if err != nil {
		return err
	}
	if err := e.Snapshots.Save(ctx, tx, domain.ResolutionSnapshot{
		SceneID:        scene.ID,
		CampaignID:     campaignID,
		ExchangeNumber: res.Exchange,
		Level:          string(res.Level),
		ChangesJSON:    body,
		Checksum:       sum,
		CreatedAt:      now,
	}); err != nil {
		return err
	}

	if err := tx.Commit(); err != nil {
		return err
	}
	res.Scene = scene
	return nil
}

// afterCommit runs the best-effort side effects of a committed exchange.
func (e *Engine) afterCommit(ctx context.Context, res *Resolution, log *slog.Logger) {
	s := res.Scene
	e.publish(ctx, s.CampaignID, EventResolved, map[string]any{
		"scene_id":   s.ID,
		"exchange":   res.Exchange,
		"level":      res.Level,
		"scene_text": res.SceneText,
		"changes":    res.Report.Changes,
		"impact":     res.Report.Level,
		"turn":       res.World.TurnNumber,
		"date":       res.World.InGameDate,
	})
	e.publish(ctx, s.CampaignID, EventExchangeStarted, map[string]any{
		"scene_id": s.ID, "exchange": s.CurrentExchangeNumber, "waiting_on": s.WaitingOnUsers,
	})
	for _, tick := range res.Applied.ClockTicks {
		e.publish(ctx, s.CampaignID, EventClockTicked, tick)
	}
	for _, g := range res.Applied.Grants {
		e.publish(ctx, s.CampaignID, EventCharacterAdvanced, g)
	}
	for _, out := range res.Advancements {
		if out.Changed() {
			e.publish(ctx, s.CampaignID, EventCharacterAdvanced, out)
		}
	}

	if err := e.CampaignLogs.Append(ctx, e.DB, domain.CampaignLogEntry{
		CampaignID:     s.CampaignID,
		SceneID:        s.ID,
		SceneNumber:    s.SceneNumber,
		ExchangeNumber: res.Exchange,
		TurnNumber:     res.World.TurnNumber,
		InGameDate:     res.World.InGameDate,
		Excerpt:        excerpt(res.SceneText, e.Options.ExcerptLength),
		CreatedAt:      e.now().Unix(),
	}); err != nil {
		log.Warn("campaign log append failed", "error", err)
	}

	if res.World.ResolutionCount%e.Options.HealthEvery == 0 {
		report, err := e.ScoreHealth(ctx, s.CampaignID)
		if err != nil {
			log.Warn("health scoring failed", "error", err)
		} else {
			res.Health = report
		}
	}
}

// ScoreHealth evaluates campaign health from the narrator ledger and clock
// pressure, stores it in world meta and publishes it.
func (e *Engine) ScoreHealth(ctx context.Context, campaignID string) (*HealthReport, error) {
	clocks, err := e.Updater.Clocks.ListByCampaign(ctx, e.DB, campaignID)
	if err != nil {
		return nil, err
	}
	report := e.Health.Evaluate(SignalsFrom(e.Gateway.Registry.Ledger(campaignID).Totals(), clocks))

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return nil, err
	}
	defer tx.Rollback()
	meta, err := e.Updater.World.Get(ctx, tx, campaignID)
	if err != nil {
		return nil, err
	}
	meta.HealthScore = report.Score
	meta.HealthVerdict = report.Verdict
	meta.UpdatedAtUnix = e.now().Unix()
	if err := e.Updater.World.UpdateTx(ctx, tx, *meta); err != nil {
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		return nil, err
	}

	if report.Verdict != domain.HealthHealthy {
		e.logger().Warn("campaign health degraded",
			"campaign_id", campaignID, "verdict", report.Verdict, "score", report.Score, "reasons", report.Reasons)
	}
	e.publish(ctx, campaignID, EventCampaignHealth, report)
	return &report, nil
}

// fail runs the recovery path for a resolution that failed after the scene
// was locked and returns the error to surface to the caller.
func (e *Engine) fail(ctx context.Context, scene *domain.Scene, cause error, stage int32, log *slog.Logger) error {
	ctx = context.WithoutCancel(ctx)
	kind := domain.KindOf(cause)

	// A lost commit CAS means another writer owns the scene now. Leave it
	// and the breaker alone.
	if errors.Is(cause, domain.ErrOptimisticLock) {
		resolutions.WithLabelValues("conflict").Inc()
		log.Warn("resolution lost the scene to a concurrent writer", "exchange", scene.CurrentExchangeNumber)
		return oops.
			In("workflow").
			Code(string(kind)).
			With("campaign_id", scene.CampaignID).
			With("scene_id", scene.ID).
			Wrapf(cause, "resolve scene")
	}

	reverted, err := e.revert(ctx, scene.ID, EventTypeResolutionFailed, map[string]any{
		"error": cause.Error(),
		"kind":  kind,
	})
	if err != nil {
		logging.LogError(log, "revert to AWAITING_ACTIONS failed", err)
	} else if !reverted {
		log.Warn("scene was no longer RESOLVING when reverting")
	}

	// The gateway reports its own attempts; anything else is reported here.
	if stage != stageGateway && e.Gateway.Registry != nil {
		e.Gateway.Registry.Breaker(scene.CampaignID).RecordFailure(cause)
	}

	outcome := "failed"
	if errors.Is(cause, domain.ErrResolutionTimeout) {
		outcome = "timeout"
	}
	resolutions.WithLabelValues(outcome).Inc()

	e.publish(ctx, scene.CampaignID, EventResolutionFailed, map[string]any{
		"scene_id": scene.ID,
		"exchange": scene.CurrentExchangeNumber,
		"kind":     kind,
		"error":    cause.Error(),
		"timeout":  outcome == "timeout",
	})

	wrapped := oops.
		In("workflow").
		Code(string(kind)).
		With("campaign_id", scene.CampaignID).
		With("scene_id", scene.ID).
		With("exchange", scene.CurrentExchangeNumber).
		Wrapf(cause, "resolve scene")
	logging.LogError(log, "scene resolution failed", wrapped)
	return wrapped
}

// revert moves a RESOLVING scene back to AWAITING_ACTIONS, retrying the
// write. The exchange's actions stay pending for the next attempt. It reports false when the scene was
// not RESOLVING.
func (e *Engine) revert(ctx context.Context, sceneID, eventType string, payload map[string]any) (bool, error) {
	var reverted bool
	backoff := retry.WithMaxRetries(e.Options.RevertAttempts, retry.NewConstant(e.Options.RevertBackoff))
	err := retry.Do(ctx, backoff, func(ctx context.Context) error {
		ok, err := e.revertOnce(ctx, sceneID, eventType, payload)
		if err != nil {
			e.logger().Warn("revert attempt failed", "scene_id", sceneID, "error", err)
			return retry.RetryableError(err)
		}
		reverted = ok
		return nil
	})
	return reverted, err
}

func (e *Engine) revertOnce(ctx context.Context, sceneID, eventType string, payload map[string]any) (bool, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return false, err
	}
	defer tx.Rollback()

	s, err := e.Scenes.GetByID(ctx, tx, sceneID)
	if err != nil {
		return false, err
	}
	if s.Status != domain.SceneResolving {
		return false, nil
	}
	if err := e.transitionTx(ctx, tx, s, domain.SceneAwaitingActions, eventType, payload); err != nil {
		return false, err
	}
	if err := tx.Commit(); err != nil {
		return false, err
	}
	return true, nil
}

func (e *Engine) onBreakerTransition(campaignID string, from, to domain.BreakerState, snap gateway.BreakerSnapshot) {
	log := e.logger().With("campaign_id", campaignID)
	log.Warn("narrator breaker transition", "from", from, "to", to, "failures", snap.FailureCount)
	if to != domain.BreakerOpen {
		return
	}
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := e.Audit.Record(ctx, e.DB, domain.AuditRecord{
		ID:           domain.NewID("aud"),
		CampaignID:   campaignID,
		Category:     "gateway",
		Actor:        "system",
		Action:       "breaker_open",
		RequestJSON:  fmt.Sprintf(`{"from":%q}`, from),
		DecisionJSON: fmt.Sprintf(`{"failures":%d,"last_error":%q}`, snap.FailureCount, snap.LastError),
		Severity:     "warning",
		CreatedAt:    e.now().Unix(),
	}); err != nil {
		log.Warn("record breaker audit failed", "error", err)
	}
}

// persistence tags untyped errors as persistence failures.
func persistence(err error) error {
	var ee *domain.EngineError
	if errors.As(err, &ee) {
		return err
	}
	return domain.Wrap(domain.ErrStoreWrite, err)
}

func appendResolution(existing, text string) string {
	if existing == "" {
		return text
	}
	return existing + domain.ResolutionDelimiter + text
}

func excerpt(s string, n int) string {
	r := []rune(strings.TrimSpace(s))
	if len(r) <= n {
		return string(r)
	}
	return strings.TrimSpace(string(r[:n])) + "…"
}
