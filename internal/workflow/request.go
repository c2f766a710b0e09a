package workflow

import (
	"context"
	"sort"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/exchange"
	"github.com/taleforge/sceneengine/internal/store"
)

// buildRequest assembles the narrator request for the pending actions of
// scene from current world state.
func (e *Engine) buildRequest(ctx context.Context, q store.DBTX, scene *domain.Scene, pending []domain.PlayerAction) (domain.NarratorRequest, error) {
	var req domain.NarratorRequest

	meta, err := e.Updater.World.Get(ctx, q, scene.CampaignID)
	if err != nil {
		return req, err
	}
	chars, err := e.Updater.Characters.ListByCampaign(ctx, q, scene.CampaignID)
	if err != nil {
		return req, err
	}
	npcs, err := e.Updater.NPCs.ListByCampaign(ctx, q, scene.CampaignID)
	if err != nil {
		return req, err
	}
	factions, err := e.Updater.Factions.ListByCampaign(ctx, q, scene.CampaignID)
	if err != nil {
		return req, err
	}
	clocks, err := e.Updater.Clocks.ListByCampaign(ctx, q, scene.CampaignID)
	if err != nil {
		return req, err
	}
	events, err := e.Updater.Timeline.ListRecent(ctx, q, scene.CampaignID, e.Options.RecentEvents)
	if err != nil {
		return req, err
	}

	req.CampaignUniverse = meta.Universe
	req.AISystemPrompt = meta.AISystemPrompt
	req.CurrentSceneIntro = scene.IntroText
	req.WorldSummary = domain.WorldSummary{
		TurnNumber:           meta.TurnNumber,
		InGameDate:           meta.InGameDate,
		Characters:           []domain.CharacterSummary{},
		NPCs:                 []domain.NPCSummary{},
		Factions:             []domain.FactionSummary{},
		Clocks:               []domain.ClockSummary{},
		RecentTimelineEvents: []domain.TimelineSummary{},
	}

	names := make(map[string]string, len(chars))
	for _, c := range chars {
		names[c.ID] = c.Name
		conds := make([]string, 0, len(c.Conditions))
		for _, cond := range c.Conditions {
			conds = append(conds, cond.Name)
		}
		req.WorldSummary.Characters = append(req.WorldSummary.Characters, domain.CharacterSummary{
			ID: c.ID, Name: c.Name, Harm: c.Harm, Conditions: conds, Stats: c.Stats, Location: c.Location,
		})
	}
	entities := make([]exchange.Entity, 0, len(npcs)+len(factions))
	for _, n := range npcs {
		req.WorldSummary.NPCs = append(req.WorldSummary.NPCs, domain.NPCSummary{ID: n.ID, Name: n.Name, Notes: n.Notes, Tags: n.Tags})
		entities = append(entities, exchange.Entity{ID: n.ID, Name: n.Name})
	}
	for _, f := range factions {
		req.WorldSummary.Factions = append(req.WorldSummary.Factions, domain.FactionSummary{
			ID: f.ID, Name: f.Name, Plan: f.Plan, ThreatLevel: f.ThreatLevel,
		})
		entities = append(entities, exchange.Entity{ID: f.ID, Name: f.Name})
	}
	for _, c := range clocks {
		req.WorldSummary.Clocks = append(req.WorldSummary.Clocks, domain.ClockSummary{ID: c.ID, Name: c.Name, Value: c.Value, Max: c.Max})
	}
	for _, ev := range events {
		req.WorldSummary.RecentTimelineEvents = append(req.WorldSummary.RecentTimelineEvents,
			domain.TimelineSummary{Title: ev.Title, InGameDate: ev.InGameDate})
	}

	for _, a := range pending {
		req.PlayerActions = append(req.PlayerActions, domain.RequestAction{
			CharacterName: nameOr(names, a.CharacterID),
			CharacterID:   a.CharacterID,
			ActionText:    a.ActionText,
		})
	}

	if scene.ExchangeState != nil && scene.ExchangeState.Complexity == domain.ComplexityComplex {
		actors := make(map[string]string)
		for _, a := range pending {
			actors[a.CharacterID] = nameOr(names, a.CharacterID)
		}
		plan := e.Detector.Decompose(pending, entities, actors)
		req.MicroPhases = plan.RequestPhases()
		req.ExchangeGuidance = plan.Guidance
		if len(plan.Conflicts) > 0 {
			e.logger().Info("exchange conflicts flagged",
				"campaign_id", scene.CampaignID, "scene_id", scene.ID, "conflicts", len(plan.Conflicts))
		}
	}
	return req, nil
}

// actingCharacters groups action texts by character in a stable order.
func actingCharacters(pending []domain.PlayerAction) ([]string, map[string][]string) {
	texts := make(map[string][]string)
	for _, a := range pending {
		texts[a.CharacterID] = append(texts[a.CharacterID], a.ActionText)
	}
	ids := make([]string, 0, len(texts))
	for id := range texts {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids, texts
}

func nameOr(names map[string]string, id string) string {
	if n := names[id]; n != "" {
		return n
	}
	return id
}
