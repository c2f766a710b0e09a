// Package world folds validated narrator updates into persistent campaign
// state and reports what changed.
package world

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/taleforge/sceneengine/internal/advance"
	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/harm"
	"github.com/taleforge/sceneengine/internal/store"
)

const (
	// RelationshipLimit bounds every relationship axis in both directions.
	RelationshipLimit = domain.RelationshipLimit
	// DefaultGMNotes is how many GM notes world meta keeps.
	DefaultGMNotes = 20
)

// Updater applies world updates inside a caller-owned transaction.
type Updater struct {
	Characters *store.CharacterRepo
	Factions   *store.FactionRepo
	NPCs       *store.NPCRepo
	Clocks     *store.ClockRepo
	Timeline   *store.TimelineRepo
	World      *store.WorldRepo
	Logger     *slog.Logger
	MaxGMNotes int
	Now        func() time.Time
}

// NewUpdater creates an Updater with default repos.
func NewUpdater(logger *slog.Logger) *Updater {
	return &Updater{
		Characters: &store.CharacterRepo{},
		Factions:   &store.FactionRepo{},
		NPCs:       &store.NPCRepo{},
		Clocks:     &store.ClockRepo{},
		Timeline:   &store.TimelineRepo{},
		World:      &store.WorldRepo{},
		Logger:     logger,
		MaxGMNotes: DefaultGMNotes,
		Now:        time.Now,
	}
}

// ClockTick records one clock movement.
type ClockTick struct {
	ClockID string `json:"clock_id"`
	Name    string `json:"name"`
	From    int    `json:"from"`
	To      int    `json:"to"`
	Max     int    `json:"max"`
	Reason  string `json:"reason,omitempty"`
}

// Filled reports whether the tick completed the clock.
func (t ClockTick) Filled() bool { return t.To >= t.Max && t.From < t.Max }

// Grant records advancement a narrator grant produced for one character.
type Grant struct {
	CharacterID string   `json:"character_id"`
	Perks       []string `json:"perks,omitempty"`
	Moves       []string `json:"moves,omitempty"`
	Stats       bool     `json:"stats,omitempty"`
}

// Result summarises an ApplyTx call.
type Result struct {
	TimelineEvents []domain.TimelineEvent
	ClockTicks     []ClockTick
	Grants         []Grant
	// Skipped lists references that matched no entity.
	Skipped []string
}

// ApplyTx commits upd for campaignID within tx. Unmatched references are
// logged and skipped; only store failures abort.
func (u *Updater) ApplyTx(ctx context.Context, tx *sql.Tx, campaignID, sceneID string, upd domain.WorldUpdates) (*Result, error) {
	res := &Result{}
	now := u.Now().Unix()
	log := u.logger().With("campaign_id", campaignID, "scene_id", sceneID)

	meta, err := u.World.Get(ctx, tx, campaignID)
	if err != nil {
		return nil, err
	}

	for _, ev := range upd.NewTimelineEvents {
		vis := ev.Visibility
		if vis == "" {
			vis = domain.VisibilityPublic
		}
		te := domain.TimelineEvent{
			ID:            domain.NewID("tle"),
			CampaignID:    campaignID,
			SceneID:       sceneID,
			TurnNumber:    meta.TurnNumber,
			InGameDate:    meta.InGameDate,
			Title:         ev.Title,
			Description:   ev.Description,
			Visibility:    vis,
			CreatedAtUnix: now,
		}
		if err := u.Timeline.CreateTx(ctx, tx, te); err != nil {
			return nil, err
		}
		res.TimelineEvents = append(res.TimelineEvents, te)
	}

	if len(upd.ClockChanges) > 0 {
		if err := u.applyClocks(ctx, tx, campaignID, upd.ClockChanges, now, res); err != nil {
			return nil, err
		}
	}
	if len(upd.NPCChanges) > 0 {
		if err := u.applyNPCs(ctx, tx, campaignID, upd.NPCChanges, now, res); err != nil {
			return nil, err
		}
	}
	if len(upd.PCChanges) > 0 || len(upd.OrganicAdvancement) > 0 {
		if err := u.applyCharacters(ctx, tx, campaignID, upd, now, res); err != nil {
			return nil, err
		}
	}
	if len(upd.FactionChanges) > 0 {
		if err := u.applyFactions(ctx, tx, campaignID, upd.FactionChanges, now, res); err != nil {
			return nil, err
		}
	}

	if note := strings.TrimSpace(upd.NotesForGM); note != "" {
		meta.GMNotes = appendBounded(meta.GMNotes, note, u.maxNotes())
		meta.UpdatedAtUnix = now
		if err := u.World.UpdateTx(ctx, tx, *meta); err != nil {
			return nil, err
		}
	}

	for _, ref := range res.Skipped {
		log.Warn("world update skipped", "reference", ref)
	}
	return res, nil
}

func (u *Updater) applyClocks(ctx context.Context, tx *sql.Tx, campaignID string, changes []domain.ClockChange, now int64, res *Result) error {
	clocks, err := u.Clocks.ListByCampaign(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	dirty := make(map[int]bool)
	for _, ch := range changes {
		i := find(clocks, ch.ClockID, ch.ClockName, func(c domain.Clock) (string, string) { return c.ID, c.Name })
		if i < 0 {
			res.Skipped = append(res.Skipped, "clock:"+firstNonEmpty(ch.ClockID, ch.ClockName))
			continue
		}
		c := &clocks[i]
		from := c.Value
		c.Value = clamp(c.Value+ch.Delta, 0, c.Max)
		if c.Value == from {
			continue
		}
		c.UpdatedAtUnix = now
		dirty[i] = true
		res.ClockTicks = append(res.ClockTicks, ClockTick{
			ClockID: c.ID, Name: c.Name, From: from, To: c.Value, Max: c.Max, Reason: ch.Reason,
		})
	}
	for i := range clocks {
		if dirty[i] {
			if err := u.Clocks.UpdateTx(ctx, tx, clocks[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (u *Updater) applyNPCs(ctx context.Context, tx *sql.Tx, campaignID string, changes []domain.NPCChange, now int64, res *Result) error {
	npcs, err := u.NPCs.ListByCampaign(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	dirty := make(map[int]bool)
	for _, ch := range changes {
		i := find(npcs, ch.NPCID, ch.NPCName, func(n domain.NPC) (string, string) { return n.ID, n.Name })
		if i < 0 {
			res.Skipped = append(res.Skipped, "npc:"+firstNonEmpty(ch.NPCID, ch.NPCName))
			continue
		}
		n := &npcs[i]
		if note := strings.TrimSpace(ch.NotesAppend); note != "" {
			n.Notes = appendText(n.Notes, note, "\n")
		}
		n.Tags = appendFolded(removeFolded(n.Tags, ch.RemoveTags...), ch.AddTags...)
		n.UpdatedAtUnix = now
		dirty[i] = true
	}
	for i := range npcs {
		if dirty[i] {
			if err := u.NPCs.UpdateTx(ctx, tx, npcs[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func (u *Updater) applyCharacters(ctx context.Context, tx *sql.Tx, campaignID string, upd domain.WorldUpdates, now int64, res *Result) error {
	chars, err := u.Characters.ListByCampaign(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	key := func(c domain.Character) (string, string) { return c.ID, c.Name }
	dirty := make(map[int]bool)

	for _, ch := range upd.PCChanges {
		i := find(chars, ch.CharacterID, ch.CharacterName, key)
		if i < 0 {
			res.Skipped = append(res.Skipped, "character:"+firstNonEmpty(ch.CharacterID, ch.CharacterName))
			continue
		}
		res.Skipped = append(res.Skipped, applyPC(&chars[i], ch)...)
		dirty[i] = true
	}

	for _, g := range upd.OrganicAdvancement {
		i := find(chars, g.CharacterID, g.CharacterName, key)
		if i < 0 {
			res.Skipped = append(res.Skipped, "advancement:"+firstNonEmpty(g.CharacterID, g.CharacterName))
			continue
		}
		perks, moves := advance.ApplyGrant(&chars[i], g)
		res.Grants = append(res.Grants, Grant{
			CharacterID: chars[i].ID, Perks: perks, Moves: moves, Stats: len(g.StatChanges) > 0,
		})
		dirty[i] = true
	}

	for i := range chars {
		if !dirty[i] {
			continue
		}
		chars[i].UpdatedAtUnix = now
		if err := u.Characters.UpdateTx(ctx, tx, chars[i]); err != nil {
			return err
		}
	}
	return nil
}

// applyPC mutates c in place and returns references it had to skip.
func applyPC(c *domain.Character, ch domain.PCChange) []string {
	var skipped []string

	if ch.HarmDamage > 0 {
		c.Harm = harm.ApplyDamage(c.Harm, ch.HarmDamage)
	}
	if ch.HarmHealed > 0 {
		c.Harm = harm.Heal(c.Harm, ch.HarmHealed)
	}
	for _, cond := range ch.AddConditions {
		if !harm.ValidCategory(cond.Category) {
			skipped = append(skipped, "condition:"+cond.Name)
			continue
		}
		c.Conditions = harm.AddCondition(c.Conditions, cond)
	}
	for _, name := range ch.RemoveConditions {
		c.Conditions = harm.RemoveCondition(c.Conditions, name)
	}
	if loc := strings.TrimSpace(ch.NewLocation); loc != "" {
		c.Location = loc
	}

	for _, rc := range ch.RelationshipChanges {
		if c.Relationships == nil {
			c.Relationships = make(map[string]domain.Relationship)
		}
		r := c.Relationships[rc.EntityID]
		r.Trust = clamp(r.Trust+rc.Trust, -RelationshipLimit, RelationshipLimit)
		r.Tension = clamp(r.Tension+rc.Tension, -RelationshipLimit, RelationshipLimit)
		r.Respect = clamp(r.Respect+rc.Respect, -RelationshipLimit, RelationshipLimit)
		r.Fear = clamp(r.Fear+rc.Fear, -RelationshipLimit, RelationshipLimit)
		c.Relationships[rc.EntityID] = r
	}

	for _, cc := range ch.ConsequenceChanges {
		list := consequenceList(&c.Consequences, cc.Type)
		if list == nil {
			skipped = append(skipped, "consequence:"+cc.Type)
			continue
		}
		switch cc.Action {
		case domain.OpAdd:
			*list = appendFolded(*list, cc.Text)
		case domain.OpRemove:
			*list = removeFolded(*list, cc.Text)
		}
	}

	if ch.AppearanceChange != nil {
		c.Appearance = applyText(c.Appearance, *ch.AppearanceChange)
	}
	if ch.PersonalityChange != nil {
		c.Personality = applyText(c.Personality, *ch.PersonalityChange)
	}

	for _, ec := range ch.EquipmentChanges {
		if c.Equipment == nil {
			c.Equipment = make(map[string]string)
		}
		switch ec.Action {
		case domain.OpAdd, domain.OpReplace:
			c.Equipment[ec.Slot] = ec.Item
		case domain.OpRemove:
			delete(c.Equipment, ec.Slot)
		}
	}

	for _, ic := range ch.InventoryChanges {
		if !applyInventory(&c.Inventory, ic) {
			skipped = append(skipped, "inventory:"+ic.Item)
		}
	}

	if rc := ch.ResourceChanges; rc != nil {
		c.Resources.Gold = max(0, c.Resources.Gold+rc.GoldDelta)
		c.Resources.Contacts = appendFolded(removeFolded(c.Resources.Contacts, rc.RemoveContacts...), rc.AddContacts...)
		for k, d := range rc.ReputationDeltas {
			if c.Resources.Reputation == nil {
				c.Resources.Reputation = make(map[string]int)
			}
			c.Resources.Reputation[k] += d
		}
	}

	for _, roll := range ch.StatRolls {
		advance.RecordRoll(c, roll.Stat, roll.Success)
	}
	return skipped
}

// applyInventory edits inv and reports whether the change found a home.
// Slots of zero means the bag is unbounded.
func applyInventory(inv *domain.Inventory, ic domain.InventoryChange) bool {
	inv.Slots = max(0, inv.Slots+ic.SlotDelta)
	idx := -1
	for i, it := range inv.Items {
		if sameText(it.Name, ic.Item) {
			idx = i
			break
		}
	}
	qty := ic.Quantity
	switch ic.Action {
	case domain.OpAdd:
		if qty <= 0 {
			qty = 1
		}
		if idx >= 0 {
			inv.Items[idx].Quantity += qty
			return true
		}
		if inv.Slots > 0 && len(inv.Items) >= inv.Slots {
			return false
		}
		inv.Items = append(inv.Items, domain.Item{Name: ic.Item, Quantity: qty, Description: ic.Description})
	case domain.OpRemove:
		if idx < 0 {
			return false
		}
		if qty > 0 && inv.Items[idx].Quantity > qty {
			inv.Items[idx].Quantity -= qty
			return true
		}
		inv.Items = append(inv.Items[:idx], inv.Items[idx+1:]...)
	case domain.OpModify:
		if idx < 0 {
			return false
		}
		if qty > 0 {
			inv.Items[idx].Quantity = qty
		}
		if ic.Description != "" {
			inv.Items[idx].Description = ic.Description
		}
	}
	return true
}

func (u *Updater) applyFactions(ctx context.Context, tx *sql.Tx, campaignID string, changes []domain.FactionChange, now int64, res *Result) error {
	factions, err := u.Factions.ListByCampaign(ctx, tx, campaignID)
	if err != nil {
		return err
	}
	dirty := make(map[int]bool)
	for _, ch := range changes {
		i := find(factions, ch.FactionID, ch.FactionName, func(f domain.Faction) (string, string) { return f.ID, f.Name })
		if i < 0 {
			res.Skipped = append(res.Skipped, "faction:"+firstNonEmpty(ch.FactionID, ch.FactionName))
			continue
		}
		f := &factions[i]
		if plan := strings.TrimSpace(ch.NewPlan); plan != "" {
			f.Plan = plan
		}
		if ch.ThreatLevel != "" {
			if validThreat(ch.ThreatLevel) {
				f.ThreatLevel = ch.ThreatLevel
			} else {
				res.Skipped = append(res.Skipped, "threat_level:"+string(ch.ThreatLevel))
			}
		}
		if len(ch.Resources) > 0 {
			merged, err := mergeResources(f.ResourcesJSON, ch.Resources)
			if err != nil {
				res.Skipped = append(res.Skipped, "faction_resources:"+f.Name)
			} else {
				f.ResourcesJSON = merged
			}
		}
		if note := strings.TrimSpace(ch.GMNotesAppend); note != "" {
			f.GMNotes = appendText(f.GMNotes, note, "\n")
		}
		f.UpdatedAtUnix = now
		dirty[i] = true
	}
	for i := range factions {
		if dirty[i] {
			if err := u.Factions.UpdateTx(ctx, tx, factions[i]); err != nil {
				return err
			}
		}
	}
	return nil
}

func mergeResources(current string, changes map[string]any) (string, error) {
	base := make(map[string]any)
	if strings.TrimSpace(current) != "" {
		if err := json.Unmarshal([]byte(current), &base); err != nil {
			return "", fmt.Errorf("decode faction resources: %w", err)
		}
	}
	for k, v := range changes {
		base[k] = v
	}
	b, err := json.Marshal(base)
	if err != nil {
		return "", fmt.Errorf("encode faction resources: %w", err)
	}
	return string(b), nil
}

func validThreat(t domain.ThreatLevel) bool {
	switch t {
	case domain.ThreatNone, domain.ThreatLow, domain.ThreatModerate, domain.ThreatHigh, domain.ThreatCritical:
		return true
	}
	return false
}

func consequenceList(c *domain.Consequences, kind string) *[]string {
	switch kind {
	case domain.ConsequencePromise:
		return &c.Promises
	case domain.ConsequenceDebt:
		return &c.Debts
	case domain.ConsequenceEnemy:
		return &c.Enemies
	case domain.ConsequenceLongTermThreat:
		return &c.LongTermThreats
	}
	return nil
}

func applyText(current string, tc domain.TextChange) string {
	if tc.Mode == domain.OpReplace {
		return strings.TrimSpace(tc.Text)
	}
	return appendText(current, tc.Text, " ")
}

func appendText(current, text, sep string) string {
	text = strings.TrimSpace(text)
	if text == "" {
		return current
	}
	if current == "" {
		return text
	}
	return current + sep + text
}

func appendBounded(list []string, v string, limit int) []string {
	list = append(list, v)
	if len(list) > limit {
		list = append([]string(nil), list[len(list)-limit:]...)
	}
	return list
}

func (u *Updater) maxNotes() int {
	if u.MaxGMNotes > 0 {
		return u.MaxGMNotes
	}
	return DefaultGMNotes
}

func (u *Updater) logger() *slog.Logger {
	if u.Logger != nil {
		return u.Logger
	}
	return slog.Default()
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}
