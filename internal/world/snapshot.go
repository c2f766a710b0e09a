package world

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/taleforge/sceneengine/internal/domain"
	"github.com/taleforge/sceneengine/internal/harm"
	"github.com/taleforge/sceneengine/internal/store"
)

// Snapshot is the mutable state of one campaign at an instant.
type Snapshot struct {
	Characters []domain.Character
	NPCs       []domain.NPC
	Factions   []domain.Faction
	Clocks     []domain.Clock
	World      domain.WorldMeta
}

// Capture reads every mutable entity of campaignID through q.
func (u *Updater) Capture(ctx context.Context, q store.DBTX, campaignID string) (*Snapshot, error) {
	var s Snapshot
	var err error
	if s.Characters, err = u.Characters.ListByCampaign(ctx, q, campaignID); err != nil {
		return nil, err
	}
	if s.NPCs, err = u.NPCs.ListByCampaign(ctx, q, campaignID); err != nil {
		return nil, err
	}
	if s.Factions, err = u.Factions.ListByCampaign(ctx, q, campaignID); err != nil {
		return nil, err
	}
	if s.Clocks, err = u.Clocks.ListByCampaign(ctx, q, campaignID); err != nil {
		return nil, err
	}
	meta, err := u.World.Get(ctx, q, campaignID)
	if err != nil {
		return nil, err
	}
	s.World = *meta
	return &s, nil
}

// Impact ranks how much a change matters to players.
type Impact string

const (
	ImpactMinor    Impact = "minor"
	ImpactModerate Impact = "moderate"
	ImpactMajor    Impact = "major"
)

func (i Impact) rank() int {
	switch i {
	case ImpactMajor:
		return 2
	case ImpactModerate:
		return 1
	}
	return 0
}

// Change is one human-readable field difference.
type Change struct {
	Entity      string `json:"entity"`
	EntityID    string `json:"entity_id"`
	Name        string `json:"name"`
	Field       string `json:"field"`
	Description string `json:"description"`
	Impact      Impact `json:"impact"`
}

// Report is the diff of two snapshots.
type Report struct {
	Changes []Change `json:"changes"`
	Level   Impact   `json:"level"`
}

// JSON encodes the report and returns it with a sha256 checksum.
func (r Report) JSON() (string, string, error) {
	b, err := json.Marshal(r)
	if err != nil {
		return "", "", fmt.Errorf("encode change report: %w", err)
	}
	sum := sha256.Sum256(b)
	return string(b), hex.EncodeToString(sum[:]), nil
}

// Diff compares two snapshots entity by entity. Entities present only in
// after are reported as new; removals are not tracked.
func Diff(before, after *Snapshot) Report {
	var d differ

	prevChars := make(map[string]domain.Character, len(before.Characters))
	for _, c := range before.Characters {
		prevChars[c.ID] = c
	}
	for _, c := range after.Characters {
		p, ok := prevChars[c.ID]
		if !ok {
			d.add("character", c.ID, c.Name, "created", "joined the campaign", ImpactModerate)
			continue
		}
		d.character(p, c)
	}

	prevNPCs := make(map[string]domain.NPC, len(before.NPCs))
	for _, n := range before.NPCs {
		prevNPCs[n.ID] = n
	}
	for _, n := range after.NPCs {
		p := prevNPCs[n.ID]
		if p.Notes != n.Notes {
			d.add("npc", n.ID, n.Name, "notes", "notes updated", ImpactMinor)
		}
		d.list("npc", n.ID, n.Name, "tags", p.Tags, n.Tags, ImpactMinor)
	}

	prevFactions := make(map[string]domain.Faction, len(before.Factions))
	for _, f := range before.Factions {
		prevFactions[f.ID] = f
	}
	for _, f := range after.Factions {
		p := prevFactions[f.ID]
		if p.ThreatLevel != f.ThreatLevel {
			d.add("faction", f.ID, f.Name, "threat_level",
				fmt.Sprintf("threat %s → %s", orNone(string(p.ThreatLevel)), f.ThreatLevel), threatImpact(f.ThreatLevel))
		}
		if p.Plan != f.Plan {
			d.add("faction", f.ID, f.Name, "plan", "plan changed", ImpactModerate)
		}
		if p.ResourcesJSON != f.ResourcesJSON {
			d.add("faction", f.ID, f.Name, "resources", "resources changed", ImpactMinor)
		}
		if p.GMNotes != f.GMNotes {
			d.add("faction", f.ID, f.Name, "gm_notes", "GM notes updated", ImpactMinor)
		}
	}

	prevClocks := make(map[string]domain.Clock, len(before.Clocks))
	for _, c := range before.Clocks {
		prevClocks[c.ID] = c
	}
	for _, c := range after.Clocks {
		p := prevClocks[c.ID]
		if p.Value == c.Value {
			continue
		}
		impact := ImpactModerate
		if c.Max > 0 && c.Value >= c.Max {
			impact = ImpactMajor
		}
		d.add("clock", c.ID, c.Name, "value", fmt.Sprintf("%d/%d → %d/%d", p.Value, c.Max, c.Value, c.Max), impact)
	}

	if before.World.TurnNumber != after.World.TurnNumber {
		d.add("world", after.World.CampaignID, "world", "turn_number",
			fmt.Sprintf("%s turn", humanize.Ordinal(after.World.TurnNumber)), ImpactMinor)
	}
	if before.World.InGameDate != after.World.InGameDate {
		d.add("world", after.World.CampaignID, "world", "in_game_date",
			fmt.Sprintf("%s → %s", orNone(before.World.InGameDate), after.World.InGameDate), ImpactMinor)
	}
	return d.report()
}

type differ struct {
	changes []Change
}

func (d *differ) add(entity, id, name, field, desc string, impact Impact) {
	d.changes = append(d.changes, Change{Entity: entity, EntityID: id, Name: name, Field: field, Description: desc, Impact: impact})
}

func (d *differ) list(entity, id, name, field string, before, after []string, impact Impact) {
	added, removed := setDiff(before, after)
	if len(added) > 0 {
		d.add(entity, id, name, field, "gained "+strings.Join(added, ", "), impact)
	}
	if len(removed) > 0 {
		d.add(entity, id, name, field, "lost "+strings.Join(removed, ", "), impact)
	}
}

func (d *differ) character(p, c domain.Character) {
	const kind = "character"
	if p.Harm != c.Harm {
		impact := ImpactModerate
		if harm.StatusOf(c.Harm) != harm.StatusOf(p.Harm) {
			impact = ImpactMajor
		}
		d.add(kind, c.ID, c.Name, "harm", fmt.Sprintf("harm %d → %d (%s)", p.Harm, c.Harm, harm.StatusOf(c.Harm)), impact)
	}
	d.list(kind, c.ID, c.Name, "conditions", conditionNames(p.Conditions), conditionNames(c.Conditions), ImpactModerate)
	if p.Location != c.Location {
		d.add(kind, c.ID, c.Name, "location", fmt.Sprintf("moved to %s", c.Location), ImpactMinor)
	}
	for _, stat := range sortedStatKeys(p.Stats, c.Stats) {
		if p.Stats[stat] != c.Stats[stat] {
			d.add(kind, c.ID, c.Name, "stats", fmt.Sprintf("%s %+d → %+d", stat, p.Stats[stat], c.Stats[stat]), ImpactMajor)
		}
	}
	d.list(kind, c.ID, c.Name, "perks", p.Perks, c.Perks, ImpactModerate)
	d.list(kind, c.ID, c.Name, "moves", p.Moves, c.Moves, ImpactModerate)

	for _, id := range sortedRelKeys(p.Relationships, c.Relationships) {
		pr, cr := p.Relationships[id], c.Relationships[id]
		if pr == cr {
			continue
		}
		impact := ImpactMinor
		if absDiff(pr.Trust, cr.Trust) >= 25 || absDiff(pr.Fear, cr.Fear) >= 25 ||
			absDiff(pr.Tension, cr.Tension) >= 25 || absDiff(pr.Respect, cr.Respect) >= 25 {
			impact = ImpactModerate
		}
		d.add(kind, c.ID, c.Name, "relationships",
			fmt.Sprintf("toward %s: trust %d, tension %d, respect %d, fear %d", id, cr.Trust, cr.Tension, cr.Respect, cr.Fear), impact)
	}

	d.list(kind, c.ID, c.Name, "promises", p.Consequences.Promises, c.Consequences.Promises, ImpactModerate)
	d.list(kind, c.ID, c.Name, "debts", p.Consequences.Debts, c.Consequences.Debts, ImpactModerate)
	d.list(kind, c.ID, c.Name, "enemies", p.Consequences.Enemies, c.Consequences.Enemies, ImpactMajor)
	d.list(kind, c.ID, c.Name, "long_term_threats", p.Consequences.LongTermThreats, c.Consequences.LongTermThreats, ImpactMajor)

	if p.Appearance != c.Appearance {
		d.add(kind, c.ID, c.Name, "appearance", "appearance changed", ImpactMinor)
	}
	if p.Personality != c.Personality {
		d.add(kind, c.ID, c.Name, "personality", "personality changed", ImpactMinor)
	}
	d.list(kind, c.ID, c.Name, "equipment", equipmentLines(p.Equipment), equipmentLines(c.Equipment), ImpactMinor)
	d.list(kind, c.ID, c.Name, "inventory", itemLines(p.Inventory.Items), itemLines(c.Inventory.Items), ImpactMinor)
	if p.Inventory.Slots != c.Inventory.Slots {
		d.add(kind, c.ID, c.Name, "inventory_slots", fmt.Sprintf("%d → %d slots", p.Inventory.Slots, c.Inventory.Slots), ImpactMinor)
	}
	if p.Resources.Gold != c.Resources.Gold {
		d.add(kind, c.ID, c.Name, "gold",
			fmt.Sprintf("gold %s → %s", humanize.Comma(int64(p.Resources.Gold)), humanize.Comma(int64(c.Resources.Gold))), ImpactMinor)
	}
	d.list(kind, c.ID, c.Name, "contacts", p.Resources.Contacts, c.Resources.Contacts, ImpactMinor)
}

func (d *differ) report() Report {
	r := Report{Changes: d.changes, Level: ImpactMinor}
	for _, c := range d.changes {
		if c.Impact.rank() > r.Level.rank() {
			r.Level = c.Impact
		}
	}
	if r.Changes == nil {
		r.Changes = []Change{}
	}
	return r
}

func setDiff(before, after []string) (added, removed []string) {
	prev := make(map[string]bool, len(before))
	for _, s := range before {
		prev[s] = true
	}
	next := make(map[string]bool, len(after))
	for _, s := range after {
		next[s] = true
		if !prev[s] {
			added = append(added, s)
		}
	}
	for _, s := range before {
		if !next[s] {
			removed = append(removed, s)
		}
	}
	return added, removed
}

func conditionNames(cs []domain.Condition) []string {
	out := make([]string, len(cs))
	for i, c := range cs {
		out[i] = c.Name
	}
	return out
}

func equipmentLines(m map[string]string) []string {
	out := make([]string, 0, len(m))
	for slot, item := range m {
		out = append(out, slot+": "+item)
	}
	sort.Strings(out)
	return out
}

func itemLines(items []domain.Item) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = fmt.Sprintf("%s x%d", it.Name, it.Quantity)
	}
	return out
}

func sortedStatKeys(a, b map[string]int) []string {
	seen := make(map[string]bool)
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func sortedRelKeys(a, b map[string]domain.Relationship) []string {
	seen := make(map[string]bool)
	for k := range a {
		seen[k] = true
	}
	for k := range b {
		seen[k] = true
	}
	out := make([]string, 0, len(seen))
	for k := range seen {
		out = append(out, k)
	}
	sort.Strings(out)
	return out
}

func threatImpact(t domain.ThreatLevel) Impact {
	switch t {
	case domain.ThreatHigh, domain.ThreatCritical:
		return ImpactMajor
	}
	return ImpactModerate
}

func absDiff(a, b int) int {
	if a > b {
		return a - b
	}
	return b - a
}

func orNone(s string) string {
	if s == "" {
		return "none"
	}
	return s
}
