package domain

// NarratorRequest is the structured payload sent to the narrator.
type NarratorRequest struct {
	CampaignUniverse  string          `json:"campaign_universe"`
	AISystemPrompt    string          `json:"ai_system_prompt"`
	WorldSummary      WorldSummary    `json:"world_summary"`
	CurrentSceneIntro string          `json:"current_scene_intro"`
	PlayerActions     []RequestAction `json:"player_actions"`
	MicroPhases       []RequestPhase  `json:"micro_phases,omitempty"`
	ExchangeGuidance  string          `json:"exchange_guidance,omitempty"`
}

// RequestAction is one player action as the narrator sees it.
type RequestAction struct {
	CharacterName string `json:"character_name"`
	CharacterID   string `json:"character_id"`
	ActionText    string `json:"action_text"`
}

// RequestPhase is one priority-ordered micro-phase of a complex exchange.
type RequestPhase struct {
	Priority     ActionPriority `json:"priority"`
	CharacterIDs []string       `json:"character_ids"`
}

// WorldSummary is the condensed world state handed to the narrator.
type WorldSummary struct {
	TurnNumber           int                `json:"turn_number"`
	InGameDate           string             `json:"in_game_date"`
	Characters           []CharacterSummary `json:"characters"`
	NPCs                 []NPCSummary       `json:"npcs"`
	Factions             []FactionSummary   `json:"factions"`
	Clocks               []ClockSummary     `json:"clocks"`
	RecentTimelineEvents []TimelineSummary  `json:"recent_timeline_events"`
}

// CharacterSummary is the narrator-facing view of a character.
type CharacterSummary struct {
	ID         string         `json:"id"`
	Name       string         `json:"name"`
	Harm       int            `json:"harm"`
	Conditions []string       `json:"conditions"`
	Stats      map[string]int `json:"stats"`
	Location   string         `json:"location,omitempty"`
}

// NPCSummary is the narrator-facing view of an NPC.
type NPCSummary struct {
	ID    string   `json:"id"`
	Name  string   `json:"name"`
	Notes string   `json:"notes,omitempty"`
	Tags  []string `json:"tags,omitempty"`
}

// FactionSummary is the narrator-facing view of a faction.
type FactionSummary struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	Plan        string      `json:"plan,omitempty"`
	ThreatLevel ThreatLevel `json:"threat_level"`
}

// ClockSummary is the narrator-facing view of a clock.
type ClockSummary struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Value int    `json:"value"`
	Max   int    `json:"max"`
}

// TimelineSummary is the narrator-facing view of a timeline event.
type TimelineSummary struct {
	Title      string `json:"title"`
	InGameDate string `json:"in_game_date,omitempty"`
}

// NarratorResponse is a narrator payload that passed full schema validation.
type NarratorResponse struct {
	SceneText    string       `json:"scene_text" jsonschema:"minLength=50"`
	TimePassage  *TimePassage `json:"time_passage,omitempty"`
	WorldUpdates WorldUpdates `json:"world_updates"`
}

// TimePassage tells the engine how far the in-game clock moves.
type TimePassage struct {
	Days        int    `json:"days,omitempty" jsonschema:"minimum=0"`
	Hours       int    `json:"hours,omitempty" jsonschema:"minimum=0"`
	NewDate     string `json:"new_date,omitempty"`
	Description string `json:"description,omitempty"`
}

// WorldUpdates are the typed world-change instructions from the narrator.
type WorldUpdates struct {
	NewTimelineEvents  []TimelineEventChange `json:"new_timeline_events,omitempty"`
	ClockChanges       []ClockChange         `json:"clock_changes,omitempty"`
	NPCChanges         []NPCChange           `json:"npc_changes,omitempty"`
	PCChanges          []PCChange            `json:"pc_changes,omitempty"`
	FactionChanges     []FactionChange       `json:"faction_changes,omitempty"`
	OrganicAdvancement []AdvancementGrant    `json:"organic_advancement,omitempty"`
	NotesForGM         string                `json:"notes_for_gm,omitempty"`
}

// IsEmpty reports whether the updates carry no instructions at all.
func (u WorldUpdates) IsEmpty() bool {
	return len(u.NewTimelineEvents) == 0 && len(u.ClockChanges) == 0 &&
		len(u.NPCChanges) == 0 && len(u.PCChanges) == 0 &&
		len(u.FactionChanges) == 0 && len(u.OrganicAdvancement) == 0 &&
		u.NotesForGM == ""
}

// TimelineEventChange creates a timeline event.
type TimelineEventChange struct {
	Title       string     `json:"title" jsonschema:"minLength=1"`
	Description string     `json:"description,omitempty"`
	Visibility  Visibility `json:"visibility,omitempty" jsonschema:"enum=public,enum=gm_only"`
}

// ClockChange moves a clock by Delta.
type ClockChange struct {
	ClockID   string `json:"clock_id,omitempty"`
	ClockName string `json:"clock_name,omitempty"`
	Delta     int    `json:"delta"`
	Reason    string `json:"reason,omitempty"`
}

// NPCChange appends notes and adjusts tags on an NPC.
type NPCChange struct {
	NPCID       string   `json:"npc_id,omitempty"`
	NPCName     string   `json:"npc_name,omitempty"`
	NotesAppend string   `json:"notes_append,omitempty"`
	AddTags     []string `json:"add_tags,omitempty"`
	RemoveTags  []string `json:"remove_tags,omitempty"`
}

// RelationshipLimit bounds every relationship axis and every delta in both
// directions.
const RelationshipLimit = 100

// RelationshipChange shifts the axes toward another entity. Deltas outside
// RelationshipLimit are clamped, not rejected.
type RelationshipChange struct {
	EntityID string `json:"entity_id" jsonschema:"minLength=1"`
	Trust    int    `json:"trust,omitempty"`
	Tension  int    `json:"tension,omitempty"`
	Respect  int    `json:"respect,omitempty"`
	Fear     int    `json:"fear,omitempty"`
}

// Clamp bounds every delta to RelationshipLimit.
func (c *RelationshipChange) Clamp() {
	c.Trust = clampAxis(c.Trust)
	c.Tension = clampAxis(c.Tension)
	c.Respect = clampAxis(c.Respect)
	c.Fear = clampAxis(c.Fear)
}

func clampAxis(v int) int {
	return min(max(v, -RelationshipLimit), RelationshipLimit)
}

// Consequence kinds and list operations.
const (
	ConsequencePromise        = "promise"
	ConsequenceDebt           = "debt"
	ConsequenceEnemy          = "enemy"
	ConsequenceLongTermThreat = "long_term_threat"

	OpAdd     = "add"
	OpRemove  = "remove"
	OpReplace = "replace"
	OpModify  = "modify"
	OpAppend  = "append"
)

// ConsequenceChange adds or removes one consequence entry.
type ConsequenceChange struct {
	Type   string `json:"type" jsonschema:"enum=promise,enum=debt,enum=enemy,enum=long_term_threat"`
	Action string `json:"action" jsonschema:"enum=add,enum=remove"`
	Text   string `json:"text" jsonschema:"minLength=1"`
}

// TextChange appends to or replaces a free-text field.
type TextChange struct {
	Mode string `json:"mode" jsonschema:"enum=append,enum=replace"`
	Text string `json:"text"`
}

// EquipmentChange edits one equipment slot.
type EquipmentChange struct {
	Slot   string `json:"slot" jsonschema:"minLength=1"`
	Action string `json:"action" jsonschema:"enum=add,enum=remove,enum=replace"`
	Item   string `json:"item,omitempty"`
}

// InventoryChange edits one inventory item.
type InventoryChange struct {
	Action      string `json:"action" jsonschema:"enum=add,enum=remove,enum=modify"`
	Item        string `json:"item" jsonschema:"minLength=1"`
	Quantity    int    `json:"quantity,omitempty"`
	Description string `json:"description,omitempty"`
	SlotDelta   int    `json:"slot_delta,omitempty"`
}

// ResourceChange adjusts gold, contacts and reputation.
type ResourceChange struct {
	GoldDelta        int            `json:"gold_delta,omitempty"`
	AddContacts      []string       `json:"add_contacts,omitempty"`
	RemoveContacts   []string       `json:"remove_contacts,omitempty"`
	ReputationDeltas map[string]int `json:"reputation_deltas,omitempty"`
}

// StatRoll reports a roll made with a stat during the exchange.
type StatRoll struct {
	Stat    string `json:"stat" jsonschema:"minLength=1"`
	Success bool   `json:"success"`
}

// PCChange is the set of edits to one player character.
type PCChange struct {
	CharacterID         string               `json:"character_id,omitempty"`
	CharacterName       string               `json:"character_name,omitempty"`
	HarmDamage          int                  `json:"harm_damage,omitempty" jsonschema:"minimum=0,maximum=6"`
	HarmHealed          int                  `json:"harm_healed,omitempty" jsonschema:"minimum=0,maximum=6"`
	AddConditions       []Condition          `json:"add_conditions,omitempty"`
	RemoveConditions    []string             `json:"remove_conditions,omitempty"`
	NewLocation         string               `json:"new_location,omitempty"`
	RelationshipChanges []RelationshipChange `json:"relationship_changes,omitempty"`
	ConsequenceChanges  []ConsequenceChange  `json:"consequence_changes,omitempty"`
	AppearanceChange    *TextChange          `json:"appearance_change,omitempty"`
	PersonalityChange   *TextChange          `json:"personality_change,omitempty"`
	EquipmentChanges    []EquipmentChange    `json:"equipment_changes,omitempty"`
	InventoryChanges    []InventoryChange    `json:"inventory_changes,omitempty"`
	ResourceChanges     *ResourceChange      `json:"resource_changes,omitempty"`
	StatRolls           []StatRoll           `json:"stat_rolls,omitempty"`
}

// FactionChange edits one faction.
type FactionChange struct {
	FactionID     string         `json:"faction_id,omitempty"`
	FactionName   string         `json:"faction_name,omitempty"`
	NewPlan       string         `json:"new_plan,omitempty"`
	ThreatLevel   ThreatLevel    `json:"threat_level,omitempty" jsonschema:"enum=none,enum=low,enum=moderate,enum=high,enum=critical"`
	Resources     map[string]any `json:"resources,omitempty"`
	GMNotesAppend string         `json:"gm_notes_append,omitempty"`
}

// AdvancementGrant is a narrator-suggested growth step for a character.
type AdvancementGrant struct {
	CharacterID   string         `json:"character_id,omitempty"`
	CharacterName string         `json:"character_name,omitempty"`
	StatChanges   map[string]int `json:"stat_changes,omitempty"`
	Perks         []string       `json:"perks,omitempty"`
	Moves         []string       `json:"moves,omitempty"`
	Reason        string         `json:"reason,omitempty"`
}
