// Package domain defines the core types for the scene resolution engine.
package domain

// SceneStatus represents where a scene sits in its resolution lifecycle.
type SceneStatus string

const (
	SceneAwaitingActions SceneStatus = "AWAITING_ACTIONS"
	SceneResolving       SceneStatus = "RESOLVING"
	SceneResolved        SceneStatus = "RESOLVED"
)

// ResolutionDelimiter separates successive exchange resolutions inside a
// scene's resolution text.
const ResolutionDelimiter = "\n\n---\n\n"

// Participants lists who is expected to act in a scene. A nil Participants
// means the scene is open and any single action makes it ready.
type Participants struct {
	CharacterIDs []string `json:"character_ids"`
	UserIDs      []string `json:"user_ids"`
}

// Complexity classifies an exchange for downstream phase decomposition.
type Complexity string

const (
	ComplexitySimple  Complexity = "simple"
	ComplexityComplex Complexity = "complex"
)

// ExchangeState tracks one resolvable beat of a scene.
type ExchangeState struct {
	PlayersActed        []string   `json:"players_acted"`
	ExchangeNumber      int        `json:"exchange_number"`
	IsComplete          bool       `json:"is_complete"`
	Complexity          Complexity `json:"complexity"`
	ActionsThisExchange int        `json:"actions_this_exchange"`
	Timestamp           int64      `json:"timestamp"`
}

// HasActed reports whether the character already acted in this exchange.
func (s *ExchangeState) HasActed(characterID string) bool {
	if s == nil {
		return false
	}
	for _, id := range s.PlayersActed {
		if id == characterID {
			return true
		}
	}
	return false
}

// Scene is one narrative scene of a campaign.
type Scene struct {
	ID                    string
	CampaignID            string
	SceneNumber           int
	Status                SceneStatus
	IntroText             string
	ResolutionText        string
	Participants          *Participants
	WaitingOnUsers        []string
	CurrentExchangeNumber int
	ExchangeState         *ExchangeState
	Revision              int64
	CreatedAtUnix         int64
	UpdatedAtUnix         int64
}

// ActionPriority orders actions inside a complex exchange.
type ActionPriority string

const (
	PriorityCombat   ActionPriority = "COMBAT"
	PriorityMovement ActionPriority = "MOVEMENT"
	PrioritySocial   ActionPriority = "SOCIAL"
	PriorityOther    ActionPriority = "OTHER"
)

// PriorityOrder lists priorities from first to last resolved.
var PriorityOrder = []ActionPriority{PriorityCombat, PriorityMovement, PrioritySocial, PriorityOther}

// ActionStatus is the lifecycle of a submitted player action.
type ActionStatus string

const (
	ActionPending  ActionStatus = "pending"
	ActionResolved ActionStatus = "resolved"
	ActionFailed   ActionStatus = "failed"
)

// PlayerAction is a free-text action submitted into one exchange of a scene.
type PlayerAction struct {
	ID             string
	SceneID        string
	CampaignID     string
	CharacterID    string
	UserID         string
	ActionText     string
	ExchangeNumber int
	Priority       ActionPriority
	Status         ActionStatus
	CreatedAtUnix  int64
}

// ConditionCategory groups conditions by what they affect.
type ConditionCategory string

const (
	ConditionPhysical     ConditionCategory = "physical"
	ConditionMental       ConditionCategory = "mental"
	ConditionSocial       ConditionCategory = "social"
	ConditionSupernatural ConditionCategory = "supernatural"
)

// Condition is a named lingering state on a character.
type Condition struct {
	Name     string            `json:"name" jsonschema:"minLength=1"`
	Category ConditionCategory `json:"category" jsonschema:"enum=physical,enum=mental,enum=social,enum=supernatural"`
}

// StatUsage counts rolls made with a stat.
type StatUsage struct {
	Uses      int `json:"uses"`
	Successes int `json:"successes"`
	Failures  int `json:"failures"`
}

// Relationship holds the four bounded axes toward another entity.
type Relationship struct {
	Trust   int `json:"trust"`
	Tension int `json:"tension"`
	Respect int `json:"respect"`
	Fear    int `json:"fear"`
}

// Consequences tracks narrative debts owed by or to a character.
type Consequences struct {
	Promises        []string `json:"promises"`
	Debts           []string `json:"debts"`
	Enemies         []string `json:"enemies"`
	LongTermThreats []string `json:"long_term_threats"`
}

// Item is one inventory entry.
type Item struct {
	Name        string `json:"name"`
	Quantity    int    `json:"quantity"`
	Description string `json:"description,omitempty"`
}

// Inventory is a slot-bounded bag of items.
type Inventory struct {
	Items []Item `json:"items"`
	Slots int    `json:"slots"`
}

// Resources are a character's non-item holdings.
type Resources struct {
	Gold       int            `json:"gold"`
	Contacts   []string       `json:"contacts"`
	Reputation map[string]int `json:"reputation"`
}

// Advancement accumulates organic growth not yet folded into stats.
type Advancement struct {
	StatIncreases map[string]int `json:"stat_increases"`
	Perks         []string       `json:"perks"`
	Moves         []string       `json:"moves"`
}

// Character is a player character as the resolution core sees it.
type Character struct {
	ID            string
	CampaignID    string
	Name          string
	UserID        string
	Location      string
	Appearance    string
	Personality   string
	Harm          int
	Conditions    []Condition
	Stats         map[string]int
	Perks         []string
	Moves         []string
	StatUsage     map[string]StatUsage
	ActionTags    map[string]int
	Relationships map[string]Relationship
	Consequences  Consequences
	Equipment     map[string]string
	Inventory     Inventory
	Resources     Resources
	Advancement   Advancement
	UpdatedAtUnix int64
}

// ThreatLevel is a faction's current danger rating.
type ThreatLevel string

const (
	ThreatNone     ThreatLevel = "none"
	ThreatLow      ThreatLevel = "low"
	ThreatModerate ThreatLevel = "moderate"
	ThreatHigh     ThreatLevel = "high"
	ThreatCritical ThreatLevel = "critical"
)

// Faction is an organised group acting in the world.
type Faction struct {
	ID            string
	CampaignID    string
	Name          string
	Plan          string
	ThreatLevel   ThreatLevel
	ResourcesJSON string
	GMNotes       string
	UpdatedAtUnix int64
}

// NPC is a non-player character.
type NPC struct {
	ID            string
	CampaignID    string
	Name          string
	Notes         string
	Tags          []string
	UpdatedAtUnix int64
}

// Visibility controls who may see a clock or timeline event.
type Visibility string

const (
	VisibilityPublic Visibility = "public"
	VisibilityGM     Visibility = "gm_only"
)

// Clock is a bounded progress track.
type Clock struct {
	ID            string
	CampaignID    string
	Name          string
	Value         int
	Max           int
	Visibility    Visibility
	UpdatedAtUnix int64
}

// TimelineEvent is a dated entry in the campaign history.
type TimelineEvent struct {
	ID            string
	CampaignID    string
	SceneID       string
	TurnNumber    int
	InGameDate    string
	Title         string
	Description   string
	Visibility    Visibility
	CreatedAtUnix int64
}

// HealthVerdict summarises periodic campaign health scoring.
type HealthVerdict string

const (
	HealthHealthy  HealthVerdict = "healthy"
	HealthStrained HealthVerdict = "strained"
	HealthCritical HealthVerdict = "critical"
)

// WorldMeta is the campaign-wide state the resolution core advances.
type WorldMeta struct {
	CampaignID      string
	Universe        string
	AISystemPrompt  string
	TurnNumber      int
	InGameDate      string
	ResolutionCount int
	GMNotes         []string
	HealthScore     float64
	HealthVerdict   HealthVerdict
	UpdatedAtUnix   int64
}

// SceneEvent is an entry in a scene's append-only event log.
type SceneEvent struct {
	ID          int64
	SceneID     string
	CampaignID  string
	SeqNo       int64
	EventType   string
	PayloadJSON string
	CreatedAt   int64
}

// ResolutionSnapshot stores the before/after diff of one exchange.
type ResolutionSnapshot struct {
	ID             int64
	SceneID        string
	CampaignID     string
	ExchangeNumber int
	Level          string
	ChangesJSON    string
	Checksum       string
	CreatedAt      int64
}

// AuditRecord logs operational events worth keeping.
type AuditRecord struct {
	ID           string
	CampaignID   string
	Category     string
	Actor        string
	Action       string
	RequestJSON  string
	DecisionJSON string
	Severity     string
	CreatedAt    int64
}

// CampaignLogEntry is a short per-exchange history line.
type CampaignLogEntry struct {
	ID             int64
	CampaignID     string
	SceneID        string
	SceneNumber    int
	ExchangeNumber int
	TurnNumber     int
	InGameDate     string
	Excerpt        string
	CreatedAt      int64
}

// BreakerState is the circuit breaker position.
type BreakerState string

const (
	BreakerClosed   BreakerState = "CLOSED"
	BreakerOpen     BreakerState = "OPEN"
	BreakerHalfOpen BreakerState = "HALF_OPEN"
)

// CostDelta records one narrator attempt in the usage ledger.
type CostDelta struct {
	CampaignID   string  `json:"campaign_id"`
	InputTokens  int64   `json:"input_tokens"`
	OutputTokens int64   `json:"output_tokens"`
	AmountUSD    float64 `json:"amount_usd"`
	LatencyMs    int64   `json:"latency_ms"`
	Success      bool    `json:"success"`
	CacheHit     bool    `json:"cache_hit"`
	Model        string  `json:"model"`
	CreatedAt    int64   `json:"created_at"`
}

// CostAction is the decision from the budget governor.
type CostAction string

const (
	CostContinue CostAction = "continue"
	CostWarn     CostAction = "warn"
	CostHalt     CostAction = "halt"
)
