package domain

import (
	"errors"
	"fmt"
)

// ErrorKind groups engine errors by how callers should react to them.
type ErrorKind string

const (
	KindNotReady            ErrorKind = "not_ready"
	KindInvalidState        ErrorKind = "invalid_state"
	KindGatewayUnavailable  ErrorKind = "gateway_unavailable"
	KindNarrator            ErrorKind = "narrator_error"
	KindValidationExhausted ErrorKind = "validation_exhausted"
	KindPersistence         ErrorKind = "persistence_error"
	KindTimeout             ErrorKind = "timeout"
	KindNotFound            ErrorKind = "not_found"
	KindConflict            ErrorKind = "conflict"
	KindConfig              ErrorKind = "config"
	KindRateLimited         ErrorKind = "rate_limited"
)

// EngineError is the unified error type for the engine.
// Each error has a numeric code, a kind and a human-readable message.
type EngineError struct {
	Code    int
	Kind    ErrorKind
	Message string
	cause   error
}

// Error implements the error interface.
func (e *EngineError) Error() string {
	if e.cause != nil {
		return fmt.Sprintf("engine error %d: %s: %v", e.Code, e.Message, e.cause)
	}
	return fmt.Sprintf("engine error %d: %s", e.Code, e.Message)
}

// Unwrap returns the underlying cause, if any.
func (e *EngineError) Unwrap() error {
	return e.cause
}

// Is matches any EngineError carrying the same code.
func (e *EngineError) Is(target error) bool {
	t, ok := target.(*EngineError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewEngineError creates a new EngineError derived from a sentinel with a custom message.
func NewEngineError(sentinel *EngineError, msg string) *EngineError {
	return &EngineError{Code: sentinel.Code, Kind: sentinel.Kind, Message: msg}
}

// Wrap creates an EngineError from a sentinel that carries cause.
func Wrap(sentinel *EngineError, cause error) *EngineError {
	return &EngineError{Code: sentinel.Code, Kind: sentinel.Kind, Message: sentinel.Message, cause: cause}
}

// KindOf returns the kind of the first EngineError in err's chain, or "" if none.
func KindOf(err error) ErrorKind {
	var ee *EngineError
	if errors.As(err, &ee) {
		return ee.Kind
	}
	return ""
}

// ---- Resolution / state machine errors (-32010 to -32039) ----

var (
	ErrNotReady          = &EngineError{Code: -32010, Kind: KindNotReady, Message: "exchange is not ready to resolve"}
	ErrInvalidTransition = &EngineError{Code: -32011, Kind: KindInvalidState, Message: "invalid scene status transition"}
	ErrSceneNotAwaiting  = &EngineError{Code: -32012, Kind: KindInvalidState, Message: "scene is not awaiting actions"}
	ErrNoPendingActions  = &EngineError{Code: -32013, Kind: KindInvalidState, Message: "scene has no pending actions"}
	ErrSceneClosed       = &EngineError{Code: -32014, Kind: KindInvalidState, Message: "scene is already resolved"}
	ErrActiveSceneExists = &EngineError{Code: -32015, Kind: KindInvalidState, Message: "campaign already has an active scene"}
	ErrOptimisticLock    = &EngineError{Code: -32016, Kind: KindConflict, Message: "optimistic lock conflict: scene was modified concurrently"}
	ErrResolutionTimeout = &EngineError{Code: -32017, Kind: KindTimeout, Message: "scene resolution timed out"}
	ErrNotParticipant    = &EngineError{Code: -32018, Kind: KindInvalidState, Message: "character is not a participant of this scene"}
	ErrEmptyAction       = &EngineError{Code: -32019, Kind: KindInvalidState, Message: "action text is required"}
	ErrRateLimited       = &EngineError{Code: -32020, Kind: KindRateLimited, Message: "rate limit exceeded"}
	ErrResolutionRunning = &EngineError{Code: -32021, Kind: KindInvalidState, Message: "scene resolution already in progress"}
)

// ---- Narrator gateway errors (-32040 to -32069) ----

var (
	ErrGatewayUnavailable  = &EngineError{Code: -32040, Kind: KindGatewayUnavailable, Message: "narrator circuit is open"}
	ErrNarratorCall        = &EngineError{Code: -32041, Kind: KindNarrator, Message: "narrator call failed"}
	ErrNarratorStatus      = &EngineError{Code: -32042, Kind: KindNarrator, Message: "narrator returned non-success status"}
	ErrNarratorPayload     = &EngineError{Code: -32043, Kind: KindNarrator, Message: "narrator payload could not be parsed"}
	ErrValidationExhausted = &EngineError{Code: -32044, Kind: KindValidationExhausted, Message: "no usable narrative could be extracted"}
	ErrBudgetExceeded      = &EngineError{Code: -32045, Kind: KindGatewayUnavailable, Message: "narrator budget limit exceeded"}
)

// ---- Lookup errors (-32100 to -32129) ----

var (
	ErrSceneNotFound     = &EngineError{Code: -32100, Kind: KindNotFound, Message: "scene not found"}
	ErrActionNotFound    = &EngineError{Code: -32101, Kind: KindNotFound, Message: "player action not found"}
	ErrCharacterNotFound = &EngineError{Code: -32102, Kind: KindNotFound, Message: "character not found"}
	ErrCampaignNotFound  = &EngineError{Code: -32103, Kind: KindNotFound, Message: "campaign not found"}
	ErrFactionNotFound   = &EngineError{Code: -32104, Kind: KindNotFound, Message: "faction not found"}
	ErrNPCNotFound       = &EngineError{Code: -32105, Kind: KindNotFound, Message: "npc not found"}
	ErrClockNotFound     = &EngineError{Code: -32106, Kind: KindNotFound, Message: "clock not found"}
)

// ---- Store / config errors (-32130 to -32159) ----

var (
	ErrStoreInit       = &EngineError{Code: -32130, Kind: KindPersistence, Message: "failed to initialize store"}
	ErrStoreQuery      = &EngineError{Code: -32131, Kind: KindPersistence, Message: "store query failed"}
	ErrStoreWrite      = &EngineError{Code: -32132, Kind: KindPersistence, Message: "store write failed"}
	ErrSchemaMigration = &EngineError{Code: -32133, Kind: KindPersistence, Message: "schema migration failed"}
	ErrConfigInvalid   = &EngineError{Code: -32136, Kind: KindConfig, Message: "invalid configuration"}
)

// ---- Advancement errors (-32160 to -32189) ----

var (
	ErrStatSum       = &EngineError{Code: -32160, Kind: KindInvalidState, Message: "stats must sum to +2"}
	ErrStatRange     = &EngineError{Code: -32161, Kind: KindInvalidState, Message: "stat outside [-2, +3]"}
	ErrStatHighCount = &EngineError{Code: -32162, Kind: KindInvalidState, Message: "more than one stat at +2 or higher"}
)
