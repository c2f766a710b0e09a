// Package validator narrows a raw narrator payload into a usable result,
// degrading from full schema conformance to scene text only to a canned
// placeholder narrative.
package validator

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"
	"unicode/utf8"

	"github.com/tidwall/gjson"

	"github.com/taleforge/sceneengine/internal/classify"
	"github.com/taleforge/sceneengine/internal/domain"
)

// Level is the fidelity a payload was accepted at.
type Level string

const (
	LevelFull      Level = "full"
	LevelPartial   Level = "partial"
	LevelEmergency Level = "emergency"
)

// Result is one of Full, Partial or Emergency.
type Result interface {
	Level() Level
	Text() string
	result()
}

// Full is a payload that passed strict schema validation.
type Full struct {
	Response *domain.NarratorResponse
}

// Partial carries only the scene text; world updates were discarded.
type Partial struct {
	SceneText string
	// Source names the field the text was found in.
	Source string
}

// Emergency is a placeholder narrative chosen from the scene's mood.
type Emergency struct {
	SceneText string
	Mood      classify.Mood
	Reason    string
}

func (f Full) Level() Level { return LevelFull }
func (f Full) Text() string { return f.Response.SceneText }
func (Full) result()        {}

func (p Partial) Level() Level { return LevelPartial }
func (p Partial) Text() string { return p.SceneText }
func (Partial) result()        {}

func (e Emergency) Level() Level { return LevelEmergency }
func (e Emergency) Text() string { return e.SceneText }
func (Emergency) result()        {}

// Updates returns the world updates carried by r. Only full results carry any.
func Updates(r Result) domain.WorldUpdates {
	if f, ok := r.(Full); ok && f.Response != nil {
		return f.Response.WorldUpdates
	}
	return domain.WorldUpdates{}
}

// TimePassage returns the time passage carried by r, if any.
func TimePassage(r Result) *domain.TimePassage {
	if f, ok := r.(Full); ok && f.Response != nil {
		return f.Response.TimePassage
	}
	return nil
}

// textFields are probed in order when strict validation fails.
var textFields = []string{
	"scene_text", "sceneText", "narrative", "description", "text",
	"content", "resolution", "response.scene_text", "data.scene_text",
}

// Validator applies the three validation levels in order.
type Validator struct {
	Classifier classify.Classifier
	Templates  map[classify.Mood]string
	// MinPartialLength is the shortest scene text accepted at the partial level.
	MinPartialLength int
	// MinNarrativeLength is the shortest text not replaced by a placeholder.
	MinNarrativeLength int
}

// New creates a Validator with the default templates and thresholds.
func New(c classify.Classifier) *Validator {
	if c == nil {
		c = classify.Default()
	}
	return &Validator{
		Classifier:         c,
		Templates:          DefaultTemplates(),
		MinPartialLength:   10,
		MinNarrativeLength: 50,
	}
}

// Validate returns the highest-fidelity result raw supports. It fails only
// when no text can be extracted and no placeholder template is available.
func (v *Validator) Validate(raw []byte, sceneIntro string) (Result, error) {
	if resp, err := v.ValidateFull(raw); err == nil {
		return Full{Response: resp}, nil
	}

	text, source, ok := v.ExtractText(raw)
	if ok && runeLen(text) >= v.MinPartialLength {
		if runeLen(text) >= v.MinNarrativeLength {
			return Partial{SceneText: text, Source: source}, nil
		}
		return v.emergency(sceneIntro, "scene text too short")
	}
	if ok {
		return v.emergency(sceneIntro, "scene text too short")
	}
	return v.emergency(sceneIntro, "no scene text found")
}

// ValidateFull strictly validates raw against the narrator response schema.
func (v *Validator) ValidateFull(raw []byte) (*domain.NarratorResponse, error) {
	var doc any
	dec := json.NewDecoder(bytes.NewReader(raw))
	if err := dec.Decode(&doc); err != nil {
		return nil, fmt.Errorf("decode payload: %w", err)
	}
	if _, ok := doc.(map[string]any); !ok {
		return nil, fmt.Errorf("payload is not an object")
	}

	sch, err := compiled()
	if err != nil {
		return nil, err
	}
	if err := sch.Validate(doc); err != nil {
		return nil, fmt.Errorf("schema validation failed: %w", err)
	}

	var resp domain.NarratorResponse
	if err := json.Unmarshal(raw, &resp); err != nil {
		return nil, fmt.Errorf("decode typed payload: %w", err)
	}
	resp.SceneText = strings.TrimSpace(resp.SceneText)
	for i := range resp.WorldUpdates.PCChanges {
		for j := range resp.WorldUpdates.PCChanges[i].RelationshipChanges {
			resp.WorldUpdates.PCChanges[i].RelationshipChanges[j].Clamp()
		}
	}
	return &resp, nil
}

// ExtractText finds scene text in a loosely shaped payload.
func (v *Validator) ExtractText(raw []byte) (text, source string, ok bool) {
	trimmed := bytes.TrimSpace(raw)
	if len(trimmed) == 0 {
		return "", "", false
	}

	if !gjson.ValidBytes(trimmed) {
		// Broken JSON is unusable; anything else is a bare narrative string.
		if trimmed[0] == '{' || trimmed[0] == '[' {
			return "", "", false
		}
		return string(trimmed), "bare", true
	}

	doc := gjson.ParseBytes(trimmed)
	if doc.Type == gjson.String {
		if s := strings.TrimSpace(doc.String()); s != "" {
			return s, "bare", true
		}
		return "", "", false
	}
	if !doc.IsObject() {
		return "", "", false
	}

	for _, path := range textFields {
		res := doc.Get(path)
		if res.Type != gjson.String {
			continue
		}
		if s := strings.TrimSpace(res.String()); s != "" {
			return s, path, true
		}
	}

	var long []string
	var longKey string
	doc.ForEach(func(key, value gjson.Result) bool {
		if value.Type == gjson.String && runeLen(strings.TrimSpace(value.String())) >= v.MinNarrativeLength {
			long = append(long, strings.TrimSpace(value.String()))
			longKey = key.String()
		}
		return true
	})
	if len(long) == 1 {
		return long[0], longKey, true
	}
	return "", "", false
}

func (v *Validator) emergency(sceneIntro, reason string) (Result, error) {
	mood := classify.MoodDefault
	if v.Classifier != nil {
		mood = v.Classifier.Mood(sceneIntro)
	}
	text := v.Templates[mood]
	if text == "" {
		mood = classify.MoodDefault
		text = v.Templates[classify.MoodDefault]
	}
	if text == "" {
		return nil, domain.NewEngineError(domain.ErrValidationExhausted, reason)
	}
	return Emergency{SceneText: text, Mood: mood, Reason: reason}, nil
}

func runeLen(s string) int {
	return utf8.RuneCountInString(strings.TrimSpace(s))
}
