package workflow

import (
	"testing"

	"github.com/taleforge/sceneengine/internal/domain"
)

func TestIsValidTransition(t *testing.T) {
	tests := []struct {
		from, to domain.SceneStatus
		want     bool
	}{
		{domain.SceneAwaitingActions, domain.SceneResolving, true},
		{domain.SceneAwaitingActions, domain.SceneResolved, true},
		{domain.SceneResolving, domain.SceneAwaitingActions, true},
		{domain.SceneResolving, domain.SceneResolved, false},
		{domain.SceneResolving, domain.SceneResolving, false},
		{domain.SceneAwaitingActions, domain.SceneAwaitingActions, false},
		{domain.SceneResolved, domain.SceneAwaitingActions, false},
		{domain.SceneResolved, domain.SceneResolving, false},
		{"UNKNOWN", domain.SceneResolving, false},
	}
	for _, tt := range tests {
		if got := IsValidTransition(tt.from, tt.to); got != tt.want {
			t.Errorf("IsValidTransition(%s, %s) = %v, want %v", tt.from, tt.to, got, tt.want)
		}
	}
}
