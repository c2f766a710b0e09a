package realtime

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestHub_FanOutPerCampaign(t *testing.T) {
	h := NewHub(nil)
	a1 := h.Subscribe("camp-a")
	a2 := h.Subscribe("camp-a")
	b := h.Subscribe("camp-b")

	require.NoError(t, h.Publish(context.Background(), "camp-a", "scene:resolved", map[string]any{"exchange": 2}))

	for _, ch := range []chan Event{a1, a2} {
		select {
		case ev := <-ch:
			assert.Equal(t, "scene:resolved", ev.Name)
			assert.Equal(t, "camp-a", ev.CampaignID)
			var body map[string]int
			require.NoError(t, json.Unmarshal(ev.Payload, &body))
			assert.Equal(t, 2, body["exchange"])
		default:
			t.Fatal("expected an event on camp-a subscriber")
		}
	}
	assert.Empty(t, b)
}

func TestHub_Unsubscribe(t *testing.T) {
	h := NewHub(nil)
	ch := h.Subscribe("camp-a")
	assert.Equal(t, 1, h.Subscribers("camp-a"))

	h.Unsubscribe("camp-a", ch)
	assert.Equal(t, 0, h.Subscribers("camp-a"))
	_, open := <-ch
	assert.False(t, open)

	h.Unsubscribe("camp-a", ch)
	require.NoError(t, h.Publish(context.Background(), "camp-a", "scene:ended", nil))
}

func TestHub_FullBufferDrops(t *testing.T) {
	h := NewHub(nil)
	h.Buffer = 1
	ch := h.Subscribe("camp-a")
	before := testutil.ToFloat64(droppedEvents)

	require.NoError(t, h.Publish(context.Background(), "camp-a", "clock:ticked", 1))
	require.NoError(t, h.Publish(context.Background(), "camp-a", "clock:ticked", 2))

	assert.Equal(t, before+1, testutil.ToFloat64(droppedEvents))
	ev := <-ch
	assert.JSONEq(t, "1", string(ev.Payload))
}

func TestHub_UnencodablePayload(t *testing.T) {
	h := NewHub(nil)
	err := h.Publish(context.Background(), "camp-a", "scene:resolved", make(chan int))
	assert.Error(t, err)
}
