// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package event_test

import (
	"fmt"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/aipx/aipx/event"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

const testEvtType event.EventType = "test.event"

func TestEventBusSingleSubscriber(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 999))
	select {
	case evt, ok := <-subCh:
		require.True(t, ok, "event channel closed unexpectedly")
		assert.Equal(t, testEvtType, evt.Type)
		assert.Equal(t, 999, evt.Data)
		assert.False(t, evt.Timestamp.IsZero())
	case <-time.After(time.Second):
		t.Fatal("timeout waiting for event")
	}
}

func TestEventBusMultipleSubscribers(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	_, sub1Ch := eb.Subscribe(testEvtType)
	_, sub2Ch := eb.Subscribe(testEvtType)
	_, otherCh := eb.Subscribe("other.event")
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "x"))
	for _, ch := range []<-chan event.Event{sub1Ch, sub2Ch} {
		select {
		case evt := <-ch:
			assert.Equal(t, "x", evt.Data)
		case <-time.After(time.Second):
			t.Fatal("timeout waiting for event")
		}
	}
	select {
	case evt := <-otherCh:
		t.Fatalf("unexpected event on other subscriber: %+v", evt)
	default:
	}
}

func TestEventBusUnsubscribe(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	defer eb.Stop()
	subId, subCh := eb.Subscribe(testEvtType)
	eb.Unsubscribe(testEvtType, subId)
	_, ok := <-subCh
	assert.False(t, ok, "channel should be closed after Unsubscribe")
	// Publishing with no subscribers and unsubscribing twice are no-ops
	eb.Publish(testEvtType, event.NewEvent(testEvtType, 1))
	eb.Unsubscribe(testEvtType, subId)
}

func TestEventBusSubscribeFunc(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	var count atomic.Int64
	eb.SubscribeFunc(testEvtType, func(evt event.Event) {
		count.Add(1)
	})
	for i := range 5 {
		eb.Publish(testEvtType, event.NewEvent(testEvtType, i))
	}
	require.Eventually(t, func() bool {
		return count.Load() == 5
	}, time.Second, 5*time.Millisecond)
	// Stop waits for the handler goroutine to exit
	eb.Stop()
}

func TestEventBusFullQueueDrops(t *testing.T) {
	reg := prometheus.NewRegistry()
	eb := event.NewEventBus(reg, nil)
	defer eb.Stop()
	_, subCh := eb.Subscribe(testEvtType)
	total := event.EventQueueSize + 3
	for i := range total {
		eb.Publish(testEvtType, event.NewEvent(testEvtType, i))
	}
	assert.Len(t, subCh, event.EventQueueSize)
	// Events are delivered in publish order
	first := <-subCh
	assert.Equal(t, 0, first.Data)

	expected := fmt.Sprintf(`
# HELP aipx_event_dropped_total total events dropped because a subscriber queue was full
# TYPE aipx_event_dropped_total counter
aipx_event_dropped_total{type="test.event"} 3
# HELP aipx_event_published_total total events published by type
# TYPE aipx_event_published_total counter
aipx_event_published_total{type="test.event"} %d
# HELP aipx_event_subscribers current subscribers by event type
# TYPE aipx_event_subscribers gauge
aipx_event_subscribers{type="test.event"} 1
`, total)
	require.NoError(t, testutil.GatherAndCompare(reg, strings.NewReader(expected)))
}

func TestEventBusReuseAfterStop(t *testing.T) {
	eb := event.NewEventBus(nil, nil)
	_, oldCh := eb.Subscribe(testEvtType)
	eb.Stop()
	_, ok := <-oldCh
	assert.False(t, ok)

	_, subCh := eb.Subscribe(testEvtType)
	eb.Publish(testEvtType, event.NewEvent(testEvtType, "again"))
	evt := <-subCh
	assert.Equal(t, "again", evt.Data)
	eb.Stop()
}
