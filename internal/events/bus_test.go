package events

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taskqueue/core/internal/task"
)

func TestBus_PublishTask_DeliversToTaskAndDashboardTopics(t *testing.T) {
	bus := NewBus(4, nil)
	tk := task.New("send-email", "default", nil, 5, 3)

	taskCh, unsubTask := bus.Subscribe(TaskTopic(tk.ID))
	defer unsubTask()
	dashCh, unsubDash := bus.Subscribe(DashboardTopic)
	defer unsubDash()

	bus.PublishTask(tk, "")

	select {
	case e := <-taskCh:
		assert.Equal(t, tk.ID, e.Task.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event on task topic")
	}

	select {
	case e := <-dashCh:
		assert.Equal(t, tk.ID, e.Task.ID)
	case <-time.After(time.Second):
		t.Fatal("expected event on dashboard topic")
	}
}

func TestBus_PublishTask_Nil_DoesNotPanic(t *testing.T) {
	bus := NewBus(4, nil)
	assert.NotPanics(t, func() {
		bus.PublishTask(nil, "")
	})
}

func TestBus_Unsubscribe_StopsDelivery(t *testing.T) {
	bus := NewBus(4, nil)
	tk := task.New("send-email", "default", nil, 5, 3)

	ch, unsubscribe := bus.Subscribe(TaskTopic(tk.ID))
	unsubscribe()

	_, ok := <-ch
	assert.False(t, ok, "channel should be closed after unsubscribe")

	assert.NotPanics(t, func() {
		bus.PublishTask(tk, "")
	})
}

func TestBus_DropsOldestWhenSubscriberFalsBehind(t *testing.T) {
	bus := NewBus(1, nil)
	tk := task.New("send-email", "default", nil, 5, 3)
	ch, unsubscribe := bus.Subscribe(TaskTopic(tk.ID))
	defer unsubscribe()

	first := task.New("first", "default", nil, 5, 3)
	first.ID = tk.ID
	second := task.New("second", "default", nil, 5, 3)
	second.ID = tk.ID

	bus.PublishTask(first, "")
	bus.PublishTask(second, "")

	require.Eventually(t, func() bool {
		return len(ch) == 1
	}, time.Second, time.Millisecond)

	e := <-ch
	assert.Equal(t, "second", e.Task.Name, "the newest event should survive the drop-oldest policy")
}

type recordingRelay struct {
	events []*Event
}

func (r *recordingRelay) Publish(event *Event) {
	r.events = append(r.events, event)
}

func TestBus_Publish_MirrorsToRelay(t *testing.T) {
	relay := &recordingRelay{}
	bus := NewBus(4, relay)
	tk := task.New("send-email", "default", nil, 5, 3)

	bus.PublishTask(tk, "")

	require.Len(t, relay.events, 2) // task topic + dashboard topic
}

func TestBus_PublishWorker_GoesToDashboardOnly(t *testing.T) {
	bus := NewBus(4, nil)
	dashCh, unsubscribe := bus.Subscribe(DashboardTopic)
	defer unsubscribe()

	bus.PublishWorker(EventWorkerJoined, "worker-1")

	select {
	case e := <-dashCh:
		assert.Equal(t, "worker-1", e.WorkerID)
	case <-time.After(time.Second):
		t.Fatal("expected worker event on dashboard topic")
	}
}
