package tasks

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestCreateAndGet(t *testing.T) {
	r := NewRegistry()

	id := r.Create()
	require.NotEmpty(t, id)

	task, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusPending, task.Status)
	assert.Equal(t, 0, task.Progress)
}

func TestGet_UnknownID(t *testing.T) {
	r := NewRegistry()

	_, ok := r.Get("nope")
	assert.False(t, ok)
}

func TestUpdateStatus(t *testing.T) {
	r := NewRegistry()
	id := r.Create()

	require.NoError(t, r.UpdateStatus(id, StatusRunning, "starting full sync"))

	task, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, StatusRunning, task.Status)
	assert.Contains(t, task.Message(), "starting full sync")

	require.NoError(t, r.UpdateStatus(id, StatusCompleted, ""))
	task, _ = r.Get(id)
	assert.Equal(t, StatusCompleted, task.Status)
	assert.Equal(t, 100, task.Progress)
}

func TestUpdateStatus_UnknownID(t *testing.T) {
	r := NewRegistry()

	err := r.UpdateStatus("nope", StatusRunning, "")
	require.Error(t, err)
}

func TestUpdateProgress(t *testing.T) {
	r := NewRegistry()
	id := r.Create()

	require.NoError(t, r.UpdateProgress(id, 40, &Event{Kind: EventAdded, Item: "Night Watch"}, nil))
	require.NoError(t, r.UpdateProgress(id, 80, &Event{Kind: EventSkipped, Item: "Day Shift", Outcome: "book already exists in database"}, nil))

	task, ok := r.Get(id)
	require.True(t, ok)
	assert.Equal(t, 80, task.Progress)
	require.Len(t, task.Events, 2)
}

func TestUpdateProgress_ClampsAboveHundred(t *testing.T) {
	r := NewRegistry()
	id := r.Create()

	require.NoError(t, r.UpdateProgress(id, 150, nil, nil))

	task, _ := r.Get(id)
	assert.Equal(t, 100, task.Progress)
}

func TestSnapshotIsolation(t *testing.T) {
	r := NewRegistry()
	id := r.Create()

	require.NoError(t, r.UpdateProgress(id, 10, &Event{Kind: EventAdded, Item: "a"}, nil))
	before, _ := r.Get(id)

	require.NoError(t, r.UpdateProgress(id, 20, &Event{Kind: EventAdded, Item: "b"}, nil))

	// the earlier snapshot must not see later events
	assert.Len(t, before.Events, 1)
}

func TestHasActive(t *testing.T) {
	r := NewRegistry()
	assert.False(t, r.HasActive())

	id := r.Create()
	assert.True(t, r.HasActive())

	require.NoError(t, r.UpdateStatus(id, StatusCompleted, ""))
	assert.False(t, r.HasActive())
}

func TestCreateIfIdle(t *testing.T) {
	r := NewRegistry()

	id, ok := r.CreateIfIdle()
	require.True(t, ok)
	require.NotEmpty(t, id)

	// a pending task blocks further creates
	_, ok = r.CreateIfIdle()
	assert.False(t, ok)

	require.NoError(t, r.UpdateStatus(id, StatusCompleted, ""))
	_, ok = r.CreateIfIdle()
	assert.True(t, ok)
}

func TestCreate_EvictsOldestTerminalTask(t *testing.T) {
	r := NewRegistry()

	first := r.Create()
	require.NoError(t, r.UpdateStatus(first, StatusCompleted, ""))
	time.Sleep(5 * time.Millisecond)

	var last string
	for i := 0; i < maxRetainedTasks; i++ {
		last = r.Create()
		require.NoError(t, r.UpdateStatus(last, StatusCompleted, ""))
	}

	_, ok := r.Get(first)
	assert.False(t, ok)
	_, ok = r.Get(last)
	assert.True(t, ok)
}

func TestCreate_NeverEvictsActiveTasks(t *testing.T) {
	r := NewRegistry()

	pending := r.Create()
	time.Sleep(5 * time.Millisecond)

	for i := 0; i < maxRetainedTasks; i++ {
		id := r.Create()
		require.NoError(t, r.UpdateStatus(id, StatusCompleted, ""))
	}

	_, ok := r.Get(pending)
	assert.True(t, ok)
}

func TestSubscribe(t *testing.T) {
	r := NewRegistry()
	id := r.Create()

	seen := []Task{}
	token := r.Subscribe(id, func(task Task) {
		seen = append(seen, task)
	})

	require.NoError(t, r.UpdateProgress(id, 50, nil, nil))
	require.Len(t, seen, 1)
	assert.Equal(t, 50, seen[0].Progress)

	r.Unsubscribe(id, token)
	require.NoError(t, r.UpdateProgress(id, 60, nil, nil))
	assert.Len(t, seen, 1)
}

func TestMessageRendering(t *testing.T) {
	task := Task{Events: []Event{
		{Kind: EventInfo, Outcome: "starting full sync"},
		{Kind: EventAdded, Item: "Night Watch"},
		{Kind: EventUpdated, Item: "Day Shift", Outcome: "description"},
		{Kind: EventSkipped, Item: "message 102", Outcome: "no text content"},
		{Kind: EventError, Item: "message 103", Outcome: "gateway returned status 500"},
	}}

	msg := task.Message()
	lines := []string{
		"starting full sync",
		"+ Night Watch",
		"~ Day Shift: description",
		"- message 102: no text content",
		"! message 103: gateway returned status 500",
		"added 1, updated 1, skipped 1, errors 1",
	}
	assert.Equal(t, lines, strings.Split(msg, "\n"))
}

func TestMessageRendering_NoSummaryWithoutClassifiedEvents(t *testing.T) {
	task := Task{Events: []Event{{Kind: EventInfo, Outcome: "starting"}}}

	assert.Equal(t, "starting", task.Message())
}
