package statusbus

import (
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestPublishStatusDeliversToObserver(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go b.Run()
	defer b.Close()

	obs := &Observer{ID: "obs1", Events: make(chan Event, 4)}
	b.Register(obs)
	waitForCount(t, b, 1)

	b.PublishStatus(StatusEvent{Reason: "clear_all_layers"})

	select {
	case ev := <-obs.Events:
		require.NotNil(t, ev.Status)
		require.Equal(t, "clear_all_layers", ev.Status.Reason)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for status event")
	}
}

func TestPublishErrorDeliversToObserver(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go b.Run()
	defer b.Close()

	obs := &Observer{ID: "obs1", Events: make(chan Event, 4)}
	b.Register(obs)
	waitForCount(t, b, 1)

	b.PublishError(ErrorEvent{Code: "renderer_error", Message: "boom"})

	select {
	case ev := <-obs.Events:
		require.NotNil(t, ev.Err)
		require.Equal(t, "renderer_error", ev.Err.Code)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for error event")
	}
}

func TestUnregisterClosesEventsChannel(t *testing.T) {
	b := New(slog.New(slog.NewTextHandler(io.Discard, nil)))
	go b.Run()
	defer b.Close()

	obs := &Observer{ID: "obs1", Events: make(chan Event, 4)}
	b.Register(obs)
	waitForCount(t, b, 1)

	b.Unregister(obs)
	waitForCount(t, b, 0)

	_, open := <-obs.Events
	require.False(t, open)
}

func waitForCount(t *testing.T, b *Bus, want int) {
	t.Helper()
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if b.Count() == want {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatalf("observer count never reached %d", want)
}
