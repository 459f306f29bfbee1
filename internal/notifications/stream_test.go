package notifications

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func staticToken(tok string) TokenSource {
	return func(context.Context) (string, error) { return tok, nil }
}

func TestStreamClientReceivesEvents(t *testing.T) {
	want := Notification{
		ID:      uuid.New(),
		UserID:  uuid.New(),
		Type:    TypeConfirmed,
		Message: "Your appointment on Monday, June 2 at 9:00 AM has been confirmed.",
	}

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/api/v1/notifications/sse", r.URL.Path)
		assert.Equal(t, "secret-token", r.URL.Query().Get("token"))

		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		payload, _ := json.Marshal(want)
		fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewStreamClient(srv.URL, staticToken("secret-token"), 3, time.Millisecond, quietLogger())
	got := make(chan Notification, 1)
	errCh := make(chan error, 1)
	go func() {
		errCh <- client.Run(ctx, func(n Notification) { got <- n })
	}()

	select {
	case n := <-got:
		assert.Equal(t, want.ID, n.ID)
		assert.Equal(t, want.Message, n.Message)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}

	cancel()
	select {
	case err := <-errCh:
		assert.ErrorIs(t, err, context.Canceled)
	case <-time.After(2 * time.Second):
		t.Fatal("client did not stop on cancel")
	}
}

func TestStreamClientIgnoresHeartbeatsAndOtherEvents(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "text/event-stream")
		flusher := w.(http.Flusher)
		fmt.Fprint(w, ": heartbeat\n\n")
		fmt.Fprint(w, "event: other\ndata: {\"id\":\"nope\"}\n\n")
		payload, _ := json.Marshal(Notification{ID: uuid.New(), Type: TypeBooked})
		fmt.Fprintf(w, "event: notification\ndata: %s\n\n", payload)
		flusher.Flush()
		<-r.Context().Done()
	}))
	defer srv.Close()

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	client := NewStreamClient(srv.URL, staticToken("t"), 3, time.Millisecond, quietLogger())
	got := make(chan Notification, 4)
	go func() { _ = client.Run(ctx, func(n Notification) { got <- n }) }()

	select {
	case n := <-got:
		assert.Equal(t, TypeBooked, n.Type)
	case <-time.After(2 * time.Second):
		t.Fatal("no event received")
	}
	// Only the notification event came through.
	assert.Empty(t, got)
}

func TestStreamClientExhaustsRetries(t *testing.T) {
	var attempts atomic.Int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		attempts.Add(1)
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	client := NewStreamClient(srv.URL, staticToken("t"), 3, time.Millisecond, quietLogger())
	err := client.Run(context.Background(), func(Notification) {})

	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, int32(3), attempts.Load())
}

func TestStreamClientFetchesFreshTokenPerAttempt(t *testing.T) {
	var issued atomic.Int32
	tokens := func(context.Context) (string, error) {
		return fmt.Sprintf("tok-%d", issued.Add(1)), nil
	}

	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.URL.Query().Get("token"))
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	client := NewStreamClient(srv.URL, tokens, 2, time.Millisecond, quietLogger())
	err := client.Run(context.Background(), func(Notification) {})

	require.ErrorIs(t, err, ErrRetriesExhausted)
	assert.Equal(t, []string{"tok-1", "tok-2"}, seen)
}
