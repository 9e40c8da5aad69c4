package notify

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeSender struct {
	name string
	sent []string
	err  error
}

func (f *fakeSender) Send(ctx context.Context, title, message string) error {
	if f.err != nil {
		return f.err
	}
	f.sent = append(f.sent, title)
	return nil
}

func (f *fakeSender) Name() string { return f.name }

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifier_FiltersEvents(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventRebalanced, EventError}, testLogger())

	require.NoError(t, n.Notify(ctx, EventRebalanced, "Rebalanced", "done"))
	require.NoError(t, n.Notify(ctx, EventDepositRecorded, "Deposit", "filtered"))

	assert.Equal(t, []string{"Rebalanced"}, sender.sent)
}

func TestNotifier_EmptyFilterAllowsAll(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, nil, testLogger())

	require.NoError(t, n.Notify(ctx, EventDepositRecorded, "Deposit", "msg"))
	require.NoError(t, n.Notify(ctx, "anything", "Other", "msg"))

	assert.Len(t, sender.sent, 2)
}

func TestNotifier_NotifyAllBypassesFilter(t *testing.T) {
	ctx := context.Background()
	sender := &fakeSender{name: "fake"}
	n := NewNotifier([]Sender{sender}, []string{EventError}, testLogger())

	require.NoError(t, n.NotifyAll(ctx, "Startup", "msg"))
	assert.Equal(t, []string{"Startup"}, sender.sent)
}

func TestNotifier_SenderFailureDoesNotBlockOthers(t *testing.T) {
	ctx := context.Background()
	broken := &fakeSender{name: "broken", err: assert.AnError}
	working := &fakeSender{name: "working"}
	n := NewNotifier([]Sender{broken, working}, nil, testLogger())

	err := n.Notify(ctx, EventError, "Alert", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "broken")

	// The working sender still received the message.
	assert.Equal(t, []string{"Alert"}, working.sent)
}

func TestNotifier_NoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, testLogger())
	assert.NoError(t, n.Notify(context.Background(), EventError, "Alert", "msg"))
}

func TestDiscordSender_Send(t *testing.T) {
	var got map[string]string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&got))
		w.WriteHeader(http.StatusNoContent)
	}))
	defer srv.Close()

	sender := NewDiscordSender(srv.URL)
	require.NoError(t, sender.Send(context.Background(), "Rebalanced", "eth short opened"))
	assert.Equal(t, "**Rebalanced**\neth short opened", got["content"])
}

func TestDiscordSender_NonSuccessStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "rate limited", http.StatusTooManyRequests)
	}))
	defer srv.Close()

	err := NewDiscordSender(srv.URL).Send(context.Background(), "Alert", "msg")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "429")
}
