package notify

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type recordingSender struct {
	name   string
	err    error
	titles []string
}

func (s *recordingSender) Name() string { return s.name }

func (s *recordingSender) Send(_ context.Context, title, _ string) error {
	s.titles = append(s.titles, title)
	return s.err
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestNotifyDeliversToAllSenders(t *testing.T) {
	a := &recordingSender{name: "a"}
	b := &recordingSender{name: "b"}
	n := NewNotifier([]Sender{a, b}, nil, discard())

	err := n.Notify(context.Background(), "position_closed", "Closed", "details")
	require.NoError(t, err)
	assert.Equal(t, []string{"Closed"}, a.titles)
	assert.Equal(t, []string{"Closed"}, b.titles)
}

func TestNotifyFiltersEvents(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"stop_loss"}, discard())

	require.NoError(t, n.Notify(context.Background(), "position_opened", "Opened", ""))
	assert.Empty(t, s.titles)

	require.NoError(t, n.Notify(context.Background(), "stop_loss", "Stop", ""))
	assert.Equal(t, []string{"Stop"}, s.titles)
}

func TestNotifyCollectsSenderFailures(t *testing.T) {
	failing := &recordingSender{name: "bad", err: errors.New("boom")}
	ok := &recordingSender{name: "good"}
	n := NewNotifier([]Sender{failing, ok}, nil, discard())

	err := n.Notify(context.Background(), "position_closed", "Closed", "")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "bad")
	// The failing sender must not block delivery to the rest.
	assert.Equal(t, []string{"Closed"}, ok.titles)
}

func TestNotifyAllIgnoresFilter(t *testing.T) {
	s := &recordingSender{name: "a"}
	n := NewNotifier([]Sender{s}, []string{"stop_loss"}, discard())

	require.NoError(t, n.NotifyAll(context.Background(), "Anything", ""))
	assert.Equal(t, []string{"Anything"}, s.titles)
}

func TestNotifyNoSenders(t *testing.T) {
	n := NewNotifier(nil, nil, discard())
	assert.NoError(t, n.Notify(context.Background(), "position_closed", "Closed", ""))
}
