package notify

import (
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/specserve/internal/events"
	ferrors "git.home.luguber.info/inful/specserve/internal/foundation/errors"
)

type fakeConn struct {
	mu      sync.Mutex
	subject string
	msgs    [][]byte
	err     error
	drained bool
}

func (f *fakeConn) Publish(subj string, data []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return f.err
	}
	f.subject = subj
	f.msgs = append(f.msgs, data)
	return nil
}

func (f *fakeConn) FlushTimeout(time.Duration) error { return nil }
func (f *fakeConn) Drain() error                     { f.drained = true; return nil }

func (f *fakeConn) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.msgs)
}

func TestPublish_Payload(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "")

	started := time.Date(2024, 5, 1, 12, 0, 0, 0, time.UTC)
	require.NoError(t, p.Publish(events.BuildCompleted{
		BuildID:   "b1",
		Source:    "spec/latest/index.bs",
		Target:    "spec/latest/index.html",
		Status:    "failed",
		ExitCode:  2,
		Error:     "LINE 4: unknown",
		StartedAt: started,
		Duration:  1200 * time.Millisecond,
	}))

	require.Equal(t, DefaultSubject, fc.subject)
	var msg BuildMessage
	require.NoError(t, json.Unmarshal(fc.msgs[0], &msg))
	require.Equal(t, "spec/latest/index.html", msg.Target)
	require.Equal(t, int64(1200), msg.DurationMS)
	require.Equal(t, 2, msg.ExitCode)
	require.True(t, msg.StartedAt.Equal(started))
}

func TestPublish_ErrorIsNetworkCategory(t *testing.T) {
	p := newPublisher(&fakeConn{err: errors.New("nats: connection closed")}, "builds")
	err := p.Publish(events.BuildCompleted{Target: "x"})
	require.Error(t, err)
	require.True(t, ferrors.HasCategory(err, ferrors.CategoryNetwork))
}

func TestConsume_ForwardsBusEvents(t *testing.T) {
	fc := &fakeConn{}
	p := newPublisher(fc, "builds")
	bus := events.NewBus()

	done := make(chan error, 1)
	go func() { done <- p.Consume(t.Context(), bus) }()
	require.Eventually(t, func() bool { return events.SubscriberCount[events.BuildCompleted](bus) == 1 }, time.Second, 5*time.Millisecond)

	require.NoError(t, bus.Publish(t.Context(), events.BuildCompleted{BuildID: "1", Status: "success"}))
	require.Eventually(t, func() bool { return fc.count() == 1 }, time.Second, 5*time.Millisecond)

	bus.Close()
	require.NoError(t, <-done)
	require.NoError(t, p.Close())
	require.True(t, fc.drained)
}
