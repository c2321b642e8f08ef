package notify

import (
	"encoding/json"
	stderrors "errors"
	"testing"
	"time"

	"github.com/nats-io/nats.go"
	"github.com/stretchr/testify/require"

	"git.home.luguber.info/inful/pressroom/internal/build"
	"git.home.luguber.info/inful/pressroom/internal/config"
	"git.home.luguber.info/inful/pressroom/internal/foundation/errors"
	"git.home.luguber.info/inful/pressroom/internal/retry"
)

type fakeConn struct {
	msgs       []*nats.Msg
	publishErr error
	flushErr   error
	closed     bool
}

func (f *fakeConn) PublishMsg(msg *nats.Msg) error {
	if f.publishErr != nil {
		return f.publishErr
	}
	f.msgs = append(f.msgs, msg)
	return nil
}

func (f *fakeConn) FlushTimeout(time.Duration) error { return f.flushErr }
func (f *fakeConn) Close()                           { f.closed = true }

func TestPublishEncodesReport(t *testing.T) {
	conn := &fakeConn{}
	n := newNotifier(conn, "", 0)
	n.now = func() time.Time { return time.Date(2026, 1, 2, 3, 4, 5, 0, time.UTC) }

	report := &build.BuildReport{RunID: "run-1", Built: 2, Failed: 1, Duration: 2 * time.Second}
	require.NoError(t, n.Publish(t.Context(), report))

	require.Len(t, conn.msgs, 1)
	msg := conn.msgs[0]
	require.Equal(t, config.DefaultNotifySubject, msg.Subject)
	require.Equal(t, "partial", msg.Header.Get(HeaderOutcome))
	require.Equal(t, "run-1", msg.Header.Get(HeaderRunID))

	var event struct {
		Type       string `json:"type"`
		Outcome    string `json:"outcome"`
		DurationMS int64  `json:"duration_ms"`
		Report     struct {
			Built int `json:"built"`
		} `json:"report"`
	}
	require.NoError(t, json.Unmarshal(msg.Data, &event))
	require.Equal(t, EventType, event.Type)
	require.Equal(t, int64(2000), event.DurationMS)
	require.Equal(t, 2, event.Report.Built)

	require.NoError(t, n.Close())
	require.True(t, conn.closed)
}

var fastRetry = retry.NewPolicy(retry.ModeFixed, time.Millisecond, time.Millisecond, 2)

func TestPublishFlushFailureIsNetworkError(t *testing.T) {
	conn := &fakeConn{flushErr: stderrors.New("timeout")}
	n := newNotifier(conn, "builds", time.Second).WithRetry(fastRetry)
	err := n.Publish(t.Context(), &build.BuildReport{RunID: "run-1"})
	require.True(t, errors.HasCategory(err, errors.CategoryNetwork))
	require.False(t, errors.IsFatal(err))
	require.Len(t, conn.msgs, 3, "first attempt plus two retries")
}

func TestPublishClosedConnectionIsNotRetried(t *testing.T) {
	conn := &fakeConn{publishErr: nats.ErrConnectionClosed}
	n := newNotifier(conn, "builds", time.Second).WithRetry(fastRetry)
	err := n.Publish(t.Context(), &build.BuildReport{RunID: "run-1"})
	require.ErrorIs(t, err, nats.ErrConnectionClosed)

	classified, ok := errors.AsClassified(err)
	require.True(t, ok)
	attempts, _ := classified.Context().Get("attempts")
	require.Equal(t, 1, attempts)
}

func TestNewNATSNotifierRequiresURL(t *testing.T) {
	_, err := NewNATSNotifier(config.NotifyConfig{})
	require.True(t, errors.HasCategory(err, errors.CategoryConfig))
}

func TestNewNATSNotifierUnreachableServer(t *testing.T) {
	_, err := NewNATSNotifier(config.NotifyConfig{NATSURL: "nats://127.0.0.1:1", Timeout: "200ms"})
	require.Error(t, err)
	require.True(t, errors.HasCategory(err, errors.CategoryNetwork))
}
