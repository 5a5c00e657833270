package douyin_test

import (
	"context"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"

	douyin "github.com/zlowly/AsyncDouyinLiveWebFetcher"
	"github.com/zlowly/AsyncDouyinLiveWebFetcher/messages"
	"github.com/zlowly/AsyncDouyinLiveWebFetcher/wire"
)

func wsURL(ts *httptest.Server) string {
	return "ws" + strings.TrimPrefix(ts.URL, "http")
}

func dialTestSession(t *testing.T, ps *douyin.PushServer, opts ...douyin.Option) *douyin.Session {
	t.Helper()
	ts := httptest.NewServer(ps)
	t.Cleanup(ts.Close)

	s, err := douyin.Dial(context.Background(), wsURL(ts), nil, opts...)
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func controlPayload(status uint64) []byte {
	// ControlMessage{status: field 2}
	return []byte{0x10, byte(status)}
}

func TestDialFailsCleanly(t *testing.T) {
	_, err := douyin.Dial(context.Background(), "ws://127.0.0.1:1/push", nil)
	require.Error(t, err)
}

func TestSessionSendsHeartbeats(t *testing.T) {
	ps := douyin.NewPushServer()
	s := dialTestSession(t, ps, douyin.WithHeartbeatInterval(10*time.Millisecond))
	require.Equal(t, douyin.Open, s.State())

	for i := 0; i < 3; i++ {
		select {
		case p := <-ps.Pings:
			f, err := wire.DecodeFrame(p)
			require.NoError(t, err)
			require.Equal(t, []byte("hb"), f.Payload)
		case <-time.After(time.Second):
			t.Fatalf("heartbeat %d never arrived", i)
		}
	}
}

func TestSessionAcksBeforeDispatch(t *testing.T) {
	ps := douyin.NewPushServer()

	ackFirst := make(chan bool, 1)
	dispatcher := douyin.NewDispatcher(zerolog.Nop(), map[string]douyin.Handler{
		messages.MethodChat: func(context.Context, []byte) error {
			select {
			case f := <-ps.Acks:
				ackFirst <- f.PayloadType == "ack" &&
					f.LogID == 8001 &&
					string(f.Payload) == "ext-1"
			case <-time.After(time.Second):
				ackFirst <- false
			}
			return nil
		},
	})
	dialTestSession(t, ps, douyin.WithDispatcher(dispatcher))

	require.NoError(t, ps.PushEnvelope(8001, &wire.Envelope{
		NeedAck:     true,
		InternalExt: "ext-1",
		Messages:    []wire.SubMessage{{Method: messages.MethodChat}},
	}))

	select {
	case ok := <-ackFirst:
		require.True(t, ok, "ack must be sent, with the push frame's log_id, before dispatch")
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}
}

func TestSessionSendsOneAckPerPush(t *testing.T) {
	ps := douyin.NewPushServer()
	dialTestSession(t, ps, douyin.WithDispatcher(douyin.NewDispatcher(zerolog.Nop(), nil)))

	for i := uint64(1); i <= 3; i++ {
		require.NoError(t, ps.PushEnvelope(i, &wire.Envelope{
			NeedAck:     true,
			InternalExt: "ext",
			Messages:    []wire.SubMessage{{Method: "WebcastUnknownMessage"}},
		}))
	}

	for i := uint64(1); i <= 3; i++ {
		select {
		case f := <-ps.Acks:
			require.Equal(t, i, f.LogID)
			require.Equal(t, "ack", f.PayloadType)
		case <-time.After(time.Second):
			t.Fatalf("ack %d never arrived", i)
		}
	}
	require.Empty(t, ps.Acks, "exactly one ack per inbound push")
}

func TestSessionSurvivesMalformedPush(t *testing.T) {
	ps := douyin.NewPushServer()

	sawChat := make(chan struct{}, 1)
	dispatcher := douyin.NewDispatcher(zerolog.Nop(), map[string]douyin.Handler{
		messages.MethodChat: func(context.Context, []byte) error {
			sawChat <- struct{}{}
			return nil
		},
	})
	s := dialTestSession(t, ps, douyin.WithDispatcher(dispatcher))

	// A well-formed frame whose payload is not gzip, then a valid push. The
	// stream is ordered, so seeing the second one proves the first was
	// dropped without ending the session.
	ps.Push(wire.EncodeFrame(&wire.Frame{LogID: 13, Payload: []byte("definitely not gzip")}))
	require.NoError(t, ps.PushEnvelope(14, &wire.Envelope{
		Messages: []wire.SubMessage{{Method: messages.MethodChat}},
	}))

	select {
	case <-sawChat:
	case <-time.After(2 * time.Second):
		t.Fatal("session stopped processing after a malformed push")
	}
	require.Equal(t, douyin.Open, s.State())
}

func TestSessionEndsOnControlStatusEnded(t *testing.T) {
	ps := douyin.NewPushServer()
	s := dialTestSession(t, ps)
	require.Equal(t, douyin.Open, s.State())

	require.NoError(t, ps.PushEnvelope(99, &wire.Envelope{
		Messages: []wire.SubMessage{{
			Method:  messages.MethodControl,
			Payload: controlPayload(messages.ControlStatusEnded),
		}},
	}))

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not terminate on control status 3")
	}
	require.Equal(t, douyin.Closed, s.State())
}

func TestSessionCloseFromHandler(t *testing.T) {
	ps := douyin.NewPushServer()

	sessions := make(chan *douyin.Session, 1)
	closed := make(chan struct{})
	dispatcher := douyin.NewDispatcher(zerolog.Nop(), map[string]douyin.Handler{
		messages.MethodControl: func(context.Context, []byte) error {
			_ = (<-sessions).Close() // must not deadlock
			close(closed)
			return nil
		},
	})
	s := dialTestSession(t, ps, douyin.WithDispatcher(dispatcher))
	sessions <- s

	require.NoError(t, ps.PushEnvelope(1, &wire.Envelope{
		Messages: []wire.SubMessage{{Method: messages.MethodControl}},
	}))

	select {
	case <-closed:
	case <-time.After(2 * time.Second):
		t.Fatal("Close deadlocked when called from a handler")
	}

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session never reached Closed")
	}
	require.Equal(t, douyin.Closed, s.State())
}

func TestSessionCloseAwaitsInFlightHandler(t *testing.T) {
	ps := douyin.NewPushServer()

	entered := make(chan struct{})
	release := make(chan struct{})
	dispatcher := douyin.NewDispatcher(zerolog.Nop(), map[string]douyin.Handler{
		messages.MethodChat: func(context.Context, []byte) error {
			close(entered)
			<-release
			return nil
		},
	})
	s := dialTestSession(t, ps, douyin.WithDispatcher(dispatcher))

	require.NoError(t, ps.PushEnvelope(1, &wire.Envelope{
		Messages: []wire.SubMessage{{Method: messages.MethodChat}},
	}))
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("handler never ran")
	}

	closeDone := make(chan struct{})
	go func() {
		_ = s.Close()
		close(closeDone)
	}()

	// Close from another goroutine must block on the dispatched handler.
	select {
	case <-closeDone:
		t.Fatal("Close returned while a handler was still running")
	case <-time.After(100 * time.Millisecond):
	}

	close(release)
	select {
	case <-closeDone:
	case <-time.After(2 * time.Second):
		t.Fatal("Close never returned after the handler completed")
	}
	require.Equal(t, douyin.Closed, s.State())
}

func TestSessionCloseTwice(t *testing.T) {
	ps := douyin.NewPushServer()
	s := dialTestSession(t, ps)

	require.NoError(t, s.Close())
	require.Equal(t, douyin.Closed, s.State())
	require.NoError(t, s.Close())
	require.Equal(t, douyin.Closed, s.State())
}

func TestPushServerCloseDisconnectsClients(t *testing.T) {
	ps := douyin.NewPushServer()
	s := dialTestSession(t, ps)
	require.Equal(t, douyin.Open, s.State())

	require.NoError(t, ps.Close())

	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not observe the server closing")
	}
	require.Equal(t, douyin.Closed, s.State())
}

func TestSessionStopsOnContextCancel(t *testing.T) {
	ps := douyin.NewPushServer()
	ts := httptest.NewServer(ps)
	t.Cleanup(ts.Close)

	ctx, cancel := context.WithCancel(context.Background())
	s, err := douyin.Dial(ctx, wsURL(ts), nil)
	require.NoError(t, err)

	cancel()
	select {
	case <-s.Done():
	case <-time.After(2 * time.Second):
		t.Fatal("session did not stop on context cancellation")
	}
	require.Equal(t, douyin.Closed, s.State())
}
