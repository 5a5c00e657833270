package douyin

import (
	"context"
	"net"
	"net/http"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zlowly/AsyncDouyinLiveWebFetcher/wire"
)

// DefaultHeartbeatInterval is how often the session pings the push service
// when no interval is configured. This is a client configuration constant,
// not part of the wire protocol.
const DefaultHeartbeatInterval = 5 * time.Second

// writeWait bounds every write to the websocket, including the closing
// handshake.
const writeWait = time.Second

// MessageReader is the interface that wraps ReadMessage.
//
// ReadMessage is defined at
// https://godoc.org/github.com/gorilla/websocket#Conn.ReadMessage
type MessageReader interface {
	ReadMessage() (messageType int, p []byte, err error)
}

// MessageWriter is the interface covering the two write paths the session
// uses: data frames for acks and control frames for heartbeat pings.
type MessageWriter interface {
	WriteMessage(messageType int, data []byte) error
	WriteControl(messageType int, data []byte, deadline time.Time) error
}

// Conn is the subset of a websocket connection the session needs. In practice
// this is a *websocket.Conn; tests substitute instrumented fakes.
type Conn interface {
	MessageReader
	MessageWriter
	Close() error
}

// State describes where a session is in its lifecycle.
type State int32

// Session states. A session moves strictly forward: Connecting → Open →
// Closing → Closed.
const (
	Connecting State = iota
	Open
	Closing
	Closed
)

func (s State) String() string {
	switch s {
	case Connecting:
		return "connecting"
	case Open:
		return "open"
	case Closing:
		return "closing"
	case Closed:
		return "closed"
	}
	return "unknown"
}

// Session owns one websocket connection to the webcast push service and the
// two background tasks that service it: a heartbeat loop keeping the
// connection alive and a receive loop pumping inbound frames into dispatch.
type Session struct {
	conn     Conn
	dispatch *Dispatcher
	log      zerolog.Logger
	events   zerolog.Logger

	heartbeatInterval time.Duration

	// sendMu serializes all writes to the connection; the heartbeat and
	// receive tasks share the send path.
	sendMu sync.Mutex

	state     atomic.Int32
	cancel    context.CancelFunc
	closeOnce sync.Once

	// recvGID is the runtime id of the receive task's goroutine, recorded so
	// Close can recognize being called from that task's own stack.
	recvGID atomic.Uint64

	hbDone   chan struct{}
	recvDone chan struct{}
	done     chan struct{}
}

// Option configures a Session before it connects.
type Option func(*Session)

// WithLogger sets the logger for session diagnostics. The default discards
// everything.
func WithLogger(log zerolog.Logger) Option {
	return func(s *Session) { s.log = log }
}

// WithEventLog sets the sink that the default handlers emit structured
// webcast event records to. The default discards everything.
func WithEventLog(events zerolog.Logger) Option {
	return func(s *Session) { s.events = events }
}

// WithHeartbeatInterval overrides DefaultHeartbeatInterval.
func WithHeartbeatInterval(d time.Duration) Option {
	return func(s *Session) { s.heartbeatInterval = d }
}

// WithDispatcher replaces the default dispatch table. Use this to register
// custom handlers; see Dispatcher.
func WithDispatcher(d *Dispatcher) Option {
	return func(s *Session) { s.dispatch = d }
}

// Dial connects to the push service at url, which must already carry the
// signed query parameters, and starts the heartbeat and receive tasks. It
// returns once both tasks are running. If the websocket handshake fails, no
// tasks are started and no resources are held.
//
// Cancelling ctx aborts the handshake and, later, shuts the session down.
func Dial(ctx context.Context, url string, header http.Header, opts ...Option) (*Session, error) {
	s := &Session{
		log:               zerolog.Nop(),
		events:            zerolog.Nop(),
		heartbeatInterval: DefaultHeartbeatInterval,
		hbDone:            make(chan struct{}),
		recvDone:          make(chan struct{}),
		done:              make(chan struct{}),
	}
	s.state.Store(int32(Connecting))
	for _, opt := range opts {
		opt(s)
	}
	if s.dispatch == nil {
		s.dispatch = NewDispatcher(s.log, DefaultHandlers(s.events))
	}

	conn, resp, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	if err != nil {
		if resp != nil {
			return nil, errors.Wrapf(err, "websocket dial failed: %s", resp.Status)
		}
		return nil, errors.Wrap(err, "websocket dial failed")
	}
	s.conn = conn

	ctx, s.cancel = context.WithCancel(ctx)
	s.state.Store(int32(Open))

	go s.heartbeatLoop(ctx)
	go s.receiveLoop(ctx)
	go s.supervise(ctx)

	return s, nil
}

// State reports the session's lifecycle state.
func (s *Session) State() State {
	return State(s.state.Load())
}

// Done is closed once the session has reached Closed: both tasks have exited
// and the connection is shut.
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Close shuts the session down: it requests cancellation of both background
// tasks, closes the connection, and waits for the tasks to exit so that no
// transport I/O and no handler work can happen after it returns. It is
// idempotent, and it is safe to call from inside a dispatched handler: when
// the calling goroutine is the receive task itself, the wait on that task is
// skipped, since it is the caller's own stack. Every other caller blocks
// until both tasks, including any in-flight handler, have finished.
func (s *Session) Close() error {
	s.shutdown()
	<-s.hbDone
	if goroutineID() == s.recvGID.Load() {
		return nil
	}
	<-s.recvDone
	<-s.done
	return nil
}

// shutdown is the signal half of the two-phase close: transition to Closing,
// cancel the task context, and close the transport exactly once.
func (s *Session) shutdown() {
	s.closeOnce.Do(func() {
		s.state.Store(int32(Closing))
		s.cancel()

		s.sendMu.Lock()
		deadline := time.Now().Add(writeWait)
		msg := websocket.FormatCloseMessage(websocket.CloseNormalClosure, "")
		_ = s.conn.WriteControl(websocket.CloseMessage, msg, deadline)
		s.sendMu.Unlock()

		if err := s.conn.Close(); err != nil {
			s.log.Debug().Err(err).Msg("transport close failed")
		}
	})
}

// supervise covers the paths where shutdown is triggered without Close being
// called (parent context cancellation, remote close) and marks the session
// Closed once both tasks have exited.
func (s *Session) supervise(ctx context.Context) {
	<-ctx.Done()
	s.shutdown()
	<-s.hbDone
	<-s.recvDone
	s.state.Store(int32(Closed))
	close(s.done)
}

func (s *Session) heartbeatLoop(ctx context.Context) {
	defer close(s.hbDone)

	ticker := time.NewTicker(s.heartbeatInterval)
	defer ticker.Stop()
	s.sendHeartbeats(ctx, ticker.C)
}

// sendHeartbeats pings the peer once per tick with the canned keep-alive
// frame. A failed send is logged and the loop carries on unless the transport
// has closed underneath it; one lost heartbeat does not end a connection the
// link layer may still recover.
func (s *Session) sendHeartbeats(ctx context.Context, ticks <-chan time.Time) {
	frame := wire.EncodeHeartbeatFrame()
	for {
		if err := s.writeControl(websocket.PingMessage, frame); err != nil {
			if s.State() != Open || isClosedConn(err) {
				return
			}
			s.log.Warn().Err(err).Msg("heartbeat send failed")
		}

		select {
		case <-ctx.Done():
			return
		case <-ticks:
		}
	}
}

func (s *Session) receiveLoop(ctx context.Context) {
	defer close(s.recvDone)
	s.recvGID.Store(goroutineID())

	for {
		if ctx.Err() != nil {
			return
		}

		msgType, data, err := s.conn.ReadMessage()
		if err != nil {
			// A close or error signal from the transport is the normal end
			// of this loop. If it happened without a local Close, shut the
			// rest of the session down too.
			if ctx.Err() == nil {
				s.log.Debug().Err(err).Msg("transport closed")
				s.shutdown()
			}
			return
		}

		switch msgType {
		case websocket.BinaryMessage:
			if err := s.handleBinary(ctx, data); err != nil {
				// The only error that escapes handleBinary is a handler's
				// termination request.
				s.shutdown()
				return
			}
		case websocket.TextMessage:
			// Reserved by the protocol; nothing is currently sent as text.
		}
	}
}

// handleBinary processes one inbound push: decode, acknowledge, dispatch.
// Malformed input is logged and dropped; the session stays open. The ack is
// sent before any handler runs so slow handlers cannot starve it.
func (s *Session) handleBinary(ctx context.Context, data []byte) error {
	frame, err := wire.DecodeFrame(data)
	if err != nil {
		s.log.Warn().Err(err).Msg("dropping unparseable frame")
		return nil
	}

	env, err := wire.DecodeEnvelope(frame)
	if err != nil {
		s.log.Warn().Err(err).Uint64("log_id", frame.LogID).Msg("dropping undecodable envelope")
		return nil
	}

	if env.NeedAck {
		ack := wire.EncodeAckFrame(frame.LogID, env.InternalExt)
		if err := s.writeMessage(websocket.BinaryMessage, ack); err != nil {
			s.log.Warn().Err(err).Uint64("log_id", frame.LogID).Msg("ack send failed")
		}
	}

	for i := range env.Messages {
		if ctx.Err() != nil {
			return nil
		}
		if err := s.dispatch.Dispatch(ctx, &env.Messages[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Session) writeMessage(messageType int, data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.WriteMessage(messageType, data)
}

func (s *Session) writeControl(messageType int, data []byte) error {
	s.sendMu.Lock()
	defer s.sendMu.Unlock()
	return s.conn.WriteControl(messageType, data, time.Now().Add(writeWait))
}

func isClosedConn(err error) bool {
	return errors.Is(err, net.ErrClosed) || errors.Is(err, websocket.ErrCloseSent)
}

// goroutineID returns the runtime's id for the calling goroutine, parsed from
// the header line of its stack dump ("goroutine N [running]:"). The runtime
// exposes no direct accessor; net/http's HTTP/2 internals use the same parse.
func goroutineID() uint64 {
	var buf [64]byte
	header := string(buf[:runtime.Stack(buf[:], false)])
	header = strings.TrimPrefix(header, "goroutine ")
	i := strings.IndexByte(header, ' ')
	if i < 0 {
		return 0
	}
	id, err := strconv.ParseUint(header[:i], 10, 64)
	if err != nil {
		return 0
	}
	return id
}
