package douyin

import (
	"net/http"
	"sync"

	"github.com/gorilla/websocket"

	"github.com/zlowly/AsyncDouyinLiveWebFetcher/wire"
)

// PushServer is a fake webcast push endpoint for use with httptest. It
// upgrades incoming requests to websocket, pushes caller-supplied frames, and
// records the pings and ack frames the client sends back, so tests can assert
// on the client's half of the protocol.
type PushServer struct {
	// Pings receives the payload of every ping control frame from the client.
	Pings chan []byte

	// Acks receives every decoded binary frame the client writes, which in
	// this protocol is only ever acks.
	Acks chan *wire.Frame

	mu     sync.Mutex
	conns  []*websocket.Conn
	queued [][]byte
}

// NewPushServer creates a PushServer with buffered recording channels.
func NewPushServer() *PushServer {
	return &PushServer{
		Pings: make(chan []byte, 64),
		Acks:  make(chan *wire.Frame, 64),
	}
}

// Push sends an encoded frame to every connected client, or queues it until a
// client connects.
func (ps *PushServer) Push(frame []byte) {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	if len(ps.conns) == 0 {
		ps.queued = append(ps.queued, frame)
		return
	}
	for _, c := range ps.conns {
		_ = c.WriteMessage(websocket.BinaryMessage, frame)
	}
}

// PushEnvelope encodes env into a push frame with the given logID and sends
// it like Push.
func (ps *PushServer) PushEnvelope(logID uint64, env *wire.Envelope) error {
	payload, err := wire.EncodeEnvelope(env)
	if err != nil {
		return err
	}
	ps.Push(wire.EncodeFrame(&wire.Frame{
		LogID:       logID,
		PayloadType: "msg",
		Payload:     payload,
	}))
	return nil
}

// Close closes every connection the server has accepted, which clients
// observe as a transport close, and stops the per-connection readers.
func (ps *PushServer) Close() error {
	ps.mu.Lock()
	defer ps.mu.Unlock()
	var first error
	for _, c := range ps.conns {
		if err := c.Close(); err != nil && first == nil {
			first = err
		}
	}
	ps.conns = nil
	return first
}

// ServeHTTP implements http.Handler.
//
// If the websocket upgrade fails, it panics.
func (ps *PushServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	upgrader := websocket.Upgrader{}
	c, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		panic(err)
	}

	c.SetPingHandler(func(data string) error {
		ps.Pings <- []byte(data)
		return nil
	})

	ps.mu.Lock()
	ps.conns = append(ps.conns, c)
	queued := ps.queued
	ps.queued = nil
	ps.mu.Unlock()

	for _, frame := range queued {
		_ = c.WriteMessage(websocket.BinaryMessage, frame)
	}

	go func() {
		for {
			msgType, data, rerr := c.ReadMessage()
			if rerr != nil {
				return
			}
			if msgType != websocket.BinaryMessage {
				continue
			}
			if f, ferr := wire.DecodeFrame(data); ferr == nil {
				ps.Acks <- f
			}
		}
	}()
}
