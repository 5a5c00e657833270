package douyin

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zlowly/AsyncDouyinLiveWebFetcher/wire"
)

// ErrLiveEnded is returned by a handler to request session termination, as
// the default control-message handler does when the room reports that the
// live has ended. The receive task translates it into a clean shutdown.
var ErrLiveEnded = errors.New("live has ended")

// Handler consumes one SubMessage payload and produces its observable effect.
// A handler must emit at most one record per invocation and must not block
// indefinitely on its sink. Returning an error other than ErrLiveEnded marks
// the message as failed without affecting the rest of the stream.
type Handler func(ctx context.Context, payload []byte) error

// Dispatcher routes SubMessages to handlers by method tag. The table is fixed
// at construction; unknown tags are silently ignored, which is how new push
// types stay forward compatible.
type Dispatcher struct {
	handlers map[string]Handler
	log      zerolog.Logger
}

// NewDispatcher builds a dispatcher over the given method→handler table. The
// table is copied; later mutation of the argument has no effect.
func NewDispatcher(log zerolog.Logger, table map[string]Handler) *Dispatcher {
	handlers := make(map[string]Handler, len(table))
	for method, h := range table {
		handlers[method] = h
	}
	return &Dispatcher{handlers: handlers, log: log}
}

// Dispatch invokes the handler registered for m's method tag, if any.
// Handler failures, including panics, are logged with the offending tag and
// contained: they never abort processing of other messages. The only error
// Dispatch returns is ErrLiveEnded, a handler's request to terminate the
// session.
func (d *Dispatcher) Dispatch(ctx context.Context, m *wire.SubMessage) error {
	h, ok := d.handlers[m.Method]
	if !ok {
		return nil
	}

	err := d.invoke(ctx, h, m.Payload)
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLiveEnded) {
		return err
	}
	d.log.Error().Err(err).Str("method", m.Method).Msg("handler failed")
	return nil
}

func (d *Dispatcher) invoke(ctx context.Context, h Handler, payload []byte) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = errors.Errorf("handler panic: %v", r)
		}
	}()
	return h(ctx, payload)
}
