// Package wire implements the binary framing used by the Douyin webcast push
// service: an outer protobuf PushFrame whose payload is a gzip-compressed
// Response carrying the individual webcast messages. The schema is
// reverse-engineered, so decoding is written directly against the protobuf
// wire format and skips any field it does not know about.
//
// All functions in this package are pure and safe for concurrent use.
package wire

import (
	"bytes"
	"compress/gzip"
	"io"

	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Sentinel errors returned by the decoding functions. Callers are expected to
// match them with errors.Cause or errors.Is; the returned errors carry
// additional context on top of these.
var (
	// ErrMalformedFrame indicates bytes that cannot be parsed as a PushFrame.
	ErrMalformedFrame = errors.New("malformed transport frame")

	// ErrDecompression indicates a push payload that is not valid gzip data.
	ErrDecompression = errors.New("envelope decompression failed")

	// ErrMalformedEnvelope indicates decompressed bytes that cannot be parsed
	// as a Response envelope.
	ErrMalformedEnvelope = errors.New("malformed envelope")
)

// heartbeatMarker is the 2-byte payload the peer uses to recognize
// keep-alive frames.
var heartbeatMarker = []byte("hb")

// Header is one key/value pair of a PushFrame's header list.
type Header struct {
	Key   string
	Value string
}

// Frame is the outer transport frame (PushFrame on the wire). It is used both
// for inbound pushes and for the outbound heartbeat and ack frames. Payload is
// opaque at this level: raw bytes for heartbeats, a compressed envelope for
// pushes.
type Frame struct {
	SeqID           uint64
	LogID           uint64
	Service         uint64
	Method          uint64
	Headers         []Header
	PayloadEncoding string
	PayloadType     string
	Payload         []byte
}

// SubMessage is one typed unit of push content. Method selects the payload
// schema; payloads for unknown methods are ignored by the layer above.
type SubMessage struct {
	Method  string
	Payload []byte
	MsgID   int64
	MsgType int32
	Offset  int64
}

// Envelope is the decompressed Response inside a push frame's payload.
// Messages preserves arrival order.
type Envelope struct {
	Messages          []SubMessage
	Cursor            string
	FetchInterval     uint64
	Now               uint64
	InternalExt       string
	FetchType         uint32
	HeartbeatDuration uint64
	NeedAck           bool
	PushServer        string
	LiveCursor        string
	HistoryNoMore     bool
}

// DecodeFrame parses b as a PushFrame. It returns an error wrapping
// ErrMalformedFrame if b is not a well-formed protobuf message; no partial
// frame is returned in that case.
func DecodeFrame(b []byte) (*Frame, error) {
	var f Frame
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(ErrMalformedFrame, "invalid field tag")
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.VarintType:
			f.SeqID, n = protowire.ConsumeVarint(b)
		case num == 2 && typ == protowire.VarintType:
			f.LogID, n = protowire.ConsumeVarint(b)
		case num == 3 && typ == protowire.VarintType:
			f.Service, n = protowire.ConsumeVarint(b)
		case num == 4 && typ == protowire.VarintType:
			f.Method, n = protowire.ConsumeVarint(b)
		case num == 5 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				h, err := decodeHeader(v)
				if err != nil {
					return nil, err
				}
				f.Headers = append(f.Headers, h)
			}
		case num == 6 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			f.PayloadEncoding = string(v)
		case num == 7 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			f.PayloadType = string(v)
		case num == 8 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			f.Payload = append([]byte(nil), v...)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, errors.Wrapf(ErrMalformedFrame, "invalid value for field %d", num)
		}
		b = b[n:]
	}
	return &f, nil
}

func decodeHeader(b []byte) (Header, error) {
	var h Header
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return h, errors.Wrap(ErrMalformedFrame, "invalid header tag")
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			h.Key = string(v)
		case num == 2 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			h.Value = string(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return h, errors.Wrap(ErrMalformedFrame, "invalid header value")
		}
		b = b[n:]
	}
	return h, nil
}

// DecodeEnvelope decompresses and parses the payload of a push frame.
func DecodeEnvelope(f *Frame) (*Envelope, error) {
	zr, err := gzip.NewReader(bytes.NewReader(f.Payload))
	if err != nil {
		return nil, errors.Wrap(ErrDecompression, err.Error())
	}
	raw, err := io.ReadAll(zr)
	if cerr := zr.Close(); err == nil {
		err = cerr
	}
	if err != nil {
		return nil, errors.Wrap(ErrDecompression, err.Error())
	}
	return decodeResponse(raw)
}

func decodeResponse(b []byte) (*Envelope, error) {
	var e Envelope
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return nil, errors.Wrap(ErrMalformedEnvelope, "invalid field tag")
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			if n >= 0 {
				m, err := decodeSubMessage(v)
				if err != nil {
					return nil, err
				}
				e.Messages = append(e.Messages, m)
			}
		case num == 2 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			e.Cursor = string(v)
		case num == 3 && typ == protowire.VarintType:
			e.FetchInterval, n = protowire.ConsumeVarint(b)
		case num == 4 && typ == protowire.VarintType:
			e.Now, n = protowire.ConsumeVarint(b)
		case num == 5 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			e.InternalExt = string(v)
		case num == 6 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			e.FetchType = uint32(v)
		case num == 8 && typ == protowire.VarintType:
			e.HeartbeatDuration, n = protowire.ConsumeVarint(b)
		case num == 9 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			e.NeedAck = v != 0
		case num == 10 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			e.PushServer = string(v)
		case num == 11 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			e.LiveCursor = string(v)
		case num == 12 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			e.HistoryNoMore = v != 0
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return nil, errors.Wrapf(ErrMalformedEnvelope, "invalid value for field %d", num)
		}
		b = b[n:]
	}
	return &e, nil
}

func decodeSubMessage(b []byte) (SubMessage, error) {
	var m SubMessage
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return m, errors.Wrap(ErrMalformedEnvelope, "invalid message tag")
		}
		b = b[n:]

		switch {
		case num == 1 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			m.Method = string(v)
		case num == 2 && typ == protowire.BytesType:
			var v []byte
			v, n = protowire.ConsumeBytes(b)
			m.Payload = append([]byte(nil), v...)
		case num == 3 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			m.MsgID = int64(v)
		case num == 4 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			m.MsgType = int32(v)
		case num == 5 && typ == protowire.VarintType:
			var v uint64
			v, n = protowire.ConsumeVarint(b)
			m.Offset = int64(v)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return m, errors.Wrap(ErrMalformedEnvelope, "invalid message value")
		}
		b = b[n:]
	}
	return m, nil
}

// EncodeFrame serializes f as a PushFrame. Zero-valued fields are omitted,
// matching proto3 encoding.
func EncodeFrame(f *Frame) []byte {
	var b []byte
	if f.SeqID != 0 {
		b = protowire.AppendTag(b, 1, protowire.VarintType)
		b = protowire.AppendVarint(b, f.SeqID)
	}
	if f.LogID != 0 {
		b = protowire.AppendTag(b, 2, protowire.VarintType)
		b = protowire.AppendVarint(b, f.LogID)
	}
	if f.Service != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, f.Service)
	}
	if f.Method != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, f.Method)
	}
	for _, h := range f.Headers {
		var hb []byte
		hb = protowire.AppendTag(hb, 1, protowire.BytesType)
		hb = protowire.AppendString(hb, h.Key)
		hb = protowire.AppendTag(hb, 2, protowire.BytesType)
		hb = protowire.AppendString(hb, h.Value)
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendBytes(b, hb)
	}
	if f.PayloadEncoding != "" {
		b = protowire.AppendTag(b, 6, protowire.BytesType)
		b = protowire.AppendString(b, f.PayloadEncoding)
	}
	if f.PayloadType != "" {
		b = protowire.AppendTag(b, 7, protowire.BytesType)
		b = protowire.AppendString(b, f.PayloadType)
	}
	if len(f.Payload) > 0 {
		b = protowire.AppendTag(b, 8, protowire.BytesType)
		b = protowire.AppendBytes(b, f.Payload)
	}
	return b
}

// EncodeHeartbeatFrame returns the canned keep-alive frame: a PushFrame whose
// payload is the literal "hb" marker. This is the only frame shape the
// heartbeat path ever sends.
func EncodeHeartbeatFrame() []byte {
	return EncodeFrame(&Frame{Payload: heartbeatMarker})
}

// EncodeAckFrame returns the acknowledgement frame for a push identified by
// logID, echoing the envelope's internal_ext string as the payload.
func EncodeAckFrame(logID uint64, internalExt string) []byte {
	return EncodeFrame(&Frame{
		LogID:       logID,
		PayloadType: "ack",
		Payload:     []byte(internalExt),
	})
}

// EncodeEnvelope serializes e as a Response and gzip-compresses it, producing
// bytes suitable for a push frame's payload. The live service is the normal
// producer of envelopes; this encoder exists so tests and fake servers can
// construct inbound traffic.
func EncodeEnvelope(e *Envelope) ([]byte, error) {
	var b []byte
	for _, m := range e.Messages {
		var mb []byte
		if m.Method != "" {
			mb = protowire.AppendTag(mb, 1, protowire.BytesType)
			mb = protowire.AppendString(mb, m.Method)
		}
		if len(m.Payload) > 0 {
			mb = protowire.AppendTag(mb, 2, protowire.BytesType)
			mb = protowire.AppendBytes(mb, m.Payload)
		}
		if m.MsgID != 0 {
			mb = protowire.AppendTag(mb, 3, protowire.VarintType)
			mb = protowire.AppendVarint(mb, uint64(m.MsgID))
		}
		if m.MsgType != 0 {
			mb = protowire.AppendTag(mb, 4, protowire.VarintType)
			mb = protowire.AppendVarint(mb, uint64(m.MsgType))
		}
		if m.Offset != 0 {
			mb = protowire.AppendTag(mb, 5, protowire.VarintType)
			mb = protowire.AppendVarint(mb, uint64(m.Offset))
		}
		b = protowire.AppendTag(b, 1, protowire.BytesType)
		b = protowire.AppendBytes(b, mb)
	}
	if e.Cursor != "" {
		b = protowire.AppendTag(b, 2, protowire.BytesType)
		b = protowire.AppendString(b, e.Cursor)
	}
	if e.FetchInterval != 0 {
		b = protowire.AppendTag(b, 3, protowire.VarintType)
		b = protowire.AppendVarint(b, e.FetchInterval)
	}
	if e.Now != 0 {
		b = protowire.AppendTag(b, 4, protowire.VarintType)
		b = protowire.AppendVarint(b, e.Now)
	}
	if e.InternalExt != "" {
		b = protowire.AppendTag(b, 5, protowire.BytesType)
		b = protowire.AppendString(b, e.InternalExt)
	}
	if e.FetchType != 0 {
		b = protowire.AppendTag(b, 6, protowire.VarintType)
		b = protowire.AppendVarint(b, uint64(e.FetchType))
	}
	if e.HeartbeatDuration != 0 {
		b = protowire.AppendTag(b, 8, protowire.VarintType)
		b = protowire.AppendVarint(b, e.HeartbeatDuration)
	}
	if e.NeedAck {
		b = protowire.AppendTag(b, 9, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}
	if e.PushServer != "" {
		b = protowire.AppendTag(b, 10, protowire.BytesType)
		b = protowire.AppendString(b, e.PushServer)
	}
	if e.LiveCursor != "" {
		b = protowire.AppendTag(b, 11, protowire.BytesType)
		b = protowire.AppendString(b, e.LiveCursor)
	}
	if e.HistoryNoMore {
		b = protowire.AppendTag(b, 12, protowire.VarintType)
		b = protowire.AppendVarint(b, 1)
	}

	var buf bytes.Buffer
	zw := gzip.NewWriter(&buf)
	if _, err := zw.Write(b); err != nil {
		return nil, errors.Wrap(err, "gzip write failed")
	}
	if err := zw.Close(); err != nil {
		return nil, errors.Wrap(err, "gzip close failed")
	}
	return buf.Bytes(), nil
}
