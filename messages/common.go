// Package messages defines the payload schemas for the known webcast push
// methods and the Parse functions that decode them. Like package wire, the
// schemas are reverse-engineered: only the fields this client surfaces are
// decoded, everything else is skipped, and unknown methods have no schema
// here at all.
package messages

import (
	"github.com/pkg/errors"
	"google.golang.org/protobuf/encoding/protowire"
)

// Method tags carried by SubMessages. Each tag selects one of the Parse
// functions in this package.
const (
	MethodChat                 = "WebcastChatMessage"
	MethodGift                 = "WebcastGiftMessage"
	MethodLike                 = "WebcastLikeMessage"
	MethodMember               = "WebcastMemberMessage"
	MethodSocial               = "WebcastSocialMessage"
	MethodRoomUserSeq          = "WebcastRoomUserSeqMessage"
	MethodFansclub             = "WebcastFansclubMessage"
	MethodControl              = "WebcastControlMessage"
	MethodEmojiChat            = "WebcastEmojiChatMessage"
	MethodRoomStats            = "WebcastRoomStatsMessage"
	MethodRoom                 = "WebcastRoomMessage"
	MethodRoomRank             = "WebcastRoomRankMessage"
	MethodRoomStreamAdaptation = "WebcastRoomStreamAdaptationMessage"
)

// errBadPayload is the cause of every parse failure in this package.
var errBadPayload = errors.New("malformed message payload")

// Common is the header block shared by all webcast messages.
type Common struct {
	Method     string
	MsgID      uint64
	RoomID     uint64
	CreateTime uint64
}

// User identifies the viewer a message originates from, along with the
// grade/fan-club levels the display layer renders next to the name.
type User struct {
	ID            uint64
	ShortID       uint64
	Nickname      string
	Gender        uint32
	Level         uint32
	PayLevel      int64
	FansClubName  string
	FansClubLevel int32
}

// field is one decoded top-level protobuf field: a varint or a length-
// delimited byte slice depending on the wire type.
type field struct {
	num   protowire.Number
	typ   protowire.Type
	varin uint64
	bytes []byte
}

// walk iterates the top-level fields of b, invoking visit for each varint or
// bytes field and silently skipping other wire types. It is the backbone of
// every decoder in this package.
func walk(b []byte, visit func(f field)) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return errors.Wrap(errBadPayload, "invalid field tag")
		}
		b = b[n:]

		switch typ {
		case protowire.VarintType:
			v, m := protowire.ConsumeVarint(b)
			if m < 0 {
				return errors.Wrapf(errBadPayload, "invalid varint for field %d", num)
			}
			visit(field{num: num, typ: typ, varin: v})
			n = m
		case protowire.BytesType:
			v, m := protowire.ConsumeBytes(b)
			if m < 0 {
				return errors.Wrapf(errBadPayload, "invalid bytes for field %d", num)
			}
			visit(field{num: num, typ: typ, bytes: v})
			n = m
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return errors.Wrapf(errBadPayload, "invalid value for field %d", num)
			}
		}
		b = b[n:]
	}
	return nil
}

func decodeCommon(b []byte) (Common, error) {
	var c Common
	err := walk(b, func(f field) {
		switch f.num {
		case 1:
			c.Method = string(f.bytes)
		case 2:
			c.MsgID = f.varin
		case 3:
			c.RoomID = f.varin
		case 4:
			c.CreateTime = f.varin
		}
	})
	return c, err
}

func decodeUser(b []byte) (User, error) {
	var u User
	var ferr error
	err := walk(b, func(f field) {
		switch f.num {
		case 1:
			u.ID = f.varin
		case 2:
			u.ShortID = f.varin
		case 3:
			u.Nickname = string(f.bytes)
		case 4:
			u.Gender = uint32(f.varin)
		case 6:
			u.Level = uint32(f.varin)
		case 23: // PayGrade
			if err := walk(f.bytes, func(g field) {
				if g.num == 6 {
					u.PayLevel = int64(g.varin)
				}
			}); err != nil && ferr == nil {
				ferr = err
			}
		case 24: // FansClub
			if err := walk(f.bytes, func(g field) {
				if g.num != 1 { // FansClub.Data
					return
				}
				if err := walk(g.bytes, func(d field) {
					switch d.num {
					case 1:
						u.FansClubName = string(d.bytes)
					case 2:
						u.FansClubLevel = int32(d.varin)
					}
				}); err != nil && ferr == nil {
					ferr = err
				}
			}); err != nil && ferr == nil {
				ferr = err
			}
		}
	})
	if err == nil {
		err = ferr
	}
	return u, err
}
