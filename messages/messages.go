package messages

// ControlMessage status values observed on the wire.
const (
	// ControlStatusEnded means the live room has finished streaming and the
	// session should terminate.
	ControlStatusEnded = 3
)

// ChatMessage is a viewer chat line.
type ChatMessage struct {
	Common  Common
	User    User
	Content string
}

// ParseChatMessage decodes a WebcastChatMessage payload.
func ParseChatMessage(b []byte) (*ChatMessage, error) {
	var m ChatMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			return setUser(&m.User, f)
		case 3:
			m.Content = string(f.bytes)
		}
		return nil
	})
	return &m, err
}

// GiftMessage reports a gift, possibly part of a combo.
type GiftMessage struct {
	Common      Common
	User        User
	GiftName    string
	GroupCount  uint64
	RepeatCount uint64
	ComboCount  uint64
}

// ParseGiftMessage decodes a WebcastGiftMessage payload.
func ParseGiftMessage(b []byte) (*GiftMessage, error) {
	var m GiftMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 4:
			m.GroupCount = f.varin
		case 5:
			m.RepeatCount = f.varin
		case 6:
			m.ComboCount = f.varin
		case 7:
			return setUser(&m.User, f)
		case 15: // GiftStruct
			return walk(f.bytes, func(g field) {
				if g.num == 16 {
					m.GiftName = string(g.bytes)
				}
			})
		}
		return nil
	})
	return &m, err
}

// LikeMessage reports likes tapped by one viewer.
type LikeMessage struct {
	Common Common
	User   User
	Count  uint64
	Total  uint64
}

// ParseLikeMessage decodes a WebcastLikeMessage payload.
func ParseLikeMessage(b []byte) (*LikeMessage, error) {
	var m LikeMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			m.Count = f.varin
		case 3:
			m.Total = f.varin
		case 5:
			return setUser(&m.User, f)
		}
		return nil
	})
	return &m, err
}

// MemberMessage reports a viewer entering the room.
type MemberMessage struct {
	Common      Common
	User        User
	MemberCount uint64
}

// ParseMemberMessage decodes a WebcastMemberMessage payload.
func ParseMemberMessage(b []byte) (*MemberMessage, error) {
	var m MemberMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			return setUser(&m.User, f)
		case 3:
			m.MemberCount = f.varin
		}
		return nil
	})
	return &m, err
}

// SocialMessage reports a follow or share action.
type SocialMessage struct {
	Common      Common
	User        User
	ShareType   uint64
	Action      uint64
	FollowCount uint64
}

// ParseSocialMessage decodes a WebcastSocialMessage payload.
func ParseSocialMessage(b []byte) (*SocialMessage, error) {
	var m SocialMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			return setUser(&m.User, f)
		case 3:
			m.ShareType = f.varin
		case 4:
			m.Action = f.varin
		case 6:
			m.FollowCount = f.varin
		}
		return nil
	})
	return &m, err
}

// RoomUserSeqMessage carries audience statistics: the current viewer count and
// the cumulative view count for the stream.
type RoomUserSeqMessage struct {
	Common           Common
	Total            uint64
	TotalPVForAnchor uint64
}

// ParseRoomUserSeqMessage decodes a WebcastRoomUserSeqMessage payload.
func ParseRoomUserSeqMessage(b []byte) (*RoomUserSeqMessage, error) {
	var m RoomUserSeqMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 3:
			m.Total = f.varin
		case 11:
			m.TotalPVForAnchor = f.varin
		}
		return nil
	})
	return &m, err
}

// FansclubMessage reports fan-club activity (joins, level-ups).
type FansclubMessage struct {
	Common  Common
	Type    uint64
	Content string
	User    User
}

// ParseFansclubMessage decodes a WebcastFansclubMessage payload.
func ParseFansclubMessage(b []byte) (*FansclubMessage, error) {
	var m FansclubMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			m.Type = f.varin
		case 3:
			m.Content = string(f.bytes)
		case 4:
			return setUser(&m.User, f)
		}
		return nil
	})
	return &m, err
}

// ControlMessage carries room lifecycle signals; Status 3 means the live has
// ended.
type ControlMessage struct {
	Common Common
	Status uint64
}

// ParseControlMessage decodes a WebcastControlMessage payload.
func ParseControlMessage(b []byte) (*ControlMessage, error) {
	var m ControlMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			m.Status = f.varin
		}
		return nil
	})
	return &m, err
}

// EmojiChatMessage is a chat line consisting of a large sticker emoji.
type EmojiChatMessage struct {
	Common         Common
	User           User
	EmojiID        uint64
	DefaultContent string
}

// ParseEmojiChatMessage decodes a WebcastEmojiChatMessage payload.
func ParseEmojiChatMessage(b []byte) (*EmojiChatMessage, error) {
	var m EmojiChatMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			return setUser(&m.User, f)
		case 3:
			m.EmojiID = f.varin
		case 5:
			m.DefaultContent = string(f.bytes)
		}
		return nil
	})
	return &m, err
}

// RoomMessage carries room-level announcements.
type RoomMessage struct {
	Common  Common
	Content string
}

// ParseRoomMessage decodes a WebcastRoomMessage payload.
func ParseRoomMessage(b []byte) (*RoomMessage, error) {
	var m RoomMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			m.Content = string(f.bytes)
		}
		return nil
	})
	return &m, err
}

// RoomStatsMessage carries the room's display statistics strings.
type RoomStatsMessage struct {
	Common      Common
	DisplayLong string
	Total       uint64
}

// ParseRoomStatsMessage decodes a WebcastRoomStatsMessage payload.
func ParseRoomStatsMessage(b []byte) (*RoomStatsMessage, error) {
	var m RoomStatsMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 4:
			m.DisplayLong = string(f.bytes)
		case 9:
			m.Total = f.varin
		}
		return nil
	})
	return &m, err
}

// RoomRank is one entry of a room contribution ranking.
type RoomRank struct {
	User     User
	ScoreStr string
}

// RoomRankMessage carries the current contribution ranking.
type RoomRankMessage struct {
	Common Common
	Ranks  []RoomRank
}

// ParseRoomRankMessage decodes a WebcastRoomRankMessage payload.
func ParseRoomRankMessage(b []byte) (*RoomRankMessage, error) {
	var m RoomRankMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			var r RoomRank
			err := walk(f.bytes, func(g field) {
				switch g.num {
				case 1:
					if u, uerr := decodeUser(g.bytes); uerr == nil {
						r.User = u
					}
				case 2:
					r.ScoreStr = string(g.bytes)
				}
			})
			if err != nil {
				return err
			}
			m.Ranks = append(m.Ranks, r)
		}
		return nil
	})
	return &m, err
}

// RoomStreamAdaptationMessage reports stream layout adaptation changes.
type RoomStreamAdaptationMessage struct {
	Common         Common
	AdaptationType uint64
}

// ParseRoomStreamAdaptationMessage decodes a
// WebcastRoomStreamAdaptationMessage payload.
func ParseRoomStreamAdaptationMessage(b []byte) (*RoomStreamAdaptationMessage, error) {
	var m RoomStreamAdaptationMessage
	err := parse(b, func(f field) error {
		switch f.num {
		case 1:
			return setCommon(&m.Common, f)
		case 2:
			m.AdaptationType = f.varin
		}
		return nil
	})
	return &m, err
}

// parse is walk with error-returning visitors, for decoders that recurse into
// embedded messages.
func parse(b []byte, visit func(f field) error) error {
	var ferr error
	err := walk(b, func(f field) {
		if ferr == nil {
			ferr = visit(f)
		}
	})
	if err != nil {
		return err
	}
	return ferr
}

func setCommon(dst *Common, f field) error {
	c, err := decodeCommon(f.bytes)
	if err != nil {
		return err
	}
	*dst = c
	return nil
}

func setUser(dst *User, f field) error {
	u, err := decodeUser(f.bytes)
	if err != nil {
		return err
	}
	*dst = u
	return nil
}
