package douyin

import (
	"context"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zlowly/AsyncDouyinLiveWebFetcher/messages"
)

// genderNames maps the wire gender codes to display strings; 0 means the
// viewer keeps it private.
var genderNames = []string{"保密", "男", "女"}

func genderName(g uint32) string {
	if int(g) < len(genderNames) {
		return genderNames[g]
	}
	return genderNames[0]
}

// eventHandlers emits one structured record per webcast message to the event
// sink, mirroring what a viewer would see in the room. It is the default
// handler set; callers with other needs register their own table via
// NewDispatcher.
type eventHandlers struct {
	events zerolog.Logger
}

// DefaultHandlers returns the built-in method→handler table: every known
// webcast method parsed and emitted as a structured event record, with the
// control handler additionally requesting termination when the live ends.
func DefaultHandlers(events zerolog.Logger) map[string]Handler {
	h := &eventHandlers{events: events}
	return map[string]Handler{
		messages.MethodChat:                 h.chat,
		messages.MethodGift:                 h.gift,
		messages.MethodLike:                 h.like,
		messages.MethodMember:               h.member,
		messages.MethodSocial:               h.social,
		messages.MethodRoomUserSeq:          h.roomUserSeq,
		messages.MethodFansclub:             h.fansclub,
		messages.MethodControl:              h.control,
		messages.MethodEmojiChat:            h.emojiChat,
		messages.MethodRoomStats:            h.roomStats,
		messages.MethodRoom:                 h.room,
		messages.MethodRoomRank:             h.roomRank,
		messages.MethodRoomStreamAdaptation: h.roomStreamAdaptation,
	}
}

func (h *eventHandlers) user(e *zerolog.Event, u *messages.User) *zerolog.Event {
	return e.Str("user", u.Nickname).
		Int64("pay_level", u.PayLevel).
		Int32("fans_level", u.FansClubLevel)
}

func (h *eventHandlers) chat(_ context.Context, payload []byte) error {
	m, err := messages.ParseChatMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse chat message")
	}
	h.user(h.events.Info().Str("method", messages.MethodChat), &m.User).
		Str("content", m.Content).
		Msg("聊天")
	return nil
}

func (h *eventHandlers) gift(_ context.Context, payload []byte) error {
	m, err := messages.ParseGiftMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse gift message")
	}
	h.user(h.events.Info().Str("method", messages.MethodGift), &m.User).
		Str("gift", m.GiftName).
		Uint64("combo", m.ComboCount).
		Msg("礼物")
	return nil
}

func (h *eventHandlers) like(_ context.Context, payload []byte) error {
	m, err := messages.ParseLikeMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse like message")
	}
	// Likes arrive in bulk; keep them off the info stream.
	h.user(h.events.Debug().Str("method", messages.MethodLike), &m.User).
		Uint64("count", m.Count).
		Uint64("total", m.Total).
		Msg("点赞")
	return nil
}

func (h *eventHandlers) member(_ context.Context, payload []byte) error {
	m, err := messages.ParseMemberMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse member message")
	}
	h.user(h.events.Info().Str("method", messages.MethodMember), &m.User).
		Str("gender", genderName(m.User.Gender)).
		Msg("进场")
	return nil
}

func (h *eventHandlers) social(_ context.Context, payload []byte) error {
	m, err := messages.ParseSocialMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse social message")
	}
	h.user(h.events.Info().Str("method", messages.MethodSocial), &m.User).
		Msg("关注")
	return nil
}

func (h *eventHandlers) roomUserSeq(_ context.Context, payload []byte) error {
	m, err := messages.ParseRoomUserSeqMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse room user seq message")
	}
	h.events.Info().
		Str("method", messages.MethodRoomUserSeq).
		Uint64("audience", m.Total).
		Uint64("total_viewers", m.TotalPVForAnchor).
		Msg("观众统计")
	return nil
}

func (h *eventHandlers) fansclub(_ context.Context, payload []byte) error {
	m, err := messages.ParseFansclubMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse fansclub message")
	}
	h.events.Info().
		Str("method", messages.MethodFansclub).
		Str("content", m.Content).
		Msg("粉丝团")
	return nil
}

// control watches room lifecycle signals; a status of ControlStatusEnded ends
// the session.
func (h *eventHandlers) control(_ context.Context, payload []byte) error {
	m, err := messages.ParseControlMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse control message")
	}
	h.events.Info().
		Str("method", messages.MethodControl).
		Uint64("status", m.Status).
		Msg("控制")
	if m.Status == messages.ControlStatusEnded {
		return errors.Wrap(ErrLiveEnded, "control status")
	}
	return nil
}

func (h *eventHandlers) emojiChat(_ context.Context, payload []byte) error {
	m, err := messages.ParseEmojiChatMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse emoji chat message")
	}
	h.user(h.events.Info().Str("method", messages.MethodEmojiChat), &m.User).
		Uint64("emoji_id", m.EmojiID).
		Str("content", m.DefaultContent).
		Msg("表情")
	return nil
}

func (h *eventHandlers) room(_ context.Context, payload []byte) error {
	m, err := messages.ParseRoomMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse room message")
	}
	h.events.Debug().
		Str("method", messages.MethodRoom).
		Uint64("room_id", m.Common.RoomID).
		Msg("直播间")
	return nil
}

func (h *eventHandlers) roomStats(_ context.Context, payload []byte) error {
	m, err := messages.ParseRoomStatsMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse room stats message")
	}
	h.events.Info().
		Str("method", messages.MethodRoomStats).
		Str("display", m.DisplayLong).
		Msg("直播间统计")
	return nil
}

func (h *eventHandlers) roomRank(_ context.Context, payload []byte) error {
	m, err := messages.ParseRoomRankMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse room rank message")
	}
	names := make([]string, 0, len(m.Ranks))
	for _, r := range m.Ranks {
		names = append(names, r.User.Nickname)
	}
	h.events.Debug().
		Str("method", messages.MethodRoomRank).
		Strs("ranks", names).
		Msg("排行榜")
	return nil
}

func (h *eventHandlers) roomStreamAdaptation(_ context.Context, payload []byte) error {
	m, err := messages.ParseRoomStreamAdaptationMessage(payload)
	if err != nil {
		return errors.Wrap(err, "parse room stream adaptation message")
	}
	h.events.Debug().
		Str("method", messages.MethodRoomStreamAdaptation).
		Uint64("adaptation_type", m.AdaptationType).
		Msg("流适配")
	return nil
}
