package messages

import (
	"testing"

	"github.com/pkg/errors"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"
)

func appendVarintField(b []byte, num protowire.Number, v uint64) []byte {
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendBytesField(b []byte, num protowire.Number, v []byte) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, v)
}

func appendStringField(b []byte, num protowire.Number, v string) []byte {
	return appendBytesField(b, num, []byte(v))
}

// buildUser encodes a User embedded message the way the service does,
// including the nested PayGrade and FansClub blocks.
func buildUser(nick string, gender uint32, payLevel int64, fansLevel int32) []byte {
	var u []byte
	u = appendVarintField(u, 1, 999)
	u = appendStringField(u, 3, nick)
	u = appendVarintField(u, 4, uint64(gender))

	var pg []byte
	pg = appendVarintField(pg, 6, uint64(payLevel))
	u = appendBytesField(u, 23, pg)

	var data []byte
	data = appendStringField(data, 1, "club")
	data = appendVarintField(data, 2, uint64(fansLevel))
	var fc []byte
	fc = appendBytesField(fc, 1, data)
	u = appendBytesField(u, 24, fc)

	return u
}

func buildCommon(roomID uint64) []byte {
	var c []byte
	c = appendStringField(c, 1, MethodChat)
	c = appendVarintField(c, 2, 555)
	c = appendVarintField(c, 3, roomID)
	return c
}

func TestParseChatMessage(t *testing.T) {
	var b []byte
	b = appendBytesField(b, 1, buildCommon(740612))
	b = appendBytesField(b, 2, buildUser("viewer-1", 2, 12, 7))
	b = appendStringField(b, 3, "hello stream")

	m, err := ParseChatMessage(b)
	require.NoError(t, err)
	require.Equal(t, uint64(740612), m.Common.RoomID)
	require.Equal(t, "viewer-1", m.User.Nickname)
	require.Equal(t, uint32(2), m.User.Gender)
	require.Equal(t, int64(12), m.User.PayLevel)
	require.Equal(t, int32(7), m.User.FansClubLevel)
	require.Equal(t, "club", m.User.FansClubName)
	require.Equal(t, "hello stream", m.Content)
}

func TestParseGiftMessage(t *testing.T) {
	var gift []byte
	gift = appendVarintField(gift, 5, 3001)
	gift = appendStringField(gift, 16, "Rocket")

	var b []byte
	b = appendVarintField(b, 6, 3)
	b = appendBytesField(b, 7, buildUser("gifter", 1, 30, 0))
	b = appendBytesField(b, 15, gift)

	m, err := ParseGiftMessage(b)
	require.NoError(t, err)
	require.Equal(t, "gifter", m.User.Nickname)
	require.Equal(t, "Rocket", m.GiftName)
	require.Equal(t, uint64(3), m.ComboCount)
}

func TestParseLikeMessage(t *testing.T) {
	var b []byte
	b = appendVarintField(b, 2, 15)
	b = appendVarintField(b, 3, 2048)
	b = appendBytesField(b, 5, buildUser("liker", 0, 1, 0))

	m, err := ParseLikeMessage(b)
	require.NoError(t, err)
	require.Equal(t, uint64(15), m.Count)
	require.Equal(t, uint64(2048), m.Total)
	require.Equal(t, "liker", m.User.Nickname)
}

func TestParseControlMessage(t *testing.T) {
	var b []byte
	b = appendVarintField(b, 2, ControlStatusEnded)

	m, err := ParseControlMessage(b)
	require.NoError(t, err)
	require.Equal(t, uint64(ControlStatusEnded), m.Status)
}

func TestParseRoomUserSeqMessage(t *testing.T) {
	var b []byte
	b = appendVarintField(b, 3, 1234)
	b = appendVarintField(b, 11, 99999)

	m, err := ParseRoomUserSeqMessage(b)
	require.NoError(t, err)
	require.Equal(t, uint64(1234), m.Total)
	require.Equal(t, uint64(99999), m.TotalPVForAnchor)
}

func TestParseRoomRankMessage(t *testing.T) {
	var rank []byte
	rank = appendBytesField(rank, 1, buildUser("top-1", 1, 40, 20))
	rank = appendStringField(rank, 2, "1.2w")

	var b []byte
	b = appendBytesField(b, 2, rank)

	m, err := ParseRoomRankMessage(b)
	require.NoError(t, err)
	require.Len(t, m.Ranks, 1)
	require.Equal(t, "top-1", m.Ranks[0].User.Nickname)
	require.Equal(t, "1.2w", m.Ranks[0].ScoreStr)
}

func TestParseSkipsUnknownFields(t *testing.T) {
	var b []byte
	b = appendStringField(b, 3, "still parsed")
	b = appendStringField(b, 77, "from a future schema")
	b = appendVarintField(b, 78, 1)

	m, err := ParseChatMessage(b)
	require.NoError(t, err)
	require.Equal(t, "still parsed", m.Content)
}

func TestParseMalformedPayload(t *testing.T) {
	cases := map[string][]byte{
		"truncated tag":    {0xf8},
		"truncated varint": {0x10, 0xff},
		"truncated bytes":  {0x1a, 0x20, 0x00},
	}

	for id, in := range cases {
		_, err := ParseChatMessage(in)
		require.Error(t, err, id)
		require.Equal(t, errBadPayload, errors.Cause(err), id)
	}
}
