package douyin

import (
	"bytes"
	"context"
	"testing"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/encoding/protowire"

	"github.com/zlowly/AsyncDouyinLiveWebFetcher/messages"
)

func chatPayload(nick, content string) []byte {
	var u []byte
	u = protowire.AppendTag(u, 3, protowire.BytesType)
	u = protowire.AppendString(u, nick)

	var b []byte
	b = protowire.AppendTag(b, 2, protowire.BytesType)
	b = protowire.AppendBytes(b, u)
	b = protowire.AppendTag(b, 3, protowire.BytesType)
	b = protowire.AppendString(b, content)
	return b
}

func statusPayload(status uint64) []byte {
	var b []byte
	b = protowire.AppendTag(b, 2, protowire.VarintType)
	b = protowire.AppendVarint(b, status)
	return b
}

func TestDefaultHandlersCoverKnownMethods(t *testing.T) {
	table := DefaultHandlers(zerolog.Nop())
	for _, method := range []string{
		messages.MethodChat, messages.MethodGift, messages.MethodLike,
		messages.MethodMember, messages.MethodSocial, messages.MethodRoomUserSeq,
		messages.MethodFansclub, messages.MethodControl, messages.MethodEmojiChat,
		messages.MethodRoomStats, messages.MethodRoom, messages.MethodRoomRank,
		messages.MethodRoomStreamAdaptation,
	} {
		require.Contains(t, table, method)
	}
	require.Len(t, table, 13)
}

func TestChatHandlerEmitsOneRecord(t *testing.T) {
	var buf bytes.Buffer
	table := DefaultHandlers(zerolog.New(&buf))

	err := table[messages.MethodChat](context.Background(), chatPayload("viewer", "hello"))
	require.NoError(t, err)

	lines := bytes.Count(bytes.TrimSpace(buf.Bytes()), []byte("\n")) + 1
	require.Equal(t, 1, lines, "one emission per invocation")
	require.Contains(t, buf.String(), `"user":"viewer"`)
	require.Contains(t, buf.String(), `"content":"hello"`)
	require.Contains(t, buf.String(), `"method":"WebcastChatMessage"`)
}

func TestControlHandlerRequestsTermination(t *testing.T) {
	table := DefaultHandlers(zerolog.Nop())

	err := table[messages.MethodControl](context.Background(), statusPayload(messages.ControlStatusEnded))
	require.Error(t, err)
	require.True(t, errors.Is(err, ErrLiveEnded))

	err = table[messages.MethodControl](context.Background(), statusPayload(1))
	require.NoError(t, err)
}

func TestHandlerRejectsMalformedPayload(t *testing.T) {
	table := DefaultHandlers(zerolog.Nop())

	err := table[messages.MethodGift](context.Background(), []byte{0xff, 0xff})
	require.Error(t, err)
}
