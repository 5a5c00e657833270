package sign

import (
	"crypto/md5"
	"encoding/hex"
	"testing"

	"github.com/stretchr/testify/require"
)

const testScript = `function get_sign(digest) { return "sig-" + digest; }`

func TestDigestCanonicalization(t *testing.T) {
	u := "wss://example.com/webcast/im/push/v2/?aid=6383&room_id=740612&live_id=1&identity=audience&unrelated=zzz"

	got, err := Digest(u)
	require.NoError(t, err)

	// Parameters appear in the fixed signed order, absent ones as empty
	// values, and the unrelated parameter is excluded.
	canonical := "live_id=1,aid=6383,version_code=,webcast_sdk_version=," +
		"room_id=740612,sub_room_id=,sub_channel_id=,did_rule=," +
		"user_unique_id=,device_platform=,device_type=,ac=,identity=audience"
	sum := md5.Sum([]byte(canonical))
	require.Equal(t, hex.EncodeToString(sum[:]), got)
}

func TestScriptSigner(t *testing.T) {
	s, err := NewScriptSigner(testScript)
	require.NoError(t, err)

	u := "wss://example.com/webcast/im/push/v2/?aid=6383&room_id=1"
	digest, err := Digest(u)
	require.NoError(t, err)

	sig, err := s.Sign(u)
	require.NoError(t, err)
	require.Equal(t, "sig-"+digest, sig)
}

func TestNewScriptSignerBadScript(t *testing.T) {
	_, err := NewScriptSigner("function (")
	require.Error(t, err)
}

func TestSignMissingFunction(t *testing.T) {
	s, err := NewScriptSigner(`var unrelated = 1;`)
	require.NoError(t, err)

	_, err = s.Sign("wss://example.com/?aid=1")
	require.Error(t, err)
}
