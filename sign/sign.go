// Package sign computes the signature query parameter required to open a
// webcast push connection. The actual signing algorithm is a vendor-supplied
// JavaScript routine treated as a black box: this package canonicalizes the
// connection parameters, digests them, and hands the digest to the script
// running in an embedded interpreter.
package sign

import (
	"crypto/md5"
	"encoding/hex"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/robertkrimen/otto"
)

// Signer produces the signature string for a fully-built push URL.
type Signer interface {
	Sign(pushURL string) (string, error)
}

// signedParams is the ordered parameter subset the signature covers. The
// order is part of the contract with the vendor script.
var signedParams = []string{
	"live_id", "aid", "version_code", "webcast_sdk_version",
	"room_id", "sub_room_id", "sub_channel_id", "did_rule",
	"user_unique_id", "device_platform", "device_type", "ac",
	"identity",
}

// Digest canonicalizes the signed parameter subset of pushURL's query as
// comma-separated k=v pairs (missing parameters contribute empty values) and
// returns the hex md5 of the result. This is the string the vendor script
// signs.
func Digest(pushURL string) (string, error) {
	u, err := url.Parse(pushURL)
	if err != nil {
		return "", errors.Wrap(err, "parse push url")
	}
	q := u.Query()

	pairs := make([]string, 0, len(signedParams))
	for _, k := range signedParams {
		pairs = append(pairs, k+"="+q.Get(k))
	}

	sum := md5.Sum([]byte(strings.Join(pairs, ",")))
	return hex.EncodeToString(sum[:]), nil
}

// ScriptSigner runs a vendor-supplied signing script in an embedded
// JavaScript interpreter. The script must define a get_sign(digest) function
// returning the signature string; its internals are opaque to this package.
type ScriptSigner struct {
	mu sync.Mutex // the interpreter is not safe for concurrent use
	vm *otto.Otto
}

// LoadScript reads and evaluates the signing script at path.
func LoadScript(path string) (*ScriptSigner, error) {
	src, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.Wrap(err, "read sign script")
	}
	return NewScriptSigner(string(src))
}

// NewScriptSigner evaluates the given script source.
func NewScriptSigner(src string) (*ScriptSigner, error) {
	vm := otto.New()
	if _, err := vm.Run(src); err != nil {
		return nil, errors.Wrap(err, "evaluate sign script")
	}
	return &ScriptSigner{vm: vm}, nil
}

// Sign implements Signer.
func (s *ScriptSigner) Sign(pushURL string) (string, error) {
	digest, err := Digest(pushURL)
	if err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	v, err := s.vm.Call("get_sign", nil, digest)
	if err != nil {
		return "", errors.Wrap(err, "get_sign call failed")
	}
	sig, err := v.ToString()
	if err != nil {
		return "", errors.Wrap(err, "get_sign returned a non-string")
	}
	return sig, nil
}
