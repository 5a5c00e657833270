package douyin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/cookiejar"
	"net/url"
	"regexp"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog"

	"github.com/zlowly/AsyncDouyinLiveWebFetcher/sign"
)

const (
	browserName    = "Mozilla"
	browserVersion = "5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko)" +
		"Chrome/138.0.0.0 Safari/537.36"

	// DefaultUserAgent is the browser identity presented on every request;
	// the service rejects obviously non-browser clients.
	DefaultUserAgent = browserName + "/" + browserVersion

	defaultLiveBase = "https://live.douyin.com/"
	defaultPushBase = "wss://webcast100-ws-web-lq.douyin.com/webcast/im/push/v2/"

	// userUniqueID is the pinned device identity baked into the signed
	// parameter set.
	userUniqueID = "7319483754668557238"

	// acNonce is accepted by the room page as a pre-set anti-bot cookie.
	acNonce = "0123407cc00a9e438deb4"
)

// roomIDPattern finds the numeric room ID inside the escaped JSON blob
// embedded in the live room page.
var roomIDPattern = regexp.MustCompile(`roomId\\":\\"(\d+)\\"`)

// Room is a live room discovered from its public web_rid. It owns the HTTP
// client (and its cookies) used for discovery and can open push Sessions for
// the room.
type Room struct {
	// WebRID is the public room identifier from the live page URL.
	WebRID string

	// ID is the internal numeric room identifier scraped from the page.
	ID string

	client    *http.Client
	signer    sign.Signer
	userAgent string
	liveBase  string
	pushBase  string
	log       zerolog.Logger
}

// RoomOption configures room discovery.
type RoomOption func(*Room)

// WithSigner sets the signature collaborator used when opening a push
// connection. Connect fails without one.
func WithSigner(s sign.Signer) RoomOption {
	return func(r *Room) { r.signer = s }
}

// WithHTTPClient overrides the discovery HTTP client. A cookie jar is added
// if the client has none; the service requires cookies to survive between the
// priming request and the page fetch.
func WithHTTPClient(c *http.Client) RoomOption {
	return func(r *Room) { r.client = c }
}

// WithUserAgent overrides DefaultUserAgent.
func WithUserAgent(ua string) RoomOption {
	return func(r *Room) { r.userAgent = ua }
}

// WithLiveBase overrides the live site base URL. Intended for tests.
func WithLiveBase(u string) RoomOption {
	return func(r *Room) { r.liveBase = u }
}

// WithPushBase overrides the push endpoint base URL. Intended for tests.
func WithPushBase(u string) RoomOption {
	return func(r *Room) { r.pushBase = u }
}

// WithRoomLogger sets the logger for discovery diagnostics.
func WithRoomLogger(log zerolog.Logger) RoomOption {
	return func(r *Room) { r.log = log }
}

// NewRoom resolves webRID to a live room: it primes the site cookies, fetches
// the room page, and extracts the internal room ID. Every step failing is a
// connection-level error; nothing is retained on failure.
func NewRoom(ctx context.Context, webRID string, opts ...RoomOption) (*Room, error) {
	r := &Room{
		WebRID:    webRID,
		userAgent: DefaultUserAgent,
		liveBase:  defaultLiveBase,
		pushBase:  defaultPushBase,
		log:       zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(r)
	}
	if r.client == nil {
		r.client = &http.Client{Timeout: 10 * time.Second}
	}
	if r.client.Jar == nil {
		jar, err := cookiejar.New(nil)
		if err != nil {
			return nil, errors.Wrap(err, "cookie jar creation failed")
		}
		r.client.Jar = jar
	}

	base, err := url.Parse(r.liveBase)
	if err != nil {
		return nil, errors.Wrap(err, "invalid live base url")
	}

	// Prime the session cookies with a plain visit to the site.
	resp, err := r.get(ctx, r.liveBase)
	if err != nil {
		return nil, errors.Wrap(err, "priming request failed")
	}
	drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("priming request failed: %s", resp.Status)
	}

	// The room page only renders for clients carrying an __ac_nonce cookie.
	r.client.Jar.SetCookies(base, []*http.Cookie{{Name: "__ac_nonce", Value: acNonce}})

	pageURL, err := url.JoinPath(r.liveBase, webRID)
	if err != nil {
		return nil, errors.Wrap(err, "room page url construction failed")
	}
	resp, err = r.get(ctx, pageURL)
	if err != nil {
		return nil, errors.Wrap(err, "room page fetch failed")
	}
	body, err := io.ReadAll(resp.Body)
	drain(resp)
	if err != nil {
		return nil, errors.Wrap(err, "room page read failed")
	}
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("room page fetch failed: %s", resp.Status)
	}

	match := roomIDPattern.FindSubmatch(body)
	if match == nil {
		return nil, errors.Errorf("room id not found for web_rid %s", webRID)
	}
	r.ID = string(match[1])
	r.log.Debug().Str("web_rid", webRID).Str("room_id", r.ID).Msg("room resolved")

	return r, nil
}

// RoomInfo is the room status subset of the enter API response.
type RoomInfo struct {
	// RoomStatus is 0 while the room is live.
	RoomStatus int `json:"room_status"`
}

// Info fetches the room's current status from the enter API.
func (r *Room) Info(ctx context.Context) (*RoomInfo, error) {
	resp, err := r.get(ctx, r.enterURL())
	if err != nil {
		return nil, errors.Wrap(err, "room status fetch failed")
	}
	defer drain(resp)
	if resp.StatusCode != http.StatusOK {
		return nil, errors.Errorf("room status fetch failed: %s", resp.Status)
	}

	var parsed struct {
		Data RoomInfo `json:"data"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return nil, errors.Wrap(err, "room status decode failed")
	}
	return &parsed.Data, nil
}

// IsLive reports whether the room is currently streaming.
func (r *Room) IsLive(ctx context.Context) (bool, error) {
	info, err := r.Info(ctx)
	if err != nil {
		return false, err
	}
	return info.RoomStatus == 0, nil
}

// Connect signs a push URL for this room and dials a Session on it. Session
// options pass through to Dial.
func (r *Room) Connect(ctx context.Context, opts ...Option) (*Session, error) {
	if r.signer == nil {
		return nil, errors.New("no signer configured")
	}

	pushURL := r.pushURL(time.Now())
	signature, err := r.signer.Sign(pushURL)
	if err != nil {
		return nil, errors.Wrap(err, "signature generation failed")
	}
	pushURL += "&signature=" + url.QueryEscape(signature)

	header := http.Header{}
	header.Set("User-Agent", r.userAgent)

	s, err := Dial(ctx, pushURL, header, opts...)
	if err != nil {
		return nil, errors.Wrap(err, "push connect failed")
	}
	return s, nil
}

func (r *Room) get(ctx context.Context, u string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, u, nil)
	if err != nil {
		return nil, errors.Wrap(err, "get request creation failed")
	}
	req.Header.Set("User-Agent", r.userAgent)
	return r.client.Do(req)
}

// enterURL builds the webcast/room/web/enter API URL with the browser
// parameter set the web client sends.
func (r *Room) enterURL() string {
	params := url.Values{}
	params.Set("aid", "6383")
	params.Set("app_name", "douyin_web")
	params.Set("live_id", "1")
	params.Set("device_platform", "web")
	params.Set("language", "zh-CN")
	params.Set("enter_from", "web_live")
	params.Set("cookie_enabled", "true")
	params.Set("screen_width", "1920")
	params.Set("screen_height", "1080")
	params.Set("browser_language", "zh-CN")
	params.Set("browser_platform", "Win32")
	params.Set("browser_name", browserName)
	params.Set("browser_version", browserVersion)
	params.Set("web_rid", r.WebRID)
	params.Set("room_id_str", r.ID)
	params.Set("enter_source", "")
	params.Set("is_need_double_stream", "false")
	params.Set("insert_task_id", "")
	params.Set("live_reason", "")
	params.Set("msToken", "")
	params.Set("a_bogus", "")
	return r.liveBase + "webcast/room/web/enter/?" + params.Encode()
}

// pushURL builds the unsigned websocket URL for the push service.
func (r *Room) pushURL(now time.Time) string {
	ts := now.Unix()
	internalExt := fmt.Sprintf(
		"internal_src:dim|wss_push_room_id:%s|wss_push_did:%s|first_req_ms:%d|fetch_time:%d|seq:1|wss_info:0-%d-0-0|wrds_v:7392094459690748497",
		r.ID, userUniqueID, now.UnixMilli(), ts, ts,
	)

	params := url.Values{}
	params.Set("app_name", "douyin_web")
	params.Set("version_code", "180800")
	params.Set("webcast_sdk_version", "1.0.14-beta.0")
	params.Set("update_version_code", "1.0.14-beta.0")
	params.Set("compress", "gzip")
	params.Set("device_platform", "web")
	params.Set("cookie_enabled", "true")
	params.Set("screen_width", "1920")
	params.Set("screen_height", "1080")
	params.Set("browser_language", "zh-CN")
	params.Set("browser_platform", "Win32")
	params.Set("browser_name", browserName)
	params.Set("browser_version", browserVersion)
	params.Set("browser_online", "true")
	params.Set("tz_name", "Asia/Shanghai")
	params.Set("cursor", fmt.Sprintf("t-%d-1_d-1_u-1_h-1", ts))
	params.Set("internal_ext", internalExt)
	params.Set("host", "https://live.douyin.com")
	params.Set("aid", "6383")
	params.Set("live_id", "1")
	params.Set("did_rule", "3")
	params.Set("endpoint", "live_pc")
	params.Set("support_wrds", "1")
	params.Set("user_unique_id", userUniqueID)
	params.Set("im_path", "/webcast/im/fetch/")
	params.Set("identity", "audience")
	params.Set("need_persist_msg_count", "15")
	params.Set("insert_task_id", "")
	params.Set("live_reason", "")
	params.Set("room_id", r.ID)
	params.Set("heartbeatDuration", "0")
	return r.pushBase + "?" + params.Encode()
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, resp.Body)
	_ = resp.Body.Close()
}
