package crypto

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"
)

// HMACAuth holds the credentials for signed exchange REST requests.
type HMACAuth struct {
	Key    string // API key, sent as a header
	Secret string // API secret, used as the HMAC key
}

// SignQuery appends timestamp and recvWindow to params and returns the
// encoded query string with its hex HMAC-SHA256 signature appended.
func (h *HMACAuth) SignQuery(params url.Values, recvWindow time.Duration) string {
	return h.SignQueryAt(params, recvWindow, time.Now().UnixMilli())
}

// SignQueryAt is like SignQuery but lets the caller supply the millisecond
// timestamp (useful for deterministic testing).
func (h *HMACAuth) SignQueryAt(params url.Values, recvWindow time.Duration, unixMilli int64) string {
	if params == nil {
		params = url.Values{}
	}
	if recvWindow > 0 {
		params.Set("recvWindow", strconv.FormatInt(recvWindow.Milliseconds(), 10))
	}
	params.Set("timestamp", strconv.FormatInt(unixMilli, 10))

	query := params.Encode()
	return query + "&signature=" + h.Sign(query)
}

// Sign returns the hex-encoded HMAC-SHA256 of payload under the secret.
func (h *HMACAuth) Sign(payload string) string {
	mac := hmac.New(sha256.New, []byte(h.Secret))
	mac.Write([]byte(payload))
	return hex.EncodeToString(mac.Sum(nil))
}

// String returns a redacted representation suitable for logging.
func (h *HMACAuth) String() string {
	redact := func(s string) string {
		if len(s) <= 4 {
			return "****"
		}
		return s[:4] + "****"
	}
	return fmt.Sprintf("HMACAuth{key=%s, secret=%s}", redact(h.Key), redact(h.Secret))
}
