package calendar

import (
	"crypto/subtle"
	"encoding/base64"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/zeebo/blake3"

	"github.com/khushigoyal02/EMS-back/internal/clock"
)

// ErrInvalidState is returned when the OAuth state is forged, malformed or
// expired.
var ErrInvalidState = errors.New("invalid or expired oauth state")

const defaultStateTTL = 10 * time.Minute

// stateSigner issues OAuth state values of the form
// base64(uid|expiry).base64(mac), keyed with a 32 byte secret.
type stateSigner struct {
	key []byte
	ttl time.Duration
	clk clock.Clock
}

func newStateSigner(key []byte, ttl time.Duration, clk clock.Clock) (*stateSigner, error) {
	if len(key) != 32 {
		return nil, fmt.Errorf("calendar: state key is %d bytes, want 32", len(key))
	}
	if ttl <= 0 {
		ttl = defaultStateTTL
	}
	return &stateSigner{key: key, ttl: ttl, clk: clk}, nil
}

func (s *stateSigner) sign(uid string) string {
	payload := uid + "|" + strconv.FormatInt(s.clk.Now().Add(s.ttl).Unix(), 10)
	return base64.RawURLEncoding.EncodeToString([]byte(payload)) + "." +
		base64.RawURLEncoding.EncodeToString(s.mac(payload))
}

// verify returns the uid carried by state.
func (s *stateSigner) verify(state string) (string, error) {
	encPayload, encMAC, ok := strings.Cut(state, ".")
	if !ok {
		return "", ErrInvalidState
	}
	payload, err := base64.RawURLEncoding.DecodeString(encPayload)
	if err != nil {
		return "", ErrInvalidState
	}
	got, err := base64.RawURLEncoding.DecodeString(encMAC)
	if err != nil || subtle.ConstantTimeCompare(got, s.mac(string(payload))) != 1 {
		return "", ErrInvalidState
	}

	i := strings.LastIndexByte(string(payload), '|')
	if i <= 0 {
		return "", ErrInvalidState
	}
	exp, err := strconv.ParseInt(string(payload[i+1:]), 10, 64)
	if err != nil || !s.clk.Now().Before(time.Unix(exp, 0)) {
		return "", ErrInvalidState
	}
	return string(payload[:i]), nil
}

func (s *stateSigner) mac(payload string) []byte {
	h, err := blake3.NewKeyed(s.key)
	if err != nil {
		panic("calendar: blake3 keyed hash requires a 32 byte key: " + err.Error())
	}
	_, _ = h.Write([]byte(payload))
	return h.Sum(nil)
}
