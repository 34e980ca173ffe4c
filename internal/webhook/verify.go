package webhook

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	ierr "github.com/factuurly/factuurly/internal/errors"
)

// DefaultTolerance bounds how old a signed webhook may be before it is
// rejected as a possible replay
const DefaultTolerance = 5 * time.Minute

// signHex computes the hex HMAC-SHA256 of "<timestamp>.<body>"
func signHex(secret string, timestamp int64, body []byte) string {
	mac := hmac.New(sha256.New, []byte(secret))
	fmt.Fprintf(mac, "%d.", timestamp)
	mac.Write(body)
	return hex.EncodeToString(mac.Sum(nil))
}

// verifySignature checks a "t=<unix>,v1=<hex>" signature header against the
// raw body. The comparison is constant time, and the error is the same
// whether the secret is missing, the header is malformed or the digest does
// not match, so a caller probing the endpoint learns nothing.
func verifySignature(secret string, header string, body []byte, tolerance time.Duration) error {
	fail := func() error {
		return ierr.NewError("webhook signature verification failed").
			WithHint("The webhook could not be verified").
			Mark(ierr.ErrVerification)
	}

	if secret == "" || header == "" {
		return fail()
	}

	var timestamp int64
	var signature string
	for _, part := range strings.Split(header, ",") {
		k, v, found := strings.Cut(strings.TrimSpace(part), "=")
		if !found {
			continue
		}
		switch k {
		case "t":
			ts, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return fail()
			}
			timestamp = ts
		case "v1":
			signature = v
		}
	}

	if timestamp == 0 || signature == "" {
		return fail()
	}

	age := time.Since(time.Unix(timestamp, 0))
	if age > tolerance || age < -tolerance {
		return fail()
	}

	expected := signHex(secret, timestamp, body)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fail()
	}

	return nil
}
