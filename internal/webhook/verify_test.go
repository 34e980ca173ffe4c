package webhook

import (
	"fmt"
	"testing"
	"time"

	ierr "github.com/factuurly/factuurly/internal/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "whsec_test_secret"

func signedHeader(secret string, timestamp int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", timestamp, signHex(secret, timestamp, body))
}

func TestVerifySignatureAccepts(t *testing.T) {
	body := []byte(`{"status":"CLOSED"}`)
	header := signedHeader(testSecret, time.Now().Unix(), body)

	require.NoError(t, verifySignature(testSecret, header, body, DefaultTolerance))
}

func TestVerifySignatureAcceptsSpacedHeader(t *testing.T) {
	body := []byte(`{}`)
	ts := time.Now().Unix()
	header := fmt.Sprintf("t=%d, v1=%s", ts, signHex(testSecret, ts, body))

	require.NoError(t, verifySignature(testSecret, header, body, DefaultTolerance))
}

func TestVerifySignatureRejectsTamperedBody(t *testing.T) {
	body := []byte(`{"status":"CLOSED"}`)
	header := signedHeader(testSecret, time.Now().Unix(), body)

	tampered := []byte(`{"status":"CLOSED","amountInCents":1}`)
	err := verifySignature(testSecret, header, tampered, DefaultTolerance)
	require.Error(t, err)
	assert.True(t, ierr.IsVerification(err))
}

func TestVerifySignatureRejectsWrongSecret(t *testing.T) {
	body := []byte(`{}`)
	header := signedHeader("whsec_other", time.Now().Unix(), body)

	err := verifySignature(testSecret, header, body, DefaultTolerance)
	require.Error(t, err)
	assert.True(t, ierr.IsVerification(err))
}

func TestVerifySignatureRejectsStaleTimestamp(t *testing.T) {
	body := []byte(`{}`)
	stale := time.Now().Add(-10 * time.Minute).Unix()
	header := signedHeader(testSecret, stale, body)

	err := verifySignature(testSecret, header, body, DefaultTolerance)
	require.Error(t, err)
	assert.True(t, ierr.IsVerification(err))
}

func TestVerifySignatureRejectsFutureTimestamp(t *testing.T) {
	body := []byte(`{}`)
	future := time.Now().Add(10 * time.Minute).Unix()
	header := signedHeader(testSecret, future, body)

	err := verifySignature(testSecret, header, body, DefaultTolerance)
	require.Error(t, err)
	assert.True(t, ierr.IsVerification(err))
}

func TestVerifySignatureRejectsMalformedHeaders(t *testing.T) {
	body := []byte(`{}`)

	headers := []string{
		"",
		"v1=deadbeef",
		fmt.Sprintf("t=%d", time.Now().Unix()),
		"t=notanumber,v1=deadbeef",
		"garbage",
	}
	for _, header := range headers {
		err := verifySignature(testSecret, header, body, DefaultTolerance)
		require.Error(t, err, "header %q must be rejected", header)
		assert.True(t, ierr.IsVerification(err))
	}
}

func TestVerifySignatureRejectsMissingSecret(t *testing.T) {
	body := []byte(`{}`)
	header := signedHeader(testSecret, time.Now().Unix(), body)

	err := verifySignature("", header, body, DefaultTolerance)
	require.Error(t, err)
	assert.True(t, ierr.IsVerification(err))
}

// every rejection reads the same, so a probing caller cannot tell a bad
// digest from a missing secret or an expired timestamp
func TestVerifySignatureFailuresAreUniform(t *testing.T) {
	body := []byte(`{}`)

	badDigest := verifySignature(testSecret, signedHeader("whsec_other", time.Now().Unix(), body), body, DefaultTolerance)
	noSecret := verifySignature("", signedHeader(testSecret, time.Now().Unix(), body), body, DefaultTolerance)
	stale := verifySignature(testSecret, signedHeader(testSecret, time.Now().Add(-time.Hour).Unix(), body), body, DefaultTolerance)

	require.Error(t, badDigest)
	require.Error(t, noSecret)
	require.Error(t, stale)
	assert.Equal(t, badDigest.Error(), noSecret.Error())
	assert.Equal(t, badDigest.Error(), stale.Error())
}
