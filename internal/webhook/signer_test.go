package webhook

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSignIsDeterministic(t *testing.T) {
	signer := NewSigner("s3cret")
	payload := []byte(`{"a":1}`)

	first := signer.Sign(payload)
	require.Len(t, first, 64)
	require.Equal(t, first, signer.Sign(payload))
	require.Regexp(t, "^[0-9a-f]{64}$", first)
}

func TestVerifyRoundTrip(t *testing.T) {
	signer := NewSigner("s3cret")
	payload := []byte(`{"event":"action.completed","log_id":42}`)

	sig := signer.Sign(payload)
	require.True(t, signer.Verify(payload, sig))
}

func TestVerifyRejectsTampering(t *testing.T) {
	signer := NewSigner("s3cret")
	payload := []byte(`{"a":1}`)
	sig := signer.Sign(payload)

	mutated := []byte(`{"a":2}`)
	require.False(t, signer.Verify(mutated, sig))

	tampered := []byte(sig)
	if tampered[0] == 'a' {
		tampered[0] = 'b'
	} else {
		tampered[0] = 'a'
	}
	require.False(t, signer.Verify(payload, string(tampered)))
	require.False(t, NewSigner("other").Verify(payload, sig))
}
