package delivery

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSign(t *testing.T) {
	// echo -n "payload" | openssl dgst -sha256 -hmac "secret"
	expected := "b82fcb791acec57859b989b430a826488ce2e479fdf92326bd0a2e8375a42ba4"

	assert.Equal(t, expected, Sign("secret", []byte("payload")))
}

func TestVerify(t *testing.T) {
	sig := Sign("secret", []byte("payload"))

	assert.True(t, Verify("secret", []byte("payload"), sig))
	assert.False(t, Verify("other", []byte("payload"), sig))
	assert.False(t, Verify("secret", []byte("tampered"), sig))
	assert.False(t, Verify("secret", []byte("payload"), "not-hex"))
}
