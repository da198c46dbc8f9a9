package auth

import (
	"context"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSignVerify(t *testing.T) {
	j := New("s3cret")
	tok, err := j.Sign(OperatorSubject, time.Minute)
	require.NoError(t, err)

	sub, err := j.Verify(tok)
	require.NoError(t, err)
	assert.Equal(t, OperatorSubject, sub)
}

func TestVerifyRejects(t *testing.T) {
	j := New("s3cret")

	other, err := New("another").Sign(OperatorSubject, time.Minute)
	require.NoError(t, err)
	expired, err := j.Sign(OperatorSubject, -time.Minute)
	require.NoError(t, err)
	foreign, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:    "someone-else",
		Subject:   OperatorSubject,
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Minute)),
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)
	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Issuer:  issuer,
		Subject: OperatorSubject,
	}).SignedString([]byte("s3cret"))
	require.NoError(t, err)

	for name, tok := range map[string]string{
		"wrong secret": other,
		"expired":      expired,
		"wrong issuer": foreign,
		"no expiry":    noExpiry,
		"not a token":  "abc.def.ghi",
		"empty":        "",
	} {
		_, err := j.Verify(tok)
		assert.Error(t, err, name)
	}
}

func TestSignNeedsSubject(t *testing.T) {
	_, err := New("s3cret").Sign("", time.Minute)
	assert.Error(t, err)
}

func TestSubjectContext(t *testing.T) {
	assert.Empty(t, Subject(context.Background()))
	assert.Equal(t, "operator", Subject(WithSubject(context.Background(), "operator")))
}
