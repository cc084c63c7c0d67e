package routing

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestErrorKindRetryable(t *testing.T) {
	assert.True(t, ErrRateLimit.Retryable())
	assert.True(t, ErrTransport.Retryable())
	assert.False(t, ErrAuth.Retryable())
	assert.False(t, ErrPayment.Retryable())
	assert.False(t, ErrEmptyOrMeta.Retryable())
}

func TestErrorKindSoft(t *testing.T) {
	assert.True(t, ErrEmptyOrMeta.Soft())
	assert.False(t, ErrTransport.Soft())
}

func TestErrorKindNotify(t *testing.T) {
	assert.True(t, ErrPayment.Notify())
	assert.True(t, ErrRateLimit.Notify())
	assert.False(t, ErrTransport.Notify())
	assert.False(t, ErrAuth.Notify())
}

func TestClassifiedErrorUnwrap(t *testing.T) {
	inner := errors.New("boom")
	ce := NewClassifiedError(ErrAuth, "openrouter", inner)
	assert.ErrorIs(t, ce, inner)
	assert.Contains(t, ce.Error(), "openrouter")
	assert.Contains(t, ce.Error(), "auth")
}

func TestKindOfDefaultsToTransport(t *testing.T) {
	assert.Equal(t, ErrTransport, KindOf(errors.New("unclassified")))
	assert.Equal(t, ErrPayment, KindOf(NewClassifiedError(ErrPayment, "p", errors.New("x"))))
}

func TestTierValid(t *testing.T) {
	assert.True(t, TierTrivial.Valid())
	assert.False(t, Tier("nonsense").Valid())
}

func TestChainProvidersDedup(t *testing.T) {
	c := Chain{{Provider: "a"}, {Provider: "b"}, {Provider: "a"}}
	assert.Equal(t, []string{"a", "b"}, c.Providers())
}
