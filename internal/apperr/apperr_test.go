package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		want int
	}{
		{Validation("bad input"), http.StatusBadRequest},
		{PreconditionFailed("not yet"), http.StatusBadRequest},
		{Unauthenticated("who"), http.StatusUnauthorized},
		{Forbidden("no"), http.StatusForbidden},
		{NotFound("gone"), http.StatusNotFound},
		{StateConflict("moved"), http.StatusConflict},
		{Upstream(errors.New("rpc down"), "chain read failed"), http.StatusBadGateway},
		{Fatal(errors.New("disk"), "boom"), http.StatusInternalServerError},
		{errors.New("plain"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		assert.Equal(t, tt.want, HTTPStatus(KindOf(tt.err)), tt.err.Error())
	}
}

func TestSentinelMatching(t *testing.T) {
	wrapped := fmt.Errorf("verify: %w", ErrNonceConsumed)
	assert.ErrorIs(t, wrapped, ErrNonceConsumed)
	assert.NotErrorIs(t, wrapped, ErrNonceMismatch)
	assert.True(t, IsKind(wrapped, KindUnauthenticated))
	assert.False(t, IsKind(nil, KindFatal))
}

func TestUnwrap(t *testing.T) {
	cause := errors.New("connection refused")
	err := Upstream(cause, "refund transaction was not submitted")

	assert.ErrorIs(t, err, cause)
	assert.Contains(t, err.Error(), "connection refused")
	assert.Equal(t, "UpstreamUnavailable", err.Kind.String())
}

func TestPublicMessage(t *testing.T) {
	assert.Equal(t, "bounty not found", PublicMessage(ErrBountyNotFound))
	assert.Equal(t, "internal error", PublicMessage(Fatal(errors.New("secret dsn"), "db write failed")))
	assert.Equal(t, "internal error", PublicMessage(errors.New("raw")))
}
