package apperror

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestKindSurvivesWrapping(t *testing.T) {
	base := NotFound("scripts.get", "script", "abc")
	wrapped := fmt.Errorf("load: %w", base)

	assert.Equal(t, KindNotFound, KindOf(wrapped))
	assert.True(t, errors.Is(wrapped, &Error{Kind: KindNotFound}))
	assert.False(t, errors.Is(wrapped, &Error{Kind: KindUpstream}))
}

func TestAuthExchangeSubCode(t *testing.T) {
	err := AuthExchange(CodeInvalidGrant, errors.New("code expired"))

	assert.Equal(t, KindAuthExchange, KindOf(err))
	assert.Equal(t, CodeInvalidGrant, CodeOf(err))
	assert.True(t, errors.Is(err, &Error{Kind: KindAuthExchange, Code: CodeInvalidGrant}))
	assert.False(t, errors.Is(err, &Error{Kind: KindAuthExchange, Code: CodeUpstreamUnavailable}))
}

func TestWrapKeepsKindAndAddsOp(t *testing.T) {
	err := Wrap("videos.create", Upstream("video", errors.New("503")))
	var ae *Error
	assert.True(t, errors.As(err, &ae))
	assert.Equal(t, "videos.create", ae.Op)
	assert.Equal(t, KindUpstream, ae.Kind)

	foreign := Wrap("jobs.get", errors.New("boom"))
	assert.Equal(t, KindInternal, KindOf(foreign))
	assert.Nil(t, Wrap("noop", nil))
}

func TestPublicMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "internal error", PublicMessage(Persistence("audios.create", errors.New("pq: secret detail"))))
	assert.Equal(t, "internal error", PublicMessage(errors.New("raw")))
	assert.Equal(t, "image: generation backend failed", PublicMessage(Upstream("image", errors.New("upstream body"))))
}

func TestHTTPStatus(t *testing.T) {
	cases := map[Kind]int{
		KindInvalidInput:        http.StatusBadRequest,
		KindNotFound:            http.StatusNotFound,
		KindUpstream:            http.StatusBadGateway,
		KindPersistence:         http.StatusInternalServerError,
		KindAuthRequired:        http.StatusUnauthorized,
		KindUnsupportedPlatform: http.StatusBadRequest,
		KindInvalidState:        http.StatusConflict,
	}
	for kind, want := range cases {
		assert.Equal(t, want, HTTPStatus(kind), kind)
	}
}
