package apierr

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestConstructors_Status(t *testing.T) {
	cases := []struct {
		err    *Error
		status int
	}{
		{BadRequest("bad share hash"), 400},
		{UnsupportedMedia("unsupported extension"), 415},
		{NotFound("share not found"), 404},
		{Unauthorized("invalid token"), 401},
		{Upstream("backend failure", errors.New("dial refused")), 502},
		{Timeout("encode timed out", errors.New("deadline")), 504},
		{Internal("transcode failed", errors.New("exit 1")), 500},
	}
	for _, c := range cases {
		assert.Equal(t, c.status, c.err.Status)
	}
}

func TestError_WrapsUnderlying(t *testing.T) {
	cause := errors.New("dial refused")
	e := Upstream("backend failure", cause)

	assert.ErrorIs(t, e, cause)
	assert.Contains(t, e.Error(), "dial refused")
}

func TestAs_ExtractsTypedError(t *testing.T) {
	wrapped := errors.New("wrapping: ")
	_ = wrapped

	var err error = NotFound("missing")
	e, ok := As(err)
	assert.True(t, ok)
	assert.Equal(t, 404, e.Status)

	_, ok = As(errors.New("plain"))
	assert.False(t, ok)
}
