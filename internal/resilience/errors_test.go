package resilience

import (
	"errors"
	"fmt"
	"net"
	"syscall"
	"testing"

	"github.com/rotisserie/eris"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"explicit", NewTransientError(errors.New("server overloaded"), 503), true},
		{"wrapped", fmt.Errorf("nppes: %w", NewTransientError(errors.New("rate limited"), 429)), true},
		{"eris wrapped", eris.Wrap(NewTransientError(errors.New("bad gateway"), 502), "cms: fetch"), true},
		{"plain", errors.New("invalid input: missing field"), false},
		{"connection reset", fmt.Errorf("write tcp: %w", syscall.ECONNRESET), true},
		{"connection refused", fmt.Errorf("dial tcp: %w", syscall.ECONNREFUSED), true},
		{"dns timeout", &net.DNSError{IsTimeout: true, Err: "timeout"}, true},
		{"tls pattern", errors.New("TLS handshake timeout"), true},
		{"io timeout pattern", errors.New("read tcp 10.0.0.1: i/o timeout"), true},
		{"eof pattern", errors.New("unexpected EOF"), true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestIsTransientHTTPStatus(t *testing.T) {
	t.Parallel()

	for _, code := range []int{408, 429, 500, 502, 503, 504} {
		assert.True(t, IsTransientHTTPStatus(code), code)
	}
	for _, code := range []int{200, 201, 400, 401, 403, 404, 405, 409, 422} {
		assert.False(t, IsTransientHTTPStatus(code), code)
	}
}

func TestStatusError(t *testing.T) {
	t.Parallel()

	err := StatusError("nppes", 503)
	assert.True(t, IsTransient(err))
	assert.Contains(t, err.Error(), "nppes: unexpected status 503")

	var te *TransientError
	assert.True(t, errors.As(err, &te))
	assert.Equal(t, 503, te.StatusCode)

	err = StatusError("cms", 404)
	assert.False(t, IsTransient(err))
	assert.Contains(t, err.Error(), "cms: unexpected status 404")
}

func TestTransientError_Unwrap(t *testing.T) {
	t.Parallel()

	inner := errors.New("root cause")
	te := NewTransientError(inner, 500)

	assert.ErrorIs(t, te, inner)
	assert.Equal(t, "root cause", te.Error())
}

func TestErrorKind(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "transient", ErrorKind(NewTransientError(errors.New("x"), 500)))
	assert.Equal(t, "transient", ErrorKind(eris.Wrap(ErrCircuitOpen, "source cms")))
	assert.Equal(t, "permanent", ErrorKind(errors.New("bad npi")))
}
