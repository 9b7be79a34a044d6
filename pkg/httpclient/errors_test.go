package httpclient

import (
	"errors"
	"fmt"
	"net"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSentinelErrors_Wrapping(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		err  error
		msg  string
	}{
		{"ErrProxyConnect", ErrProxyConnect, "httpclient: proxy connection failed"},
		{"ErrInvalidProxy", ErrInvalidProxy, "httpclient: invalid proxy url"},
		{"ErrDNS", ErrDNS, "httpclient: DNS resolution failed"},
		{"ErrTLS", ErrTLS, "httpclient: TLS handshake failed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.EqualError(t, tt.err, tt.msg)
			assert.ErrorIs(t, fmt.Errorf("request: %w", tt.err), tt.err)
		})
	}
}

func TestSentinelErrors_Distinct(t *testing.T) {
	t.Parallel()
	sentinels := []error{ErrProxyConnect, ErrInvalidProxy, ErrDNS, ErrTLS}
	for i := range sentinels {
		for j := i + 1; j < len(sentinels); j++ {
			assert.False(t, errors.Is(sentinels[i], sentinels[j]), "%d vs %d", i, j)
		}
	}
}

func TestClassify(t *testing.T) {
	t.Parallel()
	assert.NoError(t, Classify(nil))

	dns := &net.DNSError{Err: "no such host", Name: "nope.invalid", IsNotFound: true}
	err := Classify(fmt.Errorf("dial: %w", dns))
	assert.ErrorIs(t, err, ErrDNS)
	var got *net.DNSError
	assert.ErrorAs(t, err, &got)

	plain := errors.New("connection reset")
	assert.Equal(t, plain, Classify(plain))
}
