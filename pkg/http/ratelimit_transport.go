package http

import (
	"net/http"

	"golang.org/x/time/rate"
)

type rateLimitTransport struct {
	limiter   *rate.Limiter
	transport http.RoundTripper
}

func (t *rateLimitTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	if err := t.limiter.Wait(req.Context()); err != nil {
		return nil, err
	}

	return t.transport.RoundTrip(req)
}

// WithRateLimit delays outbound requests so they never exceed the limiter's rate.
// The limiter may be shared by several connectors talking to the same backend.
func WithRateLimit(limiter *rate.Limiter) HttpOpts {
	return WithTransport(func(rt http.RoundTripper) http.RoundTripper {
		if limiter == nil {
			return rt
		}
		return &rateLimitTransport{
			limiter:   limiter,
			transport: rt,
		}
	})
}
