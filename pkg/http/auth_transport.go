package http

import "net/http"

// headerTransport sets fixed headers on every outgoing request
type headerTransport struct {
	headers   http.Header
	transport http.RoundTripper
}

func (t *headerTransport) RoundTrip(req *http.Request) (*http.Response, error) {
	reqCopy := req.Clone(req.Context())
	for key, values := range t.headers {
		reqCopy.Header[key] = values
	}

	return t.transport.RoundTrip(reqCopy)
}

func withHeader(key, value string) HttpOpts {
	return WithTransport(func(rt http.RoundTripper) http.RoundTripper {
		if value == "" {
			return rt
		}
		h := http.Header{}
		h.Set(key, value)
		return &headerTransport{headers: h, transport: rt}
	})
}

// WithAuthToken sends the token as a bearer Authorization header. An empty token sends nothing.
func WithAuthToken(token string) HttpOpts {
	if token == "" {
		return withHeader("Authorization", "")
	}
	return withHeader("Authorization", "Bearer "+token)
}

func WithUserAgent(userAgent string) HttpOpts {
	return withHeader("User-Agent", userAgent)
}
