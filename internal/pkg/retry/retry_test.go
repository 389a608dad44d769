package retry

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"
	"time"

	"github.com/avast/retry-go/v4"
	pkghttp "github.com/futig/risk-report-backend/pkg/http"
	"github.com/stretchr/testify/assert"
)

func TestIsTransient(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want bool
	}{
		{"nil", nil, false},
		{"network", &pkghttp.NetworkError{Err: errors.New("connection reset")}, true},
		{"wrapped network", fmt.Errorf("call: %w", &pkghttp.NetworkError{Err: errors.New("eof")}), true},
		{"cancelled network", &pkghttp.NetworkError{Err: context.Canceled}, false},
		{"deadline", &pkghttp.NetworkError{Err: context.DeadlineExceeded}, false},
		{"429", &pkghttp.HTTPError{StatusCode: http.StatusTooManyRequests}, true},
		{"503", &pkghttp.HTTPError{StatusCode: http.StatusServiceUnavailable}, true},
		{"400", &pkghttp.HTTPError{StatusCode: http.StatusBadRequest}, false},
		{"401", &pkghttp.HTTPError{StatusCode: http.StatusUnauthorized}, false},
		{"plain", errors.New("decode response"), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsTransient(tt.err))
		})
	}
}

func TestToRetryOptions_RetriesOnlyTransient(t *testing.T) {
	cfg := &RetryConfig{Attempts: 3, Delay: time.Millisecond, MaxDelay: time.Millisecond}

	calls := 0
	err := retry.Do(func() error {
		calls++
		if calls < 3 {
			return &pkghttp.HTTPError{StatusCode: http.StatusBadGateway}
		}
		return nil
	}, cfg.ToRetryOptions(context.Background())...)
	assert.NoError(t, err)
	assert.Equal(t, 3, calls)

	calls = 0
	err = retry.Do(func() error {
		calls++
		return &pkghttp.HTTPError{StatusCode: http.StatusBadRequest}
	}, cfg.ToRetryOptions(context.Background())...)

	var httpErr *pkghttp.HTTPError
	assert.ErrorAs(t, err, &httpErr)
	assert.Equal(t, 1, calls)
}

func TestDefaultRetryConfig(t *testing.T) {
	cfg := DefaultRetryConfig()
	assert.Less(t, cfg.Delay, cfg.MaxDelay)
	assert.Equal(t, uint(3), cfg.Attempts)
}
