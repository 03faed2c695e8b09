package autoupdate

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/leanovate/gopter"
	"github.com/leanovate/gopter/gen"
	"github.com/leanovate/gopter/prop"
)

func noDelay(context.Context, time.Duration) error { return nil }

// failingServer returns a server that answers status for the first failures requests, then 200
func failingServer(t *testing.T, failures int32, status int, count *int32) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(count, 1) <= failures {
			w.WriteHeader(status)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	t.Cleanup(server.Close)
	return server
}

func TestRetryExponentialBackoff(t *testing.T) {
	parameters := gopter.DefaultTestParameters()
	parameters.MinSuccessfulTests = 100
	properties := gopter.NewProperties(parameters)

	properties.Property("retry delays grow until the request succeeds", prop.ForAll(
		func(failures int) bool {
			var count int32
			server := failingServer(t, int32(failures), http.StatusInternalServerError, &count)

			client := NewRetryableHTTPClient()
			client.SetHTTPClient(server.Client())
			client.SetDelayFunc(noDelay)

			resp, err := client.Get(context.Background(), server.URL)
			if err != nil {
				return false
			}
			resp.Body.Close()

			delays := client.GetRecordedDelays()
			if len(delays) != failures {
				return false
			}
			for i := 1; i < len(delays); i++ {
				if delays[i] <= delays[i-1] {
					return false
				}
			}
			return true
		},
		gen.IntRange(1, 3),
	))

	properties.Property("no more than MaxRetries+1 attempts are made", prop.ForAll(
		func(maxRetries int) bool {
			var count int32
			server := failingServer(t, 1000, http.StatusBadGateway, &count)

			cfg := DefaultRetryConfig()
			cfg.MaxRetries = maxRetries
			client := NewRetryableHTTPClientWithConfig(cfg)
			client.SetHTTPClient(server.Client())
			client.SetDelayFunc(noDelay)

			_, err := client.Get(context.Background(), server.URL)
			return errors.Is(err, ErrMaxRetriesExceeded) && atomic.LoadInt32(&count) == int32(maxRetries+1)
		},
		gen.IntRange(0, 5),
	))

	properties.TestingRun(t)
}

func TestRetryableHTTPClientDelays(t *testing.T) {
	var count int32
	server := failingServer(t, 3, http.StatusServiceUnavailable, &count)

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDelayFunc(noDelay)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	want := []time.Duration{1 * time.Second, 2 * time.Second, 4 * time.Second}
	got := client.GetRecordedDelays()
	if len(got) != len(want) {
		t.Fatalf("expected %d delays, got %v", len(want), got)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Errorf("delay %d: expected %v, got %v", i, want[i], got[i])
		}
	}
}

func TestRetryableHTTPClientNoRetryOn4xx(t *testing.T) {
	var count int32
	server := failingServer(t, 10, http.StatusNotFound, &count)

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDelayFunc(noDelay)

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()

	if resp.StatusCode != http.StatusNotFound {
		t.Errorf("expected 404, got %d", resp.StatusCode)
	}
	if c := atomic.LoadInt32(&count); c != 1 {
		t.Errorf("expected 1 request, got %d", c)
	}
}

func TestRetryableHTTPClientDefaultHeaders(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("User-Agent") != "alpa-autoupdate/test" {
			w.WriteHeader(http.StatusBadRequest)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())
	client.SetDefaultHeaders(map[string]string{"User-Agent": "alpa-autoupdate/test"})

	resp, err := client.Get(context.Background(), server.URL)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Errorf("default header not sent, status %d", resp.StatusCode)
	}
}

func TestRetryableHTTPClientContextCancellation(t *testing.T) {
	var count int32
	server := failingServer(t, 10, http.StatusInternalServerError, &count)

	client := NewRetryableHTTPClient()
	client.SetHTTPClient(server.Client())

	t.Run("cancelled before first attempt", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		cancel()

		_, err := client.Get(ctx, server.URL)
		if !errors.Is(err, context.Canceled) {
			t.Fatalf("expected context.Canceled, got %v", err)
		}
		if c := atomic.LoadInt32(&count); c != 0 {
			t.Errorf("expected 0 requests, got %d", c)
		}
	})

	t.Run("cancelled during backoff", func(t *testing.T) {
		ctx, cancel := context.WithCancel(context.Background())
		client.SetDelayFunc(func(ctx context.Context, d time.Duration) error {
			cancel()
			return sleepContext(ctx, time.Hour)
		})

		_, err := client.Get(ctx, server.URL)
		if !errors.Is(err, context.Canceled) {
			t.Errorf("expected context.Canceled, got %v", err)
		}
	})
}

func TestCalculateDelay(t *testing.T) {
	client := NewRetryableHTTPClient()

	testCases := []struct {
		attempt  int
		expected time.Duration
	}{
		{0, 0},
		{1, 1 * time.Second},
		{2, 2 * time.Second},
		{3, 4 * time.Second},
		{4, 4 * time.Second},
		{5, 4 * time.Second},
	}

	for _, tc := range testCases {
		if delay := client.calculateDelay(tc.attempt); delay != tc.expected {
			t.Errorf("attempt %d: expected %v, got %v", tc.attempt, tc.expected, delay)
		}
	}
}

func TestShouldRetry(t *testing.T) {
	testCases := []struct {
		statusCode int
		want       bool
	}{
		{200, false},
		{301, false},
		{400, false},
		{403, false},
		{404, false},
		{429, true},
		{500, true},
		{502, true},
		{503, true},
		{504, true},
	}

	for _, tc := range testCases {
		t.Run(http.StatusText(tc.statusCode), func(t *testing.T) {
			if got := shouldRetry(tc.statusCode); got != tc.want {
				t.Errorf("status %d: expected %v, got %v", tc.statusCode, tc.want, got)
			}
		})
	}
}

func TestSleepContext(t *testing.T) {
	if err := sleepContext(context.Background(), 0); err != nil {
		t.Errorf("zero sleep should return nil, got %v", err)
	}
	if err := sleepContext(context.Background(), time.Millisecond); err != nil {
		t.Errorf("short sleep should return nil, got %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := sleepContext(ctx, time.Hour); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
