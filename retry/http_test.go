package retry

import (
	"io"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestBackoff(t *testing.T) {
	assert.Equal(t, time.Second, FixedBackoff(5, time.Second))
	assert.Equal(t, 4*time.Second, ExponentialBackoff(2, time.Second))
	assert.Equal(t, 3*time.Second, LinearBackoff(2, time.Second))
}

func TestBackoffByName(t *testing.T) {
	assert.Equal(t, 2*time.Second, BackoffByName("exponential")(1, time.Second))
	assert.Equal(t, 2*time.Second, BackoffByName("linear")(1, time.Second))
	assert.Equal(t, time.Second, BackoffByName("unknown")(1, time.Second))
}

func TestHTTPClientRetryOn5xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&calls, 1) < 3 {
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	client := NewHTTPClient(server.Client(), &Config{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
		Backoff:     FixedBackoff,
	})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.EqualValues(t, 3, atomic.LoadInt32(&calls))
}

func TestHTTPClientExhaustedResponseBodyReadable(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadGateway)
		_, _ = w.Write([]byte(`{"error":"routing unavailable"}`))
	}))
	defer server.Close()

	client := NewHTTPClient(server.Client(), &Config{
		MaxAttempts: 2,
		Delay:       time.Millisecond,
	})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadGateway, resp.StatusCode)
	assert.EqualValues(t, 2, atomic.LoadInt32(&calls))

	// 重试耗尽后最后一次响应的 body 必须仍然可读
	body, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"routing unavailable"}`, string(body))
}

func TestHTTPClientNoRetryOn4xx(t *testing.T) {
	var calls int32
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		w.WriteHeader(http.StatusBadRequest)
	}))
	defer server.Close()

	client := NewHTTPClient(server.Client(), &Config{
		MaxAttempts: 3,
		Delay:       time.Millisecond,
	})

	req, err := http.NewRequest(http.MethodGet, server.URL, nil)
	require.NoError(t, err)

	resp, err := client.Do(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.EqualValues(t, 1, atomic.LoadInt32(&calls))
}
