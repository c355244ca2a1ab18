package transport

import (
	"context"
	"errors"
	"io"
	"net"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDoRoundTrip(t *testing.T) {
	var gotMethod, gotAuth string
	var gotBody []byte
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotMethod = r.Method
		gotAuth = r.Header.Get("Authorization")
		gotBody, _ = io.ReadAll(r.Body)
		w.Header().Set("X-Test", "yes")
		w.WriteHeader(http.StatusAccepted)
		_, _ = w.Write([]byte(`{"ok":true}`))
	}))
	defer server.Close()

	client := NewHTTPClient("test")
	reply, err := client.Do(context.Background(), http.MethodPost, server.URL,
		map[string]string{"Authorization": "Bearer t"}, []byte(`{"in":1}`), Options{})
	require.NoError(t, err)

	assert.Equal(t, http.MethodPost, gotMethod)
	assert.Equal(t, "Bearer t", gotAuth)
	assert.Equal(t, `{"in":1}`, string(gotBody))

	assert.Equal(t, http.StatusAccepted, reply.StatusCode)
	assert.Equal(t, "yes", reply.Header.Get("X-Test"))
	assert.Equal(t, `{"ok":true}`, string(reply.Body))
}

func TestDoTimesOutSlowResponses(t *testing.T) {
	release := make(chan struct{})
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		<-release
	}))
	defer server.Close()
	defer close(release)

	client := NewHTTPClient("test")
	_, err := client.Do(context.Background(), http.MethodGet, server.URL, nil, nil,
		Options{Timeout: 50 * time.Millisecond})

	require.Error(t, err)
	assert.True(t, IsTimeout(err))
}

func TestClientIsReusedPerConnectTimeout(t *testing.T) {
	c := NewHTTPClient("test")

	assert.Same(t, c.client(time.Second), c.client(time.Second))
	assert.NotSame(t, c.client(time.Second), c.client(2*time.Second))
}

func TestOptionsWithDefaults(t *testing.T) {
	opts := Options{}.withDefaults()
	assert.Equal(t, DefaultTimeout, opts.Timeout)
	assert.Equal(t, DefaultTimeout, opts.ConnectTimeout)

	opts = Options{Timeout: time.Second, ConnectTimeout: 2 * time.Second}.withDefaults()
	assert.Equal(t, time.Second, opts.Timeout)
	assert.Equal(t, 2*time.Second, opts.ConnectTimeout)
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "i/o timeout" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestIsTimeout(t *testing.T) {
	assert.True(t, IsTimeout(context.DeadlineExceeded))
	assert.True(t, IsTimeout(timeoutError{}))
	assert.True(t, IsTimeout(&net.OpError{Op: "dial", Err: timeoutError{}}))

	assert.False(t, IsTimeout(nil))
	assert.False(t, IsTimeout(errors.New("connection refused")))
	assert.False(t, IsTimeout(context.Canceled))
}
