package wns

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch/internal/auth"
	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func staticTokens(token string) *auth.TokenSource {
	ts := auth.NewTokenSource(nil, slog.New(slog.NewTextHandler(io.Discard, nil)))
	ts.SetToken(token, time.Hour)
	return ts
}

type sentRequest struct {
	url     string
	headers map[string]string
	body    []byte
}

func recordingClient(reply *transport.Reply, err error) (transport.Client, *[]sentRequest) {
	var mu sync.Mutex
	sent := &[]sentRequest{}
	client := transport.Func(func(_ context.Context, _, url string, headers map[string]string, body []byte, _ transport.Options) (*transport.Reply, error) {
		mu.Lock()
		*sent = append(*sent, sentRequest{url: url, headers: headers, body: body})
		mu.Unlock()
		return reply, err
	})
	return client, sent
}

func TestPushRejectsNilPayloadAndEmptyBatch(t *testing.T) {
	client, _ := recordingClient(&transport.Reply{StatusCode: http.StatusOK}, nil)
	d := NewDispatcher(client, discardLogger()).SetTokenSource(staticTokens("wns-token"))

	_, err := d.Push(context.Background(), nil, []string{"https://db5.notify.windows.com/?token=a"})
	assert.ErrorIs(t, err, dispatch.ErrNilPayload)

	_, err = d.Push(context.Background(), NewToastPayload(), nil)
	assert.ErrorIs(t, err, dispatch.ErrEmptyBatch)
}

func TestPushWithoutTokenReturnsSyntheticUnauthorized(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	client, sent := recordingClient(&transport.Reply{StatusCode: http.StatusOK}, nil)
	d := NewDispatcher(client, logger)

	resp, err := d.Push(context.Background(), NewToastPayload(), []string{"https://db5.notify.windows.com/?token=a"})
	require.NoError(t, err)

	assert.Equal(t, status.Error, resp.Status("https://db5.notify.windows.com/?token=a"))
	assert.Empty(t, *sent)
	assert.Contains(t, buf.String(), "Tried to push WNS notification but wasn't authenticated")
}

func TestPushPostsToEachChannelURI(t *testing.T) {
	client, sent := recordingClient(&transport.Reply{StatusCode: http.StatusOK}, nil)
	d := NewDispatcher(client, discardLogger()).SetTokenSource(staticTokens("wns-token"))

	payload := NewToastPayload().SetTitle("Hello").SetBody("World")
	channels := []string{
		"https://db5.notify.windows.com/?token=a",
		"https://db5.notify.windows.com/?token=b",
	}

	resp, err := d.Push(context.Background(), payload, channels)
	require.NoError(t, err)
	require.Len(t, *sent, 2)

	urls := []string{(*sent)[0].url, (*sent)[1].url}
	assert.ElementsMatch(t, channels, urls)

	for _, req := range *sent {
		assert.Equal(t, "Bearer wns-token", req.headers["Authorization"])
		assert.Equal(t, "wns/toast", req.headers["X-WNS-Type"])
		assert.Equal(t, "text/xml", req.headers["Content-Type"])
		assert.Equal(t, "true", req.headers["X-WNS-RequestForStatus"])
		assert.Contains(t, string(req.body), `<text id="1">Hello</text>`)
	}

	assert.Equal(t, status.Success, resp.Status(channels[0]))
	assert.Equal(t, status.Success, resp.Status(channels[1]))
}

func TestPushRawPayloadHeaders(t *testing.T) {
	client, sent := recordingClient(&transport.Reply{StatusCode: http.StatusOK}, nil)
	d := NewDispatcher(client, discardLogger()).SetTokenSource(staticTokens("wns-token"))

	_, err := d.Push(context.Background(), NewRawPayload([]byte{0x01, 0x02}), []string{"https://db5.notify.windows.com/?token=a"})
	require.NoError(t, err)
	require.Len(t, *sent, 1)

	assert.Equal(t, "wns/raw", (*sent)[0].headers["X-WNS-Type"])
	assert.Equal(t, "application/octet-stream", (*sent)[0].headers["Content-Type"])
	assert.Equal(t, []byte{0x01, 0x02}, (*sent)[0].body)
}

func TestResolveStatuses(t *testing.T) {
	withHeader := func(code int, wnsStatus string) endpointResult {
		h := http.Header{}
		if wnsStatus != "" {
			h.Set("X-WNS-Status", wnsStatus)
		}
		return endpointResult{reply: &transport.Reply{StatusCode: code, Header: h}}
	}

	cases := []struct {
		name     string
		result   endpointResult
		expected status.Status
	}{
		{"received", withHeader(http.StatusOK, "received"), status.Success},
		{"ok without status header", withHeader(http.StatusOK, ""), status.Success},

		// A 200 reply can still mean the notification went nowhere.
		{"dropped", withHeader(http.StatusOK, "dropped"), status.Error},
		{"channel throttled", withHeader(http.StatusOK, "channelThrottled"), status.TemporaryError},

		{"channel not found", withHeader(http.StatusNotFound, ""), status.InvalidEndpoint},
		{"channel expired", withHeader(http.StatusGone, ""), status.FeedbackDeleted},
		{"invalid token", withHeader(http.StatusUnauthorized, ""), status.Error},
		{"throttle rejection", withHeader(http.StatusNotAcceptable, ""), status.TemporaryError},
		{"precondition failed", withHeader(http.StatusPreconditionFailed, ""), status.TemporaryError},
		{"internal error", withHeader(http.StatusInternalServerError, ""), status.TemporaryError},
		{"unexpected code", withHeader(http.StatusTeapot, ""), status.Unknown},

		{"timeout", endpointResult{err: context.DeadlineExceeded, timeout: true}, status.TemporaryError},
		{"transport failure", endpointResult{err: io.ErrUnexpectedEOF}, status.Error},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.expected, resolve(tc.result))
		})
	}
}
