package fcm

import (
	"bytes"
	"context"
	"errors"
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
	ts := auth.NewTokenSource(nil, discardLogger())
	ts.SetToken(token, time.Hour)
	return ts
}

type timeoutError struct{}

func (timeoutError) Error() string   { return "request timed out" }
func (timeoutError) Timeout() bool   { return true }
func (timeoutError) Temporary() bool { return true }

func TestPushRejectsNilPayloadAndEmptyBatch(t *testing.T) {
	d := NewDispatcher(transport.Func(func(context.Context, string, string, map[string]string, []byte, transport.Options) (*transport.Reply, error) {
		t.Fatal("no network call expected")
		return nil, nil
	}), discardLogger())

	_, err := d.Push(context.Background(), nil, []string{"endpoint"})
	assert.ErrorIs(t, err, dispatch.ErrNilPayload)

	_, err = d.Push(context.Background(), NewPayload(), nil)
	assert.ErrorIs(t, err, dispatch.ErrEmptyBatch)
}

func TestPushWithoutCredentialReturnsSyntheticFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	d := NewDispatcher(transport.Func(func(context.Context, string, string, map[string]string, []byte, transport.Options) (*transport.Reply, error) {
		t.Fatal("no network call expected")
		return nil, nil
	}), logger)
	d.SetProjectID("project")

	resp, err := d.Push(context.Background(), NewPayload(), []string{"endpoint"})
	require.NoError(t, err)

	assert.Equal(t, status.Error, resp.Status("endpoint"))
	assert.Contains(t, buf.String(), "wasn't authenticated")
	assert.Contains(t, buf.String(), "endpoint")
}

func TestPushWithoutProjectIDReturnsSyntheticFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	d := NewDispatcher(transport.Func(func(context.Context, string, string, map[string]string, []byte, transport.Options) (*transport.Reply, error) {
		t.Fatal("no network call expected")
		return nil, nil
	}), logger)
	d.SetTokenSource(staticTokens("auth_token"))

	resp, err := d.Push(context.Background(), NewPayload(), []string{"endpoint"})
	require.NoError(t, err)

	// Synthetic 400: the endpoint did not cause it, but the batch cannot be
	// dispatched without a project id.
	assert.Equal(t, status.InvalidEndpoint, resp.Status("endpoint"))
	assert.Contains(t, buf.String(), "project id is not provided")
}

func TestPushSendsOneRequestPerEndpoint(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	client := transport.Func(func(_ context.Context, method, url string, headers map[string]string, body []byte, _ transport.Options) (*transport.Reply, error) {
		mu.Lock()
		defer mu.Unlock()
		bodies = append(bodies, string(body))

		assert.Equal(t, http.MethodPost, method)
		assert.Equal(t, SendURL+"project/messages:send", url)
		assert.Equal(t, "Bearer auth_token", headers["Authorization"])
		assert.Equal(t, "application/json", headers["Content-Type"])

		return &transport.Reply{StatusCode: http.StatusOK}, nil
	})

	d := NewDispatcher(client, discardLogger())
	d.SetProjectID("project").SetTokenSource(staticTokens("auth_token"))

	payload := NewPayload().SetCollapseKey("abcde-12345")
	resp, err := d.Push(context.Background(), payload, []string{"e1", "e2"})
	require.NoError(t, err)

	require.Len(t, bodies, 2, "unary API needs one request per endpoint")

	tokens := []string{}
	for _, body := range bodies {
		assert.Contains(t, body, `"collapse_key":"abcde-12345"`)
		switch {
		case bytes.Contains([]byte(body), []byte(`"token":"e1"`)):
			tokens = append(tokens, "e1")
		case bytes.Contains([]byte(body), []byte(`"token":"e2"`)):
			tokens = append(tokens, "e2")
		}
	}
	assert.ElementsMatch(t, []string{"e1", "e2"}, tokens)

	assert.Equal(t, status.Success, resp.Status("e1"))
	assert.Equal(t, status.Success, resp.Status("e2"))
}

func TestPushPartialFailureKeepsSiblingResults(t *testing.T) {
	client := transport.Func(func(_ context.Context, _, _ string, _ map[string]string, body []byte, _ transport.Options) (*transport.Reply, error) {
		if bytes.Contains(body, []byte(`"token":"bad"`)) {
			return &transport.Reply{
				StatusCode: http.StatusNotFound,
				Body:       []byte(`{"error":{"status":"UNREGISTERED"}}`),
			}, nil
		}
		return &transport.Reply{StatusCode: http.StatusOK}, nil
	})

	d := NewDispatcher(client, discardLogger())
	d.SetProjectID("project").SetTokenSource(staticTokens("auth_token"))

	resp, err := d.Push(context.Background(), NewPayload(), []string{"good", "bad"})
	require.NoError(t, err)

	assert.Equal(t, status.Success, resp.Status("good"))
	assert.Equal(t, status.InvalidEndpoint, resp.Status("bad"))
}

func TestPushTimeoutIsDistinctFromGenericError(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	client := transport.Func(func(context.Context, string, string, map[string]string, []byte, transport.Options) (*transport.Reply, error) {
		return nil, timeoutError{}
	})

	d := NewDispatcher(client, logger)
	d.SetProjectID("project").SetTokenSource(staticTokens("auth_token"))

	resp, err := d.Push(context.Background(), NewPayload(), []string{"endpoint"})
	require.NoError(t, err)

	assert.Equal(t, status.TemporaryError, resp.Status("endpoint"))
	assert.Contains(t, buf.String(), "request timed out")
}

func TestPushGenericTransportErrorIsAbsorbed(t *testing.T) {
	client := transport.Func(func(context.Context, string, string, map[string]string, []byte, transport.Options) (*transport.Reply, error) {
		return nil, errors.New("connection refused")
	})

	d := NewDispatcher(client, discardLogger())
	d.SetProjectID("project").SetTokenSource(staticTokens("auth_token"))

	resp, err := d.Push(context.Background(), NewPayload(), []string{"endpoint"})
	require.NoError(t, err)

	assert.Equal(t, status.Error, resp.Status("endpoint"))
}

func TestPushTopicTargetSendsOneRequest(t *testing.T) {
	calls := 0
	client := transport.Func(func(_ context.Context, _, _ string, _ map[string]string, body []byte, _ transport.Options) (*transport.Reply, error) {
		calls++
		assert.Contains(t, string(body), `"topic":"news"`)
		return &transport.Reply{StatusCode: http.StatusOK}, nil
	})

	d := NewDispatcher(client, discardLogger())
	d.SetProjectID("project").SetTokenSource(staticTokens("auth_token"))

	payload := NewPayload().SetTopic("news")
	resp, err := d.Push(context.Background(), payload, []string{"e1", "e2"})
	require.NoError(t, err)

	assert.Equal(t, 1, calls, "topic sends are a single wire request")
	assert.Equal(t, status.Success, resp.Status("e1"))
	assert.Equal(t, status.Success, resp.Status("e2"))
}

func TestResponseStatusForUnknownEndpoint(t *testing.T) {
	client := transport.Func(func(context.Context, string, string, map[string]string, []byte, transport.Options) (*transport.Reply, error) {
		return &transport.Reply{StatusCode: http.StatusOK}, nil
	})

	d := NewDispatcher(client, discardLogger())
	d.SetProjectID("project").SetTokenSource(staticTokens("auth_token"))

	resp, err := d.Push(context.Background(), NewPayload(), []string{"endpoint"})
	require.NoError(t, err)

	assert.Equal(t, status.Unknown, resp.Status("never-sent"))
}
