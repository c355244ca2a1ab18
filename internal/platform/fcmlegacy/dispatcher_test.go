package fcmlegacy

import (
	"bytes"
	"context"
	"io"
	"log/slog"
	"net/http"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch/internal/transport"
	"github.com/tinywideclouds/go-push-dispatch/pkg/dispatch"
	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

func discardLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestPushRejectsNilPayloadAndEmptyBatch(t *testing.T) {
	d := NewDispatcher(nil, discardLogger())

	_, err := d.Push(context.Background(), nil, []string{"endpoint"})
	assert.ErrorIs(t, err, dispatch.ErrNilPayload)

	_, err = d.Push(context.Background(), NewPayload(), []string{})
	assert.ErrorIs(t, err, dispatch.ErrEmptyBatch)
}

func TestPushWithoutServerKeyReturnsSyntheticFailure(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))

	d := NewDispatcher(transport.Func(func(context.Context, string, string, map[string]string, []byte, transport.Options) (*transport.Reply, error) {
		t.Fatal("no network call expected")
		return nil, nil
	}), logger)

	resp, err := d.Push(context.Background(), NewPayload(), []string{"endpoint"})
	require.NoError(t, err)

	assert.Equal(t, status.Error, resp.Status("endpoint"))
	assert.Contains(t, buf.String(), "no server key")
}

func TestPushInjectsToFieldPerEndpoint(t *testing.T) {
	var mu sync.Mutex
	var bodies []string

	client := transport.Func(func(_ context.Context, _, url string, headers map[string]string, body []byte, _ transport.Options) (*transport.Reply, error) {
		mu.Lock()
		defer mu.Unlock()
		bodies = append(bodies, string(body))

		assert.Equal(t, SendURL, url)
		assert.Equal(t, "key=server_key", headers["Authorization"])
		return &transport.Reply{StatusCode: http.StatusOK, Body: []byte(`{"results":[{"message_id":"1"}]}`)}, nil
	})

	d := NewDispatcher(client, discardLogger())
	d.SetServerKey("server_key")

	payload := NewPayload().SetCollapseKey("abcde-12345")
	resp, err := d.Push(context.Background(), payload, []string{"r1", "r2"})
	require.NoError(t, err)

	require.Len(t, bodies, 2)
	joined := bodies[0] + bodies[1]
	assert.Contains(t, joined, `"to":"r1"`)
	assert.Contains(t, joined, `"to":"r2"`)

	assert.Equal(t, status.Success, resp.Status("r1"))
	assert.Equal(t, status.Success, resp.Status("r2"))
}

func TestPushResultErrorsAreDemultiplexed(t *testing.T) {
	client := transport.Func(func(_ context.Context, _, _ string, _ map[string]string, body []byte, _ transport.Options) (*transport.Reply, error) {
		if bytes.Contains(body, []byte(`"to":"dead"`)) {
			return &transport.Reply{StatusCode: http.StatusOK, Body: []byte(`{"results":[{"error":"NotRegistered"}]}`)}, nil
		}
		return &transport.Reply{StatusCode: http.StatusOK, Body: []byte(`{"results":[{"message_id":"1"}]}`)}, nil
	})

	d := NewDispatcher(client, discardLogger())
	d.SetServerKey("server_key")

	resp, err := d.Push(context.Background(), NewPayload(), []string{"alive", "dead"})
	require.NoError(t, err)

	assert.Equal(t, status.Success, resp.Status("alive"))
	assert.Equal(t, status.InvalidEndpoint, resp.Status("dead"))
}

func TestResolveResultErrorTable(t *testing.T) {
	cases := map[string]status.Status{
		"MissingRegistration": status.InvalidEndpoint,
		"InvalidRegistration": status.InvalidEndpoint,
		"NotRegistered":       status.InvalidEndpoint,
		"Unavailable":         status.TemporaryError,
		"InternalServerError": status.TemporaryError,
		"MismatchSenderId":    status.Error,
		"MessageTooBig":       status.Error,
		"BrandNewError":       status.Unknown,
	}

	for reason, expected := range cases {
		t.Run(reason, func(t *testing.T) {
			res := endpointResult{reply: &transport.Reply{
				StatusCode: http.StatusOK,
				Body:       []byte(`{"results":[{"error":"` + reason + `"}]}`),
			}}
			assert.Equal(t, expected, resolve(res))
		})
	}
}

func TestPayloadPriorityIsLowercasedAndValidated(t *testing.T) {
	p := NewPayload().SetPriority("HIGH")
	raw, err := p.Marshal(false)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"priority":"high"`)

	p = NewPayload().SetPriority("urgent")
	raw, err = p.Marshal(false)
	require.NoError(t, err)
	assert.NotContains(t, string(raw), "priority")
}
