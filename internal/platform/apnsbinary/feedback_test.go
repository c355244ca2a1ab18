package apnsbinary

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinywideclouds/go-push-dispatch/pkg/status"
)

func feedbackStream(t *testing.T, entries []FeedbackEntry) *bytes.Buffer {
	t.Helper()
	var buf bytes.Buffer
	for _, e := range entries {
		token, err := hex.DecodeString(e.Endpoint)
		require.NoError(t, err)
		require.NoError(t, binary.Write(&buf, binary.BigEndian, uint32(e.Timestamp.Unix())))
		require.NoError(t, binary.Write(&buf, binary.BigEndian, uint16(len(token))))
		buf.Write(token)
	}
	return &buf
}

func TestParseFeedback(t *testing.T) {
	want := []FeedbackEntry{
		{Timestamp: time.Unix(1700000000, 0), Endpoint: strings.Repeat("ab", tokenSize)},
		{Timestamp: time.Unix(1700000060, 0), Endpoint: strings.Repeat("cd", tokenSize)},
	}

	entries, err := ParseFeedback(feedbackStream(t, want))
	require.NoError(t, err)
	assert.Equal(t, want, entries)
}

func TestParseFeedbackEmptyStream(t *testing.T) {
	entries, err := ParseFeedback(bytes.NewReader(nil))
	require.NoError(t, err)
	assert.Empty(t, entries)
}

func TestParseFeedbackTruncatedEntry(t *testing.T) {
	buf := feedbackStream(t, []FeedbackEntry{
		{Timestamp: time.Unix(1700000000, 0), Endpoint: strings.Repeat("ab", tokenSize)},
	})
	// A second entry cut off mid-token.
	_ = binary.Write(buf, binary.BigEndian, uint32(1700000060))
	_ = binary.Write(buf, binary.BigEndian, uint16(tokenSize))
	buf.Write([]byte{0xcd, 0xcd})

	entries, err := ParseFeedback(buf)
	assert.Error(t, err)
	assert.Len(t, entries, 1, "complete entries before the truncation survive")
}

func TestFeedbackResponse(t *testing.T) {
	dead := strings.Repeat("ab", tokenSize)
	resp := NewFeedbackResponse([]FeedbackEntry{
		{Timestamp: time.Unix(1700000000, 0), Endpoint: dead},
	})

	assert.Equal(t, []string{dead}, resp.Endpoints())
	assert.Equal(t, status.FeedbackDeleted, resp.Status(dead))
	assert.Equal(t, status.Unknown, resp.Status("never-listed"))
}
