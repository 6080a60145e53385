package snapshot

import (
	"bytes"
	"compress/gzip"
	"io"
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEncodePayloadRoundTrip(t *testing.T) {
	payload := &snapshotPayload{
		ProjectID: "p1",
		CommitSHA: "abc123",
		Files: []snapshotFile{
			{Path: "locales/de.json", SHA: "blob-de", Content: []byte(`{"hello": "Hallo"}`)},
		},
	}

	body, err := encodePayload(payload)
	require.NoError(t, err)

	gz, err := gzip.NewReader(bytes.NewReader(body))
	require.NoError(t, err)
	raw, err := io.ReadAll(gz)
	require.NoError(t, err)

	var decoded snapshotPayload
	require.NoError(t, json.Unmarshal(raw, &decoded))
	assert.Equal(t, "p1", decoded.ProjectID)
	assert.Equal(t, "abc123", decoded.CommitSHA)
	require.Len(t, decoded.Files, 1)
	assert.Equal(t, []byte(`{"hello": "Hallo"}`), decoded.Files[0].Content)
}
