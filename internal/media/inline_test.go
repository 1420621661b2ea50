package media

import (
	"errors"
	"testing"

	"muse-api/internal/shared"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestInlineEmptyPayload(t *testing.T) {
	_, err := Inline(&shared.BinaryResult{MimeType: "audio/mpeg"}, AudioFamily)
	require.Error(t, err)

	var gerr *shared.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, shared.KindEmptyPayload, gerr.Kind)
	assert.Equal(t, 500, gerr.StatusCode)
}

func TestInlineWrongMediaFamily(t *testing.T) {
	res := &shared.BinaryResult{
		Bytes:      []byte("<html>error page</html>"),
		MimeType:   "text/html",
		ByteLength: 24,
	}
	_, err := Inline(res, AudioFamily)
	require.Error(t, err)

	var gerr *shared.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, shared.KindUnsupportedPayloadType, gerr.Kind)
}

func TestInlineValidationOrder(t *testing.T) {
	// Emptiness wins over content type when both are wrong.
	_, err := Inline(&shared.BinaryResult{MimeType: "text/html"}, AudioFamily)
	var gerr *shared.GatewayError
	require.True(t, errors.As(err, &gerr))
	assert.Equal(t, shared.KindEmptyPayload, gerr.Kind)
}

func TestInlineRoundTrip(t *testing.T) {
	raw := []byte{0x49, 0x44, 0x33, 0x04, 0x00, 0xff, 0xfb, 0x90}
	res := &shared.BinaryResult{Bytes: raw, MimeType: "audio/mpeg", ByteLength: len(raw)}

	payload, err := Inline(res, AudioFamily)
	require.NoError(t, err)
	assert.Equal(t, "audio/mpeg", payload.MimeType)
	assert.Equal(t, len(raw), payload.ByteLength)
	assert.Contains(t, payload.DataURI, "data:audio/mpeg;base64,")

	decoded, mime, err := Decode(payload.DataURI)
	require.NoError(t, err)
	assert.Equal(t, raw, decoded)
	assert.Equal(t, "audio/mpeg", mime)
}

func TestDecodeRejectsNonDataURI(t *testing.T) {
	_, _, err := Decode("https://example.com/clip.mp3")
	assert.Error(t, err)
}
