// Package media validates buffered upstream media and encodes it into a
// self-contained data-URI payload. Pure transform, no upstream I/O.
package media

import (
	"encoding/base64"
	"fmt"
	"strings"

	"muse-api/internal/shared"
)

// AudioFamily is the media-family prefix an audio payload must declare.
const AudioFamily = "audio/"

// Inline validates res against the expected media family and encodes it
// as a base64 data URI. Validation order is fixed: emptiness first,
// then content type.
func Inline(res *shared.BinaryResult, family string) (*shared.InlinePayload, error) {
	if res.ByteLength == 0 {
		return nil, shared.ErrEmptyAudio
	}
	if !strings.HasPrefix(res.MimeType, family) {
		return nil, &shared.GatewayError{
			Kind:       shared.KindUnsupportedPayloadType,
			StatusCode: 500,
			Msg:        shared.ErrNotAudio.Msg,
			Err:        fmt.Errorf("got content type %q, want %s*", res.MimeType, family),
		}
	}

	encoded := base64.StdEncoding.EncodeToString(res.Bytes)
	return &shared.InlinePayload{
		DataURI:    fmt.Sprintf("data:%s;base64,%s", res.MimeType, encoded),
		MimeType:   res.MimeType,
		ByteLength: res.ByteLength,
	}, nil
}

// Decode reverses a data URI produced by Inline back into raw bytes.
// Used by tests and any collaborator that persists artifacts.
func Decode(dataURI string) ([]byte, string, error) {
	rest, ok := strings.CutPrefix(dataURI, "data:")
	if !ok {
		return nil, "", fmt.Errorf("not a data URI")
	}
	mime, payload, ok := strings.Cut(rest, ";base64,")
	if !ok {
		return nil, "", fmt.Errorf("missing base64 marker")
	}
	raw, err := base64.StdEncoding.DecodeString(payload)
	if err != nil {
		return nil, "", fmt.Errorf("invalid base64 payload: %w", err)
	}
	return raw, mime, nil
}
