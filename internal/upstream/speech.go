package upstream

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"muse-api/internal/shared"

	"go.uber.org/zap"
)

// SpeechClient fetches synthesized speech from the binary upstream. The
// whole response is buffered: normalization needs byte length and exact
// content type before anything can be surfaced.
type SpeechClient struct {
	Endpoint string
	APIKey   string

	Log    *zap.SugaredLogger
	client *http.Client
}

func NewSpeechClient(endpoint, apiKey string, log *zap.SugaredLogger) *SpeechClient {
	return &SpeechClient{
		Endpoint: endpoint,
		APIKey:   apiKey,
		Log:      log,
		client:   &http.Client{Timeout: 60 * time.Second},
	}
}

// Synthesize GETs one clip for script, with the script percent-encoded
// into the path and the voice carried as a query parameter.
func (sc *SpeechClient) Synthesize(ctx context.Context, script, voice string) (*shared.BinaryResult, error) {
	target := fmt.Sprintf("%s/v1/speech/%s?voice=%s",
		sc.Endpoint, url.PathEscape(script), url.QueryEscape(voice))

	r, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, errors.Join(shared.Invalid("failed building request"), err)
	}
	r.Header.Set("Authorization", "Bearer "+sc.APIKey)

	res, err := sc.client.Do(r)
	if err != nil {
		return nil, &shared.GatewayError{
			Kind:       shared.KindUpstreamUnavailable,
			StatusCode: 503,
			Msg:        "upstream provider unavailable",
			Err:        err,
		}
	}
	defer func() {
		if closeErr := res.Body.Close(); closeErr != nil {
			sc.Log.Warnw("Failed to close response body", "error", closeErr)
		}
	}()

	if res.StatusCode != http.StatusOK {
		detail := readErrorDetail(res.Body, sc.APIKey)
		return nil, shared.UpstreamStatus(res.StatusCode,
			fmt.Errorf("speech upstream status %d: %s", res.StatusCode, detail))
	}

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return nil, &shared.GatewayError{
			Kind:       shared.KindUpstreamUnavailable,
			StatusCode: 503,
			Msg:        "failed reading upstream response",
			Err:        err,
		}
	}

	return &shared.BinaryResult{
		Bytes:      raw,
		MimeType:   res.Header.Get("Content-Type"),
		ByteLength: len(raw),
	}, nil
}

// ListVoices returns the upstream synthesis voice catalog.
func (sc *SpeechClient) ListVoices(ctx context.Context) ([]shared.Voice, error) {
	r, err := http.NewRequestWithContext(ctx, http.MethodGet, sc.Endpoint+"/v1/voices", nil)
	if err != nil {
		return nil, errors.Join(shared.Invalid("failed building request"), err)
	}
	r.Header.Set("Authorization", "Bearer "+sc.APIKey)

	res, err := sc.client.Do(r)
	if err != nil {
		return nil, &shared.GatewayError{
			Kind:       shared.KindUpstreamUnavailable,
			StatusCode: 503,
			Msg:        "upstream provider unavailable",
			Err:        err,
		}
	}
	defer func() {
		_ = res.Body.Close()
	}()

	if res.StatusCode != http.StatusOK {
		detail := readErrorDetail(res.Body, sc.APIKey)
		return nil, shared.UpstreamStatus(res.StatusCode,
			fmt.Errorf("voices upstream status %d: %s", res.StatusCode, detail))
	}

	var voices []shared.Voice
	if err := json.NewDecoder(res.Body).Decode(&voices); err != nil {
		return nil, &shared.GatewayError{
			Kind:       shared.KindMalformedUpstreamPayload,
			StatusCode: 502,
			Msg:        "upstream returned an unreadable voice list",
			Err:        err,
		}
	}
	return voices, nil
}
