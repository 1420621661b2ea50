// Package upstream wraps the two third-party provider protocols behind
// uniform internal call shapes: a chunked SSE chat-completion POST and
// a single-response binary speech GET.
package upstream

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"sync"

	"muse-api/internal/shared"

	"go.uber.org/zap"
)

// ChatClient issues streaming chat-completion requests. One client per
// configured provider; safe for concurrent use.
type ChatClient struct {
	Endpoint string
	APIKey   string
	Model    string

	Log          *zap.SugaredLogger
	httpClients  map[string]*http.Client
	clientsMutex sync.RWMutex
}

func NewChatClient(endpoint, apiKey, model string, log *zap.SugaredLogger) *ChatClient {
	return &ChatClient{
		Endpoint:    endpoint,
		APIKey:      apiKey,
		Model:       model,
		Log:         log,
		httpClients: make(map[string]*http.Client),
	}
}

// ChatInput is one two-message exchange sent upstream.
type ChatInput struct {
	SystemPrompt string
	UserPrompt   string
	Reasoning    bool
}

type chatBody struct {
	Model          string               `json:"model"`
	Messages       []shared.ChatMessage `json:"messages"`
	Stream         bool                 `json:"stream"`
	StreamOptions  *streamOptions       `json:"stream_options,omitempty"`
	EnableThinking bool                 `json:"enable_thinking,omitempty"`
}

type streamOptions struct {
	IncludeUsage bool `json:"include_usage"`
}

// OpenStream POSTs the exchange with streaming enabled and returns the
// response body unread, so the normalizer consumes it lazily and client
// back-pressure propagates to the upstream read. The caller owns the
// returned body and must close it on every path.
func (cc *ChatClient) OpenStream(ctx context.Context, in ChatInput) (io.ReadCloser, error) {
	body := chatBody{
		Model: cc.Model,
		Messages: []shared.ChatMessage{
			{Role: "system", Content: in.SystemPrompt},
			{Role: "user", Content: in.UserPrompt},
		},
		Stream:         true,
		StreamOptions:  &streamOptions{IncludeUsage: true},
		EnableThinking: in.Reasoning,
	}
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, errors.Join(shared.Invalid("failed building request"), err)
	}

	r, err := http.NewRequestWithContext(ctx, http.MethodPost, cc.Endpoint+"/v1/chat/completions", bytes.NewBuffer(payload))
	if err != nil {
		return nil, errors.Join(shared.Invalid("failed building request"), err)
	}
	r.Header.Set("Content-Type", "application/json")
	r.Header.Set("Authorization", "Bearer "+cc.APIKey)
	r.Header.Set("Connection", "keep-alive")

	res, err := cc.getHTTPClient(cc.Endpoint).Do(r)
	if err != nil {
		return nil, &shared.GatewayError{
			Kind:       shared.KindUpstreamUnavailable,
			StatusCode: 503,
			Msg:        "upstream provider unavailable",
			Err:        err,
		}
	}

	if res.StatusCode != http.StatusOK {
		detail := readErrorDetail(res.Body, cc.APIKey)
		if closeErr := res.Body.Close(); closeErr != nil {
			cc.Log.Warnw("Failed to close error response body", "error", closeErr)
		}
		return nil, shared.UpstreamStatus(res.StatusCode,
			fmt.Errorf("chat upstream status %d: %s", res.StatusCode, detail))
	}

	return res.Body, nil
}

// readErrorDetail pulls a bounded, credential-redacted snippet of an
// upstream error body for the server-side log chain.
func readErrorDetail(body io.Reader, secret string) string {
	raw, err := io.ReadAll(io.LimitReader(body, 1024))
	if err != nil {
		return "unreadable body"
	}
	return shared.Redact(shared.Truncate(string(raw), 512), secret)
}

func (cc *ChatClient) getHTTPClient(endpoint string) *http.Client {
	parsedURL, err := url.Parse(endpoint)
	if err != nil {
		cc.Log.Warnw("Failed to parse upstream URL, using full URL as key", "url", endpoint, "error", err)
		parsedURL = &url.URL{Host: endpoint}
	}
	host := parsedURL.Host

	cc.clientsMutex.RLock()
	if client, exists := cc.httpClients[host]; exists {
		cc.clientsMutex.RUnlock()
		return client
	}
	cc.clientsMutex.RUnlock()

	cc.clientsMutex.Lock()
	defer cc.clientsMutex.Unlock()

	if client, exists := cc.httpClients[host]; exists {
		return client
	}

	tr := &http.Transport{
		Dial: (&net.Dialer{
			Timeout: shared.DefaultDialTimeout,
		}).Dial,
		TLSHandshakeTimeout: shared.DefaultDialTimeout,
		DisableKeepAlives:   false,
	}
	// Total-transfer ceiling; the design has no per-request timeout, so
	// the client bound keeps abandoned streams from pinning sockets.
	client := &http.Client{Transport: tr, Timeout: shared.DefaultHTTPTimeout}

	cc.httpClients[host] = client
	cc.Log.Infow("Created new HTTP client for host", "host", host)

	return client
}
