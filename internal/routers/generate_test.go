package routers

import (
	"bufio"
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"muse-api/internal/gateway"
	"muse-api/internal/media"
	"muse-api/internal/middleware"
	"muse-api/internal/shared"
	"muse-api/internal/upstream"

	"github.com/labstack/echo/v4"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// testEnv wires the full stack against fake upstreams: echo with the
// tracking middleware, the gateway, and both adapters.
type testEnv struct {
	server *httptest.Server

	chatCalls   atomic.Int32
	speechCalls atomic.Int32

	chatSSE    string
	speechBody []byte
	speechMime string
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{speechMime: "audio/mpeg"}

	chatSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.chatCalls.Add(1)
		w.Header().Set("Content-Type", "text/event-stream")
		_, _ = w.Write([]byte(env.chatSSE))
	}))
	t.Cleanup(chatSrv.Close)

	speechSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		env.speechCalls.Add(1)
		w.Header().Set("Content-Type", env.speechMime)
		_, _ = w.Write(env.speechBody)
	}))
	t.Cleanup(speechSrv.Close)

	log := zap.NewNop().Sugar()
	gw := gateway.New(
		upstream.NewChatClient(chatSrv.URL, "key", "test-model", log),
		upstream.NewSpeechClient(speechSrv.URL, "key", log),
		nil,
		log,
	)

	e := echo.New()
	base := e.Group("")
	base.Use(middleware.NewRecoverMiddleware(log))
	base.Use(middleware.NewTrackMiddleware(log))
	require.NoError(t, RegisterGenerateRoutes(base, gw))

	env.server = httptest.NewServer(e)
	t.Cleanup(env.server.Close)
	return env
}

func (env *testEnv) post(t *testing.T, body string) *http.Response {
	t.Helper()
	res, err := http.Post(env.server.URL+"/v1/generate", "application/json", strings.NewReader(body))
	require.NoError(t, err)
	return res
}

func decodeJSON[T any](t *testing.T, r io.Reader) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(r).Decode(&v))
	return v
}

func TestGenerateRejectsBeforeUpstream(t *testing.T) {
	cases := []string{
		`{"task":"code"}`,
		`{"task":"copywriting","prompt":""}`,
		`{"task":"speech"}`,
		`{"task":"image","prompt":"x"}`,
		`{not json`,
	}
	for _, body := range cases {
		env := newTestEnv(t)
		res := env.post(t, body)
		out := decodeJSON[shared.ErrorResponse](t, res.Body)
		_ = res.Body.Close()

		assert.Equal(t, http.StatusBadRequest, res.StatusCode, body)
		assert.False(t, out.Success)
		assert.Equal(t, string(shared.KindInvalidRequest), out.Error, body)
		// Fail fast: zero upstream cost for bad requests.
		assert.Equal(t, int32(0), env.chatCalls.Load(), body)
		assert.Equal(t, int32(0), env.speechCalls.Load(), body)
	}
}

func TestGenerateCodeNonStreaming(t *testing.T) {
	env := newTestEnv(t)
	// Upstream answers in the fixed code contract, split over frames.
	env.chatSSE = "data: {\"choices\":[{\"delta\":{\"content\":\"```python\\ns[::-1]\\n```\\n\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"---\\n\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"Slicing with a negative step reverses the string.\"}}]}\n\n" +
		"data: [DONE]\n\n"

	res := env.post(t, `{"task":"code","prompt":"reverse a string","language":"python","stream":false}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	out := decodeJSON[shared.GenerateResponse](t, res.Body)
	require.True(t, out.Success)
	require.NotNil(t, out.Data)
	assert.Equal(t, "test-model", out.Data.Model)
	assert.Equal(t, "code", out.Data.Task)

	// One fenced block, then the separator line, then explanation.
	parts := strings.SplitN(out.Data.Content, "\n---\n", 2)
	require.Len(t, parts, 2)
	assert.True(t, strings.HasPrefix(parts[0], "```python\n"))
	assert.True(t, strings.HasSuffix(parts[0], "```"))
	assert.Contains(t, parts[1], "reverses the string")
}

func TestGenerateStreaming(t *testing.T) {
	env := newTestEnv(t)
	env.chatSSE = "data: {\"choices\":[{\"delta\":{\"content\":\"one\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"two\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"three\"}}]}\n\n" +
		"data: {\"choices\":[{\"delta\":{\"content\":\"\",\"reasoning_content\":\"\"}}]}\n\n" +
		"data: [DONE]\n\n"

	res := env.post(t, `{"task":"copywriting","prompt":"count","stream":true}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)
	assert.Equal(t, "text/event-stream", res.Header.Get("Content-Type"))

	var events []shared.StreamEvent
	var terminals int
	scanner := bufio.NewScanner(res.Body)
	for scanner.Scan() {
		data, ok := strings.CutPrefix(scanner.Text(), "data: ")
		if !ok {
			continue
		}
		if data == "[DONE]" {
			terminals++
			continue
		}
		var ev shared.StreamEvent
		require.NoError(t, json.Unmarshal([]byte(data), &ev))
		events = append(events, ev)
	}
	require.NoError(t, scanner.Err())

	// The empty-both frame is suppressed: three content events, one terminal.
	require.Len(t, events, 3)
	assert.Equal(t, "one", events[0].Content)
	assert.Equal(t, "two", events[1].Content)
	assert.Equal(t, "three", events[2].Content)
	assert.Equal(t, 1, terminals)
}

func TestGenerateStreamingTerminatesAfterUpstreamCutoff(t *testing.T) {
	env := newTestEnv(t)
	// Upstream hangs up with no [DONE]; the client must still get one.
	env.chatSSE = "data: {\"choices\":[{\"delta\":{\"content\":\"partial\"}}]}\n\n"

	res := env.post(t, `{"task":"copywriting","prompt":"x","stream":true}`)
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	require.NoError(t, err)
	assert.Contains(t, string(raw), `"content":"partial"`)
	assert.True(t, bytes.HasSuffix(bytes.TrimRight(raw, "\n"), []byte("data: [DONE]")))
}

func TestGenerateStreamingUpstreamRejection(t *testing.T) {
	chatSrv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, "bad model", http.StatusBadRequest)
	}))
	t.Cleanup(chatSrv.Close)

	log := zap.NewNop().Sugar()
	gw := gateway.New(upstream.NewChatClient(chatSrv.URL, "key", "m", log),
		upstream.NewSpeechClient(chatSrv.URL, "key", log), nil, log)
	e := echo.New()
	base := e.Group("")
	base.Use(middleware.NewTrackMiddleware(log))
	require.NoError(t, RegisterGenerateRoutes(base, gw))
	srv := httptest.NewServer(e)
	t.Cleanup(srv.Close)

	res, err := http.Post(srv.URL+"/v1/generate", "application/json",
		strings.NewReader(`{"task":"copywriting","prompt":"x","stream":true}`))
	require.NoError(t, err)
	defer res.Body.Close()

	// Failure before the first frame still goes out as a JSON envelope.
	require.Equal(t, http.StatusBadGateway, res.StatusCode)
	out := decodeJSON[shared.ErrorResponse](t, res.Body)
	assert.Equal(t, string(shared.KindUpstreamRejected), out.Error)
	assert.NotContains(t, out.Message, "bad model")
}

func TestGenerateSpeech(t *testing.T) {
	env := newTestEnv(t)
	env.speechBody = []byte{0x49, 0x44, 0x33, 0x01}

	res := env.post(t, `{"task":"speech","prompt":"hello","voice":"alloy"}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	out := decodeJSON[shared.SpeechResponse](t, res.Body)
	require.True(t, out.Success)
	assert.Equal(t, "audio/mpeg", out.Type)
	assert.Equal(t, 4, out.Size)

	raw, mime, err := media.Decode(out.AudioURL)
	require.NoError(t, err)
	assert.Equal(t, env.speechBody, raw)
	assert.Equal(t, "audio/mpeg", mime)
}

func TestGenerateSpeechEmptyUpstream(t *testing.T) {
	env := newTestEnv(t)
	env.speechBody = nil

	res := env.post(t, `{"task":"speech","prompt":"hello","voice":"alloy"}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)

	out := decodeJSON[shared.ErrorResponse](t, res.Body)
	assert.False(t, out.Success)
	assert.Equal(t, string(shared.KindEmptyPayload), out.Error)
	assert.Contains(t, out.Message, "empty audio")
}

func TestGenerateSpeechWrongContentType(t *testing.T) {
	env := newTestEnv(t)
	env.speechBody = []byte("<html>maintenance page</html>")
	env.speechMime = "text/html"

	res := env.post(t, `{"task":"speech","prompt":"hello"}`)
	defer res.Body.Close()
	require.Equal(t, http.StatusInternalServerError, res.StatusCode)

	out := decodeJSON[shared.ErrorResponse](t, res.Body)
	assert.Equal(t, string(shared.KindUnsupportedPayloadType), out.Error)
}

func TestVoicesRoute(t *testing.T) {
	env := newTestEnv(t)
	// The speech fake serves every path, including /v1/voices.
	env.speechBody = []byte(`[{"id":"alloy","name":"Alloy"}]`)
	env.speechMime = "application/json"

	res, err := http.Get(env.server.URL + "/v1/voices")
	require.NoError(t, err)
	defer res.Body.Close()
	require.Equal(t, http.StatusOK, res.StatusCode)

	var out struct {
		Data []shared.Voice `json:"data"`
	}
	require.NoError(t, json.NewDecoder(res.Body).Decode(&out))
	require.Len(t, out.Data, 1)
	assert.Equal(t, "alloy", out.Data[0].ID)
}
