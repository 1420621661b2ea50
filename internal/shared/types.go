package shared

// GenerateRequest is the client-facing generation request. Which fields
// are required depends on the task kind; validation happens before any
// upstream call.
type GenerateRequest struct {
	Task      string `json:"task"`
	Prompt    string `json:"prompt"`
	Script    string `json:"script,omitempty"` // alias for Prompt on speech requests
	Style     string `json:"style,omitempty"`
	Language  string `json:"language,omitempty"`
	Voice     string `json:"voice,omitempty"`
	Stream    bool   `json:"stream,omitempty"`
	Reasoning bool   `json:"reasoning,omitempty"`
}

// Text returns the prompt, falling back to the script alias.
func (r *GenerateRequest) Text() string {
	if r.Prompt != "" {
		return r.Prompt
	}
	return r.Script
}

type ChatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamEvent is one client-visible frame of a streamed text response.
type StreamEvent struct {
	Content   string `json:"content"`
	Reasoning string `json:"reasoning"`
}

type Usage struct {
	PromptTokens     uint64 `json:"prompt_tokens"`
	CompletionTokens uint64 `json:"completion_tokens"`
	TotalTokens      uint64 `json:"total_tokens"`
}

// GenerateData is the payload of a successful non-streaming text response.
type GenerateData struct {
	Content string `json:"content"`
	Model   string `json:"model"`
	Task    string `json:"task"`
	Usage   *Usage `json:"usage,omitempty"`
}

type GenerateResponse struct {
	Success bool          `json:"success"`
	Data    *GenerateData `json:"data"`
}

// SpeechResponse carries one synthesized clip inline as a data URI.
type SpeechResponse struct {
	Success  bool   `json:"success"`
	AudioURL string `json:"audioUrl"`
	Type     string `json:"type"`
	Size     int    `json:"size"`
}

// ErrorResponse is the single failure envelope for every route.
type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Message string `json:"message"`
}

// BinaryResult is one buffered upstream media response. It lives for a
// single request: validated, converted to a data URI, then discarded.
type BinaryResult struct {
	Bytes      []byte
	MimeType   string
	ByteLength int
}

// InlinePayload is the normalized inline-data form of a BinaryResult.
type InlinePayload struct {
	DataURI    string
	MimeType   string
	ByteLength int
}

// Voice is one entry of the upstream synthesis voice catalog.
type Voice struct {
	ID       string `json:"id"`
	Name     string `json:"name,omitempty"`
	Language string `json:"language,omitempty"`
}
