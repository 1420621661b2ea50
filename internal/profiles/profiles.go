// Package profiles maps a declared task kind to the system instruction
// and output contract driving the upstream call. Resolution is pure; no
// upstream I/O happens here.
package profiles

import (
	"fmt"
	"strings"

	"muse-api/internal/shared"
)

// TaskKind is the closed set of generation tasks. Adding a kind means
// extending Parse and the Resolve switch; the compiler flags any switch
// left non-exhaustive by a new case paired with tests below.
type TaskKind string

const (
	TaskCopywriting TaskKind = "copywriting"
	TaskCode        TaskKind = "code"
	TaskSpeech      TaskKind = "speech"
)

// CodeSeparator is the literal line dividing the fenced code block from
// the explanation in code-task output. Downstream renderers split on it,
// so it is part of the output contract, not a style suggestion.
const CodeSeparator = "---"

// OutputContract declares the shape the upstream response must take.
type OutputContract int

const (
	// ContractText is free-form text, streamable token by token.
	ContractText OutputContract = iota
	// ContractFencedBlock is exactly one fenced code block, a line
	// holding only CodeSeparator, then prose explanation.
	ContractFencedBlock
)

type Profile struct {
	SystemPrompt string
	Contract     OutputContract
}

// Satisfies reports whether a complete generated payload honors the
// profile's output contract. Free-form text always does; the fenced
// contract needs the code block and the separator line in order.
func (p *Profile) Satisfies(content string) bool {
	switch p.Contract {
	case ContractFencedBlock:
		fenceEnd := strings.Index(content, "\n```")
		if !strings.HasPrefix(content, "```") || fenceEnd < 0 {
			return false
		}
		return strings.Contains(content[fenceEnd:], "\n"+CodeSeparator+"\n")
	default:
		return true
	}
}

// Parse validates a client-declared task kind.
func Parse(s string) (TaskKind, error) {
	switch TaskKind(s) {
	case TaskCopywriting, TaskCode, TaskSpeech:
		return TaskKind(s), nil
	}
	return "", shared.ErrUnknownTask
}

// Resolve returns the profile for a text-generation task. Speech has no
// profile; the dispatcher routes it straight to the media adapter.
func Resolve(kind TaskKind, req *shared.GenerateRequest) (*Profile, error) {
	switch kind {
	case TaskCopywriting:
		style := req.Style
		if style == "" {
			style = shared.DefaultCopyStyle
		}
		return &Profile{
			SystemPrompt: fmt.Sprintf(
				"You are an expert copywriter. Write compelling, clear copy in a %s tone. "+
					"Respond with the copy only, no preamble.", style),
			Contract: ContractText,
		}, nil
	case TaskCode:
		language := req.Language
		if language == "" {
			language = shared.DefaultCodeLanguage
		}
		return &Profile{
			SystemPrompt: fmt.Sprintf(
				"You are an expert %s programmer. Respond with exactly one fenced code block "+
					"containing the %s solution, then a line containing only %s, then a short "+
					"explanation of how the code works. Nothing before the code block.",
				language, language, CodeSeparator),
			Contract: ContractFencedBlock,
		}, nil
	case TaskSpeech:
		return nil, shared.Invalid("speech tasks have no text profile")
	}
	return nil, shared.ErrUnknownTask
}
