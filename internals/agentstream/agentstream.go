// Package agentstream decodes the newline-delimited JSON event streams the
// coding agent CLIs write to stdout.
package agentstream

import (
	"encoding/json"
	"strings"

	"github.com/tidwall/gjson"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

// Usage is a per-line token delta.
type Usage struct {
	InputTokens  int64
	OutputTokens int64
}

// Event is what one line contributed. The zero value means a plain log line.
type Event struct {
	SessionID string
	Usage     *Usage
	// Text is assistant output carried by the line, if any.
	Text string
	// Final marks the provider's terminal result event.
	Final bool
}

func (e Event) Empty() bool {
	return e.SessionID == "" && e.Usage == nil && e.Text == "" && !e.Final
}

type Decoder interface {
	Decode(line string) Event
}

// For returns the decoder for provider. Unknown providers get a decoder
// that never extracts anything.
func For(provider schemas.ModelProvider) Decoder {
	switch provider {
	case schemas.ModelProviderCodex:
		return codexDecoder{}
	case schemas.ModelProviderClaude:
		return claudeDecoder{}
	case schemas.ModelProviderGeminiCLI:
		return geminiDecoder{}
	default:
		return plainDecoder{}
	}
}

// discriminant peeks at the event tag without decoding the whole line.
func discriminant(line string, field string) (gjson.Result, string, bool) {
	line = strings.TrimSpace(line)
	if line == "" || line[0] != '{' || !gjson.Valid(line) {
		return gjson.Result{}, "", false
	}
	parsed := gjson.Parse(line)
	if !parsed.IsObject() {
		return gjson.Result{}, "", false
	}
	tag := parsed.Get(field)
	if tag.Type != gjson.String {
		return gjson.Result{}, "", false
	}
	return parsed, tag.String(), true
}

func decodeInto(parsed gjson.Result, out any) bool {
	return json.Unmarshal([]byte(parsed.Raw), out) == nil
}

func usageOf(input, output *int64) *Usage {
	if input == nil && output == nil {
		return nil
	}
	usage := &Usage{}
	if input != nil && *input > 0 {
		usage.InputTokens = *input
	}
	if output != nil && *output > 0 {
		usage.OutputTokens = *output
	}
	return usage
}

type plainDecoder struct{}

func (plainDecoder) Decode(string) Event { return Event{} }

type codexDecoder struct{}

type codexThreadStarted struct {
	ThreadID string `json:"thread_id"`
}

type codexTurnCompleted struct {
	Usage *struct {
		InputTokens  *int64 `json:"input_tokens"`
		OutputTokens *int64 `json:"output_tokens"`
	} `json:"usage"`
}

type codexItemCompleted struct {
	Item struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"item"`
}

func (codexDecoder) Decode(line string) Event {
	parsed, tag, ok := discriminant(line, "type")
	if !ok {
		return Event{}
	}
	switch tag {
	case "thread.started":
		var ev codexThreadStarted
		if decodeInto(parsed, &ev) {
			return Event{SessionID: strings.TrimSpace(ev.ThreadID)}
		}
	case "turn.completed":
		var ev codexTurnCompleted
		if decodeInto(parsed, &ev) && ev.Usage != nil {
			return Event{Usage: usageOf(ev.Usage.InputTokens, ev.Usage.OutputTokens), Final: true}
		}
	case "item.completed":
		var ev codexItemCompleted
		if decodeInto(parsed, &ev) && ev.Item.Type == "agent_message" {
			return Event{Text: ev.Item.Text}
		}
	}
	return Event{}
}

type claudeDecoder struct{}

type claudeSystem struct {
	Subtype   string `json:"subtype"`
	SessionID string `json:"session_id"`
}

type claudeResult struct {
	SessionID string `json:"session_id"`
	Result    string `json:"result"`
	Usage     *struct {
		InputTokens  *int64 `json:"input_tokens"`
		OutputTokens *int64 `json:"output_tokens"`
	} `json:"usage"`
}

func (claudeDecoder) Decode(line string) Event {
	parsed, tag, ok := discriminant(line, "type")
	if !ok {
		return Event{}
	}
	switch tag {
	case "system":
		var ev claudeSystem
		if decodeInto(parsed, &ev) && ev.Subtype == "init" {
			return Event{SessionID: strings.TrimSpace(ev.SessionID)}
		}
	case "result":
		var ev claudeResult
		if !decodeInto(parsed, &ev) {
			return Event{}
		}
		event := Event{SessionID: strings.TrimSpace(ev.SessionID), Text: ev.Result, Final: true}
		if ev.Usage != nil {
			event.Usage = usageOf(ev.Usage.InputTokens, ev.Usage.OutputTokens)
		}
		return event
	}
	return Event{}
}

type geminiDecoder struct{}

type geminiInit struct {
	SessionID string `json:"session_id"`
}

type geminiResult struct {
	Stats *struct {
		InputTokens  *int64 `json:"input_tokens"`
		OutputTokens *int64 `json:"output_tokens"`
	} `json:"stats"`
}

type geminiMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

func (geminiDecoder) Decode(line string) Event {
	parsed, tag, ok := discriminant(line, "type")
	if !ok {
		return Event{}
	}
	switch tag {
	case "init":
		var ev geminiInit
		if decodeInto(parsed, &ev) {
			return Event{SessionID: strings.TrimSpace(ev.SessionID)}
		}
	case "result":
		var ev geminiResult
		if !decodeInto(parsed, &ev) {
			return Event{}
		}
		event := Event{Final: true}
		if ev.Stats != nil {
			event.Usage = usageOf(ev.Stats.InputTokens, ev.Stats.OutputTokens)
		}
		return event
	case "message":
		var ev geminiMessage
		if decodeInto(parsed, &ev) && ev.Role == "assistant" {
			return Event{Text: ev.Content}
		}
	}
	return Event{}
}
