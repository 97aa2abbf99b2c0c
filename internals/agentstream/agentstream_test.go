package agentstream

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/hookvibe/hookcode-sub000/internals/schemas"
)

func TestCodexEvents(t *testing.T) {
	dec := For(schemas.ModelProviderCodex)

	ev := dec.Decode(`{"type":"thread.started","thread_id":"th_123"}`)
	assert.Equal(t, "th_123", ev.SessionID)

	ev = dec.Decode(`{"type":"turn.completed","usage":{"input_tokens":10,"cached_input_tokens":4,"output_tokens":5}}`)
	require.NotNil(t, ev.Usage)
	assert.Equal(t, Usage{InputTokens: 10, OutputTokens: 5}, *ev.Usage)

	ev = dec.Decode(`{"type":"item.completed","item":{"type":"agent_message","text":"all done"}}`)
	assert.Equal(t, "all done", ev.Text)
}

func TestClaudeEvents(t *testing.T) {
	dec := For(schemas.ModelProviderClaude)

	ev := dec.Decode(`{"type":"system","subtype":"init","session_id":"sess-1"}`)
	assert.Equal(t, "sess-1", ev.SessionID)

	ev = dec.Decode(`{"type":"result","subtype":"success","result":"patched","session_id":"sess-1","usage":{"input_tokens":2,"output_tokens":1}}`)
	assert.True(t, ev.Final)
	assert.Equal(t, "patched", ev.Text)
	require.NotNil(t, ev.Usage)
	assert.Equal(t, int64(2), ev.Usage.InputTokens)

	assert.True(t, dec.Decode(`{"type":"system","subtype":"compact","session_id":"x"}`).Empty())
}

func TestGeminiEvents(t *testing.T) {
	dec := For(schemas.ModelProviderGeminiCLI)

	assert.Equal(t, "g-9", dec.Decode(`{"type":"init","session_id":"g-9","model":"gemini-2.5-pro"}`).SessionID)
	ev := dec.Decode(`{"type":"result","status":"success","stats":{"input_tokens":7,"output_tokens":3,"total_tokens":10}}`)
	require.NotNil(t, ev.Usage)
	assert.Equal(t, Usage{InputTokens: 7, OutputTokens: 3}, *ev.Usage)
}

func TestNegativeUsageIsClamped(t *testing.T) {
	ev := For(schemas.ModelProviderCodex).Decode(`{"type":"turn.completed","usage":{"input_tokens":-4,"output_tokens":2}}`)
	require.NotNil(t, ev.Usage)
	assert.Equal(t, Usage{InputTokens: 0, OutputTokens: 2}, *ev.Usage)
}

func TestPlainLinesHaveNoEvents(t *testing.T) {
	lines := []string{
		"",
		"Cloning into 'api'...",
		"[1,2,3]",
		`{"type":`,
		`{"kind":"thread.started","thread_id":"nope"}`,
		`{"type":42}`,
		`{"type":"turn.completed"}`,
		`{"type":"thread.started","thread_id":{"nested":true}}`,
	}
	for _, provider := range []schemas.ModelProvider{schemas.ModelProviderCodex, schemas.ModelProviderClaude, schemas.ModelProviderGeminiCLI, "unknown"} {
		dec := For(provider)
		for _, line := range lines {
			assert.True(t, dec.Decode(line).Empty(), "provider %s line %q", provider, line)
		}
	}
}
