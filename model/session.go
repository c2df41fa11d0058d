package model

import "time"

// Turn is one round of conversation. Either side may be empty (a turn
// that only carries an assistant notice, for example).
type Turn struct {
	UserText      string    `json:"user_text,omitempty"`
	AssistantText string    `json:"assistant_text,omitempty"`
	Timestamp     time.Time `json:"timestamp"`
	Citations     []string  `json:"citations"`
}

// ConversationHistory is the ordered, append-only sequence of turns for
// one session.
type ConversationHistory struct {
	Turns []Turn `json:"turns"`
}

// Append records a completed turn.
func (h *ConversationHistory) Append(t Turn) {
	if t.Timestamp.IsZero() {
		t.Timestamp = time.Now().UTC()
	}
	h.Turns = append(h.Turns, t)
}

// SessionBundle carries everything the orchestrator needs for one
// request. The caller owns it: the orchestrator updates the bundle it is
// handed (profile, history) but holds no session state of its own.
type SessionBundle struct {
	UserProfile UserProfile         `json:"user_profile"`
	History     ConversationHistory `json:"history"`
	Phase       Phase               `json:"phase"`
	Locale      Locale              `json:"locale"`
	RequestID   string              `json:"request_id,omitempty"`
}

// ChatRequest is the wire form of one user turn.
type ChatRequest struct {
	SessionBundle SessionBundle `json:"session_bundle"`
	UserInput     string        `json:"user_input"`
}

// ChatResponse is the wire form of the assistant's reply. Citations are
// in retrieval order so bracketed [i] references in the answer resolve
// positionally to Citations[i-1].
type ChatResponse struct {
	AssistantText   string      `json:"assistant_text"`
	SuggestedPhase  Phase       `json:"suggested_phase"`
	UserProfile     UserProfile `json:"user_profile"`
	Citations       []string    `json:"citations"`
	ValidationFlags []string    `json:"validation_flags"`
	TraceID         string      `json:"trace_id"`
}

// Validation flag values surfaced on ChatResponse.
const (
	FlagLLMError  = "LLM_ERROR"
	FlagKBError   = "KB_ERROR"
	FlagNoKBMatch = "NO_KB_MATCH"
)
