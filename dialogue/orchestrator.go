// Package dialogue implements the two-phase chat orchestration: an
// info-collection protocol that fills and validates a user profile, then
// grounded Q&A over the benefits knowledge base. The orchestrator is
// stateless across requests; the caller owns the session bundle.
package dialogue

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"

	"github.com/google/uuid"

	"github.com/nivkeidan/hmochat/kb"
	"github.com/nivkeidan/hmochat/llm"
	"github.com/nivkeidan/hmochat/model"
)

// Searcher is the retrieval capability the Q&A phase depends on.
type Searcher interface {
	Search(ctx context.Context, query string, hmo model.HMO, tier model.Tier, topK int) ([]kb.Chunk, error)
}

// Config bounds one handled turn.
type Config struct {
	TopK            int
	MaxContextChars int
	MaxHistoryChars int
}

func (c *Config) applyDefaults() {
	if c.TopK <= 0 {
		c.TopK = 6
	}
	if c.MaxContextChars <= 0 {
		c.MaxContextChars = 12000
	}
	if c.MaxHistoryChars <= 0 {
		c.MaxHistoryChars = 42000
	}
}

// Orchestrator drives one conversation turn to completion.
type Orchestrator struct {
	cfg      Config
	chat     llm.ChatClient
	searcher Searcher
}

// New creates an orchestrator over a chat client and a retriever.
func New(chat llm.ChatClient, searcher Searcher, cfg Config) *Orchestrator {
	cfg.applyDefaults()
	return &Orchestrator{cfg: cfg, chat: chat, searcher: searcher}
}

// HandleChat handles one user turn. It updates the caller-owned session
// bundle in place (profile, history, phase) and returns the wire
// response. Upstream failures surface as locale-appropriate fallback
// responses, never partial answers; only context cancellation is
// returned as an error.
func (o *Orchestrator) HandleChat(ctx context.Context, req *model.ChatRequest) (model.ChatResponse, error) {
	sb := &req.SessionBundle

	locale := sb.Locale
	if locale == "" {
		locale = sb.UserProfile.Locale
	}
	if locale == "" {
		locale = model.LocaleHE
	}

	traceID := sb.RequestID
	if traceID == "" {
		traceID = uuid.NewString()
	}

	if sb.Phase == model.PhaseQNA {
		return o.turnQNA(ctx, sb, req.UserInput, locale, traceID)
	}
	return o.turnInfo(ctx, sb, req.UserInput, locale, traceID)
}

// infoReply is the JSON contract the info-phase LLM must honor.
type infoReply struct {
	AssistantSay string         `json:"assistant_say"`
	ProfilePatch map[string]any `json:"profile_patch"`
	Status       string         `json:"status"`
}

func (o *Orchestrator) turnInfo(ctx context.Context, sb *model.SessionBundle, userInput string, locale model.Locale, traceID string) (model.ChatResponse, error) {
	profile := sb.UserProfile
	problems := profile.Problems()

	validationLine := "VALIDATION: OK"
	if len(problems) > 0 {
		validationLine = "VALIDATION: MISSING/INVALID -> " + strings.Join(problems, "; ")
	}
	snapshot, _ := json.Marshal(profile)

	messages := []llm.Message{
		{Role: "system", Content: sysPromptInfo(locale)},
		{Role: "system", Content: "PROFILE_SNAPSHOT_JSON: " + string(snapshot)},
		{Role: "system", Content: validationLine},
	}
	messages = append(messages, historyMessages(sb.History, o.cfg.MaxHistoryChars)...)
	messages = append(messages, llm.Message{Role: "user", Content: userInput})

	raw, err := o.chat.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Temperature: 0.2,
		MaxTokens:   350,
		JSONMode:    true,
	})
	if err != nil {
		if ctx.Err() != nil {
			return model.ChatResponse{}, ctx.Err()
		}
		slog.Error("dialogue: info chat failed", "error", err, "request_id", traceID)
		return o.finish(sb, locale, traceID, turnResult{
			assistantText: llmErrorText(locale),
			phase:         model.PhaseInfoCollection,
			flags:         []string{model.FlagLLMError},
			userInput:     userInput,
		}), nil
	}

	var reply infoReply
	if jsonErr := json.Unmarshal([]byte(raw), &reply); jsonErr != nil {
		slog.Warn("dialogue: malformed info JSON, using fallback",
			"error", jsonErr, "request_id", traceID)
		reply = infoReply{
			AssistantSay: parseFallbackText(locale),
			Status:       "ASKING",
		}
	}
	if strings.TrimSpace(reply.AssistantSay) == "" {
		reply.AssistantSay = defaultAckText(locale)
	}

	newProfile := mergePatch(profile, reply.ProfilePatch, traceID)

	phase := model.PhaseInfoCollection
	if strings.ToUpper(strings.TrimSpace(reply.Status)) == "CONFIRMED" && newProfile.Complete() {
		phase = model.PhaseQNA
	}

	sb.UserProfile = newProfile
	return o.finish(sb, locale, traceID, turnResult{
		assistantText: strings.TrimSpace(reply.AssistantSay),
		phase:         phase,
		userInput:     userInput,
	}), nil
}

func (o *Orchestrator) turnQNA(ctx context.Context, sb *model.SessionBundle, userInput string, locale model.Locale, traceID string) (model.ChatResponse, error) {
	profile := sb.UserProfile

	// Fund and tier hints sharpen the embedding without constraining it.
	retrievalQuery := userInput
	if profile.HMOName != "" {
		retrievalQuery += " | " + string(profile.HMOName)
	}
	if profile.MembershipTier != "" {
		retrievalQuery += " | " + string(profile.MembershipTier)
	}

	found, err := o.searcher.Search(ctx, retrievalQuery, profile.HMOName, profile.MembershipTier, o.cfg.TopK)
	if err != nil {
		if ctx.Err() != nil {
			return model.ChatResponse{}, ctx.Err()
		}
		slog.Error("dialogue: retrieval failed", "error", err, "request_id", traceID)
		return o.finish(sb, locale, traceID, turnResult{
			assistantText: kbErrorText(locale),
			phase:         model.PhaseQNA,
			flags:         []string{model.FlagKBError},
			userInput:     userInput,
		}), nil
	}
	if len(found) == 0 {
		return o.finish(sb, locale, traceID, turnResult{
			assistantText: noMatchText(locale),
			phase:         model.PhaseQNA,
			flags:         []string{model.FlagNoKBMatch},
			userInput:     userInput,
		}), nil
	}

	contextBlob, citations := composeContext(found, o.cfg.MaxContextChars)
	profileLine := fmt.Sprintf("HMO=%s | Tier=%s | Gender=%s | BirthYear=%d",
		profile.HMOName, profile.MembershipTier, profile.Gender, profile.BirthYear)

	messages := []llm.Message{
		{Role: "system", Content: sysPromptQNA(locale)},
		{Role: "system", Content: "Knowledge snippets:\n" + contextBlob},
		{Role: "system", Content: "User " + profileLine},
	}
	messages = append(messages, historyMessages(sb.History, o.cfg.MaxHistoryChars)...)
	messages = append(messages, llm.Message{Role: "user", Content: userInstructionsQNA(locale) + "\n\n" + userInput})

	answer, err := o.chat.Chat(ctx, llm.ChatRequest{
		Messages:    messages,
		Temperature: 0.2,
		MaxTokens:   600,
	})
	if err != nil {
		if ctx.Err() != nil {
			return model.ChatResponse{}, ctx.Err()
		}
		slog.Error("dialogue: qna chat failed", "error", err, "request_id", traceID)
		return o.finish(sb, locale, traceID, turnResult{
			assistantText: llmErrorText(locale),
			phase:         model.PhaseQNA,
			flags:         []string{model.FlagLLMError},
			userInput:     userInput,
		}), nil
	}

	if dangling := danglingRefs(answer, citations); len(dangling) > 0 {
		slog.Debug("dialogue: answer cites beyond retrieved snippets",
			"refs", dangling, "request_id", traceID)
	}

	return o.finish(sb, locale, traceID, turnResult{
		assistantText: answer,
		phase:         model.PhaseQNA,
		citations:     citations,
		userInput:     userInput,
	}), nil
}

// composeContext renders retrieved chunks as numbered fielded lines and
// returns the positional citation list. The block is capped at maxChars;
// when truncated its last character is the ellipsis marker.
func composeContext(found []kb.Chunk, maxChars int) (string, []string) {
	parts := make([]string, len(found))
	citations := make([]string, len(found))
	for i, ch := range found {
		fields := []string{ch.Section, ch.Service, string(ch.HMO),
			strings.Join(ch.TierTags, "|"), ch.Text, ch.SourceURI, string(ch.Kind)}
		var kept []string
		for _, f := range fields {
			if f != "" {
				kept = append(kept, f)
			}
		}
		parts[i] = fmt.Sprintf("[%d] %s", i+1, strings.Join(kept, " | "))
		citations[i] = ch.SourceURI
	}

	blob := strings.Join(parts, "\n\n")
	if runes := []rune(blob); len(runes) > maxChars {
		blob = string(runes[:maxChars-1]) + "…"
	}
	return blob, citations
}

// turnResult carries everything finish needs to close out a turn.
type turnResult struct {
	assistantText string
	phase         model.Phase
	flags         []string
	citations     []string
	userInput     string
}

// finish appends the turn to history, advances the bundle phase, and
// builds the wire response. Turn append, profile merge (done by the
// callers) and response emission happen in this order on every path.
func (o *Orchestrator) finish(sb *model.SessionBundle, locale model.Locale, traceID string, r turnResult) model.ChatResponse {
	sb.History.Append(model.Turn{
		UserText:      r.userInput,
		AssistantText: r.assistantText,
		Citations:     r.citations,
	})
	sb.Phase = r.phase

	return model.ChatResponse{
		AssistantText:   r.assistantText,
		SuggestedPhase:  r.phase,
		UserProfile:     sb.UserProfile,
		Citations:       r.citations,
		ValidationFlags: r.flags,
		TraceID:         traceID,
	}
}
