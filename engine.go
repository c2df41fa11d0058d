// Package hmochat wires the retrieval-grounded medical-assistant chat
// core: the Azure OpenAI clients, the HTML benefits knowledge base, the
// two-phase dialogue orchestrator and the optional audit store.
package hmochat

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/nivkeidan/hmochat/dialogue"
	"github.com/nivkeidan/hmochat/kb"
	"github.com/nivkeidan/hmochat/llm"
	"github.com/nivkeidan/hmochat/model"
	"github.com/nivkeidan/hmochat/store"
)

// Engine is the entry point a gateway talks to. It is safe for
// concurrent use; per-session serialization is the caller's job.
type Engine struct {
	cfg   Config
	azure *llm.AzureClient
	kb    *kb.KB
	orch  *dialogue.Orchestrator
	audit *store.Store
}

// New builds the engine: constructs the Azure client, builds or reloads
// the knowledge base, and wires the orchestrator. The KB build may make
// embedding calls; pass a context you are willing to wait on.
func New(ctx context.Context, cfg Config) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	azure := llm.NewAzure(llm.Config{
		Endpoint:             cfg.Azure.Endpoint,
		APIKey:               cfg.Azure.APIKey,
		APIVersion:           cfg.Azure.APIVersion,
		ChatDeployment:       cfg.Azure.ChatDeployment,
		EmbeddingsDeployment: cfg.Azure.EmbeddingsDeployment,
		RequestTimeout:       cfg.Azure.RequestTimeout(),
		MaxRetries:           cfg.Azure.MaxRetries,
		BackoffBase:          cfg.Azure.BackoffBase(),
	})

	e := &Engine{cfg: cfg, azure: azure}

	var kbOpts []kb.Option
	if cfg.StorePath != "" {
		audit, err := store.New(cfg.StorePath, cfg.EmbeddingDim)
		if err != nil {
			return nil, fmt.Errorf("opening audit store: %w", err)
		}
		e.audit = audit
		kbOpts = append(kbOpts, kb.WithAuditStore(audit))
	}

	index, err := kb.New(ctx, azure, kb.Config{
		KBDir:                cfg.KBDir,
		CacheDir:             cfg.CacheDir,
		EmbeddingsDeployment: cfg.Azure.EmbeddingsDeployment,
		BatchSize:            cfg.EmbedBatchSize,
		TopK:                 cfg.TopK,
		HMOMismatchBias:      cfg.HMOMismatchBias,
		TierMatchBias:        cfg.TierMatchBias,
	}, kbOpts...)
	if err != nil {
		if e.audit != nil {
			e.audit.Close()
		}
		return nil, fmt.Errorf("%w: %v", ErrBuildFailed, err)
	}
	e.kb = index

	e.orch = dialogue.New(azure, index, dialogue.Config{
		TopK:            cfg.TopK,
		MaxContextChars: cfg.MaxContextChars,
		MaxHistoryChars: cfg.MaxHistoryChars,
	})
	return e, nil
}

// HandleChat handles one user turn and logs it to the audit store when
// one is configured.
func (e *Engine) HandleChat(ctx context.Context, req *model.ChatRequest) (model.ChatResponse, error) {
	resp, err := e.orch.HandleChat(ctx, req)
	if err != nil {
		return resp, err
	}

	if e.audit != nil {
		logErr := e.audit.LogTurn(ctx, store.TurnRecord{
			TraceID:         resp.TraceID,
			Phase:           string(resp.SuggestedPhase),
			Locale:          string(req.SessionBundle.Locale),
			UserText:        req.UserInput,
			AssistantText:   resp.AssistantText,
			ValidationFlags: resp.ValidationFlags,
			Citations:       resp.Citations,
		})
		if logErr != nil {
			slog.Warn("engine: turn audit log failed", "error", logErr, "trace_id", resp.TraceID)
		}
	}
	return resp, nil
}

// KBFingerprint identifies the loaded knowledge-base build.
func (e *Engine) KBFingerprint() string { return e.kb.Fingerprint() }

// KBSize is the number of indexed chunks.
func (e *Engine) KBSize() int { return e.kb.Len() }

// Close releases the audit store, if any.
func (e *Engine) Close() error {
	if e.audit != nil {
		return e.audit.Close()
	}
	return nil
}
