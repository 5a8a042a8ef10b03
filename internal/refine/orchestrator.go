// Package refine orchestrates the extract-validate-repair protocol that
// turns a freeform LLM response into a validated structured result. A
// request makes at most two backend calls: one generation and, when the
// first response cannot be used as-is, one repair whose prompt embeds the
// failed output and the exact reason it was rejected.
package refine

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"promptforge/internal/backend"
	"promptforge/internal/extract"
	"promptforge/internal/metrics"
	"promptforge/internal/schema"
)

// Orchestrator drives the two-attempt state machine. Each call to Refine is
// self-contained; the orchestrator holds no per-request state and is safe
// for concurrent use.
type Orchestrator struct {
	selector      *backend.Selector
	target        *schema.Object
	temperature   float64
	repairEnabled bool
	logger        *zap.Logger
	metrics       *metrics.Metrics
}

// Options configures an Orchestrator.
type Options struct {
	Selector      *backend.Selector
	Temperature   float64
	RepairEnabled bool
	Logger        *zap.Logger
	Metrics       *metrics.Metrics

	// Target overrides the validated shape; nil means the prompt schema.
	Target *schema.Object
}

// New builds an Orchestrator.
func New(opts Options) *Orchestrator {
	logger := opts.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	target := opts.Target
	if target == nil {
		target = schema.PromptSchema()
	}
	return &Orchestrator{
		selector:      opts.Selector,
		target:        target,
		temperature:   opts.Temperature,
		repairEnabled: opts.RepairEnabled,
		logger:        logger,
		metrics:       opts.Metrics,
	}
}

// Refine runs one logical request: select a backend, generate, salvage
// structure, validate, and repair once if permitted. It always returns a
// Result; the only non-nil error is the configuration case where the
// fallback is disabled and the primary cannot be reached at all.
func (o *Orchestrator) Refine(ctx context.Context, input string, preset Preset) (*Result, error) {
	requestID := uuid.NewString()
	be, route := o.selector.Select(ctx)
	log := o.logger.With(
		zap.String("request_id", requestID),
		zap.String("backend", string(route)),
	)

	result := &Result{RequestID: requestID, Route: route}

	req := o.newRequest(be, systemPrompt(preset), input)
	res, err := be.Client.Generate(ctx, req)
	o.selector.Report(route, err)
	if err != nil {
		return o.callFailed(result, route, 1, err, log)
	}
	o.metrics.ObserveCall(string(route), "ok", res.Elapsed)

	rec := AttemptRecord{Attempt: 1, Elapsed: res.Elapsed}

	value, method, parseErr := parsePayload(res.Text)
	if parseErr != nil {
		result.Attempts = append(result.Attempts, rec)
		log.Info("attempt 1 produced no parseable JSON", zap.Error(parseErr))
		if !o.repairEnabled {
			return o.terminal(result, ReasonInvalidJSON, parseErr.Error(), log), nil
		}
		problem := fmt.Sprintf("the response was not parseable JSON: %v", parseErr)
		return o.repair(ctx, be, route, result, res.Text, problem, "parse", log)
	}
	rec.UsedExtraction = method != ""
	rec.Method = method

	o.target.Normalize(value)
	if viol := o.target.Validate(value); viol != nil {
		result.Attempts = append(result.Attempts, rec)
		log.Info("attempt 1 failed validation", zap.String("path", viol.Path), zap.String("violation", viol.Message))
		if !o.repairEnabled {
			return o.terminal(result, ReasonSchemaMismatch, viol.Error(), log), nil
		}
		problem := fmt.Sprintf("the response violated the required shape at %s: %s", viol.Path, viol.Message)
		return o.repair(ctx, be, route, result, res.Text, problem, "schema", log)
	}

	improved, err := schema.DecodeImproved(value)
	if err != nil {
		result.Attempts = append(result.Attempts, rec)
		return o.terminal(result, ReasonUnknown, err.Error(), log), nil
	}
	result.Attempts = append(result.Attempts, rec)

	// Content heuristics run on the fallback route only: the fallback is
	// the backend we trust least to have followed the instructions.
	if route == backend.RouteFallback && o.repairEnabled {
		if issues := ScanFinalText(improved.FinalText); len(issues) > 0 {
			log.Info("quality issues detected in fallback output", zap.Strings("issues", issues))
			return o.qualityRepair(ctx, be, route, result, res.Text, issues, log)
		}
	}

	result.Improved = improved
	log.Info("request succeeded",
		zap.Bool("used_extraction", rec.UsedExtraction),
		zap.Float64("confidence", improved.Confidence))
	return result, nil
}

// repair issues the single permitted schema-triggered repair call. The
// repair response is parsed directly, never extracted: a model asked to
// return bare JSON that still wraps it in prose has failed the repair
// instruction itself.
func (o *Orchestrator) repair(ctx context.Context, be *backend.Backend, route backend.Route, result *Result, raw, problem, trigger string, log *zap.Logger) (*Result, error) {
	o.metrics.RepairIssued(trigger)

	req := o.newRequest(be, repairSystemPrompt, repairUserPrompt(raw, problem, o.target))
	res, err := be.Client.Generate(ctx, req)
	o.selector.Report(route, err)
	if err != nil {
		return o.callFailed(result, route, 2, err, log)
	}
	o.metrics.ObserveCall(string(route), "ok", res.Elapsed)

	return o.finishRepair(result, res, log), nil
}

// qualityRepair issues the content-triggered repair used on the fallback
// path. Structurally identical to repair, but the prompt lists the content
// issues rather than a schema violation.
func (o *Orchestrator) qualityRepair(ctx context.Context, be *backend.Backend, route backend.Route, result *Result, raw string, issues []string, log *zap.Logger) (*Result, error) {
	o.metrics.RepairIssued("quality")

	req := o.newRequest(be, repairSystemPrompt, qualityRepairUserPrompt(raw, issues, o.target))
	res, err := be.Client.Generate(ctx, req)
	o.selector.Report(route, err)
	if err != nil {
		return o.callFailed(result, route, 2, err, log)
	}
	o.metrics.ObserveCall(string(route), "ok", res.Elapsed)

	return o.finishRepair(result, res, log), nil
}

// finishRepair parses and validates the repair response. Its outcome is
// terminal either way; there is no attempt 3.
func (o *Orchestrator) finishRepair(result *Result, res *backend.CallResult, log *zap.Logger) *Result {
	rec := AttemptRecord{Attempt: 2, UsedRepair: true, Elapsed: res.Elapsed}
	result.Attempts = append(result.Attempts, rec)

	var value any
	if err := json.Unmarshal([]byte(res.Text), &value); err != nil {
		return o.terminal(result, ReasonInvalidJSON, fmt.Sprintf("repair response was not valid JSON: %v", err), log)
	}

	o.target.Normalize(value)
	if viol := o.target.Validate(value); viol != nil {
		return o.terminal(result, ReasonSchemaMismatch, viol.Error(), log)
	}

	improved, err := schema.DecodeImproved(value)
	if err != nil {
		return o.terminal(result, ReasonUnknown, err.Error(), log)
	}

	result.Improved = improved
	log.Info("repair succeeded", zap.Float64("confidence", improved.Confidence))
	return result
}

// callFailed records a failed backend call and maps it onto the failure
// taxonomy. Timeouts and transport errors become terminal results; the
// single hard-error case is a dead primary with the fallback disabled,
// which is a configuration problem the core must not mask.
func (o *Orchestrator) callFailed(result *Result, route backend.Route, attempt int, err error, log *zap.Logger) (*Result, error) {
	var ce *backend.CallError
	var elapsed time.Duration
	if errors.As(err, &ce) {
		elapsed = ce.Elapsed
	}
	result.Attempts = append(result.Attempts, AttemptRecord{
		Attempt:    attempt,
		UsedRepair: attempt == 2,
		Elapsed:    elapsed,
	})

	if backend.IsTimeout(err) {
		o.metrics.ObserveCall(string(route), "timeout", elapsed)
		return o.terminal(result, ReasonTimeout, err.Error(), log), nil
	}

	o.metrics.ObserveCall(string(route), "error", elapsed)
	if route == backend.RoutePrimary && !o.selector.FallbackEnabled() {
		return nil, fmt.Errorf("primary backend unreachable and fallback disabled: %w", err)
	}
	return o.terminal(result, ReasonUnknown, err.Error(), log), nil
}

func (o *Orchestrator) terminal(result *Result, reason Reason, message string, log *zap.Logger) *Result {
	result.Reason = reason
	result.Message = message
	log.Warn("request failed",
		zap.String("reason", string(reason)),
		zap.String("message", message),
		zap.Int("attempts", len(result.Attempts)))
	return result
}

func (o *Orchestrator) newRequest(be *backend.Backend, system, user string) backend.CallRequest {
	return backend.CallRequest{
		BaseURL: be.Endpoint.URL,
		Model:   be.Endpoint.Model,
		APIKey:  be.Endpoint.APIKey,
		Messages: []backend.Message{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		Deadline:    be.Endpoint.Deadline,
		Temperature: o.temperature,
	}
}

// parsePayload direct-parses text as the target object, falling back to the
// extractor when the raw text is not itself a JSON object. Method is empty
// when no extraction was needed.
func parsePayload(text string) (any, extract.Method, error) {
	var value any
	if err := json.Unmarshal([]byte(text), &value); err == nil {
		if _, ok := value.(map[string]any); ok {
			return value, "", nil
		}
	}

	out := extract.Extract(text)
	if !out.Found() {
		return nil, "", fmt.Errorf("no JSON object found in response")
	}
	if err := json.Unmarshal([]byte(out.JSON), &value); err != nil {
		return nil, "", fmt.Errorf("extracted candidate is not valid JSON: %w", err)
	}
	return value, out.Method, nil
}
