package llm

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.uber.org/zap"

	"github.com/Kocoro-lab/deepresearch/internal/metrics"
	"github.com/Kocoro-lab/deepresearch/internal/tracing"
)

// Instrumented records latency, token usage and a span for every call.
type Instrumented struct {
	next   Client
	logger *zap.Logger
}

// NewInstrumented wraps next with metrics, tracing and debug logging.
func NewInstrumented(next Client, logger *zap.Logger) *Instrumented {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Instrumented{next: next, logger: logger}
}

func (i *Instrumented) Complete(ctx context.Context, req Request) (Response, error) {
	purpose := req.Purpose
	if purpose == "" {
		purpose = "unspecified"
	}
	model := i.next.Model()

	ctx, span := tracing.StartSpan(ctx, "llm.complete")
	defer span.End()
	span.SetAttributes(
		attribute.String("llm.model", model),
		attribute.String("llm.purpose", purpose),
		attribute.Int("llm.messages", len(req.Messages)),
		attribute.Int("llm.tools", len(req.Tools)),
	)

	start := time.Now()
	resp, err := i.next.Complete(ctx, req)
	elapsed := time.Since(start)

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
		metrics.RecordLLMMetrics(model, purpose, "error", elapsed.Seconds(), 0, 0)
		i.logger.Warn("LLM call failed",
			zap.String("model", model),
			zap.String("purpose", purpose),
			zap.Duration("elapsed", elapsed),
			zap.Error(err),
		)
		return resp, err
	}

	span.SetAttributes(
		attribute.Int("llm.input_tokens", resp.Usage.InputTokens),
		attribute.Int("llm.output_tokens", resp.Usage.OutputTokens),
		attribute.Int("llm.tool_calls", len(resp.ToolCalls)),
	)
	metrics.RecordLLMMetrics(model, purpose, "success", elapsed.Seconds(), resp.Usage.InputTokens, resp.Usage.OutputTokens)
	i.logger.Debug("LLM call completed",
		zap.String("model", model),
		zap.String("purpose", purpose),
		zap.Duration("elapsed", elapsed),
		zap.Int("tool_calls", len(resp.ToolCalls)),
	)
	return resp, nil
}

func (i *Instrumented) Model() string { return i.next.Model() }
