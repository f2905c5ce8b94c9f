// Package callbacks bridges Eino component callbacks to the event bus.
package callbacks

import (
	"context"
	"log/slog"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components/model"
	ub "github.com/cloudwego/eino/utils/callbacks"

	"github.com/dohr-michael/forge/internal/events"
)

const maxErrorLen = 1000

// NewEventBusHandler returns a handler that publishes a model_call event for
// each chat model request, response and error. The task id and role are
// taken from the call's context.
func NewEventBusHandler(bus *events.Bus) callbacks.Handler {
	publish := func(ctx context.Context, payload events.ModelCallPayload) {
		payload.Role = events.RoleFromContext(ctx)
		taskID := events.TaskIDFromContext(ctx)
		if err := bus.Publish(events.NewTypedEvent(events.SourceModels, taskID, payload)); err != nil {
			slog.Debug("model event not published", "phase", payload.Phase, "error", err)
		}
	}

	modelHandler := &ub.ModelCallbackHandler{
		OnStart: func(ctx context.Context, info *callbacks.RunInfo, input *model.CallbackInput) context.Context {
			p := events.ModelCallPayload{Phase: events.ModelPhaseRequest, Model: info.Name}
			if input != nil {
				p.MessageCount = len(input.Messages)
			}
			publish(ctx, p)
			return ctx
		},
		OnEnd: func(ctx context.Context, info *callbacks.RunInfo, output *model.CallbackOutput) context.Context {
			p := events.ModelCallPayload{Phase: events.ModelPhaseResponse, Model: info.Name}
			if output != nil && output.TokenUsage != nil {
				p.TokensInput = output.TokenUsage.PromptTokens
				p.TokensOutput = output.TokenUsage.CompletionTokens
			} else if output != nil && output.Message != nil && output.Message.ResponseMeta != nil && output.Message.ResponseMeta.Usage != nil {
				p.TokensInput = output.Message.ResponseMeta.Usage.PromptTokens
				p.TokensOutput = output.Message.ResponseMeta.Usage.CompletionTokens
			}
			publish(ctx, p)
			return ctx
		},
		OnError: func(ctx context.Context, info *callbacks.RunInfo, err error) context.Context {
			publish(ctx, events.ModelCallPayload{
				Phase: events.ModelPhaseError,
				Model: info.Name,
				Error: truncatePayload(err.Error(), maxErrorLen),
			})
			return ctx
		},
	}

	return ub.NewHandlerHelper().
		ChatModel(modelHandler).
		Handler()
}

func truncatePayload(s string, maxLen int) string {
	if maxLen <= 0 || len(s) <= maxLen {
		return s
	}
	return s[:maxLen] + "... (truncated)"
}
