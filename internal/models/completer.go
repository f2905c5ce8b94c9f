package models

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/cloudwego/eino/callbacks"
	"github.com/cloudwego/eino/components"
	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"
)

// Completer is the model client workers talk to.
type Completer interface {
	// Complete returns the full text answer to msgs.
	Complete(ctx context.Context, msgs []*schema.Message) (string, error)
	// Stream returns a finite, non-restartable stream of answer chunks.
	Stream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error)
}

// ChatCompleter adapts an eino chat model to Completer. Every failure is
// passed through Classify.
type ChatCompleter struct {
	model    model.BaseChatModel
	provider string
	handlers []callbacks.Handler
}

// NewCompleter wraps m. provider names the backend in transport errors and
// in callback run info; handlers observe every call.
func NewCompleter(m model.BaseChatModel, provider string, handlers ...callbacks.Handler) *ChatCompleter {
	return &ChatCompleter{model: m, provider: provider, handlers: handlers}
}

func (c *ChatCompleter) withCallbacks(ctx context.Context) context.Context {
	if len(c.handlers) == 0 {
		return ctx
	}
	return callbacks.InitCallbacks(ctx, &callbacks.RunInfo{
		Name:      c.provider,
		Component: components.ComponentOfChatModel,
	}, c.handlers...)
}

// Complete generates a single answer.
func (c *ChatCompleter) Complete(ctx context.Context, msgs []*schema.Message) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	out, err := c.model.Generate(c.withCallbacks(ctx), msgs)
	if err != nil {
		return "", Classify(c.provider, err)
	}
	if out == nil {
		return "", Classify(c.provider, errors.New("empty response"))
	}
	return out.Content, nil
}

// Stream starts a streamed answer.
func (c *ChatCompleter) Stream(ctx context.Context, msgs []*schema.Message) (*schema.StreamReader[*schema.Message], error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	sr, err := c.model.Stream(c.withCallbacks(ctx), msgs)
	if err != nil {
		return nil, Classify(c.provider, err)
	}
	return sr, nil
}

// Collect drains a stream and concatenates the chunk contents. The reader is
// closed on return.
func Collect(sr *schema.StreamReader[*schema.Message]) (string, error) {
	defer sr.Close()
	var sb strings.Builder
	for {
		chunk, err := sr.Recv()
		if errors.Is(err, io.EOF) {
			return sb.String(), nil
		}
		if err != nil {
			return sb.String(), fmt.Errorf("read stream: %w", err)
		}
		if chunk != nil {
			sb.WriteString(chunk.Content)
		}
	}
}

var _ Completer = (*ChatCompleter)(nil)
