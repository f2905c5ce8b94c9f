package models

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"testing"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/dohr-michael/forge/internal/config"
)

func TestResolveAuth(t *testing.T) {
	t.Setenv("MY_CUSTOM_KEY", "custom-api-key-value")
	t.Setenv("ANTHROPIC_API_KEY", "env-anthropic-key")
	t.Setenv("OPENAI_API_KEY", "env-openai-key")
	t.Setenv("GEMINI_API_KEY", "env-gemini-key")

	tests := []struct {
		name string
		cfg  config.ProviderConfig
		want string
	}{
		{"direct", config.ProviderConfig{Driver: "claude", Auth: config.AuthConfig{APIKey: "sk-ant-test-123"}}, "sk-ant-test-123"},
		{"env syntax", config.ProviderConfig{Driver: "claude", Auth: config.AuthConfig{APIKey: "${MY_CUSTOM_KEY}"}}, "custom-api-key-value"},
		{"claude fallback", config.ProviderConfig{Driver: "claude"}, "env-anthropic-key"},
		{"openai fallback", config.ProviderConfig{Driver: "openai"}, "env-openai-key"},
		{"gemini fallback", config.ProviderConfig{Driver: "gemini"}, "env-gemini-key"},
	}
	for _, tt := range tests {
		got, err := ResolveAuth(tt.cfg)
		if err != nil {
			t.Errorf("%s: ResolveAuth: %v", tt.name, err)
			continue
		}
		if got != tt.want {
			t.Errorf("%s: got %q, want %q", tt.name, got, tt.want)
		}
	}
}

func TestResolveAuth_Failures(t *testing.T) {
	t.Setenv("ANTHROPIC_API_KEY", "")
	t.Setenv("GEMINI_API_KEY", "")

	if _, err := ResolveAuth(config.ProviderConfig{Driver: "claude"}); err == nil || !strings.Contains(err.Error(), "ANTHROPIC_API_KEY not set") {
		t.Errorf("claude without key: err = %v", err)
	}
	if _, err := CreateModel(context.Background(), config.ProviderConfig{Driver: "google"}); err == nil || !strings.Contains(err.Error(), "GEMINI_API_KEY not set") {
		t.Errorf("gemini without key: err = %v", err)
	}
	if _, err := ResolveAuth(config.ProviderConfig{Driver: "bedrock"}); err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Errorf("unknown driver: err = %v", err)
	}
}

func TestRegistry(t *testing.T) {
	reg := NewRegistry(config.ModelsConfig{
		Default: "local",
		Providers: map[string]config.ProviderConfig{
			"local": {Driver: "ollama", Model: "qwen3"},
			"cloud": {Driver: "openai", Model: "gpt-4o"},
		},
	})

	if reg.DefaultName() != "local" || reg.ModelName("local") != "qwen3" {
		t.Errorf("default = %s, model = %s", reg.DefaultName(), reg.ModelName("local"))
	}
	if got := strings.Join(reg.Names(), ","); got != "cloud,local" {
		t.Errorf("Names() = %s", got)
	}
	if _, err := reg.Get(context.Background(), "nonexistent"); err == nil || !strings.Contains(err.Error(), "not found") {
		t.Errorf("Get unknown: err = %v", err)
	}
	if _, err := NewRegistry(config.ModelsConfig{}).Default(context.Background()); err == nil {
		t.Error("expected error without default")
	}
}

func TestCreateModel_UnknownDriver(t *testing.T) {
	_, err := CreateModel(context.Background(), config.ProviderConfig{Driver: "unknown-driver"})
	if err == nil || !strings.Contains(err.Error(), "unknown driver") {
		t.Fatalf("expected 'unknown driver' error, got %v", err)
	}
}

func TestClassify(t *testing.T) {
	tests := []struct {
		err  error
		want ErrorKind
	}{
		{errors.New("status 401: invalid api key"), KindAuth},
		{errors.New("429 Too Many Requests"), KindRateLimit},
		{errors.New("prompt exceeds context length"), KindContextLength},
		{errors.New("model not found: llama9"), KindNotFound},
		{errors.New("dial tcp: connection refused"), KindConnection},
		{&ErrModelUnavailable{Provider: "ollama", Body: "no available server"}, KindConnection},
		{errors.New("something odd"), KindUnknown},
	}
	for _, tt := range tests {
		err := Classify("p", tt.err)
		var te *TransportError
		if !errors.As(err, &te) {
			t.Errorf("%v: not a TransportError", tt.err)
			continue
		}
		if te.Kind != tt.want || te.Provider != "p" || !errors.Is(err, tt.err) {
			t.Errorf("%v: got %+v, want kind %s", tt.err, te, tt.want)
		}
	}

	if Classify("p", nil) != nil {
		t.Error("nil error classified")
	}
	wrapped := fmt.Errorf("call: %w", context.Canceled)
	if got := Classify("p", wrapped); got != wrapped {
		t.Errorf("cancellation rewritten: %v", got)
	}
	if !IsKind(Classify("p", errors.New("403 forbidden")), KindAuth) {
		t.Error("IsKind auth = false")
	}
}

type fakeChatModel struct {
	reply  string
	chunks []string
	err    error
	calls  int
}

func (f *fakeChatModel) Generate(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.Message, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return schema.AssistantMessage(f.reply, nil), nil
}

func (f *fakeChatModel) Stream(_ context.Context, _ []*schema.Message, _ ...model.Option) (*schema.StreamReader[*schema.Message], error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	msgs := make([]*schema.Message, len(f.chunks))
	for i, c := range f.chunks {
		msgs[i] = schema.AssistantMessage(c, nil)
	}
	return schema.StreamReaderFromArray(msgs), nil
}

func TestChatCompleter(t *testing.T) {
	ctx := context.Background()
	msgs := []*schema.Message{schema.UserMessage("hi")}

	fm := &fakeChatModel{reply: "hello", chunks: []string{"hel", "lo"}}
	c := NewCompleter(fm, "fake")

	got, err := c.Complete(ctx, msgs)
	if err != nil || got != "hello" {
		t.Errorf("Complete = %q, %v", got, err)
	}

	sr, err := c.Stream(ctx, msgs)
	if err != nil {
		t.Fatalf("Stream: %v", err)
	}
	if text, err := Collect(sr); err != nil || text != "hello" {
		t.Errorf("Collect = %q, %v", text, err)
	}

	failing := NewCompleter(&fakeChatModel{err: errors.New("429 rate limit")}, "fake")
	if _, err := failing.Complete(ctx, msgs); !IsKind(err, KindRateLimit) {
		t.Errorf("Complete err = %v", err)
	}
	if _, err := failing.Stream(ctx, msgs); !IsKind(err, KindRateLimit) {
		t.Errorf("Stream err = %v", err)
	}
}

func TestChatCompleter_CancelledBeforeCall(t *testing.T) {
	fm := &fakeChatModel{reply: "never"}
	c := NewCompleter(fm, "fake")

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := c.Complete(ctx, nil); !errors.Is(err, context.Canceled) {
		t.Errorf("err = %v", err)
	}
	if fm.calls != 0 {
		t.Errorf("model called %d times on a cancelled context", fm.calls)
	}
}
