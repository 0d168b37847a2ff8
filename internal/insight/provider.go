package insight

import (
	"context"
	"errors"

	"github.com/rs/zerolog"

	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/ai"
	"github.com/KaFaiLi/Risk-Metrics-Analyst-Agent/internal/utils"
)

// RuntimeProvider adapts an ai.Runtime to Provider with a fixed model and
// temperature.
type RuntimeProvider struct {
	Runtime     ai.Runtime
	Model       string
	Temperature float64
	Log         zerolog.Logger
}

// Invoke sends p as a single user message.
func (p *RuntimeProvider) Invoke(ctx context.Context, prompt Prompt) (string, error) {
	var images [][]byte
	if len(prompt.ImagePNG) > 0 {
		images = append(images, prompt.ImagePNG)
	}
	tokens := utils.CountTokens(prompt.Text)
	if mi, ok := ai.LookupModel(p.Model); ok && mi.ContextTokens > 0 && tokens > mi.ContextTokens {
		p.Log.Warn().Str("model", p.Model).Int("prompt_tokens", tokens).Int("context_tokens", mi.ContextTokens).Msg("prompt may exceed model context")
	}
	resp, err := p.Runtime.Generate(ctx, ai.GenerateRequest{
		Model:       p.Model,
		Temperature: p.Temperature,
		Messages:    []ai.Message{ai.UserMessage(prompt.Text, images...)},
	})
	if err != nil {
		return "", err
	}
	text := resp.Text()
	if text == "" {
		return "", errors.New("empty response from model")
	}
	if cost, ok := ai.EstimateCostUSD(p.Model, resp.Usage.PromptTokens, resp.Usage.CompletionTokens); ok {
		p.Log.Debug().Str("model", p.Model).Int("prompt_tokens", resp.Usage.PromptTokens).
			Int("completion_tokens", resp.Usage.CompletionTokens).Float64("est_cost_usd", cost).Msg("model usage")
	}
	return text, nil
}

// ProviderSettings selects and fixes the model behind a dispatcher.
type ProviderSettings struct {
	Provider    string
	Model       string
	Temperature float64
	Runtime     ai.RuntimeConfig
}

// NewProviderFactory returns a factory that builds a new runtime and
// RuntimeProvider on every call.
func NewProviderFactory(s ProviderSettings, log zerolog.Logger) (ProviderFactory, error) {
	newRuntime, err := ai.NewRuntimeFactory(s.Provider, s.Runtime)
	if err != nil {
		return nil, err
	}
	model := s.Model
	if model == "" {
		model = ai.DefaultModel
	}
	temp := s.Temperature
	if temp == 0 {
		temp = ai.DefaultTemperature
	}
	return func() (Provider, error) {
		rt, err := newRuntime()
		if err != nil {
			return nil, err
		}
		return &RuntimeProvider{Runtime: rt, Model: model, Temperature: temp, Log: log}, nil
	}, nil
}
