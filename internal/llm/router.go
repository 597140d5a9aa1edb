package llm

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/conductor-ai/conductor/internal/config"
)

// Router implements Gateway by resolving profiles to providers and models.
type Router struct {
	providers map[string]Provider
	profiles  map[string]config.ProfileConfig
	logger    *slog.Logger
}

// NewRouter builds a Router from config. Providers are constructed for every
// backend referenced by at least one profile.
func NewRouter(cfg config.LLMConfig, logger *slog.Logger) (*Router, error) {
	if logger == nil {
		logger = slog.Default()
	}
	r := &Router{
		providers: make(map[string]Provider),
		profiles:  cfg.Profiles,
		logger:    logger.With("component", "llm"),
	}
	for name, profile := range cfg.Profiles {
		if _, ok := r.providers[profile.Provider]; ok {
			continue
		}
		switch profile.Provider {
		case "openai":
			r.providers["openai"] = NewOpenAIProvider(cfg.OpenAI)
		case "anthropic":
			r.providers["anthropic"] = NewAnthropicProvider(cfg.Anthropic)
		default:
			return nil, fmt.Errorf("llm: profile %q references unknown provider %q", name, profile.Provider)
		}
	}
	return r, nil
}

// RegisterProvider installs (or replaces) a provider backend. Primarily a
// test seam, also used for custom gateways.
func (r *Router) RegisterProvider(p Provider) {
	r.providers[p.Name()] = p
}

func (r *Router) resolve(profile string) (Provider, config.ProfileConfig, error) {
	pc, ok := r.profiles[profile]
	if !ok {
		return nil, config.ProfileConfig{}, fmt.Errorf("llm: unknown profile %q", profile)
	}
	provider, ok := r.providers[pc.Provider]
	if !ok {
		return nil, config.ProfileConfig{}, fmt.Errorf("llm: profile %q resolves to unconfigured provider %q", profile, pc.Provider)
	}
	return provider, pc, nil
}

// Complete resolves the request's profile and delegates.
func (r *Router) Complete(ctx context.Context, req *Request) (*Response, error) {
	provider, pc, err := r.resolve(req.Profile)
	if err != nil {
		return nil, err
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = pc.MaxTokens
	}
	r.logger.Debug("complete", "profile", req.Profile, "provider", provider.Name(), "model", pc.Model)
	return provider.Complete(ctx, pc.Model, req)
}

// Stream resolves the request's profile and delegates.
func (r *Router) Stream(ctx context.Context, req *Request) (<-chan *Chunk, error) {
	provider, pc, err := r.resolve(req.Profile)
	if err != nil {
		return nil, err
	}
	if req.MaxTokens == 0 {
		req.MaxTokens = pc.MaxTokens
	}
	r.logger.Debug("stream", "profile", req.Profile, "provider", provider.Name(), "model", pc.Model)
	return provider.Stream(ctx, pc.Model, req)
}
