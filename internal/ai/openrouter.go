package ai

import (
	"net/http"
	"strings"
)

const (
	defaultOpenRouterBaseURL = "https://openrouter.ai/api/v1"
	defaultOpenRouterTitle   = "docqa"
)

type openrouterConfig struct {
	APIKey      string `json:"api_key"`
	BaseURL     string `json:"base_url"`
	HTTPReferer string `json:"http_referer"`
	XTitle      string `json:"x_title"`
}

// createOpenRouterFactory reuses the openai wire format; openrouter only adds
// attribution headers. Embeddings go through the same /embeddings route.
func createOpenRouterFactory(args interface{}) (IAIProvider, error) {
	cfg := &openrouterConfig{}
	if err := decodeConfig(args, cfg); err != nil {
		return nil, err
	}
	baseURL := strings.TrimSpace(cfg.BaseURL)
	if baseURL == "" {
		baseURL = defaultOpenRouterBaseURL
	}
	title := strings.TrimSpace(cfg.XTitle)
	if title == "" {
		title = defaultOpenRouterTitle
	}
	headers := map[string]string{"X-Title": title}
	if v := strings.TrimSpace(cfg.HTTPReferer); v != "" {
		headers["HTTP-Referer"] = v
	}
	return &openAIProvider{
		name:    "openrouter",
		apiKey:  strings.TrimSpace(cfg.APIKey),
		baseURL: baseURL,
		headers: headers,
		client:  &http.Client{},
	}, nil
}

func init() {
	Register("openrouter", createOpenRouterFactory)
	RegisterEmbed("openrouter", func(args interface{}) (IEmbedProvider, error) {
		p, err := createOpenRouterFactory(args)
		if err != nil {
			return nil, err
		}
		return p.(*openAIProvider), nil
	})
}
