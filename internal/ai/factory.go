package ai

import (
	"fmt"

	"github.com/xxxsen/docqa/internal/config"
)

func findProvider(cfg config.AIConfig, name string) (config.ProviderConfig, error) {
	for _, p := range cfg.Providers {
		if p.Name == name {
			return p, nil
		}
	}
	return config.ProviderConfig{}, fmt.Errorf("ai provider %q not declared", name)
}

// BuildGenerator chains the referenced models into a fallback generator.
// It returns nil when refs is empty.
func BuildGenerator(cfg config.AIConfig, refs []config.ModelRef) (IGenerator, error) {
	entries := make([]GeneratorEntry, 0, len(refs))
	for _, ref := range refs {
		pc, err := findProvider(cfg, ref.Provider)
		if err != nil {
			return nil, err
		}
		provider, err := NewProvider(pc.Type, pc.Data)
		if err != nil {
			return nil, fmt.Errorf("init ai provider %s: %w", pc.Name, err)
		}
		entries = append(entries, GeneratorEntry{
			Name:      pc.Name + ":" + ref.Model,
			Generator: NewGenerator(provider, ref.Model),
		})
	}
	return NewGroupGenerator(entries), nil
}

func BuildEmbedder(cfg config.AIConfig, dimension int) (IEmbedder, error) {
	pc, err := findProvider(cfg, cfg.Embedding.Provider)
	if err != nil {
		return nil, err
	}
	provider, err := NewEmbedProvider(pc.Type, pc.Data)
	if err != nil {
		return nil, fmt.Errorf("init embed provider %s: %w", pc.Name, err)
	}
	return NewEmbedder(provider, cfg.Embedding.Model, dimension), nil
}
