package ai

import (
	"context"
	"hash/fnv"
	"math"
	"strings"
	"unicode"
)

const defaultLocalDimension = 384

// localEmbedProvider is an offline feature hashing embedder. Word unigrams and
// character trigrams are hashed into a fixed number of buckets with a signed
// weight and the result is L2 normalised, so equal text always maps to the
// same vector and overlapping vocabulary yields high cosine similarity.
type localEmbedProvider struct{}

func (p *localEmbedProvider) Name() string {
	return "local"
}

func (p *localEmbedProvider) Embed(ctx context.Context, model string, texts []string, dimension int) ([][]float32, error) {
	if dimension <= 0 {
		dimension = defaultLocalDimension
	}
	out := make([][]float32, 0, len(texts))
	for _, text := range texts {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		out = append(out, HashEmbedding(text, dimension))
	}
	return out, nil
}

func HashEmbedding(text string, dimension int) []float32 {
	vec := make([]float64, dimension)
	for _, word := range tokenize(text) {
		addFeature(vec, "w:"+word, 1.0)
		runes := []rune("^" + word + "$")
		for i := 0; i+3 <= len(runes); i++ {
			addFeature(vec, "c:"+string(runes[i:i+3]), 0.5)
		}
	}
	var norm float64
	for _, v := range vec {
		norm += v * v
	}
	out := make([]float32, dimension)
	if norm == 0 {
		return out
	}
	norm = math.Sqrt(norm)
	for i, v := range vec {
		out[i] = float32(v / norm)
	}
	return out
}

func addFeature(vec []float64, feature string, weight float64) {
	h := fnv.New64a()
	_, _ = h.Write([]byte(feature))
	sum := h.Sum64()
	idx := int(sum % uint64(len(vec)))
	if sum&(1<<63) != 0 {
		weight = -weight
	}
	vec[idx] += weight
}

func tokenize(text string) []string {
	return strings.FieldsFunc(strings.ToLower(text), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsNumber(r)
	})
}

func init() {
	RegisterEmbed("local", func(args interface{}) (IEmbedProvider, error) {
		return &localEmbedProvider{}, nil
	})
}
