package rag

import (
	"math"

	"github.com/xxxsen/docqa/internal/model"
)

const (
	topWeight  = 0.7
	meanWeight = 0.3
	minNonZero = 0.01
)

// Confidence blends the best score with the mean score of the evidence.
// It is zero only for empty evidence and never decreases when the top score
// grows with the other scores held fixed.
func Confidence(evidence []model.EvidenceItem) float64 {
	if len(evidence) == 0 {
		return 0
	}
	top := 0.0
	sum := 0.0
	for _, e := range evidence {
		s := clamp01(e.Score)
		if s > top {
			top = s
		}
		sum += s
	}
	mean := sum / float64(len(evidence))
	c := math.Round(clamp01(topWeight*top+meanWeight*mean)*100) / 100
	if c < minNonZero {
		c = minNonZero
	}
	return c
}

func clamp01(v float64) float64 {
	if v < 0 || math.IsNaN(v) {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}
