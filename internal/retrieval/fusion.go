package retrieval

import (
	"sort"
	"strings"

	"github.com/quirylabs/quiry-backend/internal/events"
)

// denseWeight is the hybrid fusion weight on the normalized dense score; the
// keyword score gets the remainder.
const denseWeight = 0.65

// keywordScoreCap is the empirical upper bound used to normalize BM25-like
// scores into [0, 1].
const keywordScoreCap = 10.0

// rankedHit is one fused retrieval result, ready for prompt assembly.
type rankedHit struct {
	Text     string
	Authors  []string
	TimeFrom string
	TimeTo   string
	Score    float64
}

func clamp01(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

// normalizeDense maps a cosine score from [-1, 1] into [0, 1]. Backends that
// return dot-product scores outside that range saturate at the bounds.
func normalizeDense(s float64) float64 {
	return clamp01((s + 1) / 2)
}

func normalizeKeyword(s float64) float64 {
	return clamp01(s / keywordScoreCap)
}

func chunkHit(c events.ChunkQueryResult, score float64) rankedHit {
	return rankedHit{
		Text:     c.Text,
		Authors:  c.Authors,
		TimeFrom: c.FirstTimestamp,
		TimeTo:   c.LastTimestamp,
		Score:    score,
	}
}

func keywordHit(k events.KeywordResult, score float64) rankedHit {
	return rankedHit{
		Text:     k.Text,
		Authors:  []string{k.AuthorID},
		TimeFrom: k.Timestamp,
		Score:    score,
	}
}

func messageHit(m events.QueryResult) rankedHit {
	return rankedHit{
		Text:     m.Text,
		Authors:  []string{m.AuthorID},
		TimeFrom: m.Timestamp,
		Score:    normalizeDense(m.Score),
	}
}

// fuseResults combines the dense and keyword result sets: normalize both score
// spaces, weight them, de-duplicate by text identity keeping the higher final
// score, and sort descending.
func fuseResults(chunks []events.ChunkQueryResult, keywords []events.KeywordResult) []rankedHit {
	byText := make(map[string]rankedHit, len(chunks)+len(keywords))

	add := func(h rankedHit) {
		key := strings.TrimSpace(h.Text)
		if prev, ok := byText[key]; ok && prev.Score >= h.Score {
			return
		}
		byText[key] = h
	}

	for _, c := range chunks {
		add(chunkHit(c, denseWeight*normalizeDense(c.Score)))
	}
	for _, k := range keywords {
		add(keywordHit(k, (1-denseWeight)*normalizeKeyword(k.Score)))
	}

	// An item present in both sets scores on both components.
	for _, c := range chunks {
		for _, k := range keywords {
			if strings.TrimSpace(c.Text) != strings.TrimSpace(k.Text) {
				continue
			}
			add(chunkHit(c, denseWeight*normalizeDense(c.Score)+(1-denseWeight)*normalizeKeyword(k.Score)))
		}
	}

	out := make([]rankedHit, 0, len(byText))
	for _, h := range byText {
		out = append(out, h)
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func chunksAsHits(chunks []events.ChunkQueryResult) []rankedHit {
	out := make([]rankedHit, 0, len(chunks))
	for _, c := range chunks {
		out = append(out, chunkHit(c, normalizeDense(c.Score)))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}

func messagesAsHits(msgs []events.QueryResult) []rankedHit {
	out := make([]rankedHit, 0, len(msgs))
	for _, m := range msgs {
		out = append(out, messageHit(m))
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Score > out[j].Score })
	return out
}
