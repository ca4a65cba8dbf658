package retrieval

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"unicode"

	"github.com/kalambet/skillmap/internal/kb"
)

// ErrUninitialized is returned when retrieval is attempted before the
// knowledge base or embedder has been prepared. Callers must branch on it,
// never swallow it.
var ErrUninitialized = errors.New("retrieval runtime not initialized")

// Default query parameters.
const (
	DefaultTopK      = 10
	DefaultThreshold = 0.18
)

// Scoring weights for the hybrid lexical/semantic formula.
const (
	titleOverlapWeight = 0.15
	courseTypeBonus    = 0.30
	keywordBonus       = 0.25
)

// Hit is one ranked retrieval result.
type Hit struct {
	ID    string  `json:"id"`
	Title string  `json:"title"`
	Type  string  `json:"type"`
	Score float64 `json:"score"`
}

// TextEmbedder produces an embedding vector for a query text.
type TextEmbedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// NeighborSearcher returns the k records nearest to a query vector.
type NeighborSearcher interface {
	NearestNeighbors(vector []float32, k int) ([]kb.Neighbor, error)
}

// Scorer ranks knowledge-base records against a query by combining vector
// similarity with lexical and structural bonuses.
type Scorer struct {
	embedder TextEmbedder
	store    NeighborSearcher
}

// NewScorer creates a Scorer over the given embedder and store.
func NewScorer(embedder TextEmbedder, store NeighborSearcher) *Scorer {
	return &Scorer{embedder: embedder, store: store}
}

// Score embeds the query, fetches the topK nearest records, and returns the
// candidates whose combined score clears the threshold, sorted descending by
// score with ties broken by catalog insertion order.
func (s *Scorer) Score(ctx context.Context, query string, topK int, threshold float64) ([]Hit, error) {
	if s == nil || s.embedder == nil || s.store == nil {
		return nil, ErrUninitialized
	}
	if topK < 1 {
		topK = DefaultTopK
	}

	vec, err := s.embedder.Embed(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("embedding query: %w", err)
	}

	neighbors, err := s.store.NearestNeighbors(vec, topK)
	if err != nil {
		return nil, fmt.Errorf("searching knowledge base: %w", err)
	}

	normQuery := normalizeText(query)
	queryTokens := wordTokens(normQuery)

	type scored struct {
		hit Hit
		seq int64
	}
	var kept []scored
	for _, n := range neighbors {
		score := float64(-n.Distance)
		score += titleOverlapWeight * float64(tokenOverlap(queryTokens, wordTokens(normalizeText(n.Title))))
		if n.Type == kb.TypeCourse {
			score += courseTypeBonus
		}
		if keywordMatches(n.Keywords, normQuery) {
			score += keywordBonus
		}
		if score < threshold {
			continue
		}
		kept = append(kept, scored{
			hit: Hit{ID: n.ID, Title: n.Title, Type: n.Type, Score: score},
			seq: n.Seq,
		})
	}

	sort.SliceStable(kept, func(i, j int) bool {
		if kept[i].hit.Score != kept[j].hit.Score {
			return kept[i].hit.Score > kept[j].hit.Score
		}
		return kept[i].seq < kept[j].seq
	})

	hits := make([]Hit, len(kept))
	for i, k := range kept {
		hits[i] = k.hit
	}
	return hits, nil
}

// keywordMatches reports whether any declared keyword is a substring of the
// normalized query, or vice versa.
func keywordMatches(keywords []string, normQuery string) bool {
	if normQuery == "" {
		return false
	}
	for _, kw := range keywords {
		nkw := normalizeText(kw)
		if nkw == "" {
			continue
		}
		if strings.Contains(normQuery, nkw) || strings.Contains(nkw, normQuery) {
			return true
		}
	}
	return false
}

// normalizeText lowercases, strips non-alphanumeric characters, and
// collapses runs of whitespace to single spaces.
func normalizeText(text string) string {
	var b strings.Builder
	b.Grow(len(text))
	lastSpace := true
	for _, r := range strings.ToLower(text) {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
			lastSpace = false
		case !lastSpace:
			b.WriteByte(' ')
			lastSpace = true
		}
	}
	return strings.TrimRight(b.String(), " ")
}

// wordTokens splits normalized text into a token set.
func wordTokens(normalized string) map[string]struct{} {
	tokens := make(map[string]struct{})
	for _, tok := range strings.Fields(normalized) {
		tokens[tok] = struct{}{}
	}
	return tokens
}

func tokenOverlap(a, b map[string]struct{}) int {
	if len(b) < len(a) {
		a, b = b, a
	}
	count := 0
	for tok := range a {
		if _, ok := b[tok]; ok {
			count++
		}
	}
	return count
}
