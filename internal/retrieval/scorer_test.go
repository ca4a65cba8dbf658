package retrieval

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/kalambet/skillmap/internal/kb"
)

type mockEmbedder struct {
	embedFn func(ctx context.Context, text string) ([]float32, error)
}

func (m *mockEmbedder) Embed(ctx context.Context, text string) ([]float32, error) {
	return m.embedFn(ctx, text)
}

type mockSearcher struct {
	searchFn func(vector []float32, k int) ([]kb.Neighbor, error)
}

func (m *mockSearcher) NearestNeighbors(vector []float32, k int) ([]kb.Neighbor, error) {
	return m.searchFn(vector, k)
}

func fixedEmbedder() *mockEmbedder {
	return &mockEmbedder{embedFn: func(ctx context.Context, text string) ([]float32, error) {
		return []float32{1, 0, 0}, nil
	}}
}

func TestScore_Uninitialized(t *testing.T) {
	s := NewScorer(nil, nil)
	if _, err := s.Score(context.Background(), "query", 10, DefaultThreshold); !errors.Is(err, ErrUninitialized) {
		t.Errorf("expected ErrUninitialized, got %v", err)
	}
}

func TestScore_CombinesBonuses(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(vector []float32, k int) ([]kb.Neighbor, error) {
		return []kb.Neighbor{
			{Record: kb.Record{ID: "c1", Title: "Belajar Dasar HTML", Type: kb.TypeCourse, Seq: 1}, Distance: 0.2},
		}, nil
	}}
	s := NewScorer(fixedEmbedder(), searcher)

	hits, err := s.Score(context.Background(), "HTML Dasar", 10, DefaultThreshold)
	if err != nil {
		t.Fatalf("scoring: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	// base -0.2, title overlap 2 tokens (html, dasar) = 0.30, course bonus 0.30.
	want := -0.2 + 0.30 + 0.30
	if math.Abs(hits[0].Score-want) > 1e-6 {
		t.Errorf("score = %f, want %f", hits[0].Score, want)
	}
}

func TestScore_KeywordBonus(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(vector []float32, k int) ([]kb.Neighbor, error) {
		return []kb.Neighbor{
			{Record: kb.Record{ID: "c1", Title: "Styling", Type: kb.TypeTutorial, Keywords: []string{"CSS"}, Seq: 1}, Distance: 0},
		}, nil
	}}
	s := NewScorer(fixedEmbedder(), searcher)

	hits, err := s.Score(context.Background(), "css layout", 10, 0)
	if err != nil {
		t.Fatalf("scoring: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected 1 hit, got %d", len(hits))
	}
	if math.Abs(hits[0].Score-keywordBonus) > 1e-6 {
		t.Errorf("score = %f, want keyword bonus %f", hits[0].Score, keywordBonus)
	}
}

func TestScore_ThresholdFilters(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(vector []float32, k int) ([]kb.Neighbor, error) {
		return []kb.Neighbor{
			{Record: kb.Record{ID: "weak", Title: "Unrelated", Type: kb.TypeTutorial, Seq: 1}, Distance: 0.9},
			{Record: kb.Record{ID: "strong", Title: "Unrelated", Type: kb.TypeCourse, Seq: 2}, Distance: 0.05},
		}, nil
	}}
	s := NewScorer(fixedEmbedder(), searcher)

	hits, err := s.Score(context.Background(), "query text", 10, DefaultThreshold)
	if err != nil {
		t.Fatalf("scoring: %v", err)
	}
	if len(hits) != 1 || hits[0].ID != "strong" {
		t.Errorf("expected only strong hit, got %v", hits)
	}
	for _, h := range hits {
		if h.Score < DefaultThreshold {
			t.Errorf("hit %s below threshold: %f", h.ID, h.Score)
		}
	}
}

func TestScore_RankingAndTieBreak(t *testing.T) {
	searcher := &mockSearcher{searchFn: func(vector []float32, k int) ([]kb.Neighbor, error) {
		return []kb.Neighbor{
			{Record: kb.Record{ID: "late-tie", Title: "X", Type: kb.TypeCourse, Seq: 5}, Distance: 0.1},
			{Record: kb.Record{ID: "best", Title: "X", Type: kb.TypeCourse, Seq: 9}, Distance: 0.0},
			{Record: kb.Record{ID: "early-tie", Title: "X", Type: kb.TypeCourse, Seq: 2}, Distance: 0.1},
		}, nil
	}}
	s := NewScorer(fixedEmbedder(), searcher)

	hits, err := s.Score(context.Background(), "query", 10, 0)
	if err != nil {
		t.Fatalf("scoring: %v", err)
	}
	if len(hits) != 3 {
		t.Fatalf("expected 3 hits, got %d", len(hits))
	}
	if hits[0].ID != "best" || hits[1].ID != "early-tie" || hits[2].ID != "late-tie" {
		t.Errorf("unexpected order: %s, %s, %s", hits[0].ID, hits[1].ID, hits[2].ID)
	}
	for i := 1; i < len(hits); i++ {
		if hits[i].Score > hits[i-1].Score {
			t.Errorf("scores not non-increasing at %d", i)
		}
	}
}

func TestScore_EmbedErrorPropagates(t *testing.T) {
	embedErr := errors.New("engine down")
	embedder := &mockEmbedder{embedFn: func(ctx context.Context, text string) ([]float32, error) {
		return nil, embedErr
	}}
	searcher := &mockSearcher{searchFn: func(vector []float32, k int) ([]kb.Neighbor, error) {
		t.Fatal("search should not be reached")
		return nil, nil
	}}
	s := NewScorer(embedder, searcher)

	if _, err := s.Score(context.Background(), "query", 10, 0); !errors.Is(err, embedErr) {
		t.Errorf("expected embed error, got %v", err)
	}
}

func TestNormalizeText(t *testing.T) {
	cases := map[string]string{
		"  HTML Dasar!  ":    "html dasar",
		"React.js & Next.js": "react js next js",
		"":                   "",
		"---":                "",
	}
	for in, want := range cases {
		if got := normalizeText(in); got != want {
			t.Errorf("normalizeText(%q) = %q, want %q", in, got, want)
		}
	}
}

func TestRuntime_SingleFlight(t *testing.T) {
	calls := 0
	rt := NewRuntime(func(ctx context.Context) (*Components, error) {
		calls++
		return &Components{}, nil
	})
	if rt.Ready() {
		t.Error("runtime ready before first acquire")
	}
	for i := 0; i < 3; i++ {
		if _, err := rt.Acquire(context.Background()); err != nil {
			t.Fatalf("acquire %d: %v", i, err)
		}
	}
	if calls != 1 {
		t.Errorf("initializer ran %d times, want 1", calls)
	}
	if !rt.Ready() {
		t.Error("runtime not ready after acquire")
	}
}

func TestRuntime_RetriesAfterFailure(t *testing.T) {
	calls := 0
	rt := NewRuntime(func(ctx context.Context) (*Components, error) {
		calls++
		if calls == 1 {
			return nil, errors.New("warmup failed")
		}
		return &Components{}, nil
	})
	if _, err := rt.Acquire(context.Background()); err == nil {
		t.Fatal("expected first acquire to fail")
	}
	if _, err := rt.Acquire(context.Background()); err != nil {
		t.Fatalf("second acquire: %v", err)
	}
	if calls != 2 {
		t.Errorf("initializer ran %d times, want 2", calls)
	}
}
