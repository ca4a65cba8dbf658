package engine

import (
	"bytes"
	"context"
	"errors"
	"strings"
	"testing"
)

// mockEngine implements Engine with function fields.
type mockEngine struct {
	embedFn     func(ctx context.Context, model, text string) ([]float32, error)
	isRunningFn func(ctx context.Context) bool
	hasModelFn  func(ctx context.Context, name string) bool
	pullFn      func(ctx context.Context, name string, onProgress func(PullProgress)) error
}

func (m *mockEngine) Embed(ctx context.Context, model, text string) ([]float32, error) {
	if m.embedFn != nil {
		return m.embedFn(ctx, model, text)
	}
	return []float32{0}, nil
}

func (m *mockEngine) IsRunning(ctx context.Context) bool {
	if m.isRunningFn != nil {
		return m.isRunningFn(ctx)
	}
	return true
}

func (m *mockEngine) ListModels(ctx context.Context) ([]string, error) { return nil, nil }

func (m *mockEngine) HasModel(ctx context.Context, name string) bool {
	if m.hasModelFn != nil {
		return m.hasModelFn(ctx, name)
	}
	return true
}

func (m *mockEngine) PullModel(ctx context.Context, name string, onProgress func(PullProgress)) error {
	if m.pullFn != nil {
		return m.pullFn(ctx, name, onProgress)
	}
	return nil
}

func TestEnsureReady_NotRunning(t *testing.T) {
	e := &mockEngine{isRunningFn: func(context.Context) bool { return false }}

	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), e, "nomic-embed-text", &buf); err == nil {
		t.Fatal("expected error when engine is not running")
	}
}

func TestEnsureReady_ModelPresent(t *testing.T) {
	pulled := false
	e := &mockEngine{
		pullFn: func(context.Context, string, func(PullProgress)) error {
			pulled = true
			return nil
		},
	}

	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), e, "nomic-embed-text", &buf); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if pulled {
		t.Error("model pulled despite being present")
	}
	if !strings.Contains(buf.String(), "ready") {
		t.Errorf("output %q missing readiness line", buf.String())
	}
}

func TestEnsureReady_PullsMissingModel(t *testing.T) {
	pulled := ""
	e := &mockEngine{
		hasModelFn: func(_ context.Context, name string) bool { return false },
		pullFn: func(_ context.Context, name string, onProgress func(PullProgress)) error {
			pulled = name
			onProgress(PullProgress{Status: "downloading", Total: 100, Completed: 50})
			return nil
		},
	}

	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), e, "nomic-embed-text", &buf); err != nil {
		t.Fatalf("EnsureReady: %v", err)
	}
	if pulled != "nomic-embed-text" {
		t.Errorf("pulled %q, want nomic-embed-text", pulled)
	}
	if !strings.Contains(buf.String(), "50%") {
		t.Errorf("output %q missing progress line", buf.String())
	}
}

func TestEnsureReady_PullFails(t *testing.T) {
	e := &mockEngine{
		hasModelFn: func(context.Context, string) bool { return false },
		pullFn: func(context.Context, string, func(PullProgress)) error {
			return errors.New("network down")
		},
	}

	var buf bytes.Buffer
	if err := EnsureReady(context.Background(), e, "nomic-embed-text", &buf); err == nil {
		t.Fatal("expected error when pull fails")
	}
}
