package llm

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"
)

func TestGeminiGenerate(t *testing.T) {
	var gotPath, gotKey string
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		gotKey = r.URL.Query().Get("key")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"hello "},{"text":"routes"}]}}]}`))
	}))
	defer ts.Close()

	g := NewGemini(GeminiConfig{APIKey: "test-key", Model: "gemini-pro", BaseURL: ts.URL, RPS: 100})
	out, err := g.Generate(context.Background(), "solve this")
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if out != "hello routes" {
		t.Fatalf("got %q, want concatenated parts", out)
	}
	if gotPath != "/v1beta/models/gemini-pro:generateContent" {
		t.Fatalf("path = %q", gotPath)
	}
	if gotKey != "test-key" {
		t.Fatalf("key = %q", gotKey)
	}
}

func TestGeminiGenerateNon200(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.Error(w, `{"error":"quota"}`, http.StatusTooManyRequests)
	}))
	defer ts.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: ts.URL, RPS: 100})
	if _, err := g.Generate(context.Background(), "p"); err == nil {
		t.Fatal("want error on non-200 status")
	} else if !strings.Contains(err.Error(), "429") {
		t.Fatalf("error should carry status: %v", err)
	}
}

func TestGeminiGenerateEmptyCandidates(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, _ = w.Write([]byte(`{"candidates":[]}`))
	}))
	defer ts.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: ts.URL, RPS: 100})
	if _, err := g.Generate(context.Background(), "p"); err == nil {
		t.Fatal("want error on empty candidates")
	}
}

func TestGeminiGenerateHonorsContext(t *testing.T) {
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		time.Sleep(200 * time.Millisecond)
		_, _ = w.Write([]byte(`{"candidates":[{"content":{"parts":[{"text":"late"}]}}]}`))
	}))
	defer ts.Close()

	g := NewGemini(GeminiConfig{APIKey: "k", BaseURL: ts.URL, RPS: 100})
	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()
	if _, err := g.Generate(ctx, "p"); err == nil {
		t.Fatal("want error when context deadline passes")
	}
}
