package repo

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

func TestGenerateReturnsCandidateText(t *testing.T) {
	client := NewGeminiClient("https://llm.example.com", "gemini-1.5-flash", "", "key-1", time.Second, slog.Default())
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if !strings.Contains(req.URL.Path, "gemini-1.5-flash:generateContent") {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		if req.URL.Query().Get("key") != "key-1" {
			t.Fatal("api key not passed")
		}
		return jsonResponse(t, map[string]any{
			"candidates": []map[string]any{
				{"content": map[string]any{"parts": []map[string]any{{"text": "All systems nominal."}}}},
			},
		}), nil
	}))

	answer, err := client.Generate(context.Background(), Prompt{Query: "status?"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if answer != "All systems nominal." {
		t.Fatalf("unexpected answer: %q", answer)
	}
}

func TestGenerateMapsTimeoutToSentinel(t *testing.T) {
	client := NewGeminiClient("https://llm.example.com", "", "", "k", time.Second, slog.Default())
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return nil, context.DeadlineExceeded
	}))

	_, err := client.Generate(context.Background(), Prompt{Query: "q"})
	if !errors.Is(err, ErrLLMTimeout) {
		t.Fatalf("expected ErrLLMTimeout, got %v", err)
	}
}

func TestGenerateMapsEmptyCandidatesToMalformed(t *testing.T) {
	client := NewGeminiClient("https://llm.example.com", "", "", "k", time.Second, slog.Default())
	client.httpClient = newTestClient(roundTripFunc(func(*http.Request) (*http.Response, error) {
		return jsonResponse(t, map[string]any{"candidates": []any{}}), nil
	}))

	_, err := client.Generate(context.Background(), Prompt{Query: "q"})
	if !errors.Is(err, ErrLLMMalformed) {
		t.Fatalf("expected ErrLLMMalformed, got %v", err)
	}
}

func TestRenderContentsOrdersHistoryBeforeQuery(t *testing.T) {
	contents := renderContents(Prompt{
		Context:  "doc text",
		LiveData: "2 endpoints online",
		History: []models.ChatMessage{
			{Role: models.RoleUser, Message: "first question"},
			{Role: models.RoleAssistant, Message: "first answer"},
		},
		Query: "second question",
	})

	if len(contents) != 3 {
		t.Fatalf("expected 3 turns, got %d", len(contents))
	}
	if contents[0].Role != "user" || contents[1].Role != "model" {
		t.Fatalf("history roles mismapped: %s/%s", contents[0].Role, contents[1].Role)
	}
	last := contents[2].Parts[0].Text
	if !strings.Contains(last, "doc text") || !strings.Contains(last, "2 endpoints online") {
		t.Fatalf("context and live data missing from final turn: %q", last)
	}
	if !strings.HasSuffix(last, "second question") {
		t.Fatalf("query should close the final turn: %q", last)
	}
}

func TestEmbedReturnsVector(t *testing.T) {
	client := NewGeminiClient("https://llm.example.com", "", "text-embedding-004", "k", time.Second, slog.Default())
	client.httpClient = newTestClient(roundTripFunc(func(req *http.Request) (*http.Response, error) {
		if !strings.Contains(req.URL.Path, "text-embedding-004:embedContent") {
			t.Fatalf("unexpected path: %s", req.URL.Path)
		}
		return jsonResponse(t, map[string]any{
			"embedding": map[string]any{"values": []float64{0.1, 0.2, 0.3}},
		}), nil
	}))

	vec, err := client.Embed(context.Background(), "some text")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(vec) != 3 {
		t.Fatalf("unexpected vector: %v", vec)
	}
}
