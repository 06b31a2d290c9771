package repo

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/infrawatchstack/infrawatch-insight/internal/models"
)

// Sentinel errors callers branch on: a timeout may be worth a retry, a
// malformed response never is.
var (
	ErrLLMTimeout   = errors.New("llm request timed out")
	ErrLLMMalformed = errors.New("llm returned malformed response")
)

// Prompt carries the assembled pieces of one generation request. Empty
// sections are omitted from the rendered prompt.
type Prompt struct {
	System   string
	Context  string
	LiveData string
	History  []models.ChatMessage
	Query    string
}

// GeminiClient calls the Gemini REST generateContent and embedContent
// endpoints. It is the only component that talks to the model; everything
// above it works with plain strings and parsed summaries.
type GeminiClient struct {
	baseURL    string
	model      string
	embedModel string
	apiKey     string
	httpClient *http.Client
	logger     *slog.Logger
}

// NewGeminiClient constructs a client for the configured model endpoints.
func NewGeminiClient(baseURL, model, embedModel, apiKey string, timeout time.Duration, logger *slog.Logger) *GeminiClient {
	if logger == nil {
		logger = slog.Default()
	}
	if model == "" {
		model = "gemini-1.5-flash"
	}
	if embedModel == "" {
		embedModel = "text-embedding-004"
	}
	return &GeminiClient{
		baseURL:    strings.TrimRight(baseURL, "/"),
		model:      model,
		embedModel: embedModel,
		apiKey:     apiKey,
		httpClient: &http.Client{Timeout: timeout},
		logger:     logger,
	}
}

type geminiContent struct {
	Role  string       `json:"role,omitempty"`
	Parts []geminiPart `json:"parts"`
}

type geminiPart struct {
	Text string `json:"text"`
}

type generateRequest struct {
	SystemInstruction *geminiContent  `json:"systemInstruction,omitempty"`
	Contents          []geminiContent `json:"contents"`
}

type generateResponse struct {
	Candidates []struct {
		Content geminiContent `json:"content"`
	} `json:"candidates"`
}

// Generate renders the prompt into a generateContent call and returns the
// first candidate's text. Timeouts map to ErrLLMTimeout; an empty or
// undecodable body maps to ErrLLMMalformed.
func (c *GeminiClient) Generate(ctx context.Context, prompt Prompt) (string, error) {
	if c == nil || c.baseURL == "" {
		return "", fmt.Errorf("gemini client not configured")
	}

	reqBody := generateRequest{
		Contents: renderContents(prompt),
	}
	if prompt.System != "" {
		reqBody.SystemInstruction = &geminiContent{Parts: []geminiPart{{Text: prompt.System}}}
	}

	endpoint := fmt.Sprintf("%s/v1beta/models/%s:generateContent?key=%s",
		c.baseURL, c.model, url.QueryEscape(c.apiKey))

	var response generateResponse
	if err := c.postJSON(ctx, endpoint, reqBody, &response); err != nil {
		return "", err
	}
	if len(response.Candidates) == 0 || len(response.Candidates[0].Content.Parts) == 0 {
		return "", fmt.Errorf("%w: no candidates", ErrLLMMalformed)
	}

	var sb strings.Builder
	for _, part := range response.Candidates[0].Content.Parts {
		sb.WriteString(part.Text)
	}
	answer := strings.TrimSpace(sb.String())
	if answer == "" {
		return "", fmt.Errorf("%w: empty candidate text", ErrLLMMalformed)
	}
	return answer, nil
}

// Embed returns the embedding vector for the text, for the vector retrieval
// strategy.
func (c *GeminiClient) Embed(ctx context.Context, text string) ([]float64, error) {
	if c == nil || c.baseURL == "" {
		return nil, fmt.Errorf("gemini client not configured")
	}

	reqBody := map[string]any{
		"content": geminiContent{Parts: []geminiPart{{Text: text}}},
	}
	endpoint := fmt.Sprintf("%s/v1beta/models/%s:embedContent?key=%s",
		c.baseURL, c.embedModel, url.QueryEscape(c.apiKey))

	var response struct {
		Embedding struct {
			Values []float64 `json:"values"`
		} `json:"embedding"`
	}
	if err := c.postJSON(ctx, endpoint, reqBody, &response); err != nil {
		return nil, err
	}
	if len(response.Embedding.Values) == 0 {
		return nil, fmt.Errorf("%w: empty embedding", ErrLLMMalformed)
	}
	return response.Embedding.Values, nil
}

// renderContents flattens history plus the current query into alternating
// conversation turns, prefixing the first user turn with retrieved context
// and live telemetry when present.
func renderContents(prompt Prompt) []geminiContent {
	contents := make([]geminiContent, 0, len(prompt.History)+1)
	for _, msg := range prompt.History {
		role := "user"
		if msg.Role == models.RoleAssistant {
			role = "model"
		}
		contents = append(contents, geminiContent{
			Role:  role,
			Parts: []geminiPart{{Text: msg.Message}},
		})
	}

	var sb strings.Builder
	if prompt.Context != "" {
		sb.WriteString("Knowledge base context:\n")
		sb.WriteString(prompt.Context)
		sb.WriteString("\n\n")
	}
	if prompt.LiveData != "" {
		sb.WriteString("Current infrastructure data:\n")
		sb.WriteString(prompt.LiveData)
		sb.WriteString("\n\n")
	}
	sb.WriteString(prompt.Query)

	return append(contents, geminiContent{
		Role:  "user",
		Parts: []geminiPart{{Text: sb.String()}},
	})
}

func (c *GeminiClient) postJSON(ctx context.Context, endpoint string, payload any, out any) error {
	body, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		if isTimeout(err) {
			return fmt.Errorf("%w: %v", ErrLLMTimeout, err)
		}
		return err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("gemini returned %s", resp.Status)
	}
	if err := json.NewDecoder(resp.Body).Decode(out); err != nil {
		return fmt.Errorf("%w: %v", ErrLLMMalformed, err)
	}
	return nil
}

func isTimeout(err error) bool {
	if errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var netErr net.Error
	return errors.As(err, &netErr) && netErr.Timeout()
}
