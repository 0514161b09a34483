// Package ai calls the chat-completions service that writes the
// personalized reply and DM for a captured lead.
package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/joaomazul/LinkedFlow-sub001/internal/apperrors"
	"github.com/joaomazul/LinkedFlow-sub001/internal/config"
	"github.com/joaomazul/LinkedFlow-sub001/pkg/util"
)

const systemInstructions = `Você é um assistente de social selling no LinkedIn. ` +
	`Escreva em português brasileiro, num tom humano e direto, sem soar automatizado. ` +
	`Nunca use hashtags nem emojis em excesso. ` +
	`Responda SOMENTE com um objeto JSON no formato {"reply": string, "dm": string}: ` +
	`"reply" é uma resposta pública curta ao comentário; "dm" é uma mensagem privada ` +
	`de abertura de conversa, personalizada para a pessoa.`

// Doer is the interface for performing HTTP requests.
type Doer interface {
	Do(req *http.Request) (*http.Response, error)
}

type Client struct {
	config *config.AIConfig
	logger *zap.Logger
	client Doer
}

// GeneratedContent is the strict shape expected from the model.
type GeneratedContent struct {
	Reply string `json:"reply"`
	DM    string `json:"dm"`
}

// GenerateInput carries everything the prompt is built from.
type GenerateInput struct {
	CampaignName  string
	PersonaText   string
	PostText      string
	LeadName      string
	LeadHeadline  string
	CommentText   string
	MagnetLink    string
	MagnetLabel   string
	ReplyTemplate string
	DMTemplate    string
}

type chatRequest struct {
	Model          string        `json:"model"`
	Messages       []chatMessage `json:"messages"`
	MaxTokens      int           `json:"max_tokens"`
	Temperature    float64       `json:"temperature,omitempty"`
	ResponseFormat *struct {
		Type string `json:"type"`
	} `json:"response_format,omitempty"`
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewClient(cfg *config.AIConfig, logger *zap.Logger) *Client {
	return &Client{
		config: cfg,
		logger: logger,
		client: &http.Client{
			Timeout: cfg.Timeout,
		},
	}
}

// NewClientWithDoer creates a Client with a custom transport (useful for
// testing).
func NewClientWithDoer(cfg *config.AIConfig, logger *zap.Logger, doer Doer) *Client {
	return &Client{
		config: cfg,
		logger: logger,
		client: doer,
	}
}

// GenerateLeadContent produces the public reply and private DM for one
// lead. An unusable model response is a GenerationFailed error; the caller
// leaves the lead pending for manual retry.
func (c *Client) GenerateLeadContent(ctx context.Context, in GenerateInput) (*GeneratedContent, error) {
	raw, err := c.complete(ctx, c.systemPrompt(in), c.userPrompt(in))
	if err != nil {
		return nil, err
	}

	content, err := ParseGeneratedContent(raw)
	if err != nil {
		c.logger.Warn("Unusable model output",
			zap.String("campaign", in.CampaignName),
			zap.Error(err))
		return nil, err
	}

	return content, nil
}

func (c *Client) systemPrompt(in GenerateInput) string {
	var b strings.Builder
	b.WriteString(systemInstructions)
	if in.PersonaText != "" {
		b.WriteString("\n\nContexto sobre quem está respondendo:\n")
		b.WriteString(in.PersonaText)
	}
	return b.String()
}

func (c *Client) userPrompt(in GenerateInput) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Campanha: %s\n", in.CampaignName)
	fmt.Fprintf(&b, "Post: %s\n", util.Truncate(in.PostText, 500))
	fmt.Fprintf(&b, "Lead: %s", in.LeadName)
	if in.LeadHeadline != "" {
		fmt.Fprintf(&b, " — %s", in.LeadHeadline)
	}
	b.WriteString("\n")
	fmt.Fprintf(&b, "Comentário do lead: %s\n", util.Truncate(in.CommentText, 500))
	if first := util.FirstName(in.LeadName); first != "" {
		fmt.Fprintf(&b, "Trate o lead pelo primeiro nome (%s).\n", first)
	}
	if in.MagnetLink != "" {
		label := in.MagnetLabel
		if label == "" {
			label = "material"
		}
		fmt.Fprintf(&b, "Inclua no DM o link do %s: %s\n", label, in.MagnetLink)
	}
	if in.ReplyTemplate != "" {
		fmt.Fprintf(&b, "Modelo de resposta pública (adapte, não copie): %s\n", in.ReplyTemplate)
	}
	if in.DMTemplate != "" {
		fmt.Fprintf(&b, "Modelo de DM (adapte, não copie): %s\n", in.DMTemplate)
	}
	return b.String()
}

func (c *Client) complete(ctx context.Context, system, user string) (string, error) {
	reqBody := chatRequest{
		Model: c.config.Model,
		Messages: []chatMessage{
			{Role: "system", Content: system},
			{Role: "user", Content: user},
		},
		MaxTokens:   c.config.MaxTokens,
		Temperature: c.config.Temperature,
		ResponseFormat: &struct {
			Type string `json:"type"`
		}{Type: "json_object"},
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return "", fmt.Errorf("failed to marshal request body: %w", err)
	}

	endpoint := c.config.BaseURL + "/chat/completions"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewBuffer(jsonBody))
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", apperrors.NewExternalAPI(0, "falha de rede no serviço de IA", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		return "", apperrors.NewRateLimited("limite do serviço de IA excedido", 0, time.Now().Add(time.Minute))
	}
	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return "", apperrors.NewExternalAPI(resp.StatusCode,
			fmt.Sprintf("AI API returned status %d: %s", resp.StatusCode, string(payload)), nil)
	}

	var response chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&response); err != nil {
		return "", fmt.Errorf("failed to decode response: %w", err)
	}
	if len(response.Choices) == 0 {
		return "", apperrors.NewGenerationFailed("resposta da IA sem conteúdo", nil)
	}

	return response.Choices[0].Message.Content, nil
}

// ParseGeneratedContent parses the model output into the expected schema,
// tolerating markdown code fences around the JSON object. Anything that
// still fails to parse or validate is a GenerationFailed error.
func ParseGeneratedContent(raw string) (*GeneratedContent, error) {
	cleaned := StripCodeFences(raw)

	var content GeneratedContent
	if err := json.Unmarshal([]byte(cleaned), &content); err != nil {
		return nil, apperrors.NewGenerationFailed("resposta da IA não é um JSON válido", err)
	}

	if strings.TrimSpace(content.Reply) == "" {
		return nil, apperrors.NewGenerationFailed("resposta da IA sem o campo \"reply\"", nil)
	}

	return &content, nil
}

// StripCodeFences removes a surrounding markdown code fence
// (``` or ```json) from the model output, if present.
func StripCodeFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}

	s = strings.TrimPrefix(s, "```")
	if idx := strings.Index(s, "\n"); idx >= 0 {
		// Drop the language tag line (e.g. "json")
		s = s[idx+1:]
	}
	s = strings.TrimSuffix(strings.TrimSpace(s), "```")
	return strings.TrimSpace(s)
}
