// Package llm wraps the remote chat-completion endpoint.
//
// The client is fail-open: whatever goes wrong (missing credential, upstream
// error, transport failure) Complete returns text the bot can show the user.
// The Degraded flag keeps real answers and apology strings distinguishable
// for logging.
package llm

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/prosabot/prosa/internal/config"
	"github.com/prosabot/prosa/internal/store"
)

// Reply is the outcome of one completion call. Text is always non-empty and
// user-displayable.
type Reply struct {
	Text     string
	Degraded bool
}

type Client struct {
	apiKey       string
	baseURL      string
	model        string
	systemPrompt string
	httpClient   *http.Client
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type completionRequest struct {
	Model    string        `json:"model"`
	Messages []chatMessage `json:"messages"`
}

type completionResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func NewClient(cfg config.CompletionConfig) *Client {
	return &Client{
		apiKey:       cfg.APIKey,
		baseURL:      cfg.BaseURL,
		model:        cfg.Model,
		systemPrompt: config.SystemPrompt,
		httpClient:   http.DefaultClient,
	}
}

// Complete builds the message list: system prompt (extended with RAG context
// when present), prior history in chronological order, then the current user
// message. One request, one response, no retry, no streaming.
func (c *Client) Complete(ctx context.Context, userMessage string, history []store.Turn, ragContext string) Reply {
	if c.apiKey == "" {
		return Reply{
			Text:     "Erro: OPENROUTER_API_KEY não configurada. Adicione a chave às variáveis de ambiente.",
			Degraded: true,
		}
	}

	system := c.systemPrompt
	if ragContext != "" {
		system += "\n\nContexto relevante da base de conhecimento:\n" + ragContext
	}

	messages := make([]chatMessage, 0, len(history)+2)
	messages = append(messages, chatMessage{Role: "system", Content: system})
	for _, turn := range history {
		messages = append(messages, chatMessage{Role: turn.Role, Content: turn.Content})
	}
	messages = append(messages, chatMessage{Role: store.RoleUser, Content: userMessage})

	body, err := json.Marshal(completionRequest{Model: c.model, Messages: messages})
	if err != nil {
		return degraded(err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL, bytes.NewReader(body))
	if err != nil {
		return degraded(err)
	}
	req.Header.Set("Authorization", "Bearer "+c.apiKey)
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return degraded(err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		payload, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return Reply{
			Text:     fmt.Sprintf("Erro ao conectar com a IA (status %d): %s", resp.StatusCode, payload),
			Degraded: true,
		}
	}

	var parsed completionResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return degraded(err)
	}
	if len(parsed.Choices) == 0 {
		return Reply{Text: "Erro ao processar sua mensagem: resposta vazia da IA.", Degraded: true}
	}

	return Reply{Text: parsed.Choices[0].Message.Content}
}

func degraded(err error) Reply {
	return Reply{
		Text:     fmt.Sprintf("Erro ao processar sua mensagem: %v", err),
		Degraded: true,
	}
}
