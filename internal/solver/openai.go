package solver

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/sashabaranov/go-openai"
)

// OpenAIConfig はOpenAI互換APIの接続設定。
type OpenAIConfig struct {
	APIKey    string
	BaseURL   string // 空の場合は公式エンドポイント
	Model     string
	MaxTokens int
}

// OpenAIProvider はOpenAI互換のChat Completions APIを使うProvider。
type OpenAIProvider struct {
	client    *openai.Client
	model     string
	maxTokens int
	logger    *slog.Logger
}

// NewOpenAIProvider はOpenAIProviderを生成する。
// httpClientがnilの場合はライブラリ既定のクライアントを使う。
func NewOpenAIProvider(cfg OpenAIConfig, httpClient *http.Client, logger *slog.Logger) *OpenAIProvider {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	if httpClient != nil {
		clientCfg.HTTPClient = httpClient
	}

	return &OpenAIProvider{
		client:    openai.NewClientWithConfig(clientCfg),
		model:     cfg.Model,
		maxTokens: cfg.MaxTokens,
		logger:    logger,
	}
}

// Complete はメッセージを送信し、最初の選択肢の本文を返す。
// 選択肢が無い場合は空文字列を返す。
func (p *OpenAIProvider) Complete(ctx context.Context, messages []Message) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:    p.model,
		Messages: toOpenAIMessages(messages),
	}
	if p.maxTokens > 0 {
		req.MaxCompletionTokens = p.maxTokens
	}

	resp, err := p.client.CreateChatCompletion(ctx, req)
	if err != nil {
		p.logger.Error("chat completion failed",
			slog.String("model", p.model),
			slog.String("error", err.Error()),
		)
		return "", fmt.Errorf("chat completion failed: %w", err)
	}

	if len(resp.Choices) == 0 {
		p.logger.Warn("chat completion returned no choices", slog.String("model", p.model))
		return "", nil
	}

	p.logger.Debug("chat completion received",
		slog.String("model", p.model),
		slog.String("finish_reason", string(resp.Choices[0].FinishReason)),
		slog.Int("total_tokens", resp.Usage.TotalTokens),
	)
	return resp.Choices[0].Message.Content, nil
}

// toOpenAIMessages は画像付きメッセージをテキストと画像のパートに分けて変換する。
func toOpenAIMessages(messages []Message) []openai.ChatCompletionMessage {
	out := make([]openai.ChatCompletionMessage, 0, len(messages))
	for _, m := range messages {
		if m.ImageURL == "" {
			out = append(out, openai.ChatCompletionMessage{Role: m.Role, Content: m.Text})
			continue
		}
		out = append(out, openai.ChatCompletionMessage{
			Role: m.Role,
			MultiContent: []openai.ChatMessagePart{
				{Type: openai.ChatMessagePartTypeText, Text: m.Text},
				{
					Type: openai.ChatMessagePartTypeImageURL,
					ImageURL: &openai.ChatMessageImageURL{
						URL:    m.ImageURL,
						Detail: openai.ImageURLDetailAuto,
					},
				},
			},
		})
	}
	return out
}

// compile-time interface check
var _ Provider = (*OpenAIProvider)(nil)
