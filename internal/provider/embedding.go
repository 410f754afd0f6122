package provider

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
)

type embeddingRequest struct {
	Model      string   `json:"model"`
	Input      []string `json:"input"`
	Dimensions int      `json:"dimensions,omitempty"`
}

type embeddingResponse struct {
	Data []struct {
		Embedding []float32 `json:"embedding"`
	} `json:"data"`
	Error *apiError `json:"error,omitempty"`
}

// EmbeddingClient calls an OpenAI-compatible embeddings endpoint. It shares
// the LLM provider's base URL and credentials; the model and dimensions come
// from the embedding configuration.
type EmbeddingClient struct {
	baseURL string
	apiKey  string
	model   string
	dims    int
	http    *http.Client
	log     *logger.Logger
}

var _ EmbeddingService = (*EmbeddingClient)(nil)

// NewEmbeddingClient creates an embeddings client.
func NewEmbeddingClient(llm config.LLMConfig, emb config.EmbeddingConfig, log *logger.Logger) *EmbeddingClient {
	if log == nil {
		log = logger.Default()
	}
	timeout := llm.TimeoutDuration()
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	return &EmbeddingClient{
		baseURL: strings.TrimRight(llm.BaseURL, "/"),
		apiKey:  llm.APIKey,
		model:   emb.Model,
		dims:    emb.Dimensions,
		http:    &http.Client{Timeout: timeout},
		log:     log.WithFields(zap.String("component", "embedding_client")),
	}
}

// Embed returns the embedding vector for text.
func (c *EmbeddingClient) Embed(ctx context.Context, text string) ([]float32, error) {
	body, err := json.Marshal(embeddingRequest{
		Model:      c.model,
		Input:      []string{text},
		Dimensions: c.dims,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal embedding request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/embeddings", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("build embedding request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Transient("embedding", "embed", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("embedding", "read embedding response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("embedding", "embed", resp.StatusCode, raw)
	}

	var parsed embeddingResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, Permanent("embedding", "decode embedding response", err)
	}
	if parsed.Error != nil {
		return nil, Permanent("embedding", "embed", fmt.Errorf("%s (%s)", parsed.Error.Message, parsed.Error.Type))
	}
	if len(parsed.Data) == 0 || len(parsed.Data[0].Embedding) == 0 {
		return nil, Permanent("embedding", "embed", errors.New("response has no embedding"))
	}
	return parsed.Data[0].Embedding, nil
}
