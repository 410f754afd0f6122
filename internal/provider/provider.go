// Package provider defines the external service surfaces the translation
// agents depend on and ships default HTTP implementations for them: an
// OpenAI-compatible chat completions client, an OCR document service client,
// and an embeddings client. It also carries the lenient JSON decoding used
// for model output and token accounting helpers.
package provider

import (
	"context"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
)

// TranslationService is the chat completion surface used for translation,
// terminology extraction, prompt profiling and metadata indexing.
type TranslationService interface {
	// Complete sends one system+user exchange and returns the assistant text.
	Complete(ctx context.Context, system, user string) (string, error)
}

// OCRResult is the provider output for one document: page-merged Markdown
// plus the image files it references.
type OCRResult struct {
	Markdown string
	Images   map[string][]byte
}

// OCRService converts scanned documents to Markdown.
type OCRService interface {
	Recognize(ctx context.Context, content []byte, filename string) (*OCRResult, error)
}

// EmbeddingService computes dense vectors for indexed papers. A nil service
// disables embedding.
type EmbeddingService interface {
	Embed(ctx context.Context, text string) ([]float32, error)
}

// Services bundles the configured provider implementations. OCR and
// Embedding are nil when disabled in the configuration.
type Services struct {
	LLM       TranslationService
	OCR       OCRService
	Embedding EmbeddingService
}

// Provide builds the provider set from configuration.
func Provide(cfg *config.Config, log *logger.Logger) *Services {
	s := &Services{
		LLM: NewOpenAIClient(cfg.Providers.LLM, log),
	}
	if cfg.Providers.OCR.Enabled {
		s.OCR = NewOCRClient(cfg.Providers.OCR, log)
	}
	if cfg.Providers.Embedding.Enabled {
		s.Embedding = NewEmbeddingClient(cfg.Providers.LLM, cfg.Providers.Embedding, log)
	}
	return s
}
