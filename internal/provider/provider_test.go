package provider

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
)

func newTestLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.NewLogger(logger.LoggingConfig{
		Level:      "debug",
		Format:     "console",
		OutputPath: "stdout",
	})
	require.NoError(t, err)
	return log
}

func TestProvide(t *testing.T) {
	t.Run("LLM only by default", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Providers.LLM = config.LLMConfig{BaseURL: "http://localhost:9999/v1", Model: "test-model"}

		s := Provide(cfg, newTestLogger(t))

		require.NotNil(t, s.LLM)
		assert.Nil(t, s.OCR)
		assert.Nil(t, s.Embedding)
	})

	t.Run("OCR and embedding when enabled", func(t *testing.T) {
		cfg := &config.Config{}
		cfg.Providers.LLM = config.LLMConfig{BaseURL: "http://localhost:9999/v1", Model: "test-model"}
		cfg.Providers.OCR = config.OCRConfig{Enabled: true, BaseURL: "http://localhost:9998"}
		cfg.Providers.Embedding = config.EmbeddingConfig{Enabled: true, Model: "test-embed"}

		s := Provide(cfg, newTestLogger(t))

		require.NotNil(t, s.LLM)
		assert.NotNil(t, s.OCR)
		assert.NotNil(t, s.Embedding)
	})
}
