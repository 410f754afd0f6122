package provider

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/config"
	"github.com/papertrans/papertrans/internal/common/logger"
)

// ocrResponse is the wire shape returned by the OCR service: the document
// rendered as Markdown plus referenced images as base64.
type ocrResponse struct {
	Markdown string            `json:"markdown"`
	Images   map[string]string `json:"images"`
}

// OCRClient uploads a document to an HTTP OCR service and returns the
// recognized Markdown with its images.
type OCRClient struct {
	baseURL string
	apiKey  string
	http    *http.Client
	log     *logger.Logger
}

var _ OCRService = (*OCRClient)(nil)

// NewOCRClient creates an OCR client from the OCR provider configuration.
func NewOCRClient(cfg config.OCRConfig, log *logger.Logger) *OCRClient {
	if log == nil {
		log = logger.Default()
	}
	timeout := cfg.TimeoutDuration()
	if timeout <= 0 {
		timeout = 300 * time.Second
	}
	return &OCRClient{
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		apiKey:  cfg.APIKey,
		http:    &http.Client{Timeout: timeout},
		log:     log.WithFields(zap.String("component", "ocr_client")),
	}
}

// Recognize uploads the document and returns the OCR result. Images that
// fail base64 decoding are skipped with a warning rather than failing the
// whole document.
func (c *OCRClient) Recognize(ctx context.Context, content []byte, filename string) (*OCRResult, error) {
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		return nil, fmt.Errorf("create form file: %w", err)
	}
	if _, err := part.Write(content); err != nil {
		return nil, fmt.Errorf("write form file: %w", err)
	}
	if err := mw.Close(); err != nil {
		return nil, fmt.Errorf("close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/parse", &buf)
	if err != nil {
		return nil, fmt.Errorf("build ocr request: %w", err)
	}
	req.Header.Set("Content-Type", mw.FormDataContentType())
	if c.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+c.apiKey)
	}

	resp, err := c.http.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, Transient("ocr", "recognize", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, Transient("ocr", "read ocr response", err)
	}
	if resp.StatusCode != http.StatusOK {
		return nil, statusError("ocr", "recognize", resp.StatusCode, raw)
	}

	var parsed ocrResponse
	if err := json.Unmarshal(raw, &parsed); err != nil {
		return nil, Permanent("ocr", "decode ocr response", err)
	}
	if parsed.Markdown == "" {
		return nil, Permanent("ocr", "recognize", errors.New("response has no markdown"))
	}

	images := make(map[string][]byte, len(parsed.Images))
	for name, data := range parsed.Images {
		decoded, err := base64.StdEncoding.DecodeString(data)
		if err != nil {
			c.log.Warn("skipping undecodable image",
				zap.String("image", name),
				zap.Error(err),
			)
			continue
		}
		images[name] = decoded
	}

	c.log.Debug("ocr complete",
		zap.String("filename", filename),
		zap.Int("markdown_len", len(parsed.Markdown)),
		zap.Int("images", len(images)),
	)
	return &OCRResult{Markdown: parsed.Markdown, Images: images}, nil
}
