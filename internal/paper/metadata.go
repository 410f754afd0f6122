// Package paper persists translated paper metadata with full-text search.
// The SQLite backend (default) uses an FTS5 index kept in sync by triggers;
// the Postgres backend uses a generated tsvector column.
package paper

import (
	"context"
	"encoding/binary"
	"errors"
	"math"
	"time"
)

// ErrNotFound is returned when no paper exists for the requested id.
var ErrNotFound = errors.New("paper not found")

// Metadata describes one translated paper. The id is the translation task
// id that produced it.
type Metadata struct {
	ID              string    `json:"id"`
	Title           string    `json:"title"`
	TitleZH         string    `json:"title_zh"`
	Authors         []string  `json:"authors"`
	Abstract        string    `json:"abstract"`
	Domain          string    `json:"domain"`
	ResearchProblem string    `json:"research_problem"`
	Methodology     string    `json:"methodology"`
	Contributions   []string  `json:"contributions"`
	Keywords        []string  `json:"keywords"`
	Tags            []string  `json:"tags"`
	BaseModels      []string  `json:"base_models"`
	Year            *int      `json:"year"`
	Venue           string    `json:"venue"`
	QualityScore    int       `json:"quality_score"`
	Filename        string    `json:"filename"`
	Embedding       []float32 `json:"-"`
	CreatedAt       time.Time `json:"created_at"`
}

// Repository persists paper metadata. Upsert is atomic per call; schema
// initialization is idempotent.
type Repository interface {
	Upsert(ctx context.Context, meta *Metadata) error
	Get(ctx context.Context, id string) (*Metadata, error)
	List(ctx context.Context, limit int) ([]*Metadata, error)
	Search(ctx context.Context, query string) ([]*Metadata, error)
	SearchByDomain(ctx context.Context, domain string) ([]*Metadata, error)
	SearchByKeyword(ctx context.Context, keyword string) ([]*Metadata, error)
	Delete(ctx context.Context, id string) error
}

// packEmbedding encodes a vector as contiguous little-endian float32 bytes.
func packEmbedding(vec []float32) []byte {
	if len(vec) == 0 {
		return nil
	}
	buf := make([]byte, 4*len(vec))
	for i, v := range vec {
		binary.LittleEndian.PutUint32(buf[i*4:], math.Float32bits(v))
	}
	return buf
}

// unpackEmbedding decodes a little-endian float32 blob. Trailing partial
// values are dropped.
func unpackEmbedding(buf []byte) []float32 {
	n := len(buf) / 4
	if n == 0 {
		return nil
	}
	vec := make([]float32, n)
	for i := range vec {
		vec[i] = math.Float32frombits(binary.LittleEndian.Uint32(buf[i*4:]))
	}
	return vec
}
