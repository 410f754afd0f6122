package paper

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/db"
)

// PostgresRepository stores papers in PostgreSQL with a generated tsvector
// column for full-text search.
type PostgresRepository struct {
	db  *sqlx.DB
	log *logger.Logger
}

var _ Repository = (*PostgresRepository)(nil)

// NewPostgresRepository initializes the schema (idempotent) and applies
// column migrations before returning the repository.
func NewPostgresRepository(pool *db.Pool, log *logger.Logger) (*PostgresRepository, error) {
	if log == nil {
		log = logger.Default()
	}
	repo := &PostgresRepository{
		db:  pool.Writer(),
		log: log.WithFields(zap.String("component", "paper_repository")),
	}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("papers schema init: %w", err)
	}
	return repo, nil
}

func (r *PostgresRepository) initSchema() error {
	schema := `
	CREATE TABLE IF NOT EXISTS papers (
		id               TEXT PRIMARY KEY,
		title            TEXT NOT NULL DEFAULT '',
		title_zh         TEXT NOT NULL DEFAULT '',
		authors          TEXT NOT NULL DEFAULT '[]',
		abstract         TEXT NOT NULL DEFAULT '',
		domain           TEXT NOT NULL DEFAULT '',
		research_problem TEXT NOT NULL DEFAULT '',
		methodology      TEXT NOT NULL DEFAULT '',
		contributions    TEXT NOT NULL DEFAULT '[]',
		keywords         TEXT NOT NULL DEFAULT '[]',
		tags             TEXT NOT NULL DEFAULT '[]',
		year             INTEGER,
		filename         TEXT NOT NULL DEFAULT '',
		embedding        BYTEA,
		created_at       TIMESTAMPTZ NOT NULL DEFAULT now(),
		search_tsv       tsvector GENERATED ALWAYS AS (
			to_tsvector('simple',
				coalesce(title, '') || ' ' || coalesce(title_zh, '') || ' ' ||
				coalesce(abstract, '') || ' ' || coalesce(research_problem, '') || ' ' ||
				coalesce(methodology, '') || ' ' || coalesce(keywords, ''))
		) STORED
	);
	CREATE INDEX IF NOT EXISTS idx_papers_search_tsv ON papers USING GIN (search_tsv);
	CREATE INDEX IF NOT EXISTS idx_papers_domain ON papers (domain);
	CREATE INDEX IF NOT EXISTS idx_papers_created_at ON papers (created_at);

	ALTER TABLE papers ADD COLUMN IF NOT EXISTS venue TEXT NOT NULL DEFAULT '';
	ALTER TABLE papers ADD COLUMN IF NOT EXISTS base_models TEXT NOT NULL DEFAULT '[]';
	ALTER TABLE papers ADD COLUMN IF NOT EXISTS quality_score INTEGER NOT NULL DEFAULT 0;
	`
	_, err := r.db.Exec(schema)
	return err
}

// Upsert inserts the paper or replaces every field except created_at when
// the id already exists.
func (r *PostgresRepository) Upsert(ctx context.Context, meta *Metadata) error {
	if meta == nil || meta.ID == "" {
		return errors.New("paper metadata requires an id")
	}
	createdAt := meta.CreatedAt
	if createdAt.IsZero() {
		createdAt = time.Now().UTC()
	}

	_, err := r.db.ExecContext(ctx, `
		INSERT INTO papers (
			id, title, title_zh, authors, abstract, domain, research_problem,
			methodology, contributions, keywords, tags, base_models, year,
			venue, quality_score, filename, embedding, created_at
		) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17, $18)
		ON CONFLICT (id) DO UPDATE SET
			title            = EXCLUDED.title,
			title_zh         = EXCLUDED.title_zh,
			authors          = EXCLUDED.authors,
			abstract         = EXCLUDED.abstract,
			domain           = EXCLUDED.domain,
			research_problem = EXCLUDED.research_problem,
			methodology      = EXCLUDED.methodology,
			contributions    = EXCLUDED.contributions,
			keywords         = EXCLUDED.keywords,
			tags             = EXCLUDED.tags,
			base_models      = EXCLUDED.base_models,
			year             = EXCLUDED.year,
			venue            = EXCLUDED.venue,
			quality_score    = EXCLUDED.quality_score,
			filename         = EXCLUDED.filename,
			embedding        = EXCLUDED.embedding`,
		meta.ID, meta.Title, meta.TitleZH, marshalList(meta.Authors), meta.Abstract,
		meta.Domain, meta.ResearchProblem, meta.Methodology, marshalList(meta.Contributions),
		marshalList(meta.Keywords), marshalList(meta.Tags), marshalList(meta.BaseModels),
		meta.Year, meta.Venue, meta.QualityScore, meta.Filename,
		packEmbedding(meta.Embedding), createdAt,
	)
	if err != nil {
		return fmt.Errorf("upsert paper: %w", err)
	}
	return nil
}

// Get returns one paper by id.
func (r *PostgresRepository) Get(ctx context.Context, id string) (*Metadata, error) {
	var row paperRow
	err := r.db.GetContext(ctx, &row, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers WHERE id = $1`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get paper: %w", err)
	}
	return row.toMetadata(), nil
}

// List returns papers newest first.
func (r *PostgresRepository) List(ctx context.Context, limit int) ([]*Metadata, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []paperRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers ORDER BY created_at DESC LIMIT $1`, limit)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	return toMetadataList(rows), nil
}

// Search runs a tsvector query over the searchable columns, best match
// first.
func (r *PostgresRepository) Search(ctx context.Context, query string) ([]*Metadata, error) {
	if strings.TrimSpace(query) == "" {
		return []*Metadata{}, nil
	}
	var rows []paperRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers
		WHERE search_tsv @@ plainto_tsquery('simple', $1)
		ORDER BY ts_rank(search_tsv, plainto_tsquery('simple', $1)) DESC`, query)
	if err != nil {
		return nil, fmt.Errorf("search papers: %w", err)
	}
	return toMetadataList(rows), nil
}

// SearchByDomain returns papers whose domain contains the given label.
func (r *PostgresRepository) SearchByDomain(ctx context.Context, domain string) ([]*Metadata, error) {
	var rows []paperRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers WHERE domain ILIKE $1 ORDER BY created_at DESC`,
		"%"+domain+"%")
	if err != nil {
		return nil, fmt.Errorf("search papers by domain: %w", err)
	}
	return toMetadataList(rows), nil
}

// SearchByKeyword matches against the keywords JSON column.
func (r *PostgresRepository) SearchByKeyword(ctx context.Context, keyword string) ([]*Metadata, error) {
	var rows []paperRow
	err := r.db.SelectContext(ctx, &rows, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers WHERE keywords ILIKE $1 ORDER BY created_at DESC`,
		"%"+keyword+"%")
	if err != nil {
		return nil, fmt.Errorf("search papers by keyword: %w", err)
	}
	return toMetadataList(rows), nil
}

// Delete removes one paper.
func (r *PostgresRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM papers WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete paper: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}
