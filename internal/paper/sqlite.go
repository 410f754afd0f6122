package paper

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/papertrans/papertrans/internal/common/logger"
	"github.com/papertrans/papertrans/internal/common/sqlite"
	"github.com/papertrans/papertrans/internal/db"
)

// SQLiteRepository stores papers in SQLite with an FTS5 index over the
// searchable text columns, kept in sync by triggers.
type SQLiteRepository struct {
	db  *sqlx.DB // writer
	ro  *sqlx.DB // reader
	log *logger.Logger
}

var _ Repository = (*SQLiteRepository)(nil)

// NewSQLiteRepository initializes the schema (idempotent) and applies
// column migrations before returning the repository.
func NewSQLiteRepository(pool *db.Pool, log *logger.Logger) (*SQLiteRepository, error) {
	if log == nil {
		log = logger.Default()
	}
	repo := &SQLiteRepository{
		db:  pool.Writer(),
		ro:  pool.Reader(),
		log: log.WithFields(zap.String("component", "paper_repository")),
	}
	if err := repo.initSchema(); err != nil {
		return nil, fmt.Errorf("papers schema init: %w", err)
	}
	if err := repo.migrate(); err != nil {
		return nil, fmt.Errorf("papers schema migrate: %w", err)
	}
	return repo, nil
}

func (r *SQLiteRepository) initSchema() error {
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
		embedding        BLOB,
		created_at       TIMESTAMP NOT NULL DEFAULT CURRENT_TIMESTAMP
	);
	CREATE INDEX IF NOT EXISTS idx_papers_domain ON papers(domain);
	CREATE INDEX IF NOT EXISTS idx_papers_created_at ON papers(created_at);

	CREATE VIRTUAL TABLE IF NOT EXISTS papers_fts USING fts5(
		title, title_zh, abstract, research_problem, methodology, keywords,
		content='papers', content_rowid='rowid'
	);

	CREATE TRIGGER IF NOT EXISTS papers_fts_insert AFTER INSERT ON papers BEGIN
		INSERT INTO papers_fts(rowid, title, title_zh, abstract, research_problem, methodology, keywords)
		VALUES (new.rowid, new.title, new.title_zh, new.abstract, new.research_problem, new.methodology, new.keywords);
	END;
	CREATE TRIGGER IF NOT EXISTS papers_fts_delete AFTER DELETE ON papers BEGIN
		INSERT INTO papers_fts(papers_fts, rowid, title, title_zh, abstract, research_problem, methodology, keywords)
		VALUES ('delete', old.rowid, old.title, old.title_zh, old.abstract, old.research_problem, old.methodology, old.keywords);
	END;
	CREATE TRIGGER IF NOT EXISTS papers_fts_update AFTER UPDATE ON papers BEGIN
		INSERT INTO papers_fts(papers_fts, rowid, title, title_zh, abstract, research_problem, methodology, keywords)
		VALUES ('delete', old.rowid, old.title, old.title_zh, old.abstract, old.research_problem, old.methodology, old.keywords);
		INSERT INTO papers_fts(rowid, title, title_zh, abstract, research_problem, methodology, keywords)
		VALUES (new.rowid, new.title, new.title_zh, new.abstract, new.research_problem, new.methodology, new.keywords);
	END;
	`
	_, err := r.db.Exec(schema)
	return err
}

// migrate adds columns introduced after the initial release so existing
// databases keep working.
func (r *SQLiteRepository) migrate() error {
	additions := []struct {
		column     string
		definition string
	}{
		{"venue", "TEXT NOT NULL DEFAULT ''"},
		{"base_models", "TEXT NOT NULL DEFAULT '[]'"},
		{"quality_score", "INTEGER NOT NULL DEFAULT 0"},
	}
	for _, add := range additions {
		if err := sqlite.EnsureColumn(r.db.DB, "papers", add.column, add.definition); err != nil {
			return fmt.Errorf("add column %s: %w", add.column, err)
		}
	}
	return nil
}

// Upsert inserts the paper or replaces every field except created_at when
// the id already exists.
func (r *SQLiteRepository) Upsert(ctx context.Context, meta *Metadata) error {
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
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			title            = excluded.title,
			title_zh         = excluded.title_zh,
			authors          = excluded.authors,
			abstract         = excluded.abstract,
			domain           = excluded.domain,
			research_problem = excluded.research_problem,
			methodology      = excluded.methodology,
			contributions    = excluded.contributions,
			keywords         = excluded.keywords,
			tags             = excluded.tags,
			base_models      = excluded.base_models,
			year             = excluded.year,
			venue            = excluded.venue,
			quality_score    = excluded.quality_score,
			filename         = excluded.filename,
			embedding        = excluded.embedding`,
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
func (r *SQLiteRepository) Get(ctx context.Context, id string) (*Metadata, error) {
	var row paperRow
	err := r.ro.GetContext(ctx, &row, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers WHERE id = ?`, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, fmt.Errorf("%w: %s", ErrNotFound, id)
		}
		return nil, fmt.Errorf("get paper: %w", err)
	}
	return row.toMetadata(), nil
}

// List returns papers newest first.
func (r *SQLiteRepository) List(ctx context.Context, limit int) ([]*Metadata, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []paperRow
	err := r.ro.SelectContext(ctx, &rows, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers ORDER BY created_at DESC LIMIT ?`, limit)
	if err != nil {
		return nil, fmt.Errorf("list papers: %w", err)
	}
	return toMetadataList(rows), nil
}

// Search runs a full-text query over title, title_zh, abstract,
// research_problem, methodology and keywords, best match first.
func (r *SQLiteRepository) Search(ctx context.Context, query string) ([]*Metadata, error) {
	match := buildMatchQuery(query)
	if match == "" {
		return []*Metadata{}, nil
	}
	var rows []paperRow
	err := r.ro.SelectContext(ctx, &rows, `
		SELECT p.id, p.title, p.title_zh, p.authors, p.abstract, p.domain,
		       p.research_problem, p.methodology, p.contributions, p.keywords,
		       p.tags, p.base_models, p.year, p.venue, p.quality_score,
		       p.filename, p.embedding, p.created_at
		FROM papers p
		JOIN papers_fts ON papers_fts.rowid = p.rowid
		WHERE papers_fts MATCH ?
		ORDER BY rank`, match)
	if err != nil {
		return nil, fmt.Errorf("search papers: %w", err)
	}
	return toMetadataList(rows), nil
}

// SearchByDomain returns papers whose domain contains the given label.
func (r *SQLiteRepository) SearchByDomain(ctx context.Context, domain string) ([]*Metadata, error) {
	var rows []paperRow
	err := r.ro.SelectContext(ctx, &rows, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers WHERE domain LIKE ? ORDER BY created_at DESC`,
		"%"+domain+"%")
	if err != nil {
		return nil, fmt.Errorf("search papers by domain: %w", err)
	}
	return toMetadataList(rows), nil
}

// SearchByKeyword matches against the keywords JSON column.
func (r *SQLiteRepository) SearchByKeyword(ctx context.Context, keyword string) ([]*Metadata, error) {
	var rows []paperRow
	err := r.ro.SelectContext(ctx, &rows, `
		SELECT id, title, title_zh, authors, abstract, domain, research_problem,
		       methodology, contributions, keywords, tags, base_models, year,
		       venue, quality_score, filename, embedding, created_at
		FROM papers WHERE keywords LIKE ? ORDER BY created_at DESC`,
		"%"+keyword+"%")
	if err != nil {
		return nil, fmt.Errorf("search papers by keyword: %w", err)
	}
	return toMetadataList(rows), nil
}

// Delete removes one paper.
func (r *SQLiteRepository) Delete(ctx context.Context, id string) error {
	result, err := r.db.ExecContext(ctx, `DELETE FROM papers WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("delete paper: %w", err)
	}
	if rows, _ := result.RowsAffected(); rows == 0 {
		return fmt.Errorf("%w: %s", ErrNotFound, id)
	}
	return nil
}

// paperRow is the DB scan target shared by both backends.
type paperRow struct {
	ID              string        `db:"id"`
	Title           string        `db:"title"`
	TitleZH         string        `db:"title_zh"`
	Authors         string        `db:"authors"`
	Abstract        string        `db:"abstract"`
	Domain          string        `db:"domain"`
	ResearchProblem string        `db:"research_problem"`
	Methodology     string        `db:"methodology"`
	Contributions   string        `db:"contributions"`
	Keywords        string        `db:"keywords"`
	Tags            string        `db:"tags"`
	BaseModels      string        `db:"base_models"`
	Year            sql.NullInt64 `db:"year"`
	Venue           string        `db:"venue"`
	QualityScore    int           `db:"quality_score"`
	Filename        string        `db:"filename"`
	Embedding       []byte        `db:"embedding"`
	CreatedAt       time.Time     `db:"created_at"`
}

func (r *paperRow) toMetadata() *Metadata {
	m := &Metadata{
		ID:              r.ID,
		Title:           r.Title,
		TitleZH:         r.TitleZH,
		Authors:         unmarshalList(r.Authors),
		Abstract:        r.Abstract,
		Domain:          r.Domain,
		ResearchProblem: r.ResearchProblem,
		Methodology:     r.Methodology,
		Contributions:   unmarshalList(r.Contributions),
		Keywords:        unmarshalList(r.Keywords),
		Tags:            unmarshalList(r.Tags),
		BaseModels:      unmarshalList(r.BaseModels),
		Venue:           r.Venue,
		QualityScore:    r.QualityScore,
		Filename:        r.Filename,
		Embedding:       unpackEmbedding(r.Embedding),
		CreatedAt:       r.CreatedAt,
	}
	if r.Year.Valid {
		year := int(r.Year.Int64)
		m.Year = &year
	}
	return m
}

func toMetadataList(rows []paperRow) []*Metadata {
	out := make([]*Metadata, 0, len(rows))
	for i := range rows {
		out = append(out, rows[i].toMetadata())
	}
	return out
}

func marshalList(items []string) string {
	if items == nil {
		items = []string{}
	}
	data, err := json.Marshal(items)
	if err != nil {
		return "[]"
	}
	return string(data)
}

func unmarshalList(data string) []string {
	if data == "" {
		return []string{}
	}
	var items []string
	if err := json.Unmarshal([]byte(data), &items); err != nil {
		return []string{}
	}
	return items
}

// buildMatchQuery quotes each whitespace-separated term so user input is
// never parsed as FTS5 syntax. Terms without any letter or digit would
// tokenize to an empty phrase, which FTS5 rejects, so they are skipped.
func buildMatchQuery(query string) string {
	fields := strings.Fields(query)
	quoted := make([]string, 0, len(fields))
	for _, f := range fields {
		if !strings.ContainsFunc(f, func(r rune) bool {
			return unicode.IsLetter(r) || unicode.IsDigit(r)
		}) {
			continue
		}
		quoted = append(quoted, `"`+strings.ReplaceAll(f, `"`, `""`)+`"`)
	}
	return strings.Join(quoted, " ")
}
