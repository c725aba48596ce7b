package store

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/pgvector/pgvector-go"
)

var ErrNotFound = errors.New("template not found")

// Store manages the PostgreSQL connection and pgvector operations.
type Store struct {
	conn *pgx.Conn
}

// Template is an enrolled face template.
type Template struct {
	ID            int
	Name          string
	Embedding     []float64
	Samples       int
	Verifications int
	CreatedAt     time.Time
}

// Verification is one recorded verification decision.
type Verification struct {
	ID         int
	TemplateID int
	Matched    bool
	Distance   float64
	CreatedAt  time.Time
}

// New establishes a connection to the database and ensures the schema is initialized.
func New(ctx context.Context, connString string) (*Store, error) {
	conn, err := pgx.Connect(ctx, connString)
	if err != nil {
		return nil, err
	}

	if err := initSchema(ctx, conn); err != nil {
		conn.Close(ctx)
		return nil, fmt.Errorf("failed to initialize database schema: %w", err)
	}

	return &Store{conn: conn}, nil
}

// initSchema creates the tables and the vector extension if they don't exist (Auto-Migration).
// The embedding column carries no fixed dimension so detectors with
// different descriptor sizes can share a database.
func initSchema(ctx context.Context, conn *pgx.Conn) error {
	query := `
		CREATE EXTENSION IF NOT EXISTS vector;
		CREATE TABLE IF NOT EXISTS templates (
			id SERIAL PRIMARY KEY,
			name TEXT NOT NULL UNIQUE,
			embedding VECTOR NOT NULL,
			samples INT NOT NULL DEFAULT 1,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE TABLE IF NOT EXISTS verifications (
			id BIGSERIAL PRIMARY KEY,
			template_id INT NOT NULL REFERENCES templates(id) ON DELETE CASCADE,
			matched BOOLEAN NOT NULL,
			distance DOUBLE PRECISION NOT NULL,
			created_at TIMESTAMPTZ DEFAULT NOW()
		);
		CREATE INDEX IF NOT EXISTS verifications_template_id_idx ON verifications (template_id);
	`
	_, err := conn.Exec(ctx, query)
	return err
}

// Close terminates the database connection.
func (s *Store) Close(ctx context.Context) {
	s.conn.Close(ctx)
}

func toVector(vec []float64) pgvector.Vector {
	f := make([]float32, len(vec))
	for i, v := range vec {
		f[i] = float32(v)
	}
	return pgvector.NewVector(f)
}

// fromText parses the pgvector text form "[1,2,3]".
func fromText(text string) ([]float64, error) {
	var v pgvector.Vector
	if err := v.Scan(text); err != nil {
		return nil, err
	}
	f := v.Slice()
	out := make([]float64, len(f))
	for i, x := range f {
		out[i] = float64(x)
	}
	return out, nil
}

// SaveTemplate stores the template under name, replacing an existing one
// with the same name. It returns the template id.
func (s *Store) SaveTemplate(ctx context.Context, name string, vec []float64, samples int) (int, error) {
	var id int
	err := s.conn.QueryRow(ctx, `
		INSERT INTO templates (name, embedding, samples)
		VALUES ($1, $2::vector, $3)
		ON CONFLICT (name) DO UPDATE
		SET embedding = EXCLUDED.embedding, samples = EXCLUDED.samples, created_at = NOW()
		RETURNING id
	`, name, toVector(vec), samples).Scan(&id)
	return id, err
}

// GetTemplate loads the template stored under name.
func (s *Store) GetTemplate(ctx context.Context, name string) (Template, error) {
	var t Template
	var vecStr string
	err := s.conn.QueryRow(ctx, `
		SELECT id, name, embedding::text, samples, created_at,
		       (SELECT COUNT(*) FROM verifications v WHERE v.template_id = t.id)
		FROM templates t WHERE name = $1
	`, name).Scan(&t.ID, &t.Name, &vecStr, &t.Samples, &t.CreatedAt, &t.Verifications)
	if errors.Is(err, pgx.ErrNoRows) {
		return Template{}, fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	if err != nil {
		return Template{}, err
	}

	t.Embedding, err = fromText(vecStr)
	if err != nil {
		return Template{}, fmt.Errorf("decoding embedding of %q: %w", name, err)
	}
	return t, nil
}

// ListTemplates returns all templates without their embeddings, oldest first.
func (s *Store) ListTemplates(ctx context.Context) ([]Template, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT t.id, t.name, t.samples, t.created_at, COUNT(v.id)
		FROM templates t
		LEFT JOIN verifications v ON v.template_id = t.id
		GROUP BY t.id
		ORDER BY t.id ASC
	`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Template
	for rows.Next() {
		var t Template
		if err := rows.Scan(&t.ID, &t.Name, &t.Samples, &t.CreatedAt, &t.Verifications); err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, rows.Err()
}

// RenameTemplate updates the name of a template.
func (s *Store) RenameTemplate(ctx context.Context, id int, newName string) error {
	tag, err := s.conn.Exec(ctx, "UPDATE templates SET name = $1 WHERE id = $2", newName, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: id %d", ErrNotFound, id)
	}
	return nil
}

// DeleteTemplate removes a template and its verification history.
func (s *Store) DeleteTemplate(ctx context.Context, name string) error {
	tag, err := s.conn.Exec(ctx, "DELETE FROM templates WHERE name = $1", name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: %q", ErrNotFound, name)
	}
	return nil
}

// RecordVerification appends a verification decision to the audit trail.
func (s *Store) RecordVerification(ctx context.Context, templateID int, matched bool, distance float64) error {
	_, err := s.conn.Exec(ctx, `
		INSERT INTO verifications (template_id, matched, distance)
		VALUES ($1, $2, $3)
	`, templateID, matched, distance)
	return err
}

// RecentVerifications returns up to limit decisions for a template, newest first.
func (s *Store) RecentVerifications(ctx context.Context, templateID, limit int) ([]Verification, error) {
	rows, err := s.conn.Query(ctx, `
		SELECT id, template_id, matched, distance, created_at
		FROM verifications WHERE template_id = $1
		ORDER BY id DESC LIMIT $2
	`, templateID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Verification
	for rows.Next() {
		var v Verification
		if err := rows.Scan(&v.ID, &v.TemplateID, &v.Matched, &v.Distance, &v.CreatedAt); err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}

// Reset drops all application tables to clear the database state.
// The next New recreates them.
func (s *Store) Reset(ctx context.Context) error {
	_, err := s.conn.Exec(ctx, `
		DROP TABLE IF EXISTS verifications CASCADE;
		DROP TABLE IF EXISTS templates CASCADE;
	`)
	return err
}
