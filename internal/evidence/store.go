// Package evidence stores raw attachment payloads behind opaque references.
// The engine writes blobs on attach; the report generator resolves them back
// when rendering. Backing is the mission database, but nothing outside this
// package depends on that.
package evidence

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/google/uuid"
)

var ErrNotFound = errors.New("evidence not found")

// Blob is a stored piece of evidence.
type Blob struct {
	Name string
	MIME string
	Data []byte
}

// Store accepts evidence and hands back a reference that stays resolvable
// for the lifetime of the owning item.
type Store interface {
	Put(ctx context.Context, b Blob) (string, error)
	Resolver
}

// Resolver is the read side, all the report generator needs.
type Resolver interface {
	Get(ctx context.Context, ref string) (Blob, error)
}

// SQLStore keeps blobs in the evidence_blobs table.
type SQLStore struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewSQLStore(db *sql.DB) *SQLStore {
	return &SQLStore{DB: db, Now: time.Now}
}

func (s *SQLStore) now() time.Time {
	if s.Now != nil {
		return s.Now()
	}
	return time.Now()
}

func (s *SQLStore) Put(ctx context.Context, b Blob) (string, error) {
	ref := uuid.New().String()
	createdAt := s.now().UTC().Format(time.RFC3339)
	_, err := s.DB.ExecContext(ctx, `INSERT INTO evidence_blobs(ref,name,mime,data,created_at) VALUES (?,?,?,?,?)`,
		ref, nullable(b.Name), nullable(b.MIME), b.Data, createdAt)
	if err != nil {
		return "", err
	}
	return ref, nil
}

func (s *SQLStore) Get(ctx context.Context, ref string) (Blob, error) {
	var b Blob
	var name, mime sql.NullString
	err := s.DB.QueryRowContext(ctx, `SELECT name,mime,data FROM evidence_blobs WHERE ref=?`, ref).
		Scan(&name, &mime, &b.Data)
	if err == sql.ErrNoRows {
		return b, ErrNotFound
	}
	if err != nil {
		return b, err
	}
	if name.Valid {
		b.Name = name.String
	}
	if mime.Valid {
		b.MIME = mime.String
	}
	return b, nil
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}
