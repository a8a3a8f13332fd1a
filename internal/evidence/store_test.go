package evidence_test

import (
	"context"
	"errors"
	"testing"

	"fleetline/internal/db"
	"fleetline/internal/evidence"
	"fleetline/internal/migrate"
)

func newStore(t *testing.T) *evidence.SQLStore {
	t.Helper()
	conn, err := db.Open(db.Config{Workspace: t.TempDir()})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { conn.Close() })
	if err := migrate.Migrate(conn); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return evidence.NewSQLStore(conn)
}

func TestPutGetRoundtrip(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	ref, err := store.Put(ctx, evidence.Blob{Name: "deck.jpg", MIME: "image/jpeg", Data: []byte("jpeg bytes")})
	if err != nil {
		t.Fatalf("put: %v", err)
	}
	if ref == "" {
		t.Fatal("empty ref")
	}
	blob, err := store.Get(ctx, ref)
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	if blob.Name != "deck.jpg" || blob.MIME != "image/jpeg" || string(blob.Data) != "jpeg bytes" {
		t.Fatalf("roundtrip mismatch: %+v", blob)
	}
}

func TestRefsAreUnique(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	a, err := store.Put(ctx, evidence.Blob{Data: []byte("one")})
	if err != nil {
		t.Fatal(err)
	}
	b, err := store.Put(ctx, evidence.Blob{Data: []byte("one")})
	if err != nil {
		t.Fatal(err)
	}
	if a == b {
		t.Fatal("identical payloads must still get distinct refs")
	}
}

func TestGetUnknownRef(t *testing.T) {
	store := newStore(t)
	_, err := store.Get(context.Background(), "no-such-ref")
	if !errors.Is(err, evidence.ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
}
