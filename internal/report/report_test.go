package report_test

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"fleetline/internal/config"
	"fleetline/internal/db"
	"fleetline/internal/domain"
	"fleetline/internal/evidence"
	"fleetline/internal/migrate"
	"fleetline/internal/report"
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

func sampleMission(items ...domain.TaskItem) domain.Mission {
	return domain.Mission{
		ID:         "m-1",
		Title:      "Monthly lifeboat inspection",
		Vessel:     "mv-aurora",
		AssignedBy: domain.Party{ID: "capt-1", Name: "A. Ramos", Role: "master"},
		AssignedTo: domain.Party{ID: "mate-1", Name: "B. Okafor", Role: "chief-mate"},
		DueDate:    "2026-03-10T00:00:00Z",
		Priority:   domain.PriorityHigh,
		Status:     domain.StatusInProgress,
		Progress:   50,
		Items:      items,
		CreatedAt:  "2026-03-01T12:00:00Z",
		UpdatedAt:  "2026-03-01T12:00:00Z",
	}
}

func smallPNG(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 8))
	for x := 0; x < 8; x++ {
		for y := 0; y < 8; y++ {
			img.Set(x, y, color.RGBA{R: 200, G: 120, B: 40, A: 255})
		}
	}
	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		t.Fatalf("encode png: %v", err)
	}
	return buf.Bytes()
}

func TestGenerateRendersPDF(t *testing.T) {
	store := newStore(t)
	gen := report.New(store, config.ReportSettings{})
	gen.Now = func() time.Time { return time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC) }

	sig := "B. Okafor"
	m := sampleMission(
		domain.TaskItem{ID: "i-1", Position: 0, Text: "check hull", Kind: domain.KindAcknowledge, Required: true, Completed: true, Note: "no damage found"},
		domain.TaskItem{ID: "i-2", Position: 1, Text: "sign off", Kind: domain.KindSignature, Required: true, Completed: true, Signature: &sig},
	)
	pdf, err := gen.Generate(context.Background(), m)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatalf("output is not a PDF, starts with %q", pdf[:min(8, len(pdf))])
	}
}

func TestGenerateInlinesPhotos(t *testing.T) {
	store := newStore(t)
	ctx := context.Background()
	data := smallPNG(t)
	ref, err := store.Put(ctx, evidence.Blob{Name: "hull.png", MIME: "image/png", Data: data})
	if err != nil {
		t.Fatalf("put blob: %v", err)
	}

	gen := report.New(store, config.ReportSettings{})
	m := sampleMission(domain.TaskItem{
		ID: "i-1", Position: 0, Text: "photo of hull", Kind: domain.KindPhoto, Required: true, Completed: true,
		Attachments: []domain.Attachment{{
			ID: "a-1", ItemID: "i-1", Kind: domain.KindPhoto, Ref: ref,
			Name: "hull.png", MIME: "image/png", Size: int64(len(data)),
			CreatedAt: "2026-03-01T13:00:00Z",
		}},
	})
	withPhoto, err := gen.Generate(ctx, m)
	if err != nil {
		t.Fatalf("generate: %v", err)
	}

	m.Items[0].Attachments = nil
	withoutPhoto, err := gen.Generate(ctx, m)
	if err != nil {
		t.Fatalf("generate without photo: %v", err)
	}
	if len(withPhoto) <= len(withoutPhoto) {
		t.Fatalf("photo not embedded: %d <= %d bytes", len(withPhoto), len(withoutPhoto))
	}
}

func TestGenerateSurvivesBrokenEvidenceRefs(t *testing.T) {
	store := newStore(t)
	gen := report.New(store, config.ReportSettings{})
	m := sampleMission(domain.TaskItem{
		ID: "i-1", Position: 0, Text: "photo of deck", Kind: domain.KindPhoto, Required: true, Completed: true,
		Attachments: []domain.Attachment{{
			ID: "a-1", ItemID: "i-1", Kind: domain.KindPhoto, Ref: "no-such-ref",
			Name: "deck.png", MIME: "image/png", Size: 10,
			CreatedAt: "2026-03-01T13:00:00Z",
		}},
	})
	pdf, err := gen.Generate(context.Background(), m)
	if err != nil {
		t.Fatalf("generate must not fail on a broken ref: %v", err)
	}
	if !bytes.HasPrefix(pdf, []byte("%PDF")) {
		t.Fatal("broken ref produced a non-PDF output")
	}
}
