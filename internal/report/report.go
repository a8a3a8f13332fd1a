// Package report renders a mission and its gathered evidence into a
// paginated PDF document. Generation never fails on broken evidence: an
// unresolvable reference degrades to a placeholder line so the rest of the
// report survives.
package report

import (
	"bytes"
	"context"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/go-pdf/fpdf"

	"fleetline/internal/config"
	"fleetline/internal/domain"
	"fleetline/internal/engine"
	"fleetline/internal/evidence"
)

// evidenceResolutionError marks a broken evidence reference. It is always
// recovered into a placeholder and never escapes Generate.
type evidenceResolutionError struct {
	Ref string
	Err error
}

func (e evidenceResolutionError) Error() string {
	return fmt.Sprintf("resolve evidence %s: %v", e.Ref, e.Err)
}

func (e evidenceResolutionError) Unwrap() error { return e.Err }

type Generator struct {
	Evidence evidence.Resolver
	Settings config.ReportSettings
	Now      func() time.Time
}

func New(resolver evidence.Resolver, settings config.ReportSettings) Generator {
	return Generator{Evidence: resolver, Settings: settings, Now: time.Now}
}

func (g Generator) now() time.Time {
	if g.Now != nil {
		return g.Now()
	}
	return time.Now()
}

func (g Generator) pageSize() string {
	if g.Settings.PageSize == "" {
		return "A4"
	}
	return g.Settings.PageSize
}

func (g Generator) margin() float64 {
	if g.Settings.MarginMM <= 0 {
		return 15
	}
	return g.Settings.MarginMM
}

func (g Generator) imageMaxHeight() float64 {
	if g.Settings.ImageMaxHeightMM <= 0 {
		return 120
	}
	return g.Settings.ImageMaxHeightMM
}

// Generate renders the mission into PDF bytes. The mission is taken as a
// point-in-time snapshot; concurrent mutations are not coordinated with.
func (g Generator) Generate(ctx context.Context, m domain.Mission) ([]byte, error) {
	margin := g.margin()
	pdf := fpdf.New("P", "mm", g.pageSize(), "")
	pdf.SetMargins(margin, margin, margin)
	pdf.SetAutoPageBreak(true, margin)
	pdf.AddPage()

	g.writeSummary(pdf, m)
	for i, it := range m.Items {
		g.writeItem(ctx, pdf, m, it, i+1)
	}

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return nil, fmt.Errorf("render report: %w", err)
	}
	return buf.Bytes(), nil
}

func (g Generator) writeSummary(pdf *fpdf.Fpdf, m domain.Mission) {
	pdf.SetFont("Helvetica", "B", 16)
	pdf.MultiCell(0, 8, "Mission Report: "+m.Title, "", "L", false)
	pdf.Ln(2)

	status := engine.EffectiveStatus(m, g.now())
	pdf.SetFont("Helvetica", "", 10)
	lines := []string{
		"Vessel: " + m.Vessel,
		"Status: " + status,
		"Priority: " + m.Priority,
		"Due: " + m.DueDate,
		fmt.Sprintf("Progress: %d%%", engine.Progress(m.Items)),
		"Assigned to: " + partyLabel(m.AssignedTo),
		"Assigned by: " + partyLabel(m.AssignedBy),
	}
	if m.CompletedAt != nil {
		lines = append(lines, "Completed at: "+*m.CompletedAt)
	}
	for _, l := range lines {
		pdf.CellFormat(0, 5, l, "", 1, "L", false, 0, "")
	}
	if m.Description != "" {
		pdf.Ln(2)
		pdf.MultiCell(0, 5, m.Description, "", "L", false)
	}
	if m.MissionNotes != "" {
		pdf.Ln(2)
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 5, "Notes: "+m.MissionNotes, "", "L", false)
	}
	pdf.Ln(4)
	pdf.SetDrawColor(120, 120, 120)
	left, _, right, _ := pdf.GetMargins()
	w, _ := pdf.GetPageSize()
	pdf.Line(left, pdf.GetY(), w-right, pdf.GetY())
	pdf.Ln(4)
}

func (g Generator) writeItem(ctx context.Context, pdf *fpdf.Fpdf, m domain.Mission, it domain.TaskItem, n int) {
	mark := "[ ]"
	if it.Completed {
		mark = "[x]"
	}
	label := fmt.Sprintf("%d. %s %s", n, mark, it.Text)
	if it.Required {
		label += " (required)"
	}
	pdf.SetFont("Helvetica", "B", 11)
	pdf.MultiCell(0, 6, label, "", "L", false)

	pdf.SetFont("Helvetica", "", 10)
	if it.Description != "" {
		pdf.MultiCell(0, 5, it.Description, "", "L", false)
	}
	if it.Note != "" {
		pdf.SetFont("Helvetica", "I", 10)
		pdf.MultiCell(0, 5, "Note: "+it.Note, "", "L", false)
		pdf.SetFont("Helvetica", "", 10)
	}
	if it.Kind == domain.KindSignature {
		if it.Signature != nil {
			pdf.MultiCell(0, 5, "Signed: "+*it.Signature, "", "L", false)
		} else {
			pdf.MultiCell(0, 5, "Not signed", "", "L", false)
		}
	}
	for _, a := range it.Attachments {
		switch a.Kind {
		case domain.KindPhoto:
			if err := g.writePhoto(ctx, pdf, a); err != nil {
				pdf.MultiCell(0, 5, "could not load photo: "+a.Ref, "", "L", false)
			}
		default:
			// Videos and files are referenced, not rendered.
			name := a.Name
			if name == "" {
				name = a.Ref
			}
			pdf.MultiCell(0, 5, fmt.Sprintf("%s evidence: %s (%d bytes)", a.Kind, name, a.Size), "", "L", false)
		}
	}
	pdf.Ln(3)
}

// writePhoto inlines a photo, deferring it to a fresh page when it would
// overflow the space left on the current one.
func (g Generator) writePhoto(ctx context.Context, pdf *fpdf.Fpdf, a domain.Attachment) error {
	blob, err := g.Evidence.Get(ctx, a.Ref)
	if err != nil {
		return evidenceResolutionError{Ref: a.Ref, Err: err}
	}
	imgType := imageType(blob)
	if imgType == "" {
		return evidenceResolutionError{Ref: a.Ref, Err: fmt.Errorf("unsupported image format")}
	}
	opts := fpdf.ImageOptions{ImageType: imgType}
	info := pdf.RegisterImageOptionsReader(a.Ref, opts, bytes.NewReader(blob.Data))
	if pdf.Err() {
		err := pdf.Error()
		pdf.ClearError()
		return evidenceResolutionError{Ref: a.Ref, Err: err}
	}

	left, _, right, bottom := pdf.GetMargins()
	pageW, pageH := pdf.GetPageSize()
	maxW := pageW - left - right
	w, h := info.Extent()
	scale := 1.0
	if w > maxW {
		scale = maxW / w
	}
	if h*scale > g.imageMaxHeight() {
		scale = g.imageMaxHeight() / h
	}
	drawW, drawH := w*scale, h*scale

	remaining := pageH - bottom - pdf.GetY()
	if drawH > remaining {
		pdf.AddPage()
	}
	pdf.ImageOptions(a.Ref, left, pdf.GetY(), drawW, drawH, true, opts, 0, "")
	if pdf.Err() {
		err := pdf.Error()
		pdf.ClearError()
		return evidenceResolutionError{Ref: a.Ref, Err: err}
	}
	pdf.Ln(2)
	return nil
}

func imageType(b evidence.Blob) string {
	mime := b.MIME
	if mime == "" {
		mime = http.DetectContentType(b.Data)
	}
	switch {
	case strings.Contains(mime, "png"):
		return "PNG"
	case strings.Contains(mime, "jpeg"), strings.Contains(mime, "jpg"):
		return "JPG"
	case strings.Contains(mime, "gif"):
		return "GIF"
	}
	return ""
}

func partyLabel(p domain.Party) string {
	if p.Name == "" {
		return p.ID
	}
	if p.Role != "" {
		return fmt.Sprintf("%s (%s)", p.Name, p.Role)
	}
	return p.Name
}
