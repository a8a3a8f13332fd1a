package engine

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"fleetline/internal/config"
	"fleetline/internal/domain"
	"fleetline/internal/events"
	"fleetline/internal/evidence"
	"fleetline/internal/repo"
)

type Engine struct {
	DB       *sql.DB
	Repo     repo.Repo
	Events   events.Writer
	Evidence evidence.Store
	Config   *config.Config
	Now      func() time.Time
}

func New(db *sql.DB, store evidence.Store, cfg *config.Config) Engine {
	return Engine{
		DB:       db,
		Repo:     repo.Repo{DB: db},
		Events:   events.Writer{DB: db},
		Evidence: store,
		Config:   cfg,
		Now:      time.Now,
	}
}

func (e Engine) now() time.Time {
	if e.Now != nil {
		return e.Now()
	}
	return time.Now()
}

// events returns the writer with its clock bound to the engine's, so event
// timestamps line up with every other timestamp the engine stamps.
func (e Engine) events() events.Writer {
	w := e.Events
	if w.Now == nil {
		w.Now = e.now
	}
	return w
}

// ItemDraft describes one checklist entry of a mission under creation.
type ItemDraft struct {
	ID          string
	Text        string
	Description string
	Kind        string
	Required    bool
}

// MissionCreateOptions are parameters for creating a mission.
type MissionCreateOptions struct {
	ID           string
	Title        string
	Description  string
	Vessel       string
	AssignedBy   domain.Party
	AssignedTo   domain.Party
	DueDate      string
	Priority     string
	MissionNotes string
	Items        []ItemDraft
	ActorID      string
}

func (e Engine) CreateMission(ctx context.Context, opts MissionCreateOptions) (domain.Mission, error) {
	if e.Config == nil {
		return domain.Mission{}, errors.New("config not loaded")
	}
	if opts.Title == "" {
		return domain.Mission{}, errors.New("title is required")
	}
	if opts.Vessel == "" {
		return domain.Mission{}, errors.New("vessel is required")
	}
	if !e.Config.KnownVessel(opts.Vessel) {
		return domain.Mission{}, fmt.Errorf("vessel %s not in catalog", opts.Vessel)
	}
	if opts.AssignedTo.ID == "" {
		return domain.Mission{}, errors.New("assignee is required")
	}
	if opts.DueDate == "" {
		return domain.Mission{}, errors.New("due date is required")
	}
	if _, err := time.Parse(time.RFC3339, opts.DueDate); err != nil {
		return domain.Mission{}, fmt.Errorf("due date: %w", err)
	}
	if opts.Priority == "" {
		opts.Priority = e.Config.Defaults.Priority
	}
	if opts.Priority == "" {
		opts.Priority = domain.PriorityMedium
	}
	if !domain.ValidPriority(opts.Priority) {
		return domain.Mission{}, fmt.Errorf("invalid priority %s", opts.Priority)
	}
	for _, d := range opts.Items {
		if d.Text == "" {
			return domain.Mission{}, errors.New("item text is required")
		}
		if !domain.ValidKind(d.Kind) {
			return domain.Mission{}, fmt.Errorf("invalid item kind %s", d.Kind)
		}
	}

	id := opts.ID
	now := e.now().UTC().Format(time.RFC3339)
	if id == "" {
		id = uuid.New().String()
	}
	m := domain.Mission{
		ID:           id,
		Title:        opts.Title,
		Description:  opts.Description,
		Vessel:       opts.Vessel,
		AssignedBy:   opts.AssignedBy,
		AssignedTo:   opts.AssignedTo,
		DueDate:      opts.DueDate,
		Priority:     opts.Priority,
		Status:       domain.StatusPending,
		MissionNotes: opts.MissionNotes,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	for i, d := range opts.Items {
		itemID := d.ID
		if itemID == "" {
			itemID = uuid.New().String()
		}
		m.Items = append(m.Items, domain.TaskItem{
			ID:          itemID,
			MissionID:   m.ID,
			Position:    i,
			Text:        d.Text,
			Description: d.Description,
			Kind:        d.Kind,
			Required:    d.Required,
		})
	}
	m.Progress = Progress(m.Items)

	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	if err := e.Repo.InsertMission(ctx, tx, m); err != nil {
		return domain.Mission{}, fmt.Errorf("insert mission: %w", err)
	}
	for _, it := range m.Items {
		if err := e.Repo.InsertItem(ctx, tx, it); err != nil {
			return domain.Mission{}, fmt.Errorf("insert item: %w", err)
		}
	}
	if err := e.events().Append(ctx, tx, "mission.created", m.ID, "mission", m.ID, opts.ActorID, events.EventPayload{
		"title":  m.Title,
		"vessel": m.Vessel,
		"items":  len(m.Items),
	}); err != nil {
		return domain.Mission{}, err
	}
	if err := tx.Commit(); err != nil {
		return domain.Mission{}, err
	}
	return m, nil
}

// GetMission loads a mission and re-derives progress and effective status.
func (e Engine) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	m, err := e.Repo.GetMission(ctx, id)
	if err != nil {
		return m, err
	}
	m.Progress = Progress(m.Items)
	m.Status = EffectiveStatus(m, e.now())
	return m, nil
}

// ListMissions lists missions (without items) with the overdue overlay
// applied.
func (e Engine) ListMissions(ctx context.Context, f repo.MissionFilters) ([]domain.Mission, error) {
	missions, err := e.Repo.ListMissions(ctx, f)
	if err != nil {
		return nil, err
	}
	now := e.now()
	for i := range missions {
		missions[i].Status = EffectiveStatus(missions[i], now)
	}
	return missions, nil
}

// MissionUpdateOptions encapsulates allowed metadata updates. Item state is
// mutated only through ToggleItem, AttachEvidence and SetItemNote.
type MissionUpdateOptions struct {
	ID           string
	Title        *string
	Description  *string
	Vessel       *string
	Priority     *string
	DueDate      *string
	MissionNotes *string
	AssignedTo   *domain.Party
	ActorID      string
}

func (e Engine) UpdateMission(ctx context.Context, opts MissionUpdateOptions) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, opts.ID)
	if err != nil {
		return m, err
	}
	if opts.Title != nil {
		if *opts.Title == "" {
			return m, errors.New("title is required")
		}
		m.Title = *opts.Title
	}
	if opts.Description != nil {
		m.Description = *opts.Description
	}
	if opts.Vessel != nil {
		if e.Config != nil && !e.Config.KnownVessel(*opts.Vessel) {
			return m, fmt.Errorf("vessel %s not in catalog", *opts.Vessel)
		}
		m.Vessel = *opts.Vessel
	}
	if opts.Priority != nil {
		if !domain.ValidPriority(*opts.Priority) {
			return m, fmt.Errorf("invalid priority %s", *opts.Priority)
		}
		m.Priority = *opts.Priority
	}
	if opts.DueDate != nil {
		if _, err := time.Parse(time.RFC3339, *opts.DueDate); err != nil {
			return m, fmt.Errorf("due date: %w", err)
		}
		m.DueDate = *opts.DueDate
	}
	if opts.MissionNotes != nil {
		m.MissionNotes = *opts.MissionNotes
	}
	if opts.AssignedTo != nil {
		if opts.AssignedTo.ID == "" {
			return m, errors.New("assignee is required")
		}
		m.AssignedTo = *opts.AssignedTo
	}
	m.Progress = Progress(m.Items)
	m.UpdatedAt = e.now().UTC().Format(time.RFC3339)

	if err := e.Repo.UpdateMission(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.events().Append(ctx, tx, "mission.updated", m.ID, "mission", m.ID, opts.ActorID, events.EventPayload{
		"status": m.Status,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	m.Status = EffectiveStatus(m, e.now())
	return m, nil
}

// ToggleItem flips completion of an acknowledge item. Any other kind is
// completed only through AttachEvidence.
func (e Engine) ToggleItem(ctx context.Context, missionID, itemID, actorID string) (domain.Mission, error) {
	return e.mutateItem(ctx, missionID, itemID, actorID, func(it *domain.TaskItem) (string, events.EventPayload, error) {
		if it.Kind != domain.KindAcknowledge {
			return "", nil, InvalidOperationError{ItemID: it.ID, Kind: it.Kind, Op: "toggle"}
		}
		it.Completed = !it.Completed
		return "item.toggled", events.EventPayload{"completed": it.Completed}, nil
	})
}

// Evidence carries the payload of an attach operation. Data is inline
// evidence bytes for photo/video/file items; Signer is the typed name for
// signature items.
type Evidence struct {
	Name   string
	MIME   string
	Data   []byte
	Signer string
}

// AttachEvidence attaches evidence to a non-acknowledge item and marks it
// completed. Photo, video and file evidence accumulates; a signature
// replaces any previous one.
func (e Engine) AttachEvidence(ctx context.Context, missionID, itemID string, ev Evidence, actorID string) (domain.Mission, error) {
	var pending *domain.Attachment
	m, err := e.mutateItem(ctx, missionID, itemID, actorID, func(it *domain.TaskItem) (string, events.EventPayload, error) {
		switch it.Kind {
		case domain.KindAcknowledge:
			return "", nil, InvalidOperationError{ItemID: it.ID, Kind: it.Kind, Op: "attach"}
		case domain.KindSignature:
			if ev.Signer == "" {
				return "", nil, errors.New("signer is required")
			}
			signer := ev.Signer
			it.Signature = &signer
			it.Completed = true
			return "evidence.attached", events.EventPayload{"kind": it.Kind, "signer": signer}, nil
		case domain.KindPhoto, domain.KindVideo, domain.KindFile:
			if len(ev.Data) == 0 {
				return "", nil, errors.New("evidence data is required")
			}
			ref, err := e.Evidence.Put(ctx, evidence.Blob{Name: ev.Name, MIME: ev.MIME, Data: ev.Data})
			if err != nil {
				return "", nil, fmt.Errorf("store evidence: %w", err)
			}
			pending = &domain.Attachment{
				ID:        uuid.New().String(),
				ItemID:    it.ID,
				Kind:      it.Kind,
				Ref:       ref,
				Name:      ev.Name,
				MIME:      ev.MIME,
				Size:      int64(len(ev.Data)),
				CreatedAt: e.now().UTC().Format(time.RFC3339),
			}
			it.Attachments = append(it.Attachments, *pending)
			it.Completed = true
			return "evidence.attached", events.EventPayload{"kind": it.Kind, "ref": ref}, nil
		default:
			return "", nil, fmt.Errorf("unknown item kind %s", it.Kind)
		}
	}, func(ctx context.Context, tx *sql.Tx) error {
		if pending == nil {
			return nil
		}
		return e.Repo.InsertAttachment(ctx, tx, *pending)
	})
	return m, err
}

// SetItemNote sets the free-text note of an item. Notes never affect
// completion or gating, but editing one still moves a pending mission to
// in_progress.
func (e Engine) SetItemNote(ctx context.Context, missionID, itemID, note, actorID string) (domain.Mission, error) {
	return e.mutateItem(ctx, missionID, itemID, actorID, func(it *domain.TaskItem) (string, events.EventPayload, error) {
		it.Note = note
		return "item.note.set", events.EventPayload{}, nil
	})
}

// RequestCompletion moves the mission to completed iff every required item
// is done; otherwise it fails with IncompleteRequiredItemsError carrying
// the outstanding count. Completing a completed mission is a no-op.
func (e Engine) RequestCompletion(ctx context.Context, missionID, actorID string) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if err != nil {
		return m, err
	}
	if m.Status == domain.StatusCompleted {
		return m, nil
	}
	if outstanding := OutstandingRequired(m.Items); outstanding > 0 {
		return m, IncompleteRequiredItemsError{Outstanding: outstanding}
	}
	now := e.now().UTC().Format(time.RFC3339)
	m.Status = domain.StatusCompleted
	m.CompletedAt = &now
	if m.StartedAt == nil {
		m.StartedAt = &now
	}
	m.Progress = Progress(m.Items)
	m.UpdatedAt = now

	if err := e.Repo.UpdateMission(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.events().Append(ctx, tx, "mission.completed", m.ID, "mission", m.ID, actorID, events.EventPayload{
		"progress": m.Progress,
	}); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	return m, nil
}

// FleetStatus summarizes missions by effective status, counting overdue
// separately from the stored statuses.
func (e Engine) FleetStatus(ctx context.Context) (map[string]int, error) {
	rows, err := e.Repo.ListDueDates(ctx)
	if err != nil {
		return nil, err
	}
	now := e.now()
	counts := map[string]int{}
	for _, sd := range rows {
		status := sd[0]
		if status != domain.StatusCompleted {
			if due, err := time.Parse(time.RFC3339, sd[1]); err == nil && now.After(due) {
				status = domain.StatusOverdue
			}
		}
		counts[status]++
	}
	return counts, nil
}

type itemMutation func(it *domain.TaskItem) (string, events.EventPayload, error)

type txHook func(ctx context.Context, tx *sql.Tx) error

// mutateItem is the single read-modify-write path for item state: apply the
// mutation, stamp startedAt and the pending -> in_progress transition on
// first touch, re-derive progress, persist, log the event.
func (e Engine) mutateItem(ctx context.Context, missionID, itemID, actorID string, fn itemMutation, hooks ...txHook) (domain.Mission, error) {
	tx, err := e.DB.BeginTx(ctx, nil)
	if err != nil {
		return domain.Mission{}, err
	}
	defer tx.Rollback()

	m, err := e.Repo.GetMissionTx(ctx, tx, missionID)
	if err != nil {
		return m, err
	}
	idx := -1
	for i := range m.Items {
		if m.Items[i].ID == itemID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return m, fmt.Errorf("item %s: %w", itemID, repo.ErrNotFound)
	}
	evtType, payload, err := fn(&m.Items[idx])
	if err != nil {
		return m, err
	}

	now := e.now().UTC().Format(time.RFC3339)
	if m.StartedAt == nil {
		m.StartedAt = &now
	}
	if m.Status == domain.StatusPending {
		m.Status = domain.StatusInProgress
	}
	m.Progress = Progress(m.Items)
	m.UpdatedAt = now

	if err := e.Repo.UpdateItem(ctx, tx, m.Items[idx]); err != nil {
		return m, err
	}
	for _, hook := range hooks {
		if err := hook(ctx, tx); err != nil {
			return m, err
		}
	}
	if err := e.Repo.UpdateMission(ctx, tx, m); err != nil {
		return m, err
	}
	if err := e.events().Append(ctx, tx, evtType, m.ID, "item", itemID, actorID, payload); err != nil {
		return m, err
	}
	if err := tx.Commit(); err != nil {
		return m, err
	}
	m.Status = EffectiveStatus(m, e.now())
	return m, nil
}
