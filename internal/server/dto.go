package server

import (
	"fleetline/internal/domain"
)

// Request payloads

type PartyRequest struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
	Role string `json:"role,omitempty"`
}

type ItemDraftRequest struct {
	ID          *string `json:"id,omitempty"`
	Text        string  `json:"text"`
	Description *string `json:"description,omitempty"`
	Kind        string  `json:"kind" enum:"acknowledge,photo,video,file,signature"`
	Required    bool    `json:"required,omitempty"`
}

type CreateMissionRequest struct {
	ID           *string            `json:"id,omitempty"`
	Title        string             `json:"title"`
	Description  *string            `json:"description,omitempty"`
	Vessel       string             `json:"vessel"`
	AssignedBy   PartyRequest       `json:"assigned_by"`
	AssignedTo   PartyRequest       `json:"assigned_to"`
	DueDate      string             `json:"due_date" format:"date-time"`
	Priority     *string            `json:"priority,omitempty" enum:"high,medium,low"`
	MissionNotes *string            `json:"mission_notes,omitempty"`
	Items        []ItemDraftRequest `json:"items,omitempty"`
}

type UpdateMissionRequest struct {
	Title        *string       `json:"title,omitempty"`
	Description  *string       `json:"description,omitempty"`
	Vessel       *string       `json:"vessel,omitempty"`
	Priority     *string       `json:"priority,omitempty" enum:"high,medium,low"`
	DueDate      *string       `json:"due_date,omitempty" format:"date-time"`
	MissionNotes *string       `json:"mission_notes,omitempty"`
	AssignedTo   *PartyRequest `json:"assigned_to,omitempty"`
}

type AttachEvidenceRequest struct {
	Name   string `json:"name,omitempty"`
	MIME   string `json:"mime,omitempty"`
	Data   []byte `json:"data,omitempty" doc:"base64-encoded evidence bytes for photo/video/file items"`
	Signer string `json:"signer,omitempty" doc:"typed signer name for signature items"`
}

type SetNoteRequest struct {
	Note string `json:"note"`
}

// Response payloads

type AttachmentResponse struct {
	ID        string `json:"id"`
	Kind      string `json:"kind" enum:"photo,video,file"`
	Ref       string `json:"ref"`
	Name      string `json:"name,omitempty"`
	MIME      string `json:"mime,omitempty"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type TaskItemResponse struct {
	ID          string               `json:"id"`
	Position    int                  `json:"position"`
	Text        string               `json:"text"`
	Description string               `json:"description,omitempty"`
	Kind        string               `json:"kind" enum:"acknowledge,photo,video,file,signature"`
	Required    bool                 `json:"required"`
	Completed   bool                 `json:"completed"`
	Note        string               `json:"note,omitempty"`
	Signature   *string              `json:"signature,omitempty"`
	Attachments []AttachmentResponse `json:"attachments"`
}

type MissionResponse struct {
	ID           string             `json:"id"`
	Title        string             `json:"title"`
	Description  string             `json:"description,omitempty"`
	Vessel       string             `json:"vessel"`
	AssignedBy   domain.Party       `json:"assigned_by"`
	AssignedTo   domain.Party       `json:"assigned_to"`
	DueDate      string             `json:"due_date" format:"date-time"`
	Priority     string             `json:"priority" enum:"high,medium,low"`
	Status       string             `json:"status" enum:"pending,in_progress,completed,overdue"`
	Progress     int                `json:"progress"`
	CanComplete  bool               `json:"can_complete"`
	MissionNotes string             `json:"mission_notes,omitempty"`
	Items        []TaskItemResponse `json:"items"`
	CreatedAt    string             `json:"created_at" format:"date-time"`
	UpdatedAt    string             `json:"updated_at" format:"date-time"`
	StartedAt    *string            `json:"started_at,omitempty" format:"date-time"`
	CompletedAt  *string            `json:"completed_at,omitempty" format:"date-time"`
}

type EventResponse struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	MissionID  string `json:"mission_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
}

type paginatedMissions struct {
	Items      []MissionResponse `json:"items"`
	NextCursor string            `json:"next_cursor,omitempty"`
}

// Conversion helpers

func missionResponse(m domain.Mission, canComplete bool) MissionResponse {
	items := make([]TaskItemResponse, 0, len(m.Items))
	for _, it := range m.Items {
		items = append(items, itemResponse(it))
	}
	return MissionResponse{
		ID:           m.ID,
		Title:        m.Title,
		Description:  m.Description,
		Vessel:       m.Vessel,
		AssignedBy:   m.AssignedBy,
		AssignedTo:   m.AssignedTo,
		DueDate:      m.DueDate,
		Priority:     m.Priority,
		Status:       m.Status,
		Progress:     m.Progress,
		CanComplete:  canComplete,
		MissionNotes: m.MissionNotes,
		Items:        items,
		CreatedAt:    m.CreatedAt,
		UpdatedAt:    m.UpdatedAt,
		StartedAt:    m.StartedAt,
		CompletedAt:  m.CompletedAt,
	}
}

func itemResponse(it domain.TaskItem) TaskItemResponse {
	atts := make([]AttachmentResponse, 0, len(it.Attachments))
	for _, a := range it.Attachments {
		atts = append(atts, AttachmentResponse{
			ID:        a.ID,
			Kind:      a.Kind,
			Ref:       a.Ref,
			Name:      a.Name,
			MIME:      a.MIME,
			Size:      a.Size,
			CreatedAt: a.CreatedAt,
		})
	}
	return TaskItemResponse{
		ID:          it.ID,
		Position:    it.Position,
		Text:        it.Text,
		Description: it.Description,
		Kind:        it.Kind,
		Required:    it.Required,
		Completed:   it.Completed,
		Note:        it.Note,
		Signature:   it.Signature,
		Attachments: atts,
	}
}

func eventResponse(e domain.Event) EventResponse {
	return EventResponse{
		ID:         e.ID,
		TS:         e.TS,
		Type:       e.Type,
		MissionID:  e.MissionID,
		EntityKind: e.EntityKind,
		EntityID:   e.EntityID,
		ActorID:    e.ActorID,
	}
}

func stringOrEmpty(p *string) string {
	if p == nil {
		return ""
	}
	return *p
}
