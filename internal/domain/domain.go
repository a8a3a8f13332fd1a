package domain

// Mission statuses persisted in storage. Overdue is a read-path overlay and
// never written (see engine.EffectiveStatus).
const (
	StatusPending    = "pending"
	StatusInProgress = "in_progress"
	StatusCompleted  = "completed"
	StatusOverdue    = "overdue"
)

// Item kinds. The kind decides how evidence is attached.
const (
	KindAcknowledge = "acknowledge"
	KindPhoto       = "photo"
	KindVideo       = "video"
	KindFile        = "file"
	KindSignature   = "signature"
)

const (
	PriorityHigh   = "high"
	PriorityMedium = "medium"
	PriorityLow    = "low"
)

// Party identifies an assigning or assigned crew member.
type Party struct {
	ID   string `json:"id"`
	Name string `json:"name"`
	Role string `json:"role,omitempty"`
}

type Mission struct {
	ID           string     `json:"id"`
	Title        string     `json:"title"`
	Description  string     `json:"description,omitempty"`
	Vessel       string     `json:"vessel"`
	AssignedBy   Party      `json:"assigned_by"`
	AssignedTo   Party      `json:"assigned_to"`
	DueDate      string     `json:"due_date" format:"date-time"`
	Priority     string     `json:"priority" enum:"high,medium,low"`
	Status       string     `json:"status" enum:"pending,in_progress,completed,overdue"`
	Progress     int        `json:"progress"`
	MissionNotes string     `json:"mission_notes,omitempty"`
	Items        []TaskItem `json:"items"`
	CreatedAt    string     `json:"created_at" format:"date-time"`
	UpdatedAt    string     `json:"updated_at" format:"date-time"`
	StartedAt    *string    `json:"started_at,omitempty" format:"date-time"`
	CompletedAt  *string    `json:"completed_at,omitempty" format:"date-time"`
}

// TaskItem is one checklist entry. Position preserves display order; it has
// no bearing on completion logic.
type TaskItem struct {
	ID          string       `json:"id"`
	MissionID   string       `json:"mission_id"`
	Position    int          `json:"position"`
	Text        string       `json:"text"`
	Description string       `json:"description,omitempty"`
	Kind        string       `json:"kind" enum:"acknowledge,photo,video,file,signature"`
	Required    bool         `json:"required"`
	Completed   bool         `json:"completed"`
	Note        string       `json:"note,omitempty"`
	Signature   *string      `json:"signature,omitempty"`
	Attachments []Attachment `json:"attachments,omitempty"`
}

// Attachment references a stored piece of photo/video/file evidence. Ref is
// the opaque handle the evidence store resolves back to bytes.
type Attachment struct {
	ID        string `json:"id"`
	ItemID    string `json:"item_id"`
	Kind      string `json:"kind" enum:"photo,video,file"`
	Ref       string `json:"ref"`
	Name      string `json:"name,omitempty"`
	MIME      string `json:"mime,omitempty"`
	Size      int64  `json:"size"`
	CreatedAt string `json:"created_at" format:"date-time"`
}

type Event struct {
	ID         int64  `json:"id"`
	TS         string `json:"ts" format:"date-time"`
	Type       string `json:"type"`
	MissionID  string `json:"mission_id,omitempty"`
	EntityKind string `json:"entity_kind"`
	EntityID   string `json:"entity_id,omitempty"`
	ActorID    string `json:"actor_id"`
	Payload    string `json:"payload_json"`
}

// ValidKind reports whether k is a known item kind.
func ValidKind(k string) bool {
	switch k {
	case KindAcknowledge, KindPhoto, KindVideo, KindFile, KindSignature:
		return true
	}
	return false
}

// ValidPriority reports whether p is a known priority.
func ValidPriority(p string) bool {
	switch p {
	case PriorityHigh, PriorityMedium, PriorityLow:
		return true
	}
	return false
}
