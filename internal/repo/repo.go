package repo

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"

	"fleetline/internal/domain"
)

type Repo struct {
	DB *sql.DB
}

var ErrNotFound = errors.New("not found")

const missionColumns = `id,title,description,vessel,assigned_by_id,assigned_by_name,assigned_by_role,assigned_to_id,assigned_to_name,assigned_to_role,due_date,priority,status,progress,mission_notes,created_at,updated_at,started_at,completed_at`

func (r Repo) InsertMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO missions(`+missionColumns+`)
VALUES (?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`,
		m.ID, m.Title, nullable(m.Description), m.Vessel,
		m.AssignedBy.ID, m.AssignedBy.Name, nullable(m.AssignedBy.Role),
		m.AssignedTo.ID, m.AssignedTo.Name, nullable(m.AssignedTo.Role),
		m.DueDate, m.Priority, m.Status, m.Progress, nullable(m.MissionNotes),
		m.CreatedAt, m.UpdatedAt, nullableStringPtr(m.StartedAt), nullableStringPtr(m.CompletedAt))
	return err
}

func (r Repo) UpdateMission(ctx context.Context, tx *sql.Tx, m domain.Mission) error {
	res, err := tx.ExecContext(ctx, `UPDATE missions SET title=?, description=?, vessel=?, assigned_by_id=?, assigned_by_name=?, assigned_by_role=?, assigned_to_id=?, assigned_to_name=?, assigned_to_role=?, due_date=?, priority=?, status=?, progress=?, mission_notes=?, updated_at=?, started_at=?, completed_at=? WHERE id=?`,
		m.Title, nullable(m.Description), m.Vessel,
		m.AssignedBy.ID, m.AssignedBy.Name, nullable(m.AssignedBy.Role),
		m.AssignedTo.ID, m.AssignedTo.Name, nullable(m.AssignedTo.Role),
		m.DueDate, m.Priority, m.Status, m.Progress, nullable(m.MissionNotes),
		m.UpdatedAt, nullableStringPtr(m.StartedAt), nullableStringPtr(m.CompletedAt), m.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanMission(scan func(dest ...any) error) (domain.Mission, error) {
	var m domain.Mission
	var description, byRole, toRole, notes, startedAt, completedAt sql.NullString
	err := scan(&m.ID, &m.Title, &description, &m.Vessel,
		&m.AssignedBy.ID, &m.AssignedBy.Name, &byRole,
		&m.AssignedTo.ID, &m.AssignedTo.Name, &toRole,
		&m.DueDate, &m.Priority, &m.Status, &m.Progress, &notes,
		&m.CreatedAt, &m.UpdatedAt, &startedAt, &completedAt)
	if err == sql.ErrNoRows {
		return m, ErrNotFound
	}
	if err != nil {
		return m, err
	}
	if description.Valid {
		m.Description = description.String
	}
	if byRole.Valid {
		m.AssignedBy.Role = byRole.String
	}
	if toRole.Valid {
		m.AssignedTo.Role = toRole.String
	}
	if notes.Valid {
		m.MissionNotes = notes.String
	}
	if startedAt.Valid {
		m.StartedAt = &startedAt.String
	}
	if completedAt.Valid {
		m.CompletedAt = &completedAt.String
	}
	return m, nil
}

// GetMission loads a mission with its items and attachments.
func (r Repo) GetMission(ctx context.Context, id string) (domain.Mission, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id)
	m, err := scanMission(row.Scan)
	if err != nil {
		return m, err
	}
	items, err := r.ListItems(ctx, m.ID)
	if err != nil {
		return m, err
	}
	m.Items = items
	return m, nil
}

func (r Repo) GetMissionTx(ctx context.Context, tx *sql.Tx, id string) (domain.Mission, error) {
	row := tx.QueryRowContext(ctx, `SELECT `+missionColumns+` FROM missions WHERE id=?`, id)
	m, err := scanMission(row.Scan)
	if err != nil {
		return m, err
	}
	items, err := r.listItems(ctx, tx, m.ID)
	if err != nil {
		return m, err
	}
	m.Items = items
	return m, nil
}

type MissionFilters struct {
	Status          string
	Vessel          string
	AssigneeID      string
	Limit           int
	CursorCreatedAt string
	CursorID        string
}

// ListMissions returns missions without their items, newest first.
func (r Repo) ListMissions(ctx context.Context, f MissionFilters) ([]domain.Mission, error) {
	var clauses []string
	var args []any
	if f.Status != "" {
		clauses = append(clauses, "status=?")
		args = append(args, f.Status)
	}
	if f.Vessel != "" {
		clauses = append(clauses, "vessel=?")
		args = append(args, f.Vessel)
	}
	if f.AssigneeID != "" {
		clauses = append(clauses, "assigned_to_id=?")
		args = append(args, f.AssigneeID)
	}
	if f.CursorCreatedAt != "" && f.CursorID != "" {
		clauses = append(clauses, "(created_at < ? OR (created_at = ? AND id < ?))")
		args = append(args, f.CursorCreatedAt, f.CursorCreatedAt, f.CursorID)
	}
	where := ""
	if len(clauses) > 0 {
		where = "WHERE " + strings.Join(clauses, " AND ")
	}
	query := `SELECT ` + missionColumns + ` FROM missions ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Limit > 0 {
		query += " LIMIT ?"
		args = append(args, f.Limit)
	}
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Mission
	for rows.Next() {
		m, err := scanMission(rows.Scan)
		if err != nil {
			return nil, err
		}
		res = append(res, m)
	}
	return res, rows.Err()
}

func (r Repo) InsertItem(ctx context.Context, tx *sql.Tx, it domain.TaskItem) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO mission_items(id,mission_id,position,text,description,kind,required,completed,note,signature)
VALUES (?,?,?,?,?,?,?,?,?,?)`,
		it.ID, it.MissionID, it.Position, it.Text, nullable(it.Description), it.Kind,
		boolInt(it.Required), boolInt(it.Completed), nullable(it.Note), nullableStringPtr(it.Signature))
	return err
}

func (r Repo) UpdateItem(ctx context.Context, tx *sql.Tx, it domain.TaskItem) error {
	res, err := tx.ExecContext(ctx, `UPDATE mission_items SET completed=?, note=?, signature=? WHERE id=?`,
		boolInt(it.Completed), nullable(it.Note), nullableStringPtr(it.Signature), it.ID)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	return nil
}

func scanItem(scan func(dest ...any) error) (domain.TaskItem, error) {
	var it domain.TaskItem
	var description, note, signature sql.NullString
	var required, completed int
	err := scan(&it.ID, &it.MissionID, &it.Position, &it.Text, &description, &it.Kind, &required, &completed, &note, &signature)
	if err == sql.ErrNoRows {
		return it, ErrNotFound
	}
	if err != nil {
		return it, err
	}
	it.Required = required != 0
	it.Completed = completed != 0
	if description.Valid {
		it.Description = description.String
	}
	if note.Valid {
		it.Note = note.String
	}
	if signature.Valid {
		it.Signature = &signature.String
	}
	return it, nil
}

const itemColumns = `id,mission_id,position,text,description,kind,required,completed,note,signature`

func (r Repo) GetItem(ctx context.Context, id string) (domain.TaskItem, error) {
	row := r.DB.QueryRowContext(ctx, `SELECT `+itemColumns+` FROM mission_items WHERE id=?`, id)
	it, err := scanItem(row.Scan)
	if err != nil {
		return it, err
	}
	atts, err := r.ListAttachments(ctx, it.ID)
	if err != nil {
		return it, err
	}
	it.Attachments = atts
	return it, nil
}

type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

// ListItems returns a mission's items in display order with attachments.
func (r Repo) ListItems(ctx context.Context, missionID string) ([]domain.TaskItem, error) {
	return r.listItems(ctx, r.DB, missionID)
}

func (r Repo) listItems(ctx context.Context, q querier, missionID string) ([]domain.TaskItem, error) {
	rows, err := q.QueryContext(ctx, `SELECT `+itemColumns+` FROM mission_items WHERE mission_id=? ORDER BY position ASC`, missionID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var items []domain.TaskItem
	for rows.Next() {
		it, err := scanItem(rows.Scan)
		if err != nil {
			return nil, err
		}
		items = append(items, it)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range items {
		atts, err := r.listAttachments(ctx, q, items[i].ID)
		if err != nil {
			return nil, err
		}
		items[i].Attachments = atts
	}
	return items, nil
}

func (r Repo) InsertAttachment(ctx context.Context, tx *sql.Tx, a domain.Attachment) error {
	_, err := tx.ExecContext(ctx, `INSERT INTO attachments(id,item_id,kind,ref,name,mime,size,created_at) VALUES (?,?,?,?,?,?,?,?)`,
		a.ID, a.ItemID, a.Kind, a.Ref, nullable(a.Name), nullable(a.MIME), a.Size, a.CreatedAt)
	return err
}

func (r Repo) ListAttachments(ctx context.Context, itemID string) ([]domain.Attachment, error) {
	return r.listAttachments(ctx, r.DB, itemID)
}

func (r Repo) listAttachments(ctx context.Context, q querier, itemID string) ([]domain.Attachment, error) {
	rows, err := q.QueryContext(ctx, `SELECT id,item_id,kind,ref,name,mime,size,created_at FROM attachments WHERE item_id=? ORDER BY created_at ASC, id ASC`, itemID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Attachment
	for rows.Next() {
		var a domain.Attachment
		var name, mime sql.NullString
		if err := rows.Scan(&a.ID, &a.ItemID, &a.Kind, &a.Ref, &name, &mime, &a.Size, &a.CreatedAt); err != nil {
			return nil, err
		}
		if name.Valid {
			a.Name = name.String
		}
		if mime.Valid {
			a.MIME = mime.String
		}
		res = append(res, a)
	}
	return res, rows.Err()
}

// CountMissionsByStatus groups stored statuses; overdue overlay is the
// engine's concern.
func (r Repo) CountMissionsByStatus(ctx context.Context) (map[string]int, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT status, count(*) FROM missions GROUP BY status`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string]int{}
	for rows.Next() {
		var status string
		var count int
		if err := rows.Scan(&status, &count); err != nil {
			return nil, err
		}
		res[status] = count
	}
	return res, rows.Err()
}

// ListDueDates returns id, stored status and due date for every mission, for
// overdue accounting.
func (r Repo) ListDueDates(ctx context.Context) (map[string][2]string, error) {
	rows, err := r.DB.QueryContext(ctx, `SELECT id, status, due_date FROM missions`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	res := map[string][2]string{}
	for rows.Next() {
		var id, status, due string
		if err := rows.Scan(&id, &status, &due); err != nil {
			return nil, err
		}
		res[id] = [2]string{status, due}
	}
	return res, rows.Err()
}

func (r Repo) LatestEvents(ctx context.Context, limit int, missionID, evtType, entityKind, entityID string) ([]domain.Event, error) {
	clauses := []string{"1=1"}
	var args []any
	if missionID != "" {
		clauses = append(clauses, "mission_id=?")
		args = append(args, missionID)
	}
	if evtType != "" {
		clauses = append(clauses, "type=?")
		args = append(args, evtType)
	}
	if entityKind != "" {
		clauses = append(clauses, "entity_kind=?")
		args = append(args, entityKind)
	}
	if entityID != "" {
		clauses = append(clauses, "entity_id=?")
		args = append(args, entityID)
	}
	where := "WHERE " + strings.Join(clauses, " AND ")
	query := fmt.Sprintf(`SELECT id,ts,type,mission_id,entity_kind,entity_id,actor_id,payload_json FROM events %s ORDER BY id DESC LIMIT ?`, where)
	args = append(args, limit)
	rows, err := r.DB.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var res []domain.Event
	for rows.Next() {
		var e domain.Event
		var missionID, entityID, payload sql.NullString
		if err := rows.Scan(&e.ID, &e.TS, &e.Type, &missionID, &e.EntityKind, &entityID, &e.ActorID, &payload); err != nil {
			return nil, err
		}
		if missionID.Valid {
			e.MissionID = missionID.String
		}
		if entityID.Valid {
			e.EntityID = entityID.String
		}
		if payload.Valid {
			e.Payload = payload.String
		}
		res = append(res, e)
	}
	return res, rows.Err()
}

func nullable(v string) any {
	if v == "" {
		return nil
	}
	return v
}

func nullableStringPtr(v *string) any {
	if v == nil {
		return nil
	}
	if *v == "" {
		return nil
	}
	return *v
}

func boolInt(b bool) int {
	if b {
		return 1
	}
	return 0
}
