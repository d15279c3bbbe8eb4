package services

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"log"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"paranotes/internal/database"
	"paranotes/internal/models"
)

// SQLNoteStore stores notes in SQLite or MySQL
type SQLNoteStore struct {
	db        *database.DB
	namespace string
	now       func() time.Time
}

// NewSQLNoteStore creates a note store over the notes table
func NewSQLNoteStore(db *database.DB, namespace string) *SQLNoteStore {
	return &SQLNoteStore{db: db, namespace: namespace, now: time.Now}
}

const noteColumns = `id, external_message_id, channel_id, content, title, category, subcategory,
	confidence, next_action, urls, status, synced_status, last_reminder_at, reminder_count,
	archived, archived_at, created_at`

// EnsureSchema creates the notes table and runs migrations
func (s *SQLNoteStore) EnsureSchema(ctx context.Context) error {
	return s.db.Initialize()
}

func (s *SQLNoteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

func (s *SQLNoteStore) Exists(ctx context.Context, externalID string) (bool, error) {
	var count int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM notes WHERE namespace = ? AND external_message_id = ? AND archived = ?`,
		s.namespace, externalID, false,
	).Scan(&count)
	if err != nil {
		return false, fmt.Errorf("failed to check note existence: %w", err)
	}
	return count > 0, nil
}

func (s *SQLNoteStore) Create(ctx context.Context, fields *models.NoteFields) (string, error) {
	if err := fields.Validate(); err != nil {
		return "", err
	}

	note := models.NewNote(uuid.New().String(), fields, s.now().UTC())
	urls, err := json.Marshal(note.URLs)
	if err != nil {
		return "", fmt.Errorf("failed to encode urls: %w", err)
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO notes (id, namespace, external_message_id, channel_id, content, title, category,
			subcategory, confidence, next_action, urls, status, synced_status, reminder_count,
			archived, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		note.ID, s.namespace, note.ExternalMessageID, note.ChannelID, note.Content, note.Title,
		string(note.Category), nullString(string(note.Subcategory)), note.Confidence,
		nullString(note.NextAction), string(urls), string(note.Status), string(note.SyncedStatus),
		0, false, note.CreatedAt.UnixMilli(),
	)
	if err != nil {
		if database.IsUniqueViolation(err) {
			return "", models.ErrDuplicateNote
		}
		return "", fmt.Errorf("failed to insert note: %w", err)
	}

	log.Printf("📝 [NOTE-STORE] Created note %s for message %s (%s)", note.ID, note.ExternalMessageID, note.Category)
	return note.ID, nil
}

func (s *SQLNoteStore) FindByExternalID(ctx context.Context, externalID string) (*models.Note, error) {
	return s.queryOne(ctx,
		`SELECT `+noteColumns+` FROM notes
		WHERE namespace = ? AND external_message_id = ? AND archived = ? LIMIT 1`,
		s.namespace, externalID, false,
	)
}

func (s *SQLNoteStore) FindArchivedByExternalID(ctx context.Context, externalID string) (*models.Note, error) {
	return s.queryOne(ctx,
		`SELECT `+noteColumns+` FROM notes
		WHERE namespace = ? AND external_message_id = ? AND archived = ?
		ORDER BY archived_at DESC LIMIT 1`,
		s.namespace, externalID, true,
	)
}

// AppendContent reads the current content and writes back the joined text.
// There is no version check; concurrent appends are last-write-wins.
func (s *SQLNoteStore) AppendContent(ctx context.Context, id, addition string) error {
	var content sql.NullString
	err := s.db.QueryRowContext(ctx,
		`SELECT content FROM notes WHERE id = ? AND namespace = ?`, id, s.namespace,
	).Scan(&content)
	if err == sql.ErrNoRows {
		return fmt.Errorf("note %s not found", id)
	}
	if err != nil {
		return fmt.Errorf("failed to load note: %w", err)
	}

	return s.exec(ctx, id, `UPDATE notes SET content = ? WHERE id = ? AND namespace = ?`,
		models.JoinContent(content.String, addition), id, s.namespace)
}

func (s *SQLNoteStore) SetStatus(ctx context.Context, id string, status models.NoteStatus) error {
	return s.exec(ctx, id, `UPDATE notes SET status = ? WHERE id = ? AND namespace = ?`, string(status), id, s.namespace)
}

func (s *SQLNoteStore) SetSyncedStatus(ctx context.Context, id string, status models.NoteStatus) error {
	return s.exec(ctx, id, `UPDATE notes SET synced_status = ? WHERE id = ? AND namespace = ?`, string(status), id, s.namespace)
}

func (s *SQLNoteStore) Archive(ctx context.Context, id string) error {
	return s.exec(ctx, id, `UPDATE notes SET archived = ?, archived_at = ? WHERE id = ? AND namespace = ?`,
		true, s.now().UTC().UnixMilli(), id, s.namespace)
}

func (s *SQLNoteStore) UpdateReminderMeta(ctx context.Context, id string, at time.Time, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: reminder count must be >= 0", models.ErrInvalidNote)
	}
	return s.exec(ctx, id, `UPDATE notes SET last_reminder_at = ?, reminder_count = ? WHERE id = ? AND namespace = ?`,
		at.UTC().UnixMilli(), count, id, s.namespace)
}

// Search filters with LIKE on each query term and ranks by matched terms, newest first
func (s *SQLNoteStore) Search(ctx context.Context, query string, limit int) ([]models.NoteSummary, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []models.NoteSummary{}, nil
	}

	var clauses []string
	args := []interface{}{s.namespace, false}
	for _, t := range terms {
		clauses = append(clauses, `(LOWER(title) LIKE ? OR LOWER(content) LIKE ?)`)
		// terms are letters and digits only, so they carry no LIKE wildcards
		pattern := "%" + t + "%"
		args = append(args, pattern, pattern)
	}

	notes, err := s.query(ctx,
		`SELECT `+noteColumns+` FROM notes
		WHERE namespace = ? AND archived = ? AND (`+strings.Join(clauses, " OR ")+`)
		ORDER BY created_at DESC`,
		args...,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}

	sort.SliceStable(notes, func(i, j int) bool {
		return matchScore(terms, notes[i].Title, notes[i].Content) > matchScore(terms, notes[j].Title, notes[j].Content)
	})
	if limit > 0 && len(notes) > limit {
		notes = notes[:limit]
	}
	return summaries(notes), nil
}

func (s *SQLNoteStore) ListWithURLs(ctx context.Context, limit int) ([]models.NoteSummary, error) {
	q := `SELECT ` + noteColumns + ` FROM notes
		WHERE namespace = ? AND archived = ? AND status = ?
		AND urls IS NOT NULL AND urls <> '' AND urls <> '[]'
		ORDER BY created_at DESC`
	args := []interface{}{s.namespace, false, string(models.NoteStatusOpen)}
	if limit > 0 {
		q += ` LIMIT ?`
		args = append(args, limit)
	}

	notes, err := s.query(ctx, q, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes with links: %w", err)
	}
	return summaries(notes), nil
}

func (s *SQLNoteStore) ListReminderCandidates(ctx context.Context) ([]*models.Note, error) {
	notes, err := s.query(ctx,
		`SELECT `+noteColumns+` FROM notes
		WHERE namespace = ? AND archived = ? AND status = ?
		AND next_action IS NOT NULL AND next_action <> ''
		ORDER BY created_at ASC`,
		s.namespace, false, string(models.NoteStatusOpen),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder candidates: %w", err)
	}
	return notes, nil
}

func (s *SQLNoteStore) ListStatusDrift(ctx context.Context) ([]*models.Note, error) {
	done := string(models.NoteStatusDone)
	notes, err := s.query(ctx,
		`SELECT `+noteColumns+` FROM notes
		WHERE namespace = ? AND archived = ? AND (
			(status = ? AND (synced_status IS NULL OR synced_status <> ?))
			OR (status = ? AND synced_status = ?)
		)
		ORDER BY created_at ASC`,
		s.namespace, false, done, done, string(models.NoteStatusOpen), done,
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list status drift: %w", err)
	}
	return notes, nil
}

func (s *SQLNoteStore) exec(ctx context.Context, id, query string, args ...interface{}) error {
	result, err := s.db.ExecContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	// MySQL reports 0 affected rows when values are unchanged, so only trust it for SQLite
	if s.db.Dialect == database.DialectSQLite {
		if n, err := result.RowsAffected(); err == nil && n == 0 {
			return fmt.Errorf("note %s not found", id)
		}
	}
	return nil
}

func (s *SQLNoteStore) queryOne(ctx context.Context, query string, args ...interface{}) (*models.Note, error) {
	notes, err := s.query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	if len(notes) == 0 {
		return nil, nil
	}
	return notes[0], nil
}

func (s *SQLNoteStore) query(ctx context.Context, query string, args ...interface{}) ([]*models.Note, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	notes := []*models.Note{}
	for rows.Next() {
		n, err := scanNote(rows)
		if err != nil {
			return nil, err
		}
		notes = append(notes, n)
	}
	return notes, rows.Err()
}

// scanNote reads one row. Nullable or unrecognized values become safe defaults.
func scanNote(rows *sql.Rows) (*models.Note, error) {
	var (
		n                                             models.Note
		channelID, content, title, category           sql.NullString
		subcategory, nextAction, urls, status, synced sql.NullString
		confidence                                    sql.NullFloat64
		lastReminderAt, archivedAt, createdAt         sql.NullInt64
		reminderCount                                 sql.NullInt64
	)

	if err := rows.Scan(
		&n.ID, &n.ExternalMessageID, &channelID, &content, &title, &category, &subcategory,
		&confidence, &nextAction, &urls, &status, &synced, &lastReminderAt, &reminderCount,
		&n.Archived, &archivedAt, &createdAt,
	); err != nil {
		return nil, fmt.Errorf("failed to scan note: %w", err)
	}

	n.ChannelID = channelID.String
	n.Content = content.String
	n.Title = title.String
	if n.Title == "" {
		n.Title = models.DeriveTitle(n.Content)
	}
	n.Confidence = models.ClampConfidence(confidence.Float64)
	n.NextAction = nextAction.String

	if c, ok := models.ParseCategory(category.String); ok {
		n.Category = c
	} else {
		n.Category = models.CategoryUncategorized
	}
	if n.Category == models.CategoryAreas {
		n.Subcategory, _ = models.ParseSubcategory(subcategory.String)
	}

	n.Status = statusOr(status.String, models.NoteStatusOpen)
	n.SyncedStatus = statusOr(synced.String, models.NoteStatusOpen)

	n.URLs = decodeURLs(urls.String)

	if reminderCount.Int64 > 0 {
		n.ReminderCount = int(reminderCount.Int64)
	}
	n.LastReminderAt = millisToTime(lastReminderAt)
	n.ArchivedAt = millisToTime(archivedAt)
	if t := millisToTime(createdAt); t != nil {
		n.CreatedAt = *t
	}
	return &n, nil
}

// decodeURLs reads a JSON array, falling back to whitespace-separated text
func decodeURLs(raw string) []string {
	urls := []string{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return urls
	}
	if strings.HasPrefix(raw, "[") {
		var decoded []string
		if err := json.Unmarshal([]byte(raw), &decoded); err == nil {
			for _, u := range decoded {
				if u != "" {
					urls = append(urls, u)
				}
			}
			return urls
		}
	}
	return append(urls, strings.Fields(raw)...)
}

func millisToTime(v sql.NullInt64) *time.Time {
	if !v.Valid {
		return nil
	}
	t := time.UnixMilli(v.Int64).UTC()
	return &t
}

func nullString(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}
