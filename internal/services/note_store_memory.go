package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"paranotes/internal/models"
)

// MemoryNoteStore keeps notes in process memory. Used in development when no
// database is configured, and by tests.
type MemoryNoteStore struct {
	mu    sync.RWMutex
	notes map[string]*models.Note // by id
	order []string                // creation order
	now   func() time.Time
}

// NewMemoryNoteStore creates an empty in-memory store
func NewMemoryNoteStore() *MemoryNoteStore {
	return &MemoryNoteStore{
		notes: make(map[string]*models.Note),
		now:   time.Now,
	}
}

// SetClock overrides the time source (tests)
func (s *MemoryNoteStore) SetClock(now func() time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.now = now
}

func (s *MemoryNoteStore) EnsureSchema(ctx context.Context) error { return nil }
func (s *MemoryNoteStore) Ping(ctx context.Context) error         { return nil }

// Exists reports whether a live note uses the external id
func (s *MemoryNoteStore) Exists(ctx context.Context, externalID string) (bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.findLive(externalID) != nil, nil
}

// Create validates fields and stores a new Open note
func (s *MemoryNoteStore) Create(ctx context.Context, fields *models.NoteFields) (string, error) {
	if err := fields.Validate(); err != nil {
		return "", err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	if s.findLive(fields.ExternalMessageID) != nil {
		return "", models.ErrDuplicateNote
	}

	id := uuid.New().String()
	note := models.NewNote(id, fields, s.now().UTC())
	note.URLs = append([]string{}, note.URLs...)
	s.notes[id] = note
	s.order = append(s.order, id)
	return id, nil
}

// FindByExternalID returns a copy of the live note for the external id
func (s *MemoryNoteStore) FindByExternalID(ctx context.Context, externalID string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n := s.findLive(externalID); n != nil {
		return cloneNote(n), nil
	}
	return nil, nil
}

// FindArchivedByExternalID returns the most recently archived note for the external id
func (s *MemoryNoteStore) FindArchivedByExternalID(ctx context.Context, externalID string) (*models.Note, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var latest *models.Note
	for _, id := range s.order {
		n := s.notes[id]
		if !n.Archived || n.ExternalMessageID != externalID {
			continue
		}
		if latest == nil || (n.ArchivedAt != nil && latest.ArchivedAt != nil && !n.ArchivedAt.Before(*latest.ArchivedAt)) {
			latest = n
		}
	}
	if latest == nil {
		return nil, nil
	}
	return cloneNote(latest), nil
}

func (s *MemoryNoteStore) AppendContent(ctx context.Context, id, addition string) error {
	return s.update(id, func(n *models.Note) {
		n.Content = models.JoinContent(n.Content, addition)
	})
}

func (s *MemoryNoteStore) SetStatus(ctx context.Context, id string, status models.NoteStatus) error {
	return s.update(id, func(n *models.Note) { n.Status = status })
}

func (s *MemoryNoteStore) SetSyncedStatus(ctx context.Context, id string, status models.NoteStatus) error {
	return s.update(id, func(n *models.Note) { n.SyncedStatus = status })
}

func (s *MemoryNoteStore) Archive(ctx context.Context, id string) error {
	now := s.now().UTC()
	return s.update(id, func(n *models.Note) {
		n.Archived = true
		n.ArchivedAt = &now
	})
}

func (s *MemoryNoteStore) UpdateReminderMeta(ctx context.Context, id string, at time.Time, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: reminder count must be >= 0", models.ErrInvalidNote)
	}
	at = at.UTC()
	return s.update(id, func(n *models.Note) {
		n.LastReminderAt = &at
		n.ReminderCount = count
	})
}

// Search ranks live notes by how many query terms they contain, newest first on ties
func (s *MemoryNoteStore) Search(ctx context.Context, query string, limit int) ([]models.NoteSummary, error) {
	terms := searchTerms(query)
	if len(terms) == 0 {
		return []models.NoteSummary{}, nil
	}

	s.mu.RLock()
	type hit struct {
		note  *models.Note
		score int
	}
	var hits []hit
	for _, id := range s.order {
		n := s.notes[id]
		if n.Archived {
			continue
		}
		if score := matchScore(terms, n.Title, n.Content); score > 0 {
			hits = append(hits, hit{note: n, score: score})
		}
	}
	s.mu.RUnlock()

	sort.SliceStable(hits, func(i, j int) bool {
		if hits[i].score != hits[j].score {
			return hits[i].score > hits[j].score
		}
		return hits[i].note.CreatedAt.After(hits[j].note.CreatedAt)
	})

	results := make([]models.NoteSummary, 0, len(hits))
	for _, h := range hits {
		if limit > 0 && len(results) >= limit {
			break
		}
		results = append(results, cloneNote(h.note).Summary())
	}
	return results, nil
}

// ListWithURLs returns live Open notes with links, newest first
func (s *MemoryNoteStore) ListWithURLs(ctx context.Context, limit int) ([]models.NoteSummary, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	results := []models.NoteSummary{}
	for i := len(s.order) - 1; i >= 0; i-- {
		n := s.notes[s.order[i]]
		if n.Archived || n.Status != models.NoteStatusOpen || !n.HasURLs() {
			continue
		}
		if limit > 0 && len(results) >= limit {
			break
		}
		results = append(results, cloneNote(n).Summary())
	}
	return results, nil
}

// ListReminderCandidates returns live Open notes with a next action, oldest first
func (s *MemoryNoteStore) ListReminderCandidates(ctx context.Context) ([]*models.Note, error) {
	return s.list(func(n *models.Note) bool {
		return n.Status == models.NoteStatusOpen && n.NextAction != ""
	}), nil
}

// ListStatusDrift returns live notes whose status has not been mirrored to chat
func (s *MemoryNoteStore) ListStatusDrift(ctx context.Context) ([]*models.Note, error) {
	return s.list(IsDrifted), nil
}

// Count returns the number of stored notes, archived included (tests)
func (s *MemoryNoteStore) Count() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.notes)
}

// All returns copies of every stored note in creation order (tests)
func (s *MemoryNoteStore) All() []*models.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]*models.Note, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, cloneNote(s.notes[id]))
	}
	return out
}

// Get returns a copy of the note with the given id (tests)
func (s *MemoryNoteStore) Get(id string) *models.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if n, ok := s.notes[id]; ok {
		return cloneNote(n)
	}
	return nil
}

func (s *MemoryNoteStore) list(match func(*models.Note) bool) []*models.Note {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []*models.Note{}
	for _, id := range s.order {
		n := s.notes[id]
		if !n.Archived && match(n) {
			out = append(out, cloneNote(n))
		}
	}
	return out
}

func (s *MemoryNoteStore) update(id string, fn func(n *models.Note)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	n, ok := s.notes[id]
	if !ok {
		return fmt.Errorf("note %s not found", id)
	}
	fn(n)
	return nil
}

// findLive must be called with the lock held
func (s *MemoryNoteStore) findLive(externalID string) *models.Note {
	for _, id := range s.order {
		n := s.notes[id]
		if !n.Archived && n.ExternalMessageID == externalID {
			return n
		}
	}
	return nil
}

func cloneNote(n *models.Note) *models.Note {
	c := *n
	c.URLs = append([]string{}, n.URLs...)
	if n.LastReminderAt != nil {
		t := *n.LastReminderAt
		c.LastReminderAt = &t
	}
	if n.ArchivedAt != nil {
		t := *n.ArchivedAt
		c.ArchivedAt = &t
	}
	return &c
}
