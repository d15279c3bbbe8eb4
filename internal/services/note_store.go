package services

import (
	"context"
	"strings"
	"time"
	"unicode"

	"paranotes/internal/models"
)

// NoteStore owns persistence and queries for notes.
//
// Lookups that find nothing return (nil, nil). Create returns
// models.ErrInvalidNote for missing required fields and
// models.ErrDuplicateNote when a live note already uses the external id.
// Exists followed by Create is not atomic; stores with a uniqueness
// constraint close that race at Create time.
type NoteStore interface {
	// EnsureSchema prepares indexes/tables once at startup
	EnsureSchema(ctx context.Context) error
	Ping(ctx context.Context) error

	Exists(ctx context.Context, externalID string) (bool, error)
	Create(ctx context.Context, fields *models.NoteFields) (string, error)
	FindByExternalID(ctx context.Context, externalID string) (*models.Note, error)
	// FindArchivedByExternalID returns the most recently archived note for the id
	FindArchivedByExternalID(ctx context.Context, externalID string) (*models.Note, error)

	// AppendContent is read-modify-write; concurrent appends are last-write-wins
	AppendContent(ctx context.Context, id, addition string) error
	SetStatus(ctx context.Context, id string, status models.NoteStatus) error
	SetSyncedStatus(ctx context.Context, id string, status models.NoteStatus) error
	Archive(ctx context.Context, id string) error
	UpdateReminderMeta(ctx context.Context, id string, at time.Time, count int) error

	// Search is free-text over live notes in this store's namespace only
	Search(ctx context.Context, query string, limit int) ([]models.NoteSummary, error)
	// ListWithURLs returns live Open notes that carry at least one link
	ListWithURLs(ctx context.Context, limit int) ([]models.NoteSummary, error)
	// ListReminderCandidates returns live Open notes with a next action
	ListReminderCandidates(ctx context.Context) ([]*models.Note, error)
	// ListStatusDrift returns Done notes not yet mirrored as Done, and Open notes last mirrored as Done
	ListStatusDrift(ctx context.Context) ([]*models.Note, error)
}

// IsDrifted reports whether a note needs its status mirrored to chat
func IsDrifted(n *models.Note) bool {
	switch {
	case n.Status == models.NoteStatusDone && n.SyncedStatus != models.NoteStatusDone:
		return true
	case n.Status == models.NoteStatusOpen && n.SyncedStatus == models.NoteStatusDone:
		return true
	}
	return false
}

// searchTerms splits a free-text query into lowercase words worth matching on
func searchTerms(query string) []string {
	var terms []string
	for _, w := range splitWords(query) {
		if len([]rune(w)) < 3 || stopWords[w] {
			continue
		}
		// crude plural folding so "dentists" finds "dentist"
		if len(w) > 4 && strings.HasSuffix(w, "s") && !strings.HasSuffix(w, "ss") {
			w = strings.TrimSuffix(w, "s")
		}
		terms = append(terms, w)
	}
	return terms
}

var stopWords = map[string]bool{
	"the": true, "and": true, "for": true, "what": true, "did": true, "about": true,
	"are": true, "any": true, "was": true, "you": true, "have": true, "with": true,
	"that": true, "this": true, "from": true, "how": true, "who": true, "when": true,
	"where": true, "which": true, "why": true, "saved": true, "save": true, "notes": true,
	"note": true, "does": true, "there": true, "can": true,
}

func splitWords(s string) []string {
	return strings.FieldsFunc(strings.ToLower(s), func(r rune) bool {
		return !unicode.IsLetter(r) && !unicode.IsDigit(r)
	})
}

// matchScore counts how many terms occur in the note's title or content
func matchScore(terms []string, title, content string) int {
	haystack := strings.ToLower(title + "\n" + content)
	score := 0
	for _, t := range terms {
		if strings.Contains(haystack, t) {
			score++
		}
	}
	return score
}
