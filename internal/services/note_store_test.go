package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"paranotes/internal/database"
	"paranotes/internal/models"
)

// storeFactories returns one constructor per NoteStore implementation that runs without external services
func storeFactories(t *testing.T) map[string]func(t *testing.T) NoteStore {
	return map[string]func(t *testing.T) NoteStore{
		"memory": func(t *testing.T) NoteStore {
			return NewMemoryNoteStore()
		},
		"sqlite": func(t *testing.T) NoteStore {
			return newSQLiteStore(t, "default")
		},
	}
}

func newSQLiteStore(t *testing.T, namespace string) *SQLNoteStore {
	t.Helper()
	db, err := database.New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	t.Cleanup(func() { db.Close() })

	store := NewSQLNoteStore(db, namespace)
	if err := store.EnsureSchema(context.Background()); err != nil {
		t.Fatalf("Failed to ensure schema: %v", err)
	}
	return store
}

func noteFields(externalID, content string) *models.NoteFields {
	return &models.NoteFields{
		ExternalMessageID: externalID,
		ChannelID:         "C1",
		Content:           content,
		Category:          models.CategoryProjects,
		Confidence:        0.9,
	}
}

func TestNoteStore_CreateAndFind(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			fields := noteFields("1700000000.000100", "Need to call the dentist tomorrow")
			fields.NextAction = "Call the dentist"
			id, err := store.Create(ctx, fields)
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if id == "" {
				t.Fatal("Expected an id")
			}

			exists, err := store.Exists(ctx, "1700000000.000100")
			if err != nil || !exists {
				t.Fatalf("Expected note to exist, exists=%v err=%v", exists, err)
			}

			note, err := store.FindByExternalID(ctx, "1700000000.000100")
			if err != nil || note == nil {
				t.Fatalf("Expected note, got %v %v", note, err)
			}
			if note.ID != id || note.Category != models.CategoryProjects || note.NextAction != "Call the dentist" {
				t.Errorf("Unexpected note: %+v", note)
			}
			if note.Status != models.NoteStatusOpen || note.SyncedStatus != models.NoteStatusOpen {
				t.Errorf("Expected Open/Open, got %s/%s", note.Status, note.SyncedStatus)
			}
			if note.URLs == nil || len(note.URLs) != 0 {
				t.Errorf("Expected empty urls, got %#v", note.URLs)
			}
			if note.CreatedAt.IsZero() {
				t.Error("Expected createdAt to be set")
			}

			missing, err := store.FindByExternalID(ctx, "nope")
			if err != nil || missing != nil {
				t.Errorf("Expected (nil, nil) for unknown id, got %v %v", missing, err)
			}
		})
	}
}

func TestNoteStore_CreateValidation(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			store := factory(t)
			_, err := store.Create(context.Background(), noteFields("1.1", "  "))
			if !errors.Is(err, models.ErrInvalidNote) {
				t.Errorf("Expected ErrInvalidNote, got %v", err)
			}
		})
	}
}

func TestNoteStore_DuplicateAndArchive(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			first, err := store.Create(ctx, noteFields("1.1", "first"))
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if _, err := store.Create(ctx, noteFields("1.1", "again")); !errors.Is(err, models.ErrDuplicateNote) {
				t.Fatalf("Expected ErrDuplicateNote, got %v", err)
			}

			if err := store.Archive(ctx, first); err != nil {
				t.Fatalf("Archive failed: %v", err)
			}
			if exists, _ := store.Exists(ctx, "1.1"); exists {
				t.Error("Archived note should not count as existing")
			}
			if n, _ := store.FindByExternalID(ctx, "1.1"); n != nil {
				t.Error("Archived note should not be found")
			}

			archived, err := store.FindArchivedByExternalID(ctx, "1.1")
			if err != nil || archived == nil || archived.ID != first {
				t.Fatalf("Expected archived note %s, got %v %v", first, archived, err)
			}
			if !archived.Archived || archived.ArchivedAt == nil {
				t.Errorf("Expected archive markers, got %+v", archived)
			}

			second, err := store.Create(ctx, noteFields("1.1", "restored"))
			if err != nil {
				t.Fatalf("Re-create after archive failed: %v", err)
			}
			if second == first {
				t.Error("Expected a fresh id on re-create")
			}
		})
	}
}

func TestNoteStore_AppendContent(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			id, err := store.Create(ctx, noteFields("1.1", "A"))
			if err != nil {
				t.Fatalf("Create failed: %v", err)
			}
			if err := store.AppendContent(ctx, id, "B"); err != nil {
				t.Fatalf("Append failed: %v", err)
			}
			if err := store.AppendContent(ctx, id, "C"); err != nil {
				t.Fatalf("Append failed: %v", err)
			}

			note, _ := store.FindByExternalID(ctx, "1.1")
			want := "A" + models.AppendSeparator + "B" + models.AppendSeparator + "C"
			if note.Content != want {
				t.Errorf("Expected %q, got %q", want, note.Content)
			}
			if note.Title != "A" {
				t.Errorf("Title should be kept as created, got %q", note.Title)
			}

			if err := store.AppendContent(ctx, "missing", "x"); err == nil {
				t.Error("Expected error appending to unknown note")
			}
		})
	}
}

func TestNoteStore_ReminderCandidatesAndMeta(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			withAction := noteFields("1.1", "call dentist")
			withAction.NextAction = "Call the dentist"
			actionID, _ := store.Create(ctx, withAction)

			store.Create(ctx, noteFields("1.2", "just a thought"))

			done := noteFields("1.3", "finished thing")
			done.NextAction = "Already did it"
			doneID, _ := store.Create(ctx, done)
			store.SetStatus(ctx, doneID, models.NoteStatusDone)

			candidates, err := store.ListReminderCandidates(ctx)
			if err != nil {
				t.Fatalf("ListReminderCandidates failed: %v", err)
			}
			if len(candidates) != 1 || candidates[0].ID != actionID {
				t.Fatalf("Expected only %s, got %d candidates", actionID, len(candidates))
			}

			at := time.Date(2026, 5, 1, 10, 0, 0, 0, time.UTC)
			if err := store.UpdateReminderMeta(ctx, actionID, at, 3); err != nil {
				t.Fatalf("UpdateReminderMeta failed: %v", err)
			}
			note, _ := store.FindByExternalID(ctx, "1.1")
			if note.ReminderCount != 3 || note.LastReminderAt == nil || !note.LastReminderAt.Equal(at) {
				t.Errorf("Reminder meta not stored: count=%d at=%v", note.ReminderCount, note.LastReminderAt)
			}

			if err := store.UpdateReminderMeta(ctx, actionID, at, -1); !errors.Is(err, models.ErrInvalidNote) {
				t.Errorf("Expected negative count to be rejected, got %v", err)
			}
		})
	}
}

func TestNoteStore_ListStatusDrift(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			// Done, never mirrored
			doneID, _ := store.Create(ctx, noteFields("1.1", "a"))
			store.SetStatus(ctx, doneID, models.NoteStatusDone)

			// Reopened after a Done mirror
			reopenedID, _ := store.Create(ctx, noteFields("1.2", "b"))
			store.SetSyncedStatus(ctx, reopenedID, models.NoteStatusDone)

			// In sync
			syncedID, _ := store.Create(ctx, noteFields("1.3", "c"))
			store.SetStatus(ctx, syncedID, models.NoteStatusDone)
			store.SetSyncedStatus(ctx, syncedID, models.NoteStatusDone)

			// Parked is never mirrored
			parkedID, _ := store.Create(ctx, noteFields("1.4", "d"))
			store.SetStatus(ctx, parkedID, models.NoteStatusParked)

			drift, err := store.ListStatusDrift(ctx)
			if err != nil {
				t.Fatalf("ListStatusDrift failed: %v", err)
			}

			got := map[string]bool{}
			for _, n := range drift {
				got[n.ID] = true
			}
			if len(got) != 2 || !got[doneID] || !got[reopenedID] {
				t.Errorf("Expected drift for %s and %s, got %v", doneID, reopenedID, got)
			}
		})
	}
}

func TestNoteStore_SearchAndLinks(t *testing.T) {
	for name, factory := range storeFactories(t) {
		t.Run(name, func(t *testing.T) {
			ctx := context.Background()
			store := factory(t)

			store.Create(ctx, noteFields("1.1", "Need to call the dentist tomorrow"))
			store.Create(ctx, noteFields("1.2", "Buy groceries"))

			link := noteFields("1.3", "Read this later https://go.dev/blog")
			link.URLs = []string{"https://go.dev/blog"}
			linkID, _ := store.Create(ctx, link)

			closedLink := noteFields("1.4", "Old article https://example.com")
			closedLink.URLs = []string{"https://example.com"}
			closedID, _ := store.Create(ctx, closedLink)
			store.SetStatus(ctx, closedID, models.NoteStatusDone)

			results, err := store.Search(ctx, "what did I save about dentists?", 10)
			if err != nil {
				t.Fatalf("Search failed: %v", err)
			}
			if len(results) != 1 || results[0].ExternalMessageID != "1.1" {
				t.Fatalf("Expected the dentist note, got %+v", results)
			}

			empty, err := store.Search(ctx, "what did I", 10)
			if err != nil || len(empty) != 0 {
				t.Errorf("Expected no results for stop words only, got %v %v", empty, err)
			}

			links, err := store.ListWithURLs(ctx, 10)
			if err != nil {
				t.Fatalf("ListWithURLs failed: %v", err)
			}
			if len(links) != 1 || links[0].ID != linkID {
				t.Errorf("Expected only the open link note, got %+v", links)
			}
			if len(links) == 1 && (len(links[0].URLs) != 1 || links[0].URLs[0] != "https://go.dev/blog") {
				t.Errorf("Expected urls to round-trip, got %v", links[0].URLs)
			}
		})
	}
}

func TestSQLNoteStore_NamespaceScoping(t *testing.T) {
	ctx := context.Background()
	db, err := database.New("sqlite://:memory:")
	if err != nil {
		t.Fatalf("Failed to open sqlite: %v", err)
	}
	defer db.Close()

	ours := NewSQLNoteStore(db, "ours")
	theirs := NewSQLNoteStore(db, "theirs")
	if err := ours.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema failed: %v", err)
	}

	if _, err := theirs.Create(ctx, noteFields("1.1", "dentist appointment")); err != nil {
		t.Fatalf("Create failed: %v", err)
	}

	results, err := ours.Search(ctx, "dentist", 10)
	if err != nil {
		t.Fatalf("Search failed: %v", err)
	}
	if len(results) != 0 {
		t.Errorf("Expected other namespace to be invisible, got %+v", results)
	}

	// The same message id may exist once per namespace
	if _, err := ours.Create(ctx, noteFields("1.1", "dentist appointment")); err != nil {
		t.Errorf("Expected create in another namespace to succeed, got %v", err)
	}
}

func TestSQLNoteStore_TolerantScan(t *testing.T) {
	ctx := context.Background()
	store := newSQLiteStore(t, "default")

	// A row written by hand with odd values
	_, err := store.db.Exec(`INSERT INTO notes (id, namespace, external_message_id, content, category,
		subcategory, confidence, urls, status, synced_status, archived, created_at)
		VALUES ('x', 'default', '9.9', 'hello world', 'someday', 'Health', 7, 'https://a.com https://b.com', 'weird', NULL, 0, 0)`)
	if err != nil {
		t.Fatalf("Insert failed: %v", err)
	}

	note, err := store.FindByExternalID(ctx, "9.9")
	if err != nil || note == nil {
		t.Fatalf("Expected note, got %v %v", note, err)
	}
	if note.Category != models.CategoryUncategorized || note.Subcategory != models.SubcategoryNone {
		t.Errorf("Expected Uncategorized without subcategory, got %s/%s", note.Category, note.Subcategory)
	}
	if note.Confidence != 1 {
		t.Errorf("Expected clamped confidence, got %v", note.Confidence)
	}
	if note.Status != models.NoteStatusOpen || note.SyncedStatus != models.NoteStatusOpen {
		t.Errorf("Expected Open defaults, got %s/%s", note.Status, note.SyncedStatus)
	}
	if len(note.URLs) != 2 {
		t.Errorf("Expected whitespace separated urls to load, got %v", note.URLs)
	}
	if note.Title != "hello world" {
		t.Errorf("Expected title derived from content, got %q", note.Title)
	}
}
