package models

import (
	"errors"
	"fmt"
	"strings"
	"time"
	"unicode/utf8"
)

// Category is a PARA bucket plus the Inbox overflow and the Uncategorized fallback
type Category string

const (
	CategoryProjects      Category = "Projects"
	CategoryAreas         Category = "Areas"
	CategoryResources     Category = "Resources"
	CategoryArchive       Category = "Archive"
	CategoryInbox         Category = "Inbox"
	CategoryUncategorized Category = "Uncategorized"
)

// AllCategories lists every category the classifier may return
var AllCategories = []Category{
	CategoryProjects,
	CategoryAreas,
	CategoryResources,
	CategoryArchive,
	CategoryInbox,
	CategoryUncategorized,
}

// ParseCategory returns the category for s (case-insensitive) and whether it was recognized
func ParseCategory(s string) (Category, bool) {
	s = strings.TrimSpace(s)
	for _, c := range AllCategories {
		if strings.EqualFold(string(c), s) {
			return c, true
		}
	}
	return "", false
}

// Subcategory only applies to notes in the Areas category
type Subcategory string

const (
	SubcategoryNone          Subcategory = ""
	SubcategoryRelationships Subcategory = "Relationships"
	SubcategoryHealth        Subcategory = "Health"
	SubcategoryFinances      Subcategory = "Finances"
	SubcategoryCareer        Subcategory = "Career"
	SubcategoryHome          Subcategory = "Home"
)

// AllSubcategories lists the Areas subcategories
var AllSubcategories = []Subcategory{
	SubcategoryRelationships,
	SubcategoryHealth,
	SubcategoryFinances,
	SubcategoryCareer,
	SubcategoryHome,
}

// ParseSubcategory returns the subcategory for s (case-insensitive) and whether it was recognized
func ParseSubcategory(s string) (Subcategory, bool) {
	s = strings.TrimSpace(s)
	for _, sc := range AllSubcategories {
		if strings.EqualFold(string(sc), s) {
			return sc, true
		}
	}
	return SubcategoryNone, false
}

// NoteStatus is the lifecycle state of a note
type NoteStatus string

const (
	NoteStatusOpen   NoteStatus = "Open"
	NoteStatusDone   NoteStatus = "Done"
	NoteStatusParked NoteStatus = "Parked"
)

// ParseNoteStatus returns the status for s (case-insensitive) and whether it was recognized
func ParseNoteStatus(s string) (NoteStatus, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "open":
		return NoteStatusOpen, true
	case "done":
		return NoteStatusDone, true
	case "parked":
		return NoteStatusParked, true
	}
	return "", false
}

const (
	// MaxTitleLength is the longest title derived from note content, ellipsis included
	MaxTitleLength = 100

	// AppendSeparator is placed between the existing content and appended thread replies
	AppendSeparator = "\n\n---\n\n"

	// AutoParkThreshold is the reminder count after which no reminders are sent
	AutoParkThreshold = 8
)

var (
	// ErrInvalidNote is returned when a note is built without its required fields
	ErrInvalidNote = errors.New("invalid note")

	// ErrDuplicateNote is returned by stores that enforce uniqueness of the external message id
	ErrDuplicateNote = errors.New("note already exists for external message id")
)

// Note is the persisted record for one captured thought
type Note struct {
	ID                string      `bson:"_id" json:"id"`
	ExternalMessageID string      `bson:"externalMessageId" json:"externalMessageId"`
	ChannelID         string      `bson:"channelId" json:"channelId"`
	Content           string      `bson:"content" json:"content"`
	Title             string      `bson:"title" json:"title"`
	Category          Category    `bson:"category" json:"category"`
	Subcategory       Subcategory `bson:"subcategory,omitempty" json:"subcategory,omitempty"`
	Confidence        float64     `bson:"confidence" json:"confidence"`
	NextAction        string      `bson:"nextAction,omitempty" json:"nextAction,omitempty"`
	URLs              []string    `bson:"urls" json:"urls"`
	Status            NoteStatus  `bson:"status" json:"status"`
	SyncedStatus      NoteStatus  `bson:"syncedStatus" json:"syncedStatus"`
	LastReminderAt    *time.Time  `bson:"lastReminderAt,omitempty" json:"lastReminderAt,omitempty"`
	ReminderCount     int         `bson:"reminderCount" json:"reminderCount"`
	Archived          bool        `bson:"archived" json:"archived"`
	ArchivedAt        *time.Time  `bson:"archivedAt,omitempty" json:"archivedAt,omitempty"`
	CreatedAt         time.Time   `bson:"createdAt" json:"createdAt"`
}

// HasURLs reports whether any link was extracted from the note
func (n *Note) HasURLs() bool {
	return len(n.URLs) > 0
}

// Summary returns the compact view used for search results and answer context
func (n *Note) Summary() NoteSummary {
	return NoteSummary{
		ID:                n.ID,
		ExternalMessageID: n.ExternalMessageID,
		Title:             n.Title,
		Content:           n.Content,
		Category:          n.Category,
		Subcategory:       n.Subcategory,
		NextAction:        n.NextAction,
		URLs:              n.URLs,
		Status:            n.Status,
		CreatedAt:         n.CreatedAt,
	}
}

// NoteSummary is the read-only projection of a note returned by search
type NoteSummary struct {
	ID                string      `json:"id"`
	ExternalMessageID string      `json:"externalMessageId"`
	Title             string      `json:"title"`
	Content           string      `json:"content"`
	Category          Category    `json:"category"`
	Subcategory       Subcategory `json:"subcategory,omitempty"`
	NextAction        string      `json:"nextAction,omitempty"`
	URLs              []string    `json:"urls,omitempty"`
	Status            NoteStatus  `json:"status"`
	CreatedAt         time.Time   `json:"createdAt"`
}

// NoteFields is the input for creating a note
type NoteFields struct {
	ExternalMessageID string
	ChannelID         string
	Content           string
	Category          Category
	Subcategory       Subcategory
	Confidence        float64
	NextAction        string
	URLs              []string
}

// Validate checks required fields and normalizes the optional ones in place.
// Confidence is clamped and the subcategory is dropped outside Areas.
func (f *NoteFields) Validate() error {
	if strings.TrimSpace(f.Content) == "" {
		return fmt.Errorf("%w: content is required", ErrInvalidNote)
	}
	if strings.TrimSpace(f.ExternalMessageID) == "" {
		return fmt.Errorf("%w: external message id is required", ErrInvalidNote)
	}
	if f.Category == "" {
		return fmt.Errorf("%w: category is required", ErrInvalidNote)
	}
	if _, ok := ParseCategory(string(f.Category)); !ok {
		return fmt.Errorf("%w: unknown category %q", ErrInvalidNote, f.Category)
	}
	f.Confidence = ClampConfidence(f.Confidence)
	if f.Category != CategoryAreas {
		f.Subcategory = SubcategoryNone
	} else if _, ok := ParseSubcategory(string(f.Subcategory)); !ok {
		return fmt.Errorf("%w: Areas notes need a subcategory", ErrInvalidNote)
	}
	f.NextAction = strings.TrimSpace(f.NextAction)
	return nil
}

// NewNote builds a fresh Open note from validated fields
func NewNote(id string, f *NoteFields, now time.Time) *Note {
	urls := f.URLs
	if urls == nil {
		urls = []string{}
	}
	return &Note{
		ID:                id,
		ExternalMessageID: f.ExternalMessageID,
		ChannelID:         f.ChannelID,
		Content:           f.Content,
		Title:             DeriveTitle(f.Content),
		Category:          f.Category,
		Subcategory:       f.Subcategory,
		Confidence:        f.Confidence,
		NextAction:        f.NextAction,
		URLs:              urls,
		Status:            NoteStatusOpen,
		SyncedStatus:      NoteStatusOpen,
		ReminderCount:     0,
		CreatedAt:         now,
	}
}

// DeriveTitle returns the content prefix on a single line, truncated to MaxTitleLength runes
func DeriveTitle(content string) string {
	title := strings.Join(strings.Fields(content), " ")
	if utf8.RuneCountInString(title) <= MaxTitleLength {
		return title
	}
	runes := []rune(title)
	return strings.TrimSpace(string(runes[:MaxTitleLength-3])) + "..."
}

// ClampConfidence forces a confidence value into [0, 1]
func ClampConfidence(c float64) float64 {
	if c != c { // NaN
		return 0
	}
	if c < 0 {
		return 0
	}
	if c > 1 {
		return 1
	}
	return c
}

// JoinContent appends addition to content with the visible separator
func JoinContent(content, addition string) string {
	if strings.TrimSpace(content) == "" {
		return addition
	}
	return content + AppendSeparator + addition
}
