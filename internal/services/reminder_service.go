package services

import (
	"context"
	"fmt"
	"log"
	"sort"
	"time"

	"paranotes/internal/config"
	"paranotes/internal/models"
)

// ReminderReport summarizes one reminder pass
type ReminderReport struct {
	Candidates int `json:"candidates"`
	Due        int `json:"due"`
	Sent       int `json:"sent"`
	Parked     int `json:"parked"`
	Failed     int `json:"failed"`
}

// ReminderService nudges the owner about open next actions with a tiered backoff
// and parks notes that exhausted the schedule.
type ReminderService struct {
	store     NoteStore
	chat      ChatClient
	tiers     config.ReminderTiers
	capPerRun int
	reactions Reactions
	metrics   *Metrics
	now       func() time.Time
}

// NewReminderService creates a reminder pass processing at most capPerRun notes per run
func NewReminderService(store NoteStore, chat ChatClient, tiers config.ReminderTiers, capPerRun int, reactions Reactions, metrics *Metrics) *ReminderService {
	return &ReminderService{
		store:     store,
		chat:      chat,
		tiers:     tiers,
		capPerRun: capPerRun,
		reactions: reactions,
		metrics:   metrics,
		now:       time.Now,
	}
}

// SetClock replaces the time source (tests)
func (s *ReminderService) SetClock(now func() time.Time) {
	s.now = now
}

// IsReminderDue reports whether a note should be reminded now. Notes never reminded
// are due immediately; notes at the auto-park count are never due.
func IsReminderDue(n *models.Note, tiers config.ReminderTiers, now time.Time) bool {
	if n.Status != models.NoteStatusOpen || n.NextAction == "" {
		return false
	}
	if n.ReminderCount >= tiers.AutoParkAt() {
		return false
	}
	if n.LastReminderAt == nil {
		return true
	}
	return now.Sub(*n.LastReminderAt) >= tiers.IntervalFor(n.ReminderCount)
}

// ShouldAutoPark reports whether a note has exhausted the reminder schedule
func ShouldAutoPark(n *models.Note, tiers config.ReminderTiers) bool {
	return n.Status == models.NoteStatusOpen && n.ReminderCount >= tiers.AutoParkAt()
}

// Run performs one pass. Only a failure to list candidates is returned;
// per-note failures are logged and counted.
func (s *ReminderService) Run(ctx context.Context) (*ReminderReport, error) {
	report := &ReminderReport{}

	candidates, err := s.store.ListReminderCandidates(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list reminder candidates: %w", err)
	}
	report.Candidates = len(candidates)

	now := s.now()
	var due []*models.Note
	for _, n := range candidates {
		if ShouldAutoPark(n, s.tiers) || IsReminderDue(n, s.tiers, now) {
			due = append(due, n)
		}
	}
	report.Due = len(due)

	// Longest-waiting first so a capped run never starves the same notes
	sort.SliceStable(due, func(i, j int) bool {
		return waitingSince(due[i]).Before(waitingSince(due[j]))
	})
	if len(due) > s.capPerRun {
		log.Printf("⏳ [REMINDER] %d notes due, processing %d this run", len(due), s.capPerRun)
		due = due[:s.capPerRun]
	}

	for _, n := range due {
		if ctx.Err() != nil {
			log.Printf("⚠️  [REMINDER] Run cancelled: %v", ctx.Err())
			break
		}
		if ShouldAutoPark(n, s.tiers) {
			if s.park(ctx, n) {
				report.Parked++
			} else {
				report.Failed++
			}
			continue
		}
		if s.remind(ctx, n, now) {
			report.Sent++
		} else {
			report.Failed++
		}
	}

	log.Printf("⏰ [REMINDER] Pass complete: %d candidates, %d due, %d sent, %d parked, %d failed",
		report.Candidates, report.Due, report.Sent, report.Parked, report.Failed)
	return report, nil
}

func (s *ReminderService) remind(ctx context.Context, n *models.Note, now time.Time) bool {
	text := fmt.Sprintf("⏰ Reminder: *%s*\nReact with :%s: on the note when it's done.", n.NextAction, s.reactions.Done)
	if err := s.chat.PostThreadReply(ctx, n.ChannelID, n.ExternalMessageID, text); err != nil {
		log.Printf("⚠️  [REMINDER] Delivery for note %s failed: %v", n.ID, err)
		s.metrics.RecordReminder("failed")
		return false
	}

	if err := s.store.UpdateReminderMeta(ctx, n.ID, now, n.ReminderCount+1); err != nil {
		// The reminder went out; the note will be reminded again early next run
		log.Printf("⚠️  [REMINDER] Sent but could not record reminder for note %s: %v", n.ID, err)
		s.metrics.RecordReminder("unrecorded")
		return false
	}

	s.metrics.RecordReminder("sent")
	return true
}

func (s *ReminderService) park(ctx context.Context, n *models.Note) bool {
	if err := s.store.SetStatus(ctx, n.ID, models.NoteStatusParked); err != nil {
		log.Printf("⚠️  [REMINDER] Could not park note %s: %v", n.ID, err)
		return false
	}
	s.metrics.RecordAutoPark()
	log.Printf("🅿️  [REMINDER] Parked note %s after %d reminders", n.ID, n.ReminderCount)

	text := fmt.Sprintf("🅿️ Parked after %d reminders with no response. I'll stop reminding you about this one.", n.ReminderCount)
	if err := s.chat.PostThreadReply(ctx, n.ChannelID, n.ExternalMessageID, text); err != nil {
		log.Printf("⚠️  [REMINDER] Park notice for note %s failed: %v", n.ID, err)
	}
	return true
}

func waitingSince(n *models.Note) time.Time {
	if n.LastReminderAt != nil {
		return *n.LastReminderAt
	}
	return n.CreatedAt
}
