package services

import (
	"context"
	"fmt"
	"log"

	"paranotes/internal/models"
)

// SyncReport summarizes one status-sync pass
type SyncReport struct {
	Drifted int `json:"drifted"`
	Synced  int `json:"synced"`
	Failed  int `json:"failed"`
}

// StatusSyncService mirrors note status changes back to the chat surface
type StatusSyncService struct {
	store     NoteStore
	chat      ChatClient
	capPerRun int
	reactions Reactions
	metrics   *Metrics
}

// NewStatusSyncService creates a reconciler handling at most capPerRun notes per run
func NewStatusSyncService(store NoteStore, chat ChatClient, capPerRun int, reactions Reactions, metrics *Metrics) *StatusSyncService {
	return &StatusSyncService{
		store:     store,
		chat:      chat,
		capPerRun: capPerRun,
		reactions: reactions,
		metrics:   metrics,
	}
}

// Run reconciles drifted notes. syncedStatus is only written after the chat
// side was updated, so a failed note is retried on the next run.
func (s *StatusSyncService) Run(ctx context.Context) (*SyncReport, error) {
	report := &SyncReport{}

	drifted, err := s.store.ListStatusDrift(ctx)
	if err != nil {
		return report, fmt.Errorf("failed to list drifted notes: %w", err)
	}
	report.Drifted = len(drifted)
	if len(drifted) > s.capPerRun {
		drifted = drifted[:s.capPerRun]
	}

	for _, n := range drifted {
		if ctx.Err() != nil {
			log.Printf("⚠️  [STATUS-SYNC] Run cancelled: %v", ctx.Err())
			break
		}

		var err error
		direction := ""
		switch {
		case n.Status == models.NoteStatusDone && n.SyncedStatus != models.NoteStatusDone:
			direction = "done"
			err = s.mirrorDone(ctx, n)
		case n.Status == models.NoteStatusOpen && n.SyncedStatus == models.NoteStatusDone:
			direction = "reopen"
			err = s.mirrorReopen(ctx, n)
		default:
			continue
		}

		if err != nil {
			log.Printf("⚠️  [STATUS-SYNC] Note %s (%s) failed: %v", n.ID, direction, err)
			s.metrics.RecordStatusSync(direction, "failed")
			report.Failed++
			continue
		}
		s.metrics.RecordStatusSync(direction, "synced")
		report.Synced++
	}

	log.Printf("🔄 [STATUS-SYNC] Pass complete: %d drifted, %d synced, %d failed", report.Drifted, report.Synced, report.Failed)
	return report, nil
}

func (s *StatusSyncService) mirrorDone(ctx context.Context, n *models.Note) error {
	if err := s.chat.AddReaction(ctx, n.ChannelID, n.ExternalMessageID, s.reactions.Done); err != nil {
		return fmt.Errorf("add reaction: %w", err)
	}
	if err := s.chat.PostThreadReply(ctx, n.ChannelID, n.ExternalMessageID, "✅ Status: *Done*"); err != nil {
		return fmt.Errorf("post status: %w", err)
	}
	return s.store.SetSyncedStatus(ctx, n.ID, models.NoteStatusDone)
}

func (s *StatusSyncService) mirrorReopen(ctx context.Context, n *models.Note) error {
	if err := s.chat.RemoveReaction(ctx, n.ChannelID, n.ExternalMessageID, s.reactions.Done); err != nil {
		return fmt.Errorf("remove reaction: %w", err)
	}
	if err := s.chat.PostThreadReply(ctx, n.ChannelID, n.ExternalMessageID, "↩️ Status: *Open*"); err != nil {
		return fmt.Errorf("post status: %w", err)
	}
	return s.store.SetSyncedStatus(ctx, n.ID, models.NoteStatusOpen)
}
