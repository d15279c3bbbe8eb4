package services

import (
	"context"
	"log"

	"paranotes/internal/models"
	"paranotes/internal/utils"
)

// NoteNotFoundMessage is the reply to a thread question about an untracked message
const NoteNotFoundMessage = "I couldn't find the note this thread refers to. It may have been deleted."

// linkKeywords route a question to the notes that carry links instead of free-text search
var linkKeywords = []string{"link", "links", "url", "urls", "website", "article", "bookmark"}

// QAService answers questions from stored notes
type QAService struct {
	store      NoteStore
	classifier Classifier
	searchMax  int
	topN       int
}

// NewQAService creates a Q&A engine. searchMax bounds store queries; topN bounds the answer context.
func NewQAService(store NoteStore, classifier Classifier, searchMax, topN int) *QAService {
	return &QAService{
		store:      store,
		classifier: classifier,
		searchMax:  searchMax,
		topN:       topN,
	}
}

// AnswerChannel answers a question asked in the channel against all open notes
func (s *QAService) AnswerChannel(ctx context.Context, question string) string {
	var (
		candidates []models.NoteSummary
		err        error
	)
	if utils.ContainsAnyFold(question, linkKeywords) {
		candidates, err = s.store.ListWithURLs(ctx, s.searchMax)
	} else {
		candidates, err = s.store.Search(ctx, question, s.searchMax)
	}
	if err != nil {
		log.Printf("❌ [QA] Note lookup failed: %v", err)
		return AnswerErrorMessage
	}

	open := make([]models.NoteSummary, 0, len(candidates))
	for _, n := range candidates {
		if n.Status == models.NoteStatusOpen {
			open = append(open, n)
		}
	}
	if len(open) > s.topN {
		open = open[:s.topN]
	}

	log.Printf("🔎 [QA] %d candidate notes, %d open used as context", len(candidates), len(open))
	if len(open) == 0 {
		return NoRelevantNotesMessage
	}
	return s.classifier.Answer(ctx, question, open)
}

// AnswerThread answers a question asked under a note, using that note alone
func (s *QAService) AnswerThread(ctx context.Context, question, parentExternalID string) string {
	note, err := s.store.FindByExternalID(ctx, parentExternalID)
	if err != nil {
		log.Printf("❌ [QA] Parent lookup failed for %s: %v", parentExternalID, err)
		return AnswerErrorMessage
	}
	if note == nil {
		return NoteNotFoundMessage
	}
	return s.classifier.Answer(ctx, question, []models.NoteSummary{note.Summary()})
}
