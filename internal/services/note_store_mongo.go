package services

import (
	"context"
	"fmt"
	"log"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"paranotes/internal/database"
	"paranotes/internal/models"
)

// MongoNoteStore stores notes in MongoDB. Every query is scoped to the
// store's namespace so several deployments can share one collection.
type MongoNoteStore struct {
	mongodb    *database.MongoDB
	collection *mongo.Collection
	namespace  string
}

// NewMongoNoteStore creates a note store over the notes collection
func NewMongoNoteStore(mongodb *database.MongoDB, namespace string) *MongoNoteStore {
	return &MongoNoteStore{
		mongodb:    mongodb,
		collection: mongodb.Collection(database.CollectionNotes),
		namespace:  namespace,
	}
}

// EnsureSchema creates the notes indexes
func (s *MongoNoteStore) EnsureSchema(ctx context.Context) error {
	return s.mongodb.Initialize(ctx)
}

func (s *MongoNoteStore) Ping(ctx context.Context) error {
	return s.mongodb.Ping(ctx)
}

// live scopes a filter to this namespace's non-archived notes
func (s *MongoNoteStore) live(filter bson.M) bson.M {
	filter["namespace"] = s.namespace
	filter["archived"] = bson.M{"$ne": true}
	return filter
}

func (s *MongoNoteStore) Exists(ctx context.Context, externalID string) (bool, error) {
	count, err := s.collection.CountDocuments(ctx, s.live(bson.M{"externalMessageId": externalID}), options.Count().SetLimit(1))
	if err != nil {
		return false, fmt.Errorf("failed to check note existence: %w", err)
	}
	return count > 0, nil
}

func (s *MongoNoteStore) Create(ctx context.Context, fields *models.NoteFields) (string, error) {
	if err := fields.Validate(); err != nil {
		return "", err
	}

	note := models.NewNote(uuid.New().String(), fields, time.Now().UTC())
	if _, err := s.collection.InsertOne(ctx, s.toDocument(note)); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return "", models.ErrDuplicateNote
		}
		return "", fmt.Errorf("failed to insert note: %w", err)
	}

	log.Printf("📝 [NOTE-STORE] Created note %s for message %s (%s)", note.ID, note.ExternalMessageID, note.Category)
	return note.ID, nil
}

func (s *MongoNoteStore) FindByExternalID(ctx context.Context, externalID string) (*models.Note, error) {
	return s.findOne(ctx, s.live(bson.M{"externalMessageId": externalID}), nil)
}

func (s *MongoNoteStore) FindArchivedByExternalID(ctx context.Context, externalID string) (*models.Note, error) {
	filter := bson.M{
		"namespace":         s.namespace,
		"externalMessageId": externalID,
		"archived":          true,
	}
	return s.findOne(ctx, filter, options.FindOne().SetSort(bson.D{{Key: "archivedAt", Value: -1}}))
}

func (s *MongoNoteStore) findOne(ctx context.Context, filter bson.M, opts *options.FindOneOptions) (*models.Note, error) {
	var raw bson.M
	var err error
	if opts != nil {
		err = s.collection.FindOne(ctx, filter, opts).Decode(&raw)
	} else {
		err = s.collection.FindOne(ctx, filter).Decode(&raw)
	}
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to find note: %w", err)
	}
	return decodeNote(raw), nil
}

// AppendContent reads the current content and writes back the joined text.
// There is no version check; concurrent appends are last-write-wins.
func (s *MongoNoteStore) AppendContent(ctx context.Context, id, addition string) error {
	var raw bson.M
	if err := s.collection.FindOne(ctx, bson.M{"_id": id, "namespace": s.namespace}).Decode(&raw); err != nil {
		if err == mongo.ErrNoDocuments {
			return fmt.Errorf("note %s not found", id)
		}
		return fmt.Errorf("failed to load note: %w", err)
	}

	content := models.JoinContent(stringField(raw, "content"), addition)
	return s.set(ctx, id, bson.M{"content": content})
}

func (s *MongoNoteStore) SetStatus(ctx context.Context, id string, status models.NoteStatus) error {
	return s.set(ctx, id, bson.M{"status": string(status)})
}

func (s *MongoNoteStore) SetSyncedStatus(ctx context.Context, id string, status models.NoteStatus) error {
	return s.set(ctx, id, bson.M{"syncedStatus": string(status)})
}

func (s *MongoNoteStore) Archive(ctx context.Context, id string) error {
	return s.set(ctx, id, bson.M{"archived": true, "archivedAt": time.Now().UTC()})
}

func (s *MongoNoteStore) UpdateReminderMeta(ctx context.Context, id string, at time.Time, count int) error {
	if count < 0 {
		return fmt.Errorf("%w: reminder count must be >= 0", models.ErrInvalidNote)
	}
	return s.set(ctx, id, bson.M{"lastReminderAt": at.UTC(), "reminderCount": count})
}

func (s *MongoNoteStore) set(ctx context.Context, id string, fields bson.M) error {
	result, err := s.collection.UpdateOne(ctx,
		bson.M{"_id": id, "namespace": s.namespace},
		bson.M{"$set": fields},
	)
	if err != nil {
		return fmt.Errorf("failed to update note: %w", err)
	}
	if result.MatchedCount == 0 {
		return fmt.Errorf("note %s not found", id)
	}
	return nil
}

// Search runs a $text query. The text index spans every namespace in the
// collection, so the namespace filter is what keeps results inside this store.
func (s *MongoNoteStore) Search(ctx context.Context, query string, limit int) ([]models.NoteSummary, error) {
	if strings.TrimSpace(query) == "" {
		return []models.NoteSummary{}, nil
	}

	filter := s.live(bson.M{"$text": bson.M{"$search": query}})
	findOptions := options.Find().
		SetSort(bson.D{{Key: "score", Value: bson.M{"$meta": "textScore"}}}).
		SetLimit(int64(limit))

	notes, err := s.find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to search notes: %w", err)
	}
	return summaries(notes), nil
}

func (s *MongoNoteStore) ListWithURLs(ctx context.Context, limit int) ([]models.NoteSummary, error) {
	filter := s.live(bson.M{
		"status": string(models.NoteStatusOpen),
		"urls.0": bson.M{"$exists": true},
	})
	findOptions := options.Find().
		SetSort(bson.D{{Key: "createdAt", Value: -1}}).
		SetLimit(int64(limit))

	notes, err := s.find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to list notes with links: %w", err)
	}
	return summaries(notes), nil
}

// openStatus matches Open notes, including documents written without a status
func openStatus() bson.M {
	return bson.M{"$in": bson.A{string(models.NoteStatusOpen), nil}}
}

func (s *MongoNoteStore) reminderCandidateFilter() bson.M {
	return s.live(bson.M{
		"status":     openStatus(),
		"nextAction": bson.M{"$nin": bson.A{nil, ""}},
	})
}

func (s *MongoNoteStore) ListReminderCandidates(ctx context.Context) ([]*models.Note, error) {
	notes, err := s.find(ctx, s.reminderCandidateFilter(), options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list reminder candidates: %w", err)
	}
	return notes, nil
}

func (s *MongoNoteStore) ListStatusDrift(ctx context.Context) ([]*models.Note, error) {
	done := string(models.NoteStatusDone)
	filter := s.live(bson.M{
		"$or": bson.A{
			bson.M{"status": done, "syncedStatus": bson.M{"$ne": done}},
			bson.M{"status": openStatus(), "syncedStatus": done},
		},
	})
	notes, err := s.find(ctx, filter, options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("failed to list status drift: %w", err)
	}
	return notes, nil
}

func (s *MongoNoteStore) find(ctx context.Context, filter bson.M, opts *options.FindOptions) ([]*models.Note, error) {
	cursor, err := s.collection.Find(ctx, filter, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var raws []bson.M
	if err := cursor.All(ctx, &raws); err != nil {
		return nil, err
	}

	notes := make([]*models.Note, 0, len(raws))
	for _, raw := range raws {
		notes = append(notes, decodeNote(raw))
	}
	return notes, nil
}

func (s *MongoNoteStore) toDocument(n *models.Note) bson.M {
	doc := bson.M{
		"_id":               n.ID,
		"namespace":         s.namespace,
		"externalMessageId": n.ExternalMessageID,
		"channelId":         n.ChannelID,
		"content":           n.Content,
		"title":             n.Title,
		"category":          string(n.Category),
		"confidence":        n.Confidence,
		"urls":              n.URLs,
		"status":            string(n.Status),
		"syncedStatus":      string(n.SyncedStatus),
		"reminderCount":     n.ReminderCount,
		"archived":          false,
		"createdAt":         n.CreatedAt,
	}
	if n.Subcategory != models.SubcategoryNone {
		doc["subcategory"] = string(n.Subcategory)
	}
	if n.NextAction != "" {
		doc["nextAction"] = n.NextAction
	}
	return doc
}

func summaries(notes []*models.Note) []models.NoteSummary {
	out := make([]models.NoteSummary, 0, len(notes))
	for _, n := range notes {
		out = append(out, n.Summary())
	}
	return out
}

// decodeNote maps a raw document onto a Note. Missing or mistyped fields
// fall back to zero values so documents written by older builds still load.
func decodeNote(raw bson.M) *models.Note {
	n := &models.Note{
		ID:                idField(raw["_id"]),
		ExternalMessageID: stringField(raw, "externalMessageId"),
		ChannelID:         stringField(raw, "channelId"),
		Content:           stringField(raw, "content"),
		Title:             stringField(raw, "title"),
		Confidence:        models.ClampConfidence(floatField(raw, "confidence")),
		NextAction:        stringField(raw, "nextAction"),
		URLs:              stringsField(raw, "urls"),
		ReminderCount:     intField(raw, "reminderCount"),
		Archived:          boolField(raw, "archived"),
		LastReminderAt:    timeField(raw, "lastReminderAt"),
		ArchivedAt:        timeField(raw, "archivedAt"),
	}

	if c, ok := models.ParseCategory(stringField(raw, "category")); ok {
		n.Category = c
	} else {
		n.Category = models.CategoryUncategorized
	}
	if n.Category == models.CategoryAreas {
		n.Subcategory, _ = models.ParseSubcategory(stringField(raw, "subcategory"))
	}

	n.Status = statusOr(stringField(raw, "status"), models.NoteStatusOpen)
	n.SyncedStatus = statusOr(stringField(raw, "syncedStatus"), models.NoteStatusOpen)

	if n.ReminderCount < 0 {
		n.ReminderCount = 0
	}
	if t := timeField(raw, "createdAt"); t != nil {
		n.CreatedAt = *t
	}
	if n.Title == "" {
		n.Title = models.DeriveTitle(n.Content)
	}
	return n
}

func statusOr(s string, fallback models.NoteStatus) models.NoteStatus {
	if st, ok := models.ParseNoteStatus(s); ok {
		return st
	}
	return fallback
}

func idField(v interface{}) string {
	switch id := v.(type) {
	case string:
		return id
	case primitive.ObjectID:
		return id.Hex()
	case nil:
		return ""
	default:
		return fmt.Sprint(id)
	}
}

func stringField(raw bson.M, key string) string {
	if s, ok := raw[key].(string); ok {
		return s
	}
	return ""
}

func floatField(raw bson.M, key string) float64 {
	switch v := raw[key].(type) {
	case float64:
		return v
	case int32:
		return float64(v)
	case int64:
		return float64(v)
	case primitive.Decimal128:
		f, err := strconv.ParseFloat(v.String(), 64)
		if err == nil {
			return f
		}
	}
	return 0
}

func intField(raw bson.M, key string) int {
	switch v := raw[key].(type) {
	case int32:
		return int(v)
	case int64:
		return int(v)
	case float64:
		return int(v)
	}
	return 0
}

func boolField(raw bson.M, key string) bool {
	b, _ := raw[key].(bool)
	return b
}

func timeField(raw bson.M, key string) *time.Time {
	var t time.Time
	switch v := raw[key].(type) {
	case primitive.DateTime:
		t = v.Time().UTC()
	case time.Time:
		t = v.UTC()
	case string:
		parsed, err := time.Parse(time.RFC3339, v)
		if err != nil {
			return nil
		}
		t = parsed
	default:
		return nil
	}
	return &t
}

// stringsField accepts an array of strings or a single whitespace-joined string
func stringsField(raw bson.M, key string) []string {
	out := []string{}
	switch v := raw[key].(type) {
	case primitive.A:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case []interface{}:
		for _, item := range v {
			if s, ok := item.(string); ok && s != "" {
				out = append(out, s)
			}
		}
	case string:
		out = append(out, strings.Fields(v)...)
	}
	return out
}
