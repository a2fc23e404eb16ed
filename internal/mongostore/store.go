// Package mongostore keeps learned thresholds in MongoDB for deployments
// where several daemons share viewers.
package mongostore

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/danielpatrickdp/trigger-guard/internal/detection"
	"github.com/danielpatrickdp/trigger-guard/internal/threshold"
)

const (
	thresholdsCollection  = "thresholds"
	adjustmentsCollection = "threshold_adjustments"
)

// thresholdDoc is the stored form of one (user, category) threshold.
type thresholdDoc struct {
	UserID        string    `bson:"userId"`
	Category      string    `bson:"category"`
	Current       float64   `bson:"current"`
	Default       float64   `bson:"default"`
	LearningCount int       `bson:"learningCount"`
	Converged     bool      `bson:"converged"`
	RecentSteps   []float64 `bson:"recentSteps,omitempty"`
	UpdatedAt     time.Time `bson:"updatedAt"`
}

type adjustmentDoc struct {
	ID        string    `bson:"_id"`
	UserID    string    `bson:"userId"`
	Category  string    `bson:"category"`
	Old       float64   `bson:"old"`
	New       float64   `bson:"new"`
	Feedback  string    `bson:"feedback"`
	Reasoning string    `bson:"reasoning,omitempty"`
	Converged bool      `bson:"converged"`
	CreatedAt time.Time `bson:"createdAt"`
}

// Store is a MongoDB-backed threshold store.
type Store struct {
	client      *mongo.Client
	thresholds  *mongo.Collection
	adjustments *mongo.Collection
}

// Connect dials uri and returns a Store using database.
func Connect(ctx context.Context, uri, database string) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is empty")
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}
	s := New(client, database)
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

// New wraps an existing client.
func New(client *mongo.Client, database string) *Store {
	db := client.Database(database)
	return &Store{
		client:      client,
		thresholds:  db.Collection(thresholdsCollection),
		adjustments: db.Collection(adjustmentsCollection),
	}
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	_, err := s.thresholds.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "userId", Value: 1}, {Key: "category", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	if err != nil {
		return fmt.Errorf("create threshold index: %w", err)
	}
	_, err = s.adjustments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "userId", Value: 1}, {Key: "createdAt", Value: -1}},
	})
	if err != nil {
		return fmt.Errorf("create adjustment index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

// LoadThresholds returns every stored threshold for userID.
func (s *Store) LoadThresholds(ctx context.Context, userID string) ([]threshold.CategoryThreshold, error) {
	cur, err := s.thresholds.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "category", Value: 1}}))
	if err != nil {
		return nil, fmt.Errorf("find thresholds: %w", err)
	}
	var docs []thresholdDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode thresholds: %w", err)
	}
	out := make([]threshold.CategoryThreshold, 0, len(docs))
	for _, d := range docs {
		if rec, ok := fromThresholdDoc(d); ok {
			out = append(out, rec)
		}
	}
	return out, nil
}

// SaveAdjustment upserts the new threshold state and inserts adj.
func (s *Store) SaveAdjustment(ctx context.Context, userID string, rec threshold.CategoryThreshold, adj threshold.Adjustment) error {
	doc := toThresholdDoc(userID, rec, time.Now().UTC())
	_, err := s.thresholds.ReplaceOne(ctx, thresholdFilter(userID, rec.Category), doc,
		options.Replace().SetUpsert(true))
	if err != nil {
		return fmt.Errorf("upsert threshold %s: %w", rec.Category, err)
	}
	if _, err := s.adjustments.InsertOne(ctx, toAdjustmentDoc(userID, adj)); err != nil {
		return fmt.Errorf("insert adjustment: %w", err)
	}
	return nil
}

// ListAdjustments returns the most recent adjustments for userID, newest
// first.
func (s *Store) ListAdjustments(ctx context.Context, userID string, limit int) ([]threshold.Adjustment, error) {
	cur, err := s.adjustments.Find(ctx, bson.M{"userId": userID},
		options.Find().SetSort(bson.D{{Key: "createdAt", Value: -1}}).SetLimit(int64(limit)))
	if err != nil {
		return nil, fmt.Errorf("find adjustments: %w", err)
	}
	var docs []adjustmentDoc
	if err := cur.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("decode adjustments: %w", err)
	}
	out := make([]threshold.Adjustment, 0, len(docs))
	for _, d := range docs {
		out = append(out, fromAdjustmentDoc(d))
	}
	return out, nil
}

func thresholdFilter(userID string, c detection.Category) bson.D {
	return bson.D{{Key: "userId", Value: userID}, {Key: "category", Value: string(c)}}
}

func toThresholdDoc(userID string, rec threshold.CategoryThreshold, now time.Time) thresholdDoc {
	return thresholdDoc{
		UserID:        userID,
		Category:      string(rec.Category),
		Current:       rec.Current,
		Default:       rec.Default,
		LearningCount: rec.LearningCount,
		Converged:     rec.Converged,
		RecentSteps:   rec.RecentSteps,
		UpdatedAt:     now,
	}
}

func fromThresholdDoc(d thresholdDoc) (threshold.CategoryThreshold, bool) {
	c := detection.Category(d.Category)
	if !c.Valid() {
		return threshold.CategoryThreshold{}, false
	}
	return threshold.CategoryThreshold{
		Category:      c,
		Current:       d.Current,
		Default:       d.Default,
		LearningCount: d.LearningCount,
		Converged:     d.Converged,
		RecentSteps:   d.RecentSteps,
	}, true
}

func toAdjustmentDoc(userID string, adj threshold.Adjustment) adjustmentDoc {
	at := adj.At
	if at.IsZero() {
		at = time.Now().UTC()
	}
	return adjustmentDoc{
		ID:        adj.ID,
		UserID:    userID,
		Category:  string(adj.Category),
		Old:       adj.Old,
		New:       adj.New,
		Feedback:  string(adj.Feedback),
		Reasoning: adj.Reasoning,
		Converged: adj.Converged,
		CreatedAt: at,
	}
}

func fromAdjustmentDoc(d adjustmentDoc) threshold.Adjustment {
	return threshold.Adjustment{
		ID:        d.ID,
		UserID:    d.UserID,
		Category:  detection.Category(d.Category),
		Old:       d.Old,
		New:       d.New,
		Feedback:  threshold.FeedbackKind(d.Feedback),
		Reasoning: d.Reasoning,
		Converged: d.Converged,
		At:        d.CreatedAt,
	}
}

// SaveThresholds upserts every record for userID.
func (s *Store) SaveThresholds(ctx context.Context, userID string, records []threshold.CategoryThreshold) error {
	now := time.Now().UTC()
	for _, rec := range records {
		_, err := s.thresholds.ReplaceOne(ctx, thresholdFilter(userID, rec.Category),
			toThresholdDoc(userID, rec, now), options.Replace().SetUpsert(true))
		if err != nil {
			return fmt.Errorf("upsert threshold %s: %w", rec.Category, err)
		}
	}
	return nil
}
