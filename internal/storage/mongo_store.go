package storage

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"smsinbox/pkg/models"
)

// MongoStore keeps one document per message with _id = message_id, so the
// mandatory _id index is the uniqueness constraint.
type MongoStore struct {
	collection *mongo.Collection
	timeout    time.Duration
}

func NewMongoStore(db *mongo.Database, timeout time.Duration) *MongoStore {
	return &MongoStore{
		collection: db.Collection("messages"),
		timeout:    timeout,
	}
}

func (s *MongoStore) Backend() string {
	return BackendMongo
}

func (s *MongoStore) withTimeout(ctx context.Context) (context.Context, context.CancelFunc) {
	if s.timeout <= 0 {
		return ctx, func() {}
	}
	return context.WithTimeout(ctx, s.timeout)
}

func (s *MongoStore) Insert(ctx context.Context, msg *models.Message) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if _, err := s.collection.InsertOne(ctx, msg); err != nil {
		if mongo.IsDuplicateKeyError(err) {
			return fmt.Errorf("%w: %w", ErrConflict, err)
		}
		return fmt.Errorf("failed to insert message: %w", err)
	}

	return nil
}

func (s *MongoStore) GetByID(ctx context.Context, messageID string) (*models.Message, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	var msg models.Message
	err := s.collection.FindOne(ctx, bson.M{"_id": messageID}).Decode(&msg)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get message: %w", err)
	}

	return &msg, nil
}

func (s *MongoStore) Query(ctx context.Context, filter models.Filter, page models.Pagination) ([]models.Message, int64, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	query := mongoFilter(filter)

	total, err := s.collection.CountDocuments(ctx, query)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to count messages: %w", err)
	}

	opts := options.Find().
		SetSort(bson.D{{Key: "ts", Value: 1}, {Key: "_id", Value: 1}}).
		SetSkip(int64(page.Offset)).
		SetLimit(int64(page.Limit))

	cursor, err := s.collection.Find(ctx, query, opts)
	if err != nil {
		return nil, 0, fmt.Errorf("failed to find messages: %w", err)
	}
	defer cursor.Close(ctx)

	messages := make([]models.Message, 0)
	if err := cursor.All(ctx, &messages); err != nil {
		return nil, 0, fmt.Errorf("failed to decode messages: %w", err)
	}

	return messages, total, nil
}

func mongoFilter(filter models.Filter) bson.M {
	query := bson.M{}
	if filter.From != "" {
		query["from_msisdn"] = filter.From
	}
	if filter.To != "" {
		query["to_msisdn"] = filter.To
	}
	if filter.Since != "" {
		query["ts"] = bson.M{"$gte": filter.Since}
	}
	if filter.Q != "" {
		query["text"] = primitive.Regex{Pattern: regexp.QuoteMeta(filter.Q), Options: "i"}
	}
	return query
}

type mongoStatsFacet struct {
	Summary []struct {
		Total int64   `bson:"total"`
		First *string `bson:"first"`
		Last  *string `bson:"last"`
	} `bson:"summary"`
	Senders []struct {
		Count int64 `bson:"count"`
	} `bson:"senders"`
	Top []models.SenderCount `bson:"top"`
}

func (s *MongoStore) Aggregate(ctx context.Context, topN int) (*models.Stats, error) {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	bySender := bson.D{{Key: "$group", Value: bson.D{
		{Key: "_id", Value: "$from_msisdn"},
		{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
	}}}

	pipeline := mongo.Pipeline{
		{{Key: "$facet", Value: bson.D{
			{Key: "summary", Value: bson.A{
				bson.D{{Key: "$group", Value: bson.D{
					{Key: "_id", Value: nil},
					{Key: "total", Value: bson.D{{Key: "$sum", Value: 1}}},
					{Key: "first", Value: bson.D{{Key: "$min", Value: "$ts"}}},
					{Key: "last", Value: bson.D{{Key: "$max", Value: "$ts"}}},
				}}},
			}},
			{Key: "senders", Value: bson.A{
				bySender,
				bson.D{{Key: "$count", Value: "count"}},
			}},
			{Key: "top", Value: bson.A{
				bySender,
				bson.D{{Key: "$sort", Value: bson.D{{Key: "count", Value: -1}, {Key: "_id", Value: 1}}}},
				bson.D{{Key: "$limit", Value: topN}},
			}},
		}}},
	}

	cursor, err := s.collection.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate messages: %w", err)
	}
	defer cursor.Close(ctx)

	var facets []mongoStatsFacet
	if err := cursor.All(ctx, &facets); err != nil {
		return nil, fmt.Errorf("failed to decode aggregate: %w", err)
	}

	stats := &models.Stats{MessagesPerSender: make([]models.SenderCount, 0, topN)}
	if len(facets) == 0 {
		return stats, nil
	}

	f := facets[0]
	if len(f.Summary) > 0 {
		stats.TotalMessages = f.Summary[0].Total
		stats.FirstMessageTS = f.Summary[0].First
		stats.LastMessageTS = f.Summary[0].Last
	}
	if len(f.Senders) > 0 {
		stats.SendersCount = f.Senders[0].Count
	}
	stats.MessagesPerSender = append(stats.MessagesPerSender, f.Top...)

	return stats, nil
}

func (s *MongoStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx)
	defer cancel()

	if err := s.collection.Database().Client().Ping(ctx, nil); err != nil {
		return fmt.Errorf("failed to ping mongodb: %w", err)
	}

	err := s.collection.FindOne(ctx, bson.M{}, options.FindOne().SetProjection(bson.M{"_id": 1})).Err()
	if err != nil && !errors.Is(err, mongo.ErrNoDocuments) {
		return fmt.Errorf("failed to probe messages collection: %w", err)
	}

	return nil
}

func (s *MongoStore) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return s.collection.Database().Client().Disconnect(ctx)
}
