package migrations

import (
	"context"
	"fmt"
	"strings"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

// EnsureMongoCollection creates the secondary indexes of the messages
// collection. The unique _id index always exists and carries message_id.
func EnsureMongoCollection(ctx context.Context, db *mongo.Database) error {
	collection := db.Collection("messages")

	indexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "ts", Value: 1}, {Key: "_id", Value: 1}},
			Options: options.Index().SetName("idx_messages_ts_id"),
		},
		{
			Keys:    bson.D{{Key: "from_msisdn", Value: 1}},
			Options: options.Index().SetName("idx_messages_from"),
		},
		{
			Keys:    bson.D{{Key: "to_msisdn", Value: 1}},
			Options: options.Index().SetName("idx_messages_to"),
		},
	}

	_, err := collection.Indexes().CreateMany(ctx, indexes)
	if err != nil && !strings.Contains(err.Error(), "already exists") {
		return fmt.Errorf("failed to create indexes: %w", err)
	}

	return nil
}
