package database

import (
	"context"
	"fmt"
	"log"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/x/mongo/driver/connstring"
)

// Connect establishes the MongoDB connection used by the rule repository.
func Connect(mongoURI string) (*mongo.Database, error) {
	cs, err := connstring.ParseAndValidate(mongoURI)
	if err != nil {
		return nil, fmt.Errorf("invalid MongoDB URI: %w", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(mongoURI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := cs.Database
	if dbName == "" {
		dbName = "ratelimit"
	}
	db := client.Database(dbName)

	if err := createIndexes(db); err != nil {
		log.Printf("Warning: failed to create indexes: %v", err)
	}

	return db, nil
}

func createIndexes(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	rules := db.Collection("rate_limit_rules")
	ruleIndexes := []mongo.IndexModel{
		{
			Keys:    bson.D{{Key: "name", Value: 1}},
			Options: options.Index().SetUnique(true),
		},
		{
			Keys: bson.D{{Key: "identifier_type", Value: 1}, {Key: "enabled", Value: 1}},
		},
		{
			Keys: bson.D{{Key: "priority", Value: 1}},
		},
	}
	if _, err := rules.Indexes().CreateMany(ctx, ruleIndexes); err != nil {
		return fmt.Errorf("rule indexes: %w", err)
	}

	access := db.Collection("access_entries")
	accessIndexes := []mongo.IndexModel{
		{
			Keys: bson.D{
				{Key: "identifier", Value: 1},
				{Key: "identifier_type", Value: 1},
				{Key: "list", Value: 1},
			},
			Options: options.Index().SetUnique(true),
		},
	}
	if _, err := access.Indexes().CreateMany(ctx, accessIndexes); err != nil {
		return fmt.Errorf("access entry indexes: %w", err)
	}

	return nil
}

// Disconnect closes the MongoDB connection.
func Disconnect(client *mongo.Client) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := client.Disconnect(ctx); err != nil {
		return fmt.Errorf("failed to disconnect from MongoDB: %w", err)
	}
	return nil
}

// Health checks the database connection.
func Health(db *mongo.Database) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	return db.Client().Ping(ctx, nil)
}
