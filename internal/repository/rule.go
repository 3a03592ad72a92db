package repository

import (
	"context"
	"errors"
	"time"

	"ratelimit-service/pkg/ratelimit"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
)

var ErrRuleNotFound = errors.New("rule not found")

// RuleRepository persists rate limit rules and access list entries. It is
// the durable side of the rule management surface; the in-memory table the
// check path reads is refreshed by the service layer after every write here.
type RuleRepository struct {
	rules  *mongo.Collection
	access *mongo.Collection
}

func NewRuleRepository(db *mongo.Database) *RuleRepository {
	return &RuleRepository{
		rules:  db.Collection("rate_limit_rules"),
		access: db.Collection("access_entries"),
	}
}

func (r *RuleRepository) Create(rule *ratelimit.Rule) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.rules.InsertOne(ctx, rule)
	return err
}

func (r *RuleRepository) Update(rule *ratelimit.Rule) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := r.rules.ReplaceOne(ctx, bson.M{"_id": rule.ID}, rule)
	if err != nil {
		return err
	}
	if result.MatchedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepository) Delete(id string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	result, err := r.rules.DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return ErrRuleNotFound
	}
	return nil
}

func (r *RuleRepository) FindByID(id string) (*ratelimit.Rule, error) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	var rule ratelimit.Rule
	err := r.rules.FindOne(ctx, bson.M{"_id": id}).Decode(&rule)
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, ErrRuleNotFound
		}
		return nil, err
	}
	return &rule, nil
}

func (r *RuleRepository) FindAll(ctx context.Context) ([]ratelimit.Rule, error) {
	opts := options.Find().SetSort(bson.D{{Key: "priority", Value: 1}})
	cursor, err := r.rules.Find(ctx, bson.M{}, opts)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var rules []ratelimit.Rule
	if err := cursor.All(ctx, &rules); err != nil {
		return nil, err
	}
	return rules, nil
}

func (r *RuleRepository) AddAccessEntry(entry *ratelimit.AccessEntry) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	filter := bson.M{
		"identifier":      entry.Identifier,
		"identifier_type": entry.IdentifierType,
		"list":            entry.List,
	}
	update := bson.M{"$set": entry}

	_, err := r.access.UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
	return err
}

func (r *RuleRepository) RemoveAccessEntry(identifier string, idType ratelimit.IdentifierType, list ratelimit.AccessList) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	_, err := r.access.DeleteOne(ctx, bson.M{
		"identifier":      identifier,
		"identifier_type": idType,
		"list":            list,
	})
	return err
}

func (r *RuleRepository) FindAccessEntries(ctx context.Context) ([]ratelimit.AccessEntry, error) {
	cursor, err := r.access.Find(ctx, bson.M{})
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var entries []ratelimit.AccessEntry
	if err := cursor.All(ctx, &entries); err != nil {
		return nil, err
	}
	return entries, nil
}
