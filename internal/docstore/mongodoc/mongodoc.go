// Package mongodoc implements docstore.Store on MongoDB.
package mongodoc

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/graaaaa/eventhub/internal/docstore"
	"github.com/graaaaa/eventhub/internal/event"
)

// ConnectTimeout bounds the initial connection and index setup.
const ConnectTimeout = 10 * time.Second

// Store is a MongoDB-backed document store.
type Store struct {
	client     *mongo.Client
	events     *mongo.Collection
	statistics *mongo.Collection
	logger     *slog.Logger
}

var _ docstore.Store = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithLogger sets the logger used for skipped documents.
func WithLogger(l *slog.Logger) Option {
	return func(s *Store) {
		if l != nil {
			s.logger = l
		}
	}
}

// Open connects to uri and uses the named database.
// An empty database selects docstore.DefaultDatabase.
func Open(ctx context.Context, uri, database string, opts ...Option) (*Store, error) {
	if uri == "" {
		return nil, errors.New("mongo uri is required")
	}
	if database == "" {
		database = docstore.DefaultDatabase
	}

	ctx, cancel := context.WithTimeout(ctx, ConnectTimeout)
	defer cancel()

	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, fmt.Errorf("connect mongo: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		client.Disconnect(context.Background())
		return nil, fmt.Errorf("ping mongo: %w", err)
	}

	db := client.Database(database)
	s := &Store{
		client:     client,
		events:     db.Collection(docstore.CollectionEvents),
		statistics: db.Collection(docstore.CollectionStatistics),
		logger:     slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	if err := s.ensureIndexes(ctx); err != nil {
		client.Disconnect(context.Background())
		return nil, err
	}
	return s, nil
}

func (s *Store) ensureIndexes(ctx context.Context) error {
	if _, err := s.events.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "source", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create events index: %w", err)
	}
	if _, err := s.statistics.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "year", Value: 1}},
		Options: options.Index().SetUnique(true),
	}); err != nil {
		return fmt.Errorf("create statistics index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), ConnectTimeout)
	defer cancel()
	return s.client.Disconnect(ctx)
}

// Ping checks connectivity to the primary.
func (s *Store) Ping(ctx context.Context) error {
	return s.client.Ping(ctx, readpref.Primary())
}

// UpsertEvent implements docstore.Store.
func (s *Store) UpsertEvent(ctx context.Context, e event.OfficialEvent) (docstore.UpsertResult, error) {
	if strings.TrimSpace(e.SourceURL) == "" {
		return docstore.UpsertResult{}, fmt.Errorf("%w: source", docstore.ErrMissingKey)
	}
	e.ID = ""
	return s.upsert(ctx, s.events, bson.M{"source": e.SourceURL}, e)
}

// GetEvent implements docstore.Store.
func (s *Store) GetEvent(ctx context.Context, id string) (event.OfficialEvent, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return event.OfficialEvent{}, fmt.Errorf("%w: %q", docstore.ErrInvalidID, id)
	}
	var e event.OfficialEvent
	err = s.events.FindOne(ctx, bson.M{"_id": oid}).Decode(&e)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return event.OfficialEvent{}, fmt.Errorf("%w: events/%s", docstore.ErrNotFound, id)
	}
	if err != nil {
		return event.OfficialEvent{}, fmt.Errorf("get event: %w", err)
	}
	return e, nil
}

// ListEvents implements docstore.Store. A document that does not decode is
// logged and left out.
func (s *Store) ListEvents(ctx context.Context) ([]event.OfficialEvent, error) {
	cur, err := s.events.Find(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list events: %w", err)
	}
	defer cur.Close(ctx)

	events := []event.OfficialEvent{}
	for cur.Next(ctx) {
		var e event.OfficialEvent
		if err := cur.Decode(&e); err != nil {
			s.logger.Warn("skipping undecodable event document",
				"id", cur.Current.Lookup("_id").String(), "error", err)
			continue
		}
		events = append(events, e)
	}
	if err := cur.Err(); err != nil {
		return nil, fmt.Errorf("iterate events: %w", err)
	}
	return events, nil
}

// UpsertStatistics implements docstore.Store.
func (s *Store) UpsertStatistics(ctx context.Context, st event.Statistics) (docstore.UpsertResult, error) {
	if st.Year == 0 {
		return docstore.UpsertResult{}, fmt.Errorf("%w: year", docstore.ErrMissingKey)
	}
	return s.upsert(ctx, s.statistics, bson.M{"year": st.Year}, st)
}

// SummarizeStatistics implements docstore.Store.
func (s *Store) SummarizeStatistics(ctx context.Context) ([]event.YearSummary, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "year", Value: 1}}}},
		{{Key: "$project", Value: bson.D{
			{Key: "_id", Value: 0},
			{Key: "year", Value: 1},
			{Key: "total_funding", Value: bson.D{{Key: "$sum", Value: "$gov_contributions.amount_mil"}}},
			{Key: "total_activities", Value: bson.D{{Key: "$sum", Value: "$activities.number"}}},
		}}},
	}
	cur, err := s.statistics.Aggregate(ctx, pipeline)
	if err != nil {
		return nil, fmt.Errorf("aggregate statistics: %w", err)
	}
	out := []event.YearSummary{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, fmt.Errorf("decode statistics: %w", err)
	}
	return out, nil
}

func (s *Store) upsert(ctx context.Context, coll *mongo.Collection, filter bson.M, doc any) (docstore.UpsertResult, error) {
	res, err := coll.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	if mongo.IsDuplicateKeyError(err) {
		// Lost an upsert race on the unique index; the retry takes the update path.
		res, err = coll.UpdateOne(ctx, filter, bson.M{"$set": doc}, options.Update().SetUpsert(true))
	}
	if err != nil {
		return docstore.UpsertResult{}, fmt.Errorf("upsert %s: %w", coll.Name(), err)
	}

	if oid, ok := res.UpsertedID.(primitive.ObjectID); ok {
		return docstore.UpsertResult{ID: oid.Hex(), Inserted: true}, nil
	}

	var existing struct {
		ID primitive.ObjectID `bson:"_id"`
	}
	if err := coll.FindOne(ctx, filter, options.FindOne().SetProjection(bson.M{"_id": 1})).Decode(&existing); err != nil {
		return docstore.UpsertResult{}, fmt.Errorf("read upserted id: %w", err)
	}
	return docstore.UpsertResult{ID: existing.ID.Hex(), Modified: res.ModifiedCount > 0}, nil
}
