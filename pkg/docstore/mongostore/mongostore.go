// Package mongostore keeps one MongoDB collection per subreddit, named
// <subreddit>_history, plus a crawl_state collection of cursors.
package mongostore

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"redditcrawler/pkg/checkpoint"
	"redditcrawler/pkg/docstore"
	"redditcrawler/pkg/logger"
	"redditcrawler/pkg/pushshift"
)

// StateCollection holds one document per subreddit keyed by name
const StateCollection = "crawl_state"

// Store implements docstore.Store on MongoDB
type Store struct {
	client  *mongo.Client
	db      *mongo.Database
	logger  logger.Logger
	indexed map[string]bool
}

var _ docstore.Store = (*Store)(nil)

type stateDoc struct {
	Subreddit string    `bson:"_id"`
	Status    string    `bson:"status"`
	Cursor    int64     `bson:"cursor"`
	UpdatedAt time.Time `bson:"updated_at"`
}

// New connects to uri and uses the given database
func New(ctx context.Context, uri, database string, log logger.Logger) (*Store, error) {
	if log == nil {
		log = logger.NewNopLogger()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(uri))
	if err != nil {
		return nil, &docstore.StoreError{Op: "connect", Err: err}
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		_ = client.Disconnect(context.Background())
		return nil, &docstore.StoreError{Op: "ping", Err: err}
	}
	return &Store{
		client:  client,
		db:      client.Database(database),
		logger:  logger.ForComponent(log, "mongo"),
		indexed: make(map[string]bool),
	}, nil
}

func (s *Store) collection(subreddit string) *mongo.Collection {
	return s.db.Collection(docstore.CollectionName(subreddit))
}

// ensureIndex creates the unique id index the upserts filter on
func (s *Store) ensureIndex(ctx context.Context, subreddit string) error {
	if s.indexed[subreddit] {
		return nil
	}
	_, err := s.collection(subreddit).Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys:    bson.D{{Key: "id", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	switch {
	case err == nil:
	case mongo.IsDuplicateKeyError(err):
		// collections written by plain inserts may already hold duplicate
		// ids; upserts still work, they replace the first match
		s.logger.WarnWithFields("collection has duplicate ids, continuing without the unique index", map[string]interface{}{
			"collection": docstore.CollectionName(subreddit),
			"error":      err.Error(),
		})
	default:
		return &docstore.StoreError{Op: "create_index", Err: err}
	}
	s.indexed[subreddit] = true
	return nil
}

// UpsertSubmissions replaces or inserts every submission with one ordered
// bulk write keyed by id.
func (s *Store) UpsertSubmissions(ctx context.Context, subreddit string, subs []pushshift.Submission) error {
	if len(subs) == 0 {
		return nil
	}
	if err := s.ensureIndex(ctx, subreddit); err != nil {
		return err
	}

	models := make([]mongo.WriteModel, 0, len(subs))
	for _, sub := range subs {
		models = append(models, mongo.NewReplaceOneModel().
			SetFilter(bson.M{"id": sub.ID}).
			SetReplacement(sub.Document()).
			SetUpsert(true))
	}

	res, err := s.collection(subreddit).BulkWrite(ctx, models, options.BulkWrite().SetOrdered(true))
	if err != nil {
		return &docstore.StoreError{Op: "bulk_upsert", Err: err}
	}
	s.logger.DebugWithFields("bulk upsert applied", map[string]interface{}{
		"collection": docstore.CollectionName(subreddit),
		"upserted":   res.UpsertedCount,
		"modified":   res.ModifiedCount,
	})
	return nil
}

// Scan iterates the collection in natural order with a cursor that does not
// time out, since backfilling a large collection takes hours.
func (s *Store) Scan(ctx context.Context, subreddit string, skip int, fn func(pushshift.Submission) error) error {
	opts := options.Find().SetNoCursorTimeout(true)
	if skip > 0 {
		opts.SetSkip(int64(skip))
	}
	cursor, err := s.collection(subreddit).Find(ctx, bson.D{}, opts)
	if err != nil {
		return &docstore.StoreError{Op: "find", Err: err}
	}
	defer cursor.Close(context.Background())

	for cursor.Next(ctx) {
		var doc bson.M
		if err := cursor.Decode(&doc); err != nil {
			return &docstore.StoreError{Op: "decode_submission", Err: err}
		}
		sub, err := decodeSubmission(doc)
		if err != nil {
			return &docstore.StoreError{Op: "decode_submission", Err: err}
		}
		if err := fn(sub); err != nil {
			if errors.Is(err, docstore.ErrStopScan) {
				return nil
			}
			return err
		}
	}
	if err := cursor.Err(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return ctxErr
		}
		return &docstore.StoreError{Op: "iterate", Err: err}
	}
	return nil
}

// decodeSubmission goes through relaxed extended JSON so nested documents
// and numbers land in the same shapes the API decoder produces.
func decodeSubmission(doc bson.M) (pushshift.Submission, error) {
	delete(doc, "_id")
	data, err := bson.MarshalExtJSON(doc, false, false)
	if err != nil {
		return pushshift.Submission{}, err
	}
	var sub pushshift.Submission
	if err := json.Unmarshal(data, &sub); err != nil {
		return pushshift.Submission{}, err
	}
	return sub, nil
}

func (s *Store) Count(ctx context.Context, subreddit string) (int64, error) {
	n, err := s.collection(subreddit).CountDocuments(ctx, bson.D{})
	if err != nil {
		return 0, &docstore.StoreError{Op: "count", Err: err}
	}
	return n, nil
}

func (s *Store) Load(ctx context.Context, subreddit string) (checkpoint.State, error) {
	var doc stateDoc
	err := s.db.Collection(StateCollection).FindOne(ctx, bson.M{"_id": subreddit}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return checkpoint.NotStarted(), nil
	}
	if err != nil {
		return checkpoint.State{}, &docstore.StoreError{Op: "load_state", Err: err}
	}
	state := checkpoint.State{Status: checkpoint.Status(doc.Status), Cursor: doc.Cursor}
	if err := state.Validate(); err != nil {
		return checkpoint.State{}, &docstore.StoreError{Op: "load_state", Err: err}
	}
	return state, nil
}

// Save replaces the single crawl_state document of subreddit
func (s *Store) Save(ctx context.Context, subreddit string, state checkpoint.State) error {
	if err := state.Validate(); err != nil {
		return err
	}
	doc := stateDoc{
		Subreddit: subreddit,
		Status:    string(state.Status),
		Cursor:    state.Cursor,
		UpdatedAt: time.Now().UTC(),
	}
	_, err := s.db.Collection(StateCollection).ReplaceOne(ctx,
		bson.M{"_id": subreddit}, doc, options.Replace().SetUpsert(true))
	if err != nil {
		return &docstore.StoreError{Op: "save_state", Err: err}
	}
	return nil
}

func (s *Store) List(ctx context.Context) ([]checkpoint.Entry, error) {
	cursor, err := s.db.Collection(StateCollection).Find(ctx, bson.D{},
		options.Find().SetSort(bson.D{{Key: "_id", Value: 1}}))
	if err != nil {
		return nil, &docstore.StoreError{Op: "list_state", Err: err}
	}
	defer cursor.Close(context.Background())

	var docs []stateDoc
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, &docstore.StoreError{Op: "list_state", Err: err}
	}
	entries := make([]checkpoint.Entry, 0, len(docs))
	for _, d := range docs {
		entries = append(entries, checkpoint.Entry{
			Subreddit: d.Subreddit,
			State:     checkpoint.State{Status: checkpoint.Status(d.Status), Cursor: d.Cursor},
			UpdatedAt: d.UpdatedAt.UTC(),
		})
	}
	return entries, nil
}

func (s *Store) Delete(ctx context.Context, subreddit string) error {
	if _, err := s.db.Collection(StateCollection).DeleteOne(ctx, bson.M{"_id": subreddit}); err != nil {
		return &docstore.StoreError{Op: "delete_state", Err: err}
	}
	return nil
}

// Close disconnects the client
func (s *Store) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := s.client.Disconnect(ctx); err != nil {
		return &docstore.StoreError{Op: "disconnect", Err: err}
	}
	return nil
}

// Drop removes the collection of subreddit and its crawl state
func (s *Store) Drop(ctx context.Context, subreddit string) error {
	if err := s.collection(subreddit).Drop(ctx); err != nil {
		return &docstore.StoreError{Op: "drop", Err: err}
	}
	delete(s.indexed, subreddit)
	return s.Delete(ctx, subreddit)
}
