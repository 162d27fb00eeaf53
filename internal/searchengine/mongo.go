package searchengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"go.mongodb.org/mongo-driver/mongo/readpref"

	"github.com/BradenHooton/directory-search/internal/index"
	"github.com/BradenHooton/directory-search/internal/models"
)

const mongoDuplicateKey = 11000

// MongoEngine stores each index generation as a collection
type MongoEngine struct {
	client   *mongo.Client
	database *mongo.Database
}

// NewMongoEngine connects to MongoDB and verifies the connection.
func NewMongoEngine(ctx context.Context, uri, dbName string) (*MongoEngine, error) {
	ctx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()

	clientOptions := options.Client().
		ApplyURI(uri).
		SetMaxPoolSize(50).
		SetMinPoolSize(2).
		SetMaxConnIdleTime(30 * time.Second).
		SetServerSelectionTimeout(5 * time.Second).
		SetConnectTimeout(10 * time.Second)

	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}
	if err := client.Ping(ctx, readpref.Primary()); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	return &MongoEngine{client: client, database: client.Database(dbName)}, nil
}

func (e *MongoEngine) CreateIndex(ctx context.Context, name string, structure models.IndexStructure) error {
	if err := e.database.CreateCollection(ctx, name); err != nil {
		var cmdErr mongo.CommandError
		if errors.As(err, &cmdErr) && cmdErr.Name == "NamespaceExists" {
			return fmt.Errorf("index %s: %w", name, models.ErrConflict)
		}
		return fmt.Errorf("create collection: %w", err)
	}

	var indexModels []mongo.IndexModel
	for _, f := range structure {
		if f.Key || !(f.Filterable || f.Sortable) {
			continue
		}
		indexModels = append(indexModels, mongo.IndexModel{Keys: bson.D{{Key: f.Name, Value: 1}}})
	}
	if len(indexModels) == 0 {
		return nil
	}
	if _, err := e.database.Collection(name).Indexes().CreateMany(ctx, indexModels); err != nil {
		return fmt.Errorf("create collection indexes: %w", err)
	}
	return nil
}

func (e *MongoEngine) IndexDocuments(ctx context.Context, name string, actions []index.IndexAction) (*index.BatchResult, error) {
	writes := make([]mongo.WriteModel, len(actions))
	for i, a := range actions {
		if a.Action == index.ActionDelete {
			writes[i] = mongo.NewDeleteOneModel().SetFilter(bson.M{"_id": a.Key})
			continue
		}
		doc := bson.M{}
		for k, v := range a.Document {
			doc[k] = v
		}
		doc["_id"] = a.Key
		writes[i] = mongo.NewReplaceOneModel().
			SetFilter(bson.M{"_id": a.Key}).
			SetReplacement(doc).
			SetUpsert(true)
	}

	_, err := e.database.Collection(name).BulkWrite(ctx, writes, options.BulkWrite().SetOrdered(false))
	return bulkResult(actions, err)
}

// bulkResult maps a BulkWrite outcome onto per-document results.
func bulkResult(actions []index.IndexAction, err error) (*index.BatchResult, error) {
	results := make([]index.DocumentResult, len(actions))
	for i, a := range actions {
		results[i] = index.DocumentResult{Key: a.Key, Succeeded: true, StatusCode: http.StatusOK}
	}
	if err == nil {
		return &index.BatchResult{StatusCode: http.StatusOK, Results: results}, nil
	}

	var bwe mongo.BulkWriteException
	if !errors.As(err, &bwe) {
		return nil, fmt.Errorf("bulk write: %w", err)
	}

	for _, we := range bwe.WriteErrors {
		if we.Index < 0 || we.Index >= len(results) {
			continue
		}
		code := http.StatusBadRequest
		if we.Code == mongoDuplicateKey {
			code = http.StatusConflict
		}
		results[we.Index] = index.DocumentResult{
			Key:          actions[we.Index].Key,
			StatusCode:   code,
			ErrorMessage: we.Message,
		}
	}
	if bwe.WriteConcernError != nil && len(bwe.WriteErrors) == 0 {
		for i := range results {
			results[i].Succeeded = false
			results[i].StatusCode = http.StatusServiceUnavailable
			results[i].ErrorMessage = bwe.WriteConcernError.Message
		}
	}
	return &index.BatchResult{StatusCode: index.StatusPartialSuccess, Results: results}, nil
}

func (e *MongoEngine) Query(ctx context.Context, name string, q index.Query) (*index.QueryResult, error) {
	coll := e.database.Collection(name)
	filter := mongoFilter(q)

	total, err := coll.CountDocuments(ctx, filter)
	if err != nil {
		return nil, fmt.Errorf("count documents: %w", err)
	}

	findOptions := options.Find().SetSkip(int64(q.Skip)).SetLimit(int64(q.Top))
	if q.SortBy != "" {
		dir := 1
		if !q.SortAscending {
			dir = -1
		}
		findOptions.SetSort(bson.D{{Key: q.SortBy, Value: dir}, {Key: "_id", Value: 1}})
	}

	cursor, err := coll.Find(ctx, filter, findOptions)
	if err != nil {
		return nil, fmt.Errorf("find documents: %w", err)
	}
	var raw []bson.M
	if err := cursor.All(ctx, &raw); err != nil {
		return nil, fmt.Errorf("decode documents: %w", err)
	}

	matches := make([]models.Document, len(raw))
	for i, r := range raw {
		matches[i] = fromBSON(r)
	}
	return &index.QueryResult{Matches: matches, TotalCount: int(total)}, nil
}

func mongoFilter(q index.Query) bson.M {
	and := bson.A{}

	if q.Criteria != "" && q.Criteria != "*" && len(q.SearchFields) > 0 {
		pattern := wildcardRegex(q.Criteria)
		or := bson.A{}
		for _, f := range q.SearchFields {
			or = append(or, bson.M{f: primitive.Regex{Pattern: pattern, Options: "i"}})
		}
		and = append(and, bson.M{"$or": or})
	}

	for _, cond := range q.Filter {
		or := bson.A{}
		for _, c := range cond {
			or = append(or, clauseFilter(c))
		}
		and = append(and, bson.M{"$or": or})
	}

	if len(and) == 0 {
		return bson.M{}
	}
	return bson.M{"$and": and}
}

func clauseFilter(c index.Clause) bson.M {
	var value any = c.Str
	if c.Type == models.FieldTypeInt64 {
		value = c.Int
	}
	switch c.Op {
	case index.OpAnyOf:
		return bson.M{c.Field: bson.M{"$in": c.Values}}
	case index.OpNotEqual:
		return bson.M{c.Field: bson.M{"$ne": value}}
	case index.OpGreaterOrEqual:
		return bson.M{c.Field: bson.M{"$gte": value}}
	default:
		return bson.M{c.Field: value}
	}
}

// wildcardRegex converts search criteria into a regex. Criteria without
// wildcards match anywhere in the value.
func wildcardRegex(criteria string) string {
	if !strings.ContainsAny(criteria, "*?") {
		return regexp.QuoteMeta(criteria)
	}
	quoted := regexp.QuoteMeta(criteria)
	quoted = strings.ReplaceAll(quoted, `\*`, ".*")
	quoted = strings.ReplaceAll(quoted, `\?`, ".")
	return "^" + quoted + "$"
}

func fromBSON(r bson.M) models.Document {
	doc := make(models.Document, len(r))
	for k, v := range r {
		if k == "_id" {
			continue
		}
		switch tv := v.(type) {
		case primitive.A:
			doc[k] = []any(tv)
		case primitive.DateTime:
			doc[k] = tv.Time().UTC()
		default:
			doc[k] = v
		}
	}
	return doc
}

func (e *MongoEngine) DeleteDocument(ctx context.Context, name, key string) error {
	res, err := e.database.Collection(name).DeleteOne(ctx, bson.M{"_id": key})
	if err != nil {
		return fmt.Errorf("delete document: %w", err)
	}
	if res.DeletedCount == 0 {
		return models.ErrNotFound
	}
	return nil
}

func (e *MongoEngine) ListIndexNames(ctx context.Context) ([]string, error) {
	names, err := e.database.ListCollectionNames(ctx, bson.D{})
	if err != nil {
		return nil, fmt.Errorf("list collections: %w", err)
	}
	return names, nil
}

func (e *MongoEngine) DeleteIndex(ctx context.Context, name string) error {
	return e.database.Collection(name).Drop(ctx)
}

func (e *MongoEngine) Close(ctx context.Context) error {
	return e.client.Disconnect(ctx)
}
