package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/qabase/qabase/backend/go-services/internal/content"
)

// MongoRepo implements Store on one database, one collection per kind.
type MongoRepo struct {
	db *mongo.Database
}

func NewMongoRepo(db *mongo.Database) *MongoRepo {
	return &MongoRepo{db: db}
}

// EnsureIndexes creates the natural-key indexes. Content titles stay
// non-unique: legacy duplicates must remain storable until the duplicate
// resolver removes them.
func (m *MongoRepo) EnsureIndexes(ctx context.Context) error {
	specs := []struct {
		coll   string
		field  string
		unique bool
	}{
		{Contents, "title", false},
		{Passages, "index", true},
		{Passages, "title", false},
		{Categories, "category", true},
		{Tags, "tag", true},
		{MessageTypes, "messageType", true},
		{OriginalPosts, "url", true},
		{TagSections, "tag", true},
	}
	for _, s := range specs {
		idx := mongo.IndexModel{Keys: bson.D{{Key: s.field, Value: 1}}, Options: options.Index().SetUnique(s.unique)}
		if _, err := m.db.Collection(s.coll).Indexes().CreateOne(ctx, idx); err != nil {
			return fmt.Errorf("create index %s.%s: %w", s.coll, s.field, err)
		}
	}
	return nil
}

// retryOnDuplicate reruns an upsert once when two concurrent upserts raced
// to insert the same unique key; the second attempt matches and updates.
func retryOnDuplicate(fn func() error) error {
	err := fn()
	if err != nil && mongo.IsDuplicateKeyError(err) {
		err = fn()
	}
	return err
}

func recordFields(r *content.Record) bson.M {
	tags := r.Tags
	if tags == nil {
		tags = []string{}
	}
	set := bson.M{
		"title":             r.Title,
		"category":          r.Category,
		"tags":              tags,
		"question":          r.Question,
		"answer":            r.Answer,
		"passage":           r.Passage,
		"author":            r.Author,
		"date":              r.Date,
		"messageType":       r.MessageType,
		"originalPostTitle": r.OriginalPostTitle,
		"originalPostURL":   r.OriginalPostURL,
	}
	if r.Index != nil {
		set["index"] = *r.Index
	}
	return set
}

func (m *MongoRepo) UpsertRecord(ctx context.Context, coll string, key KeyField, rec *content.Record) (Outcome, error) {
	value := key.Value(rec)
	if value == nil || value == "" {
		return 0, fmt.Errorf("upsert %s: empty %s", coll, key)
	}
	now := time.Now().UTC()
	set := recordFields(rec)
	delete(set, string(key))
	set["updatedAt"] = now
	update := bson.M{"$set": set, "$setOnInsert": bson.M{"createdAt": now}}
	filter := bson.M{string(key): value}

	var res *mongo.UpdateResult
	err := retryOnDuplicate(func() error {
		var err error
		res, err = m.db.Collection(coll).UpdateOne(ctx, filter, update, options.Update().SetUpsert(true))
		return err
	})
	if err != nil {
		return 0, err
	}
	rec.UpdatedAt = now
	if res.UpsertedCount > 0 {
		if id, ok := res.UpsertedID.(primitive.ObjectID); ok {
			rec.ID = id
		}
		rec.CreatedAt = now
		return Inserted, nil
	}
	return Updated, nil
}

func (m *MongoRepo) FindRecord(ctx context.Context, coll string, key KeyField, value interface{}) (*content.Record, error) {
	var r content.Record
	err := m.db.Collection(coll).FindOne(ctx, bson.M{string(key): value}).Decode(&r)
	if err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (m *MongoRepo) CreateRecord(ctx context.Context, coll string, rec *content.Record) (primitive.ObjectID, error) {
	now := time.Now().UTC()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	if rec.Tags == nil {
		rec.Tags = []string{}
	}
	if _, err := m.db.Collection(coll).InsertOne(ctx, rec); err != nil {
		return primitive.NilObjectID, err
	}
	return rec.ID, nil
}

func (m *MongoRepo) GetRecord(ctx context.Context, coll string, id primitive.ObjectID) (*content.Record, error) {
	var r content.Record
	if err := m.db.Collection(coll).FindOne(ctx, bson.M{"_id": id}).Decode(&r); err != nil {
		if errors.Is(err, mongo.ErrNoDocuments) {
			return nil, ErrNotFound
		}
		return nil, err
	}
	return &r, nil
}

func (m *MongoRepo) ListRecords(ctx context.Context, coll string, f content.Filter) ([]*content.Record, error) {
	q := bson.M{}
	if f.Category != "" {
		q["category"] = f.Category
	}
	if f.MessageType != "" {
		q["messageType"] = f.MessageType
	}
	if f.Tag != "" {
		q["tags"] = f.Tag
	}
	cur, err := m.db.Collection(coll).Find(ctx, q, options.Find().SetSort(bson.D{{Key: "title", Value: 1}}))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []*content.Record{}
	for cur.Next(ctx) {
		var r content.Record
		if err := cur.Decode(&r); err != nil {
			return nil, err
		}
		out = append(out, &r)
	}
	return out, cur.Err()
}

func (m *MongoRepo) UpdateRecord(ctx context.Context, coll string, id primitive.ObjectID, rec *content.Record) error {
	set := recordFields(rec)
	set["updatedAt"] = time.Now().UTC()
	res, err := m.db.Collection(coll).UpdateOne(ctx, bson.M{"_id": id}, bson.M{"$set": set})
	if err != nil {
		return err
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) DeleteRecord(ctx context.Context, coll string, id primitive.ObjectID) error {
	res, err := m.db.Collection(coll).DeleteOne(ctx, bson.M{"_id": id})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MongoRepo) DeleteRecordsByID(ctx context.Context, coll string, ids []primitive.ObjectID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res, err := m.db.Collection(coll).DeleteMany(ctx, bson.M{"_id": bson.M{"$in": ids}})
	if err != nil {
		return 0, err
	}
	return res.DeletedCount, nil
}

// GroupDuplicates groups by field and returns only groups with more than
// one member. The leading $sort makes $push collect ids oldest first.
func (m *MongoRepo) GroupDuplicates(ctx context.Context, coll string, field string) ([]DuplicateGroup, error) {
	pipeline := mongo.Pipeline{
		{{Key: "$sort", Value: bson.D{{Key: "createdAt", Value: 1}, {Key: "_id", Value: 1}}}},
		{{Key: "$group", Value: bson.D{
			{Key: "_id", Value: "$" + field},
			{Key: "ids", Value: bson.D{{Key: "$push", Value: "$_id"}}},
			{Key: "count", Value: bson.D{{Key: "$sum", Value: 1}}},
		}}},
		{{Key: "$match", Value: bson.D{{Key: "count", Value: bson.D{{Key: "$gt", Value: 1}}}}}},
		{{Key: "$sort", Value: bson.D{{Key: "_id", Value: 1}}}},
	}
	cur, err := m.db.Collection(coll).Aggregate(ctx, pipeline, options.Aggregate().SetAllowDiskUse(true))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []DuplicateGroup{}
	for cur.Next(ctx) {
		var row struct {
			Key interface{}          `bson:"_id"`
			IDs []primitive.ObjectID `bson:"ids"`
		}
		if err := cur.Decode(&row); err != nil {
			return nil, err
		}
		out = append(out, DuplicateGroup{Key: fmt.Sprint(row.Key), IDs: row.IDs})
	}
	return out, cur.Err()
}

func (m *MongoRepo) Count(ctx context.Context, coll string) (int64, error) {
	return m.db.Collection(coll).CountDocuments(ctx, bson.M{})
}

// upsertDistinct inserts {field: value} when absent and leaves an existing
// document unchanged.
func (m *MongoRepo) upsertDistinct(ctx context.Context, coll, field, value string) error {
	if value == "" {
		return fmt.Errorf("upsert %s: empty %s", coll, field)
	}
	update := bson.M{"$setOnInsert": bson.M{"createdAt": time.Now().UTC()}}
	return retryOnDuplicate(func() error {
		_, err := m.db.Collection(coll).UpdateOne(ctx, bson.M{field: value}, update, options.Update().SetUpsert(true))
		return err
	})
}

func (m *MongoRepo) UpsertCategory(ctx context.Context, name string) error {
	return m.upsertDistinct(ctx, Categories, "category", name)
}

func (m *MongoRepo) UpsertTag(ctx context.Context, tag string) error {
	return m.upsertDistinct(ctx, Tags, "tag", tag)
}

func (m *MongoRepo) UpsertMessageType(ctx context.Context, messageType string) error {
	return m.upsertDistinct(ctx, MessageTypes, "messageType", messageType)
}

func (m *MongoRepo) UpsertOriginalPost(ctx context.Context, url, title string) error {
	if url == "" {
		return fmt.Errorf("upsert %s: empty url", OriginalPosts)
	}
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"title": title, "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	return retryOnDuplicate(func() error {
		_, err := m.db.Collection(OriginalPosts).UpdateOne(ctx, bson.M{"url": url}, update, options.Update().SetUpsert(true))
		return err
	})
}

func (m *MongoRepo) EnsureTagSection(ctx context.Context, tag, section string) (bool, error) {
	now := time.Now().UTC()
	update := bson.M{"$setOnInsert": bson.M{"section": section, "createdAt": now, "updatedAt": now}}
	var created bool
	err := retryOnDuplicate(func() error {
		res, err := m.db.Collection(TagSections).UpdateOne(ctx, bson.M{"tag": tag}, update, options.Update().SetUpsert(true))
		if err != nil {
			return err
		}
		created = res.UpsertedCount > 0
		return nil
	})
	return created, err
}

func (m *MongoRepo) SetTagSection(ctx context.Context, tag, section string) error {
	now := time.Now().UTC()
	update := bson.M{
		"$set":         bson.M{"section": section, "updatedAt": now},
		"$setOnInsert": bson.M{"createdAt": now},
	}
	return retryOnDuplicate(func() error {
		_, err := m.db.Collection(TagSections).UpdateOne(ctx, bson.M{"tag": tag}, update, options.Update().SetUpsert(true))
		return err
	})
}

func findAll[T any](ctx context.Context, col *mongo.Collection, sort bson.D) ([]T, error) {
	cur, err := col.Find(ctx, bson.M{}, options.Find().SetSort(sort))
	if err != nil {
		return nil, err
	}
	defer cur.Close(ctx)
	out := []T{}
	if err := cur.All(ctx, &out); err != nil {
		return nil, err
	}
	return out, nil
}

func (m *MongoRepo) ListCategories(ctx context.Context) ([]content.Category, error) {
	return findAll[content.Category](ctx, m.db.Collection(Categories), bson.D{{Key: "category", Value: 1}})
}

func (m *MongoRepo) ListTags(ctx context.Context) ([]content.Tag, error) {
	return findAll[content.Tag](ctx, m.db.Collection(Tags), bson.D{{Key: "tag", Value: 1}})
}

func (m *MongoRepo) ListMessageTypes(ctx context.Context) ([]content.MessageType, error) {
	return findAll[content.MessageType](ctx, m.db.Collection(MessageTypes), bson.D{{Key: "messageType", Value: 1}})
}

func (m *MongoRepo) ListOriginalPosts(ctx context.Context) ([]content.OriginalPost, error) {
	return findAll[content.OriginalPost](ctx, m.db.Collection(OriginalPosts), bson.D{{Key: "url", Value: 1}})
}

func (m *MongoRepo) ListTagSections(ctx context.Context) ([]content.TagSection, error) {
	return findAll[content.TagSection](ctx, m.db.Collection(TagSections), bson.D{{Key: "section", Value: 1}, {Key: "tag", Value: 1}})
}

func (m *MongoRepo) DeleteCategory(ctx context.Context, name string) error {
	res, err := m.db.Collection(Categories).DeleteOne(ctx, bson.M{"category": name})
	if err != nil {
		return err
	}
	if res.DeletedCount == 0 {
		return ErrNotFound
	}
	return nil
}
