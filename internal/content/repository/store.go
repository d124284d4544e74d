package repository

import (
	"context"
	"errors"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/qabase/qabase/backend/go-services/internal/content"
)

var (
	ErrNotFound = errors.New("document not found")
)

// Collection names.
const (
	Contents      = "contents"
	Passages      = "passages"
	Categories    = "categories"
	Tags          = "tags"
	MessageTypes  = "messagetypes"
	OriginalPosts = "originalposts"
	TagSections   = "tagsections"
)

// AllCollections lists every collection in reporting order.
var AllCollections = []string{Contents, Passages, Categories, Tags, MessageTypes, OriginalPosts, TagSections}

// KeyField names the natural key of a content collection.
type KeyField string

const (
	KeyTitle KeyField = "title"
	KeyIndex KeyField = "index"
)

// Value extracts the key from r. A nil index yields nil.
func (k KeyField) Value(r *content.Record) interface{} {
	if k == KeyIndex {
		if r.Index == nil {
			return nil
		}
		return *r.Index
	}
	return r.Title
}

// Outcome of a single upsert.
type Outcome int

const (
	Inserted Outcome = iota + 1
	Updated
)

func (o Outcome) String() string {
	switch o {
	case Inserted:
		return "inserted"
	case Updated:
		return "updated"
	}
	return "unknown"
}

// DuplicateGroup is a set of records sharing one field value. IDs are
// ordered by creation time, oldest first.
type DuplicateGroup struct {
	Key string
	IDs []primitive.ObjectID
}

// RecordStore persists content records keyed by a natural key.
type RecordStore interface {
	UpsertRecord(ctx context.Context, coll string, key KeyField, rec *content.Record) (Outcome, error)
	FindRecord(ctx context.Context, coll string, key KeyField, value interface{}) (*content.Record, error)
	CreateRecord(ctx context.Context, coll string, rec *content.Record) (primitive.ObjectID, error)
	GetRecord(ctx context.Context, coll string, id primitive.ObjectID) (*content.Record, error)
	ListRecords(ctx context.Context, coll string, f content.Filter) ([]*content.Record, error)
	UpdateRecord(ctx context.Context, coll string, id primitive.ObjectID, rec *content.Record) error
	DeleteRecord(ctx context.Context, coll string, id primitive.ObjectID) error
	DeleteRecordsByID(ctx context.Context, coll string, ids []primitive.ObjectID) (int64, error)
	GroupDuplicates(ctx context.Context, coll string, field string) ([]DuplicateGroup, error)
	Count(ctx context.Context, coll string) (int64, error)
}

// ReferenceStore persists the distinct-value reference collections. Every
// write is a single atomic upsert by natural key.
type ReferenceStore interface {
	UpsertCategory(ctx context.Context, name string) error
	UpsertTag(ctx context.Context, tag string) error
	UpsertMessageType(ctx context.Context, messageType string) error
	UpsertOriginalPost(ctx context.Context, url, title string) error
	// EnsureTagSection creates the assignment with section when absent and
	// leaves an existing one untouched. created reports whether it inserted.
	EnsureTagSection(ctx context.Context, tag, section string) (created bool, err error)
	SetTagSection(ctx context.Context, tag, section string) error

	ListCategories(ctx context.Context) ([]content.Category, error)
	ListTags(ctx context.Context) ([]content.Tag, error)
	ListMessageTypes(ctx context.Context) ([]content.MessageType, error)
	ListOriginalPosts(ctx context.Context) ([]content.OriginalPost, error)
	ListTagSections(ctx context.Context) ([]content.TagSection, error)
	DeleteCategory(ctx context.Context, name string) error
}

// Store is the full persistence collaborator.
type Store interface {
	RecordStore
	ReferenceStore
}
