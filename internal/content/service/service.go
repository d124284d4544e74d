package service

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/qabase/qabase/backend/go-services/internal/content"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
	"github.com/qabase/qabase/backend/go-services/internal/importer"
	"github.com/qabase/qabase/backend/go-services/pkg/logger"
)

var (
	ErrNotFound = errors.New("not found")
	ErrConflict = errors.New("title already exists")
	ErrInvalid  = errors.New("invalid content")
)

// Input is a content item as the frontend submits it. Tags may be a
// comma-delimited string or an array.
type Input struct {
	Title             string      `json:"title"`
	Category          string      `json:"category"`
	Tags              interface{} `json:"tags"`
	Question          string      `json:"question"`
	Answer            string      `json:"answer"`
	MessageType       string      `json:"messageType"`
	OriginalPostTitle string      `json:"originalPostTitle"`
	OriginalPostURL   string      `json:"originalPostURL"`
}

// raw renders in with the import file's field names so both paths share
// one normalizer.
func (in Input) raw() map[string]interface{} {
	return map[string]interface{}{
		"Title":             in.Title,
		"Category":          in.Category,
		"Tags":              in.Tags,
		"Question":          in.Question,
		"Answer":            in.Answer,
		"messageType":       in.MessageType,
		"originalPostTitle": in.OriginalPostTitle,
		"originalPostURL":   in.OriginalPostURL,
	}
}

// Sections maps a section name to its tags.
type Sections map[string][]string

// Service defines the content business operations used by the handler layer.
type Service interface {
	Create(ctx context.Context, in Input) (*content.Record, error)
	Get(ctx context.Context, id string) (*content.Record, error)
	List(ctx context.Context, f content.Filter) ([]*content.Record, error)
	Update(ctx context.Context, id string, in Input) (*content.Record, error)
	Delete(ctx context.Context, id string) error

	Categories(ctx context.Context) ([]content.Category, error)
	CreateCategory(ctx context.Context, name string) error
	DeleteCategory(ctx context.Context, name string) error
	Tags(ctx context.Context) ([]content.Tag, error)
	Sections(ctx context.Context) (Sections, error)
	AssignSection(ctx context.Context, tag, section string) error
	MessageTypes(ctx context.Context) ([]content.MessageType, error)
	OriginalPosts(ctx context.Context) ([]content.OriginalPost, error)
}

// New returns a Service over the question/answer collection of store.
func New(store repository.Store) Service {
	return &contentService{store: store, schema: importer.QASchema, norm: importer.NewNormalizer(importer.QASchema)}
}

type contentService struct {
	store  repository.Store
	schema *importer.Schema
	norm   *importer.Normalizer
}

func (s *contentService) normalize(in Input) (*content.Record, error) {
	rec, skip := s.norm.Normalize(in.raw(), 0)
	if skip != nil {
		return nil, fmt.Errorf("%w: %s", ErrInvalid, skip.Reason)
	}
	return rec, nil
}

func parseID(id string) (primitive.ObjectID, error) {
	oid, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		return primitive.NilObjectID, ErrNotFound
	}
	return oid, nil
}

func mapErr(err error) error {
	if errors.Is(err, repository.ErrNotFound) {
		return ErrNotFound
	}
	return err
}

func (s *contentService) Create(ctx context.Context, in Input) (*content.Record, error) {
	rec, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if _, err := s.store.FindRecord(ctx, s.schema.Collection, s.schema.Key, rec.Title); err == nil {
		return nil, ErrConflict
	} else if !errors.Is(err, repository.ErrNotFound) {
		return nil, err
	}
	if _, err := s.store.CreateRecord(ctx, s.schema.Collection, rec); err != nil {
		return nil, err
	}
	s.syncReferences(ctx, rec)
	return rec, nil
}

func (s *contentService) Get(ctx context.Context, id string) (*content.Record, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rec, err := s.store.GetRecord(ctx, s.schema.Collection, oid)
	return rec, mapErr(err)
}

func (s *contentService) List(ctx context.Context, f content.Filter) ([]*content.Record, error) {
	return s.store.ListRecords(ctx, s.schema.Collection, f)
}

func (s *contentService) Update(ctx context.Context, id string, in Input) (*content.Record, error) {
	oid, err := parseID(id)
	if err != nil {
		return nil, err
	}
	rec, err := s.normalize(in)
	if err != nil {
		return nil, err
	}
	if other, err := s.store.FindRecord(ctx, s.schema.Collection, s.schema.Key, rec.Title); err == nil && other.ID != oid {
		return nil, ErrConflict
	}
	if err := s.store.UpdateRecord(ctx, s.schema.Collection, oid, rec); err != nil {
		return nil, mapErr(err)
	}
	s.syncReferences(ctx, rec)
	return s.Get(ctx, id)
}

func (s *contentService) Delete(ctx context.Context, id string) error {
	oid, err := parseID(id)
	if err != nil {
		return err
	}
	return mapErr(s.store.DeleteRecord(ctx, s.schema.Collection, oid))
}

// syncReferences keeps the reference collections in step with a single
// edited record, the way an import does for a batch. Failures are logged:
// the record itself is already stored and a later resync repairs them.
func (s *contentService) syncReferences(ctx context.Context, rec *content.Record) {
	warn := func(what string, err error) {
		if err != nil {
			logger.Warnf("reference sync %s for %q: %v", what, rec.Title, err)
		}
	}
	warn("category", s.store.UpsertCategory(ctx, rec.Category))
	for _, t := range rec.Tags {
		warn("tag", s.store.UpsertTag(ctx, t))
		_, err := s.store.EnsureTagSection(ctx, t, content.UnassignedSection)
		warn("tag section", err)
	}
	warn("message type", s.store.UpsertMessageType(ctx, rec.MessageType))
	if rec.OriginalPostURL != "" && rec.OriginalPostURL != content.NotAvailable {
		warn("original post", s.store.UpsertOriginalPost(ctx, rec.OriginalPostURL, rec.OriginalPostTitle))
	}
}

func (s *contentService) Categories(ctx context.Context) ([]content.Category, error) {
	return s.store.ListCategories(ctx)
}

func (s *contentService) CreateCategory(ctx context.Context, name string) error {
	if name == "" {
		return fmt.Errorf("%w: empty category", ErrInvalid)
	}
	return s.store.UpsertCategory(ctx, name)
}

func (s *contentService) DeleteCategory(ctx context.Context, name string) error {
	return mapErr(s.store.DeleteCategory(ctx, name))
}

func (s *contentService) Tags(ctx context.Context) ([]content.Tag, error) {
	return s.store.ListTags(ctx)
}

// Sections groups every known tag by section. Tags without an assignment
// are listed as Unassigned.
func (s *contentService) Sections(ctx context.Context) (Sections, error) {
	assigned, err := s.store.ListTagSections(ctx)
	if err != nil {
		return nil, err
	}
	tags, err := s.store.ListTags(ctx)
	if err != nil {
		return nil, err
	}
	out := Sections{}
	seen := make(map[string]bool, len(assigned))
	for _, ts := range assigned {
		out[ts.Section] = append(out[ts.Section], ts.Tag)
		seen[ts.Tag] = true
	}
	for _, t := range tags {
		if !seen[t.Tag] {
			out[content.UnassignedSection] = append(out[content.UnassignedSection], t.Tag)
		}
	}
	return out, nil
}

func (s *contentService) AssignSection(ctx context.Context, tag, section string) error {
	if tag == "" || section == "" {
		return fmt.Errorf("%w: tag and section are required", ErrInvalid)
	}
	if err := s.store.UpsertTag(ctx, tag); err != nil {
		return err
	}
	return s.store.SetTagSection(ctx, tag, section)
}

func (s *contentService) MessageTypes(ctx context.Context) ([]content.MessageType, error) {
	return s.store.ListMessageTypes(ctx)
}

func (s *contentService) OriginalPosts(ctx context.Context) ([]content.OriginalPost, error) {
	return s.store.ListOriginalPosts(ctx)
}
