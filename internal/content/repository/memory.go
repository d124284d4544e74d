package repository

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/qabase/qabase/backend/go-services/internal/content"
)

// MemoryRepo is an in-memory Store used by unit tests and by the API server
// when no MongoDB is configured. Content collections allow duplicate keys so
// legacy duplicates can be represented, like the Mongo collection.
type MemoryRepo struct {
	mu       sync.RWMutex
	records  map[string][]*content.Record
	cats     map[string]content.Category
	tags     map[string]content.Tag
	msgTypes map[string]content.MessageType
	posts    map[string]content.OriginalPost
	sections map[string]content.TagSection
	now      func() time.Time
}

func NewMemoryRepo() *MemoryRepo {
	return &MemoryRepo{
		records:  make(map[string][]*content.Record),
		cats:     make(map[string]content.Category),
		tags:     make(map[string]content.Tag),
		msgTypes: make(map[string]content.MessageType),
		posts:    make(map[string]content.OriginalPost),
		sections: make(map[string]content.TagSection),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

func cloneRecord(r *content.Record) *content.Record {
	c := *r
	c.Tags = append([]string(nil), r.Tags...)
	if r.Index != nil {
		idx := *r.Index
		c.Index = &idx
	}
	return &c
}

func keyEquals(key KeyField, r *content.Record, value interface{}) bool {
	switch key {
	case KeyIndex:
		want, ok := value.(int64)
		return ok && r.Index != nil && *r.Index == want
	default:
		want, ok := value.(string)
		return ok && r.Title == want
	}
}

func (m *MemoryRepo) find(coll string, key KeyField, value interface{}) *content.Record {
	for _, r := range m.records[coll] {
		if keyEquals(key, r, value) {
			return r
		}
	}
	return nil
}

func (m *MemoryRepo) UpsertRecord(_ context.Context, coll string, key KeyField, rec *content.Record) (Outcome, error) {
	value := key.Value(rec)
	if value == nil || value == "" {
		return 0, fmt.Errorf("upsert %s: empty %s", coll, key)
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if existing := m.find(coll, key, value); existing != nil {
		id, created := existing.ID, existing.CreatedAt
		*existing = *cloneRecord(rec)
		existing.ID, existing.CreatedAt, existing.UpdatedAt = id, created, now
		rec.ID, rec.CreatedAt, rec.UpdatedAt = id, created, now
		return Updated, nil
	}
	stored := cloneRecord(rec)
	stored.ID = primitive.NewObjectID()
	stored.CreatedAt, stored.UpdatedAt = now, now
	m.records[coll] = append(m.records[coll], stored)
	rec.ID, rec.CreatedAt, rec.UpdatedAt = stored.ID, now, now
	return Inserted, nil
}

func (m *MemoryRepo) FindRecord(_ context.Context, coll string, key KeyField, value interface{}) (*content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if r := m.find(coll, key, value); r != nil {
		return cloneRecord(r), nil
	}
	return nil, ErrNotFound
}

// CreateRecord inserts without a key check. A non-zero CreatedAt is kept.
func (m *MemoryRepo) CreateRecord(_ context.Context, coll string, rec *content.Record) (primitive.ObjectID, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	if rec.ID.IsZero() {
		rec.ID = primitive.NewObjectID()
	}
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	m.records[coll] = append(m.records[coll], cloneRecord(rec))
	return rec.ID, nil
}

func (m *MemoryRepo) GetRecord(_ context.Context, coll string, id primitive.ObjectID) (*content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, r := range m.records[coll] {
		if r.ID == id {
			return cloneRecord(r), nil
		}
	}
	return nil, ErrNotFound
}

func (m *MemoryRepo) ListRecords(_ context.Context, coll string, f content.Filter) ([]*content.Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*content.Record, 0, len(m.records[coll]))
	for _, r := range m.records[coll] {
		if f.Matches(r) {
			out = append(out, cloneRecord(r))
		}
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Title < out[j].Title })
	return out, nil
}

func (m *MemoryRepo) UpdateRecord(_ context.Context, coll string, id primitive.ObjectID, rec *content.Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.records[coll] {
		if r.ID == id {
			created := r.CreatedAt
			*r = *cloneRecord(rec)
			r.ID, r.CreatedAt, r.UpdatedAt = id, created, m.now()
			return nil
		}
	}
	return ErrNotFound
}

func (m *MemoryRepo) DeleteRecord(_ context.Context, coll string, id primitive.ObjectID) error {
	n, _ := m.DeleteRecordsByID(context.Background(), coll, []primitive.ObjectID{id})
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func (m *MemoryRepo) DeleteRecordsByID(_ context.Context, coll string, ids []primitive.ObjectID) (int64, error) {
	drop := make(map[primitive.ObjectID]struct{}, len(ids))
	for _, id := range ids {
		drop[id] = struct{}{}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	kept := m.records[coll][:0]
	var deleted int64
	for _, r := range m.records[coll] {
		if _, ok := drop[r.ID]; ok {
			deleted++
			continue
		}
		kept = append(kept, r)
	}
	m.records[coll] = kept
	return deleted, nil
}

func (m *MemoryRepo) GroupDuplicates(_ context.Context, coll string, field string) ([]DuplicateGroup, error) {
	if field != string(KeyTitle) {
		return nil, fmt.Errorf("memory repo: grouping by %q is not supported", field)
	}
	type member struct {
		id        primitive.ObjectID
		createdAt time.Time
	}
	m.mu.RLock()
	members := make(map[string][]member)
	for _, r := range m.records[coll] {
		members[r.Title] = append(members[r.Title], member{id: r.ID, createdAt: r.CreatedAt})
	}
	m.mu.RUnlock()

	out := []DuplicateGroup{}
	for key, ms := range members {
		if len(ms) < 2 {
			continue
		}
		sort.Slice(ms, func(i, j int) bool {
			if !ms[i].createdAt.Equal(ms[j].createdAt) {
				return ms[i].createdAt.Before(ms[j].createdAt)
			}
			return ms[i].id.Hex() < ms[j].id.Hex()
		})
		g := DuplicateGroup{Key: key}
		for _, x := range ms {
			g.IDs = append(g.IDs, x.id)
		}
		out = append(out, g)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *MemoryRepo) Count(_ context.Context, coll string) (int64, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	switch coll {
	case Categories:
		return int64(len(m.cats)), nil
	case Tags:
		return int64(len(m.tags)), nil
	case MessageTypes:
		return int64(len(m.msgTypes)), nil
	case OriginalPosts:
		return int64(len(m.posts)), nil
	case TagSections:
		return int64(len(m.sections)), nil
	}
	return int64(len(m.records[coll])), nil
}

func (m *MemoryRepo) UpsertCategory(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cats[name]; !ok {
		m.cats[name] = content.Category{Category: name, CreatedAt: m.now()}
	}
	return nil
}

func (m *MemoryRepo) UpsertTag(_ context.Context, tag string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.tags[tag]; !ok {
		m.tags[tag] = content.Tag{Tag: tag, CreatedAt: m.now()}
	}
	return nil
}

func (m *MemoryRepo) UpsertMessageType(_ context.Context, messageType string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.msgTypes[messageType]; !ok {
		m.msgTypes[messageType] = content.MessageType{MessageType: messageType, CreatedAt: m.now()}
	}
	return nil
}

func (m *MemoryRepo) UpsertOriginalPost(_ context.Context, url, title string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	p, ok := m.posts[url]
	if !ok {
		p = content.OriginalPost{URL: url, CreatedAt: now}
	}
	p.Title, p.UpdatedAt = title, now
	m.posts[url] = p
	return nil
}

func (m *MemoryRepo) EnsureTagSection(_ context.Context, tag, section string) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.sections[tag]; ok {
		return false, nil
	}
	now := m.now()
	m.sections[tag] = content.TagSection{Tag: tag, Section: section, CreatedAt: now, UpdatedAt: now}
	return true, nil
}

func (m *MemoryRepo) SetTagSection(_ context.Context, tag, section string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	now := m.now()
	ts, ok := m.sections[tag]
	if !ok {
		ts = content.TagSection{Tag: tag, CreatedAt: now}
	}
	ts.Section, ts.UpdatedAt = section, now
	m.sections[tag] = ts
	return nil
}

func (m *MemoryRepo) ListCategories(_ context.Context) ([]content.Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]content.Category, 0, len(m.cats))
	for _, c := range m.cats {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Category < out[j].Category })
	return out, nil
}

func (m *MemoryRepo) ListTags(_ context.Context) ([]content.Tag, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]content.Tag, 0, len(m.tags))
	for _, t := range m.tags {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Tag < out[j].Tag })
	return out, nil
}

func (m *MemoryRepo) ListMessageTypes(_ context.Context) ([]content.MessageType, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]content.MessageType, 0, len(m.msgTypes))
	for _, t := range m.msgTypes {
		out = append(out, t)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].MessageType < out[j].MessageType })
	return out, nil
}

func (m *MemoryRepo) ListOriginalPosts(_ context.Context) ([]content.OriginalPost, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]content.OriginalPost, 0, len(m.posts))
	for _, p := range m.posts {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].URL < out[j].URL })
	return out, nil
}

func (m *MemoryRepo) ListTagSections(_ context.Context) ([]content.TagSection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]content.TagSection, 0, len(m.sections))
	for _, s := range m.sections {
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Section != out[j].Section {
			return out[i].Section < out[j].Section
		}
		return out[i].Tag < out[j].Tag
	})
	return out, nil
}

func (m *MemoryRepo) DeleteCategory(_ context.Context, name string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.cats[name]; !ok {
		return ErrNotFound
	}
	delete(m.cats, name)
	return nil
}
