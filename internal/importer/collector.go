package importer

import (
	"fmt"
	"strings"

	"github.com/qabase/qabase/backend/go-services/internal/content"
)

// ConflictPolicy decides which title an original post keeps when two
// records in one batch disagree for the same URL.
type ConflictPolicy string

const (
	LastWriteWins  ConflictPolicy = "last-write-wins"
	FirstWriteWins ConflictPolicy = "first-write-wins"
	// RejectConflicts drops the URL from the batch's reference set.
	RejectConflicts ConflictPolicy = "reject"
)

// ParseConflictPolicy accepts the policy names above; empty means last-write-wins.
func ParseConflictPolicy(s string) (ConflictPolicy, error) {
	switch p := ConflictPolicy(strings.ToLower(strings.TrimSpace(s))); p {
	case "":
		return LastWriteWins, nil
	case LastWriteWins, FirstWriteWins, RejectConflicts:
		return p, nil
	}
	return "", fmt.Errorf("unknown original-post conflict policy %q", s)
}

// PostConflict records one disagreement on an original-post title.
type PostConflict struct {
	Ordinal  int    `json:"index"`
	URL      string `json:"url"`
	Existing string `json:"existingTitle"`
	Incoming string `json:"incomingTitle"`
}

// PostRef is an original post as it will be upserted.
type PostRef struct {
	URL   string
	Title string
}

type orderedSet struct {
	seen  map[string]struct{}
	items []string
}

func newOrderedSet() *orderedSet { return &orderedSet{seen: map[string]struct{}{}} }

func (s *orderedSet) add(v string) {
	if v == "" {
		return
	}
	if _, ok := s.seen[v]; ok {
		return
	}
	s.seen[v] = struct{}{}
	s.items = append(s.items, v)
}

func (s *orderedSet) values() []string { return append([]string(nil), s.items...) }

// Collector accumulates the distinct reference values of one batch run.
// Values keep first-seen order. It does no I/O.
type Collector struct {
	policy       ConflictPolicy
	categories   *orderedSet
	tags         *orderedSet
	messageTypes *orderedSet
	postURLs     *orderedSet
	postTitles   map[string]string
	rejected     map[string]bool
	conflicts    []PostConflict
}

func NewCollector(policy ConflictPolicy) *Collector {
	if policy == "" {
		policy = LastWriteWins
	}
	return &Collector{
		policy:       policy,
		categories:   newOrderedSet(),
		tags:         newOrderedSet(),
		messageTypes: newOrderedSet(),
		postURLs:     newOrderedSet(),
		postTitles:   map[string]string{},
		rejected:     map[string]bool{},
	}
}

// Observe adds rec's reference values. The "N/A" URL sentinel is not an
// original post.
func (c *Collector) Observe(rec *content.Record, ordinal int) {
	c.categories.add(rec.Category)
	for _, t := range rec.Tags {
		c.tags.add(t)
	}
	c.messageTypes.add(rec.MessageType)

	url := rec.OriginalPostURL
	if url == "" || url == content.NotAvailable {
		return
	}
	existing, seen := c.postTitles[url]
	c.postURLs.add(url)
	if !seen {
		c.postTitles[url] = rec.OriginalPostTitle
		return
	}
	if existing == rec.OriginalPostTitle {
		return
	}
	c.conflicts = append(c.conflicts, PostConflict{
		Ordinal:  ordinal,
		URL:      url,
		Existing: existing,
		Incoming: rec.OriginalPostTitle,
	})
	switch c.policy {
	case LastWriteWins:
		c.postTitles[url] = rec.OriginalPostTitle
	case RejectConflicts:
		c.rejected[url] = true
	}
}

func (c *Collector) Policy() ConflictPolicy { return c.policy }

func (c *Collector) Categories() []string { return c.categories.values() }

func (c *Collector) Tags() []string { return c.tags.values() }

func (c *Collector) MessageTypes() []string { return c.messageTypes.values() }

func (c *Collector) Conflicts() []PostConflict { return append([]PostConflict(nil), c.conflicts...) }

// OriginalPosts returns the posts to upsert, excluding rejected URLs.
func (c *Collector) OriginalPosts() []PostRef {
	out := make([]PostRef, 0, len(c.postTitles))
	for _, url := range c.postURLs.items {
		if c.rejected[url] {
			continue
		}
		out = append(out, PostRef{URL: url, Title: c.postTitles[url]})
	}
	return out
}
