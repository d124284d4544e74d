package content

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

const (
	// DefaultMessageType is stored when a record carries no message type.
	DefaultMessageType = "General"
	// NotAvailable is the sentinel for absent original-post fields.
	NotAvailable = "N/A"
	// UnassignedSection holds every tag without an explicit section.
	UnassignedSection = "Unassigned"
)

// Record is a question/answer pair or a passage. Question/Answer records are
// keyed by Title; passages are keyed by Index.
type Record struct {
	ID                primitive.ObjectID `json:"id" bson:"_id,omitempty"`
	Index             *int64             `json:"index,omitempty" bson:"index,omitempty"`
	Title             string             `json:"title" bson:"title"`
	Category          string             `json:"category,omitempty" bson:"category,omitempty"`
	Tags              []string           `json:"tags" bson:"tags"`
	Question          string             `json:"question,omitempty" bson:"question,omitempty"`
	Answer            string             `json:"answer,omitempty" bson:"answer,omitempty"`
	Passage           string             `json:"passage,omitempty" bson:"passage,omitempty"`
	Author            string             `json:"author,omitempty" bson:"author,omitempty"`
	Date              string             `json:"date,omitempty" bson:"date,omitempty"`
	MessageType       string             `json:"messageType" bson:"messageType"`
	OriginalPostTitle string             `json:"originalPostTitle" bson:"originalPostTitle"`
	OriginalPostURL   string             `json:"originalPostURL" bson:"originalPostURL"`
	CreatedAt         time.Time          `json:"createdAt" bson:"createdAt"`
	UpdatedAt         time.Time          `json:"updatedAt" bson:"updatedAt"`
}

// Category, Tag and MessageType are distinct-value reference documents.
type Category struct {
	Category  string    `json:"category" bson:"category"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type Tag struct {
	Tag       string    `json:"tag" bson:"tag"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
}

type MessageType struct {
	MessageType string    `json:"messageType" bson:"messageType"`
	CreatedAt   time.Time `json:"createdAt" bson:"createdAt"`
}

// OriginalPost is keyed by URL.
type OriginalPost struct {
	URL       string    `json:"url" bson:"url"`
	Title     string    `json:"title" bson:"title"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// TagSection assigns a tag to exactly one section; keyed by tag.
type TagSection struct {
	Tag       string    `json:"tag" bson:"tag"`
	Section   string    `json:"section" bson:"section"`
	CreatedAt time.Time `json:"createdAt" bson:"createdAt"`
	UpdatedAt time.Time `json:"updatedAt" bson:"updatedAt"`
}

// Filter narrows content listings. Empty fields match everything.
type Filter struct {
	Category    string
	Tag         string
	MessageType string
}

// Matches reports whether r satisfies f.
func (f Filter) Matches(r *Record) bool {
	if f.Category != "" && r.Category != f.Category {
		return false
	}
	if f.MessageType != "" && r.MessageType != f.MessageType {
		return false
	}
	if f.Tag != "" {
		for _, t := range r.Tags {
			if t == f.Tag {
				return true
			}
		}
		return false
	}
	return true
}
