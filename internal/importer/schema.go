package importer

import (
	"fmt"
	"sort"
	"strings"

	"github.com/qabase/qabase/backend/go-services/internal/content"
	"github.com/qabase/qabase/backend/go-services/internal/content/repository"
)

// Field is a canonical record field name.
type Field string

const (
	FieldIndex             Field = "index"
	FieldTitle             Field = "title"
	FieldCategory          Field = "category"
	FieldTags              Field = "tags"
	FieldQuestion          Field = "question"
	FieldAnswer            Field = "answer"
	FieldPassage           Field = "passage"
	FieldAuthor            Field = "author"
	FieldDate              Field = "date"
	FieldMessageType       Field = "messageType"
	FieldOriginalPostTitle Field = "originalPostTitle"
	FieldOriginalPostURL   Field = "originalPostURL"
)

// Schema describes one input variant: where each canonical field is read
// from, which fields are required, which get defaults, how tags split and
// where the normalized records are stored.
type Schema struct {
	Name       string
	Collection string
	Key        repository.KeyField
	// Source maps canonical fields to the case-sensitive input field names.
	Source   map[Field]string
	Required []Field
	Defaults map[Field]string
	// TagSeparator splits tag strings and tag array elements.
	TagSeparator string
}

// QASchema is the question/answer variant keyed by title.
var QASchema = &Schema{
	Name:       "qa",
	Collection: repository.Contents,
	Key:        repository.KeyTitle,
	Source: map[Field]string{
		FieldTitle:             "Title",
		FieldCategory:          "Category",
		FieldTags:              "Tags",
		FieldQuestion:          "Question",
		FieldAnswer:            "Answer",
		FieldMessageType:       "messageType",
		FieldOriginalPostTitle: "originalPostTitle",
		FieldOriginalPostURL:   "originalPostURL",
	},
	Required: []Field{FieldTitle, FieldCategory, FieldQuestion, FieldAnswer, FieldMessageType},
	Defaults: map[Field]string{
		FieldMessageType:       content.DefaultMessageType,
		FieldOriginalPostTitle: content.NotAvailable,
		FieldOriginalPostURL:   content.NotAvailable,
	},
	TagSeparator: ",",
}

// PassageSchema is the passage variant keyed by numeric index. Original-post
// fields are required here and have no default.
var PassageSchema = &Schema{
	Name:       "passage",
	Collection: repository.Passages,
	Key:        repository.KeyIndex,
	Source: map[Field]string{
		FieldIndex:             "index",
		FieldTitle:             "Title",
		FieldAuthor:            "author",
		FieldDate:              "date",
		FieldCategory:          "Category",
		FieldTags:              "Tags",
		FieldPassage:           "Passage",
		FieldMessageType:       "messageType",
		FieldOriginalPostTitle: "originalPostTitle",
		FieldOriginalPostURL:   "originalPostURL",
	},
	Required: []Field{
		FieldIndex, FieldTitle, FieldAuthor, FieldMessageType,
		FieldOriginalPostTitle, FieldOriginalPostURL, FieldDate,
	},
	Defaults: map[Field]string{
		FieldMessageType: content.DefaultMessageType,
	},
	TagSeparator: ",",
}

var schemas = map[string]*Schema{
	QASchema.Name:      QASchema,
	PassageSchema.Name: PassageSchema,
}

// SchemaByName resolves a built-in schema.
func SchemaByName(name string) (*Schema, error) {
	s, ok := schemas[strings.ToLower(strings.TrimSpace(name))]
	if !ok {
		return nil, fmt.Errorf("unknown schema %q (known: %s)", name, strings.Join(SchemaNames(), ", "))
	}
	return s, nil
}

// SchemaNames lists the built-in schema names.
func SchemaNames() []string {
	out := make([]string, 0, len(schemas))
	for n := range schemas {
		out = append(out, n)
	}
	sort.Strings(out)
	return out
}
