package importer

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/qabase/qabase/backend/go-services/internal/content"
)

// Normalizer turns loosely-typed input entries into canonical records for
// one schema. It has no side effects.
type Normalizer struct {
	schema *Schema
}

func NewNormalizer(s *Schema) *Normalizer {
	return &Normalizer{schema: s}
}

// Normalize validates raw and returns either a canonical record or a Skip.
// Defaults are applied before the required-field check, so a defaulted
// field is never reported missing. Missing fields are named as they appear
// in the input file.
func (n *Normalizer) Normalize(raw map[string]interface{}, ordinal int) (*content.Record, *Skip) {
	s := n.schema
	values := make(map[Field]string, len(s.Source))
	for f, src := range s.Source {
		if f == FieldTags {
			continue
		}
		values[f] = scalarString(raw[src])
	}
	for f, def := range s.Defaults {
		if values[f] == "" {
			values[f] = def
		}
	}

	var missing []string
	for _, f := range s.Required {
		if values[f] == "" {
			missing = append(missing, s.Source[f])
		}
	}
	if len(missing) > 0 {
		return nil, newMissingSkip(ordinal, missing)
	}

	rec := &content.Record{
		Title:             values[FieldTitle],
		Category:          values[FieldCategory],
		Question:          values[FieldQuestion],
		Answer:            values[FieldAnswer],
		Passage:           values[FieldPassage],
		Author:            values[FieldAuthor],
		Date:              values[FieldDate],
		MessageType:       values[FieldMessageType],
		OriginalPostTitle: values[FieldOriginalPostTitle],
		OriginalPostURL:   values[FieldOriginalPostURL],
		Tags:              []string{},
	}
	if src, ok := s.Source[FieldTags]; ok {
		rec.Tags = ParseTags(raw[src], s.TagSeparator)
	}
	if _, ok := s.Source[FieldIndex]; ok && values[FieldIndex] != "" {
		idx, err := parseIndex(raw[s.Source[FieldIndex]])
		if err != nil {
			return nil, &Skip{Ordinal: ordinal, Reason: fmt.Sprintf("invalid %s: %v", s.Source[FieldIndex], err)}
		}
		rec.Index = &idx
	}
	return rec, nil
}

// ParseTags flattens a comma-delimited string or an array whose elements
// may themselves contain separators into trimmed, non-empty tags, keeping
// input order.
func ParseTags(v interface{}, sep string) []string {
	if sep == "" {
		sep = ","
	}
	out := []string{}
	add := func(s string) {
		for _, piece := range strings.Split(s, sep) {
			if p := strings.TrimSpace(piece); p != "" {
				out = append(out, p)
			}
		}
	}
	switch t := v.(type) {
	case nil:
	case []interface{}:
		for _, el := range t {
			add(scalarString(el))
		}
	case []string:
		for _, el := range t {
			add(el)
		}
	default:
		add(scalarString(t))
	}
	return out
}

// scalarString renders a decoded JSON value as a trimmed string. Arrays
// are joined with ", "; objects count as absent.
func scalarString(v interface{}) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case int:
		return strconv.Itoa(t)
	case int64:
		return strconv.FormatInt(t, 10)
	case bool:
		return strconv.FormatBool(t)
	case []interface{}:
		parts := make([]string, 0, len(t))
		for _, el := range t {
			if s := scalarString(el); s != "" {
				parts = append(parts, s)
			}
		}
		return strings.Join(parts, ", ")
	case map[string]interface{}:
		return ""
	}
	return strings.TrimSpace(fmt.Sprint(v))
}

func parseIndex(v interface{}) (int64, error) {
	var f float64
	switch t := v.(type) {
	case json.Number:
		if i, err := t.Int64(); err == nil {
			return i, nil
		}
		parsed, err := t.Float64()
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", t.String())
		}
		f = parsed
	case float64:
		f = t
	case int:
		return int64(t), nil
	case int64:
		return t, nil
	case string:
		s := strings.TrimSpace(t)
		if i, err := strconv.ParseInt(s, 10, 64); err == nil {
			return i, nil
		}
		parsed, err := strconv.ParseFloat(s, 64)
		if err != nil {
			return 0, fmt.Errorf("%q is not a number", t)
		}
		f = parsed
	default:
		return 0, fmt.Errorf("unsupported type %T", v)
	}
	if f != math.Trunc(f) || math.IsInf(f, 0) || math.IsNaN(f) {
		return 0, fmt.Errorf("%v is not an integer", f)
	}
	return int64(f), nil
}
