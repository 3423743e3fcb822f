package analyze

import (
	"bytes"
	_ "embed"
	"encoding/json"
	"errors"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/santhosh-tekuri/jsonschema/v5"

	"github.com/sells-group/paper-cli/internal/model"
)

//go:embed metadata.schema.json
var schemaJSON []byte

var metadataSchema = mustCompileSchema()

func mustCompileSchema() *jsonschema.Schema {
	compiler := jsonschema.NewCompiler()
	if err := compiler.AddResource("metadata.schema.json", bytes.NewReader(schemaJSON)); err != nil {
		panic(err)
	}
	return compiler.MustCompile("metadata.schema.json")
}

// requiredFields are the record fields whose absence makes a record partial.
var requiredFields = []string{
	"title", "authors", "year", "keywords", "main_topics",
	"key_findings", "methodology", "relevance_score", "research_area",
}

// cleanJSON extracts a JSON object from text that may be wrapped in
// markdown code fences or prose.
func cleanJSON(text string) string {
	text = strings.TrimSpace(text)

	if strings.HasPrefix(text, "```") {
		text = strings.TrimPrefix(text, "```json")
		text = strings.TrimPrefix(text, "```")
		if idx := strings.LastIndex(text, "```"); idx >= 0 {
			text = text[:idx]
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		text = text[start : end+1]
	}
	return strings.TrimSpace(text)
}

// parseRecord turns a service reply into a MetadataRecord. Only a reply
// that is not a JSON object fails; fields that are absent, null or fail the
// schema are recorded as missing.
func parseRecord(raw string) (*model.MetadataRecord, error) {
	dec := json.NewDecoder(strings.NewReader(cleanJSON(raw)))
	dec.UseNumber()

	var obj map[string]any
	if err := dec.Decode(&obj); err != nil || obj == nil {
		if err == nil {
			err = errors.New("null object")
		}
		return nil, model.ServiceError(model.ServiceInvalidResponse, "reply is not a JSON object", err)
	}

	yearNull := false
	if v, ok := obj["year"]; ok && v == nil {
		yearNull = true
	}
	for k, v := range obj {
		if v == nil {
			delete(obj, k)
		}
	}
	coerce(obj)

	for _, field := range invalidFields(obj) {
		delete(obj, field)
	}

	rec := &model.MetadataRecord{}
	for _, field := range requiredFields {
		if _, ok := obj[field]; !ok && !(field == "year" && yearNull) {
			rec.MarkMissing(field)
		}
	}

	rec.Title = strings.TrimSpace(stringField(obj, "title"))
	rec.Authors = model.UniqueFold(stringList(obj, "authors"))
	if n, ok := obj["year"].(json.Number); ok {
		if y, err := n.Int64(); err == nil {
			year := int(y)
			rec.Year = &year
		}
	}
	rec.Keywords = model.UniqueFold(stringList(obj, "keywords"))
	rec.MainTopics = model.UniqueFold(stringList(obj, "main_topics"))
	rec.KeyFindings = strings.TrimSpace(stringField(obj, "key_findings"))
	rec.Methodology = strings.TrimSpace(stringField(obj, "methodology"))
	rec.Relevance, _ = model.ParseRelevance(stringField(obj, "relevance_score"))
	rec.ResearchArea, _ = model.ParseResearchArea(stringField(obj, "research_area"))
	rec.Language = strings.TrimSpace(stringField(obj, "language"))
	return rec, nil
}

var (
	listSplit   = regexp.MustCompile(`\s*[,;]\s*`)
	authorSplit = regexp.MustCompile(`\s*(?:;|,|\band\b|&)\s*`)
	yearString  = regexp.MustCompile(`^\s*(\d{4})\s*$`)
)

// coerce repairs the shapes services commonly get wrong: comma-separated
// strings for lists, string years and miscased enum values.
func coerce(obj map[string]any) {
	for _, key := range []string{"keywords", "main_topics"} {
		if s, ok := obj[key].(string); ok {
			obj[key] = splitList(s, listSplit)
		}
	}
	if s, ok := obj["authors"].(string); ok {
		obj["authors"] = splitList(s, authorSplit)
	}
	if s, ok := obj["year"].(string); ok {
		if m := yearString.FindStringSubmatch(s); m != nil {
			obj["year"] = json.Number(m[1])
		}
	}
	if n, ok := obj["year"].(json.Number); ok {
		if f, err := n.Float64(); err == nil && f == float64(int64(f)) {
			obj["year"] = json.Number(strconv.FormatInt(int64(f), 10))
		}
	}
	if s, ok := obj["relevance_score"].(string); ok {
		if v, ok := model.ParseRelevance(s); ok {
			obj["relevance_score"] = string(v)
		}
	}
	if s, ok := obj["research_area"].(string); ok {
		if v, ok := model.ParseResearchArea(s); ok {
			obj["research_area"] = string(v)
		}
	}
}

func splitList(s string, sep *regexp.Regexp) []any {
	out := []any{}
	for _, part := range sep.Split(s, -1) {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

// invalidFields validates obj against the metadata schema and returns the
// top-level properties that failed.
func invalidFields(obj map[string]any) []string {
	err := metadataSchema.Validate(obj)
	if err == nil {
		return nil
	}
	var ve *jsonschema.ValidationError
	if !errors.As(err, &ve) {
		return nil
	}

	seen := make(map[string]struct{})
	var walk func(*jsonschema.ValidationError)
	walk = func(e *jsonschema.ValidationError) {
		if field := topLevelField(e.InstanceLocation); field != "" {
			seen[field] = struct{}{}
		}
		for _, c := range e.Causes {
			walk(c)
		}
	}
	walk(ve)

	out := make([]string, 0, len(seen))
	for f := range seen {
		out = append(out, f)
	}
	sort.Strings(out)
	return out
}

// topLevelField maps a JSON pointer such as "/keywords/2" to "keywords".
func topLevelField(ptr string) string {
	ptr = strings.TrimPrefix(ptr, "/")
	if ptr == "" {
		return ""
	}
	if i := strings.Index(ptr, "/"); i >= 0 {
		ptr = ptr[:i]
	}
	return strings.NewReplacer("~1", "/", "~0", "~").Replace(ptr)
}

func stringField(obj map[string]any, key string) string {
	s, _ := obj[key].(string)
	return s
}

func stringList(obj map[string]any, key string) []string {
	items, _ := obj[key].([]any)
	out := make([]string, 0, len(items))
	for _, it := range items {
		if s, ok := it.(string); ok {
			out = append(out, s)
		}
	}
	return out
}
