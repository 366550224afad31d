package elasticsearch

import (
	"github.com/jobrunner/hospigeo/internal/domain"
)

// textAnalyzer is the analyzer name text fields reference.
const textAnalyzer = "korean"

// indexBody renders the create-index request for schema.
func (e *Engine) indexBody(schema domain.IndexSchema) map[string]any {
	settings := map[string]any{
		"number_of_shards":   e.cfg.Shards,
		"number_of_replicas": e.cfg.Replicas,
	}
	analyzer := "standard"
	if e.cfg.Tokenizer != "" {
		analyzer = textAnalyzer
		settings["analysis"] = map[string]any{
			"analyzer": map[string]any{
				textAnalyzer: map[string]any{
					"type":      "custom",
					"tokenizer": e.cfg.Tokenizer,
				},
			},
		}
	}

	return map[string]any{
		"settings": settings,
		"mappings": map[string]any{"properties": properties(schema, analyzer)},
	}
}

func properties(schema domain.IndexSchema, analyzer string) map[string]any {
	props := make(map[string]any, len(schema.Fields))
	for _, f := range schema.Fields {
		switch f.Kind {
		case domain.FieldText:
			field := map[string]any{"type": "text", "analyzer": analyzer}
			if f.KeywordSubfield {
				field["fields"] = map[string]any{"keyword": map[string]any{"type": "keyword"}}
			}
			props[f.Name] = field
		case domain.FieldObject:
			props[f.Name] = map[string]any{"type": "object", "enabled": false}
		default:
			props[f.Name] = map[string]any{"type": string(f.Kind)}
		}
	}
	return props
}
