package types

import "encoding/json"

// ConfigKeyDocuments is the config key under which a knowledgeBase node keeps
// its uploaded documents.
const ConfigKeyDocuments = "documents"

// DocumentsFromConfig extracts the document list from a node config. The list
// may hold typed Documents (set locally) or raw decoded JSON (after a workflow
// reload); both shapes are handled by round-tripping through JSON.
func DocumentsFromConfig(cfg map[string]any) []Document {
	raw, ok := cfg[ConfigKeyDocuments]
	if !ok || raw == nil {
		return nil
	}
	if docs, ok := raw.([]Document); ok {
		out := make([]Document, len(docs))
		copy(out, docs)
		return out
	}
	b, err := json.Marshal(raw)
	if err != nil {
		return nil
	}
	var docs []Document
	if err := json.Unmarshal(b, &docs); err != nil {
		return nil
	}
	return docs
}
