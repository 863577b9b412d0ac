package chroma

import (
	"encoding/json"
	"strings"

	"kb-bridge/core/utils"
	"kb-bridge/feature/imports"
)

// spaceKey is the collection metadata key older stores keep the metric under.
const spaceKey = "hnsw:space"

// ConfigReport describes the stored configuration of one collection.
type ConfigReport struct {
	Collection string `json:"collection"`
	Valid      bool   `json:"valid"`
	HasType    bool   `json:"has_type"`
	// InferredType is the type tag a legacy configuration would carry.
	InferredType string `json:"inferred_type,omitempty"`
	Error        string `json:"error,omitempty"`
}

// inspectConfig parses a stored configuration. Unreadable JSON marks the
// configuration invalid; a missing _type only marks it legacy.
func inspectConfig(collection, raw string) (map[string]any, ConfigReport) {
	rep := ConfigReport{Collection: collection}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		rep.Valid = true
		rep.HasType = true
		return nil, rep
	}
	var cfg map[string]any
	if err := json.Unmarshal([]byte(raw), &cfg); err != nil {
		rep.Error = err.Error()
		return nil, rep
	}
	rep.Valid = true
	if _, ok := cfg["_type"]; ok {
		rep.HasType = true
	} else if _, ok := cfg["hnsw"]; ok {
		rep.InferredType = "CollectionConfigurationInternal"
	}
	return cfg, rep
}

// collectionConfig derives the index configuration of a collection from its
// stored configuration, its metadata and its dimension column.
func collectionConfig(collection, raw string, metadata map[string]any, dimension *int64) imports.CollectionConfig {
	cfg, rep := inspectConfig(collection, raw)
	out := imports.CollectionConfig{Legacy: rep.Valid && !rep.HasType, Invalid: rep.Error}
	if dimension != nil {
		out.Dimension = int(*dimension)
	}

	for _, section := range []string{"hnsw", "hnsw_configuration"} {
		if m, ok := cfg[section].(map[string]any); ok {
			if s := utils.ToString(m["space"]); s != "" {
				out.Space = strings.ToLower(s)
				break
			}
		}
	}
	if out.Space == "" {
		out.Space = strings.ToLower(utils.ToString(metadata[spaceKey]))
	}
	if out.Space == "" && rep.Valid {
		out.Space = imports.SpaceL2
	}
	return out
}
