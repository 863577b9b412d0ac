package checks

import (
	"context"
	"fmt"

	"kb-bridge/feature/imports/chroma"
)

// ConfigInspector reports the stored configuration of every collection.
type ConfigInspector interface {
	ConfigReports(ctx context.Context) ([]chroma.ConfigReport, error)
}

// CollectionReport summarizes the collection configurations of a foreign store.
type CollectionReport struct {
	Source      string                `json:"source"`
	Status      string                `json:"status"` // "ok", "legacy", "error"
	Collections []chroma.ConfigReport `json:"collections"`
	// Invalid collections cannot be imported into an existing target.
	Invalid []string `json:"invalid"`
	// Legacy collections lack a type tag and import with a warning.
	Legacy []string `json:"legacy"`
}

// CheckCollectionConfigs inspects every collection configuration of a store.
func CheckCollectionConfigs(ctx context.Context, source string, inspector ConfigInspector) (*CollectionReport, error) {
	reports, err := inspector.ConfigReports(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read collection configurations: %w", err)
	}

	report := &CollectionReport{
		Source:      source,
		Status:      "ok",
		Collections: reports,
		Invalid:     []string{},
		Legacy:      []string{},
	}
	for _, r := range reports {
		switch {
		case !r.Valid:
			report.Invalid = append(report.Invalid, r.Collection)
		case !r.HasType:
			report.Legacy = append(report.Legacy, r.Collection)
		}
	}
	if len(report.Invalid) > 0 {
		report.Status = "error"
	} else if len(report.Legacy) > 0 {
		report.Status = "legacy"
	}
	return report, nil
}
