package checks

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"kb-bridge/core/storage"
)

// StructureReport lists the foreign store snapshots found in the bucket.
type StructureReport struct {
	Bucket string `json:"bucket"`
	Prefix string `json:"prefix"`
	// Snapshots are the object keys, relative to Prefix, usable as foreign_object.
	Snapshots []string `json:"snapshots"`
}

// CheckForeignStructure verifies the bucket exists and lists the foreign
// store snapshots under prefix. A snapshot is a database file or a directory
// holding one.
func CheckForeignStructure(ctx context.Context, client storage.Client, bucket, prefix string) (*StructureReport, error) {
	exists, err := client.BucketExists(ctx, bucket)
	if err != nil {
		return nil, fmt.Errorf("failed to check bucket existence: %w", err)
	}
	if !exists {
		return nil, fmt.Errorf("bucket %s does not exist", bucket)
	}

	report := &StructureReport{Bucket: bucket, Prefix: prefix, Snapshots: []string{}}
	seen := make(map[string]bool)
	keys, err := storage.ListKeys(ctx, client, bucket, prefix)
	if err != nil {
		return nil, err
	}
	for _, key := range keys {
		if !strings.HasSuffix(key, ".sqlite3") && !strings.HasSuffix(key, ".db") {
			continue
		}
		rel := strings.TrimPrefix(key, prefix)
		// A database inside a directory names the directory.
		if i := strings.LastIndex(rel, "/"); i > 0 {
			rel = rel[:i]
		}
		if !seen[rel] {
			seen[rel] = true
			report.Snapshots = append(report.Snapshots, rel)
		}
	}
	sort.Strings(report.Snapshots)
	return report, nil
}
