// Package imports brings the collections of a foreign vector store into the
// local semantic store.
//
// A filter picks foreign collections by wildcard and routes each into a
// target collection:
//
//	{"collections": [
//	    {"name": "archive_2024_*", "import_into": "consolidated_archive"},
//	    {"name": "notes", "import_into": "notes", "documents": ["doc_*"]}
//	]}
//
// An empty filter imports every collection into one of the same name. All
// sources routed into one target are pooled before analysis, so an id
// carried by two sources is reported as an id collision. The foreign store is
// theirs and the local store ours; there is no common ancestor.
//
// Execution writes one batch per target collection.
//
// # HTTP Endpoints
//
//   - POST /import/preview : Lists additions and conflicts.
//   - POST /import/execute : Resolves conflicts and writes the batches.
package imports
