// Package chroma reads a Chroma vector store directly from its SQLite file.
//
// The store is opened read-only; nothing in it is ever modified. Documents
// are taken from the metadata segment of each collection, with the text under
// the "chroma:document" key. Vectors are recovered from the write-ahead
// queue when it still holds them.
//
// Store directories may also be fetched from object storage before opening.
package chroma
