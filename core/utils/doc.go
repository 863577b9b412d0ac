// Package utils provides common helpers for the kb-bridge application.
// It covers loose type conversion of values read from SQL drivers and JSON
// payloads, and value comparison that is stable across representations.
package utils
