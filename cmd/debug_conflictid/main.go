package main

import (
	"fmt"
	"log"
	"os"

	"kb-bridge/core/conflict"
)

// Prints the conflict identifier for a merge or import conflict, to match
// identifiers from a preview against resolutions written by hand.
//
//	debug_conflictid merge <table> <document-id> <type>
//	debug_conflictid import <source-collection> <target-collection> <document-id> <type>
func main() {
	if len(os.Args) < 2 {
		log.Fatal("usage: debug_conflictid merge|import ...")
	}

	switch os.Args[1] {
	case "merge":
		if len(os.Args) != 5 {
			log.Fatal("usage: debug_conflictid merge <table> <document-id> <type>")
		}
		fmt.Println(conflict.MergeConflictID(os.Args[2], os.Args[3], conflict.ConflictType(os.Args[4])))
	case "import":
		if len(os.Args) != 6 {
			log.Fatal("usage: debug_conflictid import <source-collection> <target-collection> <document-id> <type>")
		}
		fmt.Println(conflict.ImportConflictID(os.Args[2], os.Args[3], os.Args[4], conflict.ConflictType(os.Args[5])))
	default:
		log.Fatalf("unknown scenario %q", os.Args[1])
	}
}
