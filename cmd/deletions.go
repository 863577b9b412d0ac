package cmd

import (
	"fmt"

	"kb-bridge/core/bookkeeping"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	deletionReason string
	deletionClear  bool
	deletionsJSON  bool
)

// deletionsCmd manages documents deleted on purpose from the local store.
var deletionsCmd = &cobra.Command{
	Use:   "deletions",
	Short: "Track documents deleted on purpose from the local store",
	Long: `A document marked as deleted is reported as a delete_modify conflict when an
import brings it back, instead of being silently re-added.`,
}

var deletionsMarkCmd = &cobra.Command{
	Use:   "mark <collection> <document-id>",
	Short: "Mark a document as deleted (or --clear the mark)",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBookkeeping(func(book *bookkeeping.Store, logg *zap.Logger) error {
			collection, id := args[0], args[1]
			ctx := cmd.Context()
			if deletionClear {
				if err := book.ClearDeletion(ctx, collection, id); err != nil {
					return err
				}
				logg.Info("Deletion cleared", zap.String("collection", collection), zap.String("document_id", id))
				return nil
			}
			already, err := book.IsLocallyDeleted(ctx, id, collection)
			if err != nil {
				return err
			}
			if already {
				logg.Info("Document is already marked as deleted", zap.String("collection", collection), zap.String("document_id", id))
				return nil
			}
			if err := book.RecordDeletion(ctx, collection, id, deletionReason); err != nil {
				return err
			}
			logg.Info("Deletion recorded", zap.String("collection", collection), zap.String("document_id", id))
			return nil
		})
	},
}

var deletionsListCmd = &cobra.Command{
	Use:   "list [collection]",
	Short: "List documents marked as deleted",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withBookkeeping(func(book *bookkeeping.Store, logg *zap.Logger) error {
			collection := ""
			if len(args) == 1 {
				collection = args[0]
			}
			list, err := book.ListDeletions(cmd.Context(), collection)
			if err != nil {
				return err
			}
			if deletionsJSON {
				return printJSON(list)
			}
			for _, d := range list {
				fmt.Printf("%s\t%s\t%s\t%s\n", d.Collection, d.DocumentID, d.DeletedAt.Format("2006-01-02 15:04:05"), d.Reason)
			}
			logg.Info("Deletions listed", zap.Int("count", len(list)))
			return nil
		})
	},
}

func init() {
	deletionsMarkCmd.Flags().StringVar(&deletionReason, "reason", "", "Why the document was deleted")
	deletionsMarkCmd.Flags().BoolVar(&deletionClear, "clear", false, "Forget the deletion so the document may be imported again")
	deletionsListCmd.Flags().BoolVar(&deletionsJSON, "json", false, "Print as JSON")

	deletionsCmd.AddCommand(deletionsMarkCmd, deletionsListCmd)
	RootCmd.AddCommand(deletionsCmd)
}

func withBookkeeping(fn func(book *bookkeeping.Store, logg *zap.Logger) error) error {
	cfg, logg, err := setup()
	if err != nil {
		return err
	}
	defer logg.Sync()

	book, err := bookkeeping.Open(cfg.Bookkeeping, logg)
	if err != nil {
		return err
	}
	defer book.Close()
	return fn(book, logg)
}
