package cmd

import (
	"fmt"
	"os"

	"kb-bridge/core/logger"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

// RootCmd represents the base command when called without any subcommands
var RootCmd = &cobra.Command{
	Use:   "kb-bridge",
	Short: "Knowledge base merge and import conflict resolution",
	Long: `kb-bridge detects and resolves conflicts when merging branches of a versioned
knowledge base (Dolt or git) and when importing a foreign Chroma store into the
local pgvector store. It runs as an HTTP service (start) or from the command line.`,
	SilenceUsage:  true,
	SilenceErrors: true,
}

func Execute() {
	if err := RootCmd.Execute(); err != nil {
		// Console encoding at debug level gives ISO8601 timestamps
		cfg := &logger.Config{
			Level:  "debug",
			Format: "console",
		}

		l, logErr := logger.New(cfg)
		if logErr == nil {
			l.Error("command failed", zap.Error(err))
			_ = l.Sync()
		} else {
			fmt.Println(err)
		}
		os.Exit(1)
	}
}
