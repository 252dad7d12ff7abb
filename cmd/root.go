package cmd

import (
	"os"

	"github.com/spf13/cobra"
)

var version = "0.1.0"

var debug bool

var rootCmd = &cobra.Command{
	Use:   "pdftranslate",
	Short: "Translate PDF documents with a local LLM endpoint",
	Long: `Translate PDF documents into another language using a local
OpenAI-compatible inference endpoint such as LM Studio.

The pipeline extracts text and images per page, translates in chunks
with quality verification and corrective retries, and renders either a
paginated PDF or a flattened markdown file. Interrupted runs resume
from a side-car cache next to the output file.

Use "pdftranslate translate --help" for translation options.`,
	Version: version,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().BoolVar(&debug, "debug", false, "Enable debug logging")
}
