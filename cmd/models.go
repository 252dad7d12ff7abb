package cmd

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"pdftranslate/internal/llm"
)

var modelsBaseURL string

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "List models available on the inference endpoint",
	RunE: func(cmd *cobra.Command, args []string) error {
		client := llm.New(llm.Config{BaseURL: modelsBaseURL})

		models, err := client.ListModels(context.Background())
		if err != nil {
			return fmt.Errorf("failed to reach endpoint: %w", err)
		}
		if len(models) == 0 {
			fmt.Println("No models loaded on the endpoint.")
			return nil
		}
		for _, m := range models {
			fmt.Println(m)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(modelsCmd)

	modelsCmd.Flags().StringVar(&modelsBaseURL, "base-url", llm.DefaultBaseURL, "Inference endpoint base URL")
}
