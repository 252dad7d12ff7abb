package cmd

import (
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"pdftranslate/internal/llm"
	"pdftranslate/internal/logger"
	"pdftranslate/internal/pipeline"
	"pdftranslate/internal/renderer"
)

var configFile string

var translateCmd = &cobra.Command{
	Use:   "translate",
	Short: "Translate a PDF document",
	Long: `Translate a PDF document chunk by chunk through the configured
inference endpoint.

Every flag can also be set through a config file (--config) or an
environment variable with the PDFTRANSLATE_ prefix, for example
PDFTRANSLATE_MODEL or PDFTRANSLATE_BASE_URL.

Output formats:
  pdf   paginated PDF mirroring the source page structure (default)
  md    flattened markdown with per-page headings and exported images

A failed run leaves a .cache.db file next to the output; rerunning the
same command resumes from it instead of retranslating verified chunks.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		if err := loadConfig(cmd); err != nil {
			return err
		}

		log, err := logger.New(debug)
		if err != nil {
			return fmt.Errorf("failed to initialize logger: %w", err)
		}
		defer log.Sync()

		cfg := pipeline.Config{
			InputPath:           viper.GetString("input"),
			OutputPath:          viper.GetString("output"),
			Format:              pipeline.Format(viper.GetString("format")),
			ChunkSize:           viper.GetInt("chunk-size"),
			BaseURL:             viper.GetString("base-url"),
			Model:               viper.GetString("model"),
			Timeout:             viper.GetDuration("timeout"),
			SourceLang:          viper.GetString("source"),
			TargetLang:          viper.GetString("target"),
			FontPath:            viper.GetString("font"),
			AssetPolicy:         renderer.AssetDirPolicy(viper.GetString("asset-policy")),
			Temperature:         float32(viper.GetFloat64("temperature")),
			RevisionTemperature: float32(viper.GetFloat64("revision-temperature")),
			MaxTokens:           viper.GetInt("max-tokens"),
			MaxAttempts:         viper.GetInt("max-attempts"),
			NetworkRetries:      viper.GetInt("network-retries"),
			RequestDelay:        viper.GetDuration("delay"),
			DelayRetries:        viper.GetBool("delay-retries"),
			Concurrency:         viper.GetInt("concurrency"),
		}

		if _, err := os.Stat(cfg.InputPath); err != nil {
			return fmt.Errorf("input file not readable: %w", err)
		}

		p, err := pipeline.New(cfg, log)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		outcome, err := p.Run(ctx)
		if err != nil {
			return err
		}

		fmt.Printf("Translated %d pages (%d chunks, %d from cache) to %s\n",
			outcome.Pages, outcome.Chunks, outcome.Cached, outcome.OutputPath)
		if outcome.Status == pipeline.StatusDegraded {
			fmt.Fprintf(os.Stderr, "WARNING: %d chunks failed verification and contain best-effort text:\n", len(outcome.Failed))
			for _, f := range outcome.Failed {
				fmt.Fprintf(os.Stderr, "  chunk %s: %v\n", f.ID, f.Flags)
			}
			fmt.Fprintln(os.Stderr, "Rerun the same command to retry the failed chunks.")
		}
		return nil
	},
}

func loadConfig(cmd *cobra.Command) error {
	viper.SetEnvPrefix("PDFTRANSLATE")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return err
	}
	if configFile != "" {
		viper.SetConfigFile(configFile)
		if err := viper.ReadInConfig(); err != nil {
			return fmt.Errorf("failed to read config file: %w", err)
		}
	}
	return nil
}

func init() {
	rootCmd.AddCommand(translateCmd)

	translateCmd.Flags().StringVarP(&configFile, "config", "c", "", "Config file (YAML)")

	translateCmd.Flags().StringP("input", "i", "", "Input PDF to translate (required)")
	translateCmd.Flags().StringP("output", "o", "", "Output file (default: <input>_translated.<format>)")
	translateCmd.Flags().StringP("format", "f", "pdf", "Output format: pdf or md")
	translateCmd.Flags().StringP("source", "s", "English", "Source language")
	translateCmd.Flags().StringP("target", "t", "Chinese", "Target language")

	translateCmd.Flags().String("base-url", llm.DefaultBaseURL, "Inference endpoint base URL")
	translateCmd.Flags().String("model", llm.DefaultModel, "Model name")
	translateCmd.Flags().Duration("timeout", llm.DefaultTimeout, "Per-request timeout")

	translateCmd.Flags().Int("chunk-size", 2000, "Chunk size budget in characters")
	translateCmd.Flags().Float64("temperature", 0.3, "Sampling temperature for first attempts")
	translateCmd.Flags().Float64("revision-temperature", 0.2, "Sampling temperature for corrective retries")
	translateCmd.Flags().Int("max-tokens", 4000, "Completion token limit per request")
	translateCmd.Flags().Int("max-attempts", 3, "Total attempts per chunk including the first")
	translateCmd.Flags().Int("network-retries", 3, "Total tries per request when the endpoint errors")
	translateCmd.Flags().Duration("delay", 500*time.Millisecond, "Minimum delay between chunk requests")
	translateCmd.Flags().Bool("delay-retries", false, "Apply the request delay to corrective retries too")
	translateCmd.Flags().Int("concurrency", 1, "Chunks translated in parallel")

	translateCmd.Flags().String("font", "", "TTF/OTF font for PDF output (system fonts probed when empty)")
	translateCmd.Flags().String("asset-policy", "overwrite", "Existing asset directory handling: overwrite, fail, or uniquify")

	translateCmd.MarkFlagRequired("input")
}
