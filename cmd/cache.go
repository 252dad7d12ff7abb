package cmd

import (
	"fmt"
	"os"
	"strings"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"pdftranslate/internal/cache"
)

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and clear resume caches",
	Long: `Inspect and clear the .cache.db side-car files that interrupted
runs leave next to their output file.`,
}

var cacheInfoCmd = &cobra.Command{
	Use:   "info <output-file>",
	Short: "Show the resume cache for an output file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cache.SidecarPath(args[0])
		info, err := cache.Inspect(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("No cache found at %s\n", path)
				return nil
			}
			return err
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintf(w, "Cache:\t%s\n", path)
		fmt.Fprintf(w, "Input:\t%s\n", info.Fingerprint.InputPath)
		fmt.Fprintf(w, "Output:\t%s\n", info.Fingerprint.OutputPath)
		fmt.Fprintf(w, "Model:\t%s\n", info.Fingerprint.Model)
		fmt.Fprintf(w, "Chunk size:\t%d\n", info.Fingerprint.ChunkSize)
		fmt.Fprintf(w, "Chunks:\t%d (%d verified, %d failed)\n", info.Total, info.Verified, info.Failed)
		return w.Flush()
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list <output-file>",
	Short: "List the chunk records in a resume cache",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cache.SidecarPath(args[0])
		results, err := cache.ListResults(path)
		if err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("No cache found at %s\n", path)
				return nil
			}
			return err
		}
		if len(results) == 0 {
			fmt.Println("Cache is empty.")
			return nil
		}

		w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
		fmt.Fprintln(w, "CHUNK\tSTATE\tATTEMPTS\tFLAGS\tTEXT")
		for _, r := range results {
			snippet := r.Text
			if len(snippet) > 40 {
				snippet = snippet[:37] + "..."
			}
			fmt.Fprintf(w, "%s\t%s\t%d\t%s\t%s\n",
				r.ID, r.State, r.Attempts, strings.Join(r.Flags, ","), snippet)
		}
		return w.Flush()
	},
}

var cacheClearCmd = &cobra.Command{
	Use:   "clear <output-file>",
	Short: "Delete the resume cache for an output file",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := cache.SidecarPath(args[0])
		if err := os.Remove(path); err != nil {
			if os.IsNotExist(err) {
				fmt.Printf("No cache found at %s\n", path)
				return nil
			}
			return fmt.Errorf("failed to delete cache: %w", err)
		}
		fmt.Printf("Deleted %s\n", path)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(cacheCmd)
	cacheCmd.AddCommand(cacheInfoCmd)
	cacheCmd.AddCommand(cacheListCmd)
	cacheCmd.AddCommand(cacheClearCmd)
}
