package cli

import (
	"strings"

	"calmchat/internal/util"

	"github.com/spf13/cobra"
)

var statusJSON bool

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show collection and runtime status",
	Long: `Shows the PDFs waiting in the input directory, the ingested collection, the
configured providers and whether OCR is available.`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	statusCmd.Flags().BoolVar(&statusJSON, "json", false, "output status as JSON")
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	info, err := a.Info(cmd.Context())
	if err != nil {
		return err
	}
	available := 0
	if pdfs, err := util.ListPDFs(a.Config.DataInRoot); err == nil {
		available = len(pdfs)
	}
	if statusJSON {
		return printJSON(cmd, map[string]any{"collection": info, "available_pdfs": available})
	}

	cmd.Println("System status")
	cmd.Println(strings.Repeat("=", 40))
	cmd.Printf("  PDFs available:  %d (%s)\n", available, a.Config.DataInRoot)
	cmd.Printf("  Chunks stored:   %d\n", info.TotalChunks)
	cmd.Printf("  Documents:       %d\n", info.UniqueFiles)
	for _, f := range info.Files {
		cmd.Printf("    - %s\n", f)
	}
	cmd.Printf("  Store:           %s (dimension=%d metric=%s)\n", info.StoreBackend, info.Dimension, info.Metric)
	cmd.Printf("  Embeddings:      %s\n", info.EmbedProvider)
	cmd.Printf("  LLM providers:   %s\n", strings.Join(info.LLMProviders, ", "))
	cmd.Printf("  OCR:             %s\n", onOff(info.OCREnabled))
	for _, c := range info.ProviderCalls {
		cmd.Printf("  Calls %-18s %d (errors %d)\n", c.ProviderName+"/"+c.Operation, c.Calls, c.Errors)
	}

	if available == 0 {
		cmd.Printf("\nNo PDFs found. Add PDFs to %s\n", a.Config.DataInRoot)
	}
	if info.TotalChunks == 0 {
		cmd.Println("\nNo documents ingested. Run: calmctl ingest")
	}
	return nil
}

func onOff(b bool) string {
	if b {
		return "enabled"
	}
	return "disabled"
}
