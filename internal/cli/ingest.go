package cli

import (
	"os"
	"os/signal"
	"syscall"

	"calmchat/internal/config"
	"calmchat/internal/ingest"

	"github.com/spf13/cobra"
)

var (
	ingestDir   string
	ingestWatch bool
	ingestNoOCR bool
	ingestJSON  bool
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Ingest the PDFs of a directory",
	Long: `Extracts, chunks and embeds every PDF in the input directory, replacing the
stored chunks of each document. With --watch it keeps running and ingests PDFs as
they are added or changed, and removes the chunks of PDFs that are deleted.`,
	Args: cobra.NoArgs,
	RunE: runIngest,
}

func init() {
	ingestCmd.Flags().StringVarP(&ingestDir, "dir", "d", "", "input directory (default: configured data_in)")
	ingestCmd.Flags().BoolVarP(&ingestWatch, "watch", "w", false, "keep watching the directory after the initial pass")
	ingestCmd.Flags().BoolVar(&ingestNoOCR, "no-ocr", false, "disable OCR for scanned pages")
	ingestCmd.Flags().BoolVar(&ingestJSON, "json", false, "output the report as JSON")
	rootCmd.AddCommand(ingestCmd)
}

func runIngest(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), func(cfg *config.Config) {
		if ingestNoOCR {
			cfg.OCREnabled = false
		}
	})
	if err != nil {
		return err
	}
	defer a.Close()

	dir := ingestDir
	if dir == "" {
		dir = a.Config.DataInRoot
	}
	report, err := a.Pipeline.IngestDirectory(cmd.Context(), dir)
	if err != nil {
		return err
	}
	if ingestJSON {
		if err := printJSON(cmd, report); err != nil {
			return err
		}
	} else {
		printReport(cmd, report)
	}
	if !ingestWatch {
		return nil
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	w := ingest.NewWatcher(dir, a.Pipeline, ingest.DefaultDebounce)
	w.OnReport = func(fr ingest.FileReport, err error) {
		if err != nil {
			cmd.PrintErrf("%s: %v\n", fr.Filename, err)
			return
		}
		printFileReport(cmd, fr)
	}
	cmd.Printf("Watching %s (Ctrl+C to stop)\n", dir)
	return w.Run(ctx)
}

func printReport(cmd *cobra.Command, report ingest.Report) {
	if report.Files == 0 {
		cmd.Println("No PDFs found.")
		return
	}
	for _, fr := range report.PerFile {
		printFileReport(cmd, fr)
	}
	cmd.Println()
	cmd.Printf("Files: %d  Succeeded: %d  Failed: %d  Chunks: %d\n",
		report.Files, report.Succeeded, report.Failed, report.TotalChunks)
}

func printFileReport(cmd *cobra.Command, fr ingest.FileReport) {
	if fr.Error != "" {
		cmd.Printf("  FAILED  %s [%s] %s\n", fr.Filename, fr.ErrorKind, fr.Error)
		return
	}
	cmd.Printf("  OK      %s pages=%d ocr_pages=%d chunks=%d", fr.Filename, fr.Pages, fr.OCRPages, fr.Chunks)
	if len(fr.PageFailures) > 0 {
		cmd.Printf(" failed_pages=%v", fr.PageFailures)
	}
	cmd.Println()
}
