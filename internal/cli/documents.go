package cli

import (
	"fmt"

	"calmchat/internal/util"

	"github.com/spf13/cobra"
)

var (
	documentsJSON bool
	clearYes      bool
)

var documentsCmd = &cobra.Command{
	Use:   "documents",
	Short: "Manage ingested documents",
	Long:  `List ingested documents, inspect their chunks, or remove them from the collection.`,
}

var documentsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List ingested documents and their last ingestion outcome",
	Args:  cobra.NoArgs,
	RunE:  runDocumentsList,
}

var documentsChunksCmd = &cobra.Command{
	Use:   "chunks [filename]",
	Short: "Print the stored chunks of a document",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsChunks,
}

var documentsDeleteCmd = &cobra.Command{
	Use:   "delete [filename]",
	Short: "Remove a document from the collection",
	Args:  cobra.ExactArgs(1),
	RunE:  runDocumentsDelete,
}

var documentsClearCmd = &cobra.Command{
	Use:   "clear",
	Short: "Remove every document from the collection",
	Args:  cobra.NoArgs,
	RunE:  runDocumentsClear,
}

func init() {
	documentsCmd.PersistentFlags().BoolVar(&documentsJSON, "json", false, "output as JSON")
	documentsClearCmd.Flags().BoolVarP(&clearYes, "yes", "y", false, "confirm clearing the collection")

	documentsCmd.AddCommand(documentsListCmd)
	documentsCmd.AddCommand(documentsChunksCmd)
	documentsCmd.AddCommand(documentsDeleteCmd)
	documentsCmd.AddCommand(documentsClearCmd)
	rootCmd.AddCommand(documentsCmd)
}

func runDocumentsList(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	docs, err := a.Status.ListDocuments(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to list documents: %w", err)
	}
	if documentsJSON {
		return printJSON(cmd, docs)
	}
	if len(docs) == 0 {
		cmd.Println("No documents ingested.")
		return nil
	}
	for _, d := range docs {
		cmd.Printf("  %s\n", d.Filename)
		cmd.Printf("    Status:  %s\n", d.State)
		cmd.Printf("    Pages:   %d (ocr %d)\n", d.Pages, d.OCRPages)
		cmd.Printf("    Chunks:  %d\n", d.Chunks)
		if d.Error != "" {
			cmd.Printf("    Error:   [%s] %s\n", d.ErrorKind, d.Error)
		}
		cmd.Printf("    Updated: %s\n", d.UpdatedAt.Format("2006-01-02 15:04:05"))
	}
	cmd.Printf("\nTotal: %d documents\n", len(docs))
	return nil
}

func runDocumentsChunks(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	chunks, err := a.Gateway.DocumentChunks(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get chunks: %w", err)
	}
	if documentsJSON {
		return printJSON(cmd, chunks)
	}
	for _, c := range chunks {
		cmd.Printf("[%d] page %d  %s\n", c.Offset, c.PageNumber, util.DisplaySnippet(c.Text, 160))
	}
	cmd.Printf("\nTotal: %d chunks\n", len(chunks))
	return nil
}

func runDocumentsDelete(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Pipeline.Remove(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to delete document: %w", err)
	}
	cmd.Printf("Deleted %s (%d chunks)\n", args[0], n)
	return nil
}

func runDocumentsClear(cmd *cobra.Command, _ []string) error {
	if !clearYes {
		return fmt.Errorf("refusing to clear the collection without --yes")
	}
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	n, err := a.Pipeline.Clear(cmd.Context())
	if err != nil {
		return fmt.Errorf("failed to clear collection: %w", err)
	}
	cmd.Printf("Cleared collection (%d chunks)\n", n)
	return nil
}
