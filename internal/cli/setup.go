package cli

import (
	"fmt"

	"calmchat/internal/util"

	"github.com/spf13/cobra"
)

var setupCmd = &cobra.Command{
	Use:   "setup",
	Short: "Create data directories and initialise the stores",
	Long: `Creates the input, output and export directories, then connects to the configured
vector store, creating its schema and recording the embedding dimension and metric.`,
	Args: cobra.NoArgs,
	RunE: runSetup,
}

func init() {
	rootCmd.AddCommand(setupCmd)
}

func runSetup(cmd *cobra.Command, _ []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	for _, dir := range []string{a.Config.DataInRoot, a.Config.DataOutRoot, a.Config.ExportDir} {
		if err := util.EnsureDir(dir); err != nil {
			return fmt.Errorf("create %s: %w", dir, err)
		}
	}
	cmd.Println("Directories ready:")
	cmd.Printf("  PDFs:    %s\n", a.Config.DataInRoot)
	cmd.Printf("  Output:  %s\n", a.Config.DataOutRoot)
	cmd.Printf("  Exports: %s\n", a.Config.ExportDir)
	cmd.Printf("Vector store ready: backend=%s dimension=%d metric=%s\n",
		a.Config.StoreBackend, a.Gateway.Dimension(), a.Gateway.Metric())
	return nil
}
