package cli

import (
	"fmt"

	"calmchat/internal/session"

	"github.com/spf13/cobra"
)

var exportOut string

var exportCmd = &cobra.Command{
	Use:   "export [session-id]",
	Short: "Export a conversation as JSON",
	Args:  cobra.ExactArgs(1),
	RunE:  runExport,
}

func init() {
	exportCmd.Flags().StringVarP(&exportOut, "out", "o", "", "output directory (default: configured export_dir)")
	rootCmd.AddCommand(exportCmd)
}

func runExport(cmd *cobra.Command, args []string) error {
	a, err := openApp(cmd.Context(), nil)
	if err != nil {
		return err
	}
	defer a.Close()

	sess, err := a.Sessions.Get(cmd.Context(), args[0])
	if err != nil {
		return fmt.Errorf("failed to get session: %w", err)
	}
	dir := exportOut
	if dir == "" {
		dir = a.Config.ExportDir
	}
	path, err := session.WriteExport(dir, sess)
	if err != nil {
		return err
	}
	cmd.Printf("Exported %d messages to %s\n", len(sess.Turns), path)
	return nil
}
