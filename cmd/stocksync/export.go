package main

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"
	"github.com/stockmaster/stocksync/internal/migrate"
	"github.com/stockmaster/stocksync/internal/remote"
	"github.com/stockmaster/stocksync/internal/ui"
)

var exportCmd = &cobra.Command{
	Use:     "export [file]",
	GroupID: "data",
	Short:   "Write a snapshot of the local store",
	Long: `Write the business collections, settings and lastSyncTime to a
snapshot file, or to stdout when no file is given. The session token is
never exported.

The format follows the file extension (.jsonl or .yaml) unless --format
is set.`,
	Args: cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		formatName, _ := cmd.Flags().GetString("format")
		if formatName == "" && len(args) == 1 {
			formatName = args[0]
		}
		format, err := migrate.ParseFormat(formatName)
		if err != nil {
			return err
		}

		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 0 {
			_, err := migrate.Export(ctx, a.store, os.Stdout, format)
			return err
		}

		result, err := migrate.ExportFile(ctx, a.store, args[0], format)
		if err != nil {
			return err
		}
		fmt.Fprintf(os.Stderr, "%s Exported %d slots (%d records) to %s\n",
			ui.RenderPass("✓"), len(result.Slots), result.Records, args[0])
		return nil
	},
}

var importCmd = &cobra.Command{
	Use:     "import <file>",
	GroupID: "data",
	Short:   "Restore the local store from a snapshot",
	Long: `Replace the slots present in a snapshot file. The whole file is
validated before anything is written; slots missing from the file are
left untouched.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		dryRun, _ := cmd.Flags().GetBool("dry-run")
		backup, _ := cmd.Flags().GetBool("backup")

		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		opts := migrate.ImportOptions{DryRun: dryRun}
		if backup && !dryRun {
			opts.Backup = migrate.BackupPath(args[0], time.Now())
		}
		result, err := migrate.ImportFile(ctx, a.store, args[0], opts)
		if err != nil {
			return err
		}

		names := make([]string, len(result.Slots))
		for i, s := range result.Slots {
			names[i] = s.String()
		}
		if dryRun {
			fmt.Printf("%s Dry run: would import %d records into %s\n",
				ui.RenderAccent("ℹ"), result.Records, strings.Join(names, ", "))
			return nil
		}
		if result.BackupCreated != "" {
			fmt.Printf("Backup: %s\n", ui.RenderMuted(result.BackupCreated))
		}
		fmt.Printf("%s Imported %d records into %s\n",
			ui.RenderPass("✓"), result.Records, strings.Join(names, ", "))
		return nil
	},
}

var mergeCmd = &cobra.Command{
	Use:     "merge <file>",
	GroupID: "data",
	Short:   "Merge a saved server response into the local store",
	Long: `Fold a server snapshot (a JSON sync response body) into the local
store without contacting the server. Server records win on id conflicts;
local records the server has not acknowledged are kept.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cmd.Context()
		// #nosec G304 - controlled path from CLI
		data, err := os.ReadFile(args[0])
		if err != nil {
			return fmt.Errorf("failed to read %s: %w", args[0], err)
		}
		var resp remote.Response
		if err := json.Unmarshal(data, &resp); err != nil {
			return fmt.Errorf("failed to parse %s: %w", args[0], err)
		}

		a, err := openApp(ctx, nil)
		if err != nil {
			return err
		}
		defer a.Close()

		slots, err := a.manager.Merge(ctx, resp)
		if err != nil {
			return err
		}
		if len(slots) == 0 {
			fmt.Println("Nothing to merge")
			return nil
		}
		names := make([]string, len(slots))
		for i, s := range slots {
			names[i] = s.String()
		}
		fmt.Printf("%s Merged %s\n", ui.RenderPass("✓"), strings.Join(names, ", "))
		return nil
	},
}

func init() {
	exportCmd.Flags().StringP("format", "f", "", "snapshot format: jsonl or yaml")
	importCmd.Flags().Bool("dry-run", false, "validate without writing")
	importCmd.Flags().Bool("backup", true, "export the current store next to the input first")

	rootCmd.AddCommand(exportCmd, importCmd, mergeCmd)
}
