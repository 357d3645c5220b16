// ABOUTME: CLI entry point for composer-transfer
// ABOUTME: Export, import, transfer, remove, and list composer records across stores

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/fatih/color"

	"github.com/cursorkit/composer-transfer/internal/composer"
	"github.com/cursorkit/composer-transfer/internal/config"
	"github.com/cursorkit/composer-transfer/internal/kvstore"
)

// Version is set by goreleaser at build time.
var version = "dev"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	cfg := loadConfig()
	setupLogging(cfg.Logging)

	cmd := os.Args[1]
	args := os.Args[2:]

	var err error
	switch cmd {
	case "export":
		err = cmdExport(cfg, args)
	case "import":
		err = cmdImport(cfg, args)
	case "transfer":
		err = cmdTransfer(cfg, args)
	case "remove":
		err = cmdRemove(cfg, args)
	case "list":
		err = cmdList(cfg, args)
	case "version":
		fmt.Printf("composer-transfer %s\n", version)
	case "help", "-h", "--help":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", cmd)
		printUsage()
		os.Exit(1)
	}

	if err != nil {
		color.Red("Error: %v", err)
		os.Exit(1)
	}
}

func printUsage() {
	fmt.Print(`composer-transfer - move chat records between key-value stores

Usage: composer-transfer <command> [flags]

Commands:
  export    Export records from a store pair into a snapshot file
  import    Import a snapshot file into a store pair
  transfer  Move records between two index stores sharing one payload store
  remove    Detach records from a store's index
  list      List the records in a store's index
  version   Print the version

Common flags:
  -index <path>     index store file (workspace state.vscdb)
  -payload <path>   payload store file (global state.vscdb)
  -id <ids>         comma-separated composer IDs (default: all)

Config file: $COMPOSER_TRANSFER_CONFIG, else ~/.config/composer-transfer/config.yaml
`)
}

// getConfigPath returns the path to the config file.
// Priority: COMPOSER_TRANSFER_CONFIG env var > XDG_CONFIG_HOME > ~/.config
func getConfigPath() string {
	if envPath := os.Getenv("COMPOSER_TRANSFER_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "config.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "composer-transfer", "config.yaml")
}

func loadConfig() *config.Config {
	path := getConfigPath()
	if _, err := os.Stat(path); err != nil {
		// No config file is fine; everything can come from flags
		return config.Default()
	}
	cfg, err := config.Load(path)
	if err != nil {
		color.Red("Error loading config %s: %v", path, err)
		os.Exit(1)
	}
	return cfg
}

func setupLogging(cfg config.LoggingConfig) {
	var level slog.Level
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	opts := &slog.HandlerOptions{Level: level}

	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}

// storeFlags holds the store-pair flags shared by most subcommands
type storeFlags struct {
	indexPath   string
	payloadPath string
	ids         string
}

func (f *storeFlags) register(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&f.indexPath, "index", cfg.Stores.IndexPath, "index store file")
	fs.StringVar(&f.payloadPath, "payload", cfg.Stores.PayloadPath, "payload store file")
	fs.StringVar(&f.ids, "id", "", "comma-separated composer IDs (default: all)")
}

func (f *storeFlags) selectedIDs() []string {
	if f.ids == "" {
		return nil
	}
	var ids []string
	for _, id := range strings.Split(f.ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			ids = append(ids, id)
		}
	}
	return ids
}

func openStorePair(cfg *config.Config, indexPath, payloadPath string) (*kvstore.SQLiteStore, *kvstore.SQLiteStore, error) {
	if indexPath == "" {
		return nil, nil, errors.New("no index store: pass -index or set stores.index_path in config")
	}
	if payloadPath == "" {
		return nil, nil, errors.New("no payload store: pass -payload or set stores.payload_path in config")
	}

	indexStore, err := kvstore.Open(indexPath, cfg.Stores.IndexTable)
	if err != nil {
		return nil, nil, err
	}
	payloadStore, err := kvstore.Open(payloadPath, cfg.Stores.PayloadTable)
	if err != nil {
		indexStore.Close()
		return nil, nil, err
	}
	return indexStore, payloadStore, nil
}

func cmdExport(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("export", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs, cfg)
	out := fs.String("out", "", "snapshot file to write (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *out == "" {
		return errors.New("-out is required")
	}

	indexStore, payloadStore, err := openStorePair(cfg, sf.indexPath, sf.payloadPath)
	if err != nil {
		return err
	}
	defer indexStore.Close()
	defer payloadStore.Close()

	ctx := context.Background()
	snap, diag, err := composer.BuildSnapshot(ctx, indexStore, payloadStore, composer.ExportOptions{
		SelectedIDs:   sf.selectedIDs(),
		MaxStoreBytes: cfg.Limits.MaxStoreBytes,
	})
	if err != nil {
		return err
	}

	if err := composer.SaveSnapshot(*out, snap); err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("Exported %d records (%d payloads, %d bubbles) to %s\n",
		diag.RecordsScanned, diag.PayloadHits, diag.BubbleCount, *out)
	printWarnings(diag.Warnings)
	return nil
}

func cmdImport(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("import", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs, cfg)
	in := fs.String("in", "", "snapshot file to read (required)")
	clone := fs.Bool("clone", false, "remap record identities to fresh IDs before importing")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *in == "" {
		return errors.New("-in is required")
	}

	// Validate the snapshot before touching any store
	snap, err := composer.LoadSnapshot(*in)
	if err != nil {
		return err
	}

	indexStore, payloadStore, err := openStorePair(cfg, sf.indexPath, sf.payloadPath)
	if err != nil {
		return err
	}
	defer indexStore.Close()
	defer payloadStore.Close()

	var remapped *composer.RemapResult
	if *clone {
		snap, remapped = composer.Remap(snap)
	}

	ctx := context.Background()
	report, err := composer.Merge(ctx, snap, indexStore, payloadStore, composer.MergeOptions{
		BackupDir: cfg.Backup.Dir,
	})
	if err != nil {
		printMergeFailure(report)
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("Imported %d records: %d payload keys written, %d already present, %d added to index\n",
		len(report.FinalRecordIDs), report.InsertedPayloads, report.SkippedPayloads, report.IndexAdded)
	if remapped != nil {
		fmt.Printf("  %d identities remapped\n", len(remapped.IDMap))
		printWarnings(remapped.Diagnostics.Warnings)
	}
	printWarnings(report.Diagnostics.Warnings)
	return nil
}

func cmdTransfer(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("transfer", flag.ExitOnError)
	var sf storeFlags
	sf.register(fs, cfg)
	target := fs.String("target", "", "target index store file (required)")
	modeStr := fs.String("mode", "copy", "transfer mode: copy, cut, or ref")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *target == "" {
		return errors.New("-target is required")
	}

	mode, err := composer.ParseMode(*modeStr)
	if err != nil {
		return err
	}

	srcIndex, payloadStore, err := openStorePair(cfg, sf.indexPath, sf.payloadPath)
	if err != nil {
		return err
	}
	defer srcIndex.Close()
	defer payloadStore.Close()

	dstIndex, err := kvstore.Open(*target, cfg.Stores.IndexTable)
	if err != nil {
		return err
	}
	defer dstIndex.Close()

	ctx := context.Background()
	report, err := composer.LocalTransfer(ctx, srcIndex, dstIndex, payloadStore, mode, composer.TransferOptions{
		SelectedIDs:   sf.selectedIDs(),
		MaxStoreBytes: cfg.Limits.MaxStoreBytes,
		BackupDir:     cfg.Backup.Dir,
	})
	if err != nil {
		if report != nil {
			printMergeFailure(report.Merge)
		}
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("Transferred %d records to %s (mode %s)\n",
		len(report.Merge.FinalRecordIDs), *target, mode)
	if mode == composer.ModeCopy {
		fmt.Printf("  %d identities remapped\n", len(report.Remapped))
	}
	if mode == composer.ModeCut {
		fmt.Printf("  %d records detached from source index\n", report.RemovedFromSource)
	}
	printWarnings(report.Export.Warnings)
	printWarnings(report.Merge.Diagnostics.Warnings)
	return nil
}

func cmdRemove(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("remove", flag.ExitOnError)
	indexPath := fs.String("index", cfg.Stores.IndexPath, "index store file")
	ids := fs.String("id", "", "comma-separated composer IDs to remove (required)")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *ids == "" {
		return errors.New("-id is required")
	}
	if *indexPath == "" {
		return errors.New("no index store: pass -index or set stores.index_path in config")
	}

	var removal []string
	for _, id := range strings.Split(*ids, ",") {
		if id = strings.TrimSpace(id); id != "" {
			removal = append(removal, id)
		}
	}

	indexStore, err := kvstore.Open(*indexPath, cfg.Stores.IndexTable)
	if err != nil {
		return err
	}
	defer indexStore.Close()

	ctx := context.Background()
	removed, err := composer.RemoveRecords(ctx, indexStore, removal, composer.MergeOptions{
		BackupDir: cfg.Backup.Dir,
	})
	if err != nil {
		return err
	}

	green := color.New(color.FgGreen)
	green.Printf("Removed %d of %d records from the index (payloads untouched)\n", removed, len(removal))
	return nil
}

func cmdList(cfg *config.Config, args []string) error {
	fs := flag.NewFlagSet("list", flag.ExitOnError)
	indexPath := fs.String("index", cfg.Stores.IndexPath, "index store file")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *indexPath == "" {
		return errors.New("no index store: pass -index or set stores.index_path in config")
	}

	indexStore, err := kvstore.Open(*indexPath, cfg.Stores.IndexTable)
	if err != nil {
		return err
	}
	defer indexStore.Close()

	ix, err := composer.ReadIndex(context.Background(), indexStore)
	if err != nil {
		return err
	}
	if ix == nil || len(ix.AllComposers) == 0 {
		fmt.Println("No records.")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 4, 2, ' ', 0)
	fmt.Fprintln(w, "COMPOSER ID\tNAME\tUPDATED")
	for _, rec := range ix.AllComposers {
		name := rec.Name
		if name == "" {
			name = "(unnamed)"
		}
		updated := "-"
		if rec.LastUpdatedAt > 0 {
			updated = time.UnixMilli(rec.LastUpdatedAt).Format("2006-01-02 15:04")
		}
		fmt.Fprintf(w, "%s\t%s\t%s\n", rec.ComposerID, name, updated)
	}
	return w.Flush()
}

func printWarnings(warnings []string) {
	if len(warnings) == 0 {
		return
	}
	yellow := color.New(color.FgYellow)
	for _, warning := range warnings {
		yellow.Printf("  warning: %s\n", warning)
	}
}

func printMergeFailure(report *composer.MergeReport) {
	if report == nil {
		return
	}
	fmt.Fprintf(os.Stderr, "merge stopped in state %q\n", report.State)
	for _, path := range report.BackupPaths {
		fmt.Fprintf(os.Stderr, "  backup retained: %s\n", path)
	}
}
