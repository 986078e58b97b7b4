package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"capture-go/internal/app"
	"capture-go/internal/config"

	"github.com/spf13/cobra"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()
	if err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Add", "Publish").
func newApp(ctx context.Context, operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.New(ctx, cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

var rootCmd = &cobra.Command{
	Use:          "capture",
	Short:        "Capture media with signed provenance",
	SilenceUsage: true,
}

// config command
var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		hostname, err := os.Hostname()
		if err != nil || hostname == "" {
			hostname = "capture-device"
		}

		cfg := config.NewConfig(hostname, defaults["base_dir"])
		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device:   %s\n", cfg.DeviceName)
		fmt.Printf("Data Dir: %s\n", cfg.DataDir)
		return nil
	},
}

var configListCmd = &cobra.Command{
	Use:   "list",
	Short: "View configuration",
	RunE: func(cmd *cobra.Command, args []string) error {
		defaults, err := app.GetDefaults()
		if err != nil {
			return fmt.Errorf("failed to get defaults: %w", err)
		}

		cfg, err := config.ReadFromFile(defaults["config_path"])
		if err != nil {
			return fmt.Errorf("failed to read config: %w", err)
		}

		publisher := cfg.Publisher.Type
		if publisher == "" {
			publisher = "(none)"
		}
		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device:     %s\n", cfg.DeviceName)
		fmt.Printf("Version:    %s\n", cfg.AppVersion)
		fmt.Printf("Data Dir:   %s\n", cfg.DataDir)
		fmt.Printf("Log Dir:    %s\n", cfg.LogDir)
		fmt.Printf("Database:   %s\n", cfg.Database.Type)
		fmt.Printf("Background: %t\n", cfg.Collector.Background)
		fmt.Printf("Publisher:  %s\n", publisher)
		fmt.Printf("Backend:    %s\n", cfg.Backend.BaseURL)
		return nil
	},
}

// add command
var addCmd = &cobra.Command{
	Use:   "add PATH",
	Short: "Capture a file or a directory of media",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recursive, _ := cmd.Flags().GetBool("recursive")
		mime, _ := cmd.Flags().GetString("mime")

		a, err := newApp(cmd.Context(), "Add")
		if err != nil {
			return err
		}
		defer a.Close()

		hashes, err := a.Add(cmd.Context(), args[0], recursive, mime)
		for _, h := range hashes {
			fmt.Println(h)
		}
		if err != nil {
			return fmt.Errorf("capturing: %w", err)
		}

		fmt.Printf("Captured %d file(s)\n", len(hashes))
		return nil
	},
}

// list command
var listCmd = &cobra.Command{
	Use:   "list",
	Short: "List proofs",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "List")
		if err != nil {
			return err
		}
		defer a.Close()

		proofs, err := a.Proofs(cmd.Context())
		if err != nil {
			return err
		}

		if len(proofs) == 0 {
			fmt.Println("No proofs.")
			return nil
		}

		for _, p := range proofs {
			state := "   "
			switch {
			case p.CollectionPending:
				state = "P  "
			case p.DiaBackendAssetID != "":
				state = "U  "
			}
			fmt.Printf("%s %s  %s  %s\n",
				state,
				shortHash(p.Hash),
				time.UnixMilli(p.Timestamp).Format("2006-01-02 15:04:05"),
				p.MimeType.Type,
			)
		}
		return nil
	},
}

// show command
var showCmd = &cobra.Command{
	Use:   "show HASH",
	Short: "Show the facts and signatures of a proof",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Show")
		if err != nil {
			return err
		}
		defer a.Close()

		b, err := a.Show(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		p := b.Proof
		fmt.Printf("Hash:      %s\n", p.Hash)
		fmt.Printf("Type:      %s\n", p.MimeType.Type)
		fmt.Printf("Timestamp: %s\n", time.UnixMilli(p.Timestamp).Format(time.RFC3339))
		if p.Geolocation != nil {
			fmt.Printf("Location:  %v, %v\n", p.Geolocation.Latitude, p.Geolocation.Longitude)
		}
		if p.DiaBackendAssetID != "" {
			fmt.Printf("Asset:     %s\n", p.DiaBackendAssetID)
		}
		if p.CollectionPending {
			fmt.Println("Collection pending")
		}

		fmt.Println("\nFacts:")
		for _, f := range b.Facts {
			fmt.Printf("  %-10s %-20s %s\n", f.Provider, f.Name, f.Value)
		}
		fmt.Println("\nSignatures:")
		for _, s := range b.Signatures {
			fmt.Printf("  %-12s %s\n", s.Provider, s.Signature)
		}
		return nil
	},
}

// verify command
var verifyCmd = &cobra.Command{
	Use:   "verify HASH",
	Short: "Verify the signatures of a proof",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Verify")
		if err != nil {
			return err
		}
		defer a.Close()

		checks, err := a.Verify(cmd.Context(), args[0])
		if err != nil {
			return err
		}

		if len(checks) == 0 {
			return fmt.Errorf("proof has no signatures")
		}

		failed := 0
		for _, c := range checks {
			if c.Valid {
				fmt.Printf("OK    %s\n", c.Provider)
				continue
			}
			failed++
			fmt.Printf("FAIL  %s: %v\n", c.Provider, c.Err)
		}
		if failed > 0 {
			return fmt.Errorf("%d signature(s) failed verification", failed)
		}
		return nil
	},
}

// rm command
var rmCmd = &cobra.Command{
	Use:   "rm HASH",
	Short: "Remove a proof and its content",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Remove")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Remove(cmd.Context(), args[0]); err != nil {
			return err
		}
		fmt.Printf("Removed %s\n", args[0])
		return nil
	},
}

// raw command
var rawCmd = &cobra.Command{
	Use:   "raw HASH",
	Short: "Write the raw content of a proof",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), "RawFile")
		if err != nil {
			return err
		}
		defer a.Close()

		return writeOutput(output, func(f *os.File) error {
			return a.RawFile(cmd.Context(), args[0], f)
		})
	},
}

// thumbnail command
var thumbnailCmd = &cobra.Command{
	Use:   "thumbnail HASH",
	Short: "Print the thumbnail data URL of a proof",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Thumbnail")
		if err != nil {
			return err
		}
		defer a.Close()

		url, err := a.Thumbnail(cmd.Context(), args[0])
		if err != nil {
			return err
		}
		fmt.Println(url)
		return nil
	},
}

// settings command
var settingsCmd = &cobra.Command{
	Use:   "settings [device|location on|off]",
	Short: "View or change which facts are collected",
	Args:  cobra.MaximumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			return fmt.Errorf("expected a setting and on|off")
		}

		a, err := newApp(cmd.Context(), "Settings")
		if err != nil {
			return err
		}
		defer a.Close()

		if len(args) == 2 {
			enabled, err := parseSwitch(args[1])
			if err != nil {
				return err
			}
			if err := a.SetCollection(cmd.Context(), args[0], enabled); err != nil {
				return err
			}
		}

		device, location, err := a.CollectionSettings(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("device:   %s\n", formatSwitch(device))
		fmt.Printf("location: %s\n", formatSwitch(location))
		return nil
	},
}

// keys command
var keysCmd = &cobra.Command{
	Use:   "keys",
	Short: "Manage signing and share keys",
}

var keysShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show public keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Keys")
		if err != nil {
			return err
		}
		defer a.Close()

		key, err := a.SigningKey(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Signing key: %s\n", key)

		if !a.SharingConfigured() {
			fmt.Println("Share key:   (not configured, run `capture keys init`)")
			return nil
		}
		recipient, err := a.ShareRecipient()
		if err != nil {
			return err
		}
		fmt.Printf("Share key:   %s\n", recipient)
		return nil
	},
}

var keysInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create signing and share keys",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "InitKeys")
		if err != nil {
			return err
		}
		defer a.Close()

		var passphrase string
		if !a.SharingConfigured() {
			if passphrase, err = promptPassphrase("Share key passphrase: ", true); err != nil {
				return err
			}
		}
		if err := a.InitKeys(cmd.Context(), passphrase); err != nil {
			return fmt.Errorf("creating keys: %w", err)
		}
		fmt.Println("Keys ready.")
		return nil
	},
}

// migrate command
var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Run pending data migrations",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Migrate")
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.Migrate(cmd.Context()); err != nil {
			return err
		}
		done, prev, err := a.MigrationStatus(cmd.Context())
		if err != nil {
			return err
		}
		fmt.Printf("Migrations complete: %t (last version %s)\n", done, prev)
		return nil
	},
}

// publish command
var publishCmd = &cobra.Command{
	Use:   "publish HASH",
	Short: "Upload a proof bundle to the configured publisher",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp(cmd.Context(), "Publish")
		if err != nil {
			return err
		}
		defer a.Close()

		id, err := a.Publish(cmd.Context(), args[0])
		if err != nil {
			return fmt.Errorf("publish failed: %w", err)
		}
		fmt.Printf("Published as %s\n", id)
		return nil
	},
}

// share command
var shareCmd = &cobra.Command{
	Use:   "share HASH",
	Short: "Write an encrypted share bundle of a proof",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		recipients, _ := cmd.Flags().GetStringSlice("to")
		output, _ := cmd.Flags().GetString("output")

		a, err := newApp(cmd.Context(), "Share")
		if err != nil {
			return err
		}
		defer a.Close()

		return writeOutput(output, func(f *os.File) error {
			return a.Share(cmd.Context(), args[0], f, recipients...)
		})
	},
}

var shareOpenCmd = &cobra.Command{
	Use:   "open FILE",
	Short: "Decrypt a share bundle",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		importIt, _ := cmd.Flags().GetBool("import")

		a, err := newApp(cmd.Context(), "ShareOpen")
		if err != nil {
			return err
		}
		defer a.Close()

		f, err := os.Open(args[0])
		if err != nil {
			return fmt.Errorf("opening bundle: %w", err)
		}
		defer f.Close()

		passphrase, err := promptPassphrase("Share key passphrase: ", false)
		if err != nil {
			return err
		}

		b, added, err := a.OpenShare(cmd.Context(), f, passphrase, importIt)
		if err != nil {
			return err
		}
		fmt.Printf("Proof %s: %d fact(s), %d signature(s)\n", b.Proof.Hash, len(b.Facts), len(b.Signatures))
		switch {
		case importIt && added:
			fmt.Println("Imported.")
		case importIt:
			fmt.Println("Already present.")
		}
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View operation history",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp(cmd.Context(), "History")
		if err != nil {
			return err
		}
		defer a.Close()

		ops, err := a.History(cmd.Context(), limit)
		if err != nil {
			return err
		}

		if len(ops) == 0 {
			fmt.Println("No operations recorded.")
			return nil
		}

		for _, op := range ops {
			duration := ""
			if op.FinishedAt != nil {
				d := op.FinishedAt.Sub(op.StartedAt)
				duration = d.Truncate(time.Millisecond).String()
			}
			fmt.Printf("#%d  %-10s  %s  %-8s  %-10s  %s\n",
				op.ID,
				op.Operation,
				op.StartedAt.Format("2006-01-02 15:04:05"),
				op.Status,
				duration,
				op.Parameters,
			)
		}
		return nil
	},
}

func parseSwitch(s string) (bool, error) {
	switch s {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	b, err := strconv.ParseBool(s)
	if err != nil {
		return false, fmt.Errorf("expected on or off, got %q", s)
	}
	return b, nil
}

func shortHash(h string) string {
	if len(h) > 12 {
		return h[:12]
	}
	return h
}

func formatSwitch(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

// writeOutput runs write against the named file, or stdout when name is
// empty or "-". A partially written file is removed on error.
func writeOutput(name string, write func(f *os.File) error) error {
	if name == "" || name == "-" {
		return write(os.Stdout)
	}
	f, err := os.Create(name)
	if err != nil {
		return fmt.Errorf("creating %s: %w", name, err)
	}
	if err := write(f); err != nil {
		f.Close()
		os.Remove(name)
		return err
	}
	return f.Close()
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// keys subcommands
	keysCmd.AddCommand(keysShowCmd)
	keysCmd.AddCommand(keysInitCmd)

	// share subcommands
	shareCmd.AddCommand(shareOpenCmd)
	shareCmd.Flags().StringSlice("to", nil, "Additional recipient public key (repeatable)")
	shareCmd.Flags().StringP("output", "o", "", "Write the bundle to FILE instead of stdout")
	shareOpenCmd.Flags().Bool("import", false, "Store the proof locally")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(addCmd)
	addCmd.Flags().BoolP("recursive", "r", false, "Recurse into subdirectories")
	addCmd.Flags().String("mime", "", "Override the detected media type of a single file")
	rootCmd.AddCommand(listCmd)
	rootCmd.AddCommand(showCmd)
	rootCmd.AddCommand(verifyCmd)
	rootCmd.AddCommand(rmCmd)
	rootCmd.AddCommand(rawCmd)
	rawCmd.Flags().StringP("output", "o", "", "Write the content to FILE instead of stdout")
	rootCmd.AddCommand(thumbnailCmd)
	rootCmd.AddCommand(settingsCmd)
	rootCmd.AddCommand(keysCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(publishCmd)
	rootCmd.AddCommand(shareCmd)
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of operations to show")
}
