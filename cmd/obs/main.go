package main

import (
	"context"
	"fmt"
	"os"
	"sort"
	"syscall"
	"time"

	"obs-go/internal/app"
	"obs-go/internal/config"
	"obs-go/internal/obs"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"golang.org/x/term"
)

func main() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// newApp reads the config and creates an App. The caller must defer app.Close().
// operation identifies the CLI command being run (e.g. "Admit", "BuildReport").
func newApp(operation string) (*app.App, error) {
	defaults, err := app.GetDefaults()
	if err != nil {
		return nil, fmt.Errorf("getting defaults: %w", err)
	}

	cfg, err := config.ReadFromFile(defaults["config_path"])
	if err != nil {
		return nil, fmt.Errorf("reading config: %w", err)
	}

	a, err := app.NewApp(cfg, operation)
	if err != nil {
		return nil, fmt.Errorf("initializing app: %w", err)
	}

	return a, nil
}

// promptPassphrase reads a passphrase from the terminal without echo.
func promptPassphrase(prompt string) (string, error) {
	fmt.Fprint(os.Stderr, prompt)
	pass, err := term.ReadPassword(int(syscall.Stdin))
	fmt.Fprintln(os.Stderr)
	if err != nil {
		return "", fmt.Errorf("reading passphrase: %w", err)
	}
	if len(pass) == 0 {
		return "", fmt.Errorf("passphrase must not be empty")
	}
	return string(pass), nil
}

var rootCmd = &cobra.Command{
	Use:   "obs",
	Short: "Anonymous field observation reporter",
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

		// Generate a new device ID
		deviceID := uuid.New().String()

		cfg := config.NewConfig(deviceID, defaults["base_dir"])

		if err := config.Init(defaults["config_path"], cfg); err != nil {
			return fmt.Errorf("failed to initialize config: %w", err)
		}

		fmt.Printf("Configuration initialized at %s\n", defaults["config_path"])
		fmt.Printf("Device ID: %s\n", deviceID)
		fmt.Printf("Base Dir:  %s\n", defaults["base_dir"])
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

		fmt.Printf("Configuration from %s:\n\n", defaults["config_path"])
		fmt.Printf("Device ID:     %s\n", cfg.DeviceID)
		fmt.Printf("Base Dir:      %s\n", cfg.BaseDir)
		fmt.Printf("Log Dir:       %s\n", cfg.LogDir)
		fmt.Printf("Admission URL: %s\n", cfg.Authority.AdmissionURL)
		fmt.Printf("Schema URL:    %s\n", cfg.Authority.SchemaURL)
		return nil
	},
}

// identity command
var identityCmd = &cobra.Command{
	Use:   "identity",
	Short: "Manage the device identity key pair",
}

var identityInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Create the device key pair",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("EnsureIdentity")
		if err != nil {
			return err
		}
		defer a.Close()

		pass, err := promptPassphrase("Passphrase for private key: ")
		if err != nil {
			return err
		}

		pair, err := a.EnsureIdentity(pass)
		if err != nil {
			return fmt.Errorf("ensuring identity: %w", err)
		}

		fmt.Printf("Identity ready (kid %d, created %s)\n", pair.KID, pair.CreatedAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

var identityShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the device public key",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ShowIdentity")
		if err != nil {
			return err
		}
		defer a.Close()

		pair, err := a.Identity()
		if err != nil {
			return err
		}
		if pair == nil {
			fmt.Println("No identity. Run: obs identity init")
			return nil
		}

		fmt.Printf("kid: %d\ncreated: %s\n%s", pair.KID, pair.CreatedAt.Format("2006-01-02 15:04:05"), pair.PublicKeyPEM)
		return nil
	},
}

// admit command
var admitCmd = &cobra.Command{
	Use:   "admit",
	Short: "Earn network admission via proof-of-work",
	RunE: func(cmd *cobra.Command, args []string) error {
		timeout, _ := cmd.Flags().GetDuration("timeout")

		a, err := newApp("Admit")
		if err != nil {
			return err
		}
		defer a.Close()

		ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
		defer cancel()

		cert, err := a.Admit(ctx)
		if err != nil {
			return fmt.Errorf("admission failed: %w", err)
		}

		fmt.Printf("Admitted. Certificate valid until %s\n", cert.ExpiresAt.Format("2006-01-02 15:04:05"))
		return nil
	},
}

// labels command
var labelsCmd = &cobra.Command{
	Use:   "labels",
	Short: "Manage the cached label schema",
}

var labelsRefreshCmd = &cobra.Command{
	Use:   "refresh",
	Short: "Refresh the label schema if stale",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("RefreshLabels")
		if err != nil {
			return err
		}
		defer a.Close()

		labels, err := a.RefreshLabels(cmd.Context())
		if err != nil {
			return fmt.Errorf("refreshing labels: %w", err)
		}

		fmt.Printf("Schema snapshot has %d label(s)\n", len(labels))
		return nil
	},
}

var labelsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached labels",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := newApp("ListLabels")
		if err != nil {
			return err
		}
		defer a.Close()

		labels := a.Labels()
		if len(labels) == 0 {
			fmt.Println("No cached schema. Run: obs labels refresh")
			return nil
		}

		for _, l := range labels {
			required := " "
			if l.Required {
				required = "*"
			}
			name := l.LabelID
			if len(l.Names) > 0 {
				keys := make([]string, 0, len(l.Names))
				for k := range l.Names {
					keys = append(keys, k)
				}
				sort.Strings(keys)
				name = l.Names[keys[0]]
			}
			fmt.Printf("%s %-8s %-12s %s\n", required, l.Type, l.LabelID, name)
		}
		return nil
	},
}

// report command
var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Build and validate observation reports",
}

var reportValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate a values file against the schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		valuesPath, _ := cmd.Flags().GetString("values")

		a, err := newApp("ValidateReport")
		if err != nil {
			return err
		}
		defer a.Close()

		result, err := a.ValidateReport(valuesPath)
		if err != nil {
			return err
		}

		if result.Valid {
			fmt.Println("Valid.")
			return nil
		}
		printFindings(result.Errors)
		return fmt.Errorf("validation failed")
	},
}

var reportBuildCmd = &cobra.Command{
	Use:   "build",
	Short: "Build an observation package",
	RunE: func(cmd *cobra.Command, args []string) error {
		valuesPath, _ := cmd.Flags().GetString("values")
		mediaPath, _ := cmd.Flags().GetString("media")

		a, err := newApp("BuildReport")
		if err != nil {
			return err
		}
		defer a.Close()

		pkg, result, err := a.BuildReport(valuesPath, mediaPath)
		if err != nil {
			return fmt.Errorf("building report: %w", err)
		}
		if pkg == nil {
			printFindings(result.Errors)
			return fmt.Errorf("validation failed")
		}

		fmt.Printf("Package built: %s (%d annotation(s), media: %t)\n", pkg.ID, len(pkg.Annotations), pkg.Media != nil)
		return nil
	},
}

// export command
var exportCmd = &cobra.Command{
	Use:   "export PACKAGE_ID",
	Short: "Export a package as a portable archive",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		noMedia, _ := cmd.Flags().GetBool("no-media")
		noMetadata, _ := cmd.Flags().GetBool("no-metadata")

		a, err := newApp("ExportPackage")
		if err != nil {
			return err
		}
		defer a.Close()

		opts := obs.ArchiveOptions{IncludeMedia: !noMedia, IncludeMetadata: !noMetadata}
		name, err := a.Export(args[0], opts)
		if err != nil {
			return fmt.Errorf("export failed: %w", err)
		}

		fmt.Printf("Exported %s\n", name)
		return nil
	},
}

// history command
var historyCmd = &cobra.Command{
	Use:   "history",
	Short: "View built packages",
	RunE: func(cmd *cobra.Command, args []string) error {
		limit, _ := cmd.Flags().GetInt("limit")

		a, err := newApp("History")
		if err != nil {
			return err
		}
		defer a.Close()

		records, err := a.History(limit)
		if err != nil {
			return err
		}

		if len(records) == 0 {
			fmt.Println("No packages built.")
			return nil
		}

		for _, r := range records {
			exported := ""
			if r.ExportedAt != nil {
				exported = "  exported:" + r.ExportedAt.Format("2006-01-02 15:04:05")
			}
			media := " "
			if r.HasMedia {
				media = "M"
			}
			fmt.Printf("%s %s  %s  %d annotation(s)%s\n",
				media,
				r.ID,
				r.CreatedAt.Format("2006-01-02 15:04:05"),
				r.AnnotationCount,
				exported,
			)
		}
		return nil
	},
}

func printFindings(errs map[string]string) {
	ids := make([]string, 0, len(errs))
	for id := range errs {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		fmt.Printf("  %s: %s\n", id, errs[id])
	}
}

func init() {
	// config subcommands
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configListCmd)

	// identity subcommands
	identityCmd.AddCommand(identityInitCmd)
	identityCmd.AddCommand(identityShowCmd)

	// labels subcommands
	labelsCmd.AddCommand(labelsRefreshCmd)
	labelsCmd.AddCommand(labelsListCmd)

	// report subcommands
	reportCmd.AddCommand(reportValidateCmd)
	reportValidateCmd.Flags().String("values", "", "Path to JSON values file")
	reportValidateCmd.MarkFlagRequired("values")
	reportCmd.AddCommand(reportBuildCmd)
	reportBuildCmd.Flags().String("values", "", "Path to JSON values file")
	reportBuildCmd.MarkFlagRequired("values")
	reportBuildCmd.Flags().String("media", "", "Path to a media file to embed")

	// root commands
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(identityCmd)
	rootCmd.AddCommand(admitCmd)
	admitCmd.Flags().Duration("timeout", 10*time.Minute, "Overall admission deadline, including the search")
	rootCmd.AddCommand(labelsCmd)
	rootCmd.AddCommand(reportCmd)
	rootCmd.AddCommand(exportCmd)
	exportCmd.Flags().Bool("no-media", false, "Exclude embedded media from the archive")
	exportCmd.Flags().Bool("no-metadata", false, "Exclude the metadata entry from the archive")
	rootCmd.AddCommand(historyCmd)
	historyCmd.Flags().IntP("limit", "n", 50, "Maximum number of packages to show")
}
