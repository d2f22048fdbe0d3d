// Edgehub - IoT Edge Gateway Agent
//
// A long-running agent that bridges device connectors (sensors,
// actuators, polled peripherals) and cloud connectors (command and
// telemetry transports):
//   - Ingests device readings and fans them out to every cloud channel
//   - Executes cloud-issued command-and-control actions
//   - Persists config changes back to disk so reboots resume cleanly
//   - Audit-logs lifecycle, config-changing and maintenance commands
//     (list_connectors, get_connector_config and send_data are not
//     recorded)
//
// Examples:
//
//	edgehub run                                # run with /etc/edgehub defaults
//	edgehub run -c ./connectors.json           # explicit connector config
//	edgehub config validate ./connectors.json  # shape-check a config document
//	edgehub config show                        # list configured connectors
//	edgehub audit --action update_config       # query the audit trail
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/edgehub-net/edgehub/pkg/audit"
	"github.com/edgehub-net/edgehub/pkg/settings"
	"github.com/edgehub-net/edgehub/pkg/util"
	"github.com/edgehub-net/edgehub/pkg/version"
)

// App holds CLI state shared across all commands.
type App struct {
	// Option flags
	settingsPath string
	configFile   string
	verbose      bool

	// Initialized state (set in PersistentPreRunE)
	settings *settings.Settings
}

var app = &App{}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var rootCmd = &cobra.Command{
	Use:           "edgehub",
	Short:         "IoT Edge Gateway Agent",
	SilenceUsage:  true,
	SilenceErrors: true,
	Long: `Edgehub bridges local devices and cloud control channels.

The agent reads a connector config document, starts every configured
cloud and device connector, routes readings upstream, and executes
commands issued by the cloud.

  edgehub run -c /etc/edgehub/connectors.json`,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "version" || cmd.Name() == "help" {
			return nil
		}

		var err error
		app.settings, err = loadSettings()
		if err != nil {
			util.Logger.Warnf("Could not load settings: %v", err)
			app.settings = &settings.Settings{}
		}

		if app.verbose {
			util.SetLogLevel("debug")
		} else if err := util.SetLogLevel(app.settings.GetLogLevel()); err != nil {
			return fmt.Errorf("invalid log level %q: %w", app.settings.GetLogLevel(), err)
		}
		if app.settings.LogFormat == "json" {
			util.SetJSONFormat()
		}

		if app.configFile == "" {
			app.configFile = app.settings.GetConfigFile()
		}

		// Audit logging (path and rotation from settings)
		auditLogger, err := audit.NewFileLogger(app.settings.GetAuditLogPath(), audit.RotationConfig{
			MaxSize:    int64(app.settings.GetAuditMaxSizeMB()) * 1024 * 1024,
			MaxBackups: app.settings.GetAuditMaxBackups(),
		})
		if err != nil {
			util.Logger.Warnf("Could not initialize audit logging: %v", err)
		} else {
			audit.SetDefaultLogger(auditLogger)
		}

		return nil
	},
}

func loadSettings() (*settings.Settings, error) {
	if app.settingsPath != "" {
		return settings.LoadFrom(app.settingsPath)
	}
	return settings.Load()
}

var versionCmd = &cobra.Command{
	Use:   "version",
	Short: "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("edgehub %s (%s)\n", version.Version, version.GitCommit)
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&app.settingsPath, "settings", "S", "", "Settings file path")
	rootCmd.PersistentFlags().StringVarP(&app.configFile, "config", "c", "", "Connector config document path")
	rootCmd.PersistentFlags().BoolVarP(&app.verbose, "verbose", "v", false, "Verbose output")

	rootCmd.AddCommand(runCmd)
	rootCmd.AddCommand(configCmd)
	rootCmd.AddCommand(auditCmd)
	rootCmd.AddCommand(versionCmd)
}
