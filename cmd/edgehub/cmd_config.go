package main

import (
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/edgehub-net/edgehub/pkg/cli"
	"github.com/edgehub-net/edgehub/pkg/controller"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect the connector config document",
}

var configValidateCmd = &cobra.Command{
	Use:   "validate [path]",
	Short: "Shape-check a connector config document",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		path := app.configFile
		if len(args) == 1 {
			path = args[0]
		}
		data, err := os.ReadFile(path)
		if err != nil {
			return fmt.Errorf("reading %s: %w", path, err)
		}
		doc, err := controller.ParseDocument(data)
		if err != nil {
			return fmt.Errorf("%s: %w", path, err)
		}
		fmt.Printf("%s: ok (%d types, %d cloud, %d device)\n",
			path, len(doc.ConnectorTypes), len(doc.CloudConnectors), len(doc.DeviceConnectors))
		return nil
	},
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "List configured connectors",
	RunE: func(cmd *cobra.Command, args []string) error {
		data, err := os.ReadFile(app.configFile)
		if err != nil {
			return fmt.Errorf("reading %s: %w", app.configFile, err)
		}
		doc, err := controller.ParseDocument(data)
		if err != nil {
			return err
		}

		table := cli.NewTable("CATEGORY", "ID", "TYPE", "MODULE")
		sections := []struct {
			category string
			entries  map[string]interface{}
		}{
			{"cloud", doc.CloudConnectors},
			{"device", doc.DeviceConnectors},
		}
		for _, s := range sections {
			ids := make([]string, 0, len(s.entries))
			for id := range s.entries {
				ids = append(ids, id)
			}
			sort.Strings(ids)
			for _, id := range ids {
				typeName, _ := controller.EntryType(s.entries[id])
				table.Row(s.category, id, typeName, doc.ConnectorTypes[typeName])
			}
		}
		table.Flush()
		return nil
	},
}

func init() {
	configCmd.AddCommand(configValidateCmd)
	configCmd.AddCommand(configShowCmd)
}
