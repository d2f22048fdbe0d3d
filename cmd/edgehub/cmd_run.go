package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/edgehub-net/edgehub/pkg/connector/builtin"
	"github.com/edgehub-net/edgehub/pkg/controller"
	"github.com/edgehub-net/edgehub/pkg/health"
	"github.com/edgehub-net/edgehub/pkg/util"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Run the gateway agent",
	Long: `Start every configured connector and run until interrupted.

The agent stops on SIGINT/SIGTERM, or when the cloud issues a
maintenance_action command.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctrl := controller.New(controller.Config{
			ModuleBasePath: app.settings.ModuleBasePath,
			Resolve:        builtin.Resolve,
		}, util.NewLoggerProvider(nil))

		// A maintenance_action has already stopped every connector by
		// the time this fires; the process just needs to exit.
		maintenance := make(chan controller.MaintenanceEvent, 1)
		ctrl.OnMaintenance(func(ev controller.MaintenanceEvent) {
			select {
			case maintenance <- ev:
			default:
			}
		})

		ctx := context.Background()
		if err := ctrl.Init(ctx, app.configFile, ""); err != nil {
			return fmt.Errorf("starting gateway: %w", err)
		}

		var healthSrv *health.Server
		if addr := app.settings.HealthAddr; addr != "" {
			healthSrv = health.NewServer(addr, ctrl.ConnectorReport)
			go func() {
				if err := healthSrv.Start(); err != nil {
					util.Logger.Warnf("health endpoint failed: %v", err)
				}
			}()
			defer healthSrv.Close()
		}

		sigs := make(chan os.Signal, 1)
		signal.Notify(sigs, syscall.SIGINT, syscall.SIGTERM)

		select {
		case sig := <-sigs:
			util.Logger.Infof("received %s, stopping gateway", sig)
			if err := ctrl.Stop(ctx, ""); err != nil {
				return fmt.Errorf("stopping gateway: %w", err)
			}
		case ev := <-maintenance:
			util.Logger.Infof("maintenance requested (%v, request %s), exiting", ev.Command, ev.RequestID)
		}
		return nil
	},
}
