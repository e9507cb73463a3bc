// Copyright (C) 2025 Josh Simonot
//
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// This program is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
// GNU General Public License for more details.
//
// You should have received a copy of the GNU General Public License
// along with this program.  If not, see <https://www.gnu.org/licenses/>.

// Command pitbossd runs the Pit Boss LAN controller daemon, and
// doubles as a one-shot command-injection CLI. It wires a
// signal-cancelable appctx context, attaches every HTTP sub-handler to
// a rootserv.RootServer, and supervises the long-running services with
// service.Start, all behind a github.com/spf13/cobra command tree.
package main

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"pitboss/internal/auth"
	"pitboss/internal/config"
	"pitboss/internal/domain"
	"pitboss/internal/fields"
	"pitboss/internal/grillctl"
	"pitboss/internal/rpc"
	"pitboss/internal/transport"
	"pitboss/internal/webui"
	"pitboss/pkg/appctx"
	"pitboss/pkg/eventbus"
	"pitboss/pkg/logger"
	"pitboss/pkg/rootserv"
	"pitboss/pkg/service"
	"pitboss/pkg/sysmon"
)

var rootCmd = &cobra.Command{
	Use:     "pitbossd",
	Short:   "Pit Boss WiFi pellet grill LAN controller",
	Version: "1.0.0",
}

func main() {
	rootCmd.AddCommand(runCmd, sendCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

var runConfigPath string

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the daemon: poll every configured grill and serve the diagnostics dashboard",
	RunE: func(cmd *cobra.Command, args []string) error {
		return runDaemon(runConfigPath)
	},
}

func init() {
	runCmd.Flags().StringVarP(&runConfigPath, "config", "c", "pitbossd.yaml", "path to the daemon's YAML config file")
}

func runDaemon(configPath string) error {
	conf, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("pitbossd: %w", err)
	}
	if err := logger.Init(conf.LogPath); err != nil {
		return fmt.Errorf("pitbossd: init logger: %w", err)
	}
	log := logger.New("pitbossd")

	bus := eventbus.New()
	httpClient := transport.New(transport.DefaultTimeout)
	authCache := auth.New(httpClient)
	rpcClient := rpc.New(httpClient, authCache)

	dashboard := webui.New(bus, sysmon.New())

	ctx, ctxCancel := appctx.New()

	for _, d := range conf.Devices {
		store := fields.NewMemStore()
		prober := func(ctx context.Context, ip string) (rpc.SysInfo, error) {
			return rpcClient.GetSysInfo(ctx, ip)
		}
		c := grillctl.New(d.ID, rpcClient, store, bus, prober)
		c.Init(ctx, domain.Preferences{
			IPAddress:              d.IPAddress,
			RefreshIntervalSeconds: d.RefreshIntervalSec,
			AutoRediscovery:        d.AutoRediscovery,
			Unit:                   d.TempUnit(),
		})
		dashboard.Register(d.ID, c)
		log.Info("tracking device %s (%s) at %s", d.ID, d.Name, d.IPAddress)
	}

	server := rootserv.New(conf.WebUI.HTTPAddr)
	server.Attach("/logger", "Logger", logger.WebService())
	server.Attach("/", "Grill Dashboard", dashboard)

	exitCh := service.Start(ctx, ctxCancel, []service.Runnable{
		dashboard,
		server,
	})
	os.Exit(<-exitCh)
	return nil
}

var sendIP, sendUnit string

var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single command to a grill without starting the daemon",
}

func init() {
	sendCmd.PersistentFlags().StringVar(&sendIP, "ip", "", "grill IP address (required)")
	sendCmd.PersistentFlags().StringVar(&sendUnit, "unit", "F", "temperature unit for set-temp (F or C)")
	sendCmd.MarkPersistentFlagRequired("ip")

	sendCmd.AddCommand(
		sendSetTempCmd(),
		sendToggleCmd("light", grillctl.CmdSetLight),
		sendToggleCmd("prime", grillctl.CmdSetPrime),
		sendToggleCmd("power", grillctl.CmdSetPower),
	)
}

func sendSetTempCmd() *cobra.Command {
	var value int
	c := &cobra.Command{
		Use:   "set-temp",
		Short: "Set the target grill temperature",
		RunE: func(cmd *cobra.Command, args []string) error {
			unit := domain.Fahrenheit
			if sendUnit == "C" {
				unit = domain.Celsius
			}
			return sendOneShot(sendIP, grillctl.Command{Kind: grillctl.CmdSetTemperature, Value: value}, unit)
		},
	}
	c.Flags().IntVar(&value, "value", 0, "target temperature (required)")
	c.MarkFlagRequired("value")
	return c
}

func sendToggleCmd(name string, kind grillctl.CommandKind) *cobra.Command {
	var on bool
	c := &cobra.Command{
		Use:   name,
		Short: fmt.Sprintf("Toggle the grill's %s", name),
		RunE: func(cmd *cobra.Command, args []string) error {
			return sendOneShot(sendIP, grillctl.Command{Kind: kind, On: on}, domain.Fahrenheit)
		},
	}
	c.Flags().BoolVar(&on, "on", false, "turn on (default off)")
	return c
}

// sendOneShot builds a throwaway Controller against ip, sends a single
// command, and tears it down. It never registers with the dashboard or
// an eventbus, and never starts the scheduler's poll loop beyond the
// one Init call Controller.SendCommand needs for its ip/unit state.
func sendOneShot(ip string, cmd grillctl.Command, unit domain.Unit) error {
	httpClient := transport.New(transport.DefaultTimeout)
	authCache := auth.New(httpClient)
	rpcClient := rpc.New(httpClient, authCache)
	prober := func(ctx context.Context, probeIP string) (rpc.SysInfo, error) {
		return rpcClient.GetSysInfo(ctx, probeIP)
	}

	c := grillctl.New("cli", rpcClient, fields.NewMemStore(), nil, prober)
	c.Init(context.Background(), domain.Preferences{IPAddress: ip, RefreshIntervalSeconds: 3600, Unit: unit})
	defer c.Remove()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	res := c.SendCommand(ctx, cmd)
	if res.Err != nil {
		return fmt.Errorf("send command: %w", res.Err)
	}
	fmt.Printf("sent %s\n", res.Hex)
	return nil
}
