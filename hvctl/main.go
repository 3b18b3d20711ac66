package main

import (
	"fmt"
	"os"
	"time"

	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "hvctl",
		Usage: "hvgate admin tools",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "gateway",
				Usage:   "address of the hvgate server i.e. `hv.mydomain` or `hv.mydomain:8480`",
				EnvVars: []string{"HVGATE_GATEWAY"},
			},
			&cli.StringFlag{
				Name:    "api-key",
				Usage:   "shared API key sent with every request",
				EnvVars: []string{"HVGATE_API_KEY"},
			},
			&cli.StringFlag{
				Name:    "hmac-secret",
				Usage:   "shared secret used to sign request bodies",
				EnvVars: []string{"HVGATE_HMAC_SECRET"},
			},
			&cli.StringFlag{
				Name:  "fingerprint",
				Usage: "gateway TLS certificate fingerprint - enables https with fingerprint pinning",
			},
			&cli.DurationFlag{
				Name:  "timeout",
				Usage: "timeout when sending requests to the gateway",
				Value: time.Second * 15,
			},
		},
		Commands: []*cli.Command{
			credsCommand(),
			{
				Name:   "list",
				Usage:  "List the VMs known to the gateway",
				Action: listCmd,
			},
			{
				Name:      "state",
				Usage:     "Get the current state of a VM",
				ArgsUsage: "<vm name>",
				Action:    stateCmd,
			},
			{
				Name:      "details",
				Usage:     "Get the management tool's full view of a VM",
				ArgsUsage: "<vm name>",
				Action:    detailsCmd,
			},
			{
				Name:      "start",
				Usage:     "Start a VM",
				ArgsUsage: "<vm name>",
				Action:    actionCmd("start"),
			},
			{
				Name:      "shutdown",
				Usage:     "Shut down a VM",
				ArgsUsage: "<vm name>",
				Action:    actionCmd("shutdown"),
			},
			{
				Name:      "restart",
				Usage:     "Restart a VM",
				ArgsUsage: "<vm name>",
				Action:    actionCmd("restart"),
			},
			{
				Name:  "history",
				Usage: "Query the gateway's audit trail",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "vm",
						Usage: "only show entries for this VM",
					},
					&cli.IntFlag{
						Name:  "limit",
						Usage: "max entries to return",
						Value: 10,
					},
				},
				Action: historyCmd,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %s\n", err)
		os.Exit(1)
	}
}
