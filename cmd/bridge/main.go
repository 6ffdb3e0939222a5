package main

import (
	"log"
	"os"

	"github.com/fr3shw3b/xwire/internal/bridgeapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "bridge",
		Usage: "Relays X11 connections from websocket clients to a display",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:  "port",
				Value: 3000,
				Usage: "The port to run the bridge on",
			},
		},
		Action: func(cCtx *cli.Context) error {
			port := cCtx.Int("port")
			return bridgeapp.Run(port)
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
