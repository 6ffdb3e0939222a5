package main

import (
	"log"
	"os"

	"github.com/fr3shw3b/xwire/internal/dumpapp"
	"github.com/urfave/cli/v2"
)

func main() {
	app := cli.App{
		Name:  "dump",
		Usage: "Decodes a captured display-to-client X11 byte stream",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "file",
				Value: "-",
				Usage: "The capture to decode, - for standard input",
			},
			&cli.StringSliceFlag{
				Name:  "ext",
				Usage: "An extension the capture uses, as NAME=major:firstEvent:firstError",
			},
			&cli.BoolFlag{
				Name:  "big-endian",
				Usage: "Decode the capture as most significant byte first",
			},
		},
		Action: func(cCtx *cli.Context) error {
			return dumpapp.Run(&dumpapp.Params{
				Path:       cCtx.String("file"),
				Extensions: cCtx.StringSlice("ext"),
				BigEndian:  cCtx.Bool("big-endian"),
			})
		},
	}

	if err := app.Run(os.Args); err != nil {
		log.Fatal(err)
	}
}
