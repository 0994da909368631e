package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/samjbobb/exportbench/config"
	"github.com/samjbobb/exportbench/export/runner"
	"github.com/samjbobb/exportbench/supervisor"
	"github.com/sirupsen/logrus"
	"github.com/urfave/cli/v2"
)

func main() {
	app := &cli.App{
		Name:  "exportbench",
		Usage: "measure time and memory of strategies for exporting a large table to CSV",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Value:   "config.yml",
				Aliases: []string{"c"},
				Usage:   "path to config file (yaml or json)",
			},
		},
		Action: func(ctx *cli.Context) error {
			s := supervisor.NewSupervisor()
			return s.Run(ctx.Context, ctx.String("config"))
		},
		Commands: []*cli.Command{
			{
				Name:  "initconfig",
				Usage: "write an example config file",
				Action: func(ctx *cli.Context) error {
					return config.WriteExampleConfig(ctx.String("config"))
				},
			},
			{
				Name:  "seed",
				Usage: "populate the data table if it is empty",
				Action: func(ctx *cli.Context) error {
					return supervisor.NewSupervisor().Seed(ctx.Context, ctx.String("config"))
				},
			},
			{
				Name:  "export",
				Usage: "measure a single strategy",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "strategy",
						Aliases: []string{"s"},
						Usage:   fmt.Sprintf("one of: %s", strings.Join(runner.Names(), ", ")),
					},
				},
				Action: func(ctx *cli.Context) error {
					return supervisor.NewSupervisor().Export(ctx.Context, ctx.String("config"), ctx.String("strategy"))
				},
			},
		},
	}
	err := app.Run(os.Args)
	if err != nil {
		logrus.Fatal(err)
	}
}
