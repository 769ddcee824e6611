// Command packer bundles a multi-file PHP application into one
// self-contained script. The JSON config is the source of truth, and
// any flag the user passes on the command line wins over whatever the
// config file says.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"
	"go.uber.org/zap"

	"github.com/tourze/php-packer/internal/config"
	pkgerrors "github.com/tourze/php-packer/internal/errors"
	"github.com/tourze/php-packer/internal/logging"
	"github.com/tourze/php-packer/internal/packer"
)

// loadConfigWithOverrides loads the JSON config named by --config and
// applies --entry/--output/--database flag overrides (a non-empty
// flag always wins).
func loadConfigWithOverrides(c *cli.Context) (*config.Config, error) {
	cfg, err := config.Load(c.String("config"))
	if err != nil {
		return nil, err
	}
	cfg.ApplyOverrides(c.String("entry"), c.String("output"), c.String("database"))
	return cfg, nil
}

func packCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	log, err := logging.New(c.Bool("verbose"))
	if err != nil {
		return err
	}
	defer log.Sync()

	err = packer.Pack(cfg, log)
	var warnings *pkgerrors.MultiError
	if errors.As(err, &warnings) {
		log.Warn("bundle written with warnings", zap.Int("count", warnings.Len()))
		return nil
	}
	return err
}

func verifyCommand(c *cli.Context) error {
	cfg, err := loadConfigWithOverrides(c)
	if err != nil {
		return err
	}

	log, err := logging.New(c.Bool("verbose"))
	if err != nil {
		return err
	}
	defer log.Sync()

	report, err := packer.Verify(cfg, log)
	if err != nil {
		return err
	}

	fmt.Printf("entry:              %s\n", report.EntryPath)
	fmt.Printf("files in catalog:   %d\n", report.TotalFiles)
	fmt.Printf("files analyzed:     %d\n", report.AnalyzedFiles)
	fmt.Printf("files failed:       %d\n", report.FailedFiles)
	fmt.Printf("unresolved deps:    %d\n", report.UnresolvedDeps)
	return nil
}

func main() {
	configFlags := []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Path to the JSON packer config",
			Value:   "packer.json",
		},
		&cli.StringFlag{
			Name:  "entry",
			Usage: "Entry script path (overrides config)",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Bundle output path (overrides config)",
		},
		&cli.StringFlag{
			Name:  "database",
			Usage: "Catalog database path (overrides config)",
		},
		&cli.BoolFlag{
			Name:    "verbose",
			Aliases: []string{"v"},
			Usage:   "Enable verbose structured logging",
		},
	}

	app := &cli.App{
		Name:  "packer",
		Usage: "Bundle a multi-file PHP application into one self-contained script",
		Flags: configFlags,
		Action: func(c *cli.Context) error {
			return packCommand(c)
		},
		Commands: []*cli.Command{
			{
				Name:   "pack",
				Usage:  "Analyze, resolve, and bundle the configured entry script",
				Flags:  configFlags,
				Action: packCommand,
			},
			{
				Name:   "verify",
				Usage:  "Report catalog statistics without regenerating a bundle",
				Flags:  configFlags,
				Action: verifyCommand,
			},
		},
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(pkgerrors.ExitCode(err))
	}
}
