package main

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/urfave/cli/v3"

	"github.com/imgforge/chroot-provision/internal/config"
	"github.com/imgforge/chroot-provision/internal/journal"
	"github.com/imgforge/chroot-provision/internal/log"
	"github.com/imgforge/chroot-provision/internal/mount"
	"github.com/imgforge/chroot-provision/internal/provision"
	"github.com/imgforge/chroot-provision/internal/version"
)

func main() {
	cmd := &cli.Command{
		Name:  "chroot-provision",
		Usage: "Install packages into a mounted disk image through a transient chroot",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "config",
				Aliases: []string{"c"},
				Usage:   "Configuration file path",
				Value:   config.DefaultConfigPath,
			},
			&cli.BoolFlag{
				Name:    "verbose",
				Aliases: []string{"v"},
				Usage:   "Enable debug logging",
			},
			&cli.BoolFlag{
				Name:    "version",
				Aliases: []string{"V"},
				Usage:   "Print version information",
			},
		},
		Commands: []*cli.Command{
			{
				Name:      "provision",
				Usage:     "Install a package into the image mounted at the given path",
				ArgsUsage: "PACKAGE",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:    "mountpoint",
						Aliases: []string{"m"},
						Usage:   "Base path where the image volume is mounted",
					},
					&cli.StringFlag{
						Name:  "journal",
						Usage: "Run journal database path",
					},
				},
				Action: runProvision,
			},
			{
				Name:   "history",
				Usage:  "List recorded provisioning runs",
				Flags:  []cli.Flag{
					&cli.StringFlag{
						Name:  "journal",
						Usage: "Run journal database path",
					},
				},
				Action: runHistory,
			},
		},
		Action: func(ctx context.Context, cmd *cli.Command) error {
			if cmd.Bool("version") {
				fmt.Println(version.String())
				return nil
			}
			return cli.ShowAppHelp(cmd)
		},
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

func loadConfig(cmd *cli.Command) (*config.Config, error) {
	log.Setup(cmd.Bool("verbose"))

	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}

	cfg.Merge(cmd.String("mountpoint"), cmd.String("journal"))
	cfg.ApplyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func runProvision(ctx context.Context, cmd *cli.Command) error {
	pkg := cmd.Args().First()
	if pkg == "" {
		return fmt.Errorf("a package spec is required")
	}

	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	log.Info("starting provisioning run",
		"package", pkg,
		"mountpoint", cfg.Mountpoint,
		"mounts", len(cfg.Mounts),
	)

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		// The journal is an audit trail, not a precondition
		log.Warn("run journal unavailable", "path", cfg.JournalPath, "error", err)
		j = nil
	} else {
		defer func() {
			if err := j.Close(); err != nil {
				log.Warn("unable to close journal", "error", err)
			}
		}()
	}

	var rj provision.RunJournal
	if j != nil {
		rj = j
	}

	p := provision.New(cfg, mount.NewSyscallMounter(), rj)
	if err := p.Provision(ctx, pkg); err != nil {
		return err
	}

	log.Info("provisioning complete", "package", pkg)
	return nil
}

func runHistory(ctx context.Context, cmd *cli.Command) error {
	log.Setup(cmd.Bool("verbose"))

	// History only needs the journal path, so the config is not validated:
	// a missing mountpoint must not prevent reading past runs.
	cfg, err := config.Load(cmd.String("config"))
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	cfg.Merge("", cmd.String("journal"))
	cfg.ApplyDefaults()

	j, err := journal.Open(cfg.JournalPath)
	if err != nil {
		return fmt.Errorf("open journal: %w", err)
	}
	defer j.Close()

	runs, err := j.List()
	if err != nil {
		return fmt.Errorf("list runs: %w", err)
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 8, 2, ' ', 0)
	fmt.Fprintln(w, "STARTED\tPACKAGE\tMOUNTPOINT\tSTATUS\tDETAIL")
	for _, r := range runs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			r.StartTime.Format("2006-01-02 15:04:05"),
			r.Package, r.Mountpoint, r.Status, r.Detail)
	}
	return w.Flush()
}
