// Package provision orchestrates one provisioning run: bring up a chroot
// session over the mounted image, run the package installation inside it,
// and guarantee the session is torn down whatever happens in between.
package provision

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/imgforge/chroot-provision/internal/chroot"
	"github.com/imgforge/chroot-provision/internal/config"
	"github.com/imgforge/chroot-provision/internal/installer"
	"github.com/imgforge/chroot-provision/internal/journal"
	"github.com/imgforge/chroot-provision/internal/log"
	"github.com/imgforge/chroot-provision/internal/mount"
	"github.com/imgforge/chroot-provision/internal/shortcircuit"
	"github.com/imgforge/chroot-provision/internal/validation"
)

// Error is an operational provisioning failure: a failed installer
// command, an invalid package spec, or a script that could not be
// short-circuited or rewired.
type Error struct {
	Op     string // "validate", "short-circuit", "rewire", "clean-metadata", "install"
	Detail string // package spec, script path, or captured stderr
	Err    error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("provision %s failed: %s: %v", e.Op, e.Detail, e.Err)
	}
	return fmt.Sprintf("provision %s failed: %s", e.Op, e.Detail)
}

func (e *Error) Unwrap() error {
	return e.Err
}

// Installer is the package-manager collaborator. Only Success and Stderr
// of the results are interpreted here.
type Installer interface {
	Install(ctx context.Context, pkg string) installer.Result
	CleanMetadata(ctx context.Context) installer.Result
}

// RunJournal records run outcomes. Journal failures are never fatal to a
// provisioning run.
type RunJournal interface {
	Start(pkg, mountpoint string) (string, error)
	Finish(id, status, detail string) error
}

// Provisioner runs package installations against a mounted image volume.
type Provisioner struct {
	cfg       *config.Config
	session   *chroot.Session
	installer Installer
	journal   RunJournal // may be nil

	shortCircuit func(base, path, dst string) error
	rewire       func(base, path string) error
}

// New creates a provisioner for the image mounted at cfg.Mountpoint.
func New(cfg *config.Config, mounter mount.Mounter, j RunJournal) *Provisioner {
	return &Provisioner{
		cfg:          cfg,
		session:      chroot.NewSession(cfg.Mountpoint, cfg.MountSpecs(), mounter),
		installer:    installer.NewYum(cfg.Mountpoint),
		journal:      j,
		shortCircuit: shortcircuit.ShortCircuit,
		rewire:       shortcircuit.Rewire,
	}
}

// Provision installs pkg into the image. The chroot session is entered and
// exited around the installation; a teardown failure is surfaced in
// preference to an installation failure, since it means privileged mounts
// may still be live on the host.
func (p *Provisioner) Provision(ctx context.Context, pkg string) error {
	if err := validation.ValidatePackageSpec(pkg); err != nil {
		return &Error{Op: "validate", Detail: pkg, Err: err}
	}

	runID := p.journalStart(pkg)

	log.Info("provisioning", "package", pkg, "mountpoint", p.cfg.Mountpoint)
	err := p.session.Run(func() error {
		return p.runInstallation(ctx, pkg)
	})

	p.journalFinish(runID, err)
	return err
}

// runInstallation is the body of work executed while the session is
// entered. Short-circuited scripts are rewired on every return path: a
// failed install must not leave the image with permanently neutered
// scripts.
func (p *Provisioner) runInstallation(ctx context.Context, pkg string) (err error) {
	base := p.cfg.Mountpoint

	if p.cfg.ShortCircuitService {
		var circuited []string
		defer func() {
			for i := len(circuited) - 1; i >= 0; i-- {
				path := circuited[i]
				if rwErr := p.rewire(base, path); rwErr != nil {
					log.Error("unable to rewire short-circuited script", "path", path, "error", rwErr)
					if err == nil {
						err = &Error{Op: "rewire", Detail: path, Err: rwErr}
					}
				}
			}
		}()

		for _, path := range p.cfg.ShortCircuitFiles {
			if scErr := p.shortCircuit(base, path, p.cfg.ShortCircuitDst); scErr != nil {
				return &Error{Op: "short-circuit", Detail: path, Err: scErr}
			}
			circuited = append(circuited, path)
		}
	}

	if res := p.installer.CleanMetadata(ctx); !res.Success {
		return &Error{Op: "clean-metadata", Detail: strings.TrimSpace(res.Stderr)}
	}

	if res := p.installer.Install(ctx, pkg); !res.Success {
		return &Error{Op: "install", Detail: strings.TrimSpace(res.Stderr)}
	}

	log.Info("package installed", "package", pkg)
	return nil
}

func (p *Provisioner) journalStart(pkg string) string {
	if p.journal == nil {
		return ""
	}
	id, err := p.journal.Start(pkg, p.cfg.Mountpoint)
	if err != nil {
		log.Warn("unable to record run start", "error", err)
		return ""
	}
	return id
}

func (p *Provisioner) journalFinish(runID string, runErr error) {
	if p.journal == nil || runID == "" {
		return
	}

	status := journal.StatusSuccess
	detail := ""
	if runErr != nil {
		detail = runErr.Error()
		var teardownErr *chroot.TeardownError
		if errors.As(runErr, &teardownErr) {
			status = journal.StatusTeardownFailed
		} else {
			status = journal.StatusFailed
		}
	}

	if err := p.journal.Finish(runID, status, detail); err != nil {
		log.Warn("unable to record run outcome", "error", err)
	}
}
