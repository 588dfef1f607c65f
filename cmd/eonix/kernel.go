// Package main is eonix's boot entrypoint: it wires the kernel's
// subsystems together (process list, root filesystem, logger) and hosts
// the cobra CLI spec.md doesn't specify but every kernel needs a way to
// start.
//
// Kernel's shape is adapted from lxd/daemon.go's Daemon: a single struct
// built once at startup holding every long-lived subsystem plus a
// startTime, with explicit Init/Stop lifecycle methods rather than work
// happening in init() or main() directly. None of Daemon's actual fields
// apply here (no DB, no cluster, no firewall, no storage drivers) — only
// that shape survives, rebuilt around this kernel's own subsystems.
package main

import (
	"context"
	"fmt"
	"time"

	"github.com/eonix-go/eonix/kernel/logger"
	"github.com/eonix-go/eonix/kernel/mm"
	"github.com/eonix-go/eonix/kernel/process"
	"github.com/eonix-go/eonix/kernel/vfs"
	"github.com/eonix-go/eonix/kernel/vfs/memfs"
)

// rootDevID is the device id memfs reports for the root mount's stat
// st_dev; there is only ever one, so it never needs to vary.
const rootDevID vfs.DevID = 1

// Kernel holds every subsystem eonix boots with and the time it started,
// the same pairing Daemon keeps (config plus startTime) for its uptime
// reporting, reused here to back sysinfo(2)'s uptime field once a real
// scheduler exists to drive it.
type Kernel struct {
	log       logger.Logger
	startTime time.Time

	init *process.Thread
}

// NewKernel constructs a Kernel with a fresh root filesystem (an
// in-memory memfs mount, SPEC_FULL.md 2.4) and boots PID 1 on top of it,
// mirroring the shape of Daemon's constructor deferring all actual
// startup work to an explicit Init call.
func NewKernel(jsonLogs bool) (*Kernel, error) {
	log := logger.New(jsonLogs)

	fs := memfs.New(log.AddContext(logger.Ctx{"component": "memfs"}), rootDevID)
	placeholder := vfs.NewDentry(nil, "/", nil)

	mount, err := fs.CreateMount("none", 0, placeholder)
	if err != nil {
		return nil, fmt.Errorf("eonix: mounting root filesystem: %w", err)
	}

	fsctx := vfs.NewFsContext(mount.Root())

	initThread, err := process.Bootstrap(mm.New(log.AddContext(logger.Ctx{"component": "mm"})), fsctx)
	if err != nil {
		return nil, fmt.Errorf("eonix: bootstrapping init: %w", err)
	}

	return &Kernel{
		log:       log,
		startTime: time.Now(),
		init:      initThread,
	}, nil
}

// Init reports the kernel is up: PID 1 exists and the root filesystem is
// mounted. Mirrors Daemon.Init's "log what's ready" role, minus
// everything this kernel has no equivalent of (networking, clustering).
func (k *Kernel) Init(ctx context.Context) error {
	k.log.Info("eonix kernel started", logger.Ctx{
		"pid1":    k.init.Process.PID(),
		"started": k.startTime,
	})

	return nil
}

// Stop tears the kernel down. There is currently nothing to release
// beyond logging the uptime; kept as its own method (rather than inlined
// in main) because every subsystem eonix grows will need a hook here,
// same as Daemon.Stop's shutdown fan-out.
func (k *Kernel) Stop(ctx context.Context) error {
	k.log.Info("eonix kernel stopping", logger.Ctx{"uptime": time.Since(k.startTime).String()})

	return nil
}
