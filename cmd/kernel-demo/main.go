// kernel-demo boots an empty process table and walks it through a small
// job-control session: an init, a shell leading its own session, a
// pipeline process group, signal delivery, and the wait/reap cycle. It
// exists to exercise the core end to end and to show the intended call
// sequence from a trap layer's point of view.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/containerd/log"

	"github.com/aledbf/qemubox/kernel/internal/abi"
	"github.com/aledbf/qemubox/kernel/internal/kernel"
	"github.com/aledbf/qemubox/kernel/internal/kernel/pid"
	"github.com/aledbf/qemubox/kernel/internal/kernel/process"
	"github.com/aledbf/qemubox/kernel/internal/kernel/signal"
	"github.com/aledbf/qemubox/kernel/internal/version"
)

type payload struct {
	name string
}

func (p *payload) Release() {
	log.L.WithField("name", p.name).Debug("payload released")
}

func main() {
	var (
		debug       bool
		showVersion bool
		maxPids     int
	)
	flag.BoolVar(&debug, "debug", false, "Debug log level")
	flag.BoolVar(&showVersion, "version", false, "Print version and exit")
	flag.IntVar(&maxPids, "max-pids", 0, "Pid namespace bound (0 selects the default)")
	flag.Parse()

	if showVersion {
		fmt.Println(version.Info())
		os.Exit(0)
	}
	if debug {
		log.SetLevel("debug")
	}

	ctx := context.Background()
	k := kernel.New(kernel.Config{MaxPID: pid.ID(maxPids)})

	init, err := k.Boot(ctx, &payload{name: "init"})
	if err != nil {
		log.L.WithError(err).Fatal("boot failed")
	}

	// A shell forks off init and becomes its own session leader.
	shell, err := k.Fork(ctx, init, &payload{name: "shell"})
	if err != nil {
		log.L.WithError(err).Fatal("fork shell failed")
	}
	shellT := shell.MainThread()
	sid, err := k.Setsid(ctx, shellT)
	if err != nil {
		log.L.WithError(err).Fatal("setsid failed")
	}
	log.L.WithField("sid", sid).Info("shell session established")

	// The shell installs a SIGCHLD handler and blocks SIGCHLD so it can
	// collect it synchronously with sigtimedwait.
	if _, err := k.SetAction(shellT, abi.SIGCHLD, &signal.Action{
		Disposition: signal.DispositionHandler,
		Handler:     0x400000,
	}); err != nil {
		log.L.WithError(err).Fatal("sigaction failed")
	}
	k.SetMask(shellT, process.MaskBlock, abi.SignalSetOf(abi.SIGCHLD))

	// A two-process pipeline in its own foreground group.
	var pipeline []*process.Process
	for _, name := range []string{"producer", "consumer"} {
		c, err := k.Fork(ctx, shell, &payload{name: name})
		if err != nil {
			log.L.WithError(err).Fatal("fork pipeline member failed")
		}
		pipeline = append(pipeline, c)
	}
	leader := pipeline[0]
	if err := k.Setpgid(ctx, shellT, leader.ID(), leader.ID()); err != nil {
		log.L.WithError(err).Fatal("setpgid leader failed")
	}
	if err := k.Setpgid(ctx, shellT, pipeline[1].ID(), leader.ID()); err != nil {
		log.L.WithError(err).Fatal("setpgid member failed")
	}
	log.L.WithField("pgid", leader.ID()).Info("pipeline group assembled")

	// Terminate the whole pipeline as a group, as ^C would.
	if err := k.Kill(ctx, shellT, -leader.ID(), abi.SIGKILL); err != nil {
		log.L.WithError(err).Fatal("kill pipeline failed")
	}
	// The trap layer would unwind each interrupted thread; stand in for it.
	for _, c := range pipeline {
		if t := c.MainThread(); t != nil && c.ThreadGroup().Exited() {
			k.ExitThread(ctx, t, 0)
		}
	}

	// Both exits raised SIGCHLD back to back, so the occurrences coalesce
	// into one; the wait loop below still reaps every child.
	info, err := k.SigTimedWait(ctx, shellT, abi.SignalSetOf(abi.SIGCHLD), time.Second)
	if err != nil {
		log.L.WithError(err).Fatal("sigtimedwait failed")
	}
	log.L.WithField("child", info.PID).Info("SIGCHLD collected")
	for range pipeline {
		id, status, err := k.WaitForChild(ctx, shellT, process.WaitSelector{Pid: -1}, process.WaitOptions{})
		if err != nil {
			log.L.WithError(err).Fatal("wait failed")
		}
		log.L.WithFields(log.Fields{
			"pid":    id,
			"status": fmt.Sprintf("%#x", status.Wait()),
		}).Info("child reaped")
	}

	// Shell exits; init inherits nothing and the table drains.
	k.ExitGroup(ctx, shellT, 0)
	if id, status, err := k.WaitForChild(ctx, init.MainThread(), process.WaitSelector{Pid: -1}, process.WaitOptions{}); err != nil {
		log.L.WithError(err).Fatal("init wait failed")
	} else {
		log.L.WithFields(log.Fields{
			"pid":    id,
			"status": fmt.Sprintf("%#x", status.Wait()),
		}).Info("shell reaped by init")
	}

	log.L.WithField("processes", len(k.Registry().Processes())).Info("demo complete")
}
