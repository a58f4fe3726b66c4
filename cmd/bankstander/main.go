package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/msageha/bankstander/internal/config"
	"github.com/msageha/bankstander/internal/daemon"
	"github.com/msageha/bankstander/internal/lock"
	"github.com/msageha/bankstander/internal/model"
	"github.com/msageha/bankstander/internal/notify"
	"github.com/msageha/bankstander/internal/setup"
	"github.com/msageha/bankstander/internal/status"
	"github.com/msageha/bankstander/internal/uds"
)

const version = "1.0.0"

func main() {
	if len(os.Args) < 2 {
		printUsage()
		os.Exit(1)
	}

	switch os.Args[1] {
	case "init":
		runInit(os.Args[2:])
	case "validate":
		runValidate(os.Args[2:])
	case "run":
		runRun(os.Args[2:])
	case "status":
		runStatus(os.Args[2:])
	case "watch":
		runWatch(os.Args[2:])
	case "pause":
		runPause(os.Args[2:], true)
	case "resume":
		runPause(os.Args[2:], false)
	case "stop":
		runStop(os.Args[2:])
	case "recipes":
		runRecipes(os.Args[2:])
	case "notify":
		runNotify(os.Args[2:])
	case "version":
		fmt.Printf("bankstander %s\n", version)
	case "help", "--help", "-h":
		printUsage()
	default:
		fmt.Fprintf(os.Stderr, "unknown command: %s\n\n", os.Args[1])
		printUsage()
		os.Exit(1)
	}
}

func fatalf(format string, args ...any) {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}

func runInit(args []string) {
	const usage = "usage: bankstander init [dir] [--recipe <key>] [--costume-needle] [--force]"
	dir := "."
	var opts setup.Options
	for i := 0; i < len(args); i++ {
		switch args[i] {
		case "--recipe":
			if i+1 >= len(args) {
				fatalf("--recipe requires a value\n%s", usage)
			}
			i++
			opts.Recipe = args[i]
		case "--costume-needle":
			opts.CostumeNeedle = true
		case "--force":
			opts.Force = true
		default:
			if len(args[i]) > 0 && args[i][0] == '-' {
				fatalf("unknown flag: %s\n%s", args[i], usage)
			}
			dir = args[i]
		}
	}

	paths, err := setup.Run(dir, opts)
	if err != nil {
		fatalf("init: %v", err)
	}
	fmt.Printf("Initialized %s/ in %s\n", setup.DirName, filepath.Dir(paths.Base))
	fmt.Printf("Edit %s, then run 'bankstander run'.\n", paths.Config())
}

// workspace locates the workspace from the current directory or exits.
func workspace() setup.Paths {
	paths, err := setup.Find(".")
	if err != nil {
		fatalf("error: %v", err)
	}
	return paths
}

func loadConfig(paths setup.Paths) *config.Loaded {
	loaded, err := config.Load(paths.Config())
	if err != nil {
		fatalf("load config: %v", err)
	}
	return loaded
}

func runValidate(args []string) {
	if len(args) > 0 {
		fatalf("usage: bankstander validate")
	}
	paths := workspace()
	loaded := loadConfig(paths)
	rc := loaded.Run
	fmt.Printf("%s: OK\n", paths.Config())
	for _, s := range rc.Slots {
		fmt.Printf("  slot %-24s x%d\n", s.ID, s.Quantity)
	}
	fmt.Printf("  action    %s\n", rc.Action)
	fmt.Printf("  prompt    %t\n", rc.PromptConfirmation)
	if loaded.Config.Session.Paused {
		fmt.Println("  session starts paused")
	}
}

func runRun(args []string) {
	if len(args) > 0 {
		fatalf("usage: bankstander run")
	}
	paths := workspace()
	loaded := loadConfig(paths)

	d, err := daemon.New(paths, loaded)
	if err != nil {
		fatalf("create daemon: %v", err)
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	fmt.Printf("bankstander running (pid %d), log: %s\n", os.Getpid(), paths.DaemonLog())
	if err := d.Run(ctx); err != nil {
		if errors.Is(err, lock.ErrHeld) {
			pid, _ := lock.ReadPID(paths.Lock())
			fatalf("a session is already running in this workspace (pid %d)", pid)
		}
		fatalf("run: %v", err)
	}

	if sess := d.Session(); sess != nil {
		snap := sess.Status()
		fmt.Printf("session %s stopped after %s: %d items",
			snap.SessionID, status.FormatRuntime(snap.Elapsed), snap.ItemsProcessed)
		if snap.StoppedReason != "" {
			fmt.Printf(" (%s)", snap.StoppedReason)
		}
		fmt.Println()
	}
}

func runStatus(args []string) {
	jsonOutput := false
	for _, a := range args {
		switch a {
		case "--json":
			jsonOutput = true
		default:
			fatalf("unknown flag: %s\nusage: bankstander status [--json]", a)
		}
	}

	if err := status.Run(context.Background(), workspace(), os.Stdout, jsonOutput); err != nil {
		fatalf("status: %v", err)
	}
}

func runWatch(args []string) {
	if len(args) > 0 {
		fatalf("usage: bankstander watch")
	}
	paths := workspace()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM)
	defer stop()
	if err := status.Watch(ctx, paths); err != nil {
		fatalf("watch: %v", err)
	}
}

func client(paths setup.Paths) *uds.Client {
	c := uds.NewClient(paths.Socket())
	c.SetTimeout(5 * time.Second)
	return c
}

func runPause(args []string, pause bool) {
	name := "resume"
	cmd := uds.CmdResume
	if pause {
		name, cmd = "pause", uds.CmdPause
	}

	var params daemon.PauseParams
	for _, a := range args {
		switch a {
		case "--persist":
			params.Persist = true
		default:
			fatalf("unknown flag: %s\nusage: bankstander %s [--persist]", a, name)
		}
	}

	var snap model.Snapshot
	if err := client(workspace()).Call(context.Background(), cmd, params, &snap); err != nil {
		fatalf("%s: %v", name, err)
	}
	if snap.Paused {
		fmt.Println("paused")
	} else {
		fmt.Println("running")
	}
}

func runStop(args []string) {
	if len(args) > 0 {
		fatalf("usage: bankstander stop")
	}
	if err := client(workspace()).Call(context.Background(), uds.CmdStop, nil, nil); err != nil {
		fatalf("stop: %v", err)
	}
	fmt.Println("stopping")
}

func runRecipes(args []string) {
	if len(args) > 0 {
		fatalf("usage: bankstander recipes")
	}
	fmt.Printf("%-20s %-22s %5s  %s\n", "KEY", "NAME", "LEVEL", "MATERIAL")
	for _, r := range model.Recipes() {
		fmt.Printf("%-20s %-22s %5d  %s\n", r.Key, r.Name, r.Level, r.MaterialID)
	}
}

func runNotify(args []string) {
	title, message := notify.DefaultTitle, "Notifications are working."
	switch len(args) {
	case 0:
	case 1:
		message = args[0]
	case 2:
		title, message = args[0], args[1]
	default:
		fatalf("usage: bankstander notify [title] [message]")
	}
	if err := notify.Send(title, message); err != nil {
		fatalf("notify: %v", err)
	}
}

func printUsage() {
	fmt.Fprintf(os.Stderr, `bankstander %s - bank-standing skilling session runner

Usage: bankstander <command> [options]

Workspace:
  init [dir] [flags]    Create .bankstander/ (--recipe <key> --costume-needle --force)
  validate              Check config.yaml against the schema
  recipes               List built-in crafting recipes

Session:
  run                   Run a session in the foreground
  status [--json]       Show session status
  watch                 Live status view (p pause/resume, s stop, q quit)
  pause [--persist]     Pause the running session
  resume [--persist]    Resume the running session
  stop                  Stop the running session

Utilities:
  notify [title] [msg]  Send a test desktop notification
  version               Show version
  help                  Show this help

`, version)
}
