// Command appregistry-launch records an application launch and then runs
// the application.
//
//	appregistry-launch [-kind main|shortcut|other] <identity|alias> [command [args...]]
//
// It appends "<unix_nano>,<kind>,<identity|alias>" to the launch log
// ($APPREGISTRY_LAUNCH_LOG, default ~/.config/appregistry/launches.log),
// which the appregistry watcher ingests. When a command follows, this process
// is replaced by it.
//
// When invoked through a symlink (e.g. ~/bin/mail -> appregistry-launch) the
// symlink name is the alias and every argument belongs to the command.
//
// This binary must NOT import internal appregistry packages. It sits on
// every launch path and is deployed separately from the main CLI.
package main

import (
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"syscall"
	"time"
)

const programName = "appregistry-launch"

// invocation is what one run of the launcher was asked to do.
type invocation struct {
	kind    string
	name    string
	command []string
}

func main() {
	inv, err := parseInvocation(os.Args, os.Stderr)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(2)
	}

	// Best effort: a launch must never fail because it could not be counted.
	if path := launchLogPath(os.Getenv); path != "" {
		_ = appendLaunch(path, inv, time.Now())
	}

	if len(inv.command) == 0 {
		return
	}

	bin, err := exec.LookPath(inv.command[0])
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", programName, err)
		os.Exit(127)
	}
	if err := syscall.Exec(bin, inv.command, os.Environ()); err != nil {
		fmt.Fprintf(os.Stderr, "%s: exec %s failed: %v\n", programName, bin, err)
		os.Exit(126)
	}
}

// parseInvocation reads the command line. argv[0] is inspected for symlink
// invocation.
func parseInvocation(argv []string, stderr io.Writer) (invocation, error) {
	if len(argv) == 0 {
		return invocation{}, errors.New("empty command line")
	}

	if base := filepath.Base(argv[0]); base != programName {
		inv := invocation{kind: "main", name: base, command: argv[1:]}
		return inv, nil
	}

	fs := flag.NewFlagSet(programName, flag.ContinueOnError)
	fs.SetOutput(stderr)
	kind := fs.String("kind", "main", "launch kind: main, shortcut or other")
	if err := fs.Parse(argv[1:]); err != nil {
		return invocation{}, err
	}

	switch *kind {
	case "main", "shortcut", "other":
	default:
		return invocation{}, fmt.Errorf("invalid -kind %q", *kind)
	}

	rest := fs.Args()
	if len(rest) == 0 {
		return invocation{}, errors.New("missing identity or alias")
	}
	name := strings.TrimSpace(rest[0])
	if name == "" || strings.ContainsAny(name, ",\n") {
		return invocation{}, fmt.Errorf("invalid identity or alias %q", rest[0])
	}

	command := rest[1:]
	if len(command) > 0 && command[0] == "--" {
		command = command[1:]
	}
	return invocation{kind: *kind, name: name, command: command}, nil
}

// launchLogPath mirrors the appregistry configuration defaults.
func launchLogPath(getenv func(string) string) string {
	if p := getenv("APPREGISTRY_LAUNCH_LOG"); p != "" {
		return p
	}
	base := getenv("XDG_CONFIG_HOME")
	if base == "" {
		home, err := os.UserHomeDir()
		if err != nil {
			return ""
		}
		base = filepath.Join(home, ".config")
	}
	return filepath.Join(base, "appregistry", "launches.log")
}

// appendLaunch writes one launch line. A single O_APPEND write keeps
// concurrent launchers from interleaving.
func appendLaunch(path string, inv invocation, at time.Time) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return err
	}
	f, err := os.OpenFile(path, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0600)
	if err != nil {
		return err
	}
	defer f.Close()

	_, err = fmt.Fprintf(f, "%d,%s,%s\n", at.UnixNano(), inv.kind, inv.name)
	return err
}
