package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/nkiryanov/bizmarket/internal/client"
)

const (
	defaultServerURL = "http://localhost:8000"
	sessionFileName  = "session.json"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	err := run(ctx, os.Args[1:], os.Getenv, newPrompter(os.Stdin, os.Stderr), os.Stdout)
	switch {
	case err == nil:
	case errors.Is(err, pflag.ErrHelp):
	default:
		fmt.Fprintf(os.Stderr, "bizctl: %v\n", err)
		os.Exit(1)
	}
}

type app struct {
	client *client.Client
	prompt *prompter
	out    io.Writer
}

func run(ctx context.Context, args []string, getenv func(string) string, prompt *prompter, out io.Writer) error {
	fs := pflag.NewFlagSet("bizctl", pflag.ContinueOnError)
	fs.SetInterspersed(false)
	fs.Usage = func() { usage(fs, out) }

	serverURL := fs.StringP("server", "s", envOr(getenv, "BIZMARKET_URL", defaultServerURL), "API base url")
	sessionPath := fs.String("session", envOr(getenv, "BIZMARKET_SESSION", ""), "Session file, user config dir by default")
	timeout := fs.Duration("timeout", 30*time.Second, "Request timeout")

	if err := fs.Parse(args); err != nil {
		return err
	}
	if fs.NArg() == 0 {
		usage(fs, out)
		return errors.New("command is required")
	}

	cmd, ok := findCommand(fs.Arg(0))
	if !ok {
		return fmt.Errorf("unknown command %q", fs.Arg(0))
	}

	if *sessionPath == "" {
		dir, err := os.UserConfigDir()
		if err != nil {
			return fmt.Errorf("locate session file: %w", err)
		}
		*sessionPath = filepath.Join(dir, "bizmarket", sessionFileName)
	}

	c, err := client.New(*serverURL, client.NewFileStore(*sessionPath), client.WithTimeout(*timeout))
	if err != nil {
		return err
	}

	return cmd.run(ctx, &app{client: c, prompt: prompt, out: out}, fs.Args()[1:])
}

func envOr(getenv func(string) string, key string, fallback string) string {
	if v := getenv(key); v != "" {
		return v
	}
	return fallback
}

func usage(fs *pflag.FlagSet, out io.Writer) {
	fmt.Fprintln(out, "Usage: bizctl [flags] <command> [command flags]")
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Commands:")
	for _, cmd := range commands {
		fmt.Fprintf(out, "  %-16s %s\n", cmd.name, cmd.help)
	}
	fmt.Fprintln(out)
	fmt.Fprintln(out, "Flags:")
	fmt.Fprint(out, fs.FlagUsages())
}
