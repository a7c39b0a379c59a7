package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/iudanet/projecthub/internal/client/api"
	"github.com/iudanet/projecthub/internal/client/cli"
	"github.com/iudanet/projecthub/internal/client/iocli"
	"github.com/iudanet/projecthub/internal/client/storage/boltdb"
)

var (
	// Version information set via ldflags during build
	Version   = "dev"
	BuildDate = "unknown"
	GitCommit = "unknown"
)

func main() {
	// Глобальные флаги
	showVersion := flag.Bool("version", false, "Show version information")
	serverURL := flag.String("server", "http://localhost:8080", "Server URL")
	dbPath := flag.String("db", "projecthub-client.db", "Path to local session database")
	password := flag.String("password", "", "Password (not recommended, use "+cli.PasswordEnv+" or -password-file)")
	passwordFile := flag.String("password-file", "", "Path to file containing the password")

	flag.Usage = func() { cli.PrintUsage(os.Stderr) }
	flag.Parse()

	if *showVersion {
		printVersion()
		os.Exit(0)
	}

	args := flag.Args()
	if len(args) == 0 {
		cli.PrintUsage(os.Stderr)
		os.Exit(1)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, *serverURL, *dbPath, cli.Passwords{FromFile: *passwordFile, FromArgs: *password}, args); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(1)
	}
}

func run(ctx context.Context, serverURL, dbPath string, passwords cli.Passwords, args []string) error {
	// Открываем BoltDB storage
	boltStorage, err := boltdb.New(ctx, dbPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	defer func() {
		if err := boltStorage.Close(); err != nil {
			slog.Error("failed to close database", "error", err)
		}
	}()

	c := cli.New(iocli.NewStdio(), api.NewClient(serverURL), boltStorage, nil, passwords)
	return c.Run(ctx, args[0], args[1:])
}

func printVersion() {
	fmt.Printf("ProjectHub Client\n")
	fmt.Printf("Version:    %s\n", Version)
	fmt.Printf("Build Date: %s\n", BuildDate)
	fmt.Printf("Git Commit: %s\n", GitCommit)
}
