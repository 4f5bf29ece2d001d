// Command admin manages markets from the terminal:
//
//	admin list [category]
//	admin create
//	admin close <id>
//	admin resolve <id> <YES|NO>
//	admin delete <id>
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/chzyer/readline"

	"github.com/atmx/college-market/internal/admin"
	"github.com/atmx/college-market/internal/config"
	"github.com/atmx/college-market/internal/settlement"
	"github.com/atmx/college-market/internal/store"
)

func main() {
	if err := run(os.Args[1:]); err != nil {
		if !errors.Is(err, admin.ErrCancelled) {
			fmt.Fprintln(os.Stderr, "error:", err)
		}
		os.Exit(1)
	}
}

func run(args []string) error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: cfg.LogLevel})))

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	st, closeStore, err := store.Open(ctx, store.Options{
		DatabaseURL: cfg.DatabaseURL,
		RedisURL:    cfg.RedisURL,
		CacheTTL:    cfg.CacheTTL,
	})
	if err != nil {
		return err
	}
	defer closeStore()

	rl, err := readline.NewEx(&readline.Config{
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		return err
	}
	defer rl.Close()

	a := admin.New(st, settlement.NewResolver(st, nil), prompter{rl}, os.Stdout)
	return a.Run(ctx, args)
}

// prompter reads operator answers through readline. Ctrl-C and Ctrl-D
// cancel the command.
type prompter struct {
	rl *readline.Instance
}

func (p prompter) Prompt(label string) (string, error) {
	p.rl.SetPrompt(label)
	line, err := p.rl.Readline()
	if errors.Is(err, readline.ErrInterrupt) || errors.Is(err, io.EOF) {
		return "", admin.ErrCancelled
	}
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(line), nil
}
