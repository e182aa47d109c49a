// File: cmd/killexe/main.go
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"

	"github.com/speedtracer/breaky/internal/procutil"
)

func main() {
	os.Exit(run(os.Args[1:]))
}

func run(args []string) int {
	fs := flag.NewFlagSet("killexe", flag.ContinueOnError)
	rounds := fs.Int("rounds", 10, "give up after this many kill rounds (0: no limit)")
	fs.Usage = func() {
		fmt.Fprintf(fs.Output(), "usage: killexe [--rounds N] path\n")
		fs.PrintDefaults()
	}
	if err := fs.Parse(args); err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return 0
		}
		return 2
	}
	if fs.NArg() != 1 {
		fs.Usage()
		return 2
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	path := fs.Arg(0)
	n, err := procutil.KillByExecutable(ctx, path, *rounds)
	if err != nil {
		log.Printf("Killexe: %v", err)
		return 1
	}
	log.Printf("Killexe: Killed %d process(es) started from %s", n, procutil.NormalizePath(path))
	return 0
}
