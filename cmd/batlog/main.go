//go:build !rp2040

// Command batlog inspects and exercises a battery log store on a directory,
// on W25N flash through Linux spidev, or on a simulated chip.
//
//	batlog -config batlog.yaml <command> [serial]
package main

import (
	"flag"
	"fmt"
	"log"
	"os"

	"github.com/fatih/color"

	"batlog-go/batlog"
	"batlog-go/config"
)

const usage = `usage: batlog [-config file] [-backend b] <command> [serial]

commands:
  info              backend, flash and per-series summary
  sync-demo [s]     fill a simulated gauge ring and sync it a few times
  serve [s]         run the bus service on a simulated gauge until interrupted
  dump <s>          print every record of a series
  count <s>         number of records in a series
  meta <s>          stored metadata of a series
  delete <s>        remove a series
  wipe              remove every series
  diag              flash bad blocks and BBM table
  ecc               full-chip ECC scan (slow)
`

func main() {
	cfgPath := flag.String("config", "", "YAML configuration file")
	backendName := flag.String("backend", "", "storage backend override (nandfs, dir, sim)")
	verbose := flag.Bool("v", false, "verbose store logging")
	flag.Usage = func() { fmt.Fprint(os.Stderr, usage) }
	flag.Parse()

	if flag.NArg() < 1 {
		flag.Usage()
		os.Exit(2)
	}
	if *backendName != "" {
		os.Setenv(config.EnvBackend, *backendName)
	}
	cfg, err := config.Load(*cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	b, err := openBackend(cfg)
	if err != nil {
		log.Fatalf("open %s backend: %v", cfg.Storage.Backend, err)
	}
	defer b.close()

	store, err := batlog.Open(batlog.Config{
		FS:       b.fs,
		RingSize: cfg.Store.RingSize,
		Verbose:  cfg.Store.Verbose || *verbose,
	})
	if err != nil {
		log.Fatalf("open store: %v", err)
	}

	app := &app{cfg: cfg, b: b, store: store}
	if err := app.run(flag.Arg(0), flag.Args()[1:]); err != nil {
		color.Red("%s: %v", flag.Arg(0), err)
		b.close()
		os.Exit(1)
	}
}

func warnf(format string, a ...any) { color.Yellow(format, a...) }
