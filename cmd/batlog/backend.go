//go:build !rp2040

package main

import (
	"batlog-go/config"
	"batlog-go/drivers/nandsim"
	"batlog-go/drivers/spinand"
	"batlog-go/errcode"
	"batlog-go/storage"
	"batlog-go/storage/nandfs"
	"batlog-go/storage/osfs"
	"batlog-go/transport/periphspi"
)

// backend is an opened storage stack. dev and vol are nil for the
// directory backend.
type backend struct {
	fs    storage.FS
	dev   *spinand.Device
	vol   *nandfs.Volume
	close func() error
}

func openBackend(cfg *config.Config) (*backend, error) {
	switch cfg.Storage.Backend {
	case config.BackendDir:
		fs, err := osfs.New(cfg.Storage.Dir)
		if err != nil {
			return nil, err
		}
		return &backend{fs: fs, close: func() error { return nil }}, nil

	case config.BackendNAND:
		conn, err := periphspi.Open(periphspi.Options{
			Port:    cfg.Flash.SPI,
			ClockHz: cfg.Flash.ClockHz,
			CS:      cfg.Flash.CS,
		})
		if err != nil {
			return nil, err
		}
		var cs spinand.PinOutput
		if conn.HasCS() {
			cs = conn.Select
		}
		b, err := mountFlash(spinand.New(conn, cs), cfg.Flash.Driver(), cfg.Storage)
		if err != nil {
			conn.Close()
			return nil, err
		}
		b.close = conn.Close
		return b, nil

	case config.BackendSim:
		chip := nandsim.New(nandsim.Options{Blocks: cfg.Storage.SimBlocks})
		dcfg := cfg.Flash.Driver()
		dcfg.Geometry = spinand.W25N01GV
		dcfg.Geometry.Blocks = cfg.Storage.SimBlocks
		st := cfg.Storage
		st.FormatIfFailed = true
		b, err := mountFlash(spinand.New(chip, chip.Select), dcfg, st)
		if err != nil {
			return nil, err
		}
		b.close = func() error { return nil }
		return b, nil
	}
	return nil, errcode.New(errcode.InvalidArgument, "batlog.backend", "unknown backend "+cfg.Storage.Backend)
}

func mountFlash(dev *spinand.Device, dcfg spinand.Config, st config.StorageConfig) (*backend, error) {
	if err := dev.Init(dcfg); err != nil {
		return nil, err
	}
	ncfg := nandfs.Config{SkipBadScan: st.SkipBadScan}
	vol, err := nandfs.Mount(dev, ncfg)
	if err != nil && st.FormatIfFailed {
		warnf("mount failed (%v), formatting", err)
		vol, err = nandfs.Format(dev, ncfg)
	}
	if err != nil {
		return nil, err
	}
	return &backend{fs: vol, dev: dev, vol: vol}, nil
}
