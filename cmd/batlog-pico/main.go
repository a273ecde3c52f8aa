//go:build rp2040

// Firmware for a Pico with a W25N SPI NAND on SPI0. A simulated gauge ring
// is synced into the flash log through the bus service; progress goes to
// UART1.
package main

import (
	"context"
	"machine"
	"time"

	uartx "github.com/jangala-dev/tinygo-uartx/uartx"

	"batlog-go/acquisition"
	"batlog-go/batlog"
	"batlog-go/bus"
	"batlog-go/drivers/spinand"
	svc "batlog-go/services/batlog"
	"batlog-go/storage/nandfs"
	"batlog-go/types"
	"batlog-go/x/conv"
)

const (
	serial   = "PICO0001"
	ringSize = 64
	spiHz    = 40_000_000
)

var console = uartx.UART1

func say(parts ...string) {
	for i, p := range parts {
		if i > 0 {
			console.Write([]byte{' '})
		}
		console.Write([]byte(p))
	}
	console.Write([]byte{'\r', '\n'})
}

func halt(what string, err error) {
	for {
		say("[batlog] FATAL", what, err.Error())
		time.Sleep(5 * time.Second)
	}
}

func main() {
	time.Sleep(2 * time.Second)
	_ = console.Configure(uartx.UARTConfig{BaudRate: 115200, TX: machine.GP4, RX: machine.GP5})
	say("[batlog] boot")

	cs := machine.GP17
	cs.Configure(machine.PinConfig{Mode: machine.PinOutput})
	cs.High()
	if err := machine.SPI0.Configure(machine.SPIConfig{
		Frequency: spiHz,
		SCK:       machine.GP18,
		SDO:       machine.GP19,
		SDI:       machine.GP16,
		Mode:      0,
	}); err != nil {
		halt("spi", err)
	}

	dev := spinand.New(machine.SPI0, cs.Set)
	if err := dev.Init(spinand.Config{}); err != nil {
		halt("flash init", err)
	}
	id := dev.ID()
	say("[batlog] flash", dev.ChipName(), conv.HexBytes(id[:], ' '))

	vol, err := nandfs.Mount(dev, nandfs.Config{})
	if err != nil {
		say("[batlog] mount failed, formatting:", err.Error())
		if vol, err = nandfs.Format(dev, nandfs.Config{}); err != nil {
			halt("format", err)
		}
	}
	st := vol.Stats()
	say("[batlog] volume blocks", conv.U32(uint32(st.Blocks)), "bad", conv.U32(uint32(st.Bad)))

	store, err := batlog.Open(batlog.Config{FS: vol, RingSize: ringSize})
	if err != nil {
		halt("store", err)
	}

	ctx := context.Background()
	ring := acquisition.NewRing(serial, ringSize)
	b := bus.NewBus(4)
	s := svc.New(svc.Options{
		Store:    store,
		Flash:    dev,
		Sources:  []acquisition.Source{ring},
		Interval: 10 * time.Second,
	})
	if err := s.Start(ctx, b.NewConnection("batlog")); err != nil {
		halt("service", err)
	}
	mon := b.NewConnection("console").Subscribe(bus.T("batlog", "+", "+"))

	tick := time.NewTicker(time.Second)
	defer tick.Stop()
	var seq uint32
	for {
		select {
		case <-tick.C:
			ring.Push(sample(seq))
			seq++
		case m := <-mon.Channel():
			switch p := m.Payload.(type) {
			case types.SyncReport:
				say("[batlog]", m.Topic.String(), p.Mode, "+"+conv.U32(uint32(p.Appended)), "records", conv.U32(p.RecordCount))
			case types.ErrorReply:
				say("[batlog]", m.Topic.String(), p.Error)
			}
		}
	}
}

// sample fakes one gauge slot: sequence and a slowly falling millivolt reading.
func sample(seq uint32) []byte {
	mv := 4200 - seq%1200
	return []byte{
		byte(seq), byte(seq >> 8), byte(seq >> 16), byte(seq >> 24),
		byte(mv), byte(mv >> 8),
	}
}
