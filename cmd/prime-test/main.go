//go:build linux

package main

import (
	"bufio"
	"flag"
	"fmt"
	"image"
	"os"
	"time"

	"github.com/go-errors/errors"
	"periph.io/x/conn/v3/gpio"
	"periph.io/x/conn/v3/gpio/gpioreg"
	"periph.io/x/host/v3"

	"github.com/BeatGlow/kms"
	"github.com/BeatGlow/kms/draw"
	"github.com/BeatGlow/kms/drm"
	"github.com/BeatGlow/kms/pixel"
)

var (
	debugFlag = flag.Bool("debug", false, "Print stack traces on errors")
	stdin     = bufio.NewReader(os.Stdin)

	// cards are closed on exit, fatal included.
	cards []*drm.Card
)

func main() {
	primaryFlag := flag.String("primary", drm.CardPath(0), "Primary DRM device, the buffer is allocated here")
	secondaryFlag := flag.String("secondary", drm.CardPath(2), "Secondary DRM device, the buffer is imported here")
	widthFlag := flag.Int("width", 0, "Mode width (default: preferred mode)")
	heightFlag := flag.Int("height", 0, "Mode height (default: preferred mode)")
	forceFlag := flag.Bool("force", false, "Force the mode size if no connector mode matches")
	connectorFlag := flag.Int("connector", kms.DefaultSelector.Connector, "Connector index (default: first connected)")
	crtcFlag := flag.Int("crtc", 0, "CRTC index")
	primaryColorFlag := flag.Uint("primary-color", uint(kms.DefaultConfig.PrimaryFill), "XRGB word the primary device shows")
	secondaryColorFlag := flag.Uint("secondary-color", uint(kms.DefaultConfig.SecondaryFill), "XRGB word written through the imported buffer")
	repaintFlag := flag.Uint("repaint", 0x0000ff00, "XRGB word written after the first wait, 0 to skip")
	labelFlag := flag.Bool("label", false, "Draw a test pattern with the device names")
	waitFlag := flag.Duration("wait", 0, "Time to show each frame (default: wait for enter)")
	blPinFlag := flag.String("bl", "", "Backlight GPIO pin of the primary output")
	bl2PinFlag := flag.String("bl2", "", "Backlight GPIO pin of the secondary output")
	flag.Parse()

	var primaryBacklight, secondaryBacklight gpio.PinIO
	if *blPinFlag != "" || *bl2PinFlag != "" {
		if _, err := host.Init(); err != nil {
			fatal(err)
		}
		primaryBacklight = backlight(*blPinFlag)
		secondaryBacklight = backlight(*bl2PinFlag)
	}

	selector := &kms.Selector{
		Connector: *connectorFlag,
		Crtc:      *crtcFlag,
		Width:     *widthFlag,
		Height:    *heightFlag,
		ForceSize: *forceFlag,
	}
	primary := openOutput(*primaryFlag, selector)
	secondary := openOutput(*secondaryFlag, selector)
	if primaryBacklight != nil {
		primary.Backlight = primaryBacklight
	}
	if secondaryBacklight != nil {
		secondary.Backlight = secondaryBacklight
	}
	fmt.Printf("using primary output: %s\n", primary)
	fmt.Printf("using secondary output: %s\n", secondary)

	p, err := kms.NewPipeline(primary, secondary, &kms.Config{
		Width:         *widthFlag,
		Height:        *heightFlag,
		PrimaryFill:   uint32(*primaryColorFlag),
		SecondaryFill: uint32(*secondaryColorFlag),
	})
	if err != nil {
		fatal(err)
	}

	steps := []struct {
		Name string
		Run  func() error
	}{
		{"allocating buffer", p.Allocate},
		{"binding primary output", p.BindPrimary},
		{"sharing buffer", p.Clone},
		{"binding secondary output", p.BindSecondary},
		{"filling imported buffer", func() error { return p.Fill(uint32(*secondaryColorFlag)) }},
	}
	for _, step := range steps {
		fmt.Println(step.Name + "...")
		if err = step.Run(); err != nil {
			fatal(err)
		}
	}
	fmt.Printf("shared %s as %s\n", p.Primary(), p.Secondary())

	if *labelFlag {
		if err = p.Render(func(i *pixel.XRGB8888Image) {
			testPattern(i, primary, secondary)
		}, p.Secondary().Bounds()); err != nil {
			fatal(err)
		}
	}
	wait(*waitFlag)

	if *repaintFlag != 0 {
		fmt.Printf("repainting with %#08x\n", *repaintFlag)
		if err = p.Fill(uint32(*repaintFlag)); err != nil {
			fatal(err)
		}
		wait(*waitFlag)
	}

	if err = p.Teardown(); err != nil {
		fatal(err)
	}
	closeCards()
	fmt.Println("done")
}

func openOutput(name string, sel *kms.Selector) kms.Output {
	card, err := drm.Open(name)
	if err != nil {
		fatal(err)
	}
	cards = append(cards, card)
	output, err := kms.SelectOutput(card, sel)
	if err != nil {
		fatal(err)
	}
	return output
}

func backlight(name string) gpio.PinIO {
	if name == "" {
		return nil
	}
	pin := gpioreg.ByName(name)
	if pin == nil {
		fatal(fmt.Errorf("no GPIO pin named %q", name))
	}
	return pin
}

func testPattern(i *pixel.XRGB8888Image, primary, secondary kms.Output) {
	r := i.Bounds()
	draw.Grid(i, 64, pixel.XRGB8888{V: 0x00404040})
	draw.Rectangle(i, r, pixel.White)
	for n, text := range []string{
		"primary " + primary.String(),
		"secondary " + secondary.String(),
	} {
		if err := draw.Label(i, image.Pt(r.Min.X+16, r.Min.Y+40+n*32), 24, text, pixel.White); err != nil {
			fmt.Fprintln(os.Stderr, "label:", err)
		}
	}
}

func wait(d time.Duration) {
	if d > 0 {
		fmt.Printf("waiting %s...\n", d)
		time.Sleep(d)
		return
	}
	fmt.Println("hit enter to continue...")
	_, _ = stdin.ReadString('\n')
}

func closeCards() {
	for _, card := range cards {
		if err := card.Close(); err != nil {
			fmt.Fprintf(os.Stderr, "close %s: %v\n", card, err)
		}
	}
	cards = nil
}

func fatal(err error) {
	closeCards()
	if *debugFlag {
		fmt.Fprintln(os.Stderr, errors.Wrap(err, 1).ErrorStack())
	}
	fmt.Fprintln(os.Stderr, "fatal: "+err.Error())
	os.Exit(1)
}
