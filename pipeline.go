package kms

import (
	"errors"
	"fmt"
	"image"
	"log"

	"periph.io/x/conn/v3/gpio"

	"github.com/BeatGlow/kms/pixel"
)

// State of a [Pipeline].
type State uint8

// Pipeline states, in the order a successful run goes through them.
const (
	Unconfigured State = iota
	PrimaryAllocated
	PrimaryBound
	Exported
	SecondaryBound
	Running
	TornDown
	Failed
)

func (s State) String() string {
	switch s {
	case Unconfigured:
		return "unconfigured"
	case PrimaryAllocated:
		return "primary allocated"
	case PrimaryBound:
		return "primary bound"
	case Exported:
		return "exported"
	case SecondaryBound:
		return "secondary bound"
	case Running:
		return "running"
	case TornDown:
		return "torn down"
	case Failed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", uint8(s))
	}
}

// Config is the pipeline configuration.
type Config struct {
	// Width and Height of the shared buffer in pixels, use 0 to use the size of the
	// primary output's mode.
	Width, Height int

	// PrimaryFill is the XRGB word the buffer is filled with before it's first bound.
	PrimaryFill uint32

	// SecondaryFill is the XRGB word written through the clone by Run.
	SecondaryFill uint32
}

// DefaultConfig are the default configuration values.
var DefaultConfig = Config{
	PrimaryFill:   0xff00ff00,
	SecondaryFill: 0x00ff0000,
}

// StageError is returned by a pipeline that failed; Stage names the failed step.
type StageError struct {
	Stage string
	Err   error
}

func (e *StageError) Error() string {
	if errno := Errno(e.Err); errno != 0 {
		return fmt.Sprintf("kms: pipeline failed at %s (errno %d): %v", e.Stage, int(errno), e.Err)
	}
	return fmt.Sprintf("kms: pipeline failed at %s: %v", e.Stage, e.Err)
}

func (e *StageError) Unwrap() error {
	return e.Err
}

// Pipeline shares one buffer between a primary and a secondary output on two devices:
// the buffer is allocated and bound on the primary output, cloned into the secondary
// device and bound there, then written through the clone.
//
// Any failing step moves the pipeline to the Failed state, after which the resources
// created so far are released in reverse order. A Pipeline isn't safe for concurrent
// use and never retries.
type Pipeline struct {
	config    Config
	primary   Output
	secondary Output
	binders   [2]*Binder
	buffers   [2]*BufferObject
	state     State
	err       error
}

// NewPipeline returns a pipeline for two outputs on distinct devices.
func NewPipeline(primary, secondary Output, config *Config) (*Pipeline, error) {
	if config == nil {
		config = new(Config)
		*config = DefaultConfig
	}
	if primary.Device == nil || secondary.Device == nil {
		return nil, ErrNoDevice
	}
	if primary.Device == secondary.Device {
		return nil, ErrSameDevice
	}

	p := &Pipeline{
		config:    *config,
		primary:   primary,
		secondary: secondary,
		binders: [2]*Binder{
			NewBinder(primary.Device),
			NewBinder(secondary.Device),
		},
	}
	if p.config.Width <= 0 || p.config.Height <= 0 {
		size := primary.Mode.Size()
		p.config.Width, p.config.Height = size.X, size.Y
	}
	return p, nil
}

// State returns the current state.
func (p *Pipeline) State() State { return p.state }

// Err returns the error that failed the pipeline, if any.
func (p *Pipeline) Err() error { return p.err }

// Primary returns the buffer allocated on the primary device, or nil.
func (p *Pipeline) Primary() *BufferObject { return p.buffers[0] }

// Secondary returns the buffer cloned into the secondary device, or nil.
func (p *Pipeline) Secondary() *BufferObject { return p.buffers[1] }

// Allocate creates the shared buffer on the primary device and fills it.
func (p *Pipeline) Allocate() error {
	if err := p.expect("allocate", Unconfigured); err != nil {
		return err
	}
	bo, err := Create(p.primary.Device, p.config.Width, p.config.Height)
	if err != nil {
		return p.fail("allocate", err)
	}
	p.buffers[0] = bo
	if err = bo.Fill(p.config.PrimaryFill); err != nil {
		return p.fail("allocate", err)
	}
	p.state = PrimaryAllocated
	return nil
}

// BindPrimary scans the buffer out on the primary output.
func (p *Pipeline) BindPrimary() error {
	if err := p.expect("bind primary", PrimaryAllocated); err != nil {
		return err
	}
	if err := p.bind(0, &p.primary); err != nil {
		return p.fail("bind primary", err)
	}
	p.state = PrimaryBound
	return nil
}

// Clone exports the buffer from the primary device and imports it into the secondary.
func (p *Pipeline) Clone() error {
	if err := p.expect("clone", PrimaryBound); err != nil {
		return err
	}
	bo, err := Clone(p.primary.Device, p.buffers[0], p.secondary.Device)
	if err != nil {
		return p.fail("clone", err)
	}
	p.buffers[1] = bo
	p.state = Exported
	return nil
}

// BindSecondary scans the clone out on the secondary output.
func (p *Pipeline) BindSecondary() error {
	if err := p.expect("bind secondary", Exported); err != nil {
		return err
	}
	if err := p.bind(1, &p.secondary); err != nil {
		return p.fail("bind secondary", err)
	}
	p.state = SecondaryBound
	return nil
}

// Render calls draw with an image over the clone's mapping and marks region dirty on
// the secondary output. It may be called repeatedly.
func (p *Pipeline) Render(draw func(*pixel.XRGB8888Image), region image.Rectangle) error {
	if err := p.expect("render", SecondaryBound, Running); err != nil {
		return err
	}
	bo := p.buffers[1]
	if draw != nil {
		draw(bo.Image())
	}
	if err := p.binders[1].MarkDirty(bo, region); err != nil {
		return p.fail("render", err)
	}
	p.state = Running
	return nil
}

// Fill writes word to every pixel of the clone and marks all of it dirty.
func (p *Pipeline) Fill(word uint32) error {
	return p.Render(func(i *pixel.XRGB8888Image) {
		i.FillWord(word)
	}, image.Rect(0, 0, p.config.Width, p.config.Height))
}

// Teardown releases both buffers, the clone first.
func (p *Pipeline) Teardown() error {
	if err := p.expect("teardown", Unconfigured, PrimaryAllocated, PrimaryBound, Exported, SecondaryBound, Running); err != nil {
		return err
	}
	err := p.release()
	p.state = TornDown
	if err != nil {
		return &StageError{Stage: "teardown", Err: err}
	}
	return nil
}

// Run goes through all steps, filling the clone with the configured word, and calls
// wait before tearing down.
func (p *Pipeline) Run(wait func()) error {
	steps := []func() error{
		p.Allocate,
		p.BindPrimary,
		p.Clone,
		p.BindSecondary,
		func() error { return p.Fill(p.config.SecondaryFill) },
	}
	for _, step := range steps {
		if err := step(); err != nil {
			return err
		}
	}
	if wait != nil {
		wait()
	}
	return p.Teardown()
}

func (p *Pipeline) bind(i int, o *Output) error {
	if err := p.binders[i].Bind(p.buffers[i], o.Crtc, o.Connector, &o.Mode); err != nil {
		return err
	}
	return setBacklight(o, gpio.High)
}

func (p *Pipeline) expect(op string, states ...State) error {
	for _, s := range states {
		if p.state == s {
			return nil
		}
	}
	return fmt.Errorf("%w: %s in state %s", ErrState, op, p.state)
}

func (p *Pipeline) fail(stage string, err error) error {
	p.state = Failed
	p.err = &StageError{Stage: stage, Err: err}
	if cerr := p.release(); cerr != nil {
		log.Printf("kms: cleanup after failed %s: %v", stage, cerr)
	}
	return p.err
}

// release destroys the buffers in reverse creation order.
func (p *Pipeline) release() error {
	var (
		outputs = [2]*Output{&p.primary, &p.secondary}
		errs    []error
	)
	for i := len(p.buffers) - 1; i >= 0; i-- {
		bo := p.buffers[i]
		if bo == nil {
			continue
		}
		if p.binders[i].Bound(bo) {
			if err := setBacklight(outputs[i], gpio.Low); err != nil {
				errs = append(errs, err)
			}
		}
		p.binders[i].Release(bo)
		if err := bo.Destroy(); err != nil {
			errs = append(errs, err)
		}
		p.buffers[i] = nil
	}
	return errors.Join(errs...)
}

func setBacklight(o *Output, level gpio.Level) error {
	if o.Backlight == nil || o.Backlight == gpio.INVALID {
		return nil
	}
	if err := o.Backlight.Out(level); err != nil {
		return fmt.Errorf("kms: backlight %s: %w", o.Backlight, err)
	}
	return nil
}
