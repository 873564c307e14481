package kmstest

import (
	"encoding/binary"
	"fmt"
	"image"
	"sync"
	"unsafe"

	"golang.org/x/sys/unix"

	"github.com/BeatGlow/kms"
)

type framebuffer struct {
	width, height, pitch int
	obj                  *object
}

type crtc struct {
	fb         uint32
	mode       kms.Mode
	connectors []kms.ConnectorID
	scanout    []uint32
}

// Option configures a device.
type Option func(*Device)

// WithPitchAlign aligns the pitch of dumb buffers to n bytes.
func WithPitchAlign(n int) Option {
	return func(d *Device) {
		d.pitchAlign = n
	}
}

// WithPrimeCaps sets the PRIME capabilities of the device.
func WithPrimeCaps(caps kms.PrimeCap) Option {
	return func(d *Device) {
		d.caps = caps
	}
}

// WithCrtcs replaces the CRTCs of the device.
func WithCrtcs(ids ...kms.CrtcID) Option {
	return func(d *Device) {
		d.crtcIDs = append([]kms.CrtcID(nil), ids...)
	}
}

// WithConnectors replaces the connectors of the device.
func WithConnectors(connectors ...kms.Connector) Option {
	return func(d *Device) {
		d.connectors = append([]kms.Connector(nil), connectors...)
	}
}

// Device is an in-memory display device. It implements [kms.Device] and
// [kms.Enumerator].
type Device struct {
	name       string
	bus        *Bus
	pitchAlign int
	caps       kms.PrimeCap
	crtcIDs    []kms.CrtcID
	connectors []kms.Connector

	mu         sync.Mutex
	nextHandle uint32
	nextFB     uint32
	handles    map[uint32]*object
	offsets    map[uint64]*object
	mappings   map[*byte]int
	fbs        map[uint32]*framebuffer
	crtcs      map[kms.CrtcID]*crtc
	fail       map[Op]error
}

// NewDevice returns a device on b. Without options it has one CRTC and one connected
// connector offering 1280x800 (preferred) and 1920x1080.
func (b *Bus) NewDevice(name string, options ...Option) *Device {
	preferred := Mode(1280, 800, 60)
	preferred.Type |= kms.ModeTypePreferred

	d := &Device{
		name:       name,
		bus:        b,
		pitchAlign: DefaultPitchAlign,
		caps:       kms.PrimeImport | kms.PrimeExport,
		crtcIDs:    []kms.CrtcID{DefaultCrtc},
		connectors: []kms.Connector{{
			ID:        DefaultConnector,
			Connected: true,
			Modes:     []kms.Mode{preferred, Mode(1920, 1080, 60)},
		}},
		nextHandle: 1,
		nextFB:     1,
		handles:    make(map[uint32]*object),
		offsets:    make(map[uint64]*object),
		mappings:   make(map[*byte]int),
		fbs:        make(map[uint32]*framebuffer),
		crtcs:      make(map[kms.CrtcID]*crtc),
		fail:       make(map[Op]error),
	}
	for _, option := range options {
		option(d)
	}
	for _, id := range d.crtcIDs {
		d.crtcs[id] = new(crtc)
	}
	return d
}

func (d *Device) String() string {
	return d.name
}

// Fail makes every following op return err, until called again with a nil err.
func (d *Device) Fail(op Op, err error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err == nil {
		delete(d.fail, op)
	} else {
		d.fail[op] = err
	}
}

func (d *Device) failure(op Op) error {
	if err := d.fail[op]; err != nil {
		return fmt.Errorf("kmstest: %s: %s: %w", d.name, op, err)
	}
	return nil
}

// Handles is the number of live buffer handles.
func (d *Device) Handles() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.handles)
}

// Framebuffers is the number of registered framebuffers.
func (d *Device) Framebuffers() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return len(d.fbs)
}

// Mappings is the number of live CPU mappings.
func (d *Device) Mappings() int {
	d.mu.Lock()
	defer d.mu.Unlock()
	var n int
	for _, count := range d.mappings {
		n += count
	}
	return n
}

// ActiveFramebuffer returns the framebuffer scanned out by crtc, 0 if it's disabled.
func (d *Device) ActiveFramebuffer(id kms.CrtcID) uint32 {
	d.mu.Lock()
	defer d.mu.Unlock()
	if c := d.crtcs[id]; c != nil {
		return c.fb
	}
	return 0
}

// ScanoutWord returns the word shown at (x, y) on the output of crtc.
func (d *Device) ScanoutWord(id kms.CrtcID, x, y int) (uint32, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	c := d.crtcs[id]
	if c == nil || c.fb == 0 {
		return 0, false
	}
	w, h := int(c.mode.Hdisplay), int(c.mode.Vdisplay)
	if x < 0 || y < 0 || x >= w || y >= h {
		return 0, false
	}
	return c.scanout[y*w+x], true
}

func (d *Device) Resources() (*kms.Resources, error) {
	res := &kms.Resources{
		Crtcs:      append([]kms.CrtcID(nil), d.crtcIDs...),
		Connectors: make([]kms.Connector, len(d.connectors)),
	}
	for i, c := range d.connectors {
		c.Modes = append([]kms.Mode(nil), c.Modes...)
		res.Connectors[i] = c
	}
	return res, nil
}

func (d *Device) CreateDumb(width, height, bpp uint32) (kms.DumbBuffer, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpCreateDumb); err != nil {
		return kms.DumbBuffer{}, err
	}
	if width == 0 || height == 0 || bpp != kms.BitsPerPixel {
		return kms.DumbBuffer{}, unix.EINVAL
	}

	pitch := int(width) * int(bpp) / 8
	if d.pitchAlign > 1 {
		pitch = (pitch + d.pitchAlign - 1) / d.pitchAlign * d.pitchAlign
	}
	size := (pitch*int(height) + pageSize - 1) / pageSize * pageSize

	handle := d.nextHandle
	d.nextHandle++
	d.handles[handle] = &object{mem: make([]byte, size)}
	return kms.DumbBuffer{
		Handle: handle,
		Pitch:  uint32(pitch),
		Size:   uint64(size),
	}, nil
}

func (d *Device) MapDumb(handle uint32) (uint64, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpMapDumb); err != nil {
		return 0, err
	}
	obj, ok := d.handles[handle]
	if !ok {
		return 0, unix.ENOENT
	}
	offset := 0x100000000 + uint64(handle)*pageSize
	d.offsets[offset] = obj
	return offset, nil
}

func (d *Device) Mmap(offset uint64, size int) ([]byte, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpMmap); err != nil {
		return nil, err
	}
	obj, ok := d.offsets[offset]
	if !ok || size <= 0 || size > len(obj.mem) {
		return nil, unix.EINVAL
	}
	mapping := obj.mem[:size:size]
	d.mappings[unsafe.SliceData(mapping)]++
	return mapping, nil
}

func (d *Device) Munmap(mapping []byte) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpMunmap); err != nil {
		return err
	}
	if len(mapping) == 0 {
		return unix.EINVAL
	}
	key := unsafe.SliceData(mapping)
	switch d.mappings[key] {
	case 0:
		return unix.EINVAL
	case 1:
		delete(d.mappings, key)
	default:
		d.mappings[key]--
	}
	return nil
}

func (d *Device) DestroyDumb(handle uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpDestroyDumb); err != nil {
		return err
	}
	obj, ok := d.handles[handle]
	if !ok {
		return unix.ENOENT
	}
	delete(d.handles, handle)
	for offset, o := range d.offsets {
		if o == obj {
			delete(d.offsets, offset)
		}
	}
	return nil
}

func (d *Device) AddFB(width, height uint32, depth, bpp uint8, pitch, handle uint32) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpAddFB); err != nil {
		return 0, err
	}
	obj, ok := d.handles[handle]
	if !ok {
		return 0, unix.ENOENT
	}
	if depth != kms.Depth || bpp != kms.BitsPerPixel || width == 0 || height == 0 {
		return 0, unix.EINVAL
	}
	if int(pitch) < int(width)*int(bpp)/8 || int(pitch)*int(height) > len(obj.mem) {
		return 0, unix.EINVAL
	}

	id := d.nextFB
	d.nextFB++
	d.fbs[id] = &framebuffer{
		width:  int(width),
		height: int(height),
		pitch:  int(pitch),
		obj:    obj,
	}
	return id, nil
}

func (d *Device) RmFB(id uint32) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpRmFB); err != nil {
		return err
	}
	if _, ok := d.fbs[id]; !ok {
		return unix.ENOENT
	}
	delete(d.fbs, id)
	for _, c := range d.crtcs {
		if c.fb == id {
			*c = crtc{}
		}
	}
	return nil
}

func (d *Device) DirtyFB(id uint32, clips []image.Rectangle) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpDirtyFB); err != nil {
		return err
	}
	fb, ok := d.fbs[id]
	if !ok {
		return unix.ENOENT
	}
	for _, c := range d.crtcs {
		if c.fb != id {
			continue
		}
		for _, clip := range clips {
			c.copy(fb, clip)
		}
	}
	return nil
}

func (d *Device) SetCrtc(id kms.CrtcID, fbID uint32, connectors []kms.ConnectorID, mode *kms.Mode) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpSetCrtc); err != nil {
		return err
	}
	c, ok := d.crtcs[id]
	if !ok {
		return unix.EINVAL
	}
	if fbID == 0 {
		*c = crtc{}
		return nil
	}
	fb, ok := d.fbs[fbID]
	if !ok {
		return unix.ENOENT
	}
	if mode == nil || len(connectors) == 0 {
		return unix.EINVAL
	}
	for _, conn := range connectors {
		if !d.hasConnector(conn) {
			return unix.ENOENT
		}
	}
	if int(mode.Hdisplay) > fb.width || int(mode.Vdisplay) > fb.height {
		return unix.ENOSPC
	}

	*c = crtc{
		fb:         fbID,
		mode:       *mode,
		connectors: append([]kms.ConnectorID(nil), connectors...),
		scanout:    make([]uint32, int(mode.Hdisplay)*int(mode.Vdisplay)),
	}
	c.copy(fb, image.Rect(0, 0, fb.width, fb.height))
	return nil
}

func (d *Device) hasConnector(id kms.ConnectorID) bool {
	for _, c := range d.connectors {
		if c.ID == id {
			return true
		}
	}
	return false
}

// copy composites clip of fb onto the output.
func (c *crtc) copy(fb *framebuffer, clip image.Rectangle) {
	w, h := int(c.mode.Hdisplay), int(c.mode.Vdisplay)
	clip = clip.Intersect(image.Rect(0, 0, w, h)).Intersect(image.Rect(0, 0, fb.width, fb.height))
	for y := clip.Min.Y; y < clip.Max.Y; y++ {
		for x := clip.Min.X; x < clip.Max.X; x++ {
			c.scanout[y*w+x] = binary.LittleEndian.Uint32(fb.obj.mem[y*fb.pitch+x*4:])
		}
	}
}

func (d *Device) PrimeCapabilities() (kms.PrimeCap, error) {
	return d.caps, nil
}

func (d *Device) PrimeHandleToFD(handle uint32) (kms.Descriptor, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpPrimeExport); err != nil {
		return nil, err
	}
	if d.caps&kms.PrimeExport == 0 {
		return nil, unix.EOPNOTSUPP
	}
	obj, ok := d.handles[handle]
	if !ok {
		return nil, unix.ENOENT
	}
	return d.bus.export(obj), nil
}

func (d *Device) PrimeFDToHandle(desc kms.Descriptor) (uint32, error) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if err := d.failure(OpPrimeImport); err != nil {
		return 0, err
	}
	if d.caps&kms.PrimeImport == 0 {
		return 0, unix.EOPNOTSUPP
	}
	obj, ok := d.bus.lookup(int(desc.Fd()))
	if !ok {
		return 0, unix.EBADF
	}
	// The kernel hands out the existing handle for a buffer imported twice.
	for handle, o := range d.handles {
		if o == obj {
			return handle, nil
		}
	}
	handle := d.nextHandle
	d.nextHandle++
	d.handles[handle] = obj
	return handle, nil
}

// Interface checks.
var (
	_ kms.Device     = (*Device)(nil)
	_ kms.Enumerator = (*Device)(nil)
)
