package capture

import (
	"errors"
	"sync"
)

// ErrNoDevice is returned when no capture backend is compiled in.
var ErrNoDevice = errors.New("no audio capture device available")

// DeviceConfig describes the stream the channel asks for: mono, 16-bit
// signed little-endian samples.
type DeviceConfig struct {
	SampleRate  int
	ChunkFrames int
}

// BytesPerChunk is the size of one full chunk.
func (c DeviceConfig) BytesPerChunk() int {
	return c.ChunkFrames * bytesPerSample
}

const bytesPerSample = 2

// InputDevice is the audio subsystem behind a Channel. onData runs on the
// driver's thread; the buffer it receives may be reused after it returns.
type InputDevice interface {
	Open(cfg DeviceConfig, onData func([]byte)) error
	Start() error
	Stop() error
	Close() error
}

// FuncDevice is an InputDevice driven by hand, for tests and for feeding
// recorded audio through a Channel.
type FuncDevice struct {
	mu      sync.Mutex
	onData  func([]byte)
	cfg     DeviceConfig
	running bool
	closed  bool

	// Hooks that let callers inject failures.
	StartErr error
	StopErr  error
	CloseErr error
}

// Open implements InputDevice.
func (d *FuncDevice) Open(cfg DeviceConfig, onData func([]byte)) error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
	d.onData = onData
	d.closed = false
	return nil
}

// Start implements InputDevice.
func (d *FuncDevice) Start() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.StartErr != nil {
		return d.StartErr
	}
	d.running = true
	return nil
}

// Stop implements InputDevice.
func (d *FuncDevice) Stop() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	return d.StopErr
}

// Close implements InputDevice.
func (d *FuncDevice) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.running = false
	d.closed = true
	d.onData = nil
	return d.CloseErr
}

// Feed delivers one buffer as the driver would. It reports false when the
// device is not running, in which case the buffer is dropped.
func (d *FuncDevice) Feed(buf []byte) bool {
	d.mu.Lock()
	fn, running := d.onData, d.running
	d.mu.Unlock()
	if !running || fn == nil {
		return false
	}
	fn(buf)
	return true
}

// Running reports whether the device is started.
func (d *FuncDevice) Running() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.running
}

// Closed reports whether Close was called.
func (d *FuncDevice) Closed() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.closed
}

// Config returns the configuration passed to Open.
func (d *FuncDevice) Config() DeviceConfig {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.cfg
}
