//go:build cgo

package capture

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/gen2brain/malgo"
	"go.uber.org/multierr"
)

// MalgoDevice captures from the default input device through miniaudio.
type MalgoDevice struct {
	ctx    *malgo.AllocatedContext
	device *malgo.Device
}

// NewSystemDevice returns the platform capture device.
func NewSystemDevice() InputDevice {
	return &MalgoDevice{}
}

// Open implements InputDevice.
func (d *MalgoDevice) Open(cfg DeviceConfig, onData func([]byte)) error {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, func(message string) {
		log.Debug("miniaudio", "message", strings.TrimSpace(message))
	})
	if err != nil {
		return fmt.Errorf("failed to initialize audio context: %w", err)
	}

	dc := malgo.DefaultDeviceConfig(malgo.Capture)
	dc.Capture.Format = malgo.FormatS16
	dc.Capture.Channels = 1
	dc.SampleRate = uint32(cfg.SampleRate)
	dc.PeriodSizeInFrames = uint32(cfg.ChunkFrames)
	dc.Alsa.NoMMap = 1

	callbacks := malgo.DeviceCallbacks{
		Data: func(_, input []byte, _ uint32) {
			onData(input)
		},
	}

	device, err := malgo.InitDevice(ctx.Context, dc, callbacks)
	if err != nil {
		_ = ctx.Uninit()
		ctx.Free()
		return fmt.Errorf("failed to open capture device: %w", err)
	}

	d.ctx = ctx
	d.device = device
	log.Debug("Capture device opened", "sampleRate", cfg.SampleRate, "chunkFrames", cfg.ChunkFrames)
	return nil
}

// Start implements InputDevice.
func (d *MalgoDevice) Start() error {
	if d.device == nil {
		return ErrNoDevice
	}
	return d.device.Start()
}

// Stop implements InputDevice.
func (d *MalgoDevice) Stop() error {
	if d.device == nil {
		return nil
	}
	return d.device.Stop()
}

// Close implements InputDevice. The device and the context are released
// independently.
func (d *MalgoDevice) Close() error {
	var err error
	if d.device != nil {
		d.device.Uninit()
		d.device = nil
	}
	if d.ctx != nil {
		err = multierr.Append(err, d.ctx.Uninit())
		d.ctx.Free()
		d.ctx = nil
	}
	return err
}
