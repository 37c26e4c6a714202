//go:build !cgo

package capture

// NewSystemDevice returns a device that cannot be opened: miniaudio needs cgo.
func NewSystemDevice() InputDevice {
	return noDevice{}
}

type noDevice struct{}

func (noDevice) Open(DeviceConfig, func([]byte)) error { return ErrNoDevice }
func (noDevice) Start() error                         { return ErrNoDevice }
func (noDevice) Stop() error                          { return nil }
func (noDevice) Close() error                         { return nil }
