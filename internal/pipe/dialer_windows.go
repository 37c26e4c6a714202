//go:build windows

package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
)

// Dial implements Dialer. name is a pipe path such as \\.\pipe\voicebridge.
func (PipeDialer) Dial(_ context.Context, name string) (io.ReadCloser, error) {
	f, err := os.OpenFile(name, os.O_RDONLY, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotAvailable, name)
		}
		return nil, err
	}
	return f, nil
}
