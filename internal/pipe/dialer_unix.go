//go:build unix

package pipe

import (
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"

	"golang.org/x/sys/unix"
)

// Dial implements Dialer. The FIFO is opened read-write and non-blocking:
// the open never waits for a writer, reads park in the runtime poller, and
// closing the file releases a pending read.
func (PipeDialer) Dial(_ context.Context, name string) (io.ReadCloser, error) {
	fd, err := unix.Open(name, unix.O_RDWR|unix.O_NONBLOCK|unix.O_CLOEXEC, 0)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%w: %s", ErrNotAvailable, name)
		}
		return nil, &fs.PathError{Op: "open", Path: name, Err: err}
	}
	return os.NewFile(uintptr(fd), name), nil
}
