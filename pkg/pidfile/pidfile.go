// Package pidfile guards single-instance execution with a locked PID file.
// The daemon holds an advisory lock for its lifetime; stop and restart read
// the recorded PID to signal the running instance.
package pidfile

import (
	"os"
	"strconv"
	"strings"

	"github.com/gofrs/flock"

	"github.com/ncsa/training-sync/pkg/errors"
)

// PIDFile is an acquired single-instance lock
type PIDFile struct {
	path string
	lock *flock.Flock
}

// Acquire takes the advisory lock on path and writes the current PID into
// it. A held lock means another instance is running and acquisition fails
// with a config error naming the path.
func Acquire(path string) (*PIDFile, error) {
	lock := flock.New(path)

	locked, err := lock.TryLock()
	if err != nil {
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "locking PID file").
			WithDetail("path", path)
	}
	if !locked {
		return nil, errors.New(errors.ErrorTypeConfig, "another instance holds the PID file").
			WithDetail("path", path)
	}

	// Truncate and record our PID under the held lock
	if err := os.WriteFile(path, []byte(strconv.Itoa(os.Getpid())+"\n"), 0o644); err != nil {
		_ = lock.Unlock()
		return nil, errors.Wrap(err, errors.ErrorTypeConfig, "writing PID file").
			WithDetail("path", path)
	}

	return &PIDFile{path: path, lock: lock}, nil
}

// Release drops the lock and removes the file
func (p *PIDFile) Release() error {
	if err := p.lock.Unlock(); err != nil {
		return errors.Wrap(err, errors.ErrorTypeInternal, "unlocking PID file").
			WithDetail("path", p.path)
	}
	if err := os.Remove(p.path); err != nil && !os.IsNotExist(err) {
		return errors.Wrap(err, errors.ErrorTypeInternal, "removing PID file").
			WithDetail("path", p.path)
	}
	return nil
}

// Path returns the PID file location
func (p *PIDFile) Path() string {
	return p.path
}

// ReadPID returns the PID recorded at path. Used by stop and restart to
// find the running instance.
func ReadPID(path string) (int, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return 0, errors.Wrap(err, errors.ErrorTypeConfig, "reading PID file").
			WithDetail("path", path)
	}

	pid, err := strconv.Atoi(strings.TrimSpace(string(data)))
	if err != nil || pid <= 0 {
		return 0, errors.New(errors.ErrorTypeParse, "PID file does not contain a valid PID").
			WithDetail("path", path)
	}
	return pid, nil
}
