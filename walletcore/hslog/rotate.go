package hslog

import (
	"github.com/jrick/logrotate/rotator"
)

// NewRotatingBackend builds a backend that writes to a size-rotated log
// file instead of os.Stderr, for hosts that want the engine's log
// output on disk. Grounded on the btcsuite-family convention (the
// teacher's own log setup pulls in the same dependency) of handing a
// rotator.Rotator to the logging backend as its io.Writer.
func NewRotatingBackend(logFile string, maxRolls int, lvl Level) (*backend, error) {
	r, err := rotator.New(logFile, 10*1024, false, maxRolls)
	if err != nil {
		return nil, err
	}
	return NewBackend(r, lvl), nil
}
