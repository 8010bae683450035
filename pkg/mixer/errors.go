package mixer

import "errors"

var (
	errFull         = errors.New("mixer: strip table full")
	errInvalidStrip = errors.New("mixer: invalid strip index")
	errMainStrip    = errors.New("mixer: cannot remove the main mixbus strip")
	errWrongMode    = errors.New("mixer: operation not valid in this mode")
)
