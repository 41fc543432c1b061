package mp3

import "github.com/pkg/errors"

var (
	// ErrQueueUnderflow is returned when main data reaches a frame boundary but no side info
	// has been stored for the next frame.
	ErrQueueUnderflow = errors.New("side info queue underflow")

	// ErrAllocationFailure is returned when the side info pool would grow beyond its limit.
	ErrAllocationFailure = errors.New("side info allocation failed")

	// ErrCapacityMismatch is returned when a frame has more granules or channels than a
	// side info node can hold.
	ErrCapacityMismatch = errors.New("side info capacity mismatch")

	// ErrInvalidFrame is returned for frames which cannot be formatted.
	ErrInvalidFrame = errors.New("invalid frame")

	// ErrUnsupportedConfig is returned by NewEncoder for unsupported audio settings.
	ErrUnsupportedConfig = errors.New("unsupported configuration")

	// ErrReservoirOverdrawn is returned when a frame uses more bits than the reservoir holds.
	ErrReservoirOverdrawn = errors.New("bit reservoir overdrawn")
)
