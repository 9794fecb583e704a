package audio

import "errors"

var (
	ErrTooSmall           = errors.New("audio: file is below the minimum size")
	ErrNoAudio            = errors.New("audio: no decodable samples")
	ErrNoInput            = errors.New("audio: nothing to concatenate")
	ErrSampleRateMismatch = errors.New("audio: sample rates differ")
)
