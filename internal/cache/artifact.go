package cache

import (
	"path/filepath"
	"strings"
	"time"
)

// Kind distinguishes synthesized segments from merged exports.
type Kind string

const (
	KindSegment Kind = "segment"
	KindExport  Kind = "export"
)

// Ext returns the file extension used for the kind.
func (k Kind) Ext() string {
	if k == KindExport {
		return ".wav"
	}
	return ".mp3"
}

// State is the lifecycle position of an artifact.
type State int

const (
	StatePending State = iota
	StateReady
	StateFailed
)

func (s State) String() string {
	switch s {
	case StatePending:
		return "pending"
	case StateReady:
		return "ready"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// ExportPrefix starts the id of every export artifact.
const ExportPrefix = "export_"

// StagingSuffix is appended to an artifact path while it is being written.
const StagingSuffix = ".part"

// Artifact is one audio file owned by the store.
type Artifact struct {
	ID        string
	Path      string
	Kind      Kind
	Sequence  uint64
	CreatedAt time.Time
	Size      int64
	State     State
}

// Name returns the artifact's file name, which is also its URL path element.
func (a Artifact) Name() string {
	return filepath.Base(a.Path)
}

// ParseName maps an audio file name to its artifact id and kind. Only bare
// file names with an audio extension are accepted.
func ParseName(name string) (string, Kind, error) {
	if name == "" || name != filepath.Base(name) || strings.HasPrefix(name, ".") {
		return "", "", ErrInvalidName
	}

	switch ext := filepath.Ext(name); ext {
	case KindSegment.Ext():
		return strings.TrimSuffix(name, ext), KindSegment, nil
	case KindExport.Ext():
		return strings.TrimSuffix(name, ext), KindExport, nil
	default:
		return "", "", ErrInvalidName
	}
}
