package export

import "errors"

// ErrNoContent is returned when no segment is eligible for export.
var ErrNoContent = errors.New("export: no audio available to export")
