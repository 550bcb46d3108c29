package audit

import "errors"

// ErrInvalidPath is returned by Refresh for paths outside the old site
var ErrInvalidPath = errors.New("invalid path")
