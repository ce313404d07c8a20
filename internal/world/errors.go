package world

import "errors"

// ErrNotFound is returned by stores and repositories for absent ids.
var ErrNotFound = errors.New("not found")
