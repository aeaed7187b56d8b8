package types

import "errors"

// ErrInvalidID is returned by IDTime for strings NewID cannot have produced.
var ErrInvalidID = errors.New("invalid id")
