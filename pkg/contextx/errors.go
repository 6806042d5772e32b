package contextx

import "errors"

// ErrNoValue is returned by the FromContext accessors in this package when
// the requested key was never set.
var ErrNoValue = errors.New("no value in context")
