package keycache

import "errors"

// ErrNoDeriver is returned by Refresh for a site nothing can derive keys for.
var ErrNoDeriver = errors.New("no key deriver registered")
