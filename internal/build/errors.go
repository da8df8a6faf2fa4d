package build

import "errors"

// Sentinel errors wrapped into the classified errors returned in Result.Err.
var (
	ErrBuildFailed = errors.New("specserve: build failed")
	ErrSuperseded  = errors.New("specserve: build superseded")
	ErrNotStable   = errors.New("specserve: build output not stable")
)
