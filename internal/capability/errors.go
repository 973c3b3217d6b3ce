package capability

import "errors"

// ErrRegistryBuild is returned when a registry build is aborted. No partial
// snapshot is ever returned alongside it.
var ErrRegistryBuild = errors.New("capability: registry build failed")
