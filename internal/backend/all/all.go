// Package all registers all built-in detach backends.
//
// Import for side effects:
//
//	import _ "github.com/mbrock/detach/internal/backend/all"
package all

import (
	_ "github.com/mbrock/detach/internal/backend/posix"
	_ "github.com/mbrock/detach/internal/backend/systemd"
)
