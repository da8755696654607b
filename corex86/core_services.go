// core_services.go - CoreServices: explicit dependency bundle
//
// Grounded on cpu_x86_runner.go's CPUX86Config (engines passed in rather
// than looked up globally), generalized into an explicit services struct so
// nothing in the core reaches for a package-level logger or singleton
// (spec.md §9 design note).
//
// (c) 2024-2026 Zayn Otley - GPLv3 or later

package corex86

import "go.uber.org/zap"

// CoreServices bundles the cross-cutting collaborators every component
// takes explicitly instead of through a global. A nil Logger is replaced
// with zap.NewNop() so callers never need a nil check.
type CoreServices struct {
	Logger *zap.Logger
}

func NewCoreServices(logger *zap.Logger) *CoreServices {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CoreServices{Logger: logger}
}
