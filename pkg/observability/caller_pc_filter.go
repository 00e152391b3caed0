package observability

import (
	"runtime"
	"strings"

	xruntime "github.com/facebookincubator/go-belt/pkg/runtime"
)

// CallerPCFilter wraps a caller filter to also skip the frames of the
// locking and panic-reporting helpers.
func CallerPCFilter(
	originalPCFilter xruntime.PCFilter,
) xruntime.PCFilter {
	return func(pc uintptr) bool {
		if !originalPCFilter(pc) {
			return false
		}
		fn := runtime.FuncForPC(pc)
		if fn == nil {
			return true
		}
		switch funcName := fn.Name(); {
		case strings.Contains(funcName, "xaionaro-go/xsync"):
			return false
		case strings.Contains(funcName, "pkg/observability."):
			return false
		}
		file, _ := fn.FileLine(pc)
		return !strings.HasSuffix(file, "/context.go")
	}
}
