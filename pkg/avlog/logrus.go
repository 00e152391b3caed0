package avlog

import (
	"fmt"
	"runtime"
	"strings"
	"unsafe"

	"github.com/asticode/go-astiav"
	"github.com/facebookincubator/go-belt/tool/logger/adapter"
	beltlogrus "github.com/facebookincubator/go-belt/tool/logger/implementation/logrus"
	logger "github.com/facebookincubator/go-belt/tool/logger/types"
	"github.com/iancoleman/strcase"
	"github.com/sirupsen/logrus"
	"github.com/xaionaro-go/unsafetools"
)

// wrapLogrusLogger clones the logrus-backed logger so that its caller field
// shows the libav class chain of the message source instead of a Go frame.
func wrapLogrusLogger(l logger.Logger) (logger.Logger, func(astiav.Classer)) {
	sugar, ok := l.(adapter.GenericSugar)
	if !ok {
		return l, func(astiav.Classer) {}
	}
	compactLogger, ok := sugar.CompactLogger.(*beltlogrus.CompactLogger)
	if !ok {
		return l, func(astiav.Classer) {}
	}

	emitter := ptr(*l.Emitter().(*beltlogrus.Emitter))
	logrusEntry := ptr(*emitter.LogrusEntry)
	emitter.LogrusEntry = logrusEntry
	logrusEntry.Logger = ptr(*logrusEntry.Logger)

	var class astiav.Classer
	callerPrettifier := func(*runtime.Frame) (function string, file string) {
		if class == nil {
			return "", "av"
		}
		var chain []string
		for cl := class.Class(); cl != nil; cl = cl.Parent() {
			chain = append(chain, fmt.Sprintf(
				"[%s]%s:%s:%p",
				strcase.ToSnake(ClassCategoryToString(cl.Category())),
				cl.Name(),
				cl.ItemName(),
				*unsafetools.FieldByName(cl, "ptr").(*unsafe.Pointer),
			))
		}
		return strings.Join(chain, "->"), "av"
	}
	switch formatter := logrusEntry.Logger.Formatter.(type) {
	case *logrus.TextFormatter:
		formatter = ptr(*formatter)
		logrusEntry.Logger.Formatter = formatter
		formatter.CallerPrettyfier = callerPrettifier
	case *logrus.JSONFormatter:
		formatter = ptr(*formatter)
		logrusEntry.Logger.Formatter = formatter
		formatter.CallerPrettyfier = callerPrettifier
	}
	compactLogger = ptr(*compactLogger)
	*unsafetools.FieldByName(compactLogger, "emitter").(**beltlogrus.Emitter) = emitter

	return adapter.GenericSugar{
			CompactLogger: compactLogger,
		}, func(newClass astiav.Classer) {
			class = newClass
		}
}

// WrapLogger returns a logger to be used for libav messages and a function
// to set the libav class the next message originates from.
func WrapLogger(l logger.Logger) (logger.Logger, func(astiav.Classer)) {
	switch l.Emitter().(type) {
	case *beltlogrus.Emitter:
		return wrapLogrusLogger(l)
	}
	return l, func(astiav.Classer) {}
}

func ptr[T any](in T) *T {
	return &in
}
