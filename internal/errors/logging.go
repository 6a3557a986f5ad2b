package errors

import (
	"context"
	"log/slog"
)

// Log writes err at a level derived from its category. Optional errors are
// logged at debug, everything else at error.
func Log(logger *slog.Logger, message string, err error, defaultCategory Category, attrs ...slog.Attr) {
	if logger == nil || err == nil {
		return
	}

	category := CategoryOf(err, defaultCategory)
	all := make([]slog.Attr, 0, len(attrs)+3)
	all = append(all,
		slog.String("category", category.String()),
		slog.String("error", err.Error()),
	)
	all = append(all, attrs...)

	var typed *Error
	if As(err, &typed) && typed != nil {
		if ctxMap := typed.Context.ToMap(); len(ctxMap) > 0 {
			all = append(all, slog.Any("context", ctxMap))
		}
	}

	level := slog.LevelError
	if category == CategoryOptional {
		level = slog.LevelDebug
	}
	logger.LogAttrs(context.Background(), level, message, all...)
}
