package tracing

import (
	"context"

	"github.com/rs/zerolog"
)

// LoggerFromContext returns base with the request identity from ctx attached.
// base is returned unchanged when ctx carries none.
func LoggerFromContext(ctx context.Context, base zerolog.Logger) zerolog.Logger {
	fields := FromContext(ctx).fields()
	if len(fields) == 0 {
		return base
	}
	lc := base.With()
	for _, f := range fields {
		lc = lc.Str(f[0], f[1])
	}
	return lc.Logger()
}
