// Package errtrack is the error-tracking collaborator boundary. The default
// implementation writes structured error events through zerolog; deployments
// wanting an external tracker implement Reporter over their SDK.
package errtrack

import (
	"context"

	"github.com/rs/zerolog"
)

// Reporter receives errors that must stay visible even though the calling
// operation swallows them (for example realtime publish failures).
type Reporter interface {
	Report(ctx context.Context, err error, fields map[string]string)
}

// LogReporter emits reported errors as error-level log events.
type LogReporter struct {
	Log zerolog.Logger
}

// Report implements Reporter.
func (r *LogReporter) Report(_ context.Context, err error, fields map[string]string) {
	ev := r.Log.Error().Err(err)
	for k, v := range fields {
		ev = ev.Str(k, v)
	}
	ev.Msg("reported error")
}
