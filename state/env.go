// Package state defines shared program state.
package state

import (
	"context"
	"time"

	"go.uber.org/zap"

	"bloomepub/config"
)

type envKey struct{}

// LocalEnv keeps everything program needs in a single place.
type LocalEnv struct {
	Cfg *config.Config
	Rpt *config.Report
	Log *zap.Logger

	// used by convert subcommand
	Overwrite bool
	// factory stylesheets by base name, used when neither book folder nor
	// configured styles directory has them
	DefaultStyles map[string][]byte

	start         time.Time
	restoreStdLog func()
}

func EnvFromContext(ctx context.Context) *LocalEnv {
	if env, ok := ctx.Value(envKey{}).(*LocalEnv); ok {
		return env
	}
	// this should never happen
	panic("localenv not found in context")
}

// LookupEnv is EnvFromContext for callers which can work without program
// state.
func LookupEnv(ctx context.Context) (*LocalEnv, bool) {
	env, ok := ctx.Value(envKey{}).(*LocalEnv)
	return env, ok && env != nil
}

func ContextWithEnv(ctx context.Context) context.Context {
	return context.WithValue(ctx, envKey{}, newLocalEnv())
}

func (e *LocalEnv) Uptime() time.Duration {
	return time.Since(e.start)
}

func (e *LocalEnv) RedirectStdLog() {
	if e.Log == nil {
		return
	}
	e.restoreStdLog = zap.RedirectStdLog(e.Log)
}

func (e *LocalEnv) RestoreStdLog() {
	if e.Log != nil {
		_ = e.Log.Sync()
	}
	if e.restoreStdLog != nil {
		e.restoreStdLog()
	}
}
