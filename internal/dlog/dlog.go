// Package dlog provides the engine's single shared logger, following the
// same op/go-logging setup style the kryptco-kr daemon uses for its own
// diagnostics.
package dlog

import (
	"os"

	logging "github.com/op/go-logging"
)

// Log is the package-level logger every codec and the engine façade write
// through. Debug-level traces (field-by-field clamp/truncation notices)
// are silent unless the caller raises the backend's level.
var Log = logging.MustGetLogger("dccl")

func init() {
	backend := logging.NewLogBackend(os.Stderr, "", 0)
	formatter := logging.MustStringFormatter(
		`%{time:15:04:05.000} %{level:.4s} %{shortfunc}: %{message}`,
	)
	formatted := logging.NewBackendFormatter(backend, formatter)
	leveled := logging.AddModuleLevel(formatted)
	leveled.SetLevel(logging.NOTICE, "")
	logging.SetBackend(leveled)
}

// SetLevel adjusts the verbosity of the shared logger. Engine callers that
// want per-field DEBUG traces (mirroring the original's dlog.is(DEBUG2)
// guards) call dlog.SetLevel(logging.DEBUG).
func SetLevel(level logging.Level) {
	logging.SetLevel(level, "")
}
