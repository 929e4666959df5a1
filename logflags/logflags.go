// Package logflags configures the zap logger shared by the command line
// tools. Library packages receive a *zap.SugaredLogger explicitly and
// never reach for the globals kept here.
package logflags

import (
	"os"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	verbose bool
	logOut  zapcore.WriteSyncer = zapcore.AddSync(os.Stderr)
)

// Setup records the logging flags. With a non empty path log output is
// appended to that file instead of stderr.
func Setup(debug bool, path string) error {
	verbose = debug
	if path != "" {
		f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644)
		if err != nil {
			return err
		}
		logOut = zapcore.AddSync(f)
	}
	return nil
}

// Logger builds a logger honoring the flags recorded by Setup.
func Logger() *zap.SugaredLogger {
	encoderConfig := zapcore.EncoderConfig{
		TimeKey:      "timestamp",
		LevelKey:     "level",
		MessageKey:   "message",
		EncodeLevel:  zapcore.CapitalLevelEncoder,
		EncodeTime:   zapcore.ISO8601TimeEncoder,
		EncodeCaller: zapcore.ShortCallerEncoder,
	}

	level := zapcore.InfoLevel
	if verbose {
		level = zapcore.DebugLevel
	}

	core := zapcore.NewCore(
		zapcore.NewConsoleEncoder(encoderConfig),
		zapcore.NewMultiWriteSyncer(logOut),
		level,
	)

	return zap.New(core, zap.AddCaller()).Sugar()
}
