package main

import (
	"fmt"
	"io"
	"os"
	"path/filepath"

	"github.com/btcsuite/btclog"
	"github.com/jrick/logrotate/rotator"

	"github.com/lightninglabs/headerchain/build"
	"github.com/lightninglabs/headerchain/chainindex"
	"github.com/lightninglabs/headerchain/dispatcher"
	"github.com/lightninglabs/headerchain/headerpool"
	"github.com/lightninglabs/headerchain/organize"
	"github.com/lightninglabs/headerchain/populate"
	"github.com/lightninglabs/headerchain/signal"
	"github.com/lightninglabs/headerchain/validate"
)

// Loggers per subsystem. A single backend logger is created and every
// subsystem logger built from it writes to the same rotating file. Loggers
// can not be used before the log rotator has been initialized with a log
// file; that happens in main, via initLogRotator.
var (
	logWriter = &build.LogWriter{}

	backendLog = btclog.NewBackend(logWriter)

	logRotator *rotator.Rotator

	hcndLog = build.NewSubLogger("HCND", backendLog.Logger)
	sgnlLog = build.NewSubLogger("SGNL", backendLog.Logger)
	cidxLog = build.NewSubLogger(chainindex.Subsystem, backendLog.Logger)
	cpolLog = build.NewSubLogger(headerpool.Subsystem, backendLog.Logger)
	cpopLog = build.NewSubLogger(populate.Subsystem, backendLog.Logger)
	cvalLog = build.NewSubLogger(validate.Subsystem, backendLog.Logger)
	dispLog = build.NewSubLogger(dispatcher.Subsystem, backendLog.Logger)
	chndLog = build.NewSubLogger(organize.Subsystem, backendLog.Logger)
)

func init() {
	signal.UseLogger(sgnlLog)
	chainindex.UseLogger(cidxLog)
	headerpool.UseLogger(cpolLog)
	populate.UseLogger(cpopLog)
	validate.UseLogger(cvalLog)
	dispatcher.UseLogger(dispLog)
	organize.UseLogger(chndLog)
}

// subsystemLoggers maps each subsystem identifier to its associated logger,
// the same instances handed to each package's UseLogger above, so that
// setLogLevels actually reaches the loggers in active use.
var subsystemLoggers = map[string]btclog.Logger{
	"HCND":               hcndLog,
	"SGNL":               sgnlLog,
	chainindex.Subsystem: cidxLog,
	headerpool.Subsystem: cpolLog,
	populate.Subsystem:   cpopLog,
	validate.Subsystem:   cvalLog,
	dispatcher.Subsystem: dispLog,
	organize.Subsystem:   chndLog,
}

// initLogRotator initializes the logging rotator to write logs to logFile
// and create roll files in the same directory. It must be called before the
// package-global log rotator variables are used.
func initLogRotator(logFile string, maxLogFileSize, maxLogFiles int) error {
	logDir, _ := filepath.Split(logFile)
	if err := os.MkdirAll(logDir, 0700); err != nil {
		return fmt.Errorf("failed to create log directory: %w", err)
	}
	r, err := rotator.New(logFile, int64(maxLogFileSize*1024), false, maxLogFiles)
	if err != nil {
		return fmt.Errorf("failed to create file rotator: %w", err)
	}

	pr, pw := io.Pipe()
	go r.Run(pr)

	logWriter.RotatorPipe = pw
	logRotator = r
	return nil
}

// setLogLevel sets the logging level for the named subsystem. Unknown
// subsystems are ignored.
func setLogLevel(subsystemID, logLevel string) {
	logger, ok := subsystemLoggers[subsystemID]
	if !ok {
		return
	}
	level, _ := btclog.LevelFromString(logLevel)
	logger.SetLevel(level)
}

// setLogLevels sets the log level for every subsystem logger to logLevel.
func setLogLevels(logLevel string) {
	for subsystemID := range subsystemLoggers {
		setLogLevel(subsystemID, logLevel)
	}
}
