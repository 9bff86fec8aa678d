// Copyright © 2017 Microsoft <wastore@microsoft.com>
//
// Permission is hereby granted, free of charge, to any person obtaining a copy
// of this software and associated documentation files (the "Software"), to deal
// in the Software without restriction, including without limitation the rights
// to use, copy, modify, merge, publish, distribute, sublicense, and/or sell
// copies of the Software, and to permit persons to whom the Software is
// furnished to do so, subject to the following conditions:
//
// The above copyright notice and this permission notice shall be included in
// all copies or substantial portions of the Software.
//
// THE SOFTWARE IS PROVIDED "AS IS", WITHOUT WARRANTY OF ANY KIND, EXPRESS OR
// IMPLIED, INCLUDING BUT NOT LIMITED TO THE WARRANTIES OF MERCHANTABILITY,
// FITNESS FOR A PARTICULAR PURPOSE AND NONINFRINGEMENT. IN NO EVENT SHALL THE
// AUTHORS OR COPYRIGHT HOLDERS BE LIABLE FOR ANY CLAIM, DAMAGES OR OTHER
// LIABILITY, WHETHER IN AN ACTION OF CONTRACT, TORT OR OTHERWISE, ARISING FROM,
// OUT OF OR IN CONNECTION WITH THE SOFTWARE OR THE USE OR OTHER DEALINGS IN
// THE SOFTWARE.

package common

import (
	"fmt"
	"io"
	"log"
	"reflect"
	"runtime"
	"time"

	"github.com/JeffreyRichter/enum/enum"
)

var ELogLevel = LogLevel(0)

// LogLevel indicates the severity of a log message; a logger emits a message only when the
// message's level is at or below the logger's minimum level.
type LogLevel uint8

func (LogLevel) None() LogLevel    { return LogLevel(0) }
func (LogLevel) Fatal() LogLevel   { return LogLevel(1) }
func (LogLevel) Panic() LogLevel   { return LogLevel(2) }
func (LogLevel) Error() LogLevel   { return LogLevel(3) }
func (LogLevel) Warning() LogLevel { return LogLevel(4) }
func (LogLevel) Info() LogLevel    { return LogLevel(5) }
func (LogLevel) Debug() LogLevel   { return LogLevel(6) }

func (ll LogLevel) String() string {
	return enum.StringInt(ll, reflect.TypeOf(ll))
}

func (ll *LogLevel) Parse(s string) error {
	val, err := enum.ParseInt(reflect.TypeOf(ll), s, true, true)
	if err == nil {
		*ll = val.(LogLevel)
	}
	return err
}

// Convenience aliases so call sites read like the older codebases this package grew out of.
var (
	LogNone    = ELogLevel.None()
	LogFatal   = ELogLevel.Fatal()
	LogPanic   = ELogLevel.Panic()
	LogError   = ELogLevel.Error()
	LogWarning = ELogLevel.Warning()
	LogInfo    = ELogLevel.Info()
	LogDebug   = ELogLevel.Debug()
)

type ILogger interface {
	ShouldLog(level LogLevel) bool
	Log(level LogLevel, msg string)
	Panic(err error)
}

type ILoggerCloser interface {
	ILogger
	CloseLog()
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// operationLogger writes leveled, sanitized log lines to a caller-supplied writer.
// One instance is typically shared by all operations of a client; messages are prefixed
// with each operation's client request id by the engine, not by this logger.
type operationLogger struct {
	minimumLevelToLog LogLevel
	writer            io.WriteCloser
	logger            *log.Logger
	sanitizer         LogSanitizer
}

func NewOperationLogger(writer io.WriteCloser, minimumLevelToLog LogLevel) ILoggerCloser {
	flags := log.LstdFlags | log.LUTC
	ol := &operationLogger{
		minimumLevelToLog: minimumLevelToLog,
		writer:            writer,
		logger:            log.New(writer, "", flags),
		sanitizer:         NewStorageLogSanitizer(),
	}
	if ol.ShouldLog(LogDebug) {
		ol.logger.Println("OS-Environment ", runtime.GOOS)
		ol.logger.Println("OS-Architecture ", runtime.GOARCH)
		ol.logger.Println(fmt.Sprintf("Log times are in UTC. Local time is %s", time.Now().Format("2 Jan 2006 15:04:05")))
	}
	return ol
}

func (ol *operationLogger) ShouldLog(level LogLevel) bool {
	if level == LogNone {
		return false
	}
	return level <= ol.minimumLevelToLog
}

func (ol *operationLogger) Log(level LogLevel, msg string) {
	if !ol.ShouldLog(level) {
		return
	}
	// ensure all secrets are redacted before anything reaches the log file
	msg = ol.sanitizer.SanitizeLogMessage(msg)
	prefix := ""
	if level <= LogWarning {
		prefix = fmt.Sprintf("%s: ", level) // so readers can find serious ones, but informational ones still look uncluttered
	}
	ol.logger.Println(prefix + msg)
}

func (ol *operationLogger) Panic(err error) {
	ol.logger.Println(err) // log it before the panic unwinds
	panic(err)
}

func (ol *operationLogger) CloseLog() {
	if ol.minimumLevelToLog == LogNone {
		return
	}
	ol.logger.Println("Closing Log")
	_ = ol.writer.Close() // If it was already closed, that's alright. We wanted to close it, anyway.
}

////////////////////////////////////////////////////////////////////////////////////////////////////////////////////////

// NoneLogger discards everything; useful as the default when callers don't supply a logger.
type NoneLogger struct{}

func (NoneLogger) ShouldLog(LogLevel) bool  { return false }
func (NoneLogger) Log(LogLevel, string)     {}
func (NoneLogger) Panic(err error)          { panic(err) }
func (NoneLogger) CloseLog()                {}

type causer interface {
	Cause() error
}

// Cause walks all the preceding errors and return the originating error.
func Cause(err error) error {
	for err != nil {
		cause, ok := err.(causer)
		if !ok {
			break
		}
		err = cause.Cause()
	}
	return err
}
