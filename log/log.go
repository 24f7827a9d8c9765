// Package log is chaincore's module-scoped logger, in the go-ethereum
// log15 idiom every package in the teacher corpus calls through
// log.NewModuleLogger(log.<Module>). It is written from the observed
// call surface (log.NewModuleLogger, log.NewWith, leveled methods, a
// package-level logger var per file) since the teacher's own log
// package source was not part of the retrieval pack.
package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/go-stack/stack"
	"github.com/mattn/go-colorable"
	"github.com/mattn/go-isatty"
)

type Lvl int

const (
	LvlCrit Lvl = iota
	LvlError
	LvlWarn
	LvlInfo
	LvlDebug
	LvlTrace
)

func (l Lvl) String() string {
	switch l {
	case LvlCrit:
		return "CRIT"
	case LvlError:
		return "ERROR"
	case LvlWarn:
		return "WARN"
	case LvlInfo:
		return "INFO"
	case LvlDebug:
		return "DEBUG"
	case LvlTrace:
		return "TRACE"
	default:
		return "?????"
	}
}

// Module tags, one per package that carries a `var logger =
// log.NewModuleLogger(log.X)` the way the teacher corpus does.
const (
	Blockchain ModuleID = iota
	StorageDatabase
	Common
	NodeRanger
	Listener
	Flush
	Archive
	CachePool
	Cmd
)

type ModuleID int

func (m ModuleID) String() string {
	switch m {
	case Blockchain:
		return "blockchain"
	case StorageDatabase:
		return "storage/database"
	case Common:
		return "common"
	case NodeRanger:
		return "node"
	case Listener:
		return "listener"
	case Flush:
		return "flush"
	case Archive:
		return "archive"
	case CachePool:
		return "cachepool"
	case Cmd:
		return "cmd"
	default:
		return "module"
	}
}

// Logger is the leveled, contextual logging interface every package in
// this module depends on, never the concrete type.
type Logger interface {
	Trace(msg string, ctx ...interface{})
	Debug(msg string, ctx ...interface{})
	Info(msg string, ctx ...interface{})
	Warn(msg string, ctx ...interface{})
	Error(msg string, ctx ...interface{})
	Crit(msg string, ctx ...interface{})
	With(ctx ...interface{}) Logger
}

var (
	mu          sync.Mutex
	globalLevel = LvlInfo
	out         io.Writer = defaultWriter()
	isTerminal            = checkTerminal()
)

func defaultWriter() io.Writer {
	return colorable.NewColorableStdout()
}

func checkTerminal() bool {
	f, ok := out.(*os.File)
	if !ok {
		return false
	}
	return isatty.IsTerminal(f.Fd())
}

// SetLevel sets the process-wide minimum level that is actually written.
func SetLevel(l Lvl) {
	mu.Lock()
	defer mu.Unlock()
	globalLevel = l
}

// SetOutput redirects where formatted records are written; tests use this
// to capture output.
func SetOutput(w io.Writer) {
	mu.Lock()
	defer mu.Unlock()
	out = w
}

type moduleLogger struct {
	module ModuleID
	ctx    []interface{}
}

// NewModuleLogger returns a Logger tagged with module, the call every
// package in this repo makes exactly once at package-init time.
func NewModuleLogger(module ModuleID) Logger {
	return &moduleLogger{module: module}
}

// NewWith returns a root logger (no module tag) pre-seeded with context.
func NewWith(ctx ...interface{}) Logger {
	return &moduleLogger{module: -1, ctx: ctx}
}

func (l *moduleLogger) With(ctx ...interface{}) Logger {
	merged := append(append([]interface{}{}, l.ctx...), ctx...)
	return &moduleLogger{module: l.module, ctx: merged}
}

func (l *moduleLogger) Trace(msg string, ctx ...interface{}) { l.write(LvlTrace, msg, ctx) }
func (l *moduleLogger) Debug(msg string, ctx ...interface{}) { l.write(LvlDebug, msg, ctx) }
func (l *moduleLogger) Info(msg string, ctx ...interface{})  { l.write(LvlInfo, msg, ctx) }
func (l *moduleLogger) Warn(msg string, ctx ...interface{})  { l.write(LvlWarn, msg, ctx) }
func (l *moduleLogger) Error(msg string, ctx ...interface{}) { l.write(LvlError, msg, ctx) }
func (l *moduleLogger) Crit(msg string, ctx ...interface{})  { l.write(LvlCrit, msg, ctx) }

func (l *moduleLogger) write(lvl Lvl, msg string, extra []interface{}) {
	mu.Lock()
	defer mu.Unlock()
	if lvl > globalLevel {
		return
	}
	allCtx := append(append([]interface{}{}, l.ctx...), extra...)
	fmt.Fprint(out, format(lvl, l.module, msg, allCtx))
}

func format(lvl Lvl, module ModuleID, msg string, ctx []interface{}) string {
	ts := time.Now().Format("2006-01-02T15:04:05-0700")
	var b strings.Builder
	b.WriteString(ts)
	b.WriteByte(' ')
	b.WriteString("[" + lvl.String() + "]")
	if module >= 0 {
		b.WriteString(" [" + module.String() + "]")
	}
	b.WriteByte(' ')
	b.WriteString(msg)
	for i := 0; i+1 < len(ctx); i += 2 {
		fmt.Fprintf(&b, " %v=%v", ctx[i], ctx[i+1])
	}
	if lvl <= LvlError {
		b.WriteString(" caller=" + callerFrame())
	}
	b.WriteByte('\n')
	return b.String()
}

func callerFrame() string {
	call := stack.Caller(4)
	return fmt.Sprintf("%+v", call)
}

// package-level convenience functions, for call sites that don't hold a
// module logger (e.g. init_derive_sha.go's log.Info/log.Warn).
var root = NewWith()

func Trace(msg string, ctx ...interface{}) { root.Trace(msg, ctx...) }
func Debug(msg string, ctx ...interface{}) { root.Debug(msg, ctx...) }
func Info(msg string, ctx ...interface{})  { root.Info(msg, ctx...) }
func Warn(msg string, ctx ...interface{})  { root.Warn(msg, ctx...) }
func Error(msg string, ctx ...interface{}) { root.Error(msg, ctx...) }
func Crit(msg string, ctx ...interface{})  { root.Crit(msg, ctx...) }
