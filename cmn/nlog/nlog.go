// Package nlog - master-daemon logger: leveled, timestamped, file-and-line
// tagged logging with optional log-directory rotation.
/*
 * Copyright (c) 2023, NVIDIA CORPORATION. All rights reserved.
 */
package nlog

import (
	"flag"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"
	"sync"
	"time"
)

type severity int

const (
	sevInfo severity = iota
	sevWarn
	sevErr
)

var sevChar = [...]byte{sevInfo: 'I', sevWarn: 'W', sevErr: 'E'}

var (
	toStderr     bool
	alsoToStderr bool

	logDir  string
	aisrole string
	title   string

	mu  sync.Mutex
	out = map[severity]*os.File{
		sevInfo: os.Stdout,
		sevWarn: os.Stdout,
		sevErr:  os.Stderr,
	}
)

func InitFlags(flset *flag.FlagSet) {
	flset.BoolVar(&toStderr, "logtostderr", false, "log to standard error instead of files")
	flset.BoolVar(&alsoToStderr, "alsologtostderr", false, "log to standard error as well as files")
}

// SetLogDirRole directs subsequent log lines to <dir>/<role>.INFO and
// <dir>/<role>.ERROR instead of the default stdout/stderr.
func SetLogDirRole(dir, role string) {
	mu.Lock()
	defer mu.Unlock()
	logDir, aisrole = dir, role
	if toStderr || logDir == "" {
		return
	}
	infoFile, err := openLogFile(sevInfo)
	if err != nil {
		alsoToStderr = true
		return
	}
	errFile, err := openLogFile(sevErr)
	if err != nil {
		alsoToStderr = true
		return
	}
	out[sevInfo], out[sevWarn], out[sevErr] = infoFile, infoFile, errFile
}

func SetTitle(s string) { title = s }

func InfoLogName() string { return sname() + ".INFO" }
func ErrLogName() string  { return sname() + ".ERROR" }

func InfoDepth(depth int, args ...any)    { log(sevInfo, depth, "", args...) }
func Infoln(args ...any)                  { log(sevInfo, 0, "", args...) }
func Infof(format string, args ...any)    { log(sevInfo, 0, format, args...) }
func Warningln(args ...any)               { log(sevWarn, 0, "", args...) }
func Warningf(format string, args ...any) { log(sevWarn, 0, format, args...) }
func ErrorDepth(depth int, args ...any)   { log(sevErr, depth, "", args...) }
func Errorln(args ...any)                 { log(sevErr, 0, "", args...) }
func Errorf(format string, args ...any)   { log(sevErr, 0, format, args...) }

// Flush is a no-op: lines are written synchronously as they're logged (no
// internal buffering to drain), kept so callers that shut down gracefully
// (e.g. MasterLoop terminate) don't need to know which sink is active.
func Flush(...bool) {}

func log(sev severity, depth int, format string, args ...any) {
	line := formatLine(sev, depth+2, format, args...)
	mu.Lock()
	defer mu.Unlock()
	if toStderr {
		os.Stderr.WriteString(line)
		return
	}
	dst := out[sev]
	dst.WriteString(line)
	if alsoToStderr && dst != os.Stderr {
		os.Stderr.WriteString(line)
	}
	if sev >= sevWarn && dst != out[sevErr] {
		out[sevErr].WriteString(line)
	}
}

func formatLine(sev severity, depth int, format string, args ...any) string {
	var sb strings.Builder
	sb.WriteByte(sevChar[sev])
	sb.WriteByte(' ')
	sb.WriteString(time.Now().Format("15:04:05.000000"))
	sb.WriteByte(' ')
	if _, fn, ln, ok := runtime.Caller(depth); ok {
		if idx := strings.LastIndexByte(fn, filepath.Separator); idx >= 0 {
			fn = fn[idx+1:]
		}
		sb.WriteString(fn)
		sb.WriteByte(':')
		sb.WriteString(strconv.Itoa(ln))
		sb.WriteByte(' ')
	}
	if format == "" {
		fmt.Fprintln(&sb, args...)
	} else {
		fmt.Fprintf(&sb, format, args...)
		sb.WriteByte('\n')
	}
	return sb.String()
}

func sname() string {
	if aisrole == "" {
		return "aismaster"
	}
	return aisrole
}

func openLogFile(sev severity) (*os.File, error) {
	tag := "INFO"
	if sev == sevErr {
		tag = "ERROR"
	}
	name := filepath.Join(logDir, sname()+"."+tag)
	f, err := os.OpenFile(name, os.O_APPEND|os.O_CREATE|os.O_WRONLY, 0o644)
	if err != nil {
		return nil, err
	}
	if title != "" {
		f.WriteString(title + "\n")
	}
	f.WriteString("Started up at " + time.Now().Format("2006/01/02 15:04:05") + ", " +
		runtime.Version() + " " + runtime.GOOS + "/" + runtime.GOARCH + "\n")
	return f, nil
}
