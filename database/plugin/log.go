// Copyright 2025 Blink Labs Software
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package plugin

import (
	"fmt"
	"io"
	"log/slog"
	"strings"
)

// Logger provides a logging interface for plugins.
type Logger interface {
	Info(string, ...any)
	Warn(string, ...any)
	Debug(string, ...any)
	Error(string, ...any)
}

// DiscardLogger returns a logger that throws away everything written to it.
// Plugins use it when constructed without a logger so they don't have to
// guard every log call
func DiscardLogger() *slog.Logger {
	return slog.New(slog.NewJSONHandler(io.Discard, nil))
}

// PrintfLogger adapts a Logger to the printf-style interface expected by
// storage engines such as badger
type PrintfLogger struct {
	Logger Logger
}

func (l *PrintfLogger) Errorf(msg string, args ...any) {
	l.Logger.Error(format(msg, args...))
}

func (l *PrintfLogger) Warningf(msg string, args ...any) {
	l.Logger.Warn(format(msg, args...))
}

func (l *PrintfLogger) Infof(msg string, args ...any) {
	l.Logger.Info(format(msg, args...))
}

func (l *PrintfLogger) Debugf(msg string, args ...any) {
	l.Logger.Debug(format(msg, args...))
}

func format(msg string, args ...any) string {
	return strings.TrimSpace(fmt.Sprintf(msg, args...))
}
