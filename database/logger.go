/*
 * Copyright 2025 tomoncle.
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */


package database

import (
	"fmt"
	"sync"

	"github.com/sirupsen/logrus"
	"github.com/tomoncle/querykit/utils"
)

// LoggerName is the utils registry name of the default logger.
const LoggerName = "DATABASE"

// Logger is the structured logger shared by the database, repository and
// service layers. kv alternates keys and values.
type Logger interface {
	Debug(msg string, kv ...interface{})
	Info(msg string, kv ...interface{})
	Warn(msg string, kv ...interface{})
	Error(msg string, kv ...interface{})
}

var (
	loggerMu      sync.RWMutex
	packageLogger Logger
)

// SetLogger replaces the logger handed to managers, repositories and
// services created afterwards. nil restores the default.
func SetLogger(l Logger) {
	loggerMu.Lock()
	defer loggerMu.Unlock()
	packageLogger = l
}

// GetLogger returns the logger installed by SetLogger, or a logrus logger
// registered under LoggerName.
func GetLogger() Logger {
	loggerMu.RLock()
	l := packageLogger
	loggerMu.RUnlock()
	if l != nil {
		return l
	}

	loggerMu.Lock()
	defer loggerMu.Unlock()
	if packageLogger == nil {
		packageLogger = NewLogrusLogger(utils.NewLogger(LoggerName))
	}
	return packageLogger
}

type logrusLogger struct {
	l *logrus.Logger
}

// NewLogrusLogger adapts l to Logger.
func NewLogrusLogger(l *logrus.Logger) Logger {
	return logrusLogger{l: l}
}

func (g logrusLogger) Debug(msg string, kv ...interface{}) { g.log(logrus.DebugLevel, msg, kv) }
func (g logrusLogger) Info(msg string, kv ...interface{})  { g.log(logrus.InfoLevel, msg, kv) }
func (g logrusLogger) Warn(msg string, kv ...interface{})  { g.log(logrus.WarnLevel, msg, kv) }
func (g logrusLogger) Error(msg string, kv ...interface{}) { g.log(logrus.ErrorLevel, msg, kv) }

func (g logrusLogger) log(level logrus.Level, msg string, kv []interface{}) {
	if !g.l.IsLevelEnabled(level) {
		return
	}
	g.l.WithFields(fieldsOf(kv)).Log(level, msg)
}

// fieldsOf pairs up kv; a dangling key is logged under "extra".
func fieldsOf(kv []interface{}) logrus.Fields {
	fields := make(logrus.Fields, len(kv)/2+1)
	for i := 0; i < len(kv); i += 2 {
		if i+1 == len(kv) {
			fields["extra"] = kv[i]
			break
		}
		fields[fmt.Sprint(kv[i])] = kv[i+1]
	}
	return fields
}
