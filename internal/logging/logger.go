// Package logging оборачивает стандартный логгер фильтрацией по уровню
package logging

import (
	"fmt"
	"io"
	"log"
	"strings"
)

// Level уровень логирования
type Level int

const (
	LevelNone Level = iota
	LevelError
	LevelWarn
	LevelInfo
	LevelDebug
)

// ParseLevel разбирает уровень из конфигурации
func ParseLevel(name string) (Level, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "none":
		return LevelNone, nil
	case "error":
		return LevelError, nil
	case "warn", "warning":
		return LevelWarn, nil
	case "info", "":
		return LevelInfo, nil
	case "debug":
		return LevelDebug, nil
	}
	return LevelInfo, fmt.Errorf("unknown log level %q", name)
}

// Logger логгер с уровнями поверх *log.Logger
type Logger struct {
	logger *log.Logger
	level  Level
}

// New создает логгер, пишущий в w
func New(w io.Writer, level Level) *Logger {
	return &Logger{
		logger: log.New(w, "", log.LstdFlags|log.Lmicroseconds),
		level:  level,
	}
}

// Discard логгер для тестов
func Discard() *Logger {
	return New(io.Discard, LevelNone)
}

// Debug пишет отладочное сообщение
func (l *Logger) Debug(format string, v ...interface{}) {
	if l.level >= LevelDebug {
		l.logger.Printf("[DEBUG] "+format, v...)
	}
}

// Info пишет информационное сообщение
func (l *Logger) Info(format string, v ...interface{}) {
	if l.level >= LevelInfo {
		l.logger.Printf("[INFO] "+format, v...)
	}
}

// Warn пишет предупреждение
func (l *Logger) Warn(format string, v ...interface{}) {
	if l.level >= LevelWarn {
		l.logger.Printf("[WARN] "+format, v...)
	}
}

// Error пишет сообщение об ошибке
func (l *Logger) Error(format string, v ...interface{}) {
	if l.level >= LevelError {
		l.logger.Printf("[ERROR] "+format, v...)
	}
}

// Printf совместимость со стандартным логгером, уровень INFO
func (l *Logger) Printf(format string, v ...interface{}) {
	l.Info(format, v...)
}

// Level возвращает текущий уровень
func (l *Logger) Level() Level {
	return l.level
}
