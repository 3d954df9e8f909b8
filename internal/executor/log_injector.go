package executor

import (
	"log"
	"sync"
)

// LogInjector logs synthetic input instead of delivering it and keeps the
// most recent operations for inspection.
type LogInjector struct {
	mu     sync.Mutex
	logger *log.Logger
	ops    []string
}

// NewLogInjector creates a LogInjector writing to logger.
func NewLogInjector(logger *log.Logger) *LogInjector {
	return &LogInjector{logger: logger}
}

// maxOps bounds the retained operation history.
const maxOps = 256

func (l *LogInjector) record(op string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.ops = append(l.ops, op)
	if len(l.ops) > maxOps {
		l.ops = l.ops[len(l.ops)-maxOps:]
	}
	l.logger.Printf("executor: %s", op)
}

func (l *LogInjector) KeyDown(key string) error {
	l.record("down " + key)
	return nil
}

func (l *LogInjector) KeyUp(key string) error {
	l.record("up " + key)
	return nil
}

func (l *LogInjector) TypeText(text string) error {
	l.record("type " + text)
	return nil
}

// Ops returns a copy of the retained operations.
func (l *LogInjector) Ops() []string {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]string(nil), l.ops...)
}
