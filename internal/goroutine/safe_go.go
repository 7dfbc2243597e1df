package goroutine

import (
	"context"
	"log"
	"runtime/debug"
)

// Logger покрывает минимум, нужный для записи паники.
type Logger interface {
	Errorf(format string, args ...interface{})
}

var panicLogger Logger = stdLogger{}

// SetLogger подключает логгер приложения вместо стандартного.
func SetLogger(l Logger) {
	if l != nil {
		panicLogger = l
	}
}

// SafeGo запускает функцию в отдельной горутине с перехватом паники.
func SafeGo(fn func()) {
	go func() {
		defer recoverPanic()
		fn()
	}()
}

// SafeGoWithContext то же самое для функций, принимающих контекст.
func SafeGoWithContext(ctx context.Context, fn func(context.Context)) {
	go func() {
		defer recoverPanic()
		fn(ctx)
	}()
}

func recoverPanic() {
	if r := recover(); r != nil {
		panicLogger.Errorf("goroutine: паника %v\n%s", r, debug.Stack())
	}
}

type stdLogger struct{}

func (stdLogger) Errorf(format string, args ...interface{}) {
	log.Printf("[ERROR] "+format, args...)
}
