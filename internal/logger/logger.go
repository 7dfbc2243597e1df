package logger

import (
	"time"

	"github.com/sirupsen/logrus"
)

// Log общий логгер приложения, настраивается один раз при старте.
var Log = logrus.New()

// Init задаёт уровень и формат логов. В development используется
// текстовый формат, в остальных окружениях JSON.
func Init(level, env string) {
	lvl, err := logrus.ParseLevel(level)
	if err != nil {
		lvl = logrus.InfoLevel
	}
	Log.SetLevel(lvl)

	if env == "development" {
		Log.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
		return
	}
	Log.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339Nano})
}
