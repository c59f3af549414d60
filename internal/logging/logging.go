package logging

import (
	"io"
	"log/slog"
	"os"
	"strings"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"
)

const (
	envDev  = "dev"
	envProd = "prod"
)

// Setup настраивает slog по окружению: в dev текст с debug, в prod JSON с info.
// Если задан file, логи пишутся в него с ротацией, туда же уходит вывод gin.
func Setup(env, file string) (*slog.Logger, io.Closer) {
	var w io.Writer = os.Stdout
	var closer io.Closer = nopCloser{}
	if strings.TrimSpace(file) != "" {
		rotating := &lumberjack.Logger{
			Filename:   file,
			MaxSize:    50,
			MaxBackups: 5,
			MaxAge:     14,
			Compress:   true,
		}
		w, closer = rotating, rotating
		gin.DefaultWriter = rotating
		gin.DefaultErrorWriter = rotating
	}

	var logger *slog.Logger
	switch env {
	case envProd:
		logger = slog.New(slog.NewJSONHandler(w, &slog.HandlerOptions{Level: slog.LevelInfo}))
	default:
		logger = slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: slog.LevelDebug}))
	}
	slog.SetDefault(logger)
	return logger, closer
}

type nopCloser struct{}

func (nopCloser) Close() error { return nil }
