package logging

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/gin-gonic/gin"
	"gopkg.in/natefinch/lumberjack.v2"
)

const ginKey = "logger"

type ctxKey struct{}

var (
	initOnce sync.Once
	root     *slog.Logger
)

type Options struct {
	// Component is attached to every record as "service".
	Component string
	// FilePath adds a rotated copy of the JSON stream. Empty logs to stdout only.
	FilePath string
	Level    string
}

// Init builds the process logger on first call; later calls return it unchanged.
func Init(opts Options) *slog.Logger {
	initOnce.Do(func() {
		root = slog.New(slog.NewJSONHandler(output(opts.FilePath), &slog.HandlerOptions{
			Level: level(opts.Level),
		}))
		if opts.Component != "" {
			root = root.With("service", opts.Component)
		}
	})
	return root
}

func output(path string) io.Writer {
	if path == "" {
		return os.Stdout
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   path,
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     14, // days
	})
}

func level(s string) slog.Level {
	var l slog.Level
	if err := l.UnmarshalText([]byte(strings.ToUpper(strings.TrimSpace(s)))); err != nil {
		return slog.LevelInfo
	}
	return l
}

// Base returns the process logger. Without a prior Init it writes to stdout.
func Base() *slog.Logger {
	return Init(Options{Component: "fulfillment"})
}

// New returns a logger tagged with component.
func New(component string) *slog.Logger {
	return Base().With("component", component)
}

func WithCtx(ctx context.Context, l *slog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

// FromCtx returns the logger stored by WithCtx, or Base.
func FromCtx(ctx context.Context) *slog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*slog.Logger); ok && l != nil {
		return l
	}
	return Base()
}

// With attaches l to the gin context and to the request context, so use cases
// called by a handler log with the request's attributes.
func With(c *gin.Context, l *slog.Logger) {
	c.Set(ginKey, l)
	c.Request = c.Request.WithContext(WithCtx(c.Request.Context(), l))
}

func From(c *gin.Context) *slog.Logger {
	if v, ok := c.Get(ginKey); ok {
		if l, ok := v.(*slog.Logger); ok && l != nil {
			return l
		}
	}
	return FromCtx(c.Request.Context())
}
