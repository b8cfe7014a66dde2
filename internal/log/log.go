package log

import (
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	lumberjack "gopkg.in/natefinch/lumberjack.v2"
)

var std = newLogger()

func newLogger() *logrus.Logger {
	l := logrus.New()
	l.SetOutput(os.Stdout)
	l.SetLevel(logrus.InfoLevel)
	l.SetFormatter(&logrus.JSONFormatter{
		TimestampFormat: time.RFC3339,
		FieldMap: logrus.FieldMap{
			logrus.FieldKeyTime:  "ts",
			logrus.FieldKeyLevel: "level",
			logrus.FieldKeyMsg:   "action",
		},
	})
	return l
}

// Configure sets the level and sink. A non-empty file is appended to alongside stdout; it rolls
// over at 100 MB and rolled backups older than maxAgeDays are removed.
func Configure(level, file string, maxAgeDays int) error {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		return fmt.Errorf("invalid log level '%s'", level)
	}
	std.SetLevel(lvl)
	if file == "" {
		std.SetOutput(os.Stdout)
		return nil
	}
	std.SetOutput(io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename: file,
		MaxAge:   maxAgeDays,
		MaxSize:  100,
		Compress: true,
	}))
	return nil
}

// SetOutput redirects all entries to w and returns the previous writer.
func SetOutput(w io.Writer) io.Writer {
	old := std.Out
	std.SetOutput(w)
	return old
}

func write(level logrus.Level, kind string, c *fiber.Ctx, action string, err error, fields map[string]any) {
	data := logrus.Fields{}
	if kind != "" {
		data["kind"] = kind
	}
	if len(fields) > 0 {
		data["fields"] = fields
	}
	if c != nil {
		data["ip"] = c.IP()
		data["method"] = c.Method()
		data["path"] = c.Path()
		data["status"] = c.Response().StatusCode()
		if rid, ok := c.Locals("requestid").(string); ok && rid != "" {
			data["req_id"] = rid
		}
		if uid, ok := c.Locals("userID").(string); ok && uid != "" {
			data["user_id"] = uid
		}
	}
	if err != nil {
		data["err"] = err.Error()
	}
	std.WithFields(data).Log(level, action)
}

// Info, Audit, Security and Error accept a nil ctx for calls outside a request.
func Info(c *fiber.Ctx, action string, fields map[string]any) {
	write(logrus.InfoLevel, "", c, action, nil, fields)
}
func Audit(c *fiber.Ctx, action string, fields map[string]any) {
	write(logrus.InfoLevel, "audit", c, action, nil, fields)
}
func Security(c *fiber.Ctx, action string, fields map[string]any) {
	write(logrus.WarnLevel, "security", c, action, nil, fields)
}
func Warn(c *fiber.Ctx, action string, err error, fields map[string]any) {
	write(logrus.WarnLevel, "", c, action, err, fields)
}
func Error(c *fiber.Ctx, action string, err error, fields map[string]any) {
	write(logrus.ErrorLevel, "", c, action, err, fields)
}
