package telemetry

import (
	"context"
	"fmt"

	log "github.com/sirupsen/logrus"
	otellog "go.opentelemetry.io/otel/log"
	"go.opentelemetry.io/otel/log/global"
)

// otelHook forwards logrus entries to the global otel logger provider.
type otelHook struct {
	logger otellog.Logger
}

func NewOTelHook() log.Hook {
	return newOTelHook(global.GetLoggerProvider().Logger(serviceName))
}

func newOTelHook(logger otellog.Logger) *otelHook {
	return &otelHook{logger}
}

func (h *otelHook) Levels() []log.Level {
	return log.AllLevels
}

func (h *otelHook) Fire(entry *log.Entry) error {
	var record otellog.Record
	record.SetTimestamp(entry.Time)
	record.SetBody(otellog.StringValue(entry.Message))
	record.SetSeverity(severity(entry.Level))
	record.SetSeverityText(entry.Level.String())
	for key, value := range entry.Data {
		if err, ok := value.(error); ok {
			record.AddAttributes(otellog.String(key, err.Error()))
			continue
		}
		record.AddAttributes(otellog.String(key, fmt.Sprintf("%v", value)))
	}

	ctx := entry.Context
	if ctx == nil {
		ctx = context.Background()
	}
	h.logger.Emit(ctx, record)
	return nil
}

func severity(level log.Level) otellog.Severity {
	switch level {
	case log.PanicLevel:
		return otellog.SeverityFatal4
	case log.FatalLevel:
		return otellog.SeverityFatal
	case log.ErrorLevel:
		return otellog.SeverityError
	case log.WarnLevel:
		return otellog.SeverityWarn
	case log.InfoLevel:
		return otellog.SeverityInfo
	case log.DebugLevel:
		return otellog.SeverityDebug
	default:
		return otellog.SeverityTrace
	}
}
