package logger

import (
	"context"
	"io"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
)

// Logger wraps slog.Logger with additional functionality
type Logger struct {
	*slog.Logger
}

// New creates a new logger instance
func New() *Logger {
	return NewWithWriter(os.Stdout, os.Getenv("LOG_LEVEL"))
}

// NewWithWriter creates a logger writing to w at the given level
func NewWithWriter(w io.Writer, levelStr string) *Logger {
	level := getLogLevel(levelStr)

	opts := &slog.HandlerOptions{
		Level:     level,
		AddSource: level == slog.LevelDebug,
	}

	// Text handler for development, JSON for everything else
	var handler slog.Handler
	if gin.Mode() == gin.DebugMode {
		handler = slog.NewTextHandler(w, opts)
	} else {
		handler = slog.NewJSONHandler(w, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// Discard returns a logger that drops everything, for tests
func Discard() *Logger {
	return &Logger{Logger: slog.New(slog.NewTextHandler(io.Discard, nil))}
}

// getLogLevel converts string to slog.Level
func getLogLevel(levelStr string) slog.Level {
	switch strings.ToLower(levelStr) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "warn", "warning":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}

// WithRequestID adds request ID to logger context
func (l *Logger) WithRequestID(requestID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("request_id", requestID)),
	}
}

// WithUserID adds user ID to logger context
func (l *Logger) WithUserID(userID string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("user_id", userID)),
	}
}

// WithComponent tags every record with the emitting component
func (l *Logger) WithComponent(component string) *Logger {
	return &Logger{
		Logger: l.Logger.With(slog.String("component", component)),
	}
}

// HTTP logging methods

// LogHTTPRequest logs an HTTP request
func (l *Logger) LogHTTPRequest(c *gin.Context, duration time.Duration) {
	l.Logger.InfoContext(c.Request.Context(),
		"HTTP Request",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.String("query", c.Request.URL.RawQuery),
		slog.Int("status", c.Writer.Status()),
		slog.Duration("duration", duration),
		slog.String("ip", c.ClientIP()),
		slog.String("user_agent", c.Request.UserAgent()),
		slog.Int("size", c.Writer.Size()),
	)
}

// LogHTTPError logs an HTTP error
func (l *Logger) LogHTTPError(c *gin.Context, err error, statusCode int) {
	l.Logger.ErrorContext(c.Request.Context(),
		"HTTP Error",
		slog.String("method", c.Request.Method),
		slog.String("path", c.Request.URL.Path),
		slog.Int("status", statusCode),
		slog.String("error", err.Error()),
		slog.String("ip", c.ClientIP()),
	)
}

// Checkout logging methods

// LogCheckoutCreated logs a committed PENDING order
func (l *Logger) LogCheckoutCreated(ctx context.Context, orderID, eventID string, total int64, currency string) {
	l.Logger.InfoContext(ctx,
		"Checkout Created",
		slog.String("order_id", orderID),
		slog.String("event_id", eventID),
		slog.Int64("total", total),
		slog.String("currency", currency),
	)
}

// LogCheckoutRejected logs a business rejection of a checkout attempt
func (l *Logger) LogCheckoutRejected(ctx context.Context, eventID, kind, reason string) {
	l.Logger.InfoContext(ctx,
		"Checkout Rejected",
		slog.String("event_id", eventID),
		slog.String("kind", kind),
		slog.String("reason", reason),
	)
}

// LogHoldReserveFailed logs a ledger failure after the order committed.
// Alerting keys on this message.
func (l *Logger) LogHoldReserveFailed(ctx context.Context, orderID, ticketTypeID string, err error) {
	l.Logger.ErrorContext(ctx,
		"Ledger Reserve Failed",
		slog.String("order_id", orderID),
		slog.String("ticket_type_id", ticketTypeID),
		slog.String("error", err.Error()),
		slog.Bool("alert", true),
	)
}

// Settlement logging methods

// LogSettlement logs an applied settlement transition
func (l *Logger) LogSettlement(ctx context.Context, gateway, orderID, paymentStatus, orderStatus, outcome string) {
	l.Logger.InfoContext(ctx,
		"Payment Settlement",
		slog.String("gateway", gateway),
		slog.String("order_id", orderID),
		slog.String("payment_status", paymentStatus),
		slog.String("order_status", orderStatus),
		slog.String("outcome", outcome),
	)
}

// LogDuplicateNotification logs an idempotency short-circuit
func (l *Logger) LogDuplicateNotification(ctx context.Context, gateway, paymentID, orderID string) {
	l.Logger.InfoContext(ctx,
		"Duplicate Payment Notification",
		slog.String("kind", "DUPLICATE_NOTIFICATION"),
		slog.String("gateway", gateway),
		slog.String("payment_id", paymentID),
		slog.String("order_id", orderID),
	)
}

// LogUntrustedNotification logs a notification that failed signature verification
func (l *Logger) LogUntrustedNotification(ctx context.Context, gateway, eventType, ip string) {
	l.Logger.WarnContext(ctx,
		"Untrusted Payment Notification",
		slog.String("kind", "UNTRUSTED_NOTIFICATION"),
		slog.String("gateway", gateway),
		slog.String("event_type", eventType),
		slog.String("ip", ip),
	)
}

// LogTicketCheckedIn logs a successful staff check-in
func (l *Logger) LogTicketCheckedIn(ctx context.Context, ticketID, staffID string) {
	l.Logger.InfoContext(ctx,
		"Ticket Checked In",
		slog.String("ticket_id", ticketID),
		slog.String("staff_id", staffID),
	)
}

// Security logging methods

// LogAuthSuccess logs successful authentication
func (l *Logger) LogAuthSuccess(ctx context.Context, userID, method string) {
	l.Logger.InfoContext(ctx,
		"Authentication Success",
		slog.String("user_id", userID),
		slog.String("method", method),
	)
}

// LogAuthFailure logs failed authentication
func (l *Logger) LogAuthFailure(ctx context.Context, reason, ip string) {
	l.Logger.WarnContext(ctx,
		"Authentication Failure",
		slog.String("reason", reason),
		slog.String("ip", ip),
	)
}

// LogRateLimitExceeded logs rate limit exceeded
func (l *Logger) LogRateLimitExceeded(ctx context.Context, ip, endpoint string) {
	l.Logger.WarnContext(ctx,
		"Rate Limit Exceeded",
		slog.String("ip", ip),
		slog.String("endpoint", endpoint),
	)
}

// Helper methods for common patterns

// InfoWithContext logs an info message with context
func (l *Logger) InfoWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.InfoContext(ctx, msg, args...)
}

// ErrorWithContext logs an error message with context
func (l *Logger) ErrorWithContext(ctx context.Context, msg string, err error, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2+2)
	args = append(args, slog.String("error", err.Error()))
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.ErrorContext(ctx, msg, args...)
}

// DebugWithContext logs a debug message with context
func (l *Logger) DebugWithContext(ctx context.Context, msg string, fields map[string]interface{}) {
	args := make([]interface{}, 0, len(fields)*2)
	for k, v := range fields {
		args = append(args, slog.Any(k, v))
	}
	l.Logger.DebugContext(ctx, msg, args...)
}

// Global logger instance (can be replaced with dependency injection)
var defaultLogger = New()

// GetDefault returns the default logger instance
func GetDefault() *Logger {
	return defaultLogger
}

// SetDefault sets the default logger instance
func SetDefault(logger *Logger) {
	defaultLogger = logger
}

// OrDefault returns l, or the default logger when l is nil
func OrDefault(l *Logger) *Logger {
	if l == nil {
		return defaultLogger
	}
	return l
}
