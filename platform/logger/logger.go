// Package logger provides structured logging infrastructure for the application.
// This is part of the platform layer and contains no business logic.
package logger

import (
	"context"
	"log/slog"
	"os"
	"strings"
)

// Context key types for storing values in context
type contextKey string

const (
	// RequestIDKey is the context key for request ID
	RequestIDKey contextKey = "request_id"
	// ConsultantIDKey is the context key for the authenticated consultant ID
	ConsultantIDKey contextKey = "consultant_id"
	// ConversationIDKey is the context key for conversation ID
	ConversationIDKey contextKey = "conversation_id"
)

// Logger wraps slog.Logger for structured logging
type Logger struct {
	*slog.Logger
}

// New creates a new logger based on environment
func New(env string) *Logger {
	var handler slog.Handler

	opts := &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}

	if strings.EqualFold(env, "development") {
		opts.Level = slog.LevelDebug
		handler = slog.NewTextHandler(os.Stdout, opts)
	} else {
		handler = slog.NewJSONHandler(os.Stdout, opts)
	}

	return &Logger{
		Logger: slog.New(handler),
	}
}

// WithContext returns a logger with context values extracted.
// Supports request_id, consultant_id, and conversation_id from context.
func (l *Logger) WithContext(ctx context.Context) *Logger {
	if ctx == nil {
		return l
	}

	newLogger := l

	if requestID, ok := ctx.Value(RequestIDKey).(string); ok && requestID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("request_id", requestID))}
	}

	if consultantID, ok := ctx.Value(ConsultantIDKey).(string); ok && consultantID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("consultant_id", consultantID))}
	}

	if conversationID, ok := ctx.Value(ConversationIDKey).(string); ok && conversationID != "" {
		newLogger = &Logger{Logger: newLogger.With(slog.String("conversation_id", conversationID))}
	}

	return newLogger
}

// WithConversation returns a logger scoped to one conversation.
func (l *Logger) WithConversation(conversationID string) *Logger {
	return &Logger{
		Logger: l.With(slog.String("conversation_id", conversationID)),
	}
}

// HTTPRequest logs an HTTP request
func (l *Logger) HTTPRequest(method, path string, status int, latencyMs float64, clientIP string) {
	l.Info("http_request",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.Float64("latency_ms", latencyMs),
		slog.String("client_ip", clientIP),
	)
}

// HTTPError logs an HTTP error
func (l *Logger) HTTPError(method, path string, status int, err error, clientIP string) {
	l.Error("http_error",
		slog.String("method", method),
		slog.String("path", path),
		slog.Int("status", status),
		slog.String("error", err.Error()),
		slog.String("client_ip", clientIP),
	)
}

// ModeTransition logs a conversation mode transition.
func (l *Logger) ModeTransition(conversationID, fromMode, toMode, reason string) {
	l.Info("mode_transition",
		slog.String("conversation_id", conversationID),
		slog.String("from", fromMode),
		slog.String("to", toMode),
		slog.String("reason", reason),
	)
}

// HandoffDecision logs the outcome of handoff scoring for a message.
func (l *Logger) HandoffDecision(conversationID string, score int, priority string, shouldHandover bool) {
	l.Info("handoff_decision",
		slog.String("conversation_id", conversationID),
		slog.Int("score", score),
		slog.String("priority", priority),
		slog.Bool("should_handover", shouldHandover),
	)
}

// DatabaseError logs database errors
func (l *Logger) DatabaseError(operation string, err error) {
	l.Error("database_error",
		slog.String("operation", operation),
		slog.String("error", err.Error()),
	)
}

// RateLimitExceeded logs rate limit events
func (l *Logger) RateLimitExceeded(clientIP, path string) {
	l.Warn("rate_limit_exceeded",
		slog.String("client_ip", clientIP),
		slog.String("path", path),
	)
}
