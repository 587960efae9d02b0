package logger

import (
	"github.com/teranos/smartcoat/sym"
	"go.uber.org/zap"
)

// Symbol-aware logging helpers.
// These functions log with the symbol as a structured field, not in the message.
//
// Usage:
//
//	// Instead of:
//	logger.Infow(sym.Run + " Run started", "run_id", id)
//
//	// Use:
//	logger.RunInfow("Run started", "run_id", id)
//
// This makes logs queryable by symbol and keeps messages clean.

// RunInfow logs an info message with the Run symbol (꩜)
func RunInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Run}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// RunDebugw logs a debug message with the Run symbol (꩜)
func RunDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Run}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// RunWarnw logs a warning message with the Run symbol (꩜)
func RunWarnw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Run}, keysAndValues...)
		Logger.Warnw(msg, fields...)
	}
}

// RunErrorw logs an error message with the Run symbol (꩜)
func RunErrorw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Run}, keysAndValues...)
		Logger.Errorw(msg, fields...)
	}
}

// RunOpenInfow logs an info message with the RunOpen symbol (✿)
// Used for graceful startup operations
func RunOpenInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.RunOpen}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// RunCloseInfow logs an info message with the RunClose symbol (❀)
// Used for graceful shutdown operations
func RunCloseInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.RunClose}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// SeqInfow logs an info message with the Seq symbol (⇶)
// Used for solver operations
func SeqInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Seq}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// SeqDebugw logs a debug message with the Seq symbol (⇶)
func SeqDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.Seq}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// DBInfow logs an info message with the DB symbol (⊔)
// Used for database/storage operations
func DBInfow(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.DB}, keysAndValues...)
		Logger.Infow(msg, fields...)
	}
}

// DBDebugw logs a debug message with the DB symbol (⊔)
func DBDebugw(msg string, keysAndValues ...interface{}) {
	if Logger != nil {
		fields := append([]interface{}{FieldSymbol, sym.DB}, keysAndValues...)
		Logger.Debugw(msg, fields...)
	}
}

// WithSymbol returns a logger with the given symbol as a field.
// For ad-hoc symbol usage not covered by the helpers above.
//
// Example:
//
//	symbolLogger := logger.WithSymbol(sym.Plan)
//	symbolLogger.Infow("Timeline assembled", "jobs", n)
func WithSymbol(symbol string) *zap.SugaredLogger {
	return Logger.With(FieldSymbol, symbol)
}

// ============================================================================
// Instance logger wrappers
// ============================================================================
// These functions wrap any logger with a symbol field, useful when you have
// an instance logger (e.g., s.logger, w.logger) rather than using the global Logger.
//
// Usage:
//
//	// At initialization:
//	type WorkerPool struct {
//	    runLog *zap.SugaredLogger
//	}
//	w.runLog = logger.AddRunSymbol(baseLogger)

// AddRunSymbol wraps a logger with the Run symbol (꩜)
func AddRunSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Run)
}

// AddRunOpenSymbol wraps a logger with the RunOpen symbol (✿)
func AddRunOpenSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.RunOpen)
}

// AddRunCloseSymbol wraps a logger with the RunClose symbol (❀)
func AddRunCloseSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.RunClose)
}

// AddDBSymbol wraps a logger with the DB symbol (⊔)
func AddDBSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.DB)
}

// AddSeqSymbol wraps a logger with the Seq symbol (⇶)
func AddSeqSymbol(l *zap.SugaredLogger) *zap.SugaredLogger {
	return l.With(FieldSymbol, sym.Seq)
}
