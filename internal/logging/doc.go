// Package logging provides structured logging with OpenTelemetry integration.
//
// The package wraps Zap with:
//   - a custom Trace level (-2, below Debug)
//   - stdout and OpenTelemetry outputs
//   - context field injection (trace_id, span_id, request.id)
//   - key and pattern based redaction
//   - level-aware sampling where errors are never sampled
//
// Usage:
//
//	cfg := logging.NewDefaultConfig()
//	logger, err := logging.NewLogger(cfg, nil)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer logger.Sync()
//
// Components receive logger.Underlying() and attach correlation fields from
// the request context:
//
//	ctx = logging.WithRequestID(ctx, "req_123")
//	zl.With(logging.ContextFields(ctx)...).Info("trace analysed")
package logging
