// Package troubleshoot orchestrates the analysis of a single error trace.
//
// Each request moves through Received, Validated, Dispatched, Aggregated,
// Persisted and Completed. Validation is the only step that can reject a
// request; it returns a *ValidationError with one of the reasons EmptyTrace,
// TraceTooLarge or InvalidTrace and no stage runs.
//
// After validation the parser, the classifier and the similarity search run
// concurrently. Each is wrapped so that an error, a panic or an expired stage
// deadline yields a typed fallback (no frames, UnknownError, no hits) instead
// of failing the others. The advisor runs after the join and falls back to an
// explanatory summary. The finished record is handed to the sink on a
// detached goroutine that the caller never waits for.
//
// Stages do not observe caller cancellation: once a request is dispatched it
// runs to completion or to its own stage deadline.
//
// # Usage
//
//	svc, err := troubleshoot.NewService(troubleshoot.Deps{
//	    Parser:     traceparse.NewParser(),
//	    Classifier: traceparse.NewClassifier(),
//	    Index:      holder,
//	    Advisor:    advisor,
//	    Sink:       sink,
//	}, troubleshoot.Config{MaxTraceSize: 50000, TopK: 3}, logger)
//	if err != nil {
//	    return err
//	}
//	defer svc.Close(ctx)
//
//	rec, err := svc.Analyze(ctx, trace)
//	var verr *troubleshoot.ValidationError
//	if errors.As(err, &verr) {
//	    // reject with verr.Reason
//	}
package troubleshoot
