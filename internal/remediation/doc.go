// Package remediation produces fix suggestions for classified errors.
//
// An Advisor receives the error kind, its message and the snippets of
// similar historical traces, and returns an apiv1.FixAdvice with a summary,
// a plain (unfenced) code example and structured references.
//
// Two advisors are provided:
//   - LLMAdvisor prompts a langchaingo model (OpenAI-compatible or Ollama)
//     for a JSON suggestion. Calls are paced by a rate limiter and retried
//     internally.
//   - CatalogAdvisor answers from a built-in table of common Python errors
//     and needs no network access.
//
// # Usage
//
//	advisor, err := remediation.NewAdvisor(remediation.Config{
//	    Provider: "ollama",
//	    Model:    "llama3",
//	    BaseURL:  "http://localhost:11434",
//	}, scrubber, logger)
//	if err != nil {
//	    return err
//	}
//	advice, err := advisor.Advise(ctx, remediation.Request{
//	    ErrorKind:    "ZeroDivisionError",
//	    ErrorMessage: "division by zero",
//	})
package remediation
