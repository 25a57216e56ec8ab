package analyzer

import "fmt"

// RuleCompilationError reports a rule whose pattern could not be compiled.
// The rule is skipped for the current validation call.
type RuleCompilationError struct {
	RuleID   string
	RuleName string
	Err      error
}

func (e *RuleCompilationError) Error() string {
	return fmt.Sprintf("rule %s (%s): invalid pattern: %v", e.RuleID, e.RuleName, e.Err)
}

func (e *RuleCompilationError) Unwrap() error {
	return e.Err
}

// MatchTimeoutError reports a pattern that did not finish matching within the
// configured timeout. It is handled like a compilation error.
type MatchTimeoutError struct {
	RuleID   string
	RuleName string
	Err      error
}

func (e *MatchTimeoutError) Error() string {
	return fmt.Sprintf("rule %s (%s): match timed out: %v", e.RuleID, e.RuleName, e.Err)
}

func (e *MatchTimeoutError) Unwrap() error {
	return e.Err
}
