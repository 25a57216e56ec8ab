package analyzer

import (
	"fmt"
	"strings"
	"sync"
	"time"

	goaway "github.com/TwiN/go-away"
	"github.com/dlclark/regexp2"
	"github.com/interaction-monitor/internal/notify"
	"github.com/interaction-monitor/pkg/models"
	"go.uber.org/zap"
)

// DefaultMatchTimeout bounds a single pattern match
const DefaultMatchTimeout = 100 * time.Millisecond

// RuleSource provides the current ordered rule set
type RuleSource interface {
	Rules() []*models.ValidationRule
}

// Options configures an Analyzer. Zero values select the defaults.
type Options struct {
	MatchTimeout   time.Duration
	BlockThreshold models.Severity
	Notifier       notify.Notifier
	Logger         *zap.SugaredLogger
	Now            func() time.Time
}

// Analyzer validates content and interactions against the rules of a RuleSource
type Analyzer struct {
	rules RuleSource

	// Cache compiled regex patterns to avoid recompiling
	patternCache map[string]*regexp2.Regexp
	mu           sync.RWMutex // Protects patternCache
	profanityDet *goaway.ProfanityDetector

	matchTimeout   time.Duration
	blockThreshold models.Severity
	notifier       notify.Notifier
	logger         *zap.SugaredLogger
	now            func() time.Time
}

// NewAnalyzer creates a new Analyzer
func NewAnalyzer(rules RuleSource, opts Options) *Analyzer {
	a := &Analyzer{
		rules:          rules,
		patternCache:   make(map[string]*regexp2.Regexp),
		profanityDet:   goaway.NewProfanityDetector().WithSanitizeLeetSpeak(true).WithSanitizeSpecialCharacters(true),
		matchTimeout:   opts.MatchTimeout,
		blockThreshold: opts.BlockThreshold,
		notifier:       opts.Notifier,
		logger:         opts.Logger,
		now:            opts.Now,
	}
	if a.matchTimeout <= 0 {
		a.matchTimeout = DefaultMatchTimeout
	}
	if !a.blockThreshold.Valid() {
		a.blockThreshold = models.SeverityHigh
	}
	if a.notifier == nil {
		a.notifier = notify.Nop{}
	}
	if a.logger == nil {
		a.logger = zap.NewNop().Sugar()
	}
	if a.now == nil {
		a.now = func() time.Time { return time.Now().UTC() }
	}
	return a
}

// BlockThreshold returns the lowest severity that blocks an interaction
func (a *Analyzer) BlockThreshold() models.Severity {
	return a.blockThreshold
}

// Match reports whether rule matches anywhere in content.
// Errors are *RuleCompilationError or *MatchTimeoutError.
func (a *Analyzer) Match(rule *models.ValidationRule, content string) (bool, error) {
	switch rule.MatchKind() {
	case models.KindRegex:
		return a.matchRegex(rule, content)
	case models.KindKeyword:
		return a.matchKeyword(rule.Pattern, content), nil
	case models.KindProfanity:
		return a.profanityDet.IsProfane(content), nil
	default:
		return false, &RuleCompilationError{
			RuleID:   rule.ID,
			RuleName: rule.Name,
			Err:      fmt.Errorf("unknown rule kind: %s", rule.Kind),
		}
	}
}

// CheckPattern reports whether a pattern of the given kind can be compiled
func (a *Analyzer) CheckPattern(kind models.RuleKind, pattern string) error {
	if !kind.Valid() {
		return fmt.Errorf("%w: %q", models.ErrInvalidRuleKind, kind)
	}
	if kind == models.KindKeyword || kind == models.KindProfanity {
		return nil
	}
	_, err := a.getCompiledPattern(pattern)
	return err
}

// getCompiledPattern returns a cached compiled regex or compiles and caches it
func (a *Analyzer) getCompiledPattern(pattern string) (*regexp2.Regexp, error) {
	// Try to read from cache first (read lock allows multiple concurrent readers)
	a.mu.RLock()
	re, exists := a.patternCache[pattern]
	a.mu.RUnlock()

	if exists {
		return re, nil
	}

	// ECMAScript limits \d and \w to ASCII
	re, err := regexp2.Compile(pattern, regexp2.IgnoreCase|regexp2.ECMAScript)
	if err != nil {
		return nil, fmt.Errorf("invalid regex pattern: %w", err)
	}
	re.MatchTimeout = a.matchTimeout

	a.mu.Lock()
	a.patternCache[pattern] = re
	a.mu.Unlock()

	return re, nil
}

// matchRegex runs a case-insensitive, unanchored search of the rule's pattern
func (a *Analyzer) matchRegex(rule *models.ValidationRule, content string) (bool, error) {
	re, err := a.getCompiledPattern(rule.Pattern)
	if err != nil {
		return false, &RuleCompilationError{RuleID: rule.ID, RuleName: rule.Name, Err: err}
	}

	// regexp2 only fails a match when MatchTimeout is exceeded
	matched, err := re.MatchString(content)
	if err != nil {
		return false, &MatchTimeoutError{RuleID: rule.ID, RuleName: rule.Name, Err: err}
	}
	return matched, nil
}

// matchKeyword checks if content contains a keyword (case-insensitive)
func (a *Analyzer) matchKeyword(keyword, content string) bool {
	return strings.Contains(strings.ToLower(content), strings.ToLower(keyword))
}
