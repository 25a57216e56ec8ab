package policy

import (
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/interaction-monitor/pkg/models"
)

var (
	ErrRuleNotFound   = errors.New("rule not found")
	ErrDuplicateRule  = errors.New("rule already exists")
	ErrPolicyNotFound = errors.New("policy not found")
	ErrUnknownRule    = errors.New("policy references unknown rule")
)

// Store holds the ordered rule set and the policies that group it.
//
// Rules are copy-on-write: every mutation builds a new slice of new rule
// values, so a slice returned by Rules is never modified afterwards and the
// rule pointers in past validation results stay stable.
type Store struct {
	mu       sync.RWMutex
	rules    []*models.ValidationRule
	policies []models.Policy
	now      func() time.Time
}

// NewStore creates a store seeded with rules (in order)
func NewStore(rules []models.ValidationRule) (*Store, error) {
	s := &Store{now: func() time.Time { return time.Now().UTC() }}
	if err := s.SetRules(rules); err != nil {
		return nil, err
	}
	return s, nil
}

// Rules returns the current rule snapshot. Callers must not modify it.
func (s *Store) Rules() []*models.ValidationRule {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.rules
}

// EnabledRules returns the enabled rules scoped to contentType, in order
func (s *Store) EnabledRules(contentType models.ContentType) []*models.ValidationRule {
	var out []*models.ValidationRule
	for _, r := range s.Rules() {
		if r.Enabled && r.AppliesTo(contentType) {
			out = append(out, r)
		}
	}
	return out
}

// Get returns a copy of the rule with the given id
func (s *Store) Get(id string) (models.ValidationRule, error) {
	for _, r := range s.Rules() {
		if r.ID == id {
			return *r, nil
		}
	}
	return models.ValidationRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
}

// Search returns copies of the rules whose name or description contains term (case-insensitive)
func (s *Store) Search(term string) []models.ValidationRule {
	term = strings.ToLower(strings.TrimSpace(term))
	var out []models.ValidationRule
	for _, r := range s.Rules() {
		if term == "" ||
			strings.Contains(strings.ToLower(r.Name), term) ||
			strings.Contains(strings.ToLower(r.Description), term) {
			out = append(out, *r)
		}
	}
	return out
}

// SetRules replaces the whole rule set. Duplicate ids are rejected.
func (s *Store) SetRules(rules []models.ValidationRule) error {
	next := make([]*models.ValidationRule, 0, len(rules))
	seen := make(map[string]struct{}, len(rules))
	for i := range rules {
		if err := rules[i].Validate(); err != nil {
			return err
		}
		if _, dup := seen[rules[i].ID]; dup {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, rules[i].ID)
		}
		seen[rules[i].ID] = struct{}{}
		next = append(next, cloneRule(rules[i]))
	}

	s.mu.Lock()
	s.rules = next
	s.mu.Unlock()
	return nil
}

// Add appends a rule at the end of the order
func (s *Store) Add(rule models.ValidationRule) error {
	if err := rule.Validate(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	for _, r := range s.rules {
		if r.ID == rule.ID {
			return fmt.Errorf("%w: %s", ErrDuplicateRule, rule.ID)
		}
	}
	next := make([]*models.ValidationRule, len(s.rules), len(s.rules)+1)
	copy(next, s.rules)
	s.rules = append(next, cloneRule(rule))
	return nil
}

// Toggle flips the enabled flag of a rule and returns the new state
func (s *Store) Toggle(id string) (models.ValidationRule, error) {
	return s.modify(id, func(r *models.ValidationRule) error {
		r.Enabled = !r.Enabled
		return nil
	})
}

// SetEnabled sets the enabled flag of a rule
func (s *Store) SetEnabled(id string, enabled bool) (models.ValidationRule, error) {
	return s.modify(id, func(r *models.ValidationRule) error {
		r.Enabled = enabled
		return nil
	})
}

// Update applies a typed partial update to a rule. The result must still be valid.
func (s *Store) Update(id string, update models.RuleUpdate) (models.ValidationRule, error) {
	return s.modify(id, func(r *models.ValidationRule) error {
		*r = update.Apply(*r)
		return r.Validate()
	})
}

// modify replaces the rule with id by a mutated copy
func (s *Store) modify(id string, fn func(*models.ValidationRule) error) (models.ValidationRule, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, r := range s.rules {
		if r.ID != id {
			continue
		}
		updated := cloneRule(*r)
		if err := fn(updated); err != nil {
			return models.ValidationRule{}, err
		}
		next := make([]*models.ValidationRule, len(s.rules))
		copy(next, s.rules)
		next[i] = updated
		s.rules = next
		return *updated, nil
	}
	return models.ValidationRule{}, fmt.Errorf("%w: %s", ErrRuleNotFound, id)
}

// Policies returns a copy of the configured policies
func (s *Store) Policies() []models.Policy {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]models.Policy, len(s.policies))
	for i, p := range s.policies {
		out[i] = clonePolicy(p)
	}
	return out
}

// SetPolicies replaces the policies. Every referenced rule must exist.
func (s *Store) SetPolicies(policies []models.Policy) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	next := make([]models.Policy, 0, len(policies))
	for _, p := range policies {
		if err := s.checkRuleIDs(p.RuleIDs); err != nil {
			return fmt.Errorf("policy %s: %w", p.ID, err)
		}
		next = append(next, clonePolicy(p))
	}
	s.policies = next
	return nil
}

// UpdatePolicy applies a typed partial update to a policy
func (s *Store) UpdatePolicy(id string, update models.PolicyUpdate) (models.Policy, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for i, p := range s.policies {
		if p.ID != id {
			continue
		}
		if update.RuleIDs != nil {
			if err := s.checkRuleIDs(update.RuleIDs); err != nil {
				return models.Policy{}, err
			}
		}

		updated := clonePolicy(p)
		if update.Name != nil {
			updated.Name = *update.Name
		}
		if update.Description != nil {
			updated.Description = *update.Description
		}
		if update.RuleIDs != nil {
			updated.RuleIDs = append([]string(nil), update.RuleIDs...)
		}
		if update.Enabled != nil {
			updated.Enabled = *update.Enabled
		}
		updated.UpdatedAt = s.now()

		s.policies[i] = updated
		return clonePolicy(updated), nil
	}
	return models.Policy{}, fmt.Errorf("%w: %s", ErrPolicyNotFound, id)
}

// Replace swaps rules and policies together. Nothing changes if either is invalid.
func (s *Store) Replace(rules []models.ValidationRule, policies []models.Policy) error {
	staged := &Store{now: s.now}
	if err := staged.SetRules(rules); err != nil {
		return err
	}
	if err := staged.SetPolicies(policies); err != nil {
		return err
	}

	s.mu.Lock()
	s.rules = staged.rules
	s.policies = staged.policies
	s.mu.Unlock()
	return nil
}

// checkRuleIDs must be called with mu held
func (s *Store) checkRuleIDs(ids []string) error {
	for _, id := range ids {
		found := false
		for _, r := range s.rules {
			if r.ID == id {
				found = true
				break
			}
		}
		if !found {
			return fmt.Errorf("%w: %s", ErrUnknownRule, id)
		}
	}
	return nil
}

func cloneRule(r models.ValidationRule) *models.ValidationRule {
	r.ContentTypes = append([]models.ContentType(nil), r.ContentTypes...)
	return &r
}

func clonePolicy(p models.Policy) models.Policy {
	p.RuleIDs = append([]string(nil), p.RuleIDs...)
	return p
}
