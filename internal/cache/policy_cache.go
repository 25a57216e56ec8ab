package cache

import (
	"context"
	"sync"
	"time"

	"github.com/interaction-monitor/internal/policy"
	"github.com/interaction-monitor/pkg/models"
	"go.uber.org/zap"
)

// RuleRepository is the rules table
type RuleRepository interface {
	List(ctx context.Context) ([]models.ValidationRule, error)
	Save(ctx context.Context, rule models.ValidationRule) error
}

// PolicyCache keeps the in-memory rule store in step with the rules table.
// Local edits are written through with WriteRule; edits made by other
// instances are picked up by the periodic refresh.
type PolicyCache struct {
	repo          RuleRepository
	store         *policy.Store
	mu            sync.Mutex // held across a refresh and across a local write-through
	logger        *zap.SugaredLogger
	interval      time.Duration
	refreshTicker *time.Ticker
	stopChan      chan struct{}
	refreshOnce   sync.Once
	stopOnce      sync.Once
}

// NewPolicyCache creates a new policy cache
func NewPolicyCache(repo RuleRepository, store *policy.Store, interval time.Duration, logger *zap.SugaredLogger) *PolicyCache {
	return &PolicyCache{
		repo:     repo,
		store:    store,
		logger:   logger,
		interval: interval,
		stopChan: make(chan struct{}),
	}
}

// Start initializes the cache and starts the background refresh worker
func (pc *PolicyCache) Start(ctx context.Context) error {
	// Initial load
	if err := pc.refresh(ctx); err != nil {
		return err
	}
	pc.logger.Infof("✓ Rule store initialized with %d rules", len(pc.store.Rules()))

	if pc.interval <= 0 {
		return nil
	}
	pc.refreshOnce.Do(func() {
		pc.refreshTicker = time.NewTicker(pc.interval)
		go pc.refreshWorker(ctx)
		pc.logger.Infof("✓ Rule refresh worker started (interval: %v)", pc.interval)
	})

	return nil
}

// refreshWorker runs in the background and refreshes the store periodically
func (pc *PolicyCache) refreshWorker(ctx context.Context) {
	for {
		select {
		case <-pc.refreshTicker.C:
			if err := pc.refresh(ctx); err != nil {
				pc.logger.Warnf("⚠️  Failed to refresh rules: %v", err)
			}
		case <-pc.stopChan:
			pc.refreshTicker.Stop()
			pc.logger.Info("✓ Rule refresh worker stopped")
			return
		case <-ctx.Done():
			pc.refreshTicker.Stop()
			return
		}
	}
}

// refresh loads rules from the database into the store. An empty table
// leaves the store untouched so file-seeded rules survive.
func (pc *PolicyCache) refresh(ctx context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	rules, err := pc.repo.List(ctx)
	if err != nil {
		return err
	}
	if len(rules) == 0 {
		return nil
	}
	return pc.store.SetRules(rules)
}

// WriteRule applies change to the store and writes the resulting rule to the
// database. No refresh runs in between, so the edit cannot be overwritten by
// rows read before it was saved. A failed save is logged and the in-memory
// change kept.
func (pc *PolicyCache) WriteRule(ctx context.Context, change func() (models.ValidationRule, error)) (models.ValidationRule, error) {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	rule, err := change()
	if err != nil {
		return rule, err
	}
	if err := pc.repo.Save(ctx, rule); err != nil {
		pc.logger.Warnf("⚠️  Failed to persist rule %s: %v", rule.ID, err)
	}
	return rule, nil
}

// SaveAll writes every rule of the store to the database, in order
func (pc *PolicyCache) SaveAll(ctx context.Context) error {
	pc.mu.Lock()
	defer pc.mu.Unlock()

	for _, r := range pc.store.Rules() {
		if err := pc.repo.Save(ctx, *r); err != nil {
			return err
		}
	}
	return nil
}

// Invalidate forces an immediate refresh
func (pc *PolicyCache) Invalidate(ctx context.Context) error {
	pc.logger.Info("🔄 Invalidating rule store...")
	return pc.refresh(ctx)
}

// Stop gracefully stops the background refresh worker
func (pc *PolicyCache) Stop() {
	pc.stopOnce.Do(func() {
		close(pc.stopChan)
	})
}
