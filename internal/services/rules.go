package services

import (
	"context"
	"fmt"
	"time"

	"ratelimit-service/internal/repository"
	"ratelimit-service/pkg/ratelimit"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

// RuleManager is the rule management surface. It validates and registers
// rules in the in-memory table the limiter reads, and writes through to the
// repository when one is configured so rules survive restarts. A change is
// visible to the very next Check call.
type RuleManager struct {
	repo   *repository.RuleRepository // nil when running without Mongo
	rules  *ratelimit.RuleService
	logger zerolog.Logger
}

func NewRuleManager(repo *repository.RuleRepository, rules *ratelimit.RuleService, logger zerolog.Logger) *RuleManager {
	return &RuleManager{repo: repo, rules: rules, logger: logger}
}

// Load seeds the in-memory table: from the repository when configured and
// non-empty, otherwise from the built-in defaults (which are persisted on
// first run so later edits have a durable home).
func (m *RuleManager) Load(ctx context.Context) error {
	if m.repo == nil {
		m.logger.Info().Msg("no rule store configured, seeding built-in default rules")
		return m.seed(ratelimit.DefaultRules())
	}

	stored, err := m.repo.FindAll(ctx)
	if err != nil {
		return fmt.Errorf("load rules: %w", err)
	}

	if len(stored) == 0 {
		defaults := ratelimit.DefaultRules()
		for i := range defaults {
			if err := m.repo.Create(&defaults[i]); err != nil {
				m.logger.Warn().Err(err).Str("rule", defaults[i].ID).Msg("could not persist default rule")
			}
		}
		stored = defaults
	}

	if err := m.seed(stored); err != nil {
		return err
	}

	entries, err := m.repo.FindAccessEntries(ctx)
	if err != nil {
		return fmt.Errorf("load access entries: %w", err)
	}
	for _, entry := range entries {
		if err := m.rules.AddAccessEntry(entry); err != nil {
			m.logger.Warn().Err(err).Str("identifier", entry.Identifier).Msg("skipping invalid access entry")
		}
	}

	m.logger.Info().Int("rules", len(stored)).Int("accessEntries", len(entries)).Msg("rule table loaded")
	return nil
}

func (m *RuleManager) seed(rules []ratelimit.Rule) error {
	for _, rule := range rules {
		if err := m.rules.UpsertRule(rule); err != nil {
			return fmt.Errorf("seed rule %q: %w", rule.ID, err)
		}
	}
	return nil
}

func (m *RuleManager) CreateRule(rule ratelimit.Rule) (ratelimit.Rule, error) {
	if rule.ID == "" {
		rule.ID = uuid.NewString()
	}
	now := time.Now()
	rule.CreatedAt = now
	rule.UpdatedAt = now

	if err := m.rules.UpsertRule(rule); err != nil {
		return ratelimit.Rule{}, err
	}
	if m.repo != nil {
		if err := m.repo.Create(&rule); err != nil {
			m.rules.DeleteRule(rule.ID)
			return ratelimit.Rule{}, fmt.Errorf("persist rule: %w", err)
		}
	}
	return rule, nil
}

func (m *RuleManager) UpdateRule(rule ratelimit.Rule) (ratelimit.Rule, error) {
	existing, ok := m.rules.GetRule(rule.ID)
	if !ok {
		return ratelimit.Rule{}, repository.ErrRuleNotFound
	}
	rule.CreatedAt = existing.CreatedAt
	rule.UpdatedAt = time.Now()

	if err := m.rules.UpsertRule(rule); err != nil {
		return ratelimit.Rule{}, err
	}
	if m.repo != nil {
		if err := m.repo.Update(&rule); err != nil {
			// restore the previous in-memory state on a failed write
			_ = m.rules.UpsertRule(existing)
			return ratelimit.Rule{}, fmt.Errorf("persist rule: %w", err)
		}
	}
	return rule, nil
}

func (m *RuleManager) DeleteRule(id string) error {
	if !m.rules.DeleteRule(id) {
		return repository.ErrRuleNotFound
	}
	if m.repo != nil {
		if err := m.repo.Delete(id); err != nil && err != repository.ErrRuleNotFound {
			return fmt.Errorf("delete rule: %w", err)
		}
	}
	return nil
}

func (m *RuleManager) GetRule(id string) (ratelimit.Rule, bool) {
	return m.rules.GetRule(id)
}

func (m *RuleManager) ListRules() []ratelimit.Rule {
	return m.rules.ListRules()
}

func (m *RuleManager) AddAccessEntry(entry ratelimit.AccessEntry) error {
	entry.CreatedAt = time.Now()
	if err := m.rules.AddAccessEntry(entry); err != nil {
		return err
	}
	if m.repo != nil {
		if err := m.repo.AddAccessEntry(&entry); err != nil {
			m.rules.RemoveAccessEntry(entry.Identifier, entry.IdentifierType, entry.List)
			return fmt.Errorf("persist access entry: %w", err)
		}
	}
	return nil
}

func (m *RuleManager) RemoveAccessEntry(identifier string, idType ratelimit.IdentifierType, list ratelimit.AccessList) error {
	m.rules.RemoveAccessEntry(identifier, idType, list)
	if m.repo != nil {
		if err := m.repo.RemoveAccessEntry(identifier, idType, list); err != nil {
			return fmt.Errorf("remove access entry: %w", err)
		}
	}
	return nil
}
