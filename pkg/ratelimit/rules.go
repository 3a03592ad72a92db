package ratelimit

import (
	"fmt"
	"regexp"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/go-playground/validator/v10"
)

// RuleService holds the in-memory rule table and the whitelist/blacklist
// membership sets. The table is read on every check and written rarely
// (startup seeding and administrative calls), so a single RWMutex covers it.
type RuleService struct {
	mu        sync.RWMutex
	rules     map[string]*compiledRule
	whitelist map[string]struct{}
	blacklist map[string]struct{}
	validate  *validator.Validate
}

type compiledRule struct {
	rule Rule
	// pattern is nil when the rule matches every endpoint
	pattern *regexp.Regexp
}

func NewRuleService() *RuleService {
	return &RuleService{
		rules:     make(map[string]*compiledRule),
		whitelist: make(map[string]struct{}),
		blacklist: make(map[string]struct{}),
		validate:  validator.New(),
	}
}

// UpsertRule validates and registers a rule. Configuration errors (a
// non-positive limit, an unknown algorithm, an uncompilable pattern) are
// rejected here so the check path never has to re-validate.
func (s *RuleService) UpsertRule(rule Rule) error {
	if err := s.validate.Struct(rule); err != nil {
		return fmt.Errorf("invalid rule %q: %w", rule.ID, err)
	}
	if rule.Window < time.Second {
		return fmt.Errorf("invalid rule %q: window must be at least one second", rule.ID)
	}

	pattern, err := compilePattern(rule.EndpointPattern)
	if err != nil {
		return fmt.Errorf("invalid rule %q: bad endpoint pattern %q: %w", rule.ID, rule.EndpointPattern, err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.rules[rule.ID] = &compiledRule{rule: rule, pattern: pattern}
	return nil
}

func (s *RuleService) DeleteRule(id string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.rules[id]; !ok {
		return false
	}
	delete(s.rules, id)
	return true
}

func (s *RuleService) GetRule(id string) (Rule, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	cr, ok := s.rules[id]
	if !ok {
		return Rule{}, false
	}
	return cr.rule, true
}

func (s *RuleService) ListRules() []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rules := make([]Rule, 0, len(s.rules))
	for _, cr := range s.rules {
		rules = append(rules, cr.rule)
	}
	sortRules(rules)
	return rules
}

// ApplicableRules returns the enabled rules matching the identifier type and
// endpoint, in ascending priority order. An empty result means the request
// is unrestricted: the default posture is allow.
func (s *RuleService) ApplicableRules(idType IdentifierType, endpoint string) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []Rule
	for _, cr := range s.rules {
		if !cr.rule.Enabled {
			continue
		}
		if cr.rule.IdentifierType != idType && cr.rule.IdentifierType != IdentifierGlobal {
			continue
		}
		if cr.pattern != nil && !cr.pattern.MatchString(endpoint) {
			continue
		}
		rules = append(rules, cr.rule)
	}
	sortRules(rules)
	return rules
}

// RulesForIdentifier returns the enabled rules for an identifier type
// regardless of endpoint. Reset uses it because a reset call carries no
// endpoint context.
func (s *RuleService) RulesForIdentifier(idType IdentifierType) []Rule {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var rules []Rule
	for _, cr := range s.rules {
		if !cr.rule.Enabled {
			continue
		}
		if cr.rule.IdentifierType != idType && cr.rule.IdentifierType != IdentifierGlobal {
			continue
		}
		rules = append(rules, cr.rule)
	}
	sortRules(rules)
	return rules
}

func (s *RuleService) AddAccessEntry(entry AccessEntry) error {
	if err := s.validate.Struct(entry); err != nil {
		return fmt.Errorf("invalid access entry: %w", err)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if entry.List == Whitelist {
		s.whitelist[accessKey(entry.Identifier, entry.IdentifierType)] = struct{}{}
	} else {
		s.blacklist[accessKey(entry.Identifier, entry.IdentifierType)] = struct{}{}
	}
	return nil
}

func (s *RuleService) RemoveAccessEntry(identifier string, idType IdentifierType, list AccessList) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if list == Whitelist {
		delete(s.whitelist, accessKey(identifier, idType))
	} else {
		delete(s.blacklist, accessKey(identifier, idType))
	}
}

func (s *RuleService) IsWhitelisted(identifier string, idType IdentifierType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.whitelist[accessKey(identifier, idType)]
	return ok
}

func (s *RuleService) IsBlacklisted(identifier string, idType IdentifierType) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.blacklist[accessKey(identifier, idType)]
	return ok
}

func accessKey(identifier string, idType IdentifierType) string {
	return string(idType) + ":" + identifier
}

func sortRules(rules []Rule) {
	sort.Slice(rules, func(i, j int) bool {
		if rules[i].Priority != rules[j].Priority {
			return rules[i].Priority < rules[j].Priority
		}
		return rules[i].ID < rules[j].ID
	})
}

// compilePattern turns an endpoint glob into a case-insensitive anchored
// regexp. An empty pattern and the bare "*" wildcard match everything and
// compile to nil. A "*" inside a pattern matches any span non-greedily.
func compilePattern(pattern string) (*regexp.Regexp, error) {
	if pattern == "" || pattern == "*" {
		return nil, nil
	}

	escaped := regexp.QuoteMeta(pattern)
	escaped = strings.ReplaceAll(escaped, `\*`, `.*?`)
	return regexp.Compile(`(?i)^` + escaped + `$`)
}
