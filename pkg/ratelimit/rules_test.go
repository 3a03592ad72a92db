package ratelimit

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testRule(id string, idType IdentifierType, pattern string, priority int) Rule {
	return Rule{
		ID:              id,
		Name:            "rule " + id,
		IdentifierType:  idType,
		EndpointPattern: pattern,
		Algorithm:       FixedWindow,
		Limit:           10,
		Window:          time.Minute,
		Priority:        priority,
		Enabled:         true,
	}
}

func TestRuleService_UpsertValidation(t *testing.T) {
	svc := NewRuleService()

	valid := testRule("ok", IdentifierIP, "", 1)
	require.NoError(t, svc.UpsertRule(valid))

	cases := []struct {
		name   string
		mutate func(*Rule)
	}{
		{"missing id", func(r *Rule) { r.ID = "" }},
		{"missing name", func(r *Rule) { r.Name = "" }},
		{"zero limit", func(r *Rule) { r.Limit = 0 }},
		{"negative limit", func(r *Rule) { r.Limit = -5 }},
		{"unknown algorithm", func(r *Rule) { r.Algorithm = "spin_lock" }},
		{"unknown identifier type", func(r *Rule) { r.IdentifierType = "hostname" }},
		{"sub-second window", func(r *Rule) { r.Window = 100 * time.Millisecond }},
		{"negative priority", func(r *Rule) { r.Priority = -1 }},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rule := valid
			tc.mutate(&rule)
			assert.Error(t, svc.UpsertRule(rule))
		})
	}
}

func TestRuleService_ApplicableRulesFiltersAndSorts(t *testing.T) {
	svc := NewRuleService()

	require.NoError(t, svc.UpsertRule(testRule("ip-low", IdentifierIP, "", 50)))
	require.NoError(t, svc.UpsertRule(testRule("ip-high", IdentifierIP, "", 10)))
	require.NoError(t, svc.UpsertRule(testRule("global", IdentifierGlobal, "", 90)))
	require.NoError(t, svc.UpsertRule(testRule("user-only", IdentifierUser, "", 5)))

	disabled := testRule("ip-off", IdentifierIP, "", 1)
	disabled.Enabled = false
	require.NoError(t, svc.UpsertRule(disabled))

	rules := svc.ApplicableRules(IdentifierIP, "GET:/api/v1/status")
	require.Len(t, rules, 3)
	assert.Equal(t, "ip-high", rules[0].ID, "lowest priority value evaluates first")
	assert.Equal(t, "ip-low", rules[1].ID)
	assert.Equal(t, "global", rules[2].ID, "global rules apply to every identifier type")
}

func TestRuleService_EndpointPatternMatching(t *testing.T) {
	svc := NewRuleService()

	require.NoError(t, svc.UpsertRule(testRule("exact", IdentifierIP, "POST:/api/v1/login", 1)))
	require.NoError(t, svc.UpsertRule(testRule("glob", IdentifierIP, "POST:/api/v1/auth/*", 2)))
	require.NoError(t, svc.UpsertRule(testRule("any", IdentifierIP, "*", 3)))

	ids := func(rules []Rule) []string {
		out := make([]string, len(rules))
		for i, r := range rules {
			out[i] = r.ID
		}
		return out
	}

	assert.Equal(t, []string{"exact", "any"}, ids(svc.ApplicableRules(IdentifierIP, "POST:/api/v1/login")))
	assert.Equal(t, []string{"glob", "any"}, ids(svc.ApplicableRules(IdentifierIP, "POST:/api/v1/auth/refresh")))
	assert.Equal(t, []string{"any"}, ids(svc.ApplicableRules(IdentifierIP, "GET:/api/v1/vehicles")))

	// matching is case-insensitive
	assert.Equal(t, []string{"exact", "any"}, ids(svc.ApplicableRules(IdentifierIP, "post:/API/v1/Login")))
}

func TestRuleService_NoApplicableRulesMeansUnrestricted(t *testing.T) {
	svc := NewRuleService()
	require.NoError(t, svc.UpsertRule(testRule("user-only", IdentifierUser, "", 1)))

	assert.Empty(t, svc.ApplicableRules(IdentifierAPIKey, "GET:/anything"))
}

func TestRuleService_DeleteRule(t *testing.T) {
	svc := NewRuleService()
	require.NoError(t, svc.UpsertRule(testRule("gone", IdentifierIP, "", 1)))

	assert.True(t, svc.DeleteRule("gone"))
	assert.False(t, svc.DeleteRule("gone"), "second delete reports absence")

	_, ok := svc.GetRule("gone")
	assert.False(t, ok)
}

func TestRuleService_AccessLists(t *testing.T) {
	svc := NewRuleService()

	require.NoError(t, svc.AddAccessEntry(AccessEntry{
		Identifier:     "10.0.0.1",
		IdentifierType: IdentifierIP,
		List:           Whitelist,
	}))
	require.NoError(t, svc.AddAccessEntry(AccessEntry{
		Identifier:     "badkey",
		IdentifierType: IdentifierAPIKey,
		List:           Blacklist,
	}))

	assert.True(t, svc.IsWhitelisted("10.0.0.1", IdentifierIP))
	assert.False(t, svc.IsWhitelisted("10.0.0.1", IdentifierUser), "membership is scoped to the identifier type")
	assert.True(t, svc.IsBlacklisted("badkey", IdentifierAPIKey))
	assert.False(t, svc.IsBlacklisted("10.0.0.1", IdentifierIP))

	svc.RemoveAccessEntry("10.0.0.1", IdentifierIP, Whitelist)
	assert.False(t, svc.IsWhitelisted("10.0.0.1", IdentifierIP))

	// invalid list name is rejected before touching state
	assert.Error(t, svc.AddAccessEntry(AccessEntry{
		Identifier:     "x",
		IdentifierType: IdentifierIP,
		List:           "greylist",
	}))
}
