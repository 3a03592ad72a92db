package ratelimit

import "time"

// DefaultRules seeds the rule table when no durable rule store is
// configured. The set mirrors the production defaults: a broad global
// ceiling, tight limits on authentication endpoints, smoothed writes and a
// per-key burst allowance for API consumers.
func DefaultRules() []Rule {
	now := time.Now()
	rules := []Rule{
		{
			ID:             "global-default",
			Name:           "Global default",
			IdentifierType: IdentifierGlobal,
			Algorithm:      SlidingWindow,
			Limit:          120,
			Window:         time.Minute,
			Priority:       100,
			Enabled:        true,
		},
		{
			ID:              "ip-auth",
			Name:            "Authentication per IP",
			IdentifierType:  IdentifierIP,
			EndpointPattern: "POST:/api/v1/auth/*",
			Algorithm:       FixedWindow,
			Limit:           10,
			Window:          time.Minute,
			Priority:        10,
			Enabled:         true,
		},
		{
			ID:             "apikey-burst",
			Name:           "API key burst allowance",
			IdentifierType: IdentifierAPIKey,
			Algorithm:      TokenBucket,
			Limit:          60,
			Window:         time.Minute,
			Priority:       20,
			Enabled:        true,
		},
		{
			ID:              "user-writes",
			Name:            "Smoothed writes per user",
			IdentifierType:  IdentifierUser,
			EndpointPattern: "POST:*",
			Algorithm:       LeakyBucket,
			Limit:           30,
			Window:          time.Minute,
			Priority:        30,
			Enabled:         true,
		},
	}

	for i := range rules {
		rules[i].CreatedAt = now
		rules[i].UpdatedAt = now
	}
	return rules
}
