package ratelimit

import (
	"math"
	"time"
)

// IdentifierType classifies what a rate limit identifier refers to
type IdentifierType string

const (
	IdentifierGlobal IdentifierType = "global"
	IdentifierIP     IdentifierType = "ip_address"
	IdentifierUser   IdentifierType = "user_id"
	IdentifierAPIKey IdentifierType = "api_key"
)

// Algorithm selects the rate limiting strategy a rule is enforced with
type Algorithm string

const (
	FixedWindow   Algorithm = "fixed_window"
	SlidingWindow Algorithm = "sliding_window"
	TokenBucket   Algorithm = "token_bucket"
	LeakyBucket   Algorithm = "leaky_bucket"
)

// Rule defines a single rate limiting policy
type Rule struct {
	ID              string         `json:"id" bson:"_id" validate:"required"`
	Name            string         `json:"name" bson:"name" validate:"required"`
	IdentifierType  IdentifierType `json:"identifierType" bson:"identifier_type" validate:"required,oneof=global ip_address user_id api_key"`
	EndpointPattern string         `json:"endpointPattern,omitempty" bson:"endpoint_pattern,omitempty"`
	Algorithm       Algorithm      `json:"algorithm" bson:"algorithm" validate:"required,oneof=fixed_window sliding_window token_bucket leaky_bucket"`
	Limit           int64          `json:"limit" bson:"limit" validate:"required,gt=0"`
	Window          time.Duration  `json:"window" bson:"window" validate:"required,gt=0"`
	Priority        int            `json:"priority" bson:"priority" validate:"gte=0"`
	Enabled         bool           `json:"enabled" bson:"enabled"`
	CreatedAt       time.Time      `json:"createdAt" bson:"created_at"`
	UpdatedAt       time.Time      `json:"updatedAt" bson:"updated_at"`
}

// CheckRequest describes one admission decision to make
type CheckRequest struct {
	Identifier     string         `json:"identifier"`
	IdentifierType IdentifierType `json:"identifierType"`
	Endpoint       string         `json:"endpoint"`
	Cost           int64          `json:"cost"`
}

// CheckResult is the outcome of an admission decision. RetryAfter is zero
// unless the request was denied.
type CheckResult struct {
	Allowed    bool          `json:"allowed"`
	Remaining  int64         `json:"remaining"`
	Limit      int64         `json:"limit"`
	ResetAt    time.Time     `json:"resetAt"`
	RetryAfter time.Duration `json:"retryAfter,omitempty"`
}

// Violation records a denied request for the audit surface
type Violation struct {
	ID                string         `json:"id" bson:"_id"`
	Identifier        string         `json:"identifier" bson:"identifier"`
	IdentifierType    IdentifierType `json:"identifierType" bson:"identifier_type"`
	Endpoint          string         `json:"endpoint" bson:"endpoint"`
	RuleID            string         `json:"ruleId" bson:"rule_id"`
	RuleName          string         `json:"ruleName" bson:"rule_name"`
	AllowedLimit      int64          `json:"allowedLimit" bson:"allowed_limit"`
	AttemptedRequests int64          `json:"attemptedRequests" bson:"attempted_requests"`
	ViolatedAt        time.Time      `json:"violatedAt" bson:"violated_at"`
}

// AccessList names the two membership sets consulted before rule evaluation
type AccessList string

const (
	Whitelist AccessList = "whitelist"
	Blacklist AccessList = "blacklist"
)

// AccessEntry is a whitelist or blacklist membership record
type AccessEntry struct {
	Identifier     string         `json:"identifier" bson:"identifier" validate:"required"`
	IdentifierType IdentifierType `json:"identifierType" bson:"identifier_type" validate:"required,oneof=global ip_address user_id api_key"`
	List           AccessList     `json:"list" bson:"list" validate:"required,oneof=whitelist blacklist"`
	CreatedAt      time.Time      `json:"createdAt" bson:"created_at"`
}

// BlacklistRuleName tags violations produced by a blacklist hit rather than
// a configured rule.
const BlacklistRuleName = "Blacklist"

// Unlimited is the quota reported when no rule restricts a request.
const Unlimited int64 = math.MaxInt32

// blacklistRetryAfter stands in for "never retry" on blacklisted callers.
const blacklistRetryAfter = time.Duration(math.MaxInt32) * time.Second
