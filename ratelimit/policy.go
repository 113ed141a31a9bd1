// Package ratelimit implements the Rate Limiter (component I): per-policy
// bucket strategies keyed by principal userId or remote address, attached to
// routes declaratively. Grounded on the teacher's use of golang.org/x/time/rate
// in http/server.go, generalized from one global limiter to a named-policy
// registry with four distinct strategies.
package ratelimit

import "time"

// Strategy names one of the four bucket algorithms §4.I defines.
type Strategy string

const (
	SlidingWindow Strategy = "sliding-window"
	TokenBucket   Strategy = "token-bucket"
	Concurrency   Strategy = "concurrency"
	FixedWindow   Strategy = "fixed-window"
)

// Policy carries one named rate-limit policy's parameters. Only the fields
// relevant to Strategy are consulted.
type Policy struct {
	Name     string
	Strategy Strategy

	// sliding-window / fixed-window
	Limit  int
	Window time.Duration

	// token-bucket
	Capacity   int
	RefillRate float64 // tokens per second

	// concurrency
	MaxInFlight int
}

// DefaultPolicies returns the required default set from §4.I: graph-read,
// graph-write, upload-heavy, dataverse-query, job-submission, anonymous.
func DefaultPolicies() map[string]Policy {
	return map[string]Policy{
		"graph-read": {
			Name: "graph-read", Strategy: SlidingWindow, Limit: 100, Window: time.Minute,
		},
		"graph-write": {
			Name: "graph-write", Strategy: SlidingWindow, Limit: 30, Window: time.Minute,
		},
		"upload-heavy": {
			Name: "upload-heavy", Strategy: Concurrency, MaxInFlight: 5,
		},
		"dataverse-query": {
			Name: "dataverse-query", Strategy: TokenBucket, Capacity: 50, RefillRate: 10,
		},
		"job-submission": {
			Name: "job-submission", Strategy: FixedWindow, Limit: 20, Window: time.Minute,
		},
		"anonymous": {
			Name: "anonymous", Strategy: TokenBucket, Capacity: 20, RefillRate: 2,
		},
	}
}
