package load

import (
	"sort"
	"sync"
)

// CheckStatus200 is the check every invocation reports.
const CheckStatus200 = "is status 200"

// CheckReporter receives boolean check outcomes.
type CheckReporter interface {
	Check(name string, ok bool) bool
}

// CheckResult aggregates one named check.
type CheckResult struct {
	Name   string `json:"name"`
	Passes int64  `json:"passes"`
	Fails  int64  `json:"fails"`
}

// Checks counts pass/fail per check name. Safe for concurrent use.
type Checks struct {
	mu      sync.Mutex
	results map[string]*CheckResult
}

// NewChecks creates an empty aggregator.
func NewChecks() *Checks {
	return &Checks{results: make(map[string]*CheckResult)}
}

// Check records ok under name and returns it.
func (c *Checks) Check(name string, ok bool) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	r, found := c.results[name]
	if !found {
		r = &CheckResult{Name: name}
		c.results[name] = r
	}
	if ok {
		r.Passes++
	} else {
		r.Fails++
	}
	return ok
}

// Snapshot returns a copy of all results sorted by name.
func (c *Checks) Snapshot() []CheckResult {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]CheckResult, 0, len(c.results))
	for _, r := range c.results {
		out = append(out, *r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out
}
