// Package fault decides, per guarded operation, whether to proceed, inject
// latency, or short-circuit with a synthetic failure.
package fault

import (
	"fmt"
	"math/rand"
	"sort"
	"sync"
	"time"
)

// Category sets for the two subsystems. The set is fixed at startup; only
// the boolean values change afterwards.
var (
	HealthCategories = []string{
		"intermittent_failures",
		"memory_pressure",
		"disk_pressure",
		"slow_responses",
		"cascade_failures",
		"corrupted_metrics",
	}
	APICategories = []string{
		"database_errors",
		"validation_errors",
		"service_errors",
		"rate_limit_errors",
		"random_errors",
	}
)

// ErrInvalidCategory is returned by Set when a requested category is not in
// the subsystem's known set. The config is left untouched in that case.
type ErrInvalidCategory struct {
	Subsystem string
	Category  string
}

func (e *ErrInvalidCategory) Error() string {
	return fmt.Sprintf("unknown %s fault category: %s", e.Subsystem, e.Category)
}

// Action is the kind of decision an Evaluate call produced.
type Action int

const (
	// Proceed means the operation runs normally.
	Proceed Action = iota
	// Delay means the caller should sleep for Outcome.Delay before running.
	Delay
	// Fail means the caller should short-circuit with Outcome.Status.
	Fail
)

// Outcome is the decision for one guarded draw.
type Outcome struct {
	Action     Action
	Category   string
	Delay      time.Duration
	Status     int
	Message    string
	RetryAfter time.Duration
}

// FailSpec describes the synthetic failure an enabled category produces when
// its draw hits.
type FailSpec struct {
	Status     int
	Message    string
	RetryAfter time.Duration
}

// Source yields uniform random numbers for fault draws. Implementations must
// be safe for concurrent use.
type Source interface {
	Float64() float64
	Intn(n int) int
}

type lockedSource struct {
	mu  sync.Mutex
	rng *rand.Rand
}

func (s *lockedSource) Float64() float64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Float64()
}

func (s *lockedSource) Intn(n int) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.rng.Intn(n)
}

// NewSource returns a concurrency-safe Source. A zero seed means
// time-seeded.
func NewSource(seed int64) Source {
	if seed == 0 {
		seed = time.Now().UnixNano()
	}
	return &lockedSource{rng: rand.New(rand.NewSource(seed))}
}

// Injector holds one subsystem's fault category toggles and evaluates
// Bernoulli draws against them. All flags start disabled.
type Injector struct {
	subsystem  string
	mu         sync.RWMutex
	categories map[string]bool
	known      []string
	src        Source
	onFault    func(subsystem, category string)
}

// Option configures an Injector.
type Option func(*Injector)

// WithSource overrides the random source, for deterministic tests.
func WithSource(src Source) Option {
	return func(i *Injector) { i.src = src }
}

// WithFaultHook installs a callback invoked whenever a category draw
// triggers a Delay or Fail outcome.
func WithFaultHook(hook func(subsystem, category string)) Option {
	return func(i *Injector) { i.onFault = hook }
}

// NewInjector creates an injector for one subsystem with the given known
// category set, all disabled.
func NewInjector(subsystem string, known []string, opts ...Option) *Injector {
	cats := make(map[string]bool, len(known))
	names := make([]string, len(known))
	copy(names, known)
	sort.Strings(names)
	for _, name := range names {
		cats[name] = false
	}

	inj := &Injector{
		subsystem:  subsystem,
		categories: cats,
		known:      names,
		src:        NewSource(0),
	}
	for _, opt := range opts {
		opt(inj)
	}
	return inj
}

// Subsystem returns the subsystem name this injector guards.
func (i *Injector) Subsystem() string {
	return i.subsystem
}

// Set merges the given toggles into the config. The whole request is
// validated first: any unknown category fails with ErrInvalidCategory and
// leaves the config unchanged. Returns a copy of the resulting config.
func (i *Injector) Set(updates map[string]bool) (map[string]bool, error) {
	i.mu.Lock()
	defer i.mu.Unlock()

	for name := range updates {
		if _, ok := i.categories[name]; !ok {
			return nil, &ErrInvalidCategory{Subsystem: i.subsystem, Category: name}
		}
	}
	for name, enabled := range updates {
		i.categories[name] = enabled
	}
	return i.configLocked(), nil
}

// Status returns a copy of the current config and the known category list.
func (i *Injector) Status() (map[string]bool, []string) {
	i.mu.RLock()
	defer i.mu.RUnlock()

	known := make([]string, len(i.known))
	copy(known, i.known)
	return i.configLocked(), known
}

// Enabled reports whether a single category is currently on.
func (i *Injector) Enabled(category string) bool {
	i.mu.RLock()
	defer i.mu.RUnlock()
	return i.categories[category]
}

// DisableAll turns every category off.
func (i *Injector) DisableAll() {
	i.mu.Lock()
	defer i.mu.Unlock()
	for name := range i.categories {
		i.categories[name] = false
	}
}

func (i *Injector) configLocked() map[string]bool {
	out := make(map[string]bool, len(i.categories))
	for name, enabled := range i.categories {
		out[name] = enabled
	}
	return out
}

// EvaluateFail draws once for the category. A disabled or unknown category
// always proceeds. An enabled category fails with probability p, producing
// the given synthetic failure.
func (i *Injector) EvaluateFail(category string, p float64, spec FailSpec) Outcome {
	if !i.Enabled(category) || i.src.Float64() >= p {
		return Outcome{Action: Proceed, Category: category}
	}
	i.faultHit(category)
	return Outcome{
		Action:     Fail,
		Category:   category,
		Status:     spec.Status,
		Message:    spec.Message,
		RetryAfter: spec.RetryAfter,
	}
}

// EvaluateDelay draws once for the category. An enabled category delays with
// probability p, for a duration drawn uniformly from [min, max].
func (i *Injector) EvaluateDelay(category string, p float64, min, max time.Duration) Outcome {
	if !i.Enabled(category) || i.src.Float64() >= p {
		return Outcome{Action: Proceed, Category: category}
	}
	i.faultHit(category)
	return Outcome{
		Action:   Delay,
		Category: category,
		Delay:    i.Uniform(min, max),
	}
}

// Chance draws a category-independent Bernoulli trial. Unlike Evaluate*, it
// is not gated by any toggle; call sites use it for the unconditional
// background failure rates the demo always carries.
func (i *Injector) Chance(p float64) bool {
	return i.src.Float64() < p
}

// Uniform returns a duration drawn uniformly from [min, max].
func (i *Injector) Uniform(min, max time.Duration) time.Duration {
	if max <= min {
		return min
	}
	return min + time.Duration(i.src.Float64()*float64(max-min))
}

// Intn exposes the injector's random source for call sites that need
// synthetic integers (worker ids, fake connection counts).
func (i *Injector) Intn(n int) int {
	return i.src.Intn(n)
}

// Pick returns a uniformly chosen element.
func (i *Injector) Pick(options []string) string {
	return options[i.src.Intn(len(options))]
}

func (i *Injector) faultHit(category string) {
	if i.onFault != nil {
		i.onFault(i.subsystem, category)
	}
}
