// Package position wraps the platform location service: one last-known
// position, multiple subscribers, and sampling aggressiveness that adapts to
// the performance policy and app lifecycle.
package position

import (
	"log"
	"sync"
	"time"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	"github.com/driftlog/proximity/go-scheduler/internal/phase"
	"github.com/driftlog/proximity/go-scheduler/internal/platform"
	"github.com/driftlog/proximity/go-scheduler/internal/power"
)

// #region types

// Update is one delivered reading. LowAccuracy marks fixes worse than the
// configured ceiling; they are still delivered (a 50 km candidate radius
// dwarfs fix error) but consumers may choose to skip fine-grained work.
type Update struct {
	Position    geo.Position
	LowAccuracy bool
}

// FixError is a transient positioning failure. The provider stays running;
// persistent trouble surfaces through the scheduler's own health counters
// rather than a second escalation path here.
type FixError struct {
	Cause error
	At    time.Time
}

func (e FixError) Error() string { return "position fix: " + e.Cause.Error() }
func (e FixError) Unwrap() error { return e.Cause }

// Config holds provider tuning.
type Config struct {
	AccuracyCeilingM    float64 // fixes worse than this are flagged LowAccuracy
	BackgroundDowngrade bool    // use significant-change mode in background
}

// DefaultConfig returns the standard provider tuning.
func DefaultConfig() Config {
	return Config{
		AccuracyCeilingM:    200,
		BackgroundDowngrade: true,
	}
}

// #endregion types

// #region provider

// Provider is the position fan-out. Platform callbacks arrive on arbitrary
// threads; the provider's own state is lock-protected and subscriber
// callbacks are invoked outside the lock in arrival order.
type Provider struct {
	svc     platform.LocationService
	phaseFn func() phase.Phase
	config  Config

	mu          sync.Mutex
	started     bool
	background  bool
	significant bool
	policy      power.Policy
	last        *geo.Position
	onUpdate    []func(Update)
	onError     []func(FixError)
	onAuth      []func(platform.AuthorizationStatus)
	onPolicy    []func(power.Policy)
}

// NewProvider creates a provider. phaseFn gates Start on the consent phase.
func NewProvider(svc platform.LocationService, phaseFn func() phase.Phase, config Config) *Provider {
	p := &Provider{
		svc:     svc,
		phaseFn: phaseFn,
		config:  config,
		policy:  power.PolicyStandard,
	}
	svc.SetCallbacks(platform.LocationCallbacks{
		OnPosition:             p.handlePosition,
		OnError:                p.handleError,
		OnAuthorizationChanged: p.handleAuthorization,
	})
	return p
}

// Start begins platform updates. No-op unless the phase is granted;
// idempotent when already started. Returns whether updates are running.
func (p *Provider) Start() bool {
	if p.phaseFn() != phase.PhaseGranted {
		log.Printf("[POS] start ignored: phase=%s", p.phaseFn())
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()
	if p.started {
		return true
	}
	p.started = true
	p.applySamplingLocked()
	return true
}

// Stop cancels all platform updates. Idempotent.
func (p *Provider) Stop() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.started {
		return
	}
	p.started = false
	p.significant = false
	p.svc.StopUpdates()
}

// CurrentPosition returns the last known reading, or nil before the first fix.
func (p *Provider) CurrentPosition() *geo.Position {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.last
}

// OnUpdate registers a position subscriber. Each subscriber sees updates in
// arrival order; ordering across subscribers is unspecified.
func (p *Provider) OnUpdate(fn func(Update)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onUpdate = append(p.onUpdate, fn)
}

// OnError registers a failure subscriber.
func (p *Provider) OnError(fn func(FixError)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onError = append(p.onError, fn)
}

// OnAuthorizationChanged registers a subscriber for platform authorization
// changes. Unlike position updates, these are delivered even before Start: a
// consent decision is exactly what makes Start possible. Subscribers run on
// the platform callback thread; the consent controller must therefore only be
// driven from one context at a time.
func (p *Provider) OnAuthorizationChanged(fn func(platform.AuthorizationStatus)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onAuth = append(p.onAuth, fn)
}

// OnPolicyChange registers a subscriber notified after a policy change has
// been applied. Redundant SetPolicy calls do not notify.
func (p *Provider) OnPolicyChange(fn func(power.Policy)) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.onPolicy = append(p.onPolicy, fn)
}

// #endregion provider

// #region power-adaptation

// SetPolicy applies a performance policy change. Degraded policies loosen fix
// accuracy and widen the distance filter; standard restores the tightest
// profile. Re-applying the current policy is harmless.
func (p *Provider) SetPolicy(policy power.Policy) {
	if !policy.Valid() {
		log.Printf("[POS] ignoring unknown policy %q", policy)
		return
	}

	p.mu.Lock()
	if p.policy == policy {
		p.mu.Unlock()
		return
	}
	log.Printf("[POS] policy %s → %s", p.policy, policy)
	p.policy = policy
	if p.started {
		p.applySamplingLocked()
	}
	subs := make([]func(power.Policy), len(p.onPolicy))
	copy(subs, p.onPolicy)
	p.mu.Unlock()

	for _, fn := range subs {
		fn(policy)
	}
}

// Policy returns the currently applied performance policy.
func (p *Provider) Policy() power.Policy {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.policy
}

// EnterBackground downgrades to significant-change sampling when configured
// to. Idempotent and safe to call redundantly.
func (p *Provider) EnterBackground() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.background {
		return
	}
	p.background = true
	if p.started {
		p.applySamplingLocked()
	}
}

// EnterForeground restores continuous sampling if it was active before the
// background transition. Idempotent.
func (p *Provider) EnterForeground() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if !p.background {
		return
	}
	p.background = false
	if p.started {
		p.applySamplingLocked()
	}
}

// applySamplingLocked picks the sampling mode for the current policy and
// lifecycle state. Caller holds p.mu.
func (p *Provider) applySamplingLocked() {
	if p.background && p.config.BackgroundDowngrade {
		if p.significant {
			return
		}
		if err := p.svc.StartSignificantChange(); err != nil {
			log.Printf("[POS] significant-change start failed: %v", err)
			return
		}
		p.significant = true
		return
	}

	profile := power.ProfileFor(p.policy)
	if err := p.svc.StartUpdates(profile); err != nil {
		log.Printf("[POS] continuous start failed: %v", err)
		return
	}
	p.significant = false
}

// #endregion power-adaptation

// #region callbacks

func (p *Provider) handlePosition(pos geo.Position) {
	p.mu.Lock()
	if !p.started {
		p.mu.Unlock()
		return
	}
	cp := pos
	p.last = &cp
	subs := make([]func(Update), len(p.onUpdate))
	copy(subs, p.onUpdate)
	low := p.config.AccuracyCeilingM > 0 && pos.AccuracyM > p.config.AccuracyCeilingM
	p.mu.Unlock()

	u := Update{Position: pos, LowAccuracy: low}
	for _, fn := range subs {
		fn(u)
	}
}

// handleAuthorization fans out an authorization change. No started gate: the
// change that matters most arrives while the provider is still stopped.
func (p *Provider) handleAuthorization(status platform.AuthorizationStatus) {
	p.mu.Lock()
	subs := make([]func(platform.AuthorizationStatus), len(p.onAuth))
	copy(subs, p.onAuth)
	p.mu.Unlock()

	log.Printf("[POS] authorization changed: %s", status)
	for _, fn := range subs {
		fn(status)
	}
}

func (p *Provider) handleError(err error) {
	p.mu.Lock()
	subs := make([]func(FixError), len(p.onError))
	copy(subs, p.onError)
	p.mu.Unlock()

	fe := FixError{Cause: err, At: time.Now()}
	log.Printf("[POS] transient failure: %v", err)
	for _, fn := range subs {
		fn(fe)
	}
}

// #endregion callbacks
