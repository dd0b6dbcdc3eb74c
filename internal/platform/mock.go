package platform

import (
	"fmt"
	"sync"

	"github.com/driftlog/proximity/go-scheduler/internal/geo"
	"github.com/driftlog/proximity/go-scheduler/internal/power"
)

// #region mock

// Mock implements LocationService and RegionMonitor in memory, recording
// every call so tests can assert on platform interaction. Callback delivery
// happens synchronously on the caller's goroutine, which is exactly the
// "arbitrary platform thread" the real adapters exhibit.
type Mock struct {
	mu sync.Mutex

	status       AuthorizationStatus
	locCb        LocationCallbacks
	regCb        RegionCallbacks
	installed    map[string]Region
	installOrder []string

	PromptCalls       int
	StartCalls        int
	SignificantCalls  int
	StopCalls         int
	RemoveCalls       int
	ActiveProfile     power.SamplingProfile
	Continuous        bool
	SignificantActive bool

	// InstallErr, when set, is returned for region IDs present in FailIDs
	// (or for every install when FailIDs is empty).
	InstallErr error
	FailIDs    map[string]bool
}

// NewMock returns a Mock with the given initial authorization status.
func NewMock(status AuthorizationStatus) *Mock {
	return &Mock{
		status:    status,
		installed: make(map[string]Region),
	}
}

// #endregion mock

// #region location-service-impl

func (m *Mock) AuthorizationStatus() AuthorizationStatus {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.status
}

func (m *Mock) RequestAuthorization() {
	m.mu.Lock()
	m.PromptCalls++
	m.mu.Unlock()
}

func (m *Mock) SetCallbacks(cb LocationCallbacks) {
	m.mu.Lock()
	m.locCb = cb
	m.mu.Unlock()
}

func (m *Mock) StartUpdates(profile power.SamplingProfile) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StartCalls++
	m.ActiveProfile = profile
	m.Continuous = true
	m.SignificantActive = false
	return nil
}

func (m *Mock) StartSignificantChange() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SignificantCalls++
	m.Continuous = false
	m.SignificantActive = true
	return nil
}

func (m *Mock) StopUpdates() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.StopCalls++
	m.Continuous = false
	m.SignificantActive = false
}

// #endregion location-service-impl

// #region region-monitor-impl

func (m *Mock) SetRegionCallbacks(cb RegionCallbacks) {
	m.mu.Lock()
	m.regCb = cb
	m.mu.Unlock()
}

// SetCallbacks for RegionMonitor would collide with the LocationService
// method, so Mock satisfies RegionMonitor through the regionFacet wrapper.

// RegionFacet returns the Mock viewed as a RegionMonitor.
func (m *Mock) RegionFacet() RegionMonitor {
	return &regionFacet{m}
}

type regionFacet struct{ m *Mock }

func (f *regionFacet) SetCallbacks(cb RegionCallbacks) { f.m.SetRegionCallbacks(cb) }
func (f *regionFacet) Install(r Region) error { return f.m.install(r) }
func (f *regionFacet) Remove(regionID string) error { return f.m.remove(regionID) }

func (m *Mock) install(r Region) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.InstallErr != nil && (len(m.FailIDs) == 0 || m.FailIDs[r.ID]) {
		return m.InstallErr
	}
	if _, exists := m.installed[r.ID]; !exists {
		m.installOrder = append(m.installOrder, r.ID)
	}
	m.installed[r.ID] = r
	return nil
}

func (m *Mock) remove(regionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.RemoveCalls++
	if _, ok := m.installed[regionID]; !ok {
		return fmt.Errorf("region %s not installed", regionID)
	}
	delete(m.installed, regionID)
	for i, id := range m.installOrder {
		if id == regionID {
			m.installOrder = append(m.installOrder[:i], m.installOrder[i+1:]...)
			break
		}
	}
	return nil
}

// #endregion region-monitor-impl

// #region test-helpers

// InstalledCount returns the number of currently installed regions.
func (m *Mock) InstalledCount() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.installed)
}

// InstalledIDs returns region IDs in installation order.
func (m *Mock) InstalledIDs() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.installOrder))
	copy(out, m.installOrder)
	return out
}

// Installed reports whether a region with the given ID is installed.
func (m *Mock) Installed(regionID string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.installed[regionID]
	return ok
}

// SetAuthorization flips the stored status and fires OnAuthorizationChanged,
// as the platform does when the user acts in system settings.
func (m *Mock) SetAuthorization(status AuthorizationStatus) {
	m.mu.Lock()
	m.status = status
	cb := m.locCb.OnAuthorizationChanged
	m.mu.Unlock()
	if cb != nil {
		cb(status)
	}
}

// EmitPosition delivers a position to the registered location callback.
func (m *Mock) EmitPosition(p geo.Position) {
	m.mu.Lock()
	cb := m.locCb.OnPosition
	m.mu.Unlock()
	if cb != nil {
		cb(p)
	}
}

// EmitError delivers a location error to the registered callback.
func (m *Mock) EmitError(err error) {
	m.mu.Lock()
	cb := m.locCb.OnError
	m.mu.Unlock()
	if cb != nil {
		cb(err)
	}
}

// EmitEnter fires a region-entry callback for the given region ID.
func (m *Mock) EmitEnter(regionID string) {
	m.mu.Lock()
	cb := m.regCb.OnEnter
	m.mu.Unlock()
	if cb != nil {
		cb(regionID)
	}
}

// EmitExit fires a region-exit callback for the given region ID.
func (m *Mock) EmitExit(regionID string) {
	m.mu.Lock()
	cb := m.regCb.OnExit
	m.mu.Unlock()
	if cb != nil {
		cb(regionID)
	}
}

// #endregion test-helpers
