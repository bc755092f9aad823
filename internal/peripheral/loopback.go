package peripheral

import "sync"

// Loopback is an in-process Transport used by integration tests and by
// `trainer run --loopback`. It never talks to a real BLE host stack; it
// just records what was registered, advertised, and pushed, optionally
// simulating a not-ready transport for backpressure tests.
type Loopback struct {
	mu sync.Mutex

	services       []ServiceDef
	advertising    bool
	localName      string
	serviceUUIDs   []string
	updates        []pendingUpdate
	failNextN      int
	stopAdvertised bool
}

// NewLoopback returns an empty Loopback transport.
func NewLoopback() *Loopback {
	return &Loopback{}
}

// AddService records the service definition. Always succeeds.
func (l *Loopback) AddService(def ServiceDef) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.services = append(l.services, def)
	return nil
}

// StartAdvertising records the advertised name and service list.
func (l *Loopback) StartAdvertising(localName string, serviceUUIDs []string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advertising = true
	l.localName = localName
	l.serviceUUIDs = serviceUUIDs
	return nil
}

// StopAdvertising marks advertising stopped.
func (l *Loopback) StopAdvertising() error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.advertising = false
	l.stopAdvertised = true
	return nil
}

// FailNextUpdates makes the next n calls to UpdateValue report
// not-ready, exercising the coordinator's backpressure queue.
func (l *Loopback) FailNextUpdates(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.failNextN = n
}

// UpdateValue records the update and reports readiness per
// FailNextUpdates.
func (l *Loopback) UpdateValue(charUUID string, payload []byte) bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.failNextN > 0 {
		l.failNextN--
		return false
	}
	cp := make([]byte, len(payload))
	copy(cp, payload)
	l.updates = append(l.updates, pendingUpdate{charUUID: charUUID, payload: cp})
	return true
}

// RespondToRead is a no-op for the loopback transport.
func (l *Loopback) RespondToRead(charUUID string, payload []byte) error { return nil }

// RespondToWrite is a no-op for the loopback transport.
func (l *Loopback) RespondToWrite(charUUID string) error { return nil }

// Updates returns a copy of every value successfully pushed so far, in
// submission order.
func (l *Loopback) Updates() []pendingUpdate {
	l.mu.Lock()
	defer l.mu.Unlock()
	out := make([]pendingUpdate, len(l.updates))
	copy(out, l.updates)
	return out
}

// IsAdvertising reports whether StartAdvertising has been called more
// recently than StopAdvertising.
func (l *Loopback) IsAdvertising() bool {
	l.mu.Lock()
	defer l.mu.Unlock()
	return l.advertising
}
