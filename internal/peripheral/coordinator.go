package peripheral

import (
	"sync"
	"time"

	"github.com/kestrelcycling/trainer-core/internal/eventlog"
	"github.com/kestrelcycling/trainer-core/internal/ftms"
	"github.com/kestrelcycling/trainer-core/internal/gatt"
	"github.com/kestrelcycling/trainer-core/internal/scheduler"
	"github.com/kestrelcycling/trainer-core/internal/simulation"
)

// State is the coordinator's top-level lifecycle state.
type State int

const (
	StateIdle State = iota
	StateStarting
	StateAdvertising
	StateStopped
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateStarting:
		return "starting"
	case StateAdvertising:
		return "advertising"
	case StateStopped:
		return "stopped"
	case StateFailed:
		return "failed"
	default:
		return "unknown"
	}
}

// Config holds the coordinator's construction-time options.
type Config struct {
	LocalName string

	EnableFTMS bool
	EnableCPS  bool
	EnableRSC  bool

	IncludePower   bool
	IncludeCadence bool

	// Strict, when true, would require RequestControl to fail while
	// another controller holds the connection. Not wired to any
	// behavior in this revision (see DESIGN.md).
	Strict bool

	Randomness int
	RideWheelCircM float64
	CPSWheelCircM  float64
}

type pendingUpdate struct {
	charUUID string
	payload  []byte
}

// Coordinator owns the top-level lifecycle: the only stateful mutation
// path in the system. All of its methods are expected to run on a
// single logical event-loop thread; the mutex below guards against
// transport callbacks arriving on a different goroutine, not against
// genuine concurrent coordinator use.
type Coordinator struct {
	mu sync.Mutex

	cfg       Config
	transport Transport
	scheduler *scheduler.Scheduler
	engine    *simulation.Engine
	ftmsm     *ftms.Machine
	log       *eventlog.Log

	control      ftms.ControlState
	counters     RollingCounters
	pending      []pendingUpdate
	subscribers  map[string]int
	state        State
	isAdvertising bool
	lastError    string
	startTime    time.Time

	cachedCadence float64
	lastPower     int
	lastSpeedMps  float64
	manualCadence *int

	// OnSnapshot, when set, is invoked after every tick with the latest
	// published LiveStats-shaped values. The coordinator itself has no
	// notion of a websocket; publisher.Publisher satisfies this shape.
	OnSnapshot func(Snapshot)

	transportReady bool
	pendingStart   *startRequest
}

type startRequest struct {
	name string
}

// Snapshot is the subset of coordinator state meaningful to an external
// observer (UI, tests).
type Snapshot struct {
	State           string
	IsAdvertising   bool
	SubscriberCount int
	LastError       string
	GradePct        float64
	Sim             simulation.SimulationState
}

// New builds a coordinator bound to the given transport and engine.
// ControlState starts with hasControl=true, isStarted=true, and
// targetPower=250W per the documented startup defaults.
func New(transport Transport, engine *simulation.Engine, cfg Config) *Coordinator {
	if cfg.RideWheelCircM == 0 {
		cfg.RideWheelCircM = simulation.RideWheelCircumferenceM
	}
	if cfg.CPSWheelCircM == 0 {
		cfg.CPSWheelCircM = simulation.CPSWheelCircumferenceM
	}
	c := &Coordinator{
		cfg:         cfg,
		transport:   transport,
		engine:      engine,
		ftmsm:       ftms.NewMachine(),
		log:         eventlog.New(),
		subscribers: make(map[string]int),
		state:       StateIdle,
		control: ftms.ControlState{
			HasControl:   true,
			IsStarted:    true,
			TargetPowerW: 250,
		},
	}
	c.scheduler = scheduler.New(scheduler.Delegates{
		OnFTMS:         c.tickFTMS,
		OnCPS:          c.tickCPS,
		OnRSC:          c.tickRSC,
		CurrentCadence: c.CurrentCadence,
	})
	return c
}

// CurrentCadence returns the most recently computed cadence. Read by the
// scheduler's CPS delegate instead of re-invoking the engine, so a CPS
// tick never double-advances the simulation.
func (c *Coordinator) CurrentCadence() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.cachedCadence
}

// StartBroadcast sets up the enabled services and begins advertising. If
// the transport is not yet ready, the request is queued and replayed
// once TransportReady fires.
func (c *Coordinator) StartBroadcast(name string) {
	c.mu.Lock()
	if !c.transportReady {
		c.pendingStart = &startRequest{name: name}
		c.mu.Unlock()
		c.log.Add(eventlog.Info, eventlog.CategoryLifecycle, "start requested before transport ready; queued", nil)
		return
	}
	c.mu.Unlock()
	c.doStartBroadcast(name)
}

func (c *Coordinator) doStartBroadcast(name string) {
	c.mu.Lock()
	c.state = StateStarting
	c.startTime = time.Now()
	c.mu.Unlock()

	uuids := make([]string, 0, 3)
	defs := c.buildServiceDefs()
	for _, def := range defs {
		if err := c.transport.AddService(def); err != nil {
			c.mu.Lock()
			c.state = StateFailed
			c.lastError = err.Error()
			c.mu.Unlock()
			c.log.Add(eventlog.ErrorSeverity, eventlog.CategoryLifecycle,
				"service add failed", map[string]string{"service": def.UUID, "error": err.Error()})
			return
		}
		uuids = append(uuids, def.UUID)
	}

	if err := c.transport.StartAdvertising(name, uuids); err != nil {
		c.mu.Lock()
		c.state = StateFailed
		c.isAdvertising = false
		c.lastError = err.Error()
		c.mu.Unlock()
		c.log.Add(eventlog.ErrorSeverity, eventlog.CategoryLifecycle,
			"advertising failed", map[string]string{"error": err.Error()})
		return
	}

	c.mu.Lock()
	c.state = StateAdvertising
	c.isAdvertising = true
	c.mu.Unlock()
	c.scheduler.Start()
	c.log.Add(eventlog.Info, eventlog.CategoryLifecycle, "advertising started", map[string]string{"name": name})
}

func (c *Coordinator) buildServiceDefs() []ServiceDef {
	var defs []ServiceDef
	if c.cfg.EnableFTMS {
		defs = append(defs, ServiceDef{
			UUID: ServiceFTMS,
			Characteristics: []CharacteristicDef{
				{UUID: CharFTMSFeature, Description: "Fitness Machine Feature", Read: true, StaticValue: gatt.EncodeFTMSFeature()},
				{UUID: CharIndoorBikeData, Description: "Indoor Bike Data", Notify: true},
				{UUID: CharFitnessMachineStatus, Description: "Fitness Machine Status", Notify: true},
				{UUID: CharFTMSControlPoint, Description: "Control Point", Write: true, Notify: true},
				{UUID: CharFTMSSupportedPowerRange, Description: "Supported Power Range", Read: true, StaticValue: gatt.EncodeFTMSSupportedPowerRange()},
			},
		})
	}
	if c.cfg.EnableCPS {
		defs = append(defs, ServiceDef{
			UUID: ServiceCPS,
			Characteristics: []CharacteristicDef{
				{UUID: CharCPSMeasurement, Description: "CP Measurement", Notify: true},
				{UUID: CharCPSFeature, Description: "CP Feature", Read: true, StaticValue: []byte{0x08, 0x00, 0x00, 0x00}},
				{UUID: CharSensorLocation, Description: "Sensor Location", Read: true, StaticValue: []byte{13}},
			},
		})
	}
	if c.cfg.EnableRSC {
		defs = append(defs, ServiceDef{
			UUID: ServiceRSC,
			Characteristics: []CharacteristicDef{
				{UUID: CharRSCMeasurement, Description: "RSC Measurement", Notify: true},
				{UUID: CharRSCFeature, Description: "RSC Feature", Read: true, StaticValue: []byte{0x00, 0x00}},
				{UUID: CharSensorLocation, Description: "Sensor Location", Read: true, StaticValue: []byte{0}},
			},
		})
	}
	return defs
}

// StopBroadcast halts advertising, stops the scheduler, and clears any
// pending updates or queued start requests.
func (c *Coordinator) StopBroadcast() {
	c.scheduler.Stop()
	_ = c.transport.StopAdvertising()

	c.mu.Lock()
	c.isAdvertising = false
	c.state = StateStopped
	c.pending = nil
	c.pendingStart = nil
	c.mu.Unlock()

	c.log.Add(eventlog.Info, eventlog.CategoryLifecycle, "broadcast stopped", nil)
}

// OnTransportReady drains the pending update queue and replays any
// queued start request.
func (c *Coordinator) OnTransportReady() {
	c.mu.Lock()
	c.transportReady = true
	start := c.pendingStart
	c.pendingStart = nil
	c.mu.Unlock()

	if start != nil {
		c.doStartBroadcast(start.name)
	}
	c.drainPending()
}

// OnTransportUnavailable stops broadcasting and clears all pending
// state; BLE is off, unsupported, or unauthorized.
func (c *Coordinator) OnTransportUnavailable(reason string) {
	c.mu.Lock()
	c.transportReady = false
	c.lastError = reason
	c.mu.Unlock()
	c.StopBroadcast()
	c.log.Add(eventlog.ErrorSeverity, eventlog.CategoryTransport, "transport unavailable", map[string]string{"reason": reason})
}

func (c *Coordinator) drainPending() {
	c.mu.Lock()
	queue := c.pending
	c.pending = nil
	c.mu.Unlock()

	for i, item := range queue {
		if !c.transport.UpdateValue(item.charUUID, item.payload) {
			c.mu.Lock()
			c.pending = append(append([]pendingUpdate{}, queue[i:]...), c.pending...)
			c.mu.Unlock()
			return
		}
	}
}

func (c *Coordinator) enqueueOrSend(charUUID string, payload []byte) {
	if c.transport.UpdateValue(charUUID, payload) {
		return
	}
	c.mu.Lock()
	c.pending = append(c.pending, pendingUpdate{charUUID: charUUID, payload: payload})
	c.mu.Unlock()
	c.log.Add(eventlog.Warn, eventlog.CategoryTransport, "update queued: transport not ready", map[string]string{"char": charUUID})
}

// OnSubscribed bumps the subscriber count for a characteristic; the
// scheduler is started lazily by StartBroadcast, not here.
func (c *Coordinator) OnSubscribed(charUUID string) {
	c.mu.Lock()
	c.subscribers[charUUID]++
	c.mu.Unlock()
}

// OnUnsubscribed decrements the subscriber count, stopping the
// scheduler once nobody is listening to anything.
func (c *Coordinator) OnUnsubscribed(charUUID string) {
	c.mu.Lock()
	if c.subscribers[charUUID] > 0 {
		c.subscribers[charUUID]--
	}
	total := 0
	for _, n := range c.subscribers {
		total += n
	}
	c.mu.Unlock()

	if total == 0 {
		c.scheduler.Stop()
	}
}

func (c *Coordinator) subscriberCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	total := 0
	for _, n := range c.subscribers {
		total += n
	}
	return total
}

// OnWrite handles an inbound write to the Control Point, running the
// protocol machine and applying its StateDelta.
func (c *Coordinator) OnWrite(charUUID string, payload []byte) {
	if charUUID != CharFTMSControlPoint {
		return
	}

	c.mu.Lock()
	snapshot := c.control
	c.mu.Unlock()

	result := c.ftmsm.HandleWrite(snapshot, payload)
	if result.ResponseBytes != nil {
		c.enqueueOrSend(CharFTMSControlPoint, result.ResponseBytes)
	}
	if result.HasImmediateStatus {
		c.enqueueOrSend(CharFitnessMachineStatus, result.ImmediateStatusBytes)
	}
	if result.HasDeferredStatus {
		statusBytes := result.DeferredStatusBytes
		time.AfterFunc(time.Duration(result.DeferredDelayS*float64(time.Second)), func() {
			c.enqueueOrSend(CharFitnessMachineStatus, statusBytes)
		})
	}

	c.applyDelta(result.StateDelta)
	if result.LogMessage != "" {
		c.log.Add(eventlog.Info, eventlog.CategoryControl, result.LogMessage, nil)
	}
}

func (c *Coordinator) applyDelta(d ftms.StateDelta) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if d.HasControlChanged {
		c.control.HasControl = d.HasControl
	}
	if d.IsStartedChanged {
		c.control.IsStarted = d.IsStarted
	}
	if d.TargetPowerWChanged {
		c.control.TargetPowerW = d.TargetPowerW
	}
	if d.TargetSpeedCmpsChanged {
		c.control.TargetSpeedCmps = d.TargetSpeedCmps
	}
	if d.GradePctChanged {
		c.control.GradePct = d.GradePct
	}
	if d.WindSpeedMpsChanged {
		c.control.WindSpeedMps = d.WindSpeedMps
	}
	if d.CrrChanged {
		c.control.Crr = d.Crr
	}
	if d.CwChanged {
		c.control.Cw = d.Cw
	}
	if d.WheelCircMmChanged {
		// SetWheelCircumference overrides the CPS rolling wheel-revolution
		// counter's circumference; see SPEC_FULL.md Open Question 1.
		c.cfg.CPSWheelCircM = float64(d.WheelCircMm) / 1000.0
	}
}

func (c *Coordinator) simInput() simulation.SimulationInput {
	c.mu.Lock()
	defer c.mu.Unlock()
	return simulation.SimulationInput{
		TargetPowerW:     c.control.TargetPowerW,
		GradePct:         c.control.GradePct,
		Randomness:       c.cfg.Randomness,
		IsResting:        !c.control.IsStarted,
		ManualCadenceRPM: c.manualCadence,
	}
}

// SetManualCadence overrides the reported cadence, or clears it when rpm
// is nil (auto mode).
func (c *Coordinator) SetManualCadence(rpm *int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.manualCadence = rpm
}

func (c *Coordinator) tickFTMS() {
	st := c.engine.Update(c.simInput())
	c.recordSnapshot(st)

	includeCadence := c.cfg.IncludeCadence
	includePower := c.cfg.IncludePower
	payload := gatt.EncodeIndoorBikeData(float64(st.CadenceRPM), int16(st.PowerW), includeCadence, includePower)
	c.enqueueOrSend(CharIndoorBikeData, payload)
}

func (c *Coordinator) tickRSC() {
	c.mu.Lock()
	cadence := c.cachedCadence
	c.mu.Unlock()
	payload := gatt.EncodeRSCMeasurement(c.lastSpeed(), cadence)
	c.enqueueOrSend(CharRSCMeasurement, payload)
}

func (c *Coordinator) tickCPS() {
	c.mu.Lock()
	cadence := c.cachedCadence
	power := c.lastPower
	now := time.Since(c.startTime).Seconds()
	cfgCpsWheel := c.cfg.CPSWheelCircM
	c.mu.Unlock()

	dt := 0.25
	c.counters.Advance(dt, cadence, now, cfgCpsWheel)

	payload := gatt.EncodeCPSMeasurement(int16(power), c.counters.WheelRevs, c.counters.WheelEventTime2048,
		c.counters.CrankRevs, c.counters.CrankEventTime1024)
	c.enqueueOrSend(CharCPSMeasurement, payload)
}

func (c *Coordinator) lastSpeed() float64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastSpeedMps
}

func (c *Coordinator) recordSnapshot(st simulation.SimulationState) {
	c.mu.Lock()
	c.cachedCadence = float64(st.CadenceRPM)
	c.lastPower = st.PowerW
	c.lastSpeedMps = st.SpeedMps
	snap := Snapshot{
		State:           c.state.String(),
		IsAdvertising:   c.isAdvertising,
		SubscriberCount: 0,
		LastError:       c.lastError,
		GradePct:        c.control.GradePct,
		Sim:             st,
	}
	cb := c.OnSnapshot
	c.mu.Unlock()

	snap.SubscriberCount = c.subscriberCount()
	if cb != nil {
		cb(snap)
	}
}

// State returns the coordinator's current lifecycle state.
func (c *Coordinator) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// PendingCount reports how many updates are waiting on backpressure;
// exposed for tests.
func (c *Coordinator) PendingCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// ControlSnapshot returns a copy of the current control state, for tests
// and diagnostics.
func (c *Coordinator) ControlSnapshot() ftms.ControlState {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.control
}
