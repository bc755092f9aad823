// Package peripheral glues the simulation engine, the FTMS control-point
// machine, the notification scheduler, and the GATT codec behind a
// single BLE-agnostic Transport boundary.
package peripheral

// ServiceDef describes one GATT service to register with the transport.
type ServiceDef struct {
	UUID            string
	Characteristics []CharacteristicDef
}

// CharacteristicDef describes one GATT characteristic, including its
// static read value (if any) and user-facing description.
type CharacteristicDef struct {
	UUID        string
	Description string
	Notify      bool
	Write       bool
	Read        bool
	StaticValue []byte // used for read-only, never-changing characteristics
}

// TransportState reflects the transport's connectivity to the BLE stack.
type TransportState int

const (
	TransportOff TransportState = iota
	TransportReady
	TransportUnavailable
)

// Transport is the boundary the peripheral coordinator drives. A real
// implementation wraps a host BLE stack; tests and demos use the
// in-process Loopback implementation in this package.
type Transport interface {
	AddService(def ServiceDef) error
	StartAdvertising(localName string, serviceUUIDs []string) error
	StopAdvertising() error
	// UpdateValue pushes a notification. false means the transport is
	// not ready to accept more traffic right now; the caller queues.
	UpdateValue(charUUID string, payload []byte) bool
	RespondToRead(charUUID string, payload []byte) error
	RespondToWrite(charUUID string) error
}

// Inbound is the set of callbacks a Transport implementation invokes on
// the coordinator as BLE events occur.
type Inbound interface {
	OnStateChanged(state TransportState)
	OnServiceAdded(uuid string, err error)
	OnAdvertisingStarted(err error)
	OnSubscribed(charUUID string)
	OnUnsubscribed(charUUID string)
	OnRead(charUUID string) []byte
	OnWrite(charUUID string, payload []byte)
	OnReadyToUpdate()
}

// Standard 16-bit SIG service and characteristic UUIDs this peripheral
// advertises.
const (
	ServiceFTMS = "1826"
	ServiceCPS  = "1818"
	ServiceRSC  = "1814"

	CharFTMSFeature             = "2ACC"
	CharIndoorBikeData          = "2AD2"
	CharFitnessMachineStatus    = "2ADA"
	CharFTMSControlPoint        = "2AD9"
	CharFTMSSupportedPowerRange = "2AD8"

	CharCPSMeasurement  = "2A63"
	CharCPSFeature      = "2A65"
	CharSensorLocation  = "2A5D"

	CharRSCMeasurement = "2A53"
	CharRSCFeature     = "2A54"
)
