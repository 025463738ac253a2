package session

// Phase is the session phase.
type Phase string

const (
	PhaseDisconnected Phase = "disconnected"
	PhaseConnected    Phase = "connected"
)

// State is an immutable snapshot of the session. Transitions return a new value.
type State struct {
	LinkUp bool  `json:"linkUp"`
	Phase  Phase `json:"phase"`

	RPCSubscribed        bool `json:"rpcSubscribed"`
	FirmwareInfoSent     bool `json:"firmwareInfoSent"`
	AttributesSubscribed bool `json:"attributesSubscribed"`

	// Generation identifies the platform connection the flags belong to.
	Generation uint64 `json:"generation"`
}

// Initial is the state at startup.
func Initial() State {
	return State{Phase: PhaseDisconnected}
}

func (s State) Connected() bool {
	return s.Phase == PhaseConnected
}

// SetupComplete reports whether every one-time setup action succeeded.
func (s State) SetupComplete() bool {
	return s.RPCSubscribed && s.FirmwareInfoSent && s.AttributesSubscribed
}

// Disconnect drops the session. Setup flags are cleared with it.
func (s State) Disconnect(linkUp bool) State {
	return State{LinkUp: linkUp, Phase: PhaseDisconnected, Generation: s.Generation}
}

// Connect enters the connected phase for connection generation gen with
// every setup flag false.
func (s State) Connect(gen uint64) State {
	return State{LinkUp: true, Phase: PhaseConnected, Generation: gen}
}

func (s State) WithRPCSubscribed() State {
	s.RPCSubscribed = true
	return s
}

func (s State) WithFirmwareInfoSent() State {
	s.FirmwareInfoSent = true
	return s
}

func (s State) WithAttributesSubscribed() State {
	s.AttributesSubscribed = true
	return s
}
