package engine

import "sync"

// State is a lifecycle state of the orchestrator's state machine (C8).
type State string

const (
	StateStandby  State = "standby"
	StateIndexing State = "indexing"
	StateIndexed  State = "indexed"
	StateError    State = "error"
)

// ProgressEvent is delivered to observers on every state transition.
type ProgressEvent struct {
	State     State
	Message   string
	Processed int
	Total     int
}

// Observer receives progress events. Called synchronously on the
// goroutine driving the transition; must not block.
type Observer func(ProgressEvent)

// stateManager tracks lifecycle state and notifies observers, per C8.
// Transitions: Standby -> Indexing on first turn/search, Indexing ->
// Indexed on success, any -> Error on unrecoverable failure, Error ->
// Standby on explicit clear.
type stateManager struct {
	mu        sync.Mutex
	state     State
	observers []Observer
}

func newStateManager() *stateManager {
	return &stateManager{state: StateStandby}
}

// Subscribe registers obs and returns a function that unsubscribes it.
func (m *stateManager) Subscribe(obs Observer) func() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.observers = append(m.observers, obs)
	idx := len(m.observers) - 1
	return func() {
		m.mu.Lock()
		defer m.mu.Unlock()
		if idx < len(m.observers) {
			m.observers[idx] = nil
		}
	}
}

// State returns the current lifecycle state.
func (m *stateManager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

func (m *stateManager) toIndexing(message string) { m.transition(StateIndexing, message, 0, 0) }
func (m *stateManager) toIndexed(message string)   { m.transition(StateIndexed, message, 0, 0) }
func (m *stateManager) toStandby(message string)   { m.transition(StateStandby, message, 0, 0) }

// toError is reachable from any state.
func (m *stateManager) toError(err error) {
	msg := "error"
	if err != nil {
		msg = err.Error()
	}
	m.transition(StateError, msg, 0, 0)
}

// progress reports {processed, total} without changing state, e.g. mid-way
// through a multi-step batch.
func (m *stateManager) progress(processed, total int, message string) {
	m.mu.Lock()
	state := m.state
	m.mu.Unlock()
	m.notify(ProgressEvent{State: state, Message: message, Processed: processed, Total: total})
}

func (m *stateManager) transition(to State, message string, processed, total int) {
	m.mu.Lock()
	m.state = to
	m.mu.Unlock()
	m.notify(ProgressEvent{State: to, Message: message, Processed: processed, Total: total})
}

func (m *stateManager) notify(ev ProgressEvent) {
	m.mu.Lock()
	observers := append([]Observer(nil), m.observers...)
	m.mu.Unlock()
	for _, obs := range observers {
		if obs != nil {
			obs(ev)
		}
	}
}
