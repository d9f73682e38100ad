package report

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/iedlink/iedlink-go/pkg/interaction"
	"github.com/iedlink/iedlink-go/pkg/log"
	"github.com/iedlink/iedlink-go/pkg/model"
	"github.com/iedlink/iedlink-go/pkg/wire"
)

// Subscription errors.
var (
	// ErrCommitRejected is returned when the device refuses a commit. It
	// wraps the device's *interaction.StatusError.
	ErrCommitRejected = errors.New("RCB commit rejected")

	ErrUnbound      = errors.New("RCB values not read yet")
	ErrNoFields     = errors.New("no RCB fields selected")
	ErrUnknownField = errors.New("unknown RCB field")
	ErrInvalidValue = errors.New("invalid RCB value")
)

// State is the lifecycle state of a Subscription.
type State uint8

const (
	// StateUnbound means the remote values have not been read.
	StateUnbound State = iota
	// StateBound means the values are known and reporting is disabled.
	StateBound
	// StateEnabled means reporting was enabled by a successful commit (or
	// was already enabled on the device).
	StateEnabled
)

// String returns the state name.
func (s State) String() string {
	switch s {
	case StateUnbound:
		return "UNBOUND"
	case StateBound:
		return "BOUND"
	case StateEnabled:
		return "ENABLED"
	default:
		return "UNKNOWN"
	}
}

// RCBService reads and writes report control blocks on the device.
type RCBService interface {
	GetRCBValues(ctx context.Context, ref model.ObjectReference) (*wire.RCBValues, error)
	SetRCBValues(ctx context.Context, ref model.ObjectReference, values *wire.RCBValues) error
}

// SubscriptionConfig carries optional collaborators of a Subscription.
type SubscriptionConfig struct {
	Logger         *slog.Logger
	ProtocolLogger log.Logger
	ConnID         string
}

// Subscription manages one remote report control block. Edits are staged
// locally and written by Commit; the committed copy only changes when the
// device accepts a write.
type Subscription struct {
	ref        model.ObjectReference
	svc        RCBService
	dispatcher *Dispatcher
	config     SubscriptionConfig
	logger     *slog.Logger
	plog       log.Logger

	// commitMu serializes device I/O; mu guards the fields below.
	commitMu sync.Mutex
	mu       sync.Mutex

	state     State
	staged    RCB
	committed RCB

	handler      Handler
	registeredID string
}

// NewSubscription creates an unbound subscription for the RCB at ref.
func NewSubscription(ref model.ObjectReference, svc RCBService, dispatcher *Dispatcher, config SubscriptionConfig) *Subscription {
	logger := config.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	return &Subscription{
		ref:        ref,
		svc:        svc,
		dispatcher: dispatcher,
		config:     config,
		logger:     logger.With("rcb", string(ref)),
		plog:       log.OrNoop(config.ProtocolLogger),
		staged:     RCB{Reference: ref},
		committed:  RCB{Reference: ref},
	}
}

// Reference returns the RCB reference.
func (s *Subscription) Reference() model.ObjectReference {
	return s.ref
}

// State returns the current state.
func (s *Subscription) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Staged returns a copy of the staged values.
func (s *Subscription) Staged() RCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.staged
}

// Committed returns a copy of the last values read from or accepted by
// the device.
func (s *Subscription) Committed() RCB {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.committed
}

// GetValues reads the RCB from the device into both the staged and the
// committed copy.
func (s *Subscription) GetValues(ctx context.Context) (RCB, error) {
	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	v, err := s.svc.GetRCBValues(ctx, s.ref)
	if err != nil {
		return RCB{}, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	rcb := RCB{Reference: s.ref}
	rcb.apply(v)
	s.committed = rcb
	s.staged = rcb

	newState := StateBound
	if rcb.Enabled {
		newState = StateEnabled
	}
	s.setState(newState, "values read")
	s.syncRegistration()
	return rcb, nil
}

// SetTriggerOptions stages the trigger options.
func (s *Subscription) SetTriggerOptions(t TriggerOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.TriggerOptions = t
}

// SetIntegrityPeriod stages the integrity period.
func (s *Subscription) SetIntegrityPeriod(d time.Duration) error {
	d, err := checkPeriod("integrity period", d)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.IntegrityPeriod = d
	return nil
}

// SetBufferTime stages the buffer time.
func (s *Subscription) SetBufferTime(d time.Duration) error {
	d, err := checkPeriod("buffer time", d)
	if err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.BufferTime = d
	return nil
}

// SetEnabled stages the report enable flag.
func (s *Subscription) SetEnabled(enabled bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.Enabled = enabled
}

// SetGeneralInterrogation stages a general interrogation request.
func (s *Subscription) SetGeneralInterrogation(gi bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.GeneralInterrogation = gi
}

// SetReportID stages the report ID.
func (s *Subscription) SetReportID(id string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.ReportID = id
}

// SetDataSet stages the dataset reference.
func (s *Subscription) SetDataSet(ref model.ObjectReference) error {
	if err := ref.Validate(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.staged.DataSet = ref
	return nil
}

// Commit writes exactly the selected staged fields in one request. On
// failure the staged copy is kept as is. A device refusal is returned as
// ErrCommitRejected.
//
// A committed GI request is one-shot: both copies read back false after
// a successful commit.
func (s *Subscription) Commit(ctx context.Context, fields ...Field) error {
	if len(fields) == 0 {
		return ErrNoFields
	}

	s.commitMu.Lock()
	defer s.commitMu.Unlock()

	s.mu.Lock()
	if s.state == StateUnbound {
		s.mu.Unlock()
		return ErrUnbound
	}
	staged := s.staged
	wasEnabled := s.committed.Enabled
	values, err := staged.values(fields)
	if err != nil {
		s.mu.Unlock()
		return err
	}

	enabling := hasField(fields, FieldEnabled) && staged.Enabled
	if hasField(fields, FieldGI) && staged.GeneralInterrogation && !wasEnabled && !enabling {
		s.logger.Warn("general interrogation requested while reporting is disabled")
	}

	// Open the gate before the request goes out: the device may push the
	// first report right behind its response. A report ID written in the
	// same commit is bound up front for the same reason.
	opened := ""
	prebound := ""
	if enabling && !wasEnabled && s.handler != nil {
		id := s.registeredID
		if hasField(fields, FieldReportID) {
			if newID := staged.EffectiveReportID(); newID != id && !s.dispatcher.Registered(newID) {
				if err := s.dispatcher.Register(newID, s.ref, s.handler); err != nil {
					s.mu.Unlock()
					return err
				}
				prebound = newID
				id = newID
			}
		}
		if id != "" && prebound == "" {
			s.dispatcher.SetActive(id, true)
			opened = id
		}
	}
	s.mu.Unlock()

	s.logger.Debug("committing RCB fields", "fields", fmt.Sprint(fields))
	err = s.svc.SetRCBValues(ctx, s.ref, values)

	s.mu.Lock()
	defer s.mu.Unlock()

	if err != nil {
		if opened != "" {
			s.dispatcher.SetActive(opened, false)
		}
		if prebound != "" {
			s.dispatcher.Unregister(prebound)
		}
		var se *interaction.StatusError
		if errors.As(err, &se) {
			s.logger.Warn("RCB commit rejected", "fields", fmt.Sprint(fields), "status", se.Status)
			return fmt.Errorf("%w: %w", ErrCommitRejected, err)
		}
		return err
	}

	s.committed.copyFields(&staged, fields)
	if hasField(fields, FieldGI) {
		s.committed.GeneralInterrogation = false
		s.staged.GeneralInterrogation = false
	}

	if prebound != "" {
		switch {
		case s.handler == nil:
			s.dispatcher.Unregister(prebound)
		case s.registeredID != prebound:
			if s.registeredID != "" {
				s.dispatcher.Unregister(s.registeredID)
			}
			s.registeredID = prebound
		}
	}

	if hasField(fields, FieldEnabled) {
		if staged.Enabled {
			s.setState(StateEnabled, "enabled")
		} else {
			s.setState(StateBound, "disabled")
		}
	}
	s.syncRegistration()
	return nil
}

// Register binds handler to the report ID of this RCB. In the unbound
// state the handler is kept and bound once GetValues learns the ID.
func (s *Subscription) Register(handler Handler) error {
	if handler == nil {
		return fmt.Errorf("register %s: nil handler", s.ref)
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handler = handler
	if s.registeredID != "" {
		s.dispatcher.Unregister(s.registeredID)
		s.registeredID = ""
	}
	return s.bind()
}

// Unregister removes the handler.
func (s *Subscription) Unregister() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.handler = nil
	if s.registeredID != "" {
		s.dispatcher.Unregister(s.registeredID)
		s.registeredID = ""
	}
}

// syncRegistration keeps the dispatcher binding on the committed report
// ID and the gate in line with the committed enable flag. Callers hold mu.
func (s *Subscription) syncRegistration() {
	if s.handler == nil {
		return
	}
	if id := s.committed.EffectiveReportID(); id != s.registeredID {
		if s.registeredID != "" {
			s.dispatcher.Unregister(s.registeredID)
			s.registeredID = ""
		}
		if err := s.bind(); err != nil {
			s.logger.Warn("rebinding report handler failed", "error", err)
			return
		}
	}
	s.dispatcher.SetActive(s.registeredID, s.state == StateEnabled)
}

// bind registers the handler under the committed report ID. Callers
// hold mu.
func (s *Subscription) bind() error {
	if s.state == StateUnbound {
		return nil
	}
	id := s.committed.EffectiveReportID()
	if err := s.dispatcher.Register(id, s.ref, s.handler); err != nil {
		return err
	}
	s.registeredID = id
	s.dispatcher.SetActive(id, s.state == StateEnabled)
	return nil
}

// setState records a transition. Callers hold mu.
func (s *Subscription) setState(newState State, reason string) {
	if s.state == newState {
		return
	}
	old := s.state
	s.state = newState
	s.logger.Info("subscription state changed", "oldState", old.String(), "newState", newState.String())
	s.plog.Log(log.Event{
		Timestamp:    time.Now(),
		ConnectionID: s.config.ConnID,
		Layer:        log.LayerService,
		Category:     log.CategoryState,
		LocalRole:    log.RoleClient,
		StateChange: &log.StateChangeEvent{
			Entity:   log.StateEntitySubscription,
			OldState: old.String(),
			NewState: newState.String(),
			Reason:   reason,
		},
	})
}
