package session

import (
	"context"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

type event interface {
	name() string
}

type submitEvent struct {
	request  *types.SigningRequest
	digest   common.Hash
	expected common.Address
	meta     *signer.RequestMetadata
	buildErr *types.FailureReason
}

type signerCompletedEvent struct {
	generation uint64
	signature  []byte
}

type signerFailedEvent struct {
	generation uint64
	err        error
}

type verifiedEvent struct {
	generation uint64
	signature  []byte
	outcome    *types.VerificationOutcome
	err        error
}

type clearErrorEvent struct{}

func (submitEvent) name() string          { return "submit" }
func (signerCompletedEvent) name() string { return "signerCompleted" }
func (signerFailedEvent) name() string    { return "signerFailed" }
func (verifiedEvent) name() string        { return "verified" }
func (clearErrorEvent) name() string      { return "clearError" }

type verifyJob struct {
	generation uint64
	digest     common.Hash
	signature  []byte
	expected   common.Address
}

// effects are computed under the session lock and run after it is released
type effects struct {
	generation uint64

	launch    *requestRecord
	launchCtx context.Context
	verify    *verifyJob

	clearError bool
	present    *types.FailureReason

	publish    bool
	outcome    *Outcome
	waiters    []chan *Outcome
	superseded []chan *Outcome
}

// transition is the only place session state changes
func (s *Session) transition(ev event) (*effects, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	fx := &effects{generation: s.generation}
	from := s.state

	switch e := ev.(type) {
	case submitEvent:
		if s.closed {
			return nil, ErrClosed
		}
		if s.state.IsPending() && s.current != nil {
			s.current.cancel()
			s.metrics.RequestsSuperseded.Inc()
			s.logger.Info("Superseding pending signing request",
				zap.Uint64("generation", s.generation),
				zap.String("state", string(s.state)),
			)
		}
		fx.superseded = s.waiters[s.generation]
		delete(s.waiters, s.generation)

		s.generation++
		s.result = nil
		s.failure = nil
		fx.clearError = true

		rec := &requestRecord{
			generation: s.generation,
			request:    e.request,
			digest:     e.digest,
			expected:   e.expected,
			meta:       e.meta,
			startedAt:  time.Now(),
		}
		s.current = rec

		kind := "unknown"
		if e.request != nil && e.request.Kind != "" {
			kind = string(e.request.Kind)
		}
		s.metrics.RequestsSubmitted.WithLabelValues(kind).Inc()

		if e.buildErr != nil {
			s.rejectLocked(e.buildErr, fx)
		} else {
			ctx, cancel := context.WithCancel(s.baseCtx)
			rec.cancel = cancel
			s.state = StateRequesting
			s.wg.Add(1)
			fx.launch = rec
			fx.launchCtx = ctx
			s.logger.Info("Requesting signature",
				zap.Uint64("generation", rec.generation),
				zap.String("requestId", rec.meta.RequestId),
				zap.String("kind", kind),
				zap.String("account", rec.expected.Hex()),
				zap.String("digest", rec.digest.Hex()),
			)
		}
		fx.generation = s.generation
		fx.publish = true

	case signerCompletedEvent:
		if !s.isCurrentLocked(e.generation, StateRequesting) {
			s.dropStaleLocked(ev, e.generation)
			return fx, nil
		}
		s.state = StateVerifying
		fx.verify = &verifyJob{
			generation: e.generation,
			digest:     s.current.digest,
			signature:  append([]byte(nil), e.signature...),
			expected:   s.current.expected,
		}
		fx.publish = true

	case signerFailedEvent:
		if !s.isCurrentLocked(e.generation, StateRequesting) {
			s.dropStaleLocked(ev, e.generation)
			return fx, nil
		}
		s.rejectLocked(signer.ClassifyError(e.err), fx)

	case verifiedEvent:
		if !s.isCurrentLocked(e.generation, StateVerifying) {
			s.dropStaleLocked(ev, e.generation)
			return fx, nil
		}
		switch {
		case e.err != nil:
			s.rejectLocked(signer.ClassifyError(e.err), fx)
		case e.outcome == nil || !e.outcome.Valid:
			var recovered common.Address
			if e.outcome != nil {
				recovered = e.outcome.RecoveredAddress
			}
			s.rejectLocked(types.NewSignatureMismatch(recovered), fx)
		default:
			s.acceptLocked(e.signature, fx)
		}

	case clearErrorEvent:
		fx.clearError = true
	}

	if s.state != from {
		s.recordState(s.state)
		s.logger.Debug("Session transition",
			zap.String("event", ev.name()),
			zap.String("from", string(from)),
			zap.String("to", string(s.state)),
			zap.Uint64("generation", s.generation),
		)
	}
	return fx, nil
}

func (s *Session) isCurrentLocked(generation uint64, expected State) bool {
	return !s.closed &&
		s.current != nil &&
		generation == s.generation &&
		s.state == expected
}

func (s *Session) dropStaleLocked(ev event, generation uint64) {
	if s.closed {
		return
	}
	s.metrics.StaleCompletions.Inc()
	s.logger.Debug("Dropping stale completion",
		zap.String("event", ev.name()),
		zap.Uint64("generation", generation),
		zap.Uint64("current", s.generation),
	)
}

func (s *Session) rejectLocked(reason *types.FailureReason, fx *effects) {
	s.state = StateRejected
	s.failure = reason
	s.result = nil
	if s.current != nil && s.current.cancel != nil {
		s.current.cancel()
	}
	s.metrics.RequestsRejected.WithLabelValues(string(reason.Kind)).Inc()
	s.logger.Info("Signing request rejected",
		zap.Uint64("generation", s.generation),
		zap.String("reason", string(reason.Kind)),
		zap.Error(reason),
	)

	fx.present = reason
	s.finishLocked(fx)
}

func (s *Session) acceptLocked(signature []byte, fx *effects) {
	s.state = StateAccepted
	s.failure = nil
	s.result = &types.SignatureResult{
		Signature: signature,
		Digest:    s.current.digest,
	}
	if s.current.cancel != nil {
		s.current.cancel()
	}
	s.metrics.RequestsAccepted.WithLabelValues(string(s.current.request.Kind)).Inc()
	s.logger.Info("Signature accepted",
		zap.Uint64("generation", s.generation),
		zap.String("signer", s.current.expected.Hex()),
		zap.String("digest", s.current.digest.Hex()),
	)
	s.finishLocked(fx)
}

func (s *Session) finishLocked(fx *effects) {
	fx.outcome = s.outcomeLocked()
	fx.waiters = s.waiters[s.generation]
	delete(s.waiters, s.generation)
	fx.publish = true
}

func (s *Session) run(fx *effects) {
	if fx == nil {
		return
	}
	for _, ch := range fx.superseded {
		close(ch)
	}
	if fx.clearError || fx.present != nil {
		s.runPresenter(fx)
	}
	if fx.publish {
		s.publish(fx.outcome)
	}
	for _, ch := range fx.waiters {
		ch <- fx.outcome
		close(ch)
	}
	if fx.launch != nil {
		go s.callSigner(fx.launchCtx, fx.launch)
	}
	if fx.verify != nil {
		s.verify(fx.verify.generation, fx.verify.digest, fx.verify.signature, fx.verify.expected)
	}
}

// runPresenter drops presenter effects of a generation that is no longer current
func (s *Session) runPresenter(fx *effects) {
	s.presentMu.Lock()
	defer s.presentMu.Unlock()

	s.mu.Lock()
	current := fx.generation == s.generation
	s.mu.Unlock()
	if !current {
		s.logger.Debug("Dropping presenter effect of superseded request", zap.Uint64("generation", fx.generation))
		return
	}

	if fx.clearError {
		s.presenter.Clear()
	}
	if fx.present != nil {
		s.presenter.Present(fx.present)
	}
}
