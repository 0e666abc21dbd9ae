// Package session drives one signing request at a time through
// Idle -> Requesting -> Verifying -> Accepted | Rejected.
//
// A newer submission supersedes the pending one. Completions that arrive for
// a superseded request are dropped, so a late answer can never overwrite the
// outcome of the request that replaced it.
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/accountProvider"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/digest"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/errorPresenter"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/metrics"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/recovery"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/signer"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"
)

const subscriberBufferSize = 64

// ErrClosed is returned by Submit after Close
var ErrClosed = errors.New("session is closed")

type requestRecord struct {
	generation uint64
	request    *types.SigningRequest
	digest     common.Hash
	expected   common.Address
	meta       *signer.RequestMetadata
	cancel     context.CancelFunc
	startedAt  time.Time
}

type Session struct {
	logger    *zap.Logger
	signer    signer.ISigner
	accounts  accountProvider.IAccountProvider
	presenter *errorPresenter.ErrorPresenter
	metrics   *metrics.Metrics

	baseCtx    context.Context
	baseCancel context.CancelFunc
	wg         sync.WaitGroup

	// serializes signature verification across generations
	verifyMu sync.Mutex

	// orders presenter effects so an older request cannot present after a newer one cleared
	presentMu sync.Mutex

	mu          sync.Mutex
	closed      bool
	state       State
	generation  uint64
	current     *requestRecord
	result      *types.SignatureResult
	failure     *types.FailureReason
	waiters     map[uint64][]chan *Outcome
	subscribers map[uint64]chan Update
	nextSubId   uint64
}

func NewSession(
	s signer.ISigner,
	accounts accountProvider.IAccountProvider,
	presenter *errorPresenter.ErrorPresenter,
	m *metrics.Metrics,
	logger *zap.Logger,
) *Session {
	if m == nil {
		m = metrics.NewMetricsWithRegistry(prometheus.NewRegistry())
	}
	if presenter == nil {
		presenter = errorPresenter.NewErrorPresenter(nil, nil, logger)
	}
	ctx, cancel := context.WithCancel(context.Background())

	sess := &Session{
		logger:      logger,
		signer:      s,
		accounts:    accounts,
		presenter:   presenter,
		metrics:     m,
		baseCtx:     ctx,
		baseCancel:  cancel,
		state:       StateIdle,
		waiters:     make(map[uint64][]chan *Outcome),
		subscribers: make(map[uint64]chan Update),
	}
	sess.recordState(StateIdle)
	presenter.OnChange(func(*errorPresenter.PresentedError) {
		sess.publish(nil)
	})
	return sess
}

// Submit starts signing req with the active account and returns the
// generation that identifies it. Any pending request is superseded.
//
// Without an active account nothing changes except the presented error.
// A request whose digest cannot be built is rejected without reaching the
// signer; its generation is returned together with the failure.
func (s *Session) Submit(ctx context.Context, req *types.SigningRequest) (uint64, error) {
	account, err := s.accounts.ActiveAccount(ctx)
	if err != nil {
		reason := types.NewNoActiveAccount(nil)
		var fr *types.FailureReason
		if errors.As(err, &fr) {
			reason = fr
		}
		s.logger.Sugar().Infow("No active account, request not submitted", "error", err)
		s.presenter.Present(reason)
		return 0, reason
	}

	d, buildErr := digest.Build(req)
	ev := submitEvent{request: req, digest: d, expected: account}
	if buildErr != nil {
		ev.buildErr = signer.ClassifyError(buildErr)
	} else {
		ev.meta = signer.NewRequestMetadata(req, account)
	}

	fx, err := s.transition(ev)
	if err != nil {
		return 0, err
	}
	s.run(fx)
	if ev.buildErr != nil {
		return fx.generation, ev.buildErr
	}
	return fx.generation, nil
}

// ClearError removes the presented error right away
func (s *Session) ClearError() {
	fx, _ := s.transition(clearErrorEvent{})
	s.run(fx)
}

// Snapshot returns the current state of the session
func (s *Session) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe streams every update until cancel is called or the session
// closes. Slow subscribers miss updates rather than block the session.
func (s *Session) Subscribe() (<-chan Update, func()) {
	ch := make(chan Update, subscriberBufferSize)

	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		close(ch)
		return ch, func() {}
	}
	id := s.nextSubId
	s.nextSubId++
	s.subscribers[id] = ch
	s.mu.Unlock()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			s.mu.Lock()
			if _, ok := s.subscribers[id]; ok {
				delete(s.subscribers, id)
				close(ch)
			}
			s.mu.Unlock()
		})
	}
}

// Wait blocks until the request with the given generation ends. A superseded
// request returns ErrSuperseded.
func (s *Session) Wait(ctx context.Context, generation uint64) (*Outcome, error) {
	s.mu.Lock()
	if generation > s.generation || generation == 0 {
		s.mu.Unlock()
		return nil, errors.New("unknown request generation")
	}
	if generation < s.generation {
		s.mu.Unlock()
		return nil, ErrSuperseded
	}
	if s.state.IsTerminal() {
		out := s.outcomeLocked()
		s.mu.Unlock()
		return out, nil
	}
	if s.closed {
		s.mu.Unlock()
		return nil, ErrClosed
	}
	ch := make(chan *Outcome, 1)
	s.waiters[generation] = append(s.waiters[generation], ch)
	s.mu.Unlock()

	select {
	case out, ok := <-ch:
		if !ok || out == nil {
			s.mu.Lock()
			closed := s.closed
			s.mu.Unlock()
			if closed {
				return nil, ErrClosed
			}
			return nil, ErrSuperseded
		}
		return out, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

// ErrSuperseded is returned by Wait for a request replaced by a newer one
var ErrSuperseded = errors.New("request was superseded")

// Close cancels any pending request and waits for in-flight signer calls
func (s *Session) Close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	for id, ch := range s.subscribers {
		delete(s.subscribers, id)
		close(ch)
	}
	for gen, chs := range s.waiters {
		delete(s.waiters, gen)
		for _, ch := range chs {
			close(ch)
		}
	}
	s.mu.Unlock()

	s.baseCancel()
	s.wg.Wait()
	s.presenter.Clear()
}

// ActiveAccount is the account the next submission will be signed with
func (s *Session) ActiveAccount(ctx context.Context) (common.Address, error) {
	return s.accounts.ActiveAccount(ctx)
}

// PresentedError returns the error currently shown to the user
func (s *Session) PresentedError() *errorPresenter.PresentedError {
	return s.presenter.LastError()
}

func (s *Session) callSigner(ctx context.Context, rec *requestRecord) {
	defer s.wg.Done()

	sig, err := s.signer.RequestSignature(ctx, rec.request, rec.digest, rec.meta)
	s.metrics.SignerLatency.Observe(time.Since(rec.startedAt).Seconds())

	var ev event
	if err != nil {
		ev = signerFailedEvent{generation: rec.generation, err: err}
	} else {
		ev = signerCompletedEvent{generation: rec.generation, signature: sig}
	}
	fx, _ := s.transition(ev)
	s.run(fx)
}

func (s *Session) verify(generation uint64, d common.Hash, sig []byte, expected common.Address) {
	s.verifyMu.Lock()
	outcome, err := recovery.Verify(d, sig, expected)
	s.verifyMu.Unlock()

	fx, _ := s.transition(verifiedEvent{
		generation: generation,
		signature:  sig,
		outcome:    outcome,
		err:        err,
	})
	s.run(fx)
}

func (s *Session) snapshotLocked() Snapshot {
	snap := Snapshot{
		State:      s.state,
		Generation: s.generation,
		Failure:    s.failure,
		LastError:  s.presenter.LastError(),
	}
	if s.result != nil {
		r := *s.result
		r.Signature = append([]byte(nil), s.result.Signature...)
		snap.Result = &r
	}
	if rec := s.current; rec != nil {
		if rec.request != nil {
			snap.Kind = rec.request.Kind
		}
		expected := rec.expected
		snap.ExpectedSigner = &expected
		if rec.meta != nil {
			snap.RequestId = rec.meta.RequestId
			d := rec.digest
			snap.Digest = &d
		}
	}
	return snap
}

func (s *Session) outcomeLocked() *Outcome {
	out := &Outcome{
		Generation: s.generation,
		State:      s.state,
		Result:     s.result,
		Reason:     s.failure,
	}
	if s.current != nil && s.current.meta != nil {
		out.RequestId = s.current.meta.RequestId
	}
	return out
}

func (s *Session) publish(outcome *Outcome) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if len(s.subscribers) == 0 {
		return
	}
	update := Update{Snapshot: s.snapshotLocked(), Outcome: outcome}
	for _, ch := range s.subscribers {
		select {
		case ch <- update:
		default:
			s.logger.Sugar().Warnw("Dropping session update for slow subscriber", "generation", update.Snapshot.Generation)
		}
	}
}

func (s *Session) recordState(state State) {
	for _, st := range AllStates {
		v := 0.0
		if st == state {
			v = 1
		}
		s.metrics.SessionState.WithLabelValues(string(st)).Set(v)
	}
}
