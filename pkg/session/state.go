package session

import (
	"github.com/Layr-Labs/eigenx-signing-go/pkg/errorPresenter"
	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
)

type State string

const (
	StateIdle       State = "Idle"
	StateRequesting State = "Requesting"
	StateVerifying  State = "Verifying"
	StateAccepted   State = "Accepted"
	StateRejected   State = "Rejected"
)

var AllStates = []State{StateIdle, StateRequesting, StateVerifying, StateAccepted, StateRejected}

// IsTerminal reports whether no further transition happens without a new submit
func (s State) IsTerminal() bool {
	return s == StateAccepted || s == StateRejected
}

// IsPending reports whether a request is waiting on the signer or on verification
func (s State) IsPending() bool {
	return s == StateRequesting || s == StateVerifying
}

// Snapshot is a consistent view of a session for the presentation layer
type Snapshot struct {
	State          State                          `json:"state"`
	Generation     uint64                         `json:"generation"`
	RequestId      string                         `json:"requestId,omitempty"`
	Kind           types.RequestKind              `json:"kind,omitempty"`
	ExpectedSigner *common.Address                `json:"expectedSigner,omitempty"`
	Digest         *common.Hash                   `json:"digest,omitempty"`
	Result         *types.SignatureResult         `json:"result,omitempty"`
	Failure        *types.FailureReason           `json:"failure,omitempty"`
	LastError      *errorPresenter.PresentedError `json:"lastError,omitempty"`
}

// Outcome is the single terminal result of a non-superseded request
type Outcome struct {
	Generation uint64                 `json:"generation"`
	RequestId  string                 `json:"requestId,omitempty"`
	State      State                  `json:"state"`
	Result     *types.SignatureResult `json:"result,omitempty"`
	Reason     *types.FailureReason   `json:"reason,omitempty"`
}

// Update is delivered to subscribers after every change. Outcome is set only
// on the update that ends a request.
type Update struct {
	Snapshot Snapshot `json:"snapshot"`
	Outcome  *Outcome `json:"outcome,omitempty"`
}
