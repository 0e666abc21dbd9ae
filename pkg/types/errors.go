package types

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

// FailureKind classifies why a signing request did not end in Accepted
type FailureKind string

const (
	FailureMalformedRequest         FailureKind = "MalformedRequest"
	FailureNoActiveAccount          FailureKind = "NoActiveAccount"
	FailureUserRejected             FailureKind = "UserRejected"
	FailureSignerError              FailureKind = "SignerError"
	FailureInvalidSignatureEncoding FailureKind = "InvalidSignatureEncoding"
	FailureRecoveryFailed           FailureKind = "RecoveryFailed"
	FailureSignatureMismatch        FailureKind = "SignatureMismatch"
)

// Sentinels for errors.Is; a FailureReason matches the sentinel of its Kind.
var (
	ErrMalformedRequest         = &FailureReason{Kind: FailureMalformedRequest}
	ErrNoActiveAccount          = &FailureReason{Kind: FailureNoActiveAccount}
	ErrUserRejected             = &FailureReason{Kind: FailureUserRejected}
	ErrSignerError              = &FailureReason{Kind: FailureSignerError}
	ErrInvalidSignatureEncoding = &FailureReason{Kind: FailureInvalidSignatureEncoding}
	ErrRecoveryFailed           = &FailureReason{Kind: FailureRecoveryFailed}
	ErrSignatureMismatch        = &FailureReason{Kind: FailureSignatureMismatch}
)

// FailureReason is the terminal failure of one signing request
type FailureReason struct {
	Kind FailureKind

	// RecoveredAddress is only set for SignatureMismatch
	RecoveredAddress *common.Address

	Err error
}

func (f *FailureReason) Error() string {
	switch f.Kind {
	case FailureSignatureMismatch:
		if f.RecoveredAddress != nil {
			return fmt.Sprintf("Invalid signature - Signing Address: %s", f.RecoveredAddress.Hex())
		}
		return "Invalid signature"
	case FailureNoActiveAccount:
		if f.Err == nil {
			return "please connect your wallet"
		}
	case FailureUserRejected:
		if f.Err == nil {
			return "user rejected the signing request"
		}
	}
	if f.Err != nil {
		return fmt.Sprintf("%s: %v", f.Kind, f.Err)
	}
	return string(f.Kind)
}

func (f *FailureReason) Unwrap() error {
	return f.Err
}

// Is matches any FailureReason of the same kind
func (f *FailureReason) Is(target error) bool {
	t, ok := target.(*FailureReason)
	if !ok {
		return false
	}
	return t.Kind == f.Kind
}

func (f *FailureReason) MarshalJSON() ([]byte, error) {
	out := struct {
		Kind             FailureKind     `json:"kind"`
		Message          string          `json:"message"`
		RecoveredAddress *common.Address `json:"recoveredAddress,omitempty"`
	}{
		Kind:             f.Kind,
		Message:          f.Error(),
		RecoveredAddress: f.RecoveredAddress,
	}
	return json.Marshal(out)
}

// UnmarshalJSON restores a reason reported by a server. The cause only
// survives as text.
func (f *FailureReason) UnmarshalJSON(data []byte) error {
	var in struct {
		Kind             FailureKind     `json:"kind"`
		Message          string          `json:"message"`
		RecoveredAddress *common.Address `json:"recoveredAddress,omitempty"`
	}
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	*f = FailureReason{Kind: in.Kind, RecoveredAddress: in.RecoveredAddress}
	if in.Message != "" && in.Message != f.Error() {
		f.Err = errors.New(strings.TrimPrefix(in.Message, string(in.Kind)+": "))
	}
	return nil
}

func NewMalformedRequest(format string, args ...interface{}) *FailureReason {
	return &FailureReason{Kind: FailureMalformedRequest, Err: fmt.Errorf(format, args...)}
}

func NewNoActiveAccount(err error) *FailureReason {
	return &FailureReason{Kind: FailureNoActiveAccount, Err: err}
}

func NewUserRejected(err error) *FailureReason {
	return &FailureReason{Kind: FailureUserRejected, Err: err}
}

func NewSignerError(err error) *FailureReason {
	return &FailureReason{Kind: FailureSignerError, Err: err}
}

func NewInvalidSignatureEncoding(format string, args ...interface{}) *FailureReason {
	return &FailureReason{Kind: FailureInvalidSignatureEncoding, Err: fmt.Errorf(format, args...)}
}

func NewRecoveryFailed(err error) *FailureReason {
	return &FailureReason{Kind: FailureRecoveryFailed, Err: err}
}

func NewSignatureMismatch(recovered common.Address) *FailureReason {
	return &FailureReason{Kind: FailureSignatureMismatch, RecoveredAddress: &recovered}
}
