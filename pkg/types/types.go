package types

import (
	"fmt"

	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
)

// RequestKind discriminates the SigningRequest variants
type RequestKind string

const (
	RequestKindPlainMessage RequestKind = "personalSign"
	RequestKindTypedData    RequestKind = "signTypedData"
)

func (k RequestKind) String() string {
	return string(k)
}

// ParseRequestKind accepts the wire names as well as the short aliases used by the CLIs
func ParseRequestKind(s string) (RequestKind, error) {
	switch s {
	case string(RequestKindPlainMessage), "personal", "plain":
		return RequestKindPlainMessage, nil
	case string(RequestKindTypedData), "typed", "eip712":
		return RequestKindTypedData, nil
	default:
		return "", fmt.Errorf("unsupported signature method: %s", s)
	}
}

// PlainMessage is an opaque byte string signed with the personal message scheme
type PlainMessage struct {
	Content []byte `json:"content"`
}

// DomainDescriptor binds a typed-data signature to an application, version and chain
type DomainDescriptor struct {
	Name    string `json:"name"`
	Version string `json:"version"`
	ChainId uint64 `json:"chainId"`
}

// Field is a single (name, type) pair of a struct type
type Field struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

// TypeDefinition is a named struct type with its fields in declaration order
type TypeDefinition struct {
	Name   string  `json:"name"`
	Fields []Field `json:"fields"`
}

// TypeSchema is an ordered list of struct types plus the root type of the value.
// Types are kept in a slice so hashing never depends on map iteration order.
type TypeSchema struct {
	PrimaryType string           `json:"primaryType"`
	Types       []TypeDefinition `json:"types"`
}

// Lookup returns the type definition with the given name
func (ts *TypeSchema) Lookup(name string) (*TypeDefinition, bool) {
	for i := range ts.Types {
		if ts.Types[i].Name == name {
			return &ts.Types[i], true
		}
	}
	return nil, false
}

// StructuredValue is a nested value conforming to the schema's primary type
type StructuredValue = map[string]interface{}

type TypedData struct {
	Domain DomainDescriptor `json:"domain"`
	Schema TypeSchema       `json:"schema"`
	Value  StructuredValue  `json:"value"`
}

// SigningRequest is a tagged variant: exactly one of Plain or Typed is set, selected by Kind
type SigningRequest struct {
	Kind  RequestKind   `json:"kind"`
	Plain *PlainMessage `json:"plain,omitempty"`
	Typed *TypedData    `json:"typed,omitempty"`
}

func NewPlainMessageRequest(content []byte) *SigningRequest {
	return &SigningRequest{
		Kind:  RequestKindPlainMessage,
		Plain: &PlainMessage{Content: content},
	}
}

func NewTypedDataRequest(domain DomainDescriptor, schema TypeSchema, value StructuredValue) *SigningRequest {
	return &SigningRequest{
		Kind: RequestKindTypedData,
		Typed: &TypedData{
			Domain: domain,
			Schema: schema,
			Value:  value,
		},
	}
}

// SignatureResult is an accepted signature together with the digest it covers
type SignatureResult struct {
	Signature hexutil.Bytes `json:"signature"`
	Digest    common.Hash   `json:"digest"`
}

type VerificationOutcome struct {
	Valid            bool           `json:"valid"`
	RecoveredAddress common.Address `json:"recoveredAddress"`
}
