package types

import (
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/common"
)

const (
	DefaultDomainVersion = "0.1.0"
	DefaultChainId       = uint64(1)

	DefaultRecipientName    = "Vitalik"
	DefaultRecipientAddress = "0xAb5801a7D398351b8bE11C439e05C5B3259aeC9B"
)

// MailSchema is the Person/Message schema the signing surface offers for typed-data signing
func MailSchema() TypeSchema {
	return TypeSchema{
		PrimaryType: "Message",
		Types: []TypeDefinition{
			{
				Name: "Person",
				Fields: []Field{
					{Name: "name", Type: "string"},
					{Name: "wallet", Type: "address"},
				},
			},
			{
				Name: "Message",
				Fields: []Field{
					{Name: "from", Type: "Person"},
					{Name: "to", Type: "Person"},
					{Name: "message", Type: "string"},
					{Name: "timestamp", Type: "uint256"},
				},
			},
		},
	}
}

// NewMailTypedData builds a Message value from `from` to `to`. timestampMillis is Unix milliseconds.
func NewMailTypedData(
	domain DomainDescriptor,
	fromName string,
	from common.Address,
	toName string,
	to common.Address,
	message string,
	timestampMillis int64,
) *SigningRequest {
	value := StructuredValue{
		"from": map[string]interface{}{
			"name":   fromName,
			"wallet": from,
		},
		"to": map[string]interface{}{
			"name":   toName,
			"wallet": to,
		},
		"message":   message,
		"timestamp": big.NewInt(timestampMillis),
	}
	return NewTypedDataRequest(domain, MailSchema(), value)
}

// DefaultFromName is the sender display name derived from the domain name
func DefaultFromName(domain DomainDescriptor) string {
	return fmt.Sprintf("%s User", domain.Name)
}
