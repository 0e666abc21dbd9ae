// Package digest computes the 32-byte digests a wallet signs: EIP-191 personal
// messages and EIP-712 typed data bound to a name/version/chainId domain.
package digest

import (
	"math/big"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"golang.org/x/crypto/sha3"
)

// PersonalMessagePrefix is prepended, with the decimal content length, to plain messages
const PersonalMessagePrefix = "\x19Ethereum Signed Message:\n"

// DomainTypeFields is the fixed EIP712Domain definition every typed request is bound to
var DomainTypeFields = []types.Field{
	{Name: "name", Type: "string"},
	{Name: "version", Type: "string"},
	{Name: "chainId", Type: "uint256"},
}

// Build returns the digest a signer must sign for req
func Build(req *types.SigningRequest) (common.Hash, error) {
	if req == nil {
		return common.Hash{}, types.NewMalformedRequest("request is nil")
	}

	switch req.Kind {
	case types.RequestKindPlainMessage:
		if req.Plain == nil || req.Typed != nil {
			return common.Hash{}, types.NewMalformedRequest("personal message request must carry only a plain message")
		}
		if len(req.Plain.Content) == 0 {
			return common.Hash{}, types.NewMalformedRequest("please type a message")
		}
		return PlainMessageHash(req.Plain.Content), nil
	case types.RequestKindTypedData:
		if req.Typed == nil || req.Plain != nil {
			return common.Hash{}, types.NewMalformedRequest("typed data request must carry only typed data")
		}
		return TypedDataHash(req.Typed)
	default:
		return common.Hash{}, types.NewMalformedRequest("unsupported request kind %q", req.Kind)
	}
}

// PlainMessageHash is keccak256(PersonalMessagePrefix || len(content) || content)
func PlainMessageHash(content []byte) common.Hash {
	return common.BytesToHash(accounts.TextHash(content))
}

// TypedDataHash is keccak256(0x19 || 0x01 || domainSeparator || structHash)
func TypedDataHash(td *types.TypedData) (common.Hash, error) {
	apiTd, err := ToAPITypedData(td)
	if err != nil {
		return common.Hash{}, err
	}

	domainSeparator, err := apiTd.HashStruct(EIP712DomainType, apiTd.Domain.Map())
	if err != nil {
		return common.Hash{}, types.NewMalformedRequest("failed to hash domain: %v", err)
	}
	structHash, err := apiTd.HashStruct(apiTd.PrimaryType, apiTd.Message)
	if err != nil {
		return common.Hash{}, types.NewMalformedRequest("failed to hash %s: %v", apiTd.PrimaryType, err)
	}

	h := sha3.NewLegacyKeccak256()
	h.Write([]byte{0x19, 0x01})
	h.Write(domainSeparator)
	h.Write(structHash)
	return common.BytesToHash(h.Sum(nil)), nil
}

// DomainSeparator hashes d against the fixed EIP712Domain(string name,string version,uint256 chainId) type
func DomainSeparator(d types.DomainDescriptor) (common.Hash, error) {
	if err := validateDomain(d); err != nil {
		return common.Hash{}, err
	}
	apiTd := apitypes.TypedData{
		Types:  apitypes.Types{EIP712DomainType: toAPIFields(DomainTypeFields)},
		Domain: toAPIDomain(d),
	}
	sep, err := apiTd.HashStruct(EIP712DomainType, apiTd.Domain.Map())
	if err != nil {
		return common.Hash{}, types.NewMalformedRequest("failed to hash domain: %v", err)
	}
	return common.BytesToHash(sep), nil
}

// StructHash is hashStruct(primaryType, value) for the request's schema
func StructHash(td *types.TypedData) (common.Hash, error) {
	apiTd, err := ToAPITypedData(td)
	if err != nil {
		return common.Hash{}, err
	}
	sh, err := apiTd.HashStruct(apiTd.PrimaryType, apiTd.Message)
	if err != nil {
		return common.Hash{}, types.NewMalformedRequest("failed to hash %s: %v", apiTd.PrimaryType, err)
	}
	return common.BytesToHash(sh), nil
}

// EncodeType returns the canonical encodeType string of typeName, e.g. "Mail(Person from,...)Person(...)"
func EncodeType(schema types.TypeSchema, typeName string) (string, error) {
	if err := validateSchema(&schema); err != nil {
		return "", err
	}
	if _, ok := schema.Lookup(typeName); !ok {
		return "", types.NewMalformedRequest("type %q is not declared in schema", typeName)
	}
	apiTd := apitypes.TypedData{Types: toAPITypes(schema)}
	return string(apiTd.EncodeType(typeName)), nil
}

// TypeHash is keccak256(EncodeType(schema, typeName))
func TypeHash(schema types.TypeSchema, typeName string) (common.Hash, error) {
	if _, err := EncodeType(schema, typeName); err != nil {
		return common.Hash{}, err
	}
	apiTd := apitypes.TypedData{Types: toAPITypes(schema)}
	return common.BytesToHash(apiTd.TypeHash(typeName)), nil
}

// ToAPITypedData validates td and converts it into the go-ethereum representation
// wallets accept over eth_signTypedData_v4, with all primitives normalized.
func ToAPITypedData(td *types.TypedData) (*apitypes.TypedData, error) {
	if td == nil {
		return nil, types.NewMalformedRequest("typed data is nil")
	}
	if err := validateDomain(td.Domain); err != nil {
		return nil, err
	}
	if err := validateSchema(&td.Schema); err != nil {
		return nil, err
	}
	if td.Value == nil {
		return nil, types.NewMalformedRequest("typed data has no value")
	}

	n := &normalizer{schema: &td.Schema}
	message, err := n.normalizeStruct(td.Schema.PrimaryType, td.Value, td.Schema.PrimaryType, 0)
	if err != nil {
		return nil, err
	}

	return &apitypes.TypedData{
		Types:       toAPITypes(td.Schema),
		PrimaryType: td.Schema.PrimaryType,
		Domain:      toAPIDomain(td.Domain),
		Message:     message,
	}, nil
}

func validateDomain(d types.DomainDescriptor) error {
	if d.Name == "" {
		return types.NewMalformedRequest("domain name is required")
	}
	if d.Version == "" {
		return types.NewMalformedRequest("domain version is required")
	}
	return nil
}

func toAPIDomain(d types.DomainDescriptor) apitypes.TypedDataDomain {
	return apitypes.TypedDataDomain{
		Name:    d.Name,
		Version: d.Version,
		ChainId: (*math.HexOrDecimal256)(new(big.Int).SetUint64(d.ChainId)),
	}
}

func toAPITypes(schema types.TypeSchema) apitypes.Types {
	out := make(apitypes.Types, len(schema.Types)+1)
	out[EIP712DomainType] = toAPIFields(DomainTypeFields)
	for _, def := range schema.Types {
		out[def.Name] = toAPIFields(def.Fields)
	}
	return out
}

func toAPIFields(fields []types.Field) []apitypes.Type {
	out := make([]apitypes.Type, len(fields))
	for i, f := range fields {
		out[i] = apitypes.Type{Name: f.Name, Type: f.Type}
	}
	return out
}
