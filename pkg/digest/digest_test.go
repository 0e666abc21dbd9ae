package digest

import (
	"encoding/json"
	"errors"
	"fmt"
	gomath "math"
	"math/big"
	"strings"
	"testing"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/math"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/signer/core/apitypes"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var testDomain = types.DomainDescriptor{
	Name:    "eigenx",
	Version: types.DefaultDomainVersion,
	ChainId: 1,
}

// eip712MailSchema is the example schema from the EIP-712 document
func eip712MailSchema() types.TypeSchema {
	return types.TypeSchema{
		PrimaryType: "Mail",
		Types: []types.TypeDefinition{
			{
				Name: "Person",
				Fields: []types.Field{
					{Name: "name", Type: "string"},
					{Name: "wallet", Type: "address"},
				},
			},
			{
				Name: "Mail",
				Fields: []types.Field{
					{Name: "from", Type: "Person"},
					{Name: "to", Type: "Person"},
					{Name: "contents", Type: "string"},
				},
			},
		},
	}
}

func eip712MailValue() types.StructuredValue {
	return types.StructuredValue{
		"from": map[string]interface{}{
			"name":   "Cow",
			"wallet": "0xCD2a3d9F938E13CD947Ec05AbC7FE734Df8DD826",
		},
		"to": map[string]interface{}{
			"name":   "Bob",
			"wallet": "0xbBbBBBBbbBBBbbbBbbBbbbbBBbBbbbbBbBbbBBbB",
		},
		"contents": "Hello, Bob!",
	}
}

func mailRequest(message string, timestamp int64) *types.SigningRequest {
	return types.NewMailTypedData(
		testDomain,
		types.DefaultFromName(testDomain),
		common.HexToAddress("0x1111111111111111111111111111111111111111"),
		types.DefaultRecipientName,
		common.HexToAddress(types.DefaultRecipientAddress),
		message,
		timestamp,
	)
}

func Test_PlainMessageHash(t *testing.T) {
	t.Run("matches the published hashMessage vector", func(t *testing.T) {
		h := PlainMessageHash([]byte("Hello World"))
		assert.Equal(t, "0xa1de988600a42c4b4ab089b619297c17d53cffae5d5120d82d8a92d0bb3b78f2", h.Hex())
	})

	t.Run("hashes prefix, decimal length and content", func(t *testing.T) {
		content := []byte("a message that is longer than nine bytes")
		expected := crypto.Keccak256Hash([]byte(fmt.Sprintf("%s%d%s", PersonalMessagePrefix, len(content), content)))
		assert.Equal(t, expected, PlainMessageHash(content))
	})

	t.Run("Build routes plain requests through the personal scheme", func(t *testing.T) {
		h, err := Build(types.NewPlainMessageRequest([]byte("Hello World")))
		require.NoError(t, err)
		assert.Equal(t, PlainMessageHash([]byte("Hello World")), h)
	})
}

func Test_EIP712Vectors(t *testing.T) {
	schema := eip712MailSchema()

	t.Run("encodeType", func(t *testing.T) {
		encoded, err := EncodeType(schema, "Mail")
		require.NoError(t, err)
		assert.Equal(t, "Mail(Person from,Person to,string contents)Person(string name,address wallet)", encoded)
	})

	t.Run("typeHash", func(t *testing.T) {
		h, err := TypeHash(schema, "Mail")
		require.NoError(t, err)
		assert.Equal(t, "0xa0cedeb2dc280ba39b857546d74f5549c3a1d7bdc2dd96bf881f76108e23dac2", h.Hex())
	})

	t.Run("structHash", func(t *testing.T) {
		h, err := StructHash(&types.TypedData{Domain: testDomain, Schema: schema, Value: eip712MailValue()})
		require.NoError(t, err)
		assert.Equal(t, "0xc52c0ee5d84264471806290a3f2c4cecfc5490626bf912d01f240d7a274b371e", h.Hex())
	})
}

func Test_TypedDataHash(t *testing.T) {
	t.Run("matches go-ethereum TypedDataAndHash", func(t *testing.T) {
		req := mailRequest("gm", 1700000000000)
		got, err := Build(req)
		require.NoError(t, err)

		reference := apitypes.TypedData{
			Types: apitypes.Types{
				"EIP712Domain": {
					{Name: "name", Type: "string"},
					{Name: "version", Type: "string"},
					{Name: "chainId", Type: "uint256"},
				},
				"Person": {
					{Name: "name", Type: "string"},
					{Name: "wallet", Type: "address"},
				},
				"Message": {
					{Name: "from", Type: "Person"},
					{Name: "to", Type: "Person"},
					{Name: "message", Type: "string"},
					{Name: "timestamp", Type: "uint256"},
				},
			},
			PrimaryType: "Message",
			Domain: apitypes.TypedDataDomain{
				Name:    testDomain.Name,
				Version: testDomain.Version,
				ChainId: math.NewHexOrDecimal256(1),
			},
			Message: apitypes.TypedDataMessage{
				"from": map[string]interface{}{
					"name":   "eigenx User",
					"wallet": "0x1111111111111111111111111111111111111111",
				},
				"to": map[string]interface{}{
					"name":   "Vitalik",
					"wallet": types.DefaultRecipientAddress,
				},
				"message":   "gm",
				"timestamp": big.NewInt(1700000000000),
			},
		}
		expected, _, err := apitypes.TypedDataAndHash(reference)
		require.NoError(t, err)
		assert.Equal(t, common.BytesToHash(expected), got)
	})

	t.Run("is framed as 0x1901 || domainSeparator || structHash", func(t *testing.T) {
		req := mailRequest("framing", 42)
		sep, err := DomainSeparator(req.Typed.Domain)
		require.NoError(t, err)
		sh, err := StructHash(req.Typed)
		require.NoError(t, err)

		expected := crypto.Keccak256Hash([]byte{0x19, 0x01}, sep.Bytes(), sh.Bytes())
		got, err := Build(req)
		require.NoError(t, err)
		assert.Equal(t, expected, got)
	})

	t.Run("domain separator binds the chain id", func(t *testing.T) {
		mainnet, err := DomainSeparator(testDomain)
		require.NoError(t, err)
		other := testDomain
		other.ChainId = 11155111
		sepolia, err := DomainSeparator(other)
		require.NoError(t, err)
		assert.NotEqual(t, mainnet, sepolia)
	})
}

func Test_Determinism(t *testing.T) {
	t.Run("repeated builds are identical", func(t *testing.T) {
		req := mailRequest("determinism", 1)
		first, err := Build(req)
		require.NoError(t, err)
		for i := 0; i < 20; i++ {
			again, err := Build(req)
			require.NoError(t, err)
			assert.Equal(t, first, again)
		}
	})

	t.Run("value insertion order is irrelevant", func(t *testing.T) {
		a := types.StructuredValue{}
		a["contents"] = "Hello, Bob!"
		a["to"] = eip712MailValue()["to"]
		a["from"] = eip712MailValue()["from"]

		b := types.StructuredValue{}
		b["from"] = eip712MailValue()["from"]
		b["to"] = eip712MailValue()["to"]
		b["contents"] = "Hello, Bob!"

		ha, err := Build(types.NewTypedDataRequest(testDomain, eip712MailSchema(), a))
		require.NoError(t, err)
		hb, err := Build(types.NewTypedDataRequest(testDomain, eip712MailSchema(), b))
		require.NoError(t, err)
		assert.Equal(t, ha, hb)
	})

	t.Run("schema type order is irrelevant", func(t *testing.T) {
		schema := eip712MailSchema()
		reversed := types.TypeSchema{
			PrimaryType: schema.PrimaryType,
			Types:       []types.TypeDefinition{schema.Types[1], schema.Types[0]},
		}
		ha, err := Build(types.NewTypedDataRequest(testDomain, schema, eip712MailValue()))
		require.NoError(t, err)
		hb, err := Build(types.NewTypedDataRequest(testDomain, reversed, eip712MailValue()))
		require.NoError(t, err)
		assert.Equal(t, ha, hb)
	})

	t.Run("field declaration order changes the digest", func(t *testing.T) {
		schema := eip712MailSchema()
		swapped := eip712MailSchema()
		swapped.Types[1].Fields = []types.Field{
			{Name: "to", Type: "Person"},
			{Name: "from", Type: "Person"},
			{Name: "contents", Type: "string"},
		}
		ha, err := Build(types.NewTypedDataRequest(testDomain, schema, eip712MailValue()))
		require.NoError(t, err)
		hb, err := Build(types.NewTypedDataRequest(testDomain, swapped, eip712MailValue()))
		require.NoError(t, err)
		assert.NotEqual(t, ha, hb)
	})

	t.Run("integer shapes hash identically", func(t *testing.T) {
		base, err := Build(mailRequest("shapes", 1700000000000))
		require.NoError(t, err)

		for name, ts := range map[string]interface{}{
			"int64":       int64(1700000000000),
			"uint64":      uint64(1700000000000),
			"float64":     float64(1700000000000),
			"json.Number": json.Number("1700000000000"),
			"decimal":     "1700000000000",
			"hex":         "0x18bcfe56800",
		} {
			t.Run(name, func(t *testing.T) {
				req := mailRequest("shapes", 0)
				req.Typed.Value["timestamp"] = ts
				h, err := Build(req)
				require.NoError(t, err)
				assert.Equal(t, base, h)
			})
		}
	})

	t.Run("integral floats beyond int64 are accepted", func(t *testing.T) {
		exact := mailRequest("big", 0)
		exact.Typed.Value["timestamp"] = json.Number("100000000000000000000")
		want, err := Build(exact)
		require.NoError(t, err)

		req := mailRequest("big", 0)
		req.Typed.Value["timestamp"] = 1e20
		got, err := Build(req)
		require.NoError(t, err)
		assert.Equal(t, want, got)
	})
}

func Test_TamperDetection(t *testing.T) {
	t.Run("plain content", func(t *testing.T) {
		original := []byte("transfer 10 tokens")
		tampered := []byte("transfer 90 tokens")
		assert.NotEqual(t, PlainMessageHash(original), PlainMessageHash(tampered))
	})

	t.Run("typed fields", func(t *testing.T) {
		base, err := Build(mailRequest("hello", 1))
		require.NoError(t, err)

		changedMessage, err := Build(mailRequest("hellp", 1))
		require.NoError(t, err)
		assert.NotEqual(t, base, changedMessage)

		changedTimestamp, err := Build(mailRequest("hello", 2))
		require.NoError(t, err)
		assert.NotEqual(t, base, changedTimestamp)

		req := mailRequest("hello", 1)
		req.Typed.Value["to"].(map[string]interface{})["name"] = "Alice"
		changedNested, err := Build(req)
		require.NoError(t, err)
		assert.NotEqual(t, base, changedNested)
	})
}

func Test_MalformedRequests(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(req *types.SigningRequest)
		request *types.SigningRequest
		errText string
	}{
		{
			name:    "field absent from schema",
			mutate:  func(req *types.SigningRequest) { req.Typed.Value["subject"] = "hi" },
			errText: `field "subject" is not declared in type "Message"`,
		},
		{
			name: "nested field absent from schema",
			mutate: func(req *types.SigningRequest) {
				req.Typed.Value["from"].(map[string]interface{})["email"] = "a@b.c"
			},
			errText: `field "email" is not declared in type "Person"`,
		},
		{
			name:    "declared field missing",
			mutate:  func(req *types.SigningRequest) { delete(req.Typed.Value, "timestamp") },
			errText: `missing field "timestamp"`,
		},
		{
			name: "field references undeclared type",
			mutate: func(req *types.SigningRequest) {
				req.Typed.Schema.Types[1].Fields[0].Type = "Sender"
			},
			errText: `type "Sender" is not declared`,
		},
		{
			name:    "primary type undeclared",
			mutate:  func(req *types.SigningRequest) { req.Typed.Schema.PrimaryType = "Envelope" },
			errText: `primary type "Envelope" is not declared`,
		},
		{
			name:    "struct given a string",
			mutate:  func(req *types.SigningRequest) { req.Typed.Value["from"] = "alice" },
			errText: `expected struct "Person"`,
		},
		{
			name: "invalid address",
			mutate: func(req *types.SigningRequest) {
				req.Typed.Value["to"].(map[string]interface{})["wallet"] = "0x1234"
			},
			errText: "invalid address",
		},
		{
			name:    "string given a number",
			mutate:  func(req *types.SigningRequest) { req.Typed.Value["message"] = 7 },
			errText: "expected string",
		},
		{
			name:    "negative uint",
			mutate:  func(req *types.SigningRequest) { req.Typed.Value["timestamp"] = big.NewInt(-1) },
			errText: "out of range for uint256",
		},
		{
			name:    "non-integral number",
			mutate:  func(req *types.SigningRequest) { req.Typed.Value["timestamp"] = 1.5 },
			errText: "non-integral",
		},
		{
			name:    "NaN number",
			mutate:  func(req *types.SigningRequest) { req.Typed.Value["timestamp"] = gomath.NaN() },
			errText: "non-integral",
		},
		{
			name: "reserved domain type",
			mutate: func(req *types.SigningRequest) {
				req.Typed.Schema.Types = append(req.Typed.Schema.Types, types.TypeDefinition{
					Name:   "EIP712Domain",
					Fields: []types.Field{{Name: "name", Type: "string"}},
				})
			},
			errText: "reserved",
		},
		{
			name: "duplicate type",
			mutate: func(req *types.SigningRequest) {
				req.Typed.Schema.Types = append(req.Typed.Schema.Types, req.Typed.Schema.Types[0])
			},
			errText: "declared more than once",
		},
		{
			name:    "missing domain name",
			mutate:  func(req *types.SigningRequest) { req.Typed.Domain.Name = "" },
			errText: "domain name is required",
		},
		{
			name:    "empty plain message",
			request: types.NewPlainMessageRequest(nil),
			errText: "please type a message",
		},
		{
			name:    "unknown kind",
			request: &types.SigningRequest{Kind: "eth_sign", Plain: &types.PlainMessage{Content: []byte("x")}},
			errText: "unsupported request kind",
		},
		{
			name:    "kind without payload",
			request: &types.SigningRequest{Kind: types.RequestKindTypedData},
			errText: "must carry only typed data",
		},
		{
			name:    "nil request",
			errText: "request is nil",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := tt.request
			if tt.mutate != nil {
				req = mailRequest("hello", 1)
				tt.mutate(req)
			}
			_, err := Build(req)
			require.Error(t, err)
			assert.True(t, errors.Is(err, types.ErrMalformedRequest), "expected MalformedRequest, got %v", err)
			assert.True(t, strings.Contains(err.Error(), tt.errText), "error %q does not mention %q", err.Error(), tt.errText)
		})
	}
}

func Test_PrimitiveCoverage(t *testing.T) {
	schema := types.TypeSchema{
		PrimaryType: "Order",
		Types: []types.TypeDefinition{
			{
				Name: "Order",
				Fields: []types.Field{
					{Name: "maker", Type: "address"},
					{Name: "salt", Type: "bytes32"},
					{Name: "payload", Type: "bytes"},
					{Name: "amounts", Type: "uint128[]"},
					{Name: "delta", Type: "int64"},
					{Name: "partial", Type: "bool"},
					{Name: "tags", Type: "string[]"},
				},
			},
		},
	}
	value := types.StructuredValue{
		"maker":   common.HexToAddress("0x00000000000000000000000000000000000000ff"),
		"salt":    common.HexToHash("0x01"),
		"payload": []byte{0xde, 0xad, 0xbe, 0xef},
		"amounts": []interface{}{1, "2", big.NewInt(3)},
		"delta":   int64(-5),
		"partial": true,
		"tags":    []string{"a", "b"},
	}

	h, err := Build(types.NewTypedDataRequest(testDomain, schema, value))
	require.NoError(t, err)
	assert.NotEqual(t, common.Hash{}, h)

	t.Run("fixed array length is enforced", func(t *testing.T) {
		fixed := types.TypeSchema{
			PrimaryType: "Pair",
			Types: []types.TypeDefinition{
				{Name: "Pair", Fields: []types.Field{{Name: "tags", Type: "string[2]"}}},
			},
		}
		_, err := Build(types.NewTypedDataRequest(testDomain, fixed, types.StructuredValue{"tags": []string{"a"}}))
		assert.ErrorIs(t, err, types.ErrMalformedRequest)
	})

	t.Run("fixed bytes length is enforced", func(t *testing.T) {
		value["salt"] = []byte{0x01}
		_, err := Build(types.NewTypedDataRequest(testDomain, schema, value))
		assert.ErrorIs(t, err, types.ErrMalformedRequest)
		value["salt"] = common.HexToHash("0x01")
	})

	t.Run("signed overflow is rejected", func(t *testing.T) {
		value["delta"] = new(big.Int).Lsh(big.NewInt(1), 63)
		_, err := Build(types.NewTypedDataRequest(testDomain, schema, value))
		assert.ErrorIs(t, err, types.ErrMalformedRequest)
		value["delta"] = int64(-5)
	})
}

func Test_ToAPITypedData(t *testing.T) {
	apiTd, err := ToAPITypedData(mailRequest("remote", 99).Typed)
	require.NoError(t, err)

	assert.Equal(t, "Message", apiTd.PrimaryType)
	assert.Contains(t, apiTd.Types, EIP712DomainType)
	assert.Equal(t, "eigenx", apiTd.Domain.Name)

	from := apiTd.Message["from"].(map[string]interface{})
	assert.Equal(t, "0x1111111111111111111111111111111111111111", from["wallet"])
	assert.Equal(t, big.NewInt(99), apiTd.Message["timestamp"])

	t.Run("bytes are rendered as hex", func(t *testing.T) {
		td := &types.TypedData{
			Domain: testDomain,
			Schema: types.TypeSchema{
				PrimaryType: "Blob",
				Types:       []types.TypeDefinition{{Name: "Blob", Fields: []types.Field{{Name: "data", Type: "bytes"}}}},
			},
			Value: types.StructuredValue{"data": []byte{0xca, 0xfe}},
		}
		converted, err := ToAPITypedData(td)
		require.NoError(t, err)
		assert.Equal(t, "0xcafe", converted.Message["data"])
	})

	t.Run("lowercase struct names are rejected", func(t *testing.T) {
		td := &types.TypedData{
			Domain: testDomain,
			Schema: types.TypeSchema{
				PrimaryType: "message",
				Types:       []types.TypeDefinition{{Name: "message", Fields: []types.Field{{Name: "body", Type: "string"}}}},
			},
			Value: types.StructuredValue{"body": "x"},
		}
		_, err := ToAPITypedData(td)
		assert.ErrorIs(t, err, types.ErrMalformedRequest)
	})

	// the wallet-side hash of the converted payload must match ours
	walletHash, _, err := apitypes.TypedDataAndHash(*apiTd)
	require.NoError(t, err)
	ours, err := Build(mailRequest("remote", 99))
	require.NoError(t, err)
	assert.Equal(t, ours, common.BytesToHash(walletHash))
}
