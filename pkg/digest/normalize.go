package digest

import (
	"encoding/json"
	gomath "math"
	"math/big"
	"reflect"
	"regexp"
	"sort"
	"strconv"
	"strings"

	"github.com/Layr-Labs/eigenx-signing-go/pkg/types"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/common/hexutil"
	"github.com/ethereum/go-ethereum/common/math"
)

const (
	// EIP712DomainType is reserved for the domain separator and cannot be redefined by a schema
	EIP712DomainType = "EIP712Domain"

	maxValueDepth = 64
)

var (
	typeNameRegex   = regexp.MustCompile(`^[A-Z][A-Za-z0-9_]*$`)
	identifierRegex = regexp.MustCompile(`^[A-Za-z_$][A-Za-z0-9_$]*$`)
	arrayTypeRegex  = regexp.MustCompile(`^(.+)\[([0-9]*)\]$`)
	intTypeRegex    = regexp.MustCompile(`^(u?int)([0-9]+)$`)
	bytesTypeRegex  = regexp.MustCompile(`^bytes([0-9]+)$`)
)

// normalizer checks a value against its schema and rewrites primitives into the
// shapes the EIP-712 encoder and a JSON-RPC wallet both accept: *big.Int
// integers, checksummed hex addresses and 0x-prefixed hex bytes.
type normalizer struct {
	schema *types.TypeSchema
}

func validateSchema(schema *types.TypeSchema) error {
	if schema.PrimaryType == "" {
		return types.NewMalformedRequest("schema has no primary type")
	}
	if schema.PrimaryType == EIP712DomainType {
		return types.NewMalformedRequest("%s cannot be the primary type", EIP712DomainType)
	}

	seen := make(map[string]struct{}, len(schema.Types))
	for _, def := range schema.Types {
		if !typeNameRegex.MatchString(def.Name) {
			return types.NewMalformedRequest("invalid type name %q", def.Name)
		}
		if def.Name == EIP712DomainType {
			return types.NewMalformedRequest("type %s is reserved", EIP712DomainType)
		}
		if isPrimitive(def.Name) {
			return types.NewMalformedRequest("type name %q shadows a primitive type", def.Name)
		}
		if _, dup := seen[def.Name]; dup {
			return types.NewMalformedRequest("type %q declared more than once", def.Name)
		}
		seen[def.Name] = struct{}{}
	}

	n := &normalizer{schema: schema}
	for _, def := range schema.Types {
		if len(def.Fields) == 0 {
			return types.NewMalformedRequest("type %q has no fields", def.Name)
		}
		fieldNames := make(map[string]struct{}, len(def.Fields))
		for _, f := range def.Fields {
			if !identifierRegex.MatchString(f.Name) {
				return types.NewMalformedRequest("invalid field name %q in type %q", f.Name, def.Name)
			}
			if _, dup := fieldNames[f.Name]; dup {
				return types.NewMalformedRequest("field %q declared more than once in type %q", f.Name, def.Name)
			}
			fieldNames[f.Name] = struct{}{}
			if f.Type == def.Name {
				return types.NewMalformedRequest("type %q cannot reference itself", def.Name)
			}
			if err := n.resolveType(f.Type); err != nil {
				return types.NewMalformedRequest("field %q of type %q: %v", f.Name, def.Name, err)
			}
		}
	}

	if _, ok := schema.Lookup(schema.PrimaryType); !ok {
		return types.NewMalformedRequest("primary type %q is not declared in schema", schema.PrimaryType)
	}
	return nil
}

func (n *normalizer) resolveType(typ string) error {
	if m := arrayTypeRegex.FindStringSubmatch(typ); m != nil {
		if m[2] != "" {
			if size, err := strconv.Atoi(m[2]); err != nil || size == 0 {
				return types.NewMalformedRequest("invalid array length in %q", typ)
			}
		}
		return n.resolveType(m[1])
	}
	if isPrimitive(typ) {
		return nil
	}
	if _, ok := n.schema.Lookup(typ); ok {
		return nil
	}
	return types.NewMalformedRequest("type %q is not declared in schema", typ)
}

func isPrimitive(typ string) bool {
	switch typ {
	case "string", "address", "bool", "bytes":
		return true
	}
	if m := bytesTypeRegex.FindStringSubmatch(typ); m != nil {
		size, err := strconv.Atoi(m[1])
		return err == nil && size >= 1 && size <= 32
	}
	if m := intTypeRegex.FindStringSubmatch(typ); m != nil {
		bits, err := strconv.Atoi(m[2])
		return err == nil && bits >= 8 && bits <= 256 && bits%8 == 0
	}
	return false
}

func (n *normalizer) normalizeStruct(typeName string, value map[string]interface{}, path string, depth int) (map[string]interface{}, error) {
	if depth > maxValueDepth {
		return nil, types.NewMalformedRequest("%s: value nested deeper than %d levels", path, maxValueDepth)
	}
	def, ok := n.schema.Lookup(typeName)
	if !ok {
		return nil, types.NewMalformedRequest("%s: type %q is not declared in schema", path, typeName)
	}

	declared := make(map[string]struct{}, len(def.Fields))
	for _, f := range def.Fields {
		declared[f.Name] = struct{}{}
	}
	keys := make([]string, 0, len(value))
	for k := range value {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if _, ok := declared[k]; !ok {
			return nil, types.NewMalformedRequest("%s: field %q is not declared in type %q", path, k, typeName)
		}
	}

	out := make(map[string]interface{}, len(def.Fields))
	for _, f := range def.Fields {
		raw, ok := value[f.Name]
		if !ok {
			return nil, types.NewMalformedRequest("%s: missing field %q of type %q", path, f.Name, typeName)
		}
		v, err := n.normalizeValue(f.Type, raw, path+"."+f.Name, depth+1)
		if err != nil {
			return nil, err
		}
		out[f.Name] = v
	}
	return out, nil
}

func (n *normalizer) normalizeValue(typ string, raw interface{}, path string, depth int) (interface{}, error) {
	if raw == nil {
		return nil, types.NewMalformedRequest("%s: nil value for type %q", path, typ)
	}

	if m := arrayTypeRegex.FindStringSubmatch(typ); m != nil {
		rv := reflect.ValueOf(raw)
		if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
			return nil, types.NewMalformedRequest("%s: expected array for type %q, got %T", path, typ, raw)
		}
		if m[2] != "" {
			size, _ := strconv.Atoi(m[2])
			if rv.Len() != size {
				return nil, types.NewMalformedRequest("%s: expected %d elements for type %q, got %d", path, size, typ, rv.Len())
			}
		}
		items := make([]interface{}, rv.Len())
		for i := 0; i < rv.Len(); i++ {
			item, err := n.normalizeValue(m[1], rv.Index(i).Interface(), path+"["+strconv.Itoa(i)+"]", depth+1)
			if err != nil {
				return nil, err
			}
			items[i] = item
		}
		return items, nil
	}

	if _, ok := n.schema.Lookup(typ); ok {
		nested, ok := raw.(map[string]interface{})
		if !ok {
			return nil, types.NewMalformedRequest("%s: expected struct %q, got %T", path, typ, raw)
		}
		return n.normalizeStruct(typ, nested, path, depth)
	}

	return normalizePrimitive(typ, raw, path)
}

func normalizePrimitive(typ string, raw interface{}, path string) (interface{}, error) {
	switch typ {
	case "string":
		s, ok := raw.(string)
		if !ok {
			return nil, types.NewMalformedRequest("%s: expected string, got %T", path, raw)
		}
		return s, nil
	case "bool":
		b, ok := raw.(bool)
		if !ok {
			return nil, types.NewMalformedRequest("%s: expected bool, got %T", path, raw)
		}
		return b, nil
	case "address":
		return normalizeAddress(raw, path)
	case "bytes":
		return normalizeBytes(raw, -1, path)
	}

	if m := bytesTypeRegex.FindStringSubmatch(typ); m != nil {
		size, _ := strconv.Atoi(m[1])
		return normalizeBytes(raw, size, path)
	}
	if m := intTypeRegex.FindStringSubmatch(typ); m != nil {
		bits, _ := strconv.Atoi(m[2])
		return normalizeInteger(raw, m[1] == "int", bits, path)
	}
	return nil, types.NewMalformedRequest("%s: unsupported type %q", path, typ)
}

func normalizeAddress(raw interface{}, path string) (string, error) {
	switch v := raw.(type) {
	case common.Address:
		return v.Hex(), nil
	case *common.Address:
		if v == nil {
			return "", types.NewMalformedRequest("%s: nil address", path)
		}
		return v.Hex(), nil
	case string:
		if !common.IsHexAddress(v) {
			return "", types.NewMalformedRequest("%s: invalid address %q", path, v)
		}
		return common.HexToAddress(v).Hex(), nil
	default:
		return "", types.NewMalformedRequest("%s: expected address, got %T", path, raw)
	}
}

func normalizeBytes(raw interface{}, size int, path string) (string, error) {
	var b []byte
	switch v := raw.(type) {
	case []byte:
		b = v
	case hexutil.Bytes:
		b = v
	case common.Hash:
		b = v.Bytes()
	case string:
		decoded, err := hexutil.Decode(v)
		if err != nil {
			return "", types.NewMalformedRequest("%s: invalid hex bytes %q: %v", path, v, err)
		}
		b = decoded
	default:
		return "", types.NewMalformedRequest("%s: expected bytes, got %T", path, raw)
	}
	if size > 0 && len(b) != size {
		return "", types.NewMalformedRequest("%s: expected %d bytes, got %d", path, size, len(b))
	}
	return hexutil.Encode(b), nil
}

func normalizeInteger(raw interface{}, signed bool, bits int, path string) (*big.Int, error) {
	var n *big.Int
	switch v := raw.(type) {
	case *big.Int:
		if v == nil {
			return nil, types.NewMalformedRequest("%s: nil integer", path)
		}
		n = new(big.Int).Set(v)
	case big.Int:
		n = new(big.Int).Set(&v)
	case *math.HexOrDecimal256:
		if v == nil {
			return nil, types.NewMalformedRequest("%s: nil integer", path)
		}
		n = new(big.Int).Set((*big.Int)(v))
	case int:
		n = big.NewInt(int64(v))
	case int8:
		n = big.NewInt(int64(v))
	case int16:
		n = big.NewInt(int64(v))
	case int32:
		n = big.NewInt(int64(v))
	case int64:
		n = big.NewInt(v)
	case uint:
		n = new(big.Int).SetUint64(uint64(v))
	case uint8:
		n = new(big.Int).SetUint64(uint64(v))
	case uint16:
		n = new(big.Int).SetUint64(uint64(v))
	case uint32:
		n = new(big.Int).SetUint64(uint64(v))
	case uint64:
		n = new(big.Int).SetUint64(v)
	case float64:
		if gomath.IsNaN(v) {
			return nil, types.NewMalformedRequest("%s: non-integral number %v", path, v)
		}
		f := big.NewFloat(v)
		if !f.IsInt() {
			return nil, types.NewMalformedRequest("%s: non-integral number %v", path, v)
		}
		n, _ = f.Int(nil)
	case json.Number:
		parsed, ok := new(big.Int).SetString(v.String(), 10)
		if !ok {
			return nil, types.NewMalformedRequest("%s: invalid integer %q", path, v.String())
		}
		n = parsed
	case string:
		parsed, ok := math.ParseBig256(strings.TrimSpace(v))
		if !ok {
			if neg, okNeg := new(big.Int).SetString(strings.TrimSpace(v), 10); okNeg {
				parsed, ok = neg, true
			}
		}
		if !ok {
			return nil, types.NewMalformedRequest("%s: invalid integer %q", path, v)
		}
		n = parsed
	default:
		return nil, types.NewMalformedRequest("%s: expected integer, got %T", path, raw)
	}

	if signed {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(bits-1))
		minimum := new(big.Int).Neg(limit)
		if n.Cmp(minimum) < 0 || n.Cmp(limit) >= 0 {
			return nil, types.NewMalformedRequest("%s: %s overflows int%d", path, n.String(), bits)
		}
	} else {
		limit := new(big.Int).Lsh(big.NewInt(1), uint(bits))
		if n.Sign() < 0 || n.Cmp(limit) >= 0 {
			return nil, types.NewMalformedRequest("%s: %s out of range for uint%d", path, n.String(), bits)
		}
	}
	return n, nil
}
