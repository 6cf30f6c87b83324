package abi

import (
	"bytes"
	"encoding/binary"
	"errors"
	"fmt"
	"math"

	"royalty-exchange/go-backend/internal/identity"
)

// ReturnPrefix marks the log line carrying a method's return value.
var ReturnPrefix = []byte{0x15, 0x1f, 0x7c, 0x75}

var ErrNoReturnValue = errors.New("abi: no return value logged")

const GroupRefSize = 32 + 8

// GroupRefValue is the decoded form of a groupref argument.
type GroupRefValue struct {
	GroupID [32]byte
	Index   uint64
}

// EncodeValue encodes v for kind k. Transaction kinds have no byte form.
func EncodeValue(k Kind, v any) ([]byte, error) {
	switch k {
	case KindUint64, KindAsset, KindApplication:
		n, ok := v.(uint64)
		if !ok {
			return nil, fmt.Errorf("abi: %s wants uint64, got %T", k, v)
		}
		return binary.BigEndian.AppendUint64(nil, n), nil
	case KindBool:
		b, ok := v.(bool)
		if !ok {
			return nil, fmt.Errorf("abi: bool wants bool, got %T", v)
		}
		if b {
			return []byte{0x80}, nil
		}
		return []byte{0x00}, nil
	case KindString:
		s, ok := v.(string)
		if !ok {
			return nil, fmt.Errorf("abi: string wants string, got %T", v)
		}
		return encodeDynamic([]byte(s))
	case KindBytes:
		b, ok := v.([]byte)
		if !ok {
			return nil, fmt.Errorf("abi: byte[] wants []byte, got %T", v)
		}
		return encodeDynamic(b)
	case KindAddress, KindAccount:
		a, ok := v.(identity.Address)
		if !ok {
			return nil, fmt.Errorf("abi: %s wants address, got %T", k, v)
		}
		return append([]byte(nil), a[:]...), nil
	case KindGroupRef:
		r, ok := v.(GroupRefValue)
		if !ok {
			return nil, fmt.Errorf("abi: groupref wants GroupRefValue, got %T", v)
		}
		out := append([]byte(nil), r.GroupID[:]...)
		return binary.BigEndian.AppendUint64(out, r.Index), nil
	}
	return nil, fmt.Errorf("abi: %s has no encoding", k)
}

func DecodeValue(k Kind, b []byte) (any, error) {
	switch k {
	case KindUint64, KindAsset, KindApplication:
		if len(b) != 8 {
			return nil, fmt.Errorf("abi: %s wants 8 bytes, got %d", k, len(b))
		}
		return binary.BigEndian.Uint64(b), nil
	case KindBool:
		if len(b) != 1 {
			return nil, fmt.Errorf("abi: bool wants 1 byte, got %d", len(b))
		}
		return b[0]&0x80 != 0, nil
	case KindString:
		raw, err := decodeDynamic(b)
		if err != nil {
			return nil, err
		}
		return string(raw), nil
	case KindBytes:
		return decodeDynamic(b)
	case KindAddress, KindAccount:
		if len(b) != identity.AddressSize {
			return nil, fmt.Errorf("abi: %s wants %d bytes, got %d", k, identity.AddressSize, len(b))
		}
		var a identity.Address
		copy(a[:], b)
		return a, nil
	case KindGroupRef:
		if len(b) != GroupRefSize {
			return nil, fmt.Errorf("abi: groupref wants %d bytes, got %d", GroupRefSize, len(b))
		}
		var r GroupRefValue
		copy(r.GroupID[:], b[:32])
		r.Index = binary.BigEndian.Uint64(b[32:])
		return r, nil
	case KindVoid:
		return nil, nil
	}
	return nil, fmt.Errorf("abi: %s has no encoding", k)
}

// DecodeReturn finds the last return-prefixed log and decodes it per m.
func DecodeReturn(m Method, logs [][]byte) (any, error) {
	if m.Returns.Kind == KindVoid {
		return nil, nil
	}
	for i := len(logs) - 1; i >= 0; i-- {
		if bytes.HasPrefix(logs[i], ReturnPrefix) {
			return DecodeValue(m.Returns.Kind, logs[i][len(ReturnPrefix):])
		}
	}
	return nil, fmt.Errorf("%w for %s", ErrNoReturnValue, m.Name)
}

// EncodeReturn builds the log line a program emits to return v.
func EncodeReturn(k Kind, v any) ([]byte, error) {
	enc, err := EncodeValue(k, v)
	if err != nil {
		return nil, err
	}
	return append(append([]byte(nil), ReturnPrefix...), enc...), nil
}

func encodeDynamic(b []byte) ([]byte, error) {
	if len(b) > math.MaxUint16 {
		return nil, fmt.Errorf("abi: dynamic value too long: %d", len(b))
	}
	out := binary.BigEndian.AppendUint16(nil, uint16(len(b)))
	return append(out, b...), nil
}

func decodeDynamic(b []byte) ([]byte, error) {
	if len(b) < 2 {
		return nil, fmt.Errorf("abi: dynamic value too short")
	}
	n := int(binary.BigEndian.Uint16(b))
	if len(b)-2 != n {
		return nil, fmt.Errorf("abi: dynamic length %d does not match payload %d", n, len(b)-2)
	}
	return append([]byte(nil), b[2:]...), nil
}
