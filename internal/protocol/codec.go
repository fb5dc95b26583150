package protocol

import (
	"fmt"

	"github.com/fxamacker/cbor/v2"
)

// CBOR major types of a record's outer item.
const (
	majorArray = 4
	majorMap   = 5
)

var encMode = mustEncMode()

func mustEncMode() cbor.EncMode {
	em, err := cbor.CanonicalEncOptions().EncMode()
	if err != nil {
		panic(err)
	}
	return em
}

// record is a decoded wire message: field number to raw CBOR item.
// Vents send integer-keyed maps; positional arrays are accepted too, with
// the index as the field number.
type record map[uint64]cbor.RawMessage

func decodeRecord(data []byte) (record, error) {
	if len(data) == 0 {
		return nil, fmt.Errorf("%w: empty payload", ErrDecode)
	}

	switch data[0] >> 5 {
	case majorMap:
		var m map[uint64]cbor.RawMessage
		if err := cbor.Unmarshal(data, &m); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		return record(m), nil
	case majorArray:
		var items []cbor.RawMessage
		if err := cbor.Unmarshal(data, &items); err != nil {
			return nil, fmt.Errorf("%w: %v", ErrDecode, err)
		}
		r := make(record, len(items))
		for i, item := range items {
			r[uint64(i)] = item
		}
		return r, nil
	default:
		return nil, fmt.Errorf("%w: expected map or array, got major type %d", ErrDecode, data[0]>>5)
	}
}

// raw returns the item for key, or nil when absent or null/undefined.
func (r record) raw(key uint64) cbor.RawMessage {
	item, ok := r[key]
	if !ok || len(item) == 0 {
		return nil
	}
	if item[0] == 0xf6 || item[0] == 0xf7 {
		return nil
	}
	return item
}

// intField returns the integer at key; nil when absent.
func (r record) intField(key uint64) (*int, error) {
	item := r.raw(key)
	if item == nil {
		return nil, nil
	}
	var v int64
	if err := cbor.Unmarshal(item, &v); err != nil {
		return nil, fmt.Errorf("%w: field %d: %v", ErrDecode, key, err)
	}
	n := int(v)
	return &n, nil
}

// textField returns the text string at key; nil when absent.
func (r record) textField(key uint64) (*string, error) {
	item := r.raw(key)
	if item == nil {
		return nil, nil
	}
	var s string
	if err := cbor.Unmarshal(item, &s); err != nil {
		return nil, fmt.Errorf("%w: field %d: %v", ErrDecode, key, err)
	}
	return &s, nil
}

func (r record) intOr(key uint64, def int) (int, error) {
	v, err := r.intField(key)
	if err != nil || v == nil {
		return def, err
	}
	return *v, nil
}

func (r record) stringOr(key uint64, def string) (string, error) {
	v, err := r.textField(key)
	if err != nil || v == nil {
		return def, err
	}
	return *v, nil
}

// encodeRecord encodes an integer-keyed map with canonical key order.
func encodeRecord(fields map[uint64]any) ([]byte, error) {
	return encMode.Marshal(fields)
}
