package wire

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"
)

// Message is implemented by every type sent on the wire.
type Message interface {
	appendTo(b []byte) []byte
	unmarshal(b []byte) error
}

// Marshal encodes m.
func Marshal(m Message) []byte {
	return m.appendTo(nil)
}

// Unmarshal decodes b into m, replacing its contents.
func Unmarshal(b []byte, m Message) error {
	return m.unmarshal(b)
}

func appendString(b []byte, num protowire.Number, s string) []byte {
	if s == "" {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendString(b, s)
}

// appendStrings keeps empty elements so positions survive the round trip.
func appendStrings(b []byte, num protowire.Number, ss []string) []byte {
	for _, s := range ss {
		b = protowire.AppendTag(b, num, protowire.BytesType)
		b = protowire.AppendString(b, s)
	}
	return b
}

func appendUint(b []byte, num protowire.Number, v uint64) []byte {
	if v == 0 {
		return b
	}
	b = protowire.AppendTag(b, num, protowire.VarintType)
	return protowire.AppendVarint(b, v)
}

func appendInt(b []byte, num protowire.Number, v int64) []byte {
	return appendUint(b, num, uint64(v))
}

func appendBool(b []byte, num protowire.Number, v bool) []byte {
	if !v {
		return b
	}
	return appendUint(b, num, 1)
}

func appendMessage(b []byte, num protowire.Number, m Message) []byte {
	b = protowire.AppendTag(b, num, protowire.BytesType)
	return protowire.AppendBytes(b, m.appendTo(nil))
}

// field is one decoded tag/value pair.
type field struct {
	num protowire.Number
	typ protowire.Type
	u   uint64
	b   []byte
}

func (f field) str() string { return string(f.b) }

func (f field) expect(typ protowire.Type) error {
	if f.typ != typ {
		return fmt.Errorf("field %d: wire type %d, want %d", f.num, f.typ, typ)
	}
	return nil
}

// walk decodes b field by field. Unknown fields are skipped by the visitor
// returning nil.
func walk(b []byte, visit func(f field) error) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		f := field{num: num, typ: typ}
		switch typ {
		case protowire.VarintType:
			f.u, n = protowire.ConsumeVarint(b)
		case protowire.BytesType:
			f.b, n = protowire.ConsumeBytes(b)
		default:
			n = protowire.ConsumeFieldValue(num, typ, b)
		}
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		if err := visit(f); err != nil {
			return err
		}
	}
	return nil
}

func decodeString(f field, dst *string) error {
	if err := f.expect(protowire.BytesType); err != nil {
		return err
	}
	*dst = f.str()
	return nil
}

func decodeUint(f field, dst *uint64) error {
	if err := f.expect(protowire.VarintType); err != nil {
		return err
	}
	*dst = f.u
	return nil
}

func decodeInt(f field, dst *int64) error {
	if err := f.expect(protowire.VarintType); err != nil {
		return err
	}
	*dst = int64(f.u)
	return nil
}

func decodeMessage(f field, m Message) error {
	if err := f.expect(protowire.BytesType); err != nil {
		return err
	}
	return m.unmarshal(f.b)
}
