package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

// Field numbers of the few schema messages the harness itself produces or the reference
// server reads. Everything else stays opaque.
const (
	LoginPlayerName protowire.Number = 1
	LoginPlayerID   protowire.Number = 2
)

// LoginRequest builds the payload of a login envelope for playerName.
func LoginRequest(playerName string) []byte {
	return NewPayload().String(LoginPlayerName, playerName).Bytes()
}

// Payload appends protobuf fields in call order.
type Payload struct {
	b []byte
}

func NewPayload() *Payload { return &Payload{} }

func (p *Payload) String(num protowire.Number, s string) *Payload {
	if s == "" {
		return p
	}
	p.b = protowire.AppendTag(p.b, num, protowire.BytesType)
	p.b = protowire.AppendString(p.b, s)
	return p
}

func (p *Payload) Strings(num protowire.Number, values []string) *Payload {
	for _, s := range values {
		p.b = protowire.AppendTag(p.b, num, protowire.BytesType)
		p.b = protowire.AppendString(p.b, s)
	}
	return p
}

func (p *Payload) Message(num protowire.Number, nested *Payload) *Payload {
	p.b = protowire.AppendTag(p.b, num, protowire.BytesType)
	p.b = protowire.AppendBytes(p.b, nested.Bytes())
	return p
}

func (p *Payload) Int(num protowire.Number, v int64) *Payload {
	if v == 0 {
		return p
	}
	p.b = protowire.AppendTag(p.b, num, protowire.VarintType)
	p.b = protowire.AppendVarint(p.b, uint64(v))
	return p
}

func (p *Payload) Bool(num protowire.Number, v bool) *Payload {
	if !v {
		return p
	}
	p.b = protowire.AppendTag(p.b, num, protowire.VarintType)
	p.b = protowire.AppendVarint(p.b, protowire.EncodeBool(v))
	return p
}

func (p *Payload) Bytes() []byte { return p.b }

// Fields holds the length-delimited fields of a payload, repeated values in order.
type Fields map[protowire.Number][][]byte

// ParseFields reads every length-delimited field of payload and skips the rest.
func ParseFields(payload []byte) (Fields, error) {
	out := make(Fields)
	for len(payload) > 0 {
		num, typ, n := protowire.ConsumeTag(payload)
		if n < 0 {
			return nil, &domain.FormatError{Reason: "payload tag", Cause: protowire.ParseError(n)}
		}
		payload = payload[n:]
		if typ != protowire.BytesType {
			n = protowire.ConsumeFieldValue(num, typ, payload)
			if n < 0 {
				return nil, &domain.FormatError{Reason: fmt.Sprintf("payload field %d", num), Cause: protowire.ParseError(n)}
			}
			payload = payload[n:]
			continue
		}
		v, n := protowire.ConsumeBytes(payload)
		if n < 0 {
			return nil, &domain.FormatError{Reason: fmt.Sprintf("payload field %d", num), Cause: protowire.ParseError(n)}
		}
		out[num] = append(out[num], v)
		payload = payload[n:]
	}
	return out, nil
}

// String returns the first value of num, or "".
func (f Fields) String(num protowire.Number) string {
	if v := f[num]; len(v) > 0 {
		return string(v[0])
	}
	return ""
}

// Strings returns every value of num.
func (f Fields) Strings(num protowire.Number) []string {
	out := make([]string, 0, len(f[num]))
	for _, v := range f[num] {
		out = append(out, string(v))
	}
	return out
}
