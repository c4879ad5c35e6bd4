// Package codec converts envelopes to and from the protobuf wire format of
//
//	message Message {
//	    string method = 1;
//	    bytes payload = 2;
//	}
//
// without generated code: fields are read and written with protowire.
package codec

import (
	"fmt"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/oleksandrkozlov/preferans/internal/domain"
)

const (
	fieldMethod  protowire.Number = 1
	fieldPayload protowire.Number = 2
)

// Encode serializes env. The method must not be empty.
func Encode(env domain.Envelope) ([]byte, error) {
	if err := env.Validate(); err != nil {
		return nil, err
	}
	b := make([]byte, 0, len(env.Method)+len(env.Payload)+8)
	b = protowire.AppendTag(b, fieldMethod, protowire.BytesType)
	b = protowire.AppendString(b, env.Method)
	if len(env.Payload) > 0 {
		b = protowire.AppendTag(b, fieldPayload, protowire.BytesType)
		b = protowire.AppendBytes(b, env.Payload)
	}
	return b, nil
}

// MustEncode is Encode for envelopes built from constants.
func MustEncode(env domain.Envelope) []byte {
	b, err := Encode(env)
	if err != nil {
		panic(err)
	}
	return b
}

// Decode parses one envelope. Unknown fields are skipped like any protobuf parser does;
// broken framing, invalid wire types and a missing method are a *domain.FormatError.
func Decode(data []byte) (domain.Envelope, error) {
	var env domain.Envelope
	for len(data) > 0 {
		num, typ, n := protowire.ConsumeTag(data)
		if n < 0 {
			return domain.Envelope{}, formatError("tag", protowire.ParseError(n))
		}
		data = data[n:]

		switch num {
		case fieldMethod, fieldPayload:
			if typ != protowire.BytesType {
				return domain.Envelope{}, &domain.FormatError{
					Reason: fmt.Sprintf("field %d: wire type %d, want %d", num, typ, protowire.BytesType),
				}
			}
			v, n := protowire.ConsumeBytes(data)
			if n < 0 {
				return domain.Envelope{}, formatError(fmt.Sprintf("field %d", num), protowire.ParseError(n))
			}
			if num == fieldMethod {
				env.Method = string(v)
			} else {
				env.Payload = append([]byte(nil), v...)
			}
			data = data[n:]
		default:
			n := protowire.ConsumeFieldValue(num, typ, data)
			if n < 0 {
				return domain.Envelope{}, formatError(fmt.Sprintf("field %d", num), protowire.ParseError(n))
			}
			data = data[n:]
		}
	}
	if env.Method == "" {
		return domain.Envelope{}, &domain.FormatError{Reason: "missing method"}
	}
	return env, nil
}

func formatError(where string, err error) error {
	return &domain.FormatError{Reason: where, Cause: err}
}
