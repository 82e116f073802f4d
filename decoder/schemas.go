package decoder

import (
	"fmt"

	"github.com/hugolhafner/go-camus/kafka"
)

// DefaultSchemaHeader is the header Schemas reads the schema name from
const DefaultSchemaHeader = "schema"

type schemas struct {
	header   string
	decoders map[string]Decoder
}

// Schemas selects a decoder per message by the value of a header. Messages
// without the header, or naming an unknown schema, fail with ErrSchemaNotFound.
func Schemas(header string, decoders map[string]Decoder) Decoder {
	if header == "" {
		header = DefaultSchemaHeader
	}
	return schemas{header: header, decoders: decoders}
}

func (s schemas) Decode(msg kafka.Message) (Decoded, error) {
	name, ok := kafka.HeaderValue(msg.Headers, s.header)
	if !ok {
		return Decoded{}, &DecodeError{
			Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset,
			Err: fmt.Errorf("missing %q header: %w", s.header, ErrSchemaNotFound),
		}
	}

	d, ok := s.decoders[string(name)]
	if !ok {
		return Decoded{}, &DecodeError{
			Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset,
			Err: fmt.Errorf("%q: %w", name, ErrSchemaNotFound),
		}
	}

	return d.Decode(msg)
}
