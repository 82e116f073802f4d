package decoder

import (
	"github.com/hugolhafner/go-camus/kafka"
)

// Bytes passes the payload through untouched, stamped with the broker time
func Bytes() Decoder {
	return Func(func(msg kafka.Message) (Decoded, error) {
		return Decoded{Record: msg.Value, Timestamp: brokerTime(msg)}, nil
	})
}

// String decodes the payload as a UTF-8 string, stamped with the broker time
func String() Decoder {
	return Func(func(msg kafka.Message) (Decoded, error) {
		return Decoded{Record: string(msg.Value), Timestamp: brokerTime(msg)}, nil
	})
}
