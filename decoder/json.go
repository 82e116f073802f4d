package decoder

import (
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/hugolhafner/go-camus/kafka"
)

type JSONConfig struct {
	// TimestampField names the top-level field holding the event time
	TimestampField string
	// TimestampFormat is a time layout; empty means unix milliseconds
	TimestampFormat string
	ServerField     string
	ServiceField    string
}

func defaultJSONConfig() JSONConfig {
	return JSONConfig{
		TimestampField: "timestamp",
		ServerField:    "server",
		ServiceField:   "service",
	}
}

type JSONOption func(*JSONConfig)

func WithTimestampField(name string) JSONOption {
	return func(c *JSONConfig) { c.TimestampField = name }
}

func WithTimestampFormat(layout string) JSONOption {
	return func(c *JSONConfig) { c.TimestampFormat = layout }
}

func WithServerServiceFields(server, service string) JSONOption {
	return func(c *JSONConfig) {
		c.ServerField = server
		c.ServiceField = service
	}
}

type jsonDecoder struct {
	cfg JSONConfig
}

// JSON decodes object payloads into map[string]any. The event time is read
// from the timestamp field; when absent or unparseable the broker time is used.
func JSON(opts ...JSONOption) Decoder {
	cfg := defaultJSONConfig()
	for _, opt := range opts {
		opt(&cfg)
	}
	return jsonDecoder{cfg: cfg}
}

func (d jsonDecoder) Decode(msg kafka.Message) (Decoded, error) {
	var record map[string]any
	if err := json.Unmarshal(msg.Value, &record); err != nil {
		return Decoded{}, &DecodeError{Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset, Err: err}
	}
	if record == nil {
		return Decoded{}, &DecodeError{
			Topic: msg.Topic, Partition: msg.Partition, Offset: msg.Offset,
			Err: fmt.Errorf("payload is not a json object"),
		}
	}

	out := Decoded{Record: record}
	ts, ok := d.timestamp(record)
	if ok {
		out.Timestamp = ts
	} else {
		out.Timestamp = brokerTime(msg)
		out.TimestampFallback = true
	}

	out.PartitionMap = make(map[string]string, 2)
	if s, ok := record[d.cfg.ServerField].(string); ok && s != "" {
		out.PartitionMap["server"] = s
	}
	if s, ok := record[d.cfg.ServiceField].(string); ok && s != "" {
		out.PartitionMap["service"] = s
	}

	return out, nil
}

func (d jsonDecoder) timestamp(record map[string]any) (time.Time, bool) {
	raw, ok := record[d.cfg.TimestampField]
	if !ok {
		return time.Time{}, false
	}

	switch v := raw.(type) {
	case float64:
		return time.UnixMilli(int64(v)), true
	case string:
		if d.cfg.TimestampFormat == "" {
			ms, err := strconv.ParseInt(v, 10, 64)
			if err != nil {
				return time.Time{}, false
			}
			return time.UnixMilli(ms), true
		}
		ts, err := time.Parse(d.cfg.TimestampFormat, v)
		if err != nil {
			return time.Time{}, false
		}
		return ts, true
	default:
		return time.Time{}, false
	}
}
