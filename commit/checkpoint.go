package commit

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"time"

	"google.golang.org/protobuf/encoding/protowire"

	"github.com/hugolhafner/go-camus/pull"
)

// Checkpoint is the resume point of one partition, read by the next scheduling round
type Checkpoint struct {
	Topic          string
	LeaderID       string
	Partition      int32
	Offset         int64
	NextOffset     int64
	AvgMessageSize int64
	Time           time.Time
	Server         string
	Service        string
}

const (
	fieldTopic protowire.Number = iota + 1
	fieldLeaderID
	fieldPartition
	fieldOffset
	fieldNextOffset
	fieldAvgMessageSize
	fieldTime
	fieldServer
	fieldService
)

// CheckpointOf turns a cursor into its checkpoint; the message size becomes the partition average
func CheckpointOf(c Cursor) Checkpoint {
	k := c.LastKey
	return Checkpoint{
		Topic:          k.Topic,
		LeaderID:       k.LeaderID,
		Partition:      k.Partition,
		Offset:         k.Offset,
		NextOffset:     k.NextOffset,
		AvgMessageSize: c.AverageMessageSize(),
		Time:           k.Time,
		Server:         k.Server,
		Service:        k.Service,
	}
}

// NextRequest plans the follow-up pull from this checkpoint up to latestOffset
func (c Checkpoint) NextRequest(latestOffset int64) pull.Request {
	return pull.Request{
		Topic:              c.Topic,
		LeaderID:           c.LeaderID,
		Partition:          c.Partition,
		StartOffset:        c.NextOffset,
		EstimatedEndOffset: latestOffset,
		AvgMessageSize:     c.AvgMessageSize,
	}
}

func (c Checkpoint) marshal() []byte {
	var b []byte
	b = protowire.AppendTag(b, fieldTopic, protowire.BytesType)
	b = protowire.AppendString(b, c.Topic)
	b = protowire.AppendTag(b, fieldLeaderID, protowire.BytesType)
	b = protowire.AppendString(b, c.LeaderID)
	b = protowire.AppendTag(b, fieldPartition, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.Partition))
	b = protowire.AppendTag(b, fieldOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(c.Offset))
	b = protowire.AppendTag(b, fieldNextOffset, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(c.NextOffset))
	b = protowire.AppendTag(b, fieldAvgMessageSize, protowire.VarintType)
	b = protowire.AppendVarint(b, uint64(c.AvgMessageSize))
	b = protowire.AppendTag(b, fieldTime, protowire.VarintType)
	b = protowire.AppendVarint(b, protowire.EncodeZigZag(c.Time.UnixMilli()))
	if c.Server != "" {
		b = protowire.AppendTag(b, fieldServer, protowire.BytesType)
		b = protowire.AppendString(b, c.Server)
	}
	if c.Service != "" {
		b = protowire.AppendTag(b, fieldService, protowire.BytesType)
		b = protowire.AppendString(b, c.Service)
	}
	return b
}

func (c *Checkpoint) unmarshal(b []byte) error {
	for len(b) > 0 {
		num, typ, n := protowire.ConsumeTag(b)
		if n < 0 {
			return protowire.ParseError(n)
		}
		b = b[n:]

		switch {
		case typ == protowire.BytesType && (num == fieldTopic || num == fieldLeaderID || num == fieldServer || num == fieldService):
			v, n := protowire.ConsumeString(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldTopic:
				c.Topic = v
			case fieldLeaderID:
				c.LeaderID = v
			case fieldServer:
				c.Server = v
			case fieldService:
				c.Service = v
			}

		case typ == protowire.VarintType && num >= fieldPartition && num <= fieldTime:
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
			switch num {
			case fieldPartition:
				c.Partition = int32(v)
			case fieldOffset:
				c.Offset = protowire.DecodeZigZag(v)
			case fieldNextOffset:
				c.NextOffset = protowire.DecodeZigZag(v)
			case fieldAvgMessageSize:
				c.AvgMessageSize = int64(v)
			case fieldTime:
				c.Time = time.UnixMilli(protowire.DecodeZigZag(v))
			}

		default:
			n := protowire.ConsumeFieldValue(num, typ, b)
			if n < 0 {
				return protowire.ParseError(n)
			}
			b = b[n:]
		}
	}
	return nil
}

// WriteCheckpoints appends each checkpoint as a length-delimited record
func WriteCheckpoints(w io.Writer, cps []Checkpoint) error {
	var buf []byte
	for _, c := range cps {
		buf = protowire.AppendBytes(buf[:0], c.marshal())
		if _, err := w.Write(buf); err != nil {
			return err
		}
	}
	return nil
}

// ReadCheckpoints reads a sequence written by WriteCheckpoints
func ReadCheckpoints(r io.Reader) ([]Checkpoint, error) {
	br := bufio.NewReader(r)
	var out []Checkpoint
	for {
		size, err := readUvarint(br)
		if errors.Is(err, io.EOF) {
			return out, nil
		}
		if err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", len(out), err)
		}

		body := make([]byte, size)
		if _, err := io.ReadFull(br, body); err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", len(out), err)
		}

		var c Checkpoint
		if err := c.unmarshal(body); err != nil {
			return nil, fmt.Errorf("checkpoint %d: %w", len(out), err)
		}
		out = append(out, c)
	}
}

// readUvarint reads a protowire varint prefix; io.EOF only at a clean record boundary
func readUvarint(br *bufio.Reader) (uint64, error) {
	var b []byte
	for i := 0; i < binaryMaxVarintLen; i++ {
		c, err := br.ReadByte()
		if err != nil {
			if errors.Is(err, io.EOF) && len(b) > 0 {
				return 0, io.ErrUnexpectedEOF
			}
			return 0, err
		}
		b = append(b, c)
		if c < 0x80 {
			v, n := protowire.ConsumeVarint(b)
			if n < 0 {
				return 0, protowire.ParseError(n)
			}
			return v, nil
		}
	}
	return 0, errors.New("varint overflow")
}

const binaryMaxVarintLen = 10
