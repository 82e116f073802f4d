package pull

import (
	"github.com/hugolhafner/go-camus/kafka"
)

// DefaultAvgMessageSize is assumed for requests that carry no size estimate
const DefaultAvgMessageSize int64 = 1024

// Request asks for the records of one partition in [StartOffset, EstimatedEndOffset)
type Request struct {
	Topic              string `json:"topic"`
	LeaderID           string `json:"leader_id"`
	Partition          int32  `json:"partition"`
	StartOffset        int64  `json:"start_offset"`
	EstimatedEndOffset int64  `json:"estimated_end_offset"`
	// AvgMessageSize comes from the previous run's checkpoint and sizes the progress estimate
	AvgMessageSize int64 `json:"avg_message_size,omitempty"`
}

func (r Request) Assignment() kafka.Assignment {
	return kafka.Assignment{
		Topic:       r.Topic,
		LeaderID:    r.LeaderID,
		Partition:   r.Partition,
		StartOffset: r.StartOffset,
		EndOffset:   r.EstimatedEndOffset,
	}
}

// EstimatedRecords is the number of records the request expects to read
func (r Request) EstimatedRecords() int64 {
	return max(r.EstimatedEndOffset-r.StartOffset, 0)
}

// EstimatedBytes sizes the request for progress reporting
func (r Request) EstimatedBytes() int64 {
	avg := r.AvgMessageSize
	if avg <= 0 {
		avg = DefaultAvgMessageSize
	}
	return r.EstimatedRecords() * avg
}

// WorkUnit is the batch of requests handed to one task
type WorkUnit struct {
	TaskID   int       `json:"task_id"`
	Requests []Request `json:"requests"`
}
