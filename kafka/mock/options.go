package mockkafka

import (
	"time"

	"github.com/hugolhafner/go-camus/kafka"
)

// Option is a functional option for configuring a ReaderFactory.
type Option func(*ReaderFactory)

// WithFetchDelay adds an artificial delay to every Next call.
func WithFetchDelay(d time.Duration) Option {
	return func(f *ReaderFactory) {
		f.fetchDelay = d
	}
}

// WithFetchError fails every fetch with err.
func WithFetchError(err error) Option {
	return func(f *ReaderFactory) {
		f.fetchErr = func(kafka.Assignment, int64) error { return err }
	}
}

// WithFetchErrorAt fails the fetch of the given offset on the given topic-partition.
func WithFetchErrorAt(tp kafka.TopicPartition, offset int64, err error) Option {
	return func(f *ReaderFactory) {
		f.fetchErr = func(a kafka.Assignment, o int64) error {
			if a.TopicPartition() == tp && o == offset {
				return err
			}
			return nil
		}
	}
}

// WithOpenError fails every Open with err.
func WithOpenError(err error) Option {
	return func(f *ReaderFactory) {
		f.openErr = func(kafka.Assignment) error { return err }
	}
}

// WithOpenErrorFunc configures a function to determine Open errors.
func WithOpenErrorFunc(fn func(a kafka.Assignment) error) Option {
	return func(f *ReaderFactory) {
		f.openErr = fn
	}
}
