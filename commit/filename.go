package commit

import (
	"fmt"
	"strconv"
	"strings"
)

const (
	workingPrefix = "data"
	taskSeparator = "-m-"
)

// Topic and partition key fields are escaped so that dotted topics survive the split on '.'
var (
	fieldEscaper   = strings.NewReplacer("%", "%25", ".", "%2E")
	fieldUnescaper = strings.NewReplacer("%2E", ".", "%25", "%")
)

// WorkingFile is the parsed form of
// data.<topic>.<leaderId>.<partition>.<encodedKey>-m-<taskId><extension>
type WorkingFile struct {
	Topic      string
	LeaderID   string
	Partition  int32
	EncodedKey string
	TaskID     int
	Extension  string
}

// BaseName is the name without the task suffix; counts are keyed by it
func (w WorkingFile) BaseName() string {
	return fmt.Sprintf(
		"%s.%s.%s.%d.%s",
		workingPrefix, fieldEscaper.Replace(w.Topic), w.LeaderID, w.Partition, fieldEscaper.Replace(w.EncodedKey),
	)
}

func (w WorkingFile) Name() string {
	return w.BaseName() + TaskSuffix(w.TaskID) + w.Extension
}

// TaskSuffix renders the -m-NNNNN suffix shared by working and side files
func TaskSuffix(taskID int) string {
	return fmt.Sprintf("%s%05d", taskSeparator, taskID)
}

// TaskFile names a per-task side file such as offsets-m-00003
func TaskFile(prefix string, taskID int) string {
	return prefix + TaskSuffix(taskID)
}

// ParseWorkingFile extracts the metadata encoded in a working file name
func ParseWorkingFile(name, extension string) (WorkingFile, error) {
	fail := func(reason string) (WorkingFile, error) {
		return WorkingFile{}, fmt.Errorf("%w %q: %s", ErrWorkingFileName, name, reason)
	}

	if !strings.HasSuffix(name, extension) {
		return fail("missing extension " + extension)
	}
	rest := strings.TrimSuffix(name, extension)

	idx := strings.LastIndex(rest, taskSeparator)
	if idx < 0 {
		return fail("missing task suffix")
	}
	taskID, err := strconv.Atoi(rest[idx+len(taskSeparator):])
	if err != nil || !isDigits(rest[idx+len(taskSeparator):]) {
		return fail("invalid task id")
	}

	parts := strings.Split(rest[:idx], ".")
	if len(parts) != 5 || parts[0] != workingPrefix {
		return fail("expected data.<topic>.<leader>.<partition>.<key>")
	}

	topic, leader, part, encoded := fieldUnescaper.Replace(parts[1]), parts[2], parts[3], fieldUnescaper.Replace(parts[4])
	if topic == "" || encoded == "" {
		return fail("empty topic or partition key")
	}
	if !isLeaderID(leader) {
		return fail("invalid leader id")
	}
	partition, err := strconv.ParseInt(part, 10, 32)
	if err != nil || !isDigits(part) {
		return fail("invalid partition")
	}

	return WorkingFile{
		Topic:      topic,
		LeaderID:   leader,
		Partition:  int32(partition),
		EncodedKey: encoded,
		TaskID:     taskID,
		Extension:  extension,
	}, nil
}

func isDigits(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

func isLeaderID(s string) bool {
	if s == "" {
		return false
	}
	for _, r := range s {
		if (r < '0' || r > '9') && r != '_' {
			return false
		}
	}
	return true
}
