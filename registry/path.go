package registry

import (
	"fmt"
	"path/filepath"
	"strconv"

	"github.com/hugolhafner/go-coldstore/kafka"
)

// LogPath describes one locally buffered file. The file holds an
// offset-ordered, contiguous run of records whose first offset equals
// StartOffset. LogPath is comparable and used as a map key.
type LogPath struct {
	Topic       string
	Partition   int32
	Generation  int
	StartOffset int64
	Extension   string
}

func (p LogPath) TopicPartition() kafka.TopicPartition {
	return kafka.TopicPartition{Topic: p.Topic, Partition: p.Partition}
}

// Filename is zero-padded so lexicographic order matches offset order.
func (p LogPath) Filename() string {
	return fmt.Sprintf("%020d.log%s", p.StartOffset, p.Extension)
}

// Relative returns the path under the registry base directory. The same
// layout is used as the object key on upload.
func (p LogPath) Relative() string {
	return filepath.Join(
		strconv.Itoa(p.Generation),
		p.Topic,
		strconv.FormatInt(int64(p.Partition), 10),
		p.Filename(),
	)
}

func (p LogPath) String() string {
	return p.Relative()
}
