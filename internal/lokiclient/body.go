// Package lokiclient builds and pushes batches of buffered entries to
// Grafana Loki's JSON push API (spec §4.4).
package lokiclient

import (
	"encoding/json"
	"sort"
	"strconv"

	"github.com/ausimian/loki-logger-handler/internal/buffer"
	"github.com/ausimian/loki-logger-handler/internal/logentry"
)

func marshalArray(elems ...any) ([]byte, error) {
	return json.Marshal(elems)
}

// PushBody is the wire shape POSTed to <base_url>/loki/api/v1/push.
type PushBody struct {
	Streams []Stream `json:"streams"`
}

// Stream is one label set's worth of values.
type Stream struct {
	Labels map[string]string `json:"stream"`
	Values []Value           `json:"values"`
}

// Value is one log line: [timestamp_ns_decimal, message] or
// [timestamp_ns_decimal, message, structured_metadata] when the entry's
// structured metadata is non-empty (spec §4.4 step 3).
type Value struct {
	TimestampNS string
	Message     string
	Metadata    map[string]string
}

// MarshalJSON renders Value as the two- or three-element array the wire
// format requires.
func (v Value) MarshalJSON() ([]byte, error) {
	if len(v.Metadata) == 0 {
		return marshalArray(v.TimestampNS, v.Message)
	}
	return marshalArray(v.TimestampNS, v.Message, v.Metadata)
}

// BuildPushBody partitions entries by their exact Labels mapping (deep
// equality), sorts each partition by timestamp ascending, and wraps the
// result as a Loki push body (spec §4.4 steps 1-4).
func BuildPushBody(items []buffer.Item) PushBody {
	type partition struct {
		labels  map[string]string
		entries []logentry.Entry
	}

	var partitions []partition
	for _, it := range items {
		idx := -1
		for i, p := range partitions {
			if logentry.LabelsEqual(p.labels, it.Entry.Labels) {
				idx = i
				break
			}
		}
		if idx == -1 {
			partitions = append(partitions, partition{labels: it.Entry.Labels})
			idx = len(partitions) - 1
		}
		partitions[idx].entries = append(partitions[idx].entries, it.Entry)
	}

	streams := make([]Stream, 0, len(partitions))
	for _, p := range partitions {
		sorted := make([]logentry.Entry, len(p.entries))
		copy(sorted, p.entries)
		sort.SliceStable(sorted, func(i, j int) bool {
			return sorted[i].Timestamp < sorted[j].Timestamp
		})

		values := make([]Value, len(sorted))
		for i, e := range sorted {
			values[i] = Value{
				TimestampNS: strconv.FormatInt(e.Timestamp, 10),
				Message:     e.Message,
				Metadata:    e.StructuredMetadata,
			}
		}
		streams = append(streams, Stream{Labels: p.labels, Values: values})
	}

	return PushBody{Streams: streams}
}
