package logentry

import (
	"strconv"

	timecache "github.com/agilira/go-timecache"
)

// Formatter maps a host-facade Event into a buffered Entry, implementing
// every rule of spec §4.2. It holds no state beyond the label/metadata
// configuration callers pass at each call, so the zero value is usable
// and a single Formatter may be shared across producer goroutines.
type Formatter struct{}

// Format converts ev into an Entry using labelConfig to extract labels and
// metaKeys to select which metadata entries are emitted as structured
// metadata.
func (Formatter) Format(ev Event, labelConfig map[string]LabelSource, metaKeys []string) Entry {
	ts, ok := ev.MetaTime()
	var timestamp int64
	if ok {
		timestamp = ts * 1000 // microseconds -> nanoseconds, spec §4.2
	} else {
		timestamp = timecache.CachedTimeNano()
	}

	labels := make(map[string]string, len(labelConfig))
	for name, src := range labelConfig {
		if v, ok := src.resolve(ev, ev.Level); ok {
			labels[name] = v
		}
	}
	if len(labels) == 0 {
		labels = map[string]string{"level": ev.Level.String()}
	}

	var meta map[string]string
	if len(metaKeys) > 0 {
		meta = make(map[string]string, len(metaKeys))
		for _, key := range metaKeys {
			v, ok := ev.MetaValue(key)
			if !ok {
				continue
			}
			meta[key] = coerceMetadataValue(v)
		}
	}

	return Entry{
		Timestamp:          timestamp,
		Level:              ev.Level,
		Message:            Render(ev.Msg, ev.MetaReportCallback()),
		Labels:             labels,
		StructuredMetadata: meta,
	}
}

func coerceMetadataValue(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case int:
		return strconv.Itoa(val)
	case int64:
		return strconv.FormatInt(val, 10)
	case float64:
		return strconv.FormatFloat(val, 'g', -1, 64)
	default:
		return Inspect(v)
	}
}
