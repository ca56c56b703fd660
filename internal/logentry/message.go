package logentry

import "fmt"

// Message is the sum type of the three shapes a host logging facade may
// hand the formatter as an event's message (spec §4.2/§6): plain text, a
// printf-style template with arguments, or a report (a set of key/value
// pairs rendered as "k=v k=v ...").
//
// Modeled as a sealed interface rather than dispatching on a type tag
// string, per the spec's own design note against stringly-typed dispatch.
type Message interface {
	isMessage()
}

// Text is a message that is already rendered text.
type Text string

func (Text) isMessage() {}

// Report is a set of key/value pairs rendered as "k=v" joined by spaces.
type Report map[string]any

func (Report) isMessage() {}

// KeyedReport is a report whose keys must preserve the caller's ordering,
// for facades that hand the formatter an ordered list of pairs instead of
// a map (spec §4.2: "a report (mapping or key/value list)").
type KeyedReport []KeyValue

func (KeyedReport) isMessage() {}

// KeyValue is one pair of a KeyedReport.
type KeyValue struct {
	Key   string
	Value any
}

// Format is a printf-style template paired with its arguments.
type Format struct {
	Template string
	Args     []any
}

func (Format) isMessage() {}

// Render applies the message rendering rules of spec §4.2. reportCB, if
// non-nil, overrides the default "k=inspect(v)" rendering for Report and
// KeyedReport messages (the event metadata's optional report_cb).
func Render(msg Message, reportCB func(map[string]any) string) string {
	switch m := msg.(type) {
	case Text:
		return string(m)
	case Format:
		return fmt.Sprintf(m.Template, m.Args...)
	case Report:
		if reportCB != nil {
			return reportCB(m)
		}
		return renderPairs(reportKeys(m))
	case KeyedReport:
		if reportCB != nil {
			flat := make(map[string]any, len(m))
			for _, kv := range m {
				flat[kv.Key] = kv.Value
			}
			return reportCB(flat)
		}
		pairs := make([]KeyValue, len(m))
		copy(pairs, m)
		return renderPairs(pairs)
	default:
		return ""
	}
}

func reportKeys(m Report) []KeyValue {
	pairs := make([]KeyValue, 0, len(m))
	for k, v := range m {
		pairs = append(pairs, KeyValue{Key: k, Value: v})
	}
	return pairs
}

func renderPairs(pairs []KeyValue) string {
	out := ""
	for i, kv := range pairs {
		if i > 0 {
			out += " "
		}
		out += fmt.Sprintf("%s=%s", kv.Key, Inspect(kv.Value))
	}
	return out
}

// Inspect renders an arbitrary value the way the formatter coerces
// metadata/label values: strings pass through unchanged, anything else
// falls back to a structured-inspection string (spec §4.2).
func Inspect(v any) string {
	switch val := v.(type) {
	case string:
		return val
	case fmt.Stringer:
		return val.String()
	default:
		return fmt.Sprintf("%#v", val)
	}
}
