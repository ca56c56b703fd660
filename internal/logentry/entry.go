package logentry

// Entry is the unit of buffered work (spec §3). Labels is never empty:
// the formatter injects a default {"level": <level>} when every
// configured label source resolves to nothing (spec §9 Open Question,
// decided in favor of "inject a default" over "drop with a metric").
// StructuredMetadata never carries a key bound to a nil/absent value.
type Entry struct {
	Timestamp          int64
	Level              Level
	Message            string
	Labels             map[string]string
	StructuredMetadata map[string]string
}

// LabelsEqual reports whether two label maps are deep-equal, the
// partition key used by the Loki client to group entries into streams
// (spec §4.4 step 1).
func LabelsEqual(a, b map[string]string) bool {
	if len(a) != len(b) {
		return false
	}
	for k, v := range a {
		if bv, ok := b[k]; !ok || bv != v {
			return false
		}
	}
	return true
}
