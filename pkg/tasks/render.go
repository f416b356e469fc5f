package tasks

import (
	"fmt"
	"strings"
)

var eventGlyphs = map[EventKind]string{
	EventAdded:   "+",
	EventUpdated: "~",
	EventSkipped: "-",
	EventError:   "!",
}

// Message renders the task's event history as text: one glyph-prefixed line
// per event, followed by a summary line with aggregate counts once any
// classified events exist. The history only grows, so a poller can treat the
// rendered string as append-only.
func (t Task) Message() string {
	lines := make([]string, 0, len(t.Events)+1)
	counts := map[EventKind]int{}

	for _, event := range t.Events {
		glyph, classified := eventGlyphs[event.Kind]
		if classified {
			counts[event.Kind]++
		}

		switch {
		case event.Kind == EventInfo:
			lines = append(lines, event.Outcome)
		case event.Item == "":
			lines = append(lines, fmt.Sprintf("%s %s", glyph, event.Outcome))
		case event.Outcome == "":
			lines = append(lines, fmt.Sprintf("%s %s", glyph, event.Item))
		default:
			lines = append(lines, fmt.Sprintf("%s %s: %s", glyph, event.Item, event.Outcome))
		}
	}

	if len(counts) > 0 {
		lines = append(lines, fmt.Sprintf(
			"added %d, updated %d, skipped %d, errors %d",
			counts[EventAdded], counts[EventUpdated], counts[EventSkipped], counts[EventError],
		))
	}

	return strings.Join(lines, "\n")
}
