package understory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueryIterEventOrder(t *testing.T) {
	syntax, _ := parseGo(t, injectionSample, goCommentInjections)
	events := collectEvents(t, syntax, injectionSample)
	require.NotEmpty(t, events)

	var last uint32
	depth := 0
	for _, event := range events {
		offset := eventOffset(event)
		assert.GreaterOrEqual(t, offset, last, "event offsets advance monotonically")
		last = offset

		switch event.Kind {
		case EventEnterInjection:
			depth++
		case EventExitInjection:
			depth--
			require.GreaterOrEqual(t, depth, 0, "exit without matching enter")
		}
	}
	assert.Equal(t, 0, depth, "every entered injection is exited")
}

func TestQueryIterEntersEachComment(t *testing.T) {
	syntax, _ := parseGo(t, injectionSample, goCommentInjections)
	events := collectEvents(t, syntax, injectionSample)

	s1, e1 := commentSpan(t, injectionSample, "// first note")
	s2, e2 := commentSpan(t, injectionSample, "// second note")

	var enters, exits []QueryEvent
	for _, event := range events {
		switch event.Kind {
		case EventEnterInjection:
			enters = append(enters, event)
		case EventExitInjection:
			exits = append(exits, event)
		}
	}
	require.Len(t, enters, 2)
	require.Len(t, exits, 2)

	assert.Equal(t, s1, enters[0].Injection.Range.Start)
	assert.Equal(t, e1, enters[0].Injection.Range.End)
	assert.Equal(t, s2, enters[1].Injection.Range.Start)
	assert.Equal(t, e2, enters[1].Injection.Range.End)

	assert.Equal(t, langJS, enters[0].Language)
	assert.Equal(t, langJS, enters[1].Language)

	// Each comment is its own layer, so both exits are final.
	assert.True(t, exits[0].Finished)
	assert.True(t, exits[1].Finished)
	assert.NotEqual(t, enters[0].Layer, enters[1].Layer)
}

func TestQueryIterCombinedLayerFinishesOnLastExit(t *testing.T) {
	syntax, _ := parseGo(t, injectionSample, goCombinedCommentInjections)
	events := collectEvents(t, syntax, injectionSample)

	var exits []QueryEvent
	for _, event := range events {
		if event.Kind == EventExitInjection {
			exits = append(exits, event)
		}
	}
	require.Len(t, exits, 2)
	assert.Equal(t, exits[0].Layer, exits[1].Layer, "combined comments share a layer")
	assert.False(t, exits[0].Finished, "layer resumes at the second comment")
	assert.True(t, exits[1].Finished)
}

func TestQueryIterMatchLayersFollowInjections(t *testing.T) {
	syntax, _ := parseGo(t, injectionSample, goCommentInjections)
	events := collectEvents(t, syntax, injectionSample)

	s1, e1 := commentSpan(t, injectionSample, "// first note")

	root := syntax.Root()
	sawRootMatch := false
	for _, event := range events {
		if event.Kind != EventMatch {
			continue
		}
		start := event.Match.Node.StartByte()
		if event.Layer == root {
			sawRootMatch = true
			// A match starting exactly at the injection start (the comment
			// node itself) is emitted before entering; only matches strictly
			// inside are suppressed.
			inside := start > s1 && event.Match.Node.EndByte() <= e1
			assert.False(t, inside, "root matches inside an injection are suppressed")
		} else {
			assert.Equal(t, langJS, event.Language)
		}
	}
	assert.True(t, sawRootMatch)
}

func TestQueryIterWindowed(t *testing.T) {
	syntax, loader := parseGo(t, injectionSample, goCommentInjections)
	_ = loader

	start := offsetOf(t, injectionSample, "func b", 0)
	iter := NewQueryIter(syntax, []byte(injectionSample), highlightLoader, start, uint32(len(injectionSample)))
	defer iter.Close()

	for {
		event, ok := iter.Next()
		if !ok {
			break
		}
		if event.Kind != EventMatch {
			continue
		}
		assert.GreaterOrEqual(t, event.Match.Node.EndByte(), start,
			"matches ending before the window are skipped")
	}
}
