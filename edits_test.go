package understory

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestEditSweepMapRange(t *testing.T) {
	tests := []struct {
		name     string
		r        Range
		edits    []Edit
		want     Range
		moved    bool
		modified bool
	}{
		{
			name:  "insert before shifts",
			r:     Range{10, 20},
			edits: []Edit{{StartByte: 2, OldEndByte: 2, NewEndByte: 5}},
			want:  Range{13, 23},
			moved: true,
		},
		{
			name:  "edit after leaves alone",
			r:     Range{10, 20},
			edits: []Edit{{StartByte: 25, OldEndByte: 30, NewEndByte: 25}},
			want:  Range{10, 20},
		},
		{
			name:     "edit inside grows end",
			r:        Range{10, 20},
			edits:    []Edit{{StartByte: 12, OldEndByte: 14, NewEndByte: 18}},
			want:     Range{10, 24},
			modified: true,
		},
		{
			name:  "edit crossing start clips to new end",
			r:     Range{10, 20},
			edits: []Edit{{StartByte: 5, OldEndByte: 15, NewEndByte: 8}},
			want:  Range{8, 13},
			moved: true,
		},
		{
			name:     "edit crossing end",
			r:        Range{10, 20},
			edits:    []Edit{{StartByte: 15, OldEndByte: 25, NewEndByte: 30}},
			want:     Range{10, 20},
			modified: true,
		},
		{
			name:  "edit swallowing dissolves",
			r:     Range{10, 20},
			edits: []Edit{{StartByte: 5, OldEndByte: 25, NewEndByte: 7}},
			want:  Range{7, 7},
			moved: true,
		},
		{
			name: "two edits inside",
			r:    Range{10, 30},
			edits: []Edit{
				{StartByte: 12, OldEndByte: 13, NewEndByte: 12},
				{StartByte: 20, OldEndByte: 20, NewEndByte: 24},
			},
			want:     Range{10, 33},
			modified: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sweep := newEditSweep(tt.edits)
			r := tt.r
			moved, modified := sweep.mapRange(&r)
			assert.Equal(t, tt.want, r)
			assert.Equal(t, tt.moved, moved, "moved")
			assert.Equal(t, tt.modified, modified, "modified")
		})
	}
}

func TestEditSweepMultipleRanges(t *testing.T) {
	edits := []Edit{
		{StartByte: 0, OldEndByte: 5, NewEndByte: 2},
		{StartByte: 22, OldEndByte: 25, NewEndByte: 35},
	}
	sweep := newEditSweep(edits)

	r1 := Range{10, 20}
	moved, modified := sweep.mapRange(&r1)
	assert.Equal(t, Range{7, 17}, r1)
	assert.True(t, moved)
	assert.False(t, modified)

	r2 := Range{30, 40}
	moved, modified = sweep.mapRange(&r2)
	assert.Equal(t, Range{37, 47}, r2)
	assert.True(t, moved)
	assert.False(t, modified)
}

func TestLayerApplyEditsSetsFlags(t *testing.T) {
	layer := &layerData{ranges: []Range{{10, 20}, {40, 50}}}
	layer.applyEdits([]Edit{{StartByte: 42, OldEndByte: 44, NewEndByte: 47}})

	assert.Equal(t, []Range{{10, 20}, {40, 53}}, layer.ranges)
	assert.True(t, layer.flags.modified)
	assert.False(t, layer.flags.moved)
}
