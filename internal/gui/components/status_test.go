package components

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"clip-quickview/internal/navigation"
)

func TestFormatSource(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Slot 0", FormatSource(navigation.State{}))
	assert.Equal(t, "Slot 3: graded", FormatSource(navigation.State{Index: 3, Name: "graded"}))
}

func TestFormatFrame(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "Frame 1234", FormatFrame(navigation.State{Frame: 1234}))
}

func TestFormatPreviewGroup(t *testing.T) {
	t.Parallel()

	cases := []struct {
		name  string
		state navigation.State
		want  string
	}{
		{"no group", navigation.State{Frame: 5}, ""},
		{"frame marked", navigation.State{Frame: 20, PreviewGroup: []int{10, 20, 30}}, "In preview group (3)"},
		{"frame unmarked", navigation.State{Frame: 25, PreviewGroup: []int{10, 20, 30}}, "Preview group (3)"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tc.want, FormatPreviewGroup(tc.state))
		})
	}
}
