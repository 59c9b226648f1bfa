package stt_test

import (
	"slices"
	"testing"

	"github.com/docassist/docassist/pkg/provider/stt"
)

func TestGroupBySpeaker(t *testing.T) {
	tests := []struct {
		name  string
		words []stt.Word
		want  []stt.Turn
	}{
		{name: "empty", words: nil, want: nil},
		{
			name:  "single speaker",
			words: []stt.Word{{Word: "hello"}, {Word: "there"}},
			want:  []stt.Turn{{Speaker: 0, Text: "hello there"}},
		},
		{
			name: "alternating",
			words: []stt.Word{
				{Word: "how", Speaker: 0}, {Word: "are", Speaker: 0}, {Word: "you", Speaker: 0},
				{Word: "fine", Speaker: 1},
				{Word: "good", Speaker: 0},
			},
			want: []stt.Turn{
				{Speaker: 0, Text: "how are you"},
				{Speaker: 1, Text: "fine"},
				{Speaker: 0, Text: "good"},
			},
		},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			got := stt.GroupBySpeaker(tc.words)
			if !slices.Equal(got, tc.want) {
				t.Errorf("GroupBySpeaker = %+v, want %+v", got, tc.want)
			}
		})
	}
}
