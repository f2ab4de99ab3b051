package llm

import "testing"

func TestStripThinkingTags(t *testing.T) {
	tests := []struct {
		name string
		in   string
		want string
	}{
		{"none", "plain answer", "plain answer"},
		{"single", "<think>hmm</think>the answer", "the answer"},
		{"surrounding_space", "  <think>a</think>  answer  ", "answer"},
		{"multiple", "<think>a</think>x<think>b</think>y", "xy"},
		{"unclosed", "prefix<think>never closed", "prefix"},
		{"empty", "", ""},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := StripThinkingTags(tt.in); got != tt.want {
				t.Errorf("StripThinkingTags(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}
