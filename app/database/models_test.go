package database

import "testing"

func TestParseStatus(t *testing.T) {
	cases := []struct {
		input string
		want  Status
		ok    bool
	}{
		{"waiting", StatusWaiting, true},
		{"Processing", StatusProcessing, true},
		{"  completed  ", StatusCompleted, true},
		{"FAILED", StatusFailed, true},
		{"", "", false},
		{"done", "", false},
	}

	for _, tc := range cases {
		got, ok := ParseStatus(tc.input)
		if ok != tc.ok {
			t.Errorf("ParseStatus(%q): expected ok=%v, got %v", tc.input, tc.ok, ok)
			continue
		}
		if ok && got != tc.want {
			t.Errorf("ParseStatus(%q): expected %s, got %s", tc.input, tc.want, got)
		}
	}
}

func TestStatus_IsTerminal(t *testing.T) {
	if StatusWaiting.IsTerminal() || StatusProcessing.IsTerminal() {
		t.Error("waiting and processing must not be terminal")
	}
	if !StatusCompleted.IsTerminal() || !StatusFailed.IsTerminal() {
		t.Error("completed and failed must be terminal")
	}
}

func TestAllStatuses_ReturnsCopy(t *testing.T) {
	statuses := AllStatuses()
	if len(statuses) != 4 {
		t.Fatalf("Expected 4 statuses, got %d", len(statuses))
	}

	statuses[0] = Status("mutated")
	if AllStatuses()[0] != StatusWaiting {
		t.Error("AllStatuses must return a copy")
	}
}
