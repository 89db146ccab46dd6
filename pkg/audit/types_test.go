package audit

import "testing"

func TestDecision_Valid(t *testing.T) {
	for _, d := range []Decision{DecisionSuccess, DecisionBlocked} {
		if !d.Valid() {
			t.Errorf("%q.Valid() = false", d)
		}
	}
	for _, d := range []Decision{"", "success", "MAYBE"} {
		if d.Valid() {
			t.Errorf("%q.Valid() = true", d)
		}
	}
}

func TestIntegrityReport_OK(t *testing.T) {
	tests := []struct {
		name   string
		report IntegrityReport
		want   bool
	}{
		{name: "empty", report: IntegrityReport{}, want: true},
		{name: "consistent", report: IntegrityReport{Counters: Counters{Total: 3, Pass: 1, Block: 2}, Records: 3}, want: true},
		{name: "split drift", report: IntegrityReport{Counters: Counters{Total: 3, Pass: 1, Block: 1}, Records: 3}},
		{name: "record drift", report: IntegrityReport{Counters: Counters{Total: 2, Pass: 1, Block: 1}, Records: 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.report.OK(); got != tt.want {
				t.Errorf("OK() = %v, want %v", got, tt.want)
			}
		})
	}
}
