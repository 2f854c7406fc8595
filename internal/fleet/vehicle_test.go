package fleet

import "testing"

func TestCanTransition(t *testing.T) {
	// 三个状态两两可达
	all := []Status{StatusActive, StatusMaintenance, StatusInactive}
	for _, from := range all {
		for _, to := range all {
			if !CanTransition(from, to) {
				t.Fatalf("expected %s -> %s allowed", from, to)
			}
		}
	}

	if CanTransition(StatusActive, Status("SCRAPPED")) {
		t.Fatalf("expected transition to unknown status not allowed")
	}
	if CanTransition(Status("SCRAPPED"), StatusActive) {
		t.Fatalf("expected transition from unknown status not allowed")
	}
}

func TestParseStatus(t *testing.T) {
	s, err := ParseStatus(" active ")
	if err != nil {
		t.Fatalf("ParseStatus: %v", err)
	}
	if s != StatusActive {
		t.Fatalf("expected ACTIVE, got %s", s)
	}
	if _, err := ParseStatus("scrapped"); err == nil {
		t.Fatalf("expected unknown status to fail")
	}
}

func TestNormalizePlate(t *testing.T) {
	if got := NormalizePlate(" abc-123 "); got != "ABC-123" {
		t.Fatalf("expected ABC-123, got %q", got)
	}
	if got := NormalizePlate(""); got != "" {
		t.Fatalf("expected empty, got %q", got)
	}
}
