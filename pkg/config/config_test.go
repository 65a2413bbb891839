package config

import "testing"

func TestApplyDefaultFillsMissing(t *testing.T) {
	got := ApplyDefault(Config{})
	if got.Unit != DefUnit {
		t.Errorf("Unit = %q, want %q", got.Unit, DefUnit)
	}
	if got.Code != DefCode {
		t.Errorf("Code = %q, want %q", got.Code, DefCode)
	}
	if got.MqURI != DefMqURI {
		t.Errorf("MqURI = %q, want %q", got.MqURI, DefMqURI)
	}
	if got.Freq != DefFreq {
		t.Errorf("Freq = %d, want %d", got.Freq, DefFreq)
	}
	if got.Power != DefPower {
		t.Errorf("Power = %d, want %d", got.Power, DefPower)
	}
}

// TestApplyDefaultDevPathFallsBackToCode preserves a probable bug in the
// original implementation: a missing dev_path defaults to DEF_CODE, not
// DEF_DEV_PATH. See spec.md §9 and DESIGN.md.
func TestApplyDefaultDevPathFallsBackToCode(t *testing.T) {
	got := ApplyDefault(Config{})
	if got.DevPath != DefCode {
		t.Errorf("DevPath = %q, want %q (the preserved apply_default bug)", got.DevPath, DefCode)
	}
	if got.DevPath == DefDevPath {
		t.Errorf("DevPath unexpectedly matches DefDevPath; the bug should make it fall back to DefCode instead")
	}
}

func TestApplyDefaultPreservesExplicitValues(t *testing.T) {
	cfg := Config{Unit: "u1", Code: "c1", MqURI: "redis://x/1", DevPath: "/dev/ttyUSB0", Freq: 90000, Power: 7}
	got := ApplyDefault(cfg)
	if got != cfg {
		t.Errorf("ApplyDefault altered explicit config: got %+v, want %+v", got, cfg)
	}
}
