package canon

import "testing"

func TestMarshalMapSortsKeysAndTightensSeparators(t *testing.T) {
	m := map[string]any{
		"zeta":  1,
		"alpha": "x",
		"mid":   map[string]any{"b": 2, "a": 1},
	}
	got, err := MarshalMap(m)
	if err != nil {
		t.Fatalf("MarshalMap: %v", err)
	}
	want := `{"alpha":"x","mid":{"a":1,"b":2},"zeta":1}`
	if string(got) != want {
		t.Fatalf("got %s want %s", got, want)
	}
}

func TestSignVerifyRoundTrip(t *testing.T) {
	key := []byte("shared-secret")
	body := map[string]any{
		"ts":          1.0,
		"incident_id": "inc-1",
		"zooid":       "lat_mon_001",
		"ok":          false,
	}
	sig, err := Sign(body, key)
	if err != nil {
		t.Fatalf("Sign: %v", err)
	}
	if !Verify(body, sig, key) {
		t.Fatalf("expected signature to verify")
	}
	if Verify(body, sig, []byte("wrong-key")) {
		t.Fatalf("expected signature to fail under wrong key")
	}
	body["ok"] = true
	if Verify(body, sig, key) {
		t.Fatalf("expected signature to fail after tampering")
	}
}

func TestObservationFieldsExcludesSigOnly(t *testing.T) {
	m := map[string]any{"a": 1, "sig": "deadbeef"}
	out := ObservationFields(m)
	if _, ok := out["sig"]; ok {
		t.Fatalf("sig should be excluded")
	}
	if out["a"] != 1 {
		t.Fatalf("expected other fields preserved")
	}
}
