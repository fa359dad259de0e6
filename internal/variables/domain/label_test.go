package variables

import "testing"

func TestLabelResolve(t *testing.T) {
	variable := func(name string) (string, bool) {
		if name == "boiler.temp" {
			return "71.5", true
		}
		return "", false
	}
	topic := func(name string) (string, bool) {
		if name == "plant/boiler1/status" {
			return "running", true
		}
		return "", false
	}

	cases := []struct {
		name  string
		label Label
		want  string
	}{
		{"static", StaticLabel("Boiler 1"), "Boiler 1"},
		{"dynamic", DynamicLabel("boiler.temp"), "71.5"},
		{"dynamic missing", DynamicLabel("absent"), ""},
		{"mqtt", MqttLabel("plant/boiler1/status"), "running"},
		{"mqtt missing", MqttLabel("plant/unknown"), ""},
	}
	for _, tc := range cases {
		if got := tc.label.Resolve(variable, topic); got != tc.want {
			t.Fatalf("%s: got %q, want %q", tc.name, got, tc.want)
		}
	}
}

func TestLabelValidate(t *testing.T) {
	if err := StaticLabel("").Validate(); err != nil {
		t.Fatalf("static label with empty text is allowed, got %v", err)
	}
	if err := DynamicLabel("").Validate(); err == nil {
		t.Fatal("expected error for dynamic label without source key")
	}
	if err := MqttLabel("").Validate(); err == nil {
		t.Fatal("expected error for mqtt label without topic")
	}
	if err := (Label{Kind: "other"}).Validate(); err == nil {
		t.Fatal("expected error for unknown label kind")
	}
}
