package listenaddr

import "testing"

func TestParseValid(t *testing.T) {
	tests := []struct {
		name string
		addr string
		host string
		min  uint64
		max  uint64
	}{
		{name: "SinglePort", addr: "example.com:2200", host: "example.com", min: 2200, max: 2200},
		{name: "Range", addr: "example.com:2200-2205", host: "example.com", min: 2200, max: 2205},
		{name: "IPv4Range", addr: "0.0.0.0:1-65535", host: "0.0.0.0", min: 1, max: 65535},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := Parse(tt.addr)
			if err != nil {
				t.Fatalf("Parse(%q) unexpected error: %v", tt.addr, err)
			}
			if r.Host != tt.host {
				t.Fatalf("expected host %q, got %q", tt.host, r.Host)
			}
			if r.MinPort != tt.min || r.MaxPort != tt.max {
				t.Fatalf("expected ports [%d,%d], got [%d,%d]", tt.min, tt.max, r.MinPort, r.MaxPort)
			}
		})
	}
}

func TestParseInvalid(t *testing.T) {
	tests := []struct {
		name string
		addr string
	}{
		{name: "MissingPort", addr: "example.com"},
		{name: "ZeroPort", addr: "example.com:0"},
		{name: "PortTooLarge", addr: "example.com:70000"},
		{name: "MaxLessThanMin", addr: "example.com:3000-2000"},
		{name: "HighRange", addr: "example.com:65534-70000"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse(tt.addr); err == nil {
				t.Fatalf("Parse(%q) expected error", tt.addr)
			}
		})
	}
}

func TestRangePorts(t *testing.T) {
	r, err := Parse("host:2200-2202")
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	got := r.Ports()
	want := []string{"host:2200", "host:2201", "host:2202"}
	if len(got) != len(want) {
		t.Fatalf("Ports() = %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("Ports()[%d] = %q, want %q", i, got[i], want[i])
		}
	}
}
