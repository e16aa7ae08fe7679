package phone

import "testing"

func TestNormalizeE164(t *testing.T) {
	cases := []struct {
		name   string
		input  string
		region string
		want   string
	}{
		{name: "us national", input: "(201) 555-0123", region: "US", want: "+12015550123"},
		{name: "already e164", input: "+442071838750", region: "US", want: "+442071838750"},
		{name: "default region", input: "201-555-0123", region: "", want: "+12015550123"},
		{name: "garbage kept", input: "  call me  ", region: "US", want: "call me"},
		{name: "empty", input: "   ", region: "US", want: ""},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if got := NormalizeE164(tc.input, tc.region); got != tc.want {
				t.Fatalf("NormalizeE164(%q) = %q, want %q", tc.input, got, tc.want)
			}
		})
	}
}
