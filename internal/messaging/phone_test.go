package messaging

import "testing"

func TestNormalizeSender(t *testing.T) {
	cases := []struct {
		in   string
		want string
	}{
		{"whatsapp:+14155551234", "+14155551234"},
		{"WhatsApp:+14155551234", "+14155551234"},
		{"sms:+14155551234", "+14155551234"},
		{"+14155551234", "+14155551234"},
		{"  whatsapp:+14155551234  ", "+14155551234"},
		{"", ""},
		{"whatsapp:", ""},
	}

	for _, tc := range cases {
		if got := NormalizeSender(tc.in); got != tc.want {
			t.Fatalf("NormalizeSender(%q) = %q, want %q", tc.in, got, tc.want)
		}
	}
}

func TestNormalizeSenderIsIdempotent(t *testing.T) {
	once := NormalizeSender("whatsapp:+14155551234")
	twice := NormalizeSender(once)
	if once != twice {
		t.Fatalf("expected idempotence, got %q then %q", once, twice)
	}
}
