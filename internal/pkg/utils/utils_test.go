package utils

import (
	"strings"
	"testing"
)

func TestMaskToken(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name  string
		token string
		want  string
	}{
		{name: "empty", token: "", want: ""},
		{name: "no separator", token: "abcdef", want: "****"},
		{name: "short secret", token: "123:abc", want: "****"},
		{name: "regular token", token: "123456:AAHdqTcvCH1vGWJxfSeofSAs0K5PALDsaw", want: "123456:****Dsaw"},
	}

	for _, tt := range tests {
		tt := tt
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			if got := MaskToken(tt.token); got != tt.want {
				t.Errorf("MaskToken(%q) = %q, want %q", tt.token, got, tt.want)
			}
		})
	}
}

func TestBotIDFromToken(t *testing.T) {
	t.Parallel()

	if id, ok := BotIDFromToken("987654:secret"); !ok || id != 987654 {
		t.Errorf("BotIDFromToken() = %d, %v; want 987654, true", id, ok)
	}
	for _, bad := range []string{"", "secret", "abc:secret", "-5:secret"} {
		if _, ok := BotIDFromToken(bad); ok {
			t.Errorf("BotIDFromToken(%q) should fail", bad)
		}
	}
}

func TestHashAPIKey(t *testing.T) {
	t.Parallel()

	a := HashAPIKey("tenant-key-0123456789")
	b := HashAPIKey("  tenant-key-0123456789 ")
	if a != b {
		t.Errorf("surrounding whitespace should not change the hash")
	}
	if len(a) != 64 {
		t.Errorf("hash length = %d, want 64", len(a))
	}
	if a == HashAPIKey("another-key-0123456789") {
		t.Errorf("different keys produced the same hash")
	}
}

func TestFormatPrice(t *testing.T) {
	t.Parallel()

	tests := map[string]struct {
		amount   int64
		currency string
		want     string
	}{
		"small":       {amount: 999, currency: "usd", want: "999 USD"},
		"thousands":   {amount: 1250000, currency: "IRR", want: "1,250,000 IRR"},
		"no currency": {amount: 12500, want: "12,500"},
		"negative":    {amount: -4500, currency: "EUR", want: "-4,500 EUR"},
	}

	for name, tt := range tests {
		if got := FormatPrice(tt.amount, tt.currency); got != tt.want {
			t.Errorf("%s: FormatPrice() = %q, want %q", name, got, tt.want)
		}
	}
}

func TestGenerateOrderCode(t *testing.T) {
	t.Parallel()

	a, b := GenerateOrderCode(), GenerateOrderCode()
	if !strings.HasPrefix(a, "ORD-") {
		t.Errorf("order code %q lacks prefix", a)
	}
	if a == b {
		t.Errorf("order codes should be unique, got %q twice", a)
	}
}
