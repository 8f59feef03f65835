package telegram

import (
	"strings"
	"testing"
	"time"

	"github.com/rewired-gh/solsignal/internal/models"
)

func TestEscapeMarkdownV2(t *testing.T) {
	tests := []struct {
		input    string
		expected string
	}{
		{"Hello World", "Hello World"},
		{"Hello_World", "Hello\\_World"},
		{"Test*bold*", "Test\\*bold\\*"},
		{"Price: $100.50", "Price: $100\\.50"},
		{"[link](url)", "\\[link\\]\\(url\\)"},
		{"~strikethrough~", "\\~strikethrough\\~"},
		{"`code`", "\\`code\\`"},
		{">blockquote", "\\>blockquote"},
		{"#header", "\\#header"},
		{"+plus-minus", "\\+plus\\-minus"},
		{"=equal|pipe", "\\=equal\\|pipe"},
		{"{brace}", "\\{brace\\}"},
		{"end!", "end\\!"},
		{"", ""},
		{"_*[]()~`>#+-=|{}.!", "\\_\\*\\[\\]\\(\\)\\~\\`\\>\\#\\+\\-\\=\\|\\{\\}\\.\\!"},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			result := escapeMarkdownV2(tt.input)
			if result != tt.expected {
				t.Errorf("escapeMarkdownV2(%q) = %q, want %q", tt.input, result, tt.expected)
			}
		})
	}
}

func TestNewClient_InvalidChatID(t *testing.T) {
	_, err := NewClient("", "not-a-number", 3, time.Second, "")
	if err == nil {
		t.Error("Expected error for invalid chat ID, got nil")
	}
}

func TestFormatRunReport(t *testing.T) {
	now := time.Date(2026, 1, 2, 12, 0, 0, 0, time.UTC)
	r := models.RunReport{
		Published: []models.PublishedSignal{
			{
				Address:    models.Pubkey{1},
				Index:      1042,
				Asset:      "SOL/USDC",
				Direction:  models.Long,
				Confidence: 62,
				Entry:      145_230_000,
				Target:     148_500_000,
				Stop:       142_000_000,
				ExpiresAt:  now.Add(8 * time.Hour),
			},
			{
				Index:      1043,
				Asset:      "BONK/USDC",
				Direction:  models.Short,
				Confidence: 40,
				Entry:      23,
				Target:     22,
				Stop:       24,
				ExpiresAt:  now.Add(24 * time.Hour),
			},
		},
		Failed:      1,
		Aborted:     true,
		AbortReason: "publish failed (balance)",
	}

	msg := formatRunReport(r, "https://explorer.solana.com/address/%s?cluster=devnet", now)

	for _, want := range []string{
		"*2 new signals*",
		"📈 [\\#1,042 SOL/USDC LONG](https://explorer.solana.com/address/" + models.Pubkey{1}.String() + "?cluster=devnet)",
		"🎯 145\\.23 → 148\\.5, stop 142",
		"62% confidence, settles 8 hours from now",
		"📉 [\\#1,043 BONK/USDC SHORT]",
		"0\\.000023 → 0\\.000022",
		"⚠️ 1 publish failed",
		"Stopped early: publish failed \\(balance\\)",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}

func TestFormatResolutionReport(t *testing.T) {
	r := models.ResolutionReport{
		Resolved: []models.Resolution{
			{Index: 7, Asset: "ETH/USDC", Direction: models.Long, Target: 3_100_000_000, Settlement: 3_150_000_000, Outcome: models.Correct},
			{Index: 8, Asset: "ETH/USDC", Direction: models.Short, Target: 3_000_000_000, Settlement: 3_150_000_000, Outcome: models.Incorrect},
			{Index: 9, Asset: "W/USDC", Direction: models.Long, Target: 300_000, Settlement: 250_000, Outcome: models.Expired},
		},
		NoPrice: 2,
	}
	msg := formatResolutionReport(r)

	for _, want := range []string{
		"*3 signals settled*",
		"✅ 1  ❌ 1  ⏱️ 1",
		"Batch accuracy: 50\\.0%",
		"✅ \\#7 ETH/USDC LONG target 3100, settled 3150",
		"❌ \\#8 ETH/USDC SHORT",
		"⚠️ 2 without price, 0 failed",
	} {
		if !strings.Contains(msg, want) {
			t.Errorf("message missing %q:\n%s", want, msg)
		}
	}
}
