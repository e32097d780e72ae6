package sanitize

import "testing"

func TestRedactPII(t *testing.T) {
	in := "Call Jane on +254 712 345 678 or mail jane.doe@example.co.ke about KAA 123B"
	got := RedactPII(in)
	want := "Call Jane on [redacted phone] or mail [redacted email] about KAA 123B"
	if got != want {
		t.Fatalf("RedactPII:\n got %q\nwant %q", got, want)
	}
}

func TestMasking(t *testing.T) {
	if got := MaskEmail("jane@example.com"); got != "j***@example.com" {
		t.Fatalf("MaskEmail: %q", got)
	}
	if got := MaskID("12345678"); got != "*****678" {
		t.Fatalf("MaskID: %q", got)
	}
	if got := MaskID("ab"); got != "**" {
		t.Fatalf("MaskID short: %q", got)
	}
	if got := RedactNationalIDs("holder id 12345678 verified"); got != "holder id *****678 verified" {
		t.Fatalf("RedactNationalIDs: %q", got)
	}
}

func TestSummaryCutsOnWordBoundary(t *testing.T) {
	got := Summary("rear-ended at the junction near the market", 20)
	if got != "rear-ended at the…" {
		t.Fatalf("Summary: %q", got)
	}
	if Summary("short", 20) != "short" {
		t.Fatal("short strings are returned unchanged")
	}
}

func TestTextStripsMarkup(t *testing.T) {
	got := Text("  <b>Rear</b> ended & towed<script>alert(1)</script>  ")
	if got != "Rear ended & towed" {
		t.Fatalf("Text: %q", got)
	}
	if Text("") != "" {
		t.Fatal("empty stays empty")
	}
}
