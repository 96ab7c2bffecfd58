package main

import "testing"

func TestParseTargets(t *testing.T) {
	targets, err := parseTargets([]string{"pricing=/pricing", "News=https://acme.example/news?page=1"})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if len(targets) != 2 {
		t.Fatalf("expected 2 targets, got %d", len(targets))
	}
	if targets[0].Type != "pricing" || targets[0].Name != "Pricing" || targets[0].URL != "/pricing" {
		t.Errorf("unexpected first target %+v", targets[0])
	}
	if targets[1].Type != "news" || targets[1].URL != "https://acme.example/news?page=1" {
		t.Errorf("expected query string kept, got %+v", targets[1])
	}
}

func TestParseTargetsRejectsBadInput(t *testing.T) {
	for _, spec := range []string{"pricing", "pricing=", "careers=/jobs"} {
		if _, err := parseTargets([]string{spec}); err == nil {
			t.Errorf("expected %q to be rejected", spec)
		}
	}
}
