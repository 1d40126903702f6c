package main

import (
	"testing"

	"atelierpos/internal/config"
)

func TestValidateConfigRejectsBadValues(t *testing.T) {
	cases := map[string]config.Config{
		"empty tenant": {TenantID: "", Port: "8080"},
		"bad port":     {TenantID: "atelier", Port: "http"},
		"port range":   {TenantID: "atelier", Port: "70000"},
		"discount cap": {TenantID: "atelier", Port: "8080", MaxDiscountPercent: 120},
	}
	for name, cfg := range cases {
		if err := validateConfig(cfg); err == nil {
			t.Fatalf("%s: expected config to be rejected", name)
		}
	}
}

func TestValidateConfigAcceptsDefaults(t *testing.T) {
	if err := validateConfig(config.Config{TenantID: "atelier", Port: "8080", MaxDiscountPercent: 40}); err != nil {
		t.Fatalf("expected config to pass, got %v", err)
	}
}

func TestBusinessRulesFollowConfig(t *testing.T) {
	rules := businessRules(config.Config{DisablePromotions: true, MaxDiscountPercent: 25})
	if !rules.DisablePromotions || rules.MaxDiscountPercent != 25 {
		t.Fatalf("unexpected rules: %+v", rules)
	}
}
