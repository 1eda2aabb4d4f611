package config

import "testing"

func TestSwarmConfigValidate(t *testing.T) {
	good := SwarmConfig{MaxResearchRounds: 5, MaxDebateRounds: 2, MaxRemediationCycles: 4, RefineMinScore: 4}
	if err := good.Validate(); err != nil {
		t.Fatalf("valid config rejected: %v", err)
	}

	bad := good
	bad.MaxResearchRounds = 0
	if err := bad.Validate(); err == nil {
		t.Fatalf("zero research rounds must be rejected")
	}

	bad = good
	bad.RefineMinScore = 6
	if err := bad.Validate(); err == nil {
		t.Fatalf("out-of-range refine score must be rejected")
	}
}

func TestRoutingModelFallback(t *testing.T) {
	r := RoutingConfig{Planning: "pro", Fallback: "flash"}
	if got := r.Model(r.Planning); got != "pro" {
		t.Fatalf("expected configured model, got %q", got)
	}
	if got := r.Model(r.Quick); got != "flash" {
		t.Fatalf("expected fallback model, got %q", got)
	}
}

func TestPostgresDSN(t *testing.T) {
	p := PostgresConfig{URL: "postgres://x"}
	if p.DSN() != "postgres://x" {
		t.Fatalf("explicit URL must win")
	}
	p = PostgresConfig{User: "u", Password: "p", DBName: "docser"}
	want := "postgres://u:p@localhost:5432/docser?sslmode=disable"
	if got := p.DSN(); got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
	if !p.Configured() {
		t.Fatalf("dbname alone should mark postgres configured")
	}
	if (PostgresConfig{}).Configured() {
		t.Fatalf("empty config must not report configured")
	}
}
