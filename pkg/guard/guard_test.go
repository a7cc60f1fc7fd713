package guard

import "testing"

func TestNew_DisabledAllowsEverything(t *testing.T) {
	g := New(0, 0)
	if g != nil {
		t.Fatalf("expected nil limiter when disabled")
	}
	for i := 0; i < 100; i++ {
		if !g.Allow("1.2.3.4") {
			t.Fatalf("disabled limiter must allow")
		}
	}
}

func TestAllow_BurstThenDeny(t *testing.T) {
	g := New(1, 2)
	ip := "10.0.0.1"
	if !g.Allow(ip) || !g.Allow(ip) {
		t.Fatalf("burst accepts should pass")
	}
	if g.Allow(ip) {
		t.Fatalf("third immediate accept should be denied")
	}
	// a different client has its own bucket
	if !g.Allow("10.0.0.2") {
		t.Fatalf("independent client should pass")
	}
}
