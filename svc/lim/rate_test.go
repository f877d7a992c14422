package lim

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetRealIPNoProxies(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:4567"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	if ip := GetRealIP(r, nil); ip != "203.0.113.7" {
		t.Errorf("without trusted proxies the XFF header must be ignored, got %s", ip)
	}
}

func TestGetRealIPTrustedProxy(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:4567"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, 10.0.0.2")
	ip := GetRealIP(r, []string{"10.0.0.1", "10.0.0.2"})
	if ip != "198.51.100.1" {
		t.Errorf("expected rightmost untrusted hop, got %s", ip)
	}
}

func TestGetRealIPSpoofedHeaderFromUntrustedPeer(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:4567"
	r.Header.Set("X-Forwarded-For", "1.2.3.4")
	ip := GetRealIP(r, []string{"10.0.0.1"})
	if ip != "203.0.113.7" {
		t.Errorf("untrusted peer must not inject client IPs, got %s", ip)
	}
}

func TestGetRealIPSkipsGarbageHops(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.0.0.1:4567"
	r.Header.Set("X-Forwarded-For", "198.51.100.1, not-an-ip, 10.0.0.1")
	ip := GetRealIP(r, []string{"10.0.0.1"})
	if ip != "198.51.100.1" {
		t.Errorf("garbage hops should be skipped, got %s", ip)
	}
}

func TestGetRealIPCIDRProxy(t *testing.T) {
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "10.1.2.3:4567"
	r.Header.Set("X-Forwarded-For", "198.51.100.1")
	ip := GetRealIP(r, []string{"10.0.0.0/8"})
	if ip != "198.51.100.1" {
		t.Errorf("CIDR trusted proxy not honored, got %s", ip)
	}
}

func TestCheckLocalBurstThenDeny(t *testing.T) {
	l := New(60, 3, 5, nil, nil)
	defer l.Stop()
	r := httptest.NewRequest(http.MethodPost, "/pastes", nil)
	r.RemoteAddr = "203.0.113.7:4567"

	allowed := 0
	for i := 0; i < 10; i++ {
		if l.CheckLimit(r, "create").Allowed {
			allowed++
		}
	}
	if allowed != 3 {
		t.Errorf("burst of 3 expected, got %d allowed", allowed)
	}
}

func TestCheckLocalPerEndpointBuckets(t *testing.T) {
	l := New(60, 1, 5, nil, nil)
	defer l.Stop()
	r := httptest.NewRequest(http.MethodPost, "/", nil)
	r.RemoteAddr = "203.0.113.7:4567"

	if !l.CheckLimit(r, "create").Allowed {
		t.Fatal("first create should pass")
	}
	if l.CheckLimit(r, "create").Allowed {
		t.Fatal("second create should be denied")
	}
	if !l.CheckLimit(r, "view").Allowed {
		t.Error("view bucket must be independent of create bucket")
	}
}

func TestAdaptiveModeHalvesLimit(t *testing.T) {
	l := New(60, 10, 6, nil, nil)
	defer l.Stop()
	r := httptest.NewRequest(http.MethodGet, "/", nil)
	r.RemoteAddr = "203.0.113.7:4567"

	before := l.CheckLimit(r, "view")
	if before.Limit != 6 {
		t.Fatalf("expected limit 6, got %d", before.Limit)
	}
	l.TriggerAdaptiveMode()
	after := l.CheckLimit(r, "view")
	if after.Limit != 3 {
		t.Errorf("adaptive mode should halve the limit, got %d", after.Limit)
	}
}
