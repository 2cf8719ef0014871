package client

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestGetConnections(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		if r.URL.Path != "/connections" {
			t.Errorf("path = %q, want /connections", r.URL.Path)
		}
		w.Write([]byte(`{"connections":[{"id":"c1","name":"phone-1","app_bound":true},{"id":"c2","name":"phone-2","app_bound":false}]}`))
	}))
	defer srv.Close()

	c := NewIProxyClient(srv.URL, "test-key")
	conns, err := c.GetConnections(context.Background())
	if err != nil {
		t.Fatalf("GetConnections: %v", err)
	}
	if gotAuth != "Bearer test-key" {
		t.Errorf("auth header = %q, want Bearer test-key", gotAuth)
	}
	if len(conns) != 2 {
		t.Fatalf("got %d connections, want 2", len(conns))
	}
	if conns[0].ID != "c1" || !conns[0].AppBound {
		t.Errorf("conns[0] = %+v, want id=c1 app_bound=true", conns[0])
	}
	if conns[1].AppBound {
		t.Error("conns[1] should not be app bound")
	}
}

func TestGrantProxyAccess_ErrorField(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		// 200 with an error body: the provider reports some failures this way.
		w.Write([]byte(`{"error":"no free ports"}`))
	}))
	defer srv.Close()

	c := NewIProxyClient(srv.URL, "test-key")
	_, err := c.GrantProxyAccess(context.Background(), "c1", &GrantRequest{ListenService: "http"})
	if err == nil {
		t.Fatal("expected error from error field")
	}
}

func TestGrantProxyAccess_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != "POST" {
			t.Errorf("method = %q, want POST", r.Method)
		}
		w.Write([]byte(`{"id":"g1","host":"px.example.net","port":31337,"login":"u1","password":"p1"}`))
	}))
	defer srv.Close()

	c := NewIProxyClient(srv.URL, "test-key")
	grant, err := c.GrantProxyAccess(context.Background(), "c1", &GrantRequest{ListenService: "http"})
	if err != nil {
		t.Fatalf("GrantProxyAccess: %v", err)
	}
	if grant.Host != "px.example.net" || grant.Port != 31337 {
		t.Errorf("grant = %+v, want px.example.net:31337", grant)
	}
}

func TestRotateIP_FailureStatus(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":false,"error":"device offline"}`))
	}))
	defer srv.Close()

	c := NewIProxyClient(srv.URL, "test-key")
	if _, err := c.RotateIP(context.Background(), srv.URL+"/change"); err == nil {
		t.Fatal("expected rotation failure")
	}
}

func TestRotateIP_Success(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"result":true,"old_ip":"10.0.0.1","new_ip":"10.0.0.2"}`))
	}))
	defer srv.Close()

	c := NewIProxyClient(srv.URL, "test-key")
	result, err := c.RotateIP(context.Background(), srv.URL+"/change")
	if err != nil {
		t.Fatalf("RotateIP: %v", err)
	}
	if result.NewIP != "10.0.0.2" {
		t.Errorf("NewIP = %q, want 10.0.0.2", result.NewIP)
	}
}
