package auth

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestBearerTransport_RoundTrip(t *testing.T) {
	var got []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		got = r.Header.Values("Authorization")
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewBearerTransport("tok-1", srv.Client().Transport)}

	req, _ := http.NewRequest(http.MethodGet, srv.URL+"/metadata", nil)
	req.Header.Set("Authorization", "Basic stale")
	resp, err := client.Do(req)
	if err != nil {
		t.Fatalf("Do() error = %v", err)
	}
	_ = resp.Body.Close()

	if len(got) != 1 || got[0] != "Bearer tok-1" {
		t.Errorf("Authorization = %v, want [Bearer tok-1]", got)
	}
	if h := req.Header.Get("Authorization"); h != "Basic stale" {
		t.Errorf("caller request mutated: Authorization = %q", h)
	}
}

func TestBearerTransport_TokenFixedAtConstruction(t *testing.T) {
	var seen []string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = append(seen, r.Header.Get("Authorization"))
	}))
	defer srv.Close()

	client := &http.Client{Transport: NewBearerTransport("fixed", srv.Client().Transport)}
	for i := 0; i < 3; i++ {
		resp, err := client.Get(srv.URL)
		if err != nil {
			t.Fatalf("Get() error = %v", err)
		}
		_ = resp.Body.Close()
	}

	for i, h := range seen {
		if h != "Bearer fixed" {
			t.Errorf("request %d Authorization = %q", i, h)
		}
	}
}

func TestBearerTransport_OnRequest(t *testing.T) {
	bt := NewBearerTransport("abc", nil)
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	bt.OnRequest(req)
	if h := req.Header.Get("Authorization"); h != "Bearer abc" {
		t.Errorf("Authorization = %q, want Bearer abc", h)
	}
	bt.OnResponse(&http.Response{})
}
