package health

import (
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestRegisterEndpoints(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux)
	SetReady(true)
	defer SetReady(false)

	tests := []struct {
		name string
		path string
		want int
		body string
	}{
		{name: "healthz", path: "/healthz", want: http.StatusOK, body: "ok"},
		{name: "readyz", path: "/readyz", want: http.StatusOK, body: "ready"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			rw := httptest.NewRecorder()
			mux.ServeHTTP(rw, req)
			if rw.Code != tt.want {
				t.Errorf("%s status=%#v want=%#v", tt.path, rw.Code, tt.want)
			}
			if rw.Body.String() != tt.body {
				t.Errorf("%s body=%#v want=%#v", tt.path, rw.Body.String(), tt.body)
			}
		})
	}
}

func TestReadyzNotReady(t *testing.T) {
	mux := http.NewServeMux()
	Register(mux)
	SetReady(false)

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	rw := httptest.NewRecorder()
	mux.ServeHTTP(rw, req)
	if rw.Code != http.StatusServiceUnavailable {
		t.Errorf("/readyz status=%#v want=%#v", rw.Code, http.StatusServiceUnavailable)
	}
}
