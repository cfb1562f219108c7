package controller_test

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/unclebandit/phishdrill-backend/internal/model"
)

func TestAllowlistUpsertAndList(t *testing.T) {
	h := newHarness(t)

	w := h.do("POST", "/api/allowlist", map[string]interface{}{
		"employees": []map[string]string{
			{"email": "Alice@Corp.example", "name": "Alice"},
			{"email": "eve@gmail.com"},
			{"email": "not-an-email"},
			{"name": "no email"},
		},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var saved struct {
		Employees []model.Employee `json:"employees"`
		Rejected  []string         `json:"rejected"`
	}
	h.decode(w, &saved)
	if len(saved.Employees) != 1 || saved.Employees[0].Email != "alice@corp.example" {
		t.Errorf("unexpected saved employees %+v", saved.Employees)
	}
	if len(saved.Rejected) != 2 {
		t.Errorf("expected 2 rejected addresses, got %v", saved.Rejected)
	}

	w = h.do("GET", "/api/allowlist", nil)
	var listed struct {
		Employees        []model.Employee `json:"employees"`
		DoNotSendDomains []string         `json:"doNotSendDomains"`
	}
	h.decode(w, &listed)
	if len(listed.Employees) != 1 {
		t.Errorf("expected 1 employee, got %d", len(listed.Employees))
	}
	if len(listed.DoNotSendDomains) != 4 || listed.DoNotSendDomains[0] != "gmail.com" {
		t.Errorf("unexpected deny list %v", listed.DoNotSendDomains)
	}
}

func TestAllowlistUpsertRequiresArray(t *testing.T) {
	h := newHarness(t)

	w := h.do("POST", "/api/allowlist", map[string]interface{}{"people": []string{}})
	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	var res errorBody
	h.decode(w, &res)
	if res.Error != "employees array required" {
		t.Errorf("unexpected error %q", res.Error)
	}
}

func TestAllowlistUploadCSV(t *testing.T) {
	h := newHarness(t)

	w := h.do("POST", "/api/allowlist/upload", "alice@corp.example,Alice,Finance\r\n\r\nbob@corp.example,Bob\nmallory@yahoo.com,Mallory,Sales\n")
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", w.Code, w.Body.String())
	}
	var res struct {
		Imported int      `json:"imported"`
		Rejected []string `json:"rejected"`
	}
	h.decode(w, &res)
	if res.Imported != 2 {
		t.Errorf("expected 2 imported, got %d", res.Imported)
	}
	if len(res.Rejected) != 1 || res.Rejected[0] != "mallory@yahoo.com" {
		t.Errorf("unexpected rejected %v", res.Rejected)
	}

	w = h.do("POST", "/api/allowlist/upload", "  \n")
	if w.Code != http.StatusBadRequest {
		t.Errorf("expected 400 for empty body, got %d", w.Code)
	}
}

func TestTemplatesAndHealth(t *testing.T) {
	h := newHarness(t)

	w := h.do("GET", "/api/templates", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", w.Code)
	}
	var templates []model.Template
	h.decode(w, &templates)
	keys := map[string]bool{}
	for _, tpl := range templates {
		keys[tpl.Key] = true
	}
	for _, k := range []string{"login-mimic", "urgent-policy", "package-delivery"} {
		if !keys[k] {
			t.Errorf("missing template %s", k)
		}
	}

	w = h.do("GET", "/healthz", nil)
	var health map[string]string
	h.decode(w, &health)
	if w.Code != http.StatusOK || health["status"] != "ok" {
		t.Errorf("unexpected health response %d %v", w.Code, health)
	}
}

func TestCORSPreflight(t *testing.T) {
	h := newHarness(t)

	req := httptest.NewRequest("OPTIONS", "/api/campaigns", nil)
	req.Header.Set("Origin", "https://console.corp.example")
	req.Header.Set("Access-Control-Request-Method", "POST")
	w := httptest.NewRecorder()
	h.handler.ServeHTTP(w, req)

	if got := w.Header().Get("Access-Control-Allow-Origin"); got != "*" {
		t.Errorf("expected wildcard origin, got %q", got)
	}
}
