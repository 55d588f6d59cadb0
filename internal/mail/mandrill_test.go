package mail

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestMandrillClientSendTemplate(t *testing.T) {
	var got map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/messages/send-template.json" {
			http.NotFound(w, r)
			return
		}
		if err := json.NewDecoder(r.Body).Decode(&got); err != nil {
			t.Errorf("decode request: %v", err)
		}
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	c := NewMandrillClient(srv.URL, "test-key")
	err := c.SendTemplate(context.Background(), Message{
		Template: TemplatePasswordChanged,
		To:       []Address{{Email: "staff@example.com", Name: "Ada"}},
		Vars:     map[string]string{"USERNAME": "Ada"},
		Tags:     []string{"password_emails"},
	})
	if err != nil {
		t.Fatalf("send template: %v", err)
	}
	if got["key"] != "test-key" {
		t.Fatalf("api key not sent: %+v", got)
	}
	if got["template_name"] != TemplatePasswordChanged {
		t.Fatalf("unexpected template: %v", got["template_name"])
	}
}

func TestMandrillClientSurfacesProviderError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
		_ = json.NewEncoder(w).Encode(map[string]string{
			"name":    "Invalid_Key",
			"message": "Invalid API key",
		})
	}))
	defer srv.Close()

	c := NewMandrillClient(srv.URL, "bad-key")
	err := c.SendTemplate(context.Background(), Message{
		Template: TemplatePasswordReset,
		To:       []Address{{Email: "staff@example.com"}},
	})
	if err == nil {
		t.Fatalf("expected provider error")
	}
	apiErr, ok := err.(*APIError)
	if !ok {
		t.Fatalf("expected *APIError, got %T", err)
	}
	if apiErr.Name != "Invalid_Key" {
		t.Fatalf("unexpected error name: %q", apiErr.Name)
	}
}
