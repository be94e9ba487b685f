package notifier

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"go.uber.org/zap/zaptest"
)

func TestDisabledIsNoop(t *testing.T) {
	n := New(Config{}, zaptest.NewLogger(t))

	if n.MailEnabled() || n.WebhookEnabled() {
		t.Fatal("empty config should disable both channels")
	}
	if err := n.Send(context.Background(), "subject", "body"); err != nil {
		t.Errorf("Send: %v", err)
	}
	if err := n.Trigger(context.Background(), "pet_at_home"); err != nil {
		t.Errorf("Trigger: %v", err)
	}
}

func TestTriggerURL(t *testing.T) {
	n := New(Config{IFTTTKey: "abc123"}, zaptest.NewLogger(t))
	want := "https://maker.ifttt.com/trigger/pet_getting_closer/with/key/abc123"
	if got := n.TriggerURL("pet_getting_closer"); got != want {
		t.Errorf("TriggerURL = %s, want %s", got, want)
	}
}

func TestTriggerPostsWebhook(t *testing.T) {
	var gotPath string
	var payload map[string]any
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotPath = r.URL.Path
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		_ = json.NewDecoder(r.Body).Decode(&payload)
		w.WriteHeader(http.StatusOK)
	}))
	defer srv.Close()

	n := New(Config{IFTTTKey: "key", IFTTTURL: srv.URL + "/"}, zaptest.NewLogger(t))
	if err := n.Trigger(context.Background(), "pet_at_home"); err != nil {
		t.Fatalf("Trigger: %v", err)
	}
	if gotPath != "/trigger/pet_at_home/with/key/key" {
		t.Errorf("path = %s", gotPath)
	}
	if payload == nil {
		t.Error("webhook body was not JSON")
	}
}
