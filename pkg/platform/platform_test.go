package platform_test

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/better-auth-go/platform/pkg/platform"
	"github.com/better-auth-go/platform/pkg/platform/event"
	"github.com/better-auth-go/platform/pkg/platform/model"
	"github.com/better-auth-go/platform/pkg/platform/webhook"
)

func TestNewWiresStorePersistence(t *testing.T) {
	p, err := platform.New(platform.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	evt := event.NewAny("user.created", "test", "tenant-1", map[string]any{"id": "u1"})
	if _, err := p.Bus.PublishSync(context.Background(), evt); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	stored, err := p.Store.Get(context.Background(), evt.ID())
	if err != nil {
		t.Fatalf("expected the event to be persisted, Get failed: %v", err)
	}
	if stored.Type() != "user.created" {
		t.Fatalf("stored event type = %q, want user.created", stored.Type())
	}
}

func TestNewWiresWebhookDelivery(t *testing.T) {
	received := make(chan string, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		received <- r.Header.Get("X-Webhook-Signature")
		w.WriteHeader(http.StatusOK)
	}))
	defer server.Close()

	p, err := platform.New(platform.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if _, err := p.Webhooks.Register(webhook.Endpoint{
		URL:     server.URL,
		Secret:  "s3cret",
		Filter:  webhook.EventFilter{Kind: webhook.FilterAll},
		Enabled: true,
	}); err != nil {
		t.Fatalf("Register: %v", err)
	}

	evt := event.NewAny("user.created", "test", "tenant-1", map[string]any{"id": "u1"})
	if _, err := p.Bus.PublishSync(context.Background(), evt); err != nil {
		t.Fatalf("PublishSync: %v", err)
	}

	select {
	case sig := <-received:
		if sig == "" {
			t.Fatalf("expected a signature header on the delivered request")
		}
	case <-time.After(2 * time.Second):
		t.Fatalf("timed out waiting for webhook delivery")
	}
}

func TestEmitterIsNarrowerThanBus(t *testing.T) {
	p, err := platform.New(platform.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	var emitter event.Emitter = p.Emitter()
	evt := event.NewAny("user.created", "test", "tenant-1", map[string]any{"id": "u1"})
	if err := emitter.Publish(context.Background(), evt); err != nil {
		t.Fatalf("Publish via Emitter: %v", err)
	}
}

type otpPlugin struct{}

func (otpPlugin) Schema() []*model.Model {
	return []*model.Model{
		model.NewModel("otp_code").
			AddField(model.PrimaryKeyField("id")).
			AddField(model.NewField("user_id", model.String(36))).
			AddForeignKey(model.ForeignKey{
				Name: "fk_otp_user", Columns: []string{"user_id"},
				RefTable: "user", RefColumns: []string{"id"},
				OnDelete: model.ActionCascade,
			}),
	}
}

func TestNewComposesCoreSchemaByDefault(t *testing.T) {
	p, err := platform.New(platform.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	if _, ok := p.Models.Schema.Model("user"); !ok {
		t.Fatalf("expected the default composition to include the core user model")
	}
}

func TestComposeSchemaAddsProviderModels(t *testing.T) {
	p, err := platform.New(platform.Config{})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Close()

	result, err := p.ComposeSchema([]model.ProviderSource{{Label: "email-otp", Provider: otpPlugin{}}}, nil)
	if err != nil {
		t.Fatalf("ComposeSchema: %v", err)
	}
	if _, ok := result.Schema.Model("otp_code"); !ok {
		t.Fatalf("expected otp_code to be composed in")
	}
	if _, ok := p.Models.Schema.Model("otp_code"); !ok {
		t.Fatalf("expected p.Models to be updated in place")
	}
}
