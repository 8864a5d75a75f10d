package transport_test

import (
	"context"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/ricirt/pubsub-outbox/internal/domain"
	"github.com/ricirt/pubsub-outbox/internal/transport"
)

func TestWebhookSender_Send(t *testing.T) {
	var gotBody []byte
	var gotID, gotKind string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotBody, _ = io.ReadAll(r.Body)
		gotID = r.Header.Get(transport.HeaderMessageID)
		gotKind = r.Header.Get(transport.HeaderMessageKind)
		w.WriteHeader(http.StatusAccepted)
	}))
	defer srv.Close()

	s := transport.NewWebhookSender(srv.URL, time.Second)
	defer s.Close()

	err := s.Send(context.Background(), transport.Message{ID: 9, Kind: domain.KindPublish, Payload: []byte("payload")})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if string(gotBody) != "payload" || gotID != "9" || gotKind != "publish" {
		t.Fatalf("unexpected request: body=%q id=%q kind=%q", gotBody, gotID, gotKind)
	}
}

func TestWebhookSender_RejectsNon2xx(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}))
	defer srv.Close()

	s := transport.NewWebhookSender(srv.URL, time.Second)
	if err := s.Send(context.Background(), transport.Message{ID: 1, Kind: domain.KindPublish}); err == nil {
		t.Fatal("expected an error for a 502 response")
	}
}
