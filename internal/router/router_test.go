package router

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	gorilla "github.com/gorilla/websocket"

	"nanorelay/internal/envelope"
	"nanorelay/internal/websocket"
)

var testUpgrader = gorilla.Upgrader{
	CheckOrigin: func(r *http.Request) bool { return true },
}

// stubVerifier resolves a fixed token -> identity table; anything else fails.
type stubVerifier map[string]uuid.UUID

func (v stubVerifier) Verify(token string) (uuid.UUID, error) {
	if id, ok := v[token]; ok {
		return id, nil
	}
	return uuid.Nil, errors.New("invalid identity token")
}

// newRelayConnection returns a registered relay connection plus the client
// socket observing its outbound wire.
func newRelayConnection(t *testing.T, registry *websocket.Registry, handle string) (*websocket.Connection, *gorilla.Conn) {
	t.Helper()

	serverCh := make(chan *gorilla.Conn, 1)
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := testUpgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("Failed to upgrade connection: %v", err)
			return
		}
		serverCh <- conn
	}))
	t.Cleanup(func() { server.Close() })

	url := "ws" + strings.TrimPrefix(server.URL, "http")
	client, _, err := gorilla.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Failed to dial test server: %v", err)
	}
	t.Cleanup(func() { client.Close() })

	var serverConn *gorilla.Conn
	select {
	case serverConn = <-serverCh:
	case <-time.After(2 * time.Second):
		t.Fatal("Timed out waiting for server-side connection")
	}

	conn := websocket.NewConnection(serverConn, handle, 16, 2*time.Second)
	t.Cleanup(func() { conn.Close() })

	if err := registry.Register(conn); err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	return conn, client
}

func expectFrame(t *testing.T, client *gorilla.Conn, want []byte) {
	t.Helper()

	client.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, data, err := client.ReadMessage()
	if err != nil {
		t.Fatalf("Expected a delivered frame, got read error: %v", err)
	}
	if string(data) != string(want) {
		t.Errorf("Delivered frame modified: got %v, want %v", data, want)
	}
}

func expectNoFrame(t *testing.T, client *gorilla.Conn) {
	t.Helper()

	client.SetReadDeadline(time.Now().Add(200 * time.Millisecond))
	if _, data, err := client.ReadMessage(); err == nil {
		t.Errorf("Expected no delivery, got frame %v", data)
	}
}

func newTestRouter(verifier stubVerifier) (*Router, *websocket.Registry) {
	registry := websocket.NewRegistry(nil)
	return New(registry, verifier, envelope.Codec{}), registry
}

func TestRouter_AnnouncementBindsIdentity(t *testing.T) {
	identity := uuid.New()
	router, registry := newTestRouter(stubVerifier{"token-u1": identity})
	conn, _ := newRelayConnection(t, registry, "peer-a")

	router.Route(gorilla.TextMessage, []byte("token-u1"), conn)

	got, exists := registry.Lookup(identity)
	if !exists || got != conn {
		t.Error("Valid announcement should bind the sender's connection")
	}
}

func TestRouter_GarbledAnnouncementIsInert(t *testing.T) {
	identity := uuid.New()
	router, registry := newTestRouter(stubVerifier{"token-u1": identity})
	conn, _ := newRelayConnection(t, registry, "peer-a")

	router.Route(gorilla.TextMessage, []byte("not a token at all"), conn)

	if _, exists := registry.Lookup(identity); exists {
		t.Error("Invalid token must cause no registry mutation")
	}
	if stats := registry.Stats(); stats["bindings"] != 0 {
		t.Errorf("Expected no bindings, got %d", stats["bindings"])
	}
}

func TestRouter_EnvelopeDeliveredUnmodified(t *testing.T) {
	recipient := uuid.New()
	verifier := stubVerifier{
		"token-recipient": recipient,
		"token-sender":    uuid.New(),
	}
	router, registry := newTestRouter(verifier)

	recipientConn, recipientClient := newRelayConnection(t, registry, "peer-recipient")
	senderConn, _ := newRelayConnection(t, registry, "peer-sender")

	router.Route(gorilla.TextMessage, []byte("token-recipient"), recipientConn)

	frame := envelope.Encode("token-sender", recipient.String(), "hello over the wire")
	router.Route(gorilla.BinaryMessage, frame, senderConn)

	expectFrame(t, recipientClient, frame)
	expectNoFrame(t, recipientClient) // delivered exactly once
}

func TestRouter_EnvelopeToUnboundRecipientDropped(t *testing.T) {
	verifier := stubVerifier{"token-sender": uuid.New()}
	router, registry := newTestRouter(verifier)

	senderConn, senderClient := newRelayConnection(t, registry, "peer-sender")

	frame := envelope.Encode("token-sender", uuid.NewString(), "to nobody")
	router.Route(gorilla.BinaryMessage, frame, senderConn)

	// No delivery anywhere, and the sender is unaffected.
	expectNoFrame(t, senderClient)
	if err := senderConn.Enqueue([]byte("still alive")); err != nil {
		t.Errorf("Sender session should continue after a dropped frame: %v", err)
	}
}

func TestRouter_EnvelopeWithInvalidSenderTokenDropped(t *testing.T) {
	recipient := uuid.New()
	verifier := stubVerifier{"token-recipient": recipient}
	router, registry := newTestRouter(verifier)

	recipientConn, recipientClient := newRelayConnection(t, registry, "peer-recipient")
	senderConn, _ := newRelayConnection(t, registry, "peer-sender")

	router.Route(gorilla.TextMessage, []byte("token-recipient"), recipientConn)

	frame := envelope.Encode("forged-token", recipient.String(), "spoofed")
	router.Route(gorilla.BinaryMessage, frame, senderConn)

	expectNoFrame(t, recipientClient)
}

func TestRouter_EnvelopeWithMalformedRecipientDropped(t *testing.T) {
	verifier := stubVerifier{"token-sender": uuid.New()}
	router, registry := newTestRouter(verifier)

	senderConn, _ := newRelayConnection(t, registry, "peer-sender")

	frame := envelope.Encode("token-sender", "not-a-uuid", "misaddressed")
	router.Route(gorilla.BinaryMessage, frame, senderConn)

	if stats := registry.Stats(); stats["bindings"] != 0 {
		t.Errorf("Malformed recipient must cause no registry mutation, got %v", stats)
	}
}

func TestRouter_MalformedEnvelopeDropped(t *testing.T) {
	verifier := stubVerifier{"token-sender": uuid.New()}
	router, registry := newTestRouter(verifier)

	senderConn, senderClient := newRelayConnection(t, registry, "peer-sender")

	router.Route(gorilla.BinaryMessage, []byte{0xff, 0xff, 0xff}, senderConn)

	expectNoFrame(t, senderClient)
}

func TestRouter_UnrecognizedFrameKindIgnored(t *testing.T) {
	identity := uuid.New()
	router, registry := newTestRouter(stubVerifier{"token-u1": identity})
	conn, _ := newRelayConnection(t, registry, "peer-a")

	router.Route(gorilla.PingMessage, []byte("token-u1"), conn)

	if stats := registry.Stats(); stats["bindings"] != 0 {
		t.Errorf("Control frames must cause no state change, got %v", stats)
	}
}

func TestRouter_EnvelopeToClosedRecipientDropped(t *testing.T) {
	recipient := uuid.New()
	verifier := stubVerifier{
		"token-recipient": recipient,
		"token-sender":    uuid.New(),
	}
	router, registry := newTestRouter(verifier)

	recipientConn, _ := newRelayConnection(t, registry, "peer-recipient")
	senderConn, _ := newRelayConnection(t, registry, "peer-sender")

	router.Route(gorilla.TextMessage, []byte("token-recipient"), recipientConn)

	// Recipient's queue closes between lookup and enqueue in the worst
	// case; here it is closed before routing, which must still be a
	// silent drop.
	recipientConn.CloseQueue()

	frame := envelope.Encode("token-sender", recipient.String(), "racing the close")
	router.Route(gorilla.BinaryMessage, frame, senderConn)

	if err := senderConn.Enqueue([]byte("still alive")); err != nil {
		t.Errorf("Sender session should continue after the drop: %v", err)
	}
}
