package wsclient_test

import (
	"context"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	apihttp "github.com/dkeye/Tandem/internal/adapters/http"
	"github.com/dkeye/Tandem/internal/adapters/storage"
	"github.com/dkeye/Tandem/internal/adapters/wsclient"
	"github.com/dkeye/Tandem/internal/app"
	"github.com/dkeye/Tandem/internal/config"
	"github.com/dkeye/Tandem/internal/domain"
	"github.com/stretchr/testify/require"
)

type inbox struct {
	envs chan domain.Envelope
}

func newInbox() *inbox { return &inbox{envs: make(chan domain.Envelope, 16)} }

func (i *inbox) HandleEnvelope(env domain.Envelope) { i.envs <- env }

func (i *inbox) next(t *testing.T) domain.Envelope {
	t.Helper()
	select {
	case env := <-i.envs:
		return env
	case <-time.After(2 * time.Second):
		t.Fatal("no envelope")
		return domain.Envelope{}
	}
}

func relayURL(t *testing.T) (string, *storage.Store) {
	t.Helper()
	store, err := storage.Open(filepath.Join(t.TempDir(), "tandem.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = store.Close() })

	reg := app.NewRegistry()
	reg.Observe(app.NewNotifier(store, reg, store))
	relay := app.NewRelay(reg, app.SimplePolicy{Action: app.DropFrame})
	cfg := &config.Config{
		Mode:       "test",
		Secret:     "s",
		ReadLimit:  32768,
		PingPeriod: time.Second,
		PongWait:   2 * time.Second,
		WriteWait:  time.Second,
		SendBuffer: 16,
	}
	ctx, cancel := context.WithCancel(context.Background())
	srv := httptest.NewServer(apihttp.SetupRouter(ctx, cfg, apihttp.Deps{Registry: reg, Relay: relay, Contacts: store}))
	t.Cleanup(func() {
		cancel()
		srv.Close()
	})
	return "ws" + strings.TrimPrefix(srv.URL, "http") + "/api/ws/signal", store
}

func dial(t *testing.T, url string, uid domain.UserID) *wsclient.Client {
	t.Helper()
	c, err := wsclient.Dial(context.Background(), url, uid)
	require.NoError(t, err)
	t.Cleanup(func() { _ = c.Close() })
	return c
}

func run(t *testing.T, c *wsclient.Client, h wsclient.EnvelopeHandler) {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		defer close(done)
		_ = c.Run(ctx, h)
	}()
	t.Cleanup(func() {
		cancel()
		<-done
	})
}

func TestClient_SendAndReceiveEnvelope(t *testing.T) {
	r := require.New(t)
	url, _ := relayURL(t)
	alice := dial(t, url, "alice")
	bob := dial(t, url, "bob")
	bobInbox := newInbox()
	run(t, bob, bobInbox)

	// When: alice sends an offer
	env, err := domain.NewDescriptionEnvelope(domain.EnvelopeCallRequest, "alice", "bob",
		domain.SessionDescription{Type: "offer", SDP: "v=0"})
	r.NoError(err)
	r.NoError(alice.Send(env))

	// Then: bob's handler gets it intact
	got := bobInbox.next(t)
	r.Equal(domain.EnvelopeCallRequest, got.Type)
	r.Equal(domain.UserID("alice"), got.From)
	desc, err := got.Description()
	r.NoError(err)
	r.Equal("v=0", desc.SDP)

	// And: control envelopes arrive too
	r.NoError(alice.Send(domain.NewControlEnvelope(domain.EnvelopeEnd, "alice", "bob")))
	r.Equal(domain.EnvelopeEnd, bobInbox.next(t).Type)
}

func TestClient_PresenceAndChat(t *testing.T) {
	r := require.New(t)
	url, store := relayURL(t)
	ctx := context.Background()
	r.NoError(store.RequestContact(ctx, "alice", "bob"))
	r.NoError(store.AcceptContact(ctx, "bob", "alice"))

	bob := dial(t, url, "bob")
	presence := make(chan domain.PresenceEvent, 4)
	chat := make(chan domain.ChatEvent, 4)
	bob.OnPresence(func(ev domain.PresenceEvent) { presence <- ev })
	bob.OnChat(func(ev domain.ChatEvent) { chat <- ev })
	run(t, bob, newInbox())

	// When: alice comes online and types
	alice := dial(t, url, "alice")
	r.NoError(alice.SendChat(domain.ChatEvent{Type: domain.ChatMessage, To: "bob", Body: "hi"}))

	// Then: bob sees both
	select {
	case ev := <-presence:
		r.Equal(domain.NewPresenceEvent("alice", true), ev)
	case <-time.After(2 * time.Second):
		t.Fatal("no presence")
	}
	select {
	case ev := <-chat:
		r.Equal(domain.UserID("alice"), ev.From)
		r.Equal("hi", ev.Body)
	case <-time.After(2 * time.Second):
		t.Fatal("no chat")
	}
}

func TestClient_RelayErrors(t *testing.T) {
	r := require.New(t)
	url, _ := relayURL(t)
	alice := dial(t, url, "alice")
	errs := make(chan *wsclient.ServerError, 1)
	alice.OnError(func(e *wsclient.ServerError) { errs <- e })
	run(t, alice, newInbox())

	// When: alice claims someone else's identity
	r.NoError(alice.Send(domain.NewControlEnvelope(domain.EnvelopeEnd, "carol", "bob")))

	// Then
	select {
	case e := <-errs:
		r.Equal("from_mismatch", e.Code)
	case <-time.After(2 * time.Second):
		t.Fatal("no error frame")
	}
}

func TestDial_InvalidIdentity(t *testing.T) {
	r := require.New(t)
	url, _ := relayURL(t)

	_, err := wsclient.Dial(context.Background(), url, domain.UserID(strings.Repeat("x", 65)))

	var se *wsclient.ServerError
	r.ErrorAs(err, &se)
	r.Equal("invalid_user_id", se.Code)
}

func TestClient_SendAfterClose(t *testing.T) {
	r := require.New(t)
	url, _ := relayURL(t)
	c := dial(t, url, "alice")

	r.NoError(c.Close())

	r.ErrorIs(c.Send(domain.NewControlEnvelope(domain.EnvelopeEnd, "alice", "bob")), wsclient.ErrClosed)
	r.ErrorIs(c.Run(context.Background(), newInbox()), wsclient.ErrClosed)
}

func TestClient_ChatValidation(t *testing.T) {
	r := require.New(t)
	url, _ := relayURL(t)
	c := dial(t, url, "alice")

	err := c.SendChat(domain.ChatEvent{Type: domain.ChatMessage, Body: "no recipient"})

	r.ErrorIs(err, domain.ErrInvalidEnvelope)
}
