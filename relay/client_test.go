package relay

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/require"

	"github.com/covault-labs/custody/config"
	"github.com/covault-labs/custody/envelope"
	"github.com/covault-labs/custody/identity"
)

// testRelay is a minimal in-process relay server: it acknowledges every
// published EVENT with OK and rebroadcasts it to every subscription seen
// so far, and records each REQ's subscription id without replying (no
// EOSE), enough to exercise the client's framing.
func testRelay(t *testing.T) *httptest.Server {
	t.Helper()
	upgrader := websocket.Upgrader{}

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		require.NoError(t, err)
		defer conn.Close()

		var subIDs []string
		for {
			_, data, err := conn.ReadMessage()
			if err != nil {
				return
			}
			var f []json.RawMessage
			if err := json.Unmarshal(data, &f); err != nil || len(f) == 0 {
				continue
			}
			var kind string
			_ = json.Unmarshal(f[0], &kind)
			switch kind {
			case "REQ":
				var subID string
				_ = json.Unmarshal(f[1], &subID)
				subIDs = append(subIDs, subID)
			case "EVENT":
				var eventID string
				var wire map[string]interface{}
				_ = json.Unmarshal(f[1], &wire)
				eventID, _ = wire["id"].(string)
				_ = conn.WriteJSON([]interface{}{"OK", eventID, true, ""})
				for _, sid := range subIDs {
					_ = conn.WriteJSON([]interface{}{"EVENT", sid, f[1]})
				}
			}
		}
	})
	return httptest.NewServer(mux)
}

func wsURL(httpURL string) string {
	return "ws" + strings.TrimPrefix(httpURL, "http")
}

func testRelayIdentity(t *testing.T) *identity.Identity {
	t.Helper()
	mnemonic, err := identity.GenerateMnemonic()
	require.NoError(t, err)
	id, err := identity.FromMnemonic(mnemonic, "", config.NetworkTestnet4)
	require.NoError(t, err)
	return id
}

func TestPublishAndSubscribeRoundTrip(t *testing.T) {
	server := testRelay(t)
	defer server.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	client, err := Dial(ctx, wsURL(server.URL))
	require.NoError(t, err)
	defer client.Close()

	subID, matches, err := client.Subscribe(ctx, Filter{Kinds: []envelope.Kind{envelope.KindProposalChat}})
	require.NoError(t, err)
	require.NotEmpty(t, subID)

	time.Sleep(50 * time.Millisecond) // let the server register the REQ

	author := testRelayIdentity(t)
	e, err := envelope.New(author.Relay, envelope.KindProposalChat, 1700000000, nil, "hello vault")
	require.NoError(t, err)

	require.NoError(t, client.Publish(ctx, e))

	select {
	case m := <-matches:
		require.Equal(t, subID, m.SubscriptionID)
		require.Equal(t, e.ID, m.Event.ID)
		require.True(t, m.Event.Verify())
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for matched event")
	}
}

func TestFilterMatchesOnKindAndTag(t *testing.T) {
	author := testRelayIdentity(t)
	e, err := envelope.New(author.Relay, envelope.KindProposal, 1700000000, []envelope.Tag{{"policy", "abc"}}, "x")
	require.NoError(t, err)

	require.True(t, Filter{Kinds: []envelope.Kind{envelope.KindProposal}}.Matches(e))
	require.False(t, Filter{Kinds: []envelope.Kind{envelope.KindApproval}}.Matches(e))
	require.True(t, Filter{Tags: map[string][]string{"policy": {"abc"}}}.Matches(e))
	require.False(t, Filter{Tags: map[string][]string{"policy": {"other"}}}.Matches(e))
}
