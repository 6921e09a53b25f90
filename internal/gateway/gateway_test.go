package gateway

import (
	"context"
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gorilla/websocket"

	"miniagents/internal/agent"
	"miniagents/internal/config"
	"miniagents/internal/message"
	"miniagents/internal/promise"
)

type tokenIterator struct {
	tokens []string
	idx    int
}

func (it *tokenIterator) Next(ctx context.Context) (string, error) {
	if it.idx >= len(it.tokens) {
		return "", io.EOF
	}
	v := it.tokens[it.idx]
	it.idx++
	return v, nil
}

func newTestReply(tokens []string) agent.Reply {
	producer := func() (promise.PieceIterator[string], error) {
		return &tokenIterator{tokens: tokens}, nil
	}
	packager := func(ctx context.Context, pieces promise.PieceSource[string]) (message.Message, error) {
		return agent.AssembleMessage(ctx, message.RoleAssistant, pieces)
	}
	return promise.New(producer, packager, true)
}

func newTestGateway(t *testing.T) *Gateway {
	t.Helper()
	g, err := New(&config.Config{GatewayAddr: ":0", GatewayMaxPayloadBytes: 1 << 16}, nil)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return g
}

func TestGatewayStreamsTokensInOrder(t *testing.T) {
	g := newTestGateway(t)
	g.Publish(newTestReply([]string{"hel", "lo"}))

	srv := httptest.NewServer(g.server.Handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err != nil {
		t.Fatalf("dial: %v", err)
	}
	defer conn.Close()

	var got []frame
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("read: %v", err)
		}
		raw, err := Codecs["gzip"].Decompress(data)
		if err != nil {
			t.Fatalf("decompress: %v", err)
		}
		var f frame
		if err := json.Unmarshal(raw, &f); err != nil {
			t.Fatalf("unmarshal: %v", err)
		}
		got = append(got, f)
		if f.Type != "token" {
			break
		}
	}

	if len(got) != 3 {
		t.Fatalf("expected 2 tokens + end frame, got %+v", got)
	}
	if got[0].Text != "hel" || got[1].Text != "lo" {
		t.Fatalf("unexpected token order: %+v", got)
	}
	if got[2].Type != "end" {
		t.Fatalf("expected a terminal end frame, got %+v", got[2])
	}
}

func TestGatewayRejectsConnectionsWithoutAPublishedReply(t *testing.T) {
	g := newTestGateway(t)

	srv := httptest.NewServer(g.server.Handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the upgrade to be rejected")
	}
	if resp == nil || resp.StatusCode != 503 {
		t.Fatalf("expected 503, got %+v", resp)
	}
}

func TestGatewayRejectsUnknownCodec(t *testing.T) {
	g := newTestGateway(t)
	g.Publish(newTestReply([]string{"a"}))

	srv := httptest.NewServer(g.server.Handler)
	defer srv.Close()

	wsURL := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?codec=bogus"
	_, resp, err := websocket.DefaultDialer.Dial(wsURL, nil)
	if err == nil {
		t.Fatal("expected the upgrade to be rejected")
	}
	if resp == nil || resp.StatusCode != 400 {
		t.Fatalf("expected 400, got %+v", resp)
	}
}
