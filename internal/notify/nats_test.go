package notify

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"alertmanager/internal/config"
	"alertmanager/test/testutil"

	"github.com/nats-io/nats.go"
)

func TestNATSSenderCorePublish(t *testing.T) {
	url, stop := testutil.StartLocalNATSServer(t)
	defer stop()

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	sub, err := nc.SubscribeSync("alerts.ops")
	if err != nil {
		t.Fatalf("subscribe: %v", err)
	}

	sender := NewNATSSender(config.NATSNotifyConfig{URL: []string{url}, Subject: "alerts.ops"})
	defer sender.Close()
	if err := sender.Send(context.Background(), testMessage(testAlert("disk"))); err != nil {
		t.Fatalf("send: %v", err)
	}

	msg, err := sub.NextMsg(2 * time.Second)
	if err != nil {
		t.Fatalf("next msg: %v", err)
	}
	if msg.Header.Get("Alert-Name") != "disk" || msg.Header.Get("Alert-State") != "ACTIVE" {
		t.Fatalf("unexpected headers: %v", msg.Header)
	}
	var payload WebhookPayload
	if err := json.Unmarshal(msg.Data, &payload); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if payload.Alert.Name != "disk" || payload.Brief != "disk is ACTIVE" {
		t.Fatalf("unexpected payload: %+v", payload)
	}
}

func TestNATSSenderJetStreamCreatesStream(t *testing.T) {
	url, stop := testutil.StartLocalNATSServer(t)
	defer stop()

	sender := NewNATSSender(config.NATSNotifyConfig{URL: []string{url}, Subject: "notify.ops", Stream: "NOTIFY_OPS"})
	defer sender.Close()
	for i := 0; i < 2; i++ {
		if err := sender.Send(context.Background(), testMessage(testAlert("disk"))); err != nil {
			t.Fatalf("send %d: %v", i, err)
		}
	}

	nc, err := nats.Connect(url)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer nc.Close()
	js, err := nc.JetStream()
	if err != nil {
		t.Fatalf("jetstream: %v", err)
	}
	info, err := js.StreamInfo("NOTIFY_OPS")
	if err != nil {
		t.Fatalf("stream info: %v", err)
	}
	if info.State.Msgs != 2 {
		t.Fatalf("stream msgs=%d, want 2", info.State.Msgs)
	}
}
