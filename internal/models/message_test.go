package models

import (
	"encoding/json"
	"errors"
	"testing"
)

func TestParse_RoutingFields(t *testing.T) {
	frame := []byte(`{"type":"offer","from":"alice","to":"bob","room":"demo","sdp":{"type":"offer","sdp":"v=0"}}`)
	msg, err := Parse(frame)
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Type != SignalTypeOffer {
		t.Errorf("Type = %q", msg.Type)
	}
	if msg.Sender() != "alice" || msg.To != "bob" || msg.Room != "demo" {
		t.Errorf("routing fields = %q/%q/%q", msg.Sender(), msg.To, msg.Room)
	}
	if msg.Broadcast() {
		t.Errorf("targeted offer classified as broadcast")
	}
}

func TestParse_SenderFallsBackToUID(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"join","uid":"carol","room":"demo"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if msg.Sender() != "carol" {
		t.Errorf("Sender() = %q, want carol", msg.Sender())
	}
}

func TestParse_UnknownType(t *testing.T) {
	_, err := Parse([]byte(`{"type":"teleport","from":"alice"}`))
	if !errors.Is(err, ErrUnknownType) {
		t.Fatalf("err = %v, want ErrUnknownType", err)
	}
}

func TestParse_Malformed(t *testing.T) {
	if _, err := Parse([]byte(`not json`)); err == nil {
		t.Fatalf("expected error for malformed frame")
	}
}

func TestBroadcast_AlwaysBroadcastIgnoresTarget(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"mic-active","from":"alice","to":"bob"}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if !msg.Broadcast() {
		t.Errorf("mic-active with target should still broadcast")
	}
}

func TestEncode_PreservesPayloadAndTarget(t *testing.T) {
	msg, err := Parse([]byte(`{"type":"answer","from":"bob","to":"alice","sdp":{"type":"answer","sdp":"v=0"}}`))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	msg.Target = "alice"

	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["_target"] != "alice" {
		t.Errorf("_target = %v", out["_target"])
	}
	sdp, ok := out["sdp"].(map[string]any)
	if !ok || sdp["sdp"] != "v=0" {
		t.Errorf("payload not preserved: %v", out["sdp"])
	}
}

func TestErrorReply(t *testing.T) {
	msg := ErrorReply("alice", "rate limit exceeded")
	data, err := msg.Encode()
	if err != nil {
		t.Fatalf("Encode: %v", err)
	}
	var out map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		t.Fatalf("Unmarshal: %v", err)
	}
	if out["type"] != "error" || out["to"] != "alice" || out["message"] != "rate limit exceeded" {
		t.Errorf("unexpected reply: %v", out)
	}
}
