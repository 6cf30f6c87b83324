package models

import (
	"encoding/json"
	"testing"
)

func TestBlobCarriesMsgpackInJSON(t *testing.T) {
	type receipt struct {
		Round uint64   `msgpack:"round"`
		Logs  [][]byte `msgpack:"logs"`
	}
	in := receipt{Round: 7, Logs: [][]byte{{0x15, 0x1f, 0x7c, 0x75}}}
	blob, err := EncodeBlob(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	raw, err := json.Marshal(GroupStatusResult{State: "confirmed", Receipt: blob})
	if err != nil {
		t.Fatalf("marshal: %v", err)
	}
	var res GroupStatusResult
	if err := json.Unmarshal(raw, &res); err != nil {
		t.Fatalf("unmarshal: %v", err)
	}
	var out receipt
	if err := res.Receipt.Decode(&out); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if out.Round != 7 || len(out.Logs) != 1 || out.Logs[0][3] != 0x75 {
		t.Fatalf("unexpected receipt %+v", out)
	}
}

func TestBlobRejectsBadBase64(t *testing.T) {
	var v map[string]any
	if err := Blob("not base64!").Decode(&v); err == nil {
		t.Fatal("expected a decode error")
	}
	if !Blob("  ").IsZero() {
		t.Fatal("blank blob should be zero")
	}
}
