package jsonl

import (
	"bytes"
	"testing"
)

type line struct {
	ID     string `json:"id"`
	Amount string `json:"amount"`
}

func TestEncodeDecodeGZ(t *testing.T) {
	in := []line{{ID: "T-1", Amount: "199.00"}, {ID: "R-7", Amount: "49.95"}}

	data, err := EncodeGZ(in)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	if len(data) < 2 || data[0] != 0x1f || data[1] != 0x8b {
		t.Fatalf("output is not gzip")
	}

	out, err := DecodeGZ[line](bytes.NewReader(data))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(out) != 2 || out[1].ID != "R-7" {
		t.Fatalf("unexpected lines: %+v", out)
	}
}

func TestDecodeRejectsPlainText(t *testing.T) {
	if _, err := DecodeGZ[line](bytes.NewReader([]byte(`{"id":"x"}`))); err == nil {
		t.Fatalf("expected gzip header error")
	}
}
