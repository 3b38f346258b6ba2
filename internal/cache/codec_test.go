package cache

import (
	"errors"
	"net/http"
	"testing"
	"time"
)

func TestCodecsAreBuiltOnceAndReused(t *testing.T) {
	enc, dec, err := codecs()
	if err != nil {
		t.Fatalf("codecs error: %v", err)
	}
	if enc == nil || dec == nil {
		t.Fatalf("codecs must not be nil without an error")
	}
	enc2, dec2, err := codecs()
	if err != nil {
		t.Fatalf("second codecs error: %v", err)
	}
	if enc2 != enc || dec2 != dec {
		t.Fatalf("codecs should be shared across calls")
	}
}

func TestEncodeEntryRoundTripsThroughDecoder(t *testing.T) {
	key := GetKey("/static/app.js")
	resp := &Response{Status: http.StatusOK, Body: []byte("console.log(1)")}

	data, sum, err := encodeEntry(key, resp, time.Unix(1700000000, 0))
	if err != nil {
		t.Fatalf("encode error: %v", err)
	}
	gotKey, got, err := decodeEntry(data)
	if err != nil {
		t.Fatalf("decode error: %v", err)
	}
	if gotKey != key {
		t.Fatalf("key mismatch: %v", gotKey)
	}
	if got.Type != ResponseBasic || string(got.Body) != "console.log(1)" {
		t.Fatalf("unexpected entry: %+v", got)
	}
	if got.Digest != sum {
		t.Fatalf("digest mismatch: %s vs %s", got.Digest, sum)
	}

	if _, _, err := decodeEntry([]byte("not zstd")); !errors.Is(err, ErrCorruptEntry) {
		t.Fatalf("expected ErrCorruptEntry, got %v", err)
	}
}
