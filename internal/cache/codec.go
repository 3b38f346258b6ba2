package cache

import (
	_ "crypto/sha256"
	"encoding/json"
	"fmt"
	"net/http"
	"sync"
	"time"

	"github.com/klauspost/compress/zstd"
	"github.com/opencontainers/go-digest"
)

// EncodeAll/DecodeAll 可并发调用，整个进程共享一组编解码器，首次使用时构造。
var (
	codecOnce sync.Once
	encoder   *zstd.Encoder
	decoder   *zstd.Decoder
	codecErr  error
)

func codecs() (*zstd.Encoder, *zstd.Decoder, error) {
	codecOnce.Do(func() {
		enc, err := zstd.NewWriter(nil, zstd.WithEncoderLevel(zstd.SpeedDefault))
		if err != nil {
			codecErr = fmt.Errorf("init zstd encoder: %w", err)
			return
		}
		dec, err := zstd.NewReader(nil)
		if err != nil {
			codecErr = fmt.Errorf("init zstd decoder: %w", err)
			return
		}
		encoder, decoder = enc, dec
	})
	return encoder, decoder, codecErr
}

type record struct {
	Key      Key           `json:"key"`
	Type     ResponseType  `json:"type"`
	Status   int           `json:"status"`
	Header   http.Header   `json:"header,omitempty"`
	Body     []byte        `json:"body,omitempty"`
	StoredAt time.Time     `json:"stored_at"`
	Digest   digest.Digest `json:"digest"`
}

func encodeEntry(key Key, resp *Response, storedAt time.Time) ([]byte, digest.Digest, error) {
	sum := digest.FromBytes(resp.Body)
	rec := record{
		Key:      key,
		Type:     resp.Type,
		Status:   resp.Status,
		Header:   resp.Header,
		Body:     resp.Body,
		StoredAt: storedAt.UTC(),
		Digest:   sum,
	}
	if rec.Type == "" {
		rec.Type = ResponseBasic
	}
	raw, err := json.Marshal(rec)
	if err != nil {
		return nil, "", fmt.Errorf("encode cache entry: %w", err)
	}
	enc, _, err := codecs()
	if err != nil {
		return nil, "", err
	}
	return enc.EncodeAll(raw, nil), sum, nil
}

func decodeEntry(data []byte) (Key, *Response, error) {
	_, dec, err := codecs()
	if err != nil {
		return Key{}, nil, err
	}
	raw, err := dec.DecodeAll(data, nil)
	if err != nil {
		return Key{}, nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	var rec record
	if err := json.Unmarshal(raw, &rec); err != nil {
		return Key{}, nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	if err := rec.Digest.Validate(); err != nil {
		return Key{}, nil, fmt.Errorf("%w: %v", ErrCorruptEntry, err)
	}
	verifier := rec.Digest.Verifier()
	if _, err := verifier.Write(rec.Body); err != nil || !verifier.Verified() {
		return Key{}, nil, fmt.Errorf("%w: digest mismatch for %s", ErrCorruptEntry, rec.Key)
	}
	return rec.Key, &Response{
		Type:     rec.Type,
		Status:   rec.Status,
		Header:   rec.Header,
		Body:     rec.Body,
		StoredAt: rec.StoredAt,
		Digest:   rec.Digest,
	}, nil
}
