package storage

import (
	"bytes"
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

// fakeStore is an in-memory ObjectStore that records request patterns.
type fakeStore struct {
	objects    map[string][]byte
	uploads    map[string][][]byte // uploadID -> parts
	rangeCalls int
	failRange  int // fail the Nth range request (1-based), 0 = never
	aborted    []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		objects: make(map[string][]byte),
		uploads: make(map[string][][]byte),
	}
}

func (f *fakeStore) Stat(_ context.Context, key string) (int64, error) {
	data, ok := f.objects[key]
	if !ok {
		return 0, fmt.Errorf("no such key: %s", key)
	}
	return int64(len(data)), nil
}

func (f *fakeStore) GetRange(_ context.Context, key string, start, end int64) (io.ReadCloser, error) {
	f.rangeCalls++
	if f.failRange > 0 && f.rangeCalls == f.failRange {
		return nil, errors.New("simulated range failure")
	}
	data, ok := f.objects[key]
	if !ok {
		return nil, fmt.Errorf("no such key: %s", key)
	}
	if start < 0 || end >= int64(len(data)) || start > end {
		return nil, fmt.Errorf("invalid range %d-%d for %d bytes", start, end, len(data))
	}
	return io.NopCloser(bytes.NewReader(data[start : end+1])), nil
}

func (f *fakeStore) CreateMultipartUpload(_ context.Context, key string) (string, error) {
	id := fmt.Sprintf("upload-%s-%d", key, len(f.uploads))
	f.uploads[id] = nil
	return id, nil
}

func (f *fakeStore) UploadPart(_ context.Context, _, uploadID string, partNumber int, data []byte) (Part, error) {
	parts, ok := f.uploads[uploadID]
	if !ok {
		return Part{}, errors.New("unknown upload id")
	}
	if partNumber != len(parts)+1 {
		return Part{}, fmt.Errorf("part %d out of order, expected %d", partNumber, len(parts)+1)
	}
	cp := make([]byte, len(data))
	copy(cp, data)
	f.uploads[uploadID] = append(parts, cp)
	return Part{Number: partNumber, ETag: fmt.Sprintf("etag-%d", partNumber)}, nil
}

func (f *fakeStore) CompleteMultipartUpload(_ context.Context, key, uploadID string, parts []Part) error {
	stored, ok := f.uploads[uploadID]
	if !ok {
		return errors.New("unknown upload id")
	}
	if len(parts) != len(stored) {
		return fmt.Errorf("completed with %d parts, uploaded %d", len(parts), len(stored))
	}
	var buf bytes.Buffer
	for _, p := range stored {
		buf.Write(p)
	}
	f.objects[key] = buf.Bytes()
	delete(f.uploads, uploadID)
	return nil
}

func (f *fakeStore) AbortMultipartUpload(_ context.Context, _, uploadID string) error {
	f.aborted = append(f.aborted, uploadID)
	delete(f.uploads, uploadID)
	return nil
}

func (f *fakeStore) Remove(_ context.Context, key string) error {
	delete(f.objects, key)
	return nil
}

func (f *fakeStore) PresignedGetURL(_ context.Context, key string, _ time.Duration) (string, error) {
	return "https://example.invalid/" + key, nil
}

func TestDownloadToFileReassemblesExactly(t *testing.T) {
	cases := []struct {
		name      string
		size      int64
		chunkSize int64
		wantCalls int
	}{
		{"multiple even chunks", 64, 16, 4},
		{"last chunk short", 70, 16, 5},
		{"single chunk", 10, 16, 1},
		{"chunk equals size", 16, 16, 1},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			data := make([]byte, tc.size)
			if _, err := rand.Read(data); err != nil {
				t.Fatalf("rand: %v", err)
			}

			store := newFakeStore()
			store.objects["rec.mp3"] = data

			path := filepath.Join(t.TempDir(), "rec.mp3")
			if err := DownloadToFile(context.Background(), store, "rec.mp3", path, tc.chunkSize); err != nil {
				t.Fatalf("download: %v", err)
			}

			got, err := os.ReadFile(path)
			if err != nil {
				t.Fatalf("read result: %v", err)
			}
			if !bytes.Equal(got, data) {
				t.Fatalf("downloaded bytes differ from original")
			}
			if store.rangeCalls != tc.wantCalls {
				t.Fatalf("expected %d range requests, got %d", tc.wantCalls, store.rangeCalls)
			}
		})
	}
}

func TestDownloadToFileAbortsOnRangeFailure(t *testing.T) {
	store := newFakeStore()
	store.objects["rec.mp3"] = make([]byte, 100)
	store.failRange = 2

	path := filepath.Join(t.TempDir(), "rec.mp3")
	err := DownloadToFile(context.Background(), store, "rec.mp3", path, 16)
	if err == nil {
		t.Fatal("expected error on failed range request")
	}
	if _, statErr := os.Stat(path); !os.IsNotExist(statErr) {
		t.Fatal("partial file should have been removed")
	}
}

func TestUploadMultipartRoundTrip(t *testing.T) {
	data := make([]byte, 100)
	if _, err := rand.Read(data); err != nil {
		t.Fatalf("rand: %v", err)
	}

	store := newFakeStore()
	if err := UploadMultipart(context.Background(), store, "up.mp4", bytes.NewReader(data), 32); err != nil {
		t.Fatalf("upload: %v", err)
	}

	if !bytes.Equal(store.objects["up.mp4"], data) {
		t.Fatal("stored object differs from uploaded bytes")
	}
	if len(store.aborted) != 0 {
		t.Fatalf("unexpected aborts: %v", store.aborted)
	}
}

func TestUploadMultipartRejectsEmptyInput(t *testing.T) {
	store := newFakeStore()
	if err := UploadMultipart(context.Background(), store, "empty", bytes.NewReader(nil), 32); err == nil {
		t.Fatal("expected error for empty input")
	}
}
