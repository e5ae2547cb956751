package jarsign

import (
	"archive/zip"
	"bytes"
	"sync"
	"testing"
)

var (
	testIdentityOnce sync.Once
	testIdentity     *SigningIdentity
	testIdentityErr  error
)

// getTestIdentity returns a self-signed RSA identity shared across tests.
// Key generation is slow enough to be worth doing once.
func getTestIdentity(t *testing.T) *SigningIdentity {
	t.Helper()
	testIdentityOnce.Do(func() {
		testIdentity, testIdentityErr = GenerateDebugIdentity("jarsign test")
	})
	if testIdentityErr != nil {
		t.Fatalf("Failed to generate test identity: %v", testIdentityErr)
	}
	return testIdentity
}

type testEntry struct {
	name   string
	data   []byte
	stored bool
}

// buildTestZip assembles an in-memory zip archive from the given entries.
func buildTestZip(t *testing.T, entries []testEntry) []byte {
	t.Helper()
	var buf bytes.Buffer
	w := zip.NewWriter(&buf)
	for _, e := range entries {
		method := zip.Deflate
		if e.stored {
			method = zip.Store
		}
		f, err := w.CreateHeader(&zip.FileHeader{Name: e.name, Method: method})
		if err != nil {
			t.Fatalf("Failed to create entry %s: %v", e.name, err)
		}
		if _, err := f.Write(e.data); err != nil {
			t.Fatalf("Failed to write entry %s: %v", e.name, err)
		}
	}
	if err := w.Close(); err != nil {
		t.Fatalf("Failed to close test zip: %v", err)
	}
	return buf.Bytes()
}

// openTestZip wraps buildTestZip output in a reader.
func openTestZip(t *testing.T, data []byte) *zip.Reader {
	t.Helper()
	r, err := zip.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		t.Fatalf("Failed to open test zip: %v", err)
	}
	return r
}
