package jarsign

import (
	"archive/zip"
	"bytes"
	"encoding/binary"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"
)

var testTimestamp = time.Date(2009, 1, 1, 0, 0, 0, 0, time.UTC)

func testInputEntries() []testEntry {
	return []testEntry{
		{name: "classes.dex", data: []byte("dex bytecode goes here")},
		{name: "assets/raw.bin", data: bytes.Repeat([]byte{0x00, 0xff}, 64), stored: true},
		{name: "res/values.xml", data: []byte("<resources/>")},
		{name: "META-INF/OLD.SF", data: []byte("stale signature file")},
		{name: "META-INF/OLD.RSA", data: []byte("stale signature block")},
	}
}

func writeTestInput(t *testing.T, dir string) string {
	t.Helper()
	path := filepath.Join(dir, "input.apk")
	if err := os.WriteFile(path, buildTestZip(t, testInputEntries()), 0644); err != nil {
		t.Fatalf("Failed to write input archive: %v", err)
	}
	return path
}

func readEntry(t *testing.T, r *zip.Reader, name string) ([]byte, *zip.File) {
	t.Helper()
	for _, f := range r.File {
		if f.Name == name {
			rc, err := f.Open()
			if err != nil {
				t.Fatalf("Failed to open %s: %v", name, err)
			}
			defer rc.Close()
			data, err := io.ReadAll(rc)
			if err != nil {
				t.Fatalf("Failed to read %s: %v", name, err)
			}
			return data, f
		}
	}
	t.Fatalf("Entry %s not found in output", name)
	return nil, nil
}

func TestSignEntryMode(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir)
	output := filepath.Join(dir, "signed.apk")

	err := Sign(Options{
		Input:     input,
		Output:    output,
		Identity:  getTestIdentity(t),
		Timestamp: testTimestamp,
	})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	zr, err := zip.OpenReader(output)
	if err != nil {
		t.Fatalf("Failed to open signed archive: %v", err)
	}
	defer zr.Close()

	// Every non-reserved entry survives with identical content; stored
	// entries keep their method.
	for _, e := range testInputEntries() {
		if isReservedName(e.name) {
			for _, f := range zr.File {
				if f.Name == e.name {
					t.Errorf("Stale signature artifact %s copied to output", e.name)
				}
			}
			continue
		}
		data, f := readEntry(t, &zr.Reader, e.name)
		if !bytes.Equal(data, e.data) {
			t.Errorf("Content of %s changed during signing", e.name)
		}
		wantMethod := uint16(zip.Deflate)
		if e.stored {
			wantMethod = zip.Store
		}
		if f.Method != wantMethod {
			t.Errorf("Method of %s = %d, want %d", e.name, f.Method, wantMethod)
		}
	}

	// Signature artifacts are present and consistent.
	manifestData, _ := readEntry(t, &zr.Reader, manifestName)
	manifest, err := ParseManifest(manifestData)
	if err != nil {
		t.Fatalf("Failed to parse output manifest: %v", err)
	}
	if len(manifest.Names()) != 3 {
		t.Errorf("Manifest lists %v, want 3 entries", manifest.Names())
	}

	sfData, _ := readEntry(t, &zr.Reader, "META-INF/CERT.SF")
	wantSF, err := signatureFileBytes(manifest)
	if err != nil {
		t.Fatalf("signatureFileBytes failed: %v", err)
	}
	if !bytes.Equal(sfData, wantSF) {
		t.Error("Signature file in archive does not match the manifest it was built from")
	}

	blockData, _ := readEntry(t, &zr.Reader, "META-INF/CERT.RSA")
	if len(blockData) == 0 {
		t.Error("Empty signature block entry")
	}
}

func TestSignDeterminism(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir)

	sign := func(out string) []byte {
		err := Sign(Options{
			Input:     input,
			Output:    out,
			Identity:  getTestIdentity(t),
			Timestamp: testTimestamp,
		})
		if err != nil {
			t.Fatalf("Sign failed: %v", err)
		}
		data, err := os.ReadFile(out)
		if err != nil {
			t.Fatalf("Failed to read signed output: %v", err)
		}
		return data
	}

	first := sign(filepath.Join(dir, "signed1.apk"))
	second := sign(filepath.Join(dir, "signed2.apk"))
	if !bytes.Equal(first, second) {
		t.Error("Signing the same input twice produced different bytes")
	}
}

func TestSignCustomSignerName(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir)
	output := filepath.Join(dir, "signed.apk")

	err := Sign(Options{
		Input:      input,
		Output:     output,
		Identity:   getTestIdentity(t),
		SignerName: "release",
		Timestamp:  testTimestamp,
	})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	zr, err := zip.OpenReader(output)
	if err != nil {
		t.Fatalf("Failed to open signed archive: %v", err)
	}
	defer zr.Close()
	readEntry(t, &zr.Reader, "META-INF/RELEASE.SF")
	readEntry(t, &zr.Reader, "META-INF/RELEASE.RSA")
}

func TestSignWholeFileMode(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir)

	err := Sign(Options{
		Input:     input,
		Identity:  getTestIdentity(t),
		Timestamp: testTimestamp,
	})
	if err != nil {
		t.Fatalf("Whole-file Sign failed: %v", err)
	}

	signed, err := os.ReadFile(input)
	if err != nil {
		t.Fatalf("Failed to read signed archive: %v", err)
	}

	// Trailer format: sentinel, total size, and an EOCD record sitting
	// exactly totalSize+22 bytes from the end.
	if got := binary.LittleEndian.Uint16(signed[len(signed)-4 : len(signed)-2]); got != 0xffff {
		t.Errorf("Sentinel = 0x%04x, want 0xffff", got)
	}
	totalSize := int(binary.LittleEndian.Uint16(signed[len(signed)-2:]))
	eocdStart := len(signed) - totalSize - eocdLen
	if eocdStart < 0 || !bytes.Equal(signed[eocdStart:eocdStart+4], eocdMarker) {
		t.Error("EOCD record not found at the expected position before the trailer")
	}

	// The archive must still open as a ZIP, now containing the signature
	// entries.
	zr, err := zip.NewReader(bytes.NewReader(signed), int64(len(signed)))
	if err != nil {
		t.Fatalf("Signed archive no longer parses as ZIP: %v", err)
	}
	readEntry(t, zr, manifestName)
	readEntry(t, zr, "META-INF/CERT.SF")
	readEntry(t, zr, "META-INF/CERT.RSA")
	if zr.Comment == "" {
		t.Error("Signed archive carries no archive comment")
	}
}

func TestSignExplicitOutputEqualsInput(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir)

	err := Sign(Options{
		Input:     input,
		Output:    input,
		Identity:  getTestIdentity(t),
		Timestamp: testTimestamp,
	})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	signed, err := os.ReadFile(input)
	if err != nil {
		t.Fatalf("Failed to read signed archive: %v", err)
	}
	if got := binary.LittleEndian.Uint16(signed[len(signed)-4 : len(signed)-2]); got != 0xffff {
		t.Error("Output equal to input did not select whole-file mode")
	}
}

func TestSignOTACert(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir)
	output := filepath.Join(dir, "signed.zip")

	identity := getTestIdentity(t)
	otaPath := filepath.Join(dir, "otacert.der")
	if err := os.WriteFile(otaPath, identity.Certificate.Raw, 0644); err != nil {
		t.Fatalf("Failed to write OTA certificate: %v", err)
	}

	err := Sign(Options{
		Input:     input,
		Output:    output,
		Identity:  identity,
		Timestamp: testTimestamp,
		OTACert:   otaPath,
	})
	if err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	zr, err := zip.OpenReader(output)
	if err != nil {
		t.Fatalf("Failed to open signed archive: %v", err)
	}
	defer zr.Close()

	data, _ := readEntry(t, &zr.Reader, otaCertName)
	if !bytes.Equal(data, identity.Certificate.Raw) {
		t.Error("Embedded OTA certificate differs from the input file")
	}

	manifestData, _ := readEntry(t, &zr.Reader, manifestName)
	manifest, err := ParseManifest(manifestData)
	if err != nil {
		t.Fatalf("Failed to parse output manifest: %v", err)
	}
	if _, ok := manifest.Entry(otaCertName); !ok {
		t.Error("OTA certificate not digested into the manifest")
	}
}

func TestSignValidation(t *testing.T) {
	identity := getTestIdentity(t)

	if err := Sign(Options{Identity: identity}); err == nil {
		t.Error("Expected error for missing input path")
	}
	if err := Sign(Options{Input: "in.zip"}); err == nil {
		t.Error("Expected error for missing identity")
	}
	if err := Sign(Options{Input: "in.zip", Identity: &SigningIdentity{}}); err == nil {
		t.Error("Expected error for identity without certificate and key")
	}
	if err := Sign(Options{Input: "does-not-exist.zip", Output: "out.zip", Identity: identity}); err == nil {
		t.Error("Expected error for unreadable input")
	}
}

func TestSignDefaultTimestamp(t *testing.T) {
	dir := t.TempDir()
	input := writeTestInput(t, dir)
	output := filepath.Join(dir, "signed.apk")

	identity := getTestIdentity(t)
	if err := Sign(Options{Input: input, Output: output, Identity: identity}); err != nil {
		t.Fatalf("Sign failed: %v", err)
	}

	zr, err := zip.OpenReader(output)
	if err != nil {
		t.Fatalf("Failed to open signed archive: %v", err)
	}
	defer zr.Close()

	_, f := readEntry(t, &zr.Reader, "classes.dex")
	want := identity.Certificate.NotBefore.Add(time.Hour)
	// ZIP timestamps have two-second granularity.
	if diff := f.Modified.Sub(want); diff < -2*time.Second || diff > 2*time.Second {
		t.Errorf("Entry timestamp %v, want about %v", f.Modified, want)
	}
}
