package jarsign

import (
	"archive/zip"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"sort"
	"time"
)

// copyEntries copies every manifest-referenced entry from in to out with the
// supplied fixed timestamp. A fixed time keeps byte-level diffs between
// successive signed builds small, which matters for incremental updates.
// Entries stored uncompressed keep the Store method so their compressed size
// is not recomputed; everything else is recompressed with Deflate.
func copyEntries(manifest *Manifest, in *zip.Reader, out *zip.Writer, timestamp time.Time) error {
	byName := make(map[string]*zip.File, len(in.File))
	for _, f := range in.File {
		byName[f.Name] = f
	}

	names := manifest.Names()
	sort.Strings(names)
	for _, name := range names {
		f, ok := byName[name]
		if !ok {
			return fmt.Errorf("manifest entry %s not present in input archive", name)
		}

		header := &zip.FileHeader{Name: name, Method: zip.Deflate, Modified: timestamp}
		if f.Method == zip.Store {
			header.Method = zip.Store
		}

		w, err := out.CreateHeader(header)
		if err != nil {
			return fmt.Errorf("failed to create output entry %s: %w", name, err)
		}
		rc, err := f.Open()
		if err != nil {
			return fmt.Errorf("failed to open entry %s: %w", name, err)
		}
		_, err = io.Copy(w, rc)
		rc.Close()
		if err != nil {
			return fmt.Errorf("failed to copy entry %s: %w", name, err)
		}
	}
	return nil
}

// writeOTACert embeds a copy of the verification certificate at the reserved
// OTA path and records its digest in the manifest. The file should exactly
// match one of the certificates in the device's otacerts store.
func writeOTACert(out *zip.Writer, certData []byte, timestamp time.Time, manifest *Manifest) error {
	w, err := out.CreateHeader(&zip.FileHeader{Name: otaCertName, Method: zip.Deflate, Modified: timestamp})
	if err != nil {
		return fmt.Errorf("failed to create OTA certificate entry: %w", err)
	}
	if _, err := w.Write(certData); err != nil {
		return fmt.Errorf("failed to write OTA certificate entry: %w", err)
	}

	sum := sha1.Sum(certData)
	var attrs Attributes
	attrs.Set(digestAttr, base64.StdEncoding.EncodeToString(sum[:]))
	manifest.SetEntry(otaCertName, attrs)
	return nil
}
