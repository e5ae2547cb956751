package jarsign

import (
	"archive/zip"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
	"regexp"
	"sort"
)

const (
	manifestName = "META-INF/MANIFEST.MF"

	// otaCertName is where device-side OTA tooling expects to find a copy
	// of the verification certificate.
	otaCertName = "META-INF/com/android/otacert"

	createdBy = "1.0 (jarsigner)"

	sigFileFormat  = "META-INF/%s.SF"
	sigBlockFormat = "META-INF/%s.RSA"

	digestAttr = "SHA1-Digest"
)

// stripPattern matches signature artifacts from a previous signing pass.
// Entries matching it are neither digested nor copied to the output.
var stripPattern = regexp.MustCompile(`^META-INF/(.*)\.(SF|RSA|DSA)$`)

// isReservedName reports whether name belongs to the signing machinery
// rather than to archive content.
func isReservedName(name string) bool {
	return name == manifestName || name == otaCertName || stripPattern.MatchString(name)
}

// addDigests computes the SHA-1 of every content entry in the archive and
// assembles the output manifest, visiting entries in lexicographic name
// order so the result is deterministic. Per-entry attributes from an
// existing input manifest are carried over; without one, the main section is
// seeded with the fixed version and creator markers.
func addDigests(r *zip.Reader) (*Manifest, error) {
	input, err := readManifest(r)
	if err != nil {
		return nil, err
	}

	output := NewManifest()
	if input != nil {
		output.Main = input.Main.Clone()
	} else {
		output.Main.Set("Manifest-Version", "1.0")
		output.Main.Set("Created-By", createdBy)
	}

	files := append([]*zip.File(nil), r.File...)
	sort.Slice(files, func(i, j int) bool { return files[i].Name < files[j].Name })

	h := sha1.New()
	for _, f := range files {
		name := f.Name
		if f.FileInfo().IsDir() || isReservedName(name) {
			continue
		}

		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open entry %s: %w", name, err)
		}
		h.Reset()
		_, err = io.Copy(h, rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read entry %s: %w", name, err)
		}

		var attrs Attributes
		if input != nil {
			if prev, ok := input.Entry(name); ok {
				attrs = prev.Clone()
			}
		}
		attrs.Set(digestAttr, base64.StdEncoding.EncodeToString(h.Sum(nil)))
		output.SetEntry(name, attrs)
	}

	return output, nil
}

// readManifest returns the parsed META-INF/MANIFEST.MF from the archive, or
// nil if the archive carries none.
func readManifest(r *zip.Reader) (*Manifest, error) {
	for _, f := range r.File {
		if f.Name != manifestName {
			continue
		}
		rc, err := f.Open()
		if err != nil {
			return nil, fmt.Errorf("failed to open input manifest: %w", err)
		}
		data, err := io.ReadAll(rc)
		rc.Close()
		if err != nil {
			return nil, fmt.Errorf("failed to read input manifest: %w", err)
		}
		m, err := ParseManifest(data)
		if err != nil {
			return nil, fmt.Errorf("failed to parse input manifest: %w", err)
		}
		return m, nil
	}
	return nil, nil
}
