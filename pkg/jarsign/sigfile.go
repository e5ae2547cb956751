package jarsign

import (
	"bytes"
	"crypto/sha1"
	"encoding/base64"
	"fmt"
	"io"
)

// signatureFileBytes renders the signature file (.SF) for the given
// manifest.
//
// A single SHA-1 stream consumes the full serialized manifest and then each
// entry stanza in section order; the running digest is snapshotted after the
// manifest (SHA1-Digest-Manifest) and after every stanza (that stanza's
// SHA1-Digest). Each snapshot therefore covers all bytes up to and including
// its stanza. Stanza text is fed to the stream unwrapped; only the rendered
// file uses the 72-byte manifest framing.
func signatureFileBytes(manifest *Manifest) ([]byte, error) {
	sf := NewManifest()
	sf.Main.Set("Signature-Version", "1.0")
	sf.Main.Set("Created-By", createdBy)

	h := sha1.New()
	if _, err := manifest.WriteTo(h); err != nil {
		return nil, fmt.Errorf("failed to digest manifest: %w", err)
	}
	sf.Main.Set("SHA1-Digest-Manifest", base64.StdEncoding.EncodeToString(h.Sum(nil)))

	for _, name := range manifest.Names() {
		attrs, _ := manifest.Entry(name)
		fmt.Fprintf(h, "Name: %s\r\n", name)
		for _, attr := range attrs {
			fmt.Fprintf(h, "%s: %s\r\n", attr.Name, attr.Value)
		}
		io.WriteString(h, "\r\n")

		var sfAttrs Attributes
		sfAttrs.Set(digestAttr, base64.StdEncoding.EncodeToString(h.Sum(nil)))
		sf.SetEntry(name, sfAttrs)
	}

	var buf bytes.Buffer
	if _, err := sf.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("failed to write signature file: %w", err)
	}
	padSignatureFile(&buf)
	return buf.Bytes(), nil
}

// padSignatureFile appends an extra CRLF when the rendered signature file
// length is an exact multiple of 1024 bytes. The java.util.jar parser on
// Android platforms up to 1.6 throws a spurious IOException on such files.
func padSignatureFile(buf *bytes.Buffer) {
	if buf.Len()%1024 == 0 {
		buf.WriteString("\r\n")
	}
}
