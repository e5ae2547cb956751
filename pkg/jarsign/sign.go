package jarsign

import (
	"archive/zip"
	"bytes"
	"compress/flate"
	"crypto"
	"crypto/x509"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// Options contains all options for a signing operation.
type Options struct {
	// Input is the path to the unsigned ZIP-based archive.
	Input string

	// Output is the path for the signed archive. Empty, or equal to Input,
	// selects whole-file mode: the entry-signed archive is assembled in
	// memory, re-signed as a single byte stream, and written back over the
	// input path.
	Output string

	// Identity is the certificate and private key to sign with.
	Identity *SigningIdentity

	// SignerName derives the signature artifact paths META-INF/<NAME>.SF
	// and META-INF/<NAME>.RSA. Defaults to CERT.
	SignerName string

	// Timestamp is applied to every output entry. Zero means one hour past
	// the certificate's NotBefore, which assumes the certificate is valid
	// for at least that long.
	Timestamp time.Time

	// OTACert optionally names a certificate file to embed verbatim at
	// META-INF/com/android/otacert.
	OTACert string
}

// Sign signs the archive named by opts. The operation is synchronous and
// atomic from the caller's perspective: on error nothing useful has been
// produced, and in whole-file mode the input path is only replaced once the
// final bytes are fully assembled.
func Sign(opts Options) error {
	if opts.Input == "" {
		return fmt.Errorf("input path is required")
	}
	if opts.Identity == nil || opts.Identity.Certificate == nil || opts.Identity.PrivateKey == nil {
		return fmt.Errorf("signing identity with certificate and private key is required")
	}

	wholeFile := opts.Output == "" || opts.Output == opts.Input

	signerName := opts.SignerName
	if signerName == "" {
		signerName = "CERT"
	}
	signerName = strings.ToUpper(signerName)

	timestamp := opts.Timestamp
	if timestamp.IsZero() {
		timestamp = opts.Identity.Certificate.NotBefore.Add(time.Hour)
	}

	in, err := zip.OpenReader(opts.Input)
	if err != nil {
		return fmt.Errorf("failed to open input archive: %w", err)
	}
	defer in.Close()

	if wholeFile {
		var buf bytes.Buffer
		if err := writeSignedArchive(&in.Reader, &buf, opts, signerName, timestamp, false); err != nil {
			return err
		}
		return replaceWholeFileSigned(opts.Input, buf.Bytes(), opts.Identity)
	}

	out, err := os.Create(opts.Output)
	if err != nil {
		return fmt.Errorf("failed to create output archive: %w", err)
	}
	if err := writeSignedArchive(&in.Reader, out, opts, signerName, timestamp, true); err != nil {
		out.Close()
		return err
	}
	if err := out.Close(); err != nil {
		return fmt.Errorf("failed to close output archive: %w", err)
	}
	return nil
}

// SignJar signs input with the given certificate and key, writing the result
// to output (or back over input when output is empty or identical).
func SignJar(cert *x509.Certificate, key crypto.PrivateKey, input, output, signerName string) error {
	return Sign(Options{
		Input:      input,
		Output:     output,
		Identity:   &SigningIdentity{Certificate: cert, PrivateKey: key},
		SignerName: signerName,
	})
}

// writeSignedArchive runs the entry-signed pipeline: digest ledger, entry
// copy, manifest, signature file, signature block.
func writeSignedArchive(in *zip.Reader, out io.Writer, opts Options, signerName string, timestamp time.Time, maxCompression bool) error {
	zw := zip.NewWriter(out)
	if maxCompression {
		// Signed packages live forever on a device partition, so spend the
		// time making them small. The in-place OTA path keeps the default
		// level, which is much faster for output that is only slightly
		// larger.
		zw.RegisterCompressor(zip.Deflate, func(w io.Writer) (io.WriteCloser, error) {
			return flate.NewWriter(w, flate.BestCompression)
		})
	}

	manifest, err := addDigests(in)
	if err != nil {
		zw.Close()
		return err
	}

	if err := copyEntries(manifest, in, zw, timestamp); err != nil {
		zw.Close()
		return err
	}

	if opts.OTACert != "" {
		certData, err := os.ReadFile(opts.OTACert)
		if err != nil {
			zw.Close()
			return fmt.Errorf("failed to read OTA certificate: %w", err)
		}
		if err := writeOTACert(zw, certData, timestamp, manifest); err != nil {
			zw.Close()
			return err
		}
	}

	w, err := zw.CreateHeader(&zip.FileHeader{Name: manifestName, Method: zip.Deflate, Modified: timestamp})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to create manifest entry: %w", err)
	}
	if _, err := manifest.WriteTo(w); err != nil {
		zw.Close()
		return fmt.Errorf("failed to write manifest: %w", err)
	}

	sigFile, err := signatureFileBytes(manifest)
	if err != nil {
		zw.Close()
		return err
	}
	w, err = zw.CreateHeader(&zip.FileHeader{Name: fmt.Sprintf(sigFileFormat, signerName), Method: zip.Deflate, Modified: timestamp})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to create signature file entry: %w", err)
	}
	if _, err := w.Write(sigFile); err != nil {
		zw.Close()
		return fmt.Errorf("failed to write signature file: %w", err)
	}

	block, err := signatureBlock(sigFile, opts.Identity)
	if err != nil {
		zw.Close()
		return err
	}
	w, err = zw.CreateHeader(&zip.FileHeader{Name: fmt.Sprintf(sigBlockFormat, signerName), Method: zip.Deflate, Modified: timestamp})
	if err != nil {
		zw.Close()
		return fmt.Errorf("failed to create signature block entry: %w", err)
	}
	if _, err := w.Write(block); err != nil {
		zw.Close()
		return fmt.Errorf("failed to write signature block: %w", err)
	}

	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// replaceWholeFileSigned whole-file signs the assembled archive bytes and
// atomically replaces path with the result.
func replaceWholeFileSigned(path string, zipData []byte, identity *SigningIdentity) error {
	tmp, err := os.CreateTemp(filepath.Dir(path), ".jarsign-*")
	if err != nil {
		return fmt.Errorf("failed to create temporary file: %w", err)
	}
	if err := signWholeFile(zipData, tmp, identity); err != nil {
		tmp.Close()
		os.Remove(tmp.Name())
		return err
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to close temporary file: %w", err)
	}
	if err := os.Rename(tmp.Name(), path); err != nil {
		os.Remove(tmp.Name())
		return fmt.Errorf("failed to replace %s: %w", path, err)
	}
	return nil
}
