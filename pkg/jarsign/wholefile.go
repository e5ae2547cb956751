package jarsign

import (
	"bytes"
	"encoding/binary"
	"fmt"
	"io"
)

// eocdLen is the size of an end-of-central-directory record with an empty
// archive comment.
const eocdLen = 22

var eocdMarker = []byte{0x50, 0x4b, 0x05, 0x06}

// buildTrailer assembles the archive-comment trailer: the readable message,
// a NUL terminator, the signature block, and six control bytes (the
// little-endian offset from end-of-file to the signature start, the 0xFFFF
// sentinel, and the little-endian total trailer size).
//
// The sentinel occupies bytes that in a commentless archive hold the high
// half of the central-directory offset; reaching 0xFFFF there would take a
// ~4GB archive, so the sentinel reliably distinguishes a whole-file-signed
// archive from a legacy unsigned one.
func buildTrailer(message, sigBlock []byte) ([]byte, error) {
	trailer := make([]byte, 0, len(message)+1+len(sigBlock)+6)
	trailer = append(trailer, message...)
	trailer = append(trailer, 0)
	trailer = append(trailer, sigBlock...)

	totalSize := len(trailer) + 6
	if totalSize > 0xffff {
		return nil, fmt.Errorf("signature is too big for ZIP file comment (%d bytes)", totalSize)
	}

	// Offset from the end of the file back to the start of the signature.
	signatureStart := totalSize - len(message) - 1
	trailer = append(trailer, byte(signatureStart), byte(signatureStart>>8))
	trailer = append(trailer, 0xff, 0xff)
	trailer = append(trailer, byte(totalSize), byte(totalSize>>8))

	// The device verifier treats the last EOCD marker in the file as the
	// real one; the marker appearing inside the comment would make it find
	// a spurious record instead.
	if idx := bytes.Index(trailer, eocdMarker); idx >= 0 {
		return nil, fmt.Errorf("found spurious EOCD marker at trailer offset %d", idx)
	}
	return trailer, nil
}

// signWholeFile signs the fully assembled archive as a single byte stream
// and writes it to out with the signature embedded in the archive comment.
// The ZIP structure of the output is byte-identical to the input except for
// the appended comment, so it verifies by raw byte inspection from the end
// of the file.
func signWholeFile(zipData []byte, out io.Writer, identity *SigningIdentity) error {
	// A commentless archive ends in a bare 22-byte EOCD record; anything
	// else means the input already carries an incompatible comment.
	if len(zipData) < eocdLen || !bytes.Equal(zipData[len(zipData)-eocdLen:len(zipData)-eocdLen+4], eocdMarker) {
		return fmt.Errorf("zip data already has an archive comment")
	}

	// Sign everything up to, but not including, the comment-length field,
	// which is about to be rewritten.
	sigBlock, err := signatureBlock(zipData[:len(zipData)-2], identity)
	if err != nil {
		return err
	}

	message := []byte("Created-By " + createdBy)
	trailer, err := buildTrailer(message, sigBlock)
	if err != nil {
		return err
	}

	if _, err := out.Write(zipData[:len(zipData)-2]); err != nil {
		return fmt.Errorf("failed to write archive: %w", err)
	}
	var commentLen [2]byte
	binary.LittleEndian.PutUint16(commentLen[:], uint16(len(trailer)))
	if _, err := out.Write(commentLen[:]); err != nil {
		return fmt.Errorf("failed to write comment length: %w", err)
	}
	if _, err := out.Write(trailer); err != nil {
		return fmt.Errorf("failed to write signature trailer: %w", err)
	}
	return nil
}
