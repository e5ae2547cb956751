package jarsign

import (
	"fmt"

	"go.mozilla.org/pkcs7"
)

// signatureBlock produces a detached PKCS#7 SignedData structure over the
// given content: SHA-1 digest, SHA1withRSA signature, signing certificate
// embedded, content excluded. The signature is direct (no authenticated
// attributes) so the signed digest is the digest of the content itself,
// which is what minimal on-device verifiers expect.
func signatureBlock(content []byte, identity *SigningIdentity) ([]byte, error) {
	signed, err := pkcs7.NewSignedData(content)
	if err != nil {
		return nil, fmt.Errorf("failed to create signed data: %w", err)
	}
	signed.SetDigestAlgorithm(pkcs7.OIDDigestAlgorithmSHA1)

	if err := signed.SignWithoutAttr(identity.Certificate, identity.PrivateKey, pkcs7.SignerInfoConfig{}); err != nil {
		return nil, fmt.Errorf("failed to sign content: %w", err)
	}
	signed.Detach()

	block, err := signed.Finish()
	if err != nil {
		return nil, fmt.Errorf("failed to encode signature block: %w", err)
	}
	return block, nil
}
