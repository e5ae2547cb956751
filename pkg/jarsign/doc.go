// Package jarsign signs ZIP-based archives (JARs, APKs, OTA update
// packages) with the legacy SHA-1/RSA scheme understood by minimal
// on-device verifiers.
//
// This package implements the signing format natively in Go, so archives
// can be signed on any platform without a Java toolchain or keytool.
//
// # Basic Usage
//
// To sign an archive to a new file:
//
//	identity, err := jarsign.LoadIdentityFiles("cert.pem", "key.pk8")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	err = jarsign.Sign(jarsign.Options{
//	    Input:    "app.apk",
//	    Output:   "app-signed.apk",
//	    Identity: identity,
//	})
//
// Leaving Output empty (or equal to Input) selects whole-file mode: the
// entry-signed archive is additionally signed as a single byte stream, with
// the signature embedded in the trailing archive comment, and written back
// over the input. This is the format OTA update verifiers check by scanning
// raw bytes from the end of the file.
//
// # Features
//
//   - Entry signing: META-INF/MANIFEST.MF, <NAME>.SF and <NAME>.RSA with
//     deterministic, byte-reproducible output
//   - Whole-file signing: signature carried in the ZIP archive comment
//     without altering any entry
//   - OTA certificate embedding for device-side certificate stores
//   - PKCS#12, PEM, and pk8 signing identities
package jarsign
