package main

import (
	"fmt"
	"os"

	"github.com/docopt/docopt-go"
	"github.com/paulvi/jarsigner/pkg/jarsign"
)

const version = "1.0.0"

const usage = `jarsigner - JAR/APK/OTA Package Signing Tool

A command-line tool for signing ZIP-based archives (JARs, APKs, OTA update
packages) with the legacy SHA-1/RSA scheme verifiable by minimal on-device
verifiers.

Usage:
  jarsigner sign --input=<path> [--output=<path>] [--cert=<path> --key=<path>] [--p12=<path>] [--password=<password>] [--name=<signer>] [--otacert=<path>]
  jarsigner -h | --help
  jarsigner --version

Commands:
  sign      Sign an archive with the given identity

Options:
  --input=<path>        Path to the unsigned input archive
  --output=<path>       Path for the signed output archive. Omitting this, or
                        setting it equal to the input, signs the whole file
                        in place with the signature embedded in the archive
                        comment (OTA update style)
  --cert=<path>         Path to the signing certificate, PEM or DER
                        (or JARSIGN_CERT env var)
  --key=<path>          Path to the private key, PEM or pk8
                        (or JARSIGN_KEY env var)
  --p12=<path>          Path to a PKCS#12 bundle holding certificate and key
                        (or JARSIGN_P12 env var)
  --password=<password> Password for the PKCS#12 bundle
                        (or JARSIGN_PASSWORD env var)
  --name=<signer>       Signer name used for the META-INF/<NAME>.SF and
                        META-INF/<NAME>.RSA artifact paths [default: CERT]
  --otacert=<path>      Certificate file to embed at
                        META-INF/com/android/otacert
  -h --help             Show this help message
  --version             Show version

Environment Variables:
  JARSIGN_CERT          Path to certificate file (overridden by --cert)
  JARSIGN_KEY           Path to private key file (overridden by --key)
  JARSIGN_P12           Path to PKCS#12 bundle (overridden by --p12)
  JARSIGN_PASSWORD      PKCS#12 password (overridden by --password)

Examples:
  # Sign an APK to a new file
  jarsigner sign --input=app.apk --output=app-signed.apk --cert=cert.pem --key=key.pk8

  # Sign with a PKCS#12 bundle
  jarsigner sign --input=app.jar --output=app-signed.jar --p12=identity.p12 --password=secret

  # Whole-file sign an OTA package in place
  jarsigner sign --input=update.zip --cert=cert.pem --key=key.pk8

  # Embed the OTA verification certificate while signing
  jarsigner sign --input=update.zip --cert=cert.pem --key=key.pk8 --otacert=cert.der
`

func main() {
	opts, err := docopt.ParseArgs(usage, os.Args[1:], version)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error parsing arguments: %v\n", err)
		os.Exit(1)
	}

	if sign, _ := opts.Bool("sign"); sign {
		if err := runSign(opts); err != nil {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
			os.Exit(1)
		}
	}
}

func runSign(opts docopt.Opts) error {
	inputPath, _ := opts.String("--input")
	outputPath, _ := opts.String("--output")
	certPath, _ := opts.String("--cert")
	keyPath, _ := opts.String("--key")
	p12Path, _ := opts.String("--p12")
	password, _ := opts.String("--password")
	signerName, _ := opts.String("--name")
	otaCertPath, _ := opts.String("--otacert")

	// Get values from environment if not provided via flags
	if certPath == "" {
		certPath = os.Getenv("JARSIGN_CERT")
	}
	if keyPath == "" {
		keyPath = os.Getenv("JARSIGN_KEY")
	}
	if p12Path == "" {
		p12Path = os.Getenv("JARSIGN_P12")
	}
	if password == "" {
		password = os.Getenv("JARSIGN_PASSWORD")
	}

	var identity *jarsign.SigningIdentity
	switch {
	case p12Path != "":
		p12Data, err := os.ReadFile(p12Path)
		if err != nil {
			return fmt.Errorf("failed to read P12 file: %w", err)
		}
		identity, err = jarsign.LoadSigningIdentity(p12Data, password)
		if err != nil {
			return err
		}
	case certPath != "" && keyPath != "":
		var err error
		identity, err = jarsign.LoadIdentityFiles(certPath, keyPath)
		if err != nil {
			return err
		}
	default:
		return fmt.Errorf("either --p12 or both --cert and --key are required (or the JARSIGN_* environment variables)")
	}

	fmt.Printf("Signing: %s\n", inputPath)
	if outputPath == "" || outputPath == inputPath {
		fmt.Printf("Mode: Whole-file (in-place, signature in archive comment)\n")
	} else {
		fmt.Printf("Output: %s\n", outputPath)
	}
	fmt.Printf("Certificate: %s\n", identity.Certificate.Subject)

	if err := jarsign.Sign(jarsign.Options{
		Input:      inputPath,
		Output:     outputPath,
		Identity:   identity,
		SignerName: signerName,
		OTACert:    otaCertPath,
	}); err != nil {
		return err
	}

	fmt.Println("Signing completed successfully")
	return nil
}
