// Package main provides the jarsigner CLI tool for signing JAR, APK, and
// OTA update archives.
//
// For the library API, see the jarsign subpackage:
//
//	import "github.com/paulvi/jarsigner/pkg/jarsign"
//
// # Installation
//
// Install the CLI:
//
//	go install github.com/paulvi/jarsigner@latest
package main
