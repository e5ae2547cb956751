package jarsign

import (
	"bufio"
	"bytes"
	"fmt"
	"io"
	"strings"
)

// Attribute is a single manifest attribute (one "Name: Value" line).
type Attribute struct {
	Name  string
	Value string
}

// Attributes is an ordered attribute set. Order is preserved so that
// serialization is byte-reproducible across runs.
type Attributes []Attribute

// Get returns the value of the named attribute, if present.
func (a Attributes) Get(name string) (string, bool) {
	for _, attr := range a {
		if attr.Name == name {
			return attr.Value, true
		}
	}
	return "", false
}

// Set replaces the named attribute in place, or appends it if absent.
func (a *Attributes) Set(name, value string) {
	for i, attr := range *a {
		if attr.Name == name {
			(*a)[i].Value = value
			return
		}
	}
	*a = append(*a, Attribute{Name: name, Value: value})
}

// Clone returns an independent copy of the attribute set.
func (a Attributes) Clone() Attributes {
	if a == nil {
		return nil
	}
	out := make(Attributes, len(a))
	copy(out, a)
	return out
}

// Manifest is a JAR-style manifest: a main attribute section plus one named
// section per archive entry. Entry sections keep their insertion order.
type Manifest struct {
	Main    Attributes
	entries map[string]Attributes
	names   []string
}

// NewManifest returns an empty manifest.
func NewManifest() *Manifest {
	return &Manifest{entries: make(map[string]Attributes)}
}

// Entry returns the attribute set recorded for the named entry.
func (m *Manifest) Entry(name string) (Attributes, bool) {
	attrs, ok := m.entries[name]
	return attrs, ok
}

// SetEntry records the attribute set for the named entry, appending the name
// to the section order if it is new.
func (m *Manifest) SetEntry(name string, attrs Attributes) {
	if _, ok := m.entries[name]; !ok {
		m.names = append(m.names, name)
	}
	m.entries[name] = attrs
}

// Names returns the entry names in section order.
func (m *Manifest) Names() []string {
	return append([]string(nil), m.names...)
}

// WriteTo serializes the manifest in the conventional JAR text framing:
// "Name: Value" lines with CRLF endings, each section terminated by a blank
// line, and lines longer than 72 bytes wrapped onto space-prefixed
// continuation lines.
func (m *Manifest) WriteTo(w io.Writer) (int64, error) {
	var buf bytes.Buffer
	writeAttributes(&buf, m.Main)
	buf.WriteString("\r\n")
	for _, name := range m.names {
		writeAttributeLine(&buf, "Name", name)
		writeAttributes(&buf, m.entries[name])
		buf.WriteString("\r\n")
	}
	n, err := w.Write(buf.Bytes())
	return int64(n), err
}

// Bytes returns the serialized manifest.
func (m *Manifest) Bytes() []byte {
	var buf bytes.Buffer
	m.WriteTo(&buf)
	return buf.Bytes()
}

func writeAttributes(buf *bytes.Buffer, attrs Attributes) {
	for _, attr := range attrs {
		writeAttributeLine(buf, attr.Name, attr.Value)
	}
}

func writeAttributeLine(buf *bytes.Buffer, name, value string) {
	buf.Write(make72Safe([]byte(name + ": " + value + "\r\n")))
}

// make72Safe wraps a CRLF-terminated attribute line to the 72-byte limit by
// inserting "\r\n " breaks, reproducing the historical manifest writer so
// digests over serialized manifests stay stable.
func make72Safe(line []byte) []byte {
	if len(line) <= 72 {
		return line
	}
	out := append([]byte(nil), line...)
	for index := 70; index < len(out)-2; index += 72 {
		tail := append([]byte("\r\n "), out[index:]...)
		out = append(out[:index], tail...)
	}
	return out
}

// ParseManifest parses manifest text. Continuation lines (leading space) are
// folded into the preceding attribute; the first section becomes the main
// attributes and every later section must carry a Name attribute.
func ParseManifest(data []byte) (*Manifest, error) {
	m := NewManifest()
	var section Attributes
	mainDone := false

	flush := func() error {
		if len(section) == 0 {
			return nil
		}
		if !mainDone {
			m.Main = section
			mainDone = true
		} else {
			name, ok := section.Get("Name")
			if !ok {
				return fmt.Errorf("manifest section missing Name attribute")
			}
			attrs := make(Attributes, 0, len(section)-1)
			for _, attr := range section {
				if attr.Name != "Name" {
					attrs = append(attrs, attr)
				}
			}
			m.SetEntry(name, attrs)
		}
		section = nil
		return nil
	}

	sc := bufio.NewScanner(bytes.NewReader(data))
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		switch {
		case line == "":
			if err := flush(); err != nil {
				return nil, err
			}
		case strings.HasPrefix(line, " "):
			if len(section) == 0 {
				return nil, fmt.Errorf("manifest continuation line without preceding attribute")
			}
			section[len(section)-1].Value += line[1:]
		default:
			name, value, ok := strings.Cut(line, ": ")
			if !ok {
				return nil, fmt.Errorf("malformed manifest line %q", line)
			}
			section = append(section, Attribute{Name: name, Value: value})
		}
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}
	if err := flush(); err != nil {
		return nil, err
	}
	return m, nil
}
