// Package jsonutil wraps github.com/go-json-experiment/json behind the
// encoding/json shaped API the rest of sensinfor uses, plus two token-level
// helpers for inspecting untrusted response bodies without building a full
// document tree.
//
// Usage:
//
//	keys, err := jsonutil.TopLevelKeys(body)
//
//	err = jsonutil.WalkStrings(body, func(path, key, value string) {
//	    // every string leaf, e.g. path "db.users.0.password"
//	})
package jsonutil

import (
	"bytes"
	"errors"
	"fmt"
	"io"
	"strconv"

	"github.com/go-json-experiment/json"
	"github.com/go-json-experiment/json/jsontext"
)

// ErrNotObject is returned by TopLevelKeys when the document root is not
// a JSON object.
var ErrNotObject = errors.New("jsonutil: top-level value is not an object")

// Unmarshal parses the JSON-encoded data and stores the result in v.
func Unmarshal(data []byte, v any) error {
	return json.Unmarshal(data, v)
}

// Marshal returns the JSON encoding of v.
func Marshal(v any) ([]byte, error) {
	return json.Marshal(v)
}

// MarshalIndent returns the indented JSON encoding of v.
func MarshalIndent(v any, prefix, indent string) ([]byte, error) {
	return json.Marshal(v, jsontext.WithIndent(indent))
}

// NewDecoder returns a new decoder that reads from r.
func NewDecoder(r io.Reader) *jsontext.Decoder {
	return jsontext.NewDecoder(r)
}

// NewEncoder returns a new encoder that writes to w.
func NewEncoder(w io.Writer) *jsontext.Encoder {
	return jsontext.NewEncoder(w)
}

// Valid reports whether data is a valid JSON encoding.
func Valid(data []byte) bool {
	return jsontext.Value(data).IsValid()
}

// Encoder provides a streaming JSON encoder compatible with encoding/json.Encoder.
type Encoder struct {
	w      io.Writer
	indent string
}

// NewStreamEncoder creates an encoder that writes to w.
// This provides encoding/json.Encoder-like interface.
func NewStreamEncoder(w io.Writer) *Encoder {
	return &Encoder{w: w}
}

// Encode writes the JSON encoding of v to the stream, followed by a newline.
// This matches encoding/json.Encoder.Encode behavior.
func (e *Encoder) Encode(v any) error {
	var err error
	if e.indent != "" {
		err = json.MarshalWrite(e.w, v, jsontext.WithIndent(e.indent))
	} else {
		err = json.MarshalWrite(e.w, v)
	}
	if err != nil {
		return err
	}
	// Add trailing newline to match encoding/json behavior
	_, err = e.w.Write([]byte{'\n'})
	return err
}

// SetIndent instructs the encoder to format each subsequent encoded value
// with the given indentation.
func (e *Encoder) SetIndent(prefix, indent string) {
	e.indent = indent
}

// Decoder provides a streaming JSON decoder compatible with encoding/json.Decoder.
type Decoder struct {
	r io.Reader
}

// NewStreamDecoder creates a decoder that reads from r.
// This provides encoding/json.Decoder-like interface.
func NewStreamDecoder(r io.Reader) *Decoder {
	return &Decoder{r: r}
}

// Decode reads the next JSON-encoded value from the stream and stores it in v.
func (d *Decoder) Decode(v any) error {
	return json.UnmarshalRead(d.r, v)
}

// TopLevelKeys returns the member names of the root object in document
// order. Member values are skipped without being decoded.
func TopLevelKeys(data []byte) ([]string, error) {
	dec := jsontext.NewDecoder(bytes.NewReader(data))
	tok, err := dec.ReadToken()
	if err != nil {
		return nil, err
	}
	if tok.Kind() != '{' {
		return nil, ErrNotObject
	}

	var keys []string
	for dec.PeekKind() != '}' {
		name, err := dec.ReadToken()
		if err != nil {
			return nil, err
		}
		keys = append(keys, name.String())
		if err := dec.SkipValue(); err != nil {
			return nil, err
		}
	}
	if _, err := dec.ReadToken(); err != nil {
		return nil, err
	}
	if err := expectEOF(dec); err != nil {
		return nil, err
	}
	return keys, nil
}

// WalkStrings calls fn for every string value in the document. path joins
// object member names and array indexes with dots; key is the nearest
// member name (empty for strings directly inside a root array).
func WalkStrings(data []byte, fn func(path, key, value string)) error {
	dec := jsontext.NewDecoder(bytes.NewReader(data))
	if err := walkValue(dec, "", "", fn); err != nil {
		return err
	}
	return expectEOF(dec)
}

func walkValue(dec *jsontext.Decoder, path, key string, fn func(path, key, value string)) error {
	tok, err := dec.ReadToken()
	if err != nil {
		return err
	}
	switch tok.Kind() {
	case '"':
		fn(path, key, tok.String())
	case '{':
		for dec.PeekKind() != '}' {
			name, err := dec.ReadToken()
			if err != nil {
				return err
			}
			member := name.String()
			if err := walkValue(dec, joinPath(path, member), member, fn); err != nil {
				return err
			}
		}
		if _, err := dec.ReadToken(); err != nil {
			return err
		}
	case '[':
		for i := 0; dec.PeekKind() != ']'; i++ {
			if err := walkValue(dec, joinPath(path, strconv.Itoa(i)), key, fn); err != nil {
				return err
			}
		}
		if _, err := dec.ReadToken(); err != nil {
			return err
		}
	}
	return nil
}

func joinPath(path, elem string) string {
	if path == "" {
		return elem
	}
	return path + "." + elem
}

func expectEOF(dec *jsontext.Decoder) error {
	if _, err := dec.ReadToken(); err != io.EOF {
		if err == nil {
			return fmt.Errorf("jsonutil: unexpected data after top-level value")
		}
		return err
	}
	return nil
}
