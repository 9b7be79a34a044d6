package matcher

import (
	"errors"
	"fmt"
	"slices"
	"strings"

	"github.com/sensinfor/sensinfor/internal/hexutil"
	"github.com/sensinfor/sensinfor/pkg/regexcache"
)

// Validator is the declarative predicate bag a probe response must
// satisfy. Every clause is optional; the zero Validator accepts any
// response with status 200.
type Validator struct {
	StatusCodes     []int             `yaml:"status_code,omitempty" json:"status_code,omitempty"`
	ContentTypes    []string          `yaml:"content_type,omitempty" json:"content_type,omitempty"`
	Size            *SizeRange        `yaml:"content_size,omitempty" json:"content_size,omitempty"`
	ContentMatch    []string          `yaml:"content_match,omitempty" json:"content_match,omitempty"`
	ContentNotMatch []string          `yaml:"content_not_match,omitempty" json:"content_not_match,omitempty"`
	RequireAll      *bool             `yaml:"require_all,omitempty" json:"require_all,omitempty"`
	Headers         map[string]string `yaml:"headers,omitempty" json:"headers,omitempty"`
	MagicBytes      *MagicBytes       `yaml:"magic_bytes,omitempty" json:"magic_bytes,omitempty"`
	RedirectNotTo   []string          `yaml:"redirect_not_to,omitempty" json:"redirect_not_to,omitempty"`

	// MaxResponseTime is in milliseconds; 0 disables the check.
	MaxResponseTime int64 `yaml:"max_response_time,omitempty" json:"max_response_time,omitempty"`

	NotLike404   *Soft404Check `yaml:"not_like_404,omitempty" json:"not_like_404,omitempty"`
	Structure    *Structure    `yaml:"structure,omitempty" json:"structure,omitempty"`
	ResponseHash *ResponseHash `yaml:"response_hash,omitempty" json:"response_hash,omitempty"`
	FileFeature  *FileFeature  `yaml:"sensitive_file_feature,omitempty" json:"sensitive_file_feature,omitempty"`

	// TextEncoding is one of utf-8, ascii, binary or auto (no check).
	TextEncoding string `yaml:"text_encoding,omitempty" json:"text_encoding,omitempty"`

	// PreflightWithHead asks the detector to issue a HEAD first and skip
	// the GET when the status already fails.
	PreflightWithHead bool `yaml:"preflight_with_head,omitempty" json:"preflight_with_head,omitempty"`
}

// SizeRange bounds the response size. Max 0 means unbounded.
type SizeRange struct {
	Min int64 `yaml:"min,omitempty" json:"min,omitempty"`
	Max int64 `yaml:"max,omitempty" json:"max,omitempty"`
}

// MagicBytes is a byte signature expected at Offset.
type MagicBytes struct {
	Pattern  string `yaml:"pattern" json:"pattern"`
	Offset   int    `yaml:"offset,omitempty" json:"offset,omitempty"`
	Encoding string `yaml:"encoding,omitempty" json:"encoding,omitempty"` // hex (default), base64, text
}

// Soft404Check rejects bodies too similar to the origin's not-found page.
// Threshold is a 0-100 percentage; 0 uses the detector's default.
type Soft404Check struct {
	Enabled   bool    `yaml:"enabled" json:"enabled"`
	Threshold float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
}

// Structure requires a parseable document carrying the listed top-level
// keys. OptionalKeys are informational.
type Structure struct {
	Type         string   `yaml:"type" json:"type"` // json, xml, yaml
	RequiredKeys []string `yaml:"required_keys,omitempty" json:"required_keys,omitempty"`
	OptionalKeys []string `yaml:"optional_keys,omitempty" json:"optional_keys,omitempty"`
}

// ResponseHash pins the body digest. Digests compare as lowercase hex.
type ResponseHash struct {
	Algorithm   string   `yaml:"algorithm" json:"algorithm"` // md5, sha256, xxhash, mmh3
	Expected    string   `yaml:"expected,omitempty" json:"expected,omitempty"`
	NotExpected []string `yaml:"not_expected,omitempty" json:"not_expected,omitempty"`
}

// FileFeature references an entry of the built-in sensitive file
// library, or "custom" with its own patterns.
type FileFeature struct {
	Type           string   `yaml:"type" json:"type"`
	CustomPatterns []string `yaml:"custom_patterns,omitempty" json:"custom_patterns,omitempty"`
}

// AllRequired reports the content-match policy; all patterns must match
// unless RequireAll is explicitly false.
func (v *Validator) AllRequired() bool {
	return v.RequireAll == nil || *v.RequireAll
}

// AllowsStatus reports whether code passes the status clause.
func (v *Validator) AllowsStatus(code int) bool {
	if len(v.StatusCodes) == 0 {
		return code == 200
	}
	return slices.Contains(v.StatusCodes, code)
}

// Check compiles every pattern the validator carries and returns one
// error per problem. Validate tolerates these at run time; catalog
// loaders call Check to report them up front.
func (v *Validator) Check() error {
	var errs []error
	patterns := make([]string, 0, len(v.ContentMatch)+len(v.ContentNotMatch)+len(v.RedirectNotTo))
	patterns = append(patterns, v.ContentMatch...)
	patterns = append(patterns, v.ContentNotMatch...)
	patterns = append(patterns, v.RedirectNotTo...)
	if v.FileFeature != nil {
		patterns = append(patterns, v.FileFeature.CustomPatterns...)
	}
	for _, err := range regexcache.Precompile(patterns...) {
		errs = append(errs, fmt.Errorf("%w: %v", ErrBadPattern, err))
	}

	if v.MagicBytes != nil {
		if _, err := v.MagicBytes.Signature(); err != nil {
			errs = append(errs, err)
		}
	}
	if v.FileFeature != nil && v.FileFeature.Type != "custom" {
		if _, ok := LookupFeature(v.FileFeature.Type); !ok {
			errs = append(errs, fmt.Errorf("%w: %q", ErrUnknownFeature, v.FileFeature.Type))
		}
	}
	if v.ResponseHash != nil {
		if _, err := Digest(v.ResponseHash.Algorithm, nil); err != nil {
			errs = append(errs, err)
		}
	}
	if v.Structure != nil {
		switch strings.ToLower(v.Structure.Type) {
		case "json", "xml", "yaml", "yml":
		default:
			errs = append(errs, fmt.Errorf("matcher: unknown structure type %q", v.Structure.Type))
		}
	}
	switch strings.ToLower(v.TextEncoding) {
	case "", "auto", "utf-8", "utf8", "ascii", "binary":
	default:
		errs = append(errs, fmt.Errorf("matcher: unknown text encoding %q", v.TextEncoding))
	}
	return errors.Join(errs...)
}

// Signature decodes the pattern per Encoding.
func (m *MagicBytes) Signature() ([]byte, error) {
	var (
		sig []byte
		err error
	)
	switch strings.ToLower(m.Encoding) {
	case "", "hex":
		sig, err = hexutil.Decode(m.Pattern)
	case "base64":
		sig, err = decodeBase64(m.Pattern)
	case "text":
		sig = []byte(m.Pattern)
	default:
		return nil, fmt.Errorf("%w: magic bytes encoding %q", ErrBadPattern, m.Encoding)
	}
	if err != nil {
		return nil, fmt.Errorf("%w: magic bytes %q: %v", ErrBadPattern, m.Pattern, err)
	}
	if len(sig) == 0 {
		return nil, fmt.Errorf("%w: empty magic bytes", ErrBadPattern)
	}
	if m.Offset < 0 {
		return nil, fmt.Errorf("%w: negative magic bytes offset", ErrBadPattern)
	}
	return sig, nil
}
