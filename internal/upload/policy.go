package upload

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/gabriel-vasile/mimetype"
)

// Verdict is the outcome of validating one file.
type Verdict struct {
	OK     bool
	Reason string
}

// Accept returns a passing verdict.
func Accept() Verdict { return Verdict{OK: true} }

// Reject returns a failing verdict with a user-facing reason.
func Reject(format string, args ...any) Verdict {
	return Verdict{Reason: fmt.Sprintf(format, args...)}
}

// Policy decides whether a file may join the composition context. pending
// holds the units already registered in that context.
type Policy interface {
	Validate(f File, pending []Unit) Verdict
}

// PolicyFunc adapts a function to Policy.
type PolicyFunc func(f File, pending []Unit) Verdict

// Validate calls p.
func (p PolicyFunc) Validate(f File, pending []Unit) Verdict { return p(f, pending) }

// DefaultPolicy enforces a size ceiling, an allow-list of content types and
// rejects a second copy of a file that is already attached.
type DefaultPolicy struct {
	MaxBytes int64
	// AllowedTypes holds exact types ("application/pdf") or wildcard
	// families ("image/*"). Empty allows everything.
	AllowedTypes []string
	// MaxFiles caps attachments per context. Zero disables the cap.
	MaxFiles int
}

// Validate implements Policy.
func (p DefaultPolicy) Validate(f File, pending []Unit) Verdict {
	if len(f.Data) == 0 {
		return Reject("%s is empty", f.Name)
	}
	if p.MaxBytes > 0 && f.Size() > p.MaxBytes {
		return Reject("%s exceeds the %d byte limit", f.Name, p.MaxBytes)
	}
	contentType := f.ContentType
	if contentType == "" {
		contentType = DetectContentType(f.Data)
	}
	if !p.allows(contentType) {
		return Reject("%s has unsupported type %s", f.Name, contentType)
	}
	live := 0
	for _, u := range pending {
		if u.Status == StatusFailed {
			continue
		}
		live++
		if u.Filename == f.Name && u.Size == f.Size() {
			return Reject("%s is already attached", f.Name)
		}
	}
	if p.MaxFiles > 0 && live >= p.MaxFiles {
		return Reject("at most %d attachments per message", p.MaxFiles)
	}
	return Accept()
}

func (p DefaultPolicy) allows(contentType string) bool {
	if len(p.AllowedTypes) == 0 {
		return true
	}
	for _, allowed := range p.AllowedTypes {
		if family, ok := strings.CutSuffix(allowed, "/*"); ok {
			if strings.HasPrefix(contentType, family+"/") {
				return true
			}
			continue
		}
		if strings.EqualFold(allowed, contentType) {
			return true
		}
	}
	return false
}

// DetectContentType sniffs data and returns its media type without parameters.
func DetectContentType(data []byte) string {
	mt := mimetype.Detect(data).String()
	if base, _, ok := strings.Cut(mt, ";"); ok {
		return strings.TrimSpace(base)
	}
	return mt
}

// LoadFile reads path from disk and sniffs its content type.
func LoadFile(path string) (File, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return File{}, fmt.Errorf("read attachment: %w", err)
	}
	return File{
		Name:        filepath.Base(path),
		ContentType: DetectContentType(data),
		Data:        data,
	}, nil
}
