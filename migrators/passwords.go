package migrators

import (
	"bufio"
	"encoding/json"
	"os"
	"strings"

	"github.com/pkg/errors"
	"golang.org/x/crypto/bcrypt"
)

// PasswordSource supplies the exported password hash of a source account.
type PasswordSource interface {
	// Lookup returns the MCF hash for the account href. A missing entry is
	// not an error.
	Lookup(href string) (hash string, ok bool, err error)
}

// PasswordFile reads a password export: one JSON object per line, each
// {"href": <account href>, "password": <MCF hash>}. The file is scanned from
// the start for every lookup and never held open between lookups.
type PasswordFile struct {
	path string
}

type passwordRecord struct {
	Href     string `json:"href"`
	Password string `json:"password"`
}

// maxRecordSize bounds a single line of the export.
const maxRecordSize = 1 << 20

// OpenPasswordFile checks that path is a readable export in which every
// non-blank line is a JSON record with an href. A malformed line fails here,
// before any account is created without its hash.
func OpenPasswordFile(path string) (*PasswordFile, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, errors.Wrap(err, "opening password file")
	}
	if info.IsDir() {
		return nil, errors.Errorf("password file %s is a directory", path)
	}
	p := &PasswordFile{path: path}
	err = p.scan(func(line int, rec passwordRecord) (bool, error) {
		if rec.Href == "" {
			return false, errors.Errorf("%s:%d: record has no href", path, line)
		}
		return false, nil
	})
	if err != nil {
		return nil, err
	}
	return p, nil
}

func (p *PasswordFile) Path() string {
	return p.path
}

func (p *PasswordFile) Lookup(href string) (string, bool, error) {
	var hash string
	var found bool
	err := p.scan(func(line int, rec passwordRecord) (bool, error) {
		if rec.Href != href {
			return false, nil
		}
		if err := validateHash(rec.Password); err != nil {
			return true, errors.Wrapf(err, "%s:%d", p.path, line)
		}
		hash, found = rec.Password, true
		return true, nil
	})
	if err != nil {
		return "", false, err
	}
	return hash, found, nil
}

// scan calls fn with every record of the file until fn reports done or fails.
func (p *PasswordFile) scan(fn func(line int, rec passwordRecord) (done bool, err error)) error {
	f, err := os.Open(p.path)
	if err != nil {
		return errors.Wrap(err, "opening password file")
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), maxRecordSize)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec passwordRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return errors.Wrapf(err, "%s:%d", p.path, line)
		}
		done, err := fn(line, rec)
		if err != nil || done {
			return err
		}
	}
	return errors.Wrap(scanner.Err(), "reading password file")
}

// validateHash accepts modular crypt format strings. bcrypt hashes are
// parsed fully since they are by far the most common export.
func validateHash(hash string) error {
	if !strings.HasPrefix(hash, "$") {
		return errors.New("password is not in modular crypt format")
	}
	for _, prefix := range []string{"$2a$", "$2b$", "$2y$"} {
		if strings.HasPrefix(hash, prefix) {
			if _, err := bcrypt.Cost([]byte(hash)); err != nil {
				return errors.Wrap(err, "invalid bcrypt hash")
			}
			return nil
		}
	}
	return nil
}

// PasswordMap is an in-memory PasswordSource.
type PasswordMap map[string]string

func (m PasswordMap) Lookup(href string) (string, bool, error) {
	hash, ok := m[href]
	if ok {
		if err := validateHash(hash); err != nil {
			return "", false, err
		}
	}
	return hash, ok, nil
}
