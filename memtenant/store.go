// Package memtenant is an in-memory identity tenant backed by go-memdb. It
// implements stormpath.TenantAPI with the server side rules the migrators
// depend on: generated hrefs, natural key uniqueness, default policies and
// templates on new directories, merge semantics for custom data.
package memtenant

import (
	"encoding/json"
	"net/http"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/go-memdb"
	"github.com/pkg/errors"

	stormpath "github.com/stormpath/stormpath-migrate"
)

const DefaultBaseURL = "https://memtenant.local/v1"

const (
	directoriesTable   = "directories"
	groupsTable        = "groups"
	accountsTable      = "accounts"
	membershipsTable   = "memberships"
	organizationsTable = "organizations"
	applicationsTable  = "applications"
	mappingsTable      = "mappings"
	policiesTable      = "policies"
	templatesTable     = "templates"
	customDataTable    = "customData"
)

const (
	idIndex     = "id"
	seqIndex    = "seq"
	parentIndex = "parent"
	nameIndex   = "name"
	altIndex    = "alt"
)

// row is the stored form of every resource. Obj holds a private copy of the
// resource and is never mutated once inserted; updates insert a new row.
type row struct {
	Href    string
	Parent  string
	NameKey string
	AltKey  string
	Seq     uint64

	Secret       string
	SecretFormat string

	Obj interface{}
}

// scoped builds the key of a natural key index. Natural keys are unique
// within their parent only.
func scoped(parent, v string) string {
	if v == "" {
		return ""
	}
	return parent + "\x00" + v
}

func tableSchema(name string) *memdb.TableSchema {
	return &memdb.TableSchema{
		Name: name,
		Indexes: map[string]*memdb.IndexSchema{
			idIndex: {
				Name:    idIndex,
				Unique:  true,
				Indexer: &memdb.StringFieldIndex{Field: "Href"},
			},
			seqIndex: {
				Name:    seqIndex,
				Unique:  true,
				Indexer: &memdb.UintFieldIndex{Field: "Seq"},
			},
			parentIndex: {
				Name:         parentIndex,
				AllowMissing: true,
				Indexer:      &memdb.StringFieldIndex{Field: "Parent"},
			},
			nameIndex: {
				Name:         nameIndex,
				AllowMissing: true,
				Indexer:      &memdb.StringFieldIndex{Field: "NameKey"},
			},
			altIndex: {
				Name:         altIndex,
				AllowMissing: true,
				Indexer:      &memdb.StringFieldIndex{Field: "AltKey"},
			},
		},
	}
}

func schema() *memdb.DBSchema {
	s := &memdb.DBSchema{Tables: map[string]*memdb.TableSchema{}}
	for _, name := range []string{
		directoriesTable, groupsTable, accountsTable, membershipsTable,
		organizationsTable, applicationsTable, mappingsTable,
		policiesTable, templatesTable, customDataTable,
	} {
		s.Tables[name] = tableSchema(name)
	}
	return s
}

type Option func(s *Store) error

func WithBaseURL(baseURL string) Option {
	return func(s *Store) error {
		if baseURL == "" {
			return errors.New("base URL must not be empty")
		}
		s.baseURL = strings.TrimSuffix(baseURL, "/")
		return nil
	}
}

// WithClock replaces the clock used for createdAt and modifiedAt.
func WithClock(now func() time.Time) Option {
	return func(s *Store) error {
		s.now = now
		return nil
	}
}

type Store struct {
	db         *memdb.MemDB
	baseURL    string
	tenantHref string
	now        func() time.Time

	mu     sync.Mutex
	seq    uint64
	faults map[string][]error
	calls  map[string]int
	emails int
}

var _ stormpath.TenantAPI = (*Store)(nil)

func New(opts ...Option) (*Store, error) {
	db, err := memdb.NewMemDB(schema())
	if err != nil {
		return nil, errors.Wrap(err, "creating in-memory tenant")
	}
	s := &Store{
		db:      db,
		baseURL: DefaultBaseURL,
		now:     time.Now,
		faults:  map[string][]error{},
		calls:   map[string]int{},
	}
	for _, opt := range opts {
		if err := opt(s); err != nil {
			return nil, err
		}
	}
	s.tenantHref = s.href("tenants")
	return s, nil
}

func (s *Store) String() string {
	return s.baseURL
}

// TenantHref is the href of the tenant owning every resource in the store.
func (s *Store) TenantHref() string {
	return s.tenantHref
}

// FailNext makes the next call of operation op, named after the
// stormpath.TenantAPI method, fail with err. Calls queue up.
func (s *Store) FailNext(op string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.faults[op] = append(s.faults[op], err)
}

// Calls returns how often operation op was invoked, failed calls included.
func (s *Store) Calls(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[op]
}

// SentEmails counts verification emails the tenant would have sent.
func (s *Store) SentEmails() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.emails
}

func (s *Store) enter(op string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls[op]++
	if queued := s.faults[op]; len(queued) > 0 {
		s.faults[op] = queued[1:]
		return queued[0]
	}
	return nil
}

func (s *Store) nextSeq() uint64 {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.seq++
	return s.seq
}

func (s *Store) href(collection string) string {
	return s.baseURL + "/" + collection + "/" + uuid.NewString()
}

func (s *Store) timestamp() *time.Time {
	t := s.now().UTC()
	return &t
}

func (s *Store) read() *memdb.Txn {
	return s.db.Txn(false)
}

// write runs fn in a write transaction, committing only when fn succeeds.
func (s *Store) write(fn func(txn *memdb.Txn) error) error {
	txn := s.db.Txn(true)
	if err := fn(txn); err != nil {
		txn.Abort()
		return err
	}
	txn.Commit()
	return nil
}

func (s *Store) insert(txn *memdb.Txn, table string, r *row) error {
	if r.Seq == 0 {
		r.Seq = s.nextSeq()
	}
	if err := txn.Insert(table, r); err != nil {
		return errors.Wrapf(err, "inserting into %s", table)
	}
	return nil
}

// replace stores obj in place of the row old, keeping its identity.
func (s *Store) replace(txn *memdb.Txn, table string, old *row, obj interface{}, nameKey, altKey string) error {
	r := *old
	r.Obj = obj
	r.NameKey = nameKey
	r.AltKey = altKey
	return s.insert(txn, table, &r)
}

func first(txn *memdb.Txn, table, index, arg string) (*row, error) {
	if arg == "" {
		return nil, nil
	}
	raw, err := txn.First(table, index, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", table)
	}
	if raw == nil {
		return nil, nil
	}
	return raw.(*row), nil
}

// rows returns the rows matching arg in insertion order.
func rows(txn *memdb.Txn, table, index, arg string) ([]*row, error) {
	if arg == "" {
		return nil, nil
	}
	it, err := txn.Get(table, index, arg)
	if err != nil {
		return nil, errors.Wrapf(err, "reading %s", table)
	}
	var out []*row
	for raw := it.Next(); raw != nil; raw = it.Next() {
		out = append(out, raw.(*row))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Seq < out[j].Seq })
	return out, nil
}

func getObj[T any](txn *memdb.Txn, table, href string) (*T, error) {
	r, err := first(txn, table, idIndex, href)
	if err != nil || r == nil {
		return nil, err
	}
	return clone(r.Obj.(*T)), nil
}

func listObj[T any](txn *memdb.Txn, table, index, arg string) ([]T, error) {
	rs, err := rows(txn, table, index, arg)
	if err != nil {
		return nil, err
	}
	out := make([]T, 0, len(rs))
	for _, r := range rs {
		out = append(out, *clone(r.Obj.(*T)))
	}
	return out, nil
}

// clone deep copies a resource through its JSON form, exactly what a
// client would see on the wire.
func clone[T any](v *T) *T {
	b, err := json.Marshal(v)
	if err != nil {
		panic(errors.Wrap(err, "copying resource"))
	}
	var out T
	if err := json.Unmarshal(b, &out); err != nil {
		panic(errors.Wrap(err, "copying resource"))
	}
	return &out
}

func apiError(status, code int, format string, args ...interface{}) error {
	msg := format
	if len(args) > 0 {
		msg = errors.Errorf(format, args...).Error()
	}
	return &stormpath.Error{
		Status:           status,
		Code:             code,
		Message:          msg,
		DeveloperMessage: msg,
	}
}

func notFound(href string) error {
	return apiError(http.StatusNotFound, 404, "The requested resource %s does not exist.", href)
}

func conflict(format string, args ...interface{}) error {
	return apiError(http.StatusConflict, 2001, format, args...)
}

func invalid(format string, args ...interface{}) error {
	return apiError(http.StatusBadRequest, 2000, format, args...)
}
