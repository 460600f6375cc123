package migrators

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	stormpath "github.com/stormpath/stormpath-migrate"
	"github.com/stormpath/stormpath-migrate/memtenant"
)

var fastRetry = RetryPolicy{
	MaxAttempts: 5,
	MinDelay:    time.Millisecond,
	MaxDelay:    time.Millisecond,
}

type fixture struct {
	src     *memtenant.Store
	dst     *memtenant.Store
	env     *Env
	logs    *observer.ObservedLogs
	metrics *Metrics
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	src, err := memtenant.New(memtenant.WithBaseURL("https://source.test/v1"))
	require.NoError(t, err)
	dst, err := memtenant.New(memtenant.WithBaseURL("https://destination.test/v1"))
	require.NoError(t, err)

	core, logs := observer.New(zapcore.DebugLevel)
	metrics := NewMetrics()
	return &fixture{
		src: src,
		dst: dst,
		env: &Env{
			Source:      src,
			Destination: dst,
			Logger:      zap.New(core).Sugar(),
			Retry:       fastRetry,
			Metrics:     metrics,
		},
		logs:    logs,
		metrics: metrics,
	}
}

func (f *fixture) count(kind, outcome string) int {
	counts, err := f.metrics.Counts()
	if err != nil {
		return -1
	}
	return counts[kind][outcome]
}

func (f *fixture) warnings(msg string) int {
	return f.logs.FilterLevelExact(zapcore.WarnLevel).FilterMessage(msg).Len()
}

func transient() error {
	return &stormpath.Error{Status: 503, Message: "Service Unavailable"}
}

func permanent() error {
	return &stormpath.Error{Status: 400, Code: 2000, Message: "Bad request"}
}

func seedDirectory(t *testing.T, s *memtenant.Store, d stormpath.Directory) *stormpath.Directory {
	t.Helper()
	out, err := s.CreateDirectory(context.Background(), &d)
	require.NoError(t, err)
	return out
}

func seedGroup(t *testing.T, s *memtenant.Store, dir *stormpath.Directory, g stormpath.Group) *stormpath.Group {
	t.Helper()
	out, err := s.CreateGroup(context.Background(), dir.Href, &g)
	require.NoError(t, err)
	return out
}

func seedAccount(t *testing.T, s *memtenant.Store, dir *stormpath.Directory, a stormpath.Account) *stormpath.Account {
	t.Helper()
	if a.Password == "" && a.ProviderData == nil {
		a.Password = "Sup3rSecret!"
	}
	out, err := s.CreateAccount(context.Background(), dir.Href, &a, stormpath.CreateAccountOptions{})
	require.NoError(t, err)
	return out
}

func seedApplication(t *testing.T, s *memtenant.Store, a stormpath.Application) *stormpath.Application {
	t.Helper()
	out, err := s.CreateApplication(context.Background(), &a)
	require.NoError(t, err)
	return out
}

func seedOrganization(t *testing.T, s *memtenant.Store, o stormpath.Organization) *stormpath.Organization {
	t.Helper()
	out, err := s.CreateOrganization(context.Background(), &o)
	require.NoError(t, err)
	return out
}

func seedCustomData(t *testing.T, s *memtenant.Store, href string, data stormpath.CustomData) {
	t.Helper()
	_, err := s.UpdateCustomData(context.Background(), href, data)
	require.NoError(t, err)
}

func seedMembership(t *testing.T, s *memtenant.Store, account *stormpath.Account, group *stormpath.Group) {
	t.Helper()
	_, err := s.CreateGroupMembership(context.Background(), account.Href, group.Href)
	require.NoError(t, err)
}

func seedMapping(t *testing.T, s *memtenant.Store, m stormpath.AccountStoreMapping) *stormpath.AccountStoreMapping {
	t.Helper()
	out, err := s.CreateAccountStoreMapping(context.Background(), &m)
	require.NoError(t, err)
	return out
}

func storeRef(href string) stormpath.AccountStoreRef {
	return stormpath.AccountStoreRef{Kind: stormpath.StoreKindOf(href), Href: href}
}
