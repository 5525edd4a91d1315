package service

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
	"github.com/hakim/scanwatch/internal/parser"
	"github.com/hakim/scanwatch/internal/target"
)

type fakeScanner struct {
	mu      sync.Mutex
	outputs []string
	err     error
	calls   int
}

func (f *fakeScanner) Scan(_ context.Context, tgt string, opts models.Options) (string, string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls++
	if f.err != nil {
		return "", "", f.err
	}
	out := ""
	if len(f.outputs) > 0 {
		out = f.outputs[0]
		f.outputs = f.outputs[1:]
	}
	return out, "nmap " + tgt, nil
}

// memStore keeps scans in insertion order and stamps them from a step clock.
type memStore struct {
	mu    sync.Mutex
	scans []*models.StoredScan
	now   time.Time
	err   error
}

func (m *memStore) Save(_ context.Context, scan *models.StoredScan) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.now = m.now.Add(time.Minute)
	scan.Timestamp = m.now
	m.scans = append(m.scans, scan)
	return nil
}

func (m *memStore) Recent(_ context.Context, tgt string, limit int) ([]*models.StoredScan, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return nil, m.err
	}
	out := []*models.StoredScan{}
	for i := len(m.scans) - 1; i >= 0; i-- {
		if m.scans[i].Target == tgt {
			out = append(out, m.scans[i])
		}
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// countingParser records how many times Parse was called.
type countingParser struct {
	mu    sync.Mutex
	calls int
}

func (p *countingParser) Parse(raw string) *models.ScanRecord {
	p.mu.Lock()
	p.calls++
	p.mu.Unlock()
	return parser.Parse(raw)
}

const (
	rawSSH  = "Nmap scan report for example.com (10.0.0.1)\n22/tcp open ssh\n"
	rawBoth = "Nmap scan report for example.com (10.0.0.1)\n22/tcp open ssh\n80/tcp open http\n|_http-title: Hello\n"
)

func TestRunScanStoresParsedResult(t *testing.T) {
	scanner := &fakeScanner{outputs: []string{rawSSH}}
	store := &memStore{}
	svc := New(scanner, parser.New(), store)

	scan, err := svc.RunScan(context.Background(), "example.com", models.Options{{Flag: "-sV"}})
	require.NoError(t, err)

	assert.NotEmpty(t, scan.ID)
	assert.Equal(t, "example.com", scan.Target)
	assert.Equal(t, rawSSH, scan.RawResult)
	assert.Equal(t, "nmap example.com", scan.Command)
	assert.Equal(t, "ssh", scan.ParsedResult.Ports["22"].Service)
	assert.Len(t, store.scans, 1)
}

func TestRunScanRejectsBeforeScanning(t *testing.T) {
	tests := []struct {
		name   string
		target string
		opts   models.Options
		scope  *target.Scope
		want   error
	}{
		{"empty target", "", nil, nil, scanerr.ErrInvalidTarget},
		{"bad hostname", "-bad-.example", nil, nil, scanerr.ErrInvalidTarget},
		{"injection attempt", "example.com; rm -rf /", nil, nil, scanerr.ErrInvalidTarget},
		{"bad flag", "example.com", models.Options{{Flag: "sV"}}, nil, scanerr.ErrInvalidOptions},
		{"out of scope", "10.1.0.1", nil, &target.Scope{AllowedCIDRs: []string{"10.0.0.0/24"}}, scanerr.ErrOutOfScope},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			scanner := &fakeScanner{}
			store := &memStore{}
			svc := New(scanner, parser.New(), store, WithScope(tt.scope))

			_, err := svc.RunScan(context.Background(), tt.target, tt.opts)
			assert.ErrorIs(t, err, tt.want)
			assert.Zero(t, scanner.calls)
			assert.Empty(t, store.scans)
		})
	}
}

func TestRunScanFailureStoresNothing(t *testing.T) {
	scanner := &fakeScanner{err: scanerr.ScanFailed("Failed to resolve", errors.New("exit status 1"))}
	store := &memStore{}
	svc := New(scanner, parser.New(), store)

	_, err := svc.RunScan(context.Background(), "example.com", nil)
	assert.ErrorIs(t, err, scanerr.ErrScanFailed)
	assert.Empty(t, store.scans)
}

func TestRecentScansDefaultsLimit(t *testing.T) {
	outputs := make([]string, 7)
	svc := New(&fakeScanner{outputs: outputs}, parser.New(), &memStore{})
	for i := 0; i < 7; i++ {
		_, err := svc.RunScan(context.Background(), "example.com", nil)
		require.NoError(t, err)
	}

	scans, err := svc.RecentScans(context.Background(), "example.com", 0)
	require.NoError(t, err)
	assert.Len(t, scans, DefaultHistoryLimit)

	scans, err = svc.RecentScans(context.Background(), "example.com", 2)
	require.NoError(t, err)
	assert.Len(t, scans, 2)
	assert.True(t, scans[0].Timestamp.After(scans[1].Timestamp))
}

func TestLatestScan(t *testing.T) {
	svc := New(&fakeScanner{outputs: []string{rawSSH, rawBoth}}, parser.New(), &memStore{})
	ctx := context.Background()

	_, err := svc.LatestScan(ctx, "example.com")
	assert.ErrorIs(t, err, scanerr.ErrNotFound)

	_, err = svc.RunScan(ctx, "example.com", nil)
	require.NoError(t, err)
	second, err := svc.RunScan(ctx, "example.com", nil)
	require.NoError(t, err)

	latest, err := svc.LatestScan(ctx, "example.com")
	require.NoError(t, err)
	assert.Equal(t, second.ID, latest.ID)
}

func TestScanChangesInsufficientHistory(t *testing.T) {
	svc := New(&fakeScanner{outputs: []string{rawSSH}}, parser.New(), &memStore{})
	ctx := context.Background()

	_, err := svc.ScanChanges(ctx, "example.com")
	assert.ErrorIs(t, err, scanerr.ErrInsufficientHistory)

	_, err = svc.RunScan(ctx, "example.com", nil)
	require.NoError(t, err)

	_, err = svc.ScanChanges(ctx, "example.com")
	assert.ErrorIs(t, err, scanerr.ErrInsufficientHistory)
}

func TestScanChangesComparesTwoNewest(t *testing.T) {
	p := &countingParser{}
	svc := New(&fakeScanner{outputs: []string{rawSSH, rawBoth}}, p, &memStore{})
	ctx := context.Background()

	older, err := svc.RunScan(ctx, "example.com", nil)
	require.NoError(t, err)
	newer, err := svc.RunScan(ctx, "example.com", nil)
	require.NoError(t, err)

	before := p.calls
	d, err := svc.ScanChanges(ctx, "example.com")
	require.NoError(t, err)

	assert.Equal(t, 2, p.calls-before, "both raw outputs are re-parsed")
	assert.Equal(t, []string{"80: http"}, d.NewlyOpened)
	assert.Empty(t, d.NewlyClosed)
	assert.Equal(t, map[string]models.ScriptChange{"http-title:": models.ScriptNew}, d.ScriptChanges)
	assert.Equal(t, newer.ID, d.NewerScanID)
	assert.Equal(t, older.ID, d.OlderScanID)
	require.NotNil(t, d.NewerTimestamp)
	assert.True(t, d.NewerTimestamp.Equal(newer.Timestamp))
}

func TestStoreErrorsPropagate(t *testing.T) {
	storeErr := scanerr.Wrap(scanerr.CodeStorage, "disk full", errors.New("ENOSPC"))
	svc := New(&fakeScanner{outputs: []string{rawSSH}}, parser.New(), &memStore{err: storeErr})
	ctx := context.Background()

	_, err := svc.RunScan(ctx, "example.com", nil)
	assert.ErrorIs(t, err, scanerr.ErrStorage)

	_, err = svc.RecentScans(ctx, "example.com", 5)
	assert.ErrorIs(t, err, scanerr.ErrStorage)

	_, err = svc.ScanChanges(ctx, "example.com")
	assert.ErrorIs(t, err, scanerr.ErrStorage)
}
