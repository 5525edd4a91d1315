// Package service orchestrates a scan end to end: validation, scope check,
// execution, parsing, and persistence. It also answers history and change
// queries over the stored scans.
package service

import (
	"context"
	"fmt"

	"github.com/sirupsen/logrus"

	"github.com/hakim/scanwatch/internal/diff"
	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
	"github.com/hakim/scanwatch/internal/target"
)

// DefaultHistoryLimit is used when a caller asks for zero or fewer scans.
const DefaultHistoryLimit = 5

// Scanner runs the external scanner and returns its raw output and the
// command line that produced it.
type Scanner interface {
	Scan(ctx context.Context, target string, opts models.Options) (raw string, command string, err error)
}

// Parser turns raw scanner output into a structured record.
type Parser interface {
	Parse(raw string) *models.ScanRecord
}

// Store persists scans and returns them newest first.
type Store interface {
	Save(ctx context.Context, scan *models.StoredScan) error
	Recent(ctx context.Context, target string, limit int) ([]*models.StoredScan, error)
}

// Service wires the scanner, parser, and store together
type Service struct {
	scanner Scanner
	parser  Parser
	store   Store
	scope   *target.Scope
	log     *logrus.Entry
}

// Option configures a Service.
type Option func(*Service)

// WithScope restricts scans to the given allow-list.
func WithScope(scope *target.Scope) Option {
	return func(s *Service) { s.scope = scope }
}

// WithLogger overrides the logger.
func WithLogger(log *logrus.Entry) Option {
	return func(s *Service) { s.log = log }
}

// New creates a Service.
func New(scanner Scanner, parser Parser, store Store, opts ...Option) *Service {
	s := &Service{
		scanner: scanner,
		parser:  parser,
		store:   store,
		log:     logrus.WithField("component", "service"),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// ValidateRequest checks target and options without running anything.
// The API calls it before enqueueing so bad requests fail synchronously.
func (s *Service) ValidateRequest(tgt string, opts models.Options) error {
	if !target.IsValid(tgt) {
		return scanerr.ErrInvalidTarget.WithTarget(tgt)
	}
	if err := s.scope.Check(tgt); err != nil {
		return scanerr.Wrap(scanerr.CodeOutOfScope, "target is outside the allowed scope", err).WithTarget(tgt)
	}
	if err := opts.Validate(); err != nil {
		return scanerr.Wrap(scanerr.CodeInvalidOptions, "invalid scan options", err).WithTarget(tgt)
	}
	return nil
}

// RunScan validates the request, runs the scanner, parses the output, and
// appends the result to the history. A failed scan stores nothing.
func (s *Service) RunScan(ctx context.Context, tgt string, opts models.Options) (*models.StoredScan, error) {
	if err := s.ValidateRequest(tgt, opts); err != nil {
		return nil, err
	}

	log := s.log.WithField("target", tgt)
	log.WithField("options", opts.Args()).Info("running scan")

	raw, command, err := s.scanner.Scan(ctx, tgt, opts)
	if err != nil {
		return nil, err
	}

	record := s.parser.Parse(raw)
	scan := models.NewStoredScan(tgt, opts, raw, record, command)

	if err := s.store.Save(ctx, scan); err != nil {
		log.WithError(err).Error("failed to save scan")
		return nil, err
	}

	log.WithFields(logrus.Fields{
		"scan_id":    scan.ID,
		"open_ports": record.OpenPorts(),
	}).Info("scan stored")

	return scan, nil
}

// RecentScans returns up to limit scans for target, newest first.
func (s *Service) RecentScans(ctx context.Context, tgt string, limit int) ([]*models.StoredScan, error) {
	if limit <= 0 {
		limit = DefaultHistoryLimit
	}
	scans, err := s.store.Recent(ctx, tgt, limit)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	return scans, nil
}

// LatestScan returns the newest scan for target or ErrNotFound.
func (s *Service) LatestScan(ctx context.Context, tgt string) (*models.StoredScan, error) {
	scans, err := s.store.Recent(ctx, tgt, 1)
	if err != nil {
		return nil, fmt.Errorf("loading latest scan: %w", err)
	}
	if len(scans) == 0 {
		return nil, scanerr.ErrNotFound.WithTarget(tgt)
	}
	return scans[0], nil
}

// ScanChanges compares the two newest scans of target. Both raw outputs
// are parsed again rather than trusting the stored records.
func (s *Service) ScanChanges(ctx context.Context, tgt string) (*models.ScanDiff, error) {
	scans, err := s.store.Recent(ctx, tgt, 2)
	if err != nil {
		return nil, fmt.Errorf("loading history: %w", err)
	}
	if len(scans) < 2 {
		return nil, scanerr.ErrInsufficientHistory.WithTarget(tgt)
	}

	newer, older := scans[0], scans[1]
	d := diff.ComputeDiff(s.parser.Parse(newer.RawResult), s.parser.Parse(older.RawResult))

	d.NewerScanID = newer.ID
	d.OlderScanID = older.ID
	newerTS, olderTS := newer.Timestamp, older.Timestamp
	d.NewerTimestamp = &newerTS
	d.OlderTimestamp = &olderTS

	return d, nil
}
