package tools

import (
	"context"
	"errors"
	"os/exec"
	"strings"
	"time"

	"github.com/sirupsen/logrus"

	scanerr "github.com/hakim/scanwatch/internal/errors"
	"github.com/hakim/scanwatch/internal/models"
)

const (
	// DefaultNmapBinary is looked up on PATH when no explicit path is configured.
	DefaultNmapBinary = "nmap"

	// MaxScanTimeout caps how long a single scan process may run.
	MaxScanTimeout = 5 * time.Minute
)

// NmapScanner runs the nmap executable and returns its normal output.
// It is safe for concurrent use; every Scan starts its own process.
type NmapScanner struct {
	path    string
	timeout time.Duration
	log     *logrus.Entry
}

// NewNmapScanner resolves binary on PATH (or verifies an explicit path) and
// returns a scanner bounded by timeout. A zero or oversized timeout is
// clamped to MaxScanTimeout.
func NewNmapScanner(binary string, timeout time.Duration) (*NmapScanner, error) {
	if binary == "" {
		binary = DefaultNmapBinary
	}

	path, err := exec.LookPath(binary)
	if err != nil {
		return nil, scanerr.Wrap(scanerr.CodeExecutableNotFound,
			"nmap executable not found, install nmap or set scanner.path", err)
	}

	if timeout <= 0 || timeout > MaxScanTimeout {
		timeout = MaxScanTimeout
	}

	return &NmapScanner{
		path:    path,
		timeout: timeout,
		log:     logrus.WithField("component", "scanner"),
	}, nil
}

// Path returns the resolved executable path.
func (s *NmapScanner) Path() string {
	return s.path
}

// Timeout returns the per-scan process timeout.
func (s *NmapScanner) Timeout() time.Duration {
	return s.timeout
}

// Command renders the command line a scan of target with opts would run.
func (s *NmapScanner) Command(target string, opts models.Options) string {
	return strings.Join(append([]string{s.path}, buildArgs(target, opts)...), " ")
}

// Scan runs nmap against target. Options are passed in order, each flag
// followed by its value when it has one, and the target comes last.
// It returns the raw stdout and the command line that was executed.
func (s *NmapScanner) Scan(ctx context.Context, target string, opts models.Options) (string, string, error) {
	if target == "" {
		return "", "", scanerr.ErrInvalidTarget
	}

	args := buildArgs(target, opts)
	command := s.Command(target, opts)

	scanCtx, cancel := context.WithTimeout(ctx, s.timeout)
	defer cancel()

	log := s.log.WithField("target", target)
	log.WithField("command", command).Debug("starting nmap")

	result, err := Run(scanCtx, s.path, args...)
	if err != nil {
		if errors.Is(err, context.DeadlineExceeded) {
			log.WithField("timeout", s.timeout).Warn("nmap timed out")
			return "", command, scanerr.Wrap(scanerr.CodeScanTimeout, "scan timed out", err).WithTarget(target)
		}
		stderr := ""
		if result != nil {
			stderr = strings.TrimSpace(result.Stderr)
		}
		log.WithError(err).WithField("stderr", stderr).Warn("nmap failed")
		return "", command, scanerr.ScanFailed(stderr, err).WithTarget(target)
	}

	log.WithField("duration", result.Duration).Debug("nmap finished")
	return result.Stdout, command, nil
}

func buildArgs(target string, opts models.Options) []string {
	return append(opts.Args(), target)
}
