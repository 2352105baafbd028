// Package connection reports the serial connection options shown alongside
// the settings: the preferred port and baud rate plus what is available.
package connection

import (
	"context"
	"path/filepath"
	"sort"

	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/logging"
	"github.com/muurk/printhost/internal/settings"
)

// Options are the serial connection choices
type Options struct {
	PortPreference     *string  `json:"portPreference"`
	BaudratePreference *int     `json:"baudratePreference"`
	Ports              []string `json:"ports"`
	Baudrates          []int    `json:"baudrates"`
}

// Provider computes the connection options from the current settings
type Provider func(ctx context.Context, r settings.Reader) Options

// DefaultPortPatterns match the device nodes of common USB serial adapters
var DefaultPortPatterns = []string{
	"/dev/ttyUSB*",
	"/dev/ttyACM*",
	"/dev/tty.usb*",
	"/dev/cu.*",
	"/dev/cuaU*",
	"/dev/rfcomm*",
}

// DefaultBaudrates are offered in descending order
var DefaultBaudrates = []int{250000, 230400, 115200, 57600, 38400, 19200, 9600}

// Scanner finds serial ports by globbing device paths
type Scanner struct {
	Patterns  []string
	Baudrates []int

	// Glob defaults to filepath.Glob
	Glob func(pattern string) ([]string, error)

	log *zap.Logger
}

// NewScanner creates a scanner with the default patterns and baud rates
func NewScanner() *Scanner {
	return &Scanner{
		Patterns:  DefaultPortPatterns,
		Baudrates: DefaultBaudrates,
		Glob:      filepath.Glob,
		log:       logging.Named("connection"),
	}
}

// Ports returns the sorted, de-duplicated ports matching the scanner's
// patterns and the additional patterns
func (s *Scanner) Ports(ctx context.Context, additional []string) []string {
	glob := s.Glob
	if glob == nil {
		glob = filepath.Glob
	}

	seen := make(map[string]struct{})
	for _, pattern := range append(append([]string(nil), s.Patterns...), additional...) {
		if ctx.Err() != nil {
			break
		}
		matches, err := glob(pattern)
		if err != nil {
			if s.log != nil {
				s.log.Warn("Invalid serial port pattern", zap.String("pattern", pattern), zap.Error(err))
			}
			continue
		}
		for _, m := range matches {
			seen[m] = struct{}{}
		}
	}

	ports := make([]string, 0, len(seen))
	for p := range seen {
		ports = append(ports, p)
	}
	sort.Strings(ports)
	return ports
}

// Provider returns a Provider backed by s
func (s *Scanner) Provider() Provider {
	return func(ctx context.Context, r settings.Reader) Options {
		opts := Options{
			Ports:     s.Ports(ctx, r.GetStringSlice(settings.PathExtraPorts)),
			Baudrates: append([]int(nil), s.Baudrates...),
		}
		if port, ok := r.Get(settings.PathSerialPort).(string); ok && port != "" {
			opts.PortPreference = &port
		}
		if baud, ok := r.LookupInt(settings.PathSerialBaud); ok {
			opts.BaudratePreference = &baud
		}
		return opts
	}
}
