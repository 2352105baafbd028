package discovery

import (
	"context"
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"

	"github.com/grandcat/zeroconf"
	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/events"
	"github.com/muurk/printhost/internal/logging"
	"github.com/muurk/printhost/internal/plugin"
	"github.com/muurk/printhost/internal/settings"
	"github.com/muurk/printhost/internal/version"
)

// PluginID is the extension identifier of the Announcer
const PluginID = "discovery"

var (
	// ErrInvalidPort is returned when publicPort is not a TCP port
	ErrInvalidPort = errors.New("publicPort must be between 1 and 65535")

	// ErrInvalidPathPrefix is returned when pathPrefix is not absolute
	ErrInvalidPathPrefix = errors.New("pathPrefix must start with /")
)

// registration is a live zeroconf announcement
type registration interface {
	Shutdown()
}

type registerFunc func(name string, port int, text []string) (registration, error)

func zeroconfRegister(name string, port int, text []string) (registration, error) {
	server, err := zeroconf.Register(name, ServiceType, ServiceDomain, port, text, nil)
	if err != nil {
		return nil, err
	}
	return server, nil
}

// announcement is what gets advertised
type announcement struct {
	Name string
	Port int
	Text []string
}

func (a announcement) equal(other announcement) bool {
	return a.Name == other.Name && a.Port == other.Port && slices.Equal(a.Text, other.Text)
}

// Announcer advertises the server with zeroconf. It is also the extension
// owning plugins.discovery.
type Announcer struct {
	plugin.Base

	port     int
	bus      *events.Bus
	hostname func() (string, error)
	register registerFunc
	log      *zap.Logger
}

// AnnouncerOption configures an Announcer
type AnnouncerOption func(*Announcer)

// WithBus re-announces after every settings change published on bus
func WithBus(bus *events.Bus) AnnouncerOption {
	return func(a *Announcer) {
		a.bus = bus
	}
}

// WithAnnouncerLogger sets the logger
func WithAnnouncerLogger(log *zap.Logger) AnnouncerOption {
	return func(a *Announcer) {
		a.log = log
	}
}

// NewAnnouncer creates an Announcer for a server listening on port
func NewAnnouncer(port int, opts ...AnnouncerOption) *Announcer {
	a := &Announcer{
		Base: plugin.Base{
			ID: PluginID,
			DefaultSettings: map[string]any{
				"publicName": "",
				"publicPort": nil,
				"pathPrefix": "/",
			},
		},
		port:     port,
		hostname: os.Hostname,
		register: zeroconfRegister,
	}
	for _, opt := range opts {
		opt(a)
	}
	if a.log == nil {
		a.log = logging.Named("discovery")
	}
	return a
}

// OnSettingsSave validates the section before storing it
func (a *Announcer) OnSettingsSave(ctx context.Context, w settings.Writer, data map[string]any) error {
	if raw, ok := data["publicPort"]; ok && raw != nil {
		port, ok := settings.ParseInt(raw)
		if !ok || port < 1 || port > 65535 {
			return fmt.Errorf("%w: %v", ErrInvalidPort, raw)
		}
		data["publicPort"] = port
	}
	if raw, ok := data["pathPrefix"]; ok {
		prefix, _ := raw.(string)
		if !strings.HasPrefix(prefix, "/") {
			return fmt.Errorf("%w: %v", ErrInvalidPathPrefix, raw)
		}
	}
	return a.Base.OnSettingsSave(ctx, w, data)
}

// announcement computes the advertised name, port and TXT record from the
// current settings
func (a *Announcer) announcement(engine *settings.Settings) announcement {
	r := engine.Snapshot().Scope(settings.PathPlugins.Child(PluginID))

	name, _ := r.Get(settings.Path{"publicName"}).(string)
	if name == "" {
		host, err := a.hostname()
		if err != nil || host == "" {
			host = "unknown"
		}
		host, _, _ = strings.Cut(host, ".")
		name = "printhost on " + host
	}

	port := a.port
	if p, ok := r.LookupInt(settings.Path{"publicPort"}); ok && p > 0 {
		port = p
	}

	path, _ := r.Get(settings.Path{"pathPrefix"}).(string)
	if path == "" {
		path = "/"
	}

	return announcement{
		Name: name,
		Port: port,
		Text: []string{"path=" + path, "version=" + version.Version},
	}
}

// Task returns a background task announcing the server with the
// plugins.discovery settings of engine
func (a *Announcer) Task(engine *settings.Settings) func(ctx context.Context) error {
	return func(ctx context.Context) error {
		return a.run(ctx, engine)
	}
}

// run announces until ctx is done. A failed registration is logged and does
// not stop the server.
func (a *Announcer) run(ctx context.Context, engine *settings.Settings) error {
	var updates <-chan events.Event
	if a.bus != nil {
		sub, cancel := a.bus.Subscribe(0)
		defer cancel()
		updates = sub
	}

	current := a.announcement(engine)
	reg := a.announce(current)
	defer func() {
		if reg != nil {
			reg.Shutdown()
		}
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case e, ok := <-updates:
			if !ok {
				updates = nil
				continue
			}
			if e.Type != events.SettingsUpdated {
				continue
			}
			next := a.announcement(engine)
			if next.equal(current) && reg != nil {
				continue
			}
			if reg != nil {
				reg.Shutdown()
			}
			current = next
			reg = a.announce(current)
		}
	}
}

func (a *Announcer) announce(ann announcement) registration {
	reg, err := a.register(ann.Name, ann.Port, ann.Text)
	if err != nil {
		a.log.Warn("Zeroconf announcement failed",
			zap.String("name", ann.Name),
			zap.Int("port", ann.Port),
			zap.Error(err),
		)
		return nil
	}
	a.log.Info("Announcing via zeroconf",
		zap.String("name", ann.Name),
		zap.String("service", ServiceType),
		zap.Int("port", ann.Port),
		zap.Strings("txt", ann.Text),
	)
	return reg
}
