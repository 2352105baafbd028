package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"

	"go.uber.org/zap"

	"github.com/muurk/printhost/internal/events"
	"github.com/muurk/printhost/internal/scripts"
	"github.com/muurk/printhost/internal/settings"
	"github.com/muurk/printhost/internal/version"
)

// maxBodySize limits POST /api/settings bodies
const maxBodySize = 1 << 20

// errMalformed marks a request body that cannot be applied
var errMalformed = errors.New("malformed request")

// accessor selects how a field is read or written. accessNone skips the
// field in that direction.
type accessor int

const (
	accessNone accessor = iota
	accessRaw
	accessBool
	accessInt
	accessFloat
	accessList      // raw, but only applied when the value is a list
	accessEncrypted // stringified and stored obfuscated
)

// field maps a key of a response section to a settings path
type field struct {
	key  string
	path settings.Path
	get  accessor
	set  accessor
}

type section struct {
	name   string
	fields []field
}

func path(s string) settings.Path {
	return settings.MustParsePath(s)
}

// settingsSections describes the fixed sections of the settings document.
// The serial port preferences, the folders, the terminal filters and the
// scripts need more than a path and are handled separately.
var settingsSections = []section{
	{name: "api", fields: []field{
		{"enabled", settings.PathAPIEnabled, accessBool, accessBool},
		{"key", settings.PathAPIKey, accessRaw, accessEncrypted},
		{"allowCrossOrigin", settings.PathAllowCrossOrigin, accessRaw, accessBool},
	}},
	{name: "appearance", fields: []field{
		{"name", path("appearance.name"), accessRaw, accessRaw},
		{"color", path("appearance.color"), accessRaw, accessRaw},
		{"colorTransparent", path("appearance.colorTransparent"), accessBool, accessBool},
		{"defaultLanguage", path("appearance.defaultLanguage"), accessRaw, accessRaw},
	}},
	{name: "printer", fields: []field{
		{"defaultExtrusionLength", path("printerParameters.defaultExtrusionLength"), accessInt, accessInt},
	}},
	{name: "webcam", fields: []field{
		{"streamUrl", path("webcam.stream"), accessRaw, accessRaw},
		{"snapshotUrl", path("webcam.snapshot"), accessRaw, accessRaw},
		{"ffmpegPath", path("webcam.ffmpeg"), accessRaw, accessRaw},
		{"bitrate", path("webcam.bitrate"), accessRaw, accessRaw},
		{"ffmpegThreads", path("webcam.ffmpegThreads"), accessRaw, accessInt},
		{"watermark", path("webcam.watermark"), accessBool, accessBool},
		{"flipH", path("webcam.flipH"), accessBool, accessBool},
		{"flipV", path("webcam.flipV"), accessBool, accessBool},
	}},
	{name: "feature", fields: []field{
		{"gcodeViewer", path("gcodeViewer.enabled"), accessBool, accessBool},
		{"temperatureGraph", path("feature.temperatureGraph"), accessBool, accessBool},
		{"waitForStart", path("feature.waitForStartOnConnect"), accessBool, accessBool},
		{"alwaysSendChecksum", path("feature.alwaysSendChecksum"), accessBool, accessBool},
		{"sdSupport", path("feature.sdSupport"), accessBool, accessBool},
		{"sdAlwaysAvailable", path("feature.sdAlwaysAvailable"), accessBool, accessBool},
		{"swallowOkAfterResend", path("feature.swallowOkAfterResend"), accessBool, accessBool},
		{"repetierTargetTemp", path("feature.repetierTargetTemp"), accessBool, accessBool},
		{"keyboardControl", path("feature.keyboardControl"), accessBool, accessBool},
	}},
	{name: "serial", fields: []field{
		{"autoconnect", path("serial.autoconnect"), accessBool, accessBool},
		{"port", settings.PathSerialPort, accessNone, accessRaw},
		{"baudrate", settings.PathSerialBaud, accessNone, accessInt},
		{"timeoutConnection", path("serial.timeout.connection"), accessFloat, accessFloat},
		{"timeoutDetection", path("serial.timeout.detection"), accessFloat, accessFloat},
		{"timeoutCommunication", path("serial.timeout.communication"), accessFloat, accessFloat},
		{"timeoutTemperature", path("serial.timeout.temperature"), accessFloat, accessFloat},
		{"timeoutSdStatus", path("serial.timeout.sdStatus"), accessFloat, accessFloat},
		{"log", settings.PathSerialLog, accessBool, accessBool},
		{"additionalPorts", settings.PathExtraPorts, accessRaw, accessList},
	}},
	{name: "temperature", fields: []field{
		{"profiles", path("temperature.profiles"), accessRaw, accessRaw},
	}},
	{name: "system", fields: []field{
		{"actions", path("system.actions"), accessRaw, accessRaw},
		{"events", path("system.events"), accessRaw, accessRaw},
	}},
}

// folderKeys maps response keys of the folder section to folder roles
var folderKeys = []struct{ key, role string }{
	{"uploads", settings.FolderUploads},
	{"timelapse", settings.FolderTimelapse},
	{"timelapseTmp", settings.FolderTimelapseTmp},
	{"logs", settings.FolderLogs},
	{"watched", settings.FolderWatched},
}

var terminalFiltersPath = settings.Path{"terminalFilters"}

func readField(r settings.Reader, f field) any {
	switch f.get {
	case accessBool:
		return r.GetBoolean(f.path)
	case accessInt:
		return r.GetInt(f.path)
	case accessFloat:
		return r.GetFloat(f.path)
	default:
		return r.Get(f.path)
	}
}

func writeField(w settings.Writer, f field, v any) error {
	switch f.set {
	case accessBool:
		return w.SetBoolean(f.path, v)
	case accessInt:
		return w.SetInt(f.path, v)
	case accessFloat:
		return w.SetFloat(f.path, v)
	case accessList:
		if _, ok := v.([]any); !ok {
			return nil
		}
		return w.Set(f.path, v)
	case accessEncrypted:
		if v == nil {
			return w.Set(f.path, nil)
		}
		return w.SetEncrypted(f.path, settings.Stringify(v))
	default:
		return w.Set(f.path, v)
	}
}

// readSettings builds the settings document as seen by a caller with role
func (s *Server) readSettings(ctx context.Context, view *settings.View, role Role) (map[string]any, error) {
	data := make(map[string]any, len(settingsSections)+4)
	for _, sec := range settingsSections {
		out := make(map[string]any, len(sec.fields))
		for _, f := range sec.fields {
			if f.get != accessNone {
				out[f.key] = readField(view, f)
			}
		}
		data[sec.name] = out
	}

	if role != RoleAdmin {
		data["api"].(map[string]any)["key"] = redactedKey
	}

	opts := s.connection(ctx, view)
	serial := data["serial"].(map[string]any)
	serial["port"] = opts.PortPreference
	serial["baudrate"] = opts.BaudratePreference
	serial["portOptions"] = opts.Ports
	serial["baudrateOptions"] = opts.Baudrates

	folders := make(map[string]any, len(folderKeys))
	for _, fk := range folderKeys {
		dir, err := s.folders.Get(view, fk.role)
		if err != nil {
			return nil, err
		}
		folders[fk.key] = dir
	}
	data["folder"] = folders

	data["terminalFilters"] = view.Get(terminalFiltersPath)

	gcode, err := s.readScripts()
	if err != nil {
		return nil, err
	}
	data["scripts"] = map[string]any{scripts.CategoryGCode: gcode}

	if contributions := s.plugins.CollectSettings(ctx, view); len(contributions) > 0 {
		data["plugins"] = contributions
	}
	return data, nil
}

// readScripts returns the gcode sources. A store with neither stored nor
// built-in scripts yields the lifecycle script names with no source.
func (s *Server) readScripts() (map[string]any, error) {
	names, err := s.scripts.List(scripts.CategoryGCode)
	if err != nil {
		return nil, err
	}

	gcode := make(map[string]any)
	if len(names) == 0 {
		for _, name := range scripts.LifecycleScripts {
			gcode[name] = nil
		}
		gcode[scripts.SnippetsName] = map[string]any{}
		return gcode, nil
	}
	for _, name := range names {
		source, err := s.scripts.Load(scripts.CategoryGCode, name)
		if err != nil {
			return nil, err
		}
		gcode[name] = source
	}
	return gcode, nil
}

// applySettings stages body on tx and returns the scripts to save once the
// transaction commits
func (s *Server) applySettings(ctx context.Context, tx *settings.Tx, body map[string]any) (map[string]string, error) {
	for _, sec := range settingsSections {
		values, ok, err := sectionOf(body, sec.name)
		if err != nil {
			return nil, err
		}
		if !ok {
			continue
		}
		for _, f := range sec.fields {
			v, present := values[f.key]
			if !present || f.set == accessNone {
				continue
			}
			if err := writeField(tx, f, v); err != nil {
				if settings.IsCoercionError(err) {
					s.log.Debug("Ignoring uncoercible setting", zap.Error(err))
					continue
				}
				return nil, err
			}
		}
	}

	values, ok, err := sectionOf(body, "folder")
	if err != nil {
		return nil, err
	}
	if ok {
		for _, fk := range folderKeys {
			if v, present := values[fk.key]; present {
				if err := s.folders.Set(tx, fk.role, v); err != nil {
					return nil, err
				}
			}
		}
	}

	if v, present := body["terminalFilters"]; present {
		if err := tx.Set(terminalFiltersPath, v); err != nil {
			return nil, err
		}
	}

	pending := make(map[string]string)
	values, ok, err = sectionOf(body, "scripts")
	if err != nil {
		return nil, err
	}
	if gcode, isMap := values[scripts.CategoryGCode].(map[string]any); ok && isMap {
		for name, source := range gcode {
			if name == scripts.SnippetsName {
				continue
			}
			text, isString := source.(string)
			if !isString {
				s.log.Debug("Ignoring non-text script", zap.String("script", name))
				continue
			}
			pending[name] = text
		}
	}

	values, ok, err = sectionOf(body, "plugins")
	if err != nil {
		return nil, err
	}
	if ok {
		s.plugins.DispatchSave(ctx, tx, values)
	}
	return pending, nil
}

// sectionOf returns body[name] as an object. A present value of any other
// type is malformed.
func sectionOf(body map[string]any, name string) (map[string]any, bool, error) {
	raw, present := body[name]
	if !present {
		return nil, false, nil
	}
	values, ok := raw.(map[string]any)
	if !ok {
		return nil, false, fmt.Errorf("%w: section %q is not an object", errMalformed, name)
	}
	return values, true, nil
}

// saveScripts stores pending gcode scripts and reports whether any changed.
// A rejected script does not stop the others.
func (s *Server) saveScripts(pending map[string]string) bool {
	names := make([]string, 0, len(pending))
	for name := range pending {
		names = append(names, name)
	}
	sort.Strings(names)

	changed := false
	for _, name := range names {
		saved, err := s.scripts.Save(scripts.CategoryGCode, name, pending[name])
		if err != nil {
			s.log.Warn("Failed to save script", zap.String("script", name), zap.Error(err))
			continue
		}
		changed = changed || saved
	}
	return changed
}

func (s *Server) handleGetSettings(w http.ResponseWriter, r *http.Request) {
	view := s.settings.Snapshot()
	s.respondSettings(w, r, view, RoleFor(view, requestAPIKey(r)))
}

func (s *Server) respondSettings(w http.ResponseWriter, r *http.Request, view *settings.View, role Role) {
	data, err := s.readSettings(r.Context(), view, role)
	if err != nil {
		s.log.Error("Failed to read settings", zap.Error(err))
		http.Error(w, "Failed to read settings", http.StatusInternalServerError)
		return
	}
	writeJSON(w, http.StatusOK, data)
}

func (s *Server) handlePostSettings(w http.ResponseWriter, r *http.Request) {
	role := RoleFor(s.settings.Snapshot(), requestAPIKey(r))
	switch role {
	case RoleAnonymous:
		http.Error(w, "Authentication required", http.StatusUnauthorized)
		return
	case RoleUser:
		http.Error(w, "Admin access required", http.StatusForbidden)
		return
	}

	if !strings.Contains(r.Header.Get("Content-Type"), "application/json") {
		http.Error(w, "Expected content-type JSON", http.StatusBadRequest)
		return
	}

	var decoded any
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodySize))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil {
		http.Error(w, "Malformed JSON body in request", http.StatusBadRequest)
		return
	}
	if _, err := dec.Token(); !errors.Is(err, io.EOF) {
		http.Error(w, "Malformed JSON body in request", http.StatusBadRequest)
		return
	}
	object, ok := decoded.(map[string]any)
	if !ok {
		http.Error(w, "Expected a JSON object", http.StatusBadRequest)
		return
	}
	body, err := settings.NormalizeTree(object)
	if err != nil {
		http.Error(w, "Malformed JSON body in request", http.StatusBadRequest)
		return
	}

	ctx := r.Context()
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	var pending map[string]string
	changed, err := s.settings.Transact(ctx, func(tx *settings.Tx) error {
		var applyErr error
		pending, applyErr = s.applySettings(ctx, tx, body)
		return applyErr
	})
	switch {
	case errors.Is(err, errMalformed):
		http.Error(w, err.Error(), http.StatusBadRequest)
		return
	case err != nil && !errors.Is(err, settings.ErrPersistence):
		s.log.Error("Failed to apply settings", zap.Error(err))
		http.Error(w, "Failed to apply settings", http.StatusInternalServerError)
		return
	}

	// A persistence failure still leaves the new values in memory
	scriptsChanged := s.saveScripts(pending)
	if changed || scriptsChanged {
		if pubErr := s.publisher.Publish(ctx, events.New(events.SettingsUpdated, nil)); pubErr != nil {
			s.log.Warn("Failed to publish settings event", zap.Error(pubErr))
		}
	}

	if err != nil {
		http.Error(w, fmt.Sprintf("Settings applied but not saved: %v", err), http.StatusInternalServerError)
		return
	}

	s.respondSettings(w, r, s.settings.Snapshot(), role)
}

func (s *Server) handleVersion(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, version.Get())
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
