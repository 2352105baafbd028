package settings

// Well-known paths used by more than one package
var (
	PathAPIEnabled       = Path{"api", "enabled"}
	PathAPIKey           = Path{"api", "key"}
	PathAllowCrossOrigin = Path{"api", "allowCrossOrigin"}
	PathSerialLog        = Path{"serial", "log"}
	PathSerialPort       = Path{"serial", "port"}
	PathSerialBaud       = Path{"serial", "baudrate"}
	PathExtraPorts       = Path{"serial", "additionalPorts"}
	PathUserKeys         = Path{"accessControl", "userKeys"}
	PathPlugins          = Path{"plugins"}
)

// DefaultTree returns a fresh copy of the compiled-in defaults
func DefaultTree() Tree {
	return Tree{
		"api": Tree{
			"enabled":          true,
			"key":              nil,
			"allowCrossOrigin": false,
		},
		"accessControl": Tree{
			"userKeys": []any{},
		},
		"appearance": Tree{
			"name":             "",
			"color":            "default",
			"colorTransparent": false,
			"defaultLanguage":  "_default",
		},
		"printerParameters": Tree{
			"defaultExtrusionLength": 5,
		},
		"webcam": Tree{
			"stream":        nil,
			"snapshot":      nil,
			"ffmpeg":        nil,
			"ffmpegThreads": 1,
			"bitrate":       "5000k",
			"watermark":     true,
			"flipH":         false,
			"flipV":         false,
		},
		"gcodeViewer": Tree{
			"enabled":             true,
			"mobileSizeThreshold": 2097152,
			"sizeThreshold":       20971520,
		},
		"feature": Tree{
			"temperatureGraph":      true,
			"waitForStartOnConnect": false,
			"alwaysSendChecksum":    false,
			"sdSupport":             true,
			"sdAlwaysAvailable":     false,
			"swallowOkAfterResend":  true,
			"repetierTargetTemp":    false,
			"keyboardControl":       true,
		},
		"serial": Tree{
			"port":        nil,
			"baudrate":    nil,
			"autoconnect": false,
			"log":         false,
			"timeout": Tree{
				"detection":     0.5,
				"connection":    2.0,
				"communication": 30.0,
				"temperature":   5.0,
				"sdStatus":      1.0,
			},
			"additionalPorts": []any{},
		},
		"folder": Tree{
			"uploads":       nil,
			"timelapse":     nil,
			"timelapse_tmp": nil,
			"logs":          nil,
			"watched":       nil,
		},
		"temperature": Tree{
			"profiles": []any{
				Tree{"name": "ABS", "extruder": 210, "bed": 100},
				Tree{"name": "PLA", "extruder": 180, "bed": 60},
			},
		},
		"system": Tree{
			"actions": []any{},
			"events":  nil,
		},
		"terminalFilters": []any{
			Tree{"name": "Suppress M105 requests/responses", "regex": `(Send: M105)|(Recv: ok T\d*:)`},
			Tree{"name": "Suppress M27 requests/responses", "regex": `(Send: M27)|(Recv: SD printing byte)`},
		},
		"plugins": Tree{},
	}
}
