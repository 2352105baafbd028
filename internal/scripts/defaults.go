package scripts

// LifecycleScripts are the gcode scripts the printer connection runs at
// fixed points. Only some have built-in sources.
var LifecycleScripts = []string{
	"afterPrinterConnected",
	"beforePrintStarted",
	"afterPrintCancelled",
	"afterPrintDone",
	"beforePrintPaused",
	"afterPrintResumed",
}

const afterPrintCancelled = `; disable motors
M84

;disable all heaters
{{ template "snippets/disable_hotends" . -}}
M140 S0

;disable fan
M106 S0
`

const disableHotends = `{{ range $tool := until (default 1 .extruders | int) -}}
M104 T{{ $tool }} S0
{{ end -}}
`

// DefaultScripts returns the built-in scripts by category and name
func DefaultScripts() map[string]map[string]string {
	return map[string]map[string]string{
		CategoryGCode: {
			"afterPrintCancelled": afterPrintCancelled,
		},
	}
}

// DefaultSnippets returns the built-in snippets by category and name
func DefaultSnippets() map[string]map[string]string {
	return map[string]map[string]string{
		CategoryGCode: {
			"disable_hotends": disableHotends,
		},
	}
}
