// Package scripts manages named G-code scripts and the snippets they include.
//
// Scripts are addressed by category and name ("gcode", "afterPrintCancelled")
// and stored as plain files under <dir>/<category>/<name>. Each category
// reserves the name "snippets" for a directory of reusable fragments; it is
// never listed as a script and cannot be saved as one.
//
// Stored files take precedence over the compiled-in defaults, which always
// exist for the lifecycle scripts the server ships with.
//
// Rendering uses text/template with the sprig function set. Every snippet of
// the category is available as a named template:
//
//	; disable all heaters
//	{{ template "snippets/disable_hotends" . }}
//	M140 S0
package scripts
