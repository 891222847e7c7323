package drive

import "strings"

// workspacePrefix starts the MIME type of every Google Workspace file.
// Workspace files have no binary content and must be exported.
const workspacePrefix = "application/vnd.google-apps."

// ExportFormat is the converted form of a Workspace file.
type ExportFormat struct {
	MimeType  string
	Extension string
}

var exportFormats = map[string]ExportFormat{
	workspacePrefix + "document":     {"application/vnd.openxmlformats-officedocument.wordprocessingml.document", ".docx"},
	workspacePrefix + "spreadsheet":  {"application/vnd.openxmlformats-officedocument.spreadsheetml.sheet", ".xlsx"},
	workspacePrefix + "presentation": {"application/vnd.openxmlformats-officedocument.presentationml.presentation", ".pptx"},
	workspacePrefix + "drawing":      {"application/pdf", ".pdf"},
	workspacePrefix + "script":       {"application/vnd.google-apps.script+json", ".json"},
	workspacePrefix + "jam":          {"application/pdf", ".pdf"},
}

// IsWorkspace reports whether f is a Google Workspace file, folders included.
func (f *FileInfo) IsWorkspace() bool {
	return strings.HasPrefix(f.MimeType, workspacePrefix)
}

// ExportFormatFor returns the export format of a Workspace MIME type.
// ok is false for types that cannot be exported, such as folders, forms
// and shortcuts.
func ExportFormatFor(mimeType string) (format ExportFormat, ok bool) {
	format, ok = exportFormats[mimeType]
	return format, ok
}

// ExportName returns name with the extension of format, unless it already
// ends with it.
func ExportName(name string, format ExportFormat) string {
	if strings.HasSuffix(strings.ToLower(name), format.Extension) {
		return name
	}
	return name + format.Extension
}
