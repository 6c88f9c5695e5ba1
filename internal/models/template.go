package models

// TemplateKind distinguishes server built-ins from user uploads.
type TemplateKind string

const (
	TemplateBuiltin TemplateKind = "built-in"
	TemplateCustom  TemplateKind = "custom"
)

// Template is a named formatting definition applied by the service.
type Template struct {
	ID          string
	DisplayName string
	Kind        TemplateKind
	SizeBytes   int64
}

// IsBuiltin reports whether the template is a built-in one.
func (t Template) IsBuiltin() bool {
	return t.Kind == TemplateBuiltin
}
