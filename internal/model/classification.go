package model

// Classification is the governance decision for one attribute of an entity.
type Classification string

const (
	ClassExportPlain Classification = "export_plain"
	ClassExportPII   Classification = "export_pii"
	ClassBlocked     Classification = "blocked"
)

// String returns the string representation of the classification.
func (c Classification) String() string {
	return string(c)
}

// IsValid checks whether the classification is a known value.
func (c Classification) IsValid() bool {
	switch c {
	case ClassExportPlain, ClassExportPII, ClassBlocked:
		return true
	}
	return false
}

// Exported reports whether values with this classification leave the process.
func (c Classification) Exported() bool {
	return c == ClassExportPlain || c == ClassExportPII
}
