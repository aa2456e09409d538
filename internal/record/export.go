package record

// ExportHeader is the first line of a JSONL export file.
type ExportHeader struct {
	PhotoTagExport bool   `json:"_phototag_export"`
	SchemaVersion  string `json:"schema_version"`
	ExportedAt     int64  `json:"exported_at"`
}

// ExportSchemaVersion is written into every export header.
const ExportSchemaVersion = "1.0"

// ExportLine is one JSONL line: either the header or a record with its alarms.
type ExportLine struct {
	// Header detection field - true only for header line
	PhotoTagExport bool `json:"_phototag_export,omitempty"`

	// Header fields (only present in header line)
	SchemaVersion string `json:"schema_version,omitempty"`
	ExportedAt    int64  `json:"exported_at,omitempty"`

	// Record fields
	ID        string   `json:"id,omitempty"`
	PhotoRef  string   `json:"photo_ref,omitempty"`
	Tags      []string `json:"tags,omitempty"`
	Comment   string   `json:"comment,omitempty"`
	CreatedAt int64    `json:"created_at,omitempty"`
	UpdatedAt int64    `json:"updated_at,omitempty"`
	Alarms    []Alarm  `json:"alarms,omitempty"`
}

// ToExportLine converts a record and its alarms into an export line.
func ToExportLine(r *TaggedRecord, alarms []Alarm) ExportLine {
	return ExportLine{
		ID:        r.ID,
		PhotoRef:  r.PhotoRef,
		Tags:      r.Tags,
		Comment:   r.Comment,
		CreatedAt: r.CreatedAt,
		UpdatedAt: r.UpdatedAt,
		Alarms:    alarms,
	}
}

// Record returns the TaggedRecord carried by the line.
func (l *ExportLine) Record() *TaggedRecord {
	return &TaggedRecord{
		ID:        l.ID,
		PhotoRef:  l.PhotoRef,
		Tags:      l.Tags,
		Comment:   l.Comment,
		CreatedAt: l.CreatedAt,
		UpdatedAt: l.UpdatedAt,
	}
}
