package cur

import (
	"fmt"
	"time"
)

// Manifest is the index document AWS writes alongside each CUR assembly,
// listing every data file belonging to the snapshot. It is produced by the
// upstream report generator and only ever read by this system.
type Manifest struct {
	AssemblyID             string         `json:"assemblyId"`
	Account                string         `json:"account"`
	Columns                []Column       `json:"columns"`
	Charset                string         `json:"charset"`
	Compression            string         `json:"compression"`
	ContentType            string         `json:"contentType"`
	ReportID               string         `json:"reportId"`
	ReportName             string         `json:"reportName"`
	BillingPeriod          ManifestPeriod `json:"billingPeriod"`
	Bucket                 string         `json:"bucket"`
	ReportKeys             []string       `json:"reportKeys"`
	AdditionalArtifactKeys []string       `json:"additionalArtifactKeys"`
}

// Column is a description of a field from a CUR manifest file.
type Column struct {
	Category string `json:"category"`
	Name     string `json:"name"`
}

// ManifestPeriod is the date range a manifest covers.
type ManifestPeriod struct {
	Start Time `json:"start"`
	End   Time `json:"end"`
}

const manifestTimeFormat = "20060102T000000.000Z"

// Time handles the timestamp encoding used inside CUR manifests.
type Time struct {
	time.Time
}

func (t *Time) UnmarshalJSON(b []byte) error {
	// the timestamp arrives as a quoted JSON string
	if len(b) < 2 || b[0] != '"' || b[len(b)-1] != '"' {
		return fmt.Errorf("manifest timestamp must be a string, got %s", string(b))
	}
	tt, err := time.Parse(manifestTimeFormat, string(b[1:len(b)-1]))
	if err == nil {
		*t = Time{tt}
	}
	return err
}

func (t Time) String() string {
	return t.Format(manifestTimeFormat)
}
