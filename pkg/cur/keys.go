package cur

import (
	"regexp"
	"strings"
)

const (
	// ManifestSuffix is the filename suffix of CUR manifest documents.
	ManifestSuffix = "Manifest.json"

	// DataFileSuffix is the extension of CUR report data files.
	DataFileSuffix = ".csv.gz"
)

var (
	// assemblyIDPattern matches the timestamped assembly folders AWS
	// creates for versioned CUR, e.g. 20240115T120000Z.
	assemblyIDPattern = regexp.MustCompile(`^\d{8}T\d{6}Z$`)

	// billingPeriodPattern matches billing period folders, e.g.
	// 20240101-20240201.
	billingPeriodPattern = regexp.MustCompile(`^\d{8}-\d{8}$`)
)

// IsAssemblyManifest reports whether key is a Manifest.json inside a
// timestamped assembly folder:
//
//	<prefix>/YYYYMMDD-YYYYMMDD/YYYYMMDDTHHMMSSZ/<report-name>-Manifest.json
//
// A top-level manifest directly under the billing period folder does not
// match. AWS rewrites the top-level manifest on every report run, while the
// assembly copy is immutable once written.
func IsAssemblyManifest(key string) bool {
	if !strings.HasSuffix(key, ManifestSuffix) {
		return false
	}
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return false
	}
	return assemblyIDPattern.MatchString(parts[len(parts)-2])
}

// IsAssemblyDataFile reports whether key is a CSV data file inside a
// timestamped assembly folder.
func IsAssemblyDataFile(key string) bool {
	if !strings.HasSuffix(key, DataFileSuffix) {
		return false
	}
	parts := strings.Split(key, "/")
	if len(parts) < 3 {
		return false
	}
	return assemblyIDPattern.MatchString(parts[len(parts)-2])
}

// IsAssemblyID reports whether segment is a timestamped assembly folder name.
func IsAssemblyID(segment string) bool {
	return assemblyIDPattern.MatchString(segment)
}

// IsBillingPeriod reports whether segment is a billing period folder name.
func IsBillingPeriod(segment string) bool {
	return billingPeriodPattern.MatchString(segment)
}

// Assembly identifies one snapshot attempt of a billing period's report.
type Assembly struct {
	BillingPeriod string
	AssemblyID    string
	// FolderPath is the key prefix of the assembly folder, without a
	// trailing slash.
	FolderPath string
}

// ParseAssembly scans key left to right for the first billing period segment
// and treats the segment after it as the assembly ID. ok is false when the
// key carries no billing period, or when the billing period is the final
// segment.
func ParseAssembly(key string) (assembly Assembly, ok bool) {
	parts := strings.Split(key, "/")
	for i, part := range parts {
		if !billingPeriodPattern.MatchString(part) {
			continue
		}
		if i+1 >= len(parts) {
			return Assembly{}, false
		}
		return Assembly{
			BillingPeriod: part,
			AssemblyID:    parts[i+1],
			FolderPath:    strings.Join(parts[:i+2], "/"),
		}, true
	}
	return Assembly{}, false
}
