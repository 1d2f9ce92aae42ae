package forwarder

import (
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"

	"github.com/kube-reporting/cur-forwarder/pkg/catalog"
	"github.com/kube-reporting/cur-forwarder/pkg/cur"
)

// Repointer points a catalog partition for a billing period at a snapshot
// location. Implemented by catalog.Repointer; tests substitute a fake.
type Repointer interface {
	Repoint(tableName, billingPeriod, location string) error
}

// Config is the declarative configuration the forwarder runs with. It is
// loaded once at startup and passed in explicitly; the forwarder never
// reads the process environment.
type Config struct {
	// DestinationBucket receives every forwarded object.
	DestinationBucket string
	// PrefixMapping holds the key rewrite rule per source bucket.
	PrefixMapping map[string]cur.PrefixRule
	// TableBindings resolve destination keys to catalog table names.
	TableBindings catalog.TableBindings
}

// Forwarder copies CUR objects between buckets and keeps catalog partitions
// pointed at complete snapshots. Each ProcessRecord call is independent; the
// forwarder holds no state across calls beyond its injected clients.
type Forwarder struct {
	logger    logrus.FieldLogger
	s3        s3iface.S3API
	cfg       Config
	repointer Repointer
}

// New returns a Forwarder. repointer may be nil, which disables partition
// updates entirely (forwarding-only mode).
func New(logger logrus.FieldLogger, s3API s3iface.S3API, cfg Config, repointer Repointer) (*Forwarder, error) {
	if cfg.DestinationBucket == "" {
		return nil, errors.New("destination bucket is required")
	}
	return &Forwarder{
		logger:    logger.WithField("component", "forwarder"),
		s3:        s3API,
		cfg:       cfg,
		repointer: repointer,
	}, nil
}

// RecordResult describes the outcome of forwarding one object.
type RecordResult struct {
	Source      string `json:"source"`
	Destination string `json:"destination"`
	// CopiedDataFiles is the number of data files copied or verified
	// present during manifest expansion, zero for plain copies.
	CopiedDataFiles int `json:"copied_data_files,omitempty"`
}

// ProcessRecord handles a single object notification: it maps the key,
// copies the object (or expands it, when it is an assembly manifest), then
// makes a best-effort attempt to repoint the billing period's partition.
//
// An assembly manifest is never copied to the destination itself: raw JSON
// inside the table's data folder would break Athena's CSV parsing. Its
// referenced data files are copied instead.
//
// A partition update failure is logged and swallowed: the copy already
// succeeded, which is the record's primary duty.
func (f *Forwarder) ProcessRecord(sourceBucket, sourceKey string) (RecordResult, error) {
	logger := f.logger.WithFields(logrus.Fields{
		"sourceBucket": sourceBucket,
		"sourceKey":    sourceKey,
	})

	rule, ok := f.cfg.PrefixMapping[sourceBucket]
	if !ok {
		logger.Warnf("no prefix mapping found for bucket %s, using defaults", sourceBucket)
	}
	destKey := rule.DestinationKey(sourceKey)

	result := RecordResult{
		Source:      fmt.Sprintf("s3://%s/%s", sourceBucket, sourceKey),
		Destination: fmt.Sprintf("s3://%s/%s", f.cfg.DestinationBucket, destKey),
	}

	if cur.IsAssemblyManifest(destKey) {
		logger.Infof("assembly manifest detected, copying data files (not the manifest): %s", destKey)
		copied := f.expandManifest(logger, sourceBucket, sourceKey, rule)
		result.CopiedDataFiles = len(copied)
	} else {
		logger.Infof("copying to: s3://%s/%s", f.cfg.DestinationBucket, destKey)
		if err := CopyObject(f.s3, sourceBucket, sourceKey, f.cfg.DestinationBucket, destKey); err != nil {
			return result, err
		}
	}

	// Partition updates trigger on manifest events (SNS-fed accounts) and
	// on data file events (S3-event-fed accounts). The key is used only for
	// path parsing, so any key in the assembly folder works.
	if f.repointer != nil && (cur.IsAssemblyManifest(destKey) || cur.IsAssemblyDataFile(destKey)) {
		if err := f.updatePartition(logger, destKey); err != nil {
			logger.WithError(err).Errorf("failed to update partition for %s", destKey)
		}
	}

	return result, nil
}

// updatePartition resolves the catalog table for destKey, parses the
// assembly folder out of the key, and repoints the billing period's
// partition if the completeness gate passes. The gate runs now, not earlier:
// data files may still be syncing when the manifest lands.
func (f *Forwarder) updatePartition(logger logrus.FieldLogger, destKey string) error {
	tableName, ok := f.cfg.TableBindings.Resolve(destKey)
	if !ok {
		logger.Infof("no table binding for key: %s, skipping partition update", destKey)
		return nil
	}

	assembly, ok := cur.ParseAssembly(destKey)
	if !ok {
		logger.Warnf("could not parse billing period from key: %s", destKey)
		return nil
	}

	hasData, err := AssemblyHasData(f.s3, f.cfg.DestinationBucket, assembly.FolderPath)
	if err != nil {
		return err
	}
	if !hasData {
		logger.Infof("no data files in assembly folder %s/, skipping partition update (data may still be syncing)", assembly.FolderPath)
		return nil
	}

	location := fmt.Sprintf("s3://%s/%s/", f.cfg.DestinationBucket, assembly.FolderPath)
	logger.Infof("updating table %q partition billing_period=%q -> %s", tableName, assembly.BillingPeriod, location)
	return f.repointer.Repoint(tableName, assembly.BillingPeriod, location)
}
