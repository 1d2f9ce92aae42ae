package forwarder

import (
	"encoding/json"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"

	"github.com/kube-reporting/cur-forwarder/pkg/cur"
)

// expandManifest reads a CUR manifest from the source bucket and ensures
// every data file it references exists at the destination. Files already
// present are verified and skipped, so manifest-driven bulk copies and
// event-driven per-file copies can cover the same objects without redundant
// work. A single file's failure does not abort the rest. An unreadable or
// malformed manifest yields an empty result and a warning, never an error:
// the manifest itself is deliberately not forwarded.
//
// Returns the destination keys successfully copied or verified present.
func (f *Forwarder) expandManifest(logger logrus.FieldLogger, sourceBucket, manifestKey string, rule cur.PrefixRule) []string {
	manifest, err := fetchManifest(f.s3, sourceBucket, manifestKey)
	if err != nil {
		logger.WithError(err).Warnf("failed to read manifest s3://%s/%s", sourceBucket, manifestKey)
		return nil
	}

	if len(manifest.ReportKeys) == 0 {
		logger.Infof("no reportKeys found in manifest")
		return nil
	}
	logger.Infof("manifest references %d data file(s), copying to destination", len(manifest.ReportKeys))

	var copied []string
	for _, reportKey := range manifest.ReportKeys {
		destKey := rule.DestinationKey(reportKey)

		exists, err := ObjectExists(f.s3, f.cfg.DestinationBucket, destKey)
		if err != nil {
			// probe failures are not fatal, attempt the copy anyway
			logger.WithError(err).Warnf("existence probe failed for %s", destKey)
		}
		if exists {
			logger.Debugf("data file already exists, skipping: %s", destKey)
			copied = append(copied, destKey)
			continue
		}

		if err := CopyObject(f.s3, sourceBucket, reportKey, f.cfg.DestinationBucket, destKey); err != nil {
			logger.WithError(err).Errorf("failed to copy data file %s", reportKey)
			continue
		}
		copied = append(copied, destKey)
	}

	logger.Infof("copied/verified %d/%d data file(s) from manifest", len(copied), len(manifest.ReportKeys))
	return copied
}

// fetchManifest retrieves and decodes a manifest from the given bucket and key.
func fetchManifest(client s3iface.S3API, bucket, key string) (*cur.Manifest, error) {
	obj, err := client.GetObject(&s3.GetObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err != nil {
		return nil, err
	}
	defer obj.Body.Close()

	var manifest cur.Manifest
	if err := json.NewDecoder(obj.Body).Decode(&manifest); err != nil {
		return nil, err
	}
	return &manifest, nil
}
