package forwarder

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"

	"github.com/kube-reporting/cur-forwarder/pkg/cur"
)

// maxGateKeys bounds the completeness probe. Presence of a single data file
// is enough, so a full listing is never needed.
const maxGateKeys = 20

// AssemblyHasData reports whether at least one data file exists under the
// assembly folder. This closes the race where a manifest is replicated
// before its data files: repointing the partition at that moment would make
// the catalog return zero rows for the billing period. Callers must evaluate
// this at repoint time, never from a cached earlier check.
func AssemblyHasData(client s3iface.S3API, bucket, folderPath string) (bool, error) {
	prefix := strings.TrimSuffix(folderPath, "/") + "/"
	out, err := client.ListObjectsV2(&s3.ListObjectsV2Input{
		Bucket:  aws.String(bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(maxGateKeys),
	})
	if err != nil {
		return false, fmt.Errorf("listing assembly folder s3://%s/%s: %v", bucket, prefix, err)
	}
	for _, obj := range out.Contents {
		if strings.HasSuffix(aws.StringValue(obj.Key), cur.DataFileSuffix) {
			return true, nil
		}
	}
	return false, nil
}
