package forwarder

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

// ReplicationError wraps a failed copy or probe against S3. The key names
// the object the operation was acting on.
type ReplicationError struct {
	Bucket string
	Key    string
	Err    error
}

func (e *ReplicationError) Error() string {
	return fmt.Sprintf("replicating s3://%s/%s: %v", e.Bucket, e.Key, e.Err)
}

// CopyObject performs a server-side copy. The destination account is granted
// full control so cross-account copies stay readable by the bucket owner
// regardless of the source object's ACL. Repeated copies of the same key
// simply overwrite; callers needing copy-if-absent probe with ObjectExists
// first. No retry is attempted.
func CopyObject(client s3iface.S3API, srcBucket, srcKey, destBucket, destKey string) error {
	_, err := client.CopyObject(&s3.CopyObjectInput{
		CopySource: aws.String(srcBucket + "/" + srcKey),
		Bucket:     aws.String(destBucket),
		Key:        aws.String(destKey),
		ACL:        aws.String(s3.ObjectCannedACLBucketOwnerFullControl),
	})
	if err != nil {
		return &ReplicationError{Bucket: srcBucket, Key: srcKey, Err: err}
	}
	return nil
}

// ObjectExists probes for key with a HEAD request. Not-found error codes
// report false with no error; anything else surfaces so the caller can
// decide whether to copy anyway.
func ObjectExists(client s3iface.S3API, bucket, key string) (bool, error) {
	_, err := client.HeadObject(&s3.HeadObjectInput{
		Bucket: aws.String(bucket),
		Key:    aws.String(key),
	})
	if err == nil {
		return true, nil
	}
	if aerr, ok := err.(awserr.Error); ok {
		switch aerr.Code() {
		case "NotFound", s3.ErrCodeNoSuchKey:
			return false, nil
		}
	}
	return false, &ReplicationError{Bucket: bucket, Key: key, Err: err}
}
