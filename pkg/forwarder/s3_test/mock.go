package s3_test

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
)

func NewMockS3() *MockS3 {
	return &MockS3{
		buckets:      map[string]map[string][]byte{},
		FailCopyKeys: map[string]bool{},
	}
}

// MockS3 mimics an S3 blob store for testing.
type MockS3 struct {
	sync.RWMutex
	buckets map[string]map[string][]byte
	s3iface.S3API

	// CopyCalls counts CopyObject invocations, including failed ones.
	CopyCalls int
	// FailCopyKeys makes CopyObject fail for the given source keys.
	FailCopyKeys map[string]bool
	// PageSize, when positive, overrides MaxKeys for paged listings.
	PageSize int
}

func (m *MockS3) NewBucket(name string) {
	m.Lock()
	defer m.Unlock()
	m.buckets[name] = map[string][]byte{}
}

// Keys returns the sorted keys stored in a bucket.
func (m *MockS3) Keys(bucket string) []string {
	m.RLock()
	defer m.RUnlock()
	var keys []string
	for key := range m.buckets[bucket] {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	return keys
}

func (m *MockS3) PutObject(in *s3.PutObjectInput) (*s3.PutObjectOutput, error) {
	data, err := ioutil.ReadAll(in.Body)
	if err != nil {
		return nil, err
	}

	m.Lock()
	defer m.Unlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		bucket = map[string][]byte{}
		m.buckets[*in.Bucket] = bucket
	}

	bucket[*in.Key] = data
	return &s3.PutObjectOutput{}, nil
}

func (m *MockS3) GetObject(in *s3.GetObjectInput) (*s3.GetObjectOutput, error) {
	m.RLock()
	defer m.RUnlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		return nil, fmt.Errorf("bucket '%s' does not exist", *in.Bucket)
	}

	data, ok := bucket[*in.Key]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, fmt.Sprintf("key '%s' does not exist in bucket '%s'", *in.Key, *in.Bucket), nil)
	}

	return &s3.GetObjectOutput{
		Body: ioutil.NopCloser(bytes.NewBuffer(data)),
	}, nil
}

func (m *MockS3) HeadObject(in *s3.HeadObjectInput) (*s3.HeadObjectOutput, error) {
	m.RLock()
	defer m.RUnlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		return nil, awserr.New("NotFound", fmt.Sprintf("bucket '%s' does not exist", *in.Bucket), nil)
	}
	if _, ok := bucket[*in.Key]; !ok {
		return nil, awserr.New("NotFound", fmt.Sprintf("key '%s' does not exist in bucket '%s'", *in.Key, *in.Bucket), nil)
	}
	return &s3.HeadObjectOutput{}, nil
}

func (m *MockS3) CopyObject(in *s3.CopyObjectInput) (*s3.CopyObjectOutput, error) {
	m.Lock()
	defer m.Unlock()
	m.CopyCalls++

	source := aws.StringValue(in.CopySource)
	idx := strings.Index(source, "/")
	if idx < 0 {
		return nil, fmt.Errorf("malformed copy source '%s'", source)
	}
	srcBucketName, srcKey := source[:idx], source[idx+1:]

	if m.FailCopyKeys[srcKey] {
		return nil, fmt.Errorf("simulated copy failure for key '%s'", srcKey)
	}

	srcBucket, ok := m.buckets[srcBucketName]
	if !ok {
		return nil, fmt.Errorf("bucket '%s' does not exist", srcBucketName)
	}
	data, ok := srcBucket[srcKey]
	if !ok {
		return nil, awserr.New(s3.ErrCodeNoSuchKey, fmt.Sprintf("key '%s' does not exist in bucket '%s'", srcKey, srcBucketName), nil)
	}

	destBucket, ok := m.buckets[*in.Bucket]
	if !ok {
		destBucket = map[string][]byte{}
		m.buckets[*in.Bucket] = destBucket
	}
	destBucket[*in.Key] = data
	return &s3.CopyObjectOutput{}, nil
}

func (m *MockS3) ListObjectsV2(in *s3.ListObjectsV2Input) (*s3.ListObjectsV2Output, error) {
	m.RLock()
	defer m.RUnlock()

	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		return nil, fmt.Errorf("bucket '%s' does not exist", *in.Bucket)
	}

	var keys []string
	for key := range bucket {
		if strings.HasPrefix(key, aws.StringValue(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	if max := aws.Int64Value(in.MaxKeys); max > 0 && int64(len(keys)) > max {
		keys = keys[:max]
	}

	var objects []*s3.Object
	for _, key := range keys {
		objKey := key
		objects = append(objects, &s3.Object{Key: &objKey})
	}
	out := new(s3.ListObjectsV2Output)
	out.SetContents(objects)

	return out, nil
}

func (m *MockS3) ListObjectsV2Pages(in *s3.ListObjectsV2Input, fn func(*s3.ListObjectsV2Output, bool) bool) error {
	m.RLock()
	bucket, ok := m.buckets[*in.Bucket]
	if !ok {
		m.RUnlock()
		return fmt.Errorf("bucket '%s' does not exist", *in.Bucket)
	}

	var keys []string
	for key := range bucket {
		if strings.HasPrefix(key, aws.StringValue(in.Prefix)) {
			keys = append(keys, key)
		}
	}
	m.RUnlock()
	sort.Strings(keys)

	if len(keys) == 0 {
		fn(new(s3.ListObjectsV2Output), true)
		return nil
	}

	pageSize := m.PageSize
	if pageSize <= 0 {
		pageSize = int(aws.Int64Value(in.MaxKeys))
	}
	if pageSize <= 0 {
		pageSize = len(keys)
	}

	for start := 0; start < len(keys); start += pageSize {
		end := start + pageSize
		if end > len(keys) {
			end = len(keys)
		}
		var objects []*s3.Object
		for _, key := range keys[start:end] {
			objKey := key
			objects = append(objects, &s3.Object{Key: &objKey})
		}
		out := new(s3.ListObjectsV2Output)
		out.SetContents(objects)
		if !fn(out, end == len(keys)) {
			break
		}
	}
	return nil
}
