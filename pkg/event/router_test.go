package event_test

import (
	"bytes"
	"fmt"
	"io/ioutil"
	"net/http"
	"strconv"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-reporting/cur-forwarder/pkg/cur"
	"github.com/kube-reporting/cur-forwarder/pkg/event"
	"github.com/kube-reporting/cur-forwarder/pkg/forwarder"
	s3mock "github.com/kube-reporting/cur-forwarder/pkg/forwarder/s3_test"
)

const (
	sourceBucket = "billing-src"
	destBucket   = "cur-dest"
	dataFileKey  = "20240101-20240201/20240115T120000Z/part-1.csv.gz"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func newTestRouter(t *testing.T, mock *s3mock.MockS3) *event.Router {
	fwd, err := forwarder.New(testLogger(), mock, forwarder.Config{
		DestinationBucket: destBucket,
		PrefixMapping: map[string]cur.PrefixRule{
			sourceBucket: {DestinationPrefix: "acct/"},
		},
	}, nil)
	require.NoError(t, err)
	return event.NewRouter(testLogger(), fwd)
}

func newTestBuckets(t *testing.T, keys ...string) *s3mock.MockS3 {
	mock := s3mock.NewMockS3()
	mock.NewBucket(sourceBucket)
	mock.NewBucket(destBucket)
	for _, key := range keys {
		_, err := mock.PutObject(&s3.PutObjectInput{
			Bucket: aws.String(sourceBucket),
			Key:    aws.String(key),
			Body:   bytes.NewReader([]byte("data")),
		})
		require.NoError(t, err)
	}
	return mock
}

func directEvent(bucket, key string) string {
	return fmt.Sprintf(`{"Records":[{"s3":{"bucket":{"name":%q},"object":{"key":%q}}}]}`, bucket, key)
}

func snsEvent(bucket, key string) string {
	inner := directEvent(bucket, key)
	return fmt.Sprintf(`{"Records":[{"Sns":{"Message":%s}}]}`, strconv.Quote(inner))
}

func TestHandleDirectEvent(t *testing.T) {
	mock := newTestBuckets(t, dataFileKey)
	router := newTestRouter(t, mock)

	result := router.HandleEvent([]byte(directEvent(sourceBucket, dataFileKey)))

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 0, result.Errors)
	require.Len(t, result.Files, 1)
	assert.Equal(t, "s3://cur-dest/acct/"+dataFileKey, result.Files[0].Destination)
	assert.Empty(t, result.ErrorDetails)
}

// SNS-wrapped and direct notifications for the same object produce
// identical downstream results
func TestHandleSNSWrappedEvent(t *testing.T) {
	directMock := newTestBuckets(t, dataFileKey)
	directResult := newTestRouter(t, directMock).HandleEvent([]byte(directEvent(sourceBucket, dataFileKey)))

	snsMock := newTestBuckets(t, dataFileKey)
	snsResult := newTestRouter(t, snsMock).HandleEvent([]byte(snsEvent(sourceBucket, dataFileKey)))

	assert.Equal(t, directResult.Files, snsResult.Files)
	assert.Equal(t, directResult.StatusCode, snsResult.StatusCode)
	assert.Equal(t, directMock.Keys(destBucket), snsMock.Keys(destBucket))
}

func TestHandleEventDecodesObjectKeys(t *testing.T) {
	encoded := "20240101-20240201/20240115T120000Z/cost%3Dreport+1.csv.gz"
	decoded := "20240101-20240201/20240115T120000Z/cost=report 1.csv.gz"
	mock := newTestBuckets(t, decoded)
	router := newTestRouter(t, mock)

	result := router.HandleEvent([]byte(directEvent(sourceBucket, encoded)))

	assert.Equal(t, http.StatusOK, result.StatusCode)
	assert.Equal(t, []string{"acct/" + decoded}, mock.Keys(destBucket))
}

// one failing record never interrupts its siblings, and the batch reports
// both outcomes
func TestHandleEventPartialFailure(t *testing.T) {
	mock := newTestBuckets(t, dataFileKey)
	router := newTestRouter(t, mock)

	doc := fmt.Sprintf(`{"Records":[
		{"Sns":{"Message":"{not json"}},
		{"s3":{"bucket":{"name":%q},"object":{"key":%q}}}
	]}`, sourceBucket, dataFileKey)

	result := router.HandleEvent([]byte(doc))

	assert.Equal(t, http.StatusMultiStatus, result.StatusCode)
	assert.Equal(t, 1, result.Processed)
	assert.Equal(t, 1, result.Errors)
	require.Len(t, result.ErrorDetails, 1)
	assert.Contains(t, result.ErrorDetails[0], "SNS message")
	assert.Equal(t, []string{"acct/" + dataFileKey}, mock.Keys(destBucket))
}

func TestHandleEventMalformedDocument(t *testing.T) {
	router := newTestRouter(t, newTestBuckets(t))

	result := router.HandleEvent([]byte("not an event"))

	assert.Equal(t, http.StatusMultiStatus, result.StatusCode)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Errors)
}

// a record for a missing source object errors that record only
func TestHandleEventMissingObject(t *testing.T) {
	mock := newTestBuckets(t)
	router := newTestRouter(t, mock)

	result := router.HandleEvent([]byte(directEvent(sourceBucket, dataFileKey)))

	assert.Equal(t, http.StatusMultiStatus, result.StatusCode)
	assert.Equal(t, 0, result.Processed)
	assert.Equal(t, 1, result.Errors)
}
