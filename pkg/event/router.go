package event

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"

	"github.com/sirupsen/logrus"

	"github.com/kube-reporting/cur-forwarder/pkg/forwarder"
)

// s3Event is the shape shared by direct S3 notifications and the inner
// payload of SNS-wrapped notifications.
type s3Event struct {
	Records []s3Record `json:"Records"`
}

// s3Record is one entry of an inbound notification. Exactly one of SNS or
// S3 is set: SNS-fed accounts deliver the S3 event wrapped in an SNS
// envelope, everything else arrives direct.
type s3Record struct {
	SNS *snsEntity `json:"Sns,omitempty"`
	S3  *s3Entity  `json:"s3,omitempty"`
}

type snsEntity struct {
	Message string `json:"Message"`
}

type s3Entity struct {
	Bucket struct {
		Name string `json:"name"`
	} `json:"bucket"`
	Object struct {
		// Key is percent-encoded on the wire and decoded before use.
		Key string `json:"key"`
	} `json:"object"`
}

// BatchResult reports the outcome of one inbound event document. StatusCode
// is 200 when every record succeeded and 207 when any errored; failed
// records are never silently dropped.
type BatchResult struct {
	StatusCode   int                      `json:"statusCode"`
	Processed    int                      `json:"processed"`
	Errors       int                      `json:"errors"`
	Files        []forwarder.RecordResult `json:"files"`
	ErrorDetails []string                 `json:"error_details,omitempty"`
}

// Router unwraps inbound notifications and drives the forwarding pipeline
// once per referenced object.
type Router struct {
	logger    logrus.FieldLogger
	forwarder *forwarder.Forwarder
}

func NewRouter(logger logrus.FieldLogger, fwd *forwarder.Forwarder) *Router {
	return &Router{
		logger:    logger.WithField("component", "eventRouter"),
		forwarder: fwd,
	}
}

// HandleEvent processes a raw notification document, direct or SNS-wrapped.
// A failed record never interrupts its siblings; each record's outcome is
// recorded independently.
func (rt *Router) HandleEvent(raw []byte) BatchResult {
	var result BatchResult

	var ev s3Event
	if err := json.Unmarshal(raw, &ev); err != nil {
		rt.logger.WithError(err).Errorf("unable to parse event document")
		result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("error parsing event document: %v", err))
	}

	for _, record := range ev.Records {
		files, err := rt.handleRecord(record)
		result.Files = append(result.Files, files...)
		if err != nil {
			rt.logger.WithError(err).Errorf("error processing record")
			result.ErrorDetails = append(result.ErrorDetails, fmt.Sprintf("error processing record: %v", err))
		}
	}

	result.Processed = len(result.Files)
	result.Errors = len(result.ErrorDetails)
	if result.Errors == 0 {
		result.StatusCode = http.StatusOK
	} else {
		result.StatusCode = http.StatusMultiStatus
	}

	recordsProcessedCounter.Add(float64(result.Processed))
	recordsErroredCounter.Add(float64(result.Errors))
	for _, f := range result.Files {
		manifestDataFilesCopiedCounter.Add(float64(f.CopiedDataFiles))
	}

	rt.logger.Infof("completed processing: processed=%d errors=%d", result.Processed, result.Errors)
	return result
}

// handleRecord processes one top-level record, unwrapping an SNS envelope
// if present. For SNS records the inner records processed before a failure
// are still returned alongside the error.
func (rt *Router) handleRecord(record s3Record) ([]forwarder.RecordResult, error) {
	if record.SNS != nil {
		rt.logger.Debugf("processing SNS-wrapped S3 event")
		var inner s3Event
		if err := json.Unmarshal([]byte(record.SNS.Message), &inner); err != nil {
			return nil, fmt.Errorf("parsing SNS message: %v", err)
		}
		var files []forwarder.RecordResult
		for _, innerRecord := range inner.Records {
			if innerRecord.S3 == nil {
				continue
			}
			result, err := rt.process(innerRecord.S3)
			if err != nil {
				return files, err
			}
			files = append(files, result)
		}
		return files, nil
	}

	if record.S3 == nil {
		return nil, errors.New("record carries neither an s3 entity nor an SNS envelope")
	}
	rt.logger.Debugf("processing direct S3 event")
	result, err := rt.process(record.S3)
	if err != nil {
		return nil, err
	}
	return []forwarder.RecordResult{result}, nil
}

func (rt *Router) process(entity *s3Entity) (forwarder.RecordResult, error) {
	key, err := url.QueryUnescape(entity.Object.Key)
	if err != nil {
		return forwarder.RecordResult{}, fmt.Errorf("decoding object key %q: %v", entity.Object.Key, err)
	}
	return rt.forwarder.ProcessRecord(entity.Bucket.Name, key)
}
