package backfill

import (
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/service/s3"
	"github.com/aws/aws-sdk-go/service/s3/s3iface"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/kube-reporting/cur-forwarder/pkg/catalog"
	"github.com/kube-reporting/cur-forwarder/pkg/cur"
	"github.com/kube-reporting/cur-forwarder/pkg/forwarder"
)

// maxSweepKeys is the page size used when enumerating existing report data.
const maxSweepKeys = 1000

// Config declares what a sweep covers: the bucket holding forwarded report
// data, and the prefix-to-table bindings to sweep, one table per prefix.
type Config struct {
	Bucket        string
	TableBindings catalog.TableBindings
}

// Sweeper scans existing CUR data and points each billing period's partition
// at its latest snapshot. It is the one-time (or scheduled) counterpart of
// the event-driven forwarder: after a sweep, inbound events keep partitions
// current.
type Sweeper struct {
	logger    logrus.FieldLogger
	s3        s3iface.S3API
	repointer forwarder.Repointer
	cfg       Config
}

func NewSweeper(logger logrus.FieldLogger, s3API s3iface.S3API, repointer forwarder.Repointer, cfg Config) (*Sweeper, error) {
	if cfg.Bucket == "" {
		return nil, errors.New("sweep bucket is required")
	}
	if repointer == nil {
		return nil, errors.New("a repointer is required")
	}
	return &Sweeper{
		logger:    logger.WithField("component", "backfillSweeper"),
		s3:        s3API,
		repointer: repointer,
		cfg:       cfg,
	}, nil
}

// Run sweeps every bound prefix. Prefixes sweep concurrently; partition
// writes within one prefix happen in billing period order.
func (s *Sweeper) Run() error {
	var g errgroup.Group
	for _, binding := range s.cfg.TableBindings {
		binding := binding
		g.Go(func() error {
			return s.sweepPrefix(binding.Prefix, binding.Table)
		})
	}
	return g.Wait()
}

// snapshot is one discovered partition candidate: a timestamped assembly
// folder, or the billing period folder itself for overwrite-mode CUR.
type snapshot struct {
	// label is the assembly ID, or "flat" for overwrite-mode data
	label string
	// path is the folder key prefix, without a trailing slash
	path string
}

func (s *Sweeper) sweepPrefix(prefix, tableName string) error {
	logger := s.logger.WithFields(logrus.Fields{"prefix": prefix, "table": tableName})

	partitions, err := s.findPartitions(prefix)
	if err != nil {
		return err
	}
	logger.Infof("found %d billing periods", len(partitions))

	periods := make([]string, 0, len(partitions))
	for period := range partitions {
		periods = append(periods, period)
	}
	sort.Strings(periods)

	for _, period := range periods {
		snap := partitions[period]
		location := fmt.Sprintf("s3://%s/%s/", s.cfg.Bucket, snap.path)
		if err := s.repointer.Repoint(tableName, period, location); err != nil {
			return fmt.Errorf("repointing partition %s of table %s: %v", period, tableName, err)
		}
		logger.Infof("%s -> %s", period, snap.label)
	}
	return nil
}

// findPartitions enumerates data files under prefix and derives the
// partition location per billing period. Versioned CUR (timestamped
// assembly folders) and overwrite-mode CUR (data files directly under the
// billing period folder) are both handled; for versioned data the
// lexically-latest assembly wins, and versioned beats flat when both exist.
// Only data files count, so an assembly holding nothing but its manifest is
// never selected.
func (s *Sweeper) findPartitions(prefix string) (map[string]snapshot, error) {
	// billing period -> assembly ID -> assembly folder path
	versioned := map[string]map[string]string{}
	// billing period -> billing period folder path
	flat := map[string]string{}

	err := s.s3.ListObjectsV2Pages(&s3.ListObjectsV2Input{
		Bucket:  aws.String(s.cfg.Bucket),
		Prefix:  aws.String(prefix),
		MaxKeys: aws.Int64(maxSweepKeys),
	}, func(out *s3.ListObjectsV2Output, lastPage bool) bool {
		for _, obj := range out.Contents {
			key := aws.StringValue(obj.Key)
			if !strings.HasSuffix(key, cur.DataFileSuffix) {
				continue
			}
			parts := strings.Split(key, "/")
			for i, part := range parts {
				if !cur.IsBillingPeriod(part) {
					continue
				}
				if i+1 < len(parts)-1 && cur.IsAssemblyID(parts[i+1]) {
					assemblies, ok := versioned[part]
					if !ok {
						assemblies = map[string]string{}
						versioned[part] = assemblies
					}
					assemblies[parts[i+1]] = strings.Join(parts[:i+2], "/")
				} else {
					flat[part] = strings.Join(parts[:i+1], "/")
				}
				break
			}
		}
		return true
	})
	if err != nil {
		return nil, fmt.Errorf("listing s3://%s/%s: %v", s.cfg.Bucket, prefix, err)
	}

	result := map[string]snapshot{}
	for period, path := range flat {
		result[period] = snapshot{label: "flat", path: path}
	}
	for period, assemblies := range versioned {
		ids := make([]string, 0, len(assemblies))
		for id := range assemblies {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		latest := ids[len(ids)-1]
		result[period] = snapshot{label: latest, path: assemblies[latest]}
	}
	return result, nil
}
