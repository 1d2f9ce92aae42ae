package catalog

import (
	"fmt"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
	"github.com/sirupsen/logrus"
)

// Repointer creates or updates Glue partitions so each billing period points
// at its latest complete snapshot folder. One Repointer is built per process
// for the region the catalog lives in and injected where needed.
type Repointer struct {
	logger   logrus.FieldLogger
	glue     glueiface.GlueAPI
	database string
}

func NewRepointer(logger logrus.FieldLogger, glueAPI glueiface.GlueAPI, database string) *Repointer {
	return &Repointer{
		logger:   logger.WithField("component", "repointer"),
		glue:     glueAPI,
		database: database,
	}
}

// Repoint points the billingPeriod partition of tableName at location. The
// table's own storage descriptor serves as the template, with only Location
// substituted, so the partition inherits the table's serde and columns.
//
// Glue has no atomic upsert: the update is attempted first and the create
// branch runs only on EntityNotFoundException. Any other update error
// propagates; it must never be treated as "must create". Concurrent
// repoints for the same billing period race, last write wins in the
// catalog.
func (r *Repointer) Repoint(tableName, billingPeriod, location string) error {
	tableOut, err := r.glue.GetTable(&glue.GetTableInput{
		DatabaseName: aws.String(r.database),
		Name:         aws.String(tableName),
	})
	if err != nil {
		return fmt.Errorf("getting table %s.%s: %v", r.database, tableName, err)
	}

	// shallow copy so the substitution never aliases the table's descriptor
	sd := *tableOut.Table.StorageDescriptor
	sd.Location = aws.String(location)

	partitionInput := &glue.PartitionInput{
		Values:            []*string{aws.String(billingPeriod)},
		StorageDescriptor: &sd,
	}

	_, err = r.glue.UpdatePartition(&glue.UpdatePartitionInput{
		DatabaseName:       aws.String(r.database),
		TableName:          aws.String(tableName),
		PartitionValueList: []*string{aws.String(billingPeriod)},
		PartitionInput:     partitionInput,
	})
	if err == nil {
		r.logger.Infof("updated partition billing_period=%s -> %s", billingPeriod, location)
		return nil
	}
	if aerr, ok := err.(awserr.Error); !ok || aerr.Code() != glue.ErrCodeEntityNotFoundException {
		return fmt.Errorf("updating partition %s of %s.%s: %v", billingPeriod, r.database, tableName, err)
	}

	_, err = r.glue.CreatePartition(&glue.CreatePartitionInput{
		DatabaseName:   aws.String(r.database),
		TableName:      aws.String(tableName),
		PartitionInput: partitionInput,
	})
	if err != nil {
		return fmt.Errorf("creating partition %s of %s.%s: %v", billingPeriod, r.database, tableName, err)
	}
	r.logger.Infof("created partition billing_period=%s -> %s", billingPeriod, location)
	return nil
}
