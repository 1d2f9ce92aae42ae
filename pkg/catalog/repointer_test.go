package catalog_test

import (
	"io/ioutil"
	"testing"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kube-reporting/cur-forwarder/pkg/catalog"
	gluemock "github.com/kube-reporting/cur-forwarder/pkg/catalog/glue_test"
)

const (
	testDatabase = "cur_database"
	testTable    = "acct_prod"
	testPeriod   = "20240101-20240201"
	testLocation = "s3://cur-dest/acct-prod/20240101-20240201/20240115T120000Z/"
)

func testLogger() logrus.FieldLogger {
	logger := logrus.New()
	logger.SetOutput(ioutil.Discard)
	return logger
}

func newTableData() *glue.TableData {
	return &glue.TableData{
		Name: aws.String(testTable),
		StorageDescriptor: &glue.StorageDescriptor{
			Location:     aws.String("s3://cur-dest/acct-prod/"),
			InputFormat:  aws.String("org.apache.hadoop.mapred.TextInputFormat"),
			OutputFormat: aws.String("org.apache.hadoop.hive.ql.io.HiveIgnoreKeyTextOutputFormat"),
			Columns: []*glue.Column{
				{Name: aws.String("lineitem_usagestartdate"), Type: aws.String("string")},
			},
		},
	}
}

func TestRepointCreatesMissingPartition(t *testing.T) {
	mock := gluemock.NewMockGlue()
	mock.Tables[testTable] = newTableData()

	repointer := catalog.NewRepointer(testLogger(), mock, testDatabase)
	require.NoError(t, repointer.Repoint(testTable, testPeriod, testLocation))

	partition, ok := mock.Partitions[testTable+"/"+testPeriod]
	require.True(t, ok, "partition should have been created")
	assert.Equal(t, []*string{aws.String(testPeriod)}, partition.Values)
	assert.Equal(t, testLocation, aws.StringValue(partition.StorageDescriptor.Location))

	// the descriptor is the table's template with only Location substituted
	assert.Equal(t, "org.apache.hadoop.mapred.TextInputFormat", aws.StringValue(partition.StorageDescriptor.InputFormat))
	require.Len(t, partition.StorageDescriptor.Columns, 1)

	// the table's own descriptor must not be touched
	assert.Equal(t, "s3://cur-dest/acct-prod/", aws.StringValue(mock.Tables[testTable].StorageDescriptor.Location))
}

func TestRepointOverwritesExistingPartition(t *testing.T) {
	mock := gluemock.NewMockGlue()
	mock.Tables[testTable] = newTableData()

	repointer := catalog.NewRepointer(testLogger(), mock, testDatabase)
	require.NoError(t, repointer.Repoint(testTable, testPeriod, testLocation))

	newerLocation := "s3://cur-dest/acct-prod/20240101-20240201/20240116T030000Z/"
	require.NoError(t, repointer.Repoint(testTable, testPeriod, newerLocation))

	partition := mock.Partitions[testTable+"/"+testPeriod]
	assert.Equal(t, newerLocation, aws.StringValue(partition.StorageDescriptor.Location))
	assert.Equal(t, "org.apache.hadoop.mapred.TextInputFormat", aws.StringValue(partition.StorageDescriptor.InputFormat))
}

// only EntityNotFoundException may trigger the create branch; any other
// update error propagates
func TestRepointPropagatesNonNotFoundUpdateErrors(t *testing.T) {
	mock := gluemock.NewMockGlue()
	mock.Tables[testTable] = newTableData()
	mock.UpdateErr = awserr.New("AccessDeniedException", "not authorized", nil)

	repointer := catalog.NewRepointer(testLogger(), mock, testDatabase)
	err := repointer.Repoint(testTable, testPeriod, testLocation)
	require.Error(t, err)
	assert.Empty(t, mock.Partitions, "no create attempt should have been made")
}

func TestRepointFailsWhenTableIsMissing(t *testing.T) {
	mock := gluemock.NewMockGlue()

	repointer := catalog.NewRepointer(testLogger(), mock, testDatabase)
	assert.Error(t, repointer.Repoint("missing_table", testPeriod, testLocation))
}
