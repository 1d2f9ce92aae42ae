package glue_test

import (
	"fmt"
	"sync"

	"github.com/aws/aws-sdk-go/aws"
	"github.com/aws/aws-sdk-go/aws/awserr"
	"github.com/aws/aws-sdk-go/service/glue"
	"github.com/aws/aws-sdk-go/service/glue/glueiface"
)

func NewMockGlue() *MockGlue {
	return &MockGlue{
		Tables:     map[string]*glue.TableData{},
		Partitions: map[string]*glue.PartitionInput{},
	}
}

// MockGlue mimics the subset of the Glue catalog used by the repointer.
type MockGlue struct {
	sync.Mutex
	glueiface.GlueAPI

	// Tables indexes table definitions by name.
	Tables map[string]*glue.TableData
	// Partitions indexes partition inputs by "table/billingPeriod".
	Partitions map[string]*glue.PartitionInput
	// UpdateErr, when set, is returned by every UpdatePartition call.
	UpdateErr error
}

func partitionKey(tableName *string, values []*string) string {
	return aws.StringValue(tableName) + "/" + aws.StringValue(values[0])
}

func (m *MockGlue) GetTable(in *glue.GetTableInput) (*glue.GetTableOutput, error) {
	m.Lock()
	defer m.Unlock()

	table, ok := m.Tables[aws.StringValue(in.Name)]
	if !ok {
		return nil, awserr.New(glue.ErrCodeEntityNotFoundException, fmt.Sprintf("table '%s' not found", aws.StringValue(in.Name)), nil)
	}
	return &glue.GetTableOutput{Table: table}, nil
}

func (m *MockGlue) UpdatePartition(in *glue.UpdatePartitionInput) (*glue.UpdatePartitionOutput, error) {
	m.Lock()
	defer m.Unlock()

	if m.UpdateErr != nil {
		return nil, m.UpdateErr
	}
	key := partitionKey(in.TableName, in.PartitionValueList)
	if _, ok := m.Partitions[key]; !ok {
		return nil, awserr.New(glue.ErrCodeEntityNotFoundException, fmt.Sprintf("partition '%s' not found", key), nil)
	}
	m.Partitions[key] = in.PartitionInput
	return &glue.UpdatePartitionOutput{}, nil
}

func (m *MockGlue) CreatePartition(in *glue.CreatePartitionInput) (*glue.CreatePartitionOutput, error) {
	m.Lock()
	defer m.Unlock()

	key := partitionKey(in.TableName, in.PartitionInput.Values)
	if _, ok := m.Partitions[key]; ok {
		return nil, awserr.New(glue.ErrCodeAlreadyExistsException, fmt.Sprintf("partition '%s' already exists", key), nil)
	}
	m.Partitions[key] = in.PartitionInput
	return &glue.CreatePartitionOutput{}, nil
}
