package agent

import (
	"context"
	"fmt"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/arcagent/gateway/pkg/logging"
)

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	DeleteItem(context.Context, *dynamodb.DeleteItemInput, ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
}

type contextItem struct {
	Sender           string `dynamodbav:"sender"`
	LastWorkflowID   string `dynamodbav:"lastWorkflowId,omitempty"`
	LastWorkflowType string `dynamodbav:"lastWorkflowType,omitempty"`
	UpdatedAt        string `dynamodbav:"updatedAt"`
	ExpiresAt        int64  `dynamodbav:"expiresAt"`
}

// DynamoContextStore is a ContextStore backed by DynamoDB, for deployments
// running more than one gateway replica.
type DynamoContextStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

// NewDynamoContextStore builds a store over the provided DynamoDB client.
func NewDynamoContextStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoContextStore {
	if client == nil {
		panic("agent: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("agent: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoContextStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

var _ ContextStore = (*DynamoContextStore)(nil)

func (s *DynamoContextStore) Get(ctx context.Context, sender string) (WorkflowContext, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"sender": &types.AttributeValueMemberS{Value: sender},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return WorkflowContext{}, fmt.Errorf("agent: failed to fetch context: %w", err)
	}
	if out.Item == nil {
		return WorkflowContext{}, nil
	}

	var item contextItem
	if err := attributevalue.UnmarshalMap(out.Item, &item); err != nil {
		return WorkflowContext{}, fmt.Errorf("agent: failed to decode context: %w", err)
	}
	return WorkflowContext{
		LastWorkflowID:   item.LastWorkflowID,
		LastWorkflowType: item.LastWorkflowType,
	}, nil
}

func (s *DynamoContextStore) Set(ctx context.Context, sender string, wc WorkflowContext) error {
	if wc.Empty() {
		_, err := s.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
			TableName: aws.String(s.tableName),
			Key: map[string]types.AttributeValue{
				"sender": &types.AttributeValueMemberS{Value: sender},
			},
		})
		if err != nil {
			return fmt.Errorf("agent: failed to clear context: %w", err)
		}
		return nil
	}

	now := time.Now().UTC()
	item, err := attributevalue.MarshalMap(contextItem{
		Sender:           sender,
		LastWorkflowID:   wc.LastWorkflowID,
		LastWorkflowType: wc.LastWorkflowType,
		UpdatedAt:        now.Format(time.RFC3339Nano),
		ExpiresAt:        now.Add(contextTTL).Unix(),
	})
	if err != nil {
		return fmt.Errorf("agent: failed to marshal context: %w", err)
	}

	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	})
	if err != nil {
		return fmt.Errorf("agent: failed to persist context: %w", err)
	}
	return nil
}
