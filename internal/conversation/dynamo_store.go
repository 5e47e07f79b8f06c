package conversation

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strconv"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/groupize/aime-planner-chatbot/pkg/logging"
)

const dynamoScanCap = 1000

type dynamoAPI interface {
	PutItem(context.Context, *dynamodb.PutItemInput, ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(context.Context, *dynamodb.GetItemInput, ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Scan(context.Context, *dynamodb.ScanInput, ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

// DynamoStore persists conversations in a DynamoDB table keyed by conversation_id.
type DynamoStore struct {
	client    dynamoAPI
	tableName string
	logger    *logging.Logger
}

var _ Store = (*DynamoStore)(nil)

// NewDynamoStore builds a store backed by the provided DynamoDB client.
func NewDynamoStore(client dynamoAPI, tableName string, logger *logging.Logger) *DynamoStore {
	if client == nil {
		panic("conversation: dynamodb client cannot be nil")
	}
	if tableName == "" {
		panic("conversation: table name cannot be empty")
	}
	if logger == nil {
		logger = logging.Default()
	}
	return &DynamoStore{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
}

// Get fetches a conversation with a strongly consistent read.
func (s *DynamoStore) Get(ctx context.Context, id string) (*Conversation, error) {
	if id == "" {
		return nil, errors.New("conversation: conversation id required")
	}
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName:      aws.String(s.tableName),
		ConsistentRead: aws.Bool(true),
		Key: map[string]types.AttributeValue{
			"conversation_id": &types.AttributeValueMemberS{Value: id},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to fetch conversation: %w", err)
	}
	if out.Item == nil {
		return nil, ErrNotFound
	}
	var conv Conversation
	if err := attributevalue.UnmarshalMap(out.Item, &conv); err != nil {
		return nil, fmt.Errorf("conversation: failed to decode conversation: %w", err)
	}
	return &conv, nil
}

// PutIfVersion writes the whole record guarded by a version condition.
func (s *DynamoStore) PutIfVersion(ctx context.Context, conv *Conversation, expected int64) (*Conversation, error) {
	if conv == nil || conv.ID == "" {
		return nil, errors.New("conversation: conversation id required")
	}
	stored := conv.Clone()
	stored.Version = expected + 1

	item, err := attributevalue.MarshalMap(stored)
	if err != nil {
		return nil, fmt.Errorf("conversation: failed to marshal conversation: %w", err)
	}
	input := &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item:      item,
	}
	if expected == 0 {
		input.ConditionExpression = aws.String("attribute_not_exists(conversation_id)")
	} else {
		input.ConditionExpression = aws.String("#version = :expected")
		input.ExpressionAttributeNames = map[string]string{"#version": "version"}
		input.ExpressionAttributeValues = map[string]types.AttributeValue{
			":expected": &types.AttributeValueMemberN{Value: strconv.FormatInt(expected, 10)},
		}
	}

	if _, err := s.client.PutItem(ctx, input); err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return nil, ErrVersionConflict
		}
		return nil, fmt.Errorf("conversation: failed to persist conversation: %w", err)
	}
	return stored, nil
}

// List scans the table and returns the newest conversations. The scan is
// capped, which is fine for the monitoring use it serves.
func (s *DynamoStore) List(ctx context.Context, limit int) ([]*Conversation, error) {
	var (
		out   []*Conversation
		start map[string]types.AttributeValue
	)
	for {
		page, err := s.client.Scan(ctx, &dynamodb.ScanInput{
			TableName:         aws.String(s.tableName),
			ExclusiveStartKey: start,
		})
		if err != nil {
			return nil, fmt.Errorf("conversation: failed to scan conversations: %w", err)
		}
		for _, item := range page.Items {
			var conv Conversation
			if err := attributevalue.UnmarshalMap(item, &conv); err != nil {
				s.logger.Warn("skipping undecodable conversation", "error", err)
				continue
			}
			out = append(out, &conv)
		}
		if len(page.LastEvaluatedKey) == 0 || len(out) >= dynamoScanCap {
			break
		}
		start = page.LastEvaluatedKey
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.After(out[j].CreatedAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}
