package dynamo

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/fixora/secret-review/application/port/outbound"
	"github.com/fixora/secret-review/domain/entity"
	"github.com/fixora/secret-review/domain/valueobject"
	"github.com/fixora/secret-review/infrastructure/adapter/awsclient"
)

// Client abstracts the DynamoDB client for testing.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	UpdateItem(ctx context.Context, params *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DescribeTable(ctx context.Context, params *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

// Config holds ledger table settings.
type Config struct {
	Table   string
	TTL     time.Duration
	Region  string
	Profile string
}

type Option func(*ChangeLedger)

// WithClient injects a custom DynamoDB client.
func WithClient(c Client) Option {
	return func(l *ChangeLedger) {
		if c != nil {
			l.client = c
		}
	}
}

// ChangeLedger stores change requests in a single DynamoDB table
type ChangeLedger struct {
	cfg    Config
	mu     sync.Mutex
	client Client
}

func NewChangeLedger(cfg Config, opts ...Option) *ChangeLedger {
	if cfg.Table == "" {
		cfg.Table = "secret-review-changes"
	}
	ledger := &ChangeLedger{cfg: cfg}
	for _, opt := range opts {
		if opt != nil {
			opt(ledger)
		}
	}
	return ledger
}

func (l *ChangeLedger) ensureClient(ctx context.Context) (Client, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.client != nil {
		return l.client, nil
	}
	awsCfg, err := awsclient.Load(ctx, awsclient.Config{Region: l.cfg.Region, Profile: l.cfg.Profile})
	if err != nil {
		return nil, fmt.Errorf("dynamo: %w", err)
	}
	l.client = dynamodb.NewFromConfig(awsCfg, func(o *dynamodb.Options) {
		o.RetryMaxAttempts = 3
	})
	return l.client, nil
}

func (l *ChangeLedger) Put(ctx context.Context, record *entity.ChangeRequest) error {
	client, err := l.ensureClient(ctx)
	if err != nil {
		return err
	}

	item, err := attributevalue.MarshalMap(newChangeItem(record, l.cfg.TTL))
	if err != nil {
		return fmt.Errorf("dynamo: marshal change %s: %w", record.ChangeID, err)
	}

	_, err = client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(l.cfg.Table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			return outbound.ErrChangeAlreadyExists
		}
		return fmt.Errorf("dynamo: put change %s: %w", record.ChangeID, err)
	}
	return nil
}

func (l *ChangeLedger) GetByID(ctx context.Context, changeID string) (*entity.ChangeRequest, error) {
	client, err := l.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	out, err := client.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.cfg.Table),
		IndexName:              aws.String(changeIDIndex),
		KeyConditionExpression: aws.String("changeId = :id"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":id": &types.AttributeValueMemberS{Value: changeID},
		},
		Limit: aws.Int32(1),
	})
	if err != nil {
		return nil, fmt.Errorf("dynamo: get change %s: %w", changeID, err)
	}
	if len(out.Items) == 0 {
		return nil, outbound.ErrChangeNotFound
	}

	records, err := unmarshalRecords(out.Items)
	if err != nil {
		return nil, err
	}
	return records[0], nil
}

func (l *ChangeLedger) QueryByProjectEnv(ctx context.Context, target valueobject.Target, limit int, cursor string) (*outbound.Page, error) {
	return l.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.cfg.Table),
		KeyConditionExpression: aws.String("PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: entity.PartitionKey(target.Project, target.Env)},
		},
	}, limit, cursor)
}

func (l *ChangeLedger) QueryByStatus(ctx context.Context, status entity.ChangeStatus, limit int, cursor string) (*outbound.Page, error) {
	return l.query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(l.cfg.Table),
		IndexName:              aws.String(statusIndex),
		KeyConditionExpression: aws.String("#status = :status"),
		ExpressionAttributeNames: map[string]string{
			"#status": attrStatus,
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
		},
	}, limit, cursor)
}

func (l *ChangeLedger) query(ctx context.Context, input *dynamodb.QueryInput, limit int, cursor string) (*outbound.Page, error) {
	client, err := l.ensureClient(ctx)
	if err != nil {
		return nil, err
	}

	startKey, err := decodeCursor(cursor)
	if err != nil {
		return nil, err
	}
	if limit <= 0 {
		limit = 20
	}

	input.ScanIndexForward = aws.Bool(false)
	input.Limit = aws.Int32(int32(limit))
	input.ExclusiveStartKey = startKey

	out, err := client.Query(ctx, input)
	if err != nil {
		return nil, fmt.Errorf("dynamo: query changes: %w", err)
	}

	records, err := unmarshalRecords(out.Items)
	if err != nil {
		return nil, err
	}
	next, err := encodeCursor(out.LastEvaluatedKey)
	if err != nil {
		return nil, err
	}
	return &outbound.Page{Records: records, NextCursor: next}, nil
}

// UpdateStatus resolves a record only while it is still pending
func (l *ChangeLedger) UpdateStatus(ctx context.Context, key entity.RecordKey, outcome entity.ReviewOutcome) error {
	client, err := l.ensureClient(ctx)
	if err != nil {
		return err
	}

	sets := []string{"#status = :status", "reviewedBy = :reviewedBy", "reviewedAt = :reviewedAt"}
	values := map[string]types.AttributeValue{
		":status":     &types.AttributeValueMemberS{Value: string(outcome.Status)},
		":reviewedBy": &types.AttributeValueMemberS{Value: outcome.ReviewedBy},
		":reviewedAt": &types.AttributeValueMemberS{Value: formatTime(outcome.ReviewedAt)},
		":pending":    &types.AttributeValueMemberS{Value: string(entity.ChangeStatusPending)},
	}
	if outcome.Comment != "" {
		sets = append(sets, "#comment = :comment")
		values[":comment"] = &types.AttributeValueMemberS{Value: outcome.Comment}
	}
	if outcome.SecretVersionBeforeApproval != "" {
		sets = append(sets, "secretVersionBeforeApproval = :previousVersion")
		values[":previousVersion"] = &types.AttributeValueMemberS{Value: outcome.SecretVersionBeforeApproval}
	}
	if outcome.CurrentKeys != nil {
		keys, err := attributevalue.Marshal(outcome.CurrentKeys)
		if err != nil {
			return fmt.Errorf("dynamo: marshal current keys: %w", err)
		}
		sets = append(sets, "currentKeys = :currentKeys")
		values[":currentKeys"] = keys
	}

	names := map[string]string{"#status": attrStatus}
	if outcome.Comment != "" {
		names["#comment"] = "comment"
	}

	_, err = client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName: aws.String(l.cfg.Table),
		Key: map[string]types.AttributeValue{
			attrPK: &types.AttributeValueMemberS{Value: key.PartitionKey()},
			attrSK: &types.AttributeValueMemberS{Value: key.SortKey()},
		},
		UpdateExpression:                    aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:                 aws.String("attribute_exists(PK) AND #status = :pending"),
		ExpressionAttributeNames:            names,
		ExpressionAttributeValues:           values,
		ReturnValuesOnConditionCheckFailure: types.ReturnValuesOnConditionCheckFailureAllOld,
	})
	if err != nil {
		var ccf *types.ConditionalCheckFailedException
		if errors.As(err, &ccf) {
			if len(ccf.Item) == 0 {
				return outbound.ErrChangeNotFound
			}
			return outbound.ErrStatusPreconditionFailed
		}
		return fmt.Errorf("dynamo: update change %s: %w", key.ChangeID, err)
	}
	return nil
}

func (l *ChangeLedger) Ping(ctx context.Context) error {
	client, err := l.ensureClient(ctx)
	if err != nil {
		return err
	}
	if _, err := client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(l.cfg.Table)}); err != nil {
		return fmt.Errorf("dynamo: describe table: %w", err)
	}
	return nil
}

func unmarshalRecords(items []map[string]types.AttributeValue) ([]*entity.ChangeRequest, error) {
	var stored []changeItem
	if err := attributevalue.UnmarshalListOfMaps(items, &stored); err != nil {
		return nil, fmt.Errorf("dynamo: unmarshal changes: %w", err)
	}

	records := make([]*entity.ChangeRequest, 0, len(stored))
	for _, item := range stored {
		record, err := item.toEntity()
		if err != nil {
			return nil, fmt.Errorf("dynamo: decode change %s: %w", item.ChangeID, err)
		}
		records = append(records, record)
	}
	return records, nil
}

// Cursors are the base64 JSON form of LastEvaluatedKey. Every key
// attribute of the table and its indexes is a string.
func encodeCursor(key map[string]types.AttributeValue) (string, error) {
	if len(key) == 0 {
		return "", nil
	}
	flat := make(map[string]string, len(key))
	for name, value := range key {
		s, ok := value.(*types.AttributeValueMemberS)
		if !ok {
			return "", fmt.Errorf("dynamo: non-string key attribute %s", name)
		}
		flat[name] = s.Value
	}
	raw, err := json.Marshal(flat)
	if err != nil {
		return "", fmt.Errorf("dynamo: encode cursor: %w", err)
	}
	return base64.RawURLEncoding.EncodeToString(raw), nil
}

func decodeCursor(cursor string) (map[string]types.AttributeValue, error) {
	if cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(cursor)
	if err != nil {
		return nil, outbound.ErrInvalidCursor
	}
	var flat map[string]string
	if err := json.Unmarshal(raw, &flat); err != nil || len(flat) == 0 {
		return nil, outbound.ErrInvalidCursor
	}
	if _, ok := flat[attrPK]; !ok {
		return nil, outbound.ErrInvalidCursor
	}

	key := make(map[string]types.AttributeValue, len(flat))
	for name, value := range flat {
		key[name] = &types.AttributeValueMemberS{Value: value}
	}
	return key, nil
}
