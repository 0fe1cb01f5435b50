package session

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/google/uuid"
)

const (
	skMeta        = "META#"
	skPrefixEntry = "ENTRY#"

	// entrySKLayout is fixed-width so lexicographic sort-key order matches
	// chronological append order.
	entrySKLayout = "2006-01-02T15:04:05.000000000"

	// dynamoGCSlack pads the native item ttl past the logical expiry so
	// DynamoDB's background expiry never races visibility, which is
	// governed solely by the META item.
	dynamoGCSlack = 24 * time.Hour
)

// DynamoAPI is the minimal DynamoDB surface required by the store driver.
// *dynamodb.Client satisfies it.
type DynamoAPI interface {
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// dynamoStore implements Store on a single DynamoDB table. Every logical key
// owns a META item holding the logical expiry; value and list entries hang
// off the same partition key. Reads consult the META expiry because the
// native ttl attribute only feeds DynamoDB's lazy garbage collection.
type dynamoStore struct {
	api       DynamoAPI
	tableName string
	now       func() time.Time
}

func newDynamoStore(api DynamoAPI, tableName string) (*dynamoStore, error) {
	if api == nil {
		return nil, errors.New("session: dynamo api must not be nil")
	}
	if strings.TrimSpace(tableName) == "" {
		return nil, errors.New("session: dynamo table name must not be empty")
	}
	return &dynamoStore{api: api, tableName: tableName, now: time.Now}, nil
}

func keyPK(key string) string {
	return "KEY#" + key
}

func entrySK(t time.Time) string {
	return skPrefixEntry + t.UTC().Format(entrySKLayout) + "#" + uuid.NewString()
}

func (s *dynamoStore) gcTTL() int64 {
	return s.now().Add(dynamoGCSlack).Unix()
}

// getMeta fetches the META item for key. Returns (expiresAt, found).
func (s *dynamoStore) getMeta(ctx context.Context, key string) (int64, bool, error) {
	out, err := s.api.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: keyPK(key)},
			"SK": &types.AttributeValueMemberS{Value: skMeta},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return 0, false, fmt.Errorf("session: dynamo get meta %q: %w", key, err)
	}
	if out == nil || len(out.Item) == 0 {
		return 0, false, nil
	}
	expiresAt, err := intAttr(out.Item, "expiresAt")
	if err != nil {
		return 0, false, fmt.Errorf("session: dynamo decode meta %q: %w", key, err)
	}
	return int64(expiresAt), true, nil
}

func (s *dynamoStore) putMeta(ctx context.Context, key string, expiresAt int64) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":        &types.AttributeValueMemberS{Value: keyPK(key)},
			"SK":        &types.AttributeValueMemberS{Value: skMeta},
			"expiresAt": &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt, 10)},
			"ttl":       &types.AttributeValueMemberN{Value: strconv.FormatInt(expiresAt+int64(dynamoGCSlack/time.Second), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("session: dynamo put meta %q: %w", key, err)
	}
	return nil
}

func (s *dynamoStore) Exists(ctx context.Context, key string) (bool, error) {
	expiresAt, found, err := s.getMeta(ctx, key)
	if err != nil {
		return false, err
	}
	return found && expiresAt > s.now().Unix(), nil
}

func (s *dynamoStore) PutEx(ctx context.Context, key, value string, ttl time.Duration) error {
	expiresAt := s.now().Add(ttl).Unix()
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":    &types.AttributeValueMemberS{Value: keyPK(key)},
			"SK":    &types.AttributeValueMemberS{Value: "VALUE#"},
			"value": &types.AttributeValueMemberS{Value: value},
			"ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(s.gcTTL(), 10)},
		},
	})
	if err != nil {
		return fmt.Errorf("session: dynamo put value %q: %w", key, err)
	}
	return s.putMeta(ctx, key, expiresAt)
}

func (s *dynamoStore) Append(ctx context.Context, key, value string) error {
	_, err := s.api.PutItem(ctx, &dynamodb.PutItemInput{
		TableName: aws.String(s.tableName),
		Item: map[string]types.AttributeValue{
			"PK":    &types.AttributeValueMemberS{Value: keyPK(key)},
			"SK":    &types.AttributeValueMemberS{Value: entrySK(s.now())},
			"value": &types.AttributeValueMemberS{Value: value},
			"ttl":   &types.AttributeValueMemberN{Value: strconv.FormatInt(s.gcTTL(), 10)},
		},
		ConditionExpression: aws.String("attribute_not_exists(PK) AND attribute_not_exists(SK)"),
	})
	if err != nil {
		return fmt.Errorf("session: dynamo append %q: %w", key, err)
	}
	return nil
}

func (s *dynamoStore) Refresh(ctx context.Context, key string, ttl time.Duration) error {
	return s.putMeta(ctx, key, s.now().Add(ttl).Unix())
}

func (s *dynamoStore) List(ctx context.Context, key string) ([]string, error) {
	expiresAt, found, err := s.getMeta(ctx, key)
	if err != nil {
		return nil, err
	}
	if !found || expiresAt <= s.now().Unix() {
		return nil, nil
	}

	out, err := s.api.Query(ctx, &dynamodb.QueryInput{
		TableName:              aws.String(s.tableName),
		KeyConditionExpression: aws.String("PK = :pk AND begins_with(SK, :prefix)"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk":     &types.AttributeValueMemberS{Value: keyPK(key)},
			":prefix": &types.AttributeValueMemberS{Value: skPrefixEntry},
		},
		ScanIndexForward: aws.Bool(true),
	})
	if err != nil {
		return nil, fmt.Errorf("session: dynamo list %q: %w", key, err)
	}

	vals := make([]string, 0, len(out.Items))
	for _, item := range out.Items {
		v, err := strAttr(item, "value")
		if err != nil {
			return nil, fmt.Errorf("session: dynamo list %q: %w", key, err)
		}
		vals = append(vals, v)
	}
	return vals, nil
}

func (s *dynamoStore) Close() error {
	return nil
}

func strAttr(item map[string]types.AttributeValue, key string) (string, error) {
	v, ok := item[key]
	if !ok {
		return "", fmt.Errorf("missing attribute %q", key)
	}
	s, ok := v.(*types.AttributeValueMemberS)
	if !ok {
		return "", fmt.Errorf("attribute %q is not a string", key)
	}
	return s.Value, nil
}

func intAttr(item map[string]types.AttributeValue, key string) (int, error) {
	v, ok := item[key]
	if !ok {
		return 0, fmt.Errorf("missing attribute %q", key)
	}
	n, ok := v.(*types.AttributeValueMemberN)
	if !ok {
		return 0, fmt.Errorf("attribute %q is not a number", key)
	}
	parsed, err := strconv.Atoi(n.Value)
	if err != nil {
		return 0, fmt.Errorf("parse attribute %q: %w", key, err)
	}
	return parsed, nil
}
