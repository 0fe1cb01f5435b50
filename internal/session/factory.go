package session

import (
	"github.com/redis/go-redis/v9"
)

// StoreType selects a session store driver.
type StoreType string

const (
	StoreTypeMemory StoreType = "memory"
	StoreTypeRedis  StoreType = "redis"
	StoreTypeDynamo StoreType = "dynamo"
)

// StoreOption is a functional option for configuring a session store.
type StoreOption func(*storeConfig)

type storeConfig struct {
	redisClient *redis.Client
	dynamoAPI   DynamoAPI
	dynamoTable string
}

// WithRedisClient sets the Redis client for the Redis driver.
func WithRedisClient(client *redis.Client) StoreOption {
	return func(c *storeConfig) {
		c.redisClient = client
	}
}

// WithDynamo sets the DynamoDB API and table for the Dynamo driver.
func WithDynamo(api DynamoAPI, table string) StoreOption {
	return func(c *storeConfig) {
		c.dynamoAPI = api
		c.dynamoTable = table
	}
}

// NewStore creates a Store for the given driver type.
// Redis requires WithRedisClient; Dynamo requires WithDynamo.
func NewStore(storeType StoreType, opts ...StoreOption) (Store, error) {
	config := &storeConfig{}
	for _, opt := range opts {
		opt(config)
	}

	switch storeType {
	case StoreTypeMemory:
		return newMemoryStore(), nil

	case StoreTypeRedis:
		if config.redisClient == nil {
			return nil, ErrInvalidConfig
		}
		return &redisStore{client: config.redisClient}, nil

	case StoreTypeDynamo:
		return newDynamoStore(config.dynamoAPI, config.dynamoTable)

	default:
		return nil, ErrInvalidStoreType
	}
}
