package config

import (
	"errors"

	"github.com/redis/go-redis/v9"
)

// RedisOptions parses the URL and applies pool size and timeouts.
func (c RedisConfig) RedisOptions() (*redis.Options, error) {
	options, err := redis.ParseURL(c.URL)
	if err != nil {
		return nil, errors.Join(ErrParsingConfigFailed, err)
	}

	options.PoolSize = c.PoolSize
	options.DialTimeout = c.DialTimeout
	options.ReadTimeout = c.ReadTimeout
	options.WriteTimeout = c.WriteTimeout

	return options, nil
}

// NewRedisClient creates a client from RedisOptions. It does not connect until first use.
func (c RedisConfig) NewRedisClient() (*redis.Client, error) {
	options, err := c.RedisOptions()
	if err != nil {
		return nil, err
	}

	return redis.NewClient(options), nil
}
