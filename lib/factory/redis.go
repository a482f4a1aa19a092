package factory

import (
	"context"
	"errors"
	"time"

	"github.com/mitchellh/mapstructure"
	"github.com/redis/go-redis/v9"

	apperrors "github.com/go-i2p/dbpool/lib/errors"
	"github.com/go-i2p/dbpool/lib/pool"
)

// redisOptions are the options a Redis factory accepts on top of the URL.
// Values given here override the URL.
type redisOptions struct {
	Username     string        `mapstructure:"username"`
	Password     string        `mapstructure:"password"`
	DB           *int          `mapstructure:"db"`
	DialTimeout  time.Duration `mapstructure:"dial_timeout"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
	ClientName   string        `mapstructure:"client_name"`
}

func decodeRedisOptions(options map[string]string) (redisOptions, error) {
	var out redisOptions
	dec, err := mapstructure.NewDecoder(&mapstructure.DecoderConfig{
		DecodeHook:       mapstructure.StringToTimeDurationHookFunc(),
		WeaklyTypedInput: true,
		ErrorUnused:      true,
		Result:           &out,
	})
	if err != nil {
		return out, err
	}
	if err := dec.Decode(options); err != nil {
		return out, apperrors.WrapKind(apperrors.ErrConfiguration, "invalid redis option", err)
	}
	return out, nil
}

// redisClientOptions parses target and applies options to it.
func redisClientOptions(target string, options map[string]string) (*redis.Options, error) {
	opt, err := redis.ParseURL(target)
	if err != nil {
		return nil, apperrors.WrapKind(apperrors.ErrConfiguration, "invalid redis URL", err)
	}
	o, err := decodeRedisOptions(options)
	if err != nil {
		return nil, err
	}

	if o.Username != "" {
		opt.Username = o.Username
	}
	if o.Password != "" {
		opt.Password = o.Password
	}
	if o.DB != nil {
		opt.DB = *o.DB
	}
	if o.DialTimeout > 0 {
		opt.DialTimeout = o.DialTimeout
	}
	if o.ReadTimeout != 0 {
		opt.ReadTimeout = o.ReadTimeout
	}
	if o.WriteTimeout != 0 {
		opt.WriteTimeout = o.WriteTimeout
	}
	if o.ClientName != "" {
		opt.ClientName = o.ClientName
	}

	// One pooled resource is one connection.
	opt.PoolSize = 1
	opt.MinIdleConns = 0
	opt.MaxIdleConns = 1
	return opt, nil
}

// Redis opens single-connection go-redis clients. The target is a redis://
// or rediss:// URL.
type Redis struct{}

// NewRedis returns a Redis factory.
func NewRedis() *Redis {
	return &Redis{}
}

// Open creates a client and pings it, so a returned resource is connected.
func (f *Redis) Open(target string, options map[string]string) (pool.Resource, error) {
	opt, err := redisClientOptions(target, options)
	if err != nil {
		return nil, err
	}

	client := redis.NewClient(opt)
	if err := client.Ping(context.Background()).Err(); err != nil {
		client.Close()
		log.WithField("addr", opt.Addr).WithError(err).Debug("redis open failed")
		return nil, err
	}
	return &RedisResource{client: client}, nil
}

// RedisResource is a redis client holding at most one connection.
type RedisResource struct {
	client *redis.Client
}

// Client returns the underlying client. It is not gated by the handle that
// owns the resource; use RedisConn to get an error after release.
func (r *RedisResource) Client() *redis.Client {
	return r.client
}

// IsValid pings the server. Any ping failure reports invalid; timeout bounds
// the ping when positive.
func (r *RedisResource) IsValid(timeout time.Duration) (bool, error) {
	ctx := context.Background()
	if timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}
	if err := r.client.Ping(ctx).Err(); err != nil {
		if !errors.Is(err, redis.ErrClosed) {
			log.WithError(err).Debug("redis ping failed")
		}
		return false, nil
	}
	return true, nil
}

// Close closes the client.
func (r *RedisResource) Close() error {
	err := r.client.Close()
	if errors.Is(err, redis.ErrClosed) {
		return nil
	}
	return err
}
