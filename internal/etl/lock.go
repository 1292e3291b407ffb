package etl

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
)

// releaseScript deletes the key only while it still holds our token.
var releaseScript = redis.NewScript(`
if redis.call("get", KEYS[1]) == ARGV[1] then
	return redis.call("del", KEYS[1])
end
return 0
`)

// RedisLocker takes run locks with SET NX and a TTL.
type RedisLocker struct {
	Client *redis.Client
}

func NewRedisLocker(client *redis.Client) *RedisLocker {
	return &RedisLocker{Client: client}
}

func (l *RedisLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	ok, err := l.Client.SetNX(ctx, name, token, ttl).Result()
	if err != nil {
		return nil, fmt.Errorf("redis lock %s: %w", name, err)
	}
	if !ok {
		return nil, ErrRunLocked
	}
	return func(ctx context.Context) error {
		return releaseScript.Run(ctx, l.Client, []string{name}, token).Err()
	}, nil
}

// MongoLocker takes run locks by inserting a document with the lock name as
// its _id. An expired lock may be taken over.
type MongoLocker struct {
	Coll *mongo.Collection
	now  func() time.Time
}

func NewMongoLocker(db *mongo.Database) *MongoLocker {
	return &MongoLocker{Coll: db.Collection("run_locks"), now: time.Now}
}

func (l *MongoLocker) Acquire(ctx context.Context, name string, ttl time.Duration) (func(context.Context) error, error) {
	token := uuid.NewString()
	now := l.now().UTC()
	doc := bson.M{
		"_id":         name,
		"token":       token,
		"acquired_at": now,
		"expires_at":  now.Add(ttl),
	}

	_, err := l.Coll.InsertOne(ctx, doc)
	if mongo.IsDuplicateKeyError(err) {
		res, rerr := l.Coll.ReplaceOne(ctx, bson.M{"_id": name, "expires_at": bson.M{"$lt": now}}, doc)
		if rerr != nil {
			return nil, fmt.Errorf("mongo lock %s: %w", name, rerr)
		}
		if res.MatchedCount == 0 {
			return nil, ErrRunLocked
		}
	} else if err != nil {
		return nil, fmt.Errorf("mongo lock %s: %w", name, err)
	}

	return func(ctx context.Context) error {
		_, err := l.Coll.DeleteOne(ctx, bson.M{"_id": name, "token": token})
		return err
	}, nil
}
