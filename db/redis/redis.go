package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
	log "github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/qqgroup/go-group-backup/db"
	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
)

const (
	SnapshotKeyPrefix  = "SNAPSHOT:"
	ChangeLogKeyPrefix = "CHANGE_LOG:"
)

type database struct {
	uri     string
	prefix  string
	timeout time.Duration
	rdb     *redis.Client
}

type config struct {
	Enable  bool          `yaml:"enable"`
	URI     string        `yaml:"uri"`
	Timeout time.Duration `yaml:"timeout"`
	Prefix  string        `yaml:"prefix"`

	Host     string `yaml:"host"`
	Port     string `yaml:"port"`
	Database string `yaml:"database"`
}

func init() {
	db.Register("redis", func(node yaml.Node) db.Database {
		log.Debug("begin registering redis")
		conf := new(config)
		_ = node.Decode(conf)
		if !conf.Enable {
			return nil
		}
		if conf.URI == "" {
			if conf.Host == "" {
				conf.Host = "127.0.0.1"
			}
			if conf.Port == "" {
				conf.Port = "6379"
			}
			if conf.Database == "" {
				conf.Database = "0"
			}
			conf.URI = fmt.Sprintf("redis://%s:%s/%s", conf.Host, conf.Port, conf.Database)
		}
		if conf.Prefix == "" {
			conf.Prefix = "GBAK_"
		}
		log.Debugf("redis registration successful, uri: %s", conf.URI)
		return &database{uri: conf.URI, prefix: conf.Prefix, timeout: conf.Timeout}
	})
}

func (r *database) Open() error {
	opt, err := redis.ParseURL(r.uri)
	if err != nil {
		return errors.Wrap(err, "open redis error")
	}

	rdb := redis.NewClient(opt)
	ctx, cancelFunc := buildCtx(r.timeout)
	defer cancelFunc()
	_, err = rdb.Ping(ctx).Result()
	if err != nil {
		return errors.Wrap(err, "ping redis error")
	}

	r.rdb = rdb

	return nil
}

func (r *database) Close() error {
	return r.rdb.Close()
}

func (r *database) snapshotKey(groupID int64) string {
	return r.prefix + SnapshotKeyPrefix + strconv.FormatInt(groupID, 10)
}

func (r *database) changeLogKey(groupID int64) string {
	return r.prefix + ChangeLogKeyPrefix + strconv.FormatInt(groupID, 10)
}

func (r *database) Get(groupID int64) (*snapshot.GroupSnapshot, error) {
	log.Debugf("get snapshot, group=%d", groupID)
	ctx, cancelFunc := buildCtx(r.timeout)
	defer cancelFunc()
	result, err := r.rdb.Get(ctx, r.snapshotKey(groupID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, errors.Wrapf(snapshot.ErrNotFound, "group %d", groupID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "get value error")
	}
	s := &snapshot.GroupSnapshot{}
	if err = json.Unmarshal(result, s); err != nil {
		return nil, errors.Wrap(err, "get value error")
	}
	return s, nil
}

func (r *database) Put(s *snapshot.GroupSnapshot) error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	log.Debugf("set snapshot, group=%d", s.GroupID)
	jsonData, err := json.Marshal(s)
	if err != nil {
		return errors.Wrap(err, "set value error")
	}
	ctx, cancelFunc := buildCtx(r.timeout)
	defer cancelFunc()
	err = r.rdb.Set(ctx, r.snapshotKey(s.GroupID), jsonData, 0).Err()
	return errors.Wrap(err, "set value error")
}

func (r *database) Delete(groupID int64) error {
	ctx, cancelFunc := buildCtx(r.timeout)
	defer cancelFunc()
	return errors.Wrap(r.rdb.Del(ctx, r.snapshotKey(groupID)).Err(), "del value error")
}

func (r *database) Append(events ...changelog.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx, cancelFunc := buildCtx(r.timeout)
	defer cancelFunc()
	_, err := r.rdb.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		for _, e := range events {
			jsonData, err := json.Marshal(e)
			if err != nil {
				return err
			}
			pipe.RPush(ctx, r.changeLogKey(e.GroupID), jsonData)
		}
		return nil
	})
	return errors.Wrap(err, "push value error")
}

func (r *database) List(groupID int64, since time.Time) ([]changelog.ChangeEvent, error) {
	ctx, cancelFunc := buildCtx(r.timeout)
	defer cancelFunc()
	result, err := r.rdb.LRange(ctx, r.changeLogKey(groupID), 0, -1).Result()
	if err != nil {
		return nil, errors.Wrap(err, "range value error")
	}
	events := make([]changelog.ChangeEvent, 0, len(result))
	for _, v := range result {
		var e changelog.ChangeEvent
		if err = json.Unmarshal([]byte(v), &e); err != nil {
			return nil, errors.Wrap(err, "decode value error")
		}
		if !e.Kind.Valid() {
			return nil, errors.Errorf("unknown change event kind %q", e.Kind)
		}
		events = append(events, e)
	}
	return changelog.Filter(events, since), nil
}

func (r *database) Purge(groupID int64) error {
	ctx, cancelFunc := buildCtx(r.timeout)
	defer cancelFunc()
	return errors.Wrap(r.rdb.Del(ctx, r.changeLogKey(groupID)).Err(), "del value error")
}

func buildCtx(timeout time.Duration) (context.Context, context.CancelFunc) {
	if timeout != 0 {
		return context.WithTimeout(context.Background(), timeout)
	}
	return context.Background(), func() {}
}
