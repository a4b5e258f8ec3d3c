package mongodb

import (
	"context"
	"time"

	"github.com/pkg/errors"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"
	"gopkg.in/yaml.v3"

	"github.com/qqgroup/go-group-backup/db"
	"github.com/qqgroup/go-group-backup/internal/changelog"
	"github.com/qqgroup/go-group-backup/internal/snapshot"
	"github.com/qqgroup/go-group-backup/modules/config"
)

type database struct {
	uri   string
	db    string
	mongo *mongo.Database
}

const (
	MongoSnapshotCollection  = "snapshots"
	MongoChangeLogCollection = "change-log"
	MongoCounterCollection   = "counters"
)

// storedSnapshot 以群号为 _id 的快照文档
type storedSnapshot struct {
	ID                     int64 `bson:"_id"`
	snapshot.GroupSnapshot `bson:",inline"`
}

// storedEvent 带有群内序号的变更事件文档
type storedEvent struct {
	Seq                   int64 `bson:"seq"`
	changelog.ChangeEvent `bson:",inline"`
}

func init() {
	db.Register("mongodb", func(node yaml.Node) db.Database {
		conf := new(config.MongoDBConfig)
		_ = node.Decode(conf)
		if conf.Database == "" {
			conf.Database = "group-backup"
		}
		if !conf.Enable {
			return nil
		}
		return &database{uri: conf.URI, db: conf.Database}
	})
}

func (m *database) Open() error {
	cli, err := mongo.Connect(context.Background(), options.Client().ApplyURI(m.uri))
	if err != nil {
		return errors.Wrap(err, "open mongo connection error")
	}
	m.mongo = cli.Database(m.db)
	_, err = m.mongo.Collection(MongoChangeLogCollection).Indexes().CreateOne(context.Background(), mongo.IndexModel{
		Keys:    bson.D{{Key: "groupId", Value: 1}, {Key: "seq", Value: 1}},
		Options: options.Index().SetUnique(true),
	})
	return errors.Wrap(err, "create index error")
}

func (m *database) Close() error {
	return m.mongo.Client().Disconnect(context.Background())
}

func (m *database) Get(groupID int64) (*snapshot.GroupSnapshot, error) {
	coll := m.mongo.Collection(MongoSnapshotCollection)
	var ret storedSnapshot
	err := coll.FindOne(context.Background(), bson.D{{Key: "_id", Value: groupID}}).Decode(&ret)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, errors.Wrapf(snapshot.ErrNotFound, "group %d", groupID)
	}
	if err != nil {
		return nil, errors.Wrap(err, "query error")
	}
	ret.CapturedAt = ret.CapturedAt.UTC()
	return &ret.GroupSnapshot, nil
}

func (m *database) Put(s *snapshot.GroupSnapshot) error {
	if s == nil {
		return errors.New("nil snapshot")
	}
	coll := m.mongo.Collection(MongoSnapshotCollection)
	doc := storedSnapshot{ID: s.GroupID, GroupSnapshot: *s}
	_, err := coll.ReplaceOne(context.Background(), bson.D{{Key: "_id", Value: s.GroupID}}, doc, options.Replace().SetUpsert(true))
	return errors.Wrap(err, "insert error")
}

func (m *database) Delete(groupID int64) error {
	coll := m.mongo.Collection(MongoSnapshotCollection)
	_, err := coll.DeleteOne(context.Background(), bson.D{{Key: "_id", Value: groupID}})
	return errors.Wrap(err, "delete error")
}

// nextSeq 为群分配 n 个连续序号, 返回第一个
func (m *database) nextSeq(ctx context.Context, groupID int64, n int) (int64, error) {
	var counter struct {
		Seq int64 `bson:"seq"`
	}
	err := m.mongo.Collection(MongoCounterCollection).FindOneAndUpdate(ctx,
		bson.D{{Key: "_id", Value: groupID}},
		bson.D{{Key: "$inc", Value: bson.D{{Key: "seq", Value: n}}}},
		options.FindOneAndUpdate().SetUpsert(true).SetReturnDocument(options.After),
	).Decode(&counter)
	if err != nil {
		return 0, errors.Wrap(err, "allocate seq error")
	}
	return counter.Seq - int64(n) + 1, nil
}

func (m *database) Append(events ...changelog.ChangeEvent) error {
	if len(events) == 0 {
		return nil
	}
	ctx := context.Background()
	count := make(map[int64]int)
	for _, e := range events {
		count[e.GroupID]++
	}
	next := make(map[int64]int64, len(count))
	for g, n := range count {
		first, err := m.nextSeq(ctx, g, n)
		if err != nil {
			return err
		}
		next[g] = first
	}
	docs := make([]interface{}, 0, len(events))
	for _, e := range events {
		docs = append(docs, storedEvent{Seq: next[e.GroupID], ChangeEvent: e})
		next[e.GroupID]++
	}
	_, err := m.mongo.Collection(MongoChangeLogCollection).InsertMany(ctx, docs, options.InsertMany().SetOrdered(true))
	return errors.Wrap(err, "insert error")
}

func (m *database) List(groupID int64, since time.Time) ([]changelog.ChangeEvent, error) {
	filter := bson.D{{Key: "groupId", Value: groupID}}
	if !since.IsZero() {
		filter = append(filter, bson.E{Key: "occurredAt", Value: bson.D{{Key: "$gte", Value: since}}})
	}
	ctx := context.Background()
	cur, err := m.mongo.Collection(MongoChangeLogCollection).Find(ctx, filter, options.Find().SetSort(bson.D{{Key: "seq", Value: 1}}))
	if err != nil {
		return nil, errors.Wrap(err, "query error")
	}
	defer cur.Close(ctx)
	var events []changelog.ChangeEvent
	for cur.Next(ctx) {
		var e storedEvent
		if err := cur.Decode(&e); err != nil {
			return nil, errors.Wrap(err, "decode error")
		}
		if !e.Kind.Valid() {
			return nil, errors.Errorf("unknown change event kind %q", e.Kind)
		}
		e.OccurredAt = e.OccurredAt.UTC()
		events = append(events, e.ChangeEvent)
	}
	return events, errors.Wrap(cur.Err(), "query error")
}

func (m *database) Purge(groupID int64) error {
	ctx := context.Background()
	_, err := m.mongo.Collection(MongoChangeLogCollection).DeleteMany(ctx, bson.D{{Key: "groupId", Value: groupID}})
	if err != nil {
		return errors.Wrap(err, "delete error")
	}
	_, err = m.mongo.Collection(MongoCounterCollection).DeleteOne(ctx, bson.D{{Key: "_id", Value: groupID}})
	return errors.Wrap(err, "delete error")
}
