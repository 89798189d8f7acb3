package store

import (
	"context"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/integration/mtest"

	"github.com/example/channel-bridge/internal/message"
)

func TestMongoStoreAppendInsertsIntoChannelCollection(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("insert", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse())

		err := NewMongoStore(mt.DB).Append(context.Background(), message.ChannelWhatsApp, message.Message{
			ID:                "rec-1",
			Channel:           message.ChannelWhatsApp,
			Direction:         message.DirectionReceived,
			CounterpartID:     "5511",
			Body:              "oi",
			ExternalMessageID: "wamid.1",
			Timestamp:         time.UnixMilli(1690000000000),
		})
		if err != nil {
			t.Fatalf("append: %v", err)
		}

		started := mt.GetStartedEvent()
		if started == nil || started.CommandName != "insert" {
			t.Fatalf("started=%+v", started)
		}
		if coll := started.Command.Lookup("insert").StringValue(); coll != "whatsapp_messages" {
			t.Fatalf("collection=%s", coll)
		}
		docs, err := started.Command.Lookup("documents").Array().Values()
		if err != nil || len(docs) != 1 {
			t.Fatalf("documents=%v err=%v", docs, err)
		}
		doc := docs[0].Document()
		if id := doc.Lookup("_id").StringValue(); id != "rec-1" {
			t.Fatalf("_id=%s", id)
		}
		if ext := doc.Lookup("external_message_id").StringValue(); ext != "wamid.1" {
			t.Fatalf("external_message_id=%s", ext)
		}
		if dir := doc.Lookup("direction").StringValue(); dir != "received" {
			t.Fatalf("direction=%s", dir)
		}
	})

	mt.Run("server error", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateCommandErrorResponse(mtest.CommandError{
			Code:    2,
			Name:    "BadValue",
			Message: "bad document",
		}))

		err := NewMongoStore(mt.DB).Append(context.Background(), message.ChannelInstagram, message.Message{ID: "rec-2"})
		if err == nil {
			t.Fatal("expected insert error")
		}
	})
}

func TestMongoStoreEnsureIndexes(t *testing.T) {
	mt := mtest.New(t, mtest.NewOptions().ClientType(mtest.Mock))

	mt.Run("per channel", func(mt *mtest.T) {
		mt.AddMockResponses(mtest.CreateSuccessResponse(), mtest.CreateSuccessResponse())

		err := NewMongoStore(mt.DB).EnsureIndexes(context.Background(), message.ChannelWhatsApp, message.ChannelInstagram)
		if err != nil {
			t.Fatalf("ensure indexes: %v", err)
		}

		for _, want := range []string{"whatsapp_messages", "instagram_messages"} {
			started := mt.GetStartedEvent()
			if started == nil || started.CommandName != "createIndexes" {
				t.Fatalf("started=%+v", started)
			}
			if coll := started.Command.Lookup("createIndexes").StringValue(); coll != want {
				t.Fatalf("collection=%s, want %s", coll, want)
			}
			indexes, err := started.Command.Lookup("indexes").Array().Values()
			if err != nil || len(indexes) != 1 {
				t.Fatalf("indexes=%v err=%v", indexes, err)
			}
			index := indexes[0].Document()
			if name := index.Lookup("name").StringValue(); name != "external_message_id" {
				t.Fatalf("index name=%s", name)
			}
			if _, err := index.LookupErr("unique"); err == nil {
				t.Fatal("index must not be unique")
			}
			var keys bson.D
			if err := bson.Unmarshal(index.Lookup("key").Document(), &keys); err != nil {
				t.Fatalf("decode key: %v", err)
			}
			if len(keys) != 1 || keys[0].Key != "external_message_id" {
				t.Fatalf("key=%v", keys)
			}
		}
	})
}
