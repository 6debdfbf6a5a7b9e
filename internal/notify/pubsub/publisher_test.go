package pubsub

import (
	"context"
	"encoding/json"
	"testing"
	"time"

	"cloud.google.com/go/pubsub"
	"cloud.google.com/go/pubsub/pstest"
	"github.com/stretchr/testify/require"
	"google.golang.org/api/option"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"

	"github.com/JakeFAU/gazette-watch/internal/gazette"
)

func TestPublisherNotify(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	srv := pstest.NewServer()
	defer srv.Close()

	conn, err := grpc.NewClient(srv.Addr, grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)
	defer conn.Close()

	client, err := pubsub.NewClient(ctx, "project-id", option.WithGRPCConn(conn))
	require.NoError(t, err)
	defer client.Close()

	topic, err := client.CreateTopic(ctx, "dou-matches")
	require.NoError(t, err)

	pub := New(topic)
	defer pub.Stop()

	n := gazette.Notification{
		Date: time.Date(2024, 3, 14, 0, 0, 0, 0, time.UTC),
		Matches: []gazette.Match{{
			RawNumber:        "19515.720728/2017-36",
			NormalizedNumber: "19515720728201736",
			Section:          gazette.SectionOne,
			Page:             "12",
		}},
	}
	id, err := pub.Publish(ctx, n)
	require.NoError(t, err)
	require.NotEmpty(t, id)

	msgs := srv.Messages()
	require.Len(t, msgs, 1)
	require.Equal(t, "2024-03-14", msgs[0].Attributes["date"])
	require.Equal(t, "1", msgs[0].Attributes["match_count"])

	var got payload
	require.NoError(t, json.Unmarshal(msgs[0].Data, &got))
	require.Equal(t, "2024-03-14", got.Date)
	require.Equal(t, n.Matches, got.Matches)
}

func TestPublisherWithoutTopic(t *testing.T) {
	t.Parallel()

	require.Error(t, New(nil).Notify(context.Background(), gazette.Notification{}))
}

func TestCarrierKeys(t *testing.T) {
	t.Parallel()

	c := &pubsubCarrier{attrs: map[string]string{}}
	c.Set("traceparent", "00-abc")
	require.Equal(t, "00-abc", c.Get("traceparent"))
	require.Equal(t, []string{"traceparent"}, c.Keys())
}
