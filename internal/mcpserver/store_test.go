package mcpserver

import (
	"context"
	"log/slog"
	"strings"
	"testing"
	"time"

	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
)

func discard() *slog.Logger {
	return slog.New(slog.DiscardHandler)
}

func fixedClock() func() time.Time {
	return func() time.Time { return time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC) }
}

// TestMemoryStoreListPaginates verifies newest-first pages joined by cursor.
func TestMemoryStoreListPaginates(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	s.now = fixedClock()
	for _, id := range []string{"01A", "01B", "01C"} {
		if err := s.CreateJob(ctx, id, id+".pdf", "en"); err != nil {
			t.Fatal(err)
		}
	}

	page, next, err := s.ListPodcasts(ctx, 2, "")
	if err != nil {
		t.Fatal(err)
	}
	if len(page) != 2 || page[0].PodcastID != "01C" || page[1].PodcastID != "01B" {
		t.Fatalf("first page = %v", ids(page))
	}
	if next == "" {
		t.Fatal("expected a next cursor")
	}

	page, next, _ = s.ListPodcasts(ctx, 2, next)
	if len(page) != 1 || page[0].PodcastID != "01A" || next != "" {
		t.Fatalf("second page = %v next=%q", ids(page), next)
	}
}

func TestMemoryStoreLifecycle(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryStore()
	if err := s.CreateJob(ctx, "01A", "a.pdf", "fr"); err != nil {
		t.Fatal(err)
	}
	if err := s.CreateJob(ctx, "01A", "a.pdf", "fr"); err == nil {
		t.Fatal("duplicate job accepted")
	}
	if err := s.UpdateProgress(ctx, "01A", JobStatusScripting, 42, "Creating Your Podcast Script..."); err != nil {
		t.Fatal(err)
	}
	item, _ := s.GetPodcast(ctx, "01A")
	if item.Status != "scripting" || item.ProgressPercent != 42 {
		t.Fatalf("item = %+v", item)
	}
	if err := s.CompleteJob(ctx, "01A", JobResult{Title: "T", Turns: 3, AudioRef: "a_podcast.mp3"}); err != nil {
		t.Fatal(err)
	}
	item, _ = s.GetPodcast(ctx, "01A")
	if item.Status != "complete" || item.ProgressPercent != 100 || item.AudioRef != "a_podcast.mp3" {
		t.Fatalf("item = %+v", item)
	}
	if err := s.UpdateProgress(ctx, "missing", JobStatusScripting, 1, ""); err == nil {
		t.Fatal("update of a missing job succeeded")
	}
	if item, err := s.GetPodcast(ctx, "missing"); item != nil || err != nil {
		t.Fatalf("GetPodcast(missing) = %v, %v", item, err)
	}
}

// fakeDynamo records requests and serves GetItem from what PutItem stored.
type fakeDynamo struct {
	puts    []*dynamodb.PutItemInput
	updates []*dynamodb.UpdateItemInput
	queries []*dynamodb.QueryInput
	items   map[string]map[string]types.AttributeValue
}

func (f *fakeDynamo) PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error) {
	f.puts = append(f.puts, in)
	pk := in.Item["PK"].(*types.AttributeValueMemberS).Value
	if f.items == nil {
		f.items = map[string]map[string]types.AttributeValue{}
	}
	f.items[pk] = in.Item
	return &dynamodb.PutItemOutput{}, nil
}

func (f *fakeDynamo) UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error) {
	f.updates = append(f.updates, in)
	return &dynamodb.UpdateItemOutput{}, nil
}

func (f *fakeDynamo) GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error) {
	pk := in.Key["PK"].(*types.AttributeValueMemberS).Value
	return &dynamodb.GetItemOutput{Item: f.items[pk]}, nil
}

func (f *fakeDynamo) Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error) {
	f.queries = append(f.queries, in)
	var out []map[string]types.AttributeValue
	for _, it := range f.items {
		out = append(out, it)
	}
	return &dynamodb.QueryOutput{
		Items:            out,
		LastEvaluatedKey: map[string]types.AttributeValue{"GSI1SK": &types.AttributeValueMemberS{Value: "2026-03-01T12:00:00Z#01A"}},
	}, nil
}

func TestDynamoStoreCreateAndGet(t *testing.T) {
	ctx := context.Background()
	fd := &fakeDynamo{}
	s := NewDynamoStore(fd, "pdfcast-jobs")
	s.now = fixedClock()

	if err := s.CreateJob(ctx, "01A", "lecture.pdf", "hi"); err != nil {
		t.Fatal(err)
	}
	put := fd.puts[0]
	if *put.TableName != "pdfcast-jobs" || *put.ConditionExpression != "attribute_not_exists(PK)" {
		t.Fatalf("put = table %q condition %q", *put.TableName, *put.ConditionExpression)
	}

	item, err := s.GetPodcast(ctx, "01A")
	if err != nil || item == nil {
		t.Fatalf("GetPodcast = %v, %v", item, err)
	}
	if item.GSI1SK != "2026-03-01T12:00:00Z#01A" || item.Language != "hi" || item.Status != "submitted" {
		t.Fatalf("item = %+v", item)
	}
	if item, err := s.GetPodcast(ctx, "missing"); item != nil || err != nil {
		t.Fatalf("GetPodcast(missing) = %v, %v", item, err)
	}
}

func TestDynamoStoreUpdates(t *testing.T) {
	ctx := context.Background()
	fd := &fakeDynamo{}
	s := NewDynamoStore(fd, "jobs")

	if err := s.UpdateProgress(ctx, "01A", JobStatusSynthesizing, 55.5, "Generating Your Podcast Audio..."); err != nil {
		t.Fatal(err)
	}
	if err := s.FailJob(ctx, "01A", JobStatusCancelled, "cancelled"); err != nil {
		t.Fatal(err)
	}
	if len(fd.updates) != 2 {
		t.Fatalf("updates = %d, want 2", len(fd.updates))
	}
	pct := fd.updates[0].ExpressionAttributeValues[":pct"].(*types.AttributeValueMemberN).Value
	if pct != "55.50" {
		t.Fatalf(":pct = %q, want 55.50", pct)
	}
	status := fd.updates[1].ExpressionAttributeValues[":status"].(*types.AttributeValueMemberS).Value
	if status != "cancelled" {
		t.Fatalf(":status = %q, want cancelled", status)
	}
	pk := fd.updates[1].Key["PK"].(*types.AttributeValueMemberS).Value
	if pk != "PODCAST#01A" {
		t.Fatalf("PK = %q", pk)
	}
}

func TestDynamoStoreList(t *testing.T) {
	ctx := context.Background()
	av, err := attributevalue.MarshalMap(newItem("01A", "a.pdf", "en", fixedClock()()))
	if err != nil {
		t.Fatal(err)
	}
	fd := &fakeDynamo{items: map[string]map[string]types.AttributeValue{"PODCAST#01A": av}}
	s := NewDynamoStore(fd, "jobs")

	items, next, err := s.ListPodcasts(ctx, 0, "2026-03-02T00:00:00Z#01B")
	if err != nil {
		t.Fatal(err)
	}
	if len(items) != 1 || items[0].PodcastID != "01A" || next != "2026-03-01T12:00:00Z#01A" {
		t.Fatalf("items = %v next = %q", ids(items), next)
	}
	q := fd.queries[0]
	if *q.IndexName != "GSI1" || *q.Limit != 20 || *q.ScanIndexForward {
		t.Fatalf("query = index %q limit %d forward %v", *q.IndexName, *q.Limit, *q.ScanIndexForward)
	}
	start := q.ExclusiveStartKey["PK"].(*types.AttributeValueMemberS).Value
	if start != "PODCAST#01B" {
		t.Fatalf("start key PK = %q", start)
	}

	if _, _, err := s.ListPodcasts(ctx, 5, "no-separator"); err == nil || !strings.Contains(err.Error(), "cursor") {
		t.Fatalf("bad cursor err = %v", err)
	}
}

func ids(items []PodcastItem) []string {
	out := make([]string, len(items))
	for i, it := range items {
		out[i] = it.PodcastID
	}
	return out
}
