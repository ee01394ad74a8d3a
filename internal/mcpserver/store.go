package mcpserver

import (
	"context"
	"crypto/rand"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/oklog/ulid/v2"

	"github.com/apresai/pdfcast/internal/observability"
)

// JobStatus represents the state of a podcast generation job.
type JobStatus string

const (
	JobStatusSubmitted    JobStatus = "submitted"
	JobStatusUploading    JobStatus = "uploading"
	JobStatusScripting    JobStatus = "scripting"
	JobStatusSynthesizing JobStatus = "synthesizing"
	JobStatusComplete     JobStatus = "complete"
	JobStatusFailed       JobStatus = "failed"
	JobStatusCancelled    JobStatus = "cancelled"
)

// PodcastItem is the stored record for a podcast job.
type PodcastItem struct {
	PK              string  `dynamodbav:"PK"`
	SK              string  `dynamodbav:"SK"`
	GSI1PK          string  `dynamodbav:"GSI1PK"`
	GSI1SK          string  `dynamodbav:"GSI1SK"`
	PodcastID       string  `dynamodbav:"podcastId"`
	SourceName      string  `dynamodbav:"sourceName"`
	Language        string  `dynamodbav:"language"`
	Status          string  `dynamodbav:"status"`
	ProgressPercent float64 `dynamodbav:"progressPercent,omitempty"`
	StageMessage    string  `dynamodbav:"stageMessage,omitempty"`
	ErrorMessage    string  `dynamodbav:"errorMessage,omitempty"`
	Title           string  `dynamodbav:"title,omitempty"`
	Summary         string  `dynamodbav:"summary,omitempty"`
	Turns           int     `dynamodbav:"turns,omitempty"`
	DocumentRef     string  `dynamodbav:"documentRef,omitempty"`
	AudioRef        string  `dynamodbav:"audioRef,omitempty"`
	CreatedAt       string  `dynamodbav:"createdAt"`
}

// JobResult is what a finished job records.
type JobResult struct {
	Title       string
	Summary     string
	Turns       int
	DocumentRef string
	AudioRef    string
}

// JobStore persists podcast jobs.
type JobStore interface {
	CreateJob(ctx context.Context, id, sourceName, language string) error
	UpdateProgress(ctx context.Context, id string, status JobStatus, percent float64, message string) error
	CompleteJob(ctx context.Context, id string, res JobResult) error
	FailJob(ctx context.Context, id string, status JobStatus, errMsg string) error
	GetPodcast(ctx context.Context, id string) (*PodcastItem, error)
	ListPodcasts(ctx context.Context, limit int, cursor string) ([]PodcastItem, string, error)
}

// NewPodcastID generates a ULID for a new podcast.
func NewPodcastID() (string, error) {
	id, err := ulid.New(ulid.Timestamp(time.Now()), rand.Reader)
	if err != nil {
		return "", fmt.Errorf("generate ulid: %w", err)
	}
	return id.String(), nil
}

func newItem(id, sourceName, language string, now time.Time) PodcastItem {
	created := now.UTC().Format(time.RFC3339)
	return PodcastItem{
		PK:         "PODCAST#" + id,
		SK:         "METADATA",
		GSI1PK:     "PODCASTS",
		GSI1SK:     created + "#" + id,
		PodcastID:  id,
		SourceName: sourceName,
		Language:   language,
		Status:     string(JobStatusSubmitted),
		CreatedAt:  created,
	}
}

// MemoryStore keeps jobs in process memory. Jobs are lost on restart.
type MemoryStore struct {
	mu    sync.Mutex
	items map[string]*PodcastItem
	now   func() time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{items: make(map[string]*PodcastItem), now: time.Now}
}

func (s *MemoryStore) CreateJob(ctx context.Context, id, sourceName, language string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.items[id]; ok {
		return fmt.Errorf("put job item: podcast %s already exists", id)
	}
	item := newItem(id, sourceName, language, s.now())
	s.items[id] = &item
	return nil
}

func (s *MemoryStore) update(id string, fn func(*PodcastItem)) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return fmt.Errorf("podcast %s not found", id)
	}
	fn(item)
	return nil
}

func (s *MemoryStore) UpdateProgress(ctx context.Context, id string, status JobStatus, percent float64, message string) error {
	return s.update(id, func(it *PodcastItem) {
		it.Status = string(status)
		it.ProgressPercent = percent
		it.StageMessage = message
	})
}

func (s *MemoryStore) CompleteJob(ctx context.Context, id string, res JobResult) error {
	return s.update(id, func(it *PodcastItem) {
		it.Status = string(JobStatusComplete)
		it.ProgressPercent = 100
		it.StageMessage = "Complete"
		it.Title = res.Title
		it.Summary = res.Summary
		it.Turns = res.Turns
		it.DocumentRef = res.DocumentRef
		it.AudioRef = res.AudioRef
	})
}

func (s *MemoryStore) FailJob(ctx context.Context, id string, status JobStatus, errMsg string) error {
	return s.update(id, func(it *PodcastItem) {
		it.Status = string(status)
		it.ErrorMessage = errMsg
		it.StageMessage = "Failed: " + errMsg
	})
}

func (s *MemoryStore) GetPodcast(ctx context.Context, id string) (*PodcastItem, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	item, ok := s.items[id]
	if !ok {
		return nil, nil
	}
	cp := *item
	return &cp, nil
}

// ListPodcasts returns podcasts newest first. The cursor is the GSI1SK of the
// last item of the previous page, as with DynamoStore.
func (s *MemoryStore) ListPodcasts(ctx context.Context, limit int, cursor string) ([]PodcastItem, string, error) {
	if limit <= 0 {
		limit = 20
	}
	s.mu.Lock()
	all := make([]PodcastItem, 0, len(s.items))
	for _, it := range s.items {
		all = append(all, *it)
	}
	s.mu.Unlock()

	sort.Slice(all, func(i, j int) bool { return all[i].GSI1SK > all[j].GSI1SK })
	start := 0
	if cursor != "" {
		start = sort.Search(len(all), func(i int) bool { return all[i].GSI1SK < cursor })
	}
	end := min(start+limit, len(all))
	page := all[start:end]

	var next string
	if end < len(all) && len(page) > 0 {
		next = page[len(page)-1].GSI1SK
	}
	return page, next, nil
}

// DynamoAPI is the subset of the DynamoDB client the store uses.
type DynamoAPI interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, opts ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, in *dynamodb.QueryInput, opts ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
}

// DynamoStore keeps jobs in a single DynamoDB table with a GSI1 index for
// newest-first listing.
type DynamoStore struct {
	client    DynamoAPI
	tableName string
	now       func() time.Time
}

// NewDynamoStore creates a DynamoDB store.
func NewDynamoStore(client DynamoAPI, tableName string) *DynamoStore {
	return &DynamoStore{client: client, tableName: tableName, now: time.Now}
}

// DialDynamoStore builds a client from the default AWS credential chain.
func DialDynamoStore(ctx context.Context, region, tableName string) (*DynamoStore, error) {
	cfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("load aws config: %w", err)
	}
	observability.InstrumentAWS(&cfg)
	return NewDynamoStore(dynamodb.NewFromConfig(cfg), tableName), nil
}

func podcastKey(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		"PK": &types.AttributeValueMemberS{Value: "PODCAST#" + id},
		"SK": &types.AttributeValueMemberS{Value: "METADATA"},
	}
}

// CreateJob inserts a new podcast job with status=submitted.
func (s *DynamoStore) CreateJob(ctx context.Context, id, sourceName, language string) error {
	av, err := attributevalue.MarshalMap(newItem(id, sourceName, language, s.now()))
	if err != nil {
		return fmt.Errorf("marshal job item: %w", err)
	}
	_, err = s.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           &s.tableName,
		Item:                av,
		ConditionExpression: aws.String("attribute_not_exists(PK)"),
	})
	if err != nil {
		return fmt.Errorf("put job item: %w", err)
	}
	return nil
}

// UpdateProgress updates the job's status, progress percent, and stage message.
func (s *DynamoStore) UpdateProgress(ctx context.Context, id string, status JobStatus, percent float64, message string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              podcastKey(id),
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":pct":    &types.AttributeValueMemberN{Value: fmt.Sprintf("%.2f", percent)},
			":msg":    &types.AttributeValueMemberS{Value: message},
		},
	})
	if err != nil {
		return fmt.Errorf("update progress: %w", err)
	}
	return nil
}

// CompleteJob marks the job as complete with its artifacts.
func (s *DynamoStore) CompleteJob(ctx context.Context, id string, res JobResult) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              podcastKey(id),
		UpdateExpression: aws.String("SET #status = :status, progressPercent = :pct, stageMessage = :msg, title = :title, summary = :summary, turns = :turns, documentRef = :dref, audioRef = :aref"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status":  &types.AttributeValueMemberS{Value: string(JobStatusComplete)},
			":pct":     &types.AttributeValueMemberN{Value: "100.00"},
			":msg":     &types.AttributeValueMemberS{Value: "Complete"},
			":title":   &types.AttributeValueMemberS{Value: res.Title},
			":summary": &types.AttributeValueMemberS{Value: res.Summary},
			":turns":   &types.AttributeValueMemberN{Value: fmt.Sprintf("%d", res.Turns)},
			":dref":    &types.AttributeValueMemberS{Value: res.DocumentRef},
			":aref":    &types.AttributeValueMemberS{Value: res.AudioRef},
		},
	})
	if err != nil {
		return fmt.Errorf("complete job: %w", err)
	}
	return nil
}

// FailJob marks the job as failed or cancelled with an error message.
func (s *DynamoStore) FailJob(ctx context.Context, id string, status JobStatus, errMsg string) error {
	_, err := s.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:        &s.tableName,
		Key:              podcastKey(id),
		UpdateExpression: aws.String("SET #status = :status, errorMessage = :err, stageMessage = :msg"),
		ExpressionAttributeNames: map[string]string{
			"#status": "status",
		},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":status": &types.AttributeValueMemberS{Value: string(status)},
			":err":    &types.AttributeValueMemberS{Value: errMsg},
			":msg":    &types.AttributeValueMemberS{Value: "Failed: " + errMsg},
		},
	})
	if err != nil {
		return fmt.Errorf("fail job: %w", err)
	}
	return nil
}

// GetPodcast retrieves a single podcast by ID. A missing podcast is nil, nil.
func (s *DynamoStore) GetPodcast(ctx context.Context, id string) (*PodcastItem, error) {
	result, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: &s.tableName,
		Key:       podcastKey(id),
	})
	if err != nil {
		return nil, fmt.Errorf("get podcast: %w", err)
	}
	if result.Item == nil {
		return nil, nil
	}

	var item PodcastItem
	if err := attributevalue.UnmarshalMap(result.Item, &item); err != nil {
		return nil, fmt.Errorf("unmarshal podcast: %w", err)
	}
	return &item, nil
}

// ListPodcasts returns podcasts ordered by creation time (newest first) via GSI1.
func (s *DynamoStore) ListPodcasts(ctx context.Context, limit int, cursor string) ([]PodcastItem, string, error) {
	if limit <= 0 {
		limit = 20
	}

	input := &dynamodb.QueryInput{
		TableName:              &s.tableName,
		IndexName:              aws.String("GSI1"),
		KeyConditionExpression: aws.String("GSI1PK = :pk"),
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":pk": &types.AttributeValueMemberS{Value: "PODCASTS"},
		},
		ScanIndexForward: aws.Bool(false),
		Limit:            aws.Int32(int32(limit)),
	}

	if cursor != "" {
		// cursor is the full GSI1SK value ({timestamp}#{id})
		parts := strings.SplitN(cursor, "#", 2)
		if len(parts) != 2 {
			return nil, "", fmt.Errorf("invalid cursor format")
		}
		start := podcastKey(parts[1])
		start["GSI1PK"] = &types.AttributeValueMemberS{Value: "PODCASTS"}
		start["GSI1SK"] = &types.AttributeValueMemberS{Value: cursor}
		input.ExclusiveStartKey = start
	}

	result, err := s.client.Query(ctx, input)
	if err != nil {
		return nil, "", fmt.Errorf("list podcasts: %w", err)
	}

	var items []PodcastItem
	if err := attributevalue.UnmarshalListOfMaps(result.Items, &items); err != nil {
		return nil, "", fmt.Errorf("unmarshal podcast list: %w", err)
	}

	var nextCursor string
	if result.LastEvaluatedKey != nil {
		if gsi1sk, ok := result.LastEvaluatedKey["GSI1SK"].(*types.AttributeValueMemberS); ok {
			nextCursor = gsi1sk.Value
		}
	}

	return items, nextCursor, nil
}
