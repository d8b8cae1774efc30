package dynamo

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sort"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/aws-sdk-go-v2/service/dynamodbstreams"
	streamtypes "github.com/aws/aws-sdk-go-v2/service/dynamodbstreams/types"
	"github.com/planboard/notify/internal/domain"
)

// shardRefreshEvery is the number of poll ticks between DescribeStream calls.
const shardRefreshEvery = 30

type tableDescriber interface {
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
}

type streamsAPI interface {
	DescribeStream(ctx context.Context, in *dynamodbstreams.DescribeStreamInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.DescribeStreamOutput, error)
	GetShardIterator(ctx context.Context, in *dynamodbstreams.GetShardIteratorInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetShardIteratorOutput, error)
	GetRecords(ctx context.Context, in *dynamodbstreams.GetRecordsInput, optFns ...func(*dynamodbstreams.Options)) (*dynamodbstreams.GetRecordsOutput, error)
}

type shardState struct {
	parent   string
	iterator *string
}

// StreamPoller tails the notifications table stream and publishes every
// inserted row. Shards are read parent-first so per-key order is preserved.
type StreamPoller struct {
	tables    tableDescriber
	streams   streamsAPI
	tableName string
	interval  time.Duration
	publish   func(domain.Notification)

	streamARN string
	shards    map[string]*shardState
	closed    map[string]bool
}

func NewStreamPoller(tables tableDescriber, streams streamsAPI, tableName string, interval time.Duration, publish func(domain.Notification)) *StreamPoller {
	return &StreamPoller{
		tables:    tables,
		streams:   streams,
		tableName: tableName,
		interval:  interval,
		publish:   publish,
		shards:    make(map[string]*shardState),
		closed:    make(map[string]bool),
	}
}

// Run polls until ctx is cancelled.
func (p *StreamPoller) Run(ctx context.Context) error {
	if err := p.init(ctx); err != nil {
		return err
	}
	slog.Info("stream poller started", "table", p.tableName, "stream", p.streamARN, "shards", len(p.shards))

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for tick := 1; ; tick++ {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
		shardClosed := p.pollOnce(ctx)
		if shardClosed || tick%shardRefreshEvery == 0 {
			if err := p.refreshShards(ctx, streamtypes.ShardIteratorTypeTrimHorizon); err != nil {
				slog.Warn("could not refresh stream shards", "table", p.tableName, "err", err)
			}
		}
	}
}

func (p *StreamPoller) init(ctx context.Context) error {
	out, err := p.tables.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(p.tableName)})
	if err != nil {
		return transportErr("describe table", err)
	}
	if out.Table == nil || out.Table.LatestStreamArn == nil {
		return fmt.Errorf("table %s has no stream enabled", p.tableName)
	}
	p.streamARN = *out.Table.LatestStreamArn
	// Only events from now on; history is served by ListRecent.
	return p.refreshShards(ctx, streamtypes.ShardIteratorTypeLatest)
}

// refreshShards registers shards not seen before. Closed shards found on the
// first describe are skipped; later ones are read from their start.
func (p *StreamPoller) refreshShards(ctx context.Context, iterType streamtypes.ShardIteratorType) error {
	var lastShard *string
	for {
		out, err := p.streams.DescribeStream(ctx, &dynamodbstreams.DescribeStreamInput{
			StreamArn:             aws.String(p.streamARN),
			ExclusiveStartShardId: lastShard,
		})
		if err != nil {
			return transportErr("describe stream", err)
		}
		if out.StreamDescription == nil {
			return nil
		}
		for _, sh := range out.StreamDescription.Shards {
			id := aws.ToString(sh.ShardId)
			if _, known := p.shards[id]; known || p.closed[id] {
				continue
			}
			ended := sh.SequenceNumberRange != nil && sh.SequenceNumberRange.EndingSequenceNumber != nil
			if ended && iterType == streamtypes.ShardIteratorTypeLatest {
				p.closed[id] = true
				continue
			}
			it, err := p.iterator(ctx, id, iterType)
			if err != nil {
				return err
			}
			p.shards[id] = &shardState{parent: aws.ToString(sh.ParentShardId), iterator: it}
		}
		lastShard = out.StreamDescription.LastEvaluatedShardId
		if lastShard == nil {
			return nil
		}
	}
}

func (p *StreamPoller) iterator(ctx context.Context, shardID string, iterType streamtypes.ShardIteratorType) (*string, error) {
	out, err := p.streams.GetShardIterator(ctx, &dynamodbstreams.GetShardIteratorInput{
		StreamArn:         aws.String(p.streamARN),
		ShardId:           aws.String(shardID),
		ShardIteratorType: iterType,
	})
	if err != nil {
		return nil, transportErr("get shard iterator", err)
	}
	return out.ShardIterator, nil
}

// pollOnce reads every open shard once and reports whether any shard closed.
func (p *StreamPoller) pollOnce(ctx context.Context) bool {
	ids := make([]string, 0, len(p.shards))
	for id := range p.shards {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	shardClosed := false
	for _, id := range ids {
		st := p.shards[id]
		if _, parentOpen := p.shards[st.parent]; st.parent != "" && parentOpen {
			continue
		}
		out, err := p.streams.GetRecords(ctx, &dynamodbstreams.GetRecordsInput{ShardIterator: st.iterator})
		if err != nil {
			var expired *streamtypes.ExpiredIteratorException
			if errors.As(err, &expired) {
				if it, itErr := p.iterator(ctx, id, streamtypes.ShardIteratorTypeLatest); itErr == nil {
					st.iterator = it
				}
				continue
			}
			slog.Warn("could not read stream records", "shard", id, "err", err)
			continue
		}
		for _, rec := range out.Records {
			p.handleRecord(rec)
		}
		if out.NextShardIterator == nil {
			delete(p.shards, id)
			p.closed[id] = true
			shardClosed = true
			continue
		}
		st.iterator = out.NextShardIterator
	}
	return shardClosed
}

func (p *StreamPoller) handleRecord(rec streamtypes.Record) {
	if rec.EventName != streamtypes.OperationTypeInsert || rec.Dynamodb == nil {
		return
	}
	n, err := decodeNotification(rec.Dynamodb.NewImage)
	if err != nil {
		slog.Warn("could not decode stream record", "event_id", aws.ToString(rec.EventID), "err", err)
		return
	}
	p.publish(n)
}

func decodeNotification(image map[string]streamtypes.AttributeValue) (domain.Notification, error) {
	var n domain.Notification
	item := make(map[string]types.AttributeValue, len(image))
	for k, v := range image {
		item[k] = toDynamoAV(v)
	}
	err := attributevalue.UnmarshalMap(item, &n)
	return n, err
}

// toDynamoAV converts a stream attribute value into the equivalent table
// attribute value so the regular attributevalue decoder can be reused.
func toDynamoAV(av streamtypes.AttributeValue) types.AttributeValue {
	switch v := av.(type) {
	case *streamtypes.AttributeValueMemberS:
		return &types.AttributeValueMemberS{Value: v.Value}
	case *streamtypes.AttributeValueMemberN:
		return &types.AttributeValueMemberN{Value: v.Value}
	case *streamtypes.AttributeValueMemberB:
		return &types.AttributeValueMemberB{Value: v.Value}
	case *streamtypes.AttributeValueMemberBOOL:
		return &types.AttributeValueMemberBOOL{Value: v.Value}
	case *streamtypes.AttributeValueMemberNULL:
		return &types.AttributeValueMemberNULL{Value: v.Value}
	case *streamtypes.AttributeValueMemberSS:
		return &types.AttributeValueMemberSS{Value: v.Value}
	case *streamtypes.AttributeValueMemberNS:
		return &types.AttributeValueMemberNS{Value: v.Value}
	case *streamtypes.AttributeValueMemberBS:
		return &types.AttributeValueMemberBS{Value: v.Value}
	case *streamtypes.AttributeValueMemberL:
		l := make([]types.AttributeValue, len(v.Value))
		for i, e := range v.Value {
			l[i] = toDynamoAV(e)
		}
		return &types.AttributeValueMemberL{Value: l}
	case *streamtypes.AttributeValueMemberM:
		m := make(map[string]types.AttributeValue, len(v.Value))
		for k, e := range v.Value {
			m[k] = toDynamoAV(e)
		}
		return &types.AttributeValueMemberM{Value: m}
	}
	return &types.AttributeValueMemberNULL{Value: true}
}
