// Package dynamostore implements the relational cache store on top of AWS
// DynamoDB, so multiple instances (the refresh daemon and the Lambda read
// path) can share one cache. Single-table layout:
//
//	PK = NS#<namespace>
//	SK = <encoded key>
//
// Attributes and relationships are stored denormalized on the item; the
// per-key last-writer-wins semantics fall out of DynamoDB's item-level
// writes.
package dynamostore

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"stratus-backend/domain/cache"
	appErrors "stratus-backend/pkg/errors"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/expression"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/aws/smithy-go"
	"go.uber.org/zap"
)

const (
	pkPrefix       = "NS#"
	batchWriteMax  = 25
	batchGetMax    = 100
	unprocessedTry = 3
)

// ddbEntity is the stored shape of one cache entity.
type ddbEntity struct {
	PK            string              `dynamodbav:"PK"`
	SK            string              `dynamodbav:"SK"`
	Namespace     string              `dynamodbav:"Namespace"`
	Attributes    map[string]any      `dynamodbav:"Attributes"`
	Relationships map[string][]string `dynamodbav:"Relationships"`
	Owner         string              `dynamodbav:"Owner"`
	UpdatedAt     string              `dynamodbav:"UpdatedAt"`
}

// Store is the DynamoDB-backed relational cache store.
type Store struct {
	client    *dynamodb.Client
	tableName string
	strict    bool
	logger    *zap.Logger
}

// Option configures the store.
type Option func(*Store)

// WithStrictAuthority makes authoritative merges from a non-owner source
// fail with a MergeConflict instead of displacing the owner's data.
func WithStrictAuthority() Option {
	return func(s *Store) { s.strict = true }
}

// New creates a DynamoDB-backed store against the given table.
func New(client *dynamodb.Client, tableName string, logger *zap.Logger, opts ...Option) *Store {
	if logger == nil {
		logger = zap.NewNop()
	}
	s := &Store{
		client:    client,
		tableName: tableName,
		logger:    logger,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func partitionKey(ns cache.Namespace) string {
	return pkPrefix + string(ns)
}

func (s *Store) toItem(entity *cache.Entity, owner string, now time.Time) (map[string]types.AttributeValue, error) {
	rels := make(map[string][]string, len(entity.Relationships))
	for ns, keys := range entity.Relationships {
		encoded := make([]string, len(keys))
		for i, k := range keys {
			encoded[i] = k.Encode()
		}
		sort.Strings(encoded)
		rels[string(ns)] = encoded
	}
	item, err := attributevalue.MarshalMap(ddbEntity{
		PK:            partitionKey(entity.ID.Namespace),
		SK:            entity.ID.Encode(),
		Namespace:     string(entity.ID.Namespace),
		Attributes:    entity.Attributes.Interface(),
		Relationships: rels,
		Owner:         owner,
		UpdatedAt:     now.Format(time.RFC3339Nano),
	})
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to marshal cache entity")
	}
	return item, nil
}

func fromItem(item map[string]types.AttributeValue) (*cache.Entity, string, error) {
	var stored ddbEntity
	if err := attributevalue.UnmarshalMap(item, &stored); err != nil {
		return nil, "", appErrors.Wrap(err, "failed to unmarshal cache entity")
	}
	key, err := cache.Decode(stored.SK)
	if err != nil {
		return nil, "", err
	}
	attrs, err := cache.AttributesFrom(stored.Attributes)
	if err != nil {
		return nil, "", appErrors.Wrap(err, "failed to convert stored attributes")
	}
	entity := &cache.Entity{
		ID:            key,
		Attributes:    attrs,
		Relationships: make(map[cache.Namespace][]cache.Key, len(stored.Relationships)),
	}
	for ns, tokens := range stored.Relationships {
		for _, token := range tokens {
			edge, err := cache.Decode(token)
			if err != nil {
				return nil, "", err
			}
			entity.Relationships[cache.Namespace(ns)] = append(entity.Relationships[cache.Namespace(ns)], edge)
		}
	}
	return entity, stored.Owner, nil
}

// Get retrieves a single entity. An absent key returns (nil, nil).
func (s *Store) Get(ctx context.Context, ns cache.Namespace, key cache.Key) (*cache.Entity, error) {
	out, err := s.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(s.tableName),
		Key: map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: partitionKey(ns)},
			"SK": &types.AttributeValueMemberS{Value: key.Encode()},
		},
	})
	if err != nil {
		return nil, s.wrapAWS(err, "point lookup failed")
	}
	if out.Item == nil {
		return nil, nil
	}
	entity, _, err := fromItem(out.Item)
	if err != nil {
		return nil, err
	}
	return entity, nil
}

// GetAll retrieves entities in bulk. A nil keys slice scans the whole
// namespace partition; otherwise the named keys are batch-read. Absent
// keys are skipped.
func (s *Store) GetAll(ctx context.Context, ns cache.Namespace, keys []cache.Key, filter cache.RelationshipFilter) ([]*cache.Entity, error) {
	var entities []*cache.Entity
	var err error
	if keys == nil {
		entities, err = s.queryPartition(ctx, ns)
	} else {
		entities, _, err = s.batchGet(ctx, ns, keys)
	}
	if err != nil {
		return nil, err
	}

	out := make([]*cache.Entity, len(entities))
	for i, entity := range entities {
		out[i] = entity.Filtered(filter)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].ID.Encode() < out[j].ID.Encode()
	})
	return out, nil
}

func (s *Store) queryPartition(ctx context.Context, ns cache.Namespace) ([]*cache.Entity, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(partitionKey(ns)))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to build partition query")
	}

	var entities []*cache.Entity
	var startKey map[string]types.AttributeValue
	for {
		out, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, s.wrapAWS(err, "partition query failed")
		}
		for _, item := range out.Items {
			entity, _, err := fromItem(item)
			if err != nil {
				return nil, err
			}
			entities = append(entities, entity)
		}
		if out.LastEvaluatedKey == nil {
			break
		}
		startKey = out.LastEvaluatedKey
	}
	return entities, nil
}

// batchGet reads the named keys and also reports each entity's current
// owner, which Merge needs for informative overlays and strict authority
// checks.
func (s *Store) batchGet(ctx context.Context, ns cache.Namespace, keys []cache.Key) ([]*cache.Entity, map[string]string, error) {
	owners := make(map[string]string)
	var entities []*cache.Entity

	for start := 0; start < len(keys); start += batchGetMax {
		end := start + batchGetMax
		if end > len(keys) {
			end = len(keys)
		}
		requestKeys := make([]map[string]types.AttributeValue, 0, end-start)
		for _, key := range keys[start:end] {
			requestKeys = append(requestKeys, map[string]types.AttributeValue{
				"PK": &types.AttributeValueMemberS{Value: partitionKey(ns)},
				"SK": &types.AttributeValueMemberS{Value: key.Encode()},
			})
		}

		pending := map[string]types.KeysAndAttributes{
			s.tableName: {Keys: requestKeys},
		}
		for attempt := 0; len(pending) > 0 && attempt < unprocessedTry; attempt++ {
			out, err := s.client.BatchGetItem(ctx, &dynamodb.BatchGetItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return nil, nil, s.wrapAWS(err, "batch read failed")
			}
			for _, item := range out.Responses[s.tableName] {
				entity, owner, err := fromItem(item)
				if err != nil {
					return nil, nil, err
				}
				entities = append(entities, entity)
				owners[entity.ID.Encode()] = owner
			}
			pending = out.UnprocessedKeys
		}
		if len(pending) > 0 {
			return nil, nil, appErrors.NewInternal("batch read left unprocessed keys", nil)
		}
	}
	return entities, owners, nil
}

// FilterIdentifiers matches a glob pattern against the scope portion of
// keys in a namespace. The pattern's literal prefix narrows the range scan
// server-side; the full match applies client-side.
func (s *Store) FilterIdentifiers(ctx context.Context, ns cache.Namespace, pattern string) ([]cache.Key, error) {
	keyCond := expression.Key("PK").Equal(expression.Value(partitionKey(ns)))
	if prefix := cache.LiteralPrefix(pattern); prefix != "" {
		keyCond = keyCond.And(expression.Key("SK").BeginsWith(string(ns) + cache.Delimiter + prefix))
	}
	proj := expression.NamesList(expression.Name("SK"))
	expr, err := expression.NewBuilder().WithKeyCondition(keyCond).WithProjection(proj).Build()
	if err != nil {
		return nil, appErrors.Wrap(err, "failed to build identifier query")
	}

	var out []cache.Key
	var startKey map[string]types.AttributeValue
	for {
		page, err := s.client.Query(ctx, &dynamodb.QueryInput{
			TableName:                 aws.String(s.tableName),
			KeyConditionExpression:    expr.KeyCondition(),
			ProjectionExpression:      expr.Projection(),
			ExpressionAttributeNames:  expr.Names(),
			ExpressionAttributeValues: expr.Values(),
			ExclusiveStartKey:         startKey,
		})
		if err != nil {
			return nil, s.wrapAWS(err, "identifier query failed")
		}
		for _, item := range page.Items {
			sk, ok := item["SK"].(*types.AttributeValueMemberS)
			if !ok {
				continue
			}
			key, err := cache.Decode(sk.Value)
			if err != nil {
				return nil, err
			}
			if cache.MatchScope(pattern, key.Scope()) {
				out = append(out, key)
			}
		}
		if page.LastEvaluatedKey == nil {
			break
		}
		startKey = page.LastEvaluatedKey
	}

	sort.Slice(out, func(i, j int) bool {
		return out[i].Encode() < out[j].Encode()
	})
	return out, nil
}

// Merge writes entities under the given policy. Informative writes (and
// strict-mode authoritative writes) read the current items first so
// attributes overlay and relationship sets union instead of replacing.
func (s *Store) Merge(ctx context.Context, ns cache.Namespace, entities []*cache.Entity, policy cache.WritePolicy) error {
	if len(entities) == 0 {
		return nil
	}
	for _, entity := range entities {
		if entity.ID.Namespace != ns {
			return appErrors.NewValidation(fmt.Sprintf(
				"entity %q does not belong to namespace %q", entity.ID.Encode(), ns))
		}
	}

	var existing map[string]*cache.Entity
	var owners map[string]string
	if !policy.Authoritative || s.strict {
		keys := make([]cache.Key, len(entities))
		for i, entity := range entities {
			keys[i] = entity.ID
		}
		found, foundOwners, err := s.batchGet(ctx, ns, keys)
		if err != nil {
			return err
		}
		existing = make(map[string]*cache.Entity, len(found))
		for _, entity := range found {
			existing[entity.ID.Encode()] = entity
		}
		owners = foundOwners
	}

	now := time.Now()
	var conflicts []string
	items := make([]map[string]types.AttributeValue, 0, len(entities))
	for _, entity := range entities {
		token := entity.ID.Encode()

		if policy.Authoritative {
			if s.strict {
				if owner := owners[token]; owner != "" && owner != policy.Source {
					conflicts = append(conflicts, token)
					continue
				}
			}
			item, err := s.toItem(entity, policy.Source, now)
			if err != nil {
				return err
			}
			items = append(items, item)
			continue
		}

		// Informative write: overlay onto the stored entity.
		merged := entity
		owner := ""
		if current, ok := existing[token]; ok {
			owner = owners[token]
			merged = current.Clone()
			for name, value := range entity.Attributes {
				merged.Attributes[name] = value.Clone()
			}
			for _, edges := range entity.Relationships {
				for _, edge := range edges {
					merged.AddRelationship(edge)
				}
			}
		}
		item, err := s.toItem(merged, owner, now)
		if err != nil {
			return err
		}
		items = append(items, item)
	}

	if err := s.batchWrite(ctx, items, nil); err != nil {
		return err
	}

	if len(conflicts) > 0 {
		s.logger.Warn("rejected authoritative writes from non-owner",
			zap.String("namespace", string(ns)),
			zap.String("source", policy.Source),
			zap.Strings("keys", conflicts),
		)
		return appErrors.NewMergeConflict(fmt.Sprintf(
			"source %q is not the owner of: %s", policy.Source, strings.Join(conflicts, ", ")))
	}
	return nil
}

// Evict removes entities outright.
func (s *Store) Evict(ctx context.Context, ns cache.Namespace, keys []cache.Key) error {
	deletes := make([]map[string]types.AttributeValue, len(keys))
	for i, key := range keys {
		deletes[i] = map[string]types.AttributeValue{
			"PK": &types.AttributeValueMemberS{Value: partitionKey(ns)},
			"SK": &types.AttributeValueMemberS{Value: key.Encode()},
		}
	}
	return s.batchWrite(ctx, nil, deletes)
}

// batchWrite issues puts and deletes in chunks, retrying unprocessed items
// a bounded number of times.
func (s *Store) batchWrite(ctx context.Context, puts, deletes []map[string]types.AttributeValue) error {
	requests := make([]types.WriteRequest, 0, len(puts)+len(deletes))
	for _, item := range puts {
		requests = append(requests, types.WriteRequest{PutRequest: &types.PutRequest{Item: item}})
	}
	for _, key := range deletes {
		requests = append(requests, types.WriteRequest{DeleteRequest: &types.DeleteRequest{Key: key}})
	}

	for start := 0; start < len(requests); start += batchWriteMax {
		end := start + batchWriteMax
		if end > len(requests) {
			end = len(requests)
		}
		pending := map[string][]types.WriteRequest{
			s.tableName: requests[start:end],
		}
		for attempt := 0; len(pending) > 0 && attempt < unprocessedTry; attempt++ {
			out, err := s.client.BatchWriteItem(ctx, &dynamodb.BatchWriteItemInput{
				RequestItems: pending,
			})
			if err != nil {
				return s.wrapAWS(err, "batch write failed")
			}
			pending = out.UnprocessedItems
		}
		if len(pending) > 0 {
			return appErrors.NewInternal("batch write left unprocessed items", nil)
		}
	}
	return nil
}

// wrapAWS annotates DynamoDB errors with their API error code when
// available, so throttling shows up distinctly in logs.
func (s *Store) wrapAWS(err error, message string) error {
	var apiErr smithy.APIError
	if errors.As(err, &apiErr) {
		s.logger.Warn("dynamodb call failed",
			zap.String("code", apiErr.ErrorCode()),
			zap.String("fault", apiErr.ErrorFault().String()),
		)
		return appErrors.Wrap(err, fmt.Sprintf("%s (%s)", message, apiErr.ErrorCode()))
	}
	return appErrors.Wrap(err, message)
}

var _ cache.Store = (*Store)(nil)
