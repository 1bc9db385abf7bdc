// Package dynamo stores the archive catalog in a DynamoDB table.
//
// Table schema:
//   - Partition key: tier (string)
//   - Sort key: batch (string)
//
// Create the table with:
//
//	aws dynamodb create-table \
//	  --table-name vectier-catalog \
//	  --attribute-definitions AttributeName=tier,AttributeType=S AttributeName=batch,AttributeType=S \
//	  --key-schema AttributeName=tier,KeyType=HASH AttributeName=batch,KeyType=RANGE \
//	  --billing-mode PAY_PER_REQUEST
//
// New batches are published with attribute_not_exists conditions and visible
// sets are updated with an optimistic version check, so concurrent writers
// never silently overwrite each other.
package dynamo

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strconv"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"
	"github.com/hupe1980/vectier/catalog"
	"github.com/hupe1980/vectier/model"
)

// Client is the subset of the DynamoDB API used by Catalog.
type Client interface {
	PutItem(ctx context.Context, params *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, params *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	Query(ctx context.Context, params *dynamodb.QueryInput, optFns ...func(*dynamodb.Options)) (*dynamodb.QueryOutput, error)
	Scan(ctx context.Context, params *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
}

var _ Client = (*dynamodb.Client)(nil)

const (
	attrTier      = "tier"
	attrBatch     = "batch"
	attrBackend   = "backend"
	attrVisible   = "visible"
	attrRows      = "rows"
	attrFirstID   = "first_id"
	attrLastID    = "last_id"
	attrCreatedAt = "created_at"
	attrRunID     = "run_id"
	attrVersion   = "version"
)

// Catalog implements catalog.Catalog on DynamoDB.
type Catalog struct {
	client Client
	table  string
}

var _ catalog.Catalog = (*Catalog)(nil)

// New creates a catalog backed by table.
func New(client Client, table string) *Catalog {
	return &Catalog{client: client, table: table}
}

func (c *Catalog) Put(ctx context.Context, e catalog.Entry) error {
	if err := catalog.Validate(e); err != nil {
		return err
	}

	item, err := marshal(e)
	if err != nil {
		return err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.table),
		Item:                     item,
		ConditionExpression:      aws.String("attribute_not_exists(#b)"),
		ExpressionAttributeNames: map[string]string{"#b": attrBatch},
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return catalog.ErrExists
		}
		return fmt.Errorf("dynamo: put %s: %w", e.Batch, err)
	}
	return nil
}

func (c *Catalog) Entries(ctx context.Context, tier model.TierID) ([]catalog.Entry, error) {
	paginator := dynamodb.NewQueryPaginator(c.client, &dynamodb.QueryInput{
		TableName:                aws.String(c.table),
		KeyConditionExpression:   aws.String("#t = :t"),
		ExpressionAttributeNames: map[string]string{"#t": attrTier},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":t": &types.AttributeValueMemberS{Value: string(tier)},
		},
		ConsistentRead: aws.Bool(true),
	})

	var out []catalog.Entry
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: query %s: %w", tier, err)
		}
		for _, item := range page.Items {
			e, err := unmarshal(item)
			if err != nil {
				return nil, err
			}
			out = append(out, e)
		}
	}
	catalog.SortEntries(out)
	return out, nil
}

func (c *Catalog) Hide(ctx context.Context, tier model.TierID, batch string, ids []model.ID) error {
	resp, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
		TableName: aws.String(c.table),
		Key: map[string]types.AttributeValue{
			attrTier:  &types.AttributeValueMemberS{Value: string(tier)},
			attrBatch: &types.AttributeValueMemberS{Value: batch},
		},
		ConsistentRead: aws.Bool(true),
	})
	if err != nil {
		return fmt.Errorf("dynamo: get %s: %w", batch, err)
	}
	if len(resp.Item) == 0 {
		return catalog.ErrNotFound
	}

	e, err := unmarshal(resp.Item)
	if err != nil {
		return err
	}
	prev := e.Version
	catalog.HideIDs(&e, ids)

	item, err := marshal(e)
	if err != nil {
		return err
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:                aws.String(c.table),
		Item:                     item,
		ConditionExpression:      aws.String("#v = :v"),
		ExpressionAttributeNames: map[string]string{"#v": attrVersion},
		ExpressionAttributeValues: map[string]types.AttributeValue{
			":v": &types.AttributeValueMemberN{Value: strconv.FormatUint(prev, 10)},
		},
	})
	if err != nil {
		var cond *types.ConditionalCheckFailedException
		if errors.As(err, &cond) {
			return catalog.ErrConflict
		}
		return fmt.Errorf("dynamo: hide in %s: %w", batch, err)
	}
	return nil
}

func (c *Catalog) Tiers(ctx context.Context) ([]model.TierID, error) {
	paginator := dynamodb.NewScanPaginator(c.client, &dynamodb.ScanInput{
		TableName:                aws.String(c.table),
		ProjectionExpression:     aws.String("#t"),
		ExpressionAttributeNames: map[string]string{"#t": attrTier},
	})

	seen := make(map[model.TierID]struct{})
	for paginator.HasMorePages() {
		page, err := paginator.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("dynamo: scan: %w", err)
		}
		for _, item := range page.Items {
			if s, ok := item[attrTier].(*types.AttributeValueMemberS); ok {
				seen[model.TierID(s.Value)] = struct{}{}
			}
		}
	}

	out := make([]model.TierID, 0, len(seen))
	for t := range seen {
		out = append(out, t)
	}
	slices.Sort(out)
	return out, nil
}

func number[T ~int64 | ~int](v T) *types.AttributeValueMemberN {
	return &types.AttributeValueMemberN{Value: strconv.FormatInt(int64(v), 10)}
}

func marshal(e catalog.Entry) (map[string]types.AttributeValue, error) {
	visible, err := catalog.MarshalVisible(e.Visible)
	if err != nil {
		return nil, err
	}

	item := map[string]types.AttributeValue{
		attrTier:      &types.AttributeValueMemberS{Value: string(e.Tier)},
		attrBatch:     &types.AttributeValueMemberS{Value: e.Batch},
		attrVisible:   &types.AttributeValueMemberB{Value: visible},
		attrRows:      number(e.Rows),
		attrFirstID:   &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(e.FirstID), 10)},
		attrLastID:    &types.AttributeValueMemberN{Value: strconv.FormatUint(uint64(e.LastID), 10)},
		attrCreatedAt: number(e.CreatedAt.UnixNano()),
		attrVersion:   &types.AttributeValueMemberN{Value: strconv.FormatUint(e.Version, 10)},
	}
	if e.Backend != "" {
		item[attrBackend] = &types.AttributeValueMemberS{Value: e.Backend}
	}
	if e.RunID != "" {
		item[attrRunID] = &types.AttributeValueMemberS{Value: e.RunID}
	}
	return item, nil
}

func unmarshal(item map[string]types.AttributeValue) (catalog.Entry, error) {
	var e catalog.Entry

	e.Tier = model.TierID(stringAttr(item, attrTier))
	e.Batch = stringAttr(item, attrBatch)
	e.Backend = stringAttr(item, attrBackend)
	e.RunID = stringAttr(item, attrRunID)
	if e.Tier == "" || e.Batch == "" {
		return catalog.Entry{}, errors.New("dynamo: item without key attributes")
	}

	var visible []byte
	if b, ok := item[attrVisible].(*types.AttributeValueMemberB); ok {
		visible = b.Value
	}
	var err error
	if e.Visible, err = catalog.UnmarshalVisible(visible); err != nil {
		return catalog.Entry{}, err
	}

	rows, err := intAttr(item, attrRows)
	if err != nil {
		return catalog.Entry{}, err
	}
	created, err := intAttr(item, attrCreatedAt)
	if err != nil {
		return catalog.Entry{}, err
	}
	first, err := uintAttr(item, attrFirstID)
	if err != nil {
		return catalog.Entry{}, err
	}
	last, err := uintAttr(item, attrLastID)
	if err != nil {
		return catalog.Entry{}, err
	}
	version, err := uintAttr(item, attrVersion)
	if err != nil {
		return catalog.Entry{}, err
	}

	e.Rows = int(rows)
	e.CreatedAt = time.Unix(0, created).UTC()
	e.FirstID = model.ID(first)
	e.LastID = model.ID(last)
	e.Version = version
	return e, nil
}

func stringAttr(item map[string]types.AttributeValue, name string) string {
	if s, ok := item[name].(*types.AttributeValueMemberS); ok {
		return s.Value
	}
	return ""
}

func intAttr(item map[string]types.AttributeValue, name string) (int64, error) {
	n, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseInt(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamo: attribute %s: %w", name, err)
	}
	return v, nil
}

func uintAttr(item map[string]types.AttributeValue, name string) (uint64, error) {
	n, ok := item[name].(*types.AttributeValueMemberN)
	if !ok {
		return 0, nil
	}
	v, err := strconv.ParseUint(n.Value, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("dynamo: attribute %s: %w", name, err)
	}
	return v, nil
}
