// Package dynamo implements repository.Backend on DynamoDB with one table per
// collection, keyed by the record id.
package dynamo

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"sort"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/rpggio/entityhub/internal/repository"
)

// API is the subset of the DynamoDB client the backend uses.
type API interface {
	PutItem(ctx context.Context, in *dynamodb.PutItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.PutItemOutput, error)
	GetItem(ctx context.Context, in *dynamodb.GetItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.GetItemOutput, error)
	UpdateItem(ctx context.Context, in *dynamodb.UpdateItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.UpdateItemOutput, error)
	DeleteItem(ctx context.Context, in *dynamodb.DeleteItemInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DeleteItemOutput, error)
	Scan(ctx context.Context, in *dynamodb.ScanInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ScanOutput, error)
	DescribeTable(ctx context.Context, in *dynamodb.DescribeTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.DescribeTableOutput, error)
	CreateTable(ctx context.Context, in *dynamodb.CreateTableInput, optFns ...func(*dynamodb.Options)) (*dynamodb.CreateTableOutput, error)
	ListTables(ctx context.Context, in *dynamodb.ListTablesInput, optFns ...func(*dynamodb.Options)) (*dynamodb.ListTablesOutput, error)
}

// Backend provides DynamoDB-backed collections.
type Backend struct {
	client API
	config Config

	mu    sync.Mutex
	ready map[string]bool
}

// New creates a new Backend.
func New(client API, config Config) *Backend {
	config.validate()
	return &Backend{
		client: client,
		config: config,
		ready:  make(map[string]bool),
	}
}

// TableName returns the table backing a collection.
func (b *Backend) TableName(collection string) string {
	return b.config.TablePrefix + collection
}

// Collection returns the named collection, creating its table when configured to.
func (b *Backend) Collection(ctx context.Context, name string) (repository.Collection, error) {
	if name == "" {
		return nil, fmt.Errorf("%w: empty collection name", repository.ErrInvalidInput)
	}
	table := b.TableName(name)

	b.mu.Lock()
	defer b.mu.Unlock()

	if !b.ready[table] {
		if err := b.ensureTable(ctx, table); err != nil {
			return nil, err
		}
		b.ready[table] = true
	}
	return &Collection{client: b.client, name: name, table: table}, nil
}

func (b *Backend) ensureTable(ctx context.Context, table string) error {
	_, err := b.client.DescribeTable(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)})
	if err == nil {
		return nil
	}
	var notFound *types.ResourceNotFoundException
	if !errors.As(err, &notFound) || !b.config.CreateTables {
		return classify(err, "describe table "+table)
	}

	_, err = b.client.CreateTable(ctx, &dynamodb.CreateTableInput{
		TableName:   aws.String(table),
		BillingMode: types.BillingModePayPerRequest,
		AttributeDefinitions: []types.AttributeDefinition{
			{AttributeName: aws.String(repository.IDField), AttributeType: types.ScalarAttributeTypeS},
		},
		KeySchema: []types.KeySchemaElement{
			{AttributeName: aws.String(repository.IDField), KeyType: types.KeyTypeHash},
		},
	})
	var inUse *types.ResourceInUseException
	if err != nil && !errors.As(err, &inUse) {
		return classify(err, "create table "+table)
	}

	waiter := dynamodb.NewTableExistsWaiter(b.client)
	if err := waiter.Wait(ctx, &dynamodb.DescribeTableInput{TableName: aws.String(table)}, b.config.TableWait); err != nil {
		return classify(err, "wait for table "+table)
	}
	return nil
}

// Ping lists at most one table to prove the endpoint answers.
func (b *Backend) Ping(ctx context.Context) error {
	_, err := b.client.ListTables(ctx, &dynamodb.ListTablesInput{Limit: aws.Int32(1)})
	return classify(err, "ping dynamodb")
}

// Close is a no-op; the SDK client holds no connections that need releasing.
func (b *Backend) Close(context.Context) error {
	return nil
}

// Collection implements repository.Collection on one table.
type Collection struct {
	client API
	name   string
	table  string
}

// Name returns the collection name.
func (c *Collection) Name() string {
	return c.name
}

func keyFor(id string) map[string]types.AttributeValue {
	return map[string]types.AttributeValue{
		repository.IDField: &types.AttributeValueMemberS{Value: id},
	}
}

// InsertOne puts doc unless an item with the same id exists.
func (c *Collection) InsertOne(ctx context.Context, doc repository.Document) error {
	id := doc.ID()
	if id == "" {
		return fmt.Errorf("%w: document has no string id", repository.ErrInvalidInput)
	}
	stored, err := repository.Normalize(doc)
	if err != nil {
		return err
	}
	item, err := attributevalue.MarshalMap(map[string]any(stored))
	if err != nil {
		return fmt.Errorf("%w: marshal document: %v", repository.ErrInvalidInput, err)
	}

	_, err = c.client.PutItem(ctx, &dynamodb.PutItemInput{
		TableName:           aws.String(c.table),
		Item:                item,
		ConditionExpression: aws.String("attribute_not_exists(id)"),
	})
	if isConditionFailed(err) {
		return fmt.Errorf("%w: %s", repository.ErrDuplicateKey, id)
	}
	return classify(err, "put item")
}

// FindOne uses GetItem for id lookups and a scan otherwise.
func (c *Collection) FindOne(ctx context.Context, filter repository.Filter) (repository.Document, error) {
	if err := repository.ValidateFilter(filter); err != nil {
		return nil, err
	}
	if id, ok := filter.IDOnly(); ok {
		out, err := c.client.GetItem(ctx, &dynamodb.GetItemInput{
			TableName:      aws.String(c.table),
			Key:            keyFor(id),
			ConsistentRead: aws.Bool(true),
		})
		if err != nil {
			return nil, classify(err, "get item")
		}
		if out.Item == nil {
			return nil, repository.ErrNotFound
		}
		return unmarshal(out.Item)
	}

	docs, err := c.Find(ctx, filter, repository.FindOptions{Limit: 1})
	if err != nil {
		return nil, err
	}
	if len(docs) == 0 {
		return nil, repository.ErrNotFound
	}
	return docs[0], nil
}

// Find scans the table, orders by created_at then id, and applies skip and limit.
func (c *Collection) Find(ctx context.Context, filter repository.Filter, opts repository.FindOptions) ([]repository.Document, error) {
	items, err := c.scan(ctx, filter)
	if err != nil {
		return nil, err
	}

	docs := make([]repository.Document, 0, len(items))
	for _, item := range items {
		doc, err := unmarshal(item)
		if err != nil {
			return nil, err
		}
		docs = append(docs, doc)
	}
	sortDocuments(docs)

	if opts.Skip >= len(docs) {
		return []repository.Document{}, nil
	}
	docs = docs[opts.Skip:]
	if opts.Limit > 0 && len(docs) > opts.Limit {
		docs = docs[:opts.Limit]
	}
	return docs, nil
}

// Count scans with Select=COUNT.
func (c *Collection) Count(ctx context.Context, filter repository.Filter) (int64, error) {
	expr, err := buildFilter(filter)
	if err != nil {
		return 0, err
	}

	var total int64
	var startKey map[string]types.AttributeValue
	for {
		in := expr.scanInput(c.table)
		in.Select = types.SelectCount
		in.ConsistentRead = aws.Bool(true)
		in.ExclusiveStartKey = startKey
		out, err := c.client.Scan(ctx, in)
		if err != nil {
			return 0, classify(err, "count items")
		}
		total += int64(out.Count)
		if len(out.LastEvaluatedKey) == 0 {
			return total, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

// UpdateOne applies patch with SET on the matching item, conditional on it existing.
func (c *Collection) UpdateOne(ctx context.Context, filter repository.Filter, patch repository.Document) (repository.Document, error) {
	if err := repository.ValidateFilter(filter); err != nil {
		return nil, err
	}
	id, ok := filter.IDOnly()
	if !ok {
		doc, err := c.FindOne(ctx, filter)
		if err != nil {
			return nil, err
		}
		id = doc.ID()
	}

	changes, err := repository.Normalize(patch)
	if err != nil {
		return nil, err
	}
	keys := make([]string, 0, len(changes))
	for k := range changes {
		if k != repository.IDField {
			keys = append(keys, k)
		}
	}
	if len(keys) == 0 {
		return c.FindOne(ctx, repository.ByID(id))
	}
	sort.Strings(keys)

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	sets := make([]string, 0, len(keys))
	for i, k := range keys {
		av, err := attributevalue.Marshal(changes[k])
		if err != nil {
			return nil, fmt.Errorf("%w: marshal field %q: %v", repository.ErrInvalidInput, k, err)
		}
		name, value := fmt.Sprintf("#p%d", i), fmt.Sprintf(":p%d", i)
		names[name] = k
		values[value] = av
		sets = append(sets, name+" = "+value)
	}

	out, err := c.client.UpdateItem(ctx, &dynamodb.UpdateItemInput{
		TableName:                 aws.String(c.table),
		Key:                       keyFor(id),
		UpdateExpression:          aws.String("SET " + strings.Join(sets, ", ")),
		ConditionExpression:       aws.String("attribute_exists(id)"),
		ExpressionAttributeNames:  names,
		ExpressionAttributeValues: values,
		ReturnValues:              types.ReturnValueAllNew,
	})
	if isConditionFailed(err) {
		return nil, repository.ErrNotFound
	}
	if err != nil {
		return nil, classify(err, "update item")
	}
	return unmarshal(out.Attributes)
}

// DeleteOne deletes the matching item, conditional on it existing.
func (c *Collection) DeleteOne(ctx context.Context, filter repository.Filter) error {
	if err := repository.ValidateFilter(filter); err != nil {
		return err
	}
	id, ok := filter.IDOnly()
	if !ok {
		doc, err := c.FindOne(ctx, filter)
		if err != nil {
			return err
		}
		id = doc.ID()
	}

	_, err := c.client.DeleteItem(ctx, &dynamodb.DeleteItemInput{
		TableName:           aws.String(c.table),
		Key:                 keyFor(id),
		ConditionExpression: aws.String("attribute_exists(id)"),
	})
	if isConditionFailed(err) {
		return repository.ErrNotFound
	}
	return classify(err, "delete item")
}

func (c *Collection) scan(ctx context.Context, filter repository.Filter) ([]map[string]types.AttributeValue, error) {
	expr, err := buildFilter(filter)
	if err != nil {
		return nil, err
	}

	var items []map[string]types.AttributeValue
	var startKey map[string]types.AttributeValue
	for {
		in := expr.scanInput(c.table)
		in.ExclusiveStartKey = startKey
		in.ConsistentRead = aws.Bool(true)
		out, err := c.client.Scan(ctx, in)
		if err != nil {
			return nil, classify(err, "scan items")
		}
		items = append(items, out.Items...)
		if len(out.LastEvaluatedKey) == 0 {
			return items, nil
		}
		startKey = out.LastEvaluatedKey
	}
}

func unmarshal(item map[string]types.AttributeValue) (repository.Document, error) {
	var doc map[string]any
	err := attributevalue.UnmarshalMapWithOptions(item, &doc, func(o *attributevalue.DecoderOptions) {
		o.UseNumber = true
	})
	if err != nil {
		return nil, fmt.Errorf("failed to unmarshal item: %w", err)
	}
	for k, v := range doc {
		doc[k] = jsonNumbers(v)
	}
	return repository.Normalize(doc)
}

// jsonNumbers swaps attributevalue numbers for json.Number so they normalize
// like numbers read back from any other backend.
func jsonNumbers(v any) any {
	switch val := v.(type) {
	case attributevalue.Number:
		return json.Number(val)
	case []attributevalue.Number:
		out := make([]any, len(val))
		for i, n := range val {
			out[i] = json.Number(n)
		}
		return out
	case map[string]any:
		for k, item := range val {
			val[k] = jsonNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = jsonNumbers(item)
		}
		return val
	default:
		return v
	}
}

// sortDocuments orders by created_at, then id, so pagination is stable across scans.
func sortDocuments(docs []repository.Document) {
	sort.SliceStable(docs, func(i, j int) bool {
		ci, _ := docs[i]["created_at"].(string)
		cj, _ := docs[j]["created_at"].(string)
		if ci != cj {
			return ci < cj
		}
		return docs[i].ID() < docs[j].ID()
	})
}

func isConditionFailed(err error) bool {
	var ccf *types.ConditionalCheckFailedException
	return errors.As(err, &ccf)
}

func classify(err error, action string) error {
	if err == nil {
		return nil
	}
	var netErr net.Error
	var notFound *types.ResourceNotFoundException
	if errors.As(err, &netErr) || errors.As(err, &notFound) || errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: failed to %s: %w", repository.ErrUnavailable, action, err)
	}
	return fmt.Errorf("failed to %s: %w", action, err)
}
