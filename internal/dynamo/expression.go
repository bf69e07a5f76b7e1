package dynamo

import (
	"fmt"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/feature/dynamodb/attributevalue"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb/types"

	"github.com/rpggio/entityhub/internal/repository"
)

// filterExpr is a scan filter built from an equality filter.
type filterExpr struct {
	expression string
	names      map[string]string
	values     map[string]types.AttributeValue
}

// buildFilter renders "#f0 = :f0 AND ..." with placeholders for every field,
// so reserved words in field names are safe.
func buildFilter(filter repository.Filter) (filterExpr, error) {
	if err := repository.ValidateFilter(filter); err != nil {
		return filterExpr{}, err
	}
	if len(filter) == 0 {
		return filterExpr{}, nil
	}

	names := map[string]string{}
	values := map[string]types.AttributeValue{}
	parts := make([]string, 0, len(filter))
	for i, field := range filter.Keys() {
		name, value := fmt.Sprintf("#f%d", i), fmt.Sprintf(":f%d", i)
		names[name] = field

		if filter[field] == nil {
			values[value] = &types.AttributeValueMemberNULL{Value: true}
			parts = append(parts, fmt.Sprintf("(attribute_not_exists(%s) OR %s = %s)", name, name, value))
			continue
		}

		av, err := attributevalue.Marshal(filter[field])
		if err != nil {
			return filterExpr{}, fmt.Errorf("%w: marshal filter %q: %v", repository.ErrInvalidInput, field, err)
		}
		values[value] = av
		parts = append(parts, name+" = "+value)
	}

	return filterExpr{
		expression: strings.Join(parts, " AND "),
		names:      names,
		values:     values,
	}, nil
}

func (e filterExpr) scanInput(table string) *dynamodb.ScanInput {
	in := &dynamodb.ScanInput{TableName: aws.String(table)}
	if e.expression != "" {
		in.FilterExpression = aws.String(e.expression)
		in.ExpressionAttributeNames = e.names
		in.ExpressionAttributeValues = e.values
	}
	return in
}
