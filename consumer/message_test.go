// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewFilterExpressionDefaultsToSubAll(t *testing.T) {
	expr := NewFilterExpression("")
	assert.Equal(t, SubAll, expr.Expression)
	assert.Equal(t, FilterTypeTag, expr.Type)
	assert.NoError(t, expr.validate())
}

func TestFilterExpressionValidate(t *testing.T) {
	assert.NoError(t, NewFilterExpression("tagA").validate())
	assert.NoError(t, NewFilterExpression("tagA||tagB").validate())
	assert.NoError(t, NewFilterExpressionWithType("a > 1 AND region = 'eu'", FilterTypeSQL92).validate())

	blankTag := FilterExpression{Expression: "tagA|| ", Type: FilterTypeTag}
	assert.ErrorIs(t, blankTag.validate(), ErrInvalidArgument)

	emptySQL := FilterExpression{Expression: "  ", Type: FilterTypeSQL92}
	assert.ErrorIs(t, emptySQL.validate(), ErrInvalidArgument)

	unknown := FilterExpression{Expression: "x", Type: FilterType(42)}
	assert.ErrorIs(t, unknown.validate(), ErrInvalidArgument)
}

func TestFilterTypeString(t *testing.T) {
	assert.Equal(t, "TAG", FilterTypeTag.String())
	assert.Equal(t, "SQL92", FilterTypeSQL92.String())
}
