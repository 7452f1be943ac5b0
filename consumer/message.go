// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import (
	"fmt"
	"strings"
	"time"
)

// SubAll is the tag expression matching every message on a topic.
const SubAll = "*"

// FilterType identifies the filter expression grammar.
type FilterType int

const (
	// FilterTypeTag selects messages by tag, e.g. "tagA" or "tagA||tagB".
	FilterTypeTag FilterType = iota
	// FilterTypeSQL92 selects messages by a SQL92-style predicate over
	// message properties. The consumer stores and forwards the text; the
	// broker evaluates it.
	FilterTypeSQL92
)

// String returns the wire name of the filter type.
func (t FilterType) String() string {
	switch t {
	case FilterTypeTag:
		return "TAG"
	case FilterTypeSQL92:
		return "SQL92"
	default:
		return "UNKNOWN"
	}
}

// FilterExpression narrows which messages a subscription delivers.
type FilterExpression struct {
	Expression string
	Type       FilterType
}

// NewFilterExpression creates a tag filter. An empty expression subscribes
// to all messages on the topic.
func NewFilterExpression(expression string) FilterExpression {
	if expression == "" {
		expression = SubAll
	}
	return FilterExpression{Expression: expression, Type: FilterTypeTag}
}

// NewFilterExpressionWithType creates a filter of the given type.
func NewFilterExpressionWithType(expression string, t FilterType) FilterExpression {
	if t == FilterTypeTag && expression == "" {
		expression = SubAll
	}
	return FilterExpression{Expression: expression, Type: t}
}

// validate rejects expressions that are malformed for their stated type.
// Grammar evaluation is the broker's job; only structural checks happen here.
func (e FilterExpression) validate() error {
	switch e.Type {
	case FilterTypeTag:
		if e.Expression == "" {
			return fmt.Errorf("%w: empty tag expression", ErrInvalidArgument)
		}
		for _, tag := range strings.Split(e.Expression, "||") {
			if strings.TrimSpace(tag) == "" {
				return fmt.Errorf("%w: blank tag in expression %q", ErrInvalidArgument, e.Expression)
			}
		}
	case FilterTypeSQL92:
		if strings.TrimSpace(e.Expression) == "" {
			return fmt.Errorf("%w: empty sql expression", ErrInvalidArgument)
		}
	default:
		return fmt.Errorf("%w: unknown filter type %d", ErrInvalidArgument, e.Type)
	}
	return nil
}

// MessageView is a delivered message together with the receipt handle that
// correlates it to its lease. The consumer never interprets Body.
type MessageView struct {
	MessageID       string
	Topic           string
	Tag             string
	Keys            []string
	Properties      map[string]string
	Body            []byte
	BornTime        time.Time
	DeliveryAttempt int

	// ReceiptHandle is unique per delivery attempt. Redelivery after the
	// visibility window closes yields a fresh handle.
	ReceiptHandle string
}
