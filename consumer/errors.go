// Copyright (c) Abstract Machines
// SPDX-License-Identifier: Apache-2.0

package consumer

import "errors"

// Consumer errors.
var (
	// Argument and lifecycle errors.
	ErrInvalidArgument = errors.New("invalid argument")
	ErrIllegalState    = errors.New("consumer not in a state that permits this operation")

	// Lease errors.
	ErrAlreadyAcknowledged = errors.New("message already acknowledged")
	ErrLeaseExpired        = errors.New("message visibility window expired")
	ErrUnknownHandle       = errors.New("receipt handle unknown")

	// Gateway classification.
	ErrTimeout           = errors.New("operation timed out")
	ErrNetwork           = errors.New("network error")
	ErrServer            = errors.New("broker server error")
	ErrAcknowledgeFailed = errors.New("broker rejected acknowledgment")
)
