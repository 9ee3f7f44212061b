// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package models

import (
	"gopkg.in/typ.v4/sync2"
)

// Pool reusable objects to reduce garbage collector
type Pool[T any] struct {
	Buffers *sync2.Pool[[]T]
}

func NewPool[T any](capacity int) *Pool[T] {
	return &Pool[T]{
		Buffers: &sync2.Pool[[]T]{
			New: func() []T {
				return make([]T, 0, capacity)
			},
		},
	}
}

// Get returns an empty buffer.
func (p *Pool[T]) Get() []T {
	return p.Buffers.Get()[:0]
}

// Put zeroes buf before returning it so pooled buffers hold no references.
func (p *Pool[T]) Put(buf []T) {
	clear(buf)
	p.Buffers.Put(buf[:0])
}
