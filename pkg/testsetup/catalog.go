// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

package testsetup

import (
	"strings"
	"sync/atomic"
)

// CountingCatalog is a hero catalog that counts its lookups.
type CountingCatalog struct {
	heroes  map[string]bool
	lookups atomic.Int64
}

func NewCountingCatalog(heroes ...string) *CountingCatalog {
	c := &CountingCatalog{heroes: map[string]bool{}}
	for _, hero := range heroes {
		c.heroes[strings.ToLower(hero)] = true
	}
	return c
}

func (c *CountingCatalog) IsValidHero(hero string) bool {
	c.lookups.Add(1)
	return c.heroes[strings.ToLower(hero)]
}

func (c *CountingCatalog) Lookups() int64 {
	return c.lookups.Load()
}
