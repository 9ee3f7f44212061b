// Copyright (c) 2025 AccelByte Inc. All Rights Reserved.
// This is licensed software from AccelByte Inc, for limitations
// and restrictions contact your company contract manager.

// Package catalog provides the roster of playable heroes used to validate
// composition entries.
package catalog

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"
	"sync/atomic"

	"github.com/elliotchance/pie/v2"
)

// DefaultRoster is the built-in hero roster.
var DefaultRoster = []string{
	"Adam Warlock", "Black Panther", "Black Widow", "Blade", "Captain America",
	"Cloak & Dagger", "Doctor Strange", "Emma Frost", "Groot", "Hawkeye", "Hela",
	"Hulk", "Human Torch", "Invisible Woman", "Iron Fist", "Iron Man", "Jeff the Land Shark",
	"Loki", "Luna Snow", "Magik", "Magneto", "Mantis", "Mister Fantastic", "Moon Knight",
	"Namor", "Peni Parker", "Phoenix", "Psylocke", "Rocket Raccoon", "Scarlet Witch",
	"Spider-Man", "Squirrel Girl", "Star-Lord", "Storm", "The Punisher", "The Thing",
	"Thor", "Ultron", "Venom", "Winter Soldier", "Wolverine",
}

// StaticCatalog is a case-insensitive hero set that can be swapped atomically.
type StaticCatalog struct {
	heroes atomic.Pointer[map[string]struct{}]
}

func NewStaticCatalog(heroes []string) *StaticCatalog {
	c := &StaticCatalog{}
	c.Replace(heroes)
	return c
}

// NewDefaultCatalog returns a catalog holding DefaultRoster.
func NewDefaultCatalog() *StaticCatalog {
	return NewStaticCatalog(DefaultRoster)
}

func (c *StaticCatalog) IsValidHero(hero string) bool {
	heroes := c.heroes.Load()
	if heroes == nil {
		return false
	}
	_, ok := (*heroes)[normalize(hero)]
	return ok
}

// Replace swaps the whole roster; lookups in flight see either the old or the new one.
func (c *StaticCatalog) Replace(heroes []string) {
	set := make(map[string]struct{}, len(heroes))
	for _, hero := range heroes {
		if name := normalize(hero); name != "" {
			set[name] = struct{}{}
		}
	}
	c.heroes.Store(&set)
}

func (c *StaticCatalog) Len() int {
	heroes := c.heroes.Load()
	if heroes == nil {
		return 0
	}
	return len(*heroes)
}

// rosterFile is the on-disk roster: either a bare list or {"heroes": [...]}.
type rosterFile struct {
	Heroes []string `json:"heroes"`
}

// LoadFile reads a JSON roster.
func LoadFile(path string) ([]string, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read hero catalog %s: %w", path, err)
	}

	var heroes []string
	if err = json.Unmarshal(raw, &heroes); err != nil {
		var file rosterFile
		if objErr := json.Unmarshal(raw, &file); objErr != nil {
			return nil, fmt.Errorf("failed to decode hero catalog %s: %w", path, err)
		}
		heroes = file.Heroes
	}

	heroes = pie.FilterNot(pie.Map(heroes, strings.TrimSpace), func(hero string) bool {
		return hero == ""
	})
	if len(heroes) == 0 {
		return nil, fmt.Errorf("hero catalog %s is empty", path)
	}

	return pie.Unique(heroes), nil
}

func normalize(hero string) string {
	return strings.ToLower(strings.TrimSpace(hero))
}
