// Package names generates room codes and player display names.
package names

import (
	"crypto/rand"
	"fmt"
	"math/big"
	"strings"
)

var (
	places = []string{
		"river", "meadow", "canyon", "harbor", "forest", "glacier", "island", "prairie",
		"summit", "valley", "lagoon", "desert", "tundra", "orchard", "marsh", "reef",
	}
	adjectives = []string{
		"curious", "brave", "clever", "sleepy", "swift", "jolly", "quiet", "lucky",
		"mighty", "gentle", "witty", "bold", "sunny", "nimble", "proud", "cosmic",
	}
	animals = []string{
		"otter", "falcon", "badger", "panda", "heron", "lynx", "walrus", "gecko",
		"beaver", "koala", "moose", "puffin", "ferret", "bison", "lemur", "tapir",
	}
)

// Generator draws names from crypto/rand.
type Generator struct{}

func NewGenerator() Generator {
	return Generator{}
}

// RoomID returns a code like "river-otter-42".
func (Generator) RoomID() string {
	return fmt.Sprintf("%s-%s-%d", pick(places), pick(animals), intn(100))
}

// DisplayName returns a name like "Curious Otter".
func (Generator) DisplayName() string {
	return title(pick(adjectives)) + " " + title(pick(animals))
}

func pick(words []string) string {
	return words[intn(len(words))]
}

func intn(n int) int {
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func title(word string) string {
	if word == "" {
		return word
	}
	return strings.ToUpper(word[:1]) + word[1:]
}
