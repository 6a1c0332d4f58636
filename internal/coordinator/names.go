package coordinator

import (
	"crypto/rand"
	"fmt"
	"log"
	"math/big"
)

var adjectives = []string{
	"amber", "brisk", "calm", "dapper", "eager", "fuzzy", "gentle", "happy",
	"ivory", "jolly", "keen", "lively", "mellow", "nimble", "opal", "plucky",
	"quiet", "rosy", "sunny", "tidy", "vivid", "witty", "zesty",
}

var animals = []string{
	"badger", "crane", "dolphin", "falcon", "gecko", "heron", "ibex",
	"jackal", "koala", "lemur", "marmot", "narwhal", "otter", "panda",
	"quokka", "raven", "seal", "tapir", "urchin", "vole", "wombat", "yak",
}

// randomIndex returns a cryptographically secure random index for a slice of
// given length.
func randomIndex(max int) int {
	n, err := rand.Int(rand.Reader, big.NewInt(int64(max)))
	if err != nil {
		log.Panic("Failed to generate random index:", err)
	}
	return int(n.Int64())
}

// GenerateDisplayName produces a memorable fallback name for participants who
// join without one, e.g. "brisk-otter".
func GenerateDisplayName() string {
	return fmt.Sprintf("%s-%s",
		adjectives[randomIndex(len(adjectives))],
		animals[randomIndex(len(animals))])
}

// GenerateRoomID produces a memorable room identifier for newly provisioned
// rooms, e.g. "sunny-falcon-raven".
func GenerateRoomID() string {
	return fmt.Sprintf("%s-%s-%s",
		adjectives[randomIndex(len(adjectives))],
		animals[randomIndex(len(animals))],
		animals[randomIndex(len(animals))])
}
