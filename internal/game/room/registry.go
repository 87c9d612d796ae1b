package room

import (
	"fmt"
	"strings"
	"sync"

	"github.com/cory-johannsen/imposter/internal/game/rng"
	"github.com/cory-johannsen/imposter/internal/game/words"
)

// codeAlphabet is the character set for generated room codes. Codes are
// short, human-typeable, and normalized to uppercase on lookup.
const codeAlphabet = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"

// maxCodeAttempts bounds collision retries during code generation.
const maxCodeAttempts = 100

// Registry is the process-wide mapping from room code to live Room. The
// registry's mutex guards only the table itself; room internals serialize on
// their own locks.
type Registry struct {
	mu    sync.Mutex
	rooms map[string]*Room

	codeLength int
	catalog    *words.Catalog
	src        rng.Source
	opts       Options
}

// NewRegistry creates an empty Registry that constructs rooms from the given
// catalog, randomness source, and game options.
//
// Precondition: codeLength must be >= 4; catalog and src must be non-nil.
func NewRegistry(codeLength int, catalog *words.Catalog, src rng.Source, opts Options) *Registry {
	return &Registry{
		rooms:      make(map[string]*Room),
		codeLength: codeLength,
		catalog:    catalog,
		src:        src,
		opts:       opts,
	}
}

// Create generates a unique room code and stores a new Room with the given
// connection as admin and first player.
//
// Postcondition: Returns a Room retrievable by its code, or an error if no
// unique code could be generated.
func (g *Registry) Create(adminConn, adminNick string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	code, err := g.generateCodeLocked()
	if err != nil {
		return nil, err
	}
	r := New(code, adminConn, adminNick, g.catalog, g.src, g.opts)
	g.rooms[code] = r
	return r, nil
}

// Get returns the live room for the given code. Codes are case-insensitive
// on input.
//
// Postcondition: Returns the Room or ErrRoomNotFound.
func (g *Registry) Get(code string) (*Room, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	r, ok := g.rooms[NormalizeCode(code)]
	if !ok {
		return nil, ErrRoomNotFound
	}
	return r, nil
}

// Destroy removes the room mapping. Idempotent: destroying an unknown code
// is a no-op.
func (g *Registry) Destroy(code string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	delete(g.rooms, NormalizeCode(code))
}

// Count returns the number of live rooms.
func (g *Registry) Count() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return len(g.rooms)
}

// NormalizeCode uppercases and trims a client-supplied room code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (g *Registry) generateCodeLocked() (string, error) {
	for attempt := 0; attempt < maxCodeAttempts; attempt++ {
		buf := make([]byte, g.codeLength)
		for i := range buf {
			buf[i] = codeAlphabet[g.src.Intn(len(codeAlphabet))]
		}
		code := string(buf)
		if _, taken := g.rooms[code]; !taken {
			return code, nil
		}
	}
	return "", fmt.Errorf("no unique room code after %d attempts", maxCodeAttempts)
}
