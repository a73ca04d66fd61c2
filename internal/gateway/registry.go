package gateway

import (
	"math/rand"
	"regexp"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"cultura-chupistica/internal/game"
)

const (
	codeAlphabet        = "ABCDEFGHIJKLMNOPQRSTUVWXYZ0123456789"
	generatedCodeLength = 6
	codeAttempts        = 10
)

var codeRe = regexp.MustCompile(`^[A-Z0-9]{4,10}$`)

// NormalizeCode uppercases and trims a client-supplied game code.
func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

// ValidCode reports whether a normalized code matches the wire format.
func ValidCode(code string) bool { return codeRe.MatchString(code) }

// RegistryConfig tunes session lifecycle limits.
type RegistryConfig struct {
	MaxSessions int
	QueueSize   int
	IdleTimeout time.Duration
	GraceEnded  time.Duration
}

// Registry is the process-wide directory from code to session actor — the
// only shared mutable structure. Lookups vastly outnumber writes, hence the
// RWMutex. Registry mutations never happen while holding a session's queue.
type Registry struct {
	cfg     RegistryConfig
	now     func() time.Time
	archive ArchiveFunc

	mu     sync.RWMutex
	actors map[string]*Actor

	rndMu sync.Mutex
	rnd   *rand.Rand
}

func NewRegistry(cfg RegistryConfig, rnd *rand.Rand, now func() time.Time, archive ArchiveFunc) *Registry {
	if cfg.MaxSessions <= 0 {
		cfg.MaxSessions = 1000
	}
	if cfg.IdleTimeout <= 0 {
		cfg.IdleTimeout = 30 * time.Minute
	}
	if cfg.GraceEnded <= 0 {
		cfg.GraceEnded = 10 * time.Minute
	}
	if now == nil {
		now = time.Now
	}
	if rnd == nil {
		rnd = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Registry{
		cfg:     cfg,
		now:     now,
		archive: archive,
		actors:  map[string]*Actor{},
		rnd:     rnd,
	}
}

// Create spawns a new session actor for hostID. With customCode empty a
// 6-char code is sampled from [A-Z0-9], retrying on collision a bounded
// number of times. The insert is atomic: a colliding custom code fails with
// code_taken.
func (r *Registry) Create(hostID, customCode string) (*Actor, error) {
	if !game.ValidParticipantID(hostID) {
		return nil, Errf(KindInvalidPlayerID, "host id must be 1-50 chars after trim")
	}
	if customCode != "" {
		customCode = NormalizeCode(customCode)
		if !ValidCode(customCode) {
			return nil, Errf(KindInvalidGameCode, "code must be 4-10 chars of A-Z0-9")
		}
	}

	// per-session deterministic deck source, seeded from the process source
	r.rndMu.Lock()
	seed := r.rnd.Int63()
	r.rndMu.Unlock()
	sessRnd := rand.New(rand.NewSource(seed))

	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.actors) >= r.cfg.MaxSessions {
		return nil, Errf(KindCapacityExceeded, "session limit reached")
	}

	code := customCode
	if code == "" {
		found := false
		for i := 0; i < codeAttempts; i++ {
			candidate := r.randomCode()
			if _, taken := r.actors[candidate]; !taken {
				code = candidate
				found = true
				break
			}
		}
		if !found {
			return nil, Errf(KindCodeSpaceExhausted, "could not allocate a free code")
		}
	} else if _, taken := r.actors[code]; taken {
		return nil, Errf(KindCodeTaken, "code already in use")
	}

	now := r.now()
	sess, err := game.NewSession(code, hostID, sessRnd, now)
	if err != nil {
		return nil, err
	}
	actor := NewActor(sess, r.cfg.QueueSize, r.now, r.archive)
	r.actors[code] = actor
	actor.Bus().Publish(EventGameCreated, map[string]any{
		"code": code,
		"host": sess.Host,
	}, now)
	log.Info().Str("code", code).Str("host", sess.Host).Int("sessions", len(r.actors)).Msg("session created")
	return actor, nil
}

// Lookup resolves a code case-insensitively.
func (r *Registry) Lookup(code string) (*Actor, bool) {
	code = NormalizeCode(code)
	r.mu.RLock()
	defer r.mu.RUnlock()
	a, ok := r.actors[code]
	return a, ok
}

func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.actors)
}

// Reap removes sessions that ended more than GraceEnded ago, or that sit in
// Waiting/Playing with no traffic and no subscribers past IdleTimeout.
// Actors are stopped after they leave the map so no lookup can race a dead
// handle.
func (r *Registry) Reap(now time.Time) int {
	var doomed []*Actor
	r.mu.Lock()
	for code, a := range r.actors {
		idle := a.IdleFor(now)
		expired := (a.Ended() && idle > r.cfg.GraceEnded) ||
			(!a.Ended() && idle > r.cfg.IdleTimeout)
		if expired {
			delete(r.actors, code)
			doomed = append(doomed, a)
		}
	}
	r.mu.Unlock()
	for _, a := range doomed {
		log.Info().Str("code", a.Code()).Msg("reaping idle session")
		a.Stop()
	}
	return len(doomed)
}

func (r *Registry) randomCode() string {
	r.rndMu.Lock()
	defer r.rndMu.Unlock()
	b := make([]byte, generatedCodeLength)
	for i := range b {
		b[i] = codeAlphabet[r.rnd.Intn(len(codeAlphabet))]
	}
	return string(b)
}
