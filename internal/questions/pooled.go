package questions

import (
	"context"
	_ "embed"
	"errors"
	"fmt"
	"math/rand"
	"os"
	"sync"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/ashureev/orientador/internal/domain"
)

//go:embed default_pool.yaml
var defaultPool []byte

// Pool is a question bank grouped by competency dimension.
type Pool struct {
	Dimensions []Dimension `yaml:"dimensions"`
}

// Dimension is one competency group of the pool.
type Dimension struct {
	Name      string            `yaml:"name"`
	Questions []domain.Question `yaml:"questions"`
}

// Size returns the total number of questions in the pool.
func (p Pool) Size() int {
	n := 0
	for _, d := range p.Dimensions {
		n += len(d.Questions)
	}
	return n
}

// LoadPool reads a YAML pool from path, or the embedded default when path is empty.
func LoadPool(path string) (Pool, error) {
	data := defaultPool
	if path != "" {
		var err error
		data, err = os.ReadFile(path)
		if err != nil {
			return Pool{}, fmt.Errorf("read question pool: %w", err)
		}
	}
	var pool Pool
	if err := yaml.Unmarshal(data, &pool); err != nil {
		return Pool{}, fmt.Errorf("parse question pool: %w", err)
	}
	if err := pool.validate(); err != nil {
		return Pool{}, err
	}
	return pool, nil
}

func (p Pool) validate() error {
	if len(p.Dimensions) == 0 {
		return errors.New("question pool has no dimensions")
	}
	var all []domain.Question
	for _, d := range p.Dimensions {
		if d.Name == "" {
			return errors.New("question pool dimension without name")
		}
		all = append(all, d.Questions...)
	}
	if err := domain.ValidateQuestions(all); err != nil {
		return fmt.Errorf("question pool: %w", err)
	}
	return nil
}

// Pooled draws questions at random from a Pool, balanced across dimensions.
type Pooled struct {
	pool Pool

	mu  sync.Mutex
	rng *rand.Rand
}

// NewPooled creates a pooled source. A nil rng is seeded from the clock.
func NewPooled(pool Pool, rng *rand.Rand) *Pooled {
	if rng == nil {
		rng = rand.New(rand.NewSource(time.Now().UnixNano()))
	}
	return &Pooled{pool: pool, rng: rng}
}

// NeedsInterests implements Source.
func (p *Pooled) NeedsInterests() bool { return false }

// Questions implements Source. Each dimension is shuffled and then drawn from in
// round-robin order, so dimensions differ in count by at most one while they last.
func (p *Pooled) Questions(_ context.Context, req Request) ([]domain.Question, error) {
	if req.Count <= 0 {
		return nil, fmt.Errorf("invalid question count %d", req.Count)
	}
	if p.pool.Size() < req.Count {
		return nil, fmt.Errorf("%w: have %d, want %d", ErrPoolTooSmall, p.pool.Size(), req.Count)
	}

	p.mu.Lock()
	decks := make([][]domain.Question, len(p.pool.Dimensions))
	for i, d := range p.pool.Dimensions {
		deck := make([]domain.Question, len(d.Questions))
		for j, q := range d.Questions {
			q.Dimension = d.Name
			deck[j] = q
		}
		p.rng.Shuffle(len(deck), func(a, b int) { deck[a], deck[b] = deck[b], deck[a] })
		decks[i] = deck
	}
	order := p.rng.Perm(len(decks))
	p.mu.Unlock()

	out := make([]domain.Question, 0, req.Count)
	for len(out) < req.Count {
		for _, i := range order {
			if len(out) == req.Count {
				break
			}
			if len(decks[i]) == 0 {
				continue
			}
			out = append(out, decks[i][0])
			decks[i] = decks[i][1:]
		}
	}
	return out, nil
}
