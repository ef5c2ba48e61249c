package embedcap

import (
	"context"
	"math"
	"math/rand"
	"sync"

	"github.com/EricBintner/codrag/internal/ids"
)

// FakeProvider is the deterministic embedding provider required for tests
// (spec.md §6.2): seeded by a hash of the input text, output is
// Gaussian-then-L2-normalized, dimension configurable. Grounded in
// behavior on core/embedder.py's FakeEmbedder, with the teacher's
// mock-provider struct conventions (mutex, settable errors, close
// tracking) adapted from internal/embed/mock.go.
type FakeProvider struct {
	mu         sync.Mutex
	model      string
	dim        int
	embedErr   error
	closeErr   error
	closeCalls int
}

// NewFakeProvider constructs a FakeProvider with the given model tag and
// dimension. A dim <= 0 defaults to 384.
func NewFakeProvider(model string, dim int) *FakeProvider {
	if model == "" {
		model = "fake-embed"
	}
	if dim <= 0 {
		dim = 384
	}
	return &FakeProvider{model: model, dim: dim}
}

// SetEmbedError makes subsequent Embed/EmbedBatch calls fail, for testing
// transient-failure handling.
func (f *FakeProvider) SetEmbedError(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.embedErr = err
}

func (f *FakeProvider) ModelTag() string { return f.model }
func (f *FakeProvider) Dimensions() int  { return f.dim }

func (f *FakeProvider) Embed(ctx context.Context, text string) (Result, error) {
	f.mu.Lock()
	err := f.embedErr
	dim := f.dim
	model := f.model
	f.mu.Unlock()
	if err != nil {
		return Result{}, err
	}

	seed := hashSeed(text)
	rng := rand.New(rand.NewSource(seed))
	vec := make([]float32, dim)
	var sumSq float64
	for i := range vec {
		v := rng.NormFloat64()
		vec[i] = float32(v)
		sumSq += v * v
	}
	norm := math.Sqrt(sumSq)
	if norm > 0 {
		for i := range vec {
			vec[i] = float32(float64(vec[i]) / norm)
		}
	}
	return Result{Vector: vec, Model: model}, nil
}

func (f *FakeProvider) EmbedBatch(ctx context.Context, texts []string) ([]Result, error) {
	out := make([]Result, 0, len(texts))
	for _, t := range texts {
		r, err := f.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, nil
}

// Close satisfies test doubles that track shutdown; it is not part of the
// Provider interface since the interface itself stays minimal per spec.
func (f *FakeProvider) Close() error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.closeCalls++
	return f.closeErr
}

// hashSeed derives a deterministic int64 seed from text using the same
// stable hashing primitive the rest of the module uses for content
// addressing, so the fake provider's determinism rests on one hash
// implementation.
func hashSeed(text string) int64 {
	h := ids.StableSHA256(text, 16)
	var seed int64
	for i := 0; i < len(h); i++ {
		seed = seed*16 + int64(hexDigit(h[i]))
	}
	if seed < 0 {
		seed = -seed
	}
	return seed
}

func hexDigit(b byte) int {
	switch {
	case b >= '0' && b <= '9':
		return int(b - '0')
	case b >= 'a' && b <= 'f':
		return int(b-'a') + 10
	default:
		return 0
	}
}
