package anomaly

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"go.uber.org/zap"

	"github.com/selimozcann/seasec/internal/features"
	"github.com/selimozcann/seasec/internal/iforest"
	"github.com/selimozcann/seasec/internal/model"
	"github.com/selimozcann/seasec/internal/modelstore"
)

var (
	ErrEmptyTrainingSet = errors.New("no events to train on")
	ErrModelNotTrained  = errors.New("model not trained")
	ErrFeatureMismatch  = errors.New("model feature order does not match extractor")
)

// Adapter fits and scores the isolation forest over SecurityEvents and
// keeps its state in a ModelStore.
type Adapter struct {
	store      modelstore.ModelStore
	trees      int
	sampleSize int
	seed       int64
	log        *zap.Logger
	now        func() time.Time
}

// Option configures an Adapter.
type Option func(*Adapter)

func WithTrees(n int) Option      { return func(a *Adapter) { a.trees = n } }
func WithSampleSize(n int) Option { return func(a *Adapter) { a.sampleSize = n } }
func WithSeed(seed int64) Option  { return func(a *Adapter) { a.seed = seed } }

// WithLogger sets the logger; the default discards output.
func WithLogger(l *zap.Logger) Option {
	return func(a *Adapter) {
		if l != nil {
			a.log = l
		}
	}
}

// WithClock overrides time.Now for TrainedAt stamps.
func WithClock(now func() time.Time) Option {
	return func(a *Adapter) {
		if now != nil {
			a.now = now
		}
	}
}

// New returns an Adapter bound to store.
func New(store modelstore.ModelStore, opts ...Option) *Adapter {
	a := &Adapter{
		store:      store,
		trees:      100,
		sampleSize: 256,
		seed:       42,
		log:        zap.NewNop(),
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(a)
	}
	return a
}

// Train fits a new model on events and overwrites the stored one.
func (a *Adapter) Train(ctx context.Context, events []model.SecurityEvent) (model.TrainResult, error) {
	if len(events) == 0 {
		return model.TrainResult{}, errors.WithHint(ErrEmptyTrainingSet, "run ingestion before training")
	}
	X, err := features.Extract(events)
	if err != nil {
		return model.TrainResult{}, err
	}

	start := time.Now()
	forest := iforest.New(
		iforest.WithTrees(a.trees),
		iforest.WithSampleSize(a.sampleSize),
		iforest.WithSeed(a.seed),
	)
	if err := forest.Fit(X); err != nil {
		return model.TrainResult{}, errors.Wrap(err, "fit isolation forest")
	}

	snap := &modelstore.Snapshot{
		Version:   modelstore.SnapshotVersion,
		Features:  append([]string(nil), features.Names...),
		TrainedOn: len(events),
		TrainedAt: a.now().UTC(),
		Forest:    forest,
	}
	if err := a.store.Save(ctx, snap); err != nil {
		return model.TrainResult{}, errors.Wrap(err, "persist model")
	}

	a.log.Info("model trained",
		zap.Int("events", len(events)),
		zap.Int("trees", len(forest.Trees)),
		zap.Int("sample_size", forest.SampleSize),
		zap.String("model_path", a.store.Location()),
		zap.Duration("duration", time.Since(start)),
	)
	return model.TrainResult{TrainedOn: len(events), ModelPath: a.store.Location()}, nil
}

// Score returns one raw score per event, in input order. Higher means more
// normal.
func (a *Adapter) Score(ctx context.Context, events []model.SecurityEvent) ([]float64, error) {
	snap, err := a.store.Load(ctx)
	if errors.Is(err, modelstore.ErrNotFound) {
		return nil, errors.WithHint(errors.Mark(err, ErrModelNotTrained), "train the model first")
	}
	if err != nil {
		return nil, errors.Wrap(err, "load model")
	}
	if !features.SameOrder(snap.Features) {
		return nil, errors.Wrapf(ErrFeatureMismatch, "model has %v, extractor has %v", snap.Features, features.Names)
	}
	if len(events) == 0 {
		return []float64{}, nil
	}

	X, err := features.Extract(events)
	if err != nil {
		return nil, err
	}
	raw, err := snap.Forest.DecisionFunction(X)
	if err != nil {
		return nil, errors.Wrap(err, "score events")
	}
	a.log.Debug("events scored", zap.Int("events", len(events)), zap.Int("trained_on", snap.TrainedOn))
	return raw, nil
}
