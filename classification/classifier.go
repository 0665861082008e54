package classification

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"log/slog"
	"os"
	"time"

	"github.com/Tutortoise/catascan-service/models"
	"github.com/patrickmn/go-cache"
)

// Classifier runs the preprocess, inference and interpretation stages for one
// variant.
type Classifier struct {
	variant Variant
	pre     *Preprocessor
	model   Inferencer
	results *cache.Cache
	logger  *slog.Logger
}

type Option func(*Classifier)

// WithResultCache memoizes predictions by image content for ttl. Inference is
// deterministic, so a cached prediction equals a recomputed one.
func WithResultCache(ttl time.Duration) Option {
	return func(c *Classifier) {
		if ttl > 0 {
			c.results = cache.New(ttl, 2*ttl)
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Classifier) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func NewClassifier(v Variant, pre *Preprocessor, model Inferencer, opts ...Option) *Classifier {
	c := &Classifier{
		variant: v,
		pre:     pre,
		model:   model,
		logger:  slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Classifier) Variant() Variant {
	return c.variant
}

func (c *Classifier) Preprocessor() *Preprocessor {
	return c.pre
}

// ClassifyFile classifies the image stored at path. timings may be nil.
func (c *Classifier) ClassifyFile(ctx context.Context, path string, timings *models.ProcessingTimings) (Prediction, error) {
	if timings == nil {
		timings = &models.ProcessingTimings{}
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return Prediction{}, stageErr(StageDecode, err)
	}

	var key string
	if c.results != nil {
		sum := sha256.Sum256(data)
		key = c.variant.Name + ":" + hex.EncodeToString(sum[:])
		if cached, ok := c.results.Get(key); ok {
			timings.CacheHit = true
			return cached.(Prediction).clone(), nil
		}
	}

	prediction, err := c.classify(ctx, data, timings)
	if err != nil {
		return Prediction{}, err
	}

	if c.results != nil {
		c.results.SetDefault(key, prediction.clone())
	}
	return prediction, nil
}

func (c *Classifier) classify(ctx context.Context, data []byte, timings *models.ProcessingTimings) (Prediction, error) {
	decodeStart := time.Now()
	img, err := c.pre.Decode(bytes.NewReader(data))
	timings.ImageDecode = time.Since(decodeStart)
	if err != nil {
		return Prediction{}, err
	}

	resizeStart := time.Now()
	resized, err := c.pre.Resize(img)
	timings.Resize = time.Since(resizeStart)
	if err != nil {
		return Prediction{}, err
	}

	prepStart := time.Now()
	input := c.pre.Pack(resized)
	timings.Preprocess = time.Since(prepStart)

	inferStart := time.Now()
	scores, err := c.model.Infer(ctx, input)
	timings.Inference = time.Since(inferStart)
	if err != nil {
		return Prediction{}, stageErr(StageInference, err)
	}

	postStart := time.Now()
	prediction, err := c.variant.Interpret(scores)
	timings.Postprocess = time.Since(postStart)
	if err != nil {
		return Prediction{}, err
	}

	c.logger.Debug("image classified",
		"variant", c.variant.Name,
		"label", prediction.Label,
		"request_id", timings.RequestID)
	return prediction, nil
}
