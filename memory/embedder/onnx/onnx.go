//go:build onnx

package onnx

import (
	"context"
	"fmt"
	"sync"

	ort "github.com/yalue/onnxruntime_go"
	"go.uber.org/zap"
)

var (
	envOnce sync.Once
	envErr  error
)

// Embedder generates embeddings using ONNX Runtime.
type Embedder struct {
	mu        sync.Mutex // serializes session runs
	session    *ort.DynamicAdvancedSession
	inputNames []string
	tokenizer  *Tokenizer
	config    Config
	logger    *zap.Logger
}

// New creates an ONNX embedder. The runtime environment is initialized once
// per process.
func New(cfg Config, logger *zap.Logger) (*Embedder, error) {
	if cfg.ModelPath == "" {
		return nil, fmt.Errorf("ModelPath is required")
	}
	cfg.applyDefaults()
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.Named("onnx")

	envOnce.Do(func() {
		if cfg.SharedLibraryPath != "" {
			ort.SetSharedLibraryPath(cfg.SharedLibraryPath)
		}
		envErr = ort.InitializeEnvironment()
	})
	if envErr != nil {
		return nil, fmt.Errorf("failed to initialize ONNX runtime: %w", envErr)
	}

	tokenizer, err := LoadTokenizer(cfg.TokenizerPath)
	if err != nil {
		return nil, err
	}

	inputs, outputs, err := ort.GetInputOutputInfo(cfg.ModelPath)
	if err != nil {
		return nil, fmt.Errorf("inspect model: %w", err)
	}
	inputNames := make([]string, 0, len(inputs))
	for _, in := range inputs {
		inputNames = append(inputNames, in.Name)
	}
	if len(outputs) == 0 {
		return nil, fmt.Errorf("model %s has no outputs", cfg.ModelPath)
	}
	logger.Info("loaded onnx model",
		zap.String("path", cfg.ModelPath),
		zap.Strings("inputs", inputNames),
		zap.String("output", outputs[0].Name))

	session, err := ort.NewDynamicAdvancedSession(cfg.ModelPath, inputNames, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	return &Embedder{
		session:    session,
		inputNames: inputNames,
		tokenizer:  tokenizer,
		config:     cfg,
		logger:     logger,
	}, nil
}

// Embed converts text to a unit-length embedding vector.
func (e *Embedder) Embed(ctx context.Context, text string) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	maxLen := e.config.MaxSequenceLength
	ids, mask := e.tokenizer.Encode(text, maxLen)
	typeIDs := make([]int64, maxLen)

	shape := ort.NewShape(1, int64(maxLen))
	byName := map[string][]int64{
		"input_ids":      ids,
		"attention_mask": mask,
		"token_type_ids": typeIDs,
	}

	inputs := make([]ort.Value, 0, len(e.inputNames))
	defer func() {
		for _, v := range inputs {
			v.Destroy()
		}
	}()
	for _, name := range e.inputNames {
		data, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("unsupported model input %q", name)
		}
		tensor, err := ort.NewTensor(shape, data)
		if err != nil {
			return nil, fmt.Errorf("create %s tensor: %w", name, err)
		}
		inputs = append(inputs, tensor)
	}

	outputs := []ort.Value{nil}
	e.mu.Lock()
	err := e.session.Run(inputs, outputs)
	e.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("ONNX inference failed: %w", err)
	}
	defer func() {
		if outputs[0] != nil {
			outputs[0].Destroy()
		}
	}()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("unexpected output tensor type %T", outputs[0])
	}
	return meanPool(out.GetData(), out.GetShape(), mask, e.config.Dimensions)
}

// Dimensions returns the embedding vector size.
func (e *Embedder) Dimensions() int {
	return e.config.Dimensions
}

// Close releases ONNX resources.
func (e *Embedder) Close() error {
	if e.session != nil {
		return e.session.Destroy()
	}
	return nil
}
