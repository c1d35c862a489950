package training

import (
	"bytes"
	"fmt"
	"math"
	"strconv"
	"strings"
	"text/template"

	"github.com/kiranshivaraju/finetunehub/pkg/models"
)

// ScriptContentType is the content type the generated script is stored with.
const ScriptContentType = "text/x-python-script"

// DefaultHyperparameters fill in any field left empty on submission.
var DefaultHyperparameters = models.Hyperparameters{
	BaseModel:              "gpt2",
	BatchSize:              "8",
	LearningRateMultiplier: "5e-5",
	NumberOfEpochs:         "3",
	FineTuningType:         "text-generation",
	HuggingFaceID:          "default-dataset",
	Suffix:                 "default",
	Seed:                   "42",
}

const scriptSource = `
from transformers import AutoModelForCausalLM, Trainer, TrainingArguments
from datasets import load_dataset
import random
import torch

random.seed({{.Seed}})
torch.manual_seed({{.Seed}})

model = AutoModelForCausalLM.from_pretrained("{{.BaseModel}}")
dataset = load_dataset("{{.FineTuningType}}", "{{.HuggingFaceID}}")

training_args = TrainingArguments(
    output_dir='./results-{{.Suffix}}',
    evaluation_strategy="epoch",
    learning_rate={{.LearningRate}},
    per_device_train_batch_size={{.BatchSize}},
    num_train_epochs={{.Epochs}},
    save_strategy="epoch",
    save_total_limit=1
)

trainer = Trainer(
    model=model,
    args=training_args,
    train_dataset=dataset['train'],
    eval_dataset=dataset['validation']
)

trainer.train()
model.save_pretrained('./final_model-{{.Suffix}}')
`

var scriptTemplate = template.Must(template.New("script").Parse(scriptSource))

type scriptValues struct {
	BaseModel      string
	FineTuningType string
	HuggingFaceID  string
	Suffix         string
	LearningRate   string
	BatchSize      int
	Epochs         int
	Seed           int
}

// WithDefaults returns hp with every empty field replaced by its default.
func WithDefaults(hp models.Hyperparameters) models.Hyperparameters {
	d := DefaultHyperparameters
	pick := func(v, def string) string {
		if strings.TrimSpace(v) == "" {
			return def
		}
		return v
	}
	return models.Hyperparameters{
		BaseModel:              pick(hp.BaseModel, d.BaseModel),
		BatchSize:              pick(hp.BatchSize, d.BatchSize),
		LearningRateMultiplier: pick(hp.LearningRateMultiplier, d.LearningRateMultiplier),
		NumberOfEpochs:         pick(hp.NumberOfEpochs, d.NumberOfEpochs),
		FineTuningType:         pick(hp.FineTuningType, d.FineTuningType),
		HuggingFaceID:          pick(hp.HuggingFaceID, d.HuggingFaceID),
		Suffix:                 pick(hp.Suffix, d.Suffix),
		Seed:                   pick(hp.Seed, d.Seed),
	}
}

// RenderScript produces the Python training script for hp. Numeric fields
// are read by their leading number; a field with no leading number yields a
// *ValidationError.
func RenderScript(hp models.Hyperparameters) ([]byte, error) {
	hp = WithDefaults(hp)

	batchSize, err := parseInt("batchSize", hp.BatchSize)
	if err != nil {
		return nil, err
	}
	epochs, err := parseInt("numberOfEpochs", hp.NumberOfEpochs)
	if err != nil {
		return nil, err
	}
	seed, err := parseInt("seed", hp.Seed)
	if err != nil {
		return nil, err
	}
	lr, err := parseFloat("learningRateMultiplier", hp.LearningRateMultiplier)
	if err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	err = scriptTemplate.Execute(&buf, scriptValues{
		BaseModel:      hp.BaseModel,
		FineTuningType: hp.FineTuningType,
		HuggingFaceID:  hp.HuggingFaceID,
		Suffix:         hp.Suffix,
		LearningRate:   formatFloat(lr),
		BatchSize:      batchSize,
		Epochs:         epochs,
		Seed:           seed,
	})
	if err != nil {
		return nil, fmt.Errorf("render training script: %w", err)
	}
	return buf.Bytes(), nil
}

// parseInt reads the leading integer of v the way form values have always
// been read: "8.0" is 8 and "42abc" is 42. Only a value with no leading
// digits at all is rejected.
func parseInt(field, v string) (int, error) {
	s := strings.TrimSpace(v)
	sign := ""
	if s != "" && (s[0] == '+' || s[0] == '-') {
		if s[0] == '-' {
			sign = "-"
		}
		s = s[1:]
	}

	base, digits := 10, s
	if len(s) > 2 && s[0] == '0' && (s[1] == 'x' || s[1] == 'X') {
		base, digits = 16, s[2:]
	}
	end := 0
	for end < len(digits) && isDigit(digits[end], base) {
		end++
	}
	if end == 0 {
		return 0, &ValidationError{Field: field, Reason: "must be an integer"}
	}

	n, err := strconv.ParseInt(sign+digits[:end], base, strconv.IntSize)
	if err != nil {
		return 0, &ValidationError{Field: field, Reason: "out of range"}
	}
	return int(n), nil
}

// parseFloat reads the longest decimal prefix of v, so "0.0001x" is 0.0001.
// NaN and infinities are rejected.
func parseFloat(field, v string) (float64, error) {
	s := strings.TrimSpace(v)
	i := 0
	if i < len(s) && (s[i] == '+' || s[i] == '-') {
		i++
	}
	intDigits := 0
	for i < len(s) && isDigit(s[i], 10) {
		i++
		intDigits++
	}
	fracDigits := 0
	if i < len(s) && s[i] == '.' {
		j := i + 1
		for j < len(s) && isDigit(s[j], 10) {
			j++
			fracDigits++
		}
		if intDigits > 0 || fracDigits > 0 {
			i = j
		}
	}
	if intDigits == 0 && fracDigits == 0 {
		return 0, &ValidationError{Field: field, Reason: "must be a number"}
	}
	if i < len(s) && (s[i] == 'e' || s[i] == 'E') {
		j := i + 1
		if j < len(s) && (s[j] == '+' || s[j] == '-') {
			j++
		}
		k := j
		for k < len(s) && isDigit(s[k], 10) {
			k++
		}
		if k > j {
			i = k
		}
	}

	f, err := strconv.ParseFloat(s[:i], 64)
	if err != nil || math.IsInf(f, 0) {
		return 0, &ValidationError{Field: field, Reason: "must be a finite number"}
	}
	return f, nil
}

func isDigit(c byte, base int) bool {
	switch {
	case c >= '0' && c <= '9':
		return true
	case base == 16:
		return (c >= 'a' && c <= 'f') || (c >= 'A' && c <= 'F')
	}
	return false
}

// formatFloat prints v in plain decimal form inside [1e-6, 1e21) and in
// exponent form with an unpadded exponent outside it.
func formatFloat(v float64) string {
	abs := math.Abs(v)
	if v == 0 || (abs >= 1e-6 && abs < 1e21) {
		return strconv.FormatFloat(v, 'f', -1, 64)
	}
	s := strconv.FormatFloat(v, 'e', -1, 64)
	s = strings.Replace(s, "e-0", "e-", 1)
	s = strings.Replace(s, "e+0", "e+", 1)
	return s
}
