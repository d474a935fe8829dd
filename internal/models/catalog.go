package models

import (
	"bytes"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"

	"github.com/creasty/defaults"
	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/wonny/screener/internal/contracts"
	"github.com/wonny/screener/pkg/logger"
)

// CatalogVersion is the only supported catalog schema version
const CatalogVersion = 1

// Catalog lists the models to register and their parameters
type Catalog struct {
	Version int         `yaml:"version" json:"version"`
	Models  []ModelSpec `yaml:"models" json:"models"`
}

// ModelSpec is one catalog entry
type ModelSpec struct {
	ID      string                 `yaml:"id" json:"id"`
	Enabled *bool                  `yaml:"enabled" json:"enabled,omitempty"` // 생략 시 true
	Params  map[string]interface{} `yaml:"params" json:"params,omitempty"`
}

// IsEnabled reports whether the entry should be registered
func (s ModelSpec) IsEnabled() bool {
	return s.Enabled == nil || *s.Enabled
}

type paramDecoder func(out interface{}) error

type builder func(decode paramDecoder, log *logger.Logger) (contracts.ScoringModel, error)

// builtins 등록 순서 = 기본 모델 선택 순서
var builtinOrder = []string{
	"rsi_reversal", "ma_crossover", "momentum", "macd_trend", "volume_breakout", "value", "quality",
}

var builtins = map[string]builder{
	"rsi_reversal": func(decode paramDecoder, log *logger.Logger) (contracts.ScoringModel, error) {
		var p RSIReversalParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewRSIReversal(p, log), nil
	},
	"ma_crossover": func(decode paramDecoder, log *logger.Logger) (contracts.ScoringModel, error) {
		var p MACrossoverParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewMACrossover(p, log), nil
	},
	"momentum": func(decode paramDecoder, log *logger.Logger) (contracts.ScoringModel, error) {
		var p MomentumParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewMomentum(p, log), nil
	},
	"macd_trend": func(decode paramDecoder, log *logger.Logger) (contracts.ScoringModel, error) {
		var p MACDTrendParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewMACDTrend(p, log), nil
	},
	"volume_breakout": func(decode paramDecoder, log *logger.Logger) (contracts.ScoringModel, error) {
		var p VolumeBreakoutParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewVolumeBreakout(p, log), nil
	},
	"value": func(decode paramDecoder, log *logger.Logger) (contracts.ScoringModel, error) {
		var p ValueParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewValue(p, log), nil
	},
	"quality": func(decode paramDecoder, log *logger.Logger) (contracts.ScoringModel, error) {
		var p QualityParams
		if err := decode(&p); err != nil {
			return nil, err
		}
		return NewQuality(p, log), nil
	},
}

var paramValidator = validator.New()

// BuiltinIDs returns the ids of every built-in model
func BuiltinIDs() []string {
	return append([]string(nil), builtinOrder...)
}

// DefaultCatalog enables every built-in model with default parameters
func DefaultCatalog() *Catalog {
	cat := &Catalog{Version: CatalogVersion}
	for _, id := range builtinOrder {
		cat.Models = append(cat.Models, ModelSpec{ID: id})
	}
	return cat
}

// LoadCatalog reads a YAML catalog and returns it with raw bytes
// KnownFields(true): 오타/미사용 필드 즉시 실패
func LoadCatalog(path string) (*Catalog, []byte, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, nil, fmt.Errorf("read catalog: %w", err)
	}

	cat, err := ParseCatalog(data)
	if err != nil {
		return nil, data, err
	}
	return cat, data, nil
}

// ParseCatalog decodes and validates catalog YAML
func ParseCatalog(data []byte) (*Catalog, error) {
	var cat Catalog
	dec := yaml.NewDecoder(bytes.NewReader(data))
	dec.KnownFields(true)
	if err := dec.Decode(&cat); err != nil {
		return nil, fmt.Errorf("decode catalog: %w", err)
	}

	if err := ValidateCatalog(&cat); err != nil {
		return nil, err
	}
	return &cat, nil
}

// ValidateCatalog checks version, ids and parameters
func ValidateCatalog(cat *Catalog) error {
	if cat.Version != CatalogVersion {
		return contracts.NewConfigError("version", "unsupported catalog version %d", cat.Version)
	}
	if len(cat.Models) == 0 {
		return contracts.NewConfigError("models", "required")
	}

	seen := make(map[string]bool, len(cat.Models))
	for i, spec := range cat.Models {
		field := fmt.Sprintf("models[%d]", i)
		if _, ok := builtins[spec.ID]; !ok {
			return contracts.NewConfigError(field+".id", "unknown model %q", spec.ID)
		}
		if seen[spec.ID] {
			return contracts.NewConfigError(field+".id", "duplicate model %q", spec.ID)
		}
		seen[spec.ID] = true

		// 파라미터 디코딩만 검증 (모델 생성은 Build에서)
		if _, err := builtins[spec.ID](decoderFor(spec), logger.NewNop()); err != nil {
			return contracts.NewConfigError(field+".params", "%v", err)
		}
	}
	return nil
}

// Build registers every enabled catalog entry
func Build(cat *Catalog, log *logger.Logger) (*Registry, error) {
	reg := NewRegistry()
	for _, spec := range cat.Models {
		if !spec.IsEnabled() {
			continue
		}
		build, ok := builtins[spec.ID]
		if !ok {
			return nil, contracts.NewConfigError("id", "unknown model %q", spec.ID)
		}
		m, err := build(decoderFor(spec), log)
		if err != nil {
			return nil, fmt.Errorf("build %s: %w", spec.ID, err)
		}
		if err := reg.Register(m); err != nil {
			return nil, err
		}
	}
	return reg, nil
}

// DefaultRegistry registers every built-in model with default parameters
func DefaultRegistry(log *logger.Logger) *Registry {
	reg, err := Build(DefaultCatalog(), log)
	if err != nil {
		// 기본 파라미터는 항상 유효
		panic(err)
	}
	return reg
}

// Hash generates SHA256 hash from Catalog (canonical JSON)
// map 키는 json.Marshal이 정렬하므로 재현성 보장
func Hash(cat *Catalog) (string, error) {
	jsonBytes, err := json.Marshal(cat)
	if err != nil {
		return "", err
	}
	sum := sha256.Sum256(jsonBytes)
	return hex.EncodeToString(sum[:]), nil
}

// decoderFor applies defaults, then the catalog entry params, then validation
func decoderFor(spec ModelSpec) paramDecoder {
	return func(out interface{}) error {
		if err := defaults.Set(out); err != nil {
			return fmt.Errorf("apply defaults: %w", err)
		}

		if len(spec.Params) > 0 {
			raw, err := yaml.Marshal(spec.Params)
			if err != nil {
				return fmt.Errorf("encode params: %w", err)
			}
			dec := yaml.NewDecoder(bytes.NewReader(raw))
			dec.KnownFields(true)
			if err := dec.Decode(out); err != nil {
				return fmt.Errorf("decode params: %w", err)
			}
		}

		if err := paramValidator.Struct(out); err != nil {
			return fmt.Errorf("validate params: %w", err)
		}
		return nil
	}
}
