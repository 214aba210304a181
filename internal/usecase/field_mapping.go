package usecase

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/rs/zerolog"

	"github.com/shoprewrite/backend/internal/domain"
)

// Scoring weights for custom field candidates
const (
	hintMatchScore     = 10.0
	exactKeyBonus      = 2.0
	integerTypeBonus   = 4.0
	dimensionTypeBonus = 3.0
	decimalTypeBonus   = 2.0
	textTypeBonus      = 1.0
)

// Default hint words used to recognise dimension fields
var (
	DefaultHeightHints   = []string{"height", "hoogte"}
	DefaultDiameterHints = []string{"diameter", "doorsnede", "potmaat", "pot_size", "pot_diameter"}
)

var typeBonus = map[domain.FieldType]float64{
	domain.FieldTypeInteger:   integerTypeBonus,
	domain.FieldTypeDimension: dimensionTypeBonus,
	domain.FieldTypeDecimal:   decimalTypeBonus,
	domain.FieldTypeText:      textTypeBonus,
}

// RankFieldCandidates scores definitions against hint words and returns the
// matching ones, best first. Definitions of unsupported types are skipped.
func RankFieldCandidates(defs []domain.FieldDefinition, semantic domain.FieldSemantic, hints []string) []domain.FieldCandidate {
	var out []domain.FieldCandidate
	for _, def := range defs {
		bonus, ok := typeBonus[def.Type]
		if !ok {
			continue
		}

		key := normalizeFieldText(def.Key)
		name := normalizeFieldText(def.Name)

		matched, exact := false, false
		for _, h := range hints {
			h = normalizeFieldText(h)
			if h == "" {
				continue
			}
			if strings.Contains(key, h) || strings.Contains(name, h) {
				matched = true
			}
			if key == h {
				exact = true
			}
		}
		if !matched {
			continue
		}

		score := hintMatchScore + bonus
		if exact || key == string(semantic) {
			score += exactKeyBonus
		}
		out = append(out, domain.FieldCandidate{Definition: def, Semantic: semantic, Score: score})
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		a, b := out[i].Definition, out[j].Definition
		if a.Namespace != b.Namespace {
			return a.Namespace < b.Namespace
		}
		return a.Key < b.Key
	})
	return out
}

func normalizeFieldText(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	return strings.NewReplacer("-", "_", " ", "_").Replace(s)
}

// FieldMapperOptions configures custom field resolution
type FieldMapperOptions struct {
	Namespace     string
	HeightHints   []string
	DiameterHints []string
	// MirrorCount is how many next-ranked candidates also receive the value
	MirrorCount int
}

type fieldMapping map[domain.FieldSemantic][]domain.FieldCandidate

// FieldMapper writes dimension values to the custom fields of a store. The
// mapping of semantics to definitions is resolved once per store and kept
// for the lifetime of the mapper, which is one optimizer run.
type FieldMapper struct {
	commerce domain.CommerceClient
	opts     FieldMapperOptions
	logger   zerolog.Logger

	mu       sync.Mutex
	mappings map[string]fieldMapping
}

// NewFieldMapper creates a new field mapper
func NewFieldMapper(commerce domain.CommerceClient, opts FieldMapperOptions, logger zerolog.Logger) *FieldMapper {
	if opts.Namespace == "" {
		opts.Namespace = "custom"
	}
	if len(opts.HeightHints) == 0 {
		opts.HeightHints = DefaultHeightHints
	}
	if len(opts.DiameterHints) == 0 {
		opts.DiameterHints = DefaultDiameterHints
	}
	if opts.MirrorCount < 0 {
		opts.MirrorCount = 0
	}
	return &FieldMapper{
		commerce: commerce,
		opts:     opts,
		logger:   logger,
		mappings: make(map[string]fieldMapping),
	}
}

// Candidates returns the resolved candidates for a semantic
func (m *FieldMapper) Candidates(ctx context.Context, store domain.Store, semantic domain.FieldSemantic) []domain.FieldCandidate {
	return m.resolve(ctx, store)[semantic]
}

func (m *FieldMapper) resolve(ctx context.Context, store domain.Store) fieldMapping {
	m.mu.Lock()
	defer m.mu.Unlock()

	if mapping, ok := m.mappings[store.Domain]; ok {
		return mapping
	}

	defs, err := m.commerce.ListFieldDefinitions(ctx, store)
	if err != nil {
		m.logger.Warn().Err(err).Str("store", store.Domain).Msg("listing field definitions failed, using default fields for this run")
		mapping := m.fallbackMapping()
		if ctx.Err() == nil {
			m.mappings[store.Domain] = mapping
		}
		return mapping
	}

	mapping := fieldMapping{
		domain.SemanticHeight:   RankFieldCandidates(defs, domain.SemanticHeight, m.opts.HeightHints),
		domain.SemanticDiameter: RankFieldCandidates(defs, domain.SemanticDiameter, m.opts.DiameterHints),
	}
	for semantic, candidates := range mapping {
		if len(candidates) == 0 {
			mapping[semantic] = []domain.FieldCandidate{m.fallbackCandidate(semantic)}
			continue
		}
		top := candidates[0].Definition
		m.logger.Debug().
			Str("store", store.Domain).
			Str("semantic", string(semantic)).
			Str("field", top.Namespace+"."+top.Key).
			Str("type", string(top.Type)).
			Int("candidates", len(candidates)).
			Msg("resolved custom field")
	}

	m.mappings[store.Domain] = mapping
	return mapping
}

func (m *FieldMapper) fallbackMapping() fieldMapping {
	return fieldMapping{
		domain.SemanticHeight:   {m.fallbackCandidate(domain.SemanticHeight)},
		domain.SemanticDiameter: {m.fallbackCandidate(domain.SemanticDiameter)},
	}
}

func (m *FieldMapper) fallbackCandidate(semantic domain.FieldSemantic) domain.FieldCandidate {
	return domain.FieldCandidate{
		Definition: domain.FieldDefinition{
			Name:      string(semantic),
			Namespace: m.opts.Namespace,
			Key:       string(semantic),
			Type:      domain.FieldTypeText,
		},
		Semantic: semantic,
	}
}

// Write stores the found dimensions on the product. A candidate the store
// rejects with an owner type mismatch is skipped for the next one.
func (m *FieldMapper) Write(ctx context.Context, store domain.Store, productID int64, dims domain.Dimensions) error {
	mapping := m.resolve(ctx, store)

	values := []struct {
		semantic domain.FieldSemantic
		value    *float64
	}{
		{domain.SemanticHeight, dims.HeightCM},
		{domain.SemanticDiameter, dims.DiameterCM},
	}

	var errs []error
	for _, v := range values {
		if v.value == nil {
			continue
		}
		if err := m.writeSemantic(ctx, store, productID, v.semantic, *v.value, mapping[v.semantic]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m *FieldMapper) writeSemantic(ctx context.Context, store domain.Store, productID int64, semantic domain.FieldSemantic, value float64, candidates []domain.FieldCandidate) error {
	fallback := m.fallbackCandidate(semantic)
	if !containsDefinition(candidates, fallback.Definition) {
		candidates = append(candidates[:len(candidates):len(candidates)], fallback)
	}

	written := -1
	var lastErr error
	for i, c := range candidates {
		err := m.commerce.SetCustomFields(ctx, store, []domain.FieldWrite{{OwnerID: productID, Definition: c.Definition, ValueCM: value}})
		if err == nil {
			written = i
			break
		}
		lastErr = err

		var ue *domain.UserErrors
		if errors.As(err, &ue) && ue.OwnerTypeMismatch() {
			m.logger.Debug().Str("field", c.Definition.Namespace+"."+c.Definition.Key).Msg("owner type mismatch, trying next field")
			continue
		}
		return fmt.Errorf("set %s field: %w", semantic, err)
	}
	if written < 0 {
		return fmt.Errorf("set %s field: %w", semantic, lastErr)
	}

	mirrored := 0
	for _, c := range candidates[written+1:] {
		if mirrored >= m.opts.MirrorCount || c.Score == 0 {
			break
		}
		if err := m.commerce.SetCustomFields(ctx, store, []domain.FieldWrite{{OwnerID: productID, Definition: c.Definition, ValueCM: value}}); err != nil {
			m.logger.Warn().Err(err).Str("field", c.Definition.Namespace+"."+c.Definition.Key).Msg("mirror write failed")
		}
		mirrored++
	}

	return nil
}

func containsDefinition(candidates []domain.FieldCandidate, def domain.FieldDefinition) bool {
	for _, c := range candidates {
		if c.Definition.Namespace == def.Namespace && c.Definition.Key == def.Key {
			return true
		}
	}
	return false
}
