// Package transform filters raw catalog records and maps them into
// normalized search index entries.
package transform

import (
	"math/rand"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/ncsa/training-sync/pkg/catalog"
	"github.com/ncsa/training-sync/pkg/errors"
	"github.com/ncsa/training-sync/pkg/stats"
)

// ProviderID identifies the organization publishing the entries
const ProviderID = "urn:ogf.org:glue2:access-ci.org:resource:cider:infrastructure.organizations:897"

// Facet names a sink-required field that has no source equivalent.
// Values for these facets are synthetic, not inferred from the record.
type Facet string

const (
	FacetTargetGroup  Facet = "Target_Group"
	FacetResourceType Facet = "Learning_Resource_Type"
	FacetOutcome      Facet = "Learning_Outcome"
	FacetExpertise    Facet = "Expertise_Level"
	FacetRating       Facet = "Rating"
	FacetDuration     Facet = "Duration"
)

// Enumerations the sink accepts for each synthetic facet
var (
	ResourceTypes = []string{
		"activity plan", "assessment", "assessment item", "educator curriculum guide",
		"lesson plan", "physical learning resource", "recorded lesson",
		"supporting document", "textbook", "unit plan",
	}
	Outcomes       = []string{"Basic understanding", "Proficient", "Deep knowledge"}
	TargetGroups   = []string{
		"Researchers", "Research groups", "Research communities", "Research projects",
		"Research networks", "Research managers", "Research organizations", "Students",
		"Innovators", "Providers", "Funders", "Research Infrastructure Managers",
		"Resource Managers", "Publishers", "Other",
	}
	ExpertiseLevels = []string{"Beginner", "Intermediate", "Advanced", "All"}
	Durations       = []int{30, 60, 90, 120, 240, 360, 480}
)

// FacetPolicy selects a value for a facet the source does not supply
type FacetPolicy interface {
	Pick(facet Facet) (interface{}, error)
}

// FixedPolicy returns a preset value per facet, failing on facets it does
// not cover. Useful for reproducible loads.
type FixedPolicy map[Facet]interface{}

// Pick returns the preset value for the facet
func (p FixedPolicy) Pick(facet Facet) (interface{}, error) {
	v, ok := p[facet]
	if !ok {
		return nil, errors.New(errors.ErrorTypeConfig, "no fixed value for facet").
			WithDetail("facet", string(facet))
	}
	return v, nil
}

// RandomPolicy picks uniformly from the facet's enumeration using a seeded
// generator, so a given seed reproduces the same sequence of choices.
type RandomPolicy struct {
	rng *rand.Rand
}

// NewRandomPolicy creates a random policy from a seed
func NewRandomPolicy(seed int64) *RandomPolicy {
	return &RandomPolicy{rng: rand.New(rand.NewSource(seed))}
}

// Pick selects a value for the facet
func (p *RandomPolicy) Pick(facet Facet) (interface{}, error) {
	switch facet {
	case FacetTargetGroup:
		return []string{TargetGroups[p.rng.Intn(len(TargetGroups))]}, nil
	case FacetResourceType:
		return ResourceTypes[p.rng.Intn(len(ResourceTypes))], nil
	case FacetOutcome:
		return []string{Outcomes[p.rng.Intn(len(Outcomes))]}, nil
	case FacetExpertise:
		return []string{ExpertiseLevels[p.rng.Intn(len(ExpertiseLevels))]}, nil
	case FacetRating:
		return float64(p.rng.Intn(51)) / 10, nil
	case FacetDuration:
		return Durations[p.rng.Intn(len(Durations))], nil
	default:
		return nil, errors.New(errors.ErrorTypeInternal, "unknown facet").
			WithDetail("facet", string(facet))
	}
}

// UnmappedPolicy refuses to invent values; any synthetic facet is an error.
type UnmappedPolicy struct{}

// Pick always fails
func (UnmappedPolicy) Pick(facet Facet) (interface{}, error) {
	return nil, errors.New(errors.ErrorTypeConfig, "facet has no source mapping").
		WithDetail("facet", string(facet))
}

var allFacets = []Facet{
	FacetTargetGroup, FacetResourceType, FacetOutcome,
	FacetExpertise, FacetRating, FacetDuration,
}

// Transformer maps parent records into normalized entries
type Transformer struct {
	importSource string
	policy       FacetPolicy
	now          func() time.Time
	log          *zap.Logger
}

// Option customizes a Transformer
type Option func(*Transformer)

// WithClock overrides the wall clock, for tests
func WithClock(now func() time.Time) Option {
	return func(t *Transformer) { t.now = now }
}

// New creates a Transformer that includes only records whose import-source
// tag equals importSource
func New(importSource string, policy FacetPolicy, log *zap.Logger, opts ...Option) *Transformer {
	t := &Transformer{
		importSource: importSource,
		policy:       policy,
		now:          time.Now,
		log:          log.With(zap.String("component", "transformer")),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// Transform produces one entry per included record, counting excluded
// records as skipped. It performs no I/O.
func (t *Transformer) Transform(doc *catalog.Document, run *stats.Run) ([]*catalog.Entry, error) {
	entries := make([]*catalog.Entry, 0, len(doc.Results))

	for i := range doc.Results {
		rec := &doc.Results[i]
		if rec.EntityJSON.ImportSource != t.importSource {
			run.AddSkipped(1)
			continue
		}

		entry, err := t.buildEntry(rec)
		if err != nil {
			return nil, err
		}
		entries = append(entries, entry)
	}

	t.log.Debug("transformed document",
		zap.Int("records", len(doc.Results)),
		zap.Int("entries", len(entries)),
		zap.Int64("skipped", run.Skipped()))
	return entries, nil
}

func (t *Transformer) buildEntry(rec *catalog.ParentRecord) (*catalog.Entry, error) {
	ej := &rec.EntityJSON

	content := map[string]interface{}{
		"Title":             ej.ResourceName,
		"Abstract":          ej.ResourceDescription,
		"Version_Date":      rec.CreationTime,
		"Authors":           []string{},
		"Language":          "en",
		"Keywords":          []string{t.keyword()},
		"URL":               ej.ResourceWebsite,
		"Resource_URL_Type": "URL",
		"License":           ej.DataLicense,
		"Cost":              ej.CostDescription,
		"Provider_ID":       ProviderID,
		"Start_Datetime":    t.now().Format(time.RFC3339),
	}

	for _, facet := range allFacets {
		v, err := t.policy.Pick(facet)
		if err != nil {
			return nil, err
		}
		content[string(facet)] = v
	}

	return &catalog.Entry{
		Subject:   rec.ID,
		VisibleTo: []string{"public"},
		Content:   content,
	}, nil
}

func (t *Transformer) keyword() string {
	kw := strings.ToLower(t.importSource)
	if idx := strings.Index(kw, "."); idx > 0 {
		kw = kw[:idx]
	}
	return kw
}
