package ner

import (
	"math/rand"
	"strings"
)

const (
	tagOutside = "O"
	defaultLR  = 1.0
)

// Model is an averaged-perceptron style BIO sequence tagger. It is the
// trainable entity-recognition component: blank at construction, mutated by
// Update calls, persisted as a snapshot (see snapshot.go).
//
// Prediction is deterministic; randomness (shuffling, feature dropout) is
// injected only by training callers.
type Model struct {
	labels  []Label
	weights map[string]map[string]float64 // tag -> feature -> weight
	lr      float64
}

// NewModel creates a blank model recognizing the given label set.
func NewModel(labels []Label) *Model {
	m := &Model{
		weights: make(map[string]map[string]float64),
		lr:      defaultLR,
	}
	for _, l := range labels {
		m.AddLabel(l)
	}
	return m
}

// Labels returns the labels the model currently recognizes, in stable order.
func (m *Model) Labels() []Label {
	out := make([]Label, len(m.labels))
	copy(out, m.labels)
	return out
}

// HasLabel reports whether the model already recognizes l.
func (m *Model) HasLabel(l Label) bool {
	for _, have := range m.labels {
		if have == l {
			return true
		}
	}
	return false
}

// AddLabel extends the label set. Adding an existing label is a no-op.
func (m *Model) AddLabel(l Label) {
	if m.HasLabel(l) {
		return
	}
	m.labels = append(m.labels, l)
}

// tags returns the full BIO tag set in stable order: O first, then B-/I- pairs
// following label order. Ties in scoring resolve to the earlier tag.
func (m *Model) tags() []string {
	out := make([]string, 0, 1+2*len(m.labels))
	out = append(out, tagOutside)
	for _, l := range m.labels {
		out = append(out, "B-"+string(l), "I-"+string(l))
	}
	return out
}

func (m *Model) score(tag string, feats []string) float64 {
	w := m.weights[tag]
	if w == nil {
		return 0
	}
	var s float64
	for _, f := range feats {
		s += w[f]
	}
	return s
}

// bestTag picks the highest-scoring tag for feats, honoring the BIO
// constraint that I-X may only follow B-X or I-X.
func (m *Model) bestTag(feats []string, prev string) string {
	best := tagOutside
	bestScore := m.score(tagOutside, feats)
	for _, tag := range m.tags() {
		if tag == tagOutside {
			continue
		}
		if strings.HasPrefix(tag, "I-") && !continues(prev, tag) {
			continue
		}
		if s := m.score(tag, feats); s > bestScore {
			best, bestScore = tag, s
		}
	}
	return best
}

// continues reports whether tag (an I- tag) legally continues prev.
func continues(prev, tag string) bool {
	label := tag[2:]
	return prev == "B-"+label || prev == "I-"+label
}

// Predict runs the tagger over text and returns the decoded entity spans in
// text order.
func (m *Model) Predict(text string) []Span {
	tokens := Tokenize(text)
	prev := tagOutside
	var spans []Span
	for i := range tokens {
		tag := m.bestTag(featurize(tokens, i), prev)
		switch {
		case strings.HasPrefix(tag, "B-"):
			spans = append(spans, Span{Start: tokens[i].Start, End: tokens[i].End, Label: Label(tag[2:])})
		case strings.HasPrefix(tag, "I-"):
			spans[len(spans)-1].End = tokens[i].End
		}
		prev = tag
	}
	return spans
}

// goldTags converts an example's spans into per-token BIO tags. A token
// belongs to a span when their ranges overlap; the first overlapping token of
// a span gets B-, the rest I-. Earlier spans win on (theoretical) overlap.
func goldTags(tokens []Token, spans []Span) []string {
	tags := make([]string, len(tokens))
	for i := range tags {
		tags[i] = tagOutside
	}
	for _, sp := range spans {
		begun := false
		for i, t := range tokens {
			if t.Start >= sp.End || t.End <= sp.Start {
				continue
			}
			if tags[i] != tagOutside {
				continue
			}
			if !begun {
				tags[i] = "B-" + string(sp.Label)
				begun = true
			} else {
				tags[i] = "I-" + string(sp.Label)
			}
		}
	}
	return tags
}

// Update performs one perceptron pass over examples and returns the
// accumulated loss (count of mistagged tokens). drop is the feature dropout
// probability; rng drives dropout and may be nil when drop is zero. Gold tags
// provide the previous-tag context during the pass.
func (m *Model) Update(examples []Example, drop float64, rng *rand.Rand) float64 {
	var loss float64
	for _, ex := range examples {
		tokens := Tokenize(ex.Text)
		gold := goldTags(tokens, ex.Spans)
		prev := tagOutside
		for i := range tokens {
			feats := featurize(tokens, i)
			if drop > 0 && rng != nil {
				feats = dropFeatures(feats, drop, rng)
			}
			pred := m.bestTag(feats, prev)
			if pred != gold[i] {
				loss++
				m.adjust(gold[i], feats, m.lr)
				m.adjust(pred, feats, -m.lr)
			}
			prev = gold[i]
		}
	}
	return loss
}

func (m *Model) adjust(tag string, feats []string, delta float64) {
	w := m.weights[tag]
	if w == nil {
		w = make(map[string]float64)
		m.weights[tag] = w
	}
	for _, f := range feats {
		w[f] += delta
	}
}

func dropFeatures(feats []string, drop float64, rng *rand.Rand) []string {
	kept := feats[:0:0]
	for _, f := range feats {
		if rng.Float64() >= drop {
			kept = append(kept, f)
		}
	}
	if len(kept) == 0 {
		return feats
	}
	return kept
}
