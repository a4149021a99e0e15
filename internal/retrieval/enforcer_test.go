package retrieval

import (
	"context"
	"errors"
	"testing"

	"github.com/fyrsmithlabs/ragguard/internal/access"
	"github.com/fyrsmithlabs/ragguard/internal/index"
	"github.com/fyrsmithlabs/ragguard/internal/logging"
	"github.com/fyrsmithlabs/ragguard/internal/telemetry"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeEmbedder struct {
	calls int
	err   error
}

func (f *fakeEmbedder) EmbedDocuments(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = []float32{1, 0}
	}
	return out, f.err
}

func (f *fakeEmbedder) EmbedQuery(context.Context, string) ([]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return []float32{1, 0}, nil
}

type fakeIndex struct {
	results []index.Candidate
	err     error
	calls   int
	topK    int
	opts    int
}

func (f *fakeIndex) Upsert(context.Context, []index.Item) error { return nil }

func (f *fakeIndex) Query(_ context.Context, _ []float32, topK int, opts ...index.QueryOption) ([]index.Candidate, error) {
	f.calls++
	f.topK = topK
	f.opts = len(opts)
	if f.err != nil {
		return nil, f.err
	}
	return f.results, nil
}

type fakeSynth struct {
	calls    int
	context  string
	question string
	reply    string
	err      error
}

func (f *fakeSynth) Generate(_ context.Context, contextText, question string) (string, error) {
	f.calls++
	f.context = contextText
	f.question = question
	if f.err != nil {
		return "", f.err
	}
	if f.reply != "" {
		return f.reply, nil
	}
	return "answer from: " + contextText, nil
}

type fixture struct {
	emb   *fakeEmbedder
	idx   *fakeIndex
	synth *fakeSynth
	e     *Enforcer
}

func newFixture(t *testing.T, results []index.Candidate, opts ...Option) *fixture {
	t.Helper()
	f := &fixture{
		emb:   &fakeEmbedder{},
		idx:   &fakeIndex{results: results},
		synth: &fakeSynth{},
	}
	e, err := NewEnforcer(f.emb, f.idx, access.DefaultPolicy(), f.synth, opts...)
	require.NoError(t, err)
	f.e = e
	return f
}

func TestNewEnforcer_RequiresCollaborators(t *testing.T) {
	p := access.DefaultPolicy()
	_, err := NewEnforcer(nil, &fakeIndex{}, p, &fakeSynth{})
	assert.Error(t, err)
	_, err = NewEnforcer(&fakeEmbedder{}, nil, p, &fakeSynth{})
	assert.Error(t, err)
	_, err = NewEnforcer(&fakeEmbedder{}, &fakeIndex{}, nil, &fakeSynth{})
	assert.Error(t, err)
	_, err = NewEnforcer(&fakeEmbedder{}, &fakeIndex{}, p, nil)
	assert.Error(t, err)
}

func TestNewEnforcer_OverFetchLowerBound(t *testing.T) {
	p := access.DefaultPolicy()
	for _, n := range []int{0, 1, 4} {
		_, err := NewEnforcer(&fakeEmbedder{}, &fakeIndex{}, p, &fakeSynth{}, WithOverFetch(n))
		assert.Error(t, err, "over-fetch %d", n)
	}
	_, err := NewEnforcer(&fakeEmbedder{}, &fakeIndex{}, p, &fakeSynth{}, WithOverFetch(MinOverFetch))
	assert.NoError(t, err)
}

func TestAsk_AllowedScenario(t *testing.T) {
	f := newFixture(t, []index.Candidate{
		candidate("h1", "public", "Office hours are 9am to 6pm", "handbook"),
	})

	res, err := f.e.Ask(context.Background(), "What are the office working hours?", "Intern")
	require.NoError(t, err)
	assert.Equal(t, KindAnswer, res.Kind)
	assert.Equal(t, []string{"handbook"}, res.Sources)
	assert.Equal(t, 1, f.synth.calls)
	assert.Contains(t, f.synth.context, "Office hours are 9am to 6pm")
	assert.Equal(t, "What are the office working hours?", f.synth.question)
}

func TestAsk_RefusalScenario(t *testing.T) {
	f := newFixture(t, []index.Candidate{
		candidate("s1", "confidential", "Engineer salary band L5: 180k-220k", "comp"),
	})

	res, err := f.e.Ask(context.Background(), "What salary bands apply to engineers?", "Intern")
	require.NoError(t, err)
	assert.Equal(t, KindRefusal, res.Kind)
	assert.Equal(t, "I cannot answer this based on your access level.", res.Text)
	assert.Empty(t, res.Sources)
	assert.Zero(t, f.synth.calls, "synthesizer must not run without authorized context")
}

func TestAsk_NoCandidates(t *testing.T) {
	f := newFixture(t, nil)

	res, err := f.e.Ask(context.Background(), "Anything?", "HR")
	require.NoError(t, err)
	assert.Equal(t, KindRefusal, res.Kind)
	assert.Equal(t, RefusalSentinel, res.Text)
	assert.Zero(t, f.synth.calls)
}

func TestAsk_OverFetchWithoutFilter(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.e.Ask(context.Background(), "q", "Manager")
	require.NoError(t, err)
	assert.Equal(t, DefaultOverFetch, f.idx.topK)
	assert.Zero(t, f.idx.opts, "the enforcer never passes an index filter")

	f = newFixture(t, nil, WithOverFetch(16))
	_, err = f.e.Ask(context.Background(), "q", "Manager")
	require.NoError(t, err)
	assert.Equal(t, 16, f.idx.topK)
}

// A highly ranked confidential fragment never reaches the synthesizer or
// the result for a role that cannot read it.
func TestAsk_NeverLeaksHighRankedFragment(t *testing.T) {
	secret := "Engineer salary band L5: 180k-220k"
	results := []index.Candidate{
		candidate("s1", "confidential", secret, "comp"),
		candidate("m1", "manager", "Reviews are calibrated quarterly", "reviews"),
		candidate("e1", "employee", "Leave is 20 days per year", "leave"),
		candidate("p1", "public", "Office hours are 9am to 6pm", "handbook"),
	}

	tests := []struct {
		role        string
		wantContext []string
		deny        []string
	}{
		{"Intern", []string{"Office hours"}, []string{secret, "Reviews", "Leave"}},
		{"Employee", []string{"Leave", "Office hours"}, []string{secret, "Reviews"}},
		{"Manager", []string{"Reviews", "Leave", "Office hours"}, []string{secret}},
		{"HR", []string{secret, "Reviews", "Leave", "Office hours"}, nil},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			f := newFixture(t, results)
			res, err := f.e.Ask(context.Background(), "q", tt.role)
			require.NoError(t, err)
			assert.Equal(t, KindAnswer, res.Kind)

			for _, want := range tt.wantContext {
				assert.Contains(t, f.synth.context, want)
			}
			for _, deny := range tt.deny {
				assert.NotContains(t, f.synth.context, deny)
				assert.NotContains(t, res.Text, deny)
			}
		})
	}
}

func TestAsk_ContextPreservesRankAndSeparatesParagraphs(t *testing.T) {
	f := newFixture(t, []index.Candidate{
		candidate("a", "employee", "First", "s1"),
		candidate("b", "confidential", "Hidden", "s2"),
		candidate("c", "public", "Second", "s3"),
		candidate("d", "public", "Third", "s1"),
	})

	res, err := f.e.Ask(context.Background(), "q", "Employee")
	require.NoError(t, err)
	assert.Equal(t, "First\n\nSecond\n\nThird", f.synth.context)
	assert.Equal(t, []string{"s1", "s3"}, res.Sources)
}

func TestAsk_ReturnsSynthOutputUnmodified(t *testing.T) {
	f := newFixture(t, []index.Candidate{candidate("a", "public", "Hours", "h")})
	f.synth.reply = "  The office is open 9-6. "

	res, err := f.e.Ask(context.Background(), "q", "Intern")
	require.NoError(t, err)
	assert.Equal(t, "  The office is open 9-6. ", res.Text)
}

func TestAsk_SynthRefusalIsTagged(t *testing.T) {
	f := newFixture(t, []index.Candidate{candidate("a", "public", "Hours", "h")})
	f.synth.reply = RefusalSentinel

	res, err := f.e.Ask(context.Background(), "What is the leave policy?", "Intern")
	require.NoError(t, err)
	assert.Equal(t, KindRefusal, res.Kind)
	assert.Equal(t, RefusalSentinel, res.Text)
}

func TestAsk_UnknownRole(t *testing.T) {
	f := newFixture(t, nil)

	_, err := f.e.Ask(context.Background(), "q", "Contractor")
	var re *access.UnknownRoleError
	require.True(t, errors.As(err, &re))
	assert.Equal(t, "Contractor", re.Role)
	assert.Zero(t, f.emb.calls)
	assert.Zero(t, f.idx.calls)
}

func TestAsk_RoleIsCaseInsensitive(t *testing.T) {
	f := newFixture(t, []index.Candidate{candidate("a", "manager", "Reviews", "r")})
	res, err := f.e.Ask(context.Background(), "q", "manager")
	require.NoError(t, err)
	assert.Equal(t, KindAnswer, res.Kind)
}

func TestAsk_EmptyQuestion(t *testing.T) {
	f := newFixture(t, nil)
	_, err := f.e.Ask(context.Background(), "  ", "HR")
	assert.ErrorIs(t, err, ErrEmptyQuestion)
	assert.Zero(t, f.idx.calls)
}

func TestAsk_IndexFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"storage error", &index.StorageError{Op: "query", StatusCode: 500, Body: "DB Error"}, KindStorageFailure},
		{"timeout", &index.TimeoutError{Op: "query"}, KindTimeout},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t, nil)
			f.idx.err = tt.err

			res, err := f.e.Ask(context.Background(), "q", "HR")
			require.NoError(t, err)
			assert.Equal(t, tt.want, res.Kind)
			assert.NotEqual(t, RefusalSentinel, res.Text)
			assert.Empty(t, res.Text)
			assert.ErrorIs(t, res.Err, tt.err)
			assert.Zero(t, f.synth.calls)
		})
	}
}

func TestAsk_UnclassifiedIndexError(t *testing.T) {
	f := newFixture(t, nil)
	f.idx.err = index.ErrInvalidArgument

	_, err := f.e.Ask(context.Background(), "q", "HR")
	assert.ErrorIs(t, err, index.ErrInvalidArgument)
}

func TestAsk_EmbedAndSynthErrors(t *testing.T) {
	f := newFixture(t, nil)
	f.emb.err = errors.New("model unavailable")
	_, err := f.e.Ask(context.Background(), "q", "HR")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "embedding question")
	assert.Zero(t, f.idx.calls)

	f = newFixture(t, []index.Candidate{candidate("a", "public", "Hours", "h")})
	f.synth.err = errors.New("llm down")
	_, err = f.e.Ask(context.Background(), "q", "HR")
	assert.EqualError(t, err, "llm down")
}

func TestAsk_LogsNoFragmentText(t *testing.T) {
	secret := "Engineer salary band L5: 180k-220k"
	tl := logging.NewTestLogger()
	f := newFixture(t, []index.Candidate{candidate("s1", "confidential", secret, "comp")}, WithLogger(tl.Logger))

	_, err := f.e.Ask(context.Background(), "q", "Intern")
	require.NoError(t, err)
	tl.AssertNotContains(t, secret)
	tl.AssertField(t, "candidates filtered", "role", "Intern")
}

func TestAsk_Span(t *testing.T) {
	tt := telemetry.NewTestTelemetry()
	f := newFixture(t, []index.Candidate{candidate("a", "public", "Hours", "h")},
		WithTracer(tt.Tracer("test")))

	_, err := f.e.Ask(context.Background(), "q", "Intern")
	require.NoError(t, err)
	tt.AssertSpanAttribute(t, "Enforcer.Ask", "result_kind", "answer")
	tt.AssertSpanAttribute(t, "Enforcer.Ask", "role", "Intern")
}
