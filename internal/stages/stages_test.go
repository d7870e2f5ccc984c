package stages

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"postforge/internal/sheet"
	"postforge/internal/workitem"
)

var fullHeader = []string{
	ColIdea, ColCaption, ColScript, ColScriptDone,
	ColImagePrompt, ColImageURL, ColRawImage, ColImageDone,
	ColFinalImage, ColComposeDone,
	ColPostDate, ColPostTime, ColPostFlag, ColPosted, ColPostID,
	ColStatus, ColDone,
}

// memStore is an in-memory sheet.Store for stage tests.
type memStore struct {
	header []string
	rows   [][]string
}

func newMemStore(header []string, rows ...map[string]string) *memStore {
	s := &memStore{header: header}
	schema := sheet.NewSchema(header)
	for _, vals := range rows {
		row := make([]string, len(header))
		for name, v := range vals {
			idx, ok := schema.Col(name)
			if ok {
				row[idx] = v
			}
		}
		s.rows = append(s.rows, row)
	}
	return s
}

func (m *memStore) Header() ([]string, error) { return m.header, nil }
func (m *memStore) Rows() ([][]string, error) { return m.rows, nil }

func (m *memStore) Update(row int, writes map[string]string) error {
	schema := sheet.NewSchema(m.header)
	for name, v := range writes {
		idx, ok := schema.Col(name)
		if !ok {
			return errors.New("no column " + name)
		}
		m.rows[row][idx] = v
	}
	return nil
}

func (m *memStore) cell(t *testing.T, row int, col string) string {
	t.Helper()
	idx, ok := sheet.NewSchema(m.header).Col(col)
	require.True(t, ok, "column %s", col)
	return m.rows[row][idx]
}

type fakeWriter struct{ script string }

func (f *fakeWriter) Write(ctx context.Context, idea string) (string, error) {
	return f.script + " for " + idea, nil
}

type fakeRenderer struct{ prompts []string }

func (f *fakeRenderer) Render(ctx context.Context, prompt string) (string, error) {
	f.prompts = append(f.prompts, prompt)
	return "img://" + prompt, nil
}

type fakeCompositor struct{ bases []string }

func (f *fakeCompositor) Compose(ctx context.Context, image, caption string) (string, error) {
	f.bases = append(f.bases, image)
	return "final://" + image, nil
}

type fakePublisher struct {
	published []Post
	scheduled []Post
	at        []time.Time
}

func (f *fakePublisher) Publish(ctx context.Context, p Post) (string, error) {
	f.published = append(f.published, p)
	return "post-now", nil
}

func (f *fakePublisher) Schedule(ctx context.Context, p Post, at time.Time) (string, error) {
	f.scheduled = append(f.scheduled, p)
	f.at = append(f.at, at)
	return "post-later", nil
}

func testPipeline(now time.Time) (*Pipeline, *fakePublisher, *fakeCompositor, *fakeRenderer) {
	pub := &fakePublisher{}
	comp := &fakeCompositor{}
	ren := &fakeRenderer{}
	p := &Pipeline{
		Writer:     &fakeWriter{script: "script"},
		Renderer:   ren,
		Compositor: comp,
		Publisher:  pub,
		Now:        func() time.Time { return now },
	}
	return p, pub, comp, ren
}

// sheetDateTime renders a UTC instant the way the sheet carries it: local
// +05:30 wall clock, day/month order.
func sheetDateTime(target time.Time) (string, string) {
	local := target.Add(330 * time.Minute)
	return local.Format("2/1/06"), local.Format("3:04 PM")
}

func TestScriptStageWritesScript(t *testing.T) {
	store := newMemStore(fullHeader, map[string]string{ColIdea: "sunset reel"})
	p, _, _, _ := testPipeline(time.Now())

	sum, err := p.RunStage(context.Background(), store, "script", t.Logf)
	require.NoError(t, err)
	assert.Equal(t, workitem.Summary{Processed: 1}, sum)
	assert.Equal(t, "script for sunset reel", store.cell(t, 0, ColScript))
	assert.Equal(t, workitem.FlagDone, store.cell(t, 0, ColScriptDone))
}

func TestImageStagePrefersExplicitPrompt(t *testing.T) {
	store := newMemStore(fullHeader,
		map[string]string{ColImagePrompt: "a beach", ColScript: "long script"},
		map[string]string{ColScript: "only script"},
	)
	p, _, _, ren := testPipeline(time.Now())

	sum, err := p.RunStage(context.Background(), store, "image", t.Logf)
	require.NoError(t, err)
	assert.Equal(t, workitem.Summary{Processed: 2}, sum)
	assert.Equal(t, []string{"a beach", "only script"}, ren.prompts)
	assert.Equal(t, "img://a beach", store.cell(t, 0, ColRawImage))
}

func TestComposePrefersGeneratedImage(t *testing.T) {
	store := newMemStore(fullHeader,
		map[string]string{ColCaption: "c1", ColRawImage: "raw.png", ColImageURL: "manual.png"},
		map[string]string{ColCaption: "c2", ColImageURL: "manual.png"},
	)
	p, _, comp, _ := testPipeline(time.Now())

	sum, err := p.RunStage(context.Background(), store, "compose", t.Logf)
	require.NoError(t, err)
	assert.Equal(t, workitem.Summary{Processed: 2}, sum)
	assert.Equal(t, []string{"raw.png", "manual.png"}, comp.bases)
	assert.Equal(t, "final://raw.png", store.cell(t, 0, ColFinalImage))
}

func TestPublishImmediateVersusScheduled(t *testing.T) {
	now := time.Date(2025, 6, 5, 12, 0, 0, 0, time.UTC)
	soonDate, soonTime := sheetDateTime(now.Add(5 * time.Minute))
	laterDate, laterTime := sheetDateTime(now.Add(15 * time.Minute))

	store := newMemStore(fullHeader,
		map[string]string{
			ColCaption: "soon", ColFinalImage: "a.png", ColPostFlag: "TRUE",
			ColPostDate: soonDate, ColPostTime: soonTime,
		},
		map[string]string{
			ColCaption: "later", ColFinalImage: "b.png", ColPostFlag: "TRUE",
			ColPostDate: laterDate, ColPostTime: laterTime,
		},
	)
	p, pub, _, _ := testPipeline(now)

	sum, err := p.RunStage(context.Background(), store, "publish", t.Logf)
	require.NoError(t, err)
	assert.Equal(t, workitem.Summary{Processed: 2}, sum)

	require.Len(t, pub.published, 1)
	assert.Equal(t, "soon", pub.published[0].Caption)

	require.Len(t, pub.scheduled, 1)
	assert.Equal(t, "later", pub.scheduled[0].Caption)
	assert.True(t, pub.at[0].Equal(now.Add(15*time.Minute)), "scheduled at %s", pub.at[0])

	assert.Equal(t, "post-now", store.cell(t, 0, ColPostID))
	assert.Equal(t, workitem.FlagDone, store.cell(t, 0, ColPosted))
	assert.Equal(t, workitem.FlagDone, store.cell(t, 0, ColDone))
}

func TestPublishHonorsOptOut(t *testing.T) {
	store := newMemStore(fullHeader, map[string]string{
		ColCaption: "c", ColFinalImage: "a.png",
		ColPostDate: "5/6/25", ColPostTime: "9:00 AM",
		// Post? left blank: the row opted out.
	})
	p, pub, _, _ := testPipeline(time.Now())

	sum, err := p.RunStage(context.Background(), store, "publish", t.Logf)
	require.NoError(t, err)
	assert.Equal(t, workitem.Summary{Skipped: 1}, sum)
	assert.Empty(t, pub.published)
	assert.Empty(t, pub.scheduled)
	assert.Equal(t, workitem.FlagSkipped, store.cell(t, 0, ColPosted))
	assert.Equal(t, workitem.FlagSkipped, store.cell(t, 0, ColDone))
}

func TestPublishRejectsInvalidDate(t *testing.T) {
	store := newMemStore(fullHeader, map[string]string{
		ColCaption: "c", ColFinalImage: "a.png", ColPostFlag: "TRUE",
		ColPostDate: "31/13/25", ColPostTime: "9:00 AM",
	})
	p, pub, _, _ := testPipeline(time.Now())

	sum, err := p.RunStage(context.Background(), store, "publish", t.Logf)
	require.NoError(t, err)
	assert.Equal(t, workitem.Summary{Failed: 1}, sum)
	assert.Empty(t, pub.published)
	assert.Contains(t, store.cell(t, 0, ColStatus), "FAILED")
	assert.Equal(t, workitem.FlagDone, store.cell(t, 0, ColDone))
}

func TestPublishFallsBackThroughMediaCandidates(t *testing.T) {
	store := newMemStore(fullHeader, map[string]string{
		ColCaption: "c", ColRawImage: "raw.png", ColPostFlag: "TRUE",
		ColPostDate: "5/6/25", ColPostTime: "9:00 AM",
	})
	now := time.Date(2030, 1, 1, 0, 0, 0, 0, time.UTC) // target far in the past: immediate
	p, pub, _, _ := testPipeline(now)

	sum, err := p.RunStage(context.Background(), store, "publish", t.Logf)
	require.NoError(t, err)
	assert.Equal(t, workitem.Summary{Processed: 1}, sum)
	require.Len(t, pub.published, 1)
	assert.Equal(t, "raw.png", pub.published[0].Media)
}

func TestRunAllAbortsOnFatalStageError(t *testing.T) {
	// No Idea column: the script stage cannot resolve its schema, and script
	// is fatal to a full run.
	header := fullHeader[1:]
	store := newMemStore(header, map[string]string{ColCaption: "c"})
	p, _, _, _ := testPipeline(time.Now())

	err := p.RunAll(context.Background(), store, t.Logf)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "step script")
}

func TestRunAllContinuesPastNonFatalStageError(t *testing.T) {
	// No Final Image column: publish cannot resolve its schema, but publish
	// is not fatal, so the full run still succeeds.
	var header []string
	for _, c := range fullHeader {
		if c != ColFinalImage {
			header = append(header, c)
		}
	}
	store := newMemStore(header, map[string]string{ColIdea: "idea"})
	p, _, _, _ := testPipeline(time.Now())

	err := p.RunAll(context.Background(), store, t.Logf)
	require.NoError(t, err)
}

func TestSpecRejectsUnknownStep(t *testing.T) {
	p, _, _, _ := testPipeline(time.Now())
	_, err := p.Spec("deploy")
	assert.Error(t, err)
}
