// Package stages declares the content pipeline's sheet columns and builds
// one work-item spec per pipeline step. The domain work itself (writing
// scripts, rendering images, compositing, posting) happens behind the
// collaborator interfaces; this package only decides per-row control flow.
package stages

import (
	"context"
	"fmt"
	"time"

	"postforge/internal/sheet"
	"postforge/internal/temporal"
	"postforge/internal/workitem"
)

// Sheet columns. The header is resolved by name on every invocation, so the
// sheet may reorder or extend these as long as the names survive.
const (
	ColIdea        = "Idea"
	ColCaption     = "Caption"
	ColScript      = "Script"
	ColScriptDone  = "Script Done"
	ColImagePrompt = "Image Prompt"
	ColImageURL    = "Image URL"
	ColRawImage    = "Raw Image"
	ColImageDone   = "Image Done"
	ColFinalImage  = "Final Image"
	ColComposeDone = "Compose Done"
	ColPostDate    = "Post Date"
	ColPostTime    = "Post Time"
	ColPostFlag    = "Post?"
	ColPosted      = "Posted"
	ColPostID      = "Post ID"
	ColStatus      = "Status"
	ColDone        = "Done"
)

// ScriptWriter turns a raw idea into a post script.
type ScriptWriter interface {
	Write(ctx context.Context, idea string) (string, error)
}

// ImageRenderer produces an image reference from a text prompt.
type ImageRenderer interface {
	Render(ctx context.Context, prompt string) (string, error)
}

// Compositor overlays the caption onto a base image and returns the final
// asset reference.
type Compositor interface {
	Compose(ctx context.Context, image, caption string) (string, error)
}

// Post is what the publisher receives.
type Post struct {
	Media   string
	Caption string
}

// Publisher posts now or schedules for a future instant.
type Publisher interface {
	Publish(ctx context.Context, p Post) (string, error)
	Schedule(ctx context.Context, p Post, at time.Time) (string, error)
}

// Step is one pipeline step in execution order. Fatal steps abort a full
// pipeline run when their stage invocation fails outright (row failures
// never do).
type Step struct {
	Name  string
	Fatal bool
}

// Order is the fixed execution order of a full pipeline run.
func Order() []Step {
	return []Step{
		{Name: "script", Fatal: true},
		{Name: "image", Fatal: true},
		{Name: "compose", Fatal: false},
		{Name: "publish", Fatal: false},
	}
}

// Pipeline binds the collaborators to stage specs. Now is injectable for the
// publish stage's immediate-vs-scheduled decision.
type Pipeline struct {
	Writer     ScriptWriter
	Renderer   ImageRenderer
	Compositor Compositor
	Publisher  Publisher
	Now        func() time.Time
}

func (p *Pipeline) now() time.Time {
	if p.Now != nil {
		return p.Now()
	}
	return time.Now()
}

// Spec returns the work-item spec for one step name.
func (p *Pipeline) Spec(name string) (workitem.Spec, error) {
	switch name {
	case "script":
		return p.scriptSpec(), nil
	case "image":
		return p.imageSpec(), nil
	case "compose":
		return p.composeSpec(), nil
	case "publish":
		return p.publishSpec(), nil
	default:
		return workitem.Spec{}, fmt.Errorf("no such pipeline step %q", name)
	}
}

// RunStage executes one step's state machine against the store.
func (p *Pipeline) RunStage(ctx context.Context, store sheet.Store, name string, logf func(string, ...any)) (workitem.Summary, error) {
	spec, err := p.Spec(name)
	if err != nil {
		return workitem.Summary{}, err
	}
	return workitem.Run(ctx, store, spec, logf)
}

// RunAll executes every step in order. A fatal step's stage-level error
// aborts the run; non-fatal stage errors are logged and the run continues.
func (p *Pipeline) RunAll(ctx context.Context, store sheet.Store, logf func(string, ...any)) error {
	for _, step := range Order() {
		sum, err := p.RunStage(ctx, store, step.Name, logf)
		if err != nil {
			if step.Fatal {
				return fmt.Errorf("step %s: %w", step.Name, err)
			}
			logf("step %s failed, continuing: %v", step.Name, err)
			continue
		}
		logf("step %s: %d processed, %d skipped, %d failed",
			step.Name, sum.Processed, sum.Skipped, sum.Failed)
	}
	return nil
}

func (p *Pipeline) scriptSpec() workitem.Spec {
	return workitem.Spec{
		Name:          "script",
		Required:      []string{ColIdea},
		DoneColumns:   []string{ColScriptDone},
		AllDoneColumn: ColDone,
		StatusColumn:  ColStatus,
		Action: func(ctx context.Context, item *workitem.Item, _ map[string]workitem.Selection) (map[string]string, error) {
			script, err := p.Writer.Write(ctx, item.Get(ColIdea))
			if err != nil {
				return nil, err
			}
			return map[string]string{ColScript: script}, nil
		},
	}
}

func (p *Pipeline) imageSpec() workitem.Spec {
	return workitem.Spec{
		Name: "image",
		Selects: []workitem.Select{
			{Name: "prompt", Candidates: []string{ColImagePrompt, ColScript}},
		},
		DoneColumns:   []string{ColImageDone},
		AllDoneColumn: ColDone,
		StatusColumn:  ColStatus,
		Action: func(ctx context.Context, _ *workitem.Item, picks map[string]workitem.Selection) (map[string]string, error) {
			image, err := p.Renderer.Render(ctx, picks["prompt"].Value)
			if err != nil {
				return nil, err
			}
			return map[string]string{ColRawImage: image}, nil
		},
	}
}

func (p *Pipeline) composeSpec() workitem.Spec {
	return workitem.Spec{
		Name:     "compose",
		Required: []string{ColCaption},
		Selects: []workitem.Select{
			{Name: "base image", Candidates: []string{ColRawImage, ColImageURL}},
		},
		DoneColumns:   []string{ColComposeDone},
		AllDoneColumn: ColDone,
		StatusColumn:  ColStatus,
		Action: func(ctx context.Context, item *workitem.Item, picks map[string]workitem.Selection) (map[string]string, error) {
			final, err := p.Compositor.Compose(ctx, picks["base image"].Value, item.Get(ColCaption))
			if err != nil {
				return nil, err
			}
			return map[string]string{ColFinalImage: final}, nil
		},
	}
}

func (p *Pipeline) publishSpec() workitem.Spec {
	return workitem.Spec{
		Name:     "publish",
		Required: []string{ColCaption, ColPostDate, ColPostTime},
		Selects: []workitem.Select{
			{Name: "media", Candidates: []string{ColFinalImage, ColRawImage, ColImageURL}},
		},
		DoneColumns:   []string{ColPosted, ColDone},
		AllDoneColumn: ColDone,
		StatusColumn:  ColStatus,
		OptIn:         &workitem.OptIn{Column: ColPostFlag, Enable: "TRUE"},
		Action: func(ctx context.Context, item *workitem.Item, picks map[string]workitem.Selection) (map[string]string, error) {
			date, err := temporal.ParseDate(item.Get(ColPostDate))
			if err != nil {
				return nil, err
			}
			clock, err := temporal.ParseClock(item.Get(ColPostTime))
			if err != nil {
				return nil, err
			}
			target := temporal.ToUTC(date, clock)

			post := Post{Media: picks["media"].Value, Caption: item.Get(ColCaption)}
			var id string
			if temporal.ShouldSchedule(target, p.now()) {
				id, err = p.Publisher.Schedule(ctx, post, target)
			} else {
				id, err = p.Publisher.Publish(ctx, post)
			}
			if err != nil {
				return nil, err
			}
			return map[string]string{ColPostID: id}, nil
		},
	}
}
