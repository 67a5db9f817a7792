package simulator

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"math"
	"math/big"
	"time"

	"github.com/okian/shopstudy/internal/content"
	"github.com/okian/shopstudy/internal/domain/model"
	"github.com/okian/shopstudy/internal/domain/types"
	"github.com/okian/shopstudy/internal/syncer"
	"github.com/okian/shopstudy/internal/workflow"
	"github.com/okian/shopstudy/pkg/logger"
)

const likertMax = 7

var (
	ageRanges   = []string{"18-24", "25-34", "35-44", "45-54", "55+"}
	genders     = []string{"female", "male", "non_binary", "prefer_not_to_say"}
	frequencies = []string{"weekly", "monthly", "rarely"}
)

// Assign spreads behaviours over the participants: decliners first, then
// passive participants, engaged for the rest.
func Assign(cfg *Config) []Behaviour {
	n := cfg.Participants
	decline := int(math.Round(float64(n) * cfg.DeclineRate))
	passive := int(math.Round(float64(n) * cfg.PassiveRate))
	out := make([]Behaviour, n)
	for i := range out {
		switch {
		case i < decline:
			out[i] = Decliner
		case i < decline+passive:
			out[i] = Passive
		default:
			out[i] = Engaged
		}
	}
	return out
}

// randomIndex returns a uniform index in [0, n) using crypto/rand.
func randomIndex(n int) int {
	if n <= 1 {
		return 0
	}
	v, err := rand.Int(rand.Reader, big.NewInt(int64(n)))
	if err != nil {
		return 0
	}
	return int(v.Int64())
}

func pick(options []string) string { return options[randomIndex(len(options))] }

func likert() int { return randomIndex(likertMax) + 1 }

// runParticipant drives one participant on its own loop and syncer, and
// drains the syncer before returning.
func runParticipant(ctx context.Context, cfg *Config, api workflow.API, catalog content.Catalog, res *Result) error {
	start := time.Now()
	defer func() { res.Duration = time.Since(start) }()

	pctx, cancel := context.WithCancel(ctx)
	loop := workflow.NewLoop()
	go loop.Run(pctx)
	defer func() {
		cancel()
		<-loop.Done()
	}()

	log := logger.Named("participant")
	sync := syncer.New(syncer.WithLogger(log))
	sync.Start(pctx)
	wf := workflow.New(api, sync, loop,
		workflow.WithPacing(workflow.DefaultPacing().Scale(cfg.PacingScale)),
		workflow.WithCatalog(catalog),
		workflow.WithLogger(log),
	)

	sess, err := wf.Begin(pctx)
	if err != nil {
		return fmt.Errorf("begin: %w", err)
	}
	res.ParticipantID = sess.ParticipantID
	res.Condition = sess.Condition

	switch res.Behaviour {
	case Decliner:
		err = wf.Consent(true, false)
	case Passive:
		err = passive(pctx, wf, catalog)
	default:
		err = engaged(pctx, wf, catalog, res)
	}

	closeErr := sync.Close(pctx)
	res.SyncFailures = sync.Diagnostics().Total()
	snap := wf.Snapshot()
	res.Aborted = snap.Aborted
	res.Choice = snap.Choice

	if err != nil {
		return err
	}
	if closeErr != nil {
		return fmt.Errorf("drain sync queue: %w", closeErr)
	}
	log.Debug(ctx, "participant finished",
		logger.String("participantId", res.ParticipantID),
		logger.String("behaviour", string(res.Behaviour)),
		logger.Int("syncFailures", res.SyncFailures),
	)
	return nil
}

func engaged(ctx context.Context, wf *workflow.Workflow, catalog content.Catalog, res *Result) error {
	if err := start(ctx, wf); err != nil {
		return err
	}

	// A countdown may expire between reading the step and answering it; the
	// rejected answer is simply retried on the next step.
	for {
		snap := wf.Snapshot()
		if !snap.Step.IsRequirement() {
			break
		}
		q, _ := catalog.Question(snap.Step)
		err := wf.Answer(pickOptions(q), "")
		if err != nil && !errors.Is(err, workflow.ErrInvalidTransition) && !errors.Is(err, workflow.ErrUnknownOption) {
			return fmt.Errorf("answer %s: %w", snap.Step, err)
		}
	}
	if err := wf.Wait(ctx, types.StepReviewGate); err != nil {
		return fmt.Errorf("wait for review gate: %w", err)
	}

	if err := wf.ReviewProducts(); err != nil {
		return fmt.Errorf("review products: %w", err)
	}
	for {
		snap := wf.Snapshot()
		if snap.Product == nil {
			break
		}
		kind := types.RatingInterested
		if randomIndex(2) == 1 {
			kind = types.RatingNotInterested
		}
		if err := wf.Rate(snap.Product.ID, kind, ""); err != nil {
			return fmt.Errorf("rate %s: %w", snap.Product.ID, err)
		}
		res.Ratings++
	}

	choice := catalog.Products[randomIndex(len(catalog.Products))].ID
	return finish(ctx, wf, choice)
}

func passive(ctx context.Context, wf *workflow.Workflow, catalog content.Catalog) error {
	if err := start(ctx, wf); err != nil {
		return err
	}
	if err := wf.Wait(ctx, types.StepReviewGate); err != nil {
		return fmt.Errorf("wait for review gate: %w", err)
	}
	if err := wf.SkipAll(); err != nil {
		return fmt.Errorf("skip products: %w", err)
	}
	return finish(ctx, wf, catalog.RecommendedID)
}

// start consents, answers the pre-survey and waits for the first question.
func start(ctx context.Context, wf *workflow.Workflow) error {
	if err := wf.Consent(true, true); err != nil {
		return fmt.Errorf("consent: %w", err)
	}
	err := wf.SubmitPreSurvey(model.PreSurvey{
		AgeRange:          pick(ageRanges),
		Gender:            pick(genders),
		ShoppingFrequency: pick(frequencies),
		AIFamiliarity:     likert(),
		AITrust:           likert(),
	})
	if err != nil {
		return fmt.Errorf("pre-survey: %w", err)
	}
	if err := wf.Wait(ctx, types.RequirementSteps()[0]); err != nil {
		return fmt.Errorf("wait for first question: %w", err)
	}
	return nil
}

// finish reads the guide, chooses and answers the post-survey.
func finish(ctx context.Context, wf *workflow.Workflow, choice string) error {
	if err := wf.Wait(ctx, types.StepFinalGuide); err != nil {
		return fmt.Errorf("wait for guide: %w", err)
	}
	if err := wf.ContinueFromGuide(); err != nil {
		return fmt.Errorf("leave guide: %w", err)
	}
	if err := wf.Choose(choice); err != nil {
		return fmt.Errorf("choose %s: %w", choice, err)
	}
	err := wf.SubmitPostSurvey(model.PostSurvey{
		Satisfaction:     likert(),
		Trust:            likert(),
		PerceivedControl: likert(),
		Confidence:       likert(),
		WouldUseAgain:    likert(),
	})
	if err != nil {
		return fmt.Errorf("post-survey: %w", err)
	}
	return nil
}

// pickOptions selects one option, or up to two for multi-select questions.
func pickOptions(q content.Question) []string {
	if len(q.Options) == 0 {
		return nil
	}
	first := randomIndex(len(q.Options))
	out := []string{q.Options[first].ID}
	if q.MultiSelect && len(q.Options) > 1 && randomIndex(2) == 1 {
		second := (first + 1 + randomIndex(len(q.Options)-1)) % len(q.Options)
		out = append(out, q.Options[second].ID)
	}
	return out
}
