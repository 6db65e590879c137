package scenes

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/kingrea/ostracism-lab/internal/condition"
	"github.com/kingrea/ostracism-lab/internal/config"
)

// CSV scene names. They are analysis keys; do not rename.
const (
	ScenePosture          = "Posture_Instruction"
	SceneGameInstruction  = "Cyberball_Instruction"
	SceneReady            = "Ready_To_Launch"
	SceneFeedback         = "Feedback_Read"
	SceneCallExperimenter = "Call_Experimenter"
	ScenePGGInstruction   = "PGG_Instruction"
	SceneNecessity        = "Necessity_Manip"
)

// Flow returns the ordered scenes for a variant. validateID is passed to the
// identity scene.
func Flow(v config.Variant, validateID func(string) error) []Scene {
	flow := []Scene{
		NewIdentity(validateID),
		PostureInstruction(),
		GameInstruction(),
		NewMatching(),
	}
	if v.Game.ConfirmLaunch {
		flow = append(flow, ReadyToLaunch())
	}
	flow = append(flow,
		NewExternalGame(),
		NewLoading(),
		Feedback(),
		CallExperimenter(),
		PGGInstruction(),
	)
	if v.HasNecessity() {
		flow = append(flow, Necessity())
	}
	return append(flow, NewDecision(), NewEnd())
}

func PostureInstruction() *Prompt {
	return NewPrompt(ScenePosture, func(ctx *Context) Card {
		posture := condition.PostureNeutral
		if a, ok := ctx.Session.Assignment(); ok && a.Posture != "" {
			posture = a.Posture
		}
		deck := ctx.Variant.Copy
		return Card{
			Title:  deck.PostureTitle,
			Body:   ctx.Text(deck.Posture[posture]),
			Hint:   deck.PostureHint,
			Layout: LayoutAccent,
			Color:  postureAccent[posture],
			Gate:   SpaceGate("Type: " + posture),
		}
	})
}

func GameInstruction() *Prompt {
	return NewPrompt(SceneGameInstruction, func(ctx *Context) Card {
		deck := ctx.Variant.Copy
		return Card{
			Body:   ctx.Text(deck.GameInstruction),
			Hint:   deck.GameHint,
			Layout: LayoutFramed,
			Color:  colorFrame,
			Gate:   SpaceGate("Start Matching"),
		}
	})
}

func ReadyToLaunch() *Prompt {
	return NewPrompt(SceneReady, func(ctx *Context) Card {
		deck := ctx.Variant.Copy
		return Card{
			Body:     ctx.Text(deck.ReadyText),
			Hint:     deck.ReadyHint,
			Emphasis: true,
			Gate:     SpaceGate("Launch Cyberball"),
		}
	})
}

func Feedback() *Prompt {
	return NewPrompt(SceneFeedback, func(ctx *Context) Card {
		deck := ctx.Variant.Copy
		return Card{
			Body:   ctx.Text(deck.Feedback),
			Hint:   deck.FeedbackHint,
			Layout: LayoutFramed,
			Color:  lipgloss.Color("#FFFFFF"),
			Gate:   SpaceGate("Finish Reading"),
		}
	})
}

func CallExperimenter() *Prompt {
	return NewPrompt(SceneCallExperimenter, func(ctx *Context) Card {
		deck := ctx.Variant.Copy
		return Card{
			Title:  deck.CallTitle,
			Body:   ctx.Text(deck.CallText),
			Layout: LayoutAlert,
			Gate:   SpaceGate("Resume Experiment"),
		}
	})
}

func PGGInstruction() *Prompt {
	return NewPrompt(ScenePGGInstruction, func(ctx *Context) Card {
		deck := ctx.Variant.Copy
		return Card{
			Body: ctx.Text(deck.PGGInstruction),
			Hint: deck.PGGHint,
			Gate: SpaceGate(deck.PGGNote),
		}
	})
}

func Necessity() *Prompt {
	return NewPrompt(SceneNecessity, func(ctx *Context) Card {
		deck := ctx.Variant.Copy
		return Card{
			Title:  deck.NecessityTitle,
			Body:   ctx.Text(deck.Necessity),
			Hint:   deck.NecessityHint,
			Layout: LayoutWarning,
			Gate:   SpaceGate(deck.NecessityNote),
		}
	})
}
