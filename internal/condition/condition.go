// Package condition assigns a subject to an experimental cell.
//
// Assignment is a pure function of the subject identifier and the variant's
// condition constants: the posture bucket follows the identifier's numeric
// parity (or a fixed rule), and the resulting label is an opaque grouping key
// written to the summary CSV for offline analysis.
package condition

import (
	"errors"
	"fmt"
	"strings"

	"github.com/kingrea/ostracism-lab/internal/config"
)

// Posture buckets.
const (
	PostureDefensive = "defensive"
	PostureNeutral   = "neutral"
)

// ErrNoDigits is returned when a parity rule meets an identifier without digits.
var ErrNoDigits = errors.New("condition: subject id has no digit to derive parity from")

// Assignment is the outcome of condition assignment for one subject.
type Assignment struct {
	TaskCondition string
	Posture       string
	Necessity     string
	Label         string
}

// Assign derives the posture bucket and condition label for subjectID.
func Assign(subjectID string, cfg config.ConditionConfig) (Assignment, error) {
	posture, err := Posture(subjectID, cfg.PostureRule)
	if err != nil {
		return Assignment{}, err
	}
	a := Assignment{
		TaskCondition: cfg.TaskCondition,
		Posture:       posture,
		Necessity:     cfg.Necessity,
	}
	a.Label = Label(cfg.LabelFormat, a)
	return a, nil
}

// Posture applies a posture rule to an identifier.
func Posture(subjectID, rule string) (string, error) {
	switch rule {
	case config.PostureRuleDefensive:
		return PostureDefensive, nil
	case config.PostureRuleNeutral:
		return PostureNeutral, nil
	case config.PostureRuleParity, "":
		odd, err := Odd(subjectID)
		if err != nil {
			return "", err
		}
		if odd {
			return PostureDefensive, nil
		}
		return PostureNeutral, nil
	default:
		return "", fmt.Errorf("condition: unknown posture rule %q", rule)
	}
}

// Odd reports the numeric parity of an identifier. The last decimal digit
// decides, which matches integer parity for all-digit ids of any length.
func Odd(subjectID string) (bool, error) {
	for i := len(subjectID) - 1; i >= 0; i-- {
		c := subjectID[i]
		if c >= '0' && c <= '9' {
			return (c-'0')%2 == 1, nil
		}
	}
	return false, ErrNoDigits
}

// Label fills the {condition}, {posture} and {necessity} placeholders.
func Label(format string, a Assignment) string {
	r := strings.NewReplacer(
		"{condition}", a.TaskCondition,
		"{posture}", a.Posture,
		"{necessity}", a.Necessity,
	)
	return r.Replace(format)
}
