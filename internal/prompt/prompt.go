// Package prompt wraps the interactive terminal forms used by --interactive
// apply and init.
package prompt

import (
	"slices"

	"github.com/charmbracelet/huh"
)

// ConfirmStep asks whether a pending step's action should run.
func ConfirmStep(desc string) (bool, error) {
	ok := true
	err := huh.NewConfirm().
		Title(desc).
		Affirmative("Apply").
		Negative("Skip").
		Value(&ok).
		Run()
	return ok, err
}

// SelectTags presents a multi-select of candidate machine tags with the
// detected ones preselected, returning the chosen set.
func SelectTags(candidates, detected []string) ([]string, error) {
	opts := make([]huh.Option[string], 0, len(candidates))
	for _, tag := range candidates {
		opts = append(opts, huh.NewOption(tag, tag).Selected(slices.Contains(detected, tag)))
	}

	var chosen []string
	err := huh.NewMultiSelect[string]().
		Title("Machine tags").
		Description("Steps gated with only:/except: match against these.").
		Options(opts...).
		Value(&chosen).
		Run()
	return chosen, err
}
