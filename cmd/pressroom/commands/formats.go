package commands

import (
	"fmt"

	"git.home.luguber.info/inful/pressroom/internal/transcode"
)

// FormatsCmd implements the 'formats' command.
type FormatsCmd struct{}

func (f *FormatsCmd) Run(g *Global) error {
	for _, format := range transcode.Available().List() {
		if _, err := fmt.Fprintln(g.stdout(), format); err != nil {
			return err
		}
	}
	return nil
}
