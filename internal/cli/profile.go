package cli

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/0x6d61/necrosis/internal/profile"
	"github.com/0x6d61/necrosis/internal/session"
)

func (a *app) profilePanel(sc *session.Context) *profile.Panel {
	return profile.New(a.client, sc, profile.WithNotifier(a.board), profile.WithLogger(a.log))
}

func newProfileCmd(a *app) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "profile",
		Short: "Show or edit your contact details",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			sc, err := a.currentSession(ctx)
			if err != nil {
				return err
			}
			p := a.profilePanel(sc)
			p.Open(ctx)
			defer p.Close()
			printProfile(a.out, sc, p)
			return nil
		},
	}

	var contact, organisation string
	set := &cobra.Command{
		Use:   "set",
		Short: "Update contact and organisation",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, cancel := a.commandContext(cmd)
			defer cancel()

			changedContact := cmd.Flags().Changed("contact")
			changedOrg := cmd.Flags().Changed("organisation")
			if !changedContact && !changedOrg {
				return fmt.Errorf("nothing to update (use --contact or --organisation)")
			}

			sc, err := a.currentSession(ctx)
			if err != nil {
				return err
			}
			p := a.profilePanel(sc)
			p.Open(ctx)
			if changedContact {
				p.SetContact(contact)
			}
			if changedOrg {
				p.SetOrganisation(organisation)
			}
			if err := p.Save(ctx); err != nil {
				p.Close()
				return errors.New(profile.MsgUpdateFailed)
			}
			return nil
		},
	}
	set.Flags().StringVar(&contact, "contact", "", "Contact phone or address")
	set.Flags().StringVar(&organisation, "organisation", "", "Organisation")

	cmd.AddCommand(set)
	return cmd
}

func printProfile(w io.Writer, sc *session.Context, p *profile.Panel) {
	contact, org := p.Fields()
	fmt.Fprintf(w, "Username:     %s\n", sc.Username)
	fmt.Fprintf(w, "Email:        %s\n", sc.Email)
	fmt.Fprintf(w, "Contact:      %s\n", orDash(contact))
	fmt.Fprintf(w, "Organisation: %s\n", orDash(org))
	if p.NeedsAttention() {
		fmt.Fprintln(w, infoStyle.Render("[*] Please complete your contact and organisation."))
	}
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
