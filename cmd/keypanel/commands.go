package main

import (
	"errors"
	"fmt"
	"log/slog"

	"github.com/kiranshivaraju/selfservice/internal/panel"
	"github.com/kiranshivaraju/selfservice/pkg/models"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var errNoUser = errors.New("no remote user: pass --user or set KEYPANEL_USER")

func newClient(v *viper.Viper) (*panel.HTTPClient, error) {
	user := v.GetString("user")
	if user == "" {
		return nil, errNoUser
	}
	return panel.NewHTTPClient(v.GetString("url"), user, v.GetDuration("timeout")), nil
}

func render(cmd *cobra.Command, v *viper.Viper, t panel.Table, err error) error {
	view := panel.View{User: v.GetString("user"), Table: t, Err: err}
	if rerr := panel.NewTextRenderer().Render(cmd.OutOrStdout(), view); rerr != nil {
		return rerr
	}
	return err
}

func runStatus(cmd *cobra.Command, v *viper.Viper) error {
	client, err := newClient(v)
	if err != nil {
		return err
	}
	ctrl := panel.NewController(client)
	t, err := ctrl.Load(cmd.Context())
	return render(cmd, v, t, err)
}

func newStatusCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show the key panel",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return runStatus(cmd, v)
		},
	}
}

func newGenerateCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "generate <slot>",
		Short: "Generate a key for an empty slot and show it once",
		Long: `Generates a new loader key for the slot (1-3 or slot1-slot3). The key
is printed once; store it in the loader's configuration straight away.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, v, args[0], panel.ActionGenerate)
		},
	}
}

func newRemoveCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "remove <slot>",
		Short: "Remove the key assigned to a slot",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runAction(cmd, v, args[0], panel.ActionRemove)
		},
	}
}

// runAction loads the panel and dispatches the slot's binding when it is the
// requested action.
func runAction(cmd *cobra.Command, v *viper.Viper, arg string, want panel.Action) error {
	slot, ok := panel.ParseSlot(arg)
	if !ok {
		return fmt.Errorf("invalid slot %q: want 1-%d or slot1-slot%d", arg, panel.SlotCount, panel.SlotCount)
	}
	client, err := newClient(v)
	if err != nil {
		return err
	}

	ctrl := panel.NewController(client)
	t, err := ctrl.Load(cmd.Context())
	if err != nil {
		return render(cmd, v, t, err)
	}
	if b, bound := ctrl.Binding(slot); !bound || b.Action != want {
		return render(cmd, v, t, fmt.Errorf("%s is not available for %s", want, slot))
	}

	t, err = ctrl.Dispatch(cmd.Context(), slot)
	return render(cmd, v, t, err)
}

func newWatchCmd(v *viper.Viper) *cobra.Command {
	return &cobra.Command{
		Use:   "watch",
		Short: "Show the key panel and redraw it whenever it changes",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			client, err := newClient(v)
			if err != nil {
				return err
			}
			ctrl := panel.NewController(client)
			t, err := ctrl.Load(cmd.Context())
			if err := render(cmd, v, t, err); err != nil {
				return err
			}

			return client.Watch(cmd.Context(), func(n models.Notice) {
				slog.Debug("key status changed", "kind", n.Kind, "slot", n.Slot)
				t, err := ctrl.Load(cmd.Context())
				if err != nil {
					slog.Warn("reload panel", "error", err)
				}
				render(cmd, v, t, err)
			})
		},
	}
}
