package cli

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/spf13/cobra"

	"github.com/example/wfm/internal/wire"
)

// commandContext initializes the services and returns the command context
// tagged with the configured actor.
func commandContext(cmd *cobra.Command) (context.Context, error) {
	if err := wire.Init(); err != nil {
		return nil, err
	}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	return wire.Context(ctx), nil
}

// parseTimeFlag reads an RFC3339 flag. Unset returns the zero time.
func parseTimeFlag(cmd *cobra.Command, name string) (time.Time, error) {
	v, _ := cmd.Flags().GetString(name)
	if v == "" {
		return time.Time{}, nil
	}
	t, err := time.Parse(time.RFC3339, v)
	if err != nil {
		return time.Time{}, errors.Wrapf(err, "--%s must be RFC3339", name)
	}
	return t, nil
}

// optionalString returns a pointer to the flag value when it was set.
func optionalString(cmd *cobra.Command, name string) *string {
	if !cmd.Flags().Changed(name) {
		return nil
	}
	v, _ := cmd.Flags().GetString(name)
	return &v
}
