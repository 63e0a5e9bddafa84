package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hedeqiang/tether/subscriber"
	"github.com/hedeqiang/tether/ws"
)

func (a *app) watchCmd() *cobra.Command {
	var (
		count int
		types []string
	)
	cmd := &cobra.Command{
		Use:   "watch <context-id>...",
		Short: "Subscribe to contexts and print events until interrupted",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
			defer stop()

			events := a.client.Events()
			sub := subscriber.NewChannel(64)
			match := subscriber.ContextIn(args...)
			if len(types) > 0 {
				match = subscriber.All(match, subscriber.TypeIn(types...))
			}
			events.AddSubscriber(subscriber.NewFilter(sub, match))

			exhausted := make(chan error, 1)
			events.OnError(func(err error) {
				fmt.Fprintln(cmd.ErrOrStderr(), "event error:", err)
				if errors.Is(err, ws.ErrReconnectExhausted) {
					select {
					case exhausted <- err:
					default:
					}
				}
			})

			if err := events.Connect(ctx); err != nil {
				return fmt.Errorf("failed to connect: %w", err)
			}
			if err := events.Subscribe(ctx, args...); err != nil {
				return fmt.Errorf("failed to subscribe: %w", err)
			}
			fmt.Fprintf(cmd.ErrOrStderr(), "Watching %d context(s).\n", len(args))

			enc := json.NewEncoder(cmd.OutOrStdout())
			for seen := 0; count == 0 || seen < count; seen++ {
				select {
				case ev, ok := <-sub.Events():
					if !ok {
						return nil
					}
					if err := enc.Encode(ev); err != nil {
						return err
					}
				case err := <-exhausted:
					return err
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		},
	}
	cmd.Flags().StringSliceVarP(&types, "type", "t", nil, "only print events of these types")
	cmd.Flags().IntVarP(&count, "count", "n", 0, "exit after n events (0 means run until interrupted)")
	return cmd
}
