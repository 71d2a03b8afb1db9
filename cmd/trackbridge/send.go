package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/jpalmerr/trackbridge"
	"github.com/jpalmerr/trackbridge/config"
)

// sendCmd sends one event through a Provider.
var sendCmd = &cobra.Command{
	Use:   "send",
	Short: "Send a single event to the collector",
	Long: `Send one event, page view or identify call to the configured collector.

The command loads the tracking script like a page would, waits until it is
ready and then dispatches through the tracker. It fails if the script does
not load within --wait.

--data takes key=value pairs. Values that parse as JSON (numbers, booleans,
objects) are sent as such; anything else is sent as a string.

Example:
  trackbridge send -c config.yaml --event signup --data plan=pro --data seats=3
  trackbridge send --url https://example.com/pricing --referrer https://google.com
  trackbridge send --identify user-42 --data plan=pro`,
	RunE: runSend,
}

func init() {
	rootCmd.AddCommand(sendCmd)

	addConfigFlag(sendCmd, false)
	sendCmd.Flags().String("event", "", "event name")
	sendCmd.Flags().String("url", "", "page URL; sends a page view when --event is empty")
	sendCmd.Flags().String("referrer", "", "page referrer for page views")
	sendCmd.Flags().String("identify", "", "user ID to identify instead of sending an event")
	sendCmd.Flags().StringArray("data", nil, "event data as key=value (repeatable)")
	sendCmd.Flags().Duration("wait", 10*time.Second, "how long to wait for the tracking script")
}

// parseData turns key=value pairs into event data.
func parseData(pairs []string) (trackbridge.EventData, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	data := make(trackbridge.EventData, len(pairs))
	for _, pair := range pairs {
		key, raw, ok := strings.Cut(pair, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("invalid data %q: expected key=value", pair)
		}
		var v any
		if err := json.Unmarshal([]byte(raw), &v); err != nil {
			v = raw
		}
		data[key] = v
	}
	return data, nil
}

func runSend(cmd *cobra.Command, args []string) error {
	logger := newLogger()

	event, _ := cmd.Flags().GetString("event")
	pageURL, _ := cmd.Flags().GetString("url")
	referrer, _ := cmd.Flags().GetString("referrer")
	userID, _ := cmd.Flags().GetString("identify")
	pairs, _ := cmd.Flags().GetStringArray("data")
	wait, _ := cmd.Flags().GetDuration("wait")

	if event == "" && pageURL == "" && userID == "" {
		return errors.New("one of --event, --url or --identify is required")
	}
	data, err := parseData(pairs)
	if err != nil {
		return err
	}

	fileCfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	opts := append(config.BuildOptions(fileCfg), trackbridge.WithLogger(logger))

	p, err := trackbridge.NewProvider(opts...)
	if err != nil {
		return fmt.Errorf("failed to create provider: %w", err)
	}
	defer p.Close()

	if !p.Enabled() {
		return trackbridge.ErrMissingWebsiteID
	}

	ctx := cmd.Context()
	if err := p.Start(ctx); err != nil {
		return err
	}

	select {
	case <-p.Done():
	case <-time.After(wait):
		return fmt.Errorf("tracking script did not load from %s within %s", trackbridge.ScriptSrc(p.Config()), wait)
	case <-ctx.Done():
		return ctx.Err()
	}

	a := p.Analytics()
	switch {
	case userID != "":
		a.IdentifyUser(userID, data)
	case event != "":
		if pageURL != "" {
			if data == nil {
				data = trackbridge.EventData{}
			}
			data["url"] = pageURL
		}
		a.Track(event, data)
	default:
		a.TrackPageView(pageURL, referrer)
	}

	// Close waits for the request to finish
	p.Close()
	fmt.Fprintf(cmd.OutOrStdout(), "sent to %s\n", p.Config().Host())
	return nil
}
