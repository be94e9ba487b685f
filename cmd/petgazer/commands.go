package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/langchou/petgazer/internal/export"
	"github.com/langchou/petgazer/internal/models"
	"github.com/langchou/petgazer/internal/service"
)

var errUsage = errors.New("invalid arguments")

func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ContinueOnError)
	fs.SetOutput(io.Discard)
	return fs
}

// printJSON 缩进输出
func printJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

// parseOnOff 只接受 on / off
func parseOnOff(s string) (bool, error) {
	switch strings.ToLower(s) {
	case "on":
		return true, nil
	case "off":
		return false, nil
	}
	return false, fmt.Errorf("%w: state must be on or off, got %q", errUsage, s)
}

func onOff(b bool) string {
	if b {
		return "on"
	}
	return "off"
}

func runStatus(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("status")
	partial := fs.Bool("partial", false, "hardware report only")
	if err := fs.Parse(args); err != nil {
		return err
	}

	status, err := env.app.Tracker.DeviceStatus(ctx, *partial)
	if err != nil {
		return err
	}
	if env.json {
		return printJSON(env.out, status)
	}
	printStatus(env.out, status)
	return nil
}

func printStatus(w io.Writer, s models.DeviceStatus) {
	fmt.Fprintf(w, "Battery:       %d%% (%s)\n", s.BatteryLevel, s.BatteryHealth())
	fmt.Fprintf(w, "Hardware:      %s\n", s.HardwareStatus)
	fmt.Fprintf(w, "State:         %s\n", s.State)
	fmt.Fprintf(w, "Temperature:   %s\n", s.TemperatureState)
	fmt.Fprintf(w, "Battery saver: %s\n", onOff(s.BatterySaveMode))
	if s.Timestamp > 0 {
		fmt.Fprintf(w, "Reported:      %s\n", s.Time().Format(time.DateTime))
	}
	if s.NeedsAttention() {
		fmt.Fprintln(w, "Needs attention")
	}
}

func runLocation(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("location")
	maxAge := fs.Duration("max-age", 0, "accept a cached location up to this age")
	withAddress := fs.Bool("address", false, "reverse geocode the position")
	if err := fs.Parse(args); err != nil {
		return err
	}

	fix, err := env.app.Tracker.CurrentLocation(ctx, *maxAge)
	if err != nil {
		return err
	}

	var addr *models.Address
	if *withAddress {
		geo := env.app.Geocoder()
		if geo == nil {
			return fmt.Errorf("%w: geocoder disabled (GEOCODER_ENABLED=false)", errUsage)
		}
		if addr, err = geo.ReverseGeocode(ctx, fix.Latitude(), fix.Longitude()); err != nil {
			env.logger.Warn("Reverse geocoding failed", zap.Error(err))
		}
	}

	if env.json {
		return printJSON(env.out, models.LocationUpdate{Fix: fix, Address: addr, RecordedAt: fix.Timestamp()})
	}
	printLocation(env.out, fix, addr)
	return nil
}

func printLocation(w io.Writer, fix models.GPSFix, addr *models.Address) {
	fmt.Fprintf(w, "Position: %.6f, %.6f\n", fix.Latitude(), fix.Longitude())
	fmt.Fprintf(w, "Accuracy: %s (±%.0f m)\n", fix.AccuracyLevel(), fix.Uncertainty())
	fmt.Fprintf(w, "Altitude: %.0f m\n", fix.Altitude())
	if fix.IsMoving() {
		fmt.Fprintf(w, "Moving:   %.1f km/h, course %.0f°\n", fix.Speed(), fix.Course())
	}
	fmt.Fprintf(w, "Time:     %s\n", fix.Time().Format(time.DateTime))
	if addr != nil {
		fmt.Fprintf(w, "Address:  %s\n", addr.Short())
	}
	fmt.Fprintf(w, "Map:      https://www.openstreetmap.org/?mlat=%.6f&mlon=%.6f\n", fix.Latitude(), fix.Longitude())
}

func runControl(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("control")
	name := fs.String("cmd", "", "command name")
	stateFlag := fs.String("state", "on", "on or off")
	if err := fs.Parse(args); err != nil {
		return err
	}

	cmd, err := models.ParseCommandType(*name)
	if err != nil {
		return fmt.Errorf("%w: %v", errUsage, err)
	}
	on, err := parseOnOff(*stateFlag)
	if err != nil {
		return err
	}

	if err := env.app.Tracker.SendCommand(ctx, cmd, on); err != nil {
		return err
	}
	fmt.Fprintf(env.out, "%s turned %s\n", cmd, onOff(on))
	return nil
}

func runPet(ctx context.Context, env *cliEnv, args []string) error {
	pet, err := env.app.Tracker.PetData(ctx)
	if err != nil {
		return err
	}
	if env.json {
		return printJSON(env.out, pet)
	}

	fmt.Fprintf(env.out, "Name:     %s\n", pet.Name)
	fmt.Fprintf(env.out, "Type:     %s\n", pet.PetType)
	fmt.Fprintf(env.out, "Breed:    %s\n", pet.Breed)
	fmt.Fprintf(env.out, "Gender:   %s\n", pet.Gender)
	if !pet.Birthday.IsZero() {
		fmt.Fprintf(env.out, "Birthday: %s\n", pet.Birthday.Format(time.DateOnly))
	}
	if pet.Weight > 0 {
		fmt.Fprintf(env.out, "Weight:   %.1f kg\n", pet.Weight)
	}
	if pet.ChipID != "" {
		fmt.Fprintf(env.out, "Chip:     %s\n", pet.ChipID)
	}
	if url := pet.ProfilePictureURL(env.app.Tracker.BaseURL()); url != "" {
		fmt.Fprintf(env.out, "Picture:  %s\n", url)
	}
	return nil
}

func runExport(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("export")
	output := fs.String("o", "", "output file (default <tracker>_gps.csv)")
	withDatetime := fs.Bool("datetime", false, "add a human readable datetime column")
	toDB := fs.Bool("db", false, "also archive positions to DATABASE_URL")
	if err := fs.Parse(args); err != nil {
		return err
	}

	path := *output
	if path == "" {
		path = env.app.Tracker.TrackerID() + "_gps.csv"
	}
	store := export.NewCSVStore(path)
	exporter := export.NewExporter(env.app.Tracker, env.app.Clock, env.logger.Named("export"))

	result, err := exporter.Run(ctx, store, *withDatetime)
	if err != nil {
		return err
	}

	if *toDB {
		archive, db, err := env.app.Archive(ctx)
		if err != nil {
			return err
		}
		if db == nil {
			return fmt.Errorf("%w: -db requires DATABASE_URL", errUsage)
		}
		defer db.Close()

		fixes, _, err := store.Load()
		if err != nil {
			return err
		}
		inserted, err := archive.SavePositions(ctx, env.app.Tracker.TrackerID(), fixes)
		if err != nil {
			return err
		}
		fmt.Fprintf(env.out, "Archived %d new positions\n", inserted)
	}

	if env.json {
		return printJSON(env.out, result)
	}
	fmt.Fprintf(env.out, "Exported %d records (%d new) to %s\n", result.Records, result.Added, result.Path)
	return nil
}

func runHistory(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("history")
	hours := fs.Int("hours", 24, "hours back")
	analytics := fs.Bool("analytics", true, "compute distance and speed")
	verbose := fs.Bool("v", false, "list every location")
	if err := fs.Parse(args); err != nil {
		return err
	}
	if *hours <= 0 {
		return fmt.Errorf("%w: -hours must be positive", errUsage)
	}

	history, err := env.app.Tracker.History(ctx, *hours, *analytics)
	if err != nil {
		return err
	}
	if env.json {
		return printJSON(env.out, history)
	}
	printHistory(env.out, history, *verbose)
	return nil
}

func printHistory(w io.Writer, history models.LocationHistory, verbose bool) {
	switch h := history.(type) {
	case models.EmptyHistory:
		fmt.Fprintf(w, "No locations in the last %d hours\n", h.RequestedHours)
	case models.PopulatedHistory:
		fmt.Fprintf(w, "Locations: %d\n", h.LocationCount())
		fmt.Fprintf(w, "From:      %s\n", h.StartTime.Format(time.DateTime))
		fmt.Fprintf(w, "To:        %s\n", h.EndTime.Format(time.DateTime))
		fmt.Fprintf(w, "Span:      %.1f h\n", h.TimeSpanHours)
		if h.AnalyticsIncluded {
			fmt.Fprintf(w, "Distance:  %.2f km\n", h.TotalDistanceKm())
			fmt.Fprintf(w, "Max speed: %.1f km/h\n", h.MaxSpeed)
			fmt.Fprintf(w, "Avg speed: %.1f km/h\n", h.AverageSpeed)
		}
		if verbose {
			for _, fix := range h.Locations {
				fmt.Fprintf(w, "  %s  %.6f, %.6f  ±%.0fm\n",
					fix.Time().Format(time.DateTime), fix.Latitude(), fix.Longitude(), fix.Uncertainty())
			}
		}
	}
}

func runMonitor(ctx context.Context, env *cliEnv, args []string) error {
	cfg := env.app.MonitorConfig()

	fs := newFlagSet("monitor")
	fs.DurationVar(&cfg.Interval, "interval", cfg.Interval, "poll interval")
	fs.Float64Var(&cfg.HomeThreshold, "threshold", cfg.HomeThreshold, "home radius in meters")
	trigger := fs.Bool("trigger", false, "send mail / IFTTT alerts")
	fs.BoolVar(&cfg.StopAtHome, "stop-at-home", true, "exit once the pet is home")
	fs.BoolVar(&cfg.AutoBatterySaver, "battery-saver", false, "enable battery saver when the battery runs low")
	if err := fs.Parse(args); err != nil {
		return err
	}

	tracker := env.app.Tracker
	opts := []service.MonitorOption{
		service.WithEvents(tracker.Events()),
		service.WithStatusLine(func(line string) {
			fmt.Fprintf(env.out, "\r\033[K%s", line)
		}),
	}
	if *trigger {
		opts = append(opts, service.WithAlerter(env.app.Notifier()))
	}
	if geo := env.app.Geocoder(); geo != nil {
		opts = append(opts, service.WithGeocoder(geo))
	}

	pub, err := env.app.Publisher()
	if err != nil {
		return err
	}
	if pub != nil {
		defer pub.Close()
		opts = append(opts, service.WithPublisher(pub))
	}

	archive, db, err := env.app.Archive(ctx)
	if err != nil {
		return err
	}
	if db != nil {
		defer db.Close()
		opts = append(opts, service.WithArchive(archive))
	}

	fmt.Fprintf(env.out, "Monitoring tracker %s every %s (Ctrl+C to stop)\n", tracker.TrackerID(), cfg.Interval)
	monitor := service.NewMonitor(cfg, tracker, env.app.Clock, env.logger.Named("monitor"), opts...)
	err = monitor.Run(ctx)
	fmt.Fprintln(env.out)
	return err
}

func runHome(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("home")
	threshold := fs.Float64("threshold", 0, "home radius in meters (default HOME_THRESHOLD)")
	if err := fs.Parse(args); err != nil {
		return err
	}

	home, err := env.app.Tracker.HomeStatus(ctx, *threshold)
	if err != nil {
		return err
	}
	if env.json {
		return printJSON(env.out, home)
	}
	where := "away"
	if home.AtHome {
		where = "home"
	}
	fmt.Fprintf(env.out, "Pet is %s: %.0f m from home (threshold %.0f m)\n", where, home.Distance, home.Threshold)
	return nil
}

func runShare(ctx context.Context, env *cliEnv, args []string) error {
	if len(args) == 0 {
		return fmt.Errorf("%w: share create|list|deactivate", errUsage)
	}
	tracker := env.app.Tracker

	switch args[0] {
	case "create":
		fs := newFlagSet("share create")
		message := fs.String("message", "", "message shown on the share page")
		if err := fs.Parse(args[1:]); err != nil {
			return err
		}
		share, err := tracker.CreateShare(ctx, *message)
		if err != nil {
			return err
		}
		if env.json {
			return printJSON(env.out, share)
		}
		fmt.Fprintf(env.out, "Share %s: %s\n", share.ShareID, share.ShareLink)

	case "list":
		shares, err := tracker.ListShares(ctx)
		if err != nil {
			return err
		}
		if env.json {
			return printJSON(env.out, shares)
		}
		if len(shares) == 0 {
			fmt.Fprintln(env.out, "No shares")
		}
		for _, s := range shares {
			status := "inactive"
			if s.Active {
				status = "active"
			}
			fmt.Fprintf(env.out, "%s  %-8s  %s  %s\n", s.ShareID, status, s.ShareLink, s.Message)
		}

	case "deactivate":
		if len(args) < 2 {
			return fmt.Errorf("%w: share deactivate <id>", errUsage)
		}
		if err := tracker.DeactivateShare(ctx, args[1]); err != nil {
			return err
		}
		fmt.Fprintf(env.out, "Share %s deactivated\n", args[1])

	default:
		return fmt.Errorf("%w: unknown share action %q", errUsage, args[0])
	}
	return nil
}

func runLive(ctx context.Context, env *cliEnv, args []string) error {
	fs := newFlagSet("live")
	timeout := fs.Duration("timeout", 2*time.Minute, "give up after")
	if err := fs.Parse(args); err != nil {
		return err
	}

	ctx, cancel := context.WithTimeout(ctx, *timeout)
	defer cancel()

	fmt.Fprintln(env.out, "Waiting for a live position...")
	fix, err := env.app.Tracker.LiveLocation(ctx)
	if err != nil {
		return err
	}
	if env.json {
		return printJSON(env.out, fix)
	}
	printLocation(env.out, fix, nil)
	return nil
}

func runStats(_ context.Context, env *cliEnv, _ []string) error {
	stats := env.app.Tracker.Stats()
	if env.json {
		return printJSON(env.out, stats)
	}
	fmt.Fprintf(env.out, "Requests:      %d\n", stats.TotalRequests)
	fmt.Fprintf(env.out, "Errors:        %d\n", stats.Errors)
	fmt.Fprintf(env.out, "Cache hits:    %d (%.0f%%)\n", stats.CacheHits, stats.CacheHitRate*100)
	fmt.Fprintf(env.out, "Runtime:       %.0f s\n", stats.RuntimeSeconds)
	fmt.Fprintf(env.out, "Requests/min:  %.1f\n", stats.RequestsPerMinute)
	return nil
}
