package main

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"regexp"
	"strings"
	"time"

	"github.com/itaybe6/barber-English-sub002/libs/config"
	"github.com/itaybe6/barber-English-sub002/libs/phone"
	"github.com/spf13/cobra"
)

// ruleSeed is one entry of a rules file. Dates are YYYY-MM-DD civil dates.
type ruleSeed struct {
	ClientName          string `json:"client_name"`
	ClientPhone         string `json:"client_phone"`
	DayOfWeek           int    `json:"day_of_week"`
	TimeOfDay           string `json:"time_of_day"`
	ServiceName         string `json:"service_name"`
	RepeatIntervalWeeks int    `json:"repeat_interval_weeks"`
	StartDate           string `json:"start_date"`
	EndDate             string `json:"end_date"`
	StaffID             string `json:"staff_id"`
}

var clockPattern = regexp.MustCompile(`^([01][0-9]|2[0-3]):[0-5][0-9]$`)

// normalize validates r in place. today fills a missing start date so the
// repeat interval keeps a fixed phase.
func (r *ruleSeed) normalize(region string, today time.Time) error {
	r.ClientName = strings.TrimSpace(r.ClientName)
	r.ServiceName = strings.TrimSpace(r.ServiceName)
	if r.ClientName == "" || r.ServiceName == "" {
		return errors.New("client_name and service_name are required")
	}
	if r.DayOfWeek < 0 || r.DayOfWeek > 6 {
		return fmt.Errorf("day_of_week %d out of range 0-6", r.DayOfWeek)
	}
	if !clockPattern.MatchString(r.TimeOfDay) {
		return fmt.Errorf("time_of_day %q must be HH:MM", r.TimeOfDay)
	}
	if r.RepeatIntervalWeeks == 0 {
		r.RepeatIntervalWeeks = 1
	}
	if r.RepeatIntervalWeeks < 1 {
		return errors.New("repeat_interval_weeks must be at least 1")
	}
	p, err := phone.Normalize(r.ClientPhone, region)
	if err != nil {
		return fmt.Errorf("client_phone %q: %w", r.ClientPhone, err)
	}
	r.ClientPhone = p

	if r.StartDate == "" {
		r.StartDate = today.Format(time.DateOnly)
	}
	start, err := time.Parse(time.DateOnly, r.StartDate)
	if err != nil {
		return fmt.Errorf("start_date %q: %w", r.StartDate, err)
	}
	if r.EndDate != "" {
		end, err := time.Parse(time.DateOnly, r.EndDate)
		if err != nil {
			return fmt.Errorf("end_date %q: %w", r.EndDate, err)
		}
		if end.Before(start) {
			return errors.New("end_date is before start_date")
		}
	}
	return nil
}

func readRules(r io.Reader, region string, today time.Time) ([]ruleSeed, error) {
	var rules []ruleSeed
	dec := json.NewDecoder(r)
	dec.DisallowUnknownFields()
	if err := dec.Decode(&rules); err != nil {
		return nil, fmt.Errorf("decode rules: %w", err)
	}
	for i := range rules {
		if err := rules[i].normalize(region, today); err != nil {
			return nil, fmt.Errorf("rule %d: %w", i, err)
		}
	}
	return rules, nil
}

func newSeedCommand(opts *rootOptions) *cobra.Command {
	var (
		businessID string
		file       string
		region     string
	)
	cmd := &cobra.Command{
		Use:   "seed",
		Short: "Load recurring rules from a JSON file",
		Long: `Load recurring rules from a JSON array. Rules whose weekly slot is
already taken are skipped. booking-service materializes the appointments on
its next seeding pass.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if strings.TrimSpace(businessID) == "" {
				return errors.New("--business is required")
			}
			loc, err := config.Location("BUSINESS_TIMEZONE", "Asia/Jerusalem")
			if err != nil {
				return err
			}
			now := time.Now().In(loc)
			today := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, time.UTC)

			f, err := os.Open(file)
			if err != nil {
				return err
			}
			defer f.Close()
			rules, err := readRules(f, region, today)
			if err != nil {
				return err
			}

			ctx, pool, done, err := opts.connect(cmd.Context())
			if err != nil {
				return err
			}
			defer done()

			var inserted, skipped int
			for _, r := range rules {
				tag, err := pool.Exec(ctx, `
					INSERT INTO recurring_appointments
						(business_id, client_name, client_phone, day_of_week, time_of_day,
						 service_name, repeat_interval_weeks, start_date, end_date, staff_id)
					VALUES ($1, $2, $3, $4, $5, $6, $7, $8::date, NULLIF($9, '')::date, NULLIF($10, ''))
					ON CONFLICT DO NOTHING
				`, businessID, r.ClientName, r.ClientPhone, r.DayOfWeek, r.TimeOfDay,
					r.ServiceName, r.RepeatIntervalWeeks, r.StartDate, r.EndDate, r.StaffID)
				if err != nil {
					return fmt.Errorf("insert rule for %s: %w", r.ClientPhone, err)
				}
				if tag.RowsAffected() == 0 {
					skipped++
					continue
				}
				inserted++
			}
			fmt.Fprintf(cmd.OutOrStdout(), "rules inserted=%d skipped=%d\n", inserted, skipped)
			return nil
		},
	}
	cmd.Flags().StringVar(&businessID, "business", "", "business id")
	cmd.Flags().StringVar(&file, "file", "rules.json", "JSON array of rules")
	cmd.Flags().StringVar(&region, "region", "IL", "default region for numbers without a country prefix")
	return cmd
}
