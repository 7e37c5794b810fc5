package main

import (
	"bytes"
	"strings"
	"testing"
	"time"

	"github.com/itaybe6/barber-English-sub002/migrations"
)

var today = time.Date(2026, 1, 13, 0, 0, 0, 0, time.UTC)

func TestReadRulesNormalizes(t *testing.T) {
	in := `[{"client_name":" Dana ","client_phone":"052-555-1234","day_of_week":2,"time_of_day":"10:30","service_name":"Cut"}]`
	rules, err := readRules(strings.NewReader(in), "IL", today)
	if err != nil {
		t.Fatalf("read: %v", err)
	}
	r := rules[0]
	if r.ClientName != "Dana" || r.ClientPhone != "+972525551234" {
		t.Fatalf("unexpected normalization %+v", r)
	}
	if r.RepeatIntervalWeeks != 1 || r.StartDate != "2026-01-13" {
		t.Fatalf("expected defaults, got interval=%d start=%q", r.RepeatIntervalWeeks, r.StartDate)
	}
}

func TestReadRulesRejectsInvalid(t *testing.T) {
	cases := map[string]string{
		"day":      `[{"client_name":"a","client_phone":"0525551234","day_of_week":7,"time_of_day":"10:00","service_name":"s"}]`,
		"clock":    `[{"client_name":"a","client_phone":"0525551234","day_of_week":1,"time_of_day":"25:00","service_name":"s"}]`,
		"phone":    `[{"client_name":"a","client_phone":"12","day_of_week":1,"time_of_day":"10:00","service_name":"s"}]`,
		"interval": `[{"client_name":"a","client_phone":"0525551234","day_of_week":1,"time_of_day":"10:00","service_name":"s","repeat_interval_weeks":-1}]`,
		"range":    `[{"client_name":"a","client_phone":"0525551234","day_of_week":1,"time_of_day":"10:00","service_name":"s","start_date":"2026-02-01","end_date":"2026-01-01"}]`,
		"unknown":  `[{"client_name":"a","client_phone":"0525551234","day_of_week":1,"time_of_day":"10:00","service_name":"s","color":"red"}]`,
	}
	for name, in := range cases {
		if _, err := readRules(strings.NewReader(in), "IL", today); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestPendingSkipsApplied(t *testing.T) {
	all := []migrations.Migration{{Name: "0001_a.sql"}, {Name: "0002_b.sql"}, {Name: "0003_c.sql"}}
	got := pending(all, map[string]bool{"0001_a.sql": true, "0003_c.sql": true})
	if len(got) != 1 || got[0].Name != "0002_b.sql" {
		t.Fatalf("unexpected pending %+v", got)
	}
}

func TestUserInputValidation(t *testing.T) {
	ok := userInput{BusinessID: "biz", Email: "a@b.c", Password: "longenough", Role: "admin"}
	if err := ok.validate(); err != nil {
		t.Fatalf("expected valid input, got %v", err)
	}
	bad := ok
	bad.Role = "owner"
	if err := bad.validate(); err == nil {
		t.Fatalf("expected role error")
	}
	bad = ok
	bad.Password = "short"
	if err := bad.validate(); err == nil {
		t.Fatalf("expected password error")
	}
}

func TestUserCreateRequiresFlags(t *testing.T) {
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"user", "create", "--email", "a@b.c"})
	if err := cmd.Execute(); err == nil || !strings.Contains(err.Error(), "--business") {
		t.Fatalf("expected missing business error, got %v", err)
	}
}
